package countries

import "fmt"

// Builtin returns the built-in calling-code table.
func Builtin() *Table {
	t, err := NewTable(builtinCountries)
	if err != nil {
		panic(fmt.Sprintf("countries: invalid built-in table: %v", err))
	}
	return t
}

var builtinCountries = []Country{
	{"1", "US", "United States/Canada"},
	{"1242", "BS", "Bahamas"},
	{"1246", "BB", "Barbados"},
	{"1268", "AG", "Antigua and Barbuda"},
	{"1345", "KY", "Cayman Islands"},
	{"1441", "BM", "Bermuda"},
	{"1868", "TT", "Trinidad and Tobago"},
	{"1876", "JM", "Jamaica"},
	{"7", "RU", "Russia/Kazakhstan"},
	{"20", "EG", "Egypt"},
	{"27", "ZA", "South Africa"},
	{"30", "GR", "Greece"},
	{"31", "NL", "Netherlands"},
	{"32", "BE", "Belgium"},
	{"33", "FR", "France"},
	{"34", "ES", "Spain"},
	{"36", "HU", "Hungary"},
	{"39", "IT", "Italy"},
	{"40", "RO", "Romania"},
	{"41", "CH", "Switzerland"},
	{"43", "AT", "Austria"},
	{"44", "GB", "United Kingdom"},
	{"45", "DK", "Denmark"},
	{"46", "SE", "Sweden"},
	{"47", "NO", "Norway"},
	{"48", "PL", "Poland"},
	{"49", "DE", "Germany"},
	{"51", "PE", "Peru"},
	{"52", "MX", "Mexico"},
	{"54", "AR", "Argentina"},
	{"55", "BR", "Brazil"},
	{"56", "CL", "Chile"},
	{"57", "CO", "Colombia"},
	{"60", "MY", "Malaysia"},
	{"61", "AU", "Australia"},
	{"62", "ID", "Indonesia"},
	{"63", "PH", "Philippines"},
	{"64", "NZ", "New Zealand"},
	{"65", "SG", "Singapore"},
	{"66", "TH", "Thailand"},
	{"81", "JP", "Japan"},
	{"82", "KR", "South Korea"},
	{"84", "VN", "Vietnam"},
	{"86", "CN", "China"},
	{"90", "TR", "Turkey"},
	{"91", "IN", "India"},
	{"92", "PK", "Pakistan"},
	{"93", "AF", "Afghanistan"},
	{"94", "LK", "Sri Lanka"},
	{"95", "MM", "Myanmar"},
	{"98", "IR", "Iran"},
	{"212", "MA", "Morocco"},
	{"213", "DZ", "Algeria"},
	{"216", "TN", "Tunisia"},
	{"218", "LY", "Libya"},
	{"234", "NG", "Nigeria"},
	{"251", "ET", "Ethiopia"},
	{"254", "KE", "Kenya"},
	{"255", "TZ", "Tanzania"},
	{"256", "UG", "Uganda"},
	{"263", "ZW", "Zimbabwe"},
	{"351", "PT", "Portugal"},
	{"353", "IE", "Ireland"},
	{"358", "FI", "Finland"},
	{"380", "UA", "Ukraine"},
	{"420", "CZ", "Czech Republic"},
	{"852", "HK", "Hong Kong"},
	{"853", "MO", "Macau"},
	{"855", "KH", "Cambodia"},
	{"880", "BD", "Bangladesh"},
	{"886", "TW", "Taiwan"},
	{"960", "MV", "Maldives"},
	{"961", "LB", "Lebanon"},
	{"962", "JO", "Jordan"},
	{"963", "SY", "Syria"},
	{"964", "IQ", "Iraq"},
	{"965", "KW", "Kuwait"},
	{"966", "SA", "Saudi Arabia"},
	{"967", "YE", "Yemen"},
	{"968", "OM", "Oman"},
	{"970", "PS", "Palestine"},
	{"971", "AE", "United Arab Emirates"},
	{"972", "IL", "Israel"},
	{"973", "BH", "Bahrain"},
	{"974", "QA", "Qatar"},
	{"975", "BT", "Bhutan"},
	{"977", "NP", "Nepal"},
	{"992", "TJ", "Tajikistan"},
	{"993", "TM", "Turkmenistan"},
	{"994", "AZ", "Azerbaijan"},
	{"995", "GE", "Georgia"},
	{"996", "KG", "Kyrgyzstan"},
	{"998", "UZ", "Uzbekistan"},
}
