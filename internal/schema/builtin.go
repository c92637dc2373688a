package schema

import "fmt"

// Builtin returns the built-in profile set. Declaration order is the
// detection tie-break: vendor formats first, the generic standard layout last.
func Builtin() *ProfileSet {
	ps, err := NewProfileSet(builtinProfiles()...)
	if err != nil {
		panic(fmt.Sprintf("schema: invalid built-in profiles: %v", err))
	}
	return ps
}

// Indian TSP exports carry separate date and time columns in local time.
var tspDateFormats = []string{
	"02/01/2006 15:04:05",
	"02-01-2006 15:04:05",
	"02-Jan-2006 15:04:05",
	"02-Jan-06 15:04:05",
	"02/01/06 15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04",
}

var tspDirectionCodes = map[string]string{
	"in": "incoming", "a_in": "incoming", "call_in": "incoming", "sms_in": "incoming", "mtc": "incoming", "sms_mt": "incoming",
	"out": "outgoing", "a_out": "outgoing", "call_out": "outgoing", "sms_out": "outgoing", "moc": "outgoing", "sms_mo": "outgoing",
}

func builtinProfiles() []VendorProfile {
	return []VendorProfile{
		{
			Name: "ericsson",
			RequiredFields: []Field{
				FieldCallingNumber, FieldCalledNumber, FieldStartTime, FieldDuration,
				FieldCellID, FieldIMEI, FieldIMSI,
			},
			Aliases: map[Field][]string{
				FieldCallingNumber: {"A_NUMBER", "msisdn_a", "calling_party", "caller_id"},
				FieldCalledNumber:  {"B_NUMBER", "msisdn_b", "called_party", "callee_id"},
				FieldStartTime:     {"EVENT_TIMESTAMP", "start_time", "event_time", "timestamp", "date_time"},
				FieldDuration:      {"CALL_DURATION", "duration", "talk_time"},
				FieldCellID:        {"CELL_ID", "tower_id"},
				FieldLAC:           {"LAC", "location_area_code"},
				FieldMCC:           {"MCC"},
				FieldMNC:           {"MNC"},
				FieldIMEI:          {"IMEI", "device_id"},
				FieldIMSI:          {"IMSI", "subscriber_id"},
				FieldCallType:      {"RECORD_TYPE", "service_type"},
				FieldStatus:        {"CAUSE_FOR_TERMINATION", "call_status"},
			},
			Weights: map[Field]float64{
				FieldCallingNumber: 3, FieldCalledNumber: 3, FieldStartTime: 3, FieldDuration: 2,
			},
			DirectionCodes: map[string]string{"moc": "outgoing", "mtc": "incoming", "smsmo": "outgoing", "smsmt": "incoming"},
		},
		{
			Name: "nokia",
			RequiredFields: []Field{
				FieldCallingNumber, FieldCalledNumber, FieldStartTime, FieldDuration,
				FieldCellID, FieldIMEI,
			},
			Aliases: map[Field][]string{
				FieldCallingNumber: {"A_PARTY", "originating_number", "msisdn_a"},
				FieldCalledNumber:  {"B_PARTY", "terminating_number", "msisdn_b"},
				FieldStartTime:     {"START_TIMESTAMP", "event_time"},
				FieldDuration:      {"CALL_LENGTH", "duration"},
				FieldCellID:        {"CELL_IDENTITY", "ci", "cell_id"},
				FieldLAC:           {"LAC"},
				FieldIMEI:          {"EQUIPMENT_ID", "imei"},
				FieldIMSI:          {"IMSI"},
				FieldCallType:      {"EVENT_TYPE"},
				FieldDirection:     {"DIRECTION"},
			},
			Weights: map[Field]float64{
				FieldCallingNumber: 3, FieldCalledNumber: 3, FieldStartTime: 3, FieldDuration: 2,
			},
		},
		{
			Name: "huawei",
			RequiredFields: []Field{
				FieldCallingNumber, FieldCalledNumber, FieldStartTime, FieldDuration,
				FieldCellID, FieldIMEI, FieldIMSI,
			},
			Aliases: map[Field][]string{
				FieldCallingNumber: {"CallingNum", "a_number", "msisdn_a"},
				FieldCalledNumber:  {"CalledNum", "b_number", "msisdn_b"},
				FieldStartTime:     {"BeginTime", "start_time", "event_time"},
				FieldEndTime:       {"EndTime"},
				FieldDuration:      {"CallDuration", "duration"},
				FieldCellID:        {"CellId", "ci"},
				FieldLAC:           {"Lac"},
				FieldIMEI:          {"IMEI"},
				FieldIMSI:          {"IMSI"},
				FieldCallType:      {"ServiceType"},
			},
			Weights: map[Field]float64{
				FieldCallingNumber: 3, FieldCalledNumber: 3, FieldStartTime: 3, FieldDuration: 2,
			},
			DateFormats: []string{"20060102150405", "2006/01/02 15:04:05"},
		},
		{
			Name: "airtel",
			RequiredFields: []Field{
				FieldCallingNumber, FieldCalledNumber, FieldStartDate, FieldStartClock, FieldDuration,
			},
			Aliases: map[Field][]string{
				FieldCallingNumber: {"Target No", "target_number"},
				FieldCalledNumber:  {"B Party No", "b_party"},
				FieldStartDate:     {"Date", "call_date"},
				FieldStartClock:    {"Time", "call_time"},
				FieldDuration:      {"Dur(s)", "duration"},
				FieldCallType:      {"Call Type"},
				FieldCellID:        {"First CGI", "first_cell_id"},
				FieldIMEI:          {"IMEI"},
				FieldIMSI:          {"IMSI"},
			},
			Weights: map[Field]float64{
				FieldCallingNumber: 3, FieldCalledNumber: 3, FieldStartDate: 3, FieldStartClock: 2,
			},
			DateFormats:    tspDateFormats,
			Timezone:       "Asia/Kolkata",
			DirectionCodes: tspDirectionCodes,
		},
		{
			Name: "jio",
			RequiredFields: []Field{
				FieldCallingNumber, FieldCalledNumber, FieldStartDate, FieldStartClock, FieldDuration,
			},
			Aliases: map[Field][]string{
				FieldCallingNumber: {"Calling Party Telephone Number"},
				FieldCalledNumber:  {"Called Party Telephone Number"},
				FieldStartDate:     {"Call Date"},
				FieldStartClock:    {"Call Time"},
				FieldDuration:      {"Call Duration"},
				FieldCallType:      {"Call Type"},
				FieldCellID:        {"First Cell Global Id", "first_cgi"},
				FieldIMEI:          {"IMEI"},
				FieldIMSI:          {"IMSI"},
			},
			Weights: map[Field]float64{
				FieldCallingNumber: 3, FieldCalledNumber: 3, FieldStartDate: 3, FieldStartClock: 2,
			},
			DateFormats:    tspDateFormats,
			Timezone:       "Asia/Kolkata",
			DirectionCodes: tspDirectionCodes,
		},
		{
			Name: "vi",
			RequiredFields: []Field{
				FieldCallingNumber, FieldCalledNumber, FieldStartDate, FieldStartClock, FieldDuration,
			},
			Aliases: map[Field][]string{
				FieldCallingNumber: {"MSISDN"},
				FieldCalledNumber:  {"B Party Number", "b_party_no"},
				FieldStartDate:     {"Call Date"},
				FieldStartClock:    {"Call Initiation Time"},
				FieldDuration:      {"Call Duration"},
				FieldCallType:      {"Call Type"},
				FieldCellID:        {"First Cell ID", "first_cgi"},
				FieldIMEI:          {"IMEI"},
				FieldIMSI:          {"IMSI"},
			},
			Weights: map[Field]float64{
				FieldCallingNumber: 3, FieldCalledNumber: 3, FieldStartDate: 3, FieldStartClock: 2,
			},
			DateFormats:    tspDateFormats,
			Timezone:       "Asia/Kolkata",
			DirectionCodes: tspDirectionCodes,
		},
		{
			Name: "bsnl",
			RequiredFields: []Field{
				FieldCallingNumber, FieldCalledNumber, FieldStartTime, FieldDuration,
			},
			Aliases: map[Field][]string{
				FieldCallingNumber: {"Calling No", "calling_msisdn"},
				FieldCalledNumber:  {"Called No", "called_msisdn"},
				FieldStartTime:     {"Start Date Time", "call_start_date_time"},
				FieldDuration:      {"Duration Sec", "duration"},
				FieldCallType:      {"Call Type"},
				FieldCellID:        {"Cell Id"},
				FieldIMEI:          {"IMEI"},
				FieldIMSI:          {"IMSI"},
			},
			Weights: map[Field]float64{
				FieldCallingNumber: 3, FieldCalledNumber: 3, FieldStartTime: 3, FieldDuration: 2,
			},
			DateFormats:    tspDateFormats,
			Timezone:       "Asia/Kolkata",
			DirectionCodes: tspDirectionCodes,
		},
		{
			Name:           "standard",
			RequiredFields: []Field{FieldCallingNumber, FieldCalledNumber, FieldStartTime},
			Aliases: map[Field][]string{
				FieldCallingNumber: {"calling_number", "caller", "from_number"},
				FieldCalledNumber:  {"called_number", "callee", "to_number"},
				FieldStartTime:     {"call_start_time", "start_time", "timestamp"},
				FieldEndTime:       {"call_end_time", "end_time"},
				FieldDuration:      {"duration_seconds", "duration", "call_duration"},
				FieldCallType:      {"call_type", "type", "service_type"},
				FieldDirection:     {"direction", "call_direction"},
				FieldStatus:        {"call_status", "status"},
				FieldIMEI:          {"imei", "device_imei"},
				FieldIMSI:          {"imsi", "subscriber_imsi"},
				FieldCellID:        {"cell_tower_id", "tower_id", "cell_id", "ci", "cell_identity"},
				FieldLAC:           {"lac", "location_area_code", "location_area"},
				FieldMNC:           {"mnc", "mobile_network_code", "network_code"},
				FieldMCC:           {"mcc", "mobile_country_code"},
				FieldLat:           {"location_lat", "latitude", "lat"},
				FieldLon:           {"location_lon", "longitude", "lon"},
				FieldSMSContent:    {"sms_content", "message", "text"},
				FieldCost:          {"cost", "charge", "amount"},
				FieldDataVolume:    {"data_volume_mb", "data_volume", "volume_mb"},
			},
			Weights: map[Field]float64{
				FieldCallingNumber: 3, FieldCalledNumber: 3, FieldStartTime: 3,
			},
		},
	}
}
