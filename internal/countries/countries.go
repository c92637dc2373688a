// Package countries classifies phone numbers by E.164 country calling code.
package countries

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnknownCode is the bucket key for numbers without a recognizable code.
const UnknownCode = "Unknown"

// maxCodeLen is the longest calling code in the E.164 plan (NANP area
// overrides such as 1876 included).
const maxCodeLen = 4

// Country is one calling-code entry.
type Country struct {
	Code string `yaml:"code" json:"code"`
	ISO  string `yaml:"iso" json:"iso,omitempty"`
	Name string `yaml:"name" json:"name"`
}

// Unknown is returned for numbers that carry no known country code.
var Unknown = Country{Code: UnknownCode, Name: UnknownCode}

// Table is an immutable calling-code lookup table.
type Table struct {
	byCode map[string]Country
}

// NewTable builds a table. Codes must be 1-4 digits and unique.
func NewTable(entries []Country) (*Table, error) {
	t := &Table{byCode: make(map[string]Country, len(entries))}
	for _, c := range entries {
		c.Code = strings.TrimPrefix(strings.TrimSpace(c.Code), "+")
		if c.Code == "" || len(c.Code) > maxCodeLen || !allDigits(c.Code) {
			return nil, fmt.Errorf("invalid calling code %q", c.Code)
		}
		if _, dup := t.byCode[c.Code]; dup {
			return nil, fmt.Errorf("duplicate calling code %q", c.Code)
		}
		if c.Name == "" {
			c.Name = c.Code
		}
		t.byCode[c.Code] = c
	}
	return t, nil
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.byCode) }

// Lookup returns the entry for an exact calling code.
func (t *Table) Lookup(code string) (Country, bool) {
	c, ok := t.byCode[code]
	return c, ok
}

// Classify returns the country of a number by longest-prefix match. Only
// numbers written in international form ("+..." or "00...") carry a country
// code; anything else is Unknown.
func (t *Table) Classify(number string) Country {
	digits, ok := International(number)
	if !ok {
		return Unknown
	}
	for n := min(maxCodeLen, len(digits)); n > 0; n-- {
		if c, ok := t.byCode[digits[:n]]; ok {
			return c
		}
	}
	return Unknown
}

// International strips the international prefix and returns the remaining
// digits. ok is false when the number is not in international form.
func International(number string) (string, bool) {
	s := strings.TrimSpace(number)
	switch {
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasPrefix(s, "00"):
		s = s[2:]
	default:
		return "", false
	}
	if s == "" || !allDigits(s) {
		return "", false
	}
	return s, true
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type tableFile struct {
	Countries []Country `yaml:"countries"`
}

// Parse decodes a YAML country table.
func Parse(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse country table: %w", err)
	}
	return NewTable(f.Countries)
}

// Load reads a YAML country table. An empty path yields the built-in table.
func Load(path string) (*Table, error) {
	if path == "" {
		return Builtin(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read country table: %w", err)
	}
	return Parse(data)
}
