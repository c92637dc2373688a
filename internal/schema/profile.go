// Package schema holds the canonical field set and the vendor profiles that
// map vendor export headers onto it.
package schema

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata" // profiles name IANA zones; do not depend on the host tz database

	"golang.org/x/text/unicode/norm"
)

// Field is a canonical CDR field name.
type Field string

const (
	FieldCallingNumber Field = "calling_number"
	FieldCalledNumber  Field = "called_number"
	FieldStartTime     Field = "start_time"
	FieldStartDate     Field = "start_date"
	FieldStartClock    Field = "start_clock"
	FieldEndTime       Field = "end_time"
	FieldDuration      Field = "duration"
	FieldCallType      Field = "call_type"
	FieldDirection     Field = "direction"
	FieldStatus        Field = "status"
	FieldIMEI          Field = "imei"
	FieldIMSI          Field = "imsi"
	FieldCellID        Field = "cell_id"
	FieldLAC           Field = "lac"
	FieldMNC           Field = "mnc"
	FieldMCC           Field = "mcc"
	FieldLat           Field = "lat"
	FieldLon           Field = "lon"
	FieldSMSContent    Field = "sms_content"
	FieldCost          Field = "cost"
	FieldDataVolume    Field = "data_volume_mb"
)

// Fields lists every canonical field in resolution order. Headers are
// claimed by the first field that matches them, so identity and timing come
// first.
var Fields = []Field{
	FieldCallingNumber, FieldCalledNumber,
	FieldStartTime, FieldStartDate, FieldStartClock, FieldEndTime, FieldDuration,
	FieldCallType, FieldDirection, FieldStatus,
	FieldIMEI, FieldIMSI,
	FieldCellID, FieldLAC, FieldMNC, FieldMCC, FieldLat, FieldLon,
	FieldSMSContent, FieldCost, FieldDataVolume,
}

// IdentityFields and TimingFields decide whether a detection is usable at all.
var (
	IdentityFields = []Field{FieldCallingNumber, FieldCalledNumber}
	TimingFields   = []Field{FieldStartTime, FieldStartDate}
)

// IsKnown reports whether f is a canonical field.
func IsKnown(f Field) bool {
	for _, k := range Fields {
		if k == f {
			return true
		}
	}
	return false
}

// DefaultDateFormats are tried after a profile's own layouts.
var DefaultDateFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	time.RFC3339,
	time.RFC3339Nano,
	"02/01/2006 15:04:05",
	"01/02/2006 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
}

// VendorProfile describes one supported vendor export format.
type VendorProfile struct {
	Name           string             `yaml:"name" json:"name"`
	RequiredFields []Field            `yaml:"required_fields" json:"required_fields"`
	Aliases        map[Field][]string `yaml:"aliases" json:"aliases"`
	Weights        map[Field]float64  `yaml:"weights" json:"weights,omitempty"`
	DateFormats    []string           `yaml:"date_formats" json:"date_formats,omitempty"`
	Timezone       string             `yaml:"timezone" json:"timezone,omitempty"`

	// DirectionCodes maps folded vendor call-type codes to "incoming" or
	// "outgoing".
	DirectionCodes map[string]string `yaml:"direction_codes" json:"direction_codes,omitempty"`

	loc *time.Location
}

// Weight returns the confidence weight of a field (1 when unset).
func (p *VendorProfile) Weight(f Field) float64 {
	if w, ok := p.Weights[f]; ok && w > 0 {
		return w
	}
	return 1
}

// Location returns the zone used for timestamps without an offset.
func (p *VendorProfile) Location() *time.Location {
	if p.loc == nil {
		return time.UTC
	}
	return p.loc
}

// Layouts returns the profile's date layouts followed by the defaults.
func (p *VendorProfile) Layouts() []string {
	out := make([]string, 0, len(p.DateFormats)+len(DefaultDateFormats))
	out = append(out, p.DateFormats...)
	return append(out, DefaultDateFormats...)
}

// Requires reports whether f is in the profile's required set.
func (p *VendorProfile) Requires(f Field) bool {
	for _, r := range p.RequiredFields {
		if r == f {
			return true
		}
	}
	return false
}

func (p *VendorProfile) validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if len(p.RequiredFields) == 0 {
		return fmt.Errorf("profile %s: no required fields", p.Name)
	}
	for f := range p.Aliases {
		if !IsKnown(f) {
			return fmt.Errorf("profile %s: unknown field %q", p.Name, f)
		}
	}
	for _, f := range p.RequiredFields {
		if len(p.Aliases[f]) == 0 {
			return fmt.Errorf("profile %s: required field %s has no aliases", p.Name, f)
		}
	}
	for code, dir := range p.DirectionCodes {
		if dir != "incoming" && dir != "outgoing" {
			return fmt.Errorf("profile %s: direction code %q maps to %q", p.Name, code, dir)
		}
	}
	p.loc = time.UTC
	if p.Timezone != "" {
		loc, err := time.LoadLocation(p.Timezone)
		if err != nil {
			return fmt.Errorf("profile %s: timezone: %w", p.Name, err)
		}
		p.loc = loc
	}
	return nil
}

var separatorRE = regexp.MustCompile(`[\s_\-.]+`)

// FoldHeader normalizes a header or alias for comparison: NFKC, lower case,
// quotes stripped, runs of whitespace, '_', '-' and '.' collapsed to '_'.
func FoldHeader(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, "'\"")
	s = separatorRE.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}
