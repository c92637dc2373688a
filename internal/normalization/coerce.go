package normalization

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lvonguyen/cdrforge/internal/cdr"
	"github.com/lvonguyen/cdrforge/internal/schema"
)

var emptyTokens = map[string]bool{
	"": true, "nan": true, "null": true, "none": true, "-": true, "n/a": true, "na": true,
}

// isEmpty reports whether a cell carries no value.
func isEmpty(s string) bool {
	return emptyTokens[strings.ToLower(strings.TrimSpace(s))]
}

func value(s string) string {
	if isEmpty(s) {
		return ""
	}
	return strings.TrimSpace(s)
}

var sciNumberRE = regexp.MustCompile(`^\d(\.\d+)?[eE]\+?\d+$`)

// CleanNumber reduces a phone number to digits with an optional leading '+'.
// An international "00" prefix becomes '+'. Spreadsheet artefacts such as a
// trailing ".0" or scientific notation are undone first.
func CleanNumber(s string) string {
	s = value(s)
	if s == "" {
		return ""
	}
	if sciNumberRE.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			s = strconv.FormatFloat(f, 'f', 0, 64)
		}
	}
	s = strings.TrimSuffix(s, ".0")

	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if strings.HasPrefix(out, "00") && len(out) > 2 {
		out = "+" + out[2:]
	}
	if out == "+" {
		return ""
	}
	return out
}

// Record times are stored as Unix nanoseconds, which cover 1678 to 2262.
const (
	minRecordYear = 1900
	maxRecordYear = 2200
)

// parseTime tries the layouts in order; the first successful parse wins.
// Values without an offset are read in loc. Ten or thirteen digit values
// that match no layout are taken as Unix seconds or milliseconds. Years
// outside [minRecordYear, maxRecordYear] are rejected.
func parseTime(s string, layouts []string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return checkYear(t.UTC(), s)
		}
	}
	if allDigits(s) {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			switch len(s) {
			case 10:
				return checkYear(time.Unix(n, 0).UTC(), s)
			case 13:
				return checkYear(time.UnixMilli(n).UTC(), s)
			}
		}
	}
	return time.Time{}, fmt.Errorf("no layout matches %q", s)
}

func checkYear(t time.Time, raw string) (time.Time, error) {
	if y := t.Year(); y < minRecordYear || y > maxRecordYear {
		return time.Time{}, fmt.Errorf("year %d of %q is out of range", y, raw)
	}
	return t, nil
}

// parseDuration accepts plain seconds ("123", "12.5") or clock notation
// ("HH:MM:SS", "MM:SS").
func parseDuration(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) > 3 {
			return 0, fmt.Errorf("bad duration %q", s)
		}
		var total float64
		for _, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil || v < 0 {
				return 0, fmt.Errorf("bad duration %q", s)
			}
			total = total*60 + v
		}
		return total, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("bad duration %q", s)
	}
	return v, nil
}

// parseInt returns 0 for anything that is not a non-negative integer.
func parseInt(s string) int {
	s = strings.TrimSuffix(value(s), ".0")
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// parseLAC accepts decimal or 0x-prefixed hex location area codes.
func parseLAC(s string) int {
	s = value(s)
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		n, err := strconv.ParseInt(s[2:], 16, 32)
		if err != nil || n < 0 {
			return 0
		}
		return int(n)
	}
	return parseInt(s)
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(value(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// parseCoord returns nil for missing or out-of-range coordinates.
func parseCoord(s string, limit float64) *float64 {
	s = value(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || v < -limit || v > limit {
		return nil
	}
	return &v
}

var cgiRE = regexp.MustCompile(`^(\d{3})[-:/ ]?(\d{2,3})[-:/ ](\w+)[-:/ ](\w+)$`)

// SplitCGI breaks a cell global identity ("404-45-1234-5678") into MCC, MNC,
// LAC and cell ID. ok is false when the value is a plain cell ID.
func SplitCGI(s string) (mcc, mnc, lac int, cell string, ok bool) {
	m := cgiRE.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, 0, "", false
	}
	mcc, _ = strconv.Atoi(m[1])
	mnc, _ = strconv.Atoi(m[2])
	lac = parseLAC(m[3])
	if lac == 0 {
		if n, err := strconv.ParseInt(m[3], 16, 32); err == nil {
			lac = int(n)
		}
	}
	return mcc, mnc, lac, m[4], true
}

var (
	incomingTokens = []string{"incoming", "received", "terminated", "terminating", "mtc", "mt", "in", "inc", "call_in", "sms_in", "a_in"}
	outgoingTokens = []string{"outgoing", "originated", "originating", "dialed", "dialled", "moc", "mo", "out", "call_out", "sms_out", "a_out"}
)

// parseDirection maps a vendor direction or call-type code to a direction.
// Profile codes win over the generic token lists.
func parseDirection(s string, codes map[string]string) (cdr.Direction, bool) {
	key := foldToken(s)
	if key == "" {
		return "", false
	}
	if d, ok := codes[key]; ok {
		return cdr.Direction(d), true
	}
	if matchToken(key, incomingTokens) {
		return cdr.DirectionIncoming, true
	}
	if matchToken(key, outgoingTokens) {
		return cdr.DirectionOutgoing, true
	}
	return "", false
}

// parseEventType classifies a call-type value.
func parseEventType(s string) cdr.EventType {
	key := foldToken(s)
	switch {
	case strings.Contains(key, "sms"), strings.Contains(key, "text"), strings.Contains(key, "msg"):
		return cdr.EventSMS
	case strings.Contains(key, "data"), strings.Contains(key, "gprs"), strings.Contains(key, "internet"):
		return cdr.EventData
	default:
		return cdr.EventVoice
	}
}

// parseStatus classifies a completion status; unknown values count as
// completed.
func parseStatus(s string) cdr.Status {
	key := foldToken(s)
	switch {
	case key == "":
		return cdr.StatusCompleted
	case strings.Contains(key, "busy"):
		return cdr.StatusBusy
	case strings.Contains(key, "miss"), strings.Contains(key, "no_answer"), strings.Contains(key, "unanswered"):
		return cdr.StatusMissed
	case strings.Contains(key, "fail"), strings.Contains(key, "error"), strings.Contains(key, "reject"):
		return cdr.StatusFailed
	default:
		return cdr.StatusCompleted
	}
}

func foldToken(s string) string {
	return schema.FoldHeader(value(s))
}

func matchToken(key string, tokens []string) bool {
	for _, t := range tokens {
		if key == t || strings.HasPrefix(key, t+"_") || strings.HasSuffix(key, "_"+t) {
			return true
		}
	}
	return false
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
