package normalization

import (
	"testing"
	"time"

	"github.com/lvonguyen/cdrforge/internal/cdr"
	"github.com/lvonguyen/cdrforge/internal/countries"
	"github.com/lvonguyen/cdrforge/internal/schema"
)

func normalize(t *testing.T, subject string, headers []string, rows [][]string) ([]cdr.Record, *cdr.NormalizationReport) {
	t.Helper()

	det, err := newTestDetector(t).Detect(headers, rows)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	n := NewNormalizer(countries.Builtin(), nil, nil)
	records, report, err := n.Normalize(Batch{
		SessionID:     "session-1",
		SubjectNumber: subject,
		Detection:     det,
		Rows:          rows,
	})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	return records, report
}

var standardHeaders = []string{
	"calling_number", "called_number", "call_start_time", "duration_seconds",
	"call_type", "call_status", "imei", "cell_tower_id", "lac", "latitude", "longitude",
}

// =============================================================================
// Normalization Tests
// =============================================================================

func TestNormalize_Standard(t *testing.T) {
	rows := [][]string{
		{"+14155550100", "+14155550123", "2024-01-01 10:00:00", "60", "voice", "answered", "356938035643809", "5", "0x1A", "37.77", "-122.41"},
		{"+14155550124", "+14155550100", "2024-01-01T11:00:00Z", "1:30", "SMS", "", "356938035643809", "6", "", "", ""},
	}

	records, report := normalize(t, "+14155550100", standardHeaders, rows)

	if report.RowsAccepted != 2 || report.RowsRejected() != 0 {
		t.Fatalf("expected 2 accepted rows, got %+v", report)
	}
	if report.Vendor != "standard" || report.Score != 1.0 {
		t.Errorf("unexpected detection in report: %s/%v", report.Vendor, report.Score)
	}

	r := records[0]
	if !r.StartTime.Equal(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start %v", r.StartTime)
	}
	if r.DurationSeconds != 60 {
		t.Errorf("expected 60s, got %v", r.DurationSeconds)
	}
	if r.Direction != cdr.DirectionOutgoing {
		t.Errorf("subject calling should be outgoing, got %s", r.Direction)
	}
	if r.Status != cdr.StatusCompleted || r.EventType != cdr.EventVoice {
		t.Errorf("unexpected classification %s/%s", r.EventType, r.Status)
	}
	if r.LAC != 26 {
		t.Errorf("expected hex LAC 26, got %d", r.LAC)
	}
	if !r.HasCoordinates() || *r.Lat != 37.77 {
		t.Errorf("expected direct coordinates, got %v/%v", r.Lat, r.Lon)
	}
	if r.CalledCountryCode != "1" {
		t.Errorf("expected called country code 1, got %q", r.CalledCountryCode)
	}
	if r.SessionID != "session-1" || r.RawRowIndex != 0 || r.SourceVendor != "standard" {
		t.Errorf("unexpected provenance %+v", r)
	}

	r = records[1]
	if r.DurationSeconds != 90 {
		t.Errorf("expected 90s from clock notation, got %v", r.DurationSeconds)
	}
	if r.Direction != cdr.DirectionIncoming {
		t.Errorf("subject called should be incoming, got %s", r.Direction)
	}
	if r.EventType != cdr.EventSMS {
		t.Errorf("expected sms, got %s", r.EventType)
	}
	if r.HasCoordinates() {
		t.Error("empty coordinates should be absent")
	}
}

// TestNormalize_EmptyCallingNumberRejected verifies that a row without a
// calling number is excluded and reported with its index and reason.
func TestNormalize_EmptyCallingNumberRejected(t *testing.T) {
	rows := [][]string{
		{"+14155550100", "+14155550123", "2024-01-01 10:00:00"},
		{"", "+14155550123", "2024-01-01 10:05:00"},
		{"+14155550100", "+14155550123", "2024-01-01 10:10:00"},
	}

	records, report := normalize(t, "", []string{"calling_number", "called_number", "call_start_time"}, rows)

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if len(report.Rejected) != 1 {
		t.Fatalf("expected 1 rejection, got %v", report.Rejected)
	}
	rej := report.Rejected[0]
	if rej.RowIndex != 1 || rej.Reason != cdr.ReasonMissingRequiredField || rej.Field != "calling_number" {
		t.Errorf("unexpected rejection %+v", rej)
	}
	if records[1].RawRowIndex != 2 {
		t.Errorf("records should keep source row indexes, got %d", records[1].RawRowIndex)
	}
}

func TestNormalize_RejectionReasons(t *testing.T) {
	headers := []string{"calling_number", "called_number", "call_start_time", "call_end_time", "duration"}
	rows := [][]string{
		{"+1", "nan", "2024-01-01 10:00:00", "", ""},
		{"+1", "+2", "", "", ""},
		{"+1", "+2", "not a date", "", ""},
		{"+1", "+2", "2024-01-01 10:00:00", "", "abc"},
		{"+1", "+2", "2024-01-01 10:00:00", "2024-01-01 09:59:00", ""},
		{"+1", "+2", "2024-01-01 10:00:00", "2024-01-01 10:02:00", ""},
	}

	records, report := normalize(t, "", headers, rows)

	want := []struct {
		row    int
		reason string
		field  string
	}{
		{0, cdr.ReasonMissingRequiredField, "called_number"},
		{1, cdr.ReasonMissingRequiredField, "start_time"},
		{2, cdr.ReasonUnparseableTimestamp, "start_time"},
		{3, cdr.ReasonInvalidDuration, "duration"},
		{4, cdr.ReasonInvalidDuration, "duration"},
	}
	if len(report.Rejected) != len(want) {
		t.Fatalf("expected %d rejections, got %+v", len(want), report.Rejected)
	}
	for i, w := range want {
		got := report.Rejected[i]
		if got.RowIndex != w.row || got.Reason != w.reason || got.Field != w.field {
			t.Errorf("rejection %d: got %+v, want %+v", i, got, w)
		}
	}

	if len(records) != 1 || records[0].DurationSeconds != 120 {
		t.Errorf("expected one record with end-start duration 120s, got %+v", records)
	}
	if got := report.RejectionsByReason()[cdr.ReasonInvalidDuration]; got != 2 {
		t.Errorf("expected 2 invalid durations, got %d", got)
	}
}

func TestNormalize_AirtelSplitDateTime(t *testing.T) {
	headers := []string{"Target No", "B Party No", "Date", "Time", "Dur(s)", "Call Type", "First CGI", "IMEI"}
	rows := [][]string{
		{"9812345678", "9876543210", "01/01/2024", "10:00:00", "45", "A_IN", "404-45-1234-5678", "356938035643809"},
		{"9812345678", "00971501234567", "01/01/2024", "23:30:00", "10", "SMS_OUT", "404-45-1234-5679", "356938035643809"},
	}

	records, report := normalize(t, "", headers, rows)

	if report.Vendor != "airtel" {
		t.Fatalf("expected airtel, got %q", report.Vendor)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %+v", report.Rejected)
	}

	r := records[0]
	if !r.StartTime.Equal(time.Date(2024, 1, 1, 4, 30, 0, 0, time.UTC)) {
		t.Errorf("IST 10:00 should be 04:30 UTC, got %v", r.StartTime)
	}
	if r.Direction != cdr.DirectionIncoming {
		t.Errorf("A_IN should be incoming, got %s", r.Direction)
	}
	if r.MCC != 404 || r.MNC != 45 || r.LAC != 1234 || r.CellTowerID != "5678" {
		t.Errorf("CGI not split: mcc=%d mnc=%d lac=%d cell=%s", r.MCC, r.MNC, r.LAC, r.CellTowerID)
	}

	r = records[1]
	if r.CalledNumber != "+971501234567" {
		t.Errorf("00 prefix should become +, got %q", r.CalledNumber)
	}
	if r.CalledCountryCode != "971" {
		t.Errorf("expected 971, got %q", r.CalledCountryCode)
	}
	if r.EventType != cdr.EventSMS || r.Direction != cdr.DirectionOutgoing {
		t.Errorf("expected outgoing sms, got %s/%s", r.Direction, r.EventType)
	}
	if report.SubjectNumber != "9812345678" {
		t.Errorf("expected inferred subject 9812345678, got %q", report.SubjectNumber)
	}
}

func TestNormalize_HuaweiCompactTimestamp(t *testing.T) {
	headers := []string{"CallingNum", "CalledNum", "BeginTime", "EndTime", "CallDuration", "CellId", "IMEI", "IMSI"}
	rows := [][]string{
		{"8613800138000", "8613900139000", "20240102030405", "20240102030505", "", "77", "1", "2"},
	}

	records, _ := normalize(t, "", headers, rows)

	if len(records) != 1 {
		t.Fatal("expected one record")
	}
	if !records[0].StartTime.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("unexpected start %v", records[0].StartTime)
	}
	if records[0].DurationSeconds != 60 {
		t.Errorf("expected end-start duration, got %v", records[0].DurationSeconds)
	}
}

func TestNormalize_RecordIDsStable(t *testing.T) {
	rows := [][]string{
		{"+1", "+2", "2024-01-01 10:00:00"},
		{"+1", "+3", "2024-01-01 10:00:00"},
	}
	headers := []string{"calling_number", "called_number", "call_start_time"}

	a, _ := normalize(t, "", headers, rows)
	b, _ := normalize(t, "", headers, rows)

	if a[0].RecordID != b[0].RecordID {
		t.Error("record IDs should be stable across runs")
	}
	if a[0].RecordID == a[1].RecordID {
		t.Error("record IDs should differ per row")
	}
	if RecordID("session-1", 0) != a[0].RecordID {
		t.Error("RecordID should match the normalizer's IDs")
	}
}

func TestNormalize_InvalidBatch(t *testing.T) {
	n := NewNormalizer(nil, nil, nil)

	if _, _, err := n.Normalize(Batch{Detection: &Detection{}}); err == nil {
		t.Error("expected error without session id")
	}
	if _, _, err := n.Normalize(Batch{SessionID: "s"}); err == nil {
		t.Error("expected error without detection")
	}
}

func TestInferSubject(t *testing.T) {
	det := resolve(mustProfile(t, "standard"), []string{"calling_number", "called_number"})

	rows := [][]string{
		{"+1111111111", "+2222222222"},
		{"+3333333333", "+2222222222"},
		{"+2222222222", "+1111111111"},
	}
	if got := InferSubject(det, rows); got != "+2222222222" {
		t.Errorf("expected most frequent number, got %q", got)
	}

	tie := [][]string{{"+1111111111", "+2222222222"}}
	if got := InferSubject(det, tie); got != "+1111111111" {
		t.Errorf("tie should go to the first number seen, got %q", got)
	}
}

func mustProfile(t *testing.T, name string) *schema.VendorProfile {
	t.Helper()
	p, ok := schema.Builtin().Get(name)
	if !ok {
		t.Fatalf("profile %s missing", name)
	}
	return p
}

// =============================================================================
// Coercion Tests
// =============================================================================

func TestCleanNumber(t *testing.T) {
	tests := map[string]string{
		"+1 (415) 555-0123": "+14155550123",
		"00919812345678":    "+919812345678",
		"9812345678.0":      "9812345678",
		"9.812345678E+09":   "9812345678",
		"'9812345678'":      "9812345678",
		"nan":               "",
		"+":                 "",
		"  ":                "",
		"98+12":             "9812",
	}
	for in, want := range tests {
		if got := CleanNumber(in); got != want {
			t.Errorf("CleanNumber(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"60", 60, false},
		{"12.5", 12.5, false},
		{"01:02:03", 3723, false},
		{"2:30", 150, false},
		{"-5", -5, false},
		{"1:2:3:4", 0, true},
		{"abc", 0, true},
		{"1:-2", 0, true},
	}
	for _, tt := range tests {
		got, err := parseDuration(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseTime(t *testing.T) {
	ist, _ := time.LoadLocation("Asia/Kolkata")
	layouts := schema.DefaultDateFormats

	tests := []struct {
		in   string
		loc  *time.Location
		want time.Time
	}{
		{"2024-01-01 10:00:00", time.UTC, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
		{"2024-01-01 10:00:00", ist, time.Date(2024, 1, 1, 4, 30, 0, 0, time.UTC)},
		{"2024-01-01T10:00:00+02:00", ist, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)},
		{"1704103200", time.UTC, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
		{"1704103200000", time.UTC, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseTime(tt.in, layouts, tt.loc)
		if err != nil {
			t.Errorf("parseTime(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) || got.Location() != time.UTC {
			t.Errorf("parseTime(%q) = %v, want %v UTC", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"31/31/2024", "01/01/1600 10:00:00", "9999999999", "2300-01-01 00:00:00"} {
		if _, err := parseTime(bad, layouts, time.UTC); err == nil {
			t.Errorf("parseTime(%q): expected error", bad)
		}
	}
}

func TestNormalize_OutOfRangeYearRejected(t *testing.T) {
	headers := []string{"calling_number", "called_number", "call_start_time"}
	rows := [][]string{
		{"+1", "+2", "1600-01-01 10:00:00"},
		{"+1", "+2", "2024-01-01 10:00:00"},
	}

	records, report := normalize(t, "", headers, rows)

	if len(records) != 1 || records[0].RawRowIndex != 1 {
		t.Fatalf("expected only row 1 accepted, got %+v", records)
	}
	if len(report.Rejected) != 1 || report.Rejected[0].Reason != cdr.ReasonUnparseableTimestamp {
		t.Errorf("expected an unparseable_timestamp rejection, got %+v", report.Rejected)
	}
}

func TestParseLAC(t *testing.T) {
	tests := map[string]int{"1234": 1234, "0x1A": 26, "0XFF": 255, "": 0, "-3": 0, "zz": 0, "12.0": 12}
	for in, want := range tests {
		if got := parseLAC(in); got != want {
			t.Errorf("parseLAC(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestSplitCGI(t *testing.T) {
	mcc, mnc, lac, cell, ok := SplitCGI("404-45-1234-5678")
	if !ok || mcc != 404 || mnc != 45 || lac != 1234 || cell != "5678" {
		t.Errorf("unexpected split %d %d %d %s %v", mcc, mnc, lac, cell, ok)
	}
	if _, _, _, _, ok := SplitCGI("5678"); ok {
		t.Error("plain cell id should not split")
	}
}

func TestParseDirection(t *testing.T) {
	codes := map[string]string{"a_in": "incoming"}

	tests := []struct {
		in   string
		want cdr.Direction
		ok   bool
	}{
		{"A_IN", cdr.DirectionIncoming, true},
		{"Incoming", cdr.DirectionIncoming, true},
		{"MTC", cdr.DirectionIncoming, true},
		{"call-out", cdr.DirectionOutgoing, true},
		{"MOC", cdr.DirectionOutgoing, true},
		{"Outgoing SMS", cdr.DirectionOutgoing, true},
		{"voice", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := parseDirection(tt.in, codes)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseDirection(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseEventTypeAndStatus(t *testing.T) {
	events := map[string]cdr.EventType{
		"SMS_OUT": cdr.EventSMS, "text": cdr.EventSMS, "GPRS": cdr.EventData,
		"Internet": cdr.EventData, "voice": cdr.EventVoice, "": cdr.EventVoice,
	}
	for in, want := range events {
		if got := parseEventType(in); got != want {
			t.Errorf("parseEventType(%q) = %s, want %s", in, got, want)
		}
	}

	statuses := map[string]cdr.Status{
		"answered": cdr.StatusCompleted, "Busy": cdr.StatusBusy, "No Answer": cdr.StatusMissed,
		"missed": cdr.StatusMissed, "FAILED": cdr.StatusFailed, "": cdr.StatusCompleted,
	}
	for in, want := range statuses {
		if got := parseStatus(in); got != want {
			t.Errorf("parseStatus(%q) = %s, want %s", in, got, want)
		}
	}
}
