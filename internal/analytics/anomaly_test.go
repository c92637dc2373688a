package analytics

import (
	"testing"
	"time"

	"github.com/lvonguyen/cdrforge/internal/cdr"
)

func findingsFor(findings []Finding, rule string) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.Rule == rule {
			out = append(out, f)
		}
	}
	return out
}

// =============================================================================
// Rule Tests
// =============================================================================

func TestScore_MultiDevice(t *testing.T) {
	tests := []struct {
		name    string
		devices int
		want    Severity
	}{
		{"single", 1, ""},
		{"two", 2, SeverityLow},
		{"three", 3, SeverityMedium},
		{"five", 5, SeverityMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl := &DeviceTimeline{Subject: "+91a", DistinctDevices: tt.devices}
			for i := 0; i < tt.devices; i++ {
				tl.Devices = append(tl.Devices, &DeviceUsage{IMEI: string(rune('a' + i))})
			}
			got := findingsFor(Score(ScoreInput{Devices: []*DeviceTimeline{tl}}, DefaultConfig(), DefaultRules()), "multi_device")
			if tt.want == "" {
				if len(got) != 0 {
					t.Errorf("expected no finding, got %+v", got)
				}
				return
			}
			if len(got) != 1 || got[0].Severity != tt.want {
				t.Errorf("expected one %s finding, got %+v", tt.want, got)
			}
		})
	}
}

func TestScore_RepeatedColocation(t *testing.T) {
	co := &CoLocationResult{
		RepeatThreshold: 2,
		Events: []CoLocationEvent{
			{TowerKey: "5", Subjects: []string{"+91a", "+91b"}, Repeated: true},
			{TowerKey: "6", Subjects: []string{"+91a", "+91b"}, Repeated: true},
		},
		RepeatedSets: []SubjectSet{{Subjects: []string{"+91a", "+91b"}, Events: 2}},
	}
	got := findingsFor(Score(ScoreInput{CoLocation: co}, DefaultConfig(), DefaultRules()), "repeated_colocation")
	if len(got) != 1 || got[0].Severity != SeverityHigh {
		t.Fatalf("expected one high finding, got %+v", got)
	}
	towers, _ := got[0].Evidence["towers"].([]string)
	if len(towers) != 2 {
		t.Errorf("expected both towers in evidence, got %v", got[0].Evidence["towers"])
	}
}

func TestScore_InternationalShare(t *testing.T) {
	over := &CountryBreakdown{Subject: "+91a", TotalCalls: 10, InternationalCalls: 3, InternationalShare: 0.3}
	under := &CountryBreakdown{Subject: "+91b", TotalCalls: 10, InternationalCalls: 2, InternationalShare: 0.2}

	got := findingsFor(Score(ScoreInput{Countries: []*CountryBreakdown{over, under}}, DefaultConfig(), DefaultRules()), "international_share")
	if len(got) != 1 || got[0].Subject != "+91a" || got[0].Severity != SeverityInfo {
		t.Errorf("expected one info finding for +91a, got %+v", got)
	}
}

func TestScore_InternationalShareZeroThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InternationalShareThreshold = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("a zero threshold should be valid: %v", err)
	}

	some := &CountryBreakdown{Subject: "+91a", TotalCalls: 10, InternationalCalls: 1, InternationalShare: 0.1}
	none := &CountryBreakdown{Subject: "+91b", TotalCalls: 10}

	got := findingsFor(Score(ScoreInput{Countries: []*CountryBreakdown{some, none}}, cfg, DefaultRules()), "international_share")
	if len(got) != 1 || got[0].Subject != "+91a" {
		t.Errorf("a zero threshold should flag any international traffic, got %+v", got)
	}
}

func TestScore_NightActivity(t *testing.T) {
	cfg := DefaultConfig()
	in := ScoreInput{Summaries: []*Summary{
		{Subject: "+91a", NightCalls: 51},
		{Subject: "+91b", NightCalls: 50},
	}}
	got := findingsFor(Score(in, cfg, DefaultRules()), "night_activity")
	if len(got) != 1 || got[0].Subject != "+91a" {
		t.Errorf("only more than %d night calls should flag, got %+v", cfg.NightCallMin, got)
	}
}

func TestScore_HighMobility(t *testing.T) {
	base := ts(t, "2024-01-01 08:00")
	var records []cdr.Record
	for i := 0; i < 6; i++ {
		r := call("+91a", "+91b", base.Add(time.Duration(i)*time.Hour), 1)
		records = append(records, atTower(r, string(rune('A'+i)), 0))
	}
	records = append(records, atTower(call("+91a", "+91b", base.Add(24*time.Hour), 1), "A", 0))

	sum := Summarize(Subject{Number: "+91a", Records: records}, nil)
	got := findingsFor(Score(ScoreInput{Summaries: []*Summary{sum}}, DefaultConfig(), DefaultRules()), "high_mobility")
	if len(got) != 1 {
		t.Fatalf("expected one finding, got %+v", got)
	}
	days, _ := got[0].Evidence["days"].([]string)
	if len(days) != 1 || days[0] != "2024-01-01" {
		t.Errorf("expected 2024-01-01 flagged, got %v", got[0].Evidence["days"])
	}
}

func TestScore_SuddenSilence(t *testing.T) {
	days := func(counts ...int) *Summary {
		s := &Summary{Subject: "+91a"}
		for i, c := range counts {
			s.Days = append(s.Days, DailyActivity{Date: string(rune('a' + i)), Count: c})
		}
		return s
	}
	tests := []struct {
		name string
		sum  *Summary
		want int
	}{
		{"drop after busy day", days(40, 40, 40, 1), 1},
		{"steady", days(10, 10, 10, 10), 0},
		{"two days only", days(40, 1), 0},
		{"quiet before drop", days(40, 40, 2, 1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := findingsFor(Score(ScoreInput{Summaries: []*Summary{tt.sum}}, DefaultConfig(), DefaultRules()), "sudden_silence")
			if len(got) != tt.want {
				t.Errorf("expected %d findings, got %+v", tt.want, got)
			}
		})
	}
}

// =============================================================================
// Risk Level Tests
// =============================================================================

func TestRiskLevel(t *testing.T) {
	tests := []struct {
		name     string
		findings []Finding
		want     Severity
	}{
		{"none", nil, SeverityLow},
		{"info only", []Finding{{Severity: SeverityInfo}}, SeverityLow},
		{"medium", []Finding{{Severity: SeverityInfo}, {Severity: SeverityMedium}}, SeverityMedium},
		{"high", []Finding{{Severity: SeverityHigh}, {Severity: SeverityLow}}, SeverityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RiskLevel(tt.findings); got != tt.want {
				t.Errorf("RiskLevel = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestScore_RulesAreIndependent(t *testing.T) {
	in := ScoreInput{
		Summaries: []*Summary{{Subject: "+91a", NightCalls: 60}},
		Devices:   []*DeviceTimeline{{Subject: "+91a", DistinctDevices: 2, Devices: []*DeviceUsage{{IMEI: "1"}, {IMEI: "2"}}}},
	}
	rules := DefaultRules()
	forward := Score(in, DefaultConfig(), rules)

	reversed := make([]Rule, len(rules))
	for i, r := range rules {
		reversed[len(rules)-1-i] = r
	}
	backward := Score(in, DefaultConfig(), reversed)

	if len(forward) != 2 || len(backward) != 2 {
		t.Fatalf("expected 2 findings both ways, got %d and %d", len(forward), len(backward))
	}
	if RiskLevel(forward) != RiskLevel(backward) {
		t.Error("rule order changed the risk level")
	}
}
