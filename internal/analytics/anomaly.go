package analytics

import (
	"fmt"
	"strings"

	"github.com/lvonguyen/cdrforge/internal/countries"
)

// Severity ranks a finding.
type Severity string

const (
	SeverityInfo   Severity = "info"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities from info (0) to high (3).
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	default:
		return 0
	}
}

// Finding is one flagged pattern with the evidence that triggered it.
type Finding struct {
	Rule      string         `json:"rule"`
	Severity  Severity       `json:"severity"`
	Title     string         `json:"title"`
	Reason    string         `json:"reason"`
	Evidence  map[string]any `json:"evidence"`
	Subject   string         `json:"subject,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}

// ScoreInput carries the analyzer outputs the rules read. CoLocation is nil
// for single-subject runs.
type ScoreInput struct {
	Summaries  []*Summary
	Devices    []*DeviceTimeline
	Countries  []*CountryBreakdown
	CoLocation *CoLocationResult
}

// Rule is a named predicate over analyzer outputs. Rules are independent
// and may be evaluated in any order.
type Rule struct {
	Name     string
	Evaluate func(in ScoreInput, cfg Config) []Finding
}

// DefaultRules returns the built-in rule set.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "multi_device", Evaluate: multiDeviceRule},
		{Name: "repeated_colocation", Evaluate: repeatedColocationRule},
		{Name: "international_share", Evaluate: internationalShareRule},
		{Name: "night_activity", Evaluate: nightActivityRule},
		{Name: "high_mobility", Evaluate: highMobilityRule},
		{Name: "sudden_silence", Evaluate: suddenSilenceRule},
	}
}

// Score evaluates every rule and returns the flat list of findings. No
// deduplication is applied.
func Score(in ScoreInput, cfg Config, rules []Rule) []Finding {
	cfg = cfg.withDefaults()
	findings := []Finding{}
	for _, rule := range rules {
		for _, f := range rule.Evaluate(in, cfg) {
			if f.Rule == "" {
				f.Rule = rule.Name
			}
			findings = append(findings, f)
		}
	}
	return findings
}

// RiskLevel is the highest severity among findings, never below low.
func RiskLevel(findings []Finding) Severity {
	level := SeverityLow
	for _, f := range findings {
		if f.Severity.Rank() > level.Rank() {
			level = f.Severity
		}
	}
	return level
}

func multiDeviceRule(in ScoreInput, cfg Config) []Finding {
	var out []Finding
	for _, tl := range in.Devices {
		var sev Severity
		switch {
		case tl.DistinctDevices >= cfg.MultiDeviceMin:
			sev = SeverityMedium
		case tl.DistinctDevices == 2:
			sev = SeverityLow
		default:
			continue
		}
		imeis := make([]string, len(tl.Devices))
		for i, d := range tl.Devices {
			imeis[i] = d.IMEI
		}
		out = append(out, Finding{
			Severity:  sev,
			Title:     "Device switching detected",
			Reason:    fmt.Sprintf("Subject used %d different devices", tl.DistinctDevices),
			Subject:   tl.Subject,
			SessionID: tl.SessionID,
			Evidence: map[string]any{
				"distinct_devices": tl.DistinctDevices,
				"switches":         len(tl.Switches),
				"imeis":            imeis,
			},
		})
	}
	return out
}

func repeatedColocationRule(in ScoreInput, cfg Config) []Finding {
	if in.CoLocation == nil {
		return nil
	}
	var out []Finding
	for _, set := range in.CoLocation.RepeatedSets {
		var towers []string
		seen := make(map[string]bool)
		key := strings.Join(set.Subjects, "|")
		for _, ev := range in.CoLocation.Events {
			if strings.Join(ev.Subjects, "|") == key && !seen[ev.TowerKey] {
				seen[ev.TowerKey] = true
				towers = append(towers, ev.TowerKey)
			}
		}
		out = append(out, Finding{
			Severity: SeverityHigh,
			Title:    "Repeated co-location",
			Reason: fmt.Sprintf("%s met %d times (threshold %d)",
				strings.Join(set.Subjects, ", "), set.Events, in.CoLocation.RepeatThreshold),
			Evidence: map[string]any{
				"subjects": set.Subjects,
				"events":   set.Events,
				"towers":   towers,
			},
		})
	}
	return out
}

func internationalShareRule(in ScoreInput, cfg Config) []Finding {
	var out []Finding
	for _, cb := range in.Countries {
		if cb.TotalCalls == 0 || cb.InternationalShare <= cfg.InternationalShareThreshold {
			continue
		}
		var codes []string
		for _, c := range cb.Countries {
			if c.Code != cb.HomeCode && c.Code != countries.UnknownCode {
				codes = append(codes, c.Code)
			}
		}
		out = append(out, Finding{
			Severity:  SeverityInfo,
			Title:     "High international call share",
			Reason:    fmt.Sprintf("%.0f%% of calls are international", cb.InternationalShare*100),
			Subject:   cb.Subject,
			SessionID: cb.SessionID,
			Evidence: map[string]any{
				"international_calls": cb.InternationalCalls,
				"total_calls":         cb.TotalCalls,
				"home_code":           cb.HomeCode,
				"countries":           codes,
			},
		})
	}
	return out
}

func nightActivityRule(in ScoreInput, cfg Config) []Finding {
	var out []Finding
	for _, s := range in.Summaries {
		if s.NightCalls <= cfg.NightCallMin {
			continue
		}
		out = append(out, Finding{
			Severity:  SeverityInfo,
			Title:     "Unusual night activity",
			Reason:    fmt.Sprintf("%d calls between 22:00 and 23:59", s.NightCalls),
			Subject:   s.Subject,
			SessionID: s.SessionID,
			Evidence: map[string]any{
				"night_calls": s.NightCalls,
				"threshold":   cfg.NightCallMin,
			},
		})
	}
	return out
}

func highMobilityRule(in ScoreInput, cfg Config) []Finding {
	var out []Finding
	for _, s := range in.Summaries {
		var days []string
		most := 0
		for _, d := range s.Days {
			if d.Towers > cfg.MobilityTowersPerDay {
				days = append(days, d.Date)
			}
			most = max(most, d.Towers)
		}
		if len(days) == 0 {
			continue
		}
		out = append(out, Finding{
			Severity:  SeverityInfo,
			Title:     "High mobility",
			Reason:    fmt.Sprintf("%d day(s) with more than %d different locations", len(days), cfg.MobilityTowersPerDay),
			Subject:   s.Subject,
			SessionID: s.SessionID,
			Evidence: map[string]any{
				"days":           days,
				"max_towers_day": most,
			},
		})
	}
	return out
}

// suddenSilenceRule flags a last day under 10% of the daily mean following
// a day above 50% of it.
func suddenSilenceRule(in ScoreInput, cfg Config) []Finding {
	var out []Finding
	for _, s := range in.Summaries {
		n := len(s.Days)
		if n <= 2 {
			continue
		}
		var total int
		for _, d := range s.Days {
			total += d.Count
		}
		avg := float64(total) / float64(n)
		last, prev := float64(s.Days[n-1].Count), float64(s.Days[n-2].Count)
		if last >= avg*0.1 || prev <= avg*0.5 {
			continue
		}
		out = append(out, Finding{
			Severity:  SeverityInfo,
			Title:     "Sudden silence",
			Reason:    "Recent activity is under 10% of the daily average",
			Subject:   s.Subject,
			SessionID: s.SessionID,
			Evidence: map[string]any{
				"daily_average": avg,
				"last_day":      s.Days[n-1].Date,
				"last_count":    s.Days[n-1].Count,
			},
		})
	}
	return out
}
