package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lvonguyen/cdrforge/internal/analytics"
)

func summarySheet(sh *Sheet, res []*analytics.Summary) {
	sh.header("subject", "session_id", "records", "incoming", "outgoing", "voice", "sms", "data",
		"total_duration_s", "unique_contacts", "unique_imeis", "unique_locations",
		"first_activity", "last_activity", "night_calls")
	for _, s := range res {
		sh.row(s.Subject, s.SessionID, s.TotalRecords, s.Incoming, s.Outgoing, s.Voice, s.SMS, s.Data,
			s.TotalDuration, s.UniqueContacts, s.UniqueIMEIs, s.UniqueLocations,
			stamp(s.FirstActivity), stamp(s.LastActivity), s.NightCalls)
	}

	sh.gap()
	sh.header("subject", "date", "records", "first_call", "first_counterpart", "last_call",
		"last_counterpart", "first_tower", "last_tower", "towers")
	for _, s := range res {
		for _, d := range s.Days {
			sh.row(s.Subject, d.Date, d.Count, stamp(d.FirstCall), d.FirstCounterpart, stamp(d.LastCall),
				d.LastCounterpart, d.FirstTower, d.LastTower, d.Towers)
		}
	}
}

func contactsSheet(sh *Sheet, res []*analytics.ContactSummary) {
	sh.header("subject", "ranking", "rank", "number", "calls", "total_duration_s", "longest_call_s",
		"first_contact", "last_contact", "incoming", "outgoing", "sms")
	for _, cs := range res {
		rankings := []struct {
			name  string
			stats []*analytics.ContactStat
		}{
			{"call_count", cs.ByCallCount},
			{"total_duration", cs.ByTotalDuration},
			{"longest_call", cs.ByLongestCall},
		}
		for _, r := range rankings {
			for i, c := range r.stats {
				sh.row(cs.Subject, r.name, i+1, c.Number, c.CallCount, c.TotalDuration, c.LongestCall,
					stamp(c.FirstContact), stamp(c.LastContact), c.Incoming, c.Outgoing, c.SMS)
			}
		}
	}
}

func devicesSheet(sh *Sheet, res []*analytics.DeviceTimeline) {
	sh.header("subject", "imei", "tac", "valid", "usage_count", "first_seen", "last_seen", "duration_days")
	for _, dt := range res {
		for _, d := range dt.Devices {
			sh.row(dt.Subject, d.IMEI, d.Info.TAC, d.Info.Valid, d.UsageCount,
				stamp(d.FirstSeen), stamp(d.LastSeen), d.DurationDays)
		}
	}

	sh.gap()
	sh.header("subject", "from_imei", "to_imei", "at", "cell_tower_id", "lac")
	for _, dt := range res {
		for _, s := range dt.Switches {
			sh.row(dt.Subject, s.From, s.To, stamp(s.At), s.CellTowerID, s.LAC)
		}
	}
}

func dailyDevicesSheet(sh *Sheet, res []*analytics.DailyDeviceTracking) {
	sh.header("subject", "date", "imei", "records", "imeis_that_day")
	for _, dd := range res {
		for _, day := range dd.Days {
			for _, d := range day.Devices {
				sh.row(dd.Subject, day.Date, d.IMEI, d.Count, len(day.Devices))
			}
		}
	}
}

func commonDevicesSheet(sh *Sheet, res []analytics.SharedDevice) {
	sh.header("imei", "tac", "subject", "session_id", "usage_count", "first_seen", "last_seen")
	for _, d := range res {
		for _, u := range d.Subjects {
			sh.row(d.IMEI, d.Info.TAC, u.Subject, u.SessionID, u.UsageCount, stamp(u.FirstSeen), stamp(u.LastSeen))
		}
	}
}

func towersSheet(sh *Sheet, res []*analytics.TowerUsage) {
	sh.header("subject", "tower_key", "cell_tower_id", "lac", "mcc", "mnc", "usage_count",
		"first_seen", "last_seen", "resolved", "lat", "lon", "address", "source")
	for _, tu := range res {
		for _, t := range tu.Towers {
			var lat, lon any = "", ""
			if t.Resolved {
				lat, lon = t.Lat, t.Lon
			}
			sh.row(tu.Subject, t.TowerKey, t.CellTowerID, t.LAC, t.MCC, t.MNC, t.UsageCount,
				stamp(t.FirstSeen), stamp(t.LastSeen), t.Resolved, lat, lon, t.Address, t.Source)
		}
	}
}

func colocationSheet(sh *Sheet, res *analytics.CoLocationResult) {
	sh.header("event_id", "tower_key", "cell_tower_id", "lac", "subjects", "start", "end", "records", "repeated")
	for _, e := range res.Events {
		sh.row(e.ID, e.TowerKey, e.CellTowerID, e.LAC, strings.Join(e.Subjects, ", "),
			stamp(e.Start), stamp(e.End), e.RecordCount, e.Repeated)
	}

	sh.gap()
	sh.header("repeated_subjects", "events")
	for _, s := range res.RepeatedSets {
		sh.row(strings.Join(s.Subjects, ", "), s.Events)
	}

	sh.gap()
	sh.header("shared_tower", "cell_tower_id", "lac", "subjects", "usage_count", "first_seen", "last_seen")
	for _, t := range res.SharedTowers {
		sh.row(t.TowerKey, t.CellTowerID, t.LAC, strings.Join(t.Subjects, ", "), t.UsageCount,
			stamp(t.FirstSeen), stamp(t.LastSeen))
	}
}

func internationalSheet(sh *Sheet, res []*analytics.CountryBreakdown) {
	sh.header("subject", "home_code", "code", "iso", "country", "calls", "total_duration_s", "share", "samples")
	for _, b := range res {
		for _, c := range b.Countries {
			share := 0.0
			if b.TotalCalls > 0 {
				share = float64(c.CallCount) / float64(b.TotalCalls)
			}
			sh.row(b.Subject, b.HomeCode, c.Code, c.ISO, c.Name, c.CallCount, c.TotalDuration,
				share, strings.Join(c.Samples, ", "))
		}
	}
}

func graphSheet(sh *Sheet, res *analytics.NetworkGraph) {
	sh.header("node", "kind", "label", "calls", "degree", "shared_by", "aliases")
	for _, n := range res.Nodes {
		sh.row(n.ID, string(n.Kind), n.Label, n.CallCount, n.Degree,
			strings.Join(n.SharedBy, ", "), strings.Join(n.Aliases, ", "))
	}

	sh.gap()
	sh.header("source", "target", "weight", "total_duration_s")
	for _, e := range res.Edges {
		sh.row(e.Source, e.Target, e.Weight, e.TotalDuration)
	}
}

func anomaliesSheet(sh *Sheet, res *analytics.AnomalyReport) {
	sh.header("risk_level", string(res.RiskLevel))
	sh.gap()
	sh.header("rule", "severity", "subject", "title", "reason", "evidence")
	for _, f := range res.Findings {
		sh.row(f.Rule, string(f.Severity), f.Subject, f.Title, f.Reason, evidence(f.Evidence))
	}
}

func activitySheet(sh *Sheet, res []*analytics.ActivityHeatmap) {
	cols := []any{"subject", "filter", "date"}
	for h := 0; h < 24; h++ {
		cols = append(cols, fmt.Sprintf("%02d", h))
	}
	cols = append(cols, "total")
	sh.header(cols...)
	for _, hm := range res {
		for i, date := range hm.Dates {
			row := []any{hm.Subject, string(hm.Filter), date}
			total := 0
			for _, n := range hm.Counts[i] {
				row = append(row, n)
				total += n
			}
			sh.row(append(row, total)...)
		}
	}
}

func smsServicesSheet(sh *Sheet, res []*analytics.ServiceReport) {
	sh.header("subject", "service", "count")
	for _, rep := range res {
		for _, st := range rep.Services {
			sh.row(rep.Subject, st.Service, st.Count)
		}
		sh.row(rep.Subject, "(unmatched)", rep.Unmatched)
	}

	sh.gap()
	sh.header("subject", "service", "at", "number", "content")
	for _, rep := range res {
		for _, st := range rep.Services {
			for _, h := range st.Hits {
				sh.row(rep.Subject, st.Service, stamp(h.At), h.Number, h.Content)
			}
		}
	}
}

// evidence flattens a finding's evidence map to "k=v; ..." in key order.
func evidence(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, m[k])
	}
	return strings.Join(parts, "; ")
}
