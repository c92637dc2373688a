package analytics

import (
	"sort"

	"github.com/lvonguyen/cdrforge/internal/countries"
)

// maxCountrySamples caps the sample numbers kept per country.
const maxCountrySamples = 10

// CountryStat aggregates calls to one calling code.
type CountryStat struct {
	Code          string   `json:"code"`
	ISO           string   `json:"iso,omitempty"`
	Name          string   `json:"name"`
	CallCount     int      `json:"call_count"`
	TotalDuration float64  `json:"total_duration"`
	Samples       []string `json:"samples"`
}

// CountryBreakdown groups a subject's called numbers by country.
type CountryBreakdown struct {
	SessionID          string         `json:"session_id"`
	Subject            string         `json:"subject"`
	HomeCode           string         `json:"home_code,omitempty"`
	TotalCalls         int            `json:"total_calls"`
	InternationalCalls int            `json:"international_calls"`
	InternationalShare float64        `json:"international_share"`
	Countries          []*CountryStat `json:"countries"`
}

// International classifies every called number of a subject. Calls count as
// international when they carry a known code other than the home code. The
// home code is homeCode when given, else the subject number's code, else
// the most frequent known code in the records.
func International(s Subject, table *countries.Table, homeCode string) *CountryBreakdown {
	if table == nil {
		table = countries.Builtin()
	}
	cb := &CountryBreakdown{
		SessionID:  s.SessionID,
		Subject:    s.Number,
		TotalCalls: len(s.Records),
		Countries:  []*CountryStat{},
	}
	stats := make(map[string]*CountryStat)
	sampled := make(map[string]map[string]bool)

	for i := range s.Records {
		r := &s.Records[i]
		c := table.Classify(r.CalledNumber)
		st, ok := stats[c.Code]
		if !ok {
			st = &CountryStat{Code: c.Code, ISO: c.ISO, Name: c.Name, Samples: []string{}}
			stats[c.Code] = st
			sampled[c.Code] = make(map[string]bool)
			cb.Countries = append(cb.Countries, st)
		}
		st.CallCount++
		st.TotalDuration += r.DurationSeconds
		if len(st.Samples) < maxCountrySamples && !sampled[c.Code][r.CalledNumber] {
			sampled[c.Code][r.CalledNumber] = true
			st.Samples = append(st.Samples, r.CalledNumber)
		}
	}

	sort.SliceStable(cb.Countries, func(i, j int) bool {
		a, b := cb.Countries[i], cb.Countries[j]
		if a.CallCount != b.CallCount {
			return a.CallCount > b.CallCount
		}
		return a.Code < b.Code
	})

	cb.HomeCode = homeCode
	if cb.HomeCode == "" {
		if c := table.Classify(s.Number); c.Code != countries.UnknownCode {
			cb.HomeCode = c.Code
		}
	}
	if cb.HomeCode == "" {
		for _, st := range cb.Countries {
			if st.Code != countries.UnknownCode {
				cb.HomeCode = st.Code
				break
			}
		}
	}

	for _, st := range cb.Countries {
		if st.Code != countries.UnknownCode && st.Code != cb.HomeCode {
			cb.InternationalCalls += st.CallCount
		}
	}
	if cb.TotalCalls > 0 {
		cb.InternationalShare = float64(cb.InternationalCalls) / float64(cb.TotalCalls)
	}
	return cb
}
