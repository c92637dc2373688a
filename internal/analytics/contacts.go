package analytics

import (
	"sort"
	"time"

	"github.com/lvonguyen/cdrforge/internal/cdr"
)

// ContactStat aggregates the subject's traffic with one counterpart.
type ContactStat struct {
	Number        string    `json:"number"`
	CallCount     int       `json:"call_count"`
	TotalDuration float64   `json:"total_duration"`
	FirstContact  time.Time `json:"first_contact"`
	LastContact   time.Time `json:"last_contact"`
	LongestCall   float64   `json:"longest_call"`
	LongestCallAt time.Time `json:"longest_call_at"`
	Incoming      int       `json:"incoming"`
	Outgoing      int       `json:"outgoing"`
	SMS           int       `json:"sms"`
}

// ContactSummary ranks a subject's counterparts three ways. Each ranking
// lists every counterpart exactly once.
type ContactSummary struct {
	SessionID       string         `json:"session_id"`
	Subject         string         `json:"subject"`
	UniqueContacts  int            `json:"unique_contacts"`
	ByCallCount     []*ContactStat `json:"by_call_count"`
	ByTotalDuration []*ContactStat `json:"by_total_duration"`
	ByLongestCall   []*ContactStat `json:"by_longest_call"`
}

// Contacts builds the contact summary of one subject.
func Contacts(s Subject) *ContactSummary {
	stats := make(map[string]*ContactStat)
	var all []*ContactStat

	for i := range s.Records {
		r := &s.Records[i]
		num := r.Counterpart(s.Number)
		if num == "" {
			continue
		}
		st, ok := stats[num]
		if !ok {
			st = &ContactStat{Number: num, FirstContact: r.StartTime, LastContact: r.StartTime}
			stats[num] = st
			all = append(all, st)
		}
		st.CallCount++
		st.TotalDuration += r.DurationSeconds
		if r.StartTime.Before(st.FirstContact) {
			st.FirstContact = r.StartTime
		}
		if r.StartTime.After(st.LastContact) {
			st.LastContact = r.StartTime
		}
		if st.LongestCallAt.IsZero() || r.DurationSeconds > st.LongestCall ||
			(r.DurationSeconds == st.LongestCall && r.StartTime.Before(st.LongestCallAt)) {
			st.LongestCall = r.DurationSeconds
			st.LongestCallAt = r.StartTime
		}
		switch r.Direction {
		case cdr.DirectionIncoming:
			st.Incoming++
		default:
			st.Outgoing++
		}
		if r.EventType == cdr.EventSMS {
			st.SMS++
		}
	}

	sum := &ContactSummary{
		SessionID:      s.SessionID,
		Subject:        s.Number,
		UniqueContacts: len(all),
	}
	sum.ByCallCount = rankContacts(all, func(a, b *ContactStat) int {
		return compareDesc(float64(a.CallCount), float64(b.CallCount))
	}, func(c *ContactStat) time.Time { return c.FirstContact })
	sum.ByTotalDuration = rankContacts(all, func(a, b *ContactStat) int {
		return compareDesc(a.TotalDuration, b.TotalDuration)
	}, func(c *ContactStat) time.Time { return c.FirstContact })
	sum.ByLongestCall = rankContacts(all, func(a, b *ContactStat) int {
		return compareDesc(a.LongestCall, b.LongestCall)
	}, func(c *ContactStat) time.Time { return c.LongestCallAt })
	return sum
}

// rankContacts sorts a copy by the primary key, then the earliest relevant
// time, then the number.
func rankContacts(all []*ContactStat, primary func(a, b *ContactStat) int, at func(*ContactStat) time.Time) []*ContactStat {
	out := append([]*ContactStat(nil), all...)
	sort.SliceStable(out, func(i, j int) bool {
		if c := primary(out[i], out[j]); c != 0 {
			return c < 0
		}
		ti, tj := at(out[i]), at(out[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return out[i].Number < out[j].Number
	})
	return out
}

func compareDesc(a, b float64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}
