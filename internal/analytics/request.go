package analytics

import (
	"sort"
	"time"

	"github.com/lvonguyen/cdrforge/internal/cdr"
)

// Subject is one target's record set, usually one session.
type Subject struct {
	SessionID string
	Number    string
	Label     string
	Records   []cdr.Record
}

// ID identifies the subject in multi-subject results: the subject number
// when known, the session ID otherwise.
func (s Subject) ID() string {
	if s.Number != "" {
		return s.Number
	}
	return s.SessionID
}

// Request is the input of one engine run.
type Request struct {
	Subjects []Subject

	// From and To bound record start times (inclusive, exclusive). Zero
	// values leave the side open.
	From time.Time
	To   time.Time

	// Window overrides the configured co-location window when positive.
	Window time.Duration

	// Activity selects the records the activity heatmap counts. Empty
	// means all.
	Activity ActivityFilter
}

// filtered returns the subjects with the time filter applied.
func (r Request) filtered() []Subject {
	if r.From.IsZero() && r.To.IsZero() {
		return r.Subjects
	}
	out := make([]Subject, len(r.Subjects))
	for i, s := range r.Subjects {
		s.Records = FilterRecords(s.Records, r.From, r.To)
		out[i] = s
	}
	return out
}

// distinctSubjects counts subjects by ID.
func distinctSubjects(subjects []Subject) int {
	seen := make(map[string]bool, len(subjects))
	for _, s := range subjects {
		seen[s.ID()] = true
	}
	return len(seen)
}

// FilterRecords keeps records with from <= StartTime < to. Zero bounds are
// open. The input slice is not modified.
func FilterRecords(records []cdr.Record, from, to time.Time) []cdr.Record {
	if from.IsZero() && to.IsZero() {
		return records
	}
	out := make([]cdr.Record, 0, len(records))
	for _, r := range records {
		if !from.IsZero() && r.StartTime.Before(from) {
			continue
		}
		if !to.IsZero() && !r.StartTime.Before(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// byTime returns a copy of records ordered by start time, stable for ties.
func byTime(records []cdr.Record) []cdr.Record {
	out := append([]cdr.Record(nil), records...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}
