package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lvonguyen/cdrforge/internal/cdr"
)

// ActivityFilter selects the records an activity heatmap counts.
type ActivityFilter string

const (
	ActivityAll      ActivityFilter = "all"
	ActivityIncoming ActivityFilter = "incoming"
	ActivityOutgoing ActivityFilter = "outgoing"
	ActivitySMS      ActivityFilter = "sms"
)

// ParseActivityFilter accepts all, incoming, outgoing or sms. Empty means all.
func ParseActivityFilter(s string) (ActivityFilter, error) {
	switch f := ActivityFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return ActivityAll, nil
	case ActivityAll, ActivityIncoming, ActivityOutgoing, ActivitySMS:
		return f, nil
	default:
		return "", fmt.Errorf("unknown activity filter %q", s)
	}
}

func (f ActivityFilter) match(r *cdr.Record) bool {
	switch f {
	case ActivityIncoming:
		return r.Direction == cdr.DirectionIncoming
	case ActivityOutgoing:
		return r.Direction == cdr.DirectionOutgoing
	case ActivitySMS:
		return r.EventType == cdr.EventSMS
	default:
		return true
	}
}

// ActivityHeatmap counts records per calendar day and hour of day. Counts
// has one row per entry of Dates and 24 columns, hour 0 first.
type ActivityHeatmap struct {
	SessionID string         `json:"session_id"`
	Subject   string         `json:"subject"`
	Filter    ActivityFilter `json:"filter"`
	Dates     []string       `json:"dates"`
	Counts    [][24]int      `json:"counts"`
	Total     int            `json:"total"`
	// PeakHour is the busiest hour over all days, -1 when nothing matched.
	PeakHour int `json:"peak_hour"`
}

// Heatmap builds the date by hour activity grid of one subject. Days and
// hours are taken in loc; a nil loc means UTC. Only days with at least one
// matching record appear.
func Heatmap(s Subject, loc *time.Location, filter ActivityFilter) *ActivityHeatmap {
	if loc == nil {
		loc = time.UTC
	}
	if filter == "" {
		filter = ActivityAll
	}
	hm := &ActivityHeatmap{
		SessionID: s.SessionID,
		Subject:   s.Number,
		Filter:    filter,
		Dates:     []string{},
		Counts:    [][24]int{},
		PeakHour:  -1,
	}

	byDate := make(map[string]*[24]int)
	for i := range s.Records {
		r := &s.Records[i]
		if !filter.match(r) {
			continue
		}
		local := r.StartTime.In(loc)
		date := local.Format(time.DateOnly)
		row, ok := byDate[date]
		if !ok {
			row = new([24]int)
			byDate[date] = row
			hm.Dates = append(hm.Dates, date)
		}
		row[local.Hour()]++
		hm.Total++
	}

	sort.Strings(hm.Dates)
	var perHour [24]int
	for _, d := range hm.Dates {
		row := *byDate[d]
		hm.Counts = append(hm.Counts, row)
		for h, n := range row {
			perHour[h] += n
		}
	}
	best := 0
	for h, n := range perHour {
		if n > best {
			best, hm.PeakHour = n, h
		}
	}
	return hm
}
