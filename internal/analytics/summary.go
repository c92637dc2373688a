package analytics

import (
	"time"

	"github.com/lvonguyen/cdrforge/internal/cdr"
)

// Night hours are 22:00-23:59 in the configured zone.
const nightStartHour = 22

// DailyActivity is one calendar day of a subject's records.
type DailyActivity struct {
	Date             string    `json:"date"`
	Count            int       `json:"count"`
	FirstCall        time.Time `json:"first_call"`
	FirstCounterpart string    `json:"first_counterpart"`
	LastCall         time.Time `json:"last_call"`
	LastCounterpart  string    `json:"last_counterpart"`
	FirstTower       string    `json:"first_tower,omitempty"`
	LastTower        string    `json:"last_tower,omitempty"`
	Towers           int       `json:"towers"`
}

// Summary gives the headline figures of one subject.
type Summary struct {
	SessionID       string          `json:"session_id"`
	Subject         string          `json:"subject"`
	TotalRecords    int             `json:"total_records"`
	Incoming        int             `json:"incoming"`
	Outgoing        int             `json:"outgoing"`
	Voice           int             `json:"voice"`
	SMS             int             `json:"sms"`
	Data            int             `json:"data"`
	TotalDuration   float64         `json:"total_duration"`
	UniqueContacts  int             `json:"unique_contacts"`
	UniqueIMEIs     int             `json:"unique_imeis"`
	UniqueLocations int             `json:"unique_locations"`
	FirstActivity   time.Time       `json:"first_activity"`
	LastActivity    time.Time       `json:"last_activity"`
	NightCalls      int             `json:"night_calls"`
	Days            []DailyActivity `json:"days"`
}

// Summarize computes the summary of one subject. Days and night hours are
// taken in loc; a nil loc means UTC.
func Summarize(s Subject, loc *time.Location) *Summary {
	if loc == nil {
		loc = time.UTC
	}
	sum := &Summary{SessionID: s.SessionID, Subject: s.Number, Days: []DailyActivity{}}
	contacts := make(map[string]bool)
	imeis := make(map[string]bool)
	towers := make(map[string]bool)
	dayIndex := make(map[string]int)
	dayTowers := make(map[string]map[string]bool)

	for _, r := range byTime(s.Records) {
		sum.TotalRecords++
		sum.TotalDuration += r.DurationSeconds
		if r.Direction == cdr.DirectionIncoming {
			sum.Incoming++
		} else {
			sum.Outgoing++
		}
		switch r.EventType {
		case cdr.EventSMS:
			sum.SMS++
		case cdr.EventData:
			sum.Data++
		default:
			sum.Voice++
		}

		cp := r.Counterpart(s.Number)
		if cp != "" {
			contacts[cp] = true
		}
		if r.IMEI != "" {
			imeis[r.IMEI] = true
		}
		tower := r.TowerKey()
		if tower != "" {
			towers[tower] = true
		}

		if sum.FirstActivity.IsZero() {
			sum.FirstActivity = r.StartTime
		}
		sum.LastActivity = r.StartTime

		local := r.StartTime.In(loc)
		if local.Hour() >= nightStartHour {
			sum.NightCalls++
		}

		date := local.Format(time.DateOnly)
		i, ok := dayIndex[date]
		if !ok {
			i = len(sum.Days)
			dayIndex[date] = i
			dayTowers[date] = make(map[string]bool)
			sum.Days = append(sum.Days, DailyActivity{
				Date:             date,
				FirstCall:        r.StartTime,
				FirstCounterpart: cp,
			})
		}
		d := &sum.Days[i]
		d.Count++
		d.LastCall = r.StartTime
		d.LastCounterpart = cp
		if tower != "" {
			if d.FirstTower == "" {
				d.FirstTower = tower
			}
			d.LastTower = tower
			dayTowers[date][tower] = true
			d.Towers = len(dayTowers[date])
		}
	}

	sum.UniqueContacts = len(contacts)
	sum.UniqueIMEIs = len(imeis)
	sum.UniqueLocations = len(towers)
	return sum
}
