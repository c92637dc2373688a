package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/lvonguyen/cdrforge/internal/cdr"
)

// IMEIInfo is the structural decoding of an IMEI.
type IMEIInfo struct {
	TAC        string `json:"tac,omitempty"`
	Serial     string `json:"serial,omitempty"`
	CheckDigit string `json:"check_digit,omitempty"`
	Valid      bool   `json:"valid"`
}

// DecodeIMEI splits a 14 or 15 digit IMEI into its type allocation code,
// serial number and check digit. Valid reports whether the Luhn check digit
// is present and correct.
func DecodeIMEI(imei string) IMEIInfo {
	if len(imei) < 14 || !isDigits(imei) {
		return IMEIInfo{}
	}
	info := IMEIInfo{TAC: imei[:8], Serial: imei[8:14]}
	if len(imei) == 15 {
		info.CheckDigit = imei[14:]
		info.Valid = luhnCheckDigit(imei[:14]) == imei[14]-'0'
	}
	return info
}

// luhnCheckDigit computes the Luhn check digit of a digit string.
func luhnCheckDigit(digits string) byte {
	var sum int
	double := true
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return byte((10 - sum%10) % 10)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// DeviceSwitchEvent marks the subject moving from one handset to another.
type DeviceSwitchEvent struct {
	From        string    `json:"from"`
	To          string    `json:"to"`
	At          time.Time `json:"at"`
	CellTowerID string    `json:"cell_tower_id,omitempty"`
	LAC         int       `json:"lac,omitempty"`
}

// DeviceUsage aggregates one IMEI.
type DeviceUsage struct {
	IMEI         string    `json:"imei"`
	UsageCount   int       `json:"usage_count"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	DurationDays int       `json:"duration_days"`
	Info         IMEIInfo  `json:"info"`
}

// DeviceTimeline is the handset history of one subject.
type DeviceTimeline struct {
	SessionID          string              `json:"session_id"`
	Subject            string              `json:"subject"`
	Devices            []*DeviceUsage      `json:"devices"`
	Switches           []DeviceSwitchEvent `json:"switches"`
	DistinctDevices    int                 `json:"distinct_devices"`
	MultiDevice        bool                `json:"multi_device"`
	UnknownDeviceCount int                 `json:"unknown_device_count"`
}

// Devices reconstructs the device timeline of one subject. Records are
// ordered by (StartTime, IMEI, CellTowerID) first, so the switch sequence
// does not depend on input order.
func Devices(s Subject) *DeviceTimeline {
	records := append([]cdr.Record(nil), s.Records...)
	sort.SliceStable(records, func(i, j int) bool {
		a, b := &records[i], &records[j]
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		if a.IMEI != b.IMEI {
			return a.IMEI < b.IMEI
		}
		return a.CellTowerID < b.CellTowerID
	})

	tl := &DeviceTimeline{
		SessionID: s.SessionID,
		Subject:   s.Number,
		Devices:   []*DeviceUsage{},
		Switches:  []DeviceSwitchEvent{},
	}
	usage := make(map[string]*DeviceUsage)
	var current string

	for i := range records {
		r := &records[i]
		if r.IMEI == "" {
			tl.UnknownDeviceCount++
			continue
		}
		u, ok := usage[r.IMEI]
		if !ok {
			u = &DeviceUsage{IMEI: r.IMEI, FirstSeen: r.StartTime, Info: DecodeIMEI(r.IMEI)}
			usage[r.IMEI] = u
			tl.Devices = append(tl.Devices, u)
		}
		u.UsageCount++
		u.LastSeen = r.StartTime

		if current != "" && r.IMEI != current {
			tl.Switches = append(tl.Switches, DeviceSwitchEvent{
				From:        current,
				To:          r.IMEI,
				At:          r.StartTime,
				CellTowerID: r.CellTowerID,
				LAC:         r.LAC,
			})
		}
		current = r.IMEI
	}

	for _, u := range tl.Devices {
		u.DurationDays = durationDays(u.FirstSeen, u.LastSeen)
	}
	sort.SliceStable(tl.Devices, func(i, j int) bool {
		a, b := tl.Devices[i], tl.Devices[j]
		if a.UsageCount != b.UsageCount {
			return a.UsageCount > b.UsageCount
		}
		if !a.FirstSeen.Equal(b.FirstSeen) {
			return a.FirstSeen.Before(b.FirstSeen)
		}
		return a.IMEI < b.IMEI
	})
	tl.DistinctDevices = len(tl.Devices)
	tl.MultiDevice = tl.DistinctDevices > 1
	return tl
}

// durationDays is ceil((last-first)/24h), at least 1.
func durationDays(first, last time.Time) int {
	days := int(math.Ceil(last.Sub(first).Hours() / 24))
	if days < 1 {
		return 1
	}
	return days
}

// SubjectDeviceUsage is one subject's use of a shared IMEI.
type SubjectDeviceUsage struct {
	Subject    string    `json:"subject"`
	SessionID  string    `json:"session_id"`
	UsageCount int       `json:"usage_count"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
}

// SharedDevice is an IMEI seen in the records of two or more subjects.
type SharedDevice struct {
	IMEI     string               `json:"imei"`
	Info     IMEIInfo             `json:"info"`
	Subjects []SubjectDeviceUsage `json:"subjects"`
}

// CommonDevices lists IMEIs used by at least two distinct subjects, most
// widely shared first.
func CommonDevices(subjects []Subject) ([]SharedDevice, error) {
	if n := distinctSubjects(subjects); n < 2 {
		return nil, fmt.Errorf("common devices over %d subject(s): %w", n, cdr.ErrInsufficientSubjects)
	}

	type key struct{ imei, subject string }
	usage := make(map[key]*SubjectDeviceUsage)
	byIMEI := make(map[string][]*SubjectDeviceUsage)
	var order []string

	for _, s := range subjects {
		for i := range s.Records {
			r := &s.Records[i]
			if r.IMEI == "" {
				continue
			}
			k := key{r.IMEI, s.ID()}
			u, ok := usage[k]
			if !ok {
				u = &SubjectDeviceUsage{Subject: s.ID(), SessionID: s.SessionID, FirstSeen: r.StartTime, LastSeen: r.StartTime}
				usage[k] = u
				if byIMEI[r.IMEI] == nil {
					order = append(order, r.IMEI)
				}
				byIMEI[r.IMEI] = append(byIMEI[r.IMEI], u)
			}
			u.UsageCount++
			if r.StartTime.Before(u.FirstSeen) {
				u.FirstSeen = r.StartTime
			}
			if r.StartTime.After(u.LastSeen) {
				u.LastSeen = r.StartTime
			}
		}
	}

	out := []SharedDevice{}
	for _, imei := range order {
		users := byIMEI[imei]
		if len(users) < 2 {
			continue
		}
		sd := SharedDevice{IMEI: imei, Info: DecodeIMEI(imei)}
		for _, u := range users {
			sd.Subjects = append(sd.Subjects, *u)
		}
		out = append(out, sd)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].Subjects) != len(out[j].Subjects) {
			return len(out[i].Subjects) > len(out[j].Subjects)
		}
		return out[i].IMEI < out[j].IMEI
	})
	return out, nil
}

// IMEICount is how many records one IMEI carried on a day.
type IMEICount struct {
	IMEI  string `json:"imei"`
	Count int    `json:"count"`
}

// DeviceDay lists the IMEIs a subject used on one calendar day.
type DeviceDay struct {
	Date    string      `json:"date"`
	Devices []IMEICount `json:"devices"`
}

// DailyDeviceTracking is the per-day handset usage of one subject.
type DailyDeviceTracking struct {
	SessionID string      `json:"session_id"`
	Subject   string      `json:"subject"`
	Days      []DeviceDay `json:"days"`
	// MultiDeviceDays counts days on which more than one IMEI was used.
	MultiDeviceDays int `json:"multi_device_days"`
}

// DailyDevices groups a subject's IMEI records by calendar day in loc (UTC
// when nil). Days are in date order; within a day IMEIs are ordered by
// count, then IMEI. Records without an IMEI are skipped.
func DailyDevices(s Subject, loc *time.Location) *DailyDeviceTracking {
	if loc == nil {
		loc = time.UTC
	}
	out := &DailyDeviceTracking{SessionID: s.SessionID, Subject: s.Number, Days: []DeviceDay{}}
	counts := make(map[string]map[string]int)
	var dates []string
	for i := range s.Records {
		r := &s.Records[i]
		if r.IMEI == "" {
			continue
		}
		date := r.StartTime.In(loc).Format(time.DateOnly)
		if counts[date] == nil {
			counts[date] = make(map[string]int)
			dates = append(dates, date)
		}
		counts[date][r.IMEI]++
	}

	sort.Strings(dates)
	for _, date := range dates {
		day := DeviceDay{Date: date}
		for imei, n := range counts[date] {
			day.Devices = append(day.Devices, IMEICount{IMEI: imei, Count: n})
		}
		sort.Slice(day.Devices, func(i, j int) bool {
			a, b := day.Devices[i], day.Devices[j]
			if a.Count != b.Count {
				return a.Count > b.Count
			}
			return a.IMEI < b.IMEI
		})
		if len(day.Devices) > 1 {
			out.MultiDeviceDays++
		}
		out.Days = append(out.Days, day)
	}
	return out
}
