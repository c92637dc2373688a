package analytics

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lvonguyen/cdrforge/internal/cdr"
)

var colocationNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://cdrforge/colocation"))

// CoLocationEvent is a span during which two or more subjects used the same
// tower within adjacent time windows.
type CoLocationEvent struct {
	ID          string    `json:"id"`
	TowerKey    string    `json:"tower_key"`
	CellTowerID string    `json:"cell_tower_id"`
	LAC         int       `json:"lac,omitempty"`
	Subjects    []string  `json:"subjects"`
	SessionIDs  []string  `json:"session_ids"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	RecordCount int       `json:"record_count"`
	// Repeated is set when the same subject set had at least
	// RepeatThreshold separate encounters.
	Repeated bool `json:"repeated"`
}

// SubjectSet is an unordered group of subjects and how often it met.
// Events counts separate encounters: merged events whose windows overlap or
// touch count once, whatever towers they were on.
type SubjectSet struct {
	Subjects []string `json:"subjects"`
	Events   int      `json:"events"`
}

// SharedTower is a tower used by two or more subjects at any time.
type SharedTower struct {
	TowerKey    string    `json:"tower_key"`
	CellTowerID string    `json:"cell_tower_id"`
	LAC         int       `json:"lac,omitempty"`
	Subjects    []string  `json:"subjects"`
	UsageCount  int       `json:"usage_count"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// CoLocationResult is the output of one matcher run.
type CoLocationResult struct {
	Window          time.Duration     `json:"window"`
	RepeatThreshold int               `json:"repeat_threshold"`
	Subjects        []string          `json:"subjects"`
	Events          []CoLocationEvent `json:"events"`
	RepeatedSets    []SubjectSet      `json:"repeated_sets"`
	SharedTowers    []SharedTower     `json:"shared_towers"`
}

// Colocator matches tower usage across subjects.
type Colocator struct {
	window          time.Duration
	repeatThreshold int
}

// NewColocator creates a matcher with the configured window and repeat
// threshold.
func NewColocator(cfg Config) *Colocator {
	cfg = cfg.withDefaults()
	return &Colocator{window: cfg.Window, repeatThreshold: cfg.RepeatThreshold}
}

// towerEvent is one subject's use of a tower.
type towerEvent struct {
	subject   string
	sessionID string
	tower     string
	cell      string
	lac       int
	at        time.Time
}

type bucketKey struct {
	tower string
	index int64
}

type bucket struct {
	bucketKey
	cell       string
	lac        int
	subjects   map[string]bool
	sessions   map[string]bool
	first      time.Time
	last       time.Time
	records    int
	setKey     string
	subjectIDs []string
}

// Match finds co-location events. It fails with ErrInsufficientSubjects
// before doing any work when fewer than two distinct subjects are given.
// Buckets are keyed by (tower, floor(unix/window)); a bucket holding two or
// more subjects is a candidate, and candidates with the same tower and
// subject set in consecutive bucket indexes merge into one event.
func (c *Colocator) Match(ctx context.Context, subjects []Subject) (*CoLocationResult, error) {
	if n := distinctSubjects(subjects); n < 2 {
		return nil, fmt.Errorf("co-location over %d subject(s): %w", n, cdr.ErrInsufficientSubjects)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &CoLocationResult{
		Window:          c.window,
		RepeatThreshold: c.repeatThreshold,
		Events:          []CoLocationEvent{},
		RepeatedSets:    []SubjectSet{},
	}
	seen := make(map[string]bool)
	for _, s := range subjects {
		if !seen[s.ID()] {
			seen[s.ID()] = true
			result.Subjects = append(result.Subjects, s.ID())
		}
	}

	events := c.collect(subjects)
	result.SharedTowers = sharedTowers(events)

	candidates := c.candidates(events)
	merged := c.merge(candidates)

	setCounts := c.encounters(merged)
	var repeated []string
	for key, n := range setCounts {
		if n >= c.repeatThreshold {
			repeated = append(repeated, key)
		}
	}
	sort.Strings(repeated)
	for _, key := range repeated {
		result.RepeatedSets = append(result.RepeatedSets, SubjectSet{
			Subjects: strings.Split(key, "|"),
			Events:   setCounts[key],
		})
	}
	for i := range merged {
		merged[i].Repeated = setCounts[strings.Join(merged[i].Subjects, "|")] >= c.repeatThreshold
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := &merged[i], &merged[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if a.TowerKey != b.TowerKey {
			return a.TowerKey < b.TowerKey
		}
		return strings.Join(a.Subjects, "|") < strings.Join(b.Subjects, "|")
	})
	result.Events = merged
	return result, nil
}

// collect flattens every subject's records into time-ordered tower events.
func (c *Colocator) collect(subjects []Subject) []towerEvent {
	var events []towerEvent
	for _, s := range subjects {
		for _, r := range byTime(s.Records) {
			key := r.TowerKey()
			if key == "" {
				continue
			}
			events = append(events, towerEvent{
				subject:   s.ID(),
				sessionID: s.SessionID,
				tower:     key,
				cell:      r.CellTowerID,
				lac:       r.LAC,
				at:        r.StartTime,
			})
		}
	}
	return events
}

// candidates buckets the events and keeps buckets with two or more
// subjects, ordered by (tower, subject set, bucket index).
func (c *Colocator) candidates(events []towerEvent) []*bucket {
	width := c.width()
	buckets := make(map[bucketKey]*bucket)
	for _, ev := range events {
		k := bucketKey{tower: ev.tower, index: floorDiv(ev.at.Unix(), width)}
		b, ok := buckets[k]
		if !ok {
			b = &bucket{
				bucketKey: k,
				cell:      ev.cell,
				lac:       ev.lac,
				subjects:  make(map[string]bool),
				sessions:  make(map[string]bool),
				first:     ev.at,
				last:      ev.at,
			}
			buckets[k] = b
		}
		b.subjects[ev.subject] = true
		if ev.sessionID != "" {
			b.sessions[ev.sessionID] = true
		}
		b.records++
		if ev.at.Before(b.first) {
			b.first = ev.at
		}
		if ev.at.After(b.last) {
			b.last = ev.at
		}
	}

	var out []*bucket
	for _, b := range buckets {
		if len(b.subjects) < 2 {
			continue
		}
		b.subjectIDs = sortedKeys(b.subjects)
		b.setKey = strings.Join(b.subjectIDs, "|")
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.tower != b.tower {
			return a.tower < b.tower
		}
		if a.setKey != b.setKey {
			return a.setKey < b.setKey
		}
		return a.index < b.index
	})
	return out
}

// merge folds runs of consecutive bucket indexes into events.
func (c *Colocator) merge(candidates []*bucket) []CoLocationEvent {
	events := []CoLocationEvent{}
	var (
		cur      *CoLocationEvent
		sessions map[string]bool
		prev     *bucket
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.SessionIDs = sortedKeys(sessions)
		cur.ID = uuid.NewSHA1(colocationNamespace, []byte(
			cur.TowerKey+"/"+strings.Join(cur.Subjects, "|")+"/"+strconv.FormatInt(cur.Start.UnixNano(), 10),
		)).String()
		events = append(events, *cur)
		cur = nil
	}

	for _, b := range candidates {
		if cur != nil && prev.tower == b.tower && prev.setKey == b.setKey && b.index == prev.index+1 {
			if b.first.Before(cur.Start) {
				cur.Start = b.first
			}
			if b.last.After(cur.End) {
				cur.End = b.last
			}
			cur.RecordCount += b.records
			for s := range b.sessions {
				sessions[s] = true
			}
			prev = b
			continue
		}
		flush()
		cur = &CoLocationEvent{
			TowerKey:    b.tower,
			CellTowerID: b.cell,
			LAC:         b.lac,
			Subjects:    b.subjectIDs,
			Start:       b.first,
			End:         b.last,
			RecordCount: b.records,
		}
		sessions = make(map[string]bool, len(b.sessions))
		for s := range b.sessions {
			sessions[s] = true
		}
		prev = b
	}
	flush()
	return events
}

// encounters counts, per subject set, the merged events left after joining
// those whose bucket spans overlap or are adjacent on any tower. A handover
// between towers during one meeting is a single encounter.
func (c *Colocator) encounters(events []CoLocationEvent) map[string]int {
	type span struct{ lo, hi int64 }
	width := c.width()
	spans := make(map[string][]span)
	for _, ev := range events {
		key := strings.Join(ev.Subjects, "|")
		spans[key] = append(spans[key], span{
			lo: floorDiv(ev.Start.Unix(), width),
			hi: floorDiv(ev.End.Unix(), width),
		})
	}

	counts := make(map[string]int, len(spans))
	for key, ss := range spans {
		sort.Slice(ss, func(i, j int) bool {
			if ss[i].lo != ss[j].lo {
				return ss[i].lo < ss[j].lo
			}
			return ss[i].hi < ss[j].hi
		})
		n, hi := 1, ss[0].hi
		for _, sp := range ss[1:] {
			if sp.lo <= hi+1 {
				hi = max(hi, sp.hi)
				continue
			}
			n++
			hi = sp.hi
		}
		counts[key] = n
	}
	return counts
}

func (c *Colocator) width() int64 {
	w := int64(c.window / time.Second)
	if w < 1 {
		return 1
	}
	return w
}

// sharedTowers lists towers used by two or more subjects regardless of time.
func sharedTowers(events []towerEvent) []SharedTower {
	type agg struct {
		SharedTower
		subjects map[string]bool
	}
	byTower := make(map[string]*agg)
	for _, ev := range events {
		a, ok := byTower[ev.tower]
		if !ok {
			a = &agg{
				SharedTower: SharedTower{TowerKey: ev.tower, CellTowerID: ev.cell, LAC: ev.lac, FirstSeen: ev.at, LastSeen: ev.at},
				subjects:    make(map[string]bool),
			}
			byTower[ev.tower] = a
		}
		a.subjects[ev.subject] = true
		a.UsageCount++
		if ev.at.Before(a.FirstSeen) {
			a.FirstSeen = ev.at
		}
		if ev.at.After(a.LastSeen) {
			a.LastSeen = ev.at
		}
	}

	out := []SharedTower{}
	for _, a := range byTower {
		if len(a.subjects) < 2 {
			continue
		}
		a.Subjects = sortedKeys(a.subjects)
		out = append(out, a.SharedTower)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Subjects) != len(out[j].Subjects) {
			return len(out[i].Subjects) > len(out[j].Subjects)
		}
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount > out[j].UsageCount
		}
		return out[i].TowerKey < out[j].TowerKey
	})
	return out
}

// floorDiv rounds toward negative infinity so pre-1970 times bucket
// consistently.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
