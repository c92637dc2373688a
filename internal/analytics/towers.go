package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/lvonguyen/cdrforge/internal/cdr"
)

// Locator resolves a cell to coordinates. ok is false when the cell is
// unknown or the lookup failed; callers treat both as unresolved.
type Locator interface {
	Resolve(ctx context.Context, key cdr.CellKey) (cdr.Coordinate, bool)
}

// TowerStat aggregates one serving cell.
type TowerStat struct {
	TowerKey    string    `json:"tower_key"`
	CellTowerID string    `json:"cell_tower_id"`
	LAC         int       `json:"lac,omitempty"`
	MCC         int       `json:"mcc,omitempty"`
	MNC         int       `json:"mnc,omitempty"`
	UsageCount  int       `json:"usage_count"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Lat         float64   `json:"lat,omitempty"`
	Lon         float64   `json:"lon,omitempty"`
	// Resolved is false when no coordinates could be found.
	Resolved bool   `json:"resolved"`
	Address  string `json:"address,omitempty"`
	Source   string `json:"source,omitempty"`
}

// TowerUsage is the location profile of one subject.
type TowerUsage struct {
	SessionID       string       `json:"session_id"`
	Subject         string       `json:"subject"`
	Towers          []*TowerStat `json:"towers"`
	UnresolvedCount int          `json:"unresolved_count"`
	NoTowerRecords  int          `json:"no_tower_records"`
}

// Towers aggregates tower usage for one subject. Coordinates come from the
// records when any record of the tower carries them, otherwise from loc with
// a per-call timeout. A nil loc leaves such towers unresolved.
func Towers(ctx context.Context, s Subject, loc Locator, timeout time.Duration) *TowerUsage {
	tu := &TowerUsage{SessionID: s.SessionID, Subject: s.Number, Towers: []*TowerStat{}}
	stats := make(map[string]*TowerStat)

	for _, r := range byTime(s.Records) {
		key := r.TowerKey()
		if key == "" {
			tu.NoTowerRecords++
			continue
		}
		st, ok := stats[key]
		if !ok {
			st = &TowerStat{
				TowerKey:    key,
				CellTowerID: r.CellTowerID,
				LAC:         r.LAC,
				MCC:         r.MCC,
				MNC:         r.MNC,
				FirstSeen:   r.StartTime,
			}
			stats[key] = st
			tu.Towers = append(tu.Towers, st)
		}
		st.UsageCount++
		st.LastSeen = r.StartTime
		if st.MCC == 0 && r.MCC != 0 {
			st.MCC, st.MNC = r.MCC, r.MNC
		}
		if !st.Resolved && r.HasCoordinates() {
			st.Lat, st.Lon = *r.Lat, *r.Lon
			st.Resolved = true
			st.Source = "record"
		}
	}

	for _, st := range tu.Towers {
		if !st.Resolved && loc != nil {
			resolveTower(ctx, st, loc, timeout)
		}
		if !st.Resolved {
			tu.UnresolvedCount++
		}
	}

	sort.SliceStable(tu.Towers, func(i, j int) bool {
		a, b := tu.Towers[i], tu.Towers[j]
		if a.UsageCount != b.UsageCount {
			return a.UsageCount > b.UsageCount
		}
		if !a.FirstSeen.Equal(b.FirstSeen) {
			return a.FirstSeen.Before(b.FirstSeen)
		}
		return a.TowerKey < b.TowerKey
	})
	return tu
}

func resolveTower(ctx context.Context, st *TowerStat, loc Locator, timeout time.Duration) {
	if ctx.Err() != nil {
		return
	}
	lctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	key := cdr.CellKey{MCC: st.MCC, MNC: st.MNC, LAC: st.LAC, CellID: st.CellTowerID}
	if c, ok := loc.Resolve(lctx, key); ok {
		st.Lat, st.Lon = c.Lat, c.Lon
		st.Resolved = true
		st.Address = c.Address
		st.Source = c.Source
	}
}
