package analytics

import (
	"testing"
	"time"

	"github.com/lvonguyen/cdrforge/internal/cdr"
)

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		t.Fatalf("bad test time %q: %v", s, err)
	}
	return v
}

// call builds an outgoing voice record from the subject to a counterpart.
func call(from, to string, at time.Time, dur float64) cdr.Record {
	return cdr.Record{
		CallingNumber:   from,
		CalledNumber:    to,
		Direction:       cdr.DirectionOutgoing,
		StartTime:       at,
		DurationSeconds: dur,
		EventType:       cdr.EventVoice,
		Status:          cdr.StatusCompleted,
	}
}

func atTower(r cdr.Record, cell string, lac int) cdr.Record {
	r.CellTowerID = cell
	r.LAC = lac
	return r
}

func withIMEI(r cdr.Record, imei string) cdr.Record {
	r.IMEI = imei
	return r
}
