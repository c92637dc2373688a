package analytics

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/lvonguyen/cdrforge/internal/cdr"
)

func towerCall(t *testing.T, subject, when, cell string) cdr.Record {
	t.Helper()
	return atTower(call(subject, "+91999", ts(t, when), 10), cell, 0)
}

func newTestColocator(window time.Duration, repeat int) *Colocator {
	cfg := DefaultConfig()
	cfg.Window = window
	cfg.RepeatThreshold = repeat
	return NewColocator(cfg)
}

// =============================================================================
// Co-location Matcher Tests
// =============================================================================

func TestColocation_SameTowerWithinWindow(t *testing.T) {
	subjects := []Subject{
		{SessionID: "s1", Number: "+91a", Records: []cdr.Record{towerCall(t, "+91a", "2024-01-01 10:00", "5")}},
		{SessionID: "s2", Number: "+91b", Records: []cdr.Record{towerCall(t, "+91b", "2024-01-01 10:05", "5")}},
	}

	res, err := newTestColocator(15*time.Minute, 2).Match(context.Background(), subjects)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("expected exactly one event, got %d: %+v", len(res.Events), res.Events)
	}
	ev := res.Events[0]
	if ev.TowerKey != "5" {
		t.Errorf("expected tower 5, got %s", ev.TowerKey)
	}
	if !ev.Start.Equal(ts(t, "2024-01-01 10:00")) || !ev.End.Equal(ts(t, "2024-01-01 10:05")) {
		t.Errorf("expected span 10:00-10:05, got %v - %v", ev.Start, ev.End)
	}
	if !reflect.DeepEqual(ev.Subjects, []string{"+91a", "+91b"}) {
		t.Errorf("expected both subjects, got %v", ev.Subjects)
	}
	if !reflect.DeepEqual(ev.SessionIDs, []string{"s1", "s2"}) {
		t.Errorf("expected both sessions, got %v", ev.SessionIDs)
	}
	if ev.Repeated {
		t.Error("a single meeting is not repeated")
	}
	if len(res.SharedTowers) != 1 || res.SharedTowers[0].TowerKey != "5" {
		t.Errorf("expected tower 5 shared, got %+v", res.SharedTowers)
	}
}

func TestColocation_DifferentTowerOrWindow(t *testing.T) {
	subjects := []Subject{
		{Number: "+91a", Records: []cdr.Record{
			towerCall(t, "+91a", "2024-01-01 10:00", "5"),
			towerCall(t, "+91a", "2024-01-01 12:00", "7"),
		}},
		{Number: "+91b", Records: []cdr.Record{
			towerCall(t, "+91b", "2024-01-01 10:00", "6"),
			towerCall(t, "+91b", "2024-01-01 13:00", "7"),
		}},
	}
	res, err := newTestColocator(15*time.Minute, 2).Match(context.Background(), subjects)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(res.Events) != 0 {
		t.Errorf("expected no events, got %+v", res.Events)
	}
	if len(res.SharedTowers) != 1 || res.SharedTowers[0].TowerKey != "7" {
		t.Errorf("tower 7 is shared outside any window, got %+v", res.SharedTowers)
	}
}

func TestColocation_ConsecutiveBucketsMerge(t *testing.T) {
	subjects := []Subject{
		{Number: "+91a", Records: []cdr.Record{
			towerCall(t, "+91a", "2024-01-01 10:01", "5"),
			towerCall(t, "+91a", "2024-01-01 10:16", "5"),
			towerCall(t, "+91a", "2024-01-01 11:00", "5"),
		}},
		{Number: "+91b", Records: []cdr.Record{
			towerCall(t, "+91b", "2024-01-01 10:02", "5"),
			towerCall(t, "+91b", "2024-01-01 10:20", "5"),
			towerCall(t, "+91b", "2024-01-01 11:05", "5"),
		}},
	}
	res, err := newTestColocator(15*time.Minute, 2).Match(context.Background(), subjects)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(res.Events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(res.Events), res.Events)
	}
	first := res.Events[0]
	if !first.Start.Equal(ts(t, "2024-01-01 10:01")) || !first.End.Equal(ts(t, "2024-01-01 10:20")) {
		t.Errorf("expected merged span 10:01-10:20, got %v - %v", first.Start, first.End)
	}
	if first.RecordCount != 4 {
		t.Errorf("expected 4 records in merged event, got %d", first.RecordCount)
	}
	for _, ev := range res.Events {
		if !ev.Repeated {
			t.Errorf("two meetings reach the repeat threshold: %+v", ev)
		}
	}
	if len(res.RepeatedSets) != 1 || res.RepeatedSets[0].Events != 2 {
		t.Errorf("unexpected repeated sets %+v", res.RepeatedSets)
	}
}

func TestColocation_RepeatedCountsSeparateEncounters(t *testing.T) {
	tests := []struct {
		name       string
		a, b       [][2]string // (time, cell)
		events     int
		encounters int
	}{
		{
			name:       "handover inside one window",
			a:          [][2]string{{"10:00", "5"}, {"10:03", "6"}},
			b:          [][2]string{{"10:01", "5"}, {"10:04", "6"}},
			events:     2,
			encounters: 1,
		},
		{
			name:       "handover across adjacent windows",
			a:          [][2]string{{"10:10", "5"}, {"10:20", "6"}},
			b:          [][2]string{{"10:12", "5"}, {"10:22", "6"}},
			events:     2,
			encounters: 1,
		},
		{
			name:       "meetings an hour apart on different towers",
			a:          [][2]string{{"10:00", "5"}, {"11:00", "6"}},
			b:          [][2]string{{"10:02", "5"}, {"11:05", "6"}},
			events:     2,
			encounters: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			build := func(number string, calls [][2]string) Subject {
				s := Subject{Number: number}
				for _, c := range calls {
					s.Records = append(s.Records, towerCall(t, number, "2024-01-01 "+c[0], c[1]))
				}
				return s
			}
			res, err := newTestColocator(15*time.Minute, 2).Match(context.Background(), []Subject{
				build("+91a", tt.a),
				build("+91b", tt.b),
			})
			if err != nil {
				t.Fatalf("Match: %v", err)
			}
			if len(res.Events) != tt.events {
				t.Fatalf("expected %d events, got %+v", tt.events, res.Events)
			}
			wantRepeated := tt.encounters >= 2
			for _, ev := range res.Events {
				if ev.Repeated != wantRepeated {
					t.Errorf("event on tower %s: repeated=%v, want %v", ev.TowerKey, ev.Repeated, wantRepeated)
				}
			}
			switch {
			case wantRepeated && (len(res.RepeatedSets) != 1 || res.RepeatedSets[0].Events != tt.encounters):
				t.Errorf("expected one repeated set with %d encounters, got %+v", tt.encounters, res.RepeatedSets)
			case !wantRepeated && len(res.RepeatedSets) != 0:
				t.Errorf("expected no repeated sets, got %+v", res.RepeatedSets)
			}

			findings := findingsFor(Score(ScoreInput{CoLocation: res}, DefaultConfig(), DefaultRules()), "repeated_colocation")
			if (len(findings) == 1) != wantRepeated {
				t.Errorf("repeated co-location findings = %+v, want repeated=%v", findings, wantRepeated)
			}
		})
	}
}

func TestColocation_LACDistinguishesCells(t *testing.T) {
	a := atTower(call("+91a", "+91x", ts(t, "2024-01-01 10:00"), 1), "5", 100)
	b := atTower(call("+91b", "+91x", ts(t, "2024-01-01 10:00"), 1), "5", 200)
	res, err := newTestColocator(15*time.Minute, 2).Match(context.Background(), []Subject{
		{Number: "+91a", Records: []cdr.Record{a}},
		{Number: "+91b", Records: []cdr.Record{b}},
	})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(res.Events) != 0 {
		t.Errorf("same cell ID in different LACs is not the same tower: %+v", res.Events)
	}
}

func TestColocation_Idempotent(t *testing.T) {
	subjects := []Subject{
		{Number: "+91a", Records: []cdr.Record{
			towerCall(t, "+91a", "2024-01-01 10:00", "5"),
			towerCall(t, "+91a", "2024-01-01 10:40", "6"),
		}},
		{Number: "+91b", Records: []cdr.Record{
			towerCall(t, "+91b", "2024-01-01 10:03", "5"),
			towerCall(t, "+91b", "2024-01-01 10:41", "6"),
		}},
		{Number: "+91c", Records: []cdr.Record{
			towerCall(t, "+91c", "2024-01-01 10:44", "6"),
		}},
	}
	c := newTestColocator(15*time.Minute, 2)

	first, err := c.Match(context.Background(), subjects)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	second, err := c.Match(context.Background(), subjects)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("results differ between runs:\n%+v\n%+v", first, second)
	}

	reversed := []Subject{subjects[2], subjects[1], subjects[0]}
	third, err := c.Match(context.Background(), reversed)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if !reflect.DeepEqual(first.Events, third.Events) {
		t.Errorf("subject order changed the events:\n%+v\n%+v", first.Events, third.Events)
	}
}

func TestColocation_InsufficientSubjects(t *testing.T) {
	c := newTestColocator(15*time.Minute, 2)
	tests := []struct {
		name     string
		subjects []Subject
	}{
		{"none", nil},
		{"one", []Subject{{Number: "+91a"}}},
		{"same subject twice", []Subject{{SessionID: "s1", Number: "+91a"}, {SessionID: "s2", Number: "+91a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Match(context.Background(), tt.subjects)
			if !errors.Is(err, cdr.ErrInsufficientSubjects) {
				t.Errorf("expected ErrInsufficientSubjects, got %v", err)
			}
		})
	}
}

func TestFloorDiv(t *testing.T) {
	tests := []struct{ a, b, want int64 }{
		{0, 900, 0},
		{899, 900, 0},
		{900, 900, 1},
		{-1, 900, -1},
		{-900, 900, -1},
		{-901, 900, -2},
	}
	for _, tt := range tests {
		if got := floorDiv(tt.a, tt.b); got != tt.want {
			t.Errorf("floorDiv(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
