package cdr

import (
	"errors"
	"fmt"
	"testing"
)

// =============================================================================
// Number Matching Tests
// =============================================================================

func TestSameNumber(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"9812345678", "9812345678", true},
		{"+919812345678", "9812345678", true},
		{"919812345678", "+919812345678", true},
		{"9812345678", "9812345679", false},
		{"+1234567", "1234567", true},
		{"100", "1100", false},
		{"", "9812345678", false},
		{"+", "", false},
	}
	for _, tt := range tests {
		if got := SameNumber(tt.a, tt.b); got != tt.want {
			t.Errorf("SameNumber(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCounterpart(t *testing.T) {
	out := Record{CallingNumber: "+919812345678", CalledNumber: "9000000001", Direction: DirectionOutgoing}
	in := Record{CallingNumber: "9000000002", CalledNumber: "9812345678", Direction: DirectionIncoming}

	if got := out.Counterpart("9812345678"); got != "9000000001" {
		t.Errorf("outgoing: got %q", got)
	}
	if got := in.Counterpart("9812345678"); got != "9000000002" {
		t.Errorf("incoming: got %q", got)
	}
	if got := in.Counterpart(""); got != "9000000002" {
		t.Errorf("no subject, incoming direction: got %q", got)
	}
	if got := out.Counterpart("5555555555"); got != "9000000001" {
		t.Errorf("unrelated subject, outgoing direction: got %q", got)
	}
}

// =============================================================================
// Cell Identity Tests
// =============================================================================

func TestTowerKey(t *testing.T) {
	tests := []struct {
		rec  Record
		want string
	}{
		{Record{CellTowerID: "1001", LAC: 5}, "5-1001"},
		{Record{CellTowerID: "1001"}, "1001"},
		{Record{LAC: 5}, ""},
	}
	for _, tt := range tests {
		if got := tt.rec.TowerKey(); got != tt.want {
			t.Errorf("TowerKey(%+v) = %q, want %q", tt.rec, got, tt.want)
		}
	}
}

func TestCellKeyOf(t *testing.T) {
	r := Record{MCC: 404, MNC: 45, LAC: 1234, CellTowerID: "5678"}
	if got := CellKeyOf(&r).String(); got != "404:45:1234:5678" {
		t.Errorf("unexpected key %s", got)
	}
}

func TestHasCoordinates(t *testing.T) {
	lat, lon := 28.6, 77.2
	if (&Record{Lat: &lat}).HasCoordinates() {
		t.Error("latitude alone is not a position")
	}
	if !(&Record{Lat: &lat, Lon: &lon}).HasCoordinates() {
		t.Error("expected coordinates")
	}
}

// =============================================================================
// Session & Error Tests
// =============================================================================

func TestSessionSubjectID(t *testing.T) {
	if got := (Session{ID: "s1", SubjectNumber: "9812345678"}).SubjectID(); got != "9812345678" {
		t.Errorf("got %q", got)
	}
	if got := (Session{ID: "s1"}).SubjectID(); got != "s1" {
		t.Errorf("got %q", got)
	}
}

func TestReportRejections(t *testing.T) {
	rep := NormalizationReport{Rejected: []RejectedRow{
		{RowIndex: 1, Reason: ReasonMissingRequiredField},
		{RowIndex: 4, Reason: ReasonInvalidDuration},
		{RowIndex: 9, Reason: ReasonMissingRequiredField},
	}}
	if rep.RowsRejected() != 3 {
		t.Errorf("expected 3 rejected rows, got %d", rep.RowsRejected())
	}
	byReason := rep.RejectionsByReason()
	if byReason[ReasonMissingRequiredField] != 2 || byReason[ReasonInvalidDuration] != 1 {
		t.Errorf("unexpected counts %v", byReason)
	}
}

func TestErrorsUnwrap(t *testing.T) {
	var err error = fmt.Errorf("detect: %w", &UnknownFormatError{Headers: []string{"a"}, BestMatch: "huawei", BestScore: 0.25})
	if !errors.Is(err, ErrUnknownFormat) {
		t.Error("UnknownFormatError should match ErrUnknownFormat")
	}
	var ufe *UnknownFormatError
	if !errors.As(err, &ufe) || ufe.BestMatch != "huawei" {
		t.Errorf("errors.As failed: %v", err)
	}

	rowErr := &RowError{Row: 3, Reason: ReasonUnparseableTimestamp, Field: "start_time", Detail: "bad"}
	if !errors.Is(rowErr, ErrRowRejected) {
		t.Error("RowError should match ErrRowRejected")
	}
	if rej := rowErr.Rejection(); rej.RowIndex != 3 || rej.Detail != "bad" {
		t.Errorf("unexpected rejection %+v", rej)
	}
}
