package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lvonguyen/cdrforge/internal/cdr"
	"github.com/lvonguyen/cdrforge/internal/celllookup"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: ":memory:"}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func fptr(v float64) *float64 { return &v }

func testSession(id string, created time.Time) (cdr.Session, []cdr.Record, *cdr.NormalizationReport) {
	sess := cdr.Session{
		ID:            id,
		SubjectNumber: "+919812345678",
		Label:         "target " + id,
		Vendor:        "airtel",
		Confidence:    0.9,
		SourceFile:    id + ".csv",
		CreatedAt:     created,
		RowsTotal:     3,
		RowsAccepted:  2,
		RowsRejected:  1,
	}
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	records := []cdr.Record{
		{
			RecordID: id + "-0", SessionID: id, RawRowIndex: 0,
			CallingNumber: "+919812345678", CalledNumber: "+919876543210",
			Direction: cdr.DirectionOutgoing, StartTime: start, DurationSeconds: 61,
			EventType: cdr.EventVoice, Status: cdr.StatusCompleted,
			IMEI: "490154203237518", CellTowerID: "ABCD", LAC: 1201, MCC: 404, MNC: 10,
			Lat: fptr(28.61), Lon: fptr(77.2), CalledCountryCode: "+91", SourceVendor: "airtel",
		},
		{
			RecordID: id + "-2", SessionID: id, RawRowIndex: 2,
			CallingNumber: "+919876543210", CalledNumber: "+919812345678",
			Direction: cdr.DirectionIncoming, StartTime: start.Add(time.Hour),
			EventType: cdr.EventSMS, Status: cdr.StatusCompleted,
			SMSContent: "hello", SourceVendor: "airtel",
		},
	}
	report := &cdr.NormalizationReport{
		SessionID:     id,
		Vendor:        "airtel",
		Score:         1,
		Confidence:    0.9,
		SubjectNumber: sess.SubjectNumber,
		RowsTotal:     3,
		RowsAccepted:  2,
		Rejected: []cdr.RejectedRow{
			{RowIndex: 1, Reason: cdr.ReasonUnparseableTimestamp, Field: "start_time", Detail: "no layout"},
		},
	}
	return sess, records, report
}

// =============================================================================
// Session Tests
// =============================================================================

func TestCreateSession_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)
	sess, records, report := testSession("s1", created)

	if err := s.CreateSession(ctx, sess, records, report); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := s.Session(ctx, "s1")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if !got.CreatedAt.Equal(sess.CreatedAt) {
		t.Errorf("created_at mismatch: got %v, want %v", got.CreatedAt, sess.CreatedAt)
	}
	got.CreatedAt = sess.CreatedAt
	if *got != sess {
		t.Errorf("session mismatch:\n got %+v\nwant %+v", *got, sess)
	}

	recs, err := s.Records(ctx, "s1")
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	first := recs[0]
	if first.RecordID != "s1-0" || first.RawRowIndex != 0 || first.IMEI != "490154203237518" {
		t.Errorf("unexpected first record %+v", first)
	}
	if !first.StartTime.Equal(records[0].StartTime) || first.StartTime.Location() != time.UTC {
		t.Errorf("start time not preserved in UTC: %v", first.StartTime)
	}
	if first.Lat == nil || *first.Lat != 28.61 || first.Lon == nil || *first.Lon != 77.2 {
		t.Errorf("coordinates not preserved: %v %v", first.Lat, first.Lon)
	}
	if first.Direction != cdr.DirectionOutgoing || first.LAC != 1201 || first.MCC != 404 {
		t.Errorf("fields not preserved: %+v", first)
	}
	second := recs[1]
	if second.Lat != nil || second.Lon != nil {
		t.Error("missing coordinates should stay nil")
	}
	if second.EventType != cdr.EventSMS || second.SMSContent != "hello" {
		t.Errorf("unexpected second record %+v", second)
	}

	rep, err := s.Report(ctx, "s1")
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if rep.Score != 1 || rep.Vendor != "airtel" || rep.RowsAccepted != 2 || rep.RowsRejected() != 1 {
		t.Errorf("unexpected report %+v", rep)
	}
	if rep.Rejected[0] != report.Rejected[0] {
		t.Errorf("rejection mismatch: %+v", rep.Rejected[0])
	}
}

func TestCreateSession_Duplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess, records, report := testSession("dup", time.Now().UTC())

	if err := s.CreateSession(ctx, sess, records, report); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	err := s.CreateSession(ctx, sess, nil, nil)
	if !errors.Is(err, cdr.ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}

	recs, err := s.Records(ctx, "dup")
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("failed insert should not touch stored records, got %d", len(recs))
	}
}

func TestCreateSession_RollbackOnRecordFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess, records, report := testSession("bad", time.Now().UTC())
	records[1].RecordID = records[0].RecordID

	if err := s.CreateSession(ctx, sess, records, report); err == nil {
		t.Fatal("expected duplicate record ID to fail")
	}
	if _, err := s.Session(ctx, "bad"); !errors.Is(err, cdr.ErrSessionNotFound) {
		t.Errorf("session should have been rolled back, got %v", err)
	}
}

func TestSessions_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "new", "mid"} {
		offsets := []time.Duration{0, 2 * time.Hour, time.Hour}
		sess, _, _ := testSession(id, base.Add(offsets[i]))
		if err := s.CreateSession(ctx, sess, nil, nil); err != nil {
			t.Fatalf("CreateSession(%s): %v", id, err)
		}
	}

	list, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	want := []string{"new", "mid", "old"}
	if len(list) != len(want) {
		t.Fatalf("expected %d sessions, got %d", len(want), len(list))
	}
	for i, id := range want {
		if list[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, list[i].ID)
		}
	}

	n, err := s.Count(ctx)
	if err != nil || n != 3 {
		t.Errorf("Count = %d, %v", n, err)
	}
}

func TestRecords_MultipleSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		sess, records, report := testSession(id, time.Now().UTC())
		if err := s.CreateSession(ctx, sess, records, report); err != nil {
			t.Fatalf("CreateSession(%s): %v", id, err)
		}
	}

	recs, err := s.Records(ctx, "b", "a")
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(recs) != 4 || recs[0].SessionID != "b" || recs[3].SessionID != "a" {
		t.Errorf("records should follow argument order, got %d records", len(recs))
	}

	if _, err := s.Records(ctx, "a", "missing"); !errors.Is(err, cdr.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestDeleteSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess, records, report := testSession("gone", time.Now().UTC())
	if err := s.CreateSession(ctx, sess, records, report); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := s.DeleteSession(ctx, "gone"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := s.Report(ctx, "gone"); !errors.Is(err, cdr.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after delete, got %v", err)
	}
	if err := s.DeleteSession(ctx, "gone"); !errors.Is(err, cdr.ErrSessionNotFound) {
		t.Errorf("second delete should fail with ErrSessionNotFound, got %v", err)
	}

	// Reusing the ID after delete is allowed and must not see old rows.
	if err := s.CreateSession(ctx, sess, nil, nil); err != nil {
		t.Fatalf("recreate: %v", err)
	}
	recs, err := s.Records(ctx, "gone")
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("records should cascade on delete, got %d", len(recs))
	}
}

func TestOpen_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cdr.db")
	ctx := context.Background()

	s, err := Open(Config{Path: path}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sess, records, report := testSession("persist", time.Now().UTC())
	if err := s.CreateSession(ctx, sess, records, report); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	s.Close()

	s, err = Open(Config{Path: path}, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	recs, err := s.Records(ctx, "persist")
	if err != nil || len(recs) != 2 {
		t.Errorf("expected 2 persisted records, got %d (%v)", len(recs), err)
	}
}

// =============================================================================
// Cell Table Tests
// =============================================================================

func TestCells_UpsertAndLocate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.UpsertCells(ctx, []celllookup.Cell{
		{Key: cdr.CellKey{MCC: 404, MNC: 10, LAC: 1201, CellID: "abcd"}, Coordinate: cdr.Coordinate{Lat: 28.6, Lon: 77.2, Address: "Connaught Place"}},
		{Key: cdr.CellKey{MCC: 404, MNC: 45, LAC: 77, CellID: "9001"}, Coordinate: cdr.Coordinate{Lat: 12.9, Lon: 77.6}},
		{Key: cdr.CellKey{MCC: 404, MNC: 45, LAC: 77}},
	})
	if err != nil {
		t.Fatalf("UpsertCells: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 cells written, got %d", n)
	}

	tests := []struct {
		name  string
		key   cdr.CellKey
		found bool
		lat   float64
	}{
		{"full key", cdr.CellKey{MCC: 404, MNC: 10, LAC: 1201, CellID: "ABCD"}, true, 28.6},
		{"lac and cell", cdr.CellKey{LAC: 77, CellID: "9001"}, true, 12.9},
		{"cell only", cdr.CellKey{CellID: "abcd"}, true, 28.6},
		{"unknown", cdr.CellKey{MCC: 404, MNC: 10, LAC: 1, CellID: "ffff"}, false, 0},
		{"empty", cdr.CellKey{}, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, found, err := s.Locate(ctx, tt.key)
			if err != nil {
				t.Fatalf("Locate: %v", err)
			}
			if found != tt.found {
				t.Fatalf("found = %v, want %v", found, tt.found)
			}
			if found && (c.Lat != tt.lat || c.Source != "store") {
				t.Errorf("unexpected coordinate %+v", c)
			}
		})
	}

	// Upsert replaces the coordinate of an existing cell.
	if _, err := s.UpsertCells(ctx, []celllookup.Cell{
		{Key: cdr.CellKey{MCC: 404, MNC: 10, LAC: 1201, CellID: "ABCD"}, Coordinate: cdr.Coordinate{Lat: 1, Lon: 2}},
	}); err != nil {
		t.Fatalf("UpsertCells: %v", err)
	}
	c, _, _ := s.Locate(ctx, cdr.CellKey{MCC: 404, MNC: 10, LAC: 1201, CellID: "ABCD"})
	if c.Lat != 1 || c.Address != "" {
		t.Errorf("expected replaced coordinate, got %+v", c)
	}
	if count, _ := s.CellCount(ctx); count != 2 {
		t.Errorf("expected 2 cells, got %d", count)
	}
}

func TestStore_AsResolverSource(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.UpsertCells(ctx, []celllookup.Cell{
		{Key: cdr.CellKey{MCC: 404, MNC: 10, LAC: 5, CellID: "77"}, Coordinate: cdr.Coordinate{Lat: 10, Lon: 20}},
	}); err != nil {
		t.Fatalf("UpsertCells: %v", err)
	}

	r := celllookup.NewResolver(celllookup.DefaultConfig(), nil, nil, nil, s)
	c, ok := r.Resolve(ctx, cdr.CellKey{MCC: 404, MNC: 10, LAC: 5, CellID: "77"})
	if !ok || c.Lat != 10 || c.Source != "store" {
		t.Errorf("expected store hit, got %+v (%v)", c, ok)
	}
}
