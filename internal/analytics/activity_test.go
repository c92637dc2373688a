package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/lvonguyen/cdrforge/internal/cdr"
)

func sms(from, to string, at time.Time, text string) cdr.Record {
	return cdr.Record{
		CallingNumber: from,
		CalledNumber:  to,
		Direction:     cdr.DirectionIncoming,
		StartTime:     at,
		EventType:     cdr.EventSMS,
		Status:        cdr.StatusCompleted,
		SMSContent:    text,
	}
}

func activityRecords(t *testing.T) []cdr.Record {
	t.Helper()
	in := call("+919800000002", "+919800000001", ts(t, "2024-03-02 09:15"), 60)
	in.Direction = cdr.DirectionIncoming
	return []cdr.Record{
		call("+919800000001", "+919800000002", ts(t, "2024-03-02 22:10"), 30),
		call("+919800000001", "+919800000003", ts(t, "2024-03-01 22:40"), 30),
		call("+919800000001", "+919800000003", ts(t, "2024-03-01 22:55"), 30),
		in,
		sms("VM-HDFCBK", "+919800000001", ts(t, "2024-03-01 09:05"), "Your OTP is 4411"),
	}
}

// =============================================================================
// Activity Heatmap Tests
// =============================================================================

func TestHeatmap_Filters(t *testing.T) {
	s := Subject{SessionID: "s1", Number: "+919800000001", Records: activityRecords(t)}

	tests := []struct {
		name     string
		filter   ActivityFilter
		total    int
		dates    []string
		peakHour int
	}{
		{"all", ActivityAll, 5, []string{"2024-03-01", "2024-03-02"}, 22},
		{"outgoing", ActivityOutgoing, 3, []string{"2024-03-01", "2024-03-02"}, 22},
		{"incoming voice and sms", ActivityIncoming, 2, []string{"2024-03-01", "2024-03-02"}, 9},
		{"sms only", ActivitySMS, 1, []string{"2024-03-01"}, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hm := Heatmap(s, time.UTC, tt.filter)
			if hm.Total != tt.total {
				t.Errorf("expected total %d, got %d", tt.total, hm.Total)
			}
			if len(hm.Dates) != len(tt.dates) || len(hm.Counts) != len(tt.dates) {
				t.Fatalf("expected dates %v, got %v with %d rows", tt.dates, hm.Dates, len(hm.Counts))
			}
			for i, d := range tt.dates {
				if hm.Dates[i] != d {
					t.Errorf("date %d: expected %s, got %s", i, d, hm.Dates[i])
				}
			}
			if hm.PeakHour != tt.peakHour {
				t.Errorf("expected peak hour %d, got %d", tt.peakHour, hm.PeakHour)
			}
			if hm.Filter != tt.filter || hm.Subject != s.Number {
				t.Errorf("unexpected header %+v", hm)
			}
		})
	}
}

func TestHeatmap_GridCells(t *testing.T) {
	hm := Heatmap(Subject{Records: activityRecords(t)}, time.UTC, ActivityAll)

	if hm.Counts[0][22] != 2 || hm.Counts[0][9] != 1 {
		t.Errorf("2024-03-01 expected 2 at 22h and 1 at 09h, got %v", hm.Counts[0])
	}
	if hm.Counts[1][22] != 1 || hm.Counts[1][9] != 1 {
		t.Errorf("2024-03-02 expected 1 at 22h and 1 at 09h, got %v", hm.Counts[1])
	}
	sum := 0
	for _, row := range hm.Counts {
		for _, n := range row {
			sum += n
		}
	}
	if sum != hm.Total {
		t.Errorf("grid sums to %d, total is %d", sum, hm.Total)
	}
}

func TestHeatmap_LocationShiftsDays(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	hm := Heatmap(Subject{Records: activityRecords(t)}, ist, ActivityOutgoing)

	// 22:40 UTC on the 1st is 04:10 IST on the 2nd.
	want := []string{"2024-03-02", "2024-03-03"}
	if len(hm.Dates) != 2 || hm.Dates[0] != want[0] || hm.Dates[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, hm.Dates)
	}
	if hm.Counts[0][4] != 2 {
		t.Errorf("expected two calls at 04h IST, got %v", hm.Counts[0])
	}
}

func TestHeatmap_NoMatches(t *testing.T) {
	hm := Heatmap(Subject{Records: activityRecords(t)[:1]}, nil, ActivitySMS)
	if hm.Total != 0 || len(hm.Dates) != 0 || hm.PeakHour != -1 {
		t.Errorf("expected empty heatmap with peak -1, got %+v", hm)
	}
	if hm.Dates == nil || hm.Counts == nil {
		t.Error("empty heatmap should serialize empty arrays")
	}
}

func TestParseActivityFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    ActivityFilter
		wantErr bool
	}{
		{"", ActivityAll, false},
		{"all", ActivityAll, false},
		{" Incoming ", ActivityIncoming, false},
		{"OUTGOING", ActivityOutgoing, false},
		{"sms", ActivitySMS, false},
		{"voice", "", true},
	}
	for _, tt := range tests {
		got, err := ParseActivityFilter(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseActivityFilter(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseActivityFilter(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEngine_ActivityFilterFromRequest(t *testing.T) {
	e := NewEngine(DefaultConfig(), Options{})
	req := Request{
		Subjects: []Subject{{SessionID: "s1", Number: "+919800000001", Records: activityRecords(t)}},
		Activity: ActivitySMS,
	}

	results, err := e.Run(context.Background(), req, AnalysisActivity)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	maps, ok := results[AnalysisActivity].([]*ActivityHeatmap)
	if !ok || len(maps) != 1 {
		t.Fatalf("expected one heatmap, got %#v", results[AnalysisActivity])
	}
	if maps[0].Filter != ActivitySMS || maps[0].Total != 1 {
		t.Errorf("expected the sms filter to apply, got %+v", maps[0])
	}

	req.Activity = "voice"
	if _, err := e.Run(context.Background(), req, AnalysisActivity); err == nil {
		t.Error("expected an error for an unknown activity filter")
	}
}
