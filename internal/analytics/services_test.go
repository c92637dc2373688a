package analytics

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/lvonguyen/cdrforge/internal/cdr"
)

// =============================================================================
// SMS Service Detection Tests
// =============================================================================

func TestSMSServices_Attribution(t *testing.T) {
	const subject = "+919800000001"
	long := strings.Repeat("x", 150) + " google"
	s := Subject{SessionID: "s1", Number: subject, Records: []cdr.Record{
		sms("VM-HDFCBK", subject, ts(t, "2024-03-01 09:00"), "Your OTP is 4411"),
		sms("AD-NOTICE", subject, ts(t, "2024-03-01 09:10"), "Please sign here"),
		sms("+919800000007", subject, ts(t, "2024-03-01 09:20"), "join me on wa.me/123"),
		sms("VM-UBERIN", subject, ts(t, "2024-03-01 09:30"), "Your Uber OTP is 1234"),
		sms("AX-SWIGGY", subject, ts(t, "2024-03-01 09:40"), "order delivered"),
		sms("VM-HDFCBK", subject, ts(t, "2024-03-01 08:00"), "Txn alert: transaction of Rs 500"),
		sms("VK-NOTIFY", subject, ts(t, "2024-03-01 09:50"), long),
		call(subject, "+919800000002", ts(t, "2024-03-01 10:00"), 60),
	}}

	rep := SMSServices(s, nil)

	if rep.SMSRecords != 7 {
		t.Errorf("expected 7 SMS records, got %d", rep.SMSRecords)
	}
	if rep.Unmatched != 1 {
		t.Errorf("expected one unmatched SMS, got %d", rep.Unmatched)
	}

	want := []struct {
		service string
		count   int
	}{
		{"Bank", 2},
		{"Google", 1},
		{"Swiggy", 1},
		{"Uber", 1},
		{"WhatsApp", 1},
	}
	if len(rep.Services) != len(want) {
		t.Fatalf("expected %d services, got %d", len(want), len(rep.Services))
	}
	for i, w := range want {
		got := rep.Services[i]
		if got.Service != w.service || got.Count != w.count {
			t.Errorf("rank %d: expected %s x%d, got %s x%d", i, w.service, w.count, got.Service, got.Count)
		}
	}

	bank := rep.Services[0]
	if !bank.Hits[0].At.Before(bank.Hits[1].At) {
		t.Error("hits should be in time order")
	}
	if bank.Hits[0].Number != "VM-HDFCBK" {
		t.Errorf("expected the sender as hit number, got %q", bank.Hits[0].Number)
	}
	if n := utf8.RuneCountInString(rep.Services[1].Hits[0].Content); n != maxServiceSnippet {
		t.Errorf("expected content cut to %d runes, got %d", maxServiceSnippet, n)
	}
}

func TestMatchService(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"whole word", "your otp is 1234", "Bank"},
		{"marker inside a word", "please sign here", ""},
		{"short marker as word", "follow us on ig today", "Instagram"},
		{"dotted marker as substring", "chat at https://wa.me/9198", "WhatsApp"},
		{"first service wins", "uber otp 5521", "Uber"},
		{"sender id", "delivered ax-swiggy", "Swiggy"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchService(tt.text, DefaultServicePatterns); got != tt.want {
				t.Errorf("matchService(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestSMSServices_CustomPatterns(t *testing.T) {
	const subject = "+919800000001"
	s := Subject{Number: subject, Records: []cdr.Record{
		sms("AD-ACMEPAY", subject, ts(t, "2024-03-01 09:00"), "Your OTP is 4411"),
	}}
	rep := SMSServices(s, []ServicePattern{{Service: "AcmePay", Markers: []string{"acmepay"}}})
	if len(rep.Services) != 1 || rep.Services[0].Service != "AcmePay" {
		t.Errorf("expected only the custom service, got %+v", rep.Services)
	}
}
