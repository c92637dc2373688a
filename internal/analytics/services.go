package analytics

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/lvonguyen/cdrforge/internal/cdr"
)

// maxServiceSnippet bounds the SMS text kept per detection, in runes.
const maxServiceSnippet = 100

// ServicePattern names a service and the markers that identify it in SMS
// text or sender IDs. Markers containing a '.' match as substrings
// ("wa.me"); others must match a whole word, so "ig" does not hit "sign".
type ServicePattern struct {
	Service string
	Markers []string
}

// DefaultServicePatterns is the built-in service list. The first matching
// service wins, so more specific services come first.
var DefaultServicePatterns = []ServicePattern{
	{"WhatsApp", []string{"whatsapp", "wa.me", "whatsapp.com"}},
	{"Uber", []string{"uber", "uber.com"}},
	{"Swiggy", []string{"swiggy", "swiggy.com"}},
	{"Zomato", []string{"zomato", "zomato.com"}},
	{"Paytm", []string{"paytm", "paytm.com"}},
	{"Bank", []string{"bank", "otp", "pin", "verification", "transaction"}},
	{"PayPal", []string{"paypal"}},
	{"Amazon", []string{"amazon", "aws"}},
	{"Google", []string{"google", "gmail", "goog"}},
	{"Facebook", []string{"facebook", "fb.com", "messenger"}},
	{"Telegram", []string{"telegram"}},
	{"Instagram", []string{"instagram", "ig"}},
	{"Twitter", []string{"twitter", "x.com"}},
}

// ServiceHit is one SMS attributed to a service.
type ServiceHit struct {
	At      time.Time `json:"at"`
	Number  string    `json:"number"`
	Content string    `json:"content,omitempty"`
}

// ServiceStat groups the hits of one service.
type ServiceStat struct {
	Service string       `json:"service"`
	Count   int          `json:"count"`
	Hits    []ServiceHit `json:"hits"`
}

// ServiceReport lists the services a subject's SMS traffic points to.
type ServiceReport struct {
	SessionID  string         `json:"session_id"`
	Subject    string         `json:"subject"`
	SMSRecords int            `json:"sms_records"`
	Services   []*ServiceStat `json:"services"`
	Unmatched  int            `json:"unmatched"`
}

// SMSServices attributes each SMS record to the first service whose marker
// appears in its content or counterpart number. Services are ordered by
// hit count, then name; hits keep time order.
func SMSServices(s Subject, patterns []ServicePattern) *ServiceReport {
	if patterns == nil {
		patterns = DefaultServicePatterns
	}
	rep := &ServiceReport{SessionID: s.SessionID, Subject: s.Number, Services: []*ServiceStat{}}
	stats := make(map[string]*ServiceStat)

	for _, r := range byTime(s.Records) {
		if r.EventType != cdr.EventSMS {
			continue
		}
		rep.SMSRecords++
		number := r.Counterpart(s.Number)
		service := matchService(strings.ToLower(r.SMSContent+" "+number), patterns)
		if service == "" {
			rep.Unmatched++
			continue
		}
		st, ok := stats[service]
		if !ok {
			st = &ServiceStat{Service: service}
			stats[service] = st
			rep.Services = append(rep.Services, st)
		}
		st.Count++
		st.Hits = append(st.Hits, ServiceHit{At: r.StartTime, Number: number, Content: snippet(r.SMSContent)})
	}

	sort.SliceStable(rep.Services, func(i, j int) bool {
		a, b := rep.Services[i], rep.Services[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Service < b.Service
	})
	return rep
}

func matchService(text string, patterns []ServicePattern) string {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = true
	}
	for _, p := range patterns {
		for _, m := range p.Markers {
			if strings.Contains(m, ".") {
				if strings.Contains(text, m) {
					return p.Service
				}
			} else if words[m] {
				return p.Service
			}
		}
	}
	return ""
}

func snippet(s string) string {
	r := []rune(s)
	if len(r) <= maxServiceSnippet {
		return s
	}
	return string(r[:maxServiceSnippet])
}
