package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lvonguyen/cdrforge/internal/analytics"
	"github.com/lvonguyen/cdrforge/internal/export"
)

// AnalyticsRequest is the body of POST /api/v1/analytics/{name}.
type AnalyticsRequest struct {
	SessionIDs    []string `json:"session_ids"`
	From          string   `json:"from,omitempty"`
	To            string   `json:"to,omitempty"`
	WindowMinutes int      `json:"window_minutes,omitempty"`
	// Activity filters the activity heatmap: all, incoming, outgoing or sms.
	Activity string `json:"activity,omitempty"`
}

// AnalyticsResponse wraps one analysis result.
type AnalyticsResponse struct {
	Analysis   string   `json:"analysis"`
	SessionIDs []string `json:"session_ids"`
	Result     any      `json:"result"`
}

var timeParamLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// parseTimeParam accepts RFC 3339 or a bare date (UTC). Empty is the zero
// time.
func parseTimeParam(name, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeParamLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%s: unrecognized time %q", name, v)
}

func (ar AnalyticsRequest) bounds() (from, to time.Time, window time.Duration, err error) {
	if from, err = parseTimeParam("from", ar.From); err != nil {
		return
	}
	if to, err = parseTimeParam("to", ar.To); err != nil {
		return
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		err = fmt.Errorf("to must be after from")
		return
	}
	if ar.WindowMinutes < 0 {
		err = fmt.Errorf("window_minutes must not be negative")
		return
	}
	window = time.Duration(ar.WindowMinutes) * time.Minute
	return
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	reg := s.deps.Engine.Registry()
	type entry struct {
		Name         string `json:"name"`
		MultiSubject bool   `json:"multi_subject"`
	}
	var out []entry
	for _, name := range reg.Names() {
		a, _ := reg.Get(name)
		out = append(out, entry{Name: name, MultiSubject: a.MultiSubject})
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyses": out, "config": s.deps.Engine.Config()})
}

func (s *Server) handleSessionAnalytics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := AnalyticsRequest{
		SessionIDs: []string{chi.URLParam(r, "id")},
		From:       q.Get("from"),
		To:         q.Get("to"),
		Activity:   q.Get("activity"),
	}
	if v := q.Get("window_minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "window_minutes must be an integer")
			return
		}
		req.WindowMinutes = n
	}
	s.runAnalysis(w, r, chi.URLParam(r, "name"), req)
}

func (s *Server) handleRunAnalytics(w http.ResponseWriter, r *http.Request) {
	var req AnalyticsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if len(req.SessionIDs) == 0 {
		writeBadRequest(w, "session_ids is required")
		return
	}
	s.runAnalysis(w, r, chi.URLParam(r, "name"), req)
}

func (s *Server) runAnalysis(w http.ResponseWriter, r *http.Request, name string, req AnalyticsRequest) {
	if _, err := s.deps.Engine.Registry().Get(name); err != nil {
		s.writeError(w, err)
		return
	}
	from, to, window, err := req.bounds()
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	activity, err := analytics.ParseActivityFilter(req.Activity)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	subjects, err := s.deps.Pipeline.Subjects(r.Context(), req.SessionIDs...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	results, err := s.deps.Engine.Run(r.Context(), analytics.Request{
		Subjects: subjects,
		From:     from,
		To:       to,
		Window:   window,
		Activity: activity,
	}, name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AnalyticsResponse{Analysis: name, SessionIDs: req.SessionIDs, Result: results[name]})
}

// handleExport runs the requested (default: every single-subject) analyses
// over one session and returns them as an XLSX workbook.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	sess, err := s.deps.Store.Session(ctx, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	report, err := s.deps.Store.Report(ctx, id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	reg := s.deps.Engine.Registry()
	var names []string
	if v := r.URL.Query().Get("analyses"); v != "" {
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	} else {
		for _, n := range reg.Names() {
			if a, _ := reg.Get(n); !a.MultiSubject {
				names = append(names, n)
			}
		}
	}

	subjects, err := s.deps.Pipeline.Subjects(ctx, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	results, err := s.deps.Engine.Run(ctx, analytics.Request{Subjects: subjects}, names...)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, sess, report, results); err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="cdr-%s.xlsx"`, id))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
