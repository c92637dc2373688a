package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lvonguyen/cdrforge/internal/pipeline"
	"github.com/lvonguyen/cdrforge/internal/schema"
)

// uploadForm parses a multipart upload and returns the file part.
func (s *Server) uploadForm(w http.ResponseWriter, r *http.Request) (*pipeline.Upload, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, nil, err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, fmt.Errorf("multipart field %q is required", "file")
	}
	u := &pipeline.Upload{
		Name:          header.Filename,
		Body:          file,
		SubjectNumber: r.FormValue("subject"),
		Label:         r.FormValue("label"),
		BaseProfile:   r.FormValue("base_profile"),
	}
	if raw := r.FormValue("mapping"); raw != "" {
		mapping, err := schema.ParseMapping(raw)
		if err != nil {
			file.Close()
			return nil, nil, err
		}
		u.Mapping = mapping
	}
	return u, func() { file.Close() }, nil
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	u, closeFn, err := s.uploadForm(w, r)
	if err != nil {
		s.writeUploadError(w, err)
		return
	}
	defer closeFn()

	det, tbl, err := s.deps.Pipeline.Detect(u.Name, u.Body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"detection":    det,
		"headers":      tbl.Headers,
		"rows":         len(tbl.Rows),
		"banner_rows":  tbl.BannerRows,
		"subject_hint": tbl.SubjectHint,
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	u, closeFn, err := s.uploadForm(w, r)
	if err != nil {
		s.writeUploadError(w, err)
		return
	}
	defer closeFn()

	res, err := s.deps.Pipeline.Ingest(r.Context(), *u)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// writeUploadError separates oversized bodies from malformed forms.
func (s *Server) writeUploadError(w http.ResponseWriter, err error) {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		s.writeError(w, err)
		return
	}
	writeBadRequest(w, err.Error())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.deps.Store.Sessions(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "count": len(sessions)})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Store.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.deps.Store.Report(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Store.DeleteSession(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	if n, err := s.deps.Store.Count(r.Context()); err == nil {
		s.deps.Metrics.SetSessions(n)
	}
	s.logger.Info("Session deleted", zap.String("session_id", id))
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}
