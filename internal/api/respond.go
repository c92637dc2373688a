package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/lvonguyen/cdrforge/internal/cdr"
)

// errorResponse is the body of every error reply.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`

	// Set for unknown formats so the client can retry with a mapping.
	Headers   []string `json:"headers,omitempty"`
	BestMatch string   `json:"best_match,omitempty"`
	BestScore float64  `json:"best_score,omitempty"`
	Profiles  []string `json:"profiles,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: msg})
}

// writeError maps domain errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var ufe *cdr.UnknownFormatError
	var maxBytes *http.MaxBytesError

	switch {
	case errors.As(err, &ufe):
		resp := errorResponse{
			Error:     "unknown_format",
			Message:   err.Error(),
			Headers:   ufe.Headers,
			BestMatch: ufe.BestMatch,
			BestScore: ufe.BestScore,
		}
		if s.deps.Pipeline != nil {
			resp.Profiles = s.deps.Pipeline.Detector().Profiles().Names()
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	case errors.Is(err, cdr.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session_not_found", Message: err.Error()})
	case errors.Is(err, cdr.ErrUnknownAnalysis):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown_analysis", Message: err.Error()})
	case errors.Is(err, cdr.ErrSessionExists):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "session_exists", Message: err.Error()})
	case errors.Is(err, cdr.ErrInsufficientSubjects):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "insufficient_subjects", Message: err.Error()})
	case errors.Is(err, cdr.ErrUnsupportedFile):
		writeJSON(w, http.StatusUnsupportedMediaType, errorResponse{Error: "unsupported_file", Message: err.Error()})
	case errors.As(err, &maxBytes):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "upload_too_large", Message: err.Error()})
	default:
		s.logger.Error("Request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal_error", Message: "internal server error"})
	}
}
