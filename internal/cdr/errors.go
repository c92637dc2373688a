package cdr

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors.
var (
	ErrUnknownFormat        = errors.New("unknown CDR format")
	ErrRowRejected          = errors.New("row rejected")
	ErrInsufficientSubjects = errors.New("at least two subjects are required")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionExists        = errors.New("session already exists")
	ErrUnknownAnalysis      = errors.New("unknown analysis")
	ErrUnsupportedFile      = errors.New("unsupported file type")
)

// UnknownFormatError carries the headers that could not be matched so the
// caller can retry with a manual field mapping.
type UnknownFormatError struct {
	Headers   []string
	BestMatch string
	BestScore float64
}

func (e *UnknownFormatError) Error() string {
	return fmt.Sprintf("%s: best match %q scored %.2f (headers: %s)",
		ErrUnknownFormat, e.BestMatch, e.BestScore, strings.Join(e.Headers, ", "))
}

func (e *UnknownFormatError) Unwrap() error { return ErrUnknownFormat }

// RowError is a per-row normalization failure.
type RowError struct {
	Row    int
	Reason string
	Field  string
	Detail string
}

func (e *RowError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("row %d: %s (%s): %s", e.Row, e.Reason, e.Field, e.Detail)
	}
	return fmt.Sprintf("row %d: %s (%s)", e.Row, e.Reason, e.Field)
}

func (e *RowError) Unwrap() error { return ErrRowRejected }

// Rejection converts the error into a report entry.
func (e *RowError) Rejection() RejectedRow {
	return RejectedRow{RowIndex: e.Row, Reason: e.Reason, Field: e.Field, Detail: e.Detail}
}
