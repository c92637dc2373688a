package cdr

import "time"

// Rejection reasons recorded in the normalization report.
const (
	ReasonMissingRequiredField = "missing_required_field"
	ReasonUnparseableTimestamp = "unparseable_timestamp"
	ReasonInvalidDuration      = "invalid_duration"
)

// Session is one uploaded batch of records.
type Session struct {
	ID            string    `json:"id"`
	SubjectNumber string    `json:"subject_number"`
	Label         string    `json:"label,omitempty"`
	Vendor        string    `json:"vendor"`
	Confidence    float64   `json:"confidence"`
	SourceFile    string    `json:"source_file,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	RowsTotal     int       `json:"rows_total"`
	RowsAccepted  int       `json:"rows_accepted"`
	RowsRejected  int       `json:"rows_rejected"`
}

// SubjectID returns the identifier analyzers use for the session's subject:
// the subject number when known, the session ID otherwise.
func (s Session) SubjectID() string {
	if s.SubjectNumber != "" {
		return s.SubjectNumber
	}
	return s.ID
}

// RejectedRow describes one source row excluded from the canonical set.
type RejectedRow struct {
	RowIndex int    `json:"row_index"`
	Reason   string `json:"reason"`
	Field    string `json:"field,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// NormalizationReport is the per-upload side channel of the normalizer.
type NormalizationReport struct {
	SessionID     string        `json:"session_id"`
	Vendor        string        `json:"vendor"`
	Score         float64       `json:"score"`
	Confidence    float64       `json:"confidence"`
	SubjectNumber string        `json:"subject_number,omitempty"`
	RowsTotal     int           `json:"rows_total"`
	RowsAccepted  int           `json:"rows_accepted"`
	Rejected      []RejectedRow `json:"rejected"`
}

// RowsRejected returns the number of rejected rows.
func (r *NormalizationReport) RowsRejected() int {
	return len(r.Rejected)
}

// RejectionsByReason counts rejected rows per reason.
func (r *NormalizationReport) RejectionsByReason() map[string]int {
	out := make(map[string]int)
	for _, rej := range r.Rejected {
		out[rej.Reason]++
	}
	return out
}
