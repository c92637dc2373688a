// Package pipeline ties the readers, the format detector, the normalizer
// and the session store together: one uploaded file becomes one stored
// session.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lvonguyen/cdrforge/internal/analytics"
	"github.com/lvonguyen/cdrforge/internal/cdr"
	"github.com/lvonguyen/cdrforge/internal/ingestion"
	"github.com/lvonguyen/cdrforge/internal/normalization"
	"github.com/lvonguyen/cdrforge/internal/observability"
	"github.com/lvonguyen/cdrforge/internal/schema"
)

// Store is the subset of the session store the pipeline uses.
type Store interface {
	CreateSession(ctx context.Context, s cdr.Session, records []cdr.Record, report *cdr.NormalizationReport) error
	Session(ctx context.Context, id string) (*cdr.Session, error)
	Records(ctx context.Context, ids ...string) ([]cdr.Record, error)
	Count(ctx context.Context) (int, error)
}

// Options configures a Pipeline.
type Options struct {
	Reader     ingestion.Options
	SampleRows int
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// Upload is one file to ingest.
type Upload struct {
	Name string
	Body io.Reader

	// SubjectNumber overrides the subject; otherwise a banner hint or the
	// most frequent party number is used.
	SubjectNumber string
	Label         string

	// Mapping bypasses detection with field -> header assignments.
	// BaseProfile names the profile whose layouts the mapping inherits.
	Mapping     map[schema.Field]string
	BaseProfile string
}

// Result is the outcome of an ingest.
type Result struct {
	Session   cdr.Session              `json:"session"`
	Report    *cdr.NormalizationReport `json:"report"`
	Detection *normalization.Detection `json:"detection"`
}

// Pipeline runs uploads end to end.
type Pipeline struct {
	detector   *normalization.Detector
	normalizer *normalization.Normalizer
	store      Store
	opts       Options
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a pipeline. The reader's header test defaults to the
// detector's LooksLikeHeader so banner lines are skipped.
func New(detector *normalization.Detector, normalizer *normalization.Normalizer, store Store, opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Reader.IsHeader == nil {
		opts.Reader.IsHeader = detector.LooksLikeHeader
	}
	if opts.SampleRows <= 0 {
		opts.SampleRows = 5
	}
	return &Pipeline{
		detector:   detector,
		normalizer: normalizer,
		store:      store,
		opts:       opts,
		logger:     opts.Logger,
		now:        time.Now,
	}
}

// Detector returns the pipeline's detector.
func (p *Pipeline) Detector() *normalization.Detector {
	return p.detector
}

// Read decodes a file into a table.
func (p *Pipeline) Read(name string, r io.Reader) (*ingestion.Table, error) {
	tbl, err := ingestion.Read(name, r, p.opts.Reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return tbl, nil
}

// Detect reads a file and identifies its format without storing anything.
func (p *Pipeline) Detect(name string, r io.Reader) (*normalization.Detection, *ingestion.Table, error) {
	tbl, err := p.Read(name, r)
	if err != nil {
		return nil, nil, err
	}
	det, err := p.detector.Detect(tbl.Headers, tbl.Sample(p.opts.SampleRows))
	if err != nil {
		return nil, tbl, err
	}
	return det, tbl, nil
}

// Ingest reads, detects, normalizes and stores one upload under a new
// session ID.
func (p *Pipeline) Ingest(ctx context.Context, u Upload) (*Result, error) {
	tbl, err := p.Read(u.Name, u.Body)
	if err != nil {
		return nil, err
	}

	var det *normalization.Detection
	if len(u.Mapping) > 0 {
		det, err = p.detector.DetectWithMapping(tbl.Headers, u.Mapping, u.BaseProfile)
	} else {
		det, err = p.detector.Detect(tbl.Headers, tbl.Sample(p.opts.SampleRows))
	}
	if err != nil {
		return nil, err
	}

	subject := u.SubjectNumber
	if subject == "" {
		subject = tbl.SubjectHint
	}

	sessionID := uuid.NewString()
	records, report, err := p.normalizer.Normalize(normalization.Batch{
		SessionID:     sessionID,
		SubjectNumber: subject,
		Detection:     det,
		Rows:          tbl.Rows,
	})
	if err != nil {
		return nil, err
	}

	sess := cdr.Session{
		ID:            sessionID,
		SubjectNumber: report.SubjectNumber,
		Label:         u.Label,
		Vendor:        det.Vendor,
		Confidence:    det.Confidence,
		SourceFile:    u.Name,
		CreatedAt:     p.now().UTC(),
		RowsTotal:     report.RowsTotal,
		RowsAccepted:  report.RowsAccepted,
		RowsRejected:  report.RowsRejected(),
	}
	if err := p.store.CreateSession(ctx, sess, records, report); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	p.refreshGauge(ctx)

	p.logger.Info("Session ingested",
		zap.String("session_id", sess.ID),
		zap.String("file", u.Name),
		zap.String("vendor", sess.Vendor),
		zap.Int("banner_rows", tbl.BannerRows),
	)
	return &Result{Session: sess, Report: report, Detection: det}, nil
}

// Subjects loads sessions as analysis subjects, in argument order.
func (p *Pipeline) Subjects(ctx context.Context, ids ...string) ([]analytics.Subject, error) {
	out := make([]analytics.Subject, 0, len(ids))
	for _, id := range ids {
		sess, err := p.store.Session(ctx, id)
		if err != nil {
			return nil, err
		}
		records, err := p.store.Records(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, analytics.Subject{
			SessionID: sess.ID,
			Number:    sess.SubjectNumber,
			Label:     sess.Label,
			Records:   records,
		})
	}
	return out, nil
}

// refreshGauge updates the stored-sessions gauge.
func (p *Pipeline) refreshGauge(ctx context.Context) {
	if p.opts.Metrics == nil {
		return
	}
	if n, err := p.store.Count(ctx); err == nil {
		p.opts.Metrics.SetSessions(n)
	}
}
