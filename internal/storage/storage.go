// Package storage persists sessions, their canonical records and
// normalization reports in SQLite. It also holds an imported cell table
// that the coordinate lookup can consult.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/lvonguyen/cdrforge/internal/cdr"
)

// Config holds the store configuration.
type Config struct {
	// Path is the SQLite database file; ":memory:" keeps everything in
	// process.
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Path: "data/cdrforge.db", BusyTimeout: 5 * time.Second}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	subject_number TEXT NOT NULL DEFAULT '',
	label          TEXT NOT NULL DEFAULT '',
	vendor         TEXT NOT NULL,
	score          REAL NOT NULL DEFAULT 0,
	confidence     REAL NOT NULL DEFAULT 0,
	source_file    TEXT NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL,
	rows_total     INTEGER NOT NULL DEFAULT 0,
	rows_accepted  INTEGER NOT NULL DEFAULT 0,
	rows_rejected  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS records (
	record_id           TEXT PRIMARY KEY,
	session_id          TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	row_index           INTEGER NOT NULL,
	calling_number      TEXT NOT NULL,
	called_number       TEXT NOT NULL,
	direction           TEXT NOT NULL,
	start_time          INTEGER NOT NULL,
	duration_seconds    REAL NOT NULL,
	event_type          TEXT NOT NULL,
	status              TEXT NOT NULL,
	imei                TEXT NOT NULL DEFAULT '',
	imsi                TEXT NOT NULL DEFAULT '',
	cell_tower_id       TEXT NOT NULL DEFAULT '',
	lac                 INTEGER NOT NULL DEFAULT 0,
	mnc                 INTEGER NOT NULL DEFAULT 0,
	mcc                 INTEGER NOT NULL DEFAULT 0,
	lat                 REAL,
	lon                 REAL,
	sms_content         TEXT NOT NULL DEFAULT '',
	cost_units          REAL NOT NULL DEFAULT 0,
	data_volume_mb      REAL NOT NULL DEFAULT 0,
	called_country_code TEXT NOT NULL DEFAULT '',
	source_vendor       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_records_session ON records(session_id, row_index);

CREATE TABLE IF NOT EXISTS rejections (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	row_index  INTEGER NOT NULL,
	reason     TEXT NOT NULL,
	field      TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_rejections_session ON rejections(session_id, row_index);

CREATE TABLE IF NOT EXISTS cells (
	mcc     INTEGER NOT NULL,
	mnc     INTEGER NOT NULL,
	lac     INTEGER NOT NULL,
	cell_id TEXT NOT NULL,
	lat     REAL NOT NULL,
	lon     REAL NOT NULL,
	address TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (mcc, mnc, lac, cell_id)
);
CREATE INDEX IF NOT EXISTS idx_cells_cell ON cells(cell_id);
`

// Store is the SQLite-backed session store.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the database and applies the schema.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = DefaultConfig().BusyTimeout
	}

	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=%d", cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.Path == ":memory:" {
		// Each connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("Session store opened", zap.String("path", cfg.Path))
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateSession stores a session with its records and rejections in one
// transaction. An existing session ID fails with cdr.ErrSessionExists.
func (s *Store) CreateSession(ctx context.Context, sess cdr.Session, records []cdr.Record, report *cdr.NormalizationReport) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var score float64
	var rejected []cdr.RejectedRow
	if report != nil {
		score = report.Score
		rejected = report.Rejected
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, subject_number, label, vendor, score, confidence, source_file,
			created_at, rows_total, rows_accepted, rows_rejected)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.SubjectNumber, sess.Label, sess.Vendor, score, sess.Confidence, sess.SourceFile,
		sess.CreatedAt.UnixNano(), sess.RowsTotal, sess.RowsAccepted, sess.RowsRejected,
	)
	if err != nil {
		if isPrimaryKeyViolation(err) {
			return fmt.Errorf("%w: %s", cdr.ErrSessionExists, sess.ID)
		}
		return fmt.Errorf("insert session: %w", err)
	}

	recStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (record_id, session_id, row_index, calling_number, called_number, direction,
			start_time, duration_seconds, event_type, status, imei, imsi, cell_tower_id, lac, mnc, mcc,
			lat, lon, sms_content, cost_units, data_volume_mb, called_country_code, source_vendor)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare records: %w", err)
	}
	defer recStmt.Close()

	for i := range records {
		r := &records[i]
		_, err = recStmt.ExecContext(ctx,
			r.RecordID, sess.ID, r.RawRowIndex, r.CallingNumber, r.CalledNumber, string(r.Direction),
			r.StartTime.UnixNano(), r.DurationSeconds, string(r.EventType), string(r.Status),
			r.IMEI, r.IMSI, r.CellTowerID, r.LAC, r.MNC, r.MCC,
			nullFloat(r.Lat), nullFloat(r.Lon), r.SMSContent, r.CostUnits, r.DataVolumeMB,
			r.CalledCountryCode, r.SourceVendor,
		)
		if err != nil {
			return fmt.Errorf("insert record %d: %w", r.RawRowIndex, err)
		}
	}

	rejStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO rejections (session_id, row_index, reason, field, detail) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare rejections: %w", err)
	}
	defer rejStmt.Close()

	for _, rej := range rejected {
		if _, err = rejStmt.ExecContext(ctx, sess.ID, rej.RowIndex, rej.Reason, rej.Field, rej.Detail); err != nil {
			return fmt.Errorf("insert rejection %d: %w", rej.RowIndex, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	s.logger.Debug("Session stored",
		zap.String("session_id", sess.ID),
		zap.Int("records", len(records)),
		zap.Int("rejections", len(rejected)),
	)
	return nil
}

const sessionColumns = `id, subject_number, label, vendor, confidence, source_file, created_at,
	rows_total, rows_accepted, rows_rejected`

func scanSession(row interface{ Scan(...any) error }) (cdr.Session, error) {
	var sess cdr.Session
	var created int64
	err := row.Scan(&sess.ID, &sess.SubjectNumber, &sess.Label, &sess.Vendor, &sess.Confidence,
		&sess.SourceFile, &created, &sess.RowsTotal, &sess.RowsAccepted, &sess.RowsRejected)
	sess.CreatedAt = time.Unix(0, created).UTC()
	return sess, err
}

// Session returns one session.
func (s *Store) Session(ctx context.Context, id string) (*cdr.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", cdr.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return &sess, nil
}

// Sessions lists all sessions, newest first.
func (s *Store) Sessions(ctx context.Context) ([]cdr.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := []cdr.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Count returns the number of stored sessions.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// Records returns the records of the given sessions, session by session in
// argument order, each in source row order. An unknown ID fails with
// cdr.ErrSessionNotFound.
func (s *Store) Records(ctx context.Context, ids ...string) ([]cdr.Record, error) {
	var out []cdr.Record
	for _, id := range ids {
		if _, err := s.Session(ctx, id); err != nil {
			return nil, err
		}
		recs, err := s.sessionRecords(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func (s *Store) sessionRecords(ctx context.Context, id string) ([]cdr.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, session_id, row_index, calling_number, called_number, direction, start_time,
			duration_seconds, event_type, status, imei, imsi, cell_tower_id, lac, mnc, mcc, lat, lon,
			sms_content, cost_units, data_volume_mb, called_country_code, source_vendor
		FROM records WHERE session_id = ? ORDER BY row_index`, id)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []cdr.Record
	for rows.Next() {
		var (
			r                        cdr.Record
			direction, event, status string
			start                    int64
			lat, lon                 sql.NullFloat64
		)
		if err := rows.Scan(&r.RecordID, &r.SessionID, &r.RawRowIndex, &r.CallingNumber, &r.CalledNumber,
			&direction, &start, &r.DurationSeconds, &event, &status, &r.IMEI, &r.IMSI, &r.CellTowerID,
			&r.LAC, &r.MNC, &r.MCC, &lat, &lon, &r.SMSContent, &r.CostUnits, &r.DataVolumeMB,
			&r.CalledCountryCode, &r.SourceVendor); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Direction = cdr.Direction(direction)
		r.EventType = cdr.EventType(event)
		r.Status = cdr.Status(status)
		r.StartTime = time.Unix(0, start).UTC()
		if lat.Valid && lon.Valid {
			r.Lat, r.Lon = &lat.Float64, &lon.Float64
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Report rebuilds the normalization report of a session.
func (s *Store) Report(ctx context.Context, id string) (*cdr.NormalizationReport, error) {
	var rep cdr.NormalizationReport
	err := s.db.QueryRowContext(ctx, `
		SELECT id, vendor, score, confidence, subject_number, rows_total, rows_accepted
		FROM sessions WHERE id = ?`, id,
	).Scan(&rep.SessionID, &rep.Vendor, &rep.Score, &rep.Confidence, &rep.SubjectNumber, &rep.RowsTotal, &rep.RowsAccepted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", cdr.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query report: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT row_index, reason, field, detail FROM rejections WHERE session_id = ? ORDER BY row_index`, id)
	if err != nil {
		return nil, fmt.Errorf("query rejections: %w", err)
	}
	defer rows.Close()

	rep.Rejected = []cdr.RejectedRow{}
	for rows.Next() {
		var rej cdr.RejectedRow
		if err := rows.Scan(&rej.RowIndex, &rej.Reason, &rej.Field, &rej.Detail); err != nil {
			return nil, fmt.Errorf("scan rejection: %w", err)
		}
		rep.Rejected = append(rep.Rejected, rej)
	}
	return &rep, rows.Err()
}

// DeleteSession removes a session with its records and rejections.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", cdr.ErrSessionNotFound, id)
	}
	return nil
}

func isPrimaryKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
