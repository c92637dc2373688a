package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lvonguyen/cdrforge/internal/cdr"
	"github.com/lvonguyen/cdrforge/internal/celllookup"
)

// UpsertCells inserts or replaces cell table rows and returns the number
// written. Cells without a cell ID are skipped.
func (s *Store) UpsertCells(ctx context.Context, cells []celllookup.Cell) (n int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cells (mcc, mnc, lac, cell_id, lat, lon, address) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (mcc, mnc, lac, cell_id) DO UPDATE SET
			lat = excluded.lat, lon = excluded.lon, address = excluded.address`)
	if err != nil {
		return 0, fmt.Errorf("prepare cells: %w", err)
	}
	defer stmt.Close()

	for _, c := range cells {
		id := strings.ToUpper(strings.TrimSpace(c.Key.CellID))
		if id == "" {
			continue
		}
		if _, err = stmt.ExecContext(ctx, c.Key.MCC, c.Key.MNC, c.Key.LAC, id,
			c.Coordinate.Lat, c.Coordinate.Lon, c.Coordinate.Address); err != nil {
			return 0, fmt.Errorf("upsert cell %s: %w", c.Key, err)
		}
		n++
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit cells: %w", err)
	}
	return n, nil
}

// CellCount returns the number of rows in the cell table.
func (s *Store) CellCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cells`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cells: %w", err)
	}
	return n, nil
}

// Name identifies the store as a lookup source.
func (s *Store) Name() string { return "store" }

// Locate looks a cell up in the imported cell table: the full key first,
// then LAC and cell ID, then the cell ID alone.
func (s *Store) Locate(ctx context.Context, key cdr.CellKey) (cdr.Coordinate, bool, error) {
	id := strings.ToUpper(strings.TrimSpace(key.CellID))
	if id == "" {
		return cdr.Coordinate{}, false, nil
	}

	queries := []struct {
		where string
		args  []any
	}{
		{"mcc = ? AND mnc = ? AND lac = ? AND cell_id = ?", []any{key.MCC, key.MNC, key.LAC, id}},
		{"lac = ? AND cell_id = ?", []any{key.LAC, id}},
		{"cell_id = ?", []any{id}},
	}
	for i, q := range queries {
		if i == 1 && key.LAC == 0 {
			continue
		}
		var c cdr.Coordinate
		err := s.db.QueryRowContext(ctx,
			`SELECT lat, lon, address FROM cells WHERE `+q.where+` ORDER BY mcc, mnc, lac LIMIT 1`, q.args...,
		).Scan(&c.Lat, &c.Lon, &c.Address)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return cdr.Coordinate{}, false, fmt.Errorf("query cell: %w", err)
		}
		c.Source = s.Name()
		return c, true, nil
	}
	return cdr.Coordinate{}, false, nil
}

var _ celllookup.Source = (*Store)(nil)
