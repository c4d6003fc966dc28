package storage

import (
	"context"
	"database/sql"
	"fmt"

	"inspector-report/internal/model"
)

// Store is the SQLite audit store. One row per generated report; event
// content is never written.
type Store struct {
	db *sql.DB
}

// Open opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InsertBatch writes records in one transaction. A record whose ID is
// already stored is skipped, so a re-delivered batch is harmless.
func (s *Store) InsertBatch(ctx context.Context, records []*model.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO report_requests
			(request_id, requested_at, client_ip_hash, event_count, source, product)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.RequestedAt, nullIfEmpty(r.ClientIPHash), r.EventCount, nullIfEmpty(r.Source), r.Product,
		); err != nil {
			return fmt.Errorf("inserting report request %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	return nil
}

// CountRequests returns the number of stored report requests, optionally
// for one product ("" counts all).
func (s *Store) CountRequests(ctx context.Context, product string) (int64, error) {
	var n int64
	var err error
	if product == "" {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM report_requests").Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM report_requests WHERE product = ?", product).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("counting report requests: %w", err)
	}
	return n, nil
}

// RecentRequests returns the newest stored records, newest first.
func (s *Store) RecentRequests(ctx context.Context, limit int) ([]model.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT request_id, requested_at, COALESCE(client_ip_hash, ''), event_count, COALESCE(source, ''), product
		FROM report_requests
		ORDER BY requested_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying report requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.AuditRecord
	for rows.Next() {
		var r model.AuditRecord
		if err := rows.Scan(&r.ID, &r.RequestedAt, &r.ClientIPHash, &r.EventCount, &r.Source, &r.Product); err != nil {
			return nil, fmt.Errorf("scanning report request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
