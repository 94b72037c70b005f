// internal/infra/database/postgres_announcement_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"nse_alert_bot/internal/domain/announcement"

	"github.com/lib/pq"
)

// Custom errors specific to the announcement repository. The ingest pipeline
// branches on these: a duplicate is skipped silently, an unavailable store
// aborts the remainder of the current cycle.
var ErrDuplicateAnnouncement = fmt.Errorf("announcement with this (symbol, title) already exists")
var ErrStoreUnavailable = fmt.Errorf("announcement store unavailable")
var ErrAnnouncementNotFound = fmt.Errorf("announcement not found")

// uniqueViolation is the PostgreSQL error code raised when an insert breaks
// the announcements_symbol_title_key constraint.
const uniqueViolation = "23505"

type PostgresAnnouncementRepository struct {
	db *sql.DB
}

func NewPostgresAnnouncementRepository(db *sql.DB) *PostgresAnnouncementRepository {
	return &PostgresAnnouncementRepository{db: db}
}

func (r *PostgresAnnouncementRepository) Exists(ctx context.Context, symbol, title string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM announcements WHERE symbol = $1 AND title = $2)`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, symbol, title).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking announcement existence: %w", ErrStoreUnavailable)
	}
	return exists, nil
}

func (r *PostgresAnnouncementRepository) Insert(ctx context.Context, rec *announcement.Record) error {
	query := `INSERT INTO announcements (symbol, company_name, title, description, link, announced_at)
               VALUES ($1, $2, $3, $4, $5, $6)
               RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		rec.Symbol, rec.CompanyName, rec.Title, rec.Description, rec.Link, rec.AnnouncedAt,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateAnnouncement
		}
		// Anything else at this point is a connectivity or server-side
		// failure; the record was not stored.
		return fmt.Errorf("error inserting announcement for %s: %v: %w", rec.Symbol, err, ErrStoreUnavailable)
	}
	return nil
}

func (r *PostgresAnnouncementRepository) Latest(ctx context.Context) (*announcement.Record, error) {
	query := `SELECT id, symbol, company_name, title, description, link, announced_at, created_at
               FROM announcements ORDER BY id DESC LIMIT 1`
	rec := &announcement.Record{}
	err := r.db.QueryRowContext(ctx, query).Scan(
		&rec.ID, &rec.Symbol, &rec.CompanyName, &rec.Title, &rec.Description, &rec.Link, &rec.AnnouncedAt, &rec.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAnnouncementNotFound
		}
		return nil, fmt.Errorf("error getting latest announcement: %w", err)
	}
	return rec, nil
}

func (r *PostgresAnnouncementRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM announcements`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting announcements: %w", err)
	}
	return count, nil
}
