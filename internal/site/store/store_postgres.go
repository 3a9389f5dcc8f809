package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"webdir/internal/platform/postgres"
	"webdir/internal/site/models"
	id "webdir/pkg/domain"
	"webdir/pkg/platform/sentinel"
	"webdir/pkg/platform/tx"
)

// PostgresStore persists sites in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const siteColumns = `id, url, domain, title, description, submitter_id, status, failure_count, last_checked_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, site *models.Site) error {
	query := `
		INSERT INTO sites (` + siteColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(site.ID),
		site.URL,
		site.Domain,
		site.Title,
		site.Description,
		uuid.UUID(site.SubmitterID),
		string(site.Status),
		site.FailureCount,
		site.LastCheckedAt,
		site.CreatedAt,
		site.UpdatedAt,
	)
	return postgres.Translate(err, "create site")
}

func (s *PostgresStore) FindByID(ctx context.Context, siteID id.SiteID) (*models.Site, error) {
	return s.findOne(ctx, "find site", `SELECT `+siteColumns+` FROM sites WHERE id = $1`, uuid.UUID(siteID))
}

// FindByIDForUpdate locks the site row until the surrounding transaction ends.
func (s *PostgresStore) FindByIDForUpdate(ctx context.Context, siteID id.SiteID) (*models.Site, error) {
	return s.findOne(ctx, "find site for update", `SELECT `+siteColumns+` FROM sites WHERE id = $1 FOR UPDATE`, uuid.UUID(siteID))
}

func (s *PostgresStore) FindByURL(ctx context.Context, url string) (*models.Site, error) {
	return s.findOne(ctx, "find site by url", `SELECT `+siteColumns+` FROM sites WHERE url = $1`, url)
}

func (s *PostgresStore) findOne(ctx context.Context, op, query string, arg any) (*models.Site, error) {
	site, err := scanSite(tx.Exec(ctx, s.db).QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, postgres.Translate(err, op)
	}
	return site, nil
}

func (s *PostgresStore) Update(ctx context.Context, site *models.Site) error {
	query := `
		UPDATE sites SET
			title = $2,
			description = $3,
			status = $4,
			failure_count = $5,
			last_checked_at = $6,
			updated_at = $7
		WHERE id = $1
	`
	result, err := tx.Exec(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(site.ID),
		site.Title,
		site.Description,
		string(site.Status),
		site.FailureCount,
		site.LastCheckedAt,
		site.UpdatedAt,
	)
	if err != nil {
		return postgres.Translate(err, "update site")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update site rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.Status, limit int) ([]*models.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE status = $1 ORDER BY created_at LIMIT NULLIF($2, 0)`
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, query, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list sites by status: %w", err)
	}
	defer rows.Close()

	var out []*models.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("list sites by status: %w", err)
		}
		out = append(out, site)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSite(row rowScanner) (*models.Site, error) {
	var (
		site        models.Site
		rawID       uuid.UUID
		submitterID uuid.UUID
		status      string
		lastChecked sql.NullTime
	)
	if err := row.Scan(
		&rawID,
		&site.URL,
		&site.Domain,
		&site.Title,
		&site.Description,
		&submitterID,
		&status,
		&site.FailureCount,
		&lastChecked,
		&site.CreatedAt,
		&site.UpdatedAt,
	); err != nil {
		return nil, err
	}
	site.ID = id.SiteID(rawID)
	site.SubmitterID = id.UserID(submitterID)
	site.Status = models.Status(status)
	if lastChecked.Valid {
		t := lastChecked.Time
		site.LastCheckedAt = &t
	}
	return &site, nil
}
