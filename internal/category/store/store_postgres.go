package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"webdir/internal/category/models"
	"webdir/internal/platform/postgres"
	id "webdir/pkg/domain"
	"webdir/pkg/platform/sentinel"
	"webdir/pkg/platform/tx"
)

// PostgresStore persists categories in PostgreSQL. Queries join the caller's
// transaction when one is active in the context.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const categoryColumns = `id, parent_id, name, slug, display_order, active, link_count, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, c *models.Category) error {
	query := `
		INSERT INTO categories (` + categoryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(c.ID),
		nullableID(c.ParentID),
		c.Name,
		c.Slug,
		c.DisplayOrder,
		c.Active,
		c.LinkCount,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if postgres.IsForeignKeyViolation(err) {
		return fmt.Errorf("create category: parent: %w", sentinel.ErrNotFound)
	}
	return postgres.Translate(err, "create category")
}

func (s *PostgresStore) FindByID(ctx context.Context, categoryID id.CategoryID) (*models.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1`
	c, err := scanCategory(tx.Exec(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(categoryID)))
	if err != nil {
		return nil, postgres.Translate(err, "find category")
	}
	return c, nil
}

func (s *PostgresStore) FindBySlug(ctx context.Context, slug string) (*models.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE slug = $1`
	c, err := scanCategory(tx.Exec(ctx, s.db).QueryRowContext(ctx, query, slug))
	if err != nil {
		return nil, postgres.Translate(err, "find category by slug")
	}
	return c, nil
}

func (s *PostgresStore) ListChildren(ctx context.Context, parentID id.CategoryID) ([]*models.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE parent_id = $1 ORDER BY display_order, name`
	return s.list(ctx, "list children", query, uuid.UUID(parentID))
}

func (s *PostgresStore) ListRoots(ctx context.Context) ([]*models.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE parent_id IS NULL ORDER BY display_order, name`
	return s.list(ctx, "list roots", query)
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*models.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE active ORDER BY display_order, name`
	return s.list(ctx, "list active categories", query)
}

func (s *PostgresStore) list(ctx context.Context, op, query string, args ...any) ([]*models.Category, error) {
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []*models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// Delete removes a leaf category. The NOT EXISTS guard and the foreign key both
// reject deleting a node that still has children.
func (s *PostgresStore) Delete(ctx context.Context, categoryID id.CategoryID) error {
	query := `
		DELETE FROM categories
		WHERE id = $1
		  AND NOT EXISTS (SELECT 1 FROM categories child WHERE child.parent_id = $1)
	`
	exec := tx.Exec(ctx, s.db)
	result, err := exec.ExecContext(ctx, query, uuid.UUID(categoryID))
	if err != nil {
		return postgres.Translate(err, "delete category")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete category rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}
	var exists bool
	if err := exec.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM categories WHERE id = $1)`, uuid.UUID(categoryID)).Scan(&exists); err != nil {
		return fmt.Errorf("delete category existence check: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrHasChildren
}

func (s *PostgresStore) SetActive(ctx context.Context, categoryID id.CategoryID, active bool, now time.Time) error {
	query := `UPDATE categories SET active = $2, updated_at = $3 WHERE id = $1`
	return s.updateOne(ctx, "set category active", query, uuid.UUID(categoryID), active, now)
}

func (s *PostgresStore) AddLinkCount(ctx context.Context, categoryID id.CategoryID, delta int, now time.Time) error {
	query := `UPDATE categories SET link_count = GREATEST(link_count + $2, 0), updated_at = $3 WHERE id = $1`
	return s.updateOne(ctx, "add link count", query, uuid.UUID(categoryID), delta, now)
}

func (s *PostgresStore) updateOne(ctx context.Context, op, query string, args ...any) error {
	result, err := tx.Exec(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return postgres.Translate(err, op)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner) (*models.Category, error) {
	var (
		c        models.Category
		rawID    uuid.UUID
		parentID uuid.NullUUID
	)
	if err := row.Scan(
		&rawID,
		&parentID,
		&c.Name,
		&c.Slug,
		&c.DisplayOrder,
		&c.Active,
		&c.LinkCount,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.ID = id.CategoryID(rawID)
	if parentID.Valid {
		p := id.CategoryID(parentID.UUID)
		c.ParentID = &p
	}
	return &c, nil
}

func nullableID(categoryID *id.CategoryID) uuid.NullUUID {
	if categoryID == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*categoryID), Valid: true}
}
