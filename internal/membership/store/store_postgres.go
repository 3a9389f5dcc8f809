package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"webdir/internal/membership/models"
	"webdir/internal/platform/postgres"
	id "webdir/pkg/domain"
	"webdir/pkg/platform/sentinel"
	"webdir/pkg/platform/tx"
)

// PostgresStore persists memberships. Moderation, tally and ranking writes
// each update their own columns so concurrent writers never clobber each other.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const membershipColumns = `id, site_id, category_id, submitter_id, status, upvotes, downvotes, score, rank, decided_at, decided_by, ranked_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, m *models.Membership) error {
	query := `
		INSERT INTO memberships (` + membershipColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(m.ID),
		uuid.UUID(m.SiteID),
		uuid.UUID(m.CategoryID),
		uuid.UUID(m.SubmitterID),
		string(m.Status),
		m.Upvotes,
		m.Downvotes,
		m.Score,
		m.Rank,
		m.DecidedAt,
		nullableUser(m.DecidedBy),
		m.RankedAt,
		m.CreatedAt,
		m.UpdatedAt,
	)
	return postgres.Translate(err, "create membership")
}

func (s *PostgresStore) FindByID(ctx context.Context, membershipID id.MembershipID) (*models.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE id = $1`
	return s.findOne(ctx, "find membership", query, uuid.UUID(membershipID))
}

// FindByIDForUpdate locks the membership row, serializing votes on it until
// the surrounding transaction ends.
func (s *PostgresStore) FindByIDForUpdate(ctx context.Context, membershipID id.MembershipID) (*models.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE id = $1 FOR UPDATE`
	return s.findOne(ctx, "find membership for update", query, uuid.UUID(membershipID))
}

func (s *PostgresStore) FindBySiteAndCategory(ctx context.Context, siteID id.SiteID, categoryID id.CategoryID) (*models.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE site_id = $1 AND category_id = $2`
	return s.findOne(ctx, "find membership by pair", query, uuid.UUID(siteID), uuid.UUID(categoryID))
}

func (s *PostgresStore) findOne(ctx context.Context, op, query string, args ...any) (*models.Membership, error) {
	m, err := scanMembership(tx.Exec(ctx, s.db).QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, postgres.Translate(err, op)
	}
	return m, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, m *models.Membership) error {
	query := `
		UPDATE memberships
		SET status = $2, decided_at = $3, decided_by = $4, updated_at = $5
		WHERE id = $1
	`
	return s.updateOne(ctx, "update membership status", query,
		uuid.UUID(m.ID), string(m.Status), m.DecidedAt, nullableUser(m.DecidedBy), m.UpdatedAt)
}

func (s *PostgresStore) UpdateTally(ctx context.Context, membershipID id.MembershipID, upvotes, downvotes int, now time.Time) error {
	query := `UPDATE memberships SET upvotes = $2, downvotes = $3, updated_at = $4 WHERE id = $1`
	return s.updateOne(ctx, "update membership tally", query, uuid.UUID(membershipID), upvotes, downvotes, now)
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

// ApplyRanking bulk-writes score and rank with one UPDATE over unnested arrays,
// then clears stale ranks of memberships that left approved. Callers run it in
// the category's transaction.
func (s *PostgresStore) ApplyRanking(ctx context.Context, categoryID id.CategoryID, updates []models.RankUpdate, rankedAt time.Time) error {
	ids := make([]string, len(updates))
	scores := make([]float64, len(updates))
	ranks := make([]int64, len(updates))
	for i, u := range updates {
		ids[i] = u.MembershipID.String()
		scores[i] = u.Score
		ranks[i] = int64(u.Rank)
	}

	exec := tx.Exec(ctx, s.db)
	query := `
		UPDATE memberships AS m
		SET score = u.score, rank = u.rank, ranked_at = $5
		FROM unnest($2::uuid[], $3::float8[], $4::int8[]) AS u(id, score, rank)
		WHERE m.id = u.id
		  AND m.category_id = $1
		  AND m.status = 'approved'
	`
	if _, err := exec.ExecContext(ctx, query,
		uuid.UUID(categoryID), pq.Array(ids), pq.Array(scores), pq.Array(ranks), rankedAt,
	); err != nil {
		return fmt.Errorf("apply ranking: %w", err)
	}

	clearQuery := `UPDATE memberships SET rank = NULL WHERE category_id = $1 AND status <> 'approved' AND rank IS NOT NULL`
	if _, err := exec.ExecContext(ctx, clearQuery, uuid.UUID(categoryID)); err != nil {
		return fmt.Errorf("clear stale ranks: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListApprovedByCategory(ctx context.Context, categoryID id.CategoryID) ([]*models.Membership, error) {
	query := `
		SELECT ` + membershipColumns + `
		FROM memberships
		WHERE category_id = $1 AND status = 'approved'
		ORDER BY score DESC, created_at ASC, id ASC
	`
	return s.list(ctx, "list approved memberships", query, uuid.UUID(categoryID))
}

func (s *PostgresStore) ListRanked(ctx context.Context, categoryID id.CategoryID, offset, limit int) ([]*models.Membership, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM memberships WHERE category_id = $1 AND status = 'approved'`
	if err := tx.Exec(ctx, s.db).QueryRowContext(ctx, countQuery, uuid.UUID(categoryID)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count ranked memberships: %w", err)
	}
	query := `
		SELECT ` + membershipColumns + `
		FROM memberships
		WHERE category_id = $1 AND status = 'approved'
		ORDER BY rank ASC NULLS LAST, score DESC, created_at ASC, id ASC
		OFFSET $2 LIMIT $3
	`
	items, err := s.list(ctx, "list ranked memberships", query, uuid.UUID(categoryID), offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *PostgresStore) ListBubbleCandidates(ctx context.Context, categoryIDs []id.CategoryID, minScore float64, maxRank int) ([]*models.Membership, error) {
	if len(categoryIDs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(categoryIDs))
	for i, c := range categoryIDs {
		ids[i] = c.String()
	}
	query := `
		SELECT ` + membershipColumns + `
		FROM memberships
		WHERE category_id = ANY($1::uuid[])
		  AND status = 'approved'
		  AND score >= $2
		  AND rank IS NOT NULL AND rank <= $3
		ORDER BY score DESC, created_at ASC, id ASC
	`
	return s.list(ctx, "list bubble candidates", query, pq.Array(ids), minScore, maxRank)
}

func (s *PostgresStore) ListPending(ctx context.Context, categoryID *id.CategoryID, limit int) ([]*models.Membership, error) {
	var category uuid.NullUUID
	if categoryID != nil {
		category = uuid.NullUUID{UUID: uuid.UUID(*categoryID), Valid: true}
	}
	query := `
		SELECT ` + membershipColumns + `
		FROM memberships
		WHERE status = 'pending' AND ($1::uuid IS NULL OR category_id = $1)
		ORDER BY created_at ASC
		LIMIT NULLIF($2, 0)
	`
	return s.list(ctx, "list pending memberships", query, category, limit)
}

func (s *PostgresStore) CountByCategory(ctx context.Context, categoryID id.CategoryID) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM memberships WHERE category_id = $1`
	if err := tx.Exec(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(categoryID)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count memberships by category: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountLiveBySite(ctx context.Context, siteID id.SiteID, exclude id.MembershipID) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM memberships WHERE site_id = $1 AND id <> $2 AND status <> 'rejected'`
	if err := tx.Exec(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(siteID), uuid.UUID(exclude)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count live memberships by site: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) list(ctx context.Context, op, query string, args ...any) ([]*models.Membership, error) {
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []*models.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMembership(row rowScanner) (*models.Membership, error) {
	var (
		m           models.Membership
		rawID       uuid.UUID
		siteID      uuid.UUID
		categoryID  uuid.UUID
		submitterID uuid.UUID
		status      string
		rank        sql.NullInt64
		decidedAt   sql.NullTime
		decidedBy   uuid.NullUUID
		rankedAt    sql.NullTime
	)
	if err := row.Scan(
		&rawID,
		&siteID,
		&categoryID,
		&submitterID,
		&status,
		&m.Upvotes,
		&m.Downvotes,
		&m.Score,
		&rank,
		&decidedAt,
		&decidedBy,
		&rankedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	m.ID = id.MembershipID(rawID)
	m.SiteID = id.SiteID(siteID)
	m.CategoryID = id.CategoryID(categoryID)
	m.SubmitterID = id.UserID(submitterID)
	m.Status = models.Status(status)
	if rank.Valid {
		r := int(rank.Int64)
		m.Rank = &r
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		m.DecidedAt = &t
	}
	if decidedBy.Valid {
		u := id.UserID(decidedBy.UUID)
		m.DecidedBy = &u
	}
	if rankedAt.Valid {
		t := rankedAt.Time
		m.RankedAt = &t
	}
	return &m, nil
}

func nullableUser(userID *id.UserID) uuid.NullUUID {
	if userID == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*userID), Valid: true}
}
