package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"webdir/internal/platform/postgres"
	"webdir/internal/trust/models"
	id "webdir/pkg/domain"
	"webdir/pkg/platform/tx"
)

// PostgresStore reads and adjusts submitter_trust rows.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, userID id.UserID) (*models.Profile, error) {
	query := `SELECT user_id, karma, is_moderator, updated_at FROM submitter_trust WHERE user_id = $1`
	p, err := scanProfile(tx.Exec(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(userID)))
	if err != nil {
		return nil, postgres.Translate(err, "get submitter trust")
	}
	return p, nil
}

// AdjustKarma applies delta atomically, creating the row on first use.
func (s *PostgresStore) AdjustKarma(ctx context.Context, userID id.UserID, delta int, now time.Time) (*models.Profile, error) {
	query := `
		INSERT INTO submitter_trust (user_id, karma, is_moderator, updated_at)
		VALUES ($1, $2, FALSE, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			karma = submitter_trust.karma + EXCLUDED.karma,
			updated_at = EXCLUDED.updated_at
		RETURNING user_id, karma, is_moderator, updated_at
	`
	p, err := scanProfile(tx.Exec(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(userID), delta, now))
	if err != nil {
		return nil, postgres.Translate(err, "adjust karma")
	}
	return p, nil
}

func (s *PostgresStore) SetModerator(ctx context.Context, userID id.UserID, moderator bool, now time.Time) error {
	query := `
		INSERT INTO submitter_trust (user_id, karma, is_moderator, updated_at)
		VALUES ($1, 0, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			is_moderator = EXCLUDED.is_moderator,
			updated_at = EXCLUDED.updated_at
	`
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, query, uuid.UUID(userID), moderator, now)
	return postgres.Translate(err, "set moderator")
}

func scanProfile(row *sql.Row) (*models.Profile, error) {
	var (
		p     models.Profile
		rawID uuid.UUID
	)
	if err := row.Scan(&rawID, &p.Karma, &p.IsModerator, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.UserID = id.UserID(rawID)
	return &p, nil
}
