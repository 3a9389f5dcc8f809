package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"webdir/internal/platform/postgres"
	"webdir/internal/vote/models"
	id "webdir/pkg/domain"
	"webdir/pkg/platform/sentinel"
	"webdir/pkg/platform/tx"
)

// PostgresStore persists the vote ledger. The partial unique index
// uq_votes_active rejects a second active vote for the same voter.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const voteColumns = `id, membership_id, voter_id, value, created_at, retracted_at`

func (s *PostgresStore) Insert(ctx context.Context, v *models.Vote) error {
	query := `INSERT INTO votes (` + voteColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(v.ID),
		uuid.UUID(v.MembershipID),
		uuid.UUID(v.VoterID),
		int16(v.Value),
		v.CreatedAt,
		v.RetractedAt,
	)
	return postgres.Translate(err, "insert vote")
}

func (s *PostgresStore) FindActive(ctx context.Context, membershipID id.MembershipID, voter id.UserID) (*models.Vote, error) {
	query := `
		SELECT ` + voteColumns + `
		FROM votes
		WHERE membership_id = $1 AND voter_id = $2 AND retracted_at IS NULL
	`
	v, err := scanVote(tx.Exec(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(membershipID), uuid.UUID(voter)))
	if err != nil {
		return nil, postgres.Translate(err, "find active vote")
	}
	return v, nil
}

func (s *PostgresStore) Retract(ctx context.Context, voteID id.VoteID, now time.Time) error {
	query := `UPDATE votes SET retracted_at = $2 WHERE id = $1 AND retracted_at IS NULL`
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, query, uuid.UUID(voteID), now)
	if err != nil {
		return postgres.Translate(err, "retract vote")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return postgres.Translate(err, "retract vote")
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Tally(ctx context.Context, membershipID id.MembershipID) (int, int, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE value = 1),
			COUNT(*) FILTER (WHERE value = -1)
		FROM votes
		WHERE membership_id = $1 AND retracted_at IS NULL
	`
	var up, down int
	if err := tx.Exec(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(membershipID)).Scan(&up, &down); err != nil {
		return 0, 0, postgres.Translate(err, "tally votes")
	}
	return up, down, nil
}

func (s *PostgresStore) History(ctx context.Context, membershipID id.MembershipID) ([]*models.Vote, error) {
	query := `
		SELECT ` + voteColumns + `
		FROM votes
		WHERE membership_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, query, uuid.UUID(membershipID))
	if err != nil {
		return nil, postgres.Translate(err, "list vote history")
	}
	defer rows.Close()

	var out []*models.Vote
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, postgres.Translate(err, "scan vote")
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.Translate(err, "list vote history")
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVote(row rowScanner) (*models.Vote, error) {
	var (
		v                           models.Vote
		voteID, membershipID, voter uuid.UUID
		value                       int16
		retractedAt                 sql.NullTime
	)
	if err := row.Scan(&voteID, &membershipID, &voter, &value, &v.CreatedAt, &retractedAt); err != nil {
		return nil, err
	}
	v.ID = id.VoteID(voteID)
	v.MembershipID = id.MembershipID(membershipID)
	v.VoterID = id.UserID(voter)
	v.Value = models.Value(value)
	if retractedAt.Valid {
		t := retractedAt.Time
		v.RetractedAt = &t
	}
	return &v, nil
}
