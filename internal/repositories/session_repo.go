package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/twofactor/internal/database"
	"github.com/BradenHooton/twofactor/internal/models"
)

const sessionColumns = `token_hash, user_id, pending_second_factor, pending_setup_secret, created_at, expires_at`

type SessionRepository struct {
	db database.Querier
}

func NewSessionRepository(db database.Querier) *SessionRepository {
	return &SessionRepository{db: db}
}

func scanSessionRow(scanner rowScanner) (*models.Session, error) {
	var s models.Session

	err := scanner.Scan(
		&s.TokenHash, &s.UserID, &s.PendingSecondFactor, &s.PendingSetupSecret,
		&s.CreatedAt, &s.ExpiresAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &s, nil
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(ctx, query,
		session.TokenHash, session.UserID, session.PendingSecondFactor, session.PendingSetupSecret,
		session.CreatedAt, session.ExpiresAt,
	)
	return database.MapPostgresError(err)
}

// GetByTokenHash returns the stored session. Expiry is left to the caller.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE token_hash = $1`
	return scanSessionRow(r.db.QueryRow(ctx, query, tokenHash))
}

// MarkSecondFactorVerified clears the pending flag. Only a session that is still
// pending and unexpired is updated; anything else is models.ErrNotFound.
func (r *SessionRepository) MarkSecondFactorVerified(ctx context.Context, tokenHash string, now time.Time) error {
	query := `
		UPDATE sessions SET pending_second_factor = FALSE
		WHERE token_hash = $1 AND pending_second_factor AND expires_at > $2
	`

	result, err := r.db.Exec(ctx, query, tokenHash, now)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// SetPendingSetupSecret stores (or with nil, clears) the unconfirmed TOTP secret
func (r *SessionRepository) SetPendingSetupSecret(ctx context.Context, tokenHash string, secret *string) error {
	query := `UPDATE sessions SET pending_setup_secret = $1 WHERE token_hash = $2`

	result, err := r.db.Exec(ctx, query, secret, tokenHash)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// Delete removes a session. Deleting an unknown session is not an error.
func (r *SessionRepository) Delete(ctx context.Context, tokenHash string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	return database.MapPostgresError(err)
}

// CleanupExpired deletes sessions whose lifetime ended before now
func (r *SessionRepository) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
