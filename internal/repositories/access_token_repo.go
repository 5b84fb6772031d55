package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/consensus/internal/database"
	"github.com/BradenHooton/consensus/internal/models"
)

// AccessTokenRepository is the Postgres session registry. Rows are inserted
// at login and deleted at logout, never updated.
type AccessTokenRepository struct {
	db database.Querier
}

func NewAccessTokenRepository(db database.Querier) *AccessTokenRepository {
	return &AccessTokenRepository{db: db}
}

func (r *AccessTokenRepository) Save(ctx context.Context, token *models.AccessToken) error {
	query := `
		INSERT INTO access_tokens (user_id, token_hash, issued_at)
		VALUES ($1, $2, $3)
		RETURNING id`

	err := r.db.QueryRow(ctx, query, token.UserID, token.TokenHash, token.IssuedAt).Scan(&token.ID)
	return database.MapPostgresError(err)
}

func (r *AccessTokenRepository) Lookup(ctx context.Context, tokenHash string) (*models.AccessToken, error) {
	query := `SELECT id, user_id, token_hash, issued_at FROM access_tokens WHERE token_hash = $1`

	var t models.AccessToken
	err := r.db.QueryRow(ctx, query, tokenHash).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.IssuedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &t, nil
}

// Delete is idempotent: deleting a missing row is not an error
func (r *AccessTokenRepository) Delete(ctx context.Context, tokenHash string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM access_tokens WHERE token_hash = $1`, tokenHash)
	return database.MapPostgresError(err)
}

func (r *AccessTokenRepository) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM access_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// DeleteForDeletedUsers removes sessions still held by soft deleted users
func (r *AccessTokenRepository) DeleteForDeletedUsers(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM access_tokens t
		USING users u
		WHERE u.id = t.user_id AND u.delete_flag = 1`

	result, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// DeleteIssuedBefore removes sessions issued before cutoff
func (r *AccessTokenRepository) DeleteIssuedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM access_tokens WHERE issued_at < $1`, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
