package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/consensus/internal/models"
)

// TokenStore persists session registry records keyed by token hash
type TokenStore interface {
	Save(ctx context.Context, token *models.AccessToken) error
	// Lookup returns models.ErrNotFound when no live record exists
	Lookup(ctx context.Context, tokenHash string) (*models.AccessToken, error)
	// Delete succeeds when the record is already gone
	Delete(ctx context.Context, tokenHash string) error
	DeleteByUser(ctx context.Context, userID int64) (int64, error)
}

// PrincipalSource loads a live user together with its group. It returns
// models.ErrNotFound for missing or soft deleted users.
type PrincipalSource interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// TokenRegistry issues, resolves and revokes session tokens
type TokenRegistry struct {
	tokens *TokenManager
	store  TokenStore
	users  PrincipalSource
	now    func() time.Time
}

func NewTokenRegistry(tokens *TokenManager, store TokenStore, users PrincipalSource) *TokenRegistry {
	return &TokenRegistry{
		tokens: tokens,
		store:  store,
		users:  users,
		now:    time.Now,
	}
}

// Issue signs a token for principalID and records it in a single write
func (r *TokenRegistry) Issue(ctx context.Context, principalID int64) (string, error) {
	token, err := r.tokens.Sign(principalID)
	if err != nil {
		return "", err
	}

	record := &models.AccessToken{
		UserID:    principalID,
		TokenHash: HashToken(token),
		IssuedAt:  r.now(),
	}
	if err := r.store.Save(ctx, record); err != nil {
		return "", fmt.Errorf("failed to record session token: %w", err)
	}

	return token, nil
}

// Resolve checks the signature before touching the store. A bad signature,
// a revoked token and a deleted user all come back as ErrUnauthenticated.
func (r *TokenRegistry) Resolve(ctx context.Context, token string) (*models.Principal, error) {
	claims, err := r.tokens.Parse(token)
	if err != nil {
		return nil, models.ErrUnauthenticated
	}

	record, err := r.store.Lookup(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthenticated
		}
		return nil, fmt.Errorf("failed to look up session token: %w", err)
	}
	if record.UserID != claims.UserID {
		return nil, models.ErrUnauthenticated
	}

	user, err := r.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthenticated
		}
		return nil, fmt.Errorf("failed to load principal: %w", err)
	}
	if !user.IsLive() {
		return nil, models.ErrUnauthenticated
	}

	return models.PrincipalFromUser(user), nil
}

// Revoke deletes the registry record of token. Unknown and already revoked
// tokens are not an error.
func (r *TokenRegistry) Revoke(ctx context.Context, token string) error {
	if err := r.store.Delete(ctx, HashToken(token)); err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to revoke session token: %w", err)
	}
	return nil
}

// RevokeAll deletes every registry record of principalID
func (r *TokenRegistry) RevokeAll(ctx context.Context, principalID int64) (int64, error) {
	n, err := r.store.DeleteByUser(ctx, principalID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return n, nil
}
