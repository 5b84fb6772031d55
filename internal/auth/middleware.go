package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/consensus/internal/models"
	pkghttp "github.com/BradenHooton/consensus/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	principalContextKey contextKey = "principal"
	tokenContextKey     contextKey = "token"
)

// Resolver maps a raw session token to its principal
type Resolver interface {
	Resolve(ctx context.Context, token string) (*models.Principal, error)
}

// Authenticate resolves the session token on every request and stores the
// principal and token in the request context. The principal is read fresh
// from the store each time.
func Authenticate(resolver Resolver, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				pkghttp.WriteFailure(w, http.StatusBadRequest, "missing authorization token")
				return
			}

			principal, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				if errors.Is(err, models.ErrUnauthenticated) {
					pkghttp.WriteFailure(w, http.StatusBadRequest, "invalid token")
					return
				}
				logger.Error("failed to resolve session token",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				pkghttp.WriteServiceError(w, err)
				return
			}

			ctx := WithPrincipal(r.Context(), principal, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken reads the Authorization header. A bare token without the
// Bearer scheme is accepted too.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}

	scheme, rest, found := strings.Cut(header, " ")
	if found && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(rest)
	}
	if found {
		return ""
	}
	return header
}

// WithPrincipal returns a context carrying the principal and its token
func WithPrincipal(ctx context.Context, p *models.Principal, token string) context.Context {
	ctx = context.WithValue(ctx, principalContextKey, p)
	return context.WithValue(ctx, tokenContextKey, token)
}

// GetPrincipal extracts the authenticated principal from the context
func GetPrincipal(ctx context.Context) *models.Principal {
	p, ok := ctx.Value(principalContextKey).(*models.Principal)
	if !ok {
		return nil
	}
	return p
}

// GetToken extracts the raw session token from the context
func GetToken(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)
	return token
}
