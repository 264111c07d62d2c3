package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/steward/pkg/auth"
	"github.com/platinummonkey/steward/pkg/contextkeys"
	"github.com/platinummonkey/steward/pkg/httputil"
	"github.com/platinummonkey/steward/pkg/observability"
)

// TokenValidator validates a presented bearer token
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*auth.APIToken, error)
}

// UserLookup resolves the account behind a validated token
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*auth.User, error)
}

// Authenticator authenticates requests via bearer tokens and attaches
// the resulting principal to the context.
type Authenticator struct {
	tokens TokenValidator
	users  UserLookup
	logger *observability.Logger
}

// NewAuthenticator creates an authentication middleware
func NewAuthenticator(tokens TokenValidator, users UserLookup, logger *observability.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, users: users, logger: logger}
}

// Middleware rejects requests without a valid token for an active user
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			httputil.WriteUnauthorized(w, "Missing bearer token")
			return
		}

		apiToken, err := a.tokens.ValidateToken(r.Context(), token)
		if err != nil {
			a.logger.WithError(err).Debug("Token validation failed")
			httputil.WriteUnauthorized(w, "Invalid or expired token")
			return
		}

		user, err := a.users.GetUser(r.Context(), apiToken.UserID)
		if err != nil {
			a.logger.WithError(err).Warn("Token references missing user")
			httputil.WriteUnauthorized(w, "Invalid or expired token")
			return
		}
		if !user.Active {
			httputil.WriteUnauthorized(w, "Account is deactivated")
			return
		}

		principal := &auth.Principal{
			UserID:   user.ID,
			Username: user.Username,
			RoleIDs:  user.RoleIDs,
			TokenID:  apiToken.ID,
		}

		ctx := contextkeys.WithPrincipal(r.Context(), principal)
		ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(user.ID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetPrincipal retrieves the authenticated principal from the context
func GetPrincipal(ctx context.Context) (*auth.Principal, bool) {
	principal, ok := ctx.Value(contextkeys.PrincipalKey).(*auth.Principal)
	return principal, ok
}

func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
