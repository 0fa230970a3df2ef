package middleware

import (
	"context"
	"net/http"
	"strings"
)

// Header and query names that carry the caller's identity.
const (
	UserIDHeader     = "X-User-ID"
	UserRoleHeader   = "X-User-Role"
	GuestTokenHeader = "X-Cart-Token"
	GuestTokenQuery  = "cart_token"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	roleKey
	guestTokenKey
)

// Claims are the identity fields read from a bearer token.
type Claims struct {
	UserID string
	Email  string
	Role   string
}

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator func(token string) (*Claims, error)

// IdentityConfig controls how Identity resolves the caller.
type IdentityConfig struct {
	// Validate checks bearer tokens. When nil, Authorization is ignored.
	Validate TokenValidator

	// TrustUserHeader accepts X-User-ID/X-User-Role set by an upstream
	// gateway when no bearer token is present.
	TrustUserHeader bool
}

// Identity resolves who is calling and stores it in the request context.
// A user comes from a valid bearer token or, if trusted, the X-User-ID
// header. A guest token comes from X-Cart-Token or ?cart_token= and is kept
// alongside a user so carts can be merged. A bearer token that fails
// validation is rejected with 401; a request with no identity passes
// through anonymously.
func Identity(cfg IdentityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var userID, role string
			if authz := r.Header.Get("Authorization"); authz != "" && cfg.Validate != nil {
				scheme, token, ok := strings.Cut(authz, " ")
				if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
					writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid authorization header format")
					return
				}
				claims, err := cfg.Validate(strings.TrimSpace(token))
				if err != nil || claims.UserID == "" {
					writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
					return
				}
				userID, role = claims.UserID, claims.Role
			} else if cfg.TrustUserHeader {
				userID = strings.TrimSpace(r.Header.Get(UserIDHeader))
				role = strings.TrimSpace(r.Header.Get(UserRoleHeader))
			}

			guest := strings.TrimSpace(r.Header.Get(GuestTokenHeader))
			if guest == "" {
				guest = strings.TrimSpace(r.URL.Query().Get(GuestTokenQuery))
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, userID, role, guest)))
		})
	}
}

// RequireUser rejects requests without an authenticated user.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserIDFromContext(r.Context()) == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects callers whose role is not one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := allowed[RoleFromContext(r.Context())]; !ok {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithIdentity stores identity values in ctx. Empty values are skipped.
func WithIdentity(ctx context.Context, userID, role, guestToken string) context.Context {
	if userID != "" {
		ctx = context.WithValue(ctx, userIDKey, userID)
	}
	if role != "" {
		ctx = context.WithValue(ctx, roleKey, role)
	}
	if guestToken != "" {
		ctx = context.WithValue(ctx, guestTokenKey, guestToken)
	}
	return ctx
}

func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

func RoleFromContext(ctx context.Context) string {
	v, _ := ctx.Value(roleKey).(string)
	return v
}

func GuestTokenFromContext(ctx context.Context) string {
	v, _ := ctx.Value(guestTokenKey).(string)
	return v
}
