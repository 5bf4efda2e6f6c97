package agents

import (
	"context"
	"net/http"
	"strings"

	"erpinsight/pkg/auth"
	"erpinsight/pkg/errors"
	"erpinsight/pkg/logger"
)

// Request headers
const (
	HeaderUserID      = "X-User-Id"
	HeaderAccessToken = "X-QB-Access-Token"
	HeaderRealmID     = "X-QB-Realm-Id"
)

type contextKey string

const identityContextKey contextKey = "api_identity"

// Identity is the authenticated caller
type Identity struct {
	UserID      string
	RealmID     string
	CompanyName string
}

// AllowsRealm applies the token's realm scope. Header-identified callers
// carry no scope.
func (id Identity) AllowsRealm(realmID string) bool {
	return (&auth.Claims{RealmID: id.RealmID}).AllowsRealm(realmID)
}

// TokenValidator is satisfied by *auth.JWTService
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

var _ TokenValidator = (*auth.JWTService)(nil)

// AuthMiddleware resolves the caller from a Bearer JWT. Without a validator
// the caller is trusted to identify itself through X-User-Id.
type AuthMiddleware struct {
	validator TokenValidator
	log       *logger.Logger
}

// NewAuthMiddleware creates the middleware. validator may be nil.
func NewAuthMiddleware(validator TokenValidator, log *logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		log:       log.With("middleware", "auth"),
	}
}

// Handler wraps next with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.validator == nil {
			id := Identity{UserID: strings.TrimSpace(r.Header.Get(HeaderUserID))}
			ctx := withIdentity(r.Context(), id)
			if id.UserID != "" {
				ctx = errors.WithUser(ctx, id.UserID, strings.TrimSpace(r.Header.Get(HeaderRealmID)))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, errors.Wrap(errors.ErrUnauthorized, "missing bearer token"))
			return
		}

		claims, err := m.validator.ValidateToken(token)
		if err != nil {
			m.log.Warnw("Invalid auth token",
				"error", err,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			writeError(w, http.StatusUnauthorized, errors.Wrap(errors.ErrUnauthorized, err.Error()))
			return
		}

		id := Identity{UserID: claims.UserID, RealmID: claims.RealmID, CompanyName: claims.CompanyName}
		ctx := errors.WithUser(withIdentity(r.Context(), id), id.UserID, id.RealmID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:]), true
	}
	return "", false
}

func withIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, identityContextKey, id)
	return logger.IntoContext(ctx, logger.FromContext(ctx).With("user_id", id.UserID, "realm_id", id.RealmID))
}

// IdentityFromContext returns the caller, or the zero Identity
func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityContextKey).(Identity)
	return id
}
