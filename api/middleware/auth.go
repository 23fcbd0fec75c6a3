package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/campuskit/schoolstock-backend/api/responses"
	pkgauth "github.com/campuskit/schoolstock-backend/pkg/auth"
	"github.com/campuskit/schoolstock-backend/pkg/config"
	"github.com/campuskit/schoolstock-backend/pkg/db/models"
	"github.com/campuskit/schoolstock-backend/pkg/enums"
	pkgerrors "github.com/campuskit/schoolstock-backend/pkg/errors"
	"github.com/campuskit/schoolstock-backend/pkg/logger"
)

// UserSyncer mirrors verified token claims into the local users table so
// issued_by references resolve. Optional; nil skips the sync.
type UserSyncer interface {
	SyncFromClaims(ctx context.Context, id uuid.UUID, email, displayName string, role enums.UserRole) (*models.User, error)
}

// Auth validates a bearer token and seeds the request context with the claims.
func Auth(cfg config.JWTConfig, syncer UserSyncer, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgauth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			if syncer != nil {
				if _, err := syncer.SyncFromClaims(r.Context(), claims.UserID, claims.Email, claims.DisplayName, claims.Role); err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sync user"))
					return
				}
			}

			ctx := WithUserID(r.Context(), claims.UserID.String())
			ctx = WithRole(ctx, string(claims.Role))

			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"user_id":    claims.UserID.String(),
					"actor_role": string(claims.Role),
				})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
