package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bookhaven/apiserver/internal/auth"
	"github.com/bookhaven/apiserver/internal/services"
	"github.com/bookhaven/apiserver/internal/store"
)

const adminRole = "admin"

// RequireAuth verifies the bearer token and injects the subject and
// username claims into the request context. Requests without a valid
// token are rejected before any handler runs.
func RequireAuth(issuer *auth.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			claims, err := issuer.Verify(tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), contextSubjectKey, claims.Subject)
			ctx = context.WithValue(ctx, contextUsernameKey, claims.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole loads the caller's current role from the store and
// rejects the request unless it matches one of the given roles. The
// lookup is fresh on every request, so role changes take effect
// immediately rather than at token reissue.
func RequireRole(userService *services.UserService, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := subjectFromContext(r.Context())
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			user, err := userService.FindOne(r.Context(), subject)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					writeError(w, http.StatusUnauthorized, "unauthorized")
					return
				}
				writeError(w, http.StatusInternalServerError, "failed to load user")
				return
			}

			for _, role := range roles {
				if strings.EqualFold(user.Role, role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "insufficient role")
		})
	}
}

// RequireAdmin is RequireRole fixed to the admin role.
func RequireAdmin(userService *services.UserService) func(http.Handler) http.Handler {
	return RequireRole(userService, adminRole)
}
