/**
 * @description
 * Authentication and authorization middleware. Authenticate resolves the bearer
 * token into an auth.Identity once per request; RequireRole only checks the role.
 * Admin routes additionally confirm the admin still exists.
 */
package api

import (
	"net/http"
	"strings"

	"github.com/avsbank/banking-service/internal/auth"
	"github.com/avsbank/banking-service/internal/domain"
)

var (
	errMissingAuthHeader = domain.NewError(domain.ErrAuth, "Authorization header required")
	errBadAuthHeader     = domain.NewError(domain.ErrAuth, "Invalid Authorization header format")
	errInvalidToken      = domain.NewError(domain.ErrAuth, "Invalid or expired token")
	errAdminRequired     = domain.NewError(domain.ErrForbidden, "Admin access required")
	errAccessDenied      = domain.NewError(domain.ErrForbidden, "Access denied")
)

// writeError answers with the status of a domain error and its client message.
func writeError(w http.ResponseWriter, de *domain.Error) {
	writeJSON(w, statusFor(de), errorResponse{Msg: de.Message, Field: de.Field})
}

// Authenticate verifies "Authorization: Bearer <token>" and stores the identity on the context.
func Authenticate(tokens *auth.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, errMissingAuthHeader)
				return
			}
			parts := strings.Fields(authHeader)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeError(w, errBadAuthHeader)
				return
			}

			identity, err := tokens.Verify(parts[1])
			if err != nil {
				writeError(w, errInvalidToken)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireRole rejects identities of any other role with 403.
func RequireRole(role domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				writeError(w, errMissingAuthHeader)
				return
			}
			if identity.Role != role {
				if role == domain.RoleAdmin {
					writeError(w, errAdminRequired)
					return
				}
				writeError(w, errAccessDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireActiveAdmin rejects admin tokens whose admin has since been removed.
// It runs after RequireRole(domain.RoleAdmin).
func (h *Handlers) requireActiveAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := h.admin.Principal(r.Context(), identityOf(r).SubjectID); err != nil {
			h.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
