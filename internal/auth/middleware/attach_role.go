package auth

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/coachdiary/gradebook/internal/rbac"
)

// AttachRoleFromDB replaces the token's role with the one stored for the
// user, so demoted or deleted accounts lose access before their token
// expires. allowClaimFallback=true keeps the claim when the lookup fails
// (offline mode); in online mode such requests are denied.
func AttachRoleFromDB(users *UserStore, allowClaimFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id, ok := UserIDFromContext(ctx)
			if !ok {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			u, err := users.Get(ctx, id)
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, u.Role)))
			case errors.Is(err, ErrNoUser):
				http.Error(w, "forbidden", http.StatusForbidden)
			case allowClaimFallback && rbac.RoleFromContext(ctx) != "":
				next.ServeHTTP(w, r)
			default:
				http.Error(w, "forbidden", http.StatusForbidden)
			}
		})
	}
}
