package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/meridian-ims/meridian-ims/internal/platform/httpx"
	"github.com/meridian-ims/meridian-ims/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireAny ensures the current user holds at least one of the required
// permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok || actor.UserID == "" {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "authentication required")
				return
			}
			for _, perm := range normalized {
				resource, action := SplitPermission(perm)
				allowed, err := m.Service.CanPerform(r.Context(), actor.UserID, resource, action)
				if err != nil {
					if m.Logger != nil {
						m.Logger.Error("rbac require any", slog.Any("error", err))
					}
					httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "authorization check failed")
					return
				}
				if allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing required permission")
		})
	}
}

// RequireAll ensures the current user holds every required permission.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok || actor.UserID == "" {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "authentication required")
				return
			}
			for _, perm := range normalized {
				resource, action := SplitPermission(perm)
				allowed, err := m.Service.CanPerform(r.Context(), actor.UserID, resource, action)
				if err != nil {
					if m.Logger != nil {
						m.Logger.Error("rbac require all", slog.Any("error", err))
					}
					httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "authorization check failed")
					return
				}
				if !allowed {
					httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing required permission")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SplitPermission splits a "<resource>.<action>" permission name at the last
// dot. A dot-less name maps to (name, "") so callers never index out of range.
func SplitPermission(perm string) (resource, action string) {
	idx := strings.LastIndex(perm, ".")
	if idx < 0 {
		return perm, ""
	}
	return perm[:idx], perm[idx+1:]
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}
