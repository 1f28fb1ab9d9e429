package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-ims/meridian-ims/internal/shared"
)

// Service orchestrates RBAC operations and acts as the permission oracle for
// the workflows.
type Service struct {
	pool   *pgxpool.Pool
	cache  *PermissionCache
	logger *slog.Logger

	// legacyAdminFallback grants full access to users with no role at all.
	// This preserves pre-RBAC behaviour during migration; every grant through
	// this path is logged so it stays auditable.
	legacyAdminFallback bool
}

// Config groups optional settings.
type Config struct {
	LegacyAdminFallback bool
}

// NewService constructs a Service backed by the provided pool and cache.
func NewService(pool *pgxpool.Pool, cache *PermissionCache, logger *slog.Logger, cfg Config) *Service {
	return &Service{pool: pool, cache: cache, logger: logger, legacyAdminFallback: cfg.LegacyAdminFallback}
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, description, created_at, updated_at FROM roles ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	role := Role{ID: uuid.NewString(), Name: name, Description: strings.TrimSpace(description)}
	err := s.pool.QueryRow(ctx, `INSERT INTO roles (id, name, description, created_at, updated_at)
VALUES ($1, $2, $3, NOW(), NOW()) RETURNING created_at, updated_at`,
		role.ID, role.Name, role.Description).Scan(&role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return Role{}, shared.ErrDuplicate
		}
		return Role{}, err
	}
	return role, nil
}

// EnsurePermission upserts a permission.
func (s *Service) EnsurePermission(ctx context.Context, name, description string) (Permission, error) {
	perm := Permission{Name: strings.TrimSpace(strings.ToLower(name)), Description: strings.TrimSpace(description)}
	err := s.pool.QueryRow(ctx, `INSERT INTO permissions (id, name, description)
VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
RETURNING id`, uuid.NewString(), perm.Name, perm.Description).Scan(&perm.ID)
	if err != nil {
		return Permission{}, err
	}
	return perm, nil
}

// SetRolePermissions replaces the permission set of a role and invalidates
// the cached permissions of every member.
func (s *Service) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return err
	}
	for _, permID := range permissionIDs {
		if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`, roleID, permID); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.invalidateRoleMembers(ctx, roleID)
	return nil
}

// AssignRole assigns a role to the given user and invalidates their cached
// permissions.
func (s *Service) AssignRole(ctx context.Context, userID, roleID string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO user_roles (user_id, role_id, created_at)
VALUES ($1, $2, NOW()) ON CONFLICT DO NOTHING`, userID, roleID)
	if err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil && s.logger != nil {
		s.logger.Warn("rbac cache invalidate", slog.Any("error", err))
	}
	return nil
}

// RemoveRole removes a role from a user and invalidates their cached
// permissions.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil && s.logger != nil {
		s.logger.Warn("rbac cache invalidate", slog.Any("error", err))
	}
	return nil
}

// EffectivePermissions returns deduplicated permission names for a user,
// served from the cache when possible.
func (s *Service) EffectivePermissions(ctx context.Context, userID string) ([]string, error) {
	if perms, ok, err := s.cache.Get(ctx, userID); err == nil && ok {
		return perms, nil
	} else if err != nil && s.logger != nil {
		s.logger.Warn("rbac cache read", slog.Any("error", err))
	}
	perms, err := s.loadEffectivePermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, userID, perms); err != nil && s.logger != nil {
		s.logger.Warn("rbac cache write", slog.Any("error", err))
	}
	return perms, nil
}

// CanPerform reports whether the user may execute the given action on the
// resource. Users with no role at all are granted access only when the
// legacy-admin fallback flag is enabled; such grants are logged.
func (s *Service) CanPerform(ctx context.Context, userID, resource, action string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	perms, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	if len(perms) == 0 && s.legacyAdminFallback {
		hasRole, err := s.userHasAnyRole(ctx, userID)
		if err != nil {
			return false, err
		}
		if !hasRole {
			if s.logger != nil {
				s.logger.Warn("rbac legacy admin fallback grant",
					slog.String("user_id", userID),
					slog.String("resource", resource),
					slog.String("action", action))
			}
			return true, nil
		}
	}
	want := strings.ToLower(resource + "." + action)
	for _, p := range perms {
		if strings.ToLower(p) == want {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) loadEffectivePermissions(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT p.name
FROM permissions p
JOIN role_permissions rp ON rp.permission_id = p.id
JOIN user_roles ur ON ur.role_id = rp.role_id
WHERE ur.user_id = $1
ORDER BY p.name ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	perms := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		perms = append(perms, name)
	}
	return perms, rows.Err()
}

func (s *Service) userHasAnyRole(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM user_roles WHERE user_id = $1)`, userID).Scan(&exists)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}
	return exists, nil
}

func (s *Service) invalidateRoleMembers(ctx context.Context, roleID string) {
	rows, err := s.pool.Query(ctx, `SELECT user_id FROM user_roles WHERE role_id = $1`, roleID)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("rbac list role members", slog.Any("error", err))
		}
		return
	}
	defer rows.Close()
	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return
		}
		userIDs = append(userIDs, id)
	}
	if err := s.cache.InvalidateRole(ctx, userIDs); err != nil && s.logger != nil {
		s.logger.Warn("rbac cache invalidate role", slog.Any("error", err))
	}
}
