// Package role decides which role a newly provisioned user receives.
package role

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	appErrors "github.com/frahmantamala/institution-management/internal"
	roleDatamodel "github.com/frahmantamala/institution-management/internal/core/datamodel/role"
	coreUser "github.com/frahmantamala/institution-management/internal/core/user"
	"gorm.io/gorm"
)

// ErrNotFound is returned by repositories when no row matches.
var ErrNotFound = errors.New("role not found")

// Repository methods run on tx when it is non-nil and on the root connection otherwise.
type Repository interface {
	FindConfigByUserType(ctx context.Context, tx *gorm.DB, schema, userType string) (*roleDatamodel.TenantRoleConfig, error)
	SaveConfig(ctx context.Context, tx *gorm.DB, schema string, cfg *roleDatamodel.TenantRoleConfig) error
	FindByID(ctx context.Context, tx *gorm.DB, schema string, id int64) (*roleDatamodel.Role, error)
	FindByType(ctx context.Context, tx *gorm.DB, schema, roleType string) (*roleDatamodel.Role, error)
	Create(ctx context.Context, tx *gorm.DB, schema string, r *roleDatamodel.Role) error
	// CreateIfAbsent reports false when a custom role with the same type and name already exists.
	CreateIfAbsent(ctx context.Context, tx *gorm.DB, schema string, r *roleDatamodel.Role) (bool, error)
}

type Resolver struct {
	db     *gorm.DB
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewResolver(db *gorm.DB, repo Repository, logger *slog.Logger) *Resolver {
	return &Resolver{
		db:     db,
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// ResolveRole returns the tenant's configured default role for userType, falling back
// to a role of that type and creating one when the tenant has none.
func (r *Resolver) ResolveRole(ctx context.Context, tx *gorm.DB, schema string, userType coreUser.UserType) (int64, error) {
	cfg, err := r.repo.FindConfigByUserType(ctx, tx, schema, string(userType))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, fmt.Errorf("find role config: %w", err)
	}
	if cfg != nil {
		return cfg.DefaultRoleID, nil
	}

	existing, err := r.repo.FindByType(ctx, tx, schema, string(userType))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, fmt.Errorf("find role by type: %w", err)
	}
	if existing != nil {
		return existing.ID, nil
	}

	fallback := &roleDatamodel.Role{
		Name:        string(userType),
		RoleType:    string(userType),
		Description: fmt.Sprintf("Default %s role", userType),
		IsSystem:    false,
	}
	created, err := r.repo.CreateIfAbsent(ctx, tx, schema, fallback)
	if err != nil {
		return 0, fmt.Errorf("create fallback role: %w", err)
	}
	if !created {
		// A concurrent provisioning of the same type committed its fallback first.
		winner, err := r.repo.FindByType(ctx, tx, schema, string(userType))
		if err != nil {
			return 0, fmt.Errorf("find concurrently created role: %w", err)
		}
		return winner.ID, nil
	}

	r.logger.Info("created fallback role", "tenant_schema", schema, "user_type", userType, "role_id", fallback.ID)
	return fallback.ID, nil
}

// ChangeDefaultRole points new users of userType at roleID. Users already holding the
// previous default keep it.
func (r *Resolver) ChangeDefaultRole(ctx context.Context, schema string, userType coreUser.UserType, roleID, changedBy int64) (*roleDatamodel.TenantRoleConfig, error) {
	var saved *roleDatamodel.TenantRoleConfig

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		target, err := r.repo.FindByID(ctx, tx, schema, roleID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return appErrors.ErrRoleNotFound
			}
			return fmt.Errorf("find role: %w", err)
		}

		cfg, err := r.repo.FindConfigByUserType(ctx, tx, schema, string(userType))
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("find role config: %w", err)
		}

		now := r.now().UTC()
		if cfg == nil {
			cfg = &roleDatamodel.TenantRoleConfig{UserType: string(userType)}
		} else if cfg.DefaultRoleID != roleID {
			previous := cfg.DefaultRoleID
			cfg.PreviousRoleID = &previous
		}
		cfg.DefaultRoleID = roleID
		cfg.IsSystemRole = target.IsSystem
		cfg.LastChangedAt = &now
		cfg.ChangedBy = &changedBy

		if err := r.repo.SaveConfig(ctx, tx, schema, cfg); err != nil {
			return fmt.Errorf("save role config: %w", err)
		}
		saved = cfg
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("default role changed",
		"tenant_schema", schema,
		"user_type", userType,
		"role_id", roleID,
		"changed_by", changedBy,
	)
	return saved, nil
}
