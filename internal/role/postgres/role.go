package postgres

import (
	"context"
	"errors"

	roleDatamodel "github.com/frahmantamala/institution-management/internal/core/datamodel/role"
	"github.com/frahmantamala/institution-management/internal/role"
	"github.com/frahmantamala/institution-management/internal/tenant"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RoleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) role.Repository {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

func (r *RoleRepository) FindConfigByUserType(ctx context.Context, tx *gorm.DB, schema, userType string) (*roleDatamodel.TenantRoleConfig, error) {
	var cfg roleDatamodel.TenantRoleConfig
	err := r.conn(ctx, tx).Table(tenant.Table(schema, "tenant_role_configs")).
		Where("user_type = ?", userType).
		First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, role.ErrNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

func (r *RoleRepository) SaveConfig(ctx context.Context, tx *gorm.DB, schema string, cfg *roleDatamodel.TenantRoleConfig) error {
	table := r.conn(ctx, tx).Table(tenant.Table(schema, "tenant_role_configs"))
	if cfg.ID == 0 {
		return table.Clauses(tenant.Into(schema, "tenant_role_configs")).Create(cfg).Error
	}
	return table.Where("id = ?", cfg.ID).Updates(map[string]interface{}{
		"default_role_id":  cfg.DefaultRoleID,
		"previous_role_id": cfg.PreviousRoleID,
		"is_system_role":   cfg.IsSystemRole,
		"last_changed_at":  cfg.LastChangedAt,
		"changed_by":       cfg.ChangedBy,
	}).Error
}

func (r *RoleRepository) FindByID(ctx context.Context, tx *gorm.DB, schema string, id int64) (*roleDatamodel.Role, error) {
	var rl roleDatamodel.Role
	err := r.conn(ctx, tx).Table(tenant.Table(schema, "roles")).Where("id = ?", id).First(&rl).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, role.ErrNotFound
		}
		return nil, err
	}
	return &rl, nil
}

// FindByType returns the oldest role of the given type.
func (r *RoleRepository) FindByType(ctx context.Context, tx *gorm.DB, schema, roleType string) (*roleDatamodel.Role, error) {
	var rl roleDatamodel.Role
	err := r.conn(ctx, tx).Table(tenant.Table(schema, "roles")).
		Where("role_type = ?", roleType).
		Order("id ASC").
		First(&rl).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, role.ErrNotFound
		}
		return nil, err
	}
	return &rl, nil
}

func (r *RoleRepository) Create(ctx context.Context, tx *gorm.DB, schema string, rl *roleDatamodel.Role) error {
	return r.conn(ctx, tx).Table(tenant.Table(schema, "roles")).
		Clauses(tenant.Into(schema, "roles")).
		Create(rl).Error
}

func (r *RoleRepository) CreateIfAbsent(ctx context.Context, tx *gorm.DB, schema string, rl *roleDatamodel.Role) (bool, error) {
	res := r.conn(ctx, tx).Table(tenant.Table(schema, "roles")).
		Clauses(tenant.Into(schema, "roles"), clause.OnConflict{DoNothing: true}).
		Create(rl)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
