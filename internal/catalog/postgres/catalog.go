package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/frahmantamala/institution-management/internal/catalog"
	catalogDatamodel "github.com/frahmantamala/institution-management/internal/core/datamodel/catalog"
	"github.com/jmoiron/sqlx"
)

const institutionColumns = "id, name, plan_id, subdomain, slug, schema_name, status, created_at"

type InstitutionRepository struct {
	db *sqlx.DB
}

func NewInstitutionRepository(db *sqlx.DB) catalog.InstitutionRepository {
	return &InstitutionRepository{db: db}
}

func (r *InstitutionRepository) FindBySchema(ctx context.Context, schemaName string) (*catalogDatamodel.Institution, error) {
	return r.findOne(ctx, "schema_name = ?", schemaName)
}

func (r *InstitutionRepository) FindByID(ctx context.Context, id int64) (*catalogDatamodel.Institution, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *InstitutionRepository) findOne(ctx context.Context, where string, arg interface{}) (*catalogDatamodel.Institution, error) {
	var inst catalogDatamodel.Institution
	query := r.db.Rebind("SELECT " + institutionColumns + " FROM institutions WHERE " + where)
	if err := r.db.GetContext(ctx, &inst, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find institution: %w", err)
	}
	return &inst, nil
}

type PlanRepository struct {
	db *sqlx.DB
}

func NewPlanRepository(db *sqlx.DB) catalog.PlanRepository {
	return &PlanRepository{db: db}
}

func (r *PlanRepository) GetPermissionKeys(ctx context.Context, planID int64) ([]string, error) {
	query := r.db.Rebind(`
SELECT p.key
FROM plan_permissions pp
JOIN permissions p ON p.id = pp.permission_id
WHERE pp.plan_id = ?
ORDER BY p.key`)

	keys := make([]string, 0)
	if err := r.db.SelectContext(ctx, &keys, query, planID); err != nil {
		return nil, fmt.Errorf("get plan permission keys: %w", err)
	}
	return keys, nil
}

type PermissionRepository struct {
	db *sqlx.DB
}

func NewPermissionRepository(db *sqlx.DB) catalog.PermissionRepository {
	return &PermissionRepository{db: db}
}

func (r *PermissionRepository) FindByKeys(ctx context.Context, keys []string) ([]*catalogDatamodel.Permission, error) {
	if len(keys) == 0 {
		return []*catalogDatamodel.Permission{}, nil
	}

	query, args, err := sqlx.In("SELECT id, key, description, created_at FROM permissions WHERE key IN (?) ORDER BY key", keys)
	if err != nil {
		return nil, fmt.Errorf("build permission query: %w", err)
	}

	var perms []*catalogDatamodel.Permission
	if err := r.db.SelectContext(ctx, &perms, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("find permissions by keys: %w", err)
	}
	return perms, nil
}
