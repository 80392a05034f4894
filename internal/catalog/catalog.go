// Package catalog reads the platform-wide institution, plan and permission catalog
// stored in the public schema. The catalog is read-only for provisioning.
package catalog

import (
	"context"
	"strconv"

	catalogDatamodel "github.com/frahmantamala/institution-management/internal/core/datamodel/catalog"
)

// InstitutionRepository returns nil, nil when no institution matches.
type InstitutionRepository interface {
	FindBySchema(ctx context.Context, schemaName string) (*catalogDatamodel.Institution, error)
	FindByID(ctx context.Context, id int64) (*catalogDatamodel.Institution, error)
}

type PlanRepository interface {
	GetPermissionKeys(ctx context.Context, planID int64) ([]string, error)
}

type PermissionRepository interface {
	FindByKeys(ctx context.Context, keys []string) ([]*catalogDatamodel.Permission, error)
}

// RealmIdentity picks the identity provider realm for an institution:
// subdomain first, then slug, then the numeric id.
func RealmIdentity(inst *catalogDatamodel.Institution) string {
	if inst.Subdomain != nil && *inst.Subdomain != "" {
		return *inst.Subdomain
	}
	if inst.Slug != nil && *inst.Slug != "" {
		return *inst.Slug
	}
	return strconv.FormatInt(inst.ID, 10)
}
