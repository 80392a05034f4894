package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	userDatamodel "github.com/frahmantamala/institution-management/internal/core/datamodel/user"
	"github.com/frahmantamala/institution-management/internal/tenant"
	"github.com/frahmantamala/institution-management/internal/user"
	"gorm.io/gorm"
)

const defaultListLimit = 50

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) user.Repository {
	return &UserRepository{db: db}
}

func (r *UserRepository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

// FindByEmail matches case-insensitively; the users table carries a unique index on lower(email).
func (r *UserRepository) FindByEmail(ctx context.Context, tx *gorm.DB, schema, email string) (*userDatamodel.User, error) {
	var u userDatamodel.User
	err := r.conn(ctx, tx).Table(tenant.Table(schema, "users")).
		Where("LOWER(email) = LOWER(?)", email).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) FindByID(ctx context.Context, tx *gorm.DB, schema string, id int64) (*userDatamodel.User, error) {
	var u userDatamodel.User
	err := r.conn(ctx, tx).Table(tenant.Table(schema, "users")).
		Where("id = ?", id).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) List(ctx context.Context, schema string, filter user.ListFilter) ([]userDatamodel.User, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	q := r.db.WithContext(ctx).Table(tenant.Table(schema, "users"))
	if filter.UserType != "" {
		q = q.Where("user_type = ?", filter.UserType)
	}
	if filter.Active != nil {
		q = q.Where("is_active = ?", *filter.Active)
	}

	var users []userDatamodel.User
	if err := q.Order("id ASC").Limit(limit).Offset(filter.Offset).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) Create(ctx context.Context, tx *gorm.DB, schema string, u *userDatamodel.User) error {
	return r.conn(ctx, tx).Table(tenant.Table(schema, "users")).
		Clauses(tenant.Into(schema, "users")).
		Create(u).Error
}

func (r *UserRepository) AssignRole(ctx context.Context, tx *gorm.DB, schema string, ur *userDatamodel.UserRole) error {
	return r.conn(ctx, tx).Table(tenant.Table(schema, "user_roles")).
		Clauses(tenant.Into(schema, "user_roles")).
		Create(ur).Error
}

func (r *UserRepository) GrantPermissions(ctx context.Context, tx *gorm.DB, schema string, grants []userDatamodel.UserPermission) error {
	if len(grants) == 0 {
		return nil
	}
	return r.conn(ctx, tx).Table(tenant.Table(schema, "user_permissions")).
		Clauses(tenant.Into(schema, "user_permissions")).
		Create(&grants).Error
}

func (r *UserRepository) CreateTeacherProfile(ctx context.Context, tx *gorm.DB, schema string, p *userDatamodel.Teacher) error {
	return r.conn(ctx, tx).Table(tenant.Table(schema, "teachers")).
		Clauses(tenant.Into(schema, "teachers")).
		Create(p).Error
}

func (r *UserRepository) CreateStudentProfile(ctx context.Context, tx *gorm.DB, schema string, p *userDatamodel.Student) error {
	return r.conn(ctx, tx).Table(tenant.Table(schema, "students")).
		Clauses(tenant.Into(schema, "students")).
		Create(p).Error
}

// GetEffectivePermissions returns the sorted union of unexpired role permissions and user grants.
func (r *UserRepository) GetEffectivePermissions(ctx context.Context, schema string, userID int64) ([]string, error) {
	query := fmt.Sprintf(`
SELECT rp.permission_key FROM %s rp
JOIN %s ur ON ur.role_id = rp.role_id
WHERE ur.user_id = ? AND (ur.expires_at IS NULL OR ur.expires_at > ?)
UNION
SELECT up.permission_key FROM %s up
WHERE up.user_id = ? AND (up.expires_at IS NULL OR up.expires_at > ?)
ORDER BY 1`,
		tenant.Table(schema, "role_permissions"),
		tenant.Table(schema, "user_roles"),
		tenant.Table(schema, "user_permissions"),
	)

	now := time.Now()
	var keys []string
	if err := r.db.WithContext(ctx).Raw(query, userID, now, userID, now).Scan(&keys).Error; err != nil {
		return nil, fmt.Errorf("query effective permissions: %w", err)
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

func (r *UserRepository) SetActive(ctx context.Context, schema string, id int64, active bool) error {
	res := r.db.WithContext(ctx).Table(tenant.Table(schema, "users")).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  active,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return user.ErrNotFound
	}
	return nil
}
