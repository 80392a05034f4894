package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	appErrors "github.com/frahmantamala/institution-management/internal"
	"github.com/frahmantamala/institution-management/internal/catalog"
	userDatamodel "github.com/frahmantamala/institution-management/internal/core/datamodel/user"
	"github.com/frahmantamala/institution-management/internal/tenant"
	"gorm.io/gorm"
)

// Repository methods run on tx when it is non-nil and on the root connection otherwise.
type Repository interface {
	FindByEmail(ctx context.Context, tx *gorm.DB, schema, email string) (*userDatamodel.User, error)
	FindByID(ctx context.Context, tx *gorm.DB, schema string, id int64) (*userDatamodel.User, error)
	List(ctx context.Context, schema string, filter ListFilter) ([]userDatamodel.User, error)
	Create(ctx context.Context, tx *gorm.DB, schema string, u *userDatamodel.User) error
	AssignRole(ctx context.Context, tx *gorm.DB, schema string, ur *userDatamodel.UserRole) error
	GrantPermissions(ctx context.Context, tx *gorm.DB, schema string, grants []userDatamodel.UserPermission) error
	CreateTeacherProfile(ctx context.Context, tx *gorm.DB, schema string, p *userDatamodel.Teacher) error
	CreateStudentProfile(ctx context.Context, tx *gorm.DB, schema string, p *userDatamodel.Student) error
	GetEffectivePermissions(ctx context.Context, schema string, userID int64) ([]string, error)
	SetActive(ctx context.Context, schema string, id int64, active bool) error
}

type AccountDisabler interface {
	DisableAccount(ctx context.Context, realm, externalID string) error
}

type Auditor interface {
	LogUserDeactivated(ctx context.Context, schema string, actorID, subjectID int64)
}

type Service struct {
	repo         Repository
	institutions catalog.InstitutionRepository
	idp          AccountDisabler
	audit        Auditor
	logger       *slog.Logger
}

func NewService(repo Repository, institutions catalog.InstitutionRepository, idp AccountDisabler, audit Auditor, logger *slog.Logger) *Service {
	return &Service{
		repo:         repo,
		institutions: institutions,
		idp:          idp,
		audit:        audit,
		logger:       logger,
	}
}

// GetByID returns the user with the union of role and per-user permissions.
func (s *Service) GetByID(ctx context.Context, schema string, id int64) (*User, error) {
	row, err := s.repo.FindByID(ctx, nil, schema, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, appErrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	perms, err := s.repo.GetEffectivePermissions(ctx, schema, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user permissions: %w", err)
	}

	return FromDataModelWithPermissions(row, perms), nil
}

func (s *Service) List(ctx context.Context, schema string, filter ListFilter) ([]*User, error) {
	rows, err := s.repo.List(ctx, schema, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]*User, 0, len(rows))
	for i := range rows {
		users = append(users, FromDataModel(&rows[i]))
	}
	return users, nil
}

// Deactivate disables the identity provider account first, then the local row.
// Deactivating an inactive user is a no-op.
func (s *Service) Deactivate(ctx context.Context, tc tenant.Context, id, actorID int64) (*User, error) {
	row, err := s.repo.FindByID(ctx, nil, tc.SchemaName, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, appErrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	if !row.IsActive {
		return FromDataModel(row), nil
	}

	inst, err := s.institutions.FindBySchema(ctx, tc.SchemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to load institution: %w", err)
	}
	if inst == nil {
		return nil, appErrors.ErrInstitutionNotFound
	}
	realm := catalog.RealmIdentity(inst)

	if err := s.idp.DisableAccount(ctx, realm, row.ExternalIdentityID); err != nil {
		s.logger.Error("failed to disable identity provider account",
			"tenant_schema", tc.SchemaName,
			"user_id", id,
			"realm", realm,
			"error", err)
		return nil, appErrors.NewExternalError("failed to disable identity provider account", appErrors.ErrCodeIdentityProviderFailed, err)
	}

	if err := s.repo.SetActive(ctx, tc.SchemaName, id, false); err != nil {
		return nil, fmt.Errorf("failed to deactivate user: %w", err)
	}
	row.IsActive = false

	s.logger.Info("user deactivated", "tenant_schema", tc.SchemaName, "user_id", id, "actor_id", actorID)
	if s.audit != nil {
		s.audit.LogUserDeactivated(ctx, tc.SchemaName, actorID, id)
	}

	return FromDataModel(row), nil
}
