// Package provisioning creates tenant users as a two-step saga: the identity
// provider account first, then the local rows in one transaction. When the local
// transaction fails the account is deleted again.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	appErrors "github.com/frahmantamala/institution-management/internal"
	"github.com/frahmantamala/institution-management/internal/auth"
	"github.com/frahmantamala/institution-management/internal/catalog"
	userDatamodel "github.com/frahmantamala/institution-management/internal/core/datamodel/user"
	coreUser "github.com/frahmantamala/institution-management/internal/core/user"
	"github.com/frahmantamala/institution-management/internal/identity"
	"github.com/frahmantamala/institution-management/internal/metrics"
	"github.com/frahmantamala/institution-management/internal/planscope"
	"github.com/frahmantamala/institution-management/internal/tenant"
	"github.com/frahmantamala/institution-management/internal/user"
	"gorm.io/gorm"
)

type State string

const (
	StateValidate          State = "VALIDATE"
	StateResolvePlan       State = "RESOLVE_PLAN"
	StateCheckDuplicate    State = "CHECK_DUPLICATE"
	StateCreateIdentity    State = "CREATE_IDENTITY"
	StateBeginTx           State = "BEGIN_TX"
	StateCreateLocalUser   State = "CREATE_LOCAL_USER"
	StateResolveRole       State = "RESOLVE_ROLE"
	StateAssignRole        State = "ASSIGN_ROLE"
	StateAssignPermissions State = "ASSIGN_PERMISSIONS"
	StateCreateProfile     State = "CREATE_PROFILE"
	StateCommitTx          State = "COMMIT_TX"
	StateSuccess           State = "SUCCESS"
)

type Dependencies struct {
	DB           *gorm.DB
	Institutions catalog.InstitutionRepository
	Permissions  catalog.PermissionRepository
	Scopes       ScopeResolver
	Roles        RoleResolver
	Users        user.Repository
	Identity     IdentityProvider
	Audit        Auditor
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

type Orchestrator struct {
	db           *gorm.DB
	institutions catalog.InstitutionRepository
	permissions  catalog.PermissionRepository
	scopes       ScopeResolver
	roles        RoleResolver
	users        user.Repository
	idp          IdentityProvider
	audit        Auditor
	metrics      *metrics.Metrics
	logger       *slog.Logger

	newCredential func() (string, error)
}

func NewOrchestrator(deps Dependencies) *Orchestrator {
	return &Orchestrator{
		db:            deps.DB,
		institutions:  deps.Institutions,
		permissions:   deps.Permissions,
		scopes:        deps.Scopes,
		roles:         deps.Roles,
		users:         deps.Users,
		idp:           deps.Identity,
		audit:         deps.Audit,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		newCredential: identity.GenerateTemporaryPassword,
	}
}

// plan is what RESOLVE_PLAN hands to the later steps.
type plan struct {
	institutionID int64
	realm         string
	grants        []userDatamodel.UserPermission
}

// Provision runs the saga for one user. On success the returned user is committed
// locally and exists in the identity provider; on failure no local rows remain.
func (o *Orchestrator) Provision(ctx context.Context, tc tenant.Context, adminUserID int64, userType coreUser.UserType, data NewUserData) (_ *ProvisionedUser, err error) {
	start := time.Now()
	state := StateValidate
	defer func() {
		failed := ""
		if err != nil {
			failed = string(state)
		}
		o.metrics.ObserveProvision(string(userType), failed, err, time.Since(start))
	}()

	schema := tc.SchemaName
	log := o.logger.With("tenant_schema", schema, "user_type", string(userType), "admin_user_id", adminUserID)

	data.Normalize()
	if !userType.IsValid() {
		return nil, appErrors.NewValidationFieldError("user_type", fmt.Sprintf("unknown user type %q", userType), appErrors.ErrCodeInvalidUserType)
	}
	if appErr := data.Validate(); appErr != nil {
		return nil, appErr
	}
	if !tc.IsActive() {
		return nil, appErrors.ErrTenantInactive
	}

	state = StateResolvePlan
	p, err := o.resolvePlan(ctx, schema, userType, data, adminUserID, log)
	if err != nil {
		return nil, err
	}

	state = StateCheckDuplicate
	if _, err := o.users.FindByEmail(ctx, nil, schema, data.Email); err == nil {
		return nil, appErrors.ErrDuplicateEmail
	} else if !errors.Is(err, user.ErrNotFound) {
		return nil, fmt.Errorf("check duplicate email: %w", err)
	}

	state = StateCreateIdentity
	credential, err := o.newCredential()
	if err != nil {
		return nil, appErrors.NewInternalError("failed to generate temporary credential", err)
	}
	externalID, err := o.idp.CreateAccount(ctx, p.realm, identity.Account{
		Email:     data.Email,
		FirstName: data.FirstName,
		LastName:  data.LastName,
	}, credential, []string{string(userType)})
	if err != nil {
		log.Error("identity provider account creation failed", "realm", p.realm, "error", err)
		return nil, appErrors.NewExternalError("failed to create identity provider account", appErrors.ErrCodeIdentityProviderFailed, err)
	}

	state = StateBeginTx
	var (
		row    *userDatamodel.User
		roleID int64
	)
	txErr := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state = StateCreateLocalUser
		row = &userDatamodel.User{
			Email:              data.Email,
			ExternalIdentityID: externalID,
			InstitutionID:      p.institutionID,
			UserType:           string(userType),
			FirstName:          data.FirstName,
			LastName:           data.LastName,
			IsActive:           true,
			CreatedBy:          adminUserID,
		}
		if err := o.users.Create(ctx, tx, schema, row); err != nil {
			return fmt.Errorf("create user: %w", err)
		}

		state = StateResolveRole
		var err error
		roleID, err = o.roles.ResolveRole(ctx, tx, schema, userType)
		if err != nil {
			return fmt.Errorf("resolve role: %w", err)
		}

		state = StateAssignRole
		if err := o.users.AssignRole(ctx, tx, schema, &userDatamodel.UserRole{
			UserID:     row.ID,
			RoleID:     roleID,
			AssignedBy: adminUserID,
		}); err != nil {
			return fmt.Errorf("assign role: %w", err)
		}

		state = StateAssignPermissions
		for i := range p.grants {
			p.grants[i].UserID = row.ID
		}
		if err := o.users.GrantPermissions(ctx, tx, schema, p.grants); err != nil {
			return fmt.Errorf("grant permissions: %w", err)
		}

		state = StateCreateProfile
		if err := o.createProfile(ctx, tx, schema, userType, row.ID, data); err != nil {
			return fmt.Errorf("create profile: %w", err)
		}

		state = StateCommitTx
		return nil
	})
	if txErr != nil {
		log.Error("local provisioning failed, compensating",
			"saga_state", string(state),
			"realm", p.realm,
			"external_identity_id", externalID,
			"error", txErr)
		o.compensate(ctx, p.realm, externalID, log)
		return nil, txErr
	}

	state = StateSuccess
	log.Info("user provisioned", "user_id", row.ID, "role_id", roleID, "grants", len(p.grants))
	if o.audit != nil {
		o.audit.LogUserCreated(ctx, schema, adminUserID, row.ID, row.Email, row.UserType, roleID)
	}

	return &ProvisionedUser{
		ID:                 row.ID,
		Email:              row.Email,
		FirstName:          row.FirstName,
		LastName:           row.LastName,
		UserType:           row.UserType,
		ExternalIdentityID: externalID,
	}, nil
}

// resolvePlan loads the institution, its realm and the plan-bounded grants. Permission
// ids are read here so the local transaction only writes.
func (o *Orchestrator) resolvePlan(ctx context.Context, schema string, userType coreUser.UserType, data NewUserData, adminUserID int64, log *slog.Logger) (*plan, error) {
	inst, err := o.institutions.FindBySchema(ctx, schema)
	if err != nil {
		return nil, fmt.Errorf("find institution: %w", err)
	}
	if inst == nil {
		return nil, appErrors.ErrInstitutionNotFound
	}
	if inst.PlanID == nil {
		return nil, appErrors.ErrPlanNotAssigned
	}

	scope, err := o.scopes.Scope(ctx, *inst.PlanID)
	if err != nil {
		return nil, fmt.Errorf("resolve plan scope: %w", err)
	}

	requested := data.Permissions
	if len(requested) == 0 {
		requested = planscope.Template(userType)
	}
	keys := planscope.FilterByScope(requested, scope)
	// An authenticated caller cannot hand out more than it holds. Without a
	// principal (the provision CLI) the operator is trusted.
	if principal, ok := auth.PrincipalFromContext(ctx); ok {
		if delegable := principal.Delegable(keys); len(delegable) < len(keys) {
			log.Warn("permissions withheld beyond the caller's own grants",
				"caller_id", principal.UserID, "requested", keys, "granted", delegable)
			keys = delegable
		}
	}

	p := &plan{institutionID: inst.ID, realm: catalog.RealmIdentity(inst)}
	if len(keys) == 0 {
		log.Warn("no permissions granted within plan scope", "plan_id", *inst.PlanID, "requested", requested)
		return p, nil
	}

	perms, err := o.permissions.FindByKeys(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load permissions: %w", err)
	}
	if len(perms) != len(keys) {
		log.Warn("plan references permission keys missing from the catalog", "plan_id", *inst.PlanID, "keys", keys)
	}

	p.grants = make([]userDatamodel.UserPermission, 0, len(perms))
	for _, perm := range perms {
		p.grants = append(p.grants, userDatamodel.UserPermission{
			PermissionID:  perm.ID,
			PermissionKey: perm.Key,
			GrantedBy:     adminUserID,
		})
	}
	return p, nil
}

func (o *Orchestrator) createProfile(ctx context.Context, tx *gorm.DB, schema string, userType coreUser.UserType, userID int64, data NewUserData) error {
	switch userType {
	case coreUser.TypeTeacher:
		profile := &userDatamodel.Teacher{UserID: userID}
		if data.Teacher != nil {
			profile.EmployeeID = data.Teacher.EmployeeID
			profile.Department = data.Teacher.Department
			profile.Qualification = data.Teacher.Qualification
		}
		return o.users.CreateTeacherProfile(ctx, tx, schema, profile)
	case coreUser.TypeStudent:
		profile := &userDatamodel.Student{UserID: userID}
		if data.Student != nil {
			profile.AdmissionNumber = data.Student.AdmissionNumber
			profile.GradeLevel = data.Student.GradeLevel
		}
		return o.users.CreateStudentProfile(ctx, tx, schema, profile)
	}
	return nil
}

// compensate deletes the identity provider account once. Its failure is logged and
// counted but never returned.
func (o *Orchestrator) compensate(ctx context.Context, realm, externalID string, log *slog.Logger) {
	err := o.idp.DeleteAccount(context.WithoutCancel(ctx), realm, externalID)
	o.metrics.ObserveCompensation(err)
	if err != nil {
		log.Error("compensation failed, identity provider account left behind",
			"realm", realm,
			"external_identity_id", externalID,
			"error", err)
		return
	}
	log.Info("identity provider account removed", "realm", realm, "external_identity_id", externalID)
}
