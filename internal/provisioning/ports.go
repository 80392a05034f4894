package provisioning

import (
	"context"

	coreUser "github.com/frahmantamala/institution-management/internal/core/user"
	"github.com/frahmantamala/institution-management/internal/identity"
	"gorm.io/gorm"
)

// IdentityProvider is the part of the identity provider client the saga drives.
type IdentityProvider interface {
	CreateAccount(ctx context.Context, realm string, acct identity.Account, tempCredential string, roles []string) (string, error)
	DeleteAccount(ctx context.Context, realm, externalID string) error
}

type ScopeResolver interface {
	Scope(ctx context.Context, planID int64) ([]string, error)
}

// RoleResolver resolves the role for a new user. A nil tx runs on the root connection.
type RoleResolver interface {
	ResolveRole(ctx context.Context, tx *gorm.DB, schema string, userType coreUser.UserType) (int64, error)
}

type Auditor interface {
	LogUserCreated(ctx context.Context, schema string, actorID, subjectID int64, email, userType string, roleID int64)
	LogBulkCompleted(ctx context.Context, schema string, actorID int64, userType string, succeeded, failed int)
}
