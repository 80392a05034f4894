package provisioning_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	userDatamodel "github.com/frahmantamala/institution-management/internal/core/datamodel/user"
	"github.com/frahmantamala/institution-management/internal/identity"
	"github.com/frahmantamala/institution-management/internal/user"
	"gorm.io/gorm"
)

type createCall struct {
	Realm      string
	Account    identity.Account
	Credential string
	Roles      []string
}

// FakeIdentityProvider records calls and tracks how many creates overlap.
type FakeIdentityProvider struct {
	mu       sync.Mutex
	creates  []createCall
	deletes  []string
	seq      int
	inflight atomic.Int32
	peak     atomic.Int32

	FixedID   string
	CreateErr error
	DeleteErr error
	Delay     time.Duration
}

func (f *FakeIdentityProvider) CreateAccount(_ context.Context, realm string, acct identity.Account, cred string, roles []string) (string, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, createCall{Realm: realm, Account: acct, Credential: cred, Roles: roles})
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	if f.FixedID != "" {
		return f.FixedID, nil
	}
	f.seq++
	return fmt.Sprintf("kc-%d", f.seq), nil
}

func (f *FakeIdentityProvider) DeleteAccount(_ context.Context, _ string, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, externalID)
	return f.DeleteErr
}

func (f *FakeIdentityProvider) Creates() []createCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]createCall(nil), f.creates...)
}

func (f *FakeIdentityProvider) Deletes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletes...)
}

func (f *FakeIdentityProvider) Peak() int {
	return int(f.peak.Load())
}

type auditRecord struct {
	SubjectID int64
	Email     string
	UserType  string
	Succeeded int
	Failed    int
}

type FakeAuditor struct {
	mu      sync.Mutex
	created []auditRecord
	bulk    []auditRecord
}

func (a *FakeAuditor) LogUserCreated(_ context.Context, _ string, _, subjectID int64, email, userType string, _ int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.created = append(a.created, auditRecord{SubjectID: subjectID, Email: email, UserType: userType})
}

func (a *FakeAuditor) LogBulkCompleted(_ context.Context, _ string, _ int64, userType string, succeeded, failed int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bulk = append(a.bulk, auditRecord{UserType: userType, Succeeded: succeeded, Failed: failed})
}

var errInjected = errors.New("injected failure")

// FailingUserRepository fails the named step and delegates everything else.
type FailingUserRepository struct {
	user.Repository
	FailAt string
}

func (r *FailingUserRepository) AssignRole(ctx context.Context, tx *gorm.DB, schema string, ur *userDatamodel.UserRole) error {
	if r.FailAt == "assign_role" {
		return errInjected
	}
	return r.Repository.AssignRole(ctx, tx, schema, ur)
}

func (r *FailingUserRepository) GrantPermissions(ctx context.Context, tx *gorm.DB, schema string, grants []userDatamodel.UserPermission) error {
	if r.FailAt == "grant_permissions" {
		return errInjected
	}
	return r.Repository.GrantPermissions(ctx, tx, schema, grants)
}

func (r *FailingUserRepository) CreateTeacherProfile(ctx context.Context, tx *gorm.DB, schema string, p *userDatamodel.Teacher) error {
	if r.FailAt == "create_profile" {
		return errInjected
	}
	return r.Repository.CreateTeacherProfile(ctx, tx, schema, p)
}
