package provisioning

import (
	"context"
	"fmt"
	"log/slog"

	appErrors "github.com/frahmantamala/institution-management/internal"
	coreUser "github.com/frahmantamala/institution-management/internal/core/user"
	"github.com/frahmantamala/institution-management/internal/metrics"
	"github.com/frahmantamala/institution-management/internal/tenant"
	"golang.org/x/sync/errgroup"
)

const DefaultChunkSize = 10

type Provisioner interface {
	Provision(ctx context.Context, tc tenant.Context, adminUserID int64, userType coreUser.UserType, data NewUserData) (*ProvisionedUser, error)
}

// BulkCoordinator provisions chunk by chunk. Items inside a chunk run concurrently and
// the next chunk starts only after every item of the current one settled.
type BulkCoordinator struct {
	provisioner Provisioner
	roles       RoleResolver
	audit       Auditor
	chunkSize   int
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewBulkCoordinator(provisioner Provisioner, roles RoleResolver, audit Auditor, chunkSize int, m *metrics.Metrics, logger *slog.Logger) *BulkCoordinator {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &BulkCoordinator{
		provisioner: provisioner,
		roles:       roles,
		audit:       audit,
		chunkSize:   chunkSize,
		metrics:     m,
		logger:      logger,
	}
}

type itemOutcome struct {
	user *ProvisionedUser
	err  error
}

// ProvisionMany never fails because of an individual item; each failure is reported
// in the result next to the item's email. Results keep input order.
func (b *BulkCoordinator) ProvisionMany(ctx context.Context, tc tenant.Context, adminUserID int64, userType coreUser.UserType, items []NewUserData) (*BulkResult, error) {
	if !userType.IsValid() {
		return nil, appErrors.NewValidationFieldError("user_type", fmt.Sprintf("unknown user type %q", userType), appErrors.ErrCodeInvalidUserType)
	}

	// Resolve once up front so concurrent items share one fallback role.
	if b.roles != nil {
		if _, err := b.roles.ResolveRole(ctx, nil, tc.SchemaName, userType); err != nil {
			b.logger.Warn("bulk: could not pre-resolve role", "tenant_schema", tc.SchemaName, "user_type", string(userType), "error", err)
		}
	}

	outcomes := make([]itemOutcome, len(items))
	for start := 0; start < len(items); start += b.chunkSize {
		end := min(start+b.chunkSize, len(items))

		if err := ctx.Err(); err != nil {
			for i := start; i < len(items); i++ {
				outcomes[i] = itemOutcome{err: fmt.Errorf("bulk provisioning cancelled: %w", err)}
			}
			break
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				u, err := b.provisioner.Provision(ctx, tc, adminUserID, userType, items[i])
				outcomes[i] = itemOutcome{user: u, err: err}
				return nil
			})
		}
		_ = g.Wait()

		b.logger.Debug("bulk chunk settled", "tenant_schema", tc.SchemaName, "from", start, "to", end)
	}

	result := &BulkResult{
		Succeeded: make([]ProvisionedUser, 0, len(items)),
		Failed:    make([]BulkFailure, 0),
	}
	for i, o := range outcomes {
		b.metrics.ObserveBulkItem(string(userType), o.err)
		if o.err != nil {
			result.Failed = append(result.Failed, BulkFailure{
				Email:        items[i].Email,
				ErrorMessage: errorMessage(o.err),
			})
			continue
		}
		result.Succeeded = append(result.Succeeded, *o.user)
	}

	b.logger.Info("bulk provisioning completed",
		"tenant_schema", tc.SchemaName,
		"user_type", string(userType),
		"total", len(items),
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed))
	if b.audit != nil {
		b.audit.LogBulkCompleted(ctx, tc.SchemaName, adminUserID, string(userType), len(result.Succeeded), len(result.Failed))
	}

	return result, nil
}

func errorMessage(err error) string {
	if appErr, ok := appErrors.IsAppError(err); ok {
		return appErr.GetDetailedMessage()
	}
	return err.Error()
}
