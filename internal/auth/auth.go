package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Permission keys guarding the administrative API.
const (
	PermissionUsersCreate     = "users.create"
	PermissionUsersView       = "users.view"
	PermissionUsersDeactivate = "users.deactivate"
	PermissionRolesManage     = "roles.manage"

	// PermissionAll grants every permission.
	PermissionAll = "*"
)

// Principal is the authenticated caller of an administrative request.
type Principal struct {
	UserID       int64    `json:"id"`
	Email        string   `json:"email"`
	TenantSchema string   `json:"tenant_schema,omitempty"`
	Permissions  []string `json:"permissions,omitempty"`
}

func (p *Principal) HasPermission(permission string) bool {
	for _, granted := range p.Permissions {
		if granted == permission || granted == PermissionAll {
			return true
		}
	}
	return false
}

// Delegable keeps the keys the principal holds itself. A principal holding
// PermissionAll may delegate anything.
func (p *Principal) Delegable(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if p.HasPermission(k) {
			out = append(out, k)
		}
	}
	return out
}

// Claims represents JWT token claims
type Claims struct {
	UserID       string   `json:"user_id"`
	Email        string   `json:"email"`
	TenantSchema string   `json:"tenant_schema,omitempty"`
	Permissions  []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

type JWTTokenGenerator struct {
	Secret         []byte
	Issuer         string
	AccessTokenTTL time.Duration
	now            func() time.Time
}

type ctxKey string

const ContextUserKey ctxKey = "principal"

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ContextUserKey, p)
}

func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ContextUserKey).(*Principal)
	return p, ok && p != nil
}
