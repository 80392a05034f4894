// Package tenant describes the institution a request operates on.
//
// A Context is resolved once per request (see the transport middleware) and
// then passed explicitly to every service and repository call. There is no
// process-wide "current tenant".
package tenant

import (
	"context"
	"fmt"
	"regexp"

	errors "github.com/frahmantamala/institution-management/internal"
	"gorm.io/gorm/clause"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusInactive  Status = "inactive"
)

// PublicSchema holds the platform catalog and is never a tenant schema.
const PublicSchema = "public"

var schemaNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

type Context struct {
	SchemaName    string
	InstitutionID int64
	Status        Status
}

func New(schemaName string, institutionID int64, status Status) (Context, error) {
	if err := ValidateSchemaName(schemaName); err != nil {
		return Context{}, err
	}
	return Context{
		SchemaName:    schemaName,
		InstitutionID: institutionID,
		Status:        status,
	}, nil
}

// ValidateSchemaName guards every place a schema name is interpolated into SQL.
func ValidateSchemaName(name string) error {
	if name == PublicSchema || !schemaNamePattern.MatchString(name) {
		return errors.NewValidationError(fmt.Sprintf("invalid tenant schema %q", name), errors.ErrCodeInvalidSchema)
	}
	return nil
}

func (c Context) IsActive() bool {
	return c.Status == StatusActive
}

// Table qualifies a tenant table name with the schema.
func (c Context) Table(name string) string {
	return Table(c.SchemaName, name)
}

func Table(schema, name string) string {
	return schema + "." + name
}

// Into names the schema-qualified target of an INSERT explicitly, so the
// statement never falls back to an unqualified table name.
func Into(schema, name string) clause.Insert {
	return clause.Insert{Table: clause.Table{Name: Table(schema, name)}}
}

type ctxKey struct{}

func WithContext(ctx context.Context, t Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, t)
}

func FromContext(ctx context.Context) (Context, bool) {
	t, ok := ctx.Value(ctxKey{}).(Context)
	return t, ok
}
