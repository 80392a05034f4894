package postgres

import (
	"context"

	"github.com/frahmantamala/institution-management/internal/audit"
	auditDatamodel "github.com/frahmantamala/institution-management/internal/core/datamodel/audit"
	"github.com/frahmantamala/institution-management/internal/tenant"
	"gorm.io/gorm"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) audit.Repository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, schema string, entry *auditDatamodel.AuditLog) error {
	return r.db.WithContext(ctx).Table(tenant.Table(schema, "audit_logs")).
		Clauses(tenant.Into(schema, "audit_logs")).
		Create(entry).Error
}

func (r *AuditRepository) ListBySubject(ctx context.Context, schema string, subjectID int64) ([]auditDatamodel.AuditLog, error) {
	var entries []auditDatamodel.AuditLog
	err := r.db.WithContext(ctx).Table(tenant.Table(schema, "audit_logs")).
		Where("subject_id = ?", subjectID).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
