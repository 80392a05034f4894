// Package audit records provisioning activity in the tenant's audit_logs table.
//
// Callers never wait on audit writes: Service publishes events on the bus and
// Recorder persists them from the bus goroutines. A failed write is logged and dropped.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	auditDatamodel "github.com/frahmantamala/institution-management/internal/core/datamodel/audit"
	"github.com/frahmantamala/institution-management/internal/core/events"
)

const (
	ActionUserCreated     = "user.created"
	ActionUserDeactivated = "user.deactivated"
	ActionBulkCompleted   = "user.bulk_created"
)

type Repository interface {
	Create(ctx context.Context, schema string, entry *auditDatamodel.AuditLog) error
	ListBySubject(ctx context.Context, schema string, subjectID int64) ([]auditDatamodel.AuditLog, error)
}

type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Service is the fire-and-forget entry point used by provisioning code.
type Service struct {
	bus     Publisher
	enabled bool
	logger  *slog.Logger
}

func NewService(bus Publisher, enabled bool, logger *slog.Logger) *Service {
	return &Service{bus: bus, enabled: enabled, logger: logger}
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if s == nil || !s.enabled || s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, e); err != nil {
		s.logger.Warn("audit event dropped",
			"event_type", e.EventType(),
			"tenant_schema", e.Tenant(),
			"error", err)
	}
}

func (s *Service) LogUserCreated(ctx context.Context, schema string, actorID, subjectID int64, email, userType string, roleID int64) {
	s.publish(ctx, events.NewUserProvisionedEvent(schema, subjectID, email, userType, roleID, actorID))
}

func (s *Service) LogUserDeactivated(ctx context.Context, schema string, actorID, subjectID int64) {
	s.publish(ctx, events.NewUserDeactivatedEvent(schema, subjectID, actorID))
}

func (s *Service) LogBulkCompleted(ctx context.Context, schema string, actorID int64, userType string, succeeded, failed int) {
	s.publish(ctx, events.NewBulkProvisioningCompletedEvent(schema, userType, succeeded+failed, succeeded, failed, actorID))
}

// Recorder turns bus events into audit rows.
type Recorder struct {
	repo   Repository
	logger *slog.Logger
}

func NewRecorder(repo Repository, logger *slog.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

func (r *Recorder) Register(bus *events.EventBus) {
	bus.Subscribe(events.EventTypeUserProvisioned, r.Handle)
	bus.Subscribe(events.EventTypeUserDeactivated, r.Handle)
	bus.Subscribe(events.EventTypeBulkProvisioningCompleted, r.Handle)
}

func (r *Recorder) Handle(ctx context.Context, e events.Event) error {
	entry, err := toEntry(e)
	if err != nil {
		return err
	}

	if err := r.repo.Create(ctx, e.Tenant(), entry); err != nil {
		r.logger.Error("failed to write audit log",
			"event_id", e.EventID(),
			"action", entry.Action,
			"tenant_schema", e.Tenant(),
			"error", err)
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

func toEntry(e events.Event) (*auditDatamodel.AuditLog, error) {
	payload, err := json.Marshal(e.Payload())
	if err != nil {
		return nil, fmt.Errorf("encode audit payload: %w", err)
	}

	entry := &auditDatamodel.AuditLog{
		EventID:   e.EventID(),
		Payload:   string(payload),
		CreatedAt: e.OccurredAt(),
	}

	switch ev := e.(type) {
	case *events.UserProvisionedEvent:
		entry.Action = ActionUserCreated
		entry.ActorID = ev.ActorID
		entry.SubjectID = &ev.UserID
	case *events.UserDeactivatedEvent:
		entry.Action = ActionUserDeactivated
		entry.ActorID = ev.ActorID
		entry.SubjectID = &ev.UserID
	case *events.BulkProvisioningCompletedEvent:
		entry.Action = ActionBulkCompleted
		entry.ActorID = ev.ActorID
	default:
		entry.Action = e.EventType()
	}
	return entry, nil
}
