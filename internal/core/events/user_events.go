package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeUserProvisioned           = "user.provisioned"
	EventTypeUserDeactivated           = "user.deactivated"
	EventTypeBulkProvisioningCompleted = "user.bulk_provisioning_completed"
)

type UserProvisionedEvent struct {
	BaseEvent
	UserID   int64  `json:"user_id"`
	Email    string `json:"email"`
	UserType string `json:"user_type"`
	RoleID   int64  `json:"role_id"`
	ActorID  int64  `json:"actor_id"`
}

func NewUserProvisionedEvent(schema string, userID int64, email, userType string, roleID, actorID int64) *UserProvisionedEvent {
	return &UserProvisionedEvent{
		BaseEvent: BaseEvent{
			ID:           uuid.New().String(),
			Type:         EventTypeUserProvisioned,
			TenantSchema: schema,
			Timestamp:    time.Now(),
			Data: map[string]any{
				"user_id":   userID,
				"email":     email,
				"user_type": userType,
				"role_id":   roleID,
				"actor_id":  actorID,
			},
		},
		UserID:   userID,
		Email:    email,
		UserType: userType,
		RoleID:   roleID,
		ActorID:  actorID,
	}
}

type UserDeactivatedEvent struct {
	BaseEvent
	UserID  int64 `json:"user_id"`
	ActorID int64 `json:"actor_id"`
}

func NewUserDeactivatedEvent(schema string, userID, actorID int64) *UserDeactivatedEvent {
	return &UserDeactivatedEvent{
		BaseEvent: BaseEvent{
			ID:           uuid.New().String(),
			Type:         EventTypeUserDeactivated,
			TenantSchema: schema,
			Timestamp:    time.Now(),
			Data: map[string]any{
				"user_id":  userID,
				"actor_id": actorID,
			},
		},
		UserID:  userID,
		ActorID: actorID,
	}
}

// BulkProvisioningCompletedEvent is published once per bulk request, after every item settled.
type BulkProvisioningCompletedEvent struct {
	BaseEvent
	UserType  string `json:"user_type"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	ActorID   int64  `json:"actor_id"`
}

func NewBulkProvisioningCompletedEvent(schema, userType string, total, succeeded, failed int, actorID int64) *BulkProvisioningCompletedEvent {
	return &BulkProvisioningCompletedEvent{
		BaseEvent: BaseEvent{
			ID:           uuid.New().String(),
			Type:         EventTypeBulkProvisioningCompleted,
			TenantSchema: schema,
			Timestamp:    time.Now(),
			Data: map[string]any{
				"user_type": userType,
				"total":     total,
				"succeeded": succeeded,
				"failed":    failed,
				"actor_id":  actorID,
			},
		},
		UserType:  userType,
		Total:     total,
		Succeeded: succeeded,
		Failed:    failed,
		ActorID:   actorID,
	}
}
