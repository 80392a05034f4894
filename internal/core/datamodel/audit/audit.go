package audit

import "time"

type AuditLog struct {
	ID        int64     `gorm:"primaryKey"`
	EventID   string    `gorm:"column:event_id;not null"`
	Action    string    `gorm:"column:action;not null"`
	ActorID   int64     `gorm:"column:actor_id"`
	SubjectID *int64    `gorm:"column:subject_id"`
	Payload   string    `gorm:"column:payload"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
