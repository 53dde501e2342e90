package entity

import "time"

// AuditLog records every state transition and applied change for
// traceability. Written inside the same transaction as the mutation it
// describes.
type AuditLog struct {
	ID         string `json:"id" gorm:"primaryKey;size:36"`
	EntityType string `json:"entity_type" gorm:"size:30;not null;index:idx_audit_entity"`
	EntityID   string `json:"entity_id" gorm:"size:36;not null;index:idx_audit_entity"`
	EntityCode string `json:"entity_code" gorm:"size:50"`

	Action     string `json:"action" gorm:"size:50;not null"`
	FromStatus string `json:"from_status" gorm:"size:25"`
	ToStatus   string `json:"to_status" gorm:"size:25"`

	Before JSONB `json:"before" gorm:"type:jsonb"`
	After  JSONB `json:"after" gorm:"type:jsonb"`

	ActorID   string    `json:"actor_id" gorm:"size:36"`
	CreatedAt time.Time `json:"created_at"`
}

func (AuditLog) TableName() string {
	return "mes_audit_logs"
}
