package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionCreateEntry  = "CREATE_ENTRY"
	ActionUpdateEntry  = "UPDATE_ENTRY"
	ActionDeleteEntry  = "DELETE_ENTRY"
	ActionSubmitEntry  = "SUBMIT_ENTRY"
	ActionApproveEntry = "APPROVE_ENTRY"
	ActionReturnEntry  = "RETURN_ENTRY"
	ActionBulkApprove  = "BULK_APPROVE"

	ActionCreateClient  = "CREATE_CLIENT"
	ActionDeleteClient  = "DELETE_CLIENT"
	ActionCreateProject = "CREATE_PROJECT"
	ActionDeleteProject = "DELETE_PROJECT"
)

// AuditLog records who changed which entry, client or project, and when
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // nil for system actions
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:jsonb" json:"details"` // JSON snapshot of the change
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
