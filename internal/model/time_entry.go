package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryStatus is the lifecycle state of a time entry.
type EntryStatus string

const (
	StatusDraft    EntryStatus = "draft"
	StatusPending  EntryStatus = "pending"
	StatusApproved EntryStatus = "approved"
)

func (s EntryStatus) Valid() bool {
	return s == StatusDraft || s == StatusPending || s == StatusApproved
}

// HoursStep is the minimum granularity of logged hours.
var HoursStep = decimal.RequireFromString("0.25")

// TimeEntry is one day's hours against one project.
// ApprovedBy and ApprovedAt are set together, only while Status is approved.
type TimeEntry struct {
	ID            uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Date          time.Time       `gorm:"type:date;not null;index" json:"date"`
	Hours         decimal.Decimal `gorm:"type:decimal(6,2);not null" json:"hours"`
	Description   string          `gorm:"type:varchar(500)" json:"description"`
	ProjectID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"project_id"`
	Project       *Project        `gorm:"foreignKey:ProjectID;constraint:OnDelete:RESTRICT;" json:"project,omitempty"`
	UserID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	User          *User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Status        EntryStatus     `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	ApprovedBy    *uuid.UUID      `gorm:"type:uuid" json:"approved_by"`
	Approver      *User           `gorm:"foreignKey:ApprovedBy" json:"approver,omitempty"`
	ApprovedAt    *time.Time      `json:"approved_at"`
	ReturnComment string          `gorm:"type:varchar(500)" json:"return_comment"`
	Version       int             `gorm:"not null;default:1" json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
