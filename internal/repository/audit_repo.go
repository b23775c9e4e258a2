package repository

import (
	"context"

	"timetracker/internal/model"
	"timetracker/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditFilter narrows List. Zero values mean "no constraint".
type AuditFilter struct {
	EntityID string
	Action   string
	UserID   *uuid.UUID
	// OldestFirst orders the history chronologically, as an entry's
	// transition trail reads.
	OldestFirst bool
}

type AuditRepository interface {
	Log(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, filter AuditFilter, page pagination.Params) ([]model.AuditLog, int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Log(ctx context.Context, entry *model.AuditLog) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter, page pagination.Params) ([]model.AuditLog, int64, error) {
	var logs []model.AuditLog
	var total int64

	db := GetDB(ctx, r.db)
	if err := applyAuditFilter(db.Model(&model.AuditLog{}), filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at DESC"
	if filter.OldestFirst {
		order = "created_at ASC"
	}
	fetch := applyAuditFilter(db.Preload("User"), filter).Order(order).Scopes(page.Scope)
	if err := fetch.Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

func applyAuditFilter(q *gorm.DB, f AuditFilter) *gorm.DB {
	if f.EntityID != "" {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	return q
}
