package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
)

type ApprovalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

func (r *ApprovalRepository) FindByID(ctx context.Context, id string) (*entity.ApprovalRequest, error) {
	var req entity.ApprovalRequest
	if err := r.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("step_index ASC") }).
		Where("id = ?", id).
		First(&req).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &req, nil
}

// LockRequest loads the request row FOR UPDATE inside the caller's
// transaction so two approvers cannot both finalize the same step.
func LockApprovalRequest(tx *gorm.DB, id string) (*entity.ApprovalRequest, error) {
	var req entity.ApprovalRequest
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&req).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &req, nil
}

type ApprovalListParams struct {
	EntityType string
	EntityID   string
	Status     entity.ApprovalStatus
	Role       entity.ApprovalRole // pending at this role's step
	Page       int
	PageSize   int
}

func (r *ApprovalRepository) List(ctx context.Context, params ApprovalListParams) ([]entity.ApprovalRequest, int64, error) {
	var items []entity.ApprovalRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ApprovalRequest{})
	if params.EntityType != "" {
		query = query.Where("entity_type = ?", params.EntityType)
	}
	if params.EntityID != "" {
		query = query.Where("entity_id = ?", params.EntityID)
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.Role != "" {
		query = query.Where("id IN (?)", r.db.Model(&entity.ApprovalStep{}).
			Select("request_id").
			Where("role = ? AND status = ?", params.Role, entity.ApprovalStatusPending))
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, size := params.Page, params.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	err := query.
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("step_index ASC") }).
		Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&items).Error
	return items, total, err
}
