package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
)

type WORepository struct {
	db *gorm.DB
}

func NewWORepository(db *gorm.DB) *WORepository {
	return &WORepository{db: db}
}

func (r *WORepository) Create(ctx context.Context, wo *entity.WorkOrder) error {
	if wo.ID == "" {
		wo.ID = uuid.New().String()
	}
	now := time.Now()
	wo.CreatedAt = now
	wo.UpdatedAt = now
	return r.db.WithContext(ctx).Create(wo).Error
}

func (r *WORepository) FindByID(ctx context.Context, id string) (*entity.WorkOrder, error) {
	var wo entity.WorkOrder
	if err := r.db.WithContext(ctx).
		Preload("OutputProduct").
		Where("id = ?", id).
		First(&wo).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &wo, nil
}

// LockWO loads the WO row FOR UPDATE inside the caller's transaction.
func LockWO(tx *gorm.DB, id string) (*entity.WorkOrder, error) {
	var wo entity.WorkOrder
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&wo).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &wo, nil
}

// ListByMO returns the MO's work orders in routing order.
func (r *WORepository) ListByMO(ctx context.Context, moID string) ([]entity.WorkOrder, error) {
	var wos []entity.WorkOrder
	err := r.db.WithContext(ctx).
		Where("mo_id = ?", moID).
		Order("seq ASC").
		Find(&wos).Error
	return wos, err
}

type WOListParams struct {
	MOID       string
	Department entity.Department
	Status     entity.WOStatus
	Page       int
	PageSize   int
}

func (r *WORepository) List(ctx context.Context, params WOListParams) ([]entity.WorkOrder, int64, error) {
	var items []entity.WorkOrder
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.WorkOrder{})
	if params.MOID != "" {
		query = query.Where("mo_id = ?", params.MOID)
	}
	if params.Department != "" {
		query = query.Where("department = ?", params.Department)
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
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
	err := query.Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&items).Error
	return items, total, err
}
