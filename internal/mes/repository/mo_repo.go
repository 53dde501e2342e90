package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
)

type MORepository struct {
	db *gorm.DB
}

func NewMORepository(db *gorm.DB) *MORepository {
	return &MORepository{db: db}
}

func (r *MORepository) Create(ctx context.Context, mo *entity.ManufacturingOrder) error {
	if mo.ID == "" {
		mo.ID = uuid.New().String()
	}
	now := time.Now()
	mo.CreatedAt = now
	mo.UpdatedAt = now
	return r.db.WithContext(ctx).Create(mo).Error
}

func (r *MORepository) FindByID(ctx context.Context, id string) (*entity.ManufacturingOrder, error) {
	var mo entity.ManufacturingOrder
	if err := r.db.WithContext(ctx).
		Preload("Product").
		Where("id = ?", id).
		First(&mo).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &mo, nil
}

// LockMO loads the MO row FOR UPDATE inside the caller's transaction.
func LockMO(tx *gorm.DB, id string) (*entity.ManufacturingOrder, error) {
	var mo entity.ManufacturingOrder
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&mo).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &mo, nil
}

type MOListParams struct {
	Status    entity.MOStatus
	ProductID string
	Week      string
	Page      int
	PageSize  int
}

func (r *MORepository) List(ctx context.Context, params MOListParams) ([]entity.ManufacturingOrder, int64, error) {
	var items []entity.ManufacturingOrder
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ManufacturingOrder{})
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.ProductID != "" {
		query = query.Where("product_id = ?", params.ProductID)
	}
	if params.Week != "" {
		query = query.Where("week = ?", params.Week)
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
