package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
)

type BOMRepository struct {
	db *gorm.DB
}

func NewBOMRepository(db *gorm.DB) *BOMRepository {
	return &BOMRepository{db: db}
}

// CreateHeader persists a header with its details; activating it deactivates
// any previously active header for the same (product, stage).
func (r *BOMRepository) CreateHeader(ctx context.Context, h *entity.BOMHeader) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	now := time.Now()
	h.CreatedAt = now
	h.UpdatedAt = now
	for i := range h.Details {
		if h.Details[i].ID == "" {
			h.Details[i].ID = uuid.New().String()
		}
		h.Details[i].HeaderID = h.ID
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if h.Active {
			if err := tx.Model(&entity.BOMHeader{}).
				Where("product_id = ? AND stage = ? AND active = true", h.ProductID, h.Stage).
				Update("active", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(h).Error
	})
}

// ActiveHeader returns the single active header for (product, stage).
func (r *BOMRepository) ActiveHeader(ctx context.Context, productID string, stage entity.Department) (*entity.BOMHeader, error) {
	var h entity.BOMHeader
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND stage = ? AND active = true", productID, stage).
		First(&h).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &h, nil
}

// ActiveHeaders returns every active header for the product, any stage.
func (r *BOMRepository) ActiveHeaders(ctx context.Context, productID string) ([]entity.BOMHeader, error) {
	var hs []entity.BOMHeader
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND active = true", productID).
		Find(&hs).Error
	return hs, err
}

// Details returns the component lines of a header in stable order.
func (r *BOMRepository) Details(ctx context.Context, headerID string) ([]entity.BOMDetail, error) {
	var ds []entity.BOMDetail
	err := r.db.WithContext(ctx).
		Where("header_id = ?", headerID).
		Order("seq ASC, id ASC").
		Find(&ds).Error
	return ds, err
}

// Product resolves a product for the explosion walk.
func (r *BOMRepository) Product(ctx context.Context, id string) (*entity.Product, error) {
	var p entity.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &p, nil
}
