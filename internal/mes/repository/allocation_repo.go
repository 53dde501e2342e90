package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
)

type AllocationRepository struct {
	db *gorm.DB
}

func NewAllocationRepository(db *gorm.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

func (r *AllocationRepository) FindByID(ctx context.Context, id string) (*entity.MaterialAllocation, error) {
	var a entity.MaterialAllocation
	if err := r.db.WithContext(ctx).
		Preload("Debts").
		Where("id = ?", id).
		First(&a).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &a, nil
}

// ListByOrder returns the allocation batch of an order, stable by product
// code.
func (r *AllocationRepository) ListByOrder(ctx context.Context, orderType entity.OrderType, orderID string) ([]entity.MaterialAllocation, error) {
	var items []entity.MaterialAllocation
	err := r.db.WithContext(ctx).
		Preload("Debts").
		Where("order_type = ? AND order_id = ?", orderType, orderID).
		Order("product_code ASC").
		Find(&items).Error
	return items, err
}

// CountActive counts non-cancelled lines for an order inside the caller's
// transaction; used as the double-allocation guard.
func CountActiveAllocations(tx *gorm.DB, orderType entity.OrderType, orderID string) (int64, error) {
	var n int64
	err := tx.Model(&entity.MaterialAllocation{}).
		Where("order_type = ? AND order_id = ? AND status <> ?", orderType, orderID, entity.AllocStatusCancelled).
		Count(&n).Error
	return n, err
}

// LockByOrder loads an order's non-cancelled lines FOR UPDATE, in product
// code order so concurrent operations acquire locks consistently.
func LockAllocationsByOrder(tx *gorm.DB, orderType entity.OrderType, orderID string) ([]entity.MaterialAllocation, error) {
	var items []entity.MaterialAllocation
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_type = ? AND order_id = ? AND status <> ?", orderType, orderID, entity.AllocStatusCancelled).
		Order("product_code ASC").
		Find(&items).Error
	return items, err
}
