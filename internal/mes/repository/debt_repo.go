package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
)

type DebtRepository struct {
	db *gorm.DB
}

func NewDebtRepository(db *gorm.DB) *DebtRepository {
	return &DebtRepository{db: db}
}

func (r *DebtRepository) FindByID(ctx context.Context, id string) (*entity.MaterialDebt, error) {
	var d entity.MaterialDebt
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &d, nil
}

// LockDebt loads the debt row FOR UPDATE inside the caller's transaction.
func LockDebt(tx *gorm.DB, id string) (*entity.MaterialDebt, error) {
	var d entity.MaterialDebt
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&d).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &d, nil
}

// ListByAllocation returns the debts raised for one allocation line.
func (r *DebtRepository) ListByAllocation(ctx context.Context, allocationID string) ([]entity.MaterialDebt, error) {
	var items []entity.MaterialDebt
	err := r.db.WithContext(ctx).
		Where("allocation_id = ?", allocationID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

// ListByStatus lists debts by lifecycle state, oldest first.
func (r *DebtRepository) ListByStatus(ctx context.Context, status entity.DebtStatus, page, pageSize int) ([]entity.MaterialDebt, int64, error) {
	var items []entity.MaterialDebt
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.MaterialDebt{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	err := query.Order("created_at ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&items).Error
	return items, total, err
}

// BlockingDebtsForOrder returns the debts tied to an order's allocations that
// still block WO completion, inside the caller's transaction.
func BlockingDebtsForOrder(tx *gorm.DB, orderType entity.OrderType, orderID string) ([]entity.MaterialDebt, error) {
	var debts []entity.MaterialDebt
	err := tx.
		Joins("JOIN mes_material_allocations a ON a.id = mes_material_debts.allocation_id").
		Where("a.order_type = ? AND a.order_id = ?", orderType, orderID).
		Where("mes_material_debts.status = ? OR (mes_material_debts.status = ? AND mes_material_debts.outstanding_qty > 0)",
			entity.DebtStatusPendingApproval, entity.DebtStatusApproved).
		Find(&debts).Error
	return debts, err
}
