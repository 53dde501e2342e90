package repository

import (
	"errors"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("record not found")

// Repositories bundles every MES repository over one DB handle.
type Repositories struct {
	Product    *ProductRepository
	BOM        *BOMRepository
	MO         *MORepository
	WO         *WORepository
	Allocation *AllocationRepository
	Debt       *DebtRepository
	Inventory  *InventoryRepository
	Approval   *ApprovalRepository
	Rework     *ReworkRepository
	Audit      *AuditLogRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Product:    NewProductRepository(db),
		BOM:        NewBOMRepository(db),
		MO:         NewMORepository(db),
		WO:         NewWORepository(db),
		Allocation: NewAllocationRepository(db),
		Debt:       NewDebtRepository(db),
		Inventory:  NewInventoryRepository(db),
		Approval:   NewApprovalRepository(db),
		Rework:     NewReworkRepository(db),
		Audit:      NewAuditLogRepository(db),
	}
}

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
