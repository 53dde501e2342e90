package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
	"github.com/santz1994/ERP-sub002/internal/mes/repository"
)

// AllocateOptions tunes one allocation pass.
type AllocateOptions struct {
	WarehouseID string
	// AllowFullDebt turns a zero-stock line into a debt_created line instead
	// of failed.
	AllowFullDebt bool
}

// AllocationService consumes explosion output against the inventory ledger.
// One pass is one transaction: every requirement line lands with a terminal
// status or nothing is persisted at all.
type AllocationService struct {
	db        *gorm.DB
	allocRepo *repository.AllocationRepository
	debts     *DebtService
	logger    *zap.Logger
}

func NewAllocationService(db *gorm.DB, allocRepo *repository.AllocationRepository, debts *DebtService, logger *zap.Logger) *AllocationService {
	return &AllocationService{db: db, allocRepo: allocRepo, debts: debts, logger: logger}
}

// Allocate reserves stock for each requirement. Shortfalls become material
// debts pending approval; a second pass for an order that still has live
// lines is rejected with AlreadyAllocatedError.
func (s *AllocationService) Allocate(ctx context.Context, orderType entity.OrderType, orderID string, reqs []MaterialRequirement, opts AllocateOptions, actorID string) ([]entity.MaterialAllocation, error) {
	var lines []entity.MaterialAllocation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockOrder(tx, orderType, orderID); err != nil {
			return err
		}
		var err error
		lines, err = s.allocateInTx(ctx, tx, orderType, orderID, reqs, opts, actorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// allocateInTx runs the allocation pass inside the caller's transaction. The
// caller must already hold the order row lock. Requirements are processed in
// ascending product-code order, the lock-ordering convention that keeps
// concurrent passes deadlock-free.
func (s *AllocationService) allocateInTx(ctx context.Context, tx *gorm.DB, orderType entity.OrderType, orderID string, reqs []MaterialRequirement, opts AllocateOptions, actorID string) ([]entity.MaterialAllocation, error) {
	if len(reqs) == 0 {
		return nil, &ValidationError{Field: "requirements", Reason: "empty requirement set"}
	}
	if opts.WarehouseID == "" {
		return nil, &ValidationError{Field: "warehouse_id", Reason: "required"}
	}
	for _, r := range reqs {
		if r.QtyRequired <= 0 {
			return nil, &ValidationError{Field: "qty_required", Reason: fmt.Sprintf("non-positive quantity for %s", r.ProductCode)}
		}
	}

	active, err := repository.CountActiveAllocations(tx, orderType, orderID)
	if err != nil {
		return nil, fmt.Errorf("count existing allocations: %w", err)
	}
	if active > 0 {
		return nil, &AlreadyAllocatedError{OrderType: orderType, OrderID: orderID}
	}

	sorted := make([]MaterialRequirement, len(reqs))
	copy(sorted, reqs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductCode < sorted[j].ProductCode })

	now := time.Now()
	lines := make([]entity.MaterialAllocation, 0, len(sorted))
	for _, req := range sorted {
		item, err := repository.LockInventoryItem(tx, req.ProductID, req.ProductCode, opts.WarehouseID, req.UOM)
		if err != nil {
			return nil, fmt.Errorf("lock inventory for %s: %w", req.ProductCode, err)
		}

		line := entity.MaterialAllocation{
			ID:                uuid.New().String(),
			OrderType:         orderType,
			OrderID:           orderID,
			ProductID:         req.ProductID,
			ProductCode:       req.ProductCode,
			WarehouseID:       opts.WarehouseID,
			QtyNeeded:         req.QtyRequired,
			SourceBOMDetailID: req.SourceBOMDetailID,
			CreatedBy:         actorID,
			CreatedAt:         now,
			UpdatedAt:         now,
		}

		available := item.AvailableQty()
		switch {
		case available >= req.QtyRequired:
			line.QtyFromStock = req.QtyRequired
			line.Status = entity.AllocStatusAllocated

		case available > 0:
			line.QtyFromStock = available
			line.QtyFromDebt = req.QtyRequired - available
			line.Status = entity.AllocStatusPartial

		case opts.AllowFullDebt:
			line.QtyFromDebt = req.QtyRequired
			line.Status = entity.AllocStatusDebtCreated

		default:
			line.Status = entity.AllocStatusFailed
		}

		if line.QtyFromStock > 0 {
			item.ReservedQty += line.QtyFromStock
			if err := repository.SaveInventoryItem(tx, item); err != nil {
				return nil, fmt.Errorf("reserve %s: %w", req.ProductCode, err)
			}
			if err := repository.JournalMovement(tx, &entity.InventoryTransaction{
				ProductID:     req.ProductID,
				ProductCode:   req.ProductCode,
				WarehouseID:   opts.WarehouseID,
				TxType:        entity.TxTypeReserve,
				Quantity:      line.QtyFromStock,
				ReferenceType: string(orderType),
				ReferenceID:   orderID,
				CreatedBy:     actorID,
			}); err != nil {
				return nil, fmt.Errorf("journal reserve for %s: %w", req.ProductCode, err)
			}
		}

		if err := tx.Create(&line).Error; err != nil {
			return nil, fmt.Errorf("persist allocation line for %s: %w", req.ProductCode, err)
		}

		if line.QtyFromDebt > 0 {
			if _, err := s.debts.CreateInTx(ctx, tx, &line, line.QtyFromDebt, actorID); err != nil {
				return nil, fmt.Errorf("raise debt for %s: %w", req.ProductCode, err)
			}
		}

		lines = append(lines, line)
	}

	if err := repository.AppendAudit(tx, &entity.AuditLog{
		EntityType: "material_allocation",
		EntityID:   orderID,
		Action:     "allocate",
		ToStatus:   batchSummary(lines),
		After:      entity.JSONB{"lines": len(lines), "warehouse_id": opts.WarehouseID},
		ActorID:    actorID,
	}); err != nil {
		return nil, err
	}

	s.logger.Info("allocation batch persisted",
		zap.String("order_type", string(orderType)),
		zap.String("order_id", orderID),
		zap.String("summary", batchSummary(lines)))
	return lines, nil
}

// ReverseAllocations releases every live reservation of an order and rejects
// its pending debts, so a fresh allocation pass becomes legal again.
func (s *AllocationService) ReverseAllocations(ctx context.Context, orderType entity.OrderType, orderID string, actorID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockOrder(tx, orderType, orderID); err != nil {
			return err
		}
		return s.reverseInTx(tx, orderType, orderID, actorID)
	})
}

func (s *AllocationService) reverseInTx(tx *gorm.DB, orderType entity.OrderType, orderID string, actorID string) error {
	lines, err := repository.LockAllocationsByOrder(tx, orderType, orderID)
	if err != nil {
		return fmt.Errorf("lock allocations: %w", err)
	}

	for i := range lines {
		line := &lines[i]
		if line.QtyFromStock > 0 {
			item, err := repository.LockInventoryItem(tx, line.ProductID, line.ProductCode, line.WarehouseID, "")
			if err != nil {
				return fmt.Errorf("lock inventory for %s: %w", line.ProductCode, err)
			}
			item.ReservedQty -= line.QtyFromStock
			if err := repository.SaveInventoryItem(tx, item); err != nil {
				return fmt.Errorf("unreserve %s: %w", line.ProductCode, err)
			}
			if err := repository.JournalMovement(tx, &entity.InventoryTransaction{
				ProductID:     line.ProductID,
				ProductCode:   line.ProductCode,
				WarehouseID:   line.WarehouseID,
				TxType:        entity.TxTypeUnreserve,
				Quantity:      -line.QtyFromStock,
				ReferenceType: string(orderType),
				ReferenceID:   orderID,
				CreatedBy:     actorID,
			}); err != nil {
				return fmt.Errorf("journal unreserve for %s: %w", line.ProductCode, err)
			}
		}

		if err := s.debts.rejectPendingForAllocation(tx, line.ID, actorID, "allocation reversed"); err != nil {
			return err
		}

		line.Status = entity.AllocStatusCancelled
		line.UpdatedAt = time.Now()
		if err := tx.Save(line).Error; err != nil {
			return fmt.Errorf("cancel line %s: %w", line.ID, err)
		}
	}

	return repository.AppendAudit(tx, &entity.AuditLog{
		EntityType: "material_allocation",
		EntityID:   orderID,
		Action:     "reverse",
		ActorID:    actorID,
		After:      entity.JSONB{"lines": len(lines)},
	})
}

// ListByOrder exposes an order's allocation batch.
func (s *AllocationService) ListByOrder(ctx context.Context, orderType entity.OrderType, orderID string) ([]entity.MaterialAllocation, error) {
	return s.allocRepo.ListByOrder(ctx, orderType, orderID)
}

// allocationReady reports whether an order's batch permits the WO to start:
// at least one line, no failed line, and every debt-backed line approved.
func allocationReady(tx *gorm.DB, orderType entity.OrderType, orderID string) (bool, string, error) {
	var lines []entity.MaterialAllocation
	if err := tx.Preload("Debts").
		Where("order_type = ? AND order_id = ? AND status <> ?", orderType, orderID, entity.AllocStatusCancelled).
		Find(&lines).Error; err != nil {
		return false, "", err
	}
	if len(lines) == 0 {
		return false, "no allocation exists", nil
	}
	for _, line := range lines {
		switch line.Status {
		case entity.AllocStatusAllocated:
			continue
		case entity.AllocStatusPartial, entity.AllocStatusDebtCreated:
			for _, d := range line.Debts {
				if d.Status == entity.DebtStatusPendingApproval {
					return false, fmt.Sprintf("debt %s for %s awaits approval", d.DebtCode, line.ProductCode), nil
				}
				if d.Status == entity.DebtStatusRejected {
					return false, fmt.Sprintf("debt %s for %s was rejected", d.DebtCode, line.ProductCode), nil
				}
			}
		default:
			return false, fmt.Sprintf("material %s is %s", line.ProductCode, line.Status), nil
		}
	}
	return true, "", nil
}

// lockOrder takes the order row lock first, keeping the lock order
// order-row → inventory-rows across all allocation paths.
func lockOrder(tx *gorm.DB, orderType entity.OrderType, orderID string) error {
	switch orderType {
	case entity.OrderTypeMO:
		_, err := repository.LockMO(tx, orderID)
		return err
	case entity.OrderTypeWO:
		_, err := repository.LockWO(tx, orderID)
		return err
	default:
		return &ValidationError{Field: "order_type", Reason: "unknown order type"}
	}
}

func batchSummary(lines []entity.MaterialAllocation) string {
	allocated, partial, debt, failed := 0, 0, 0, 0
	for _, l := range lines {
		switch l.Status {
		case entity.AllocStatusAllocated:
			allocated++
		case entity.AllocStatusPartial:
			partial++
		case entity.AllocStatusDebtCreated:
			debt++
		case entity.AllocStatusFailed:
			failed++
		}
	}
	return fmt.Sprintf("allocated=%d partial=%d debt=%d failed=%d", allocated, partial, debt, failed)
}
