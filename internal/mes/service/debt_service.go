package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
	"github.com/santz1994/ERP-sub002/internal/mes/repository"
)

// DebtService creates and tracks negative-inventory debt records. An
// approved debt permits negative on-hand for its material up to the debt
// quantity; it must be settled before the owning WO completes.
type DebtService struct {
	db       *gorm.DB
	debtRepo *repository.DebtRepository
	seq      *SequenceService
	logger   *zap.Logger
}

func NewDebtService(db *gorm.DB, debtRepo *repository.DebtRepository, seq *SequenceService, logger *zap.Logger) *DebtService {
	return &DebtService{db: db, debtRepo: debtRepo, seq: seq, logger: logger}
}

// CreateDebt raises a debt for an existing allocation line outside an
// allocation pass (manual shortfall handling).
func (s *DebtService) CreateDebt(ctx context.Context, allocationID string, qty float64, actorID string) (*entity.MaterialDebt, error) {
	if qty <= 0 {
		return nil, &ValidationError{Field: "qty", Reason: "must be positive"}
	}

	var debt *entity.MaterialDebt
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var alloc entity.MaterialAllocation
		if err := tx.Where("id = ?", allocationID).First(&alloc).Error; err != nil {
			return fmt.Errorf("allocation %s: %w", allocationID, err)
		}
		d, err := s.CreateInTx(ctx, tx, &alloc, qty, actorID)
		if err != nil {
			return err
		}
		debt = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return debt, nil
}

// CreateInTx raises a pending debt inside the caller's transaction; used by
// the allocation pass for shortfall lines.
func (s *DebtService) CreateInTx(ctx context.Context, tx *gorm.DB, alloc *entity.MaterialAllocation, qty float64, actorID string) (*entity.MaterialDebt, error) {
	code, err := s.seq.Next(ctx, "DEBT")
	if err != nil {
		return nil, err
	}

	now := time.Now()
	debt := &entity.MaterialDebt{
		ID:             uuid.New().String(),
		DebtCode:       code,
		AllocationID:   alloc.ID,
		ProductID:      alloc.ProductID,
		ProductCode:    alloc.ProductCode,
		WarehouseID:    alloc.WarehouseID,
		Qty:            qty,
		OutstandingQty: qty,
		Status:         entity.DebtStatusPendingApproval,
		CreatedBy:      actorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.Create(debt).Error; err != nil {
		return nil, fmt.Errorf("persist debt: %w", err)
	}

	if err := repository.AppendAudit(tx, &entity.AuditLog{
		EntityType: "material_debt",
		EntityID:   debt.ID,
		EntityCode: debt.DebtCode,
		Action:     "create",
		ToStatus:   string(debt.Status),
		After:      entity.JSONB{"product_code": debt.ProductCode, "qty": debt.Qty},
		ActorID:    actorID,
	}); err != nil {
		return nil, err
	}
	return debt, nil
}

// ApproveDebt grants the negative-inventory position.
func (s *DebtService) ApproveDebt(ctx context.Context, debtID, approverID string) (*entity.MaterialDebt, error) {
	var debt *entity.MaterialDebt
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := s.approveInTx(tx, debtID, approverID)
		if err != nil {
			return err
		}
		debt = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("material debt approved",
		zap.String("debt_code", debt.DebtCode),
		zap.String("product_code", debt.ProductCode),
		zap.Float64("qty", debt.Qty))
	return debt, nil
}

// approveInTx flips a pending debt to approved inside the caller's
// transaction.
func (s *DebtService) approveInTx(tx *gorm.DB, debtID, approverID string) (*entity.MaterialDebt, error) {
	d, err := repository.LockDebt(tx, debtID)
	if err != nil {
		return nil, fmt.Errorf("debt %s: %w", debtID, err)
	}
	if !d.Status.CanTransition(entity.DebtStatusApproved) {
		return nil, &InvalidStateTransitionError{
			EntityType: "material_debt", EntityID: debtID,
			From: string(d.Status), To: string(entity.DebtStatusApproved),
		}
	}

	now := time.Now()
	from := d.Status
	d.Status = entity.DebtStatusApproved
	d.ApprovedBy = approverID
	d.ApprovedAt = &now
	d.UpdatedAt = now
	if err := tx.Save(d).Error; err != nil {
		return nil, fmt.Errorf("approve debt: %w", err)
	}

	if err := repository.AppendAudit(tx, &entity.AuditLog{
		EntityType: "material_debt",
		EntityID:   d.ID,
		EntityCode: d.DebtCode,
		Action:     "approve",
		FromStatus: string(from),
		ToStatus:   string(d.Status),
		ActorID:    approverID,
	}); err != nil {
		return nil, err
	}
	return d, nil
}

// ApplyApproval is the approval-engine applier for material_debt requests:
// when the chain's last step approves, the debt itself is approved in the
// same transaction.
func (s *DebtService) ApplyApproval(ctx context.Context, tx *gorm.DB, req *entity.ApprovalRequest) error {
	var step entity.ApprovalStep
	if err := tx.Where("request_id = ? AND step_index = ?", req.ID, req.CurrentStep).
		First(&step).Error; err != nil {
		return fmt.Errorf("load deciding step: %w", err)
	}
	_, err := s.approveInTx(tx, req.EntityID, step.ActorID)
	return err
}

// RejectDebt terminates a pending debt and pushes the owning WO back into
// shortage handling; the order needs manual re-allocation or scope reduction.
func (s *DebtService) RejectDebt(ctx context.Context, debtID, actorID, reason string) (*entity.MaterialDebt, error) {
	var debt *entity.MaterialDebt
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := repository.LockDebt(tx, debtID)
		if err != nil {
			return fmt.Errorf("debt %s: %w", debtID, err)
		}
		if !d.Status.CanTransition(entity.DebtStatusRejected) {
			return &InvalidStateTransitionError{
				EntityType: "material_debt", EntityID: debtID,
				From: string(d.Status), To: string(entity.DebtStatusRejected),
			}
		}

		from := d.Status
		d.Status = entity.DebtStatusRejected
		d.UpdatedAt = time.Now()
		if err := tx.Save(d).Error; err != nil {
			return fmt.Errorf("reject debt: %w", err)
		}

		if err := s.blockOwningWO(tx, d, actorID); err != nil {
			return err
		}

		debt = d
		return repository.AppendAudit(tx, &entity.AuditLog{
			EntityType: "material_debt",
			EntityID:   d.ID,
			EntityCode: d.DebtCode,
			Action:     "reject",
			FromStatus: string(from),
			ToStatus:   string(d.Status),
			After:      entity.JSONB{"reason": reason},
			ActorID:    actorID,
		})
	})
	if err != nil {
		return nil, err
	}
	return debt, nil
}

// SettleDebt applies replenishment stock against the outstanding quantity.
// Stock is receipted into the ledger; at zero outstanding the debt settles.
func (s *DebtService) SettleDebt(ctx context.Context, debtID string, qtyReceived float64, actorID string) (*entity.MaterialDebt, error) {
	if qtyReceived <= 0 {
		return nil, &ValidationError{Field: "qty_received", Reason: "must be positive"}
	}

	var debt *entity.MaterialDebt
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := repository.LockDebt(tx, debtID)
		if err != nil {
			return fmt.Errorf("debt %s: %w", debtID, err)
		}
		if d.Status != entity.DebtStatusApproved {
			return &InvalidStateTransitionError{
				EntityType: "material_debt", EntityID: debtID,
				From: string(d.Status), To: string(entity.DebtStatusSettled),
				Reason: "only approved debts can be settled",
			}
		}
		if qtyReceived > d.OutstandingQty {
			return &ValidationError{
				Field:  "qty_received",
				Reason: fmt.Sprintf("%.4f exceeds outstanding %.4f", qtyReceived, d.OutstandingQty),
			}
		}

		item, err := repository.LockInventoryItem(tx, d.ProductID, d.ProductCode, d.WarehouseID, "")
		if err != nil {
			return fmt.Errorf("lock inventory for %s: %w", d.ProductCode, err)
		}
		item.OnHandQty += qtyReceived
		if err := repository.SaveInventoryItem(tx, item); err != nil {
			return fmt.Errorf("apply replenishment: %w", err)
		}
		if err := repository.JournalMovement(tx, &entity.InventoryTransaction{
			ProductID:     d.ProductID,
			ProductCode:   d.ProductCode,
			WarehouseID:   d.WarehouseID,
			TxType:        entity.TxTypeDebtIn,
			Quantity:      qtyReceived,
			ReferenceType: "DEBT",
			ReferenceID:   d.ID,
			ReferenceCode: d.DebtCode,
			CreatedBy:     actorID,
		}); err != nil {
			return err
		}

		now := time.Now()
		from := d.Status
		d.OutstandingQty -= qtyReceived
		if d.OutstandingQty == 0 {
			d.Status = entity.DebtStatusSettled
			d.SettledAt = &now
		}
		d.UpdatedAt = now
		if err := tx.Save(d).Error; err != nil {
			return fmt.Errorf("settle debt: %w", err)
		}

		debt = d
		return repository.AppendAudit(tx, &entity.AuditLog{
			EntityType: "material_debt",
			EntityID:   d.ID,
			EntityCode: d.DebtCode,
			Action:     "settle",
			FromStatus: string(from),
			ToStatus:   string(d.Status),
			After:      entity.JSONB{"qty_received": qtyReceived, "outstanding": d.OutstandingQty},
			ActorID:    actorID,
		})
	})
	if err != nil {
		return nil, err
	}
	return debt, nil
}

// GetDebt exposes a single debt.
func (s *DebtService) GetDebt(ctx context.Context, debtID string) (*entity.MaterialDebt, error) {
	return s.debtRepo.FindByID(ctx, debtID)
}

// ListDebts lists debts by status.
func (s *DebtService) ListDebts(ctx context.Context, status entity.DebtStatus, page, pageSize int) ([]entity.MaterialDebt, int64, error) {
	return s.debtRepo.ListByStatus(ctx, status, page, pageSize)
}

// rejectPendingForAllocation terminates pending debts when their allocation
// line is reversed.
func (s *DebtService) rejectPendingForAllocation(tx *gorm.DB, allocationID, actorID, reason string) error {
	var debts []entity.MaterialDebt
	if err := tx.Where("allocation_id = ? AND status = ?", allocationID, entity.DebtStatusPendingApproval).
		Find(&debts).Error; err != nil {
		return err
	}
	for i := range debts {
		d := &debts[i]
		d.Status = entity.DebtStatusRejected
		d.UpdatedAt = time.Now()
		if err := tx.Save(d).Error; err != nil {
			return fmt.Errorf("reject debt %s: %w", d.DebtCode, err)
		}
		if err := repository.AppendAudit(tx, &entity.AuditLog{
			EntityType: "material_debt",
			EntityID:   d.ID,
			EntityCode: d.DebtCode,
			Action:     "reject",
			FromStatus: string(entity.DebtStatusPendingApproval),
			ToStatus:   string(d.Status),
			After:      entity.JSONB{"reason": reason},
			ActorID:    actorID,
		}); err != nil {
			return err
		}
	}
	return nil
}

// blockOwningWO flips the WO that owns the rejected debt's allocation into
// shortage_handling when it is sitting in QC.
func (s *DebtService) blockOwningWO(tx *gorm.DB, d *entity.MaterialDebt, actorID string) error {
	var alloc entity.MaterialAllocation
	if err := tx.Where("id = ?", d.AllocationID).First(&alloc).Error; err != nil {
		return fmt.Errorf("allocation %s: %w", d.AllocationID, err)
	}
	if alloc.OrderType != entity.OrderTypeWO {
		return nil
	}

	wo, err := repository.LockWO(tx, alloc.OrderID)
	if err != nil {
		return fmt.Errorf("work order %s: %w", alloc.OrderID, err)
	}
	if !wo.Status.CanTransition(entity.WOStatusShortageHandling) {
		return nil // pending or terminal; the start guard covers those
	}

	from := wo.Status
	wo.Status = entity.WOStatusShortageHandling
	wo.UpdatedAt = time.Now()
	if err := tx.Save(wo).Error; err != nil {
		return fmt.Errorf("block work order: %w", err)
	}
	return repository.AppendAudit(tx, &entity.AuditLog{
		EntityType: "work_order",
		EntityID:   wo.ID,
		EntityCode: wo.WOCode,
		Action:     "debt_rejected",
		FromStatus: string(from),
		ToStatus:   string(wo.Status),
		ActorID:    actorID,
	})
}
