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

// WOEvent drives the work order state machine through the generic transition
// endpoint.
type WOEvent string

const (
	WOEventStart     WOEvent = "start"
	WOEventSubmitQC  WOEvent = "submit_qc"
	WOEventResolveQC WOEvent = "resolve_qc"
	WOEventComplete  WOEvent = "complete"
	WOEventCancel    WOEvent = "cancel"
)

var deptCodePrefix = map[entity.Department]string{
	entity.DeptCutting:    "SPK-CUT",
	entity.DeptEmbroidery: "SPK-EMB",
	entity.DeptSewing:     "SPK-SEW",
	entity.DeptFinishing:  "SPK-FIN",
	entity.DeptPacking:    "SPK-PACK",
}

// WOService runs the per-department work order lifecycle. Completion of one
// WO receipts its output WIP and chains the next department's WO inside the
// same transaction.
type WOService struct {
	db        *gorm.DB
	woRepo    *repository.WORepository
	source    BOMSource
	explosion *ExplosionService
	alloc     *AllocationService
	rework    *ReworkService
	seq       *SequenceService
	logger    *zap.Logger
}

func NewWOService(db *gorm.DB, woRepo *repository.WORepository, source BOMSource, explosion *ExplosionService, alloc *AllocationService, rework *ReworkService, seq *SequenceService, logger *zap.Logger) *WOService {
	return &WOService{
		db:        db,
		woRepo:    woRepo,
		source:    source,
		explosion: explosion,
		alloc:     alloc,
		rework:    rework,
		seq:       seq,
		logger:    logger,
	}
}

// resolveStageOutputs walks the BOM chain from the finished good backwards
// through the routing, mapping each department to the product it outputs.
// The WIP component of each stage's header is the previous stage's output.
func (s *WOService) resolveStageOutputs(ctx context.Context, articleID string, route []entity.Department) (map[entity.Department]string, error) {
	outputs := make(map[entity.Department]string, len(route))
	current := articleID
	for i := len(route) - 1; i >= 0; i-- {
		dept := route[i]
		outputs[dept] = current
		if i == 0 {
			break
		}

		product, err := s.source.Product(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("load product %s: %w", current, err)
		}
		header, err := s.source.ActiveHeader(ctx, current, dept)
		if err != nil {
			return nil, &MissingBOMError{ProductID: current, ProductCode: product.Code, Stage: dept}
		}
		details, err := s.source.Details(ctx, header.ID)
		if err != nil {
			return nil, fmt.Errorf("load details for header %s: %w", header.ID, err)
		}

		var wipID string
		for _, d := range details {
			component, err := s.source.Product(ctx, d.ComponentID)
			if err != nil {
				return nil, fmt.Errorf("load component %s: %w", d.ComponentID, err)
			}
			if component.Kind == entity.KindWIP {
				wipID = component.ID
				break
			}
		}
		if wipID == "" {
			return nil, &MissingBOMError{ProductID: current, ProductCode: product.Code, Stage: route[i-1]}
		}
		current = wipID
	}
	return outputs, nil
}

// createStageWOInTx creates the WO for one routing stage and allocates that
// stage's material requirements, all inside the caller's transaction.
func (s *WOService) createStageWOInTx(ctx context.Context, tx *gorm.DB, mo *entity.ManufacturingOrder, stageIdx int, inputQty float64, warehouseID, actorID string) (*entity.WorkOrder, error) {
	route := mo.RoutingType.Departments()
	if stageIdx < 0 || stageIdx >= len(route) {
		return nil, &ValidationError{Field: "stage", Reason: "stage index out of routing range"}
	}

	outputs, err := s.resolveStageOutputs(ctx, mo.ProductID, route)
	if err != nil {
		return nil, err
	}
	dept := route[stageIdx]

	code, err := s.seq.Next(ctx, deptCodePrefix[dept])
	if err != nil {
		return nil, err
	}

	now := time.Now()
	wo := &entity.WorkOrder{
		ID:              uuid.New().String(),
		WOCode:          code,
		MOID:            mo.ID,
		Department:      dept,
		Seq:             stageIdx,
		OutputProductID: outputs[dept],
		TargetQty:       inputQty,
		InputQty:        inputQty,
		Status:          entity.WOStatusPending,
		CreatedBy:       actorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if stageIdx > 0 {
		wo.InputProductID = outputs[route[stageIdx-1]]
	}
	if err := tx.Create(wo).Error; err != nil {
		return nil, fmt.Errorf("persist work order: %w", err)
	}

	if err := repository.AppendAudit(tx, &entity.AuditLog{
		EntityType: "work_order",
		EntityID:   wo.ID,
		EntityCode: wo.WOCode,
		Action:     "create",
		ToStatus:   string(wo.Status),
		After:      entity.JSONB{"mo_code": mo.MOCode, "department": dept, "target_qty": wo.TargetQty},
		ActorID:    actorID,
	}); err != nil {
		return nil, err
	}

	reqs, err := s.explosion.StageRequirements(ctx, outputs[dept], dept, inputQty)
	if err != nil {
		return nil, err
	}
	if _, err := s.alloc.allocateInTx(ctx, tx, entity.OrderTypeWO, wo.ID, reqs, AllocateOptions{WarehouseID: warehouseID}, actorID); err != nil {
		return nil, err
	}

	s.logger.Info("work order generated",
		zap.String("wo_code", wo.WOCode),
		zap.String("mo_code", mo.MOCode),
		zap.String("department", string(dept)))
	return wo, nil
}

// Start moves a pending WO into execution. The allocation batch must be
// fully allocated, or debt-backed with every debt approved; starting issues
// the reserved materials (debt portions may take on-hand negative, which the
// approved debt permits).
func (s *WOService) Start(ctx context.Context, woID, actorID string) (*entity.WorkOrder, error) {
	var out *entity.WorkOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wo, err := repository.LockWO(tx, woID)
		if err != nil {
			return fmt.Errorf("work order %s: %w", woID, err)
		}
		if !wo.Status.CanTransition(entity.WOStatusInProgress) {
			return &InvalidStateTransitionError{
				EntityType: "work_order", EntityID: woID,
				From: string(wo.Status), To: string(entity.WOStatusInProgress),
			}
		}

		mo, err := repository.LockMO(tx, wo.MOID)
		if err != nil {
			return fmt.Errorf("manufacturing order %s: %w", wo.MOID, err)
		}
		if mo.Status != entity.MOStatusReleased && mo.Status != entity.MOStatusInProgress {
			return &InvalidStateTransitionError{
				EntityType: "work_order", EntityID: woID,
				From: string(wo.Status), To: string(entity.WOStatusInProgress),
				Reason: fmt.Sprintf("manufacturing order %s is %s", mo.MOCode, mo.Status),
			}
		}

		ready, reason, err := allocationReady(tx, entity.OrderTypeWO, woID)
		if err != nil {
			return fmt.Errorf("check allocation: %w", err)
		}
		if !ready {
			return &InvalidStateTransitionError{
				EntityType: "work_order", EntityID: woID,
				From: string(wo.Status), To: string(entity.WOStatusInProgress),
				Reason: reason,
			}
		}

		if err := s.issueMaterials(tx, wo, actorID); err != nil {
			return err
		}

		now := time.Now()
		from := wo.Status
		wo.Status = entity.WOStatusInProgress
		wo.ActualStart = &now
		wo.UpdatedAt = now
		if err := tx.Save(wo).Error; err != nil {
			return fmt.Errorf("start work order: %w", err)
		}
		if err := repository.AppendAudit(tx, &entity.AuditLog{
			EntityType: "work_order",
			EntityID:   wo.ID,
			EntityCode: wo.WOCode,
			Action:     "start",
			FromStatus: string(from),
			ToStatus:   string(wo.Status),
			ActorID:    actorID,
		}); err != nil {
			return err
		}

		if mo.Status == entity.MOStatusReleased {
			mo.Status = entity.MOStatusInProgress
			mo.UpdatedAt = now
			if err := tx.Save(mo).Error; err != nil {
				return fmt.Errorf("advance manufacturing order: %w", err)
			}
			if err := repository.AppendAudit(tx, &entity.AuditLog{
				EntityType: "manufacturing_order",
				EntityID:   mo.ID,
				EntityCode: mo.MOCode,
				Action:     "first_wo_started",
				FromStatus: string(entity.MOStatusReleased),
				ToStatus:   string(mo.Status),
				ActorID:    actorID,
			}); err != nil {
				return err
			}
		}

		out = wo
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// issueMaterials consumes the order's reservations: on-hand drops by the
// full allocated quantity, the debt portion driving it negative within the
// approved debt headroom.
func (s *WOService) issueMaterials(tx *gorm.DB, wo *entity.WorkOrder, actorID string) error {
	lines, err := repository.LockAllocationsByOrder(tx, entity.OrderTypeWO, wo.ID)
	if err != nil {
		return fmt.Errorf("lock allocations: %w", err)
	}
	for _, line := range lines {
		consumed := line.QtyFromStock + line.QtyFromDebt
		if consumed == 0 {
			continue
		}
		item, err := repository.LockInventoryItem(tx, line.ProductID, line.ProductCode, line.WarehouseID, "")
		if err != nil {
			return fmt.Errorf("lock inventory for %s: %w", line.ProductCode, err)
		}
		item.OnHandQty -= consumed
		item.ReservedQty -= line.QtyFromStock
		if err := repository.SaveInventoryItem(tx, item); err != nil {
			return fmt.Errorf("issue %s: %w", line.ProductCode, err)
		}
		if err := repository.JournalMovement(tx, &entity.InventoryTransaction{
			ProductID:     line.ProductID,
			ProductCode:   line.ProductCode,
			WarehouseID:   line.WarehouseID,
			TxType:        entity.TxTypeIssue,
			Quantity:      -consumed,
			ReferenceType: "WO",
			ReferenceID:   wo.ID,
			ReferenceCode: wo.WOCode,
			CreatedBy:     actorID,
		}); err != nil {
			return fmt.Errorf("journal issue for %s: %w", line.ProductCode, err)
		}
	}
	return nil
}

// RecordOutput accumulates reported good/defect quantities on a running WO.
func (s *WOService) RecordOutput(ctx context.Context, woID string, goodQty, defectQty float64, actorID string) (*entity.WorkOrder, error) {
	if goodQty < 0 || defectQty < 0 {
		return nil, &ValidationError{Field: "quantity", Reason: "must not be negative"}
	}
	if goodQty+defectQty == 0 {
		return nil, &ValidationError{Field: "quantity", Reason: "nothing reported"}
	}

	var out *entity.WorkOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wo, err := repository.LockWO(tx, woID)
		if err != nil {
			return fmt.Errorf("work order %s: %w", woID, err)
		}
		if wo.Status != entity.WOStatusInProgress {
			return &InvalidStateTransitionError{
				EntityType: "work_order", EntityID: woID,
				From: string(wo.Status), To: string(wo.Status),
				Reason: "output can only be reported while in progress",
			}
		}

		wo.GoodQty += goodQty
		wo.DefectQty += defectQty
		wo.UpdatedAt = time.Now()
		if err := tx.Save(wo).Error; err != nil {
			return fmt.Errorf("record output: %w", err)
		}
		out = wo
		return repository.AppendAudit(tx, &entity.AuditLog{
			EntityType: "work_order",
			EntityID:   wo.ID,
			EntityCode: wo.WOCode,
			Action:     "record_output",
			After:      entity.JSONB{"good_qty": wo.GoodQty, "defect_qty": wo.DefectQty},
			ActorID:    actorID,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitQC hands a running WO to quality control. Defects spawn a rework
// request, categorized and gated by QC approval.
func (s *WOService) SubmitQC(ctx context.Context, woID, defectCategory, actorID string) (*entity.WorkOrder, error) {
	var out *entity.WorkOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wo, err := repository.LockWO(tx, woID)
		if err != nil {
			return fmt.Errorf("work order %s: %w", woID, err)
		}
		if !wo.Status.CanTransition(entity.WOStatusQCCheck) {
			return &InvalidStateTransitionError{
				EntityType: "work_order", EntityID: woID,
				From: string(wo.Status), To: string(entity.WOStatusQCCheck),
			}
		}
		if wo.GoodQty+wo.DefectQty == 0 {
			return &InvalidStateTransitionError{
				EntityType: "work_order", EntityID: woID,
				From: string(wo.Status), To: string(entity.WOStatusQCCheck),
				Reason: "no output recorded",
			}
		}

		if wo.DefectQty > 0 {
			open, err := repository.OpenReworkForWO(tx, wo.ID)
			if err != nil {
				return fmt.Errorf("check rework: %w", err)
			}
			if len(open) == 0 {
				if _, err := s.rework.createInTx(tx, wo, wo.DefectQty, defectCategory, actorID); err != nil {
					return err
				}
			}
		}

		from := wo.Status
		wo.Status = entity.WOStatusQCCheck
		wo.UpdatedAt = time.Now()
		if err := tx.Save(wo).Error; err != nil {
			return fmt.Errorf("submit qc: %w", err)
		}
		out = wo
		return repository.AppendAudit(tx, &entity.AuditLog{
			EntityType: "work_order",
			EntityID:   wo.ID,
			EntityCode: wo.WOCode,
			Action:     "submit_qc",
			FromStatus: string(from),
			ToStatus:   string(wo.Status),
			ActorID:    actorID,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveQC re-evaluates a WO in qc_check or shortage_handling: clean WOs
// move to ready_transfer, blocked ones to (or stay in) shortage_handling.
func (s *WOService) ResolveQC(ctx context.Context, woID, actorID string) (*entity.WorkOrder, error) {
	var out *entity.WorkOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wo, err := repository.LockWO(tx, woID)
		if err != nil {
			return fmt.Errorf("work order %s: %w", woID, err)
		}
		if wo.Status != entity.WOStatusQCCheck && wo.Status != entity.WOStatusShortageHandling {
			return &InvalidStateTransitionError{
				EntityType: "work_order", EntityID: woID,
				From: string(wo.Status), To: string(entity.WOStatusReadyTransfer),
			}
		}

		blocked, reason, err := s.completionBlockers(tx, wo)
		if err != nil {
			return err
		}

		target := entity.WOStatusReadyTransfer
		if blocked {
			target = entity.WOStatusShortageHandling
		}
		if wo.Status == target {
			out = wo
			return nil
		}

		from := wo.Status
		wo.Status = target
		wo.UpdatedAt = time.Now()
		if err := tx.Save(wo).Error; err != nil {
			return fmt.Errorf("resolve qc: %w", err)
		}
		out = wo
		return repository.AppendAudit(tx, &entity.AuditLog{
			EntityType: "work_order",
			EntityID:   wo.ID,
			EntityCode: wo.WOCode,
			Action:     "resolve_qc",
			FromStatus: string(from),
			ToStatus:   string(wo.Status),
			After:      entity.JSONB{"blocked": blocked, "reason": reason},
			ActorID:    actorID,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecordPacking stores the packed carton count on a packing WO; pallet
// validation happens at completion.
func (s *WOService) RecordPacking(ctx context.Context, woID string, cartonsPacked int, actorID string) (*entity.WorkOrder, error) {
	if cartonsPacked <= 0 {
		return nil, &ValidationError{Field: "cartons_packed", Reason: "must be positive"}
	}

	var out *entity.WorkOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wo, err := repository.LockWO(tx, woID)
		if err != nil {
			return fmt.Errorf("work order %s: %w", woID, err)
		}
		if wo.Department != entity.DeptPacking {
			return &ValidationError{Field: "department", Reason: "cartons are recorded on packing work orders only"}
		}
		if wo.Status.Terminal() || wo.Status == entity.WOStatusPending {
			return &InvalidStateTransitionError{
				EntityType: "work_order", EntityID: woID,
				From: string(wo.Status), To: string(wo.Status),
				Reason: "packing can only be recorded on a running work order",
			}
		}

		wo.CartonsPacked = cartonsPacked
		wo.UpdatedAt = time.Now()
		if err := tx.Save(wo).Error; err != nil {
			return fmt.Errorf("record packing: %w", err)
		}
		out = wo
		return repository.AppendAudit(tx, &entity.AuditLog{
			EntityType: "work_order",
			EntityID:   wo.ID,
			EntityCode: wo.WOCode,
			Action:     "record_packing",
			After:      entity.JSONB{"cartons_packed": cartonsPacked},
			ActorID:    actorID,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Complete finishes a ready_transfer WO: receipts the output (WIP for
// intermediate stages, finished goods for packing), chains the next
// department's WO, and completes the MO after the final stage. Packing must
// form whole pallets.
func (s *WOService) Complete(ctx context.Context, woID, warehouseID, actorID string) (*entity.WorkOrder, error) {
	if warehouseID == "" {
		return nil, &ValidationError{Field: "warehouse_id", Reason: "required"}
	}

	var out *entity.WorkOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wo, err := repository.LockWO(tx, woID)
		if err != nil {
			return fmt.Errorf("work order %s: %w", woID, err)
		}
		if !wo.Status.CanTransition(entity.WOStatusCompleted) {
			return &InvalidStateTransitionError{
				EntityType: "work_order", EntityID: woID,
				From: string(wo.Status), To: string(entity.WOStatusCompleted),
			}
		}

		mo, err := repository.LockMO(tx, wo.MOID)
		if err != nil {
			return fmt.Errorf("manufacturing order %s: %w", wo.MOID, err)
		}

		blocked, reason, err := s.completionBlockers(tx, wo)
		if err != nil {
			return err
		}
		if blocked {
			return &InvalidStateTransitionError{
				EntityType: "work_order", EntityID: woID,
				From: string(wo.Status), To: string(entity.WOStatusCompleted),
				Reason: reason,
			}
		}

		outputQty := wo.GoodQty + wo.ReworkQty
		if outputQty <= 0 {
			return &InvalidStateTransitionError{
				EntityType: "work_order", EntityID: woID,
				From: string(wo.Status), To: string(entity.WOStatusCompleted),
				Reason: "no good output to transfer",
			}
		}

		if wo.Department == entity.DeptPacking {
			product, err := s.source.Product(ctx, wo.OutputProductID)
			if err != nil {
				return fmt.Errorf("load output product: %w", err)
			}
			if product.CartonsPerPallet > 0 {
				if wo.CartonsPacked == 0 || wo.CartonsPacked%product.CartonsPerPallet != 0 {
					return &PartialPalletError{
						WOID:             woID,
						CartonsPacked:    wo.CartonsPacked,
						CartonsPerPallet: product.CartonsPerPallet,
					}
				}
				wo.PalletsFormed = wo.CartonsPacked / product.CartonsPerPallet
			}
		}

		// Receipt output so the next stage (or finished goods) can draw it.
		item, err := repository.LockInventoryItem(tx, wo.OutputProductID, "", warehouseID, "")
		if err != nil {
			return fmt.Errorf("lock output inventory: %w", err)
		}
		item.OnHandQty += outputQty
		if err := repository.SaveInventoryItem(tx, item); err != nil {
			return fmt.Errorf("receipt output: %w", err)
		}
		if err := repository.JournalMovement(tx, &entity.InventoryTransaction{
			ProductID:     wo.OutputProductID,
			WarehouseID:   warehouseID,
			TxType:        entity.TxTypeReceipt,
			Quantity:      outputQty,
			ReferenceType: "WO",
			ReferenceID:   wo.ID,
			ReferenceCode: wo.WOCode,
			CreatedBy:     actorID,
		}); err != nil {
			return fmt.Errorf("journal receipt: %w", err)
		}

		now := time.Now()
		from := wo.Status
		wo.Status = entity.WOStatusCompleted
		wo.ActualEnd = &now
		wo.UpdatedAt = now
		if err := tx.Save(wo).Error; err != nil {
			return fmt.Errorf("complete work order: %w", err)
		}
		if err := repository.AppendAudit(tx, &entity.AuditLog{
			EntityType: "work_order",
			EntityID:   wo.ID,
			EntityCode: wo.WOCode,
			Action:     "complete",
			FromStatus: string(from),
			ToStatus:   string(wo.Status),
			After:      entity.JSONB{"output_qty": outputQty, "pallets_formed": wo.PalletsFormed},
			ActorID:    actorID,
		}); err != nil {
			return err
		}

		route := mo.RoutingType.Departments()
		if wo.Seq < len(route)-1 {
			if _, err := s.createStageWOInTx(ctx, tx, mo, wo.Seq+1, outputQty, warehouseID, actorID); err != nil {
				return err
			}
		} else {
			if !mo.Status.CanTransition(entity.MOStatusCompleted) {
				return &InvalidStateTransitionError{
					EntityType: "manufacturing_order", EntityID: mo.ID,
					From: string(mo.Status), To: string(entity.MOStatusCompleted),
				}
			}
			mo.Status = entity.MOStatusCompleted
			mo.UpdatedAt = now
			if err := tx.Save(mo).Error; err != nil {
				return fmt.Errorf("complete manufacturing order: %w", err)
			}
			if err := repository.AppendAudit(tx, &entity.AuditLog{
				EntityType: "manufacturing_order",
				EntityID:   mo.ID,
				EntityCode: mo.MOCode,
				Action:     "complete",
				FromStatus: string(entity.MOStatusInProgress),
				ToStatus:   string(mo.Status),
				ActorID:    actorID,
			}); err != nil {
				return err
			}
		}

		out = wo
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("work order completed",
		zap.String("wo_code", out.WOCode),
		zap.Float64("output_qty", out.GoodQty+out.ReworkQty))
	return out, nil
}

// Cancel aborts a non-terminal WO and releases its reservations.
func (s *WOService) Cancel(ctx context.Context, woID, actorID string) (*entity.WorkOrder, error) {
	var out *entity.WorkOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wo, err := repository.LockWO(tx, woID)
		if err != nil {
			return fmt.Errorf("work order %s: %w", woID, err)
		}
		if !wo.Status.CanTransition(entity.WOStatusCancelled) {
			return &InvalidStateTransitionError{
				EntityType: "work_order", EntityID: woID,
				From: string(wo.Status), To: string(entity.WOStatusCancelled),
			}
		}

		if err := s.alloc.reverseInTx(tx, entity.OrderTypeWO, wo.ID, actorID); err != nil {
			return err
		}

		from := wo.Status
		wo.Status = entity.WOStatusCancelled
		wo.UpdatedAt = time.Now()
		if err := tx.Save(wo).Error; err != nil {
			return fmt.Errorf("cancel work order: %w", err)
		}
		out = wo
		return repository.AppendAudit(tx, &entity.AuditLog{
			EntityType: "work_order",
			EntityID:   wo.ID,
			EntityCode: wo.WOCode,
			Action:     "cancel",
			FromStatus: string(from),
			ToStatus:   string(wo.Status),
			ActorID:    actorID,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Reallocate reverses a pending WO's batch and runs a fresh pass, typically
// after a debt rejection or stock correction.
func (s *WOService) Reallocate(ctx context.Context, woID string, opts AllocateOptions, actorID string) ([]entity.MaterialAllocation, error) {
	var lines []entity.MaterialAllocation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wo, err := repository.LockWO(tx, woID)
		if err != nil {
			return fmt.Errorf("work order %s: %w", woID, err)
		}
		if wo.Status != entity.WOStatusPending {
			return &InvalidStateTransitionError{
				EntityType: "work_order", EntityID: woID,
				From: string(wo.Status), To: string(wo.Status),
				Reason: "only pending work orders can be re-allocated",
			}
		}

		if err := s.alloc.reverseInTx(tx, entity.OrderTypeWO, wo.ID, actorID); err != nil {
			return err
		}

		reqs, err := s.explosion.StageRequirements(ctx, wo.OutputProductID, wo.Department, wo.TargetQty)
		if err != nil {
			return err
		}
		lines, err = s.alloc.allocateInTx(ctx, tx, entity.OrderTypeWO, wo.ID, reqs, opts, actorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// Transition drives the WO state machine by event name; the spec-level
// transitionWO entry point.
func (s *WOService) Transition(ctx context.Context, woID string, event WOEvent, warehouseID, actorID string) (*entity.WorkOrder, error) {
	switch event {
	case WOEventStart:
		return s.Start(ctx, woID, actorID)
	case WOEventSubmitQC:
		return s.SubmitQC(ctx, woID, "", actorID)
	case WOEventResolveQC:
		return s.ResolveQC(ctx, woID, actorID)
	case WOEventComplete:
		return s.Complete(ctx, woID, warehouseID, actorID)
	case WOEventCancel:
		return s.Cancel(ctx, woID, actorID)
	default:
		return nil, &ValidationError{Field: "event", Reason: fmt.Sprintf("unknown work order event %q", event)}
	}
}

// completionBlockers lists what still prevents transfer/completion: unsettled
// material debts or open rework.
func (s *WOService) completionBlockers(tx *gorm.DB, wo *entity.WorkOrder) (bool, string, error) {
	debts, err := repository.BlockingDebtsForOrder(tx, entity.OrderTypeWO, wo.ID)
	if err != nil {
		return false, "", fmt.Errorf("check debts: %w", err)
	}
	if len(debts) > 0 {
		d := debts[0]
		return true, fmt.Sprintf("debt %s for %s is %s with %.4f outstanding", d.DebtCode, d.ProductCode, d.Status, d.OutstandingQty), nil
	}

	open, err := repository.OpenReworkForWO(tx, wo.ID)
	if err != nil {
		return false, "", fmt.Errorf("check rework: %w", err)
	}
	if len(open) > 0 {
		return true, fmt.Sprintf("rework request %s is %s", open[0].ID, open[0].Status), nil
	}
	return false, "", nil
}

// Get exposes one WO.
func (s *WOService) Get(ctx context.Context, woID string) (*entity.WorkOrder, error) {
	return s.woRepo.FindByID(ctx, woID)
}

// List exposes filtered WOs.
func (s *WOService) List(ctx context.Context, params repository.WOListParams) ([]entity.WorkOrder, int64, error) {
	return s.woRepo.List(ctx, params)
}
