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

// MOEvent drives the manufacturing order state machine through the generic
// transition endpoint.
type MOEvent string

const (
	MOEventApprovePrimaryPO MOEvent = "approve_primary_po"
	MOEventApproveLabelPO   MOEvent = "approve_label_po"
	MOEventCancel           MOEvent = "cancel"
)

// CreateMORequest carries the PPIC inputs for a new draft MO.
type CreateMORequest struct {
	ProductID   string             `json:"product_id" binding:"required"`
	SalesRef    string             `json:"sales_ref"`
	TargetQty   float64            `json:"target_qty" binding:"required"`
	BufferQty   float64            `json:"buffer_qty"`
	Week        string             `json:"week"`
	Destination string             `json:"destination"`
	RoutingType entity.RoutingType `json:"routing_type"`
}

// MOService owns the MO lifecycle: draft creation, the two-PO release gate,
// approval-gated edits, and cancellation. Releasing generates the first
// department's WO and its allocation in one transaction.
type MOService struct {
	db          *gorm.DB
	moRepo      *repository.MORepository
	woRepo      *repository.WORepository
	productRepo *repository.ProductRepository
	explosion   *ExplosionService
	alloc       *AllocationService
	wos         *WOService
	approvals   *ApprovalService
	seq         *SequenceService
	logger      *zap.Logger
}

func NewMOService(db *gorm.DB, moRepo *repository.MORepository, woRepo *repository.WORepository, productRepo *repository.ProductRepository, explosion *ExplosionService, alloc *AllocationService, wos *WOService, approvals *ApprovalService, seq *SequenceService, logger *zap.Logger) *MOService {
	return &MOService{
		db:          db,
		moRepo:      moRepo,
		woRepo:      woRepo,
		productRepo: productRepo,
		explosion:   explosion,
		alloc:       alloc,
		wos:         wos,
		approvals:   approvals,
		seq:         seq,
		logger:      logger,
	}
}

// Create opens a draft MO for a finished good. ProductionQty is target plus
// buffer; nothing is allocated or generated at this point.
func (s *MOService) Create(ctx context.Context, req CreateMORequest, actorID string) (*entity.ManufacturingOrder, error) {
	if req.TargetQty <= 0 {
		return nil, &ValidationError{Field: "target_qty", Reason: "must be positive"}
	}
	if req.BufferQty < 0 {
		return nil, &ValidationError{Field: "buffer_qty", Reason: "must not be negative"}
	}

	product, err := s.productRepo.FindByID(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("load product %s: %w", req.ProductID, err)
	}
	if product.Kind != entity.KindFinishGood {
		return nil, &ValidationError{Field: "product_id", Reason: fmt.Sprintf("%s is %s, not a finished good", product.Code, product.Kind)}
	}

	routing := req.RoutingType
	if routing == "" {
		routing = entity.RouteFull
	}
	switch routing {
	case entity.RouteFull, entity.RouteNoEmbroidery, entity.RouteCutSewPack:
	default:
		return nil, &ValidationError{Field: "routing_type", Reason: fmt.Sprintf("unknown routing %q", routing)}
	}

	code, err := s.seq.Next(ctx, "MO")
	if err != nil {
		return nil, err
	}

	mo := &entity.ManufacturingOrder{
		ID:            uuid.New().String(),
		MOCode:        code,
		ProductID:     product.ID,
		ProductCode:   product.Code,
		SalesRef:      req.SalesRef,
		TargetQty:     req.TargetQty,
		BufferQty:     req.BufferQty,
		ProductionQty: req.TargetQty + req.BufferQty,
		Week:          req.Week,
		Destination:   req.Destination,
		RoutingType:   routing,
		Status:        entity.MOStatusDraft,
		CreatedBy:     actorID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		mo.CreatedAt = now
		mo.UpdatedAt = now
		if err := tx.Create(mo).Error; err != nil {
			return fmt.Errorf("persist manufacturing order: %w", err)
		}
		return repository.AppendAudit(tx, &entity.AuditLog{
			EntityType: "manufacturing_order",
			EntityID:   mo.ID,
			EntityCode: mo.MOCode,
			Action:     "create",
			ToStatus:   string(mo.Status),
			After:      entity.JSONB{"product_code": mo.ProductCode, "production_qty": mo.ProductionQty, "routing": routing},
			ActorID:    actorID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("manufacturing order created",
		zap.String("mo_code", mo.MOCode),
		zap.String("product_code", mo.ProductCode),
		zap.Float64("production_qty", mo.ProductionQty))
	return mo, nil
}

// ApprovePrimaryPO records the primary purchase order and moves the draft to
// partial. The MO still cannot generate work orders.
func (s *MOService) ApprovePrimaryPO(ctx context.Context, moID, actorID string) (*entity.ManufacturingOrder, error) {
	var out *entity.ManufacturingOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		mo, err := repository.LockMO(tx, moID)
		if err != nil {
			return fmt.Errorf("manufacturing order %s: %w", moID, err)
		}
		if !mo.Status.CanTransition(entity.MOStatusPartial) {
			return &InvalidStateTransitionError{
				EntityType: "manufacturing_order", EntityID: moID,
				From: string(mo.Status), To: string(entity.MOStatusPartial),
			}
		}

		from := mo.Status
		mo.PrimaryPOApproved = true
		mo.Status = entity.MOStatusPartial
		mo.UpdatedAt = time.Now()
		if err := tx.Save(mo).Error; err != nil {
			return fmt.Errorf("approve primary po: %w", err)
		}
		out = mo
		return repository.AppendAudit(tx, &entity.AuditLog{
			EntityType: "manufacturing_order",
			EntityID:   mo.ID,
			EntityCode: mo.MOCode,
			Action:     "approve_primary_po",
			FromStatus: string(from),
			ToStatus:   string(mo.Status),
			ActorID:    actorID,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApproveLabelPO releases the MO: week and destination freeze, and the first
// routing department's WO is generated with its material allocation, all in
// one transaction. Allocation shortfalls surface as pending material debts on
// the new WO.
func (s *MOService) ApproveLabelPO(ctx context.Context, moID, warehouseID, actorID string) (*entity.ManufacturingOrder, error) {
	if warehouseID == "" {
		return nil, &ValidationError{Field: "warehouse_id", Reason: "required"}
	}

	var out *entity.ManufacturingOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		mo, err := repository.LockMO(tx, moID)
		if err != nil {
			return fmt.Errorf("manufacturing order %s: %w", moID, err)
		}
		if !mo.Status.CanTransition(entity.MOStatusReleased) {
			return &InvalidStateTransitionError{
				EntityType: "manufacturing_order", EntityID: moID,
				From: string(mo.Status), To: string(entity.MOStatusReleased),
			}
		}
		if !mo.PrimaryPOApproved {
			return &InvalidStateTransitionError{
				EntityType: "manufacturing_order", EntityID: moID,
				From: string(mo.Status), To: string(entity.MOStatusReleased),
				Reason: "primary PO not approved",
			}
		}
		if mo.Week == "" || mo.Destination == "" {
			return &ValidationError{Field: "week", Reason: "week and destination must be set before release"}
		}

		from := mo.Status
		mo.LabelPOApproved = true
		mo.WeekDestinationLocked = true
		mo.Status = entity.MOStatusReleased
		mo.UpdatedAt = time.Now()
		if err := tx.Save(mo).Error; err != nil {
			return fmt.Errorf("release manufacturing order: %w", err)
		}
		if err := repository.AppendAudit(tx, &entity.AuditLog{
			EntityType: "manufacturing_order",
			EntityID:   mo.ID,
			EntityCode: mo.MOCode,
			Action:     "approve_label_po",
			FromStatus: string(from),
			ToStatus:   string(mo.Status),
			After:      entity.JSONB{"week": mo.Week, "destination": mo.Destination},
			ActorID:    actorID,
		}); err != nil {
			return err
		}

		if _, err := s.wos.createStageWOInTx(ctx, tx, mo, 0, mo.ProductionQty, warehouseID, actorID); err != nil {
			return err
		}

		out = mo
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("manufacturing order released",
		zap.String("mo_code", out.MOCode),
		zap.String("week", out.Week),
		zap.String("destination", out.Destination))
	return out, nil
}

// Cancel aborts a non-terminal MO: every live WO is cancelled with its
// reservations released, then the MO itself.
func (s *MOService) Cancel(ctx context.Context, moID, actorID string) (*entity.ManufacturingOrder, error) {
	var out *entity.ManufacturingOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		mo, err := repository.LockMO(tx, moID)
		if err != nil {
			return fmt.Errorf("manufacturing order %s: %w", moID, err)
		}
		if !mo.Status.CanTransition(entity.MOStatusCancelled) {
			return &InvalidStateTransitionError{
				EntityType: "manufacturing_order", EntityID: moID,
				From: string(mo.Status), To: string(entity.MOStatusCancelled),
			}
		}

		var wos []entity.WorkOrder
		if err := tx.Where("mo_id = ?", moID).Order("seq ASC").Find(&wos).Error; err != nil {
			return fmt.Errorf("load work orders: %w", err)
		}
		for i := range wos {
			wo, err := repository.LockWO(tx, wos[i].ID)
			if err != nil {
				return err
			}
			if wo.Status.Terminal() {
				continue
			}
			if err := s.alloc.reverseInTx(tx, entity.OrderTypeWO, wo.ID, actorID); err != nil {
				return err
			}
			from := wo.Status
			wo.Status = entity.WOStatusCancelled
			wo.UpdatedAt = time.Now()
			if err := tx.Save(wo).Error; err != nil {
				return fmt.Errorf("cancel work order %s: %w", wo.WOCode, err)
			}
			if err := repository.AppendAudit(tx, &entity.AuditLog{
				EntityType: "work_order",
				EntityID:   wo.ID,
				EntityCode: wo.WOCode,
				Action:     "cancel",
				FromStatus: string(from),
				ToStatus:   string(wo.Status),
				After:      entity.JSONB{"cascade": "mo_cancelled"},
				ActorID:    actorID,
			}); err != nil {
				return err
			}
		}

		if err := s.alloc.reverseInTx(tx, entity.OrderTypeMO, moID, actorID); err != nil {
			return err
		}

		from := mo.Status
		mo.Status = entity.MOStatusCancelled
		mo.UpdatedAt = time.Now()
		if err := tx.Save(mo).Error; err != nil {
			return fmt.Errorf("cancel manufacturing order: %w", err)
		}
		out = mo
		return repository.AppendAudit(tx, &entity.AuditLog{
			EntityType: "manufacturing_order",
			EntityID:   mo.ID,
			EntityCode: mo.MOCode,
			Action:     "cancel",
			FromStatus: string(from),
			ToStatus:   string(mo.Status),
			ActorID:    actorID,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Transition drives the MO state machine by event name; the spec-level
// transitionMO entry point.
func (s *MOService) Transition(ctx context.Context, moID string, event MOEvent, warehouseID, actorID string) (*entity.ManufacturingOrder, error) {
	switch event {
	case MOEventApprovePrimaryPO:
		return s.ApprovePrimaryPO(ctx, moID, actorID)
	case MOEventApproveLabelPO:
		return s.ApproveLabelPO(ctx, moID, warehouseID, actorID)
	case MOEventCancel:
		return s.Cancel(ctx, moID, actorID)
	default:
		return nil, &ValidationError{Field: "event", Reason: fmt.Sprintf("unknown manufacturing order event %q", event)}
	}
}

// PlanMaterials runs the full BOM explosion for the MO's production quantity
// without touching inventory. Planning preview for PPIC.
func (s *MOService) PlanMaterials(ctx context.Context, moID string) ([]MaterialRequirement, error) {
	mo, err := s.moRepo.FindByID(ctx, moID)
	if err != nil {
		return nil, fmt.Errorf("manufacturing order %s: %w", moID, err)
	}
	return s.explosion.Explode(ctx, mo.ProductID, mo.ProductionQty)
}

// AllocateMaterials reserves the full exploded requirement set against one
// warehouse at MO level, used for order-scope procurement planning rather
// than the per-WO batches release generates.
func (s *MOService) AllocateMaterials(ctx context.Context, moID string, opts AllocateOptions, actorID string) ([]entity.MaterialAllocation, error) {
	mo, err := s.moRepo.FindByID(ctx, moID)
	if err != nil {
		return nil, fmt.Errorf("manufacturing order %s: %w", moID, err)
	}
	if mo.Status == entity.MOStatusDraft || mo.Status.Terminal() {
		return nil, &InvalidStateTransitionError{
			EntityType: "manufacturing_order", EntityID: moID,
			From: string(mo.Status), To: string(mo.Status),
			Reason: "allocation requires an approved, live manufacturing order",
		}
	}

	reqs, err := s.explosion.Explode(ctx, mo.ProductID, mo.ProductionQty)
	if err != nil {
		return nil, err
	}
	return s.alloc.Allocate(ctx, entity.OrderTypeMO, moID, reqs, opts, actorID)
}

// SubmitEdit routes an MO change through the approval pipeline. Week and
// destination edits are refused outright once the label PO locked them;
// everything else waits for the chain's verdict.
func (s *MOService) SubmitEdit(ctx context.Context, moID string, changes []entity.ChangeCommand, reason string, chain []entity.ApprovalRole, actorID string) (*entity.ApprovalRequest, error) {
	mo, err := s.moRepo.FindByID(ctx, moID)
	if err != nil {
		return nil, fmt.Errorf("manufacturing order %s: %w", moID, err)
	}
	if mo.Status.Terminal() {
		return nil, &InvalidStateTransitionError{
			EntityType: "manufacturing_order", EntityID: moID,
			From: string(mo.Status), To: string(mo.Status),
			Reason: "terminal orders cannot be edited",
		}
	}
	if len(changes) == 0 {
		return nil, &ValidationError{Field: "changes", Reason: "at least one change required"}
	}

	for _, c := range changes {
		switch c.Type {
		case entity.ChangeTypeQuantity:
			if c.ChangeQuantity == nil || c.ChangeQuantity.NewTargetQty <= 0 {
				return nil, &ValidationError{Field: "change_quantity", Reason: "new target must be positive"}
			}
		case entity.ChangeTypeDeadline:
			if c.ChangeDeadline == nil || c.ChangeDeadline.NewWeek == "" {
				return nil, &ValidationError{Field: "change_deadline", Reason: "new week required"}
			}
			if mo.WeekDestinationLocked {
				return nil, &ValidationError{Field: "change_deadline", Reason: "week is locked after label PO approval"}
			}
		case entity.ChangeTypeDestination:
			if c.ChangeDestination == nil || c.ChangeDestination.NewDestination == "" {
				return nil, &ValidationError{Field: "change_destination", Reason: "new destination required"}
			}
			if mo.WeekDestinationLocked {
				return nil, &ValidationError{Field: "change_destination", Reason: "destination is locked after label PO approval"}
			}
		default:
			return nil, &ValidationError{Field: "changes", Reason: fmt.Sprintf("change type %q does not apply to a manufacturing order", c.Type)}
		}
	}

	return s.approvals.Submit(ctx, entity.ApprovalEntityMO, moID, changes, reason, chain, actorID)
}

// ApplyApprovedChanges is the approval-engine applier for manufacturing_order
// requests, run inside the finalizing transaction after the whole chain
// approves. Lock guards are re-checked here: the MO may have been released
// while the request was in flight.
func (s *MOService) ApplyApprovedChanges(ctx context.Context, tx *gorm.DB, req *entity.ApprovalRequest) error {
	mo, err := repository.LockMO(tx, req.EntityID)
	if err != nil {
		return fmt.Errorf("manufacturing order %s: %w", req.EntityID, err)
	}
	if mo.Status.Terminal() {
		return &InvalidStateTransitionError{
			EntityType: "manufacturing_order", EntityID: mo.ID,
			From: string(mo.Status), To: string(mo.Status),
			Reason: "terminal orders cannot be edited",
		}
	}

	before := entity.JSONB{
		"target_qty":  mo.TargetQty,
		"buffer_qty":  mo.BufferQty,
		"week":        mo.Week,
		"destination": mo.Destination,
	}

	for _, c := range req.Changes {
		switch c.Type {
		case entity.ChangeTypeQuantity:
			mo.TargetQty = c.ChangeQuantity.NewTargetQty
			mo.BufferQty = c.ChangeQuantity.NewBufferQty
			mo.ProductionQty = mo.TargetQty + mo.BufferQty
		case entity.ChangeTypeDeadline:
			if mo.WeekDestinationLocked {
				return &ValidationError{Field: "change_deadline", Reason: "week is locked after label PO approval"}
			}
			mo.Week = c.ChangeDeadline.NewWeek
		case entity.ChangeTypeDestination:
			if mo.WeekDestinationLocked {
				return &ValidationError{Field: "change_destination", Reason: "destination is locked after label PO approval"}
			}
			mo.Destination = c.ChangeDestination.NewDestination
		default:
			return &ValidationError{Field: "changes", Reason: fmt.Sprintf("change type %q does not apply to a manufacturing order", c.Type)}
		}
	}

	mo.UpdatedAt = time.Now()
	if err := tx.Save(mo).Error; err != nil {
		return fmt.Errorf("apply approved changes: %w", err)
	}

	return repository.AppendAudit(tx, &entity.AuditLog{
		EntityType: "manufacturing_order",
		EntityID:   mo.ID,
		EntityCode: mo.MOCode,
		Action:     "apply_approved_edit",
		Before:     before,
		After: entity.JSONB{
			"target_qty":  mo.TargetQty,
			"buffer_qty":  mo.BufferQty,
			"week":        mo.Week,
			"destination": mo.Destination,
			"request_id":  req.ID,
		},
		ActorID: req.RequestedBy,
	})
}

// Get exposes one MO with its product.
func (s *MOService) Get(ctx context.Context, moID string) (*entity.ManufacturingOrder, error) {
	return s.moRepo.FindByID(ctx, moID)
}

// List exposes filtered MOs.
func (s *MOService) List(ctx context.Context, params repository.MOListParams) ([]entity.ManufacturingOrder, int64, error) {
	return s.moRepo.List(ctx, params)
}

// ListWorkOrders exposes the MO's routing chain.
func (s *MOService) ListWorkOrders(ctx context.Context, moID string) ([]entity.WorkOrder, error) {
	return s.woRepo.ListByMO(ctx, moID)
}
