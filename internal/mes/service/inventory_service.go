package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
	"github.com/santz1994/ERP-sub002/internal/mes/repository"
)

// InventoryService exposes the ledger for reads, inbound receipts, and
// approval-gated manual adjustments. Reservation and issue movements belong
// to the allocation and WO services.
type InventoryService struct {
	db          *gorm.DB
	invRepo     *repository.InventoryRepository
	productRepo *repository.ProductRepository
	approvals   *ApprovalService
	logger      *zap.Logger
}

func NewInventoryService(db *gorm.DB, invRepo *repository.InventoryRepository, productRepo *repository.ProductRepository, approvals *ApprovalService, logger *zap.Logger) *InventoryService {
	return &InventoryService{
		db:          db,
		invRepo:     invRepo,
		productRepo: productRepo,
		approvals:   approvals,
		logger:      logger,
	}
}

// Receive books inbound stock, a purchasing delivery or an opening balance.
func (s *InventoryService) Receive(ctx context.Context, productID, warehouseID string, qty float64, refCode, actorID string) (*entity.InventoryItem, error) {
	if qty <= 0 {
		return nil, &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load product %s: %w", productID, err)
	}

	var out *entity.InventoryItem
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := repository.LockInventoryItem(tx, product.ID, product.Code, warehouseID, product.UOM)
		if err != nil {
			return fmt.Errorf("lock inventory for %s: %w", product.Code, err)
		}
		item.OnHandQty += qty
		if err := repository.SaveInventoryItem(tx, item); err != nil {
			return fmt.Errorf("receive %s: %w", product.Code, err)
		}
		if err := repository.JournalMovement(tx, &entity.InventoryTransaction{
			ProductID:     product.ID,
			ProductCode:   product.Code,
			WarehouseID:   warehouseID,
			TxType:        entity.TxTypeReceipt,
			Quantity:      qty,
			ReferenceType: "ADJ",
			ReferenceCode: refCode,
			CreatedBy:     actorID,
		}); err != nil {
			return fmt.Errorf("journal receipt for %s: %w", product.Code, err)
		}
		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("stock received",
		zap.String("product_code", product.Code),
		zap.String("warehouse_id", warehouseID),
		zap.Float64("quantity", qty))
	return out, nil
}

// SubmitAdjustment routes a manual stock correction through the approval
// pipeline; the ledger moves only when the chain approves.
func (s *InventoryService) SubmitAdjustment(ctx context.Context, adj entity.AdjustStock, chain []entity.ApprovalRole, actorID string) (*entity.ApprovalRequest, error) {
	if adj.DeltaQty == 0 {
		return nil, &ValidationError{Field: "delta_qty", Reason: "must be non-zero"}
	}
	if adj.WarehouseID == "" {
		return nil, &ValidationError{Field: "warehouse_id", Reason: "required"}
	}
	if _, err := s.productRepo.FindByID(ctx, adj.ProductID); err != nil {
		return nil, fmt.Errorf("load product %s: %w", adj.ProductID, err)
	}

	changes := []entity.ChangeCommand{{
		Type:        entity.ChangeTypeAdjustStock,
		AdjustStock: &adj,
	}}
	return s.approvals.Submit(ctx, entity.ApprovalEntityStock, adj.ProductID, changes, adj.Reason, chain, actorID)
}

// ApplyAdjustment is the approval-engine applier for stock_adjustment
// requests. A negative delta must not take available stock below zero; a
// violation fails the request, the shortfall path being material debt, not
// silent negative adjustments.
func (s *InventoryService) ApplyAdjustment(ctx context.Context, tx *gorm.DB, req *entity.ApprovalRequest) error {
	for _, c := range req.Changes {
		if c.Type != entity.ChangeTypeAdjustStock || c.AdjustStock == nil {
			return &ValidationError{Field: "changes", Reason: fmt.Sprintf("change type %q does not apply to stock", c.Type)}
		}
		adj := c.AdjustStock

		item, err := repository.LockInventoryItem(tx, adj.ProductID, "", adj.WarehouseID, "")
		if err != nil {
			return fmt.Errorf("lock inventory for %s: %w", adj.ProductID, err)
		}
		if adj.DeltaQty < 0 && item.AvailableQty()+adj.DeltaQty < 0 {
			return &InsufficientStockError{
				ProductCode: item.ProductCode,
				WarehouseID: adj.WarehouseID,
				Required:    -adj.DeltaQty,
				Available:   item.AvailableQty(),
			}
		}

		before := item.OnHandQty
		item.OnHandQty += adj.DeltaQty
		if err := repository.SaveInventoryItem(tx, item); err != nil {
			return fmt.Errorf("adjust %s: %w", item.ProductCode, err)
		}
		if err := repository.JournalMovement(tx, &entity.InventoryTransaction{
			ProductID:     adj.ProductID,
			ProductCode:   item.ProductCode,
			WarehouseID:   adj.WarehouseID,
			TxType:        entity.TxTypeAdjust,
			Quantity:      adj.DeltaQty,
			ReferenceType: "ADJ",
			ReferenceID:   req.ID,
			CreatedBy:     req.RequestedBy,
		}); err != nil {
			return fmt.Errorf("journal adjustment for %s: %w", item.ProductCode, err)
		}
		if err := repository.AppendAudit(tx, &entity.AuditLog{
			EntityType: "inventory_item",
			EntityID:   item.ID,
			EntityCode: item.ProductCode,
			Action:     "apply_adjustment",
			Before:     entity.JSONB{"on_hand_qty": before},
			After:      entity.JSONB{"on_hand_qty": item.OnHandQty, "request_id": req.ID},
			ActorID:    req.RequestedBy,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Position exposes one (product, warehouse) stock row.
func (s *InventoryService) Position(ctx context.Context, productID, warehouseID string) (*entity.InventoryItem, error) {
	return s.invRepo.Get(ctx, productID, warehouseID)
}

// ListByWarehouse exposes a warehouse's positions.
func (s *InventoryService) ListByWarehouse(ctx context.Context, warehouseID string, page, pageSize int) ([]entity.InventoryItem, int64, error) {
	return s.invRepo.ListByWarehouse(ctx, warehouseID, page, pageSize)
}

// Movements exposes the journal for a product, newest first.
func (s *InventoryService) Movements(ctx context.Context, productID string, page, pageSize int) ([]entity.InventoryTransaction, int64, error) {
	return s.invRepo.Movements(ctx, productID, page, pageSize)
}
