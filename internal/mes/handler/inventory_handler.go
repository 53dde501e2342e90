package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
	"github.com/santz1994/ERP-sub002/internal/mes/service"
)

type InventoryHandler struct {
	svc *service.InventoryService
}

func NewInventoryHandler(svc *service.InventoryService) *InventoryHandler {
	return &InventoryHandler{svc: svc}
}

// Position returns one (product, warehouse) stock row.
// GET /api/v1/inventory/position?product_id=&warehouse_id=
func (h *InventoryHandler) Position(c *gin.Context) {
	productID := c.Query("product_id")
	warehouseID := c.Query("warehouse_id")
	if productID == "" || warehouseID == "" {
		BadRequest(c, "product_id and warehouse_id are required")
		return
	}
	item, err := h.svc.Position(c.Request.Context(), productID, warehouseID)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, item)
}

// ListByWarehouse returns a warehouse's positions.
// GET /api/v1/inventory?warehouse_id=
func (h *InventoryHandler) ListByWarehouse(c *gin.Context) {
	warehouseID := c.Query("warehouse_id")
	if warehouseID == "" {
		BadRequest(c, "warehouse_id is required")
		return
	}
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.ListByWarehouse(c.Request.Context(), warehouseID, page, pageSize)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{
		"items": items,
		"pagination": Pagination{
			Page: page, PageSize: pageSize,
			Total: int(total), TotalPages: totalPages(total, pageSize),
		},
	})
}

// Movements returns the journal for a product.
// GET /api/v1/inventory/movements?product_id=
func (h *InventoryHandler) Movements(c *gin.Context) {
	productID := c.Query("product_id")
	if productID == "" {
		BadRequest(c, "product_id is required")
		return
	}
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.Movements(c.Request.Context(), productID, page, pageSize)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{
		"items": items,
		"pagination": Pagination{
			Page: page, PageSize: pageSize,
			Total: int(total), TotalPages: totalPages(total, pageSize),
		},
	})
}

type receiveRequest struct {
	ProductID   string  `json:"product_id" binding:"required"`
	WarehouseID string  `json:"warehouse_id" binding:"required"`
	Quantity    float64 `json:"quantity" binding:"required"`
	RefCode     string  `json:"ref_code"`
}

// Receive books inbound stock.
// POST /api/v1/inventory/receive
func (h *InventoryHandler) Receive(c *gin.Context) {
	var req receiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	item, err := h.svc.Receive(c.Request.Context(), req.ProductID, req.WarehouseID, req.Quantity, req.RefCode, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, item)
}

type adjustmentRequest struct {
	ProductID   string                `json:"product_id" binding:"required"`
	WarehouseID string                `json:"warehouse_id" binding:"required"`
	DeltaQty    float64               `json:"delta_qty" binding:"required"`
	Reason      string                `json:"reason" binding:"required"`
	Chain       []entity.ApprovalRole `json:"chain" binding:"required"`
}

// SubmitAdjustment routes a manual stock correction through approval.
// POST /api/v1/inventory/adjustments
func (h *InventoryHandler) SubmitAdjustment(c *gin.Context) {
	var req adjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	adj := entity.AdjustStock{
		ProductID:   req.ProductID,
		WarehouseID: req.WarehouseID,
		DeltaQty:    req.DeltaQty,
		Reason:      req.Reason,
	}
	ar, err := h.svc.SubmitAdjustment(c.Request.Context(), adj, req.Chain, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, ar)
}
