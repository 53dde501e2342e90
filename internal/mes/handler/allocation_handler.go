package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
	"github.com/santz1994/ERP-sub002/internal/mes/service"
)

type AllocationHandler struct {
	svc *service.AllocationService
}

func NewAllocationHandler(svc *service.AllocationService) *AllocationHandler {
	return &AllocationHandler{svc: svc}
}

// ListByOrder returns an order's allocation batch.
// GET /api/v1/allocations?order_type=WO&order_id=
func (h *AllocationHandler) ListByOrder(c *gin.Context) {
	orderType := entity.OrderType(c.Query("order_type"))
	orderID := c.Query("order_id")
	if orderType == "" || orderID == "" {
		BadRequest(c, "order_type and order_id are required")
		return
	}
	lines, err := h.svc.ListByOrder(c.Request.Context(), orderType, orderID)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": lines})
}

type reverseRequest struct {
	OrderType entity.OrderType `json:"order_type" binding:"required"`
	OrderID   string           `json:"order_id" binding:"required"`
}

// Reverse releases an order's live reservations.
// POST /api/v1/allocations/reverse
func (h *AllocationHandler) Reverse(c *gin.Context) {
	var req reverseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if err := h.svc.ReverseAllocations(c.Request.Context(), req.OrderType, req.OrderID, GetUserID(c)); err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"order_type": req.OrderType, "order_id": req.OrderID, "reversed": true})
}

type DebtHandler struct {
	svc *service.DebtService
}

func NewDebtHandler(svc *service.DebtService) *DebtHandler {
	return &DebtHandler{svc: svc}
}

// Get returns one debt.
// GET /api/v1/debts/:id
func (h *DebtHandler) Get(c *gin.Context) {
	d, err := h.svc.GetDebt(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, d)
}

// List returns debts filtered by status.
// GET /api/v1/debts?status=
func (h *DebtHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.ListDebts(c.Request.Context(), entity.DebtStatus(c.Query("status")), page, pageSize)
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

// Approve grants the negative-inventory position directly (outside an
// approval chain).
// POST /api/v1/debts/:id/approve
func (h *DebtHandler) Approve(c *gin.Context) {
	d, err := h.svc.ApproveDebt(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, d)
}

type rejectDebtRequest struct {
	Reason string `json:"reason"`
}

// Reject terminates a pending debt.
// POST /api/v1/debts/:id/reject
func (h *DebtHandler) Reject(c *gin.Context) {
	var req rejectDebtRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	d, err := h.svc.RejectDebt(c.Request.Context(), c.Param("id"), GetUserID(c), req.Reason)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, d)
}

type settleDebtRequest struct {
	QtyReceived float64 `json:"qty_received" binding:"required"`
}

// Settle applies replenishment stock against the outstanding quantity.
// POST /api/v1/debts/:id/settle
func (h *DebtHandler) Settle(c *gin.Context) {
	var req settleDebtRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	d, err := h.svc.SettleDebt(c.Request.Context(), c.Param("id"), req.QtyReceived, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, d)
}
