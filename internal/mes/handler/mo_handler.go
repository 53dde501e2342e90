package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
	"github.com/santz1994/ERP-sub002/internal/mes/repository"
	"github.com/santz1994/ERP-sub002/internal/mes/service"
)

type MOHandler struct {
	svc *service.MOService
}

func NewMOHandler(svc *service.MOService) *MOHandler {
	return &MOHandler{svc: svc}
}

// Create opens a draft MO.
// POST /api/v1/manufacturing-orders
func (h *MOHandler) Create(c *gin.Context) {
	var req service.CreateMORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	mo, err := h.svc.Create(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, mo)
}

// Get returns one MO.
// GET /api/v1/manufacturing-orders/:id
func (h *MOHandler) Get(c *gin.Context) {
	mo, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, mo)
}

// List returns filtered MOs.
// GET /api/v1/manufacturing-orders?status=&product_id=&week=
func (h *MOHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	params := repository.MOListParams{
		Status:    entity.MOStatus(c.Query("status")),
		ProductID: c.Query("product_id"),
		Week:      c.Query("week"),
		Page:      page,
		PageSize:  pageSize,
	}
	items, total, err := h.svc.List(c.Request.Context(), params)
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

type transitionMORequest struct {
	Event       service.MOEvent `json:"event" binding:"required"`
	WarehouseID string          `json:"warehouse_id"`
}

// Transition drives the MO state machine.
// POST /api/v1/manufacturing-orders/:id/transition
func (h *MOHandler) Transition(c *gin.Context) {
	var req transitionMORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	mo, err := h.svc.Transition(c.Request.Context(), c.Param("id"), req.Event, req.WarehouseID, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, mo)
}

// PlanMaterials previews the full explosion for the MO.
// GET /api/v1/manufacturing-orders/:id/materials
func (h *MOHandler) PlanMaterials(c *gin.Context) {
	reqs, err := h.svc.PlanMaterials(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": reqs})
}

type allocateMORequest struct {
	WarehouseID   string `json:"warehouse_id" binding:"required"`
	AllowFullDebt bool   `json:"allow_full_debt"`
}

// Allocate reserves the full exploded requirement set at MO level.
// POST /api/v1/manufacturing-orders/:id/allocate
func (h *MOHandler) Allocate(c *gin.Context) {
	var req allocateMORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	opts := service.AllocateOptions{WarehouseID: req.WarehouseID, AllowFullDebt: req.AllowFullDebt}
	lines, err := h.svc.AllocateMaterials(c.Request.Context(), c.Param("id"), opts, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, gin.H{"items": lines})
}

type submitEditRequest struct {
	Changes []entity.ChangeCommand `json:"changes" binding:"required"`
	Reason  string                 `json:"reason"`
	Chain   []entity.ApprovalRole  `json:"chain" binding:"required"`
}

// SubmitEdit routes an MO change through the approval pipeline.
// POST /api/v1/manufacturing-orders/:id/edits
func (h *MOHandler) SubmitEdit(c *gin.Context) {
	var req submitEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	ar, err := h.svc.SubmitEdit(c.Request.Context(), c.Param("id"), req.Changes, req.Reason, req.Chain, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, ar)
}

// ListWorkOrders returns the MO's routing chain.
// GET /api/v1/manufacturing-orders/:id/work-orders
func (h *MOHandler) ListWorkOrders(c *gin.Context) {
	wos, err := h.svc.ListWorkOrders(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": wos})
}
