package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
	"github.com/santz1994/ERP-sub002/internal/mes/repository"
	"github.com/santz1994/ERP-sub002/internal/mes/service"
)

type WOHandler struct {
	svc *service.WOService
}

func NewWOHandler(svc *service.WOService) *WOHandler {
	return &WOHandler{svc: svc}
}

// Get returns one WO.
// GET /api/v1/work-orders/:id
func (h *WOHandler) Get(c *gin.Context) {
	wo, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, wo)
}

// List returns filtered WOs.
// GET /api/v1/work-orders?mo_id=&department=&status=
func (h *WOHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	params := repository.WOListParams{
		MOID:       c.Query("mo_id"),
		Department: entity.Department(c.Query("department")),
		Status:     entity.WOStatus(c.Query("status")),
		Page:       page,
		PageSize:   pageSize,
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

type transitionWORequest struct {
	Event       service.WOEvent `json:"event" binding:"required"`
	WarehouseID string          `json:"warehouse_id"`
}

// Transition drives the WO state machine.
// POST /api/v1/work-orders/:id/transition
func (h *WOHandler) Transition(c *gin.Context) {
	var req transitionWORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	wo, err := h.svc.Transition(c.Request.Context(), c.Param("id"), req.Event, req.WarehouseID, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, wo)
}

type recordOutputRequest struct {
	GoodQty        float64 `json:"good_qty"`
	DefectQty      float64 `json:"defect_qty"`
	DefectCategory string  `json:"defect_category"`
}

// RecordOutput reports produced quantities on a running WO.
// POST /api/v1/work-orders/:id/output
func (h *WOHandler) RecordOutput(c *gin.Context) {
	var req recordOutputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	wo, err := h.svc.RecordOutput(c.Request.Context(), c.Param("id"), req.GoodQty, req.DefectQty, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, wo)
}

type submitQCRequest struct {
	DefectCategory string `json:"defect_category"`
}

// SubmitQC hands the WO to quality control.
// POST /api/v1/work-orders/:id/qc
func (h *WOHandler) SubmitQC(c *gin.Context) {
	var req submitQCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	wo, err := h.svc.SubmitQC(c.Request.Context(), c.Param("id"), req.DefectCategory, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, wo)
}

type recordPackingRequest struct {
	CartonsPacked int `json:"cartons_packed" binding:"required"`
}

// RecordPacking stores the packed carton count on a packing WO.
// POST /api/v1/work-orders/:id/packing
func (h *WOHandler) RecordPacking(c *gin.Context) {
	var req recordPackingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	wo, err := h.svc.RecordPacking(c.Request.Context(), c.Param("id"), req.CartonsPacked, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, wo)
}

type reallocateRequest struct {
	WarehouseID   string `json:"warehouse_id" binding:"required"`
	AllowFullDebt bool   `json:"allow_full_debt"`
}

// Reallocate reverses and re-runs the WO's allocation batch.
// POST /api/v1/work-orders/:id/reallocate
func (h *WOHandler) Reallocate(c *gin.Context) {
	var req reallocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	opts := service.AllocateOptions{WarehouseID: req.WarehouseID, AllowFullDebt: req.AllowFullDebt}
	lines, err := h.svc.Reallocate(c.Request.Context(), c.Param("id"), opts, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, gin.H{"items": lines})
}
