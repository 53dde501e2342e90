package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
	"github.com/santz1994/ERP-sub002/internal/mes/repository"
	"github.com/santz1994/ERP-sub002/internal/mes/service"
)

type ApprovalHandler struct {
	svc *service.ApprovalService
}

func NewApprovalHandler(svc *service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{svc: svc}
}

// Get returns one request with its steps.
// GET /api/v1/approvals/:id
func (h *ApprovalHandler) Get(c *gin.Context) {
	req, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, req)
}

// List returns filtered requests; role= lists the inbox pending at a tier.
// GET /api/v1/approvals?entity_type=&entity_id=&status=&role=
func (h *ApprovalHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	params := repository.ApprovalListParams{
		EntityType: c.Query("entity_type"),
		EntityID:   c.Query("entity_id"),
		Status:     entity.ApprovalStatus(c.Query("status")),
		Role:       entity.ApprovalRole(c.Query("role")),
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

type actRequest struct {
	Role     entity.ApprovalRole `json:"role" binding:"required"`
	Decision service.Decision    `json:"decision" binding:"required"`
	Notes    string              `json:"notes"`
}

// Act records one approver's decision on the active step.
// POST /api/v1/approvals/:id/act
func (h *ApprovalHandler) Act(c *gin.Context) {
	var req actRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	out, err := h.svc.Act(c.Request.Context(), c.Param("id"), req.Role, GetUserID(c), req.Decision, req.Notes)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, out)
}

// Cancel withdraws a pending request.
// POST /api/v1/approvals/:id/cancel
func (h *ApprovalHandler) Cancel(c *gin.Context) {
	out, err := h.svc.Cancel(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, out)
}

type ReworkHandler struct {
	svc *service.ReworkService
}

func NewReworkHandler(svc *service.ReworkService) *ReworkHandler {
	return &ReworkHandler{svc: svc}
}

// Get returns one rework request.
// GET /api/v1/reworks/:id
func (h *ReworkHandler) Get(c *gin.Context) {
	rw, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, rw)
}

// ListByWO returns a WO's rework history.
// GET /api/v1/reworks?wo_id=
func (h *ReworkHandler) ListByWO(c *gin.Context) {
	woID := c.Query("wo_id")
	if woID == "" {
		BadRequest(c, "wo_id is required")
		return
	}
	items, err := h.svc.ListByWO(c.Request.Context(), woID)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

// ApproveQC accepts the defect categorization.
// POST /api/v1/reworks/:id/approve
func (h *ReworkHandler) ApproveQC(c *gin.Context) {
	rw, err := h.svc.ApproveQC(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, rw)
}

type rejectQCRequest struct {
	Notes string `json:"notes"`
}

// RejectQC scraps the defects without rework.
// POST /api/v1/reworks/:id/reject
func (h *ReworkHandler) RejectQC(c *gin.Context) {
	var req rejectQCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	rw, err := h.svc.RejectQC(c.Request.Context(), c.Param("id"), req.Notes, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, rw)
}

// Start marks the approved request as in rework.
// POST /api/v1/reworks/:id/start
func (h *ReworkHandler) Start(c *gin.Context) {
	rw, err := h.svc.StartRework(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, rw)
}

type verifyRequest struct {
	GoodQty   float64 `json:"good_qty"`
	FailedQty float64 `json:"failed_qty"`
}

// Verify records the re-inspection split.
// POST /api/v1/reworks/:id/verify
func (h *ReworkHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	rw, err := h.svc.RecordVerification(c.Request.Context(), c.Param("id"), req.GoodQty, req.FailedQty, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, rw)
}

// Close finalizes a verified request.
// POST /api/v1/reworks/:id/close
func (h *ReworkHandler) Close(c *gin.Context) {
	rw, err := h.svc.Close(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, rw)
}
