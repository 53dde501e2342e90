package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/santz1994/ERP-sub002/internal/mes/repository"
	"github.com/santz1994/ERP-sub002/internal/mes/service"
)

// Handlers bundles every MES endpoint group.
type Handlers struct {
	Product    *ProductHandler
	BOM        *BOMHandler
	MO         *MOHandler
	WO         *WOHandler
	Allocation *AllocationHandler
	Debt       *DebtHandler
	Approval   *ApprovalHandler
	Rework     *ReworkHandler
	Inventory  *InventoryHandler
}

func NewHandlers(repos *repository.Repositories, bomSvc *service.BOMService, moSvc *service.MOService, woSvc *service.WOService, allocSvc *service.AllocationService, debtSvc *service.DebtService, approvalSvc *service.ApprovalService, reworkSvc *service.ReworkService, invSvc *service.InventoryService) *Handlers {
	return &Handlers{
		Product:    NewProductHandler(repos.Product),
		BOM:        NewBOMHandler(bomSvc),
		MO:         NewMOHandler(moSvc),
		WO:         NewWOHandler(woSvc),
		Allocation: NewAllocationHandler(allocSvc),
		Debt:       NewDebtHandler(debtSvc),
		Approval:   NewApprovalHandler(approvalSvc),
		Rework:     NewReworkHandler(reworkSvc),
		Inventory:  NewInventoryHandler(invSvc),
	}
}

// Response is the common envelope.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Pagination carries list paging info.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{Code: 0, Message: "success", Data: data})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{Code: 0, Message: "success", Data: data})
}

func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{Code: code, Message: message})
}

func BadRequest(c *gin.Context, message string) { Error(c, 40000, message) }
func NotFound(c *gin.Context, message string)   { Error(c, 40400, message) }
func Conflict(c *gin.Context, message string)   { Error(c, 40900, message) }
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// RespondError maps the service error taxonomy onto HTTP codes: validation
// and workflow misuse are 400/409, missing rows 404, everything else 500.
func RespondError(c *gin.Context, err error) {
	var (
		validation *service.ValidationError
		missing    *service.MissingBOMError
		cycle      *service.CycleDetectedError
		stock      *service.InsufficientStockError
		allocated  *service.AlreadyAllocatedError
		transition *service.InvalidStateTransitionError
		chain      *service.ApprovalChainViolationError
		pallet     *service.PartialPalletError
	)
	switch {
	case errors.As(err, &validation):
		BadRequest(c, validation.Error())
	case errors.As(err, &missing):
		Error(c, 42200, missing.Error())
	case errors.As(err, &cycle):
		Error(c, 42201, cycle.Error())
	case errors.As(err, &stock):
		Conflict(c, stock.Error())
	case errors.As(err, &allocated):
		Conflict(c, allocated.Error())
	case errors.As(err, &transition):
		Conflict(c, transition.Error())
	case errors.As(err, &chain):
		Error(c, 40300, chain.Error())
	case errors.As(err, &pallet):
		Error(c, 42202, pallet.Error())
	case errors.Is(err, repository.ErrNotFound):
		NotFound(c, err.Error())
	default:
		InternalError(c, err.Error())
	}
}

// GetUserID reads the authenticated actor set by the JWT middleware.
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetPagination reads page/page_size query params with sane bounds.
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20
	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}
	return page, pageSize
}

func totalPages(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
