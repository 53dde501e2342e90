package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
	"github.com/santz1994/ERP-sub002/internal/mes/repository"
	"github.com/santz1994/ERP-sub002/internal/mes/service"
)

type BOMHandler struct {
	svc *service.BOMService
}

func NewBOMHandler(svc *service.BOMService) *BOMHandler {
	return &BOMHandler{svc: svc}
}

// Create persists a new BOM version.
// POST /api/v1/boms
func (h *BOMHandler) Create(c *gin.Context) {
	var req service.CreateBOMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	header, err := h.svc.CreateVersion(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, header)
}

// ActiveVersions lists a product's active headers across stages.
// GET /api/v1/boms?product_id=
func (h *BOMHandler) ActiveVersions(c *gin.Context) {
	productID := c.Query("product_id")
	if productID == "" {
		BadRequest(c, "product_id is required")
		return
	}
	headers, err := h.svc.ActiveVersions(c.Request.Context(), productID)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": headers})
}

// Details lists a header's component lines.
// GET /api/v1/boms/:id/details
func (h *BOMHandler) Details(c *gin.Context) {
	details, err := h.svc.Details(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": details})
}

// Explode previews the leaf-material requirement set for an article.
// GET /api/v1/boms/explode?product_id=&qty=
func (h *BOMHandler) Explode(c *gin.Context) {
	productID := c.Query("product_id")
	if productID == "" {
		BadRequest(c, "product_id is required")
		return
	}
	qty, err := strconv.ParseFloat(c.Query("qty"), 64)
	if err != nil || qty <= 0 {
		BadRequest(c, "qty must be a positive number")
		return
	}
	reqs, err := h.svc.Explode(c.Request.Context(), productID, qty)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": reqs})
}

// ProductHandler serves the masterdata needed by the MES flows.
type ProductHandler struct {
	repo *repository.ProductRepository
}

func NewProductHandler(repo *repository.ProductRepository) *ProductHandler {
	return &ProductHandler{repo: repo}
}

// Create registers a product.
// POST /api/v1/products
func (h *ProductHandler) Create(c *gin.Context) {
	var p entity.Product
	if err := c.ShouldBindJSON(&p); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if p.Code == "" || p.Name == "" {
		BadRequest(c, "code and name are required")
		return
	}
	if err := h.repo.Create(c.Request.Context(), &p); err != nil {
		RespondError(c, err)
		return
	}
	Created(c, p)
}

// Get returns one product.
// GET /api/v1/products/:id
func (h *ProductHandler) Get(c *gin.Context) {
	p, err := h.repo.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, p)
}

// List returns products, optionally filtered by kind.
// GET /api/v1/products?kind=
func (h *ProductHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	items, total, err := h.repo.List(c.Request.Context(), entity.ProductKind(c.Query("kind")), page, pageSize)
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
