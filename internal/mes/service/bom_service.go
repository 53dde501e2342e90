package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
	"github.com/santz1994/ERP-sub002/internal/mes/repository"
)

// BOMLine is one component line of a new BOM version.
type BOMLine struct {
	ComponentID string  `json:"component_id" binding:"required"`
	QtyPer      float64 `json:"qty_per" binding:"required"`
	WastagePct  float64 `json:"wastage_pct"`
}

// CreateBOMRequest defines a new recipe version for (product, stage).
type CreateBOMRequest struct {
	ProductID string            `json:"product_id" binding:"required"`
	Stage     entity.Department `json:"stage" binding:"required"`
	Version   string            `json:"version"`
	Activate  bool              `json:"activate"`
	Lines     []BOMLine         `json:"lines" binding:"required"`
}

// BOMService manages recipe versions and exposes explosion previews.
type BOMService struct {
	bomRepo   *repository.BOMRepository
	explosion *ExplosionService
	logger    *zap.Logger
}

func NewBOMService(bomRepo *repository.BOMRepository, explosion *ExplosionService, logger *zap.Logger) *BOMService {
	return &BOMService{bomRepo: bomRepo, explosion: explosion, logger: logger}
}

// CreateVersion persists a new header with its lines. Activating it swaps
// the active flag off the previous version atomically. Self-references are
// refused here; deeper cycles surface at explosion time with the full path.
func (s *BOMService) CreateVersion(ctx context.Context, req CreateBOMRequest, actorID string) (*entity.BOMHeader, error) {
	if len(req.Lines) == 0 {
		return nil, &ValidationError{Field: "lines", Reason: "at least one component line required"}
	}

	if _, err := s.bomRepo.Product(ctx, req.ProductID); err != nil {
		return nil, fmt.Errorf("load product %s: %w", req.ProductID, err)
	}

	seen := make(map[string]bool, len(req.Lines))
	details := make([]entity.BOMDetail, 0, len(req.Lines))
	for i, line := range req.Lines {
		if line.QtyPer <= 0 {
			return nil, &ValidationError{Field: "qty_per", Reason: "must be positive"}
		}
		if line.WastagePct < 0 {
			return nil, &ValidationError{Field: "wastage_pct", Reason: "must not be negative"}
		}
		if line.ComponentID == req.ProductID {
			return nil, &ValidationError{Field: "component_id", Reason: "a product cannot be its own component"}
		}
		if seen[line.ComponentID] {
			return nil, &ValidationError{Field: "component_id", Reason: fmt.Sprintf("component %s listed twice", line.ComponentID)}
		}
		seen[line.ComponentID] = true

		if _, err := s.bomRepo.Product(ctx, line.ComponentID); err != nil {
			return nil, fmt.Errorf("load component %s: %w", line.ComponentID, err)
		}
		details = append(details, entity.BOMDetail{
			ComponentID: line.ComponentID,
			QtyPer:      line.QtyPer,
			WastagePct:  line.WastagePct,
			Seq:         i,
		})
	}

	version := req.Version
	if version == "" {
		version = "v1"
	}
	header := &entity.BOMHeader{
		ProductID: req.ProductID,
		Stage:     req.Stage,
		Version:   version,
		Active:    req.Activate,
		CreatedBy: actorID,
		Details:   details,
	}
	if err := s.bomRepo.CreateHeader(ctx, header); err != nil {
		return nil, fmt.Errorf("persist bom header: %w", err)
	}

	s.logger.Info("bom version created",
		zap.String("product_id", req.ProductID),
		zap.String("stage", string(req.Stage)),
		zap.String("version", version),
		zap.Bool("active", req.Activate))
	return header, nil
}

// Explode previews the full leaf-material requirement set for an article.
func (s *BOMService) Explode(ctx context.Context, articleID string, targetQty float64) ([]MaterialRequirement, error) {
	return s.explosion.Explode(ctx, articleID, targetQty)
}

// ActiveVersions lists the article's active headers across stages.
func (s *BOMService) ActiveVersions(ctx context.Context, productID string) ([]entity.BOMHeader, error) {
	return s.bomRepo.ActiveHeaders(ctx, productID)
}

// Details lists a header's component lines.
func (s *BOMService) Details(ctx context.Context, headerID string) ([]entity.BOMDetail, error) {
	return s.bomRepo.Details(ctx, headerID)
}
