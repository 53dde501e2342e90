package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
)

// MaterialRequirement is one aggregated leaf-material line produced by an
// explosion pass.
type MaterialRequirement struct {
	ProductID         string             `json:"product_id"`
	ProductCode       string             `json:"product_code"`
	Kind              entity.ProductKind `json:"kind"`
	QtyRequired       float64            `json:"qty_required"`
	UOM               string             `json:"uom"`
	SourceBOMDetailID string             `json:"source_bom_detail_id"` // last detail on the path; empty when aggregated from several
}

// BOMSource is what the explosion walk needs from storage.
type BOMSource interface {
	Product(ctx context.Context, id string) (*entity.Product, error)
	ActiveHeader(ctx context.Context, productID string, stage entity.Department) (*entity.BOMHeader, error)
	ActiveHeaders(ctx context.Context, productID string) ([]entity.BOMHeader, error)
	Details(ctx context.Context, headerID string) ([]entity.BOMDetail, error)
}

// ExplosionService walks the BOM graph. Pure read + compute: it never writes;
// callers persist the requirement lines as the basis for allocation.
type ExplosionService struct {
	source BOMSource
}

func NewExplosionService(source BOMSource) *ExplosionService {
	return &ExplosionService{source: source}
}

// Explode expands the article's BOM tree down to raw-material and accessory
// leaves, multiplying quantities along each path, inflating by wastage, and
// summing multiple paths to the same leaf. Output is sorted by product code
// so downstream allocation behaves deterministically.
func (s *ExplosionService) Explode(ctx context.Context, articleID string, targetQty float64) ([]MaterialRequirement, error) {
	if targetQty <= 0 {
		return nil, &ValidationError{Field: "target_qty", Reason: "must be positive"}
	}

	article, err := s.source.Product(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("load article %s: %w", articleID, err)
	}

	acc := make(map[string]*MaterialRequirement)
	path := []string{article.Code}
	onPath := map[string]bool{articleID: true}
	if err := s.walk(ctx, article, targetQty, path, onPath, acc); err != nil {
		return nil, err
	}
	return sortedRequirements(acc), nil
}

// walk explodes one node. The path/onPath pair is the visited set for this
// traversal; revisiting a node on the current path is a cycle and fails fast.
func (s *ExplosionService) walk(ctx context.Context, node *entity.Product, qty float64, path []string, onPath map[string]bool, acc map[string]*MaterialRequirement) error {
	headers, err := s.source.ActiveHeaders(ctx, node.ID)
	if err != nil {
		return fmt.Errorf("load headers for %s: %w", node.Code, err)
	}
	if len(headers) == 0 {
		return &MissingBOMError{ProductID: node.ID, ProductCode: node.Code}
	}

	for _, header := range headers {
		details, err := s.source.Details(ctx, header.ID)
		if err != nil {
			return fmt.Errorf("load details for header %s: %w", header.ID, err)
		}

		for _, d := range details {
			component, err := s.source.Product(ctx, d.ComponentID)
			if err != nil {
				return fmt.Errorf("load component %s: %w", d.ComponentID, err)
			}

			required := d.RequiredQty(qty)

			if component.Kind == entity.KindRawMaterial || component.Kind == entity.KindAccessory {
				addRequirement(acc, component, required, d.ID)
				continue
			}

			if onPath[component.ID] {
				return &CycleDetectedError{Path: append(append([]string{}, path...), component.Code)}
			}
			onPath[component.ID] = true
			if err := s.walk(ctx, component, required, append(path, component.Code), onPath, acc); err != nil {
				return err
			}
			delete(onPath, component.ID)
		}
	}
	return nil
}

// StageRequirements is the per-stage scoped explosion: the direct component
// lines of the active header producing outputProduct at the given stage. WIP
// components are not recursed into; at WO level they are satisfied from the
// previous department's receipted output.
func (s *ExplosionService) StageRequirements(ctx context.Context, outputProductID string, stage entity.Department, outputQty float64) ([]MaterialRequirement, error) {
	if outputQty <= 0 {
		return nil, &ValidationError{Field: "output_qty", Reason: "must be positive"}
	}

	output, err := s.source.Product(ctx, outputProductID)
	if err != nil {
		return nil, fmt.Errorf("load product %s: %w", outputProductID, err)
	}

	header, err := s.source.ActiveHeader(ctx, outputProductID, stage)
	if err != nil {
		return nil, &MissingBOMError{ProductID: outputProductID, ProductCode: output.Code, Stage: stage}
	}

	details, err := s.source.Details(ctx, header.ID)
	if err != nil {
		return nil, fmt.Errorf("load details for header %s: %w", header.ID, err)
	}

	acc := make(map[string]*MaterialRequirement)
	for _, d := range details {
		component, err := s.source.Product(ctx, d.ComponentID)
		if err != nil {
			return nil, fmt.Errorf("load component %s: %w", d.ComponentID, err)
		}
		addRequirement(acc, component, d.RequiredQty(outputQty), d.ID)
	}
	return sortedRequirements(acc), nil
}

func addRequirement(acc map[string]*MaterialRequirement, p *entity.Product, qty float64, detailID string) {
	if existing, ok := acc[p.ID]; ok {
		existing.QtyRequired += qty
		existing.SourceBOMDetailID = "" // aggregated from more than one path
		return
	}
	acc[p.ID] = &MaterialRequirement{
		ProductID:         p.ID,
		ProductCode:       p.Code,
		Kind:              p.Kind,
		QtyRequired:       qty,
		UOM:               p.UOM,
		SourceBOMDetailID: detailID,
	}
}

func sortedRequirements(acc map[string]*MaterialRequirement) []MaterialRequirement {
	out := make([]MaterialRequirement, 0, len(acc))
	for _, r := range acc {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductCode < out[j].ProductCode })
	return out
}
