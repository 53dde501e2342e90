package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
)

// fakeBOMSource serves an in-memory BOM graph to the explosion walk.
type fakeBOMSource struct {
	products map[string]*entity.Product
	headers  []entity.BOMHeader
	details  map[string][]entity.BOMDetail // headerID -> lines
}

func newFakeBOMSource() *fakeBOMSource {
	return &fakeBOMSource{
		products: make(map[string]*entity.Product),
		details:  make(map[string][]entity.BOMDetail),
	}
}

func (f *fakeBOMSource) addProduct(id, code string, kind entity.ProductKind) *entity.Product {
	p := &entity.Product{ID: id, Code: code, Name: code, Kind: kind, UOM: "pcs"}
	f.products[id] = p
	return p
}

func (f *fakeBOMSource) addBOM(productID string, stage entity.Department, lines ...entity.BOMDetail) {
	headerID := fmt.Sprintf("h-%s-%s", productID, stage)
	f.headers = append(f.headers, entity.BOMHeader{
		ID: headerID, ProductID: productID, Stage: stage, Version: "v1", Active: true,
	})
	for i := range lines {
		lines[i].ID = fmt.Sprintf("%s-d%d", headerID, i)
		lines[i].HeaderID = headerID
	}
	f.details[headerID] = lines
}

func (f *fakeBOMSource) Product(_ context.Context, id string) (*entity.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s not found", id)
	}
	return p, nil
}

func (f *fakeBOMSource) ActiveHeader(_ context.Context, productID string, stage entity.Department) (*entity.BOMHeader, error) {
	for i := range f.headers {
		h := f.headers[i]
		if h.ProductID == productID && h.Stage == stage && h.Active {
			return &h, nil
		}
	}
	return nil, fmt.Errorf("no active header for %s at %s", productID, stage)
}

func (f *fakeBOMSource) ActiveHeaders(_ context.Context, productID string) ([]entity.BOMHeader, error) {
	var out []entity.BOMHeader
	for _, h := range f.headers {
		if h.ProductID == productID && h.Active {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeBOMSource) Details(_ context.Context, headerID string) ([]entity.BOMDetail, error) {
	return f.details[headerID], nil
}

func TestExplodeSingleLevel(t *testing.T) {
	src := newFakeBOMSource()
	src.addProduct("fg", "FG-BEAR", entity.KindFinishGood)
	src.addProduct("fabric", "RM-FABRIC", entity.KindRawMaterial)
	src.addProduct("thread", "RM-THREAD", entity.KindRawMaterial)
	src.addBOM("fg", entity.DeptPacking,
		entity.BOMDetail{ComponentID: "fabric", QtyPer: 0.5},
		entity.BOMDetail{ComponentID: "thread", QtyPer: 2},
	)

	svc := NewExplosionService(src)
	reqs, err := svc.Explode(context.Background(), "fg", 100)
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	// Sorted by product code.
	assert.Equal(t, "RM-FABRIC", reqs[0].ProductCode)
	assert.InDelta(t, 50.0, reqs[0].QtyRequired, 1e-9)
	assert.Equal(t, "RM-THREAD", reqs[1].ProductCode)
	assert.InDelta(t, 200.0, reqs[1].QtyRequired, 1e-9)
}

func TestExplodeMultiLevelWithWastage(t *testing.T) {
	// FG -> WIP (sewn body) -> fabric, with 10% wastage at the lower level.
	src := newFakeBOMSource()
	src.addProduct("fg", "FG-BEAR", entity.KindFinishGood)
	src.addProduct("body", "WIP-BODY", entity.KindWIP)
	src.addProduct("fabric", "RM-FABRIC", entity.KindRawMaterial)
	src.addBOM("fg", entity.DeptPacking,
		entity.BOMDetail{ComponentID: "body", QtyPer: 1},
	)
	src.addBOM("body", entity.DeptSewing,
		entity.BOMDetail{ComponentID: "fabric", QtyPer: 0.4, WastagePct: 10},
	)

	svc := NewExplosionService(src)
	reqs, err := svc.Explode(context.Background(), "fg", 200)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "RM-FABRIC", reqs[0].ProductCode)
	// 200 * 1 * 0.4 * 1.10
	assert.InDelta(t, 88.0, reqs[0].QtyRequired, 1e-9)
}

func TestExplodeAggregatesSharedLeaf(t *testing.T) {
	// Thread is consumed by two different WIP paths; requirements sum.
	src := newFakeBOMSource()
	src.addProduct("fg", "FG-BEAR", entity.KindFinishGood)
	src.addProduct("body", "WIP-BODY", entity.KindWIP)
	src.addProduct("ear", "WIP-EAR", entity.KindWIP)
	src.addProduct("thread", "RM-THREAD", entity.KindRawMaterial)
	src.addBOM("fg", entity.DeptPacking,
		entity.BOMDetail{ComponentID: "body", QtyPer: 1},
		entity.BOMDetail{ComponentID: "ear", QtyPer: 2},
	)
	src.addBOM("body", entity.DeptSewing,
		entity.BOMDetail{ComponentID: "thread", QtyPer: 3},
	)
	src.addBOM("ear", entity.DeptSewing,
		entity.BOMDetail{ComponentID: "thread", QtyPer: 1},
	)

	svc := NewExplosionService(src)
	reqs, err := svc.Explode(context.Background(), "fg", 10)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	// body: 10*1*3 = 30, ears: 10*2*1 = 20
	assert.InDelta(t, 50.0, reqs[0].QtyRequired, 1e-9)
	// Aggregated lines lose their single source detail.
	assert.Empty(t, reqs[0].SourceBOMDetailID)
}

func TestExplodeMissingBOM(t *testing.T) {
	src := newFakeBOMSource()
	src.addProduct("fg", "FG-BEAR", entity.KindFinishGood)
	src.addProduct("body", "WIP-BODY", entity.KindWIP)
	src.addBOM("fg", entity.DeptPacking,
		entity.BOMDetail{ComponentID: "body", QtyPer: 1},
	)
	// WIP-BODY has no BOM of its own.

	svc := NewExplosionService(src)
	_, err := svc.Explode(context.Background(), "fg", 10)
	require.Error(t, err)

	var missing *MissingBOMError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "WIP-BODY", missing.ProductCode)
}

func TestExplodeDetectsCycle(t *testing.T) {
	// a -> b -> a.
	src := newFakeBOMSource()
	src.addProduct("a", "WIP-A", entity.KindFinishGood)
	src.addProduct("b", "WIP-B", entity.KindWIP)
	src.addBOM("a", entity.DeptSewing,
		entity.BOMDetail{ComponentID: "b", QtyPer: 1},
	)
	src.addBOM("b", entity.DeptCutting,
		entity.BOMDetail{ComponentID: "a", QtyPer: 1},
	)

	svc := NewExplosionService(src)
	_, err := svc.Explode(context.Background(), "a", 1)
	require.Error(t, err)

	var cycle *CycleDetectedError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"WIP-A", "WIP-B", "WIP-A"}, cycle.Path)
}

func TestExplodeRejectsNonPositiveQty(t *testing.T) {
	svc := NewExplosionService(newFakeBOMSource())
	_, err := svc.Explode(context.Background(), "fg", 0)
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestStageRequirementsDoesNotRecurse(t *testing.T) {
	// The sewing stage consumes the cut panels WIP plus thread; the WIP line
	// must come back as-is, not exploded further.
	src := newFakeBOMSource()
	src.addProduct("body", "WIP-BODY", entity.KindWIP)
	src.addProduct("panels", "WIP-PANELS", entity.KindWIP)
	src.addProduct("thread", "RM-THREAD", entity.KindRawMaterial)
	src.addProduct("fabric", "RM-FABRIC", entity.KindRawMaterial)
	src.addBOM("body", entity.DeptSewing,
		entity.BOMDetail{ComponentID: "panels", QtyPer: 1},
		entity.BOMDetail{ComponentID: "thread", QtyPer: 2},
	)
	src.addBOM("panels", entity.DeptCutting,
		entity.BOMDetail{ComponentID: "fabric", QtyPer: 0.5},
	)

	svc := NewExplosionService(src)
	reqs, err := svc.StageRequirements(context.Background(), "body", entity.DeptSewing, 100)
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	byCode := map[string]MaterialRequirement{}
	for _, r := range reqs {
		byCode[r.ProductCode] = r
	}
	assert.InDelta(t, 100.0, byCode["WIP-PANELS"].QtyRequired, 1e-9)
	assert.Equal(t, entity.KindWIP, byCode["WIP-PANELS"].Kind)
	assert.InDelta(t, 200.0, byCode["RM-THREAD"].QtyRequired, 1e-9)
	// Fabric belongs to the cutting stage, not sewing.
	assert.NotContains(t, byCode, "RM-FABRIC")
}

func TestStageRequirementsMissingHeader(t *testing.T) {
	src := newFakeBOMSource()
	src.addProduct("body", "WIP-BODY", entity.KindWIP)

	svc := NewExplosionService(src)
	_, err := svc.StageRequirements(context.Background(), "body", entity.DeptSewing, 10)
	var missing *MissingBOMError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, entity.DeptSewing, missing.Stage)
}
