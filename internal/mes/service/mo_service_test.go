package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
	"github.com/santz1994/ERP-sub002/internal/mes/testutil"
)

func TestCreateMOValidation(t *testing.T) {
	f := newMESFixture(t)
	ctx := context.Background()
	a := seedRoutedArticle(t, f.db)

	var validation *ValidationError

	_, err := f.mo.Create(ctx, CreateMORequest{ProductID: a.fg.ID, TargetQty: 0}, "ppic-1")
	require.ErrorAs(t, err, &validation)

	_, err = f.mo.Create(ctx, CreateMORequest{ProductID: a.fg.ID, TargetQty: 100, BufferQty: -1}, "ppic-1")
	require.ErrorAs(t, err, &validation)

	// Only finished goods get manufacturing orders.
	_, err = f.mo.Create(ctx, CreateMORequest{ProductID: a.fabric.ID, TargetQty: 100}, "ppic-1")
	require.ErrorAs(t, err, &validation)

	_, err = f.mo.Create(ctx, CreateMORequest{
		ProductID: a.fg.ID, TargetQty: 100, RoutingType: "ROUTE_9",
	}, "ppic-1")
	require.ErrorAs(t, err, &validation)

	// Defaults: full routing, production = target + buffer.
	mo, err := f.mo.Create(ctx, CreateMORequest{
		ProductID: a.fg.ID, TargetQty: 100, BufferQty: 10,
	}, "ppic-1")
	require.NoError(t, err)
	assert.Equal(t, entity.RouteFull, mo.RoutingType)
	assert.InDelta(t, 110.0, mo.ProductionQty, 1e-9)
	assert.Equal(t, entity.MOStatusDraft, mo.Status)
}

func TestLabelPOGating(t *testing.T) {
	f := newMESFixture(t)
	ctx := context.Background()
	a := seedRoutedArticle(t, f.db)

	// Week and destination missing: the release gate refuses.
	mo, err := f.mo.Create(ctx, CreateMORequest{
		ProductID: a.fg.ID, TargetQty: 100, RoutingType: entity.RouteCutSewPack,
	}, "ppic-1")
	require.NoError(t, err)

	// Label PO cannot land on a draft.
	_, err = f.mo.ApproveLabelPO(ctx, mo.ID, testWarehouse, "purchasing-1")
	var invalid *InvalidStateTransitionError
	require.ErrorAs(t, err, &invalid)

	_, err = f.mo.ApprovePrimaryPO(ctx, mo.ID, "purchasing-1")
	require.NoError(t, err)

	_, err = f.mo.ApproveLabelPO(ctx, mo.ID, testWarehouse, "purchasing-1")
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestPlanMaterialsPreview(t *testing.T) {
	f := newMESFixture(t)
	ctx := context.Background()
	a := seedRoutedArticle(t, f.db)

	mo, err := f.mo.Create(ctx, CreateMORequest{
		ProductID: a.fg.ID, TargetQty: 100, RoutingType: entity.RouteCutSewPack,
	}, "ppic-1")
	require.NoError(t, err)

	reqs, err := f.mo.PlanMaterials(ctx, mo.ID)
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	byCode := map[string]MaterialRequirement{}
	for _, r := range reqs {
		byCode[r.ProductCode] = r
	}
	// 100 bears: 0.5 fabric and 2 thread per piece through the WIP chain.
	assert.InDelta(t, 50.0, byCode["RM-FABRIC"].QtyRequired, 1e-9)
	assert.InDelta(t, 200.0, byCode["RM-THREAD"].QtyRequired, 1e-9)

	// Planning must not touch inventory.
	var count int64
	f.db.Model(&entity.MaterialAllocation{}).Count(&count)
	assert.Zero(t, count)
}

func TestMOEditQuantityThroughApproval(t *testing.T) {
	f := newMESFixture(t)
	ctx := context.Background()
	a := seedRoutedArticle(t, f.db)

	mo, err := f.mo.Create(ctx, CreateMORequest{
		ProductID: a.fg.ID, TargetQty: 100, BufferQty: 10,
	}, "ppic-1")
	require.NoError(t, err)

	req, err := f.mo.SubmitEdit(ctx, mo.ID, []entity.ChangeCommand{{
		Type:           entity.ChangeTypeQuantity,
		ChangeQuantity: &entity.ChangeQuantity{NewTargetQty: 150, NewBufferQty: 15},
	}}, "customer upsized", []entity.ApprovalRole{entity.RoleSPV, entity.RoleManager}, "ppic-1")
	require.NoError(t, err)

	// Nothing changes until the chain finishes.
	got, err := f.mo.Get(ctx, mo.ID)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, got.TargetQty, 1e-9)

	_, err = f.approval.Act(ctx, req.ID, entity.RoleSPV, "spv-1", DecisionApprove, "")
	require.NoError(t, err)
	final, err := f.approval.Act(ctx, req.ID, entity.RoleManager, "mgr-1", DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, entity.ApprovalStatusApproved, final.Status)

	got, err = f.mo.Get(ctx, mo.ID)
	require.NoError(t, err)
	assert.InDelta(t, 150.0, got.TargetQty, 1e-9)
	assert.InDelta(t, 15.0, got.BufferQty, 1e-9)
	assert.InDelta(t, 165.0, got.ProductionQty, 1e-9)
}

func TestLockedWeekAndDestinationRefuseEdits(t *testing.T) {
	f := newMESFixture(t)
	ctx := context.Background()
	a := seedRoutedArticle(t, f.db)
	testutil.SeedStock(t, f.db, a.fabric, testWarehouse, 500)
	testutil.SeedStock(t, f.db, a.thread, testWarehouse, 1000)

	mo := f.releasedMO(t, ctx, a)

	var validation *ValidationError
	_, err := f.mo.SubmitEdit(ctx, mo.ID, []entity.ChangeCommand{{
		Type:           entity.ChangeTypeDeadline,
		ChangeDeadline: &entity.ChangeDeadline{NewWeek: "2026-W45"},
	}}, "slip", []entity.ApprovalRole{entity.RoleSPV}, "ppic-1")
	require.ErrorAs(t, err, &validation)

	_, err = f.mo.SubmitEdit(ctx, mo.ID, []entity.ChangeCommand{{
		Type:              entity.ChangeTypeDestination,
		ChangeDestination: &entity.ChangeDestination{NewDestination: "Hamburg"},
	}}, "reroute", []entity.ApprovalRole{entity.RoleSPV}, "ppic-1")
	require.ErrorAs(t, err, &validation)

	// Quantity edits are still allowed to enter the pipeline.
	_, err = f.mo.SubmitEdit(ctx, mo.ID, []entity.ChangeCommand{{
		Type:           entity.ChangeTypeQuantity,
		ChangeQuantity: &entity.ChangeQuantity{NewTargetQty: 190, NewBufferQty: 20},
	}}, "upsize", []entity.ApprovalRole{entity.RoleSPV}, "ppic-1")
	require.NoError(t, err)
}

func TestCancelCascadesToWorkOrders(t *testing.T) {
	f := newMESFixture(t)
	ctx := context.Background()
	a := seedRoutedArticle(t, f.db)
	testutil.SeedStock(t, f.db, a.fabric, testWarehouse, 80)
	testutil.SeedStock(t, f.db, a.thread, testWarehouse, 1000)

	mo := f.releasedMO(t, ctx, a)

	var cutting entity.WorkOrder
	require.NoError(t, f.db.Where("mo_id = ? AND seq = 0", mo.ID).First(&cutting).Error)
	var line entity.MaterialAllocation
	require.NoError(t, f.db.Where("order_id = ?", cutting.ID).First(&line).Error)
	require.Equal(t, entity.AllocStatusPartial, line.Status)

	cancelled, err := f.mo.Cancel(ctx, mo.ID, "ppic-1")
	require.NoError(t, err)
	assert.Equal(t, entity.MOStatusCancelled, cancelled.Status)

	require.NoError(t, f.db.Where("id = ?", cutting.ID).First(&cutting).Error)
	assert.Equal(t, entity.WOStatusCancelled, cutting.Status)

	// Reservations released, the shortfall debt rejected.
	var item entity.InventoryItem
	require.NoError(t, f.db.Where("product_id = ?", a.fabric.ID).First(&item).Error)
	assert.Zero(t, item.ReservedQty)

	var debt entity.MaterialDebt
	require.NoError(t, f.db.Where("allocation_id = ?", line.ID).First(&debt).Error)
	assert.Equal(t, entity.DebtStatusRejected, debt.Status)

	// Terminal orders stay terminal.
	_, err = f.mo.Cancel(ctx, mo.ID, "ppic-1")
	var invalid *InvalidStateTransitionError
	require.ErrorAs(t, err, &invalid)
}

func TestMOLevelAllocation(t *testing.T) {
	f := newMESFixture(t)
	ctx := context.Background()
	a := seedRoutedArticle(t, f.db)
	testutil.SeedStock(t, f.db, a.fabric, testWarehouse, 500)
	testutil.SeedStock(t, f.db, a.thread, testWarehouse, 1000)

	mo, err := f.mo.Create(ctx, CreateMORequest{
		ProductID: a.fg.ID, TargetQty: 100, RoutingType: entity.RouteCutSewPack,
	}, "ppic-1")
	require.NoError(t, err)

	// Drafts cannot reserve.
	_, err = f.mo.AllocateMaterials(ctx, mo.ID, AllocateOptions{WarehouseID: testWarehouse}, "ppic-1")
	var invalid *InvalidStateTransitionError
	require.ErrorAs(t, err, &invalid)

	_, err = f.mo.ApprovePrimaryPO(ctx, mo.ID, "purchasing-1")
	require.NoError(t, err)

	lines, err := f.mo.AllocateMaterials(ctx, mo.ID, AllocateOptions{WarehouseID: testWarehouse}, "ppic-1")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	for _, l := range lines {
		assert.Equal(t, entity.AllocStatusAllocated, l.Status)
		assert.Equal(t, entity.OrderTypeMO, l.OrderType)
	}
}
