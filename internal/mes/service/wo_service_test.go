package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
	"github.com/santz1994/ERP-sub002/internal/mes/repository"
	"github.com/santz1994/ERP-sub002/internal/mes/testutil"
)

// mesFixture wires the full service graph against a throwaway schema, the
// same way the server binary does.
type mesFixture struct {
	db       *gorm.DB
	repos    *repository.Repositories
	debt     *DebtService
	alloc    *AllocationService
	approval *ApprovalService
	rework   *ReworkService
	wo       *WOService
	mo       *MOService
}

func newMESFixture(t *testing.T) *mesFixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	repos := repository.NewRepositories(db)

	seq := NewSequenceService(nil)
	explosion := NewExplosionService(repos.BOM)
	debt := NewDebtService(db, repos.Debt, seq, logger)
	alloc := NewAllocationService(db, repos.Allocation, debt, logger)
	approval := NewApprovalService(db, repos.Approval, logger)
	rework := NewReworkService(db, repos.Rework, logger)
	wo := NewWOService(db, repos.WO, repos.BOM, explosion, alloc, rework, seq, logger)
	mo := NewMOService(db, repos.MO, repos.WO, repos.Product, explosion, alloc, wo, approval, seq, logger)

	approval.RegisterApplier(entity.ApprovalEntityMO, mo.ApplyApprovedChanges)
	approval.RegisterApplier(entity.ApprovalEntityDebt, debt.ApplyApproval)

	return &mesFixture{
		db: db, repos: repos,
		debt: debt, alloc: alloc, approval: approval,
		rework: rework, wo: wo, mo: mo,
	}
}

// routedArticle is a three-stage bear: cutting turns fabric into panels,
// sewing joins panels with thread into a sewn body, packing boxes the bear.
type routedArticle struct {
	fg, sewn, cut, fabric, thread *entity.Product
}

func seedRoutedArticle(t *testing.T, db *gorm.DB) routedArticle {
	t.Helper()
	a := routedArticle{
		fg:     testutil.SeedProduct(t, db, "FG-BEAR", entity.KindFinishGood),
		sewn:   testutil.SeedProduct(t, db, "WIP-SEWN", entity.KindWIP),
		cut:    testutil.SeedProduct(t, db, "WIP-CUT", entity.KindWIP),
		fabric: testutil.SeedProduct(t, db, "RM-FABRIC", entity.KindRawMaterial),
		thread: testutil.SeedProduct(t, db, "RM-THREAD", entity.KindRawMaterial),
	}
	a.fg.PcsPerCarton = 10
	a.fg.CartonsPerPallet = 2
	require.NoError(t, db.Save(a.fg).Error)

	testutil.SeedBOM(t, db, a.fg.ID, entity.DeptPacking, []entity.BOMDetail{
		{ComponentID: a.sewn.ID, QtyPer: 1},
	})
	testutil.SeedBOM(t, db, a.sewn.ID, entity.DeptSewing, []entity.BOMDetail{
		{ComponentID: a.cut.ID, QtyPer: 1},
		{ComponentID: a.thread.ID, QtyPer: 2},
	})
	testutil.SeedBOM(t, db, a.cut.ID, entity.DeptCutting, []entity.BOMDetail{
		{ComponentID: a.fabric.ID, QtyPer: 0.5},
	})
	return a
}

func (f *mesFixture) releasedMO(t *testing.T, ctx context.Context, a routedArticle) *entity.ManufacturingOrder {
	t.Helper()
	mo, err := f.mo.Create(ctx, CreateMORequest{
		ProductID:   a.fg.ID,
		TargetQty:   180,
		BufferQty:   20,
		Week:        "2026-W40",
		Destination: "Rotterdam",
		RoutingType: entity.RouteCutSewPack,
	}, "ppic-1")
	require.NoError(t, err)

	_, err = f.mo.ApprovePrimaryPO(ctx, mo.ID, "purchasing-1")
	require.NoError(t, err)
	mo, err = f.mo.ApproveLabelPO(ctx, mo.ID, testWarehouse, "purchasing-1")
	require.NoError(t, err)
	return mo
}

func (f *mesFixture) onHand(t *testing.T, productID string) float64 {
	t.Helper()
	var item entity.InventoryItem
	require.NoError(t, f.db.Where("product_id = ?", productID).First(&item).Error)
	return item.OnHandQty
}

// The whole chain: release spawns the cutting WO, a fabric shortfall rides as
// debt, defects route through rework, and each completion hands the output to
// the next department until packing closes the MO.
func TestWorkOrderChainEndToEnd(t *testing.T) {
	f := newMESFixture(t)
	ctx := context.Background()
	a := seedRoutedArticle(t, f.db)

	testutil.SeedStock(t, f.db, a.fabric, testWarehouse, 80)
	testutil.SeedStock(t, f.db, a.thread, testWarehouse, 1000)

	mo := f.releasedMO(t, ctx, a)
	assert.Equal(t, entity.MOStatusReleased, mo.Status)
	assert.True(t, mo.WeekDestinationLocked)

	// Release generated exactly the cutting WO, sized at production qty.
	var cutting entity.WorkOrder
	require.NoError(t, f.db.Where("mo_id = ? AND seq = 0", mo.ID).First(&cutting).Error)
	assert.Equal(t, entity.DeptCutting, cutting.Department)
	assert.Equal(t, entity.WOStatusPending, cutting.Status)
	assert.InDelta(t, 200.0, cutting.TargetQty, 1e-9)
	assert.Equal(t, a.cut.ID, cutting.OutputProductID)

	// Fabric demand is 100 against 80 on hand: partial line plus a 20 debt.
	var line entity.MaterialAllocation
	require.NoError(t, f.db.Where("order_id = ?", cutting.ID).First(&line).Error)
	assert.Equal(t, entity.AllocStatusPartial, line.Status)
	var debt entity.MaterialDebt
	require.NoError(t, f.db.Where("allocation_id = ?", line.ID).First(&debt).Error)
	assert.InDelta(t, 20.0, debt.Qty, 1e-9)

	// A pending debt blocks the start.
	_, err := f.wo.Start(ctx, cutting.ID, "spv-cut")
	var invalid *InvalidStateTransitionError
	require.ErrorAs(t, err, &invalid)

	_, err = f.debt.ApproveDebt(ctx, debt.ID, "mgr-wh")
	require.NoError(t, err)

	started, err := f.wo.Start(ctx, cutting.ID, "spv-cut")
	require.NoError(t, err)
	assert.Equal(t, entity.WOStatusInProgress, started.Status)

	// Issuing consumed the full demand; the debt portion drove on-hand negative.
	assert.InDelta(t, -20.0, f.onHand(t, a.fabric.ID), 1e-9)

	got, err := f.mo.Get(ctx, mo.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.MOStatusInProgress, got.Status)

	// 195 good, 5 defect; QC submission opens a rework request.
	_, err = f.wo.RecordOutput(ctx, cutting.ID, 195, 5, "spv-cut")
	require.NoError(t, err)
	_, err = f.wo.SubmitQC(ctx, cutting.ID, "open seam", "qc-1")
	require.NoError(t, err)

	var rw entity.ReworkRequest
	require.NoError(t, f.db.Where("wo_id = ?", cutting.ID).First(&rw).Error)
	assert.Equal(t, entity.ReworkStatusPendingQC, rw.Status)
	assert.InDelta(t, 5.0, rw.DefectQty, 1e-9)

	// Outstanding debt and open rework both park the WO in shortage handling.
	resolved, err := f.wo.ResolveQC(ctx, cutting.ID, "qc-1")
	require.NoError(t, err)
	assert.Equal(t, entity.WOStatusShortageHandling, resolved.Status)

	_, err = f.wo.Complete(ctx, cutting.ID, testWarehouse, "spv-cut")
	require.ErrorAs(t, err, &invalid)

	// Replenishment settles the debt and restores on-hand to zero.
	settled, err := f.debt.SettleDebt(ctx, debt.ID, 20, "wh-1")
	require.NoError(t, err)
	assert.Equal(t, entity.DebtStatusSettled, settled.Status)
	assert.InDelta(t, 0.0, f.onHand(t, a.fabric.ID), 1e-9)

	// Rework: 3 of the 5 defects recovered.
	_, err = f.rework.ApproveQC(ctx, rw.ID, "qc-1")
	require.NoError(t, err)
	_, err = f.rework.StartRework(ctx, rw.ID, "spv-cut")
	require.NoError(t, err)
	_, err = f.rework.RecordVerification(ctx, rw.ID, 3, 2, "qc-1")
	require.NoError(t, err)
	_, err = f.rework.Close(ctx, rw.ID, "qc-1")
	require.NoError(t, err)

	resolved, err = f.wo.ResolveQC(ctx, cutting.ID, "qc-1")
	require.NoError(t, err)
	assert.Equal(t, entity.WOStatusReadyTransfer, resolved.Status)

	// Completion receipts 198 panels and chains the sewing WO at that size.
	completed, err := f.wo.Complete(ctx, cutting.ID, testWarehouse, "spv-cut")
	require.NoError(t, err)
	assert.Equal(t, entity.WOStatusCompleted, completed.Status)

	var sewing entity.WorkOrder
	require.NoError(t, f.db.Where("mo_id = ? AND seq = 1", mo.ID).First(&sewing).Error)
	assert.Equal(t, entity.DeptSewing, sewing.Department)
	assert.Equal(t, a.cut.ID, sewing.InputProductID)
	assert.InDelta(t, 198.0, sewing.TargetQty, 1e-9)

	// The sewing allocation drew on the freshly receipted panels in full.
	var sewLines []entity.MaterialAllocation
	require.NoError(t, f.db.Where("order_id = ?", sewing.ID).Find(&sewLines).Error)
	require.Len(t, sewLines, 2)
	for _, l := range sewLines {
		assert.Equal(t, entity.AllocStatusAllocated, l.Status)
	}

	// Sewing runs clean.
	_, err = f.wo.Start(ctx, sewing.ID, "spv-sew")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, f.onHand(t, a.cut.ID), 1e-9)
	assert.InDelta(t, 1000.0-396.0, f.onHand(t, a.thread.ID), 1e-9)

	_, err = f.wo.RecordOutput(ctx, sewing.ID, 198, 0, "spv-sew")
	require.NoError(t, err)
	_, err = f.wo.SubmitQC(ctx, sewing.ID, "", "qc-1")
	require.NoError(t, err)
	_, err = f.wo.ResolveQC(ctx, sewing.ID, "qc-1")
	require.NoError(t, err)
	_, err = f.wo.Complete(ctx, sewing.ID, testWarehouse, "spv-sew")
	require.NoError(t, err)

	// Packing: 198 bears, 10 per carton, 2 cartons per pallet.
	var packing entity.WorkOrder
	require.NoError(t, f.db.Where("mo_id = ? AND seq = 2", mo.ID).First(&packing).Error)
	assert.Equal(t, entity.DeptPacking, packing.Department)

	_, err = f.wo.Start(ctx, packing.ID, "spv-pack")
	require.NoError(t, err)
	_, err = f.wo.RecordOutput(ctx, packing.ID, 198, 0, "spv-pack")
	require.NoError(t, err)
	_, err = f.wo.SubmitQC(ctx, packing.ID, "", "qc-1")
	require.NoError(t, err)
	_, err = f.wo.ResolveQC(ctx, packing.ID, "qc-1")
	require.NoError(t, err)

	// 19 cartons is not a whole number of pallets.
	_, err = f.wo.RecordPacking(ctx, packing.ID, 19, "spv-pack")
	require.NoError(t, err)
	_, err = f.wo.Complete(ctx, packing.ID, testWarehouse, "spv-pack")
	var partial *PartialPalletError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 19, partial.CartonsPacked)
	assert.Equal(t, 2, partial.CartonsPerPallet)

	_, err = f.wo.RecordPacking(ctx, packing.ID, 20, "spv-pack")
	require.NoError(t, err)
	done, err := f.wo.Complete(ctx, packing.ID, testWarehouse, "spv-pack")
	require.NoError(t, err)
	assert.Equal(t, entity.WOStatusCompleted, done.Status)
	assert.Equal(t, 10, done.PalletsFormed)

	// The final stage closes the MO and puts finished goods on the shelf.
	got, err = f.mo.Get(ctx, mo.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.MOStatusCompleted, got.Status)
	assert.InDelta(t, 198.0, f.onHand(t, a.fg.ID), 1e-9)
}

func TestRecordOutputRequiresRunningWO(t *testing.T) {
	f := newMESFixture(t)
	ctx := context.Background()
	a := seedRoutedArticle(t, f.db)
	testutil.SeedStock(t, f.db, a.fabric, testWarehouse, 500)
	testutil.SeedStock(t, f.db, a.thread, testWarehouse, 1000)

	mo := f.releasedMO(t, ctx, a)
	var cutting entity.WorkOrder
	require.NoError(t, f.db.Where("mo_id = ? AND seq = 0", mo.ID).First(&cutting).Error)

	_, err := f.wo.RecordOutput(ctx, cutting.ID, 10, 0, "spv-cut")
	var invalid *InvalidStateTransitionError
	require.ErrorAs(t, err, &invalid)

	_, err = f.wo.SubmitQC(ctx, cutting.ID, "", "qc-1")
	require.ErrorAs(t, err, &invalid)
}

func TestSubmitQCRequiresOutput(t *testing.T) {
	f := newMESFixture(t)
	ctx := context.Background()
	a := seedRoutedArticle(t, f.db)
	testutil.SeedStock(t, f.db, a.fabric, testWarehouse, 500)
	testutil.SeedStock(t, f.db, a.thread, testWarehouse, 1000)

	mo := f.releasedMO(t, ctx, a)
	var cutting entity.WorkOrder
	require.NoError(t, f.db.Where("mo_id = ? AND seq = 0", mo.ID).First(&cutting).Error)

	_, err := f.wo.Start(ctx, cutting.ID, "spv-cut")
	require.NoError(t, err)

	_, err = f.wo.SubmitQC(ctx, cutting.ID, "", "qc-1")
	var invalid *InvalidStateTransitionError
	require.ErrorAs(t, err, &invalid)
}

func TestRecordPackingOnlyOnPackingWO(t *testing.T) {
	f := newMESFixture(t)
	ctx := context.Background()
	a := seedRoutedArticle(t, f.db)
	testutil.SeedStock(t, f.db, a.fabric, testWarehouse, 500)
	testutil.SeedStock(t, f.db, a.thread, testWarehouse, 1000)

	mo := f.releasedMO(t, ctx, a)
	var cutting entity.WorkOrder
	require.NoError(t, f.db.Where("mo_id = ? AND seq = 0", mo.ID).First(&cutting).Error)

	_, err := f.wo.Start(ctx, cutting.ID, "spv-cut")
	require.NoError(t, err)

	_, err = f.wo.RecordPacking(ctx, cutting.ID, 5, "spv-cut")
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestWOReallocateAfterStockArrives(t *testing.T) {
	f := newMESFixture(t)
	ctx := context.Background()
	a := seedRoutedArticle(t, f.db)
	testutil.SeedStock(t, f.db, a.thread, testWarehouse, 1000)
	// No fabric at all: the cutting line fails on release.
	mo := f.releasedMO(t, ctx, a)

	var cutting entity.WorkOrder
	require.NoError(t, f.db.Where("mo_id = ? AND seq = 0", mo.ID).First(&cutting).Error)
	var line entity.MaterialAllocation
	require.NoError(t, f.db.Where("order_id = ?", cutting.ID).First(&line).Error)
	assert.Equal(t, entity.AllocStatusFailed, line.Status)

	// Fabric arrives; a fresh pass allocates cleanly.
	testutil.SeedStock(t, f.db, a.fabric, testWarehouse, 500)
	lines, err := f.wo.Reallocate(ctx, cutting.ID, AllocateOptions{WarehouseID: testWarehouse}, "ppic-1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, entity.AllocStatusAllocated, lines[0].Status)

	_, err = f.wo.Start(ctx, cutting.ID, "spv-cut")
	require.NoError(t, err)
}
