package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
	"github.com/santz1994/ERP-sub002/internal/mes/repository"
	"github.com/santz1994/ERP-sub002/internal/mes/testutil"
)

const testWarehouse = "wh-main"

func newAllocationFixture(t *testing.T) (*gorm.DB, *AllocationService, *DebtService) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	seq := NewSequenceService(nil)
	debts := NewDebtService(db, repository.NewDebtRepository(db), seq, logger)
	alloc := NewAllocationService(db, repository.NewAllocationRepository(db), debts, logger)
	return db, alloc, debts
}

func seedMO(t *testing.T, db *gorm.DB, status entity.MOStatus) *entity.ManufacturingOrder {
	t.Helper()
	mo := &entity.ManufacturingOrder{
		ID:            uuid.New().String(),
		MOCode:        "MO-TEST-" + uuid.New().String()[:8],
		ProductID:     uuid.New().String(),
		TargetQty:     100,
		ProductionQty: 100,
		RoutingType:   entity.RouteCutSewPack,
		Status:        status,
		CreatedBy:     "tester",
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	require.NoError(t, db.Create(mo).Error)
	return mo
}

func requirementFor(p *entity.Product, qty float64) MaterialRequirement {
	return MaterialRequirement{
		ProductID:   p.ID,
		ProductCode: p.Code,
		Kind:        p.Kind,
		QtyRequired: qty,
		UOM:         p.UOM,
	}
}

func TestAllocateFullStock(t *testing.T) {
	db, alloc, _ := newAllocationFixture(t)
	ctx := context.Background()

	fabric := testutil.SeedProduct(t, db, "RM-FABRIC", entity.KindRawMaterial)
	testutil.SeedStock(t, db, fabric, testWarehouse, 100)
	mo := seedMO(t, db, entity.MOStatusPartial)

	lines, err := alloc.Allocate(ctx, entity.OrderTypeMO, mo.ID,
		[]MaterialRequirement{requirementFor(fabric, 60)},
		AllocateOptions{WarehouseID: testWarehouse}, "tester")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, entity.AllocStatusAllocated, lines[0].Status)
	assert.InDelta(t, 60.0, lines[0].QtyFromStock, 1e-9)
	assert.Zero(t, lines[0].QtyFromDebt)

	var item entity.InventoryItem
	require.NoError(t, db.Where("product_id = ?", fabric.ID).First(&item).Error)
	assert.InDelta(t, 60.0, item.ReservedQty, 1e-9)
	assert.InDelta(t, 40.0, item.AvailableQty(), 1e-9)

	var mv entity.InventoryTransaction
	require.NoError(t, db.Where("product_id = ? AND tx_type = ?", fabric.ID, entity.TxTypeReserve).First(&mv).Error)
	assert.InDelta(t, 60.0, mv.Quantity, 1e-9)
}

func TestAllocatePartialCreatesDebt(t *testing.T) {
	db, alloc, _ := newAllocationFixture(t)
	ctx := context.Background()

	fabric := testutil.SeedProduct(t, db, "RM-FABRIC", entity.KindRawMaterial)
	testutil.SeedStock(t, db, fabric, testWarehouse, 150)
	mo := seedMO(t, db, entity.MOStatusPartial)

	lines, err := alloc.Allocate(ctx, entity.OrderTypeMO, mo.ID,
		[]MaterialRequirement{requirementFor(fabric, 200)},
		AllocateOptions{WarehouseID: testWarehouse}, "tester")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, entity.AllocStatusPartial, lines[0].Status)
	assert.InDelta(t, 150.0, lines[0].QtyFromStock, 1e-9)
	assert.InDelta(t, 50.0, lines[0].QtyFromDebt, 1e-9)

	var debt entity.MaterialDebt
	require.NoError(t, db.Where("allocation_id = ?", lines[0].ID).First(&debt).Error)
	assert.Equal(t, entity.DebtStatusPendingApproval, debt.Status)
	assert.InDelta(t, 50.0, debt.Qty, 1e-9)
	assert.InDelta(t, 50.0, debt.OutstandingQty, 1e-9)
}

func TestAllocateZeroStock(t *testing.T) {
	db, alloc, _ := newAllocationFixture(t)
	ctx := context.Background()

	fabric := testutil.SeedProduct(t, db, "RM-FABRIC", entity.KindRawMaterial)
	mo := seedMO(t, db, entity.MOStatusPartial)

	// Without the full-debt escape hatch the line fails.
	lines, err := alloc.Allocate(ctx, entity.OrderTypeMO, mo.ID,
		[]MaterialRequirement{requirementFor(fabric, 30)},
		AllocateOptions{WarehouseID: testWarehouse}, "tester")
	require.NoError(t, err)
	assert.Equal(t, entity.AllocStatusFailed, lines[0].Status)

	var debtCount int64
	db.Model(&entity.MaterialDebt{}).Count(&debtCount)
	assert.Zero(t, debtCount)

	// A second pass with AllowFullDebt after reversing the failed batch.
	require.NoError(t, alloc.ReverseAllocations(ctx, entity.OrderTypeMO, mo.ID, "tester"))
	lines, err = alloc.Allocate(ctx, entity.OrderTypeMO, mo.ID,
		[]MaterialRequirement{requirementFor(fabric, 30)},
		AllocateOptions{WarehouseID: testWarehouse, AllowFullDebt: true}, "tester")
	require.NoError(t, err)
	assert.Equal(t, entity.AllocStatusDebtCreated, lines[0].Status)
	assert.InDelta(t, 30.0, lines[0].QtyFromDebt, 1e-9)
}

func TestAllocateTwiceRejected(t *testing.T) {
	db, alloc, _ := newAllocationFixture(t)
	ctx := context.Background()

	fabric := testutil.SeedProduct(t, db, "RM-FABRIC", entity.KindRawMaterial)
	testutil.SeedStock(t, db, fabric, testWarehouse, 100)
	mo := seedMO(t, db, entity.MOStatusPartial)

	reqs := []MaterialRequirement{requirementFor(fabric, 10)}
	opts := AllocateOptions{WarehouseID: testWarehouse}
	_, err := alloc.Allocate(ctx, entity.OrderTypeMO, mo.ID, reqs, opts, "tester")
	require.NoError(t, err)

	_, err = alloc.Allocate(ctx, entity.OrderTypeMO, mo.ID, reqs, opts, "tester")
	var already *AlreadyAllocatedError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, mo.ID, already.OrderID)
}

func TestReverseReleasesReservationsAndRejectsDebts(t *testing.T) {
	db, alloc, _ := newAllocationFixture(t)
	ctx := context.Background()

	fabric := testutil.SeedProduct(t, db, "RM-FABRIC", entity.KindRawMaterial)
	testutil.SeedStock(t, db, fabric, testWarehouse, 50)
	mo := seedMO(t, db, entity.MOStatusPartial)

	lines, err := alloc.Allocate(ctx, entity.OrderTypeMO, mo.ID,
		[]MaterialRequirement{requirementFor(fabric, 80)},
		AllocateOptions{WarehouseID: testWarehouse}, "tester")
	require.NoError(t, err)
	require.Equal(t, entity.AllocStatusPartial, lines[0].Status)

	require.NoError(t, alloc.ReverseAllocations(ctx, entity.OrderTypeMO, mo.ID, "tester"))

	var item entity.InventoryItem
	require.NoError(t, db.Where("product_id = ?", fabric.ID).First(&item).Error)
	assert.Zero(t, item.ReservedQty)
	assert.InDelta(t, 50.0, item.AvailableQty(), 1e-9)

	var line entity.MaterialAllocation
	require.NoError(t, db.Where("id = ?", lines[0].ID).First(&line).Error)
	assert.Equal(t, entity.AllocStatusCancelled, line.Status)

	var debt entity.MaterialDebt
	require.NoError(t, db.Where("allocation_id = ?", lines[0].ID).First(&debt).Error)
	assert.Equal(t, entity.DebtStatusRejected, debt.Status)

	// The order is allocatable again.
	_, err = alloc.Allocate(ctx, entity.OrderTypeMO, mo.ID,
		[]MaterialRequirement{requirementFor(fabric, 40)},
		AllocateOptions{WarehouseID: testWarehouse}, "tester")
	require.NoError(t, err)
}

func TestAllocateRejectsBadInput(t *testing.T) {
	db, alloc, _ := newAllocationFixture(t)
	ctx := context.Background()

	fabric := testutil.SeedProduct(t, db, "RM-FABRIC", entity.KindRawMaterial)
	mo := seedMO(t, db, entity.MOStatusPartial)

	var validation *ValidationError

	_, err := alloc.Allocate(ctx, entity.OrderTypeMO, mo.ID, nil,
		AllocateOptions{WarehouseID: testWarehouse}, "tester")
	require.ErrorAs(t, err, &validation)

	_, err = alloc.Allocate(ctx, entity.OrderTypeMO, mo.ID,
		[]MaterialRequirement{requirementFor(fabric, 10)},
		AllocateOptions{}, "tester")
	require.ErrorAs(t, err, &validation)

	_, err = alloc.Allocate(ctx, entity.OrderTypeMO, mo.ID,
		[]MaterialRequirement{requirementFor(fabric, -5)},
		AllocateOptions{WarehouseID: testWarehouse}, "tester")
	require.ErrorAs(t, err, &validation)
}

// Two orders racing for the same stock must never reserve more than exists.
func TestConcurrentAllocationNeverOverReserves(t *testing.T) {
	db, alloc, _ := newAllocationFixture(t)
	ctx := context.Background()

	fabric := testutil.SeedProduct(t, db, "RM-FABRIC", entity.KindRawMaterial)
	testutil.SeedStock(t, db, fabric, testWarehouse, 100)
	moA := seedMO(t, db, entity.MOStatusPartial)
	moB := seedMO(t, db, entity.MOStatusPartial)

	var wg sync.WaitGroup
	run := func(moID string) {
		defer wg.Done()
		_, err := alloc.Allocate(ctx, entity.OrderTypeMO, moID,
			[]MaterialRequirement{requirementFor(fabric, 80)},
			AllocateOptions{WarehouseID: testWarehouse}, "tester")
		assert.NoError(t, err)
	}
	wg.Add(2)
	go run(moA.ID)
	go run(moB.ID)
	wg.Wait()

	var item entity.InventoryItem
	require.NoError(t, db.Where("product_id = ?", fabric.ID).First(&item).Error)
	assert.LessOrEqual(t, item.ReservedQty, 100.0)
	assert.GreaterOrEqual(t, item.AvailableQty(), 0.0)

	// Between them the two batches reserved exactly the stock that existed.
	var lines []entity.MaterialAllocation
	require.NoError(t, db.Find(&lines).Error)
	var fromStock, fromDebt float64
	for _, l := range lines {
		fromStock += l.QtyFromStock
		fromDebt += l.QtyFromDebt
	}
	assert.InDelta(t, 100.0, fromStock, 1e-9)
	assert.InDelta(t, 60.0, fromDebt, 1e-9)
}
