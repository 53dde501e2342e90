package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
	"github.com/santz1994/ERP-sub002/internal/mes/testutil"
)

func newInventoryFixture(t *testing.T) (*mesFixture, *InventoryService) {
	t.Helper()
	f := newMESFixture(t)
	inv := NewInventoryService(f.db, f.repos.Inventory, f.repos.Product, f.approval, zap.NewNop())
	f.approval.RegisterApplier(entity.ApprovalEntityStock, inv.ApplyAdjustment)
	return f, inv
}

func TestReceiveCreatesPositionAndJournal(t *testing.T) {
	f, inv := newInventoryFixture(t)
	ctx := context.Background()

	fabric := testutil.SeedProduct(t, f.db, "RM-FABRIC", entity.KindRawMaterial)

	item, err := inv.Receive(ctx, fabric.ID, testWarehouse, 120, "GRN-001", "wh-1")
	require.NoError(t, err)
	assert.InDelta(t, 120.0, item.OnHandQty, 1e-9)

	// Receiving again accumulates on the same row.
	item, err = inv.Receive(ctx, fabric.ID, testWarehouse, 30, "GRN-002", "wh-1")
	require.NoError(t, err)
	assert.InDelta(t, 150.0, item.OnHandQty, 1e-9)

	var count int64
	f.db.Model(&entity.InventoryTransaction{}).
		Where("product_id = ? AND tx_type = ?", fabric.ID, entity.TxTypeReceipt).
		Count(&count)
	assert.Equal(t, int64(2), count)

	var validation *ValidationError
	_, err = inv.Receive(ctx, fabric.ID, testWarehouse, 0, "GRN-003", "wh-1")
	require.ErrorAs(t, err, &validation)
}

func TestAdjustmentAppliesAfterApproval(t *testing.T) {
	f, inv := newInventoryFixture(t)
	ctx := context.Background()

	fabric := testutil.SeedProduct(t, f.db, "RM-FABRIC", entity.KindRawMaterial)
	testutil.SeedStock(t, f.db, fabric, testWarehouse, 100)

	req, err := inv.SubmitAdjustment(ctx, entity.AdjustStock{
		ProductID:   fabric.ID,
		WarehouseID: testWarehouse,
		DeltaQty:    -40,
		Reason:      "cycle count found damage",
	}, []entity.ApprovalRole{entity.RoleManager}, "wh-1")
	require.NoError(t, err)

	// Nothing moves until the chain approves.
	pos, err := inv.Position(ctx, fabric.ID, testWarehouse)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, pos.OnHandQty, 1e-9)

	final, err := f.approval.Act(ctx, req.ID, entity.RoleManager, "mgr-1", DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, entity.ApprovalStatusApproved, final.Status)

	pos, err = inv.Position(ctx, fabric.ID, testWarehouse)
	require.NoError(t, err)
	assert.InDelta(t, 60.0, pos.OnHandQty, 1e-9)

	var mv entity.InventoryTransaction
	require.NoError(t, f.db.Where("tx_type = ? AND reference_id = ?", entity.TxTypeAdjust, req.ID).First(&mv).Error)
	assert.InDelta(t, -40.0, mv.Quantity, 1e-9)
}

// A write-down past available stock fails the request and leaves the ledger
// untouched; shortfalls belong to material debt, not negative adjustments.
func TestAdjustmentCannotGoBelowAvailable(t *testing.T) {
	f, inv := newInventoryFixture(t)
	ctx := context.Background()

	fabric := testutil.SeedProduct(t, f.db, "RM-FABRIC", entity.KindRawMaterial)
	testutil.SeedStock(t, f.db, fabric, testWarehouse, 25)

	req, err := inv.SubmitAdjustment(ctx, entity.AdjustStock{
		ProductID:   fabric.ID,
		WarehouseID: testWarehouse,
		DeltaQty:    -30,
		Reason:      "bad count",
	}, []entity.ApprovalRole{entity.RoleManager}, "wh-1")
	require.NoError(t, err)

	final, err := f.approval.Act(ctx, req.ID, entity.RoleManager, "mgr-1", DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, entity.ApprovalStatusFailed, final.Status)
	assert.Contains(t, final.ResultComment, "insufficient stock")

	pos, err := inv.Position(ctx, fabric.ID, testWarehouse)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, pos.OnHandQty, 1e-9)
}

func TestSubmitAdjustmentValidation(t *testing.T) {
	f, inv := newInventoryFixture(t)
	ctx := context.Background()
	fabric := testutil.SeedProduct(t, f.db, "RM-FABRIC", entity.KindRawMaterial)

	var validation *ValidationError
	_, err := inv.SubmitAdjustment(ctx, entity.AdjustStock{
		ProductID: fabric.ID, WarehouseID: testWarehouse, DeltaQty: 0,
	}, []entity.ApprovalRole{entity.RoleManager}, "wh-1")
	require.ErrorAs(t, err, &validation)

	_, err = inv.SubmitAdjustment(ctx, entity.AdjustStock{
		ProductID: fabric.ID, DeltaQty: 5,
	}, []entity.ApprovalRole{entity.RoleManager}, "wh-1")
	require.ErrorAs(t, err, &validation)
}
