package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
)

func seedReworkPair(t *testing.T, db *gorm.DB, defectQty float64) (*entity.WorkOrder, *entity.ReworkRequest) {
	t.Helper()
	now := time.Now()
	wo := &entity.WorkOrder{
		ID:              uuid.New().String(),
		WOCode:          "SPK-CUT-TEST-" + uuid.New().String()[:8],
		MOID:            uuid.New().String(),
		Department:      entity.DeptCutting,
		OutputProductID: uuid.New().String(),
		TargetQty:       100,
		GoodQty:         100 - defectQty,
		DefectQty:       defectQty,
		Status:          entity.WOStatusQCCheck,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, db.Create(wo).Error)

	rw := &entity.ReworkRequest{
		ID:             uuid.New().String(),
		WOID:           wo.ID,
		MOID:           wo.MOID,
		DefectQty:      defectQty,
		DefectCategory: "loose stitching",
		Status:         entity.ReworkStatusPendingQC,
		CreatedBy:      "qc-1",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, db.Create(rw).Error)
	return wo, rw
}

func TestReworkHappyPathCreditsWO(t *testing.T) {
	f := newMESFixture(t)
	ctx := context.Background()
	wo, rw := seedReworkPair(t, f.db, 8)

	_, err := f.rework.ApproveQC(ctx, rw.ID, "qc-1")
	require.NoError(t, err)
	_, err = f.rework.StartRework(ctx, rw.ID, "spv-cut")
	require.NoError(t, err)
	_, err = f.rework.RecordVerification(ctx, rw.ID, 6, 2, "qc-1")
	require.NoError(t, err)

	closed, err := f.rework.Close(ctx, rw.ID, "qc-1")
	require.NoError(t, err)
	assert.Equal(t, entity.ReworkStatusClosed, closed.Status)
	assert.NotNil(t, closed.ClosedAt)

	got, err := f.wo.Get(ctx, wo.ID)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, got.ReworkQty, 1e-9)
}

func TestReworkVerificationMustCoverDefects(t *testing.T) {
	f := newMESFixture(t)
	ctx := context.Background()
	_, rw := seedReworkPair(t, f.db, 8)

	_, err := f.rework.ApproveQC(ctx, rw.ID, "qc-1")
	require.NoError(t, err)
	_, err = f.rework.StartRework(ctx, rw.ID, "spv-cut")
	require.NoError(t, err)

	var validation *ValidationError
	_, err = f.rework.RecordVerification(ctx, rw.ID, 5, 2, "qc-1")
	require.ErrorAs(t, err, &validation)
	_, err = f.rework.RecordVerification(ctx, rw.ID, -1, 9, "qc-1")
	require.ErrorAs(t, err, &validation)

	// A failed verification attempt leaves the request where it was.
	got, err := f.rework.Get(ctx, rw.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ReworkStatusInRework, got.Status)
}

func TestReworkRejectScrapsAllDefects(t *testing.T) {
	f := newMESFixture(t)
	ctx := context.Background()
	wo, rw := seedReworkPair(t, f.db, 8)

	rejected, err := f.rework.RejectQC(ctx, rw.ID, "beyond repair", "qc-1")
	require.NoError(t, err)
	assert.Equal(t, entity.ReworkStatusRejected, rejected.Status)
	assert.InDelta(t, 8.0, rejected.VerifiedFailedQty, 1e-9)
	assert.NotNil(t, rejected.ClosedAt)
	assert.False(t, rejected.Status.Open())

	// Nothing was credited back to the work order.
	got, err := f.wo.Get(ctx, wo.ID)
	require.NoError(t, err)
	assert.Zero(t, got.ReworkQty)

	// Terminal: no late approval.
	var invalid *InvalidStateTransitionError
	_, err = f.rework.ApproveQC(ctx, rw.ID, "qc-1")
	require.ErrorAs(t, err, &invalid)
}

func TestReworkCannotSkipApproval(t *testing.T) {
	f := newMESFixture(t)
	ctx := context.Background()
	_, rw := seedReworkPair(t, f.db, 8)

	var invalid *InvalidStateTransitionError
	_, err := f.rework.StartRework(ctx, rw.ID, "spv-cut")
	require.ErrorAs(t, err, &invalid)
	_, err = f.rework.Close(ctx, rw.ID, "qc-1")
	require.ErrorAs(t, err, &invalid)
}
