package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
	"github.com/santz1994/ERP-sub002/internal/mes/repository"
)

// ReworkService runs the defect sub-workflow branched off a WO at QC time.
// An open rework blocks its WO from ready_transfer until verification closes
// it; verified good pieces rejoin the WO's transferable output.
type ReworkService struct {
	db         *gorm.DB
	reworkRepo *repository.ReworkRepository
	logger     *zap.Logger
}

func NewReworkService(db *gorm.DB, reworkRepo *repository.ReworkRepository, logger *zap.Logger) *ReworkService {
	return &ReworkService{db: db, reworkRepo: reworkRepo, logger: logger}
}

// createInTx opens a rework request for a WO's reported defects, inside the
// caller's transaction.
func (s *ReworkService) createInTx(tx *gorm.DB, wo *entity.WorkOrder, defectQty float64, category, actorID string) (*entity.ReworkRequest, error) {
	if defectQty <= 0 {
		return nil, &ValidationError{Field: "defect_qty", Reason: "must be positive"}
	}

	now := time.Now()
	rw := &entity.ReworkRequest{
		ID:             uuid.New().String(),
		WOID:           wo.ID,
		MOID:           wo.MOID,
		DefectQty:      defectQty,
		DefectCategory: category,
		Status:         entity.ReworkStatusPendingQC,
		CreatedBy:      actorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.Create(rw).Error; err != nil {
		return nil, fmt.Errorf("persist rework request: %w", err)
	}
	if err := repository.AppendAudit(tx, &entity.AuditLog{
		EntityType: "rework_request",
		EntityID:   rw.ID,
		Action:     "create",
		ToStatus:   string(rw.Status),
		After:      entity.JSONB{"wo_code": wo.WOCode, "defect_qty": defectQty, "category": category},
		ActorID:    actorID,
	}); err != nil {
		return nil, err
	}

	s.logger.Info("rework request opened",
		zap.String("wo_code", wo.WOCode),
		zap.Float64("defect_qty", defectQty))
	return rw, nil
}

// ApproveQC accepts the defect categorization and clears the request for
// rework execution.
func (s *ReworkService) ApproveQC(ctx context.Context, reworkID, actorID string) (*entity.ReworkRequest, error) {
	return s.transition(ctx, reworkID, entity.ReworkStatusApproved, "qc_approve", actorID, func(rw *entity.ReworkRequest) error {
		now := time.Now()
		rw.QCApprovedBy = actorID
		rw.QCApprovedAt = &now
		return nil
	})
}

// RejectQC scraps the defects without rework; the request stops blocking the
// WO and the defective pieces never rejoin its output.
func (s *ReworkService) RejectQC(ctx context.Context, reworkID, notes, actorID string) (*entity.ReworkRequest, error) {
	return s.transition(ctx, reworkID, entity.ReworkStatusRejected, "qc_reject", actorID, func(rw *entity.ReworkRequest) error {
		now := time.Now()
		rw.VerifiedFailedQty = rw.DefectQty
		rw.ClosedAt = &now
		return nil
	})
}

// StartRework marks the approved request as being executed on the floor.
func (s *ReworkService) StartRework(ctx context.Context, reworkID, actorID string) (*entity.ReworkRequest, error) {
	return s.transition(ctx, reworkID, entity.ReworkStatusInRework, "start", actorID, nil)
}

// RecordVerification stores the re-inspection split and moves the request to
// verification. Good plus failed must cover the full defect quantity.
func (s *ReworkService) RecordVerification(ctx context.Context, reworkID string, goodQty, failedQty float64, actorID string) (*entity.ReworkRequest, error) {
	if goodQty < 0 || failedQty < 0 {
		return nil, &ValidationError{Field: "quantity", Reason: "must not be negative"}
	}
	return s.transition(ctx, reworkID, entity.ReworkStatusVerification, "verify", actorID, func(rw *entity.ReworkRequest) error {
		if goodQty+failedQty != rw.DefectQty {
			return &ValidationError{
				Field:  "quantity",
				Reason: fmt.Sprintf("verified %.4f good + %.4f failed must equal %.4f defects", goodQty, failedQty, rw.DefectQty),
			}
		}
		rw.VerifiedGoodQty = goodQty
		rw.VerifiedFailedQty = failedQty
		return nil
	})
}

// Close finalizes a verified request: the verified good quantity is credited
// to the WO's rework output so completion transfers it with the good pieces.
// Failed pieces are scrapped on the spot and never enter stock.
func (s *ReworkService) Close(ctx context.Context, reworkID, actorID string) (*entity.ReworkRequest, error) {
	var out *entity.ReworkRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rw, err := repository.LockRework(tx, reworkID)
		if err != nil {
			return fmt.Errorf("rework request %s: %w", reworkID, err)
		}
		if !rw.Status.CanTransition(entity.ReworkStatusClosed) {
			return &InvalidStateTransitionError{
				EntityType: "rework_request", EntityID: reworkID,
				From: string(rw.Status), To: string(entity.ReworkStatusClosed),
			}
		}

		wo, err := repository.LockWO(tx, rw.WOID)
		if err != nil {
			return fmt.Errorf("work order %s: %w", rw.WOID, err)
		}
		if rw.VerifiedGoodQty > 0 {
			wo.ReworkQty += rw.VerifiedGoodQty
			wo.UpdatedAt = time.Now()
			if err := tx.Save(wo).Error; err != nil {
				return fmt.Errorf("credit rework output: %w", err)
			}
		}

		now := time.Now()
		from := rw.Status
		rw.Status = entity.ReworkStatusClosed
		rw.ClosedAt = &now
		rw.UpdatedAt = now
		if err := tx.Save(rw).Error; err != nil {
			return fmt.Errorf("close rework: %w", err)
		}
		out = rw
		return repository.AppendAudit(tx, &entity.AuditLog{
			EntityType: "rework_request",
			EntityID:   rw.ID,
			Action:     "close",
			FromStatus: string(from),
			ToStatus:   string(rw.Status),
			After:      entity.JSONB{"verified_good": rw.VerifiedGoodQty, "verified_failed": rw.VerifiedFailedQty},
			ActorID:    actorID,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// transition applies one guarded status move with an optional mutation hook.
func (s *ReworkService) transition(ctx context.Context, reworkID string, to entity.ReworkStatus, action, actorID string, mutate func(*entity.ReworkRequest) error) (*entity.ReworkRequest, error) {
	var out *entity.ReworkRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rw, err := repository.LockRework(tx, reworkID)
		if err != nil {
			return fmt.Errorf("rework request %s: %w", reworkID, err)
		}
		if !rw.Status.CanTransition(to) {
			return &InvalidStateTransitionError{
				EntityType: "rework_request", EntityID: reworkID,
				From: string(rw.Status), To: string(to),
			}
		}
		if mutate != nil {
			if err := mutate(rw); err != nil {
				return err
			}
		}

		from := rw.Status
		rw.Status = to
		rw.UpdatedAt = time.Now()
		if err := tx.Save(rw).Error; err != nil {
			return fmt.Errorf("%s rework: %w", action, err)
		}
		out = rw
		return repository.AppendAudit(tx, &entity.AuditLog{
			EntityType: "rework_request",
			EntityID:   rw.ID,
			Action:     action,
			FromStatus: string(from),
			ToStatus:   string(rw.Status),
			ActorID:    actorID,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get exposes one rework request.
func (s *ReworkService) Get(ctx context.Context, reworkID string) (*entity.ReworkRequest, error) {
	return s.reworkRepo.FindByID(ctx, reworkID)
}

// ListByWO exposes a WO's rework history.
func (s *ReworkService) ListByWO(ctx context.Context, woID string) ([]entity.ReworkRequest, error) {
	return s.reworkRepo.ListByWO(ctx, woID)
}
