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

// Decision is an approver's verdict on one step.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ApplyFunc applies an approved request's changes to its target entity,
// inside the same transaction that finalizes the request. It runs exactly
// once, after the last chain step approves.
type ApplyFunc func(ctx context.Context, tx *gorm.DB, req *entity.ApprovalRequest) error

// ApprovalService is the generic multi-step approval engine gating MO edits,
// material debts and stock adjustments. Proposing a change and applying it
// are decoupled: the applier runs only when the whole chain approves.
type ApprovalService struct {
	db           *gorm.DB
	approvalRepo *repository.ApprovalRepository
	appliers     map[string]ApplyFunc
	logger       *zap.Logger
}

func NewApprovalService(db *gorm.DB, approvalRepo *repository.ApprovalRepository, logger *zap.Logger) *ApprovalService {
	return &ApprovalService{
		db:           db,
		approvalRepo: approvalRepo,
		appliers:     make(map[string]ApplyFunc),
		logger:       logger,
	}
}

// RegisterApplier binds the apply callback for one entity type. Wiring-time
// only; not safe for concurrent use with Act.
func (s *ApprovalService) RegisterApplier(entityType string, fn ApplyFunc) {
	s.appliers[entityType] = fn
}

// Submit opens a request with its chain steps materialized; step 0 is active.
func (s *ApprovalService) Submit(ctx context.Context, entityType, entityID string, changes []entity.ChangeCommand, reason string, chain []entity.ApprovalRole, requestedBy string) (*entity.ApprovalRequest, error) {
	if len(chain) == 0 {
		return nil, &ValidationError{Field: "chain", Reason: "at least one approver role required"}
	}
	if entityType == "" || entityID == "" {
		return nil, &ValidationError{Field: "entity", Reason: "entity type and id required"}
	}

	now := time.Now()
	req := &entity.ApprovalRequest{
		ID:          uuid.New().String(),
		EntityType:  entityType,
		EntityID:    entityID,
		Changes:     changes,
		Reason:      reason,
		Chain:       chain,
		CurrentStep: 0,
		Status:      entity.ApprovalStatusPending,
		RequestedBy: requestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for i, role := range chain {
		req.Steps = append(req.Steps, entity.ApprovalStep{
			ID:        uuid.New().String(),
			RequestID: req.ID,
			StepIndex: i,
			Role:      role,
			Status:    entity.ApprovalStatusPending,
			CreatedAt: now,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return fmt.Errorf("persist approval request: %w", err)
		}
		return repository.AppendAudit(tx, &entity.AuditLog{
			EntityType: "approval_request",
			EntityID:   req.ID,
			Action:     "submit",
			ToStatus:   string(req.Status),
			After:      entity.JSONB{"entity_type": entityType, "entity_id": entityID, "chain": chain},
			ActorID:    requestedBy,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("approval request submitted",
		zap.String("request_id", req.ID),
		zap.String("entity_type", entityType),
		zap.String("entity_id", entityID))
	return req, nil
}

// Act records one approver's decision. Approve advances the step pointer;
// approving the last step invokes the registered applier inside the same
// transaction. Reject anywhere is terminal and the applier never runs.
func (s *ApprovalService) Act(ctx context.Context, requestID string, role entity.ApprovalRole, actorID string, decision Decision, notes string) (*entity.ApprovalRequest, error) {
	if decision != DecisionApprove && decision != DecisionReject {
		return nil, &ValidationError{Field: "decision", Reason: "must be approve or reject"}
	}

	var out *entity.ApprovalRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := repository.LockApprovalRequest(tx, requestID)
		if err != nil {
			return fmt.Errorf("approval request %s: %w", requestID, err)
		}
		if req.Status.Terminal() {
			return &ApprovalChainViolationError{
				RequestID: requestID, Role: role,
				Reason: fmt.Sprintf("request is already %s", req.Status),
			}
		}

		var step entity.ApprovalStep
		if err := tx.Where("request_id = ? AND step_index = ?", requestID, req.CurrentStep).
			First(&step).Error; err != nil {
			return fmt.Errorf("load step %d: %w", req.CurrentStep, err)
		}
		if step.Role != role {
			return &ApprovalChainViolationError{
				RequestID: requestID, Role: role,
				Reason: fmt.Sprintf("step %d belongs to %s", req.CurrentStep, step.Role),
			}
		}

		now := time.Now()
		step.ActorID = actorID
		step.Notes = notes
		step.DecidedAt = &now

		if decision == DecisionReject {
			step.Status = entity.ApprovalStatusRejected
			if err := tx.Save(&step).Error; err != nil {
				return fmt.Errorf("record step decision: %w", err)
			}
			req.Status = entity.ApprovalStatusRejected
			req.ResultComment = notes
			req.UpdatedAt = now
			if err := tx.Save(req).Error; err != nil {
				return fmt.Errorf("finalize rejection: %w", err)
			}
			out = req
			return repository.AppendAudit(tx, &entity.AuditLog{
				EntityType: "approval_request",
				EntityID:   req.ID,
				Action:     "reject",
				FromStatus: string(entity.ApprovalStatusPending),
				ToStatus:   string(req.Status),
				After:      entity.JSONB{"step": req.CurrentStep, "role": role, "notes": notes},
				ActorID:    actorID,
			})
		}

		step.Status = entity.ApprovalStatusApproved
		if err := tx.Save(&step).Error; err != nil {
			return fmt.Errorf("record step decision: %w", err)
		}

		if req.CurrentStep < len(req.Chain)-1 {
			req.CurrentStep++
			req.UpdatedAt = now
			if err := tx.Save(req).Error; err != nil {
				return fmt.Errorf("advance chain: %w", err)
			}
			out = req
			return repository.AppendAudit(tx, &entity.AuditLog{
				EntityType: "approval_request",
				EntityID:   req.ID,
				Action:     "approve_step",
				After:      entity.JSONB{"step": req.CurrentStep - 1, "role": role},
				ActorID:    actorID,
			})
		}

		// Last step approved: apply the changes. An applier failure rolls its
		// own writes back (savepoint) and the request lands in failed, never
		// approved-but-unapplied.
		finalStatus := entity.ApprovalStatusApproved
		resultComment := notes
		if applier, ok := s.appliers[req.EntityType]; ok {
			if applyErr := tx.Transaction(func(inner *gorm.DB) error {
				return applier(ctx, inner, req)
			}); applyErr != nil {
				finalStatus = entity.ApprovalStatusFailed
				resultComment = applyErr.Error()
				s.logger.Error("approval apply failed",
					zap.String("request_id", req.ID),
					zap.String("entity_type", req.EntityType),
					zap.Error(applyErr))
			}
		}

		req.Status = finalStatus
		req.ResultComment = resultComment
		req.UpdatedAt = now
		if err := tx.Save(req).Error; err != nil {
			return fmt.Errorf("finalize request: %w", err)
		}
		out = req
		return repository.AppendAudit(tx, &entity.AuditLog{
			EntityType: "approval_request",
			EntityID:   req.ID,
			Action:     "finalize",
			FromStatus: string(entity.ApprovalStatusPending),
			ToStatus:   string(req.Status),
			After:      entity.JSONB{"role": role, "comment": resultComment},
			ActorID:    actorID,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Cancel withdraws a pending request; only the requester may cancel.
func (s *ApprovalService) Cancel(ctx context.Context, requestID, actorID string) (*entity.ApprovalRequest, error) {
	var out *entity.ApprovalRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := repository.LockApprovalRequest(tx, requestID)
		if err != nil {
			return fmt.Errorf("approval request %s: %w", requestID, err)
		}
		if req.Status.Terminal() {
			return &ApprovalChainViolationError{
				RequestID: requestID,
				Reason:    fmt.Sprintf("request is already %s", req.Status),
			}
		}
		if req.RequestedBy != actorID {
			return &ApprovalChainViolationError{
				RequestID: requestID,
				Reason:    "only the requester may cancel",
			}
		}

		req.Status = entity.ApprovalStatusCancelled
		req.UpdatedAt = time.Now()
		if err := tx.Save(req).Error; err != nil {
			return fmt.Errorf("cancel request: %w", err)
		}
		out = req
		return repository.AppendAudit(tx, &entity.AuditLog{
			EntityType: "approval_request",
			EntityID:   req.ID,
			Action:     "cancel",
			ToStatus:   string(req.Status),
			ActorID:    actorID,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get exposes one request with its steps.
func (s *ApprovalService) Get(ctx context.Context, requestID string) (*entity.ApprovalRequest, error) {
	return s.approvalRepo.FindByID(ctx, requestID)
}

// List exposes filtered requests.
func (s *ApprovalService) List(ctx context.Context, params repository.ApprovalListParams) ([]entity.ApprovalRequest, int64, error) {
	return s.approvalRepo.List(ctx, params)
}
