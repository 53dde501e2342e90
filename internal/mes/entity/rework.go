package entity

import "time"

// ReworkStatus is the defect rework sub-workflow state.
type ReworkStatus string

const (
	ReworkStatusPendingQC    ReworkStatus = "pending_qc"
	ReworkStatusApproved     ReworkStatus = "approved"
	ReworkStatusInRework     ReworkStatus = "in_rework"
	ReworkStatusVerification ReworkStatus = "verification"
	ReworkStatusClosed       ReworkStatus = "closed"
	ReworkStatusRejected     ReworkStatus = "rejected"
)

var reworkTransitions = map[ReworkStatus][]ReworkStatus{
	ReworkStatusPendingQC:    {ReworkStatusApproved, ReworkStatusRejected},
	ReworkStatusApproved:     {ReworkStatusInRework},
	ReworkStatusInRework:     {ReworkStatusVerification},
	ReworkStatusVerification: {ReworkStatusClosed},
	ReworkStatusClosed:       {},
	ReworkStatusRejected:     {},
}

// CanTransition reports whether from→to is a legal rework move.
func (s ReworkStatus) CanTransition(to ReworkStatus) bool {
	for _, next := range reworkTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Open reports whether the rework still blocks its WO from transferring.
func (s ReworkStatus) Open() bool {
	return s != ReworkStatusClosed && s != ReworkStatusRejected
}

// ReworkRequest branches off a WO whose QC found defects: categorization →
// QC approval → rework execution → re-verification. Verified good pieces feed
// the next WO's input; verified failed pieces are scrapped.
type ReworkRequest struct {
	ID     string `json:"id" gorm:"primaryKey;size:36"`
	WOID   string `json:"wo_id" gorm:"size:36;not null;index"`
	MOID   string `json:"mo_id" gorm:"size:36;index"`

	DefectQty      float64 `json:"defect_qty" gorm:"type:decimal(12,4);not null"`
	DefectCategory string  `json:"defect_category" gorm:"size:50"`

	Status ReworkStatus `json:"status" gorm:"size:20;not null;default:pending_qc;index"`

	VerifiedGoodQty   float64 `json:"verified_good_qty" gorm:"type:decimal(12,4);default:0"`
	VerifiedFailedQty float64 `json:"verified_failed_qty" gorm:"type:decimal(12,4);default:0"`

	QCApprovedBy string     `json:"qc_approved_by" gorm:"size:36"`
	QCApprovedAt *time.Time `json:"qc_approved_at"`
	ClosedAt     *time.Time `json:"closed_at"`

	CreatedBy string    `json:"created_by" gorm:"size:36"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ReworkRequest) TableName() string {
	return "mes_rework_requests"
}
