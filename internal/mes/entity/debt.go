package entity

import "time"

// DebtStatus is the material debt lifecycle state.
type DebtStatus string

const (
	DebtStatusPendingApproval DebtStatus = "pending_approval"
	DebtStatusApproved        DebtStatus = "approved"
	DebtStatusSettled         DebtStatus = "settled"
	DebtStatusRejected        DebtStatus = "rejected"
)

var debtTransitions = map[DebtStatus][]DebtStatus{
	DebtStatusPendingApproval: {DebtStatusApproved, DebtStatusRejected},
	DebtStatusApproved:        {DebtStatusSettled},
	DebtStatusSettled:         {},
	DebtStatusRejected:        {},
}

// CanTransition reports whether from→to is a legal debt move.
func (s DebtStatus) CanTransition(to DebtStatus) bool {
	for _, next := range debtTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Blocking reports whether the debt still blocks WO completion: an approval
// that has not been granted, or a granted negative position not yet
// replenished.
func (d MaterialDebt) Blocking() bool {
	switch d.Status {
	case DebtStatusPendingApproval:
		return true
	case DebtStatusApproved:
		return d.OutstandingQty > 0
	default:
		return false
	}
}

// MaterialDebt is an approved, temporary negative-inventory position covering
// an allocation shortfall. It must be settled before the owning WO completes.
type MaterialDebt struct {
	ID           string `json:"id" gorm:"primaryKey;size:36"`
	DebtCode     string `json:"debt_code" gorm:"size:50;not null;uniqueIndex"`
	AllocationID string `json:"allocation_id" gorm:"size:36;not null;index"`
	ProductID    string `json:"product_id" gorm:"size:36;not null;index"`
	ProductCode  string `json:"product_code" gorm:"size:64"`
	WarehouseID  string `json:"warehouse_id" gorm:"size:36;not null"`

	Qty            float64 `json:"qty" gorm:"type:decimal(12,4);not null"`
	OutstandingQty float64 `json:"outstanding_qty" gorm:"type:decimal(12,4);not null"`

	Status     DebtStatus `json:"status" gorm:"size:20;not null;default:pending_approval;index"`
	ApprovedBy string     `json:"approved_by" gorm:"size:36"`
	ApprovedAt *time.Time `json:"approved_at"`
	SettledAt  *time.Time `json:"settled_at"`

	CreatedBy string    `json:"created_by" gorm:"size:36"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (MaterialDebt) TableName() string {
	return "mes_material_debts"
}
