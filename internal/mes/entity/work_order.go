package entity

import "time"

// WOStatus is the work order lifecycle state.
type WOStatus string

const (
	WOStatusPending          WOStatus = "pending"
	WOStatusInProgress       WOStatus = "in_progress"
	WOStatusQCCheck          WOStatus = "qc_check"
	WOStatusShortageHandling WOStatus = "shortage_handling"
	WOStatusReadyTransfer    WOStatus = "ready_transfer"
	WOStatusCompleted        WOStatus = "completed"
	WOStatusCancelled        WOStatus = "cancelled"
)

var woTransitions = map[WOStatus][]WOStatus{
	WOStatusPending:          {WOStatusInProgress, WOStatusCancelled},
	WOStatusInProgress:       {WOStatusQCCheck, WOStatusCancelled},
	WOStatusQCCheck:          {WOStatusShortageHandling, WOStatusReadyTransfer, WOStatusCancelled},
	WOStatusShortageHandling: {WOStatusQCCheck, WOStatusReadyTransfer, WOStatusCancelled},
	WOStatusReadyTransfer:    {WOStatusCompleted, WOStatusCancelled},
	WOStatusCompleted:        {},
	WOStatusCancelled:        {},
}

// CanTransition reports whether from→to is a legal WO move.
func (s WOStatus) CanTransition(to WOStatus) bool {
	for _, next := range woTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status accepts no further transitions.
func (s WOStatus) Terminal() bool {
	return len(woTransitions[s]) == 0
}

// WorkOrder (SPK) is one department's execution step within an MO. Input is
// the previous department's WIP output; output feeds the next department or,
// for packing, finished goods stock.
type WorkOrder struct {
	ID         string     `json:"id" gorm:"primaryKey;size:36"`
	WOCode     string     `json:"wo_code" gorm:"size:50;not null;uniqueIndex"`
	MOID       string     `json:"mo_id" gorm:"size:36;not null;index"`
	Department Department `json:"department" gorm:"size:20;not null"`
	Seq        int        `json:"seq" gorm:"not null;default:0"`

	InputProductID  string `json:"input_product_id" gorm:"size:36"` // empty for the first department
	OutputProductID string `json:"output_product_id" gorm:"size:36;not null"`

	TargetQty float64 `json:"target_qty" gorm:"type:decimal(12,4);not null"`
	InputQty  float64 `json:"input_qty" gorm:"type:decimal(12,4);default:0"`
	GoodQty   float64 `json:"good_qty" gorm:"type:decimal(12,4);default:0"`
	DefectQty float64 `json:"defect_qty" gorm:"type:decimal(12,4);default:0"`
	ReworkQty float64 `json:"rework_qty" gorm:"type:decimal(12,4);default:0"` // verified good out of rework

	// Packing only.
	CartonsPacked int `json:"cartons_packed" gorm:"default:0"`
	PalletsFormed int `json:"pallets_formed" gorm:"default:0"`

	Status      WOStatus   `json:"status" gorm:"size:20;not null;default:pending;index"`
	ActualStart *time.Time `json:"actual_start"`
	ActualEnd   *time.Time `json:"actual_end"`

	CreatedBy string    `json:"created_by" gorm:"size:36"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	MO            *ManufacturingOrder `json:"mo,omitempty" gorm:"foreignKey:MOID"`
	OutputProduct *Product            `json:"output_product,omitempty" gorm:"foreignKey:OutputProductID"`
}

func (WorkOrder) TableName() string {
	return "mes_work_orders"
}
