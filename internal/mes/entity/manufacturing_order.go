package entity

import "time"

// Department is one production stage of the factory routing.
type Department string

const (
	DeptCutting    Department = "CUTTING"
	DeptEmbroidery Department = "EMBROIDERY"
	DeptSewing     Department = "SEWING"
	DeptFinishing  Department = "FINISHING"
	DeptPacking    Department = "PACKING"
)

// RoutingType selects which departments an MO passes through.
type RoutingType string

const (
	RouteFull         RoutingType = "ROUTE_1" // all five departments
	RouteNoEmbroidery RoutingType = "ROUTE_2" // skips embroidery
	RouteCutSewPack   RoutingType = "ROUTE_3" // cutting, sewing, packing
)

// Departments returns the ordered department list for the routing.
func (r RoutingType) Departments() []Department {
	switch r {
	case RouteNoEmbroidery:
		return []Department{DeptCutting, DeptSewing, DeptFinishing, DeptPacking}
	case RouteCutSewPack:
		return []Department{DeptCutting, DeptSewing, DeptPacking}
	default:
		return []Department{DeptCutting, DeptEmbroidery, DeptSewing, DeptFinishing, DeptPacking}
	}
}

// MOStatus is the manufacturing order lifecycle state.
type MOStatus string

const (
	MOStatusDraft      MOStatus = "draft"
	MOStatusPartial    MOStatus = "partial"
	MOStatusReleased   MOStatus = "released"
	MOStatusInProgress MOStatus = "in_progress"
	MOStatusCompleted  MOStatus = "completed"
	MOStatusCancelled  MOStatus = "cancelled"
)

// moTransitions is the exhaustive MO transition table. Anything absent is an
// invalid jump.
var moTransitions = map[MOStatus][]MOStatus{
	MOStatusDraft:      {MOStatusPartial, MOStatusCancelled},
	MOStatusPartial:    {MOStatusReleased, MOStatusCancelled},
	MOStatusReleased:   {MOStatusInProgress, MOStatusCancelled},
	MOStatusInProgress: {MOStatusCompleted, MOStatusCancelled},
	MOStatusCompleted:  {},
	MOStatusCancelled:  {},
}

// CanTransition reports whether from→to is a legal MO move.
func (s MOStatus) CanTransition(to MOStatus) bool {
	for _, next := range moTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status accepts no further transitions.
func (s MOStatus) Terminal() bool {
	return len(moTransitions[s]) == 0
}

// ManufacturingOrder is the intent to produce ProductionQty pieces of a
// finished good for one sales reference. Owned by PPIC; once released it is
// mutated only through the approval pipeline.
type ManufacturingOrder struct {
	ID            string  `json:"id" gorm:"primaryKey;size:36"`
	MOCode        string  `json:"mo_code" gorm:"size:50;not null;uniqueIndex"`
	ProductID     string  `json:"product_id" gorm:"size:36;not null;index"`
	ProductCode   string  `json:"product_code" gorm:"size:64"`
	SalesRef      string  `json:"sales_ref" gorm:"size:64"`
	TargetQty     float64 `json:"target_qty" gorm:"type:decimal(12,4);not null"`
	BufferQty     float64 `json:"buffer_qty" gorm:"type:decimal(12,4);default:0"`
	ProductionQty float64 `json:"production_qty" gorm:"type:decimal(12,4);not null"`

	Week                  string `json:"week" gorm:"size:10"` // delivery week, e.g. 2026-W36
	Destination           string `json:"destination" gorm:"size:100"`
	WeekDestinationLocked bool   `json:"week_destination_locked" gorm:"not null;default:false"`

	RoutingType RoutingType `json:"routing_type" gorm:"size:20;not null;default:ROUTE_1"`
	Status      MOStatus    `json:"status" gorm:"size:20;not null;default:draft;index"`

	PrimaryPOApproved bool `json:"primary_po_approved" gorm:"not null;default:false"`
	LabelPOApproved   bool `json:"label_po_approved" gorm:"not null;default:false"`

	CreatedBy string     `json:"created_by" gorm:"size:36;not null"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at" gorm:"index"`

	Product    *Product    `json:"product,omitempty" gorm:"foreignKey:ProductID"`
	WorkOrders []WorkOrder `json:"work_orders,omitempty" gorm:"foreignKey:MOID"`
}

func (ManufacturingOrder) TableName() string {
	return "mes_manufacturing_orders"
}
