package entity

import "time"

// OrderType tells which kind of order an allocation batch belongs to.
type OrderType string

const (
	OrderTypeMO OrderType = "MO"
	OrderTypeWO OrderType = "WO"
)

// AllocationStatus is the per-line outcome of an allocation pass.
type AllocationStatus string

const (
	AllocStatusPending     AllocationStatus = "pending"
	AllocStatusAllocated   AllocationStatus = "allocated"
	AllocStatusPartial     AllocationStatus = "partially_allocated"
	AllocStatusDebtCreated AllocationStatus = "debt_created"
	AllocStatusFailed      AllocationStatus = "failed"
	AllocStatusCancelled   AllocationStatus = "cancelled"
)

// Active reports whether the line still holds a reservation or debt claim.
func (s AllocationStatus) Active() bool {
	return s != AllocStatusCancelled
}

// MaterialAllocation is one (order, material) line of an allocation batch.
// A batch is persisted all-or-nothing within one explosion pass; outcomes per
// line may differ.
type MaterialAllocation struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	OrderType OrderType `json:"order_type" gorm:"size:4;not null;index:idx_alloc_order"`
	OrderID   string    `json:"order_id" gorm:"size:36;not null;index:idx_alloc_order"`

	ProductID   string `json:"product_id" gorm:"size:36;not null;index"`
	ProductCode string `json:"product_code" gorm:"size:64"`
	WarehouseID string `json:"warehouse_id" gorm:"size:36;not null"`

	QtyNeeded    float64 `json:"qty_needed" gorm:"type:decimal(12,4);not null"`
	QtyFromStock float64 `json:"qty_from_stock" gorm:"type:decimal(12,4);default:0"`
	QtyFromDebt  float64 `json:"qty_from_debt" gorm:"type:decimal(12,4);default:0"`

	Status            AllocationStatus `json:"status" gorm:"size:25;not null;default:pending;index"`
	SourceBOMDetailID string           `json:"source_bom_detail_id" gorm:"size:36"`

	CreatedBy string    `json:"created_by" gorm:"size:36"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Debts []MaterialDebt `json:"debts,omitempty" gorm:"foreignKey:AllocationID"`
}

func (MaterialAllocation) TableName() string {
	return "mes_material_allocations"
}
