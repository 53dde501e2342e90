package entity

import "time"

// InventoryItem is the on-hand position per (product, warehouse).
// Available = OnHandQty − ReservedQty; reservations are taken by allocation
// and consumed when a WO issues materials.
type InventoryItem struct {
	ID          string `json:"id" gorm:"primaryKey;size:36"`
	ProductID   string `json:"product_id" gorm:"size:36;not null;uniqueIndex:idx_inv_product_wh"`
	ProductCode string `json:"product_code" gorm:"size:64;index"`
	WarehouseID string `json:"warehouse_id" gorm:"size:36;not null;uniqueIndex:idx_inv_product_wh"`

	OnHandQty   float64 `json:"on_hand_qty" gorm:"type:decimal(12,4);not null;default:0"`
	ReservedQty float64 `json:"reserved_qty" gorm:"type:decimal(12,4);not null;default:0"`
	UOM         string  `json:"uom" gorm:"size:20;default:pcs"`

	LastMovedAt *time.Time `json:"last_moved_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (InventoryItem) TableName() string {
	return "mes_inventory_items"
}

// AvailableQty is what allocation may still reserve.
func (i InventoryItem) AvailableQty() float64 {
	return i.OnHandQty - i.ReservedQty
}

// Inventory movement types.
const (
	TxTypeReserve   = "RESERVE"
	TxTypeUnreserve = "UNRESERVE"
	TxTypeIssue     = "ISSUE"
	TxTypeReceipt   = "RECEIPT"
	TxTypeDebtIn    = "DEBT_IN"
	TxTypeAdjust    = "ADJUST"
)

// InventoryTransaction is the movement journal; one row per ledger change.
type InventoryTransaction struct {
	ID          string `json:"id" gorm:"primaryKey;size:36"`
	ProductID   string `json:"product_id" gorm:"size:36;not null;index"`
	ProductCode string `json:"product_code" gorm:"size:64"`
	WarehouseID string `json:"warehouse_id" gorm:"size:36;not null"`

	TxType   string  `json:"tx_type" gorm:"size:20;not null;index"`
	Quantity float64 `json:"quantity" gorm:"type:decimal(12,4);not null"` // signed

	ReferenceType string `json:"reference_type" gorm:"size:20"` // MO / WO / DEBT / ADJ
	ReferenceID   string `json:"reference_id" gorm:"size:36;index"`
	ReferenceCode string `json:"reference_code" gorm:"size:50"`

	CreatedBy string    `json:"created_by" gorm:"size:36"`
	CreatedAt time.Time `json:"created_at"`
}

func (InventoryTransaction) TableName() string {
	return "mes_inventory_transactions"
}
