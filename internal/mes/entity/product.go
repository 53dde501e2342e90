package entity

import "time"

// ProductKind classifies what a product is within the factory flow.
type ProductKind string

const (
	KindRawMaterial ProductKind = "RAW_MATERIAL"
	KindWIP         ProductKind = "WIP"
	KindFinishGood  ProductKind = "FINISH_GOOD"
	KindAccessory   ProductKind = "ACCESSORY"
)

// Product is a material, WIP intermediate or finished good. Identity is
// immutable once created; rows are never deleted while referenced.
type Product struct {
	ID   string      `json:"id" gorm:"primaryKey;size:36"`
	Code string      `json:"code" gorm:"size:64;not null;uniqueIndex"`
	Name string      `json:"name" gorm:"size:200;not null"`
	Kind ProductKind `json:"kind" gorm:"size:20;not null;index"`
	UOM  string      `json:"uom" gorm:"size:20;not null;default:pcs"`

	// Packing specs, only meaningful for finished goods.
	PcsPerCarton     int `json:"pcs_per_carton" gorm:"default:0"`
	CartonsPerPallet int `json:"cartons_per_pallet" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Product) TableName() string {
	return "mes_products"
}
