package entity

import "time"

// BOMHeader is one version of the recipe producing Product at a given
// department stage. At most one header may be active per (product, stage);
// the active flag is the versioning mechanism.
type BOMHeader struct {
	ID        string     `json:"id" gorm:"primaryKey;size:36"`
	ProductID string     `json:"product_id" gorm:"size:36;not null;index:idx_bom_product_stage"`
	Stage     Department `json:"stage" gorm:"size:20;not null;index:idx_bom_product_stage"`
	Version   string     `json:"version" gorm:"size:16;not null;default:v1"`
	Active    bool       `json:"active" gorm:"not null;default:false;index"`
	CreatedBy string     `json:"created_by" gorm:"size:36"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	Product *Product    `json:"product,omitempty" gorm:"foreignKey:ProductID"`
	Details []BOMDetail `json:"details,omitempty" gorm:"foreignKey:HeaderID"`
}

func (BOMHeader) TableName() string {
	return "mes_bom_headers"
}

// BOMDetail is one component line of a header: quantity per unit of output
// plus a wastage allowance in percent.
type BOMDetail struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	HeaderID    string    `json:"header_id" gorm:"size:36;not null;index"`
	ComponentID string    `json:"component_id" gorm:"size:36;not null;index"`
	QtyPer      float64   `json:"qty_per" gorm:"type:decimal(12,4);not null"`
	WastagePct  float64   `json:"wastage_pct" gorm:"type:decimal(6,2);default:0"`
	Seq         int       `json:"seq" gorm:"default:0"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Component *Product `json:"component,omitempty" gorm:"foreignKey:ComponentID"`
}

func (BOMDetail) TableName() string {
	return "mes_bom_details"
}

// RequiredQty applies the wastage allowance to the per-unit quantity.
func (d BOMDetail) RequiredQty(outputQty float64) float64 {
	return d.QtyPer * outputQty * (1 + d.WastagePct/100)
}
