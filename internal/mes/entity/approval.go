package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ApprovalRole is a tier in the approval chain.
type ApprovalRole string

const (
	RoleSPV      ApprovalRole = "SPV"
	RoleManager  ApprovalRole = "MANAGER"
	RoleDirector ApprovalRole = "DIRECTOR"
)

// ApprovalStatus is the request (and step) lifecycle state.
type ApprovalStatus string

const (
	ApprovalStatusPending   ApprovalStatus = "pending"
	ApprovalStatusApproved  ApprovalStatus = "approved"
	ApprovalStatusRejected  ApprovalStatus = "rejected"
	ApprovalStatusCancelled ApprovalStatus = "cancelled"
	ApprovalStatusFailed    ApprovalStatus = "failed" // approved but apply() errored; target untouched
)

// Terminal reports whether the request accepts no further decisions.
func (s ApprovalStatus) Terminal() bool {
	return s != ApprovalStatusPending
}

// Entity types that can be gated by an approval request.
const (
	ApprovalEntityMO    = "manufacturing_order"
	ApprovalEntityDebt  = "material_debt"
	ApprovalEntityStock = "stock_adjustment"
)

// Change command kinds.
const (
	ChangeTypeQuantity    = "change_quantity"
	ChangeTypeDeadline    = "change_deadline"
	ChangeTypeDestination = "change_destination"
	ChangeTypeApproveDebt = "approve_debt"
	ChangeTypeAdjustStock = "adjust_stock"
)

// ChangeCommand is a tagged union of the well-typed changes an approval can
// carry; exactly one payload matching Type is set.
type ChangeCommand struct {
	Type string `json:"type"`

	ChangeQuantity    *ChangeQuantity    `json:"change_quantity,omitempty"`
	ChangeDeadline    *ChangeDeadline    `json:"change_deadline,omitempty"`
	ChangeDestination *ChangeDestination `json:"change_destination,omitempty"`
	AdjustStock       *AdjustStock       `json:"adjust_stock,omitempty"`
}

type ChangeQuantity struct {
	NewTargetQty float64 `json:"new_target_qty"`
	NewBufferQty float64 `json:"new_buffer_qty"`
}

type ChangeDeadline struct {
	NewWeek string `json:"new_week"`
}

type ChangeDestination struct {
	NewDestination string `json:"new_destination"`
}

type AdjustStock struct {
	ProductID   string  `json:"product_id"`
	WarehouseID string  `json:"warehouse_id"`
	DeltaQty    float64 `json:"delta_qty"`
	Reason      string  `json:"reason"`
}

// ChangeList serializes the command list into a jsonb column.
type ChangeList []ChangeCommand

func (c ChangeList) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

func (c *ChangeList) Scan(value interface{}) error {
	return scanJSON(value, c)
}

// RoleChain serializes the ordered approver roles into a jsonb column.
type RoleChain []ApprovalRole

func (r RoleChain) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

func (r *RoleChain) Scan(value interface{}) error {
	return scanJSON(value, r)
}

func scanJSON(value, dest interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("jsonb: unsupported source type")
	}
	return json.Unmarshal(data, dest)
}

// ApprovalRequest is the generic envelope for any gated change. Changes are
// applied to the target entity only after the last chain step approves;
// rejection at any step terminates the whole request.
type ApprovalRequest struct {
	ID         string `json:"id" gorm:"primaryKey;size:36"`
	EntityType string `json:"entity_type" gorm:"size:30;not null;index:idx_approval_entity"`
	EntityID   string `json:"entity_id" gorm:"size:36;not null;index:idx_approval_entity"`

	Changes ChangeList `json:"changes" gorm:"type:jsonb"`
	Reason  string     `json:"reason" gorm:"type:text"`
	Chain   RoleChain  `json:"chain" gorm:"type:jsonb;not null"`

	CurrentStep   int            `json:"current_step" gorm:"not null;default:0"`
	Status        ApprovalStatus `json:"status" gorm:"size:20;not null;default:pending;index"`
	ResultComment string         `json:"result_comment" gorm:"type:text"`

	RequestedBy string    `json:"requested_by" gorm:"size:36;not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Steps []ApprovalStep `json:"steps,omitempty" gorm:"foreignKey:RequestID"`
}

func (ApprovalRequest) TableName() string {
	return "mes_approval_requests"
}

// ApprovalStep is one tier of a request's chain.
type ApprovalStep struct {
	ID        string         `json:"id" gorm:"primaryKey;size:36"`
	RequestID string         `json:"request_id" gorm:"size:36;not null;index"`
	StepIndex int            `json:"step_index" gorm:"not null"`
	Role      ApprovalRole   `json:"role" gorm:"size:20;not null"`
	Status    ApprovalStatus `json:"status" gorm:"size:20;not null;default:pending"`
	ActorID   string         `json:"actor_id" gorm:"size:36"`
	Notes     string         `json:"notes" gorm:"type:text"`
	DecidedAt *time.Time     `json:"decided_at"`
	CreatedAt time.Time      `json:"created_at"`
}

func (ApprovalStep) TableName() string {
	return "mes_approval_steps"
}
