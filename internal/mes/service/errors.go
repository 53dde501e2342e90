package service

import (
	"fmt"
	"strings"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
)

// ValidationError reports bad input shape or range.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// MissingBOMError reports a WIP node without an active BOM header.
type MissingBOMError struct {
	ProductID   string
	ProductCode string
	Stage       entity.Department
}

func (e *MissingBOMError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("no active BOM for product %s at stage %s", e.ProductCode, e.Stage)
	}
	return fmt.Sprintf("no active BOM for product %s", e.ProductCode)
}

// CycleDetectedError reports a BOM graph that transitively requires itself.
type CycleDetectedError struct {
	Path []string // product codes along the offending path
}

func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("BOM cycle detected: %s", strings.Join(e.Path, " -> "))
}

// InsufficientStockError reports a hard stock shortage where the debt
// fallback was not permitted.
type InsufficientStockError struct {
	ProductCode string
	WarehouseID string
	Required    float64
	Available   float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock of %s in warehouse %s: required %.4f, available %.4f",
		e.ProductCode, e.WarehouseID, e.Required, e.Available)
}

// AlreadyAllocatedError rejects a second allocation pass for an order whose
// prior lines were not reversed.
type AlreadyAllocatedError struct {
	OrderType entity.OrderType
	OrderID   string
}

func (e *AlreadyAllocatedError) Error() string {
	return fmt.Sprintf("%s %s already has an active allocation batch", e.OrderType, e.OrderID)
}

// InvalidStateTransitionError reports a state-machine guard violation.
type InvalidStateTransitionError struct {
	EntityType string
	EntityID   string
	From       string
	To         string
	Reason     string
}

func (e *InvalidStateTransitionError) Error() string {
	msg := fmt.Sprintf("%s %s: illegal transition %s -> %s", e.EntityType, e.EntityID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// ApprovalChainViolationError reports acting out of turn or on a terminal
// request.
type ApprovalChainViolationError struct {
	RequestID string
	Role      entity.ApprovalRole
	Reason    string
}

func (e *ApprovalChainViolationError) Error() string {
	return fmt.Sprintf("approval %s: %s (role %s)", e.RequestID, e.Reason, e.Role)
}

// PartialPalletError rejects packing completion when cartons do not form
// whole pallets.
type PartialPalletError struct {
	WOID             string
	CartonsPacked    int
	CartonsPerPallet int
}

func (e *PartialPalletError) Error() string {
	return fmt.Sprintf("work order %s: %d cartons is not a multiple of %d cartons per pallet",
		e.WOID, e.CartonsPacked, e.CartonsPerPallet)
}
