// Package pricing computes exact line-item totals in minor currency units.
//
// Unit prices arrive in major units and are floored into minor units exactly
// once; every step after that single conversion is integer arithmetic, so
// equal inputs always produce equal totals with no floating point drift.
package pricing

import (
	"errors"
	"fmt"
	"math"
)

// MinorUnit is the scale factor describing how many minor units compose one
// major currency unit (100 = cents).
type MinorUnit int64

// Permitted scale factors.
const (
	ScaleWhole      MinorUnit = 1
	ScaleTenth      MinorUnit = 10
	ScaleCent       MinorUnit = 100
	ScaleMill       MinorUnit = 1000
	ScaleBasisPoint MinorUnit = 10000
)

// DefaultMinorUnit is used when the caller does not pick a scale.
const DefaultMinorUnit = ScaleCent

// MaxSafeTotal bounds every converted price, line cost, and running total.
// Unit prices arrive as float64, so exactness is only guaranteed within the
// double precision integer range (2^53-1); staying inside it also leaves
// enough int64 headroom for the overflow checks below.
const MaxSafeTotal = int64(1)<<53 - 1

// ErrInvalidInput marks a request that can never succeed as given: bad
// scale, negative quantity, non-finite or negative price, or numeric
// overflow during conversion or summation.
var ErrInvalidInput = errors.New("invalid input")

// Valid reports whether the scale is one of the permitted factors.
func (m MinorUnit) Valid() bool {
	switch m {
	case ScaleWhole, ScaleTenth, ScaleCent, ScaleMill, ScaleBasisPoint:
		return true
	}
	return false
}

// LineItem is one quantity/unit-price entry. UnitPrice is in major units.
// Ref is an optional opaque identifier used only to annotate error messages;
// it has no effect on the computed total.
type LineItem struct {
	Qty       int64   `json:"qty"`
	UnitPrice float64 `json:"unitPrice"`
	Ref       string  `json:"ref,omitempty"`
}

// TotalResult is the outcome of a successful total calculation. It is a
// fresh value per call and is never mutated after construction.
type TotalResult struct {
	TotalMinor int64     `json:"totalMinor"`
	MinorUnit  MinorUnit `json:"minorUnit"`
	Items      int       `json:"items"`
}

// ConvertUnitPrice converts a major-unit price into minor units by
// multiplying and flooring. Floor is the only supported rounding mode;
// callers who need round-half-up must pre-adjust their prices.
func ConvertUnitPrice(price float64, scale MinorUnit) (int64, error) {
	if !scale.Valid() {
		return 0, badScaleErr()
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("unit price must be finite: %w", ErrInvalidInput)
	}
	if price < 0 {
		return 0, fmt.Errorf("unit price must not be negative: %w", ErrInvalidInput)
	}
	minor := math.Floor(price * float64(scale))
	if minor < 0 || minor > float64(MaxSafeTotal) {
		return 0, fmt.Errorf("unit price exceeds safe range: %w", ErrInvalidInput)
	}
	return int64(minor), nil
}

// LineCost returns the total cost of one line item in minor units. The
// multiply is overflow-checked against MaxSafeTotal before it happens, so a
// too-large product is reported instead of wrapping.
func LineCost(item LineItem, scale MinorUnit) (int64, error) {
	if item.Qty < 0 {
		return 0, itemErr(item.Ref, "quantity must not be negative")
	}
	unitMinor, err := ConvertUnitPrice(item.UnitPrice, scale)
	if err != nil {
		return 0, annotateRef(item.Ref, err)
	}
	if unitMinor == 0 || item.Qty == 0 {
		return 0, nil
	}
	if item.Qty > MaxSafeTotal/unitMinor {
		return 0, itemErr(item.Ref, "line cost exceeds safe range")
	}
	return item.Qty * unitMinor, nil
}

// Total computes the total cost of the given line items. A zero scale
// selects DefaultMinorUnit. Items are processed in input order so failures
// are attributed to the offending item; a single rejected item aborts the
// whole computation and partial totals are never returned.
func Total(items []LineItem, scale MinorUnit) (TotalResult, error) {
	if scale == 0 {
		scale = DefaultMinorUnit
	}
	if !scale.Valid() {
		return TotalResult{}, badScaleErr()
	}
	var total int64
	for _, item := range items {
		cost, err := LineCost(item, scale)
		if err != nil {
			return TotalResult{}, err
		}
		if cost > MaxSafeTotal-total {
			return TotalResult{}, itemErr(item.Ref, "total exceeds safe range")
		}
		total += cost
	}
	return TotalResult{TotalMinor: total, MinorUnit: scale, Items: len(items)}, nil
}

func badScaleErr() error {
	return fmt.Errorf("minor unit must be one of 1, 10, 100, 1000, 10000: %w", ErrInvalidInput)
}

func itemErr(ref, msg string) error {
	if ref != "" {
		return fmt.Errorf("item %q: %s: %w", ref, msg, ErrInvalidInput)
	}
	return fmt.Errorf("%s: %w", msg, ErrInvalidInput)
}

func annotateRef(ref string, err error) error {
	if ref == "" {
		return err
	}
	return fmt.Errorf("item %q: %w", ref, err)
}
