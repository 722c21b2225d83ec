package domain

import (
	"errors"
	"fmt"
	"time"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TransactionEarn   TransactionType = "earn"
	TransactionSpend  TransactionType = "spend"
	TransactionAdjust TransactionType = "adjust"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionEarn, TransactionSpend, TransactionAdjust:
		return true
	}
	return false
}

// PointBalance is a customer's redeemable coin balance.
type PointBalance struct {
	CustomerID string `json:"customer_id"`
	Balance    int64  `json:"balance"`
}

// PointTransaction is one immutable ledger entry.
// Earn and spend carry a positive magnitude; adjust carries its own sign.
type PointTransaction struct {
	ID            string          `json:"id"`
	CustomerID    string          `json:"customer_id"`
	Type          TransactionType `json:"type"`
	Points        int64           `json:"points"`
	Reason        *string         `json:"reason"`
	ReferenceID   *string         `json:"reference_id"`
	ReferenceType *string         `json:"reference_type"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Delta returns the entry's effect on the balance.
func (t PointTransaction) Delta() int64 {
	switch t.Type {
	case TransactionEarn:
		return abs(t.Points)
	case TransactionSpend:
		return -abs(t.Points)
	default:
		return t.Points
	}
}

// Sign is the display sign for history rows.
func (t PointTransaction) Sign() string {
	if t.Delta() > 0 {
		return "+"
	}
	return "-"
}

// Magnitude is the unsigned number of points moved.
func (t PointTransaction) Magnitude() int64 {
	return abs(t.Points)
}

// PointsSnapshot is the full balance + history payload returned per call.
type PointsSnapshot struct {
	Coins        int64              `json:"coins"`
	Transactions []PointTransaction `json:"transactions"`
}

// PaymentType governs which tender may settle a variant.
type PaymentType string

const (
	PaymentCurrency PaymentType = "currency"
	PaymentPoints   PaymentType = "points"
	PaymentBoth     PaymentType = "both"
)

var ErrInvalidPointConfig = errors.New("invalid point config")

// VariantPointConfig is the per-variant payment policy.
type VariantPointConfig struct {
	VariantID   string      `json:"variant_id"`
	PaymentType PaymentType `json:"payment_type"`
	PointPrice  *int64      `json:"point_price"`
}

// Validate enforces the point price invariant.
func (c *VariantPointConfig) Validate() error {
	switch c.PaymentType {
	case PaymentCurrency:
		return nil
	case PaymentPoints, PaymentBoth:
		if c.PointPrice == nil {
			return fmt.Errorf("%w: variant %s accepts points without a point price", ErrInvalidPointConfig, c.VariantID)
		}
		if *c.PointPrice < 0 {
			return fmt.Errorf("%w: variant %s has negative point price", ErrInvalidPointConfig, c.VariantID)
		}
		return nil
	default:
		return fmt.Errorf("%w: variant %s has unknown payment type %q", ErrInvalidPointConfig, c.VariantID, c.PaymentType)
	}
}

// EffectivePaymentType treats a missing config as currency-only.
func EffectivePaymentType(c *VariantPointConfig) PaymentType {
	if c == nil {
		return PaymentCurrency
	}
	return c.PaymentType
}

// PointsOnly reports whether the variant can only be settled in points.
func (c *VariantPointConfig) PointsOnly() bool {
	return c != nil && c.PaymentType == PaymentPoints && c.PointPrice != nil
}

// AcceptsPoints reports whether the variant carries a usable point price.
func (c *VariantPointConfig) AcceptsPoints() bool {
	return c != nil && c.PaymentType != PaymentCurrency && c.PointPrice != nil
}

// Price returns the point price, or zero when absent.
func (c *VariantPointConfig) Price() int64 {
	if c == nil || c.PointPrice == nil {
		return 0
	}
	return *c.PointPrice
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
