package models

import (
	"encoding/json"

	"github.com/punchamoorthee/coinledger/internal/domain"
)

// RedeemRequest is the payload for committing a redemption.
// VariantIDs distinguishes "absent" (nil) from "explicitly nothing" (empty).
type RedeemRequest struct {
	CartID     string    `json:"cart_id"`
	VariantIDs *[]string `json:"variant_ids,omitempty"`
}

// RemoveRedemptionRequest is the payload for reverting a redemption.
type RemoveRedemptionRequest struct {
	CartID string `json:"cart_id"`
}

// PointsResponse is returned by GET /store/customers/me/points.
type PointsResponse = domain.PointsSnapshot

// PointConfigResponse wraps a variant's payment policy.
type PointConfigResponse struct {
	PointConfig domain.VariantPointConfig `json:"point_config"`
}

// CartResponse is the canonical cart envelope.
type CartResponse struct {
	Cart domain.Cart `json:"cart"`
}

// CustomerResponse is returned by GET /store/customers/me.
type CustomerResponse struct {
	Customer domain.Customer `json:"customer"`
}

// ErrorResponse carries a user-facing message.
type ErrorResponse struct {
	Message string `json:"message"`
}

// IdempotencyRecord holds the stored outcome of a redeem key.
type IdempotencyRecord struct {
	Key            string
	RequestHash    string
	Status         string
	ResponseBody   json.RawMessage
	ResponseStatus int
}
