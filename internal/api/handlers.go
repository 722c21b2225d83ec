package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/punchamoorthee/coinledger/internal/auth"
	"github.com/punchamoorthee/coinledger/internal/domain"
	"github.com/punchamoorthee/coinledger/internal/invalidation"
	"github.com/punchamoorthee/coinledger/internal/logging"
	"github.com/punchamoorthee/coinledger/internal/models"
	"github.com/punchamoorthee/coinledger/internal/service"
	"github.com/punchamoorthee/coinledger/internal/store"
)

// Store is the read side of the points backend.
type Store interface {
	Customer(ctx context.Context, id string) (*domain.Customer, error)
	Points(ctx context.Context, customerID string) (*domain.PointsSnapshot, error)
	VariantPointConfig(ctx context.Context, variantID string) (*domain.VariantPointConfig, error)
	Cart(ctx context.Context, id string) (*domain.Cart, error)
}

// Redeemer performs redemption mutations.
type Redeemer interface {
	Redeem(ctx context.Context, customerID string, req models.RedeemRequest, idempotencyKey string, reqHash string) (*models.CartResponse, *models.IdempotencyRecord, error)
	Revert(ctx context.Context, customerID, cartID string) (*models.CartResponse, error)
}

type Handler struct {
	store    Store
	redeemer Redeemer
	bus      invalidation.Bus
	logger   logging.Logger
}

// NewHandler wires the handlers. bus may be nil; when set, every successful
// redemption mutation is announced to other storefront processes.
func NewHandler(s Store, r Redeemer, bus invalidation.Bus, logger logging.Logger) *Handler {
	return &Handler{store: s, redeemer: r, bus: bus, logger: logging.OrDiscard(logger)}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) GetCustomerHandler(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	customer, err := h.store.Customer(r.Context(), claims.CustomerID)
	if err != nil {
		h.respondLookupError(w, err, "Customer not found")
		return
	}
	respondWithJSON(w, http.StatusOK, models.CustomerResponse{Customer: *customer})
}

func (h *Handler) GetPointsHandler(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	snap, err := h.store.Points(r.Context(), claims.CustomerID)
	if err != nil {
		h.logger.WithError(err).WithField("customer_id", claims.CustomerID).Error("points lookup failed")
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	respondWithJSON(w, http.StatusOK, snap)
}

func (h *Handler) GetPointConfigHandler(w http.ResponseWriter, r *http.Request) {
	variantID := mux.Vars(r)["id"]
	cfg, err := h.store.VariantPointConfig(r.Context(), variantID)
	if err != nil {
		h.respondLookupError(w, err, "Point config not found")
		return
	}
	respondWithJSON(w, http.StatusOK, models.PointConfigResponse{PointConfig: *cfg})
}

func (h *Handler) GetCartHandler(w http.ResponseWriter, r *http.Request) {
	cart, err := h.store.Cart(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondLookupError(w, err, "Cart not found")
		return
	}
	respondWithJSON(w, http.StatusOK, models.CartResponse{Cart: *cart})
}

func (h *Handler) RedeemHandler(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())

	// 1. Validate header
	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		respondWithError(w, http.StatusBadRequest, "Missing Idempotency-Key header")
		return
	}

	// 2. Read and hash body
	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Stream read error")
		return
	}
	r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

	hash := sha256.Sum256(bodyBytes)
	reqHash := hex.EncodeToString(hash[:])

	var req models.RedeemRequest
	if err := json.Unmarshal(bodyBytes, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if req.CartID == "" {
		respondWithError(w, http.StatusBadRequest, "cart_id is required")
		return
	}

	// 3. Call service
	resp, existing, err := h.redeemer.Redeem(r.Context(), claims.CustomerID, req, idempotencyKey, reqHash)
	if err != nil {
		h.respondRedemptionError(w, err, req.CartID)
		return
	}

	// Idempotent replay
	if existing != nil {
		respondWithRaw(w, existing.ResponseStatus, existing.ResponseBody)
		return
	}

	h.announce(r.Context(), req.CartID)
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) RemoveRedemptionHandler(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())

	var req models.RemoveRedemptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if req.CartID == "" {
		respondWithError(w, http.StatusBadRequest, "cart_id is required")
		return
	}

	resp, err := h.redeemer.Revert(r.Context(), claims.CustomerID, req.CartID)
	if err != nil {
		h.respondRedemptionError(w, err, req.CartID)
		return
	}

	h.announce(r.Context(), req.CartID)
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) announce(ctx context.Context, cartID string) {
	if h.bus == nil {
		return
	}
	if err := h.bus.Invalidate(context.WithoutCancel(ctx), invalidation.RedemptionTags...); err != nil {
		h.logger.WithError(err).WithField("cart_id", cartID).Warn("failed to publish invalidation")
	}
}

func (h *Handler) respondLookupError(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, store.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, notFound)
		return
	}
	h.logger.WithError(err).Error("lookup failed")
	respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
}

func (h *Handler) respondRedemptionError(w http.ResponseWriter, err error, cartID string) {
	switch {
	case errors.Is(err, service.ErrIdempotencyConflict):
		respondWithError(w, http.StatusConflict, "Request processing in progress")
	case errors.Is(err, service.ErrIdempotencyMismatch):
		respondWithError(w, http.StatusUnprocessableEntity, "Key reuse with mismatched payload")
	case errors.Is(err, service.ErrCartNotFound):
		respondWithError(w, http.StatusNotFound, "Cart not found")
	case errors.Is(err, service.ErrAlreadyRedeemed):
		respondWithError(w, http.StatusConflict, "Coins are already applied to this cart")
	case errors.Is(err, service.ErrConcurrentUpdate):
		respondWithError(w, http.StatusConflict, "Cart was updated by another request, please try again")
	case errors.Is(err, service.ErrInvalidSelection):
		respondWithError(w, http.StatusUnprocessableEntity, "Some selected items cannot be paid with coins")
	case errors.Is(err, service.ErrNothingToRedeem):
		respondWithError(w, http.StatusUnprocessableEntity, "No items in this cart can be paid with coins")
	case errors.Is(err, service.ErrInsufficientPoints):
		respondWithError(w, http.StatusUnprocessableEntity, "Insufficient coin balance")
	default:
		h.logger.WithError(err).WithField("cart_id", cartID).Error("redemption failed")
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}
