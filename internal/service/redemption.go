package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/punchamoorthee/coinledger/internal/domain"
	"github.com/punchamoorthee/coinledger/internal/logging"
	"github.com/punchamoorthee/coinledger/internal/models"
	"github.com/punchamoorthee/coinledger/internal/store"
)

var (
	ErrCartNotFound        = errors.New("cart not found")
	ErrAlreadyRedeemed     = errors.New("coins are already applied to this cart")
	ErrInvalidSelection    = errors.New("invalid coin selection")
	ErrNothingToRedeem     = errors.New("no items in this cart can be paid with coins")
	ErrInsufficientPoints  = errors.New("insufficient coin balance")
	ErrConcurrentUpdate    = errors.New("cart was updated concurrently")
	ErrIdempotencyConflict = errors.New("request in progress")
	ErrIdempotencyMismatch = errors.New("key reuse with mismatched payload")
)

const (
	reasonRedeemed = "Redeemed at checkout"
	reasonReverted = "Redemption reverted"
	referenceCart  = "cart"
)

type RedemptionService struct {
	db     *pgxpool.Pool
	logger logging.Logger
}

func NewRedemptionService(db *pgxpool.Pool, logger logging.Logger) *RedemptionService {
	return &RedemptionService{db: db, logger: logging.OrDiscard(logger)}
}

// Redeem spends coins on the cart: one spend entry, the balance decrement and
// the cart's points_cost are written in a single transaction.
func (s *RedemptionService) Redeem(ctx context.Context, customerID string, req models.RedeemRequest, idempotencyKey string, reqHash string) (*models.CartResponse, *models.IdempotencyRecord, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Idempotency check
	var (
		storedCustomer string
		storedStatus   *int
		storedBody     []byte
		storedHash     string
	)
	err = tx.QueryRow(ctx,
		"SELECT customer_id, response_status, response_body, request_hash FROM idempotency_keys WHERE key = $1",
		idempotencyKey,
	).Scan(&storedCustomer, &storedStatus, &storedBody, &storedHash)

	if err == nil {
		if storedCustomer != customerID || storedHash != reqHash {
			return nil, nil, ErrIdempotencyMismatch
		}
		if storedStatus == nil {
			return nil, nil, ErrIdempotencyConflict
		}
		return nil, &models.IdempotencyRecord{
			Key:            idempotencyKey,
			RequestHash:    storedHash,
			Status:         "completed",
			ResponseBody:   storedBody,
			ResponseStatus: *storedStatus,
		}, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("idempotency query failed: %w", err)
	}

	// 2. Idempotency reservation
	_, err = tx.Exec(ctx,
		"INSERT INTO idempotency_keys (key, customer_id, request_hash, status, cart_id) VALUES ($1, $2, $3, 'in_progress', $4)",
		idempotencyKey, customerID, reqHash, req.CartID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, nil, ErrIdempotencyConflict
		}
		return nil, nil, fmt.Errorf("key reservation failed: %w", classify(err))
	}

	// 3. Lock the cart, then the balance. Revert takes them in the same order.
	cart, err := s.lockCart(ctx, tx, customerID, req.CartID)
	if err != nil {
		return nil, nil, err
	}
	if cart.State() == domain.StateCommitted {
		return nil, nil, ErrAlreadyRedeemed
	}

	configs, err := store.LoadVariantConfigs(ctx, tx, cart.VariantIDs())
	if err != nil {
		return nil, nil, fmt.Errorf("load point configs: %w", err)
	}
	plan, err := PlanRedemption(cart, configs, req.VariantIDs)
	if err != nil {
		return nil, nil, err
	}

	balance, err := lockBalance(ctx, tx, customerID)
	if err != nil {
		return nil, nil, err
	}
	if balance < plan.Cost {
		return nil, nil, ErrInsufficientPoints
	}

	// 4. Ledger entry, balance and cart metadata
	if err := store.InsertTransaction(ctx, tx, ledgerEntry(customerID, domain.TransactionSpend, plan.Cost, reasonRedeemed, cart.ID)); err != nil {
		return nil, nil, classify(err)
	}
	if _, err := tx.Exec(ctx,
		"UPDATE point_balances SET balance = balance - $1, updated_at = now() WHERE customer_id = $2",
		plan.Cost, customerID); err != nil {
		return nil, nil, fmt.Errorf("balance update failed: %w", classify(err))
	}
	if err := store.SetRedemption(ctx, tx, cart.ID, plan.Cost, plan.VariantIDs); err != nil {
		return nil, nil, fmt.Errorf("cart update failed: %w", classify(err))
	}

	updated, err := store.LoadCart(ctx, tx, cart.ID, false)
	if err != nil {
		return nil, nil, err
	}
	resp := &models.CartResponse{Cart: *updated}

	// 5. Finalize idempotency and commit
	respBody, err := json.Marshal(resp)
	if err != nil {
		return nil, nil, err
	}
	_, err = tx.Exec(ctx,
		"UPDATE idempotency_keys SET status = 'completed', response_status = $1, response_body = $2 WHERE key = $3",
		http.StatusOK, respBody, idempotencyKey,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("idempotency update failed: %w", classify(err))
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("tx commit failed: %w", classify(err))
	}

	s.logger.WithFields(logging.Fields{
		"cart_id":     cart.ID,
		"customer_id": customerID,
		"points_cost": plan.Cost,
	}).Info("coins redeemed")
	return resp, nil, nil
}

// Revert refunds a committed redemption with a compensating adjust entry.
// A cart without a redemption is returned unchanged.
func (s *RedemptionService) Revert(ctx context.Context, customerID, cartID string) (*models.CartResponse, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	cart, err := s.lockCart(ctx, tx, customerID, cartID)
	if err != nil {
		return nil, err
	}
	if cart.State() == domain.StateUnapplied {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("tx commit failed: %w", classify(err))
		}
		return &models.CartResponse{Cart: *cart}, nil
	}

	cost := cart.PointsCost()
	if _, err := lockBalance(ctx, tx, customerID); err != nil {
		return nil, err
	}
	if err := store.InsertTransaction(ctx, tx, ledgerEntry(customerID, domain.TransactionAdjust, cost, reasonReverted, cart.ID)); err != nil {
		return nil, classify(err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO point_balances (customer_id, balance) VALUES ($1, $2)
		 ON CONFLICT (customer_id) DO UPDATE SET balance = point_balances.balance + EXCLUDED.balance, updated_at = now()`,
		customerID, cost); err != nil {
		return nil, fmt.Errorf("balance update failed: %w", classify(err))
	}
	if err := store.ClearRedemption(ctx, tx, cart.ID); err != nil {
		return nil, fmt.Errorf("cart update failed: %w", classify(err))
	}

	updated, err := store.LoadCart(ctx, tx, cart.ID, false)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", classify(err))
	}

	s.logger.WithFields(logging.Fields{
		"cart_id":     cart.ID,
		"customer_id": customerID,
		"points_cost": cost,
	}).Info("coin redemption reverted")
	return &models.CartResponse{Cart: *updated}, nil
}

func (s *RedemptionService) lockCart(ctx context.Context, tx pgx.Tx, customerID, cartID string) (*domain.Cart, error) {
	cart, err := store.LoadCart(ctx, tx, cartID, true)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock acquisition failed: %w", classify(err))
	}
	// Someone else's cart is indistinguishable from a missing one.
	if cart.CustomerID != customerID {
		return nil, ErrCartNotFound
	}
	return cart, nil
}

func lockBalance(ctx context.Context, tx pgx.Tx, customerID string) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, "SELECT balance FROM point_balances WHERE customer_id = $1 FOR UPDATE", customerID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lock acquisition failed: %w", classify(err))
	}
	return balance, nil
}

func ledgerEntry(customerID string, typ domain.TransactionType, points int64, reason, cartID string) domain.PointTransaction {
	refType := referenceCart
	return domain.PointTransaction{
		ID:            "ptx_" + uuid.NewString(),
		CustomerID:    customerID,
		Type:          typ,
		Points:        points,
		Reason:        &reason,
		ReferenceID:   &cartID,
		ReferenceType: &refType,
	}
}

// classify maps serialization failures and deadlocks to ErrConcurrentUpdate.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fmt.Errorf("%w: %s", ErrConcurrentUpdate, pgErr.Message)
	}
	return err
}
