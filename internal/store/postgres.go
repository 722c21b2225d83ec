package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/punchamoorthee/coinledger/internal/domain"
)

//go:embed schema.sql
var schema string

var ErrNotFound = errors.New("not found")

// Querier is satisfied by both the pool and an open transaction, so the same
// reads serve handlers and the redemption flow.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	Db *pgxpool.Pool
}

func NewStore(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{Db: pool}, nil
}

func (s *Store) Close() {
	s.Db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.Db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Customer retrieves a customer by ID.
func (s *Store) Customer(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.Db.QueryRow(ctx,
		"SELECT id, email, first_name, last_name FROM customers WHERE id = $1", id,
	).Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCustomer inserts a customer with an empty balance.
func (s *Store) CreateCustomer(ctx context.Context, c domain.Customer) error {
	return pgx.BeginFunc(ctx, s.Db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			"INSERT INTO customers (id, email, first_name, last_name) VALUES ($1, $2, $3, $4)",
			c.ID, c.Email, c.FirstName, c.LastName)
		if err != nil {
			return fmt.Errorf("insert customer: %w", err)
		}
		_, err = tx.Exec(ctx, "INSERT INTO point_balances (customer_id, balance) VALUES ($1, 0)", c.ID)
		return err
	})
}

// Balance returns the customer's redeemable coins. A customer without a balance row has none.
func (s *Store) Balance(ctx context.Context, customerID string) (int64, error) {
	return readBalance(ctx, s.Db, customerID)
}

// History returns the customer's ledger entries, newest first.
func (s *Store) History(ctx context.Context, customerID string) ([]domain.PointTransaction, error) {
	return readHistory(ctx, s.Db, customerID)
}

// Points returns balance and history read from one snapshot, so the balance
// always equals the entries returned with it.
func (s *Store) Points(ctx context.Context, customerID string) (*domain.PointsSnapshot, error) {
	snap := &domain.PointsSnapshot{}
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := pgx.BeginTxFunc(ctx, s.Db, opts, func(tx pgx.Tx) error {
		balance, err := readBalance(ctx, tx, customerID)
		if err != nil {
			return err
		}
		history, err := readHistory(ctx, tx, customerID)
		if err != nil {
			return err
		}
		snap.Coins, snap.Transactions = balance, history
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func readBalance(ctx context.Context, q Querier, customerID string) (int64, error) {
	var balance int64
	err := q.QueryRow(ctx, "SELECT balance FROM point_balances WHERE customer_id = $1", customerID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

func readHistory(ctx context.Context, q Querier, customerID string) ([]domain.PointTransaction, error) {
	rows, err := q.Query(ctx,
		`SELECT id, customer_id, type, points, reason, reference_id, reference_type, created_at, updated_at
		 FROM point_transactions WHERE customer_id = $1 ORDER BY created_at DESC, id DESC`,
		customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []domain.PointTransaction{}
	for rows.Next() {
		var t domain.PointTransaction
		if err := rows.Scan(&t.ID, &t.CustomerID, &t.Type, &t.Points, &t.Reason,
			&t.ReferenceID, &t.ReferenceType, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan point transaction: %w", err)
		}
		entries = append(entries, t)
	}
	return entries, rows.Err()
}

// InsertTransaction appends a ledger entry. Entries are never updated or deleted.
func InsertTransaction(ctx context.Context, q Querier, t domain.PointTransaction) error {
	if !t.Type.Valid() {
		return fmt.Errorf("invalid transaction type %q", t.Type)
	}
	_, err := q.Exec(ctx,
		`INSERT INTO point_transactions (id, customer_id, type, points, reason, reference_id, reference_type)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.CustomerID, t.Type, t.Points, t.Reason, t.ReferenceID, t.ReferenceType)
	if err != nil {
		return fmt.Errorf("insert point transaction: %w", err)
	}
	return nil
}

// VariantPointConfig returns the variant's payment policy.
func (s *Store) VariantPointConfig(ctx context.Context, variantID string) (*domain.VariantPointConfig, error) {
	configs, err := LoadVariantConfigs(ctx, s.Db, []string{variantID})
	if err != nil {
		return nil, err
	}
	cfg, ok := configs[variantID]
	if !ok {
		return nil, ErrNotFound
	}
	return cfg, nil
}

// LoadVariantConfigs returns the configured policies among ids. Variants without
// a row are absent from the map.
func LoadVariantConfigs(ctx context.Context, q Querier, ids []string) (map[string]*domain.VariantPointConfig, error) {
	out := make(map[string]*domain.VariantPointConfig, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx,
		"SELECT variant_id, payment_type, point_price FROM variant_point_configs WHERE variant_id = ANY($1)", ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var cfg domain.VariantPointConfig
		if err := rows.Scan(&cfg.VariantID, &cfg.PaymentType, &cfg.PointPrice); err != nil {
			return nil, fmt.Errorf("scan point config: %w", err)
		}
		out[cfg.VariantID] = &cfg
	}
	return out, rows.Err()
}

// UpsertVariantPointConfig validates and stores a variant's payment policy.
func (s *Store) UpsertVariantPointConfig(ctx context.Context, cfg domain.VariantPointConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	_, err := s.Db.Exec(ctx,
		`INSERT INTO variant_point_configs (variant_id, payment_type, point_price) VALUES ($1, $2, $3)
		 ON CONFLICT (variant_id) DO UPDATE
		 SET payment_type = EXCLUDED.payment_type, point_price = EXCLUDED.point_price, updated_at = now()`,
		cfg.VariantID, cfg.PaymentType, cfg.PointPrice)
	return err
}

// Cart retrieves a cart with its line items and derived totals.
func (s *Store) Cart(ctx context.Context, id string) (*domain.Cart, error) {
	return LoadCart(ctx, s.Db, id, false)
}

// LoadCart reads a cart through q. With forUpdate the cart row stays locked
// until q's transaction ends.
func LoadCart(ctx context.Context, q Querier, id string, forUpdate bool) (*domain.Cart, error) {
	query := `SELECT id, COALESCE(customer_id, ''), currency_code, shipping_subtotal, tax_total, discount_subtotal, metadata
		FROM carts WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var (
		cart domain.Cart
		meta []byte
	)
	err := q.QueryRow(ctx, query, id).Scan(&cart.ID, &cart.CustomerID, &cart.CurrencyCode,
		&cart.Totals.ShippingSubtotal, &cart.Totals.TaxTotal, &cart.Totals.DiscountSubtotal, &meta)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &cart.Metadata); err != nil {
			return nil, fmt.Errorf("decode cart metadata: %w", err)
		}
	}

	rows, err := q.Query(ctx,
		`SELECT id, variant_id, title, quantity, unit_price, total, original_total
		 FROM cart_line_items WHERE cart_id = $1 ORDER BY created_at, id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cart.Items = []domain.LineItem{}
	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(&item.ID, &item.VariantID, &item.Title, &item.Quantity,
			&item.UnitPrice, &item.Total, &item.OriginalTotal); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		cart.Items = append(cart.Items, item)
		cart.Totals.ItemSubtotal += item.Total
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	cart.Totals.Total = cart.Totals.ItemSubtotal + cart.Totals.ShippingSubtotal +
		cart.Totals.TaxTotal - cart.Totals.DiscountSubtotal
	return &cart, nil
}

// SetRedemption records a committed redemption on the cart, keeping other metadata keys.
func SetRedemption(ctx context.Context, q Querier, cartID string, cost int64, variantIDs []string) error {
	if variantIDs == nil {
		variantIDs = []string{}
	}
	patch, err := json.Marshal(map[string]any{
		domain.MetaPointsCost:       cost,
		domain.MetaPointsVariantIDs: variantIDs,
	})
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, "UPDATE carts SET metadata = metadata || $2::jsonb, updated_at = now() WHERE id = $1", cartID, string(patch))
	return err
}

// ClearRedemption removes the redemption keys from the cart's metadata.
func ClearRedemption(ctx context.Context, q Querier, cartID string) error {
	_, err := q.Exec(ctx, "UPDATE carts SET metadata = metadata - $2::text - $3::text, updated_at = now() WHERE id = $1",
		cartID, domain.MetaPointsCost, domain.MetaPointsVariantIDs)
	return err
}

// CreateCart inserts a cart and its line items.
func (s *Store) CreateCart(ctx context.Context, cart domain.Cart) error {
	return pgx.BeginFunc(ctx, s.Db, func(tx pgx.Tx) error {
		var customer *string
		if cart.CustomerID != "" {
			customer = &cart.CustomerID
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO carts (id, customer_id, currency_code, shipping_subtotal, tax_total, discount_subtotal)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			cart.ID, customer, cart.CurrencyCode, cart.Totals.ShippingSubtotal, cart.Totals.TaxTotal, cart.Totals.DiscountSubtotal)
		if err != nil {
			return fmt.Errorf("insert cart: %w", err)
		}

		rows := make([][]any, 0, len(cart.Items))
		for _, item := range cart.Items {
			original := item.OriginalTotal
			if original == 0 {
				original = item.Total
			}
			rows = append(rows, []any{item.ID, cart.ID, item.VariantID, item.Title, item.Quantity, item.UnitPrice, item.Total, original})
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"cart_line_items"},
			[]string{"id", "cart_id", "variant_id", "title", "quantity", "unit_price", "total", "original_total"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("insert line items: %w", err)
		}
		return nil
	})
}

// Earn credits a customer with an earn entry.
func (s *Store) Earn(ctx context.Context, t domain.PointTransaction) error {
	if t.Type != domain.TransactionEarn || t.Points < 0 {
		return fmt.Errorf("earn requires a non-negative earn entry")
	}
	return pgx.BeginFunc(ctx, s.Db, func(tx pgx.Tx) error {
		if err := InsertTransaction(ctx, tx, t); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO point_balances (customer_id, balance) VALUES ($1, $2)
			 ON CONFLICT (customer_id) DO UPDATE SET balance = point_balances.balance + EXCLUDED.balance, updated_at = now()`,
			t.CustomerID, t.Points)
		return err
	})
}
