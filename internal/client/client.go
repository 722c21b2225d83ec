// Package client talks to the points backend on behalf of storefront views.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"

	"github.com/punchamoorthee/coinledger/internal/domain"
	"github.com/punchamoorthee/coinledger/internal/logging"
	"github.com/punchamoorthee/coinledger/internal/models"
)

// ErrUnauthenticated is returned without a network call when no customer token is set.
var ErrUnauthenticated = errors.New("customer is not authenticated")

// APIError is a non-2xx backend response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// Description is the backend's message, suitable for showing to the customer.
func (e *APIError) Description() string { return e.Message }

// retryableError marks a response the retry policy may repeat.
type retryableError struct{ err *APIError }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	HTTPClient *http.Client
	Logger     logging.Logger
}

type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	executor failsafe.Executor[*http.Response]
	logger   logging.Logger
}

func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	retries := opts.MaxRetries
	if retries < 0 {
		retries = 0
	}
	delay := opts.BaseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	policy := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(delay, 20*delay).
		WithMaxRetries(retries).
		WithJitterFactor(0.1).
		HandleIf(func(_ *http.Response, err error) bool {
			var re *retryableError
			return errors.As(err, &re) || isNetworkError(err)
		}).
		Build()

	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		token:    opts.Token,
		http:     httpClient,
		executor: failsafe.With[*http.Response](policy),
		logger:   logging.OrDiscard(opts.Logger),
	}
}

// WithToken returns a copy of the client acting for another customer session.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// Authenticated reports whether a customer session is attached.
func (c *Client) Authenticated(context.Context) bool {
	return c.token != ""
}

// Customer returns the authenticated customer.
func (c *Client) Customer(ctx context.Context) (*domain.Customer, error) {
	if !c.Authenticated(ctx) {
		return nil, ErrUnauthenticated
	}
	var out models.CustomerResponse
	if err := c.do(ctx, http.MethodGet, "/store/customers/me", nil, true, "", &out); err != nil {
		return nil, err
	}
	return &out.Customer, nil
}

// CustomerPoints returns the balance and full transaction history.
func (c *Client) CustomerPoints(ctx context.Context) (*domain.PointsSnapshot, error) {
	if !c.Authenticated(ctx) {
		return nil, ErrUnauthenticated
	}
	var out models.PointsResponse
	if err := c.do(ctx, http.MethodGet, "/store/customers/me/points", nil, true, "", &out); err != nil {
		return nil, err
	}
	if out.Transactions == nil {
		out.Transactions = []domain.PointTransaction{}
	}
	return &out, nil
}

// VariantPointConfig fetches a variant's payment policy. Unknown variants yield nil.
func (c *Client) VariantPointConfig(ctx context.Context, variantID string) (*domain.VariantPointConfig, error) {
	var out models.PointConfigResponse
	err := c.do(ctx, http.MethodGet, "/store/variants/"+url.PathEscape(variantID)+"/point-config", nil, false, "", &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &out.PointConfig, nil
}

// Cart retrieves a cart including metadata and totals.
func (c *Client) Cart(ctx context.Context, cartID string) (*domain.Cart, error) {
	var out models.CartResponse
	if err := c.do(ctx, http.MethodGet, "/store/carts/"+url.PathEscape(cartID), nil, c.Authenticated(ctx), "", &out); err != nil {
		return nil, err
	}
	return &out.Cart, nil
}

// Redeem commits coins against the cart. A nil variantIDs omits the field;
// any non-nil slice, including an empty one, is sent as the complete selection.
func (c *Client) Redeem(ctx context.Context, cartID string, variantIDs []string) (*domain.Cart, error) {
	if !c.Authenticated(ctx) {
		return nil, ErrUnauthenticated
	}
	req := models.RedeemRequest{CartID: cartID}
	if variantIDs != nil {
		ids := append([]string{}, variantIDs...)
		req.VariantIDs = &ids
	}
	var out models.CartResponse
	if err := c.do(ctx, http.MethodPost, "/store/customers/me/points/redeem", req, true, uuid.NewString(), &out); err != nil {
		return nil, err
	}
	return &out.Cart, nil
}

// RemoveRedemption reverts any committed redemption on the cart.
func (c *Client) RemoveRedemption(ctx context.Context, cartID string) (*domain.Cart, error) {
	if !c.Authenticated(ctx) {
		return nil, ErrUnauthenticated
	}
	var out models.CartResponse
	if err := c.do(ctx, http.MethodDelete, "/store/customers/me/points/redeem", models.RemoveRedemptionRequest{CartID: cartID}, true, "", &out); err != nil {
		return nil, err
	}
	return &out.Cart, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, authorized bool, idempotencyKey string, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	resp, err := c.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if authorized {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		if idempotencyKey != "" {
			req.Header.Set("Idempotency-Key", idempotencyKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			apiErr := readAPIError(resp)
			return nil, &retryableError{err: apiErr}
		}
		return resp, nil
	})
	if err != nil {
		c.logger.WithError(err).WithField("path", path).Debug("backend request failed")
		var re *retryableError
		if errors.As(err, &re) {
			return re.err
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// readAPIError consumes and closes the body, keeping the backend's message verbatim.
func readAPIError(resp *http.Response) *APIError {
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := ""
	if json.Unmarshal(raw, &envelope) == nil {
		msg = envelope.Message
		if msg == "" {
			msg = envelope.Error
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
