// Package account renders the customer's coin history page.
package account

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/punchamoorthee/coinledger/internal/domain"
	"github.com/punchamoorthee/coinledger/internal/ledger"
	"github.com/punchamoorthee/coinledger/internal/pricing"
)

// ErrNotFound is returned instead of the page for a visitor without a session.
var ErrNotFound = errors.New("page not found")

const (
	EmptyMessage = "No transactions yet"
	timeLayout   = "Jan 2, 2006, 03:04 PM"
)

// Tone is the badge colour of a history row.
type Tone string

const (
	ToneGreen Tone = "green"
	ToneRed   Tone = "red"
	ToneGrey  Tone = "grey"
)

func toneOf(t domain.TransactionType) Tone {
	switch t {
	case domain.TransactionEarn:
		return ToneGreen
	case domain.TransactionSpend:
		return ToneRed
	default:
		return ToneGrey
	}
}

// Session reports whether a customer is signed in.
type Session interface {
	Authenticated(ctx context.Context) bool
}

// Row is one rendered ledger entry.
type Row struct {
	ID     string
	Type   domain.TransactionType
	Tone   Tone
	Amount string
	Delta  int64
	Reason string
	When   time.Time
}

func (r Row) Badge() string {
	s := string(r.Type)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (r Row) Date() string { return r.When.Local().Format(timeLayout) }

// HistoryView is the page model.
type HistoryView struct {
	Balance int64
	Rows    []Row
}

func (h HistoryView) Empty() bool { return len(h.Rows) == 0 }

// Load builds the page. When the snapshot cannot be read the balance shows as
// zero and the history as empty.
func Load(ctx context.Context, session Session, reader *ledger.Reader) (*HistoryView, error) {
	if !session.Authenticated(ctx) {
		return nil, ErrNotFound
	}
	snap, ok := reader.Snapshot(ctx)
	if !ok {
		return &HistoryView{}, nil
	}
	return build(snap), nil
}

func build(snap *domain.PointsSnapshot) *HistoryView {
	h := &HistoryView{Balance: snap.Coins, Rows: make([]Row, 0, len(snap.Transactions))}
	for _, txn := range snap.Transactions {
		reason := "-"
		if txn.Reason != nil && strings.TrimSpace(*txn.Reason) != "" {
			reason = *txn.Reason
		}
		h.Rows = append(h.Rows, Row{
			ID:     txn.ID,
			Type:   txn.Type,
			Tone:   toneOf(txn.Type),
			Amount: txn.Sign() + strings.TrimSuffix(pricing.FormatCoins(txn.Magnitude()), " Coins"),
			Delta:  txn.Delta(),
			Reason: reason,
			When:   txn.CreatedAt,
		})
	}
	return h
}

// Render writes the page as aligned plain text.
func (h *HistoryView) Render(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%s Available\n\nTransaction History\n", pricing.FormatCoins(h.Balance)); err != nil {
		return err
	}
	if h.Empty() {
		_, err := fmt.Fprintln(w, EmptyMessage)
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range h.Rows {
		fmt.Fprintf(tw, "[%s]\t%s\t%s\t%s\n", r.Badge(), r.Reason, r.Date(), r.Amount)
	}
	return tw.Flush()
}
