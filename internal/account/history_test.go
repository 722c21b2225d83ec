package account

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/coinledger/internal/domain"
	"github.com/punchamoorthee/coinledger/internal/ledger"
)

type session bool

func (s session) Authenticated(context.Context) bool { return bool(s) }

type source struct {
	snap *domain.PointsSnapshot
	err  error
}

func (s source) CustomerPoints(context.Context) (*domain.PointsSnapshot, error) { return s.snap, s.err }

func strp(s string) *string { return &s }

func TestLoadUnauthenticatedIsNotFound(t *testing.T) {
	_, err := Load(context.Background(), session(false), ledger.NewReader(source{}, nil, "", nil, nil))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadUnavailableShowsZero(t *testing.T) {
	r := ledger.NewReader(source{err: errors.New("boom")}, nil, "cus_1", nil, nil)
	h, err := Load(context.Background(), session(true), r)
	require.NoError(t, err)
	assert.Equal(t, int64(0), h.Balance)
	assert.True(t, h.Empty())

	var buf bytes.Buffer
	require.NoError(t, h.Render(&buf))
	assert.Contains(t, buf.String(), "0 Coins Available")
	assert.Contains(t, buf.String(), EmptyMessage)
}

func TestLoadRows(t *testing.T) {
	at := time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)
	snap := &domain.PointsSnapshot{
		Coins: 3800,
		Transactions: []domain.PointTransaction{
			{ID: "ptx_3", Type: domain.TransactionAdjust, Points: 1200, Reason: strp("Redemption reverted"), CreatedAt: at},
			{ID: "ptx_2", Type: domain.TransactionSpend, Points: 1200, CreatedAt: at},
			{ID: "ptx_1", Type: domain.TransactionEarn, Points: 5000, Reason: strp("Welcome bonus"), CreatedAt: at},
		},
	}
	h, err := Load(context.Background(), session(true), ledger.NewReader(source{snap: snap}, nil, "cus_1", nil, nil))
	require.NoError(t, err)
	require.Len(t, h.Rows, 3)

	assert.Equal(t, ToneGrey, h.Rows[0].Tone)
	assert.Equal(t, "+1,200", h.Rows[0].Amount)
	assert.Equal(t, "Adjust", h.Rows[0].Badge())

	assert.Equal(t, ToneRed, h.Rows[1].Tone)
	assert.Equal(t, "-1,200", h.Rows[1].Amount)
	assert.Equal(t, "-", h.Rows[1].Reason)

	assert.Equal(t, ToneGreen, h.Rows[2].Tone)
	assert.Equal(t, "+5,000", h.Rows[2].Amount)
	assert.Equal(t, int64(5000), h.Rows[2].Delta)

	var buf bytes.Buffer
	require.NoError(t, h.Render(&buf))
	assert.Contains(t, buf.String(), "3,800 Coins Available")
	assert.Contains(t, buf.String(), "Welcome bonus")
	assert.NotContains(t, buf.String(), EmptyMessage)
}
