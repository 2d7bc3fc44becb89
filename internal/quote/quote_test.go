package quote_test

import (
	"context"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseralabs/tessera-api/internal/ethsign"
	"github.com/tesseralabs/tessera-api/internal/logger"
	"github.com/tesseralabs/tessera-api/internal/quote"
)

func TestMain(m *testing.M) {
	logger.InitLogger()
	os.Exit(m.Run())
}

const (
	signerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	rogueKey  = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

// fixedRates returns the same settlement-units-per-fiat rate for every pair
type fixedRates struct {
	rate *big.Rat
	err  error
}

func (r fixedRates) Rate(ctx context.Context, fiatCurrency, settlementAsset string) (*big.Rat, error) {
	return r.rate, r.err
}

func newService(t *testing.T, rate *big.Rat) *quote.Service {
	t.Helper()
	key, err := ethsign.NewSigner(signerKey)
	require.NoError(t, err)
	return quote.NewService(key, fixedRates{rate: rate}, quote.DefaultAssets())
}

func TestGenerate(t *testing.T) {
	// 10 USDC per fiat major unit
	svc := newService(t, big.NewRat(10, 1))

	q, err := svc.Generate(context.Background(), "auction-42", 100, "USD", "USDC", 5*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, "auction-42", q.ScopeID)
	assert.Equal(t, int64(10_000), q.FiatAmountMinor)
	assert.Equal(t, "USD", q.FiatCurrency)
	assert.Equal(t, "USDC", q.SettlementAsset)
	// 100 * 10 = 1000 units at 6 decimals
	assert.Equal(t, big.NewInt(1_000_000_000), q.SettlementAmount)
	assert.Equal(t, quote.MaxSlippageBps, q.MaxSlippageBps)
	assert.Greater(t, q.ValidUntil, uint64(time.Now().Unix()))
	assert.Len(t, q.Signature, 65)
}

func TestGenerate_MinorUnitRounding(t *testing.T) {
	// 99.99 has no exact binary representation; the minor-unit conversion
	// must still land on 9999.
	svc := newService(t, big.NewRat(1, 1))
	q, err := svc.Generate(context.Background(), "s", 99.99, "USD", "USDC", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(9_999), q.FiatAmountMinor)
}

func TestGenerate_FractionalRateFloors(t *testing.T) {
	// 1/3 of a native token per fiat unit: 18-decimal result is floored,
	// never rounded up.
	svc := newService(t, big.NewRat(1, 3))
	q, err := svc.Generate(context.Background(), "s", 1, "USD", "native", time.Minute)
	require.NoError(t, err)

	expected, _ := new(big.Int).SetString("333333333333333333", 10)
	assert.Equal(t, expected, q.SettlementAmount)
}

func TestGenerate_Invalid(t *testing.T) {
	svc := newService(t, big.NewRat(1, 1))
	ctx := context.Background()

	tests := []struct {
		name       string
		amount     float64
		asset      string
		wantAmount bool
	}{
		{name: "zero amount", amount: 0, asset: "USDC", wantAmount: true},
		{name: "negative amount", amount: -5, asset: "USDC", wantAmount: true},
		{name: "unknown asset", amount: 100, asset: "DOGE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Generate(ctx, "s", tt.amount, "USD", tt.asset, time.Minute)
			require.Error(t, err)
			if tt.wantAmount {
				assert.ErrorIs(t, err, quote.ErrInvalidAmount)
			}
		})
	}
}

func TestGenerate_RateProviderFailure(t *testing.T) {
	key, err := ethsign.NewSigner(signerKey)
	require.NoError(t, err)
	svc := quote.NewService(key, fixedRates{err: assert.AnError}, quote.DefaultAssets())

	_, err = svc.Generate(context.Background(), "s", 100, "USD", "USDC", time.Minute)
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	svc := newService(t, big.NewRat(10, 1))
	q, err := svc.Generate(context.Background(), "auction-42", 100, "USD", "USDC", 5*time.Minute)
	require.NoError(t, err)

	assert.True(t, svc.Verify(q))

	tests := []struct {
		name   string
		mutate func(*quote.Quote)
	}{
		{name: "scope changed", mutate: func(q *quote.Quote) { q.ScopeID = "auction-43" }},
		{name: "fiat amount changed", mutate: func(q *quote.Quote) { q.FiatAmountMinor++ }},
		{name: "currency changed", mutate: func(q *quote.Quote) { q.FiatCurrency = "EUR" }},
		{name: "settlement amount changed", mutate: func(q *quote.Quote) {
			q.SettlementAmount = new(big.Int).Add(q.SettlementAmount, big.NewInt(1))
		}},
		{name: "validity extended", mutate: func(q *quote.Quote) { q.ValidUntil += 3600 }},
		{name: "signature truncated", mutate: func(q *quote.Quote) { q.Signature = q.Signature[:64] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tampered := *q
			tampered.SettlementAmount = new(big.Int).Set(q.SettlementAmount)
			tt.mutate(&tampered)
			assert.False(t, svc.Verify(&tampered))
		})
	}
}

func TestVerify_ExpiredQuoteStillVerifies(t *testing.T) {
	// Expiry is the caller's check, not part of signature verification.
	svc := newService(t, big.NewRat(1, 1))
	svc.SetClock(func() time.Time { return time.Unix(1_000_000, 0) })

	q, err := svc.Generate(context.Background(), "s", 100, "USD", "USDC", time.Minute)
	require.NoError(t, err)
	assert.Less(t, q.ValidUntil, uint64(time.Now().Unix()))
	assert.True(t, svc.Verify(q))
}

func TestVerify_WrongIssuer(t *testing.T) {
	svc := newService(t, big.NewRat(1, 1))
	q, err := svc.Generate(context.Background(), "s", 100, "USD", "USDC", time.Minute)
	require.NoError(t, err)

	rogue, err := ethsign.NewSigner(rogueKey)
	require.NoError(t, err)
	resigned := *q
	sig, err := rogue.SignDigest(quote.Digest(q.ScopeID, q.FiatAmountMinor, q.FiatCurrency, q.SettlementAmount, q.ValidUntil))
	require.NoError(t, err)
	resigned.Signature = sig

	assert.False(t, svc.Verify(&resigned))
}

func TestVerify_Nil(t *testing.T) {
	svc := newService(t, big.NewRat(1, 1))
	assert.False(t, svc.Verify(nil))
	assert.False(t, svc.Verify(&quote.Quote{}))
}
