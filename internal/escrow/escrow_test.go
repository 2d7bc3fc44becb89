package escrow_test

import (
	"context"
	"math/big"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/tesseralabs/tessera-api/internal/escrow"
	"github.com/tesseralabs/tessera-api/internal/logger"
	"github.com/tesseralabs/tessera-api/internal/mocks"
)

func TestMain(m *testing.M) {
	logger.InitLogger()
	os.Exit(m.Run())
}

var (
	buyer      = common.HexToAddress("0x1111111111111111111111111111111111111111")
	seller     = common.HexToAddress("0x2222222222222222222222222222222222222222")
	bridge     = common.HexToAddress("0x3333333333333333333333333333333333333333")
	arbitrator = common.HexToAddress("0x4444444444444444444444444444444444444444")
	stranger   = common.HexToAddress("0x5555555555555555555555555555555555555555")
)

const scope = "auction-42"

func fundedService(t *testing.T) (*escrow.Service, *escrow.MemoryLedger) {
	t.Helper()
	ledger := escrow.NewMemoryLedger()
	svc := escrow.NewService(ledger, bridge, arbitrator)
	require.NoError(t, svc.Deposit(context.Background(), scope, buyer, seller, big.NewInt(1_000), escrow.NativeAsset))
	return svc, ledger
}

func TestDeposit(t *testing.T) {
	svc, _ := fundedService(t)

	rec, err := svc.Info(scope)
	require.NoError(t, err)
	assert.Equal(t, escrow.StateFunded, rec.State)
	assert.Equal(t, buyer, rec.Buyer)
	assert.Equal(t, seller, rec.Seller)
	assert.Equal(t, big.NewInt(1_000), rec.Amount)
	assert.Equal(t, escrow.NativeAsset, rec.Asset)
	assert.False(t, rec.FundedAt.IsZero())
}

func TestDeposit_Invalid(t *testing.T) {
	ctx := context.Background()

	t.Run("double deposit", func(t *testing.T) {
		svc, _ := fundedService(t)
		err := svc.Deposit(ctx, scope, buyer, seller, big.NewInt(500), escrow.NativeAsset)
		assert.ErrorIs(t, err, escrow.ErrAlreadyFunded)
	})

	t.Run("non-positive amounts", func(t *testing.T) {
		svc := escrow.NewService(escrow.NewMemoryLedger(), bridge, arbitrator)
		assert.Error(t, svc.Deposit(ctx, scope, buyer, seller, big.NewInt(0), escrow.NativeAsset))
		assert.Error(t, svc.Deposit(ctx, scope, buyer, seller, big.NewInt(-5), escrow.NativeAsset))
		assert.Error(t, svc.Deposit(ctx, scope, buyer, seller, nil, escrow.NativeAsset))
	})

	t.Run("empty asset defaults to native", func(t *testing.T) {
		svc := escrow.NewService(escrow.NewMemoryLedger(), bridge, arbitrator)
		require.NoError(t, svc.Deposit(ctx, scope, buyer, seller, big.NewInt(100), ""))
		rec, err := svc.Info(scope)
		require.NoError(t, err)
		assert.Equal(t, escrow.NativeAsset, rec.Asset)
	})
}

func TestDeposit_HoldFailureLeavesNoRecord(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedger(ctrl)
	svc := escrow.NewService(ledger, bridge, arbitrator)

	ledger.EXPECT().Hold(gomock.Any(), buyer, big.NewInt(1_000), escrow.NativeAsset).Return(assert.AnError)

	err := svc.Deposit(context.Background(), scope, buyer, seller, big.NewInt(1_000), escrow.NativeAsset)
	assert.Error(t, err)

	_, err = svc.Info(scope)
	assert.ErrorIs(t, err, escrow.ErrInvalidState)
}

func TestRelease(t *testing.T) {
	svc, ledger := fundedService(t)
	ctx := context.Background()

	require.NoError(t, svc.Release(ctx, scope, bridge))

	rec, err := svc.Info(scope)
	require.NoError(t, err)
	assert.Equal(t, escrow.StateReleased, rec.State)
	assert.Equal(t, big.NewInt(1_000), ledger.Balance(seller, escrow.NativeAsset))
	assert.Equal(t, int64(0), ledger.Balance(buyer, escrow.NativeAsset).Int64())

	// Terminal: a second settlement attempt fails without moving value.
	err = svc.Release(ctx, scope, bridge)
	assert.ErrorIs(t, err, escrow.ErrInvalidState)
	assert.Equal(t, big.NewInt(1_000), ledger.Balance(seller, escrow.NativeAsset))
}

func TestRefund(t *testing.T) {
	svc, ledger := fundedService(t)

	require.NoError(t, svc.Refund(context.Background(), scope, bridge))

	rec, err := svc.Info(scope)
	require.NoError(t, err)
	assert.Equal(t, escrow.StateRefunded, rec.State)
	assert.Equal(t, big.NewInt(1_000), ledger.Balance(buyer, escrow.NativeAsset))
}

func TestSettlement_Authorization(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		action func(*escrow.Service) error
	}{
		{
			name:   "release by buyer",
			action: func(s *escrow.Service) error { return s.Release(ctx, scope, buyer) },
		},
		{
			name:   "release by arbitrator before dispute",
			action: func(s *escrow.Service) error { return s.Release(ctx, scope, arbitrator) },
		},
		{
			name:   "refund by seller",
			action: func(s *escrow.Service) error { return s.Refund(ctx, scope, seller) },
		},
		{
			name:   "dispute by stranger",
			action: func(s *escrow.Service) error { return s.Dispute(ctx, scope, stranger) },
		},
		{
			name:   "dispute by bridge",
			action: func(s *escrow.Service) error { return s.Dispute(ctx, scope, bridge) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := fundedService(t)
			err := tt.action(svc)
			assert.ErrorIs(t, err, escrow.ErrNotAuthorized)

			rec, infoErr := svc.Info(scope)
			require.NoError(t, infoErr)
			assert.Equal(t, escrow.StateFunded, rec.State)
		})
	}
}

func TestDispute_Lifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("buyer disputes, arbitrator refunds", func(t *testing.T) {
		svc, ledger := fundedService(t)
		require.NoError(t, svc.Dispute(ctx, scope, buyer))

		rec, err := svc.Info(scope)
		require.NoError(t, err)
		assert.Equal(t, escrow.StateDisputed, rec.State)

		// Bridge-only settlement paths no longer apply to a disputed record.
		assert.ErrorIs(t, svc.Release(ctx, scope, bridge), escrow.ErrInvalidState)

		require.NoError(t, svc.Resolve(ctx, scope, arbitrator, false))
		rec, err = svc.Info(scope)
		require.NoError(t, err)
		assert.Equal(t, escrow.StateRefunded, rec.State)
		assert.Equal(t, big.NewInt(1_000), ledger.Balance(buyer, escrow.NativeAsset))
	})

	t.Run("seller disputes, bridge releases", func(t *testing.T) {
		svc, ledger := fundedService(t)
		require.NoError(t, svc.Dispute(ctx, scope, seller))
		require.NoError(t, svc.Resolve(ctx, scope, bridge, true))

		rec, err := svc.Info(scope)
		require.NoError(t, err)
		assert.Equal(t, escrow.StateReleased, rec.State)
		assert.Equal(t, big.NewInt(1_000), ledger.Balance(seller, escrow.NativeAsset))
	})

	t.Run("resolve before dispute", func(t *testing.T) {
		svc, _ := fundedService(t)
		err := svc.Resolve(ctx, scope, arbitrator, true)
		assert.ErrorIs(t, err, escrow.ErrInvalidState)
	})

	t.Run("resolve by stranger", func(t *testing.T) {
		svc, _ := fundedService(t)
		require.NoError(t, svc.Dispute(ctx, scope, buyer))
		err := svc.Resolve(ctx, scope, stranger, true)
		assert.ErrorIs(t, err, escrow.ErrNotAuthorized)
	})

	t.Run("double dispute", func(t *testing.T) {
		svc, _ := fundedService(t)
		require.NoError(t, svc.Dispute(ctx, scope, buyer))
		err := svc.Dispute(ctx, scope, seller)
		assert.ErrorIs(t, err, escrow.ErrInvalidState)
	})
}

func TestSettle_PayFailureAbortsTransition(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedger(ctrl)
	svc := escrow.NewService(ledger, bridge, arbitrator)
	ctx := context.Background()

	ledger.EXPECT().Hold(gomock.Any(), buyer, big.NewInt(1_000), escrow.NativeAsset).Return(nil)
	require.NoError(t, svc.Deposit(ctx, scope, buyer, seller, big.NewInt(1_000), escrow.NativeAsset))

	ledger.EXPECT().Pay(gomock.Any(), seller, big.NewInt(1_000), escrow.NativeAsset).Return(assert.AnError)
	assert.Error(t, svc.Release(ctx, scope, bridge))

	// The record stays funded so the settlement can be retried.
	rec, err := svc.Info(scope)
	require.NoError(t, err)
	assert.Equal(t, escrow.StateFunded, rec.State)

	ledger.EXPECT().Pay(gomock.Any(), seller, big.NewInt(1_000), escrow.NativeAsset).Return(nil)
	require.NoError(t, svc.Release(ctx, scope, bridge))
}

func TestInfo_UnknownScope(t *testing.T) {
	svc := escrow.NewService(escrow.NewMemoryLedger(), bridge, arbitrator)
	_, err := svc.Info("no-such-scope")
	assert.ErrorIs(t, err, escrow.ErrInvalidState)
}

func TestScopesAreIndependent(t *testing.T) {
	ledger := escrow.NewMemoryLedger()
	svc := escrow.NewService(ledger, bridge, arbitrator)
	ctx := context.Background()

	require.NoError(t, svc.Deposit(ctx, "auction-1", buyer, seller, big.NewInt(100), escrow.NativeAsset))
	require.NoError(t, svc.Deposit(ctx, "auction-2", buyer, seller, big.NewInt(200), escrow.NativeAsset))

	require.NoError(t, svc.Release(ctx, "auction-1", bridge))

	rec, err := svc.Info("auction-2")
	require.NoError(t, err)
	assert.Equal(t, escrow.StateFunded, rec.State)
	assert.Equal(t, big.NewInt(100), ledger.Balance(seller, escrow.NativeAsset))
}
