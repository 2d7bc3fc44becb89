// Package escrow custodies settlement value per auction scope until the
// trusted bridge instructs release, refund, or dispute resolution.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/tesseralabs/tessera-api/internal/logger"
	"github.com/tesseralabs/tessera-api/internal/store"
)

// State is the escrow lifecycle state. Released and Refunded are terminal.
type State uint8

const (
	StateEmpty State = iota
	StateFunded
	StateReleased
	StateRefunded
	StateDisputed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateFunded:
		return "funded"
	case StateReleased:
		return "released"
	case StateRefunded:
		return "refunded"
	case StateDisputed:
		return "disputed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// MarshalText lets records serialize with readable state names
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the readable state names back
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "empty":
		*s = StateEmpty
	case "funded":
		*s = StateFunded
	case "released":
		*s = StateReleased
	case "refunded":
		*s = StateRefunded
	case "disputed":
		*s = StateDisputed
	default:
		return fmt.Errorf("unknown escrow state %q", text)
	}
	return nil
}

// NativeAsset identifies a native-currency deposit; anything else is a token
// contract reference.
const NativeAsset = "native"

var (
	ErrAlreadyFunded = errors.New("ESCROW_ALREADY_FUNDED")
	ErrInvalidState  = errors.New("ESCROW_INVALID_STATE")
	ErrNotAuthorized = errors.New("NOT_AUTHORIZED")
)

// Record is the custody state for one scope. Amount and Asset are immutable
// once the record is funded.
type Record struct {
	Buyer    common.Address `json:"buyer"`
	Seller   common.Address `json:"seller"`
	Amount   *big.Int       `json:"amount"`
	Asset    string         `json:"asset"`
	State    State          `json:"state"`
	FundedAt time.Time      `json:"funded_at"`
}

// Ledger abstracts the settlement chain's value movement. Hold pulls the
// deposit into custody; Pay moves custodied value out. Both are atomic on
// the chain side; a returned error means no value moved.
type Ledger interface {
	Hold(ctx context.Context, from common.Address, amount *big.Int, asset string) error
	Pay(ctx context.Context, to common.Address, amount *big.Int, asset string) error
}

// Service is the escrow state machine. Records are keyed by the keccak hash
// of the scope identifier, matching the on-chain contract's storage key.
type Service struct {
	records    store.Store[common.Hash, *Record]
	ledger     Ledger
	bridge     common.Address
	arbitrator common.Address
	clock      func() time.Time
	logger     *zap.Logger
}

// NewService wires the state machine to its ledger and the two privileged
// identities: the bridge that signals settlement outcomes and the arbitrator
// that resolves disputes.
func NewService(ledger Ledger, bridge, arbitrator common.Address) *Service {
	return &Service{
		records:    store.NewMemoryStore[common.Hash, *Record](),
		ledger:     ledger,
		bridge:     bridge,
		arbitrator: arbitrator,
		clock:      time.Now,
		logger:     logger.Log,
	}
}

// SetClock overrides the time source. Test hook.
func (s *Service) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Key returns the storage key for a scope identifier
func Key(scopeID string) common.Hash {
	return crypto.Keccak256Hash([]byte(scopeID))
}

// Info returns the current record for a scope
func (s *Service) Info(scopeID string) (Record, error) {
	rec, ok := s.records.Get(Key(scopeID))
	if !ok {
		return Record{}, fmt.Errorf("%w: no escrow for scope %q", ErrInvalidState, scopeID)
	}
	return *rec, nil
}

// Deposit funds the escrow for a scope. The ledger hold and the record write
// are a single transition: if the hold fails no record is created, and a
// second deposit on the same scope fails before any value moves.
func (s *Service) Deposit(ctx context.Context, scopeID string, buyer, seller common.Address, amount *big.Int, asset string) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("deposit amount must be positive")
	}
	if asset == "" {
		asset = NativeAsset
	}

	key := Key(scopeID)
	if _, ok := s.records.Get(key); ok {
		return fmt.Errorf("%w: scope %q", ErrAlreadyFunded, scopeID)
	}

	err := s.records.Mutate(key, func(rec *Record, ok bool) (*Record, error) {
		if ok {
			return rec, fmt.Errorf("%w: scope %q", ErrAlreadyFunded, scopeID)
		}
		if err := s.ledger.Hold(ctx, buyer, amount, asset); err != nil {
			return nil, fmt.Errorf("deposit transfer failed: %w", err)
		}
		return &Record{
			Buyer:    buyer,
			Seller:   seller,
			Amount:   new(big.Int).Set(amount),
			Asset:    asset,
			State:    StateFunded,
			FundedAt: s.clock(),
		}, nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Escrow funded",
		zap.String("scope", scopeID),
		zap.String("buyer", buyer.Hex()),
		zap.String("seller", seller.Hex()),
		zap.String("amount", amount.String()),
		zap.String("asset", asset),
	)
	return nil
}

// Release pays the full custodied amount to the seller. Bridge only.
func (s *Service) Release(ctx context.Context, scopeID string, caller common.Address) error {
	return s.settle(ctx, scopeID, caller, StateFunded, true, "released")
}

// Refund returns the full custodied amount to the buyer. Bridge only.
func (s *Service) Refund(ctx context.Context, scopeID string, caller common.Address) error {
	return s.settle(ctx, scopeID, caller, StateFunded, false, "refunded")
}

// Dispute freezes a funded escrow pending resolution. Buyer or seller only.
func (s *Service) Dispute(ctx context.Context, scopeID string, caller common.Address) error {
	key := Key(scopeID)
	err := s.records.Mutate(key, func(rec *Record, ok bool) (*Record, error) {
		if !ok || rec.State != StateFunded {
			return rec, s.invalidState(scopeID, rec, ok)
		}
		if caller != rec.Buyer && caller != rec.Seller {
			return rec, fmt.Errorf("%w: only buyer or seller may dispute", ErrNotAuthorized)
		}
		updated := *rec
		updated.State = StateDisputed
		return &updated, nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("Escrow disputed", zap.String("scope", scopeID), zap.String("caller", caller.Hex()))
	return nil
}

// Resolve settles a disputed escrow. Arbitrator or bridge only.
func (s *Service) Resolve(ctx context.Context, scopeID string, caller common.Address, releaseToSeller bool) error {
	outcome := "refunded"
	if releaseToSeller {
		outcome = "released"
	}
	return s.settle(ctx, scopeID, caller, StateDisputed, releaseToSeller, outcome)
}

// settle performs the shared pay-then-flip transition for release, refund,
// and resolve. The ledger payment runs inside the record mutation so a
// failed transfer aborts the whole transition.
func (s *Service) settle(ctx context.Context, scopeID string, caller common.Address, from State, toSeller bool, outcome string) error {
	key := Key(scopeID)
	err := s.records.Mutate(key, func(rec *Record, ok bool) (*Record, error) {
		if !ok || rec.State != from {
			return rec, s.invalidState(scopeID, rec, ok)
		}
		if err := s.authorizeSettlement(rec, caller, from); err != nil {
			return rec, err
		}

		recipient := rec.Buyer
		next := StateRefunded
		if toSeller {
			recipient = rec.Seller
			next = StateReleased
		}
		if err := s.ledger.Pay(ctx, recipient, rec.Amount, rec.Asset); err != nil {
			return rec, fmt.Errorf("settlement transfer failed: %w", err)
		}
		updated := *rec
		updated.State = next
		return &updated, nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("Escrow settled",
		zap.String("scope", scopeID),
		zap.String("outcome", outcome),
		zap.String("caller", caller.Hex()),
	)
	return nil
}

func (s *Service) authorizeSettlement(rec *Record, caller common.Address, from State) error {
	switch from {
	case StateFunded:
		if caller != s.bridge {
			return fmt.Errorf("%w: only the bridge may settle a funded escrow", ErrNotAuthorized)
		}
	case StateDisputed:
		if caller != s.bridge && caller != s.arbitrator {
			return fmt.Errorf("%w: only the arbitrator or bridge may resolve a dispute", ErrNotAuthorized)
		}
	}
	return nil
}

func (s *Service) invalidState(scopeID string, rec *Record, ok bool) error {
	if !ok {
		return fmt.Errorf("%w: no escrow for scope %q", ErrInvalidState, scopeID)
	}
	return fmt.Errorf("%w: scope %q is %s", ErrInvalidState, scopeID, rec.State)
}
