package escrow

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryLedger is the volatile Ledger used by the reference deployment. It
// tracks the custodied balance per asset so a payout can never exceed what
// was deposited, which is the same invariant the settlement contract
// enforces.
type MemoryLedger struct {
	mu       sync.Mutex
	custody  map[string]*big.Int
	balances map[common.Address]map[string]*big.Int
}

// NewMemoryLedger creates an empty MemoryLedger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		custody:  make(map[string]*big.Int),
		balances: make(map[common.Address]map[string]*big.Int),
	}
}

// Hold moves amount of asset from the depositor into custody
func (l *MemoryLedger) Hold(ctx context.Context, from common.Address, amount *big.Int, asset string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.custody[asset]; ok {
		l.custody[asset] = new(big.Int).Add(cur, amount)
	} else {
		l.custody[asset] = new(big.Int).Set(amount)
	}
	return nil
}

// Pay moves amount of asset out of custody to the recipient
func (l *MemoryLedger) Pay(ctx context.Context, to common.Address, amount *big.Int, asset string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	held, ok := l.custody[asset]
	if !ok || held.Cmp(amount) < 0 {
		return fmt.Errorf("custody balance %s below payout %s for asset %s", held, amount, asset)
	}
	l.custody[asset] = new(big.Int).Sub(held, amount)

	if l.balances[to] == nil {
		l.balances[to] = make(map[string]*big.Int)
	}
	if cur, ok := l.balances[to][asset]; ok {
		l.balances[to][asset] = new(big.Int).Add(cur, amount)
	} else {
		l.balances[to][asset] = new(big.Int).Set(amount)
	}
	return nil
}

// Balance returns what the ledger has paid out to an address so far
func (l *MemoryLedger) Balance(addr common.Address, asset string) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.balances[addr][asset]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}
