package paymaster

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryTokenLedger is the volatile TokenLedger used by the reference
// deployment: an allowance/balance map with ERC-20 transferFrom semantics.
type MemoryTokenLedger struct {
	mu         sync.Mutex
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

// NewMemoryTokenLedger creates an empty MemoryTokenLedger
func NewMemoryTokenLedger() *MemoryTokenLedger {
	return &MemoryTokenLedger{
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Mint credits a balance. Test and bootstrap helper.
func (l *MemoryTokenLedger) Mint(owner common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.balances[owner]; ok {
		l.balances[owner] = new(big.Int).Add(cur, amount)
	} else {
		l.balances[owner] = new(big.Int).Set(amount)
	}
}

// Approve sets the allowance from owner to spender
func (l *MemoryTokenLedger) Approve(owner, spender common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.allowances[owner] == nil {
		l.allowances[owner] = make(map[common.Address]*big.Int)
	}
	l.allowances[owner][spender] = new(big.Int).Set(amount)
}

// Allowance returns the remaining allowance from owner to spender
func (l *MemoryTokenLedger) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.allowances[owner][spender]; ok {
		return new(big.Int).Set(a), nil
	}
	return new(big.Int), nil
}

// TransferFrom moves amount from->to, consuming allowance granted to `to`
func (l *MemoryTokenLedger) TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	allowance, ok := l.allowances[from][to]
	if !ok || allowance.Cmp(amount) < 0 {
		return fmt.Errorf("allowance %s below transfer of %s", allowance, amount)
	}
	balance, ok := l.balances[from]
	if !ok || balance.Cmp(amount) < 0 {
		return fmt.Errorf("balance %s below transfer of %s", balance, amount)
	}

	l.allowances[from][to] = new(big.Int).Sub(allowance, amount)
	l.balances[from] = new(big.Int).Sub(balance, amount)
	if cur, ok := l.balances[to]; ok {
		l.balances[to] = new(big.Int).Add(cur, amount)
	} else {
		l.balances[to] = new(big.Int).Set(amount)
	}
	return nil
}

// Balance returns the current balance of an address
func (l *MemoryTokenLedger) Balance(owner common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.balances[owner]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}
