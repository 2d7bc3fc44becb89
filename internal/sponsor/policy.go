package sponsor

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/tesseralabs/tessera-api/internal/logger"
)

const (
	// DefaultWindow is the rolling issuance window applied per beneficiary
	DefaultWindow = time.Hour
	// DefaultWindowCap is the maximum number of authorizations issued to a
	// single beneficiary inside the rolling window, across all scopes
	DefaultWindowCap = 20
)

// Policy states who may be sponsored, for which auction scope, against which
// call targets/selectors, how often, and until when. Policies are immutable
// once registered; re-registration overwrites and resets usage.
type Policy struct {
	Beneficiary      common.Address
	Scope            string
	AllowedSelectors []string
	AllowedTargets   []common.Address
	MaxOpsPerScope   int
	ExpiresAt        time.Time
}

type usageKey struct {
	beneficiary common.Address
	scope       string
}

// PolicyStore tracks sponsorship policies, per-scope usage counters, and
// per-beneficiary rolling issuance windows. CheckAndReserve is the single
// write path into the counters; one mutex serializes the whole
// check-then-increment sequence so two concurrent requests for the same
// beneficiary cannot both pass the quota check.
type PolicyStore struct {
	mu        sync.Mutex
	policies  map[common.Address]Policy
	usage     map[usageKey]int
	windows   map[common.Address][]time.Time
	window    time.Duration
	windowCap int
	clock     func() time.Time
	logger    *zap.Logger
}

// NewPolicyStore creates a PolicyStore with the given rolling-window
// parameters. Pass DefaultWindow/DefaultWindowCap outside of tests.
func NewPolicyStore(window time.Duration, windowCap int) *PolicyStore {
	return &PolicyStore{
		policies:  make(map[common.Address]Policy),
		usage:     make(map[usageKey]int),
		windows:   make(map[common.Address][]time.Time),
		window:    window,
		windowCap: windowCap,
		clock:     time.Now,
		logger:    logger.Log,
	}
}

// SetClock overrides the time source. Test hook.
func (s *PolicyStore) SetClock(clock func() time.Time) {
	s.clock = clock
}

// RegisterPolicy stores or overwrites the policy for its beneficiary and
// resets the beneficiary's usage counters. The rolling issuance window is
// deliberately not reset: it is an abuse control across re-registrations.
func (s *PolicyStore) RegisterPolicy(p Policy) error {
	if p.MaxOpsPerScope < 0 {
		return errors.New("maxOpsPerScope must not be negative")
	}
	if p.Scope == "" {
		return errors.New("policy scope is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.policies[p.Beneficiary] = p
	for key := range s.usage {
		if key.beneficiary == p.Beneficiary {
			delete(s.usage, key)
		}
	}

	if s.logger != nil {
		s.logger.Info("Sponsorship policy registered",
			zap.String("beneficiary", p.Beneficiary.Hex()),
			zap.String("scope", p.Scope),
			zap.Int("max_ops", p.MaxOpsPerScope),
			zap.Time("expires_at", p.ExpiresAt),
		)
	}
	return nil
}

// GetPolicy returns the registered policy for a beneficiary, if any
func (s *PolicyStore) GetPolicy(beneficiary common.Address) (Policy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[beneficiary]
	return p, ok
}

// Usage returns the number of authorizations already issued for the pair
func (s *PolicyStore) Usage(scope string, beneficiary common.Address) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage[usageKey{beneficiary: beneficiary, scope: scope}]
}

// CheckAndReserve evaluates the policy rules in their documented order and,
// on success, atomically consumes one unit of quota: the per-scope usage
// counter is incremented and the issuance timestamp is appended to the
// beneficiary's rolling window. Callers never mutate the counters directly.
//
// Evaluation order: POLICY_NOT_FOUND, POLICY_EXPIRED, SCOPE_MISMATCH,
// SELECTOR_DISALLOWED, RATE_LIMIT, HOURLY_LIMIT.
func (s *PolicyStore) CheckAndReserve(scope string, beneficiary common.Address, callSelector string) error {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	policy, ok := s.policies[beneficiary]
	if !ok {
		return policyErr(CodePolicyNotFound, "no sponsorship policy registered for %s", beneficiary.Hex())
	}
	if now.After(policy.ExpiresAt) {
		return policyErr(CodePolicyExpired, "policy for %s expired at %s", beneficiary.Hex(), policy.ExpiresAt.UTC().Format(time.RFC3339))
	}
	if policy.Scope != scope {
		return policyErr(CodeScopeMismatch, "policy is bound to scope %q, not %q", policy.Scope, scope)
	}
	if len(policy.AllowedSelectors) > 0 && !selectorAllowed(policy.AllowedSelectors, callSelector) {
		return policyErr(CodeSelectorDisallowed, "selector %q is not in the policy allowlist", callSelector)
	}

	key := usageKey{beneficiary: beneficiary, scope: scope}
	if s.usage[key] >= policy.MaxOpsPerScope {
		return policyErr(CodeRateLimit, "scope quota of %d operations exhausted", policy.MaxOpsPerScope)
	}

	// Prune entries that fell out of the rolling window before counting.
	pruned := s.windows[beneficiary][:0]
	for _, ts := range s.windows[beneficiary] {
		if now.Sub(ts) < s.window {
			pruned = append(pruned, ts)
		}
	}
	if len(pruned) >= s.windowCap {
		s.windows[beneficiary] = pruned
		return policyErr(CodeHourlyLimit, "beneficiary reached %d issuances within %s", s.windowCap, s.window)
	}

	s.usage[key]++
	s.windows[beneficiary] = append(pruned, now)
	return nil
}

func selectorAllowed(allowlist []string, selector string) bool {
	for _, allowed := range allowlist {
		if strings.EqualFold(allowed, selector) {
			return true
		}
	}
	return false
}
