package sponsor

import "fmt"

// Code identifies the exact policy rule that rejected a sponsorship request.
// Codes are part of the API surface; handlers return them verbatim so callers
// can branch without string matching on messages.
type Code string

const (
	CodePolicyNotFound     Code = "POLICY_NOT_FOUND"
	CodePolicyExpired      Code = "POLICY_EXPIRED"
	CodeScopeMismatch      Code = "SCOPE_MISMATCH"
	CodeSelectorDisallowed Code = "SELECTOR_DISALLOWED"
	CodeRateLimit          Code = "RATE_LIMIT"
	CodeHourlyLimit        Code = "HOURLY_LIMIT"
)

// PolicyError carries the rejection code plus a human-readable reason
type PolicyError struct {
	Code   Code
	Reason string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Is makes errors.Is match on the code, so callers can compare against the
// exported sentinel values below without caring about the reason text.
func (e *PolicyError) Is(target error) bool {
	t, ok := target.(*PolicyError)
	return ok && t.Code == e.Code
}

var (
	ErrPolicyNotFound     = &PolicyError{Code: CodePolicyNotFound}
	ErrPolicyExpired      = &PolicyError{Code: CodePolicyExpired}
	ErrScopeMismatch      = &PolicyError{Code: CodeScopeMismatch}
	ErrSelectorDisallowed = &PolicyError{Code: CodeSelectorDisallowed}
	ErrRateLimit          = &PolicyError{Code: CodeRateLimit}
	ErrHourlyLimit        = &PolicyError{Code: CodeHourlyLimit}
)

func policyErr(code Code, format string, args ...interface{}) *PolicyError {
	return &PolicyError{Code: code, Reason: fmt.Sprintf(format, args...)}
}
