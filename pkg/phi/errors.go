package phi

import "errors"

var (
	// ErrInvalidConfiguration is returned by New for out-of-range options.
	ErrInvalidConfiguration = errors.New("phi: invalid configuration")

	// ErrInvariantViolation is returned by NextCrossingAt when phi(now) is
	// already at or above the threshold, when a bracket no longer satisfies
	// f(lower) < 0 <= f(upper), or when phi evaluates to NaN.
	ErrInvariantViolation = errors.New("phi: invariant violation")

	// ErrSearchDidNotConverge is returned by NextCrossingAt when the root
	// search exhausts its step budget or the timestamp range.
	ErrSearchDidNotConverge = errors.New("phi: search did not converge")
)
