package phi

import (
	"fmt"
	"math"
)

// maxSearchSteps bounds the binary search. Halving a uint64 range 64 times
// always reaches adjacent integers, so hitting the bound means the bracket
// was not shrinking.
const maxSearchSteps = 64

// NextCrossingAt estimates the smallest timestamp t >= now at which
// Phi(t) >= threshold, holding the current statistics fixed. The answer is
// within tolerance timestamp units: Phi(t-tolerance) < threshold <= Phi(t).
//
// Phi(now) must be below threshold. The search first doubles a probe from now
// until phi reaches the threshold, then bisects the bracket. It fails with
// ErrInvariantViolation when the precondition or the bracket sign invariant
// does not hold (or phi is NaN), and with ErrSearchDidNotConverge when the
// timestamp range or the step budget is exhausted.
func (d *Detector) NextCrossingAt(now, tolerance uint64, threshold float64) (uint64, error) {
	f := func(t uint64) (float64, error) {
		v := d.Phi(t) - threshold
		if math.IsNaN(v) {
			return 0, fmt.Errorf("%w: phi(%d) - %v is NaN", ErrInvariantViolation, t, threshold)
		}
		return v, nil
	}

	fNow, err := f(now)
	if err != nil {
		return 0, err
	}
	if fNow >= 0 {
		return 0, fmt.Errorf("%w: phi(%d) = %v is not below threshold %v",
			ErrInvariantViolation, now, d.Phi(now), threshold)
	}

	lower, upper, err := d.bracket(now, f)
	if err != nil {
		return 0, err
	}
	return bisect(lower, upper, tolerance, f)
}

// bracket grows a probe geometrically from lower until f(probe) >= 0.
// Probes that stay below the threshold tighten lower. The last probe is
// clamped to MaxUint64; the search fails only when phi is still below the
// threshold there.
func (d *Detector) bracket(lower uint64, f func(uint64) (float64, error)) (uint64, uint64, error) {
	probe := lower
	for {
		switch {
		case probe == math.MaxUint64:
			return 0, 0, fmt.Errorf("%w: no crossing below timestamp %d", ErrSearchDidNotConverge, probe)
		case probe == 0:
			probe = 1
		case probe > math.MaxUint64/2:
			probe = math.MaxUint64
		default:
			probe *= 2
		}

		v, err := f(probe)
		if err != nil {
			return 0, 0, err
		}
		if v >= 0 {
			return lower, probe, nil
		}
		lower = probe
	}
}

// bisect narrows [lower, upper] while keeping f(lower) < 0 <= f(upper) and
// returns upper once the bracket is no wider than tolerance.
func bisect(lower, upper, tolerance uint64, f func(uint64) (float64, error)) (uint64, error) {
	if tolerance == 0 {
		tolerance = 1 // timestamps are integers
	}

	for step := 0; step < maxSearchSteps; step++ {
		if err := checkBracket(lower, upper, f); err != nil {
			return 0, err
		}
		if upper-lower <= tolerance {
			return upper, nil
		}

		mid := lower + (upper-lower)/2
		v, err := f(mid)
		if err != nil {
			return 0, err
		}
		if v >= 0 {
			upper = mid
		} else {
			lower = mid
		}
	}

	if upper-lower <= tolerance {
		return upper, nil
	}
	return 0, fmt.Errorf("%w: bracket [%d, %d] still wider than %d after %d steps",
		ErrSearchDidNotConverge, lower, upper, tolerance, maxSearchSteps)
}

func checkBracket(lower, upper uint64, f func(uint64) (float64, error)) error {
	lo, err := f(lower)
	if err != nil {
		return err
	}
	hi, err := f(upper)
	if err != nil {
		return err
	}
	if lower >= upper || !(lo < 0) || !(hi >= 0) {
		return fmt.Errorf("%w: bracket [%d, %d] has f = [%v, %v], want f(lower) < 0 <= f(upper)",
			ErrInvariantViolation, lower, upper, lo, hi)
	}
	return nil
}
