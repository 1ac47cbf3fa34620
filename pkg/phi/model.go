package phi

import "math"

// Coefficients of the logistic approximation of the standard normal CDF:
// Phi(x) ~= 1 / (1 + exp(-x * (a + b*x^2))).
const (
	logisticA = 1.5976
	logisticB = 0.070566
)

// minPositive is the smallest positive normal float64. P_later is floored
// here so -log10 stays finite; phi therefore tops out at ~307.65.
const minPositive = 0x1p-1022

// pLater returns the probability that a heartbeat arrives later than gap
// given the window's mean and standard deviation.
func pLater(gap, mean, stddev float64) float64 {
	x := (gap - mean) / stddev
	e := math.Exp(-x * (logisticA + logisticB*x*x))

	var p float64
	switch {
	case math.IsInf(e, 1):
		p = 1.0
	case e == 0:
		p = 0.0
	default:
		p = e / (1 + e)
	}

	if p < minPositive {
		return minPositive
	}
	return p
}

// phiOf converts P_later into the suspicion level. P_later of exactly 1
// would yield -0, which is normalised to 0.
func phiOf(p float64) float64 {
	v := -math.Log10(p)
	if v <= 0 {
		return 0
	}
	return v
}
