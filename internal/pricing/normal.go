package pricing

import (
	"math"

	gaussian "github.com/chobie/go-gaussian"
)

// Abramowitz & Stegun 7.1.26 coefficients for erf. Max absolute error 1.5e-7.
const (
	erfA1 = 0.254829592
	erfA2 = -0.284496736
	erfA3 = 1.421413741
	erfA4 = -1.453152027
	erfA5 = 1.061405429
	erfP  = 0.3275911
)

// standardNormal is read-only after init and safe for concurrent use.
var standardNormal = gaussian.NewGaussian(0, 1)

// NormCDF returns the cumulative distribution function of the standard
// normal distribution at x, using the Abramowitz-Stegun erf approximation.
//
// NormCDF(0) is exactly 0.5 and NormCDF(-x) == 1 - NormCDF(x) up to rounding.
func NormCDF(x float64) float64 {
	return 0.5 * (1.0 + erf(x/math.Sqrt2))
}

// NormPDF returns the standard normal density 1/sqrt(2π)·exp(-x²/2).
func NormPDF(x float64) float64 {
	return standardNormal.Pdf(x)
}

// erf is the rational approximation applied to |x| and sign-corrected.
func erf(x float64) float64 {
	if x == 0 {
		return 0
	}

	sign := 1.0
	if x < 0 {
		sign = -1.0
		x = -x
	}

	t := 1.0 / (1.0 + erfP*x)
	y := 1.0 - (((((erfA5*t+erfA4)*t)+erfA3)*t+erfA2)*t+erfA1)*t*math.Exp(-x*x)

	return sign * y
}
