package pricing

import (
	"fmt"
	"math"
)

const (
	ivLow     = 0.01
	ivHigh    = 5.0
	ivTol     = 1e-5
	ivMaxIter = 100
	ivMinVega = 1e-4
)

// ImpliedVolatility inverts BlackScholesPrice for the volatility that
// reproduces marketPrice.
//
// The solver is a bounded Newton-Raphson iteration seeded with seed. The
// iterate never leaves the bracket [0.01, 5.0]: when vega is too small for a
// stable step, or the Newton candidate falls outside the bracket, it takes a
// bisection step instead. After every step the bracket shrinks on the side
// whose price is on the wrong side of marketPrice.
//
// Returns:
//   - the volatility once |price - marketPrice| < 1e-5
//   - ErrInvalidInput for a non-positive marketPrice, S, K or T (no iterations run)
//   - ErrNoConvergence after 100 iterations; no best-effort value is returned
func ImpliedVolatility(kind OptionKind, marketPrice, S, K, T, r, seed float64) (float64, error) {
	if !(marketPrice > 0) || math.IsInf(marketPrice, 0) {
		return 0, fmt.Errorf("%w: market price %v", ErrInvalidInput, marketPrice)
	}
	if err := validate(S, K, T); err != nil {
		return 0, err
	}
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: option kind %q", ErrInvalidInput, kind)
	}

	low, high := ivLow, ivHigh
	sigma := seed

	for i := 0; i < ivMaxIter; i++ {
		price, _ := BlackScholesPrice(kind, S, K, T, r, sigma)
		diff := price - marketPrice
		if math.Abs(diff) < ivTol {
			return sigma, nil
		}

		vega, _ := BlackScholesVega(S, K, T, r, sigma)
		if vega < ivMinVega {
			sigma = (low + high) / 2
		} else {
			next := sigma - diff/vega
			if next < low || next > high {
				sigma = (low + high) / 2
			} else {
				sigma = next
			}
		}

		// price is non-decreasing in sigma, so the bracket keeps the root
		repriced, _ := BlackScholesPrice(kind, S, K, T, r, sigma)
		if repriced > marketPrice {
			high = sigma
		} else {
			low = sigma
		}
	}

	return 0, fmt.Errorf("%w: %d iterations, last estimate %.6f", ErrNoConvergence, ivMaxIter, sigma)
}
