// Package volatility estimates annualized volatility from a window of
// historical closes.
package volatility

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

var (
	// ErrInsufficientData is returned when fewer than three prices are
	// supplied; the Bessel-corrected variance needs two log returns.
	ErrInsufficientData = errors.New("insufficient price history")

	// ErrInvalidPrice is returned for non-positive or non-finite prices.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrInvalidScale is returned for a non-positive periods-per-year factor.
	ErrInvalidScale = errors.New("invalid annualization scale")
)

// Historical returns the annualized volatility of an ordered price series.
//
// Log returns r[i] = ln(p[i]/p[i-1]) are taken between consecutive prices;
// the result is the sample standard deviation of the returns (n-1 in the
// denominator) scaled by sqrt(periodsPerYear). A constant series yields 0.
func Historical(prices []float64, periodsPerYear float64) (float64, error) {
	if !(periodsPerYear > 0) || math.IsInf(periodsPerYear, 0) {
		return 0, fmt.Errorf("%w: %v periods per year", ErrInvalidScale, periodsPerYear)
	}

	returns, err := LogReturns(prices)
	if err != nil {
		return 0, err
	}
	if len(returns) < 2 {
		return 0, fmt.Errorf("%w: %d prices, need at least 3", ErrInsufficientData, len(prices))
	}

	// stat.Variance is the unbiased (n-1) estimator for nil weights
	variance := stat.Variance(returns, nil)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance) * math.Sqrt(periodsPerYear), nil
}

// LogReturns returns ln(p[i]/p[i-1]) for i in 1..n-1.
func LogReturns(prices []float64) ([]float64, error) {
	if len(prices) < 2 {
		return nil, fmt.Errorf("%w: %d prices, need at least 2", ErrInsufficientData, len(prices))
	}
	for i, p := range prices {
		if !(p > 0) || math.IsInf(p, 0) {
			return nil, fmt.Errorf("%w: prices[%d] = %v", ErrInvalidPrice, i, p)
		}
	}

	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		out = append(out, math.Log(prices[i]/prices[i-1]))
	}
	return out, nil
}

// Tail returns the last n prices, or all of them when n <= 0 or n exceeds the
// series length. The result shares no memory with prices.
func Tail(prices []float64, n int) []float64 {
	if n <= 0 || n > len(prices) {
		n = len(prices)
	}
	out := make([]float64, n)
	copy(out, prices[len(prices)-n:])
	return out
}
