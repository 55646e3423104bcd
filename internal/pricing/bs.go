// Package pricing implements closed-form Black-Scholes valuation for European
// options, its volatility sensitivity and an implied volatility solver.
//
// All functions are pure: every parameter is passed explicitly and nothing is
// cached between calls, so they can be invoked concurrently without locking.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

//
// ==========================
// Error taxonomy
// ==========================
//

var (
	// ErrInvalidInput reports a non-positive spot, strike, time to expiry or
	// market price, or an unknown option kind.
	ErrInvalidInput = errors.New("invalid pricing input")

	// ErrNoConvergence reports that the implied volatility solver exhausted
	// its iteration budget without meeting the price tolerance.
	ErrNoConvergence = errors.New("implied volatility did not converge")
)

// OptionKind distinguishes calls from puts.
type OptionKind string

const (
	Call OptionKind = "call"
	Put  OptionKind = "put"
)

// ParseKind accepts "call"/"c" and "put"/"p" in any case.
func ParseKind(s string) (OptionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c":
		return Call, nil
	case "put", "p":
		return Put, nil
	}
	return "", fmt.Errorf("%w: option kind %q", ErrInvalidInput, s)
}

// Valid reports whether k is Call or Put.
func (k OptionKind) Valid() bool {
	return k == Call || k == Put
}

// Short returns the single-letter code used in chain listings ("C" or "P").
func (k OptionKind) Short() string {
	if k == Put {
		return "P"
	}
	return "C"
}

// BlackScholesPrice calculates the fair value of a European option.
//
// Parameters:
//   - kind: Call or Put
//   - S: spot price of the underlying asset
//   - K: strike price of the option
//   - T: time to expiry in years
//   - r: risk-free interest rate (annual, as a decimal)
//   - sigma: volatility of the underlying asset (annual, as a decimal)
//
// Returns:
//
//	The theoretical price. S, K and T must be strictly positive, otherwise
//	ErrInvalidInput is returned. A degenerate volatility (sigma <= 0, or any
//	input that makes d1 non-finite) prices the option at 0.
func BlackScholesPrice(kind OptionKind, S, K, T, r, sigma float64) (float64, error) {
	if err := validate(S, K, T); err != nil {
		return 0, err
	}
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: option kind %q", ErrInvalidInput, kind)
	}

	d1, ok := computeD1(S, K, T, r, sigma)
	if !ok {
		return 0, nil
	}
	d2 := d1 - sigma*math.Sqrt(T)
	discount := K * math.Exp(-r*T)

	if kind == Call {
		return S*NormCDF(d1) - discount*NormCDF(d2), nil
	}
	return discount*NormCDF(-d2) - S*NormCDF(-d1), nil
}

// BlackScholesVega calculates ∂price/∂sigma, identical for calls and puts.
// It is used to size the Newton step of the implied volatility solver.
// Preconditions mirror BlackScholesPrice; a degenerate volatility yields 0.
func BlackScholesVega(S, K, T, r, sigma float64) (float64, error) {
	if err := validate(S, K, T); err != nil {
		return 0, err
	}

	d1, ok := computeD1(S, K, T, r, sigma)
	if !ok {
		return 0, nil
	}
	return S * NormPDF(d1) * math.Sqrt(T), nil
}

// computeD1 returns d1 and false when the volatility is degenerate.
func computeD1(S, K, T, r, sigma float64) (float64, bool) {
	if !(sigma > 0) {
		return 0, false
	}

	d1 := (math.Log(S/K) + (r+sigma*sigma/2)*T) / (sigma * math.Sqrt(T))
	if math.IsNaN(d1) || math.IsInf(d1, 0) {
		return 0, false
	}
	return d1, true
}

func validate(S, K, T float64) error {
	switch {
	case !(S > 0) || math.IsInf(S, 0):
		return fmt.Errorf("%w: spot %v", ErrInvalidInput, S)
	case !(K > 0) || math.IsInf(K, 0):
		return fmt.Errorf("%w: strike %v", ErrInvalidInput, K)
	case !(T > 0) || math.IsInf(T, 0):
		return fmt.Errorf("%w: time to expiry %v", ErrInvalidInput, T)
	}
	return nil
}
