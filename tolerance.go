package guda

import (
	"fmt"
	"math"
	"strings"
)

// ToleranceConfig bounds how far an output may drift from the reference.
// A value passes if it is within AbsTol, within RelTol of the larger
// magnitude, or within ULPTol units in the last place.
type ToleranceConfig struct {
	AbsTol float32
	RelTol float32
	ULPTol int

	// CheckNaN treats two NaNs as equal.
	CheckNaN bool

	// CheckInf treats two infinities of the same sign as equal.
	CheckInf bool
}

// Tolerance preset names accepted by ParseTolerance.
const (
	ToleranceAuto    = "auto"
	ToleranceStrict  = "strict"
	ToleranceRelaxed = "relaxed"
)

// ToleranceFor returns the tolerance used to accept skip layer norm output
// of element type dt against the float64 reference. Half precision rounds
// the summed activations and the output, so it gets a much looser bound.
func ToleranceFor(dt DataType) ToleranceConfig {
	if dt == Float16 {
		return ToleranceConfig{
			AbsTol:   2e-2,
			RelTol:   1e-2,
			CheckInf: true,
		}
	}
	return ToleranceConfig{
		AbsTol:   1e-4,
		RelTol:   1e-4,
		ULPTol:   16,
		CheckInf: true,
	}
}

// Scale multiplies every bound by f. ULPTol is rounded down but kept at one
// or more when it was set.
func (tol ToleranceConfig) Scale(f float32) ToleranceConfig {
	tol.AbsTol *= f
	tol.RelTol *= f
	if tol.ULPTol > 0 {
		tol.ULPTol = max(1, int(float32(tol.ULPTol)*f))
	}
	return tol
}

// ParseTolerance resolves a preset name for element type dt. "auto" (or
// the empty string) is ToleranceFor(dt); "strict" and "relaxed" tighten it
// four times and loosen it ten times.
func ParseTolerance(name string, dt DataType) (ToleranceConfig, error) {
	switch strings.ToLower(name) {
	case "", ToleranceAuto:
		return ToleranceFor(dt), nil
	case ToleranceStrict:
		return ToleranceFor(dt).Scale(0.25), nil
	case ToleranceRelaxed:
		return ToleranceFor(dt).Scale(10), nil
	}
	return ToleranceConfig{}, NewInvalidArgError("ParseTolerance",
		fmt.Sprintf("unknown tolerance %q (want auto, strict or relaxed)", name))
}

// Float32NearEqual checks if two float32 values are equal within tolerance
func Float32NearEqual(a, b float32, tol ToleranceConfig) bool {
	fa, fb := float64(a), float64(b)
	if tol.CheckNaN && math.IsNaN(fa) && math.IsNaN(fb) {
		return true
	}
	if tol.CheckInf {
		if math.IsInf(fa, 1) && math.IsInf(fb, 1) {
			return true
		}
		if math.IsInf(fa, -1) && math.IsInf(fb, -1) {
			return true
		}
	}

	// Handles ±0.
	if a == b {
		return true
	}
	if math.IsNaN(fa) || math.IsNaN(fb) || math.IsInf(fa, 0) || math.IsInf(fb, 0) {
		return false
	}

	diff := math.Abs(fa - fb)
	if diff <= float64(tol.AbsTol) {
		return true
	}
	if diff <= math.Max(math.Abs(fa), math.Abs(fb))*float64(tol.RelTol) {
		return true
	}
	return tol.ULPTol > 0 && Float32ULPDiff(a, b) <= tol.ULPTol
}

// Float32ULPDiff computes the difference in ULPs between two float32 values.
// Values of different sign are reported as math.MaxInt32.
func Float32ULPDiff(a, b float32) int {
	aBits := math.Float32bits(a)
	bBits := math.Float32bits(b)
	if (aBits^bBits)&0x80000000 != 0 {
		return math.MaxInt32
	}
	if aBits > bBits {
		return int(aBits - bBits)
	}
	return int(bBits - aBits)
}

// VerificationResult summarizes an element-wise comparison against a
// reference. MaxAbsError and MaxRelError are taken over every finite pair;
// MaxULPError only over the values that failed.
type VerificationResult struct {
	MaxAbsError float32
	MaxRelError float32
	MaxULPError int
	NumErrors   int
	TotalItems  int
	FirstError  int // Index of first error, -1 if none

	// LengthMismatch is set when the output and reference differ in
	// length; ActualItems then holds the output length.
	LengthMismatch bool
	ActualItems    int
}

// VerifyFloat32Array compares actual against expected under tol.
func VerifyFloat32Array(expected, actual []float32, tol ToleranceConfig) VerificationResult {
	result := VerificationResult{
		TotalItems:  len(expected),
		ActualItems: len(actual),
		FirstError:  -1,
	}

	if len(expected) != len(actual) {
		result.LengthMismatch = true
		result.NumErrors = max(len(expected), len(actual))
		result.FirstError = min(len(expected), len(actual))
		result.MaxAbsError = float32(math.Inf(1))
		return result
	}

	for i := range expected {
		e, a := expected[i], actual[i]
		absDiff := float32(math.Abs(float64(e) - float64(a)))
		if !math.IsNaN(float64(absDiff)) && !math.IsInf(float64(absDiff), 0) {
			result.MaxAbsError = max(result.MaxAbsError, absDiff)
			if e != 0 {
				result.MaxRelError = max(result.MaxRelError, absDiff/float32(math.Abs(float64(e))))
			}
		}

		if Float32NearEqual(e, a, tol) {
			continue
		}
		result.NumErrors++
		if result.FirstError == -1 {
			result.FirstError = i
		}
		result.MaxULPError = max(result.MaxULPError, Float32ULPDiff(e, a))
	}
	return result
}

// IsAcceptable reports whether every value matched the reference.
func (r VerificationResult) IsAcceptable() bool {
	return !r.LengthMismatch && r.NumErrors == 0
}

// String formats the verification result for display
func (r VerificationResult) String() string {
	if r.LengthMismatch {
		return fmt.Sprintf("FAIL: length mismatch: expected %d values, got %d", r.TotalItems, r.ActualItems)
	}
	if r.NumErrors == 0 {
		return fmt.Sprintf("PASS: all %d values within tolerance (max abs error %e)", r.TotalItems, r.MaxAbsError)
	}

	errorRate := float64(r.NumErrors) / float64(r.TotalItems) * 100
	return fmt.Sprintf("FAIL: %d/%d values differ (%.2f%%)\n"+
		"  Max absolute error: %e\n"+
		"  Max relative error: %e\n"+
		"  Max ULP difference: %d\n"+
		"  First error at index: %d",
		r.NumErrors, r.TotalItems, errorRate,
		r.MaxAbsError, r.MaxRelError, r.MaxULPError,
		r.FirstError)
}
