package cms

import (
	"fmt"
	"math"
	"math/bits"
)

// SizeofCounter is the width in bytes of a single sketch counter.
const SizeofCounter = 8

// MaxSizeBytes caps the counter matrix of a single sketch at 1 GiB.
const MaxSizeBytes = 1 << 30

// roundingTolerance absorbs float noise so that RowsFromGamma(GammaFromRows(d)) == d.
const roundingTolerance = 1e-9

// RowsFromGamma returns the number of rows d = ceil(ln(1/gamma)) needed so that the
// probability of an estimate exceeding its error bound is at most gamma.
func RowsFromGamma(gamma float64) uint64 {
	d := math.Log(1 / gamma)
	return max(1, ceil(d))
}

// ColsFromEps returns the number of columns w = ceil(e/eps) needed for a relative error of eps.
func ColsFromEps(eps float64) uint64 {
	w := math.E / eps
	return max(1, ceil(w))
}

// GammaFromRows is the inverse of RowsFromGamma: gamma = e^(-d).
func GammaFromRows(rows uint64) float64 {
	return math.Exp(-float64(rows))
}

// EpsFromCols is the inverse of ColsFromEps: eps = e/w.
func EpsFromCols(cols uint64) float64 {
	return math.E / float64(cols)
}

// SizeBytes returns the memory footprint of the counter matrix of a rows x cols sketch.
func SizeBytes(rows, cols uint64) uint64 {
	return rows * cols * SizeofCounter
}

// CheckSize returns ErrZeroDimension or ErrTooLarge if a rows x cols sketch cannot be built.
func CheckSize(rows, cols uint64) error {
	if rows == 0 || cols == 0 {
		return fmt.Errorf("%w: got %dx%d", ErrZeroDimension, rows, cols)
	}
	hi, n := bits.Mul64(rows, cols)
	if hi != 0 || n > MaxSizeBytes/SizeofCounter {
		return fmt.Errorf("%w: %dx%d exceeds %d bytes", ErrTooLarge, rows, cols, MaxSizeBytes)
	}
	return nil
}

// ValidGamma reports whether gamma lies in the open interval (0,1).
func ValidGamma(gamma float64) bool { return gamma > 0 && gamma < 1 }

// ValidEps reports whether eps lies in the open interval (0,1).
func ValidEps(eps float64) bool { return eps > 0 && eps < 1 }

func ceil(x float64) uint64 {
	if !(x > 0) {
		return 0
	}
	if x >= math.MaxUint64 {
		return math.MaxUint64
	}
	r := math.Round(x)
	if math.Abs(x-r) < roundingTolerance {
		return uint64(r)
	}
	return uint64(math.Ceil(x))
}
