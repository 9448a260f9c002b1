// Package cms implements a Count-Min Sketch frequency estimator.
//
// A Sketch never undercounts: Estimate(key) is always at least the number of times key was
// counted since the last Clear. With probability at least 1-gamma it overcounts by no more than
// eps times the total count, where gamma and eps are related to the sketch dimensions by the
// functions in sizing.go.
//
// A Sketch is not safe for concurrent use; callers serialize access.
package cms

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"math/rand/v2"

	"github.com/OneOfOne/xxhash"
)

var (
	// ErrZeroDimension is returned when a sketch is requested with zero rows or columns.
	ErrZeroDimension = errors.New("cms: rows and cols must be at least 1")
	// ErrInvalidGamma is returned when gamma is outside (0,1).
	ErrInvalidGamma = errors.New("cms: gamma must be in (0,1)")
	// ErrInvalidEps is returned when eps is outside (0,1).
	ErrInvalidEps = errors.New("cms: eps must be in (0,1)")
	// ErrTooLarge is returned when the counter matrix would exceed MaxSizeBytes.
	ErrTooLarge = errors.New("cms: sketch is too large")
)

// Sketch is a rows x cols matrix of uint64 counters with one hash seed per row.
//
// Counters saturate at math.MaxUint64 instead of wrapping around.
type Sketch struct {
	rows, cols uint64
	seeds      []uint64
	counters   []uint64 // row-major, len == rows*cols
}

// Option configures a Sketch in New.
type Option func(*Sketch)

// WithSeeds fixes the per-row hash seeds. Seeds beyond the row count are ignored; missing seeds
// are drawn at random.
func WithSeeds(seeds ...uint64) Option {
	return func(s *Sketch) { s.seeds = append(s.seeds[:0], seeds...) }
}

// New returns an empty sketch with the given dimensions.
func New(rows, cols uint64, opts ...Option) (*Sketch, error) {
	if err := CheckSize(rows, cols); err != nil {
		return nil, err
	}

	out := Sketch{rows: rows, cols: cols}
	for _, o := range opts {
		o(&out)
	}

	if uint64(len(out.seeds)) > rows {
		out.seeds = out.seeds[:rows]
	}
	for uint64(len(out.seeds)) < rows {
		out.seeds = append(out.seeds, rand.Uint64())
	}
	out.counters = make([]uint64, rows*cols)

	return &out, nil
}

// NewWithEstimates returns an empty sketch sized for the error probability gamma and the
// relative error eps.
func NewWithEstimates(gamma, eps float64, opts ...Option) (*Sketch, error) {
	if !ValidGamma(gamma) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidGamma, gamma)
	}
	if !ValidEps(eps) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidEps, eps)
	}
	return New(RowsFromGamma(gamma), ColsFromEps(eps), opts...)
}

func (me *Sketch) Rows() uint64 { return me.rows }

func (me *Sketch) Cols() uint64 { return me.cols }

// Gamma returns the error probability bound implied by the number of rows.
func (me *Sketch) Gamma() float64 { return GammaFromRows(me.rows) }

// Eps returns the relative error bound implied by the number of columns.
func (me *Sketch) Eps() float64 { return EpsFromCols(me.cols) }

// SizeBytes returns the size of the counter matrix in bytes.
func (me *Sketch) SizeBytes() uint64 { return SizeBytes(me.rows, me.cols) }

func (me *Sketch) index(key string, row uint64) uint64 {
	column := xxhash.ChecksumString64S(key, me.seeds[row]) % me.cols
	return row*me.cols + column
}

// Update adds delta to the key's counter in every row.
func (me *Sketch) Update(key string, delta uint64) {
	for row := range me.rows {
		i := me.index(key, row)
		sum, carry := bits.Add64(me.counters[i], delta, 0)
		if carry != 0 {
			sum = math.MaxUint64
		}
		me.counters[i] = sum
	}
}

// Estimate returns the minimum of the key's counters across all rows.
func (me *Sketch) Estimate(key string) uint64 {
	out := uint64(math.MaxUint64)
	for row := range me.rows {
		out = min(out, me.counters[me.index(key, row)])
	}
	return out
}

// Clear zeroes every counter. The dimensions and hash seeds are kept.
func (me *Sketch) Clear() {
	clear(me.counters)
}
