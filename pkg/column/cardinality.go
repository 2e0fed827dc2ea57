// pkg/column/cardinality.go
package column

import (
	"math"
	"math/bits"
)

// ExactCountThreshold is the number of distinct values up to which the
// estimator counts exactly with a hash set. Beyond it the estimator
// switches to a fixed-memory HyperLogLog sketch. Tunable, not a
// compatibility guarantee.
const ExactCountThreshold = 10000

// hllPrecision gives 2^12 = 4096 registers, ~1.6% standard error.
const hllPrecision = 12

// CardinalityEstimate reports how many distinct values a column holds.
type CardinalityEstimate struct {
	Distinct   int64
	Total      int64
	Exact      bool
	SampleRate float64
}

// Uniqueness returns distinct/total, the ratio the optimizer's selectivity
// model and the codec chooser both consume.
func (e CardinalityEstimate) Uniqueness() float64 {
	if e.Total == 0 {
		return 0
	}
	return float64(e.Distinct) / float64(e.Total)
}

// EstimateCardinality returns the column's distinct-count estimate. The
// result is exact while the column stays under ExactCountThreshold distinct
// values, probabilistic afterwards. Every row is observed either way, so
// SampleRate is always 1.0; accuracy in sketch mode is bounded by the
// register count, not by sampling.
func (c *Column) EstimateCardinality() CardinalityEstimate {
	c.refresh()
	distinct, exact := c.stats.estimator.estimate()
	return CardinalityEstimate{
		Distinct:   distinct,
		Total:      int64(len(c.values)),
		Exact:      exact,
		SampleRate: 1.0,
	}
}

// estimator counts distinct value hashes, exactly up to
// ExactCountThreshold and with a HyperLogLog sketch beyond it.
type estimator struct {
	exact     map[uint64]struct{}
	registers []uint8 // nil until the exact set overflows
}

func newEstimator() *estimator {
	return &estimator{exact: make(map[uint64]struct{})}
}

func (e *estimator) add(hash uint64) {
	if e.registers == nil {
		e.exact[hash] = struct{}{}
		if len(e.exact) <= ExactCountThreshold {
			return
		}
		// Overflow: fold the exact set into a fresh sketch and drop it.
		e.registers = make([]uint8, 1<<hllPrecision)
		for h := range e.exact {
			e.addToSketch(h)
		}
		e.exact = nil
		return
	}
	e.addToSketch(hash)
}

func (e *estimator) addToSketch(hash uint64) {
	idx := hash >> (64 - hllPrecision)
	rank := uint8(bits.LeadingZeros64(hash<<hllPrecision|1)) + 1
	if rank > e.registers[idx] {
		e.registers[idx] = rank
	}
}

// estimate returns the distinct count and whether it is exact.
func (e *estimator) estimate() (int64, bool) {
	if e.registers == nil {
		return int64(len(e.exact)), true
	}

	m := float64(len(e.registers))
	alpha := 0.7213 / (1 + 1.079/m)
	var sum float64
	zeros := 0
	for _, r := range e.registers {
		sum += 1 / math.Pow(2, float64(r))
		if r == 0 {
			zeros++
		}
	}
	est := alpha * m * m / sum

	// Small-range correction: linear counting while registers are sparse.
	if est <= 2.5*m && zeros > 0 {
		est = m * math.Log(m/float64(zeros))
	}
	return int64(est + 0.5), false
}
