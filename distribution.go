package josh

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Distribution is the backing store for a Distribution-kind Value (§3). A
// realized distribution holds a finite slice of values; a virtual
// distribution defers sampling to a generator function until Realize is
// called. Reductions (mean/std/min/max/sum) use gonum's stat and floats
// packages, matching the teacher's own use of gonum.org/v1/gonum
// (`vargrid.go` imports `gonum.org/v1/gonum/floats`).
type Distribution struct {
	units   Units
	values  []float64
	virtual bool
	sample  func(rng *rand.Rand) float64
}

// NewRealizedDistribution builds a Distribution from a finite sequence.
func NewRealizedDistribution(values []float64, u Units) *Distribution {
	return &Distribution{units: u, values: values}
}

// NewVirtualDistribution builds a Distribution that defers sampling.
func NewVirtualDistribution(sampler func(rng *rand.Rand) float64, u Units) *Distribution {
	return &Distribution{units: u, virtual: true, sample: sampler}
}

func (d *Distribution) IsVirtual() bool   { return d.virtual }
func (d *Distribution) Len() int          { return len(d.values) }
func (d *Distribution) Units() Units      { return d.units }
func (d *Distribution) Values() []float64 { return d.values }

// Realize invokes sample() n times if d is virtual, producing a realized
// distribution. A realized distribution realizes to itself.
func (d *Distribution) Realize(rng *rand.Rand, n int) *Distribution {
	if !d.virtual {
		return d
	}
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = d.sample(rng)
	}
	return NewRealizedDistribution(vals, d.units)
}

func (d *Distribution) requireRealized(op string) error {
	if d.virtual {
		return fmt.Errorf("%s: a virtual distribution must be realized first", op)
	}
	return nil
}

// Mean returns the arithmetic mean, failing on an empty distribution.
func (d *Distribution) Mean() (float64, error) {
	if err := d.requireRealized("mean"); err != nil {
		return 0, err
	}
	if len(d.values) == 0 {
		return 0, &EmptyDistributionError{Reduction: "mean"}
	}
	return stat.Mean(d.values, nil), nil
}

// Std returns the sample standard deviation, failing on an empty distribution.
func (d *Distribution) Std() (float64, error) {
	if err := d.requireRealized("std"); err != nil {
		return 0, err
	}
	if len(d.values) == 0 {
		return 0, &EmptyDistributionError{Reduction: "std"}
	}
	if len(d.values) == 1 {
		return 0, nil
	}
	return stat.StdDev(d.values, nil), nil
}

// Min returns the minimum value, failing on an empty distribution.
func (d *Distribution) Min() (float64, error) {
	if err := d.requireRealized("min"); err != nil {
		return 0, err
	}
	if len(d.values) == 0 {
		return 0, &EmptyDistributionError{Reduction: "min"}
	}
	return floats.Min(d.values), nil
}

// Max returns the maximum value, failing on an empty distribution.
func (d *Distribution) Max() (float64, error) {
	if err := d.requireRealized("max"); err != nil {
		return 0, err
	}
	if len(d.values) == 0 {
		return 0, &EmptyDistributionError{Reduction: "max"}
	}
	return floats.Max(d.values), nil
}

// Sum returns the sum of all values, failing on an empty distribution.
func (d *Distribution) Sum() (float64, error) {
	if err := d.requireRealized("sum"); err != nil {
		return 0, err
	}
	if len(d.values) == 0 {
		return 0, &EmptyDistributionError{Reduction: "sum"}
	}
	return floats.Sum(d.values), nil
}

func (d *Distribution) broadcast(op func(float64) float64, resultUnits Units) (*Distribution, error) {
	if err := d.requireRealized("broadcast"); err != nil {
		return nil, err
	}
	out := make([]float64, len(d.values))
	for i, v := range d.values {
		out[i] = op(v)
	}
	return NewRealizedDistribution(out, resultUnits), nil
}

// AddScalar adds scalar to every element.
func (d *Distribution) AddScalar(scalar float64, resultUnits Units) (*Distribution, error) {
	return d.broadcast(func(v float64) float64 { return v + scalar }, resultUnits)
}

// SubScalar subtracts scalar from every element.
func (d *Distribution) SubScalar(scalar float64, resultUnits Units) (*Distribution, error) {
	return d.broadcast(func(v float64) float64 { return v - scalar }, resultUnits)
}

// MulScalar multiplies every element by scalar.
func (d *Distribution) MulScalar(scalar float64, resultUnits Units) (*Distribution, error) {
	return d.broadcast(func(v float64) float64 { return v * scalar }, resultUnits)
}

// DivScalar divides every element by scalar.
func (d *Distribution) DivScalar(scalar float64, resultUnits Units) (*Distribution, error) {
	if scalar == 0 {
		return nil, &DivideByZeroError{}
	}
	return d.broadcast(func(v float64) float64 { return v / scalar }, resultUnits)
}

// PowScalar raises every element to the power of scalar.
func (d *Distribution) PowScalar(scalar float64, resultUnits Units) (*Distribution, error) {
	return d.broadcast(func(v float64) float64 { return fpow(v, scalar) }, resultUnits)
}

// PowReverseScalar raises scalar to the power of every element.
func (d *Distribution) PowReverseScalar(scalar float64, resultUnits Units) (*Distribution, error) {
	return d.broadcast(func(v float64) float64 { return fpow(scalar, v) }, resultUnits)
}

// SampleWithReplacement draws n values with replacement.
func (d *Distribution) SampleWithReplacement(rng *rand.Rand, n int) ([]float64, error) {
	if err := d.requireRealized("sample"); err != nil {
		return nil, err
	}
	if len(d.values) == 0 {
		return nil, &EmptyDistributionError{Reduction: "sample"}
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = d.values[rng.Intn(len(d.values))]
	}
	return out, nil
}

// SampleWithoutReplacement draws n distinct-index values without
// replacement, failing if n exceeds the population size.
func (d *Distribution) SampleWithoutReplacement(rng *rand.Rand, n int) ([]float64, error) {
	if err := d.requireRealized("sample"); err != nil {
		return nil, err
	}
	if n > len(d.values) {
		return nil, &SampleWithoutReplacementExceedsPopulationError{Requested: n, Population: len(d.values)}
	}
	idx := rng.Perm(len(d.values))[:n]
	out := make([]float64, n)
	for i, ix := range idx {
		out[i] = d.values[ix]
	}
	return out, nil
}
