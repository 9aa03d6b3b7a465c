package josh

import (
	"math/rand"
	"testing"
)

func TestDistributionReductions(t *testing.T) {
	d := NewRealizedDistribution([]float64{1, 2, 3, 4, 5}, EmptyUnits)
	mean, err := d.Mean()
	if err != nil {
		t.Fatalf("mean: %v", err)
	}
	if mean != 3 {
		t.Errorf("expected mean 3, got %v", mean)
	}
	min, _ := d.Min()
	max, _ := d.Max()
	if min != 1 || max != 5 {
		t.Errorf("expected min=1 max=5, got min=%v max=%v", min, max)
	}
	sum, _ := d.Sum()
	if sum != 15 {
		t.Errorf("expected sum 15, got %v", sum)
	}
}

func TestEmptyDistributionReductionsFail(t *testing.T) {
	d := NewRealizedDistribution(nil, EmptyUnits)
	if _, err := d.Mean(); err == nil {
		t.Errorf("expected EmptyDistributionError")
	}
}

func TestVirtualDistributionMustBeRealizedFirst(t *testing.T) {
	d := NewVirtualDistribution(func(rng *rand.Rand) float64 { return rng.Float64() }, EmptyUnits)
	if _, err := d.Mean(); err == nil {
		t.Errorf("expected an error: a virtual distribution cannot be reduced directly")
	}
	realized := d.Realize(rand.New(rand.NewSource(1)), 100)
	if realized.Len() != 100 {
		t.Errorf("expected 100 realized samples, got %d", realized.Len())
	}
	if _, err := realized.Mean(); err != nil {
		t.Errorf("realized distribution should reduce cleanly: %v", err)
	}
}

func TestSampleWithoutReplacementExceedsPopulation(t *testing.T) {
	d := NewRealizedDistribution([]float64{1, 2}, EmptyUnits)
	rng := rand.New(rand.NewSource(1))
	if _, err := d.SampleWithoutReplacement(rng, 5); err == nil {
		t.Errorf("expected SampleWithoutReplacementExceedsPopulationError")
	}
}

func TestSampleWithoutReplacementDistinctIndices(t *testing.T) {
	d := NewRealizedDistribution([]float64{10, 20, 30, 40}, EmptyUnits)
	rng := rand.New(rand.NewSource(7))
	out, err := d.SampleWithoutReplacement(rng, 4)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(out) != 4 {
		t.Errorf("expected 4 samples, got %d", len(out))
	}
	seen := make(map[float64]bool)
	for _, v := range out {
		if seen[v] {
			t.Errorf("value %v drawn twice: indices must be distinct", v)
		}
		seen[v] = true
	}
}

func TestBroadcastScalarOps(t *testing.T) {
	d := NewRealizedDistribution([]float64{1, 2, 3}, EmptyUnits)
	out, err := d.AddScalar(10, EmptyUnits)
	if err != nil {
		t.Fatalf("addScalar: %v", err)
	}
	want := []float64{11, 12, 13}
	for i, v := range out.Values() {
		if v != want[i] {
			t.Errorf("index %d: want %v got %v", i, want[i], v)
		}
	}
}
