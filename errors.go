package josh

import "fmt"

// ParseError is propagated verbatim from the upstream DSL parser. The core
// never constructs one itself; it only passes them through.
type ParseError struct {
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// UnitMismatchError is returned when add/subtract/compare operate on
// values whose units are not alias-equal.
type UnitMismatchError struct {
	Left, Right string
	Op          string
}

func (e *UnitMismatchError) Error() string {
	return fmt.Sprintf("unit mismatch in %s: %q vs %q", e.Op, e.Left, e.Right)
}

// UnsupportedPowerError is returned by raiseToPower when the base is
// dimensioned and the exponent is not an integer.
type UnsupportedPowerError struct {
	Base     string
	Exponent float64
}

func (e *UnsupportedPowerError) Error() string {
	return fmt.Sprintf("cannot raise dimensioned value with units %q to non-integer power %g", e.Base, e.Exponent)
}

// DivideByZeroError is returned by division operations over a zero divisor.
type DivideByZeroError struct{}

func (e *DivideByZeroError) Error() string { return "division by zero" }

// EmptyDistributionError is returned by reductions over a distribution
// with zero elements.
type EmptyDistributionError struct {
	Reduction string
}

func (e *EmptyDistributionError) Error() string {
	return fmt.Sprintf("cannot compute %s of an empty distribution", e.Reduction)
}

// SampleWithoutReplacementExceedsPopulationError is returned when a
// without-replacement sample is requested larger than the population.
type SampleWithoutReplacementExceedsPopulationError struct {
	Requested, Population int
}

func (e *SampleWithoutReplacementExceedsPopulationError) Error() string {
	return fmt.Sprintf("cannot sample %d values without replacement from a population of %d",
		e.Requested, e.Population)
}

// MissingAttributeError is returned when an attribute is read but neither
// declared on the prototype nor present in storage.
type MissingAttributeError struct {
	Name string
}

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("missing attribute %q", e.Name)
}

// ResolutionLoopError signals a self-referential or cyclic attribute
// resolution. It is caught internally by the shadowing layer (§4.C) and
// converted into a prior-value bypass read; it only escapes to a caller
// when that fallback also has nothing to return.
type ResolutionLoopError struct {
	Attribute string
}

func (e *ResolutionLoopError) Error() string {
	return fmt.Sprintf("Encountered a loop when resolving %q", e.Attribute)
}

// GridAxis identifies which axis of a PrecomputedGrid a bounds violation
// occurred on.
type GridAxis int

const (
	AxisHorizontal GridAxis = iota
	AxisVertical
	AxisTimestep
)

func (a GridAxis) String() string {
	switch a {
	case AxisHorizontal:
		return "horizontal"
	case AxisVertical:
		return "vertical"
	case AxisTimestep:
		return "timestep"
	default:
		return "unknown"
	}
}

// GridOutOfBoundsError is returned by DataGridLayer.GetAt when the
// requested location or step falls outside the grid's coverage.
type GridOutOfBoundsError struct {
	Axis     GridAxis
	Value    int64
	Min, Max int64

	// SimStepsLow/SimStepsHigh name the enclosing simulation's step
	// range when Axis == AxisTimestep, so the message can compare the
	// simulation's window against the grid's coverage.
	SimStepsLow, SimStepsHigh int64
	HasSimRange               bool
}

func (e *GridOutOfBoundsError) Error() string {
	if e.Axis == AxisTimestep && e.HasSimRange {
		return fmt.Sprintf(
			"timestep %d is out of bounds for precomputed grid (covers [%d, %d]); "+
				"simulation step range is [%d, %d]",
			e.Value, e.Min, e.Max, e.SimStepsLow, e.SimStepsHigh)
	}
	return fmt.Sprintf("%s index %d is out of bounds: must be in [%d, %d]", e.Axis, e.Value, e.Min, e.Max)
}

// UnitsTooLongError is returned by the .jshd loader when the embedded
// units string exceeds the 200-byte limit.
type UnitsTooLongError struct {
	Length int
}

func (e *UnitsTooLongError) Error() string {
	return fmt.Sprintf("units string of %d bytes exceeds the 200-byte limit", e.Length)
}

// UnsupportedVersionError is returned when a .jshd file's version header
// is not 1.
type UnsupportedVersionError struct {
	Version uint32
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported .jshd version %d (only version 1 is supported)", e.Version)
}

// TruncatedBinaryError is returned when a .jshd stream ends before the
// header declares it should.
type TruncatedBinaryError struct {
	Context string
}

func (e *TruncatedBinaryError) Error() string {
	return fmt.Sprintf("truncated .jshd binary while reading %s", e.Context)
}

// SimulationNotFoundError is returned when a requested simulation name is
// not present in the program.
type SimulationNotFoundError struct {
	Name string
}

func (e *SimulationNotFoundError) Error() string {
	return fmt.Sprintf("simulation %q not found", e.Name)
}

// ExternalDataNotFoundError is returned when an InputGetterStrategy
// cannot resolve a logical external data name.
type ExternalDataNotFoundError struct {
	Name string
}

func (e *ExternalDataNotFoundError) Error() string {
	return fmt.Sprintf("external data %q not found", e.Name)
}

// UnsupportedExternalFormatError is returned when external data is found
// but is not in a format the core understands.
type UnsupportedExternalFormatError struct {
	Name string
}

func (e *UnsupportedExternalFormatError) Error() string {
	return fmt.Sprintf("external data %q is not in a supported format", e.Name)
}

// StepError wraps a resolution error with the (patch, attribute, event)
// context in which it occurred, as required by §7's propagation policy.
// The step loop is the only place these are constructed.
type StepError struct {
	PatchKey  string
	Attribute string
	Event     string
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("patch %s: attribute %s.%s: %v", e.PatchKey, e.Attribute, e.Event, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
