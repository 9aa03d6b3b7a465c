package josh

import (
	"fmt"
	"math"
	"math/big"
)

// Kind tags the payload carried by a Value.
type Kind int

const (
	KindInt Kind = iota
	KindDecimal
	KindDouble
	KindBoolean
	KindString
	KindEntityRef
	KindDistribution
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	case KindDouble:
		return "double"
	case KindBoolean:
		return "boolean"
	case KindString:
		return "string"
	case KindEntityRef:
		return "entity"
	case KindDistribution:
		return "distribution"
	default:
		return "unknown"
	}
}

// Value is the typed-value sum described in §3: every value carries units,
// regardless of kind.
type Value struct {
	kind  Kind
	units Units

	i int64
	d *big.Rat
	f float64
	b bool
	s string
	e Entity
	r *Distribution
}

// IntValue constructs an Int value.
func IntValue(i int64, u Units) Value { return Value{kind: KindInt, units: u, i: i} }

// DecimalValue constructs an exact-decimal value backed by math/big.Rat.
// No arbitrary-precision decimal library appears anywhere in the
// retrieved corpus (see DESIGN.md), so the exact-decimal backend is built
// directly on the standard library.
func DecimalValue(d *big.Rat, u Units) Value { return Value{kind: KindDecimal, units: u, d: d} }

// DoubleValue constructs a floating-point value.
func DoubleValue(f float64, u Units) Value { return Value{kind: KindDouble, units: u, f: f} }

// BooleanValue constructs a boolean value.
func BooleanValue(b bool, u Units) Value { return Value{kind: KindBoolean, units: u, b: b} }

// StringValue constructs a string value.
func StringValue(s string, u Units) Value { return Value{kind: KindString, units: u, s: s} }

// EntityRefValue constructs an entity-reference value. The referenced
// entity's type name is kept in the string slot (read with Str); Units is
// left empty.
func EntityRefValue(e Entity, typeName string) Value {
	return Value{kind: KindEntityRef, units: Units{}, e: e, s: typeName}
}

// DistributionValue constructs a distribution-valued Value.
func DistributionValue(dist *Distribution, u Units) Value {
	return Value{kind: KindDistribution, units: u, r: dist}
}

func (v Value) Kind() Kind    { return v.kind }
func (v Value) Units() Units  { return v.units }
func (v Value) Int() int64    { return v.i }
func (v Value) Decimal() *big.Rat { return v.d }
func (v Value) Double() float64 { return v.f }
func (v Value) Bool() bool    { return v.b }
func (v Value) Str() string   { return v.s }
func (v Value) Entity() Entity { return v.e }
func (v Value) Distribution() *Distribution { return v.r }

func (v Value) asFloat() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindDouble:
		return v.f, true
	case KindDecimal:
		f, _ := v.d.Float64()
		return f, true
	default:
		return 0, false
	}
}

// sameNumericKind reports whether a and b are both numeric and of the
// same kind, which is what arithmetic here requires: Josh's compiled
// handlers (§4.D) are responsible for casting operands to a common kind
// before an arithmetic op reaches Value.
func sameNumericKind(a, b Value) bool {
	switch a.kind {
	case KindInt, KindDouble, KindDecimal:
		return a.kind == b.kind
	default:
		return false
	}
}

// Add implements §4.A: fails with UnitMismatchError unless operands'
// units are alias-equal.
func Add(a, b Value) (Value, error) {
	if !a.units.Equal(b.units) {
		return Value{}, &UnitMismatchError{Left: a.units.String(), Right: b.units.String(), Op: "add"}
	}
	if !sameNumericKind(a, b) {
		return Value{}, fmt.Errorf("add: mismatched value kinds %s and %s", a.kind, b.kind)
	}
	switch a.kind {
	case KindInt:
		return IntValue(a.i+b.i, a.units), nil
	case KindDouble:
		return DoubleValue(a.f+b.f, a.units), nil
	case KindDecimal:
		return DecimalValue(new(big.Rat).Add(a.d, b.d), a.units), nil
	}
	return Value{}, fmt.Errorf("add: unsupported kind %s", a.kind)
}

// Subtract implements §4.A: fails with UnitMismatchError unless operands'
// units are alias-equal.
func Subtract(a, b Value) (Value, error) {
	if !a.units.Equal(b.units) {
		return Value{}, &UnitMismatchError{Left: a.units.String(), Right: b.units.String(), Op: "subtract"}
	}
	if !sameNumericKind(a, b) {
		return Value{}, fmt.Errorf("subtract: mismatched value kinds %s and %s", a.kind, b.kind)
	}
	switch a.kind {
	case KindInt:
		return IntValue(a.i-b.i, a.units), nil
	case KindDouble:
		return DoubleValue(a.f-b.f, a.units), nil
	case KindDecimal:
		return DecimalValue(new(big.Rat).Sub(a.d, b.d), a.units), nil
	}
	return Value{}, fmt.Errorf("subtract: unsupported kind %s", a.kind)
}

// Multiply implements §4.A: composes units by concatenation.
func Multiply(a, b Value) (Value, error) {
	if !sameNumericKind(a, b) {
		return Value{}, fmt.Errorf("multiply: mismatched value kinds %s and %s", a.kind, b.kind)
	}
	u := a.units.Multiply(b.units)
	switch a.kind {
	case KindInt:
		return IntValue(a.i*b.i, u), nil
	case KindDouble:
		return DoubleValue(a.f*b.f, u), nil
	case KindDecimal:
		return DecimalValue(new(big.Rat).Mul(a.d, b.d), u), nil
	}
	return Value{}, fmt.Errorf("multiply: unsupported kind %s", a.kind)
}

// Divide implements §4.A: composes units by concatenation.
func Divide(a, b Value) (Value, error) {
	if !sameNumericKind(a, b) {
		return Value{}, fmt.Errorf("divide: mismatched value kinds %s and %s", a.kind, b.kind)
	}
	u := a.units.Divide(b.units)
	switch a.kind {
	case KindInt:
		if b.i == 0 {
			return Value{}, &DivideByZeroError{}
		}
		return IntValue(a.i/b.i, u), nil
	case KindDouble:
		if b.f == 0 {
			return Value{}, &DivideByZeroError{}
		}
		return DoubleValue(a.f/b.f, u), nil
	case KindDecimal:
		if b.d.Sign() == 0 {
			return Value{}, &DivideByZeroError{}
		}
		return DecimalValue(new(big.Rat).Quo(a.d, b.d), u), nil
	}
	return Value{}, fmt.Errorf("divide: unsupported kind %s", a.kind)
}

// RaiseToPower implements §4.A: the exponent must be dimensionless, and if
// the base is dimensioned the exponent must be an integer.
func RaiseToPower(base, exponent Value) (Value, error) {
	if !exponent.units.IsEmpty() {
		return Value{}, fmt.Errorf("raiseToPower: exponent must be dimensionless, got %q", exponent.units.String())
	}
	ef, ok := exponent.asFloat()
	if !ok {
		return Value{}, fmt.Errorf("raiseToPower: exponent must be numeric")
	}
	isInt := ef == float64(int64(ef))
	if !base.units.IsEmpty() && !isInt {
		return Value{}, &UnsupportedPowerError{Base: base.units.String(), Exponent: ef}
	}
	n := int(ef)
	u := base.units.Pow(n)
	switch base.kind {
	case KindInt:
		return IntValue(ipow(base.i, n), u), nil
	case KindDouble:
		return DoubleValue(fpow(base.f, ef), u), nil
	case KindDecimal:
		bf, _ := base.d.Float64()
		rf := fpow(bf, ef)
		rat := new(big.Rat)
		rat.SetFloat64(rf)
		return DecimalValue(rat, u), nil
	}
	return Value{}, fmt.Errorf("raiseToPower: unsupported kind %s", base.kind)
}

func ipow(base int64, exp int) int64 {
	if exp < 0 {
		return 0
	}
	result := int64(1)
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

func fpow(base, exp float64) float64 {
	return math.Pow(base, exp)
}

// Compare implements the ordering used by lt/le/gt/ge/eq/neq. It requires
// alias-equal units.
func Compare(a, b Value) (int, error) {
	if !a.units.Equal(b.units) {
		return 0, &UnitMismatchError{Left: a.units.String(), Right: b.units.String(), Op: "compare"}
	}
	switch a.kind {
	case KindInt:
		switch {
		case a.i < b.i:
			return -1, nil
		case a.i > b.i:
			return 1, nil
		default:
			return 0, nil
		}
	case KindDouble:
		switch {
		case a.f < b.f:
			return -1, nil
		case a.f > b.f:
			return 1, nil
		default:
			return 0, nil
		}
	case KindDecimal:
		return a.d.Cmp(b.d), nil
	case KindString:
		switch {
		case a.s < b.s:
			return -1, nil
		case a.s > b.s:
			return 1, nil
		default:
			return 0, nil
		}
	case KindBoolean:
		if a.b == b.b {
			return 0, nil
		}
		if !a.b && b.b {
			return -1, nil
		}
		return 1, nil
	default:
		return 0, fmt.Errorf("compare: unsupported kind %s", a.kind)
	}
}

// Equal reports whether two values are the same, including units.
func Equal(a, b Value) bool {
	c, err := Compare(a, b)
	return err == nil && c == 0
}

// Cast consults the converter for a conversion path; if one isn't needed
// because the units are already alias-equal it is a no-op, otherwise it
// fails when no conversion exists.
func Cast(c *Converter, v Value, target Units) (Value, error) {
	f, ok := v.asFloat()
	if !ok {
		if v.units.Equal(target) {
			return v, nil
		}
		return Value{}, &UnitMismatchError{Left: v.units.String(), Right: target.String(), Op: "cast"}
	}
	nf, ok := c.Convert(f, v.units, target)
	if !ok {
		return Value{}, &UnitMismatchError{Left: v.units.String(), Right: target.String(), Op: "cast"}
	}
	switch v.kind {
	case KindInt:
		return IntValue(int64(nf), target), nil
	case KindDouble:
		return DoubleValue(nf, target), nil
	case KindDecimal:
		rat := new(big.Rat)
		rat.SetFloat64(nf)
		return DecimalValue(rat, target), nil
	}
	return Value{}, fmt.Errorf("cast: unsupported kind %s", v.kind)
}

// CastForce relabels units without converting the magnitude, used for
// known-compatible reinterpretation.
func CastForce(v Value, target Units) Value {
	v.units = target
	return v
}
