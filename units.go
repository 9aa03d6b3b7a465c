package josh

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ctessum/unit"
)

// dimRegistry assigns a stable ctessum/unit.Dimension to every distinct
// base unit symbol seen at runtime. ctessum/unit.NewDimension panics if a
// symbol collides with one of its pre-reserved SI tokens ("m", "s", "kg",
// and similar); Josh programs declare arbitrary symbols at run time, so a
// colliding symbol is retried under a disambiguating prefix instead of
// being allowed to crash the process. The registry is process-global
// because ctessum/unit's own symbol table is process-global.
var dimRegistry = struct {
	mu     sync.Mutex
	byBase map[string]unit.Dimension
	toBase map[unit.Dimension]string
}{
	byBase: make(map[string]unit.Dimension),
	toBase: make(map[unit.Dimension]string),
}

func dimensionFor(base string) unit.Dimension {
	dimRegistry.mu.Lock()
	defer dimRegistry.mu.Unlock()
	if d, ok := dimRegistry.byBase[base]; ok {
		return d
	}
	d := registerDimension(base)
	dimRegistry.byBase[base] = d
	dimRegistry.toBase[d] = base
	return d
}

func registerDimension(base string) (d unit.Dimension) {
	defer func() {
		if recover() != nil {
			d = registerDimension("josh$" + base)
		}
	}()
	return unit.NewDimension(base)
}

func baseSymbol(d unit.Dimension) (string, bool) {
	dimRegistry.mu.Lock()
	defer dimRegistry.mu.Unlock()
	s, ok := dimRegistry.toBase[d]
	return s, ok
}

// Units is a canonical, alias-resolved dimensioned label. Two Units
// compare equal (§3 invariant 3, reflexive and symmetric) iff their
// resolved dimension maps are identical, which happens automatically once
// alias-equivalent symbols have been folded onto the same
// ctessum/unit.Dimension by a Converter.
type Units struct {
	dims unit.Dimensions
}

// EmptyUnits is the dimensionless label.
var EmptyUnits = Units{dims: unit.Dimensions{}}

// IsEmpty reports whether u is dimensionless.
func (u Units) IsEmpty() bool { return len(u.dims) == 0 }

// Equal reports whether u and o denote the same dimension, after alias
// resolution performed at construction time.
func (u Units) Equal(o Units) bool {
	return u.dims.Matches(o.dims)
}

// String renders the canonical multiplicative form, e.g. "m s^-1".
func (u Units) String() string {
	if len(u.dims) == 0 {
		return ""
	}
	return u.dims.String()
}

// single reports whether u is exactly one base symbol to the first power,
// and returns that symbol. Only single-symbol units participate in
// declared (non-alias) conversions; compound units (e.g. "m/s") can only
// be related to one another via alias equality.
func (u Units) single() (string, bool) {
	if len(u.dims) != 1 {
		return "", false
	}
	for d, p := range u.dims {
		if p != 1 {
			return "", false
		}
		sym, ok := baseSymbol(d)
		return sym, ok
	}
	return "", false
}

func mulDims(a, b unit.Dimensions) unit.Dimensions {
	o := make(unit.Dimensions, len(a))
	for k, v := range a {
		o[k] = v
	}
	for k, v := range b {
		if nv := o[k] + v; nv == 0 {
			delete(o, k)
		} else {
			o[k] = nv
		}
	}
	return o
}

func divDims(a, b unit.Dimensions) unit.Dimensions {
	neg := make(unit.Dimensions, len(b))
	for k, v := range b {
		neg[k] = -v
	}
	return mulDims(a, neg)
}

func powDims(a unit.Dimensions, n int) unit.Dimensions {
	o := make(unit.Dimensions, len(a))
	for k, v := range a {
		if nv := v * n; nv != 0 {
			o[k] = nv
		}
	}
	return o
}

// Multiply composes units by concatenation with cancellation against the
// canonical form (§4.A).
func (u Units) Multiply(o Units) Units { return Units{dims: mulDims(u.dims, o.dims)} }

// Divide composes units by concatenation with cancellation against the
// canonical form (§4.A).
func (u Units) Divide(o Units) Units { return Units{dims: divDims(u.dims, o.dims)} }

// Pow raises u to an integer power.
func (u Units) Pow(n int) Units { return Units{dims: powDims(u.dims, n)} }

type conversionKey struct{ From, To string }

// Converter holds alias classes and declared directional conversions, and
// parses textual unit labels into canonical Units values.
//
// The unit algebra's dimension bookkeeping (cancellation on multiply and
// divide, canonical-form equality) is delegated to ctessum/unit's
// Dimensions type; Converter adds the alias-class and declared-conversion
// layer that ctessum/unit has no notion of.
type Converter struct {
	mu             sync.RWMutex
	representative map[string]string
	conversions    map[conversionKey]func(float64) float64
}

// NewConverter returns an empty Converter.
func NewConverter() *Converter {
	return &Converter{
		representative: make(map[string]string),
		conversions:    make(map[conversionKey]func(float64) float64),
	}
}

// DeclareAlias marks the given base-unit symbols as mutually equivalent.
// Must be called before any Units value referencing these symbols is
// parsed, since alias resolution happens at parse time.
func (c *Converter) DeclareAlias(symbols ...string) {
	if len(symbols) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	canon := symbols[0]
	for _, s := range symbols {
		if existing, ok := c.representative[s]; ok {
			canon = existing
			break
		}
	}
	for _, s := range symbols {
		c.representative[s] = canon
	}
}

func (c *Converter) repLocked(symbol string) string {
	if r, ok := c.representative[symbol]; ok {
		return r
	}
	return symbol
}

func (c *Converter) representativeOf(symbol string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.repLocked(symbol)
}

// DeclareConversion registers a directional conversion from one base
// symbol to another. The identity conversion is implicit whenever two
// symbols share an alias class; DeclareConversion is for symbols that are
// dimensionally related but not declared aliases (e.g. feet -> meters).
func (c *Converter) DeclareConversion(from, to string, fn func(float64) float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversions[conversionKey{c.repLocked(from), c.repLocked(to)}] = fn
}

func (c *Converter) lookupConversion(from, to string) (func(float64) float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.conversions[conversionKey{c.repLocked(from), c.repLocked(to)}]
	return fn, ok
}

func isSymbolByte(b byte) bool {
	return b == '_' || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

// Parse parses a canonical multiplicative unit string such as "m/s",
// "m^2", or "count" into a Units value, resolving declared aliases.
func (c *Converter) Parse(s string) (Units, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return EmptyUnits, nil
	}
	dims := unit.Dimensions{}
	sign := 1
	i, n := 0, len(s)
	for i < n {
		switch s[i] {
		case ' ', '\t':
			i++
			continue
		case '*':
			sign = 1
			i++
			continue
		case '/':
			sign = -1
			i++
			continue
		}
		j := i
		for j < n && isSymbolByte(s[j]) {
			j++
		}
		if j == i {
			return Units{}, fmt.Errorf("invalid units %q: unexpected character %q", s, s[i])
		}
		symbol := s[i:j]
		i = j
		power := 1
		if i < n && s[i] == '^' {
			i++
			k := i
			if i < n && s[i] == '-' {
				i++
			}
			for i < n && s[i] >= '0' && s[i] <= '9' {
				i++
			}
			if k == i {
				return Units{}, fmt.Errorf("invalid units %q: missing exponent", s)
			}
			p, err := strconv.Atoi(s[k:i])
			if err != nil {
				return Units{}, fmt.Errorf("invalid units %q: %w", s, err)
			}
			power = p
		}
		rep := c.representativeOf(symbol)
		d := dimensionFor(rep)
		if nv := dims[d] + power*sign; nv == 0 {
			delete(dims, d)
		} else {
			dims[d] = nv
		}
		sign = 1
	}
	return Units{dims: dims}, nil
}

// MustParse is like Parse but panics on error; intended for use with
// literal constant unit strings (tests, defaults), never with program
// input.
func (c *Converter) MustParse(s string) Units {
	u, err := c.Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Convert converts value from units `from` to units `to`, returning the
// converted magnitude. It succeeds when `from` and `to` are alias-equal
// (identity, magnitude unchanged) or when a declared conversion function
// exists between their single base symbols. Otherwise it returns false.
func (c *Converter) Convert(value float64, from, to Units) (float64, bool) {
	if from.Equal(to) {
		return value, true
	}
	fs, ok1 := from.single()
	ts, ok2 := to.single()
	if !ok1 || !ok2 {
		return 0, false
	}
	fn, ok := c.lookupConversion(fs, ts)
	if !ok {
		return 0, false
	}
	return fn(value), true
}
