package josh

import (
	"fmt"
	"math"
	"math/big"
	"strings"
)

// EventTag names the sub-step at which a handler fires (§3, GLOSSARY).
type EventTag string

const (
	EventInit  EventTag = "init"
	EventStart EventTag = "start"
	EventStep  EventTag = "step"
	EventEnd   EventTag = "end"
)

// EventHandlers maps an event tag to the compiled RHS that fires on it.
type EventHandlers map[EventTag]*CompiledHandler

// ForEvent returns the handler for the requested event, falling back to
// `step` and then `init` as described in §4.C resolution step 3.
func (h EventHandlers) ForEvent(event EventTag) (*CompiledHandler, EventTag, bool) {
	if handler, ok := h[event]; ok {
		return handler, event, true
	}
	if event != EventStep {
		if handler, ok := h[EventStep]; ok {
			return handler, EventStep, true
		}
	}
	if handler, ok := h[EventInit]; ok {
		return handler, EventInit, true
	}
	return nil, "", false
}

// Scope is what a compiled handler executes against: attribute
// resolution, local-variable storage (owned by the Machine, not Scope),
// entity creation, and spatial queries. ShadowingEntity (§4.C) and its
// circularSafeScope wrapper are the concrete implementations; they
// delegate creation, spatial queries and positions to a Bridge.
type Scope interface {
	// ResolveAttribute resolves a possibly-dotted attribute path such as
	// "Trees", "here.x", "prior.Trees", or "meta.year" against this scope.
	ResolveAttribute(path string) (Value, error)
	Converter() *Converter
	CreateEntities(typeName string, count int) error
	ExecuteSpatialQuery(distance Value, attribute string) (Value, error)
	MakePosition(x, y Value) (Value, error)
}

// Machine is the small stack interpreter described in §4.D. Each compiled
// handler RHS runs as a sequence of Actions against a fresh Machine; the
// final stack top is the resolved value.
type Machine struct {
	stack  []Value
	locals map[string]Value
	scope  Scope
}

// NewMachine returns a machine bound to scope, with an empty stack and
// local-variable table.
func NewMachine(scope Scope) *Machine {
	return &Machine{scope: scope, locals: make(map[string]Value)}
}

func (m *Machine) Push(v Value) { m.stack = append(m.stack, v) }

func (m *Machine) Pop() (Value, error) {
	if len(m.stack) == 0 {
		return Value{}, fmt.Errorf("stack machine: pop on empty stack")
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}

func (m *Machine) Top() (Value, error) {
	if len(m.stack) == 0 {
		return Value{}, fmt.Errorf("stack machine: empty stack")
	}
	return m.stack[len(m.stack)-1], nil
}

func (m *Machine) popPair() (Value, Value, error) {
	b, err := m.Pop()
	if err != nil {
		return Value{}, Value{}, err
	}
	a, err := m.Pop()
	if err != nil {
		return Value{}, Value{}, err
	}
	return a, b, nil
}

// Action is one instruction in a compiled handler.
type Action func(m *Machine) error

// CompiledHandler is the EventHandlerAction of §4.D: a sequence of
// Actions compiled from one attribute's RHS expression.
type CompiledHandler struct {
	Actions []Action
}

// NewCompiledHandler builds a handler from a sequence of Actions.
func NewCompiledHandler(actions ...Action) *CompiledHandler {
	return &CompiledHandler{Actions: actions}
}

// Execute runs every action against a fresh machine bound to scope and
// returns the final stack top.
func (h *CompiledHandler) Execute(scope Scope) (Value, error) {
	m := NewMachine(scope)
	for i, action := range h.Actions {
		if err := action(m); err != nil {
			return Value{}, fmt.Errorf("action %d: %w", i, err)
		}
	}
	return m.Top()
}

// --- stack op constructors ---

// PushConst pushes a literal value.
func PushConst(v Value) Action {
	return func(m *Machine) error {
		m.Push(v)
		return nil
	}
}

// PushAttribute resolves path against the machine's scope and pushes the
// result (§4.D `pushAttribute(resolver)`).
func PushAttribute(path string) Action {
	return func(m *Machine) error {
		v, err := m.scope.ResolveAttribute(path)
		if err != nil {
			return err
		}
		m.Push(v)
		return nil
	}
}

// SaveLocalVariable pops the stack top and stores it under name.
func SaveLocalVariable(name string) Action {
	return func(m *Machine) error {
		v, err := m.Pop()
		if err != nil {
			return err
		}
		m.locals[name] = v
		return nil
	}
}

// LoadLocalVariable pushes a previously saved local variable.
func LoadLocalVariable(name string) Action {
	return func(m *Machine) error {
		v, ok := m.locals[name]
		if !ok {
			return fmt.Errorf("local variable %q has not been saved", name)
		}
		m.Push(v)
		return nil
	}
}

func binaryOp(name string, f func(a, b Value) (Value, error)) Action {
	return func(m *Machine) error {
		a, b, err := m.popPair()
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		r, err := f(a, b)
		if err != nil {
			return err
		}
		m.Push(r)
		return nil
	}
}

// OpAdd, OpSubtract, OpMultiply, OpDivide, OpPow implement §4.D's
// arithmetic instructions over the top two stack values (a below b,
// operation applied as a OP b).
var (
	OpAdd      = binaryOp("add", Add)
	OpSubtract = binaryOp("subtract", Subtract)
	OpMultiply = binaryOp("multiply", Multiply)
	OpDivide   = binaryOp("divide", Divide)
	OpPow      = binaryOp("pow", RaiseToPower)
)

func comparisonOp(name string, accept func(cmp int) bool) Action {
	return func(m *Machine) error {
		a, b, err := m.popPair()
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		c, err := Compare(a, b)
		if err != nil {
			return err
		}
		m.Push(BooleanValue(accept(c), EmptyUnits))
		return nil
	}
}

var (
	OpEq  = comparisonOp("eq", func(c int) bool { return c == 0 })
	OpNeq = comparisonOp("neq", func(c int) bool { return c != 0 })
	OpLt  = comparisonOp("lt", func(c int) bool { return c < 0 })
	OpLe  = comparisonOp("le", func(c int) bool { return c <= 0 })
	OpGt  = comparisonOp("gt", func(c int) bool { return c > 0 })
	OpGe  = comparisonOp("ge", func(c int) bool { return c >= 0 })
)

// OpAnd and OpOr implement short-circuit-free logical operators over
// boolean stack values; OpNot negates the top value.
var OpAnd Action = func(m *Machine) error {
	a, b, err := m.popPair()
	if err != nil {
		return fmt.Errorf("and: %w", err)
	}
	m.Push(BooleanValue(a.Bool() && b.Bool(), EmptyUnits))
	return nil
}

var OpOr Action = func(m *Machine) error {
	a, b, err := m.popPair()
	if err != nil {
		return fmt.Errorf("or: %w", err)
	}
	m.Push(BooleanValue(a.Bool() || b.Bool(), EmptyUnits))
	return nil
}

var OpNot Action = func(m *Machine) error {
	v, err := m.Pop()
	if err != nil {
		return fmt.Errorf("not: %w", err)
	}
	m.Push(BooleanValue(!v.Bool(), EmptyUnits))
	return nil
}

// OpAbs replaces the stack top with its absolute value.
var OpAbs Action = func(m *Machine) error {
	v, err := m.Pop()
	if err != nil {
		return fmt.Errorf("abs: %w", err)
	}
	switch v.Kind() {
	case KindInt:
		n := v.Int()
		if n < 0 {
			n = -n
		}
		m.Push(IntValue(n, v.Units()))
	case KindDouble:
		m.Push(DoubleValue(math.Abs(v.Double()), v.Units()))
	case KindDecimal:
		m.Push(DecimalValue(new(big.Rat).Abs(v.Decimal()), v.Units()))
	default:
		return fmt.Errorf("abs: unsupported kind %s", v.Kind())
	}
	return nil
}

// OpConcat pops two string values and pushes their concatenation.
var OpConcat Action = func(m *Machine) error {
	a, b, err := m.popPair()
	if err != nil {
		return fmt.Errorf("concat: %w", err)
	}
	m.Push(StringValue(a.Str()+b.Str(), EmptyUnits))
	return nil
}

// CastOp pops the stack top and casts it to targetUnits. If force is
// true the magnitude is relabeled without conversion (CastForce);
// otherwise a conversion path is required (Cast).
func CastOp(targetUnits Units, force bool) Action {
	return func(m *Machine) error {
		v, err := m.Pop()
		if err != nil {
			return fmt.Errorf("cast: %w", err)
		}
		if force {
			m.Push(CastForce(v, targetUnits))
			return nil
		}
		r, err := Cast(m.scope.Converter(), v, targetUnits)
		if err != nil {
			return err
		}
		m.Push(r)
		return nil
	}
}

// BoundOp clamps a value between an optional low and/or high bound. The
// operands are pushed in the order (value, [low], [high]): high, if
// present, is on top and popped first, then low, and the value being
// clamped is the deepest of them.
func BoundOp(hasLow, hasHigh bool) Action {
	return func(m *Machine) error {
		var high, low Value
		var err error
		if hasHigh {
			if high, err = m.Pop(); err != nil {
				return fmt.Errorf("bound: %w", err)
			}
		}
		if hasLow {
			if low, err = m.Pop(); err != nil {
				return fmt.Errorf("bound: %w", err)
			}
		}
		v, err := m.Pop()
		if err != nil {
			return fmt.Errorf("bound: %w", err)
		}
		if hasLow {
			if c, err := Compare(v, low); err != nil {
				return err
			} else if c < 0 {
				v = low
			}
		}
		if hasHigh {
			if c, err := Compare(v, high); err != nil {
				return err
			} else if c > 0 {
				v = high
			}
		}
		m.Push(v)
		return nil
	}
}

// MapFunc computes the mapped output for a normalized/linear or
// application-specific curve, given the raw input x and the declared
// (from_low, from_high, to_low, to_high, param) bounds.
type MapFunc func(x, fromLow, fromHigh, toLow, toHigh, param float64) float64

func linearMap(x, fromLow, fromHigh, toLow, toHigh, _ float64) float64 {
	if fromHigh == fromLow {
		return toLow
	}
	t := (x - fromLow) / (fromHigh - fromLow)
	return toLow + t*(toHigh-toLow)
}

func sigmoidMap(x, fromLow, fromHigh, toLow, toHigh, param float64) float64 {
	mid := (fromLow + fromHigh) / 2
	span := fromHigh - fromLow
	if span == 0 {
		return (toLow + toHigh) / 2
	}
	if param == 0 {
		param = 1
	}
	z := (x - mid) / span * param
	t := 1 / (1 + math.Exp(-z))
	return toLow + t*(toHigh-toLow)
}

// MapRegistry holds user-named map functions in addition to the built-in
// "linear" and "sigmoid" methods.
type MapRegistry struct {
	funcs map[string]MapFunc
}

// NewMapRegistry returns a registry pre-populated with "linear" and
// "sigmoid".
func NewMapRegistry() *MapRegistry {
	return &MapRegistry{funcs: map[string]MapFunc{
		"linear":  linearMap,
		"sigmoid": sigmoidMap,
	}}
}

// Register adds or overrides a user-named map function.
func (r *MapRegistry) Register(name string, fn MapFunc) { r.funcs[strings.ToLower(name)] = fn }

func (r *MapRegistry) lookup(name string) (MapFunc, bool) {
	fn, ok := r.funcs[strings.ToLower(name)]
	return fn, ok
}

// ApplyMapOp pops (x, fromLow, fromHigh, toLow, toHigh, param) off the
// stack in that order (x deepest), applies the named method, optionally
// clamps the result to [toLow, toHigh], and pushes it with toUnits.
func ApplyMapOp(registry *MapRegistry, method string, clamp bool, toUnits Units) Action {
	return func(m *Machine) error {
		fn, ok := registry.lookup(method)
		if !ok {
			return fmt.Errorf("applyMap: unknown method %q", method)
		}
		param, err := m.Pop()
		if err != nil {
			return fmt.Errorf("applyMap: %w", err)
		}
		toHigh, err := m.Pop()
		if err != nil {
			return fmt.Errorf("applyMap: %w", err)
		}
		toLow, err := m.Pop()
		if err != nil {
			return fmt.Errorf("applyMap: %w", err)
		}
		fromHigh, err := m.Pop()
		if err != nil {
			return fmt.Errorf("applyMap: %w", err)
		}
		fromLow, err := m.Pop()
		if err != nil {
			return fmt.Errorf("applyMap: %w", err)
		}
		x, err := m.Pop()
		if err != nil {
			return fmt.Errorf("applyMap: %w", err)
		}
		xf, _ := x.asFloat()
		flf, _ := fromLow.asFloat()
		fhf, _ := fromHigh.asFloat()
		tlf, _ := toLow.asFloat()
		thf, _ := toHigh.asFloat()
		pf, _ := param.asFloat()
		out := fn(xf, flf, fhf, tlf, thf, pf)
		if clamp {
			lo, hi := tlf, thf
			if lo > hi {
				lo, hi = hi, lo
			}
			if out < lo {
				out = lo
			}
			if out > hi {
				out = hi
			}
		}
		m.Push(DoubleValue(out, toUnits))
		return nil
	}
}

// CreateEntityOp pops a count off the stack and asks the scope to create
// that many entities of typeName.
func CreateEntityOp(typeName string) Action {
	return func(m *Machine) error {
		countV, err := m.Pop()
		if err != nil {
			return fmt.Errorf("createEntity: %w", err)
		}
		count := int(countV.Int())
		if countV.Kind() != KindInt {
			f, _ := countV.asFloat()
			count = int(f)
		}
		if err := m.scope.CreateEntities(typeName, count); err != nil {
			return err
		}
		m.Push(IntValue(int64(count), countV.Units()))
		return nil
	}
}

// ExecuteSpatialQueryOp pops a distance and asks the scope to run a
// spatial query for the named attribute, pushing the resulting
// distribution.
func ExecuteSpatialQueryOp(attribute string) Action {
	return func(m *Machine) error {
		distance, err := m.Pop()
		if err != nil {
			return fmt.Errorf("executeSpatialQuery: %w", err)
		}
		v, err := m.scope.ExecuteSpatialQuery(distance, attribute)
		if err != nil {
			return err
		}
		m.Push(v)
		return nil
	}
}

// MakePositionOp pops (x, y) and asks the scope to construct a position
// value, typically a geometry-bearing reference.
var MakePositionOp Action = func(m *Machine) error {
	x, y, err := m.popPair()
	if err != nil {
		return fmt.Errorf("makePosition: %w", err)
	}
	v, err := m.scope.MakePosition(x, y)
	if err != nil {
		return err
	}
	m.Push(v)
	return nil
}

// ConditionalAction holds a (cond, then, else) triple, letting compiled
// handlers represent `if`/`elif`/`else` chains (§4.D).
type ConditionalAction struct {
	Cond Action
	Then Action
	Else Action
}

// Apply runs Cond; if it produces a truthy boolean, Then runs, otherwise
// Else runs (if present).
func (c *ConditionalAction) Apply(m *Machine) error {
	if err := c.Cond(m); err != nil {
		return err
	}
	cond, err := m.Pop()
	if err != nil {
		return err
	}
	if cond.Kind() != KindBoolean {
		return fmt.Errorf("conditional: condition did not evaluate to a boolean")
	}
	if cond.Bool() {
		return c.Then(m)
	}
	if c.Else != nil {
		return c.Else(m)
	}
	return nil
}

// ConditionalBuilder assembles `if`/`elif`/`else` chains into a single
// ConditionalAction, innermost-else first.
type ConditionalBuilder struct {
	branches []struct {
		cond Action
		then Action
	}
	elseAction Action
}

// NewConditionalBuilder starts a new if/elif/else chain.
func NewConditionalBuilder() *ConditionalBuilder { return &ConditionalBuilder{} }

// AddBranch appends an `if`/`elif` branch.
func (b *ConditionalBuilder) AddBranch(cond, then Action) *ConditionalBuilder {
	b.branches = append(b.branches, struct {
		cond Action
		then Action
	}{cond, then})
	return b
}

// SetElse sets the trailing `else` branch.
func (b *ConditionalBuilder) SetElse(action Action) *ConditionalBuilder {
	b.elseAction = action
	return b
}

// Build assembles the chain into one Action. Branches are tried in
// registration order; the first whose condition is true wins.
func (b *ConditionalBuilder) Build() Action {
	var chain Action = b.elseAction
	for i := len(b.branches) - 1; i >= 0; i-- {
		branch := b.branches[i]
		prev := chain
		cond := (&ConditionalAction{Cond: branch.cond, Then: branch.then, Else: prev}).Apply
		chain = cond
	}
	if chain == nil {
		chain = func(m *Machine) error { return nil }
	}
	return chain
}
