package josh

import "testing"

// stubScope is a minimal Scope used only to drive the stack machine in
// isolation from ShadowingEntity.
type stubScope struct {
	converter  *Converter
	attrs      map[string]Value
	created    map[string]int
	queryValue Value
}

func newStubScope() *stubScope {
	return &stubScope{converter: NewConverter(), attrs: make(map[string]Value), created: make(map[string]int)}
}

func (s *stubScope) ResolveAttribute(path string) (Value, error) {
	v, ok := s.attrs[path]
	if !ok {
		return Value{}, errNotFoundStub{path}
	}
	return v, nil
}

type errNotFoundStub struct{ path string }

func (e errNotFoundStub) Error() string { return "no such attribute: " + e.path }

func (s *stubScope) Converter() *Converter { return s.converter }

func (s *stubScope) CreateEntities(typeName string, count int) error {
	s.created[typeName] += count
	return nil
}

func (s *stubScope) ExecuteSpatialQuery(distance Value, attribute string) (Value, error) {
	return s.queryValue, nil
}

func (s *stubScope) MakePosition(x, y Value) (Value, error) {
	return StringValue("pos", EmptyUnits), nil
}

func TestMachineArithmeticStack(t *testing.T) {
	scope := newStubScope()
	h := NewCompiledHandler(
		PushConst(IntValue(2, EmptyUnits)),
		PushConst(IntValue(3, EmptyUnits)),
		OpAdd,
	)
	out, err := h.Execute(scope)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Int() != 5 {
		t.Errorf("expected 5, got %d", out.Int())
	}
}

func TestMachinePushAttributeAndCompare(t *testing.T) {
	scope := newStubScope()
	scope.attrs["temperature"] = DoubleValue(30, EmptyUnits)
	h := NewCompiledHandler(
		PushAttribute("temperature"),
		PushConst(DoubleValue(20, EmptyUnits)),
		OpGt,
	)
	out, err := h.Execute(scope)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !out.Bool() {
		t.Errorf("expected 30 > 20 to be true")
	}
}

func TestMachineLocalVariables(t *testing.T) {
	scope := newStubScope()
	h := NewCompiledHandler(
		PushConst(IntValue(7, EmptyUnits)),
		SaveLocalVariable("x"),
		LoadLocalVariable("x"),
		LoadLocalVariable("x"),
		OpMultiply,
	)
	out, err := h.Execute(scope)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Int() != 49 {
		t.Errorf("expected 49, got %d", out.Int())
	}
}

func TestConditionalBuilderIfElse(t *testing.T) {
	scope := newStubScope()
	builder := NewConditionalBuilder()
	builder.AddBranch(
		func(m *Machine) error { m.Push(BooleanValue(false, EmptyUnits)); return nil },
		func(m *Machine) error { m.Push(StringValue("then", EmptyUnits)); return nil },
	)
	builder.SetElse(func(m *Machine) error { m.Push(StringValue("else", EmptyUnits)); return nil })
	action := builder.Build()

	m := NewMachine(scope)
	if err := action(m); err != nil {
		t.Fatalf("apply: %v", err)
	}
	top, err := m.Top()
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if top.Str() != "else" {
		t.Errorf("expected else branch to fire, got %q", top.Str())
	}
}

func TestConditionalBuilderFirstMatchingBranchWins(t *testing.T) {
	scope := newStubScope()
	builder := NewConditionalBuilder()
	builder.AddBranch(
		func(m *Machine) error { m.Push(BooleanValue(true, EmptyUnits)); return nil },
		func(m *Machine) error { m.Push(StringValue("first", EmptyUnits)); return nil },
	)
	builder.AddBranch(
		func(m *Machine) error { m.Push(BooleanValue(true, EmptyUnits)); return nil },
		func(m *Machine) error { m.Push(StringValue("second", EmptyUnits)); return nil },
	)
	action := builder.Build()

	m := NewMachine(scope)
	if err := action(m); err != nil {
		t.Fatalf("apply: %v", err)
	}
	top, _ := m.Top()
	if top.Str() != "first" {
		t.Errorf("expected the first matching branch to win, got %q", top.Str())
	}
}

func TestApplyMapOpLinear(t *testing.T) {
	scope := newStubScope()
	registry := NewMapRegistry()
	h := NewCompiledHandler(
		PushConst(DoubleValue(5, EmptyUnits)),  // x
		PushConst(DoubleValue(0, EmptyUnits)),  // fromLow
		PushConst(DoubleValue(10, EmptyUnits)), // fromHigh
		PushConst(DoubleValue(0, EmptyUnits)),  // toLow
		PushConst(DoubleValue(100, EmptyUnits)),// toHigh
		PushConst(DoubleValue(0, EmptyUnits)),  // param
		ApplyMapOp(registry, "linear", false, EmptyUnits),
	)
	out, err := h.Execute(scope)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Double() != 50 {
		t.Errorf("expected 50, got %v", out.Double())
	}
}

func TestApplyMapOpClampsToRange(t *testing.T) {
	scope := newStubScope()
	registry := NewMapRegistry()
	h := NewCompiledHandler(
		PushConst(DoubleValue(-5, EmptyUnits)), // x below fromLow
		PushConst(DoubleValue(0, EmptyUnits)),
		PushConst(DoubleValue(10, EmptyUnits)),
		PushConst(DoubleValue(0, EmptyUnits)),
		PushConst(DoubleValue(100, EmptyUnits)),
		PushConst(DoubleValue(0, EmptyUnits)),
		ApplyMapOp(registry, "linear", true, EmptyUnits),
	)
	out, err := h.Execute(scope)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Double() != 0 {
		t.Errorf("expected clamp to 0, got %v", out.Double())
	}
}

func TestCreateEntityOpDelegatesToScope(t *testing.T) {
	scope := newStubScope()
	h := NewCompiledHandler(
		PushConst(IntValue(3, EmptyUnits)),
		CreateEntityOp("Tree"),
	)
	if _, err := h.Execute(scope); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if scope.created["Tree"] != 3 {
		t.Errorf("expected 3 Tree entities requested, got %d", scope.created["Tree"])
	}
}

func TestBoundOpClampsBothSides(t *testing.T) {
	scope := newStubScope()
	h := NewCompiledHandler(
		PushConst(IntValue(50, EmptyUnits)),
		PushConst(IntValue(0, EmptyUnits)),
		PushConst(IntValue(10, EmptyUnits)),
		BoundOp(true, true),
	)
	out, err := h.Execute(scope)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Int() != 10 {
		t.Errorf("expected clamp to high bound 10, got %d", out.Int())
	}
}
