package josh

import "testing"

func buildStepMarkerPrototype() *Prototype {
	return &Prototype{
		TypeName: "Patch",
		Kind:     KindPatchEntity,
		Attributes: []AttributePrototype{
			{Name: "stepMarker", Handlers: EventHandlers{
				EventStep: NewCompiledHandler(PushAttribute("meta.stepCount")),
			}},
		},
	}
}

func TestStepperSinglePatchAdvancesThroughCompletion(t *testing.T) {
	proto := buildStepMarkerPrototype()
	grid := NewPatchGrid(1, 1, 0, 0, 1)
	inner := proto.Build()
	shadow := NewShadowingEntity(inner, proto, NewConverter(), nil, nil, nil, nil)
	grid.Set(0, 0, shadow, "Patch")

	bridge := NewEngineBridge(NewConverter(), grid, map[string]*Prototype{"Patch": proto}, nil, 0, 3)
	stepper := NewStepper(grid, bridge)

	for !bridge.IsComplete() {
		if err := stepper.Perform(false); err != nil {
			t.Fatalf("perform: %v", err)
		}
	}

	v, ok := shadow.GetAttribute("stepMarker")
	if !ok || v.Int() != 3 {
		t.Errorf("expected the final stepMarker to be 3, got %v ok=%v", v, ok)
	}
}

func TestStepperRetentionWindow(t *testing.T) {
	proto := buildStepMarkerPrototype()
	grid := NewPatchGrid(1, 1, 0, 0, 1)
	inner := proto.Build()
	shadow := NewShadowingEntity(inner, proto, NewConverter(), nil, nil, nil, nil)
	grid.Set(0, 0, shadow, "Patch")

	bridge := NewEngineBridge(NewConverter(), grid, map[string]*Prototype{"Patch": proto}, nil, 0, 3)
	stepper := NewStepper(grid, bridge)

	for !bridge.IsComplete() {
		if err := stepper.Perform(false); err != nil {
			t.Fatalf("perform: %v", err)
		}
	}

	for _, step := range []int64{2, 3} {
		snap := stepper.Snapshot(step)
		if snap == nil {
			t.Fatalf("expected step %d to still be retrievable", step)
		}
		v, ok := snap[shadow].GetAttribute("stepMarker")
		if !ok || v.Int() != step {
			t.Errorf("step %d: expected stepMarker=%d, got %v ok=%v", step, step, v, ok)
		}
	}

	if snap := stepper.Snapshot(1); snap != nil {
		t.Errorf("expected step 1 to have fallen out of the retention window, got %v", snap)
	}
}

func TestPerformRejectsUnbuiltGrid(t *testing.T) {
	grid := NewPatchGrid(1, 1, 0, 0, 1) // cells left nil, never built via BuildPatchSet
	bridge := NewEngineBridge(NewConverter(), grid, map[string]*Prototype{}, nil, 0, 1)
	stepper := NewStepper(grid, bridge)

	if err := stepper.Perform(false); err == nil {
		t.Errorf("expected an error from an unbuilt grid instead of a nil-patch panic")
	}
}

func TestPerformStepErrorNamesTheFailingPatchAndAttribute(t *testing.T) {
	proto := &Prototype{
		TypeName: "Patch",
		Kind:     KindPatchEntity,
		Attributes: []AttributePrototype{
			{Name: "broken", Handlers: EventHandlers{
				EventStep: NewCompiledHandler(PushAttribute("nonexistent")),
			}},
		},
	}
	grid := NewPatchGrid(1, 1, 0, 0, 1)
	shadow := NewShadowingEntity(proto.Build(), proto, NewConverter(), nil, nil, nil, nil)
	grid.Set(0, 0, shadow, "Patch")

	bridge := NewEngineBridge(NewConverter(), grid, map[string]*Prototype{"Patch": proto}, nil, 0, 1)
	stepper := NewStepper(grid, bridge)

	err := stepper.Perform(true)
	if err == nil {
		t.Fatalf("expected a StepError from the broken handler")
	}
	stepErr, ok := err.(*StepError)
	if !ok {
		t.Fatalf("expected *StepError, got %T: %v", err, err)
	}
	if stepErr.Attribute != "broken" {
		t.Errorf("expected Attribute=%q, got %q", "broken", stepErr.Attribute)
	}
	if stepErr.PatchKey == "<unknown>" || stepErr.PatchKey == "" {
		t.Errorf("expected a real patch key, got %q", stepErr.PatchKey)
	}
	if stepErr.Event == "" {
		t.Errorf("expected Event to be filled in")
	}
}

func TestAssertParallelSerialEquivalenceAgrees(t *testing.T) {
	var patches []*ShadowingEntity
	for i := 0; i < 8; i++ {
		proto := buildStepMarkerPrototype()
		inner := proto.Build()
		patches = append(patches, NewShadowingEntity(inner, proto, NewConverter(), nil, nil, nil, nil))
	}
	ok, err := AssertParallelSerialEquivalence(patches, EventStep, 0, 0)
	if err != nil {
		t.Fatalf("assert: %v", err)
	}
	if !ok {
		t.Errorf("expected the serial and parallel sub-step results to agree")
	}
}
