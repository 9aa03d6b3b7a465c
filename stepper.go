package josh

import (
	"fmt"
	"runtime"
	"sync"
)

// Retention is the number of trailing steps whose frozen snapshots stay
// retrievable from a Stepper (§8 scenario 5: step t and t-1 retrievable,
// t-2 and earlier are not). The source treats this window as fixed rather
// than configurable.
const Retention = 2

// Stepper drives one replicate's sub-step loop over a PatchGrid: per
// timestep it runs init (first step only), start, step, and end in order,
// across every patch, with cross-patch attribute resolution happening
// through each patch's ShadowingEntity and its `here`/`prior`/`meta`
// scopes. The per-sub-step fan-out follows the teacher's Calculations
// pattern in run.go: a fixed worker pool sized to GOMAXPROCS, each worker
// claiming every Nth patch.
type Stepper struct {
	grid   *PatchGrid
	bridge *EngineBridge

	history []map[*ShadowingEntity]*ImmutableEntity // ring of the last Retention steps' snapshots
}

// NewStepper binds a grid and bridge into a stepper ready to run from
// bridge's configured stepsLow.
func NewStepper(grid *PatchGrid, bridge *EngineBridge) *Stepper {
	return &Stepper{grid: grid, bridge: bridge}
}

// Perform runs every sub-step for the current timestep across all patches.
// serial forces single-goroutine execution of each sub-step, the same
// serial path of runSubStep that AssertParallelSerialEquivalence
// (SPEC_FULL.md supplement 3) compares against the parallel one.
func (s *Stepper) Perform(serial bool) error {
	step := s.bridge.AbsoluteTimestep()
	s.bridge.StartStep()

	events := []EventTag{EventStart, EventStep, EventEnd}
	if step == s.bridge.stepsLow {
		events = append([]EventTag{EventInit}, events...)
	}

	patches := s.grid.All()
	if len(patches) == 0 {
		return fmt.Errorf("perform: patch grid has no patches; call BuildPatchSet before running the step loop")
	}
	for _, p := range patches {
		if p == nil {
			return fmt.Errorf("perform: patch grid has an unbuilt cell; call BuildPatchSet before running the step loop")
		}
	}
	prior := s.snapshotFor(step - 1)

	for _, event := range events {
		for _, p := range patches {
			p.BeginEvent(event, s.bridge.stepsLow, step-s.bridge.stepsLow)
			if snap, ok := prior[p]; ok {
				p.SetPrior(snap)
			}
		}
		if err := s.runSubStep(patches, event, serial); err != nil {
			if se, ok := err.(*StepError); ok {
				se.Event = string(event)
				return se
			}
			return &StepError{
				PatchKey:  "<unknown>",
				Attribute: "<unknown>",
				Event:     string(event),
				Err:       err,
			}
		}
	}

	snapshot := make(map[*ShadowingEntity]*ImmutableEntity, len(patches))
	for _, p := range patches {
		snapshot[p] = p.Freeze()
	}
	s.pushSnapshot(step, snapshot)

	s.bridge.EndStep()
	return nil
}

func (s *Stepper) runSubStep(patches []*ShadowingEntity, event EventTag, serial bool) error {
	if serial {
		for _, p := range patches {
			if err := resolveAllAttributes(p); err != nil {
				return err
			}
		}
		return nil
	}

	nprocs := runtime.GOMAXPROCS(0)
	var wg sync.WaitGroup
	errs := make([]error, nprocs)
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			defer wg.Done()
			for ii := pp; ii < len(patches); ii += nprocs {
				if err := resolveAllAttributes(patches[ii]); err != nil {
					errs[pp] = err
					return
				}
			}
		}(pp)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// resolveAllAttributes forces resolution of every attribute this patch's
// prototype declares, so the at-most-once memoization (§3 invariant 2)
// actually runs this step's handlers rather than relying on some other
// attribute to trigger it transitively. A failure is wrapped with the
// failing patch and attribute right here, while both are still in scope,
// so that context survives the fan-out back up to Perform.
func resolveAllAttributes(p *ShadowingEntity) error {
	for _, attr := range p.prototype.Attributes {
		if _, err := p.ResolveAttribute(attr.Name); err != nil {
			return &StepError{PatchKey: patchKeyString(p), Attribute: attr.Name, Err: err}
		}
	}
	return nil
}

// patchKeyString renders a patch's GeoKey for diagnostic messages, falling
// back to its type name when no key has been assigned yet.
func patchKeyString(p *ShadowingEntity) string {
	if key, ok := p.GetKey(); ok {
		return fmt.Sprintf("%s:%v", key.TypeName, key.Geometry)
	}
	return p.Name()
}

func (s *Stepper) pushSnapshot(step int64, snap map[*ShadowingEntity]*ImmutableEntity) {
	s.history = append(s.history, snap)
	if len(s.history) > Retention {
		s.history = s.history[len(s.history)-Retention:]
	}
	_ = step
}

func (s *Stepper) snapshotFor(step int64) map[*ShadowingEntity]*ImmutableEntity {
	if step < 0 || len(s.history) == 0 {
		return nil
	}
	idx := len(s.history) - 1
	if idx < 0 {
		return nil
	}
	return s.history[idx]
}

// Snapshot returns the frozen state of every patch as of the given step,
// or nil if that step falls outside the retention window (§8 scenario 5).
func (s *Stepper) Snapshot(step int64) map[*ShadowingEntity]*ImmutableEntity {
	// The newest snapshot is the last completed step: the bridge only
	// stays on that step once the replicate is complete.
	current := s.bridge.AbsoluteTimestep()
	if !s.bridge.IsComplete() {
		current--
	}
	if step > current || step < current-int64(len(s.history))+1 {
		return nil
	}
	offset := int(current - step)
	idx := len(s.history) - 1 - offset
	if idx < 0 || idx >= len(s.history) {
		return nil
	}
	return s.history[idx]
}

// Run drives the stepper from its current step through completion,
// running the parallel path, and invoking onStep (if non-nil) after every
// completed timestep.
func (s *Stepper) Run(onStep func(step int64)) error {
	for !s.bridge.IsComplete() {
		step := s.bridge.AbsoluteTimestep()
		if err := s.Perform(false); err != nil {
			return err
		}
		if onStep != nil {
			onStep(step)
		}
	}
	return nil
}

// AssertParallelSerialEquivalence is the SPEC_FULL.md supplement 3 test
// helper: it runs the same single sub-step both ways starting from
// identical patch state and reports whether every resolved attribute
// agrees, letting tests assert the parallel path never introduces
// nondeterminism the DSL semantics forbid.
func AssertParallelSerialEquivalence(patches []*ShadowingEntity, event EventTag, stepsLow, stepIndex int64) (bool, error) {
	for _, p := range patches {
		p.BeginEvent(event, stepsLow, stepIndex)
	}
	serial := &Stepper{}
	if err := serial.runSubStep(patches, event, true); err != nil {
		return false, err
	}
	serialResults := snapshotAttributes(patches)

	for _, p := range patches {
		p.BeginEvent(event, stepsLow, stepIndex)
	}
	parallel := &Stepper{}
	if err := parallel.runSubStep(patches, event, false); err != nil {
		return false, err
	}
	parallelResults := snapshotAttributes(patches)

	for key, v := range serialResults {
		other, ok := parallelResults[key]
		if !ok || !Equal(v, other) {
			return false, nil
		}
	}
	return true, nil
}

type patchAttrKey struct {
	patch *ShadowingEntity
	attr  string
}

func snapshotAttributes(patches []*ShadowingEntity) map[patchAttrKey]Value {
	out := make(map[patchAttrKey]Value)
	for _, p := range patches {
		for _, attr := range p.prototype.Attributes {
			if v, ok := p.GetAttribute(attr.Name); ok {
				out[patchAttrKey{p, attr.Name}] = v
			}
		}
	}
	return out
}
