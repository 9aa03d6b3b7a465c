package josh

import (
	"fmt"

	"github.com/google/uuid"
)

// Bridge is the surface a Scope delegates to for anything beyond its own
// attribute resolution: entity creation, spatial queries, and position
// construction (§4.D's createEntity/executeSpatialQuery/makePosition
// instructions).
type Bridge interface {
	CreateEntities(requester *ShadowingEntity, typeName string, count int) error
	ExecuteSpatialQuery(requester *ShadowingEntity, distance Value, attribute string) (Value, error)
	MakePosition(x, y Value) (Value, error)
}

// pendingOrganism is a creation request issued mid-step; new organisms are
// materialized at the next step boundary, matching the teacher's pattern
// of deferring topology changes to iteration boundaries (run.go's
// Calculations run to fixed point before vargrid.go ever mutates Cells).
type pendingOrganism struct {
	typeName string
	parent   *ShadowingEntity
}

// EngineBridge is the QueryCacheEngineBridge of §4.E/§4.G: the concrete
// per-replicate state a running simulation threads through every
// ShadowingEntity it builds.
type EngineBridge struct {
	converter   *Converter
	grid        *PatchGrid
	queryCache  *QueryCache
	prototypes  map[string]*Prototype
	precomputed map[string]*DoublePrecomputedGrid
	config      *Config

	replicateID string
	stepsLow    int64
	stepsHigh   int64
	stepIndex   int64
	complete    bool

	pending   []pendingOrganism
	organisms []*ShadowingEntity

	stepCallbacks []StepCallback
}

// StepCallback is invoked at the end of every completed step. Supplements
// the single-callback pattern the teacher's Calculations loop uses with
// support for more than one registered observer.
type StepCallback func(stepIndex int64, patches []*ShadowingEntity)

// NewEngineBridge wires a converter, grid, and prototype registry into a
// fresh replicate bridge, with stepIndex starting at stepsLow.
func NewEngineBridge(converter *Converter, grid *PatchGrid, prototypes map[string]*Prototype, config *Config, stepsLow, stepsHigh int64) *EngineBridge {
	return &EngineBridge{
		converter:   converter,
		grid:        grid,
		queryCache:  NewQueryCache(10000),
		prototypes:  prototypes,
		precomputed: make(map[string]*DoublePrecomputedGrid),
		config:      config,
		replicateID: uuid.NewString(),
		stepsLow:    stepsLow,
		stepsHigh:   stepsHigh,
		stepIndex:   stepsLow,
	}
}

// RegisterStepCallback adds an observer notified after every step, the
// supplemented multi-callback form described in SPEC_FULL.md.
func (b *EngineBridge) RegisterStepCallback(cb StepCallback) {
	b.stepCallbacks = append(b.stepCallbacks, cb)
}

// SetGrid installs the replicate's patch grid. NewEngineBridge is
// constructed before the simulation entity resolves grid.low/grid.high
// (§4.H's step-0 specialization), so the bridge starts with a placeholder
// grid and the real one is installed here once its extents are known.
func (b *EngineBridge) SetGrid(grid *PatchGrid) { b.grid = grid }

// RegisterPrecomputed installs a loaded .jshd grid under a logical name,
// addressable later via GetPrecomputed.
func (b *EngineBridge) RegisterPrecomputed(name string, grid *DoublePrecomputedGrid) {
	b.precomputed[name] = grid
}

// StartStep resets the step-scoped query cache, the bridge's half of the
// QueryCacheEngineBridge contract.
func (b *EngineBridge) StartStep() {
	b.queryCache.Reset()
}

// EndStep materializes any entities created during the step just finished,
// advances the step counter, invokes registered callbacks, and marks
// completion once the configured step window is exhausted.
func (b *EngineBridge) EndStep() {
	b.materializePending()
	b.queryCache.Reset()
	patches := b.grid.All()
	for _, cb := range b.stepCallbacks {
		cb(b.stepIndex, patches)
	}
	if b.stepIndex >= b.stepsHigh {
		b.complete = true
		return
	}
	b.stepIndex++
}

func (b *EngineBridge) materializePending() {
	for _, p := range b.pending {
		proto, ok := b.prototypes[p.typeName]
		if !ok {
			continue
		}
		inner := proto.Build()
		var parentEntity Entity = p.parent
		inner.SetAttribute("parent", EntityRefValue(parentEntity, p.parent.Name()))
		shadow := NewShadowingEntity(inner, proto, b.converter, b, p.parent.here, p.parent.metaEntity, p.parent)
		shadow.BeginEvent(EventInit, b.stepsLow, b.stepIndex-b.stepsLow)
		b.organisms = append(b.organisms, shadow)
	}
	b.pending = nil
}

// CurrentOrganisms returns every organism created so far across the
// replicate's lifetime.
func (b *EngineBridge) CurrentOrganisms() []*ShadowingEntity { return b.organisms }

// CurrentPatches returns every patch in the replicate's grid.
func (b *EngineBridge) CurrentPatches() []*ShadowingEntity { return b.grid.All() }

// AbsoluteTimestep returns the step index currently in progress.
func (b *EngineBridge) AbsoluteTimestep() int64 { return b.stepIndex }

// IsComplete reports whether the replicate has finished its configured
// step window (§4.E/§8 scenario "Completion").
func (b *EngineBridge) IsComplete() bool { return b.complete }

// Replicate returns this bridge's replicate identifier. Besides the
// integer step index, every replicate also carries a UUID so exported
// records and logs can be correlated across repeated runs of the same
// simulation — the supplemented identity scheme of SPEC_FULL.md.
func (b *EngineBridge) Replicate() string { return b.replicateID }

// GetConfig returns a previously parsed .jshc config section by name.
func (b *EngineBridge) GetConfig(name string) (ConfigSection, bool) {
	if b.config == nil {
		return ConfigSection{}, false
	}
	return b.config.Section(name)
}

// GetPrecomputed returns the named precomputed grid if it is compatible
// with the requested extents and step range, per §4.F's is_compatible
// contract.
func (b *EngineBridge) GetPrecomputed(name string, minX, maxX, minY, maxY, minStep, maxStep int64) (*DoublePrecomputedGrid, error) {
	g, ok := b.precomputed[name]
	if !ok {
		return nil, &ExternalDataNotFoundError{Name: name}
	}
	if !g.IsCompatible(minX, maxX, minY, maxY, minStep, maxStep) {
		return nil, &GridOutOfBoundsError{
			Axis: AxisTimestep, Value: maxStep, Min: g.MinStep, Max: g.MaxStep,
			SimStepsLow: b.stepsLow, SimStepsHigh: b.stepsHigh, HasSimRange: true,
		}
	}
	return g, nil
}

// CreateEntities implements the Bridge contract's createEntity
// instruction: count organisms of typeName are queued, bound to
// requester as parent, and materialized at the next step boundary.
func (b *EngineBridge) CreateEntities(requester *ShadowingEntity, typeName string, count int) error {
	if _, ok := b.prototypes[typeName]; !ok {
		return fmt.Errorf("createEntity: unknown entity type %q", typeName)
	}
	for i := 0; i < count; i++ {
		b.pending = append(b.pending, pendingOrganism{typeName: typeName, parent: requester})
	}
	return nil
}

// ExecuteSpatialQuery implements the Bridge contract's executeSpatialQuery
// instruction, backed by the step-scoped QueryCache (§4.G): on a cache
// miss it scans patches within distance of requester and materializes a
// Distribution of their named attribute.
func (b *EngineBridge) ExecuteSpatialQuery(requester *ShadowingEntity, distance Value, attribute string) (Value, error) {
	key, ok := requester.Inner().GetKey()
	if !ok {
		return Value{}, fmt.Errorf("executeSpatialQuery: requester has no GeoKey")
	}
	if cached, ok := b.queryCache.Get(key, distance, attribute); ok {
		return cached, nil
	}
	meters, ok := distance.asFloat()
	if !ok {
		return Value{}, fmt.Errorf("executeSpatialQuery: distance must be numeric")
	}
	neighbors := b.grid.WithinDistance(key, meters)
	values := make([]float64, 0, len(neighbors))
	var units Units
	for i, n := range neighbors {
		v, ok := n.GetAttribute(attribute)
		if !ok {
			continue
		}
		f, ok := v.asFloat()
		if !ok {
			continue
		}
		if i == 0 {
			units = v.Units()
		}
		values = append(values, f)
	}
	result := DistributionValue(NewRealizedDistribution(values, units), units)
	b.queryCache.Put(key, distance, attribute, result)
	return result, nil
}

// MakePosition implements the Bridge contract's makePosition instruction:
// (x, y) are read as Earth coordinates (x = longitude, y = latitude),
// projected to the nearest patch with EarthToGrid (clamped to the grid),
// and returned as an entity reference to that patch.
func (b *EngineBridge) MakePosition(x, y Value) (Value, error) {
	xf, ok1 := x.asFloat()
	yf, ok2 := y.asFloat()
	if !ok1 || !ok2 {
		return Value{}, fmt.Errorf("makePosition: x and y must be numeric")
	}
	row, col := b.grid.EarthToGrid(yf, xf)
	patch := b.grid.At(row, col)
	if patch == nil {
		return Value{}, fmt.Errorf("makePosition: (%g, %g) is outside the grid", xf, yf)
	}
	return EntityRefValue(patch, patch.Inner().Name()), nil
}
