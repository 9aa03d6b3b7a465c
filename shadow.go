package josh

import (
	"fmt"
	"strings"
	"sync"
)

// resolveFrame is the "shared context object carrying the in-progress
// set" called for in §9: it is threaded through every nested synthetic-
// scope hop of a single top-level ResolveAttribute call, so that
// `meta.fire.trigger.coverThreshold` cannot re-enter any attribute
// already on that call's stack, even though `fire`, `trigger`, and the
// target attribute live on three different entities.
type resolveFrame struct {
	inProgress map[string]bool
}

func newResolveFrame() *resolveFrame { return &resolveFrame{inProgress: make(map[string]bool)} }

func (f *resolveFrame) key(e *ShadowingEntity, attr string) string {
	return fmt.Sprintf("%p:%s", e, attr)
}

// circularSafeScope is the CircularSafe decorator of §9: a ShadowingEntity
// paired with the frame of the enclosing resolution. It is what gets
// handed to a CompiledHandler as its Scope, instead of the ShadowingEntity
// itself, so every nested attribute read shares one in-progress set.
type circularSafeScope struct {
	entity *ShadowingEntity
	frame  *resolveFrame
}

func (c circularSafeScope) ResolveAttribute(path string) (Value, error) {
	return c.entity.resolveWithFrame(path, c.frame)
}
func (c circularSafeScope) Converter() *Converter { return c.entity.converter }
func (c circularSafeScope) CreateEntities(typeName string, count int) error {
	return c.entity.CreateEntities(typeName, count)
}
func (c circularSafeScope) ExecuteSpatialQuery(distance Value, attribute string) (Value, error) {
	return c.entity.ExecuteSpatialQuery(distance, attribute)
}
func (c circularSafeScope) MakePosition(x, y Value) (Value, error) {
	return c.entity.MakePosition(x, y)
}

// ShadowingEntity is the runtime wrapper described in §4.C: it memoizes
// attribute resolution for the current event and provides the synthetic
// scope names (`current`, `prior`, `here`, `meta`, `parent`, `geoKey`).
type ShadowingEntity struct {
	inner     Entity
	prototype *Prototype
	converter *Converter
	bridge    Bridge

	here         *ShadowingEntity // self for a patch; owning patch for an organism
	metaEntity   *ShadowingEntity // nil when this entity IS the simulation
	parentEntity *ShadowingEntity // organism only

	priorSnapshot *ImmutableEntity

	stepsLow  int64
	stepCount int64

	mu       sync.Mutex
	resolved map[string]Value
	event    EventTag
}

// NewShadowingEntity wraps inner for resolution against prototype, using
// converter for unit handling and bridge for entity creation and spatial
// queries. here/metaEntity/parentEntity supply the synthetic scopes;
// metaEntity is nil iff inner IS the simulation entity.
func NewShadowingEntity(inner Entity, prototype *Prototype, converter *Converter, bridge Bridge,
	here, metaEntity, parentEntity *ShadowingEntity) *ShadowingEntity {
	e := &ShadowingEntity{
		inner:     inner,
		prototype: prototype,
		converter: converter,
		bridge:    bridge,
		metaEntity: metaEntity,
		parentEntity: parentEntity,
	}
	if here != nil {
		e.here = here
	} else {
		e.here = e
	}
	return e
}

// BeginEvent resets the per-event memoization state. Must be called once
// before resolving any attribute for a new (step, event) pair — matching
// §3's "resolved map (attribute) → Value for the current event".
func (e *ShadowingEntity) BeginEvent(event EventTag, stepsLow, stepCount int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resolved = make(map[string]Value)
	e.event = event
	e.stepsLow = stepsLow
	e.stepCount = stepCount
}

// SetPrior installs the previous-step snapshot used by `prior` lookups
// and by the cycle-bypass read.
func (e *ShadowingEntity) SetPrior(snapshot *ImmutableEntity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.priorSnapshot = snapshot
}

func splitFirst(path string) (head, rest string) {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i], path[i+1:]
	}
	return path, ""
}

// ResolveAttribute is the Scope entry point (and the public resolution
// API): it starts a fresh resolveFrame and resolves path against this
// entity's synthetic and real attribute scope.
func (e *ShadowingEntity) ResolveAttribute(path string) (Value, error) {
	return e.resolveWithFrame(path, newResolveFrame())
}

func (e *ShadowingEntity) Converter() *Converter { return e.converter }

func (e *ShadowingEntity) CreateEntities(typeName string, count int) error {
	return e.bridge.CreateEntities(e, typeName, count)
}

func (e *ShadowingEntity) ExecuteSpatialQuery(distance Value, attribute string) (Value, error) {
	return e.bridge.ExecuteSpatialQuery(e, distance, attribute)
}

func (e *ShadowingEntity) MakePosition(x, y Value) (Value, error) {
	return e.bridge.MakePosition(x, y)
}

func (e *ShadowingEntity) resolveWithFrame(path string, frame *resolveFrame) (Value, error) {
	head, rest := splitFirst(path)
	switch head {
	case "current":
		if rest == "" {
			return EntityRefValue(e, e.inner.Name()), nil
		}
		return (circularSafeScope{entity: e, frame: frame}).ResolveAttribute(rest)
	case "prior":
		return e.resolvePrior(rest)
	case "here":
		if e.here == nil {
			return Value{}, fmt.Errorf("here is not defined in this scope")
		}
		if rest == "" {
			return EntityRefValue(e.here, e.here.inner.Name()), nil
		}
		return (circularSafeScope{entity: e.here, frame: frame}).ResolveAttribute(rest)
	case "meta":
		target := e.metaEntity
		if target == nil {
			target = e // this entity IS the simulation
		}
		return target.resolveMetaSynthetic(rest, frame)
	case "parent":
		if e.parentEntity == nil {
			return Value{}, fmt.Errorf("parent is not defined in this scope")
		}
		if rest == "" {
			return EntityRefValue(e.parentEntity, e.parentEntity.inner.Name()), nil
		}
		return (circularSafeScope{entity: e.parentEntity, frame: frame}).ResolveAttribute(rest)
	case "geoKey":
		if rest != "" {
			return Value{}, fmt.Errorf("geoKey has no nested attributes")
		}
		return e.resolveGeoKey()
	default:
		if rest == "" {
			return e.resolveOwnAttribute(head, frame)
		}
		v, err := e.resolveOwnAttribute(head, frame)
		if err != nil {
			return Value{}, err
		}
		if v.Kind() != KindEntityRef {
			return Value{}, fmt.Errorf("attribute %q is not an entity reference; cannot resolve %q", head, rest)
		}
		next, ok := v.Entity().(*ShadowingEntity)
		if !ok {
			return Value{}, fmt.Errorf("attribute %q does not support nested attribute resolution", head)
		}
		return (circularSafeScope{entity: next, frame: frame}).ResolveAttribute(rest)
	}
}

// resolveMetaSynthetic implements the `meta.year`/`meta.stepCount`/
// `meta.step` synthesis of §4.C: these are derived from
// steps.low + stepCount whenever the simulation prototype does not
// declare them explicitly.
func (e *ShadowingEntity) resolveMetaSynthetic(rest string, frame *resolveFrame) (Value, error) {
	if rest == "" {
		return EntityRefValue(e, e.inner.Name()), nil
	}
	head, tail := splitFirst(rest)
	if tail == "" {
		if _, declared := e.prototype.HandlersFor(head); !declared {
			switch head {
			case "year", "stepCount", "step":
				return IntValue(e.stepsLow+e.stepCount, EmptyUnits), nil
			}
		}
	}
	return (circularSafeScope{entity: e, frame: frame}).ResolveAttribute(rest)
}

func (e *ShadowingEntity) resolveGeoKey() (Value, error) {
	if v, ok := e.inner.GetAttribute("geoKey"); ok {
		return v, nil
	}
	key, ok := e.inner.GetKey()
	if !ok {
		return Value{}, &MissingAttributeError{Name: "geoKey"}
	}
	return StringValue(fmt.Sprintf("%s:%v", key.TypeName, key.Geometry), EmptyUnits), nil
}

func (e *ShadowingEntity) resolvePrior(rest string) (Value, error) {
	e.mu.Lock()
	snapshot := e.priorSnapshot
	e.mu.Unlock()
	if snapshot == nil {
		return Value{}, &MissingAttributeError{Name: "prior." + rest}
	}
	if rest == "" {
		return EntityRefValue(nil, e.inner.Name()), nil
	}
	head, tail := splitFirst(rest)
	v, ok := snapshot.GetAttribute(head)
	if !ok {
		return Value{}, &MissingAttributeError{Name: head}
	}
	if tail == "" {
		return v, nil
	}
	if v.Kind() == KindEntityRef {
		if ref, ok := v.Entity().(*ShadowingEntity); ok {
			return (circularSafeScope{entity: ref, frame: newResolveFrame()}).ResolveAttribute(tail)
		}
	}
	return Value{}, fmt.Errorf("prior.%s has no nested attribute %q", head, tail)
}

// resolveOwnAttribute implements the three-step algorithm of §4.C over
// this entity's own attribute store.
func (e *ShadowingEntity) resolveOwnAttribute(name string, frame *resolveFrame) (Value, error) {
	e.mu.Lock()
	if v, ok := e.resolved[name]; ok {
		e.mu.Unlock()
		return v, nil
	}
	key := frame.key(e, name)
	if frame.inProgress[key] {
		e.mu.Unlock()
		return e.bypassRead(name)
	}
	frame.inProgress[key] = true
	event := e.event
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(frame.inProgress, key)
		e.mu.Unlock()
	}()

	handlers, declared := e.prototype.HandlersFor(name)
	if !declared {
		if v, ok := e.inner.GetAttribute(name); ok {
			return v, nil
		}
		return Value{}, &MissingAttributeError{Name: name}
	}
	handler, _, ok := handlers.ForEvent(event)
	if !ok {
		return Value{}, &MissingAttributeError{Name: name}
	}

	scope := circularSafeScope{entity: e, frame: frame}
	v, err := handler.Execute(scope)
	if err != nil {
		return Value{}, err
	}

	e.mu.Lock()
	e.resolved[name] = v
	e.mu.Unlock()
	e.inner.SetAttribute(name, v)
	return v, nil
}

// bypassRead implements the cycle-bypass path of §4.C step 2: a
// re-entrant read of an in-progress attribute falls through to the value
// already committed to underlying storage, which at that point in time is
// still the prior step's frozen value.
func (e *ShadowingEntity) bypassRead(name string) (Value, error) {
	if v, ok := e.inner.GetAttribute(name); ok {
		return v, nil
	}
	e.mu.Lock()
	snapshot := e.priorSnapshot
	e.mu.Unlock()
	if snapshot != nil {
		if v, ok := snapshot.GetAttribute(name); ok {
			return v, nil
		}
	}
	return Value{}, &ResolutionLoopError{Attribute: name}
}

// --- Entity interface, so a ShadowingEntity can itself be carried as an
// EntityRef Value and chained through further dotted-path resolution.

func (e *ShadowingEntity) Name() string           { return e.inner.Name() }
func (e *ShadowingEntity) EntityKind() EntityKind { return e.inner.EntityKind() }

func (e *ShadowingEntity) GetAttribute(name string) (Value, bool) {
	v, err := e.resolveOwnAttribute(name, newResolveFrame())
	if err != nil {
		return Value{}, false
	}
	return v, true
}

func (e *ShadowingEntity) SetAttribute(name string, v Value) { e.inner.SetAttribute(name, v) }
func (e *ShadowingEntity) GetKey() (GeoKey, bool)            { return e.inner.GetKey() }
func (e *ShadowingEntity) Freeze() *ImmutableEntity          { return e.inner.Freeze() }

// Inner exposes the backing mutable entity, used by the stepper to
// construct GeoKeys and manage the patch set.
func (e *ShadowingEntity) Inner() Entity { return e.inner }
