package josh

import (
	"sync"

	"github.com/ctessum/geom"
)

// EntityKind distinguishes the four entity kinds named in §3.
type EntityKind int

const (
	KindSimulationEntity EntityKind = iota
	KindPatchEntity
	KindOrganismEntity
	KindExternalResourceEntity
)

func (k EntityKind) String() string {
	switch k {
	case KindSimulationEntity:
		return "simulation"
	case KindPatchEntity:
		return "patch"
	case KindOrganismEntity:
		return "organism"
	case KindExternalResourceEntity:
		return "external"
	default:
		return "unknown"
	}
}

// GeoKey is an entity's identity in grid-space: geometry plus a type tag.
// Geometry is carried as a ctessum/geom value, the same package the
// teacher uses for Cell.Geom (framework.go).
type GeoKey struct {
	Geometry geom.Geom
	TypeName string
}

// Entity is the read/write contract every entity kind satisfies (§4.B).
// Event-handler evaluation never mutates an Entity directly — it writes
// through the shadowing layer (ShadowingEntity, §4.C) and only that layer
// calls SetAttribute.
type Entity interface {
	Name() string
	EntityKind() EntityKind
	GetAttribute(name string) (Value, bool)
	SetAttribute(name string, v Value)
	GetKey() (GeoKey, bool)
	Freeze() *ImmutableEntity
}

// MemberSpatialEntity is implemented by entities with a `parent` synthetic
// scope — only Organism in this data model (§3).
type MemberSpatialEntity interface {
	Entity
	Parent() Entity
}

// MutableEntity is the concrete backing store behind Patch, Organism,
// Simulation, and ExternalResource. Mirrors the teacher's Cell: a plain
// struct guarded by a sync.RWMutex so concurrent sub-step workers may read
// another patch's committed values while this entity resolves its own
// (framework.go's Cell.lock / Cell.getValue).
type MutableEntity struct {
	mu       sync.RWMutex
	typeName string
	kind     EntityKind
	attrs    map[string]Value
	key      *GeoKey
}

// NewMutableEntity returns an entity with no attributes set.
func NewMutableEntity(typeName string, kind EntityKind) *MutableEntity {
	return &MutableEntity{typeName: typeName, kind: kind, attrs: make(map[string]Value)}
}

func (e *MutableEntity) Name() string         { return e.typeName }
func (e *MutableEntity) EntityKind() EntityKind { return e.kind }

func (e *MutableEntity) GetAttribute(name string) (Value, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.attrs[name]
	return v, ok
}

func (e *MutableEntity) SetAttribute(name string, v Value) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attrs[name] = v
}

// SetKey assigns this entity's GeoKey (called once, at construction).
func (e *MutableEntity) SetKey(k GeoKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	kk := k
	e.key = &kk
}

func (e *MutableEntity) GetKey() (GeoKey, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.key == nil {
		return GeoKey{}, false
	}
	return *e.key, true
}

// Freeze produces an immutable snapshot independent of later mutation
// (§3 invariant 6), the same way framework.go's Cell.makecopy isolates
// boundary-cell state from the live grid.
func (e *MutableEntity) Freeze() *ImmutableEntity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := make(map[string]Value, len(e.attrs))
	for k, v := range e.attrs {
		snap[k] = v
	}
	var key *GeoKey
	if e.key != nil {
		kk := *e.key
		key = &kk
	}
	return &ImmutableEntity{typeName: e.typeName, kind: e.kind, attrs: snap, key: key}
}

// Organism is a MutableEntity bound to an owning patch as `parent`.
type Organism struct {
	*MutableEntity
	parent Entity
}

// NewOrganism returns an organism entity bound to parent.
func NewOrganism(typeName string, parent Entity) *Organism {
	return &Organism{MutableEntity: NewMutableEntity(typeName, KindOrganismEntity), parent: parent}
}

func (o *Organism) Parent() Entity { return o.parent }

// ImmutableEntity is the frozen snapshot produced by Freeze. It backs
// `prior` scope lookups and export records.
type ImmutableEntity struct {
	typeName string
	kind     EntityKind
	attrs    map[string]Value
	key      *GeoKey
}

func (e *ImmutableEntity) Name() string          { return e.typeName }
func (e *ImmutableEntity) EntityKind() EntityKind { return e.kind }

func (e *ImmutableEntity) GetAttribute(name string) (Value, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

func (e *ImmutableEntity) GetKey() (GeoKey, bool) {
	if e.key == nil {
		return GeoKey{}, false
	}
	return *e.key, true
}

// AttributePrototype pairs an attribute name with its compiled event
// handlers (§3).
type AttributePrototype struct {
	Name     string
	Handlers EventHandlers
}

// Prototype enumerates the attributes declared at parse time for one
// entity type. Build instantiates a fresh mutable entity with empty
// attributes; init handlers populate them on the first step.
type Prototype struct {
	TypeName   string
	Kind       EntityKind
	Attributes []AttributePrototype
}

// Build instantiates a fresh entity with no attributes set.
func (p *Prototype) Build() *MutableEntity {
	return NewMutableEntity(p.TypeName, p.Kind)
}

// HandlersFor returns the declared handlers for the named attribute, or
// ok=false if the prototype declares no such attribute.
func (p *Prototype) HandlersFor(attr string) (EventHandlers, bool) {
	for _, a := range p.Attributes {
		if a.Name == attr {
			return a.Handlers, true
		}
	}
	return nil, false
}
