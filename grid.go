package josh

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

// earthRadiusMeters is the mean Earth radius used for haversine distance.
const earthRadiusMeters = 6371000.0

// PatchGrid is the patch grid of §3, with the Earth↔grid projection of
// §4.F (precomputed data lives in DoublePrecomputedGrid): a row-major array of
// patches addressed both by (row, col) grid coordinates and by Earth
// (lat, lon) coordinates, the same two-coordinate-system duality the
// teacher's InMAP grid maintains between Cell.Row/Layer and Cell.Geom
// (vargrid.go's InMAPbounds and the Cell index built in framework.go).
type PatchGrid struct {
	rows, cols int
	originLat  float64 // latitude of row 0
	originLon  float64 // longitude of col 0
	cellSizeDeg float64 // degrees per row/col step

	cells []*ShadowingEntity // row-major, len == rows*cols
	keys  []GeoKey
}

// NewPatchGrid allocates an empty rows*cols grid anchored at
// (originLat, originLon) with the given cell size in degrees.
func NewPatchGrid(rows, cols int, originLat, originLon, cellSizeDeg float64) *PatchGrid {
	return &PatchGrid{
		rows: rows, cols: cols,
		originLat: originLat, originLon: originLon, cellSizeDeg: cellSizeDeg,
		cells: make([]*ShadowingEntity, rows*cols),
		keys:  make([]GeoKey, rows*cols),
	}
}

func (g *PatchGrid) index(row, col int) int { return row*g.cols + col }

// Set installs the shadowing entity for (row, col) and records its GeoKey.
func (g *PatchGrid) Set(row, col int, e *ShadowingEntity, typeName string) {
	i := g.index(row, col)
	lat, lon := g.GridToEarth(row, col)
	center := geom.Point{X: lon, Y: lat}
	key := GeoKey{Geometry: center, TypeName: typeName}
	g.cells[i] = e
	g.keys[i] = key
	if mut, ok := e.Inner().(*MutableEntity); ok {
		mut.SetKey(key)
	}
}

// At returns the patch at (row, col), or nil if out of bounds.
func (g *PatchGrid) At(row, col int) *ShadowingEntity {
	if row < 0 || row >= g.rows || col < 0 || col >= g.cols {
		return nil
	}
	return g.cells[g.index(row, col)]
}

// All returns every patch in the grid, row-major order.
func (g *PatchGrid) All() []*ShadowingEntity { return g.cells }

// Dims returns the grid's (rows, cols).
func (g *PatchGrid) Dims() (int, int) { return g.rows, g.cols }

// GridToEarth projects grid coordinates to Earth (lat, lon), per §4.F's
// grid<->Earth projection requirement.
func (g *PatchGrid) GridToEarth(row, col int) (lat, lon float64) {
	lat = g.originLat + float64(row)*g.cellSizeDeg
	lon = g.originLon + float64(col)*g.cellSizeDeg
	return lat, lon
}

// EarthToGrid projects an Earth (lat, lon) coordinate to the nearest grid
// cell, clamped to the grid's bounds.
func (g *PatchGrid) EarthToGrid(lat, lon float64) (row, col int) {
	row = int(math.Round((lat - g.originLat) / g.cellSizeDeg))
	col = int(math.Round((lon - g.originLon) / g.cellSizeDeg))
	if row < 0 {
		row = 0
	}
	if row >= g.rows {
		row = g.rows - 1
	}
	if col < 0 {
		col = 0
	}
	if col >= g.cols {
		col = g.cols - 1
	}
	return row, col
}

// haversineMeters returns the great-circle distance between two
// (lat, lon) points in meters.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// WithinDistance returns every patch whose center lies within
// distanceMeters (great-circle) of origin's center, origin excluded. It
// scans every patch and filters by haversine distance; unlike the
// teacher's bounding-box-then-filter neighbor search (neighbors.go's
// getCells), there is no bounding-box prefilter.
func (g *PatchGrid) WithinDistance(origin GeoKey, distanceMeters float64) []*ShadowingEntity {
	oc, ok := centerOf(origin)
	if !ok {
		return nil
	}
	out := make([]*ShadowingEntity, 0)
	for i, k := range g.keys {
		c, ok := centerOf(k)
		if !ok {
			continue
		}
		if c == oc {
			continue
		}
		if haversineMeters(oc.Y, oc.X, c.Y, c.X) <= distanceMeters {
			out = append(out, g.cells[i])
		}
	}
	return out
}

func centerOf(k GeoKey) (geom.Point, bool) {
	p, ok := k.Geometry.(geom.Point)
	return p, ok
}

// GridExtentsFromSimulation resolves a simulation entity's grid.lowX/
// grid.lowY/grid.highX/grid.highY/grid.size attributes into the row/col
// count and cell size a PatchGrid needs at construction, per §4.H's "Step 0
// specialization": these are the meta attributes "resolved at this point
// and used to construct the patch set".
func GridExtentsFromSimulation(sim *ShadowingEntity) (rows, cols int, cellSizeDeg float64, err error) {
	lowX, err := resolveGridCoord(sim, "grid.lowX")
	if err != nil {
		return 0, 0, 0, err
	}
	highX, err := resolveGridCoord(sim, "grid.highX")
	if err != nil {
		return 0, 0, 0, err
	}
	lowY, err := resolveGridCoord(sim, "grid.lowY")
	if err != nil {
		return 0, 0, 0, err
	}
	highY, err := resolveGridCoord(sim, "grid.highY")
	if err != nil {
		return 0, 0, 0, err
	}
	sizeV, err := sim.resolveOwnAttribute("grid.size", newResolveFrame())
	if err != nil {
		return 0, 0, 0, err
	}
	size, ok := sizeV.asFloat()
	if !ok {
		return 0, 0, 0, fmt.Errorf("buildPatchSet: grid.size must be numeric")
	}
	rows = highY - lowY + 1
	cols = highX - lowX + 1
	if rows <= 0 || cols <= 0 {
		return 0, 0, 0, fmt.Errorf("buildPatchSet: grid extents must be non-empty, got lowX=%d highX=%d lowY=%d highY=%d",
			lowX, highX, lowY, highY)
	}
	return rows, cols, size, nil
}

// resolveGridCoord resolves name as one of sim's own attributes. The grid
// attribute names contain a dot, which ResolveAttribute would treat as a
// scope path separator.
func resolveGridCoord(sim *ShadowingEntity, name string) (int, error) {
	v, err := sim.resolveOwnAttribute(name, newResolveFrame())
	if err != nil {
		return 0, err
	}
	f, ok := v.asFloat()
	if !ok {
		return 0, fmt.Errorf("buildPatchSet: %s must be numeric", name)
	}
	return int(f), nil
}

// BuildPatchSet materializes one patch per cell of grid from patchProto,
// wiring each patch's `meta` scope to sim and its `here` scope to itself —
// the "Patch set construction" step of §4.H. grid must already be sized to
// the extents GridExtentsFromSimulation reported; BuildPatchSet only fills
// in cells, it never resizes the grid.
func BuildPatchSet(grid *PatchGrid, patchProto *Prototype, converter *Converter, bridge Bridge, sim *ShadowingEntity) []*ShadowingEntity {
	rows, cols := grid.Dims()
	patches := make([]*ShadowingEntity, 0, rows*cols)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			inner := patchProto.Build()
			patch := NewShadowingEntity(inner, patchProto, converter, bridge, nil, sim, nil)
			grid.Set(row, col, patch, patchProto.TypeName)
			patches = append(patches, patch)
		}
	}
	return patches
}
