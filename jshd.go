package josh

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
)

const jshdVersion uint32 = 1
const jshdMaxUnitsLen = 200

// DoublePrecomputedGrid is the PrecomputedGrid of §4.F: a 3-D array
// values[t][y][x] of float64 over a fixed grid-space extent and timestep
// window, carrying a single units string for the whole grid.
type DoublePrecomputedGrid struct {
	MinX, MaxX         int64
	MinY, MaxY         int64
	MinStep, MaxStep   int64
	UnitsString        string
	Values             [][][]float64 // [t][y][x]
}

func (g *DoublePrecomputedGrid) height() int { return int(g.MaxY - g.MinY + 1) }
func (g *DoublePrecomputedGrid) width() int  { return int(g.MaxX - g.MinX + 1) }
func (g *DoublePrecomputedGrid) steps() int  { return int(g.MaxStep - g.MinStep + 1) }

// GetAt returns the cell value at location (x, y) and timestep, implementing
// DataGridLayer::get_at. Bounds violations report the specific axis.
// converter resolves the grid's stored units string into a canonical Units.
func (g *DoublePrecomputedGrid) GetAt(converter *Converter, x, y, step int64) (Value, error) {
	if step < g.MinStep || step > g.MaxStep {
		return Value{}, &GridOutOfBoundsError{Axis: AxisTimestep, Value: step, Min: g.MinStep, Max: g.MaxStep}
	}
	if y < g.MinY || y > g.MaxY {
		return Value{}, &GridOutOfBoundsError{Axis: AxisVertical, Value: y, Min: g.MinY, Max: g.MaxY}
	}
	if x < g.MinX || x > g.MaxX {
		return Value{}, &GridOutOfBoundsError{Axis: AxisHorizontal, Value: x, Min: g.MinX, Max: g.MaxX}
	}
	u, err := converter.Parse(g.UnitsString)
	if err != nil {
		return Value{}, err
	}
	raw := g.Values[step-g.MinStep][y-g.MinY][x-g.MinX]
	return DoubleValue(raw, u), nil
}

// IsCompatible reports whether g fully contains the requested extents and
// timestep window, per DataGridLayer::is_compatible.
func (g *DoublePrecomputedGrid) IsCompatible(minX, maxX, minY, maxY, minStep, maxStep int64) bool {
	return minX >= g.MinX && maxX <= g.MaxX &&
		minY >= g.MinY && maxY <= g.MaxY &&
		minStep >= g.MinStep && maxStep <= g.MaxStep
}

// SerializeJSHD writes the exact §6 binary layout: u32 version, six i64
// extents/timesteps, u32 units length, units bytes, then f64 values in
// (t, y, x) row-major order, all big-endian.
func SerializeJSHD(g *DoublePrecomputedGrid) ([]byte, error) {
	if len(g.UnitsString) > jshdMaxUnitsLen {
		return nil, &UnitsTooLongError{Length: len(g.UnitsString)}
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.BigEndian, jshdVersion); err != nil {
		return nil, err
	}
	extents := []int64{g.MinX, g.MaxX, g.MinY, g.MaxY, g.MinStep, g.MaxStep}
	for _, v := range extents {
		if err := binary.Write(buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}
	if err := binary.Write(buf, binary.BigEndian, uint32(len(g.UnitsString))); err != nil {
		return nil, err
	}
	buf.WriteString(g.UnitsString)
	for t := 0; t < g.steps(); t++ {
		for y := 0; y < g.height(); y++ {
			for x := 0; x < g.width(); x++ {
				if err := binary.Write(buf, binary.BigEndian, g.Values[t][y][x]); err != nil {
					return nil, err
				}
			}
		}
	}
	return buf.Bytes(), nil
}

// DeserializeJSHD reads the §6 binary layout back into a grid, validating
// the version and units length before materializing the 3-D array eagerly.
func DeserializeJSHD(data []byte) (*DoublePrecomputedGrid, error) {
	r := bytes.NewReader(data)
	var version uint32
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, &TruncatedBinaryError{Context: "version"}
	}
	if version != jshdVersion {
		return nil, &UnsupportedVersionError{Version: version}
	}
	extents := make([]int64, 6)
	for i := range extents {
		if err := binary.Read(r, binary.BigEndian, &extents[i]); err != nil {
			return nil, &TruncatedBinaryError{Context: "extents"}
		}
	}
	g := &DoublePrecomputedGrid{
		MinX: extents[0], MaxX: extents[1],
		MinY: extents[2], MaxY: extents[3],
		MinStep: extents[4], MaxStep: extents[5],
	}
	var unitsLen uint32
	if err := binary.Read(r, binary.BigEndian, &unitsLen); err != nil {
		return nil, &TruncatedBinaryError{Context: "units_len"}
	}
	if unitsLen > jshdMaxUnitsLen {
		return nil, &UnitsTooLongError{Length: int(unitsLen)}
	}
	unitsBytes := make([]byte, unitsLen)
	if _, err := io.ReadFull(r, unitsBytes); err != nil {
		return nil, &TruncatedBinaryError{Context: "units_bytes"}
	}
	g.UnitsString = string(unitsBytes)

	values := make([][][]float64, g.steps())
	for t := range values {
		plane := make([][]float64, g.height())
		for y := range plane {
			row := make([]float64, g.width())
			for x := range row {
				var v float64
				if err := binary.Read(r, binary.BigEndian, &v); err != nil {
					return nil, &TruncatedBinaryError{Context: fmt.Sprintf("value[%d][%d][%d]", t, y, x)}
				}
				row[x] = v
			}
			plane[y] = row
		}
		values[t] = plane
	}
	g.Values = values
	return g, nil
}

// EncodeBase64JSHD serializes g and wraps the result as standard base64
// with no line breaks, for embedding in text-based transports.
func EncodeBase64JSHD(g *DoublePrecomputedGrid) (string, error) {
	raw, err := SerializeJSHD(g)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeBase64JSHD reverses EncodeBase64JSHD.
func DecodeBase64JSHD(encoded string) (*DoublePrecomputedGrid, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	return DeserializeJSHD(raw)
}

// CombineGrids implements the single consistent GridCombiner of §4.F/§9:
// values are copied from left, then overwritten by right wherever right
// also defines a cell; the result's extents enclose both inputs and its
// timestep range is their union. Units must be alias-equal.
func CombineGrids(converter *Converter, left, right *DoublePrecomputedGrid) (*DoublePrecomputedGrid, error) {
	lu, err := converter.Parse(left.UnitsString)
	if err != nil {
		return nil, err
	}
	ru, err := converter.Parse(right.UnitsString)
	if err != nil {
		return nil, err
	}
	if !lu.Equal(ru) {
		return nil, &UnitMismatchError{Left: left.UnitsString, Right: right.UnitsString, Op: "combine"}
	}

	minX := min64(left.MinX, right.MinX)
	maxX := max64(left.MaxX, right.MaxX)
	minY := min64(left.MinY, right.MinY)
	maxY := max64(left.MaxY, right.MaxY)
	minStep := min64(left.MinStep, right.MinStep)
	maxStep := max64(left.MaxStep, right.MaxStep)

	out := &DoublePrecomputedGrid{
		MinX: minX, MaxX: maxX, MinY: minY, MaxY: maxY, MinStep: minStep, MaxStep: maxStep,
		UnitsString: left.UnitsString,
	}
	out.Values = make([][][]float64, out.steps())
	for t := range out.Values {
		plane := make([][]float64, out.height())
		for y := range plane {
			plane[y] = make([]float64, out.width())
		}
		out.Values[t] = plane
	}

	copyInto(out, left)
	copyInto(out, right)
	return out, nil
}

func copyInto(dst, src *DoublePrecomputedGrid) {
	for t := src.MinStep; t <= src.MaxStep; t++ {
		for y := src.MinY; y <= src.MaxY; y++ {
			for x := src.MinX; x <= src.MaxX; x++ {
				v := src.Values[t-src.MinStep][y-src.MinY][x-src.MinX]
				dst.Values[t-dst.MinStep][y-dst.MinY][x-dst.MinX] = v
			}
		}
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
