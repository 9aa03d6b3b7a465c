package josh

import "testing"

func buildTestGrid(minStep, maxStep, minY, maxY, minX, maxX int64, units string) *DoublePrecomputedGrid {
	g := &DoublePrecomputedGrid{
		MinX: minX, MaxX: maxX, MinY: minY, MaxY: maxY, MinStep: minStep, MaxStep: maxStep,
		UnitsString: units,
	}
	g.Values = make([][][]float64, g.steps())
	for t := range g.Values {
		plane := make([][]float64, g.height())
		for y := range plane {
			row := make([]float64, g.width())
			for x := range row {
				row[x] = float64(t)*100 + float64(y)*10 + float64(x)
			}
			plane[y] = row
		}
		g.Values[t] = plane
	}
	return g
}

func TestJSHDSerializeDeserializeRoundTrip(t *testing.T) {
	g := buildTestGrid(0, 2, 0, 1, 0, 3, "kg")
	data, err := SerializeJSHD(g)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	got, err := DeserializeJSHD(data)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if got.UnitsString != "kg" {
		t.Errorf("expected units kg, got %q", got.UnitsString)
	}
	for tt := 0; tt < g.steps(); tt++ {
		for y := 0; y < g.height(); y++ {
			for x := 0; x < g.width(); x++ {
				if got.Values[tt][y][x] != g.Values[tt][y][x] {
					t.Errorf("value[%d][%d][%d]: want %v got %v", tt, y, x, g.Values[tt][y][x], got.Values[tt][y][x])
				}
			}
		}
	}
}

func TestJSHDBase64RoundTrip(t *testing.T) {
	g := buildTestGrid(0, 1, 0, 0, 0, 1, "m")
	encoded, err := EncodeBase64JSHD(g)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeBase64JSHD(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.UnitsString != "m" || got.Values[1][0][1] != g.Values[1][0][1] {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestJSHDRejectsBadVersion(t *testing.T) {
	g := buildTestGrid(0, 0, 0, 0, 0, 0, "kg")
	data, err := SerializeJSHD(g)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	data[3] = 0xFF // corrupt the low byte of the big-endian version field
	if _, err := DeserializeJSHD(data); err == nil {
		t.Errorf("expected UnsupportedVersionError")
	}
}

func TestJSHDRejectsTruncatedData(t *testing.T) {
	g := buildTestGrid(0, 0, 0, 0, 0, 0, "kg")
	data, err := SerializeJSHD(g)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if _, err := DeserializeJSHD(data[:len(data)-4]); err == nil {
		t.Errorf("expected a TruncatedBinaryError for data missing its last value")
	}
}

func TestGetAtBoundsChecking(t *testing.T) {
	c := NewConverter()
	g := buildTestGrid(0, 1, 0, 1, 0, 1, "kg")

	v, err := g.GetAt(c, 1, 1, 1)
	if err != nil {
		t.Fatalf("getAt: %v", err)
	}
	if v.Double() != 111 {
		t.Errorf("expected 111, got %v", v.Double())
	}

	if _, err := g.GetAt(c, 0, 0, 5); err == nil {
		t.Errorf("expected GridOutOfBoundsError on the timestep axis")
	}
	if _, err := g.GetAt(c, 0, 5, 0); err == nil {
		t.Errorf("expected GridOutOfBoundsError on the vertical axis")
	}
	if _, err := g.GetAt(c, 5, 0, 0); err == nil {
		t.Errorf("expected GridOutOfBoundsError on the horizontal axis")
	}
}

func TestIsCompatible(t *testing.T) {
	g := buildTestGrid(0, 10, 0, 10, 0, 10, "kg")
	if !g.IsCompatible(1, 5, 1, 5, 1, 5) {
		t.Errorf("expected an interior range to be compatible")
	}
	if g.IsCompatible(-1, 5, 0, 5, 0, 5) {
		t.Errorf("expected a range exceeding MinX to be incompatible")
	}
}

func TestCombineGridsOverlayPrefersRight(t *testing.T) {
	c := NewConverter()
	left := buildTestGrid(0, 0, 0, 1, 0, 1, "kg")
	right := buildTestGrid(0, 0, 0, 1, 0, 1, "kg")
	for y := range right.Values[0] {
		for x := range right.Values[0][y] {
			right.Values[0][y][x] = 999
		}
	}
	combined, err := CombineGrids(c, left, right)
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	if combined.Values[0][0][0] != 999 {
		t.Errorf("expected right's overlay to win, got %v", combined.Values[0][0][0])
	}
}

func TestCombineGridsRejectsMismatchedUnits(t *testing.T) {
	c := NewConverter()
	left := buildTestGrid(0, 0, 0, 0, 0, 0, "kg")
	right := buildTestGrid(0, 0, 0, 0, 0, 0, "m")
	if _, err := CombineGrids(c, left, right); err == nil {
		t.Errorf("expected UnitMismatchError")
	}
}
