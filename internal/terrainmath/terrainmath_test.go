package terrainmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annelo/terrain-streamer/internal/config"
)

// funcSource - поле высот, заданное функцией, для проверок без шума
type funcSource struct {
	height func(x, z float64) float64
	river  float64
	moist  float64
	slope  float64
	amp    float64
}

func (s funcSource) Height(x, z float64) float64   { return s.height(x, z) }
func (s funcSource) River(x, z float64) float64    { return s.river }
func (s funcSource) Moisture(x, z float64) float64 { return s.moist }
func (s funcSource) Slope(x, z float64) float64    { return s.slope }
func (s funcSource) Amplitude() float64            { return s.amp }

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.TileSize = 2
	cfg.ChunkTilesX = 4
	cfg.ChunkTilesZ = 4
	cfg.HeightScale = 10
	return cfg
}

func TestKeyForPosition_NegativeFloors(t *testing.T) {
	assert.Equal(t, ChunkKey{0, 0}, KeyForPosition(0, 0, 8, 8))
	assert.Equal(t, ChunkKey{0, 0}, KeyForPosition(7.99, 7.99, 8, 8))
	assert.Equal(t, ChunkKey{-1, -1}, KeyForPosition(-0.01, -0.01, 8, 8))
	assert.Equal(t, ChunkKey{5, -2}, KeyForPosition(40, -9, 8, 8))
	assert.Equal(t, ChunkKey{0, 0}, KeyForPosition(math.NaN(), 0, 8, 8))
}

func TestRing(t *testing.T) {
	ring := Ring(ChunkKey{0, 0}, 1)
	require.Len(t, ring, 9)
	assert.Equal(t, ChunkKey{-1, -1}, ring[0])
	assert.Equal(t, ChunkKey{1, 1}, ring[8])
	for _, k := range ring {
		assert.True(t, Within(ChunkKey{0, 0}, k, 1))
	}
	assert.Len(t, Ring(ChunkKey{3, 3}, 2), 25)
	assert.Nil(t, Ring(ChunkKey{}, -1))
}

func TestDistances(t *testing.T) {
	assert.Equal(t, 5, Chebyshev(ChunkKey{0, 0}, ChunkKey{5, 0}))
	assert.Equal(t, 3, Chebyshev(ChunkKey{5, 0}, ChunkKey{2, -1}))
	assert.Equal(t, 10, DistanceSq(ChunkKey{0, 0}, ChunkKey{3, -1}))
}

func TestParseChunkKey(t *testing.T) {
	k, err := ParseChunkKey("-3:7")
	require.NoError(t, err)
	assert.Equal(t, ChunkKey{-3, 7}, k)
	assert.Equal(t, "-3:7", k.String())

	_, err = ParseChunkKey("3-7")
	assert.Error(t, err)
	_, err = ParseChunkKey("a:1")
	assert.Error(t, err)
}

func TestField_NormalizedHeightGuardsAmplitude(t *testing.T) {
	src := funcSource{height: func(x, z float64) float64 { return 0.5 }, amp: 0}
	f := NewField(src, testConfig())
	h := f.NormalizedHeight(3, 4)
	assert.False(t, math.IsNaN(h))
	assert.Equal(t, 1.0, h, "деление на нижнюю границу амплитуды и обрезка до 1")

	nan := funcSource{height: func(x, z float64) float64 { return math.NaN() }, amp: 1}
	assert.Equal(t, 0.0, NewField(nan, testConfig()).SurfaceY(0, 0))
}

func TestField_GroundHeightMatchesVerticesAndTriangles(t *testing.T) {
	// Нелинейное поле: поверхность внутри тайла должна лежать на двух плоскостях
	src := funcSource{height: func(x, z float64) float64 {
		return 0.1 + 0.01*x*x + 0.02*z
	}, amp: 10}
	f := NewField(src, testConfig())

	// В узлах сетки высота совпадает с SurfaceY
	for i := -3; i <= 3; i++ {
		for j := -3; j <= 3; j++ {
			wx := float64(i) * f.TileSize()
			wz := float64(j) * f.TileSize()
			assert.InDelta(t, f.SurfaceY(float64(i), float64(j)), f.GroundHeight(wx, wz), 1e-9)
		}
	}

	// Середина диагонали (i+1, j)-(i, j+1) - среднее двух концов
	mid := f.GroundHeight(1.0*f.TileSize()+1, 1.0*f.TileSize()+1)
	want := (f.SurfaceY(2, 1) + f.SurfaceY(1, 2)) / 2
	assert.InDelta(t, want, mid, 1e-9)

	// Непрерывность через диагональ
	below := f.GroundHeight(2+0.999, 2+0.999)
	above := f.GroundHeight(2+1.001, 2+1.001)
	assert.InDelta(t, below, above, 1e-2)
}

func TestField_Gate(t *testing.T) {
	base := funcSource{height: func(x, z float64) float64 { return 5 }, amp: 10, moist: 0.5, slope: 0.1}
	f := NewField(base, testConfig())

	assert.True(t, f.Gate(0, 0, GateRule{MinHeight: 0.2, MaxHeight: 0.8}))
	assert.False(t, f.Gate(0, 0, GateRule{MinHeight: 0.6, MaxHeight: 0.8}))
	assert.False(t, f.Gate(0, 0, GateRule{MaxHeight: 1, MinMoisture: 0.7}))

	// Мировой уклон = 0.1 / 10 * 10 / 2 = 0.05
	assert.InDelta(t, 0.05, f.WorldSlope(0, 0), 1e-12)
	assert.False(t, f.Gate(0, 0, GateRule{MaxHeight: 1, MaxSlope: 0.01}))

	wet := base
	wet.river = 0.9
	assert.False(t, NewField(wet, testConfig()).Gate(0, 0, GateRule{MaxHeight: 1, AvoidRivers: true}))
	assert.True(t, NewField(wet, testConfig()).Gate(0, 0, GateRule{MaxHeight: 1}))
}

func TestRuleFromRecipe(t *testing.T) {
	rule := RuleFromRecipe(config.PlacementRecipe{MinHeight: 0.1, MaxSlope: 0.5, AvoidRivers: true})
	assert.Equal(t, 1.0, rule.MaxHeight)
	assert.True(t, rule.AvoidRivers)
}

func TestField_KeyForWorld(t *testing.T) {
	f := NewField(funcSource{height: func(x, z float64) float64 { return 0 }, amp: 1}, testConfig())
	// чанк = 4 тайла * 2 = 8 единиц
	assert.Equal(t, ChunkKey{1, -1}, f.KeyForWorld(8, -0.5))
	x, z := f.ChunkOrigin(ChunkKey{2, -3})
	assert.Equal(t, 8, x)
	assert.Equal(t, -12, z)
}
