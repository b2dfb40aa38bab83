package noisegeneration

import (
	"math"

	"github.com/ojrac/opensimplex-go"

	"github.com/annelo/terrain-streamer/internal/config"
)

// Смещения сидов для независимых каналов
const (
	seedHeight   = 0
	seedMoisture = 1
	seedRiver    = 2
	seedWarpX    = 11
	seedWarpZ    = 12
)

// Sampler - набор детерминированных скалярных полей мира.
// После создания не изменяется, поэтому безопасен для одновременного
// использования из любого числа горутин без синхронизации.
type Sampler struct {
	recipe config.Recipe

	heightMap   *NoiseMap
	moistureMap *NoiseMap
	riverMap    *NoiseMap

	// Два независимых низкочастотных канала искажения координат
	warpX opensimplex.Noise
	warpZ opensimplex.Noise
}

// NewSampler создает сэмплер по рецепту
func NewSampler(recipe config.Recipe) *Sampler {
	recipe = recipe.Normalize()
	seed := recipe.Seed
	return &Sampler{
		recipe:      recipe,
		heightMap:   NewNoiseMap(seed+seedHeight, recipe.Height),
		moistureMap: NewNoiseMap(seed+seedMoisture, recipe.Moisture),
		riverMap:    NewNoiseMap(seed+seedRiver, recipe.River.Noise),
		warpX:       opensimplex.New(seed + seedWarpX),
		warpZ:       opensimplex.New(seed + seedWarpZ),
	}
}

// Recipe возвращает нормализованный рецепт
func (s *Sampler) Recipe() config.Recipe {
	return s.recipe
}

// Seed возвращает сид мира
func (s *Sampler) Seed() int64 {
	return s.recipe.Seed
}

// Amplitude возвращает максимальную высоту поля
func (s *Sampler) Amplitude() float64 {
	return s.recipe.Height.Amplitude
}

// Warp возвращает смещение координат в тайлах
func (s *Sampler) Warp(x, z float64) (float64, float64) {
	w := s.recipe.Warp
	if w.Amplitude == 0 {
		return 0, 0
	}
	dx := s.warpX.Eval2(x*w.Scale, z*w.Scale) * w.Amplitude
	dz := s.warpZ.Eval2(x*w.Scale+311.7, z*w.Scale-127.3) * w.Amplitude
	return dx, dz
}

// BaseHeight возвращает высоту без учета рек, от 0 до амплитуды
func (s *Sampler) BaseHeight(x, z float64) float64 {
	dx, dz := s.Warp(x, z)
	n := s.heightMap.Sample(x+dx, z+dz)
	// Показатель формы прижимает низины и обостряет вершины
	n = math.Pow(n, s.recipe.ShapeExponent)
	return n * s.recipe.Height.Amplitude
}

// River возвращает маску реки: 0 вне русла, 1 в центре
func (s *Sampler) River(x, z float64) float64 {
	dx, dz := s.Warp(x, z)
	ridge := s.riverMap.Sample(x+dx*0.5, z+dz*0.5)
	r := s.recipe.River
	return smoothstep(r.Threshold, r.Threshold+r.Falloff, ridge)
}

// CarveFactor - множитель высоты для маски реки
func (s *Sampler) CarveFactor(river float64) float64 {
	return 1 - s.recipe.River.CarveDepth*clamp(river, 0, 1)
}

// Height возвращает высоту с вырезанными руслами рек
func (s *Sampler) Height(x, z float64) float64 {
	return s.BaseHeight(x, z) * s.CarveFactor(s.River(x, z))
}

// Moisture возвращает влажность от 0 до 1, возле рек она выше
func (s *Sampler) Moisture(x, z float64) float64 {
	dx, dz := s.Warp(x, z)
	m := s.moistureMap.Sample(x-dz, z+dx)
	return clamp(m+0.35*s.River(x, z), 0, 1)
}

// Slope возвращает модуль градиента высоты (единиц высоты на тайл)
func (s *Sampler) Slope(x, z float64) float64 {
	step := s.recipe.SlopeStep
	gx := (s.Height(x+step, z) - s.Height(x-step, z)) / (2 * step)
	gz := (s.Height(x, z+step) - s.Height(x, z-step)) / (2 * step)
	return math.Hypot(gx, gz)
}

// Sample возвращает все поля в точке одним вызовом
func (s *Sampler) Sample(x, z float64) Sample {
	river := s.River(x, z)
	base := s.BaseHeight(x, z)
	return Sample{
		Height:   base * s.CarveFactor(river),
		River:    river,
		Moisture: s.Moisture(x, z),
		Slope:    s.Slope(x, z),
	}
}

// Sample - значения всех полей в одной точке
type Sample struct {
	Height   float64
	River    float64
	Moisture float64
	Slope    float64
}
