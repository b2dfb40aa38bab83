package noisegeneration

import (
	"math"

	"github.com/aquilax/go-perlin"

	"github.com/annelo/terrain-streamer/internal/config"
)

const (
	// Параметры perlin.NewPerlin: альфа, бета и одна внутренняя октава.
	// Октавы суммируем сами, чтобы управлять сдвигами и весами.
	perlinAlpha = 2.0
	perlinBeta  = 2.0

	// Одна октава go-perlin дает примерно [-0.7, 0.7], растягиваем до [-1, 1]
	perlinGain = 1.41

	// Веса октав (фиксированные)
	persistence = 0.5
	lacunarity  = 2.0
)

// Сдвиги координат для каждой октавы. Уводят отсчеты с узлов решетки,
// где градиентный шум всегда равен нулю, и декоррелируют октавы.
var octaveShift = [...]float64{0.371, 17.31, -31.77, 53.19, -71.53, 97.13, -113.9, 139.7}

// NoiseMap представляет одно скалярное поле на основе шума Перлина
type NoiseMap struct {
	perlin      *perlin.Perlin
	kind        string  // perlin, ridged или billow
	octaves     int     // количество октав
	scale       float64 // масштаб (чем меньше, тем более плавное поле)
	persistence float64 // множитель амплитуды между октавами
	lacunarity  float64 // множитель частоты между октавами
}

// NewNoiseMap создает карту шума с параметрами из рецепта
func NewNoiseMap(seed int64, params config.NoiseParams) *NoiseMap {
	octaves := params.Octaves
	if octaves < 1 {
		octaves = 1
	}
	return &NoiseMap{
		perlin:      perlin.NewPerlin(perlinAlpha, perlinBeta, 1, seed),
		kind:        params.Type,
		octaves:     octaves,
		scale:       params.Scale,
		persistence: persistence,
		lacunarity:  lacunarity,
	}
}

// raw возвращает базовое значение шума в диапазоне [-1, 1]
func (nm *NoiseMap) raw(x, z float64) float64 {
	return clamp(nm.perlin.Noise2D(x, z)*perlinGain, -1, 1)
}

// shape переводит базовое значение в [0, 1] в зависимости от типа поля
func (nm *NoiseMap) shape(v float64) float64 {
	switch nm.kind {
	case config.NoiseRidged:
		return 1 - math.Abs(v)
	case config.NoiseBillow:
		return math.Abs(v)
	default:
		return v*0.5 + 0.5
	}
}

// Sample возвращает нормализованное значение поля от 0 до 1
func (nm *NoiseMap) Sample(x, z float64) float64 {
	// Масштабируем координаты
	sx := x * nm.scale
	sz := z * nm.scale

	amplitude := 1.0
	frequency := 1.0
	total := 0.0
	norm := 0.0 // Для нормализации

	// Суммируем октавы
	for i := 0; i < nm.octaves; i++ {
		shift := octaveShift[i%len(octaveShift)] + float64(i/len(octaveShift))*7.0
		total += nm.shape(nm.raw(sx*frequency+shift, sz*frequency-shift*0.61)) * amplitude
		norm += amplitude

		amplitude *= nm.persistence
		frequency *= nm.lacunarity
	}

	return clamp(total/norm, 0, 1)
}

// Octaves возвращает количество октав
func (nm *NoiseMap) Octaves() int {
	return nm.octaves
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// smoothstep - плавный переход от 0 к 1 между edge0 и edge1
func smoothstep(edge0, edge1, x float64) float64 {
	if edge1 <= edge0 {
		if x < edge0 {
			return 0
		}
		return 1
	}
	t := clamp((x-edge0)/(edge1-edge0), 0, 1)
	return t * t * (3 - 2*t)
}
