package config

import "strings"

// Типы базового шума
const (
	NoisePerlin = "perlin"
	NoiseRidged = "ridged"
	NoiseBillow = "billow"
)

// NoiseParams задает параметры одного скалярного поля
type NoiseParams struct {
	Type      string  `yaml:"type"`
	Octaves   int     `yaml:"octaves"`
	Amplitude float64 `yaml:"amplitude"`
	Scale     float64 `yaml:"scale"` // пространственная частота в тайлах
}

// RiverParams описывает канал рек
type RiverParams struct {
	Noise      NoiseParams `yaml:"noise"`
	Threshold  float64     `yaml:"threshold"`   // начало русла по значению гребневого шума
	Falloff    float64     `yaml:"falloff"`     // ширина плавного перехода
	CarveDepth float64     `yaml:"carve_depth"` // доля высоты, срезаемая в центре русла
}

// WarpParams описывает искажение координат
type WarpParams struct {
	Amplitude float64 `yaml:"amplitude"` // смещение в тайлах
	Scale     float64 `yaml:"scale"`
}

// Variant - строка таблицы редкости
type Variant struct {
	Name     string  `yaml:"name"`
	Weight   float64 `yaml:"weight"`
	Radius   float64 `yaml:"radius"` // радиус коллизии, 0 = проходимый объект
	MinScale float64 `yaml:"min_scale"`
	MaxScale float64 `yaml:"max_scale"`
}

// PlacementRecipe описывает один проход расстановки декора
type PlacementRecipe struct {
	Attempts    int       `yaml:"attempts"` // фиксированное число попыток на чанк
	Density     float64   `yaml:"density"`  // дополнительные попытки на тайл
	Chance      float64   `yaml:"chance"`   // вероятность принять попытку
	MinHeight   float64   `yaml:"min_height"`
	MaxHeight   float64   `yaml:"max_height"`
	MinMoisture float64   `yaml:"min_moisture"`
	MaxSlope    float64   `yaml:"max_slope"`
	AvoidRivers bool      `yaml:"avoid_rivers"`
	Variants    []Variant `yaml:"variants"`
}

// DecorationRecipe содержит таблицы для трех проходов декора
type DecorationRecipe struct {
	Markers    PlacementRecipe `yaml:"markers"`
	Vegetation PlacementRecipe `yaml:"vegetation"`
	Scenery    PlacementRecipe `yaml:"scenery"`
}

// Recipe полностью определяет процедурный вывод. Единственное сохраняемое состояние.
type Recipe struct {
	Seed          int64            `yaml:"seed"`
	Height        NoiseParams      `yaml:"height"`
	ShapeExponent float64          `yaml:"shape_exponent"`
	Moisture      NoiseParams      `yaml:"moisture"`
	River         RiverParams      `yaml:"river"`
	Warp          WarpParams       `yaml:"warp"`
	SlopeStep     float64          `yaml:"slope_step"` // шаг центральной разности в тайлах
	Decoration    DecorationRecipe `yaml:"decoration"`
}

// DefaultRecipe возвращает рецепт по умолчанию для сида
func DefaultRecipe(seed int64) Recipe {
	return Recipe{
		Seed:          seed,
		Height:        NoiseParams{Type: NoisePerlin, Octaves: 5, Amplitude: 1.0, Scale: 0.012},
		ShapeExponent: 1.35,
		Moisture:      NoiseParams{Type: NoiseBillow, Octaves: 3, Amplitude: 1.0, Scale: 0.006},
		River: RiverParams{
			Noise:      NoiseParams{Type: NoiseRidged, Octaves: 1, Amplitude: 1.0, Scale: 0.004},
			Threshold:  0.86,
			Falloff:    0.08,
			CarveDepth: 0.35,
		},
		Warp:      WarpParams{Amplitude: 6.0, Scale: 0.003},
		SlopeStep: 0.5,
		Decoration: DecorationRecipe{
			Markers: PlacementRecipe{
				Attempts:    2,
				Chance:      0.35,
				MinHeight:   0.15,
				MaxHeight:   1.0,
				MaxSlope:    0.9,
				AvoidRivers: true,
				Variants: []Variant{
					{Name: "beacon", Weight: 8, Radius: 0, MinScale: 1, MaxScale: 1},
					{Name: "beacon_gold", Weight: 1, Radius: 0, MinScale: 1, MaxScale: 1.2},
				},
			},
			Vegetation: PlacementRecipe{
				Density:     0.08,
				Chance:      0.8,
				MinHeight:   0.1,
				MaxHeight:   0.85,
				MinMoisture: 0.25,
				MaxSlope:    0.6,
				AvoidRivers: true,
				Variants: []Variant{
					{Name: "pine", Weight: 4, Radius: 0.6, MinScale: 0.8, MaxScale: 1.4},
					{Name: "birch", Weight: 2, Radius: 0.5, MinScale: 0.8, MaxScale: 1.2},
					{Name: "bush", Weight: 6, Radius: 0, MinScale: 0.6, MaxScale: 1.0},
				},
			},
			Scenery: PlacementRecipe{
				Attempts:  3,
				Chance:    0.25,
				MinHeight: 0.0,
				MaxHeight: 1.0,
				MaxSlope:  1.5,
				Variants: []Variant{
					{Name: "rock", Weight: 5, Radius: 1.2, MinScale: 0.7, MaxScale: 1.8},
					{Name: "ruin", Weight: 1, Radius: 2.5, MinScale: 1.0, MaxScale: 1.0},
				},
			},
		},
	}
}

// Normalize заполняет пустые и некорректные поля значениями по умолчанию
func (r Recipe) Normalize() Recipe {
	def := DefaultRecipe(r.Seed)
	r.Height = r.Height.normalize(def.Height)
	r.Moisture = r.Moisture.normalize(def.Moisture)
	r.River.Noise = r.River.Noise.normalize(def.River.Noise)
	if r.ShapeExponent <= 0 {
		r.ShapeExponent = def.ShapeExponent
	}
	if r.River.Falloff <= 0 {
		r.River.Falloff = def.River.Falloff
	}
	if r.River.CarveDepth < 0 || r.River.CarveDepth > 1 {
		r.River.CarveDepth = def.River.CarveDepth
	}
	if r.Warp.Scale <= 0 {
		r.Warp.Scale = def.Warp.Scale
	}
	if r.Warp.Amplitude < 0 {
		r.Warp.Amplitude = 0
	}
	if r.SlopeStep <= 0 {
		r.SlopeStep = def.SlopeStep
	}
	return r
}

func (p NoiseParams) normalize(def NoiseParams) NoiseParams {
	p.Type = strings.ToLower(strings.TrimSpace(p.Type))
	switch p.Type {
	case NoisePerlin, NoiseRidged, NoiseBillow:
	default:
		p.Type = def.Type
	}
	if p.Octaves < 1 {
		p.Octaves = 1
	}
	if p.Amplitude < MinAmplitude {
		p.Amplitude = MinAmplitude
	}
	if p.Scale <= 0 {
		p.Scale = def.Scale
	}
	return p
}
