// Package decoration расставляет процедурные объекты на чанке: маркеры,
// растительность и крупные декорации. Результат зависит только от сида,
// ключа чанка и номера прохода.
package decoration

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annelo/terrain-streamer/internal/config"
	"github.com/annelo/terrain-streamer/internal/terrainmath"
)

// Kind - класс объекта декора
type Kind int

const (
	KindMarker Kind = iota
	KindVegetation
	KindScenery
)

func (k Kind) String() string {
	switch k {
	case KindMarker:
		return "marker"
	case KindVegetation:
		return "vegetation"
	case KindScenery:
		return "scenery"
	default:
		return "unknown"
	}
}

// Placement - явные метаданные одного объекта
type Placement struct {
	Key         terrainmath.ChunkKey
	Kind        Kind
	Variant     string
	Position    mgl32.Vec3 // мировые координаты, Y на поверхности меша
	Yaw         float32
	Scale       float32
	Radius      float32 // радиус коллизии, 0 = проходимый
	Collectible bool
}

// Blocking сообщает, участвует ли объект в коллизиях
func (p Placement) Blocking() bool { return p.Radius > 0 }

// Placer - один проход расстановки
type Placer interface {
	Kind() Kind
	Place(key terrainmath.ChunkKey, field terrainmath.Field, rng *rand.Rand) []Placement
}

// Result - итог декорирования одного чанка
type Result struct {
	Key        terrainmath.ChunkKey
	Placements []Placement
}

// Collectibles возвращает собираемые объекты
func (r Result) Collectibles() []Placement {
	var out []Placement
	for _, p := range r.Placements {
		if p.Collectible {
			out = append(out, p)
		}
	}
	return out
}

// Blocking возвращает объекты с коллизией
func (r Result) Blocking() []Placement {
	var out []Placement
	for _, p := range r.Placements {
		if p.Blocking() {
			out = append(out, p)
		}
	}
	return out
}

// CountByKind считает объекты по классам
func (r Result) CountByKind() map[Kind]int {
	out := make(map[Kind]int, 3)
	for _, p := range r.Placements {
		out[p.Kind]++
	}
	return out
}

// DefaultPlacers строит три стандартных прохода из рецепта
func DefaultPlacers(rec config.DecorationRecipe) []Placer {
	return []Placer{
		NewMarkerPlacer(rec.Markers),
		NewScatterPlacer(rec.Vegetation),
		NewSceneryPlacer(rec.Scenery),
	}
}

// Decorate прогоняет проходы по чанку. Каждый проход получает свой ГСЧ,
// засеянный от (seed, key, pass), поэтому повторный вызов дает тот же результат.
// Пустой список проходов заменяется стандартным набором из рецепта.
func Decorate(key terrainmath.ChunkKey, field terrainmath.Field, recipe config.Recipe, placers []Placer) Result {
	if len(placers) == 0 {
		placers = DefaultPlacers(recipe.Decoration)
	}
	res := Result{Key: key}
	for pass, p := range placers {
		if p == nil {
			continue
		}
		rng := rand.New(rand.NewSource(int64(SeedFor(recipe.Seed, key, pass))))
		for _, pl := range p.Place(key, field, rng) {
			pl.Key = key
			res.Placements = append(res.Placements, pl)
		}
	}
	return res
}

// SeedFor смешивает сид мира, ключ чанка и номер прохода хешем SplitMix64
func SeedFor(seed int64, key terrainmath.ChunkKey, pass int) uint64 {
	v := uint64(seed)*0x9E3779B97F4A7C15 + uint64(int64(key.X))
	v = splitmix(v) + uint64(int64(key.Y))
	v = splitmix(v) + uint64(pass)
	return splitmix(v)
}

func splitmix(v uint64) uint64 {
	v += 0x9E3779B97F4A7C15
	v = (v ^ (v >> 30)) * 0xBF58476D1CE4E5B9
	v = (v ^ (v >> 27)) * 0x94D049BB133111EB
	return v ^ (v >> 31)
}

// pickVariant выбирает строку таблицы по весам. false, если таблица пуста.
func pickVariant(variants []config.Variant, rng *rand.Rand) (config.Variant, bool) {
	total := 0.0
	for _, v := range variants {
		if v.Weight > 0 {
			total += v.Weight
		}
	}
	if total <= 0 {
		return config.Variant{}, false
	}
	r := rng.Float64() * total
	for _, v := range variants {
		if v.Weight <= 0 {
			continue
		}
		if r < v.Weight {
			return v, true
		}
		r -= v.Weight
	}
	// погрешность суммы: последний вариант с положительным весом
	for i := len(variants) - 1; i >= 0; i-- {
		if variants[i].Weight > 0 {
			return variants[i], true
		}
	}
	return config.Variant{}, false
}

func variantScale(v config.Variant, rng *rand.Rand) float64 {
	lo, hi := v.MinScale, v.MaxScale
	if lo <= 0 {
		lo = 1
	}
	if hi < lo {
		hi = lo
	}
	return lo + rng.Float64()*(hi-lo)
}

// candidate - случайная точка внутри чанка в тайловых координатах
func candidate(key terrainmath.ChunkKey, field terrainmath.Field, rng *rand.Rand) (float64, float64) {
	ox, oz := field.ChunkOrigin(key)
	tx, tz := field.ChunkTiles()
	return float64(ox) + rng.Float64()*float64(tx), float64(oz) + rng.Float64()*float64(tz)
}

// placeAt строит Placement в тайловой точке; Y берется с поверхности меша
func placeAt(field terrainmath.Field, kind Kind, v config.Variant, tileX, tileZ float64, rng *rand.Rand) Placement {
	scale := variantScale(v, rng)
	yaw := rng.Float64() * 2 * math.Pi
	wx := tileX * field.TileSize()
	wz := tileZ * field.TileSize()
	return Placement{
		Kind:     kind,
		Variant:  v.Name,
		Position: mgl32.Vec3{float32(wx), float32(field.GroundHeight(wx, wz)), float32(wz)},
		Yaw:      float32(yaw),
		Scale:    float32(scale),
		Radius:   float32(v.Radius * scale),
	}
}
