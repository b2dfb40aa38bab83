package decoration

import (
	"math"
	"math/rand"

	"github.com/annelo/terrain-streamer/internal/config"
	"github.com/annelo/terrain-streamer/internal/terrainmath"
)

// MarkerPlacer ставит собираемые маяки, редко и не в руслах
type MarkerPlacer struct {
	recipe config.PlacementRecipe
	rule   terrainmath.GateRule
}

// NewMarkerPlacer создает проход маяков
func NewMarkerPlacer(r config.PlacementRecipe) *MarkerPlacer {
	return &MarkerPlacer{recipe: r, rule: terrainmath.RuleFromRecipe(r)}
}

func (p *MarkerPlacer) Kind() Kind { return KindMarker }

func (p *MarkerPlacer) Place(key terrainmath.ChunkKey, field terrainmath.Field, rng *rand.Rand) []Placement {
	var out []Placement
	for a := 0; a < p.recipe.Attempts; a++ {
		tx, tz := candidate(key, field, rng)
		roll := rng.Float64()
		if roll >= p.recipe.Chance || !field.Gate(tx, tz, p.rule) {
			continue
		}
		v, ok := pickVariant(p.recipe.Variants, rng)
		if !ok {
			break
		}
		pl := placeAt(field, KindMarker, v, tx, tz, rng)
		pl.Collectible = true
		out = append(out, pl)
	}
	return out
}

// ScatterPlacer рассыпает растительность с плотностью на тайл
type ScatterPlacer struct {
	recipe config.PlacementRecipe
	rule   terrainmath.GateRule
}

// NewScatterPlacer создает проход растительности
func NewScatterPlacer(r config.PlacementRecipe) *ScatterPlacer {
	return &ScatterPlacer{recipe: r, rule: terrainmath.RuleFromRecipe(r)}
}

func (p *ScatterPlacer) Kind() Kind { return KindVegetation }

// attempts: фиксированная часть плюс плотность на площадь чанка
func (p *ScatterPlacer) attempts(field terrainmath.Field) int {
	tx, tz := field.ChunkTiles()
	n := p.recipe.Attempts + int(math.Round(p.recipe.Density*float64(tx*tz)))
	return max(n, 0)
}

func (p *ScatterPlacer) Place(key terrainmath.ChunkKey, field terrainmath.Field, rng *rand.Rand) []Placement {
	n := p.attempts(field)
	out := make([]Placement, 0, n)
	for a := 0; a < n; a++ {
		tx, tz := candidate(key, field, rng)
		roll := rng.Float64()
		if roll >= p.recipe.Chance || !field.Gate(tx, tz, p.rule) {
			continue
		}
		v, ok := pickVariant(p.recipe.Variants, rng)
		if !ok {
			break
		}
		out = append(out, placeAt(field, KindVegetation, v, tx, tz, rng))
	}
	return out
}

// SceneryPlacer ставит камни и руины. Объекты прохода не пересекаются друг с другом.
type SceneryPlacer struct {
	recipe config.PlacementRecipe
	rule   terrainmath.GateRule
}

// NewSceneryPlacer создает проход крупных декораций
func NewSceneryPlacer(r config.PlacementRecipe) *SceneryPlacer {
	return &SceneryPlacer{recipe: r, rule: terrainmath.RuleFromRecipe(r)}
}

func (p *SceneryPlacer) Kind() Kind { return KindScenery }

func (p *SceneryPlacer) Place(key terrainmath.ChunkKey, field terrainmath.Field, rng *rand.Rand) []Placement {
	var out []Placement
	for a := 0; a < p.recipe.Attempts; a++ {
		tx, tz := candidate(key, field, rng)
		roll := rng.Float64()
		if roll >= p.recipe.Chance || !field.Gate(tx, tz, p.rule) {
			continue
		}
		v, ok := pickVariant(p.recipe.Variants, rng)
		if !ok {
			break
		}
		pl := placeAt(field, KindScenery, v, tx, tz, rng)
		if overlapsAny(pl, out) {
			continue
		}
		out = append(out, pl)
	}
	return out
}

func overlapsAny(pl Placement, placed []Placement) bool {
	for _, o := range placed {
		dx := pl.Position.X() - o.Position.X()
		dz := pl.Position.Z() - o.Position.Z()
		rr := pl.Radius + o.Radius
		if dx*dx+dz*dz < rr*rr {
			return true
		}
	}
	return false
}
