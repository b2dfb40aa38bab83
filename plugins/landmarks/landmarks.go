// Package landmarks is a sample extension: it places stone cairns on high
// ground, counts them through the ChunkDecorated hook and exposes an admin command.
package landmarks

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annelo/terrain-streamer/internal/decoration"
	"github.com/annelo/terrain-streamer/internal/registry"
	"github.com/annelo/terrain-streamer/internal/terrainmath"
)

// Name is the extension name and the config file base name.
const Name = "landmarks"

// Config is loaded from landmarks.yaml in the extension config directory.
type Config struct {
	Variant   string  `yaml:"variant"`
	Attempts  int     `yaml:"attempts"`
	Chance    float64 `yaml:"chance"`
	MinHeight float64 `yaml:"min_height"`
	Radius    float64 `yaml:"radius"`
}

// DefaultConfig returns the sample config registered before loading.
func DefaultConfig() *Config {
	return &Config{Variant: "cairn", Attempts: 2, Chance: 0.5, MinHeight: 0.75, Radius: 0.8}
}

// Extension implements registry.Extension.
// The cairn placer is created once and survives reloads, so the config it
// froze on first install keeps decoration of a (seed, key) stable for the run.
type Extension struct {
	placed atomic.Int64
	cairn  *CairnPlacer
}

// New creates the extension.
func New() *Extension { return &Extension{} }

func (e *Extension) Meta() registry.Meta {
	return registry.Meta{
		Name:        Name,
		Version:     registry.APIVersion,
		Author:      "terrain-streamer",
		Description: "Stone cairns on high ground",
	}
}

// Placed returns the number of cairns reported by decorated chunks.
func (e *Extension) Placed() int64 { return e.placed.Load() }

// Placer returns the cairn placer, nil before Register.
func (e *Extension) Placer() *CairnPlacer { return e.cairn }

func (e *Extension) Register(reg registry.Registry) {
	reg.RegisterConfig(Name, DefaultConfig())
	if e.cairn == nil {
		e.cairn = &CairnPlacer{load: func() *Config {
			cfg, _ := reg.Config(Name).(*Config)
			return cfg
		}}
	}
	reg.RegisterPlacer(e.cairn)

	// конфиг читается после Register, фиксируем его по завершении установки
	reg.RegisterHook(registry.HookAfterInstall, func(args ...interface{}) {
		if len(args) == 1 {
			if meta, ok := args[0].(registry.Meta); ok && meta.Name == Name {
				e.cairn.Config()
			}
		}
	})

	reg.RegisterHook(registry.HookChunkDecorated, func(args ...interface{}) {
		if len(args) != 2 {
			return
		}
		res, ok := args[1].(decoration.Result)
		if !ok {
			return
		}
		variant := e.cairn.Config().Variant
		for _, p := range res.Placements {
			if p.Variant == variant {
				e.placed.Add(1)
			}
		}
	})

	reg.RegisterCommand(Name, "Show cairn placement stats", func(args []string) (string, error) {
		cfg := e.cairn.Config()
		out := fmt.Sprintf("variant=%s placed=%d min_height=%.2f\n", cfg.Variant, e.placed.Load(), cfg.MinHeight)
		if loaded, ok := reg.Config(Name).(*Config); ok && *loaded != cfg {
			out += "config file changed, restart the server to apply it\n"
		}
		return out, nil
	})
}

// CairnPlacer is an extra decoration pass gated on normalized height.
// Its config is read once and then stays fixed.
type CairnPlacer struct {
	load func() *Config
	once sync.Once
	cfg  Config
}

// Config returns the frozen placer config, reading it on the first call.
func (p *CairnPlacer) Config() Config {
	p.once.Do(func() {
		var cfg *Config
		if p.load != nil {
			cfg = p.load()
		}
		if cfg == nil {
			cfg = DefaultConfig()
		}
		p.cfg = *cfg
	})
	return p.cfg
}

func (p *CairnPlacer) Kind() decoration.Kind { return decoration.KindScenery }

func (p *CairnPlacer) Place(key terrainmath.ChunkKey, field terrainmath.Field, rng *rand.Rand) []decoration.Placement {
	cfg := p.Config()
	rule := terrainmath.GateRule{MinHeight: cfg.MinHeight, MaxHeight: 1, AvoidRivers: true}
	ox, oz := field.ChunkOrigin(key)
	tilesX, tilesZ := field.ChunkTiles()

	var out []decoration.Placement
	for a := 0; a < cfg.Attempts; a++ {
		tx := float64(ox) + rng.Float64()*float64(tilesX)
		tz := float64(oz) + rng.Float64()*float64(tilesZ)
		if rng.Float64() >= cfg.Chance || !field.Gate(tx, tz, rule) {
			continue
		}
		wx, wz := tx*field.TileSize(), tz*field.TileSize()
		out = append(out, decoration.Placement{
			Kind:     decoration.KindScenery,
			Variant:  cfg.Variant,
			Position: mgl32.Vec3{float32(wx), float32(field.GroundHeight(wx, wz)), float32(wz)},
			Yaw:      float32(rng.Float64() * 2 * math.Pi),
			Scale:    1,
			Radius:   float32(cfg.Radius),
		})
	}
	return out
}
