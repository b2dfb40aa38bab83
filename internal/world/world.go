// Package world отвечает за инициализацию и связывание компонентов мира:
// рецепт -> сэмплер -> поле высот -> стример -> презентер -> хуки реестра.
package world

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/annelo/terrain-streamer/internal/chunkmanager"
	"github.com/annelo/terrain-streamer/internal/chunkmesh"
	"github.com/annelo/terrain-streamer/internal/config"
	"github.com/annelo/terrain-streamer/internal/decoration"
	"github.com/annelo/terrain-streamer/internal/gameloop"
	"github.com/annelo/terrain-streamer/internal/noisegeneration"
	"github.com/annelo/terrain-streamer/internal/obstacles"
	"github.com/annelo/terrain-streamer/internal/presentation"
	"github.com/annelo/terrain-streamer/internal/registry"
	"github.com/annelo/terrain-streamer/internal/storage"
	"github.com/annelo/terrain-streamer/internal/terrainmath"
)

const eventBuffer = 256

// Options - необязательные зависимости мира
type Options struct {
	Presenter presentation.Presenter // nil = MemoryPresenter
	Registry  registry.Registry      // nil = пустой реестр
	Storage   storage.WorldStorage   // nil = без сохранения
	Logger    *zap.SugaredLogger
	Sinks     presentation.Sinks // внешние получатели, вызываются после собственных
	Path      gameloop.Path      // маршрут наблюдателя; nil = наблюдатель стоит
	EyeHeight float64
	Tick      time.Duration
}

// World представляет собранный мир
type World struct {
	Info      *storage.WorldInfo
	Config    config.Config
	Sampler   *noisegeneration.Sampler
	Field     terrainmath.Field
	Streamer  *chunkmanager.ChunkStreamer
	Presenter presentation.Presenter
	Registry  registry.Registry
	Observer  *gameloop.Observer

	storage  storage.WorldStorage
	logger   *zap.SugaredLogger
	path     gameloop.Path
	eye      float64
	tick     time.Duration
	events   chan gameloop.Event
	loop     *gameloop.Loop
	observer *gameloop.ObserverSystem

	mu      sync.RWMutex
	beacons map[terrainmath.ChunkKey][]decoration.Placement
	dropped int64
}

// NewWorld собирает мир по описанию info и настройкам стримера
func NewWorld(info *storage.WorldInfo, cfg config.Config, opts Options) (*World, error) {
	if info == nil {
		return nil, fmt.Errorf("world: nil world info")
	}
	recipe := info.Recipe.Normalize()
	cfg = cfg.Normalize()

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	presenter := opts.Presenter
	if presenter == nil {
		presenter = presentation.NewMemoryPresenter()
	}
	reg := opts.Registry
	if reg == nil {
		reg = registry.NewDefaultRegistry()
	}

	sampler := noisegeneration.NewSampler(recipe)
	field := terrainmath.NewField(sampler, cfg)
	streamer := chunkmanager.NewChunkStreamer(cfg, recipe, field, presenter)
	streamer.SetLogger(logger.Named("streamer"))

	w := &World{
		Info:      info,
		Config:    cfg,
		Sampler:   sampler,
		Field:     field,
		Streamer:  streamer,
		Presenter: presenter,
		Registry:  reg,
		storage:   opts.Storage,
		logger:    logger,
		path:      opts.Path,
		eye:       opts.EyeHeight,
		tick:      opts.Tick,
		events:    make(chan gameloop.Event, eventBuffer),
		beacons:   make(map[terrainmath.ChunkKey][]decoration.Placement),
	}

	placers := decoration.DefaultPlacers(recipe.Decoration)
	placers = append(placers, reg.Placers()...)
	streamer.SetPlacers(placers)

	own := presentation.Sinks{
		BeaconSink:     w.onBeacons,
		OnChunkRemoved: w.onRemoved,
	}
	streamer.SetSinks(own.Chain(opts.Sinks))
	streamer.SetHooks(chunkmanager.Hooks{
		Attached: func(key terrainmath.ChunkKey, data *chunkmesh.TerrainChunkData) {
			reg.Dispatch(registry.HookChunkAttached, key, data)
		},
		Decorated: func(key terrainmath.ChunkKey, res decoration.Result) {
			reg.Dispatch(registry.HookChunkDecorated, key, res)
		},
	})

	start := mgl32.Vec3{}
	if w.path != nil {
		x, z := w.path.At(0)
		start = mgl32.Vec3{float32(x), 0, float32(z)}
	}
	start[1] = float32(field.GroundHeight(float64(start[0]), float64(start[2])) + w.eye)
	w.Observer = gameloop.NewObserver(start)
	return w, nil
}

func (w *World) onBeacons(key terrainmath.ChunkKey, beacons []decoration.Placement) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(beacons) == 0 {
		delete(w.beacons, key)
		return
	}
	w.beacons[key] = append([]decoration.Placement(nil), beacons...)
}

func (w *World) onRemoved(key terrainmath.ChunkKey) {
	w.mu.Lock()
	delete(w.beacons, key)
	w.mu.Unlock()
	w.Registry.Dispatch(registry.HookChunkRemoved, key)
}

// Beacons возвращает собираемые объекты всех декорированных чанков
func (w *World) Beacons() map[terrainmath.ChunkKey][]decoration.Placement {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[terrainmath.ChunkKey][]decoration.Placement, len(w.beacons))
	for k, v := range w.beacons {
		out[k] = v
	}
	return out
}

// BeaconCount возвращает общее число собираемых объектов
func (w *World) BeaconCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	n := 0
	for _, v := range w.beacons {
		n += len(v)
	}
	return n
}

// Systems возвращает системы цикла: стример, наблюдатель, статистика и
// системы из реестра. Наблюдатель обновляется раньше стримера.
func (w *World) Systems() []gameloop.System {
	var systems []gameloop.System
	if w.path != nil {
		w.observer = gameloop.NewObserverSystem(w.path, 0.5, w.eye)
		systems = append(systems, w.observer)
	}
	systems = append(systems, gameloop.NewStreamerSystem(), gameloop.NewStatsSystem(0))
	return append(systems, w.Registry.GameSystems()...)
}

// Dependencies возвращает зависимости для систем цикла
func (w *World) Dependencies() gameloop.Dependencies {
	return gameloop.Dependencies{
		Streamer:  w.Streamer,
		Observer:  w.Observer,
		EmitEvent: w.emit,
	}
}

// Loop создает цикл при первом вызове
func (w *World) Loop() *gameloop.Loop {
	if w.loop == nil {
		w.loop = gameloop.NewLoop(w.tick, w.Dependencies(), w.Systems()...)
	}
	return w.loop
}

// emit не блокирует цикл: при переполнении событие отбрасывается
func (w *World) emit(evt gameloop.Event) {
	select {
	case w.events <- evt:
	default:
		w.mu.Lock()
		w.dropped++
		w.mu.Unlock()
	}
}

// Events возвращает канал событий цикла
func (w *World) Events() <-chan gameloop.Event { return w.events }

// DroppedEvents возвращает число событий, не поместившихся в буфер
func (w *World) DroppedEvents() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.dropped
}

// Blocked возвращает число тиков, в которые наблюдатель упирался в препятствие
func (w *World) Blocked() int64 {
	if w.observer == nil {
		return 0
	}
	return w.observer.Blocked()
}

// Obstacles возвращает поле препятствий стримера
func (w *World) Obstacles() *obstacles.Field { return w.Streamer.Obstacles() }

// Start запускает цикл до отмены ctx. Стример закрывается в той же горутине.
func (w *World) Start(ctx context.Context) {
	loop := w.Loop()
	go func() {
		loop.Run(ctx)
		w.Streamer.Close()
	}()
}

// Save записывает описание мира в хранилище
func (w *World) Save(ctx context.Context) error {
	if w.storage == nil {
		return nil
	}
	w.Info.LastSaveAt = time.Now().Unix()
	if err := w.storage.SaveWorld(ctx, w.Info); err != nil {
		return fmt.Errorf("world: save %s: %w", w.Info.Name, err)
	}
	return nil
}

// Stop сохраняет описание мира. Цикл останавливается отменой контекста Start.
func (w *World) Stop(ctx context.Context) error {
	err := w.Save(ctx)
	if err != nil {
		w.logger.Warnf("save on stop failed: %v", err)
	}
	return err
}
