package chunkmanager

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annelo/terrain-streamer/internal/chunkmesh"
	"github.com/annelo/terrain-streamer/internal/config"
	"github.com/annelo/terrain-streamer/internal/decoration"
	"github.com/annelo/terrain-streamer/internal/noisegeneration"
	"github.com/annelo/terrain-streamer/internal/presentation"
	"github.com/annelo/terrain-streamer/internal/terrainmath"
)

// manualExecutor копит задачи до явного RunAll
type manualExecutor struct {
	jobs      []func()
	submitted int
}

func (m *manualExecutor) Submit(job func()) {
	m.jobs = append(m.jobs, job)
	m.submitted++
}

func (m *manualExecutor) Close() {}

func (m *manualExecutor) RunAll() {
	jobs := m.jobs
	m.jobs = nil
	for _, j := range jobs {
		j()
	}
}

// fixedPlacer ставит n объектов с коллизией в углу чанка
type fixedPlacer struct {
	n int
}

func (p fixedPlacer) Kind() decoration.Kind { return decoration.KindScenery }

func (p fixedPlacer) Place(key terrainmath.ChunkKey, field terrainmath.Field, rng *rand.Rand) []decoration.Placement {
	ox, oz := field.ChunkOrigin(key)
	out := make([]decoration.Placement, 0, p.n)
	for i := 0; i < p.n; i++ {
		x := float32(float64(ox)*field.TileSize()) + 0.5 + float32(i)*0.1
		z := float32(float64(oz)*field.TileSize()) + 0.5
		out = append(out, decoration.Placement{
			Kind:        decoration.KindScenery,
			Variant:     "rock",
			Position:    mgl32.Vec3{x, 0, z},
			Radius:      0.25,
			Collectible: i == 0,
		})
	}
	return out
}

func testConfig(radius, margin, budget int) config.Config {
	cfg := config.DefaultConfig()
	cfg.TileSize = 2
	cfg.ChunkTilesX = 4
	cfg.ChunkTilesZ = 4
	cfg.PreloadRadius = radius
	cfg.EvictionMargin = margin
	cfg.TasksPerFrame = budget
	cfg.Workers = 2
	return cfg
}

// chunkCentre возвращает мировую точку в центре чанка 8x8
func chunkCentre(x, y int) mgl32.Vec3 {
	return mgl32.Vec3{float32(x*8 + 4), 0, float32(y*8 + 4)}
}

func newStreamer(cfg config.Config, build, decor Executor) (*ChunkStreamer, *presentation.MemoryPresenter) {
	recipe := config.DefaultRecipe(42)
	field := terrainmath.NewField(noisegeneration.NewSampler(recipe), cfg)
	p := presentation.NewMemoryPresenter()
	s := NewChunkStreamer(cfg, recipe, field, p)
	if build != nil {
		s.SetExecutors(build, decor)
	}
	return s, p
}

func update(t *testing.T, s *ChunkStreamer, pos mgl32.Vec3) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), pos))
}

func TestStreamer_ScenarioB_LoadsDesiredRing(t *testing.T) {
	s, p := newStreamer(testConfig(1, 2, 4), InlineExecutor{}, InlineExecutor{})

	update(t, s, chunkCentre(0, 0))
	assert.Len(t, s.Desired(), 9, "радиус 1 дает кольцо 3x3")
	assert.Equal(t, StateLoaded, s.State(terrainmath.ChunkKey{}), "ближайший чанк допускается первым")
	assert.Equal(t, StateQueued, s.State(terrainmath.ChunkKey{X: 1, Y: 1}), "угловой чанк ждет бюджета")
	assert.Equal(t, 4, s.Stats().AdmittedLastUpdate)

	for i := 0; i < 10 && s.Stats().Loaded < 9; i++ {
		update(t, s, chunkCentre(0, 0))
	}
	assert.ElementsMatch(t, s.Desired(), s.Loaded())
	assert.Equal(t, 9, p.Stats().LiveMeshes)
	assert.Equal(t, 0, s.Stats().Queued)
	assert.Equal(t, 0, s.Stats().Pending)
}

func TestStreamer_ScenarioC_JumpEvicts(t *testing.T) {
	s, p := newStreamer(testConfig(1, 2, 4), InlineExecutor{}, InlineExecutor{})
	for i := 0; i < 5; i++ {
		update(t, s, chunkCentre(0, 0))
	}
	require.Equal(t, StateLoaded, s.State(terrainmath.ChunkKey{}))

	var removed []terrainmath.ChunkKey
	s.SetSinks(presentation.Sinks{OnChunkRemoved: func(k terrainmath.ChunkKey) { removed = append(removed, k) }})

	update(t, s, chunkCentre(5, 0))
	assert.Equal(t, StateUnloaded, s.State(terrainmath.ChunkKey{}), "чанк (0,0) вне радиуса 3 выгружается сразу")
	assert.Contains(t, removed, terrainmath.ChunkKey{})
	assert.Len(t, removed, 9)
	assert.Equal(t, int64(9), s.Stats().Evicted)
	assert.Equal(t, s.Stats().Loaded, p.Stats().LiveMeshes, "в сцене остаются только загруженные чанки")
}

func TestStreamer_HysteresisDoesNotThrash(t *testing.T) {
	s, _ := newStreamer(testConfig(1, 2, 9), InlineExecutor{}, InlineExecutor{})
	update(t, s, chunkCentre(0, 0))
	require.Equal(t, 9, s.Stats().Loaded)

	for i := 0; i < 6; i++ {
		update(t, s, chunkCentre(2, 0))
		update(t, s, chunkCentre(0, 0))
	}
	assert.Equal(t, int64(0), s.Stats().Evicted, "колебания внутри полосы гистерезиса не выгружают чанки")
	assert.Equal(t, StateLoaded, s.State(terrainmath.ChunkKey{X: -1, Y: 0}))

	update(t, s, chunkCentre(3, 0))
	assert.Equal(t, StateUnloaded, s.State(terrainmath.ChunkKey{X: -1, Y: 0}), "за пределами 1+2 чанк выгружается")
	assert.Equal(t, StateLoaded, s.State(terrainmath.ChunkKey{X: 0, Y: 0}))
}

func TestStreamer_BudgetCompliance(t *testing.T) {
	build := &manualExecutor{}
	s, _ := newStreamer(testConfig(5, 1, 3), build, InlineExecutor{})

	update(t, s, chunkCentre(0, 0))
	assert.Equal(t, 3, build.submitted, "за одно обновление не больше tasksPerFrame сборок")
	assert.Equal(t, 3, s.Stats().AdmittedLastUpdate)
	assert.Equal(t, 118, s.Stats().Queued)

	update(t, s, chunkCentre(0, 0))
	assert.Equal(t, 3, build.submitted, "пока сборки в полете, новые не допускаются")

	build.RunAll()
	update(t, s, chunkCentre(0, 0))
	assert.Equal(t, 6, build.submitted)
	assert.Equal(t, 3, s.Stats().Loaded)
}

func TestStreamer_NoDuplicateBuild(t *testing.T) {
	build := &manualExecutor{}
	s, p := newStreamer(testConfig(1, 1, 9), build, InlineExecutor{})

	for i := 0; i < 5; i++ {
		update(t, s, chunkCentre(0, 0))
	}
	assert.Equal(t, 9, build.submitted, "каждый ключ строится один раз")
	for _, k := range s.Desired() {
		assert.Equal(t, StateBuilding, s.State(k))
	}

	build.RunAll()
	for i := 0; i < 3; i++ {
		update(t, s, chunkCentre(0, 0))
	}
	assert.Equal(t, 9, build.submitted)
	assert.Equal(t, 9, s.Stats().Loaded)
	assert.Equal(t, 9, p.Stats().Attached)
}

func TestStreamer_StaleResultsDiscarded(t *testing.T) {
	build := &manualExecutor{}
	s, p := newStreamer(testConfig(1, 0, 9), build, InlineExecutor{})

	update(t, s, chunkCentre(0, 0))
	require.Equal(t, 9, build.submitted)

	update(t, s, chunkCentre(10, 0))
	assert.Equal(t, 9, build.submitted, "старые сборки еще в полете")

	build.RunAll()
	update(t, s, chunkCentre(10, 0))
	assert.Equal(t, int64(9), s.Stats().Discarded)
	assert.Equal(t, StateUnloaded, s.State(terrainmath.ChunkKey{}))
	assert.Equal(t, 0, p.Stats().Attached, "устаревшие меши не попадают в сцену")
	assert.Equal(t, 18, build.submitted, "новое кольцо допущено после освобождения бюджета")
}

func TestStreamer_TornDownPresenter(t *testing.T) {
	s, p := newStreamer(testConfig(1, 0, 9), InlineExecutor{}, InlineExecutor{})
	update(t, s, chunkCentre(0, 0))
	require.Equal(t, 9, s.Stats().Loaded)

	p.Teardown()
	assert.NotPanics(t, func() {
		update(t, s, chunkCentre(10, 0))
		update(t, s, chunkCentre(10, 0))
	})
	assert.Equal(t, 0, s.Stats().Loaded)
	assert.Equal(t, 0, p.Stats().Detached, "разрушенная сцена не трогается")
	assert.Positive(t, s.Stats().Discarded)
}

func TestStreamer_PrepareFailureRetries(t *testing.T) {
	s, p := newStreamer(testConfig(1, 0, 1), InlineExecutor{}, InlineExecutor{})
	p.FailPrepare(terrainmath.ChunkKey{}, assert.AnError)

	update(t, s, chunkCentre(0, 0))
	assert.Equal(t, StateUnloaded, s.State(terrainmath.ChunkKey{}), "ключ сброшен и будет поставлен заново")
	assert.Equal(t, int64(1), s.Stats().AttachFailures)
	assert.Equal(t, 1, p.Stats().Detached)

	p.FailPrepare(terrainmath.ChunkKey{}, nil)
	update(t, s, chunkCentre(0, 0))
	assert.Equal(t, StateLoaded, s.State(terrainmath.ChunkKey{}))
}

func TestStreamer_DecorationOncePerLoad(t *testing.T) {
	cfg := testConfig(1, 1, 1)
	cfg.DecorationYieldEvery = 3
	s, p := newStreamer(cfg, InlineExecutor{}, InlineExecutor{})
	s.SetPlacers([]decoration.Placer{fixedPlacer{n: 10}})

	decorated := map[terrainmath.ChunkKey]int{}
	var beacons []decoration.Placement
	s.SetHooks(Hooks{Decorated: func(k terrainmath.ChunkKey, _ decoration.Result) { decorated[k]++ }})
	key := terrainmath.ChunkKey{}
	s.SetSinks(presentation.Sinks{BeaconSink: func(k terrainmath.ChunkKey, b []decoration.Placement) {
		if k == key && b != nil {
			beacons = append(beacons, b...)
		}
	}})

	// бюджет 1: соседние чанки догружаются по одному, но декор идет по очереди
	update(t, s, chunkCentre(0, 0))
	assert.Equal(t, 3, p.Stats().ObjectsAttached, "за обновление применяется одна порция")
	assert.Len(t, p.Objects(key), 3)
	assert.False(t, s.IsDecorated(key))

	update(t, s, chunkCentre(0, 0))
	update(t, s, chunkCentre(0, 0))
	assert.False(t, s.IsDecorated(key))
	assert.Len(t, p.Objects(key), 9)
	update(t, s, chunkCentre(0, 0))
	assert.True(t, s.IsDecorated(key))
	assert.Len(t, p.Objects(key), 10)
	assert.Len(t, s.Obstacles().Bucket(key), 10)
	assert.Len(t, beacons, 1)

	for i := 0; i < 40; i++ {
		update(t, s, chunkCentre(0, 0))
	}
	assert.Equal(t, 1, decorated[key], "декор завершается ровно один раз")
	assert.Len(t, p.Objects(key), 10)
	assert.Len(t, s.Obstacles().Bucket(key), 10)
	assert.Len(t, beacons, 1)
	for _, k := range s.Desired() {
		assert.Equal(t, 1, decorated[k], "чанк %s декорирован один раз", k)
	}
}

func TestStreamer_ZeroRadiusClampedToRing(t *testing.T) {
	s, p := newStreamer(testConfig(0, 0, 9), InlineExecutor{}, InlineExecutor{})
	assert.Equal(t, 1, s.Config().PreloadRadius)

	update(t, s, chunkCentre(0, 0))
	assert.Len(t, s.Desired(), 9, "радиус 0 поднимается до кольца 3x3")
	assert.Equal(t, 9, s.Stats().Loaded)
	assert.Equal(t, 9, p.Stats().LiveMeshes)
}

func TestStreamer_MarginBandBuildAttached(t *testing.T) {
	build := &manualExecutor{}
	s, p := newStreamer(testConfig(1, 2, 9), build, InlineExecutor{})

	update(t, s, chunkCentre(0, 0))
	require.Equal(t, 9, build.submitted)

	// (-1,0) уходит из кольца, но остается в полосе гистерезиса
	update(t, s, chunkCentre(2, 0))
	build.RunAll()
	update(t, s, chunkCentre(2, 0))

	edge := terrainmath.ChunkKey{X: -1, Y: 0}
	assert.NotContains(t, s.Desired(), edge)
	assert.Equal(t, StateLoaded, s.State(edge), "готовый меш в полосе гистерезиса присоединяется")
	assert.Equal(t, int64(0), s.Stats().Discarded)
	assert.Equal(t, 9, p.Stats().Attached)
}

func TestStreamer_EvictionDropsDecoration(t *testing.T) {
	cfg := testConfig(1, 0, 1)
	cfg.DecorationYieldEvery = 3
	s, p := newStreamer(cfg, InlineExecutor{}, InlineExecutor{})
	s.SetPlacers([]decoration.Placer{fixedPlacer{n: 10}})

	decorated := map[terrainmath.ChunkKey]int{}
	var cleared []terrainmath.ChunkKey
	s.SetHooks(Hooks{Decorated: func(k terrainmath.ChunkKey, _ decoration.Result) { decorated[k]++ }})
	s.SetSinks(presentation.Sinks{BeaconSink: func(k terrainmath.ChunkKey, b []decoration.Placement) {
		if b == nil {
			cleared = append(cleared, k)
		}
	}})

	key := terrainmath.ChunkKey{}
	update(t, s, chunkCentre(0, 0))
	require.Equal(t, 3, s.Obstacles().Len())

	update(t, s, chunkCentre(5, 0))
	assert.Empty(t, s.Obstacles().Bucket(key), "коллайдеры выгруженного чанка удаляются")
	assert.Empty(t, p.Objects(key))
	assert.Contains(t, cleared, key)
	assert.Zero(t, decorated[key], "недоделанный декор отбрасывается")

	for i := 0; i < 6; i++ {
		update(t, s, chunkCentre(0, 0))
	}
	assert.True(t, s.IsDecorated(key), "новая загрузка декорируется заново")
	assert.Equal(t, 1, decorated[key])
	assert.Len(t, s.Obstacles().Bucket(key), 10)
}

func TestStreamer_HooksAndCounters(t *testing.T) {
	s, _ := newStreamer(testConfig(1, 0, 1), InlineExecutor{}, InlineExecutor{})
	var attached []*chunkmesh.TerrainChunkData
	s.SetHooks(Hooks{Attached: func(_ terrainmath.ChunkKey, d *chunkmesh.TerrainChunkData) { attached = append(attached, d) }})

	before := counter(counterAttached).Value()
	update(t, s, chunkCentre(2, -3))
	require.Len(t, attached, 1)
	assert.Equal(t, terrainmath.ChunkKey{X: 2, Y: -3}, attached[0].Key)
	assert.Equal(t, before+1, counter(counterAttached).Value())

	snap := s.Snapshot()
	assert.Equal(t, StateLoaded, snap.States[terrainmath.ChunkKey{X: 2, Y: -3}])
	assert.Equal(t, terrainmath.ChunkKey{X: 2, Y: -3}, snap.Stats.Center)
}

func TestStreamer_Close(t *testing.T) {
	s, p := newStreamer(testConfig(1, 0, 9), InlineExecutor{}, InlineExecutor{})
	update(t, s, chunkCentre(0, 0))
	require.Equal(t, 9, p.Stats().LiveMeshes)

	s.Close()
	s.Close()
	assert.Equal(t, 0, p.Stats().LiveMeshes)
	assert.ErrorIs(t, s.Update(context.Background(), chunkCentre(0, 0)), ErrClosed)
}

func TestStreamer_WorkerPoolEventuallyLoads(t *testing.T) {
	s, p := newStreamer(testConfig(1, 1, 4), nil, nil)
	defer s.Close()

	deadline := time.Now().Add(5 * time.Second)
	for s.Stats().Loaded < 9 && time.Now().Before(deadline) {
		update(t, s, chunkCentre(0, 0))
		time.Sleep(2 * time.Millisecond)
	}
	assert.Equal(t, 9, s.Stats().Loaded)
	assert.Equal(t, 9, p.Stats().LiveMeshes)
	assert.LessOrEqual(t, s.Stats().Pending, 4)
}
