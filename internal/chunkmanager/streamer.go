// Package chunkmanager держит кольцо чанков рельефа вокруг наблюдателя:
// строит меши на пуле воркеров в пределах бюджета, присоединяет их к сцене,
// по частям применяет декор и выгружает дальние чанки с гистерезисом.
package chunkmanager

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/annelo/terrain-streamer/internal/chunkmesh"
	"github.com/annelo/terrain-streamer/internal/config"
	"github.com/annelo/terrain-streamer/internal/decoration"
	"github.com/annelo/terrain-streamer/internal/obstacles"
	"github.com/annelo/terrain-streamer/internal/presentation"
	"github.com/annelo/terrain-streamer/internal/terrainmath"
)

// ErrClosed возвращается из Update после Close
var ErrClosed = errors.New("chunk streamer is closed")

// Имена expvar-счетчиков
const (
	counterBuilt      = "chunks_built"
	counterAttached   = "chunks_attached"
	counterEvicted    = "chunks_evicted"
	counterDiscarded  = "chunks_discarded"
	counterDecorated  = "decorations_applied"
	defaultBuildQueue = 256
)

func init() {
	for _, name := range []string{counterBuilt, counterAttached, counterEvicted, counterDiscarded, counterDecorated} {
		if expvar.Get(name) == nil {
			expvar.NewInt(name)
		}
	}
}

func counter(name string) *expvar.Int {
	return expvar.Get(name).(*expvar.Int)
}

// State - состояние ключа в конвейере
type State int

const (
	StateUnloaded State = iota
	StateQueued
	StateBuilding
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateBuilding:
		return "building"
	case StateLoaded:
		return "loaded"
	default:
		return "unloaded"
	}
}

// Hooks - необязательные уведомления о жизненном цикле чанка
type Hooks struct {
	Attached  func(key terrainmath.ChunkKey, data *chunkmesh.TerrainChunkData)
	Decorated func(key terrainmath.ChunkKey, res decoration.Result)
}

// Stats - снимок состояния стримера
type Stats struct {
	Center    terrainmath.ChunkKey
	Desired   int
	Loaded    int
	Pending   int
	Queued    int
	Decorated int

	AdmittedLastUpdate int

	Built              int64
	Attached           int64
	Evicted            int64
	Discarded          int64
	AttachFailures     int64
	DecorationsApplied int64
	ObjectsAttached    int64
}

// Snapshot - потокобезопасная копия состояния для наблюдателей из других горутин
type Snapshot struct {
	Stats     Stats
	States    map[terrainmath.ChunkKey]State
	Decorated map[terrainmath.ChunkKey]bool
}

type loadedChunk struct {
	handle    presentation.Handle
	gen       uint64
	objects   []presentation.Handle
	decorated bool
}

type buildResult struct {
	key  terrainmath.ChunkKey
	gen  uint64
	data *chunkmesh.TerrainChunkData
	err  error
}

type decorResult struct {
	key terrainmath.ChunkKey
	gen uint64
	res decoration.Result
	err error
}

// decorApply - применяемый по частям результат декора
type decorApply struct {
	key         terrainmath.ChunkKey
	gen         uint64
	res         decoration.Result
	next        int
	collectible []decoration.Placement
}

// ChunkStreamer - планировщик чанков. Update, State, Loaded и Desired
// вызываются только из одного контекста отображения; Stats и Snapshot
// безопасны из любой горутины.
type ChunkStreamer struct {
	cfg       config.Config
	recipe    config.Recipe
	field     terrainmath.Field
	params    chunkmesh.Params
	presenter presentation.Presenter
	sinks     presentation.Sinks
	hooks     Hooks
	placers   []decoration.Placer
	obstacles *obstacles.Field
	logger    *zap.SugaredLogger

	exec      Executor
	decorExec Executor
	ownExec   bool

	// состояние контекста отображения
	center     terrainmath.ChunkKey
	hasCenter  bool
	desired    map[terrainmath.ChunkKey]struct{}
	desiredSeq []terrainmath.ChunkKey
	loaded     map[terrainmath.ChunkKey]*loadedChunk
	pending    map[terrainmath.ChunkKey]uint64
	queued     map[terrainmath.ChunkKey]struct{}
	backlog    []terrainmath.ChunkKey
	gen        uint64
	admitted   int

	decorInFlight *decorResult // ключ и поколение задачи на воркере декора
	applying      *decorApply

	// очереди завершений, пишутся воркерами
	doneMu      sync.Mutex
	completions []buildResult
	decorDone   []decorResult

	statsMu  sync.RWMutex
	stats    Stats
	snapshot Snapshot

	closed bool
}

// NewChunkStreamer создает стример. Пул воркеров запускается лениво при
// первом Update, если исполнители не заданы через SetExecutors.
func NewChunkStreamer(cfg config.Config, recipe config.Recipe, field terrainmath.Field, presenter presentation.Presenter) *ChunkStreamer {
	cfg = cfg.Normalize()
	return &ChunkStreamer{
		cfg:       cfg,
		recipe:    recipe,
		field:     field,
		params:    chunkmesh.ParamsFromConfig(cfg),
		presenter: presenter,
		placers:   decoration.DefaultPlacers(recipe.Decoration),
		obstacles: obstacles.NewField(cfg.ChunkWorldSize()),
		logger:    zap.NewNop().Sugar(),
		desired:   make(map[terrainmath.ChunkKey]struct{}),
		loaded:    make(map[terrainmath.ChunkKey]*loadedChunk),
		pending:   make(map[terrainmath.ChunkKey]uint64),
		queued:    make(map[terrainmath.ChunkKey]struct{}),
	}
}

// SetLogger задает логгер
func (s *ChunkStreamer) SetLogger(l *zap.SugaredLogger) {
	if l != nil {
		s.logger = l
	}
}

// SetSinks задает получателей событий чанка
func (s *ChunkStreamer) SetSinks(sinks presentation.Sinks) { s.sinks = sinks }

// SetHooks задает уведомления о присоединении и декоре
func (s *ChunkStreamer) SetHooks(h Hooks) { s.hooks = h }

// SetPlacers заменяет проходы декора. Пустой список отключает декор.
func (s *ChunkStreamer) SetPlacers(p []decoration.Placer) { s.placers = p }

// SetExecutors задает исполнителей построения мешей и декора.
// Стример не закрывает переданных исполнителей.
func (s *ChunkStreamer) SetExecutors(build, decor Executor) {
	s.exec = build
	s.decorExec = decor
	s.ownExec = false
}

// Config возвращает нормализованные настройки
func (s *ChunkStreamer) Config() config.Config { return s.cfg }

// Field возвращает поле высот
func (s *ChunkStreamer) Field() terrainmath.Field { return s.field }

// Obstacles возвращает поле препятствий. Только для контекста отображения.
func (s *ChunkStreamer) Obstacles() *obstacles.Field { return s.obstacles }

func (s *ChunkStreamer) ensureExecutors() {
	if s.exec != nil && s.decorExec != nil {
		return
	}
	s.exec = NewWorkerPool("mesh", s.cfg.Workers, defaultBuildQueue)
	s.decorExec = NewWorkerPool("decoration", 1, 4)
	s.ownExec = true
}

// Update выполняет один шаг планировщика для позиции наблюдателя
func (s *ChunkStreamer) Update(ctx context.Context, observer mgl32.Vec3) error {
	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.ensureExecutors()
	s.admitted = 0

	// 0. готовые сборки прошлых кадров
	s.drainCompletions(ctx)

	// 1-3. кольца желаемых и удерживаемых чанков
	s.center = s.field.KeyForWorld(float64(observer.X()), float64(observer.Z()))
	s.hasCenter = true
	s.desiredSeq = terrainmath.Ring(s.center, s.cfg.PreloadRadius)
	s.desired = make(map[terrainmath.ChunkKey]struct{}, len(s.desiredSeq))
	for _, k := range s.desiredSeq {
		s.desired[k] = struct{}{}
	}

	// 4. выгрузка за пределами гистерезиса
	for _, key := range s.sortedLoaded() {
		if !s.retained(key) {
			s.evict(key)
		}
	}

	// 5. постановка новых ключей и сортировка очереди по расстоянию
	for _, key := range s.desiredSeq {
		if s.isBusy(key) {
			continue
		}
		s.queued[key] = struct{}{}
		s.backlog = append(s.backlog, key)
	}
	s.sortBacklog()

	// 6. допуск в пределах бюджета
	s.admit()

	// 7. мгновенно завершенные сборки и добор бюджета
	s.drainCompletions(ctx)
	s.admit()

	// 8. чистка очереди
	s.pruneBacklog()

	// 9. декор
	s.stepDecoration()

	s.publish()
	return nil
}

func (s *ChunkStreamer) retained(key terrainmath.ChunkKey) bool {
	return s.hasCenter && terrainmath.Within(s.center, key, s.cfg.RetainRadius())
}

func (s *ChunkStreamer) isDesired(key terrainmath.ChunkKey) bool {
	_, ok := s.desired[key]
	return ok
}

func (s *ChunkStreamer) isBusy(key terrainmath.ChunkKey) bool {
	if _, ok := s.loaded[key]; ok {
		return true
	}
	if _, ok := s.pending[key]; ok {
		return true
	}
	_, ok := s.queued[key]
	return ok
}

func (s *ChunkStreamer) sortedLoaded() []terrainmath.ChunkKey {
	keys := make([]terrainmath.ChunkKey, 0, len(s.loaded))
	for k := range s.loaded {
		keys = append(keys, k)
	}
	sortByDistance(keys, s.center)
	return keys
}

// sortByDistance упорядочивает по квадрату расстояния до центра, затем по X и Y
func sortByDistance(keys []terrainmath.ChunkKey, center terrainmath.ChunkKey) {
	sort.SliceStable(keys, func(i, j int) bool {
		di := terrainmath.DistanceSq(keys[i], center)
		dj := terrainmath.DistanceSq(keys[j], center)
		if di != dj {
			return di < dj
		}
		if keys[i].X != keys[j].X {
			return keys[i].X < keys[j].X
		}
		return keys[i].Y < keys[j].Y
	})
}

func (s *ChunkStreamer) sortBacklog() {
	sortByDistance(s.backlog, s.center)
}

// admit допускает ключи из головы очереди, пока не исчерпан бюджет кадра
// и число сборок в полете меньше tasksPerFrame
func (s *ChunkStreamer) admit() {
	budget := s.cfg.TasksPerFrame
	for len(s.backlog) > 0 && s.admitted < budget && len(s.pending) < budget {
		key := s.backlog[0]
		s.backlog = s.backlog[1:]
		delete(s.queued, key)
		if _, ok := s.loaded[key]; ok {
			continue
		}
		if _, ok := s.pending[key]; ok {
			continue
		}
		if !s.retained(key) {
			continue
		}
		s.gen++
		s.pending[key] = s.gen
		s.admitted++
		s.submitBuild(key, s.gen)
	}
}

// submitBuild отдает воркеру только значения: ключ, поле и параметры
func (s *ChunkStreamer) submitBuild(key terrainmath.ChunkKey, gen uint64) {
	field, params := s.field, s.params
	s.exec.Submit(func() {
		res := buildResult{key: key, gen: gen}
		defer func() {
			if r := recover(); r != nil {
				res.data = nil
				res.err = fmt.Errorf("build %s: %v", key, r)
			}
			s.pushCompletion(res)
		}()
		res.data = chunkmesh.Build(key, field, params)
		counter(counterBuilt).Add(1)
	})
}

func (s *ChunkStreamer) pushCompletion(res buildResult) {
	s.doneMu.Lock()
	s.completions = append(s.completions, res)
	s.doneMu.Unlock()
}

func (s *ChunkStreamer) takeCompletions() []buildResult {
	s.doneMu.Lock()
	defer s.doneMu.Unlock()
	out := s.completions
	s.completions = nil
	return out
}

// drainCompletions присоединяет готовые меши или отбрасывает устаревшие
func (s *ChunkStreamer) drainCompletions(ctx context.Context) {
	for _, res := range s.takeCompletions() {
		gen, ok := s.pending[res.key]
		if !ok || gen != res.gen {
			// результат уже вытеснен более новой сборкой
			s.discard(res.key, "superseded")
			continue
		}
		delete(s.pending, res.key)
		s.stats.Built++

		switch {
		case res.err != nil || res.data == nil:
			s.logger.Warnf("chunk %s build failed: %v", res.key, res.err)
			s.discard(res.key, "build failed")
		case !s.isDesired(res.key) && !s.retained(res.key):
			s.discard(res.key, "no longer desired")
		case !s.presenter.Ready():
			s.discard(res.key, "presenter torn down")
		default:
			s.attach(ctx, res)
		}
	}
}

func (s *ChunkStreamer) discard(key terrainmath.ChunkKey, reason string) {
	s.stats.Discarded++
	counter(counterDiscarded).Add(1)
	s.logger.Debugf("chunk %s discarded: %s", key, reason)
}

func (s *ChunkStreamer) attach(ctx context.Context, res buildResult) {
	// устаревший объект на этом ключе заменяется
	if old, ok := s.loaded[res.key]; ok {
		s.detachChunk(res.key, old)
		delete(s.loaded, res.key)
	}

	h, err := s.presenter.Attach(res.data)
	if err != nil {
		s.stats.AttachFailures++
		s.logger.Warnf("chunk %s attach failed: %v", res.key, err)
		return
	}
	if err := s.presenter.Prepare(ctx, h); err != nil {
		s.stats.AttachFailures++
		s.logger.Warnf("chunk %s prepare failed: %v", res.key, err)
		s.presenter.Detach(h)
		return
	}

	s.loaded[res.key] = &loadedChunk{handle: h, gen: res.gen}
	s.stats.Attached++
	counter(counterAttached).Add(1)
	if s.hooks.Attached != nil {
		s.hooks.Attached(res.key, res.data)
	}
}

func (s *ChunkStreamer) detachChunk(key terrainmath.ChunkKey, lc *loadedChunk) {
	if s.presenter.Ready() {
		if len(lc.objects) > 0 {
			s.presenter.DetachObjects(lc.objects)
		}
		s.presenter.Detach(lc.handle)
	}
	s.obstacles.Clear(key)
	if s.applying != nil && s.applying.key == key {
		s.applying = nil
	}
}

// evict выгружает чанк и сбрасывает его состояние декора
func (s *ChunkStreamer) evict(key terrainmath.ChunkKey) {
	lc, ok := s.loaded[key]
	if !ok {
		return
	}
	delete(s.loaded, key)
	s.detachChunk(key, lc)
	s.stats.Evicted++
	counter(counterEvicted).Add(1)
	s.sinks.Beacons(key, nil)
	s.sinks.Removed(key)
	s.logger.Debugf("chunk %s evicted", key)
}

// pruneBacklog убирает из очереди загруженные и ушедшие за гистерезис ключи
func (s *ChunkStreamer) pruneBacklog() {
	kept := s.backlog[:0]
	for _, key := range s.backlog {
		_, isLoaded := s.loaded[key]
		if isLoaded || !s.retained(key) {
			delete(s.queued, key)
			continue
		}
		kept = append(kept, key)
	}
	s.backlog = kept
}

// State возвращает состояние ключа
func (s *ChunkStreamer) State(key terrainmath.ChunkKey) State {
	if _, ok := s.loaded[key]; ok {
		return StateLoaded
	}
	if _, ok := s.pending[key]; ok {
		return StateBuilding
	}
	if _, ok := s.queued[key]; ok {
		return StateQueued
	}
	return StateUnloaded
}

// IsDecorated сообщает, завершен ли декор ключа в текущей загрузке
func (s *ChunkStreamer) IsDecorated(key terrainmath.ChunkKey) bool {
	lc, ok := s.loaded[key]
	return ok && lc.decorated
}

// Loaded возвращает загруженные ключи по удалению от наблюдателя
func (s *ChunkStreamer) Loaded() []terrainmath.ChunkKey { return s.sortedLoaded() }

// Desired возвращает текущее кольцо предзагрузки в порядке строк
func (s *ChunkStreamer) Desired() []terrainmath.ChunkKey {
	out := make([]terrainmath.ChunkKey, len(s.desiredSeq))
	copy(out, s.desiredSeq)
	return out
}

// Center возвращает чанк наблюдателя на последнем Update
func (s *ChunkStreamer) Center() terrainmath.ChunkKey { return s.center }

// publish сохраняет снимок для чтения из других горутин
func (s *ChunkStreamer) publish() {
	st := s.stats
	st.Center = s.center
	st.Desired = len(s.desired)
	st.Loaded = len(s.loaded)
	st.Pending = len(s.pending)
	st.Queued = len(s.queued)
	st.AdmittedLastUpdate = s.admitted
	st.Decorated = 0

	snap := Snapshot{
		States:    make(map[terrainmath.ChunkKey]State, len(s.loaded)+len(s.pending)+len(s.queued)),
		Decorated: make(map[terrainmath.ChunkKey]bool, len(s.loaded)),
	}
	for k := range s.queued {
		snap.States[k] = StateQueued
	}
	for k := range s.pending {
		snap.States[k] = StateBuilding
	}
	for k, lc := range s.loaded {
		snap.States[k] = StateLoaded
		if lc.decorated {
			st.Decorated++
			snap.Decorated[k] = true
		}
	}
	snap.Stats = st

	s.statsMu.Lock()
	s.snapshot = snap
	s.statsMu.Unlock()
}

// Stats возвращает снимок счетчиков на конец последнего Update
func (s *ChunkStreamer) Stats() Stats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.snapshot.Stats
}

// Snapshot возвращает копию состояния ключей на конец последнего Update
func (s *ChunkStreamer) Snapshot() Snapshot {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.snapshot
}

// Close останавливает собственные пулы и выгружает все чанки
func (s *ChunkStreamer) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.ownExec {
		s.exec.Close()
		s.decorExec.Close()
	}
	for _, key := range s.sortedLoaded() {
		s.evict(key)
	}
	s.takeCompletions()
	s.takeDecorations()
	s.pending = make(map[terrainmath.ChunkKey]uint64)
	s.queued = make(map[terrainmath.ChunkKey]struct{})
	s.backlog = nil
	s.decorInFlight = nil
	s.applying = nil
	s.publish()
}
