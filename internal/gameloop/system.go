package gameloop

import (
	"context"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annelo/terrain-streamer/internal/chunkmanager"
	"github.com/annelo/terrain-streamer/internal/terrainmath"
)

// System описывает логику, выполняемую каждый тик цикла.
type System interface {
	// Init вызывается один раз перед запуском цикла.
	Init(deps Dependencies) error
	// Tick вызывается каждый тик.
	Tick(ctx context.Context, dt time.Duration)
	// Name возвращает читаемое имя системы.
	Name() string
}

// Dependencies передаются системам при инициализации.
type Dependencies struct {
	Streamer *chunkmanager.ChunkStreamer
	Observer *Observer
	// EmitEvent используется системами для рассылки событий.
	EmitEvent func(evt Event)
}

// EventType - тип события цикла
type EventType int

const (
	EventStats EventType = iota
	EventObserverBlocked
)

func (t EventType) String() string {
	switch t {
	case EventStats:
		return "STATS"
	case EventObserverBlocked:
		return "OBSERVER_BLOCKED"
	default:
		return "UNKNOWN"
	}
}

// Event - событие, которое системы отдают наружу
type Event struct {
	Type     EventType
	Tick     int64
	Key      terrainmath.ChunkKey
	Position mgl32.Vec3
	Stats    chunkmanager.Stats
}

func (d Dependencies) emit(evt Event) {
	if d.EmitEvent != nil {
		d.EmitEvent(evt)
	}
}

// Observer - позиция наблюдателя, общая для систем и внешних читателей
type Observer struct {
	mu  sync.RWMutex
	pos mgl32.Vec3
}

// NewObserver создает наблюдателя в точке pos
func NewObserver(pos mgl32.Vec3) *Observer {
	return &Observer{pos: pos}
}

// Position возвращает текущую позицию
func (o *Observer) Position() mgl32.Vec3 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.pos
}

// SetPosition задает позицию
func (o *Observer) SetPosition(pos mgl32.Vec3) {
	o.mu.Lock()
	o.pos = pos
	o.mu.Unlock()
}
