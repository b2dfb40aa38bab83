// Package presentation описывает границу между стримером и движком отображения.
package presentation

import (
	"context"
	"errors"

	"github.com/annelo/terrain-streamer/internal/chunkmesh"
	"github.com/annelo/terrain-streamer/internal/decoration"
	"github.com/annelo/terrain-streamer/internal/obstacles"
	"github.com/annelo/terrain-streamer/internal/terrainmath"
)

// Handle - непрозрачный идентификатор присоединенного объекта
type Handle string

// ErrNotReady возвращается, когда корень сцены уже разрушен
var ErrNotReady = errors.New("presenter is not ready")

// Presenter присоединяет меши и объекты к сцене.
// Все методы вызываются только из контекста стримера.
type Presenter interface {
	Ready() bool
	Attach(data *chunkmesh.TerrainChunkData) (Handle, error)
	// Prepare ждет, пока присоединенный меш станет пригоден к показу
	Prepare(ctx context.Context, h Handle) error
	Detach(h Handle)
	AttachObjects(key terrainmath.ChunkKey, placements []decoration.Placement) ([]Handle, error)
	DetachObjects(handles []Handle)
}

// Sinks - необязательные получатели событий чанка
type Sinks struct {
	// BeaconSink получает собираемые объекты чанка; nil означает, что чанк выгружен
	BeaconSink func(key terrainmath.ChunkKey, beacons []decoration.Placement)
	// ObstacleSink получает коллайдеры, добавленные в поле препятствий
	ObstacleSink func(key terrainmath.ChunkKey, obs []obstacles.Obstacle)
	// OnChunkRemoved вызывается после выгрузки чанка
	OnChunkRemoved func(key terrainmath.ChunkKey)
}

// Beacons вызывает BeaconSink, если он задан
func (s Sinks) Beacons(key terrainmath.ChunkKey, beacons []decoration.Placement) {
	if s.BeaconSink != nil {
		s.BeaconSink(key, beacons)
	}
}

// Obstacles вызывает ObstacleSink, если он задан
func (s Sinks) Obstacles(key terrainmath.ChunkKey, obs []obstacles.Obstacle) {
	if s.ObstacleSink != nil {
		s.ObstacleSink(key, obs)
	}
}

// Removed вызывает OnChunkRemoved, если он задан
func (s Sinks) Removed(key terrainmath.ChunkKey) {
	if s.OnChunkRemoved != nil {
		s.OnChunkRemoved(key)
	}
}

// Chain объединяет два набора получателей: сначала s, затем next
func (s Sinks) Chain(next Sinks) Sinks {
	return Sinks{
		BeaconSink: func(key terrainmath.ChunkKey, b []decoration.Placement) {
			s.Beacons(key, b)
			next.Beacons(key, b)
		},
		ObstacleSink: func(key terrainmath.ChunkKey, o []obstacles.Obstacle) {
			s.Obstacles(key, o)
			next.Obstacles(key, o)
		},
		OnChunkRemoved: func(key terrainmath.ChunkKey) {
			s.Removed(key)
			next.Removed(key)
		},
	}
}
