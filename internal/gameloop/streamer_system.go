package gameloop

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/annelo/terrain-streamer/internal/chunkmanager"
)

// StreamerSystem вызывает Update стримера для текущей позиции наблюдателя.
type StreamerSystem struct {
	deps   Dependencies
	failed int64
}

func NewStreamerSystem() *StreamerSystem { return &StreamerSystem{} }

func (s *StreamerSystem) Name() string { return "streamer" }

func (s *StreamerSystem) Init(deps Dependencies) error {
	if deps.Streamer == nil || deps.Observer == nil {
		return errors.New("streamer system requires streamer and observer")
	}
	s.deps = deps
	return nil
}

func (s *StreamerSystem) Tick(ctx context.Context, dt time.Duration) {
	if s.deps.Streamer == nil {
		return
	}
	err := s.deps.Streamer.Update(ctx, s.deps.Observer.Position())
	switch {
	case err == nil:
	case errors.Is(err, chunkmanager.ErrClosed), errors.Is(err, context.Canceled):
	default:
		s.failed++
		log.Printf("[StreamerSystem.Tick] update error (total %d): %v", s.failed, err)
	}
}
