package gameloop

import (
	"context"
	"log"
	"time"
)

// StatsSystem периодически публикует снимок состояния стримера.
type StatsSystem struct {
	deps  Dependencies
	every int64
	ticks int64
}

const defaultReportEvery = 100 // каждые 5 секунд при 20 TPS

// NewStatsSystem создает систему; every <= 0 означает значение по умолчанию
func NewStatsSystem(every int64) *StatsSystem {
	if every <= 0 {
		every = defaultReportEvery
	}
	return &StatsSystem{every: every}
}

func (s *StatsSystem) Name() string { return "stats" }

func (s *StatsSystem) Init(deps Dependencies) error {
	s.deps = deps
	return nil
}

func (s *StatsSystem) Tick(ctx context.Context, dt time.Duration) {
	s.ticks++
	if s.ticks%s.every != 0 || s.deps.Streamer == nil {
		return
	}
	st := s.deps.Streamer.Stats()
	log.Printf("[StatsSystem.Tick] tick=%d center=%s loaded=%d pending=%d queued=%d decorated=%d evicted=%d",
		s.ticks, st.Center, st.Loaded, st.Pending, st.Queued, st.Decorated, st.Evicted)

	evt := Event{Type: EventStats, Tick: s.ticks, Key: st.Center, Stats: st}
	if s.deps.Observer != nil {
		evt.Position = s.deps.Observer.Position()
	}
	s.deps.emit(evt)
}
