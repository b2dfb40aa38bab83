package gameloop

import (
	"context"
	"log"
	"time"
)

// Loop - главный цикл, вызывающий Tick всех зарегистрированных систем.
// Все системы выполняются в одной горутине: это и есть контекст отображения стримера.
type Loop struct {
	systems []System
	tickDur time.Duration
}

// NewLoop создаёт цикл с заданной длительностью тика.
func NewLoop(tick time.Duration, deps Dependencies, systems ...System) *Loop {
	// Инициализируем все системы
	for _, s := range systems {
		if err := s.Init(deps); err != nil {
			log.Printf("[GameLoop] init %s error: %v", s.Name(), err)
		}
	}
	if tick <= 0 {
		tick = 50 * time.Millisecond
	}
	return &Loop{systems: systems, tickDur: tick}
}

// TickDuration возвращает длительность тика
func (l *Loop) TickDuration() time.Duration { return l.tickDur }

// Step выполняет один тик всех систем синхронно.
func (l *Loop) Step(ctx context.Context, dt time.Duration) {
	for _, s := range l.systems {
		func(sys System) {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[GameLoop] panic in %s: %v", sys.Name(), r)
				}
			}()
			sys.Tick(ctx, dt)
		}(s)
	}
}

// Run запускает цикл до отмены ctx.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.tickDur)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case t := <-ticker.C:
			dt := t.Sub(last)
			last = t
			l.Step(ctx, dt)
		case <-ctx.Done():
			log.Println("[GameLoop] stopped")
			return
		}
	}
}
