package chunkmanager

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annelo/terrain-streamer/internal/decoration"
	"github.com/annelo/terrain-streamer/internal/obstacles"
	"github.com/annelo/terrain-streamer/internal/terrainmath"
)

// stepDecoration - шаг 9: забрать готовый декор, поставить следующий ключ
// на единственный воркер декора и применить одну порцию объектов
func (s *ChunkStreamer) stepDecoration() {
	if len(s.placers) == 0 || !s.presenter.Ready() {
		return
	}
	s.collectDecorations()
	if s.decorInFlight == nil && s.applying == nil {
		if key, ok := s.nextDecorationKey(); ok {
			s.submitDecoration(key, s.loaded[key].gen)
			// инлайн-исполнитель уже положил результат
			s.collectDecorations()
		}
	}
	s.applyBatch()
}

// nextDecorationKey выбирает недекорированный загруженный ключ:
// сначала из желаемого кольца, затем из полосы гистерезиса, ближние первыми
func (s *ChunkStreamer) nextDecorationKey() (terrainmath.ChunkKey, bool) {
	var marginOnly []terrainmath.ChunkKey
	for _, key := range s.sortedLoaded() {
		if s.loaded[key].decorated {
			continue
		}
		if s.isDesired(key) {
			return key, true
		}
		marginOnly = append(marginOnly, key)
	}
	if len(marginOnly) > 0 {
		return marginOnly[0], true
	}
	return terrainmath.ChunkKey{}, false
}

func (s *ChunkStreamer) submitDecoration(key terrainmath.ChunkKey, gen uint64) {
	s.decorInFlight = &decorResult{key: key, gen: gen}
	field, recipe := s.field, s.recipe
	placers := append([]decoration.Placer(nil), s.placers...)
	s.decorExec.Submit(func() {
		out := decorResult{key: key, gen: gen}
		defer func() {
			if r := recover(); r != nil {
				out.err = fmt.Errorf("decorate %s: %v", key, r)
			}
			s.doneMu.Lock()
			s.decorDone = append(s.decorDone, out)
			s.doneMu.Unlock()
		}()
		out.res = decoration.Decorate(key, field, recipe, placers)
	})
}

func (s *ChunkStreamer) takeDecorations() []decorResult {
	s.doneMu.Lock()
	defer s.doneMu.Unlock()
	out := s.decorDone
	s.decorDone = nil
	return out
}

// collectDecorations принимает результат воркера, если чанк все еще загружен
// в том же поколении и не декорирован
func (s *ChunkStreamer) collectDecorations() {
	for _, dr := range s.takeDecorations() {
		if s.decorInFlight != nil && s.decorInFlight.key == dr.key && s.decorInFlight.gen == dr.gen {
			s.decorInFlight = nil
		}
		lc, ok := s.loaded[dr.key]
		if !ok || lc.gen != dr.gen || lc.decorated {
			s.logger.Debugf("decoration for %s dropped: chunk evicted or replaced", dr.key)
			continue
		}
		if dr.err != nil {
			s.logger.Warnf("decoration for %s failed: %v", dr.key, dr.err)
			// без повторов в этой загрузке
			lc.decorated = true
			continue
		}
		s.applying = &decorApply{key: dr.key, gen: dr.gen, res: dr.res}
	}
}

// applyBatch присоединяет не больше DecorationYieldEvery объектов за Update
func (s *ChunkStreamer) applyBatch() {
	ap := s.applying
	if ap == nil {
		return
	}
	lc, ok := s.loaded[ap.key]
	if !ok || lc.gen != ap.gen {
		s.applying = nil
		return
	}

	end := min(ap.next+s.cfg.DecorationYieldEvery, len(ap.res.Placements))
	batch := ap.res.Placements[ap.next:end]
	if len(batch) > 0 {
		handles, err := s.presenter.AttachObjects(ap.key, batch)
		if err != nil {
			s.logger.Warnf("decoration attach for %s failed: %v", ap.key, err)
			s.applying = nil
			return
		}
		lc.objects = append(lc.objects, handles...)
		s.stats.ObjectsAttached += int64(len(handles))

		var obs []obstacles.Obstacle
		for i, pl := range batch {
			if pl.Collectible {
				ap.collectible = append(ap.collectible, pl)
			}
			if !pl.Blocking() {
				continue
			}
			o := obstacles.Obstacle{
				Centre: mgl32.Vec2{pl.Position.X(), pl.Position.Z()},
				Radius: pl.Radius,
				Kind:   pl.Variant,
			}
			if i < len(handles) {
				o.Handle = string(handles[i])
			}
			obs = append(obs, o)
		}
		if len(obs) > 0 {
			s.obstacles.Add(ap.key, obs...)
			s.sinks.Obstacles(ap.key, obs)
		}
	}
	ap.next = end
	if ap.next < len(ap.res.Placements) {
		return
	}

	lc.decorated = true
	s.applying = nil
	s.stats.DecorationsApplied++
	counter(counterDecorated).Add(1)
	s.sinks.Beacons(ap.key, ap.collectible)
	if s.hooks.Decorated != nil {
		s.hooks.Decorated(ap.key, ap.res)
	}
}
