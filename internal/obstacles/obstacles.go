// Package obstacles хранит круглые коллайдеры декора, сгруппированные по чанкам.
// Поле изменяется только из контекста стримера, блокировок нет.
package obstacles

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annelo/terrain-streamer/internal/terrainmath"
)

// Obstacle - круглый коллайдер в плоскости XZ
type Obstacle struct {
	Key    terrainmath.ChunkKey
	Centre mgl32.Vec2 // X, Z
	Radius float32
	Handle string
	Kind   string
}

// Overlaps проверяет пересечение с окружностью (x, z, r)
func (o Obstacle) Overlaps(x, z, r float32) bool {
	d := o.Centre.Sub(mgl32.Vec2{x, z})
	rr := o.Radius + r
	return d.Dot(d) <= rr*rr
}

// QueryStats - статистика последнего запроса, для проверки границ обхода
type QueryStats struct {
	BucketsVisited int
	Candidates     int
}

// Field - коллайдеры по ключам чанков
type Field struct {
	chunkSizeX float64
	chunkSizeZ float64
	buckets    map[terrainmath.ChunkKey][]Obstacle
	count      int
	last       QueryStats
}

// NewField создает поле для чанков заданного мирового размера
func NewField(chunkSizeX, chunkSizeZ float64) *Field {
	if chunkSizeX <= 0 {
		chunkSizeX = 1
	}
	if chunkSizeZ <= 0 {
		chunkSizeZ = 1
	}
	return &Field{
		chunkSizeX: chunkSizeX,
		chunkSizeZ: chunkSizeZ,
		buckets:    make(map[terrainmath.ChunkKey][]Obstacle),
	}
}

// Add добавляет коллайдеры в корзину чанка
func (f *Field) Add(key terrainmath.ChunkKey, obs ...Obstacle) {
	if len(obs) == 0 {
		return
	}
	for i := range obs {
		obs[i].Key = key
	}
	f.buckets[key] = append(f.buckets[key], obs...)
	f.count += len(obs)
}

// Clear удаляет все коллайдеры чанка
func (f *Field) Clear(key terrainmath.ChunkKey) int {
	n := len(f.buckets[key])
	delete(f.buckets, key)
	f.count -= n
	return n
}

// Len возвращает общее число коллайдеров
func (f *Field) Len() int { return f.count }

// Bucket возвращает коллайдеры одного чанка
func (f *Field) Bucket(key terrainmath.ChunkKey) []Obstacle {
	return f.buckets[key]
}

// Keys возвращает ключи непустых корзин в порядке строк
func (f *Field) Keys() []terrainmath.ChunkKey {
	keys := make([]terrainmath.ChunkKey, 0, len(f.buckets))
	for k := range f.buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Y != keys[j].Y {
			return keys[i].Y < keys[j].Y
		}
		return keys[i].X < keys[j].X
	})
	return keys
}

// LastStats возвращает статистику последнего Query
func (f *Field) LastStats() QueryStats { return f.last }

// Query возвращает коллайдеры из (2*rings+1)^2 корзин вокруг чанка точки.
// clipRadius > 0 дополнительно отсекает по расстоянию: центр не дальше clip + radius.
func (f *Field) Query(worldX, worldZ float64, rings int, clipRadius float64) ([]Obstacle, QueryStats) {
	if rings < 0 {
		rings = 0
	}
	center := terrainmath.KeyForPosition(worldX, worldZ, f.chunkSizeX, f.chunkSizeZ)
	stats := QueryStats{}
	var out []Obstacle
	for _, key := range terrainmath.Ring(center, rings) {
		stats.BucketsVisited++
		for _, o := range f.buckets[key] {
			stats.Candidates++
			if clipRadius > 0 && !o.Overlaps(float32(worldX), float32(worldZ), float32(clipRadius)) {
				continue
			}
			out = append(out, o)
		}
	}
	f.last = stats
	return out, stats
}

// Overlapping возвращает коллайдеры, пересекающие круг (x, z, radius).
// Смотрит соседние корзины, чтобы поймать объекты на границе чанков.
func (f *Field) Overlapping(worldX, worldZ, radius float64) []Obstacle {
	radius = max(radius, 0)
	center := terrainmath.KeyForPosition(worldX, worldZ, f.chunkSizeX, f.chunkSizeZ)
	var out []Obstacle
	for _, key := range terrainmath.Ring(center, 1) {
		for _, o := range f.buckets[key] {
			if o.Overlaps(float32(worldX), float32(worldZ), float32(radius)) {
				out = append(out, o)
			}
		}
	}
	return out
}
