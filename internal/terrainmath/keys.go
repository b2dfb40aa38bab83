// Package terrainmath содержит общие расчеты рельефа: ключи чанков и единый
// источник высоты поверхности для меша, коллизий и расстановки декора.
package terrainmath

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ChunkKey - целочисленная координата чанка в сетке. X идет вдоль мировой оси X,
// Y - вдоль мировой оси Z.
type ChunkKey struct {
	X int
	Y int
}

// String возвращает строковый ключ чанка в формате "x:y"
func (k ChunkKey) String() string {
	return fmt.Sprintf("%d:%d", k.X, k.Y)
}

// Add возвращает ключ, сдвинутый на (dx, dy)
func (k ChunkKey) Add(dx, dy int) ChunkKey {
	return ChunkKey{X: k.X + dx, Y: k.Y + dy}
}

// ParseChunkKey разбирает ключ формата "x:y"
func ParseChunkKey(s string) (ChunkKey, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return ChunkKey{}, errors.New("неверный формат ключа чанка")
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return ChunkKey{}, fmt.Errorf("неверный формат ключа чанка: %w", err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return ChunkKey{}, fmt.Errorf("неверный формат ключа чанка: %w", err)
	}
	return ChunkKey{X: x, Y: y}, nil
}

// Chebyshev возвращает расстояние Чебышева между ключами
func Chebyshev(a, b ChunkKey) int {
	return max(absInt(a.X-b.X), absInt(a.Y-b.Y))
}

// DistanceSq возвращает квадрат евклидова расстояния между ключами
func DistanceSq(a, b ChunkKey) int {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return dx*dx + dy*dy
}

// Within сообщает, лежит ли ключ в кольце радиуса radius вокруг center
func Within(center, key ChunkKey, radius int) bool {
	return Chebyshev(center, key) <= radius
}

// Ring возвращает все ключи на расстоянии Чебышева не больше radius.
// Порядок построчный и детерминированный.
func Ring(center ChunkKey, radius int) []ChunkKey {
	if radius < 0 {
		return nil
	}
	side := 2*radius + 1
	keys := make([]ChunkKey, 0, side*side)
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			keys = append(keys, center.Add(dx, dy))
		}
	}
	return keys
}

// KeyForPosition возвращает ключ чанка, содержащего мировую точку
func KeyForPosition(worldX, worldZ, chunkSizeX, chunkSizeZ float64) ChunkKey {
	return ChunkKey{
		X: floorToInt(worldX / chunkSizeX),
		Y: floorToInt(worldZ / chunkSizeZ),
	}
}

func floorToInt(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int(math.Floor(v))
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
