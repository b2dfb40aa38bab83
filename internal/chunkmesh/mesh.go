// Package chunkmesh строит геометрию чанка рельефа. Построение - чистая функция
// от ключа, поля высот и параметров и может выполняться на любом воркере.
package chunkmesh

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annelo/terrain-streamer/internal/config"
	"github.com/annelo/terrain-streamer/internal/terrainmath"
)

// Params - параметры построения, снимок настроек стримера
type Params struct {
	TilesX     int
	TilesZ     int
	TileSize   float64
	SkirtDepth float64
	UVScale    float64
}

// ParamsFromConfig строит параметры из настроек стримера
func ParamsFromConfig(cfg config.Config) Params {
	cfg = cfg.Normalize()
	return Params{
		TilesX:     cfg.ChunkTilesX,
		TilesZ:     cfg.ChunkTilesZ,
		TileSize:   cfg.TileSize,
		SkirtDepth: cfg.SkirtDepth,
		UVScale:    cfg.UVScale,
	}
}

// TerrainChunkData - неизменяемый результат построения чанка.
// Вершины ядра идут первыми, за ними вершины юбок; так же устроены индексы.
type TerrainChunkData struct {
	Key      terrainmath.ChunkKey
	TilesX   int
	TilesZ   int
	TileSize float64

	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	UVs       []mgl32.Vec2
	Indices   []uint32

	skirtVertexStart int
	skirtIndexStart  int
}

// CoreVertexCount возвращает число вершин сетки (tilesX+1)*(tilesZ+1)
func (d *TerrainChunkData) CoreVertexCount() int { return d.skirtVertexStart }

// CoreTriangleCount возвращает число треугольников поверхности
func (d *TerrainChunkData) CoreTriangleCount() int { return d.skirtIndexStart / 3 }

// SkirtVertexCount возвращает число вершин юбок
func (d *TerrainChunkData) SkirtVertexCount() int { return len(d.Positions) - d.skirtVertexStart }

// SkirtTriangleCount возвращает число треугольников юбок
func (d *TerrainChunkData) SkirtTriangleCount() int {
	return (len(d.Indices) - d.skirtIndexStart) / 3
}

// CoreIndices возвращает индексы поверхности без юбок
func (d *TerrainChunkData) CoreIndices() []uint32 { return d.Indices[:d.skirtIndexStart] }

// SkirtIndices возвращает индексы юбок
func (d *TerrainChunkData) SkirtIndices() []uint32 { return d.Indices[d.skirtIndexStart:] }

// Vertex возвращает позицию и нормаль вершины сетки (i, j)
func (d *TerrainChunkData) Vertex(i, j int) (mgl32.Vec3, mgl32.Vec3) {
	idx := j*(d.TilesX+1) + i
	return d.Positions[idx], d.Normals[idx]
}

// Bounds возвращает минимальную и максимальную высоту поверхности
func (d *TerrainChunkData) Bounds() (float32, float32) {
	if d.skirtVertexStart == 0 {
		return 0, 0
	}
	lo := float32(math.MaxFloat32)
	hi := float32(-math.MaxFloat32)
	for _, p := range d.Positions[:d.skirtVertexStart] {
		lo = min(lo, p.Y())
		hi = max(hi, p.Y())
	}
	return lo, hi
}

// Checksum возвращает FNV-64 от всех буферов. Одинаковый сид и ключ дают одинаковую сумму.
func (d *TerrainChunkData) Checksum() uint64 {
	h := fnv.New64a()
	var buf [4]byte
	writeF := func(v float32) {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		h.Write(buf[:])
	}
	for i := range d.Positions {
		for _, v := range d.Positions[i] {
			writeF(v)
		}
		for _, v := range d.Normals[i] {
			writeF(v)
		}
		for _, v := range d.UVs[i] {
			writeF(v)
		}
	}
	for _, idx := range d.Indices {
		binary.LittleEndian.PutUint32(buf[:], idx)
		h.Write(buf[:])
	}
	return h.Sum64()
}

// Build строит чанк. Не трогает общее состояние.
func Build(key terrainmath.ChunkKey, field terrainmath.Field, p Params) *TerrainChunkData {
	tx := max(p.TilesX, 1)
	tz := max(p.TilesZ, 1)
	tileSize := p.TileSize
	if tileSize <= 0 {
		tileSize = 1
	}

	originX, originZ := key.X*tx, key.Y*tz

	// Расширенная сетка высот с рамкой в один тайл: нормали на краю считаются
	// по тем же отсчетам, что и у соседнего чанка
	ew := tx + 3
	eh := tz + 3
	heights := make([]float64, ew*eh)
	for j := 0; j < eh; j++ {
		for i := 0; i < ew; i++ {
			gx := float64(originX + i - 1)
			gz := float64(originZ + j - 1)
			heights[j*ew+i] = field.SurfaceY(gx, gz)
		}
	}
	hAt := func(i, j int) float64 { return heights[(j+1)*ew+(i+1)] }

	vw := tx + 1
	vh := tz + 1
	coreVerts := vw * vh
	skirtVerts := 2*vw + 2*vh
	coreIdx := tx * tz * 6
	skirtIdx := (2*tx + 2*tz) * 6

	data := &TerrainChunkData{
		Key:              key,
		TilesX:           tx,
		TilesZ:           tz,
		TileSize:         tileSize,
		Positions:        make([]mgl32.Vec3, 0, coreVerts+skirtVerts),
		Normals:          make([]mgl32.Vec3, 0, coreVerts+skirtVerts),
		UVs:              make([]mgl32.Vec2, 0, coreVerts+skirtVerts),
		Indices:          make([]uint32, 0, coreIdx+skirtIdx),
		skirtVertexStart: coreVerts,
		skirtIndexStart:  coreIdx,
	}

	// Вершины: позиция, нормаль по центральным разностям, UV от глобального тайла
	for j := 0; j < vh; j++ {
		for i := 0; i < vw; i++ {
			gx := originX + i
			gz := originZ + j
			pos := mgl32.Vec3{
				float32(float64(gx) * tileSize),
				float32(hAt(i, j)),
				float32(float64(gz) * tileSize),
			}
			dx := hAt(i+1, j) - hAt(i-1, j)
			dz := hAt(i, j+1) - hAt(i, j-1)
			n := mgl32.Vec3{float32(-dx), float32(2 * tileSize), float32(-dz)}.Normalize()

			data.Positions = append(data.Positions, pos)
			data.Normals = append(data.Normals, n)
			data.UVs = append(data.UVs, mgl32.Vec2{float32(float64(gx) * p.UVScale), float32(float64(gz) * p.UVScale)})
		}
	}

	// Два треугольника на тайл, против часовой стрелки при взгляде сверху
	for j := 0; j < tz; j++ {
		for i := 0; i < tx; i++ {
			a := uint32(j*vw + i)
			b := a + 1
			c := a + uint32(vw)
			d := c + 1
			data.Indices = append(data.Indices, a, c, b, b, c, d)
		}
	}

	appendSkirts(data, vw, vh, float32(p.SkirtDepth))
	return data
}

// appendSkirts дублирует краевые вершины вниз на depth и сшивает вертикальную
// ленту. Обход по контуру (север +X, восток +Z, юг -X, запад -Z) дает
// грани, смотрящие наружу.
func appendSkirts(data *TerrainChunkData, vw, vh int, depth float32) {
	edge := func(i, j int) uint32 { return uint32(j*vw + i) }

	var north, east, south, west []uint32
	for i := 0; i < vw; i++ {
		north = append(north, edge(i, 0))
		south = append(south, edge(vw-1-i, vh-1))
	}
	for j := 0; j < vh; j++ {
		east = append(east, edge(vw-1, j))
		west = append(west, edge(0, vh-1-j))
	}

	for _, strip := range [][]uint32{north, east, south, west} {
		base := uint32(len(data.Positions))
		for _, top := range strip {
			p := data.Positions[top]
			data.Positions = append(data.Positions, mgl32.Vec3{p.X(), p.Y() - depth, p.Z()})
			data.Normals = append(data.Normals, data.Normals[top])
			data.UVs = append(data.UVs, data.UVs[top])
		}
		for k := 0; k+1 < len(strip); k++ {
			t0, t1 := strip[k], strip[k+1]
			s0, s1 := base+uint32(k), base+uint32(k+1)
			data.Indices = append(data.Indices, t0, t1, s0, t1, s1, s0)
		}
	}
}
