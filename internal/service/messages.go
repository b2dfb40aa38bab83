package service

import (
	"github.com/annelo/terrain-streamer/internal/chunkmesh"
	"github.com/annelo/terrain-streamer/internal/decoration"
)

// ChunkRequest - запрос на построение меша чанка
type ChunkRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ChunkResponse - меш чанка в плоских массивах (xyz, xyz, ...)
type ChunkResponse struct {
	RequestID     string    `json:"request_id"`
	X             int       `json:"x"`
	Y             int       `json:"y"`
	TilesX        int       `json:"tiles_x"`
	TilesZ        int       `json:"tiles_z"`
	TileSize      float64   `json:"tile_size"`
	Positions     []float32 `json:"positions"`
	Normals       []float32 `json:"normals"`
	UVs           []float32 `json:"uvs"`
	Indices       []uint32  `json:"indices"`
	CoreVertices  int       `json:"core_vertices"`
	SkirtVertices int       `json:"skirt_vertices"`
	MinY          float32   `json:"min_y"`
	MaxY          float32   `json:"max_y"`
	Checksum      uint64    `json:"checksum"`
}

// Point - точка на плоскости XZ в мировых координатах
type Point struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

// HeightRequest - пакет точек для запроса высоты земли
type HeightRequest struct {
	Points []Point `json:"points"`
}

// HeightResponse - высоты в порядке точек запроса
type HeightResponse struct {
	Heights []float64 `json:"heights"`
}

// DecorateRequest - запрос на расстановку объектов в чанке
type DecorateRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// PlacementMessage - один объект декора
type PlacementMessage struct {
	Kind        string     `json:"kind"`
	Variant     string     `json:"variant"`
	Position    [3]float32 `json:"position"`
	Yaw         float32    `json:"yaw"`
	Scale       float32    `json:"scale"`
	Radius      float32    `json:"radius,omitempty"`
	Collectible bool       `json:"collectible,omitempty"`
}

// DecorateResponse - результат расстановки
type DecorateResponse struct {
	RequestID    string             `json:"request_id"`
	X            int                `json:"x"`
	Y            int                `json:"y"`
	Placements   []PlacementMessage `json:"placements"`
	Collectibles int                `json:"collectibles"`
	Blocking     int                `json:"blocking"`
}

func flattenVec3(dst []float32, n int, at func(i int) (float32, float32, float32)) []float32 {
	for i := 0; i < n; i++ {
		x, y, z := at(i)
		dst = append(dst, x, y, z)
	}
	return dst
}

func chunkResponse(id string, data *chunkmesh.TerrainChunkData) *ChunkResponse {
	resp := &ChunkResponse{
		RequestID:     id,
		X:             data.Key.X,
		Y:             data.Key.Y,
		TilesX:        data.TilesX,
		TilesZ:        data.TilesZ,
		TileSize:      data.TileSize,
		Indices:       data.Indices,
		CoreVertices:  data.CoreVertexCount(),
		SkirtVertices: data.SkirtVertexCount(),
		Checksum:      data.Checksum(),
	}
	resp.MinY, resp.MaxY = data.Bounds()
	resp.Positions = flattenVec3(make([]float32, 0, 3*len(data.Positions)), len(data.Positions), func(i int) (float32, float32, float32) {
		p := data.Positions[i]
		return p[0], p[1], p[2]
	})
	resp.Normals = flattenVec3(make([]float32, 0, 3*len(data.Normals)), len(data.Normals), func(i int) (float32, float32, float32) {
		n := data.Normals[i]
		return n[0], n[1], n[2]
	})
	resp.UVs = make([]float32, 0, 2*len(data.UVs))
	for _, uv := range data.UVs {
		resp.UVs = append(resp.UVs, uv[0], uv[1])
	}
	return resp
}

func placementMessage(p decoration.Placement) PlacementMessage {
	return PlacementMessage{
		Kind:        p.Kind.String(),
		Variant:     p.Variant,
		Position:    [3]float32(p.Position),
		Yaw:         p.Yaw,
		Scale:       p.Scale,
		Radius:      p.Radius,
		Collectible: p.Collectible,
	}
}
