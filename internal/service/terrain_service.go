package service

import (
	"context"
	"expvar"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/annelo/terrain-streamer/internal/chunkmesh"
	"github.com/annelo/terrain-streamer/internal/config"
	"github.com/annelo/terrain-streamer/internal/decoration"
	"github.com/annelo/terrain-streamer/internal/noisegeneration"
	"github.com/annelo/terrain-streamer/internal/terrainmath"
)

const (
	// MaxChunkCoord ограничивает ключи чанков в запросах
	MaxChunkCoord = 1 << 20
	// MaxHeightPoints - максимум точек в одном запросе высоты
	MaxHeightPoints = 4096
)

// TerrainService - удаленная сборка чанков. Все методы чистые функции
// рецепта и не трогают состояние стримера.
type TerrainService struct {
	logger  *zap.SugaredLogger
	cfg     config.Config
	recipe  config.Recipe
	field   terrainmath.Field
	params  chunkmesh.Params
	placers []decoration.Placer
}

// NewTerrainService создает сервис для рецепта и настроек чанка
func NewTerrainService(cfg config.Config, recipe config.Recipe) *TerrainService {
	cfg = cfg.Normalize()
	recipe = recipe.Normalize()
	field := terrainmath.NewField(noisegeneration.NewSampler(recipe), cfg)
	return &TerrainService{
		logger:  zap.NewNop().Sugar(),
		cfg:     cfg,
		recipe:  recipe,
		field:   field,
		params:  chunkmesh.ParamsFromConfig(cfg),
		placers: decoration.DefaultPlacers(recipe.Decoration),
	}
}

// SetLogger задает логгер сервиса
func (s *TerrainService) SetLogger(l *zap.SugaredLogger) {
	if l != nil {
		s.logger = l
	}
}

// SetPlacers задает проходы декора, например с учетом расширений
func (s *TerrainService) SetPlacers(p []decoration.Placer) {
	if len(p) > 0 {
		s.placers = p
	}
}

// Field возвращает поле высот сервиса
func (s *TerrainService) Field() terrainmath.Field { return s.field }

func checkKey(x, y int) error {
	if x < -MaxChunkCoord || x > MaxChunkCoord || y < -MaxChunkCoord || y > MaxChunkCoord {
		return status.Errorf(codes.InvalidArgument, "chunk key (%d, %d) out of range", x, y)
	}
	return nil
}

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return status.FromContextError(err).Err()
	}
	return nil
}

// BuildChunk строит меш чанка
func (s *TerrainService) BuildChunk(ctx context.Context, req *ChunkRequest) (*ChunkResponse, error) {
	if err := checkKey(req.X, req.Y); err != nil {
		return nil, err
	}
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	id := uuid.New().String()
	start := time.Now()
	data := chunkmesh.Build(terrainmath.ChunkKey{X: req.X, Y: req.Y}, s.field, s.params)
	expvar.Get("rpc_chunks_built").(*expvar.Int).Add(1)
	s.logger.Debugf("BuildChunk %s (%d, %d): %d vertices in %s", id, req.X, req.Y, len(data.Positions), time.Since(start))
	return chunkResponse(id, data), nil
}

// GroundHeight возвращает высоту поверхности меша в каждой точке
func (s *TerrainService) GroundHeight(ctx context.Context, req *HeightRequest) (*HeightResponse, error) {
	if len(req.Points) > MaxHeightPoints {
		return nil, status.Errorf(codes.InvalidArgument, "too many points: %d > %d", len(req.Points), MaxHeightPoints)
	}
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	resp := &HeightResponse{Heights: make([]float64, len(req.Points))}
	for i, p := range req.Points {
		resp.Heights[i] = s.field.GroundHeight(p.X, p.Z)
	}
	expvar.Get("rpc_height_points").(*expvar.Int).Add(int64(len(req.Points)))
	return resp, nil
}

// Decorate расставляет объекты чанка
func (s *TerrainService) Decorate(ctx context.Context, req *DecorateRequest) (*DecorateResponse, error) {
	if err := checkKey(req.X, req.Y); err != nil {
		return nil, err
	}
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	id := uuid.New().String()
	res := decoration.Decorate(terrainmath.ChunkKey{X: req.X, Y: req.Y}, s.field, s.recipe, s.placers)

	resp := &DecorateResponse{
		RequestID:    id,
		X:            req.X,
		Y:            req.Y,
		Placements:   make([]PlacementMessage, 0, len(res.Placements)),
		Collectibles: len(res.Collectibles()),
		Blocking:     len(res.Blocking()),
	}
	for _, p := range res.Placements {
		resp.Placements = append(resp.Placements, placementMessage(p))
	}
	expvar.Get("rpc_decorations").(*expvar.Int).Add(1)
	s.logger.Debugf("Decorate %s (%d, %d): %d placements", id, req.X, req.Y, len(res.Placements))
	return resp, nil
}

func init() {
	// Инициализируем expvar-счётчики, если сервис создается без server/main (например, в тестах)
	ensureCounter := func(name string) {
		if expvar.Get(name) == nil {
			expvar.NewInt(name)
		}
	}
	ensureCounter("rpc_chunks_built")
	ensureCounter("rpc_height_points")
	ensureCounter("rpc_decorations")
	ensureCounter("rpc_errors")
}
