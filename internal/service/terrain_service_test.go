package service

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/annelo/terrain-streamer/internal/chunkmesh"
	"github.com/annelo/terrain-streamer/internal/config"
	"github.com/annelo/terrain-streamer/internal/decoration"
	"github.com/annelo/terrain-streamer/internal/terrainmath"
)

const bufSize = 1 << 20

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.ChunkTilesX = 4
	cfg.ChunkTilesZ = 4
	return cfg
}

// startServer поднимает сервер на bufconn и возвращает подключенного клиента
func startServer(t *testing.T, svc *TerrainService) (*TerrainClient, *grpc.ClientConn) {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	srv, hs := NewServer(svc, nil)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(func() { Shutdown(srv, hs, time.Second) })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewTerrainClient(conn), conn
}

func TestTerrainService_BuildChunkMatchesLocalBuild(t *testing.T) {
	cfg := testConfig()
	recipe := config.DefaultRecipe(99)
	svc := NewTerrainService(cfg, recipe)
	client, _ := startServer(t, svc)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := client.BuildChunk(ctx, &ChunkRequest{X: 2, Y: -3})
	require.NoError(t, err)

	local := chunkmesh.Build(terrainmath.ChunkKey{X: 2, Y: -3}, svc.Field(), chunkmesh.ParamsFromConfig(cfg.Normalize()))
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, 2, resp.X)
	assert.Equal(t, -3, resp.Y)
	assert.Equal(t, local.Checksum(), resp.Checksum)
	assert.Equal(t, 25, resp.CoreVertices)
	assert.Equal(t, local.SkirtVertexCount(), resp.SkirtVertices)
	assert.Len(t, resp.Positions, 3*len(local.Positions))
	assert.Len(t, resp.Normals, 3*len(local.Normals))
	assert.Len(t, resp.UVs, 2*len(local.UVs))
	assert.Equal(t, local.Indices, resp.Indices)
	assert.LessOrEqual(t, resp.MinY, resp.MaxY)
}

func TestTerrainService_GroundHeight(t *testing.T) {
	svc := NewTerrainService(testConfig(), config.DefaultRecipe(5))
	client, _ := startServer(t, svc)

	points := []Point{{X: 0, Z: 0}, {X: 13.5, Z: -7.25}, {X: 100, Z: 100}}
	resp, err := client.GroundHeight(context.Background(), &HeightRequest{Points: points})
	require.NoError(t, err)
	require.Len(t, resp.Heights, len(points))
	for i, p := range points {
		assert.InDelta(t, svc.Field().GroundHeight(p.X, p.Z), resp.Heights[i], 1e-9)
	}
}

func TestTerrainService_GroundHeightTooManyPoints(t *testing.T) {
	client, _ := startServer(t, NewTerrainService(testConfig(), config.DefaultRecipe(5)))

	_, err := client.GroundHeight(context.Background(), &HeightRequest{Points: make([]Point, MaxHeightPoints+1)})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestTerrainService_KeyOutOfRange(t *testing.T) {
	client, _ := startServer(t, NewTerrainService(testConfig(), config.DefaultRecipe(5)))

	_, err := client.BuildChunk(context.Background(), &ChunkRequest{X: MaxChunkCoord + 1})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = client.Decorate(context.Background(), &DecorateRequest{Y: -MaxChunkCoord - 1})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestTerrainService_DecorateDeterministic(t *testing.T) {
	cfg := testConfig()
	recipe := config.DefaultRecipe(2024)
	svc := NewTerrainService(cfg, recipe)
	client, _ := startServer(t, svc)

	first, err := client.Decorate(context.Background(), &DecorateRequest{X: 1, Y: 1})
	require.NoError(t, err)
	second, err := client.Decorate(context.Background(), &DecorateRequest{X: 1, Y: 1})
	require.NoError(t, err)

	assert.NotEqual(t, first.RequestID, second.RequestID)
	assert.Equal(t, first.Placements, second.Placements)

	local := decoration.Decorate(terrainmath.ChunkKey{X: 1, Y: 1}, svc.Field(), recipe.Normalize(), nil)
	assert.Len(t, first.Placements, len(local.Placements))
	assert.Equal(t, len(local.Collectibles()), first.Collectibles)
	assert.Equal(t, len(local.Blocking()), first.Blocking)
}

func TestTerrainService_Health(t *testing.T) {
	_, conn := startServer(t, NewTerrainService(testConfig(), config.DefaultRecipe(1)))

	hc := healthpb.NewHealthClient(conn)
	resp, err := hc.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestTerrainService_CancelledContext(t *testing.T) {
	svc := NewTerrainService(testConfig(), config.DefaultRecipe(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.BuildChunk(ctx, &ChunkRequest{})
	assert.Equal(t, codes.Canceled, status.Code(err))
}

func TestJSONCodec_Name(t *testing.T) {
	var c jsonCodec
	assert.Equal(t, "json", c.Name())

	raw, err := c.Marshal(&ChunkRequest{X: 3, Y: -4})
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":3,"y":-4}`, string(raw))
}
