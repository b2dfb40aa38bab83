package service

import (
	"context"
	"expvar"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName - полное имя gRPC-сервиса
const ServiceName = "terrain.Terrain"

// TerrainServer - серверная сторона сервиса
type TerrainServer interface {
	BuildChunk(ctx context.Context, req *ChunkRequest) (*ChunkResponse, error)
	GroundHeight(ctx context.Context, req *HeightRequest) (*HeightResponse, error)
	Decorate(ctx context.Context, req *DecorateRequest) (*DecorateResponse, error)
}

func buildChunkHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ChunkRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TerrainServer).BuildChunk(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/BuildChunk"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TerrainServer).BuildChunk(ctx, req.(*ChunkRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func groundHeightHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(HeightRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TerrainServer).GroundHeight(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GroundHeight"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TerrainServer).GroundHeight(ctx, req.(*HeightRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func decorateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(DecorateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TerrainServer).Decorate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Decorate"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TerrainServer).Decorate(ctx, req.(*DecorateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc описывает сервис без protoc: сообщения кодируются JSON-кодеком
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TerrainServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "BuildChunk", Handler: buildChunkHandler},
		{MethodName: "GroundHeight", Handler: groundHeightHandler},
		{MethodName: "Decorate", Handler: decorateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "terrain.json",
}

// RegisterServer регистрирует сервис на gRPC-сервере
func (s *TerrainService) RegisterServer(grpcServer grpc.ServiceRegistrar) {
	grpcServer.RegisterService(&ServiceDesc, s)
}

// LoggingInterceptor пишет в лог длительность и код ошибки каждого вызова
func LoggingInterceptor(logger *zap.SugaredLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			expvar.Get("rpc_errors").(*expvar.Int).Add(1)
			logger.Warnw("rpc failed", "method", info.FullMethod, "code", status.Code(err).String(), "err", err)
			return resp, err
		}
		logger.Debugw("rpc", "method", info.FullMethod, "elapsed", time.Since(start))
		return resp, nil
	}
}

// NewServer создает gRPC-сервер с сервисом рельефа и health-сервисом
func NewServer(svc *TerrainService, logger *zap.SugaredLogger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	opts = append(opts, grpc.ChainUnaryInterceptor(LoggingInterceptor(logger)))
	srv := grpc.NewServer(opts...)
	svc.RegisterServer(srv)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// TerrainClient - клиент сервиса
type TerrainClient struct {
	cc grpc.ClientConnInterface
}

// NewTerrainClient создает клиента поверх соединения
func NewTerrainClient(cc grpc.ClientConnInterface) *TerrainClient {
	return &TerrainClient{cc: cc}
}

func (c *TerrainClient) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}

func (c *TerrainClient) BuildChunk(ctx context.Context, in *ChunkRequest, opts ...grpc.CallOption) (*ChunkResponse, error) {
	out := new(ChunkResponse)
	if err := c.invoke(ctx, "BuildChunk", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TerrainClient) GroundHeight(ctx context.Context, in *HeightRequest, opts ...grpc.CallOption) (*HeightResponse, error) {
	out := new(HeightResponse)
	if err := c.invoke(ctx, "GroundHeight", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TerrainClient) Decorate(ctx context.Context, in *DecorateRequest, opts ...grpc.CallOption) (*DecorateResponse, error) {
	out := new(DecorateResponse)
	if err := c.invoke(ctx, "Decorate", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
