package grpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/arkilian/partprune/internal/errors"
	"github.com/arkilian/partprune/internal/logging"
	"github.com/arkilian/partprune/internal/manifest"
	"github.com/arkilian/partprune/internal/query/planner"
)

// PruneServer implements PruneServiceServer on a planner.
type PruneServer struct {
	planner *planner.Planner
	repo    manifest.SchemeRepository
}

// NewPruneServer creates the prune service implementation.
func NewPruneServer(p *planner.Planner, repo manifest.SchemeRepository) *PruneServer {
	return &PruneServer{planner: p, repo: repo}
}

// NewServer builds a gRPC server exposing the prune service and the
// standard health service.
func NewServer(srv PruneServiceServer, logger zerolog.Logger) (*grpc.Server, *health.Server) {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RequestIDInterceptor(logger),
		LoggingInterceptor,
	))
	RegisterPruneServiceServer(s, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s, hs
}

// Explain plans the statement in the "sql" field.
func (s *PruneServer) Explain(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sql := req.GetFields()["sql"].GetStringValue()
	if sql == "" {
		return nil, status.Error(codes.InvalidArgument, "sql is required")
	}
	plan, err := s.planner.Plan(ctx, sql)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]interface{}{
		"plan":       plan.View(),
		"request_id": logging.RequestID(ctx),
	})
}

// DescribeRelation returns the scheme of the relation in the "name" field.
func (s *PruneServer) DescribeRelation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := req.GetFields()["name"].GetStringValue()
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}
	id, ok, err := s.repo.LookupRelation(ctx, name)
	if err != nil {
		return nil, toStatus(err)
	}
	if !ok {
		return nil, status.Errorf(codes.NotFound, "relation %q not found", name)
	}
	scheme, partitioned, err := manifest.Snapshot(ctx, s.repo, id)
	if err != nil {
		return nil, toStatus(err)
	}
	out := map[string]interface{}{"id": id, "name": name, "partitioned": partitioned}
	if partitioned {
		out["name"] = scheme.Name
		out["scheme"] = scheme
	}
	return toStruct(out)
}

// toStruct converts a JSON-serializable value into a Struct.
func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

func toStatus(err error) error {
	code := codes.Internal
	switch apperrors.GetCode(err) {
	case apperrors.CodeRelationNotFound, apperrors.CodeObjectNotFound:
		code = codes.NotFound
	case apperrors.CodeCatalogBusy:
		code = codes.Unavailable
	default:
		switch apperrors.GetCategory(err) {
		case apperrors.ErrCategoryQuery, apperrors.ErrCategoryValidation:
			code = codes.InvalidArgument
		}
	}
	return status.Error(code, err.Error())
}

// RequestIDInterceptor attaches the x-request-id metadata value, or a new
// id, and a request-scoped logger to the call context.
func RequestIDInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		requestID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get("x-request-id"); len(ids) > 0 {
				requestID = ids[0]
			}
		}
		if requestID == "" {
			requestID = uuid.New().String()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs("x-request-id", requestID))
		return handler(logging.WithRequestID(ctx, logger, requestID), req)
	}
}

// LoggingInterceptor logs every call at debug level.
func LoggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	zerolog.Ctx(ctx).Debug().
		Str("method", info.FullMethod).
		Str("code", status.Code(err).String()).
		Int64("latency_ns", int64(time.Since(start))).
		Msg("rpc handled")
	return resp, err
}
