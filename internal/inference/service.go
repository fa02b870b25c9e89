// Package inference carries text-to-state inference over gRPC. Messages are
// google.protobuf.Struct values so the service needs no generated stubs:
//
//	request:  {"text": "..."}
//	response: {"hints": [{"dimension": "mood", "value": -0.5, "confidence": 0.4}, ...]}
package inference

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/signals"
)

// #region service-desc
const (
	ServiceName = "aurum.inference.v1.Inference"
	inferMethod = "/" + ServiceName + "/Infer"
)

// InferenceServer is the server side of the Infer RPC.
type InferenceServer interface {
	Infer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func inferHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InferenceServer).Infer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: inferMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(InferenceServer).Infer(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc describes the inference service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InferenceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Infer", Handler: inferHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "aurum/inference.proto",
}
// #endregion service-desc

// #region server
// Server serves a signals.Inferrer over gRPC.
type Server struct {
	inferrer signals.Inferrer
}

// NewServer wraps inf.
func NewServer(inf signals.Inferrer) *Server {
	return &Server{inferrer: inf}
}

// Register attaches the service to s.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&ServiceDesc, s)
}

// Infer implements InferenceServer.
func (s *Server) Infer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	text := req.GetFields()["text"].GetStringValue()
	if text == "" {
		return nil, status.Error(codes.InvalidArgument, "text is required")
	}
	hints, err := s.inferrer.Infer(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		return nil, status.Errorf(codes.Internal, "infer: %v", err)
	}
	return encodeHints(hints)
}
// #endregion server

// #region encoding
func encodeHints(hints []signals.Hint) (*structpb.Struct, error) {
	list := make([]interface{}, len(hints))
	for i, h := range hints {
		list[i] = map[string]interface{}{
			"dimension":  string(h.Dimension),
			"value":      h.Value,
			"confidence": h.Confidence,
		}
	}
	out, err := structpb.NewStruct(map[string]interface{}{"hints": list})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode hints: %v", err)
	}
	return out, nil
}

// decodeHints reads hints from a response. Malformed entries are dropped;
// range checks happen in signals.Producer.
func decodeHints(resp *structpb.Struct) ([]signals.Hint, error) {
	field, ok := resp.GetFields()["hints"]
	if !ok {
		return nil, fmt.Errorf("response has no hints field")
	}
	values := field.GetListValue().GetValues()
	hints := make([]signals.Hint, 0, len(values))
	for _, v := range values {
		fields := v.GetStructValue().GetFields()
		dim := signals.Dimension(fields["dimension"].GetStringValue())
		if !dim.Valid() {
			continue
		}
		val, vok := fields["value"].GetKind().(*structpb.Value_NumberValue)
		conf, cok := fields["confidence"].GetKind().(*structpb.Value_NumberValue)
		if !vok || !cok {
			continue
		}
		hints = append(hints, signals.Hint{Dimension: dim, Value: val.NumberValue, Confidence: conf.NumberValue})
	}
	return hints, nil
}
// #endregion encoding
