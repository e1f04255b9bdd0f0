// Package services implements the gRPC-exposed ProofService: BuildProof
// drives proof.Builder against a configured resolver, VerifyProof checks
// an already-built proof. Request/response messages use the protobuf
// well-known wrapper types (wrapperspb/structpb) rather than a generated
// package, since no .proto source or protoc-gen-go output was available
// to adapt (see DESIGN.md); the service descriptor below is hand-written
// exactly the way protoc-gen-go-grpc would have generated it.
package services

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dnsprover/dnsprover/internal/batch"
	"github.com/dnsprover/dnsprover/internal/metrics"
	"github.com/dnsprover/dnsprover/internal/wire"
	"github.com/dnsprover/dnsprover/validate"
)

// proofBuilder is the subset of *transport.Client the service needs.
// cmd/dnsproverd wraps a *transport.Client with caching and event
// publication behind this interface rather than giving ProofService a
// concrete dependency on internal/cache or internal/eventbus directly.
type proofBuilder interface {
	BuildProof(ctx context.Context, name wire.Name, qtype uint16) ([]byte, uint32, error)
}

// proofVerifier is an optional capability of client: when it implements
// this (as cmd/dnsproverd's cachingClient does, to publish TopicVerify
// events), VerifyProof is routed through it instead of calling
// validate.Verify directly.
type proofVerifier interface {
	VerifyProof(ctx context.Context, proofBytes []byte, name wire.Name, qtype uint16) (validate.Result, error)
}

// ProofServiceServer is the interface the hand-written service
// descriptor below dispatches to.
type ProofServiceServer interface {
	// BuildProof request fields: {"name": string, "qtype": number}.
	BuildProof(ctx context.Context, req *structpb.Struct) (*wrapperspb.BytesValue, error)
	// VerifyProof request fields: {"proof": bytes-as-string, "name": string, "qtype": number}.
	VerifyProof(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	// BulkBuildProof request: a list of {"name": string, "qtype": number}
	// structs. Response: a list of {"name", "qtype", "proof" (base64),
	// "min_ttl", "error"} structs in the same order as the request.
	BulkBuildProof(ctx context.Context, req *structpb.ListValue) (*structpb.ListValue, error)
}

// ProofService implements ProofServiceServer against a real resolver.
type ProofService struct {
	client proofBuilder
	runner *batch.Runner
}

// NewProofService constructs a ProofService bound to client. runner may be
// nil, in which case BulkBuildProof serves requests one at a time instead
// of through the bounded worker pool.
func NewProofService(client proofBuilder, runner *batch.Runner) *ProofService {
	return &ProofService{client: client, runner: runner}
}

func fieldString(req *structpb.Struct, key string) (string, error) {
	v, ok := req.Fields[key]
	if !ok {
		return "", status.Errorf(codes.InvalidArgument, "missing field %q", key)
	}
	s := v.GetStringValue()
	if s == "" {
		return "", status.Errorf(codes.InvalidArgument, "field %q must be a non-empty string", key)
	}
	return s, nil
}

func fieldQType(req *structpb.Struct, key string) (uint16, error) {
	v, ok := req.Fields[key]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "missing field %q", key)
	}
	return uint16(v.GetNumberValue()), nil
}

// BuildProof builds a DNSSEC proof for the requested (name, type).
func (s *ProofService) BuildProof(ctx context.Context, req *structpb.Struct) (*wrapperspb.BytesValue, error) {
	nameStr, err := fieldString(req, "name")
	if err != nil {
		return nil, err
	}
	qtype, err := fieldQType(req, "qtype")
	if err != nil {
		return nil, err
	}
	name, err := wire.ParseName(nameStr)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid name: %v", err)
	}

	proofBytes, _, err := s.client.BuildProof(ctx, name, qtype)
	if err != nil {
		metrics.BuildsTotal.WithLabelValues("error").Inc()
		return nil, status.Errorf(codes.Unavailable, "build proof: %v", err)
	}
	metrics.BuildsTotal.WithLabelValues("ok").Inc()
	return wrapperspb.Bytes(proofBytes), nil
}

// BulkBuildProof builds proofs for every (name, type) pair in req
// concurrently through the runner's bounded worker pool, so a caller with
// hundreds of names to prove issues one RPC instead of hundreds.
func (s *ProofService) BulkBuildProof(ctx context.Context, req *structpb.ListValue) (*structpb.ListValue, error) {
	reqs := make([]batch.BuildRequest, 0, len(req.Values))
	for i, v := range req.Values {
		item := v.GetStructValue()
		if item == nil {
			return nil, status.Errorf(codes.InvalidArgument, "element %d: expected an object", i)
		}
		nameStr, err := fieldString(item, "name")
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		qtype, err := fieldQType(item, "qtype")
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		name, err := wire.ParseName(nameStr)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "element %d: invalid name: %v", i, err)
		}
		reqs = append(reqs, batch.BuildRequest{Name: name, QType: qtype})
	}

	var outcomes []batch.BuildOutcome
	if s.runner != nil {
		outcomes = s.runner.BuildAll(ctx, s.client, reqs)
	} else {
		outcomes = make([]batch.BuildOutcome, len(reqs))
		for i, r := range reqs {
			proofBytes, minTTL, err := s.client.BuildProof(ctx, r.Name, r.QType)
			outcomes[i] = batch.BuildOutcome{Request: r, Proof: proofBytes, MinTTL: minTTL, Err: err}
		}
	}

	values := make([]*structpb.Value, len(outcomes))
	for i, o := range outcomes {
		fields := map[string]interface{}{
			"name":  string(o.Request.Name),
			"qtype": float64(o.Request.QType),
		}
		if o.Err != nil {
			metrics.BuildsTotal.WithLabelValues("error").Inc()
			fields["error"] = o.Err.Error()
		} else {
			metrics.BuildsTotal.WithLabelValues("ok").Inc()
			fields["proof"] = base64.StdEncoding.EncodeToString(o.Proof)
			fields["min_ttl"] = float64(o.MinTTL)
		}
		st, err := structpb.NewStruct(fields)
		if err != nil {
			return nil, fmt.Errorf("marshal bulk result %d: %w", i, err)
		}
		values[i] = structpb.NewStructValue(st)
	}
	return &structpb.ListValue{Values: values}, nil
}

// VerifyProof validates a proof and returns its verified RRset summary
// as a generic struct (record count, validity window).
func (s *ProofService) VerifyProof(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	proofField, ok := req.Fields["proof"]
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "missing field %q", "proof")
	}
	nameStr, err := fieldString(req, "name")
	if err != nil {
		return nil, err
	}
	qtype, err := fieldQType(req, "qtype")
	if err != nil {
		return nil, err
	}
	name, err := wire.ParseName(nameStr)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid name: %v", err)
	}

	proofBytes := []byte(proofField.GetStringValue())
	var result validate.Result
	if v, ok := s.client.(proofVerifier); ok {
		result, err = v.VerifyProof(ctx, proofBytes, name, qtype)
	} else {
		result, err = validate.Verify(proofBytes, name, qtype)
	}
	if err != nil {
		metrics.VerifyTotal.WithLabelValues("invalid").Inc()
		return nil, status.Errorf(codes.InvalidArgument, "invalid proof")
	}
	metrics.VerifyTotal.WithLabelValues("ok").Inc()
	for _, rec := range result.Records {
		if sig, ok := rec.RR.(wire.RRSIG); ok {
			metrics.SignatureAlgorithm.WithLabelValues(metrics.AlgorithmFamily(sig.Algorithm)).Inc()
		}
	}

	out, err := structpb.NewStruct(map[string]interface{}{
		"valid_from":    float64(result.ValidFrom),
		"expires":       float64(result.Expires),
		"max_cache_ttl": float64(result.MaxCacheTTL),
		"record_count":  float64(len(result.Records)),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal verify result: %w", err)
	}
	return out, nil
}

func _ProofService_BuildProof_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProofServiceServer).BuildProof(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/dnsprover.ProofService/BuildProof"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ProofServiceServer).BuildProof(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _ProofService_VerifyProof_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProofServiceServer).VerifyProof(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/dnsprover.ProofService/VerifyProof"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ProofServiceServer).VerifyProof(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _ProofService_BulkBuildProof_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.ListValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProofServiceServer).BulkBuildProof(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/dnsprover.ProofService/BulkBuildProof"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ProofServiceServer).BulkBuildProof(ctx, req.(*structpb.ListValue))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the hand-written equivalent of protoc-gen-go-grpc's
// generated _ProofService_serviceDesc.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "dnsprover.ProofService",
	HandlerType: (*ProofServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "BuildProof", Handler: _ProofService_BuildProof_Handler},
		{MethodName: "VerifyProof", Handler: _ProofService_VerifyProof_Handler},
		{MethodName: "BulkBuildProof", Handler: _ProofService_BulkBuildProof_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dnsprover/proof_service.proto",
}

// RegisterProofServiceServer registers srv on s using ServiceDesc.
func RegisterProofServiceServer(s grpc.ServiceRegistrar, srv ProofServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
