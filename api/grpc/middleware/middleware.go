package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"golang.org/x/time/rate"

	"github.com/dnsprover/dnsprover/internal/rrl"
)

var (
	RPCRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dnsprover_grpc_requests_total", Help: "Total gRPC requests"},
		[]string{"method", "code"},
	)
	RPCDurations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "dnsprover_grpc_duration_seconds", Help: "RPC duration", Buckets: prometheus.DefBuckets},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(RPCRequests, RPCDurations)
}

func genID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// UnaryLoggingMetrics adds request-id, logs start/finish via metadata, and records metrics.
func UnaryLoggingMetrics() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		md, _ := metadata.FromIncomingContext(ctx)
		rids := md.Get("x-request-id")
		rid := ""
		if len(rids) > 0 {
			rid = rids[0]
		} else {
			rid = genID()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs("x-request-id", rid))
		resp, err := handler(ctx, req)
		st := status.Convert(err)
		RPCRequests.WithLabelValues(info.FullMethod, st.Code().String()).Inc()
		RPCDurations.WithLabelValues(info.FullMethod).Observe(time.Since(start).Seconds())
		return resp, err
	}
}

// StreamLoggingMetrics records metrics around streaming RPCs.
func StreamLoggingMetrics() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		st := status.Convert(err)
		RPCRequests.WithLabelValues(info.FullMethod, st.Code().String()).Inc()
		RPCDurations.WithLabelValues(info.FullMethod).Observe(time.Since(start).Seconds())
		return err
	}
}

// peerIP extracts the caller's IP from ctx, falling back to an unspecified
// address (which internal/rrl buckets together) when no peer is attached,
// as happens in in-process tests.
func peerIP(ctx context.Context) net.IP {
	p, ok := peer.FromContext(ctx)
	if !ok {
		return net.IPv4zero
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return net.IPv4zero
	}
	return net.ParseIP(host)
}

// UnaryRateLimit rejects a call with ResourceExhausted before the RPC
// handler runs when limiter.Check, keyed on the caller's IP and the RPC's
// full method name, returns ActionDrop. ActionSlip and ActionAllow both
// let the call proceed.
func UnaryRateLimit(limiter *rrl.Limiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ip := peerIP(ctx)
		if limiter.Check(ip, info.FullMethod) == rrl.ActionDrop {
			RPCRequests.WithLabelValues(info.FullMethod, codes.ResourceExhausted.String()).Inc()
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

// UnaryGlobalRateLimit caps the server's aggregate RPC rate regardless of
// caller, protecting the upstream resolver internal/transport dials from a
// burst of BuildProof calls. limiter is shared across all calls, unlike
// UnaryRateLimit's per-client rrl.Limiter.
func UnaryGlobalRateLimit(limiter *rate.Limiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !limiter.Allow() {
			RPCRequests.WithLabelValues(info.FullMethod, codes.ResourceExhausted.String()).Inc()
			return nil, status.Error(codes.ResourceExhausted, "server busy")
		}
		return handler(ctx, req)
	}
}
