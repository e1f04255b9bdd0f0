// Command dnsproverd is the long-running proof service daemon: a gRPC
// front end over ProofService, backed by a cached, rate-limited,
// metrics-instrumented proof.Builder driver. Its bring-up sequence
// (config load, metrics HTTP server, gRPC server) is adapted from
// cmd/dnsscience-grpc/main.go.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/dnsprover/dnsprover/api/grpc/middleware"
	"github.com/dnsprover/dnsprover/api/grpc/server"
	"github.com/dnsprover/dnsprover/api/grpc/services"
	"github.com/dnsprover/dnsprover/internal/batch"
	"github.com/dnsprover/dnsprover/internal/cache"
	"github.com/dnsprover/dnsprover/internal/config"
	"github.com/dnsprover/dnsprover/internal/eventbus"
	"github.com/dnsprover/dnsprover/internal/random"
	"github.com/dnsprover/dnsprover/internal/rrl"
	"github.com/dnsprover/dnsprover/internal/transport"
	"github.com/dnsprover/dnsprover/internal/wire"
	"github.com/dnsprover/dnsprover/validate"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config file")
	listen := flag.String("listen", "", "gRPC listen address (overrides config)")
	metricsListen := flag.String("metrics-listen", "", "Prometheus metrics listen address (overrides config)")
	resolver := flag.String("resolver", "", "Upstream resolver host:port (overrides config)")
	cert := flag.String("tls-cert", "", "TLS certificate file (overrides config)")
	key := flag.String("tls-key", "", "TLS private key file (overrides config)")
	flag.Parse()

	eff := config.Defaults()
	if *cfgPath != "" {
		f, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		eff = config.Merge(eff, *f)
	}
	eff = config.Merge(eff, config.File{
		Listen: *listen, MetricsListen: *metricsListen, Resolver: *resolver,
		TLSCert: *cert, TLSKey: *key,
	})

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Printf("metrics listening on %s", eff.MetricsListen)
		if err := http.ListenAndServe(eff.MetricsListen, mux); err != nil {
			log.Printf("metrics server error: %v", err)
		}
	}()

	ports, err := random.NewPortPool(random.PortPoolConfig{MaxInUse: eff.Workers * 4})
	if err != nil {
		log.Fatalf("port pool: %v", err)
	}

	client, err := transport.New(transport.Config{
		Resolver:      eff.Resolver,
		EnableCookies: eff.EnableCookies,
		Ports:         ports,
	})
	if err != nil {
		log.Fatalf("transport: %v", err)
	}

	proofCache := cache.NewShardedCache(cache.Config{ServeStale: true})
	defer proofCache.Close()
	bus := eventbus.New(64)
	runner := batch.New(eff.Workers)
	defer runner.Close()

	limiter := rrl.NewLimiter(rrl.DefaultConfig())
	defer limiter.Close()
	global := rate.NewLimiter(rate.Limit(eff.Workers*10), eff.Workers*20)

	svc := services.NewProofService(&cachingClient{client: client, cache: proofCache, bus: bus}, runner)

	cfg := server.Config{ListenAddr: eff.Listen, TLSCertFile: eff.TLSCert, TLSKeyFile: eff.TLSKey, APIKeys: eff.APIKeys}
	deps := server.Deps{
		Unary: []grpc.UnaryServerInterceptor{
			middleware.UnaryLoggingMetrics(),
			middleware.UnaryGlobalRateLimit(global),
			middleware.UnaryRateLimit(limiter),
		},
		Stream: []grpc.StreamServerInterceptor{middleware.StreamLoggingMetrics()},
		Register: func(s *grpc.Server) {
			h := health.NewServer()
			healthpb.RegisterHealthServer(s, h)
			reflection.Register(s)
			services.RegisterProofServiceServer(s, svc)
		},
	}

	gs, ln, err := server.New(cfg, deps)
	if err != nil {
		log.Fatalf("server: %v", err)
	}
	log.Printf("dnsproverd listening on %s (resolver %s)", ln.Addr(), eff.Resolver)
	if err := gs.Serve(ln); err != nil {
		log.Fatalf("serve: %v", err)
	}
}

// cachingClient wraps a transport.Client with a proof cache and event
// publication, so repeated BuildProof calls for the same (name, type)
// within the cached TTL window skip the network round-trip entirely.
type cachingClient struct {
	client *transport.Client
	cache  *cache.ShardedCache
	bus    *eventbus.Bus
}

func (c *cachingClient) BuildProof(ctx context.Context, name wire.Name, qtype uint16) ([]byte, uint32, error) {
	hash := wire.HashQuery(name, qtype, wire.ClassIN)
	if entry, ok := c.cache.Get(hash); ok && !entry.IsExpired() {
		return entry.Proof, entry.MinTTL, nil
	}

	c.bus.Publish(ctx, eventbus.TopicBuild, eventbus.BuildEvent{Name: string(name), QType: qtype, Stage: eventbus.StageStart})
	proofBytes, minTTL, err := c.client.BuildProof(ctx, name, qtype)
	if err != nil {
		c.bus.Publish(ctx, eventbus.TopicBuild, eventbus.BuildEvent{Name: string(name), QType: qtype, Stage: eventbus.StageError, Err: err.Error()})
		return nil, 0, err
	}
	c.bus.Publish(ctx, eventbus.TopicBuild, eventbus.BuildEvent{Name: string(name), QType: qtype, Stage: eventbus.StageFinish})

	entry := &cache.Entry{
		Proof:     proofBytes,
		ExpiresAt: time.Now().Add(time.Duration(minTTL) * time.Second),
		MinTTL:    minTTL,
		QName:     string(name),
		QType:     qtype,
	}
	c.cache.Set(hash, entry)
	return proofBytes, minTTL, nil
}

// VerifyProof implements services.proofVerifier, publishing TopicVerify
// events around the underlying validate.Verify call so a subscriber (or
// Bus.Recent) can observe verification traffic the same way it observes
// builds.
func (c *cachingClient) VerifyProof(ctx context.Context, proofBytes []byte, name wire.Name, qtype uint16) (validate.Result, error) {
	c.bus.Publish(ctx, eventbus.TopicVerify, eventbus.VerifyEvent{Name: string(name), QType: qtype, Stage: eventbus.StageStart})
	result, err := c.client.VerifyProof(proofBytes, name, qtype)
	if err != nil {
		c.bus.Publish(ctx, eventbus.TopicVerify, eventbus.VerifyEvent{Name: string(name), QType: qtype, Stage: eventbus.StageError, Err: err.Error()})
		return result, err
	}
	c.bus.Publish(ctx, eventbus.TopicVerify, eventbus.VerifyEvent{Name: string(name), QType: qtype, Stage: eventbus.StageFinish})
	return result, nil
}
