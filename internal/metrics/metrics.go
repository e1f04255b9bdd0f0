// Package metrics exposes Prometheus instrumentation for proof building
// and verification, registered and served the way
// cmd/dnsscience-grpc/main.go exposed its metrics endpoint via
// promhttp.Handler().
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// BuildsTotal counts finished proof.Builder runs by outcome.
	BuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dnsprover_builds_total",
			Help: "Completed proof builds, labeled by outcome (ok, error).",
		},
		[]string{"outcome"},
	)

	// BuildSteps records how many queries a finished build needed.
	BuildSteps = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dnsprover_build_steps",
			Help:    "Total queries issued per finished proof build.",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 20},
		},
	)

	// VerifyLatency records wall-clock time spent in validate.Verify.
	VerifyLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dnsprover_verify_duration_seconds",
			Help:    "Time spent validating a proof.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// VerifyTotal counts finished validate.Verify calls by outcome.
	VerifyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dnsprover_verifies_total",
			Help: "Completed proof verifications, labeled by outcome (ok, invalid).",
		},
		[]string{"outcome"},
	)

	// SignatureAlgorithm counts RRSIGs verified, labeled by algorithm
	// family, so operators can see the actual RSA-vs-ECDSA mix in the
	// wild without inspecting raw proof bytes.
	SignatureAlgorithm = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dnsprover_signature_algorithm_total",
			Help: "RRSIG verifications, labeled by algorithm family.",
		},
		[]string{"family"},
	)
)

func init() {
	prometheus.MustRegister(BuildsTotal, BuildSteps, VerifyLatency, VerifyTotal, SignatureAlgorithm)
}

// AlgorithmFamily maps an RFC 8624 algorithm number to the coarse family
// label SignatureAlgorithm uses.
func AlgorithmFamily(algorithm byte) string {
	switch algorithm {
	case 5, 7, 8, 10:
		return "rsa"
	case 13, 14:
		return "ecdsa"
	default:
		return "other"
	}
}
