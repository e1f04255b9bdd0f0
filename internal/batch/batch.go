// Package batch runs many independent proof builds or verifications
// concurrently, bounded by a worker pool: two builders may run on
// different threads at once, one thread per builder at a time. This
// package is that "one thread per builder" driver, adapted from
// internal/worker's general-purpose bounded pool.
package batch

import (
	"context"

	"github.com/dnsprover/dnsprover/internal/wire"
	"github.com/dnsprover/dnsprover/internal/worker"
	"github.com/dnsprover/dnsprover/validate"
)

// ProofBuilder is the subset of *transport.Client (or any caching/
// metrics-wrapped equivalent, such as cmd/dnsproverd's cachingClient)
// that BuildAll needs. Kept structural rather than importing
// internal/transport directly, so BuildAll can be handed either a bare
// client or one wrapped with a proof cache without this package needing
// to know about either concrete type.
type ProofBuilder interface {
	BuildProof(ctx context.Context, name wire.Name, qtype uint16) ([]byte, uint32, error)
}

// Runner drives concurrent proof builds and verifications through a
// bounded worker pool, so a caller with thousands of (name, type) pairs
// to prove or verify never spawns thousands of goroutines at once.
type Runner struct {
	pool *worker.Pool
}

// New constructs a Runner with the given concurrency. workers<=0 selects
// worker.NewPool's own default (runtime.NumCPU() * 4).
func New(workers int) *Runner {
	return &Runner{pool: worker.NewPool(worker.Config{Workers: workers})}
}

// Close stops accepting new work and waits for in-flight jobs to drain.
func (r *Runner) Close() error { return r.pool.Close() }

// BuildRequest names one proof to build.
type BuildRequest struct {
	Name  wire.Name
	QType uint16
}

// BuildOutcome is the result of one BuildRequest.
type BuildOutcome struct {
	Request BuildRequest
	Proof   []byte
	MinTTL  uint32
	Err     error
}

// BuildAll builds every requested proof concurrently against client,
// returning one outcome per request in the same order they were given.
func (r *Runner) BuildAll(ctx context.Context, client ProofBuilder, reqs []BuildRequest) []BuildOutcome {
	out := make([]BuildOutcome, len(reqs))
	done := make(chan int, len(reqs))

	for i, req := range reqs {
		i, req := i, req
		job := worker.JobFunc(func(ctx context.Context) error {
			proofBytes, minTTL, err := client.BuildProof(ctx, req.Name, req.QType)
			out[i] = BuildOutcome{Request: req, Proof: proofBytes, MinTTL: minTTL, Err: err}
			return err
		})
		go func() {
			// Submit blocks until a worker slot is free and the job has
			// run; running each Submit call in its own goroutine is what
			// makes BuildAll's requests actually run concurrently against
			// the pool's bounded worker count rather than serially.
			_ = r.pool.SubmitKind(ctx, job, worker.KindBuild)
			done <- i
		}()
	}
	for range reqs {
		<-done
	}
	return out
}

// VerifyRequest names one proof to verify.
type VerifyRequest struct {
	Proof []byte
	Name  wire.Name
	QType uint16
}

// VerifyOutcome is the result of one VerifyRequest.
type VerifyOutcome struct {
	Request VerifyRequest
	Result  validate.Result
	Err     error
}

// VerifyAll verifies every requested proof concurrently.
func (r *Runner) VerifyAll(ctx context.Context, reqs []VerifyRequest) []VerifyOutcome {
	out := make([]VerifyOutcome, len(reqs))
	done := make(chan int, len(reqs))

	for i, req := range reqs {
		i, req := i, req
		job := worker.JobFunc(func(ctx context.Context) error {
			result, err := validate.Verify(req.Proof, req.Name, req.QType)
			out[i] = VerifyOutcome{Request: req, Result: result, Err: err}
			return err
		})
		go func() {
			_ = r.pool.SubmitKind(ctx, job, worker.KindVerify)
			done <- i
		}()
	}
	for range reqs {
		<-done
	}
	return out
}

// Stats reports the underlying worker pool's counters.
func (r *Runner) Stats() worker.Stats { return r.pool.GetStats() }
