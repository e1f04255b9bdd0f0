// Command bench_bigint measures internal/bigint.ExpMod throughput at
// RSA key widths DNSSEC actually signs with, the modular-exponentiation
// equivalent of tools/bench_throughput.go's query-throughput benchmark.
package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dnsprover/dnsprover/internal/bigint"
)

var (
	bits     = flag.Int("bits", 2048, "RSA modulus width in bits (1024, 2048, 4096)")
	workers  = flag.Int("workers", 4, "Concurrent exponentiation workers")
	duration = flag.Duration("duration", 5*time.Second, "Benchmark duration")
)

func randomOddLimbs(limbs int) []bigint.Word {
	buf := make([]byte, limbs*8)
	if _, err := rand.Read(buf); err != nil {
		log.Fatalf("rand: %v", err)
	}
	buf[len(buf)-1] |= 1 // force odd, as every RSA modulus is
	return bigint.FromBytes(buf, limbs)
}

func main() {
	flag.Parse()
	limbs := *bits / 64
	if limbs == 0 {
		limbs = 1
	}

	log.Printf("benchmarking ExpMod at %d bits (%d limbs) with %d workers for %v", *bits, limbs, *workers, *duration)

	modulus := randomOddLimbs(limbs)
	exponent := bigint.FromBytes([]byte{0x01, 0x00, 0x01}, 1) // 65537, the common RSA public exponent

	var count uint64
	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			base := randomOddLimbs(limbs)
			for {
				select {
				case <-done:
					return
				default:
					bigint.ExpMod(base, exponent, modulus)
					atomic.AddUint64(&count, 1)
				}
			}
		}()
	}

	time.Sleep(*duration)
	close(done)
	wg.Wait()

	ops := float64(count) / (*duration).Seconds()
	fmt.Printf("\n--- Results ---\n")
	fmt.Printf("Modulus width:  %d bits\n", *bits)
	fmt.Printf("Total ExpMod:   %d\n", count)
	fmt.Printf("Ops/sec:        %.2f\n", ops)
}
