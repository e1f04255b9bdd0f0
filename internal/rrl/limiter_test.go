package rrl

import (
	"net"
	"testing"
)

func TestNewLimiter(t *testing.T) {
	cfg := DefaultConfig()
	limiter := NewLimiter(cfg)
	defer limiter.Close()

	if limiter == nil {
		t.Fatal("NewLimiter() returned nil")
	}
}

func TestCheck_Allow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestsPerSecond = 10
	limiter := NewLimiter(cfg)
	defer limiter.Close()

	clientIP := net.ParseIP("192.0.2.1")

	action := limiter.Check(clientIP, "/dnsprover.ProofService/BuildProof")
	if action != ActionAllow {
		t.Errorf("first call should be allowed, got %v", action)
	}
}

func TestCheck_RateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestsPerSecond = 2
	cfg.Window = 1
	limiter := NewLimiter(cfg)
	defer limiter.Close()

	clientIP := net.ParseIP("192.0.2.1")
	method := "/dnsprover.ProofService/BuildProof"

	// Exhaust the bucket (RequestsPerSecond * Window tokens available)
	allowed := 0
	for i := 0; i < 10; i++ {
		if limiter.Check(clientIP, method) == ActionAllow {
			allowed++
		}
	}

	if allowed != 2 {
		t.Errorf("allowed = %d, want 2", allowed)
	}

	// Next call should be rate limited (slip or drop, never allow)
	action := limiter.Check(clientIP, method)
	if action == ActionAllow {
		t.Error("expected rate limited action after exhausting bucket")
	}
}

func TestCheck_Refill(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestsPerSecond = 1
	cfg.Window = 1
	limiter := NewLimiter(cfg)
	defer limiter.Close()

	clientIP := net.ParseIP("192.0.2.1")
	method := "/dnsprover.ProofService/BuildProof"

	limiter.Check(clientIP, method)
	action := limiter.Check(clientIP, method)
	if action == ActionAllow {
		t.Error("second immediate call should be rate limited")
	}
}

func TestCheck_Exempt(t *testing.T) {
	_, exemptNet, _ := net.ParseCIDR("192.0.2.0/24")

	cfg := DefaultConfig()
	cfg.RequestsPerSecond = 1
	cfg.ExemptPrefixes = []*net.IPNet{exemptNet}
	limiter := NewLimiter(cfg)
	defer limiter.Close()

	clientIP := net.ParseIP("192.0.2.100")
	method := "/dnsprover.ProofService/BuildProof"

	// Exempt IPs should never be rate limited
	for i := 0; i < 100; i++ {
		action := limiter.Check(clientIP, method)
		if action != ActionAllow {
			t.Errorf("exempt client should always be allowed, got %v", action)
		}
	}
}

func TestCheck_MethodLimitsOverrideDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestsPerSecond = 100
	cfg.Window = 1
	cfg.MethodLimits = map[string]int{
		"/dnsprover.ProofService/BulkBuildProof": 2,
	}
	limiter := NewLimiter(cfg)
	defer limiter.Close()

	clientIP := net.ParseIP("192.0.2.1")

	// The overridden method should use its own, tighter bucket...
	allowed := 0
	for i := 0; i < 10; i++ {
		if limiter.Check(clientIP, "/dnsprover.ProofService/BulkBuildProof") == ActionAllow {
			allowed++
		}
	}
	if allowed != 2 {
		t.Errorf("bulk build allowed = %d, want 2", allowed)
	}

	// ...while an unlisted method on the same client keeps the default rate
	// and its own independent bucket.
	action := limiter.Check(clientIP, "/dnsprover.ProofService/LookupRecord")
	if action != ActionAllow {
		t.Error("unrelated method should use its own bucket, not BulkBuildProof's")
	}
}

func TestCheck_Slip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestsPerSecond = 1
	cfg.Window = 1
	cfg.Slip = 2 // 50% slip rate
	limiter := NewLimiter(cfg)
	defer limiter.Close()

	clientIP := net.ParseIP("192.0.2.1")
	method := "/dnsprover.ProofService/BuildProof"

	// Exhaust tokens
	limiter.Check(clientIP, method)

	// Generate many rate-limited queries
	var slipped, dropped int
	for i := 0; i < 100; i++ {
		action := limiter.Check(clientIP, method)
		if action == ActionSlip {
			slipped++
		} else if action == ActionDrop {
			dropped++
		}
	}

	// Should have both slips and drops
	if slipped == 0 {
		t.Error("should have some slipped responses")
	}
	if dropped == 0 {
		t.Error("should have some dropped responses")
	}

	// Roughly 50/50 split (allow some variance)
	ratio := float64(slipped) / float64(slipped+dropped)
	if ratio < 0.3 || ratio > 0.7 {
		t.Errorf("slip ratio = %.2f, expected ~0.5", ratio)
	}
}

func TestCheck_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	limiter := NewLimiter(cfg)
	defer limiter.Close()

	clientIP := net.ParseIP("192.0.2.1")
	method := "/dnsprover.ProofService/BuildProof"

	// Should always allow when disabled
	for i := 0; i < 1000; i++ {
		action := limiter.Check(clientIP, method)
		if action != ActionAllow {
			t.Error("disabled limiter should always allow")
		}
	}
}

func TestGetStats(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestsPerSecond = 2
	cfg.Window = 1
	limiter := NewLimiter(cfg)
	defer limiter.Close()

	clientIP := net.ParseIP("192.0.2.1")
	method := "/dnsprover.ProofService/BuildProof"

	// Generate some traffic
	for i := 0; i < 10; i++ {
		limiter.Check(clientIP, method)
	}

	stats := limiter.GetStats()
	if stats.Total != 10 {
		t.Errorf("total = %d, want 10", stats.Total)
	}
	if stats.Allowed+stats.Dropped+stats.Slipped != stats.Total {
		t.Error("stats don't add up")
	}
	if stats.DropRate < 0 || stats.DropRate > 1 {
		t.Errorf("dropRate = %.2f, should be between 0 and 1", stats.DropRate)
	}
}

func BenchmarkCheck(b *testing.B) {
	cfg := DefaultConfig()
	limiter := NewLimiter(cfg)
	defer limiter.Close()

	clientIP := net.ParseIP("192.0.2.1")
	method := "/dnsprover.ProofService/BuildProof"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		limiter.Check(clientIP, method)
	}
}

func BenchmarkCheckConcurrent(b *testing.B) {
	cfg := DefaultConfig()
	limiter := NewLimiter(cfg)
	defer limiter.Close()

	clientIP := net.ParseIP("192.0.2.1")
	method := "/dnsprover.ProofService/BuildProof"

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			limiter.Check(clientIP, method)
		}
	})
}
