package random

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Package random provides cryptographically secure source-port
// randomization for internal/transport's resolver dials.
//
// proof.Builder always queries with a fixed transaction ID of zero (see
// its own documentation on that Open Question), so the only entropy this
// client contributes against an off-path spoofer guessing its way into a
// proof build is the ephemeral source port each dial binds to. SourcePort
// supplies that per-dial; PortPool additionally bounds how many distinct
// ports are in flight at once when internal/batch drives many concurrent
// BuildProof calls, so a burst of builds doesn't reuse a port before its
// prior exchange has finished.

var (
	ErrPortPoolExhausted = errors.New("no available ports in pool")
	ErrInvalidPortRange  = errors.New("invalid port range")
)

// SourcePort generates a cryptographically random source port.
// Never returns a privileged port (< 1024).
func SourcePort() uint16 {
	// Use high ephemeral range: 32768-60999
	// Excludes 61000-65535 (might be used by other services)
	const (
		minPort   = 32768
		portRange = 61000 - 32768 // 28232 possible ports
	)

	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}

	// Use modulo on 32-bit random to avoid bias
	randomOffset := binary.BigEndian.Uint32(buf[:]) % portRange
	return uint16(minPort + randomOffset)
}

// PortPool hands out randomized source ports to concurrent resolver
// dials, so internal/batch running many BuildProof calls at once never
// puts two in-flight exchanges on the same port.
type PortPool struct {
	mu sync.Mutex

	// Port range
	minPort int
	maxPort int

	// Available ports (map for O(1) lookup)
	available map[uint16]struct{}

	// In-use ports with expiration
	inUse map[uint16]time.Time

	// Configuration
	maxInUse     int
	portLifetime time.Duration

	// Statistics
	allocated   uint64
	recycled    uint64
	exhaustions uint64
}

// PortPoolConfig holds configuration for port pool
type PortPoolConfig struct {
	// Port range (default: 32768-61000)
	MinPort int
	MaxPort int

	// Maximum simultaneous in-use ports (default: 10000)
	MaxInUse int

	// Port lifetime before recycling (default: 2 minutes), so a stuck
	// exchange's port is reclaimed instead of starving the pool
	PortLifetime time.Duration
}

// NewPortPool creates a new randomized port pool
func NewPortPool(cfg PortPoolConfig) (*PortPool, error) {
	if cfg.MinPort == 0 {
		cfg.MinPort = 32768
	}
	if cfg.MaxPort == 0 {
		cfg.MaxPort = 61000
	}
	if cfg.MaxInUse == 0 {
		cfg.MaxInUse = 10000
	}
	if cfg.PortLifetime == 0 {
		cfg.PortLifetime = 2 * time.Minute
	}

	if cfg.MinPort >= cfg.MaxPort {
		return nil, ErrInvalidPortRange
	}
	if cfg.MinPort < 1024 {
		return nil, errors.New("min port must be >= 1024 (non-privileged)")
	}

	portCount := cfg.MaxPort - cfg.MinPort

	p := &PortPool{
		minPort:      cfg.MinPort,
		maxPort:      cfg.MaxPort,
		available:    make(map[uint16]struct{}, portCount),
		inUse:        make(map[uint16]time.Time, cfg.MaxInUse),
		maxInUse:     cfg.MaxInUse,
		portLifetime: cfg.PortLifetime,
	}

	// Initialize available ports
	for port := cfg.MinPort; port < cfg.MaxPort; port++ {
		p.available[uint16(port)] = struct{}{}
	}

	// Start background cleanup
	go p.cleanup()

	return p, nil
}

// Allocate allocates a random available port
func (p *PortPool) Allocate() (uint16, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Try to allocate from available pool
	if len(p.available) > 0 && len(p.inUse) < p.maxInUse {
		// Pick random port from available
		// Convert map to slice (inefficient but ensures randomness)
		ports := make([]uint16, 0, len(p.available))
		for port := range p.available {
			ports = append(ports, port)
		}

		// Random selection
		var buf [4]byte
		rand.Read(buf[:])
		idx := int(binary.BigEndian.Uint32(buf[:])) % len(ports)
		selectedPort := ports[idx]

		// Move to in-use
		delete(p.available, selectedPort)
		p.inUse[selectedPort] = time.Now()
		p.allocated++

		return selectedPort, nil
	}

	// No available ports - try to recycle expired ones
	now := time.Now()
	for port, allocated := range p.inUse {
		if now.Sub(allocated) > p.portLifetime {
			// Port expired, recycle it
			p.recycled++
			p.inUse[port] = now
			return port, nil
		}
	}

	// Pool exhausted
	p.exhaustions++
	return 0, ErrPortPoolExhausted
}

// Release returns a port to the available pool
func (p *PortPool) Release(port uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Remove from in-use
	delete(p.inUse, port)

	// Add back to available
	if int(port) >= p.minPort && int(port) < p.maxPort {
		p.available[port] = struct{}{}
	}
}

// cleanup periodically recycles expired ports
func (p *PortPool) cleanup() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		p.mu.Lock()

		now := time.Now()
		var recycled []uint16

		for port, allocated := range p.inUse {
			if now.Sub(allocated) > p.portLifetime {
				recycled = append(recycled, port)
			}
		}

		// Recycle expired ports
		for _, port := range recycled {
			delete(p.inUse, port)
			p.available[port] = struct{}{}
			p.recycled++
		}

		p.mu.Unlock()
	}
}

// PoolStats reports port pool statistics
type PoolStats struct {
	Available   int
	InUse       int
	Allocated   uint64
	Recycled    uint64
	Exhaustions uint64
}

// GetStats returns current pool statistics
func (p *PortPool) GetStats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{
		Available:   len(p.available),
		InUse:       len(p.inUse),
		Allocated:   p.allocated,
		Recycled:    p.recycled,
		Exhaustions: p.exhaustions,
	}
}
