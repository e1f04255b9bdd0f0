package validate

import (
	"github.com/dnsprover/dnsprover/internal/rootanchor"
	"github.com/dnsprover/dnsprover/internal/wire"
)

// validityWindow accumulates the intersection of every RRSIG validity
// period consulted while building a result, plus the minimum TTL across
// every RRset returned and every CNAME/DNAME RRset followed to reach it.
type validityWindow struct {
	validFrom uint32
	expires   uint32
	minTTL    uint32
	touched   bool
}

func newValidityWindow() *validityWindow {
	return &validityWindow{minTTL: ^uint32(0)}
}

func (w *validityWindow) note(sig wire.RRSIG) {
	if !w.touched {
		w.validFrom = sig.Inception
		w.expires = sig.Expiration
		w.touched = true
		return
	}
	if rootanchor.SerialGreaterThan(sig.Inception, w.validFrom) {
		w.validFrom = sig.Inception
	}
	if rootanchor.SerialGreaterThan(w.expires, sig.Expiration) {
		w.expires = sig.Expiration
	}
}

func (w *validityWindow) noteTTL(ttl uint32) {
	if ttl < w.minTTL {
		w.minTTL = ttl
	}
}

func (w *validityWindow) noteRecords(records []wire.Record) {
	for _, rec := range records {
		w.noteTTL(rec.TTL)
	}
}

