// Package validate implements the proof verifier: given the flat RR
// stream a Builder assembles (package proof) plus the name and type
// originally queried, it validates the DNSSEC signature chain down to
// the hard-coded root trust anchor and returns the authenticated
// record set, following CNAME/DNAME redirection and expanding
// NSEC/NSEC3 denial-of-existence proofs where no positive answer
// exists.
package validate

import (
	"errors"
	"time"

	"github.com/dnsprover/dnsprover/internal/wire"
)

// ErrInvalid is the single opaque failure Verify reports; no further
// detail is surfaced across this boundary, since distinguishing failure
// reasons to a caller widens the attack surface for an adversary probing
// which part of a forged proof got furthest.
var ErrInvalid = errors.New("validate: proof failed to verify")

// maxRedirects bounds the CNAME/DNAME chase, matching the proof
// builder's own max_steps: a proof containing more distinct owner names
// than that could never have been produced by a Builder in the first
// place.
const maxRedirects = 20

// Result is the authenticated answer to the query a proof was built
// for.
type Result struct {
	// ValidFrom and Expires bound the window every RRSIG consulted
	// agreed the data was valid within.
	ValidFrom, Expires uint32
	// MaxCacheTTL is the minimum TTL across every record returned and
	// every CNAME/DNAME record followed to reach them.
	MaxCacheTTL uint32
	// Records is the authenticated RRset (or denial proof) for the
	// queried name and type.
	Records []wire.Record
}

// Verify checks proofBytes authenticates (name, qtype) back to the root
// trust anchor, following CNAME/DNAME chains and wildcard expansion, and
// proving denial of existence via NSEC/NSEC3 where there is no positive
// answer. Any failure collapses to ErrInvalid.
func Verify(proofBytes []byte, name wire.Name, qtype uint16) (Result, error) {
	records, err := wire.ParseRRStream(proofBytes)
	if err != nil {
		return Result{}, ErrInvalid
	}
	idx := buildIndex(records)
	window := newValidityWindow()
	walker := newChainWalker(idx, nowSerial(), window)

	current := name
	currentType := qtype
	visited := make(map[wire.Name]bool)

	for step := 0; step < maxRedirects; step++ {
		if visited[current] {
			return Result{}, ErrInvalid
		}
		visited[current] = true

		if rrset := idx.rrset(current, currentType); len(rrset) > 0 {
			if !verifyPositiveRRset(idx, walker, current, currentType, rrset) {
				return Result{}, ErrInvalid
			}
			window.noteRecords(rrset)
			return finish(window, rrset), nil
		}

		if currentType != wire.TypeCNAME {
			if next, ok := followCNAME(idx, walker, current, window); ok {
				current = next
				continue
			}
			if next, ok := followDNAME(idx, walker, current, window); ok {
				current = next
				continue
			}
		}

		recs, err := proveDenial(idx, walker, current, currentType)
		if err != nil {
			return Result{}, ErrInvalid
		}
		window.noteRecords(recs)
		return finish(window, recs), nil
	}
	return Result{}, ErrInvalid
}

func nowSerial() uint32 {
	return uint32(time.Now().Unix())
}

func finish(window *validityWindow, records []wire.Record) Result {
	return Result{
		ValidFrom:   window.validFrom,
		Expires:     window.expires,
		MaxCacheTTL: window.minTTL,
		Records:     records,
	}
}

// verifyPositiveRRset checks at least one RRSIG over rrset validates
// under a DNSKEY this verifier has proven trustworthy.
func verifyPositiveRRset(idx *index, walker *chainWalker, owner wire.Name, typ uint16, rrset []wire.Record) bool {
	for _, sig := range idx.rrsigs(owner, typ) {
		keys, err := walker.trustedKeys(sig.SignerName)
		if err != nil {
			continue
		}
		for _, k := range keys {
			if sig.KeyTag != keyTag(k) || sig.Algorithm != k.Algorithm {
				continue
			}
			if err := verifyRRSIG(sig, k, rrset, walker.now); err == nil {
				walker.window.note(sig)
				return true
			}
		}
	}
	return false
}

func followCNAME(idx *index, walker *chainWalker, owner wire.Name, window *validityWindow) (wire.Name, bool) {
	rrset := idx.rrset(owner, wire.TypeCNAME)
	if len(rrset) != 1 {
		return "", false
	}
	if !verifyPositiveRRset(idx, walker, owner, wire.TypeCNAME, rrset) {
		return "", false
	}
	window.noteRecords(rrset)
	return rrset[0].RR.(wire.CNAME).Target, true
}

// followDNAME looks for a DNAME at an ancestor of owner and, if found
// and validated, synthesizes the CNAME target per RFC 6672 section 3.
func followDNAME(idx *index, walker *chainWalker, owner wire.Name, window *validityWindow) (wire.Name, bool) {
	for ancestor := owner.Parent(); ; ancestor = ancestor.Parent() {
		rrset := idx.rrset(ancestor, wire.TypeDNAME)
		if len(rrset) == 1 {
			if !verifyPositiveRRset(idx, walker, ancestor, wire.TypeDNAME, rrset) {
				return "", false
			}
			window.noteRecords(rrset)
			target := rrset[0].RR.(wire.DNAME).Target
			prefix := string(owner)[:len(owner)-len(ancestor)]
			return wire.Name(prefix + string(target)), true
		}
		if ancestor.IsRoot() {
			return "", false
		}
	}
}
