// Package proof implements the DNSSEC proof-building state machine: given
// only the ability to exchange opaque DNS queries and responses with a
// recursive resolver, it drives a bounded sequence of queries that
// materializes an RFC 9102 AuthenticationChain from a seed (name, type)
// up to the DNS root.
package proof

import (
	"encoding/binary"
	"errors"
	"sort"

	"github.com/dnsprover/dnsprover/internal/querybuf"
	"github.com/dnsprover/dnsprover/internal/wire"
)

// MaxSteps bounds both the number of queries a Builder will ever issue
// and, transitively, the size of dnskeysRequested: an adversarial or
// misconfigured resolver cannot make the builder run forever.
const MaxSteps = 20

// txID is fixed at zero: correctness here comes from verifying the
// returned chain cryptographically, not from transaction ID matching, so
// there is nothing to gain by randomizing it.
const txID uint16 = 0

// Error is the taxonomy of failures a Builder can report while
// processing a resolver response.
type Error int

const (
	// ErrInvalidResponse indicates the response could not be parsed, or
	// contained nonsense this library does not understand.
	ErrInvalidResponse Error = iota
	// ErrServerFailure indicates the resolver reported SERVFAIL or FORMERR.
	ErrServerFailure
	// ErrNoSuchName indicates NXDOMAIN on the very first query.
	ErrNoSuchName
	// ErrMissingRecord indicates NXDOMAIN on a follow-up query.
	ErrMissingRecord
	// ErrUnauthenticated indicates the resolver did not set the AD bit:
	// the data being queried for was not DNSSEC-signed, or the resolver
	// does not validate DNSSEC.
	ErrUnauthenticated
	// ErrNoResponseExpected indicates ProcessResponse was called when
	// the builder had no pending queries; a bug in the caller, not the DNS.
	ErrNoResponseExpected
)

func (e Error) Error() string {
	switch e {
	case ErrInvalidResponse:
		return "proof: server provided a response that could not be understood"
	case ErrServerFailure:
		return "proof: server failed to reach a required authoritative DNS server"
	case ErrNoSuchName:
		return "proof: the requested hostname does not exist"
	case ErrMissingRecord:
		return "proof: a record required to build the proof does not exist"
	case ErrUnauthenticated:
		return "proof: the records needed were not DNSSEC-authenticated"
	case ErrNoResponseExpected:
		return "proof: internal error: no response was expected"
	default:
		return "proof: unknown error"
	}
}

var errFinishIncomplete = errors.New("proof: pending queries remain or the step budget was exceeded")

// Builder is a state machine that generates a series of queries and
// processes their responses until it has assembled a DNSSEC proof, or
// until it has conclusively failed to.
//
// Usage: New returns the builder and an initial query. While
// AwaitingResponses is true, send each query produced so far to a
// resolver, feed the raw response bytes to ProcessResponse, and send any
// new queries it returns. Once AwaitingResponses is false, call
// FinishProof.
type Builder struct {
	proof            []byte
	minTTL           uint32
	dnskeysRequested []wire.Name
	pending          int
	total            int
}

// New constructs a Builder for the given seed name and RR type, along
// with the first query to send to a recursive resolver.
func New(name wire.Name, qtype uint16) (*Builder, []byte) {
	b := &Builder{
		minTTL:  ^uint32(0),
		pending: 1,
		total:   1,
	}
	return b, buildQuery(name, qtype)
}

// AwaitingResponses reports whether further resolver responses are
// expected. Once false, call FinishProof.
func (b *Builder) AwaitingResponses() bool {
	return b.pending > 0 && b.total <= MaxSteps
}

// buildQuery constructs a single-question DNS query with the DO
// (DNSSEC OK) bit set and AD requested, matching the 12-byte header plus
// one question plus one EDNS0 OPT additional record every proof query
// uses.
func buildQuery(name wire.Name, qtype uint16) []byte {
	q := querybuf.New()
	var hdr [12]byte
	binary.BigEndian.PutUint16(hdr[0:2], txID)
	binary.BigEndian.PutUint16(hdr[2:4], 0x0120) // RD + AD
	binary.BigEndian.PutUint16(hdr[4:6], 1)       // QDCOUNT
	binary.BigEndian.PutUint16(hdr[6:8], 0)       // ANCOUNT
	binary.BigEndian.PutUint16(hdr[8:10], 0)      // NSCOUNT
	binary.BigEndian.PutUint16(hdr[10:12], 1)     // ARCOUNT
	q.Append(hdr[:])
	q.Append(encodeQuestion(name, qtype))
	q.Append(encodeOPT())
	return q.IntoBytes()
}

func encodeQuestion(name wire.Name, qtype uint16) []byte {
	var buf []byte
	buf = wire.AppendName(buf, name)
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], qtype)
	buf = append(buf, tmp[:]...)
	binary.BigEndian.PutUint16(tmp[:], wire.ClassIN)
	buf = append(buf, tmp[:]...)
	return buf
}

// encodeOPT builds the EDNS0 OPT pseudo-RR every query carries: root
// name, TYPE=OPT(41), "class" repurposed as a zero UDP payload size,
// "TTL" repurposed as extended-rcode=0/version=0/flags=0x8000 (the DO
// bit), and an empty RDATA.
func encodeOPT() []byte {
	buf := []byte{0} // root name
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], 41) // TYPE=OPT
	buf = append(buf, tmp[:]...)
	binary.BigEndian.PutUint16(tmp[:], 0) // UDP payload size
	buf = append(buf, tmp[:]...)
	buf = append(buf, 0, 0) // extended rcode, version
	binary.BigEndian.PutUint16(tmp[:], 0x8000)
	buf = append(buf, tmp[:]...) // flags: DO bit
	binary.BigEndian.PutUint16(tmp[:], 0)
	buf = append(buf, tmp[:]...) // RDLENGTH=0
	return buf
}

// ProcessResponse parses a single resolver response, appending any newly
// authenticated records to the proof, and returns the queries that must
// now additionally be sent to the resolver (DNSKEY/DS lookups for any
// newly observed RRSIG signer name).
func (b *Builder) ProcessResponse(resp []byte) ([][]byte, error) {
	if b.pending == 0 {
		return nil, ErrNoResponseExpected
	}

	var signerNames []wire.Name
	minTTL, err := b.handleResponse(resp, &signerNames)
	if err != nil {
		if len(b.proof) == 0 && err == ErrMissingRecord {
			return nil, ErrNoSuchName
		}
		return nil, err
	}
	if minTTL < b.minTTL {
		b.minTTL = minTTL
	}
	b.pending--

	signerNames = dedupNames(signerNames)

	var newQueries [][]byte
	for _, name := range signerNames {
		if containsName(b.dnskeysRequested, name) {
			continue
		}
		newQueries = append(newQueries, buildQuery(name, wire.TypeDNSKEY))
		b.pending++
		b.total++
		b.dnskeysRequested = append(b.dnskeysRequested, name)

		if !name.IsRoot() {
			newQueries = append(newQueries, buildQuery(name, wire.TypeDS))
			b.pending++
			b.total++
		}
	}

	if b.total > MaxSteps {
		return nil, nil
	}
	return newQueries, nil
}

// handleResponse validates and parses a single response, appending
// authenticated answer and authority RRs to the proof accumulator and
// collecting the RRSIG signer names that must be chased next.
func (b *Builder) handleResponse(resp []byte, signerNames *[]wire.Name) (uint32, error) {
	if len(resp) < 12 {
		return 0, ErrInvalidResponse
	}
	gotTxID := binary.BigEndian.Uint16(resp[0:2])
	if gotTxID != txID {
		return 0, ErrInvalidResponse
	}
	flags := binary.BigEndian.Uint16(resp[2:4])
	if flags&0x8000 == 0 {
		return 0, ErrInvalidResponse // not tagged as a response
	}
	rcode := flags & 0x000F
	if rcode == 2 || rcode == 1 {
		return 0, ErrServerFailure
	}
	if rcode == 3 {
		return 0, ErrMissingRecord
	}
	// OPCODE (bits 14-11), TC (bit 9), and RCODE (bits 3-0) must all be zero.
	if flags&0x7A0F != 0 {
		return 0, ErrInvalidResponse
	}
	if flags&0x0020 == 0 {
		return 0, ErrUnauthenticated
	}

	header, questions, answer, authority, err := wire.ParseAnswerAndAuthority(resp)
	if err != nil {
		return 0, ErrInvalidResponse
	}
	if len(questions) != 1 {
		return 0, ErrInvalidResponse
	}
	if header.ANCount == 0 {
		return 0, ErrInvalidResponse
	}

	minTTL := ^uint32(0)
	for _, rec := range answer {
		b.proof = wire.EncodeRR(b.proof, rec)
		if rec.TTL < minTTL {
			minTTL = rec.TTL
		}
		if rrsig, ok := rec.RR.(wire.RRSIG); ok {
			*signerNames = append(*signerNames, rrsig.SignerName)
		}
	}

	for _, rec := range authority {
		keep := false
		switch rr := rec.RR.(type) {
		case wire.RRSIG:
			keep = rr.CoversNSEC()
		case wire.NSEC, wire.NSEC3:
			keep = true
		}
		if !keep {
			continue
		}
		b.proof = wire.EncodeRR(b.proof, rec)
		if rec.TTL < minTTL {
			minTTL = rec.TTL
		}
		if rrsig, ok := rec.RR.(wire.RRSIG); ok {
			*signerNames = append(*signerNames, rrsig.SignerName)
		}
	}

	return minTTL, nil
}

// FinishProof returns the assembled proof bytes and the TTL downstream
// caches should honor, succeeding only if every query has been answered
// within the step budget.
func (b *Builder) FinishProof() ([]byte, uint32, error) {
	if b.pending > 0 || b.total > MaxSteps {
		return nil, 0, errFinishIncomplete
	}
	return b.proof, b.minTTL, nil
}

func dedupNames(names []wire.Name) []wire.Name {
	if len(names) == 0 {
		return nil
	}
	sorted := make([]wire.Name, len(names))
	copy(sorted, names)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	out := sorted[:0]
	for i, n := range sorted {
		if i == 0 || n != sorted[i-1] {
			out = append(out, n)
		}
	}
	return out
}

func containsName(names []wire.Name, n wire.Name) bool {
	for _, existing := range names {
		if existing == n {
			return true
		}
	}
	return false
}
