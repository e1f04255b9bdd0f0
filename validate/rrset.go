package validate

import (
	"bytes"
	"sort"
	"strings"

	"github.com/dnsprover/dnsprover/internal/wire"
)

type rrsetKey struct {
	owner wire.Name
	typ   uint16
}

// index groups a flat proof record stream by (owner, type) and separately
// indexes RRSIGs by the RRset they cover, so the chain walker and RRSIG
// verifier never have to re-scan the whole proof.
type index struct {
	records map[rrsetKey][]wire.Record
	sigs    map[rrsetKey][]wire.RRSIG
	all     []wire.Record
}

func buildIndex(records []wire.Record) *index {
	idx := &index{
		records: make(map[rrsetKey][]wire.Record),
		sigs:    make(map[rrsetKey][]wire.RRSIG),
		all:     records,
	}
	for _, rec := range records {
		k := rrsetKey{owner: rec.RR.Owner(), typ: rec.RR.Type()}
		idx.records[k] = append(idx.records[k], rec)
		if rrsig, ok := rec.RR.(wire.RRSIG); ok {
			ck := rrsetKey{owner: rrsig.Name, typ: rrsig.TypeCovered}
			idx.sigs[ck] = append(idx.sigs[ck], rrsig)
		}
	}
	return idx
}

// nsecRecords and nsec3Records return every NSEC/NSEC3 RR in the proof,
// regardless of owner, for the denial-of-existence walk.
func (idx *index) nsecRecords() []wire.NSEC {
	var out []wire.NSEC
	for _, rec := range idx.all {
		if n, ok := rec.RR.(wire.NSEC); ok {
			out = append(out, n)
		}
	}
	return out
}

func (idx *index) nsec3Records() []wire.NSEC3 {
	var out []wire.NSEC3
	for _, rec := range idx.all {
		if n, ok := rec.RR.(wire.NSEC3); ok {
			out = append(out, n)
		}
	}
	return out
}

func (idx *index) rrset(owner wire.Name, typ uint16) []wire.Record {
	return idx.records[rrsetKey{owner: owner, typ: typ}]
}

func (idx *index) rrsigs(owner wire.Name, typeCovered uint16) []wire.RRSIG {
	return idx.sigs[rrsetKey{owner: owner, typ: typeCovered}]
}

func (idx *index) dnskeys(owner wire.Name) []wire.DNSKEY {
	recs := idx.rrset(owner, wire.TypeDNSKEY)
	out := make([]wire.DNSKEY, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.RR.(wire.DNSKEY))
	}
	return out
}

// withOwner returns a copy of rr with its owner name replaced, used to
// apply RFC 4034 6.2's wildcard-expansion rule (and nothing else) before
// canonicalization.
func withOwner(rr wire.RR, owner wire.Name) wire.RR {
	switch r := rr.(type) {
	case wire.A:
		r.Name = owner
		return r
	case wire.AAAA:
		r.Name = owner
		return r
	case wire.NS:
		r.Name = owner
		return r
	case wire.CNAME:
		r.Name = owner
		return r
	case wire.DNAME:
		r.Name = owner
		return r
	case wire.TXT:
		r.Name = owner
		return r
	case wire.TLSA:
		r.Name = owner
		return r
	case wire.DNSKEY:
		r.Name = owner
		return r
	case wire.DS:
		r.Name = owner
		return r
	case wire.RRSIG:
		r.Name = owner
		return r
	case wire.NSEC:
		r.Name = owner
		return r
	case wire.NSEC3:
		r.Name = owner
		return r
	default:
		return rr
	}
}

// countLabels counts the labels in a name, the root having zero.
func countLabels(n wire.Name) int {
	return len(n.Labels())
}

// canonicalSignedData reconstructs the RFC 4035 5.3.2 "signed data": the
// RRSIG's own rdata with the signature field removed, followed by every
// RR of the covered RRset in canonical form (owner lowercased and, for
// wildcard expansions, rewritten to "*.<suffix>"; TTL replaced by the
// RRSIG's original TTL; RDATA left exactly as decoded since this codec
// never lowercases or reorders rdata names beyond what parsing already
// canonicalized), sorted by canonical RDATA octets (RFC 4034 6.3).
func canonicalSignedData(rrsig wire.RRSIG, rrset []wire.Record) []byte {
	var buf []byte
	putU16(&buf, rrsig.TypeCovered)
	buf = append(buf, rrsig.Algorithm, rrsig.Labels)
	var tmp4 [4]byte
	putU32(&tmp4, rrsig.OrigTTL)
	buf = append(buf, tmp4[:]...)
	putU32(&tmp4, rrsig.Expiration)
	buf = append(buf, tmp4[:]...)
	putU32(&tmp4, rrsig.Inception)
	buf = append(buf, tmp4[:]...)
	putU16(&buf, rrsig.KeyTag)
	buf = wire.AppendName(buf, rrsig.SignerName)

	rdata := make([][]byte, 0, len(rrset))
	// Every RR of the set shares one owner, so RDATA starts at the same
	// offset in each encoding: owner, then type, class, TTL and RDLENGTH.
	rdOff := 0
	for _, rec := range rrset {
		owner := rec.RR.Owner()
		if labels := countLabels(owner); labels > int(rrsig.Labels) {
			suffix := strings.Join(owner.Labels()[labels-int(rrsig.Labels):], ".") + "."
			owner = "*." + wire.Name(suffix)
		}
		rr := withOwner(rec.RR, owner)
		rdOff = len(wire.AppendName(nil, owner)) + 10
		rdata = append(rdata, wire.EncodeRR(nil, wire.Record{RR: rr, TTL: rrsig.OrigTTL}))
	}
	sort.Slice(rdata, func(i, j int) bool { return bytes.Compare(rdata[i][rdOff:], rdata[j][rdOff:]) < 0 })
	for _, d := range rdata {
		buf = append(buf, d...)
	}
	return buf
}

func putU16(buf *[]byte, v uint16) {
	*buf = append(*buf, byte(v>>8), byte(v))
}

func putU32(tmp *[4]byte, v uint32) {
	tmp[0] = byte(v >> 24)
	tmp[1] = byte(v >> 16)
	tmp[2] = byte(v >> 8)
	tmp[3] = byte(v)
}
