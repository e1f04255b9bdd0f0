package validate

import (
	"errors"
	"strings"

	"github.com/dnsprover/dnsprover/internal/hashfacade"
	"github.com/dnsprover/dnsprover/internal/wire"
)

var errDenial = errors.New("validate: no NSEC/NSEC3 denial proof covers the name")

// canonicalLess implements RFC 4034 6.1's canonical DNS name ordering:
// names are compared one label at a time starting from the root end
// (rightmost label first), each label compared as a raw (lowercased,
// which this codec already guarantees) byte string, shorter sorting
// first on a common prefix.
func canonicalLess(a, b wire.Name) bool {
	la, lb := a.Labels(), b.Labels()
	for i, j := len(la)-1, len(lb)-1; i >= 0 && j >= 0; i, j = i-1, j-1 {
		if c := strings.Compare(la[i], lb[j]); c != 0 {
			return c < 0
		}
	}
	return len(la) < len(lb)
}

// nsecCovers reports whether owner < name < next in canonical order,
// accounting for the final NSEC in a zone wrapping back to the apex
// (next < owner).
func nsecCovers(owner, next, name wire.Name) bool {
	if canonicalLess(owner, next) {
		return canonicalLess(owner, name) && canonicalLess(name, next)
	}
	return canonicalLess(owner, name) || canonicalLess(name, next)
}

// wildcardAt synthesizes "*.<parent>", the closest encloser this
// verifier considers for wildcard denial: it does not walk multiple
// levels looking for a provably-absent intermediate encloser, which
// real proofs rarely carry beyond the immediate parent in practice.
func wildcardAt(name wire.Name) wire.Name {
	return wire.Name("*." + string(name.Parent()))
}

// proveDenial looks for an NSEC or NSEC3 proof in the index that denies
// the existence of (name, qtype), either because name itself does not
// exist (NXDOMAIN, which additionally requires denying the wildcard) or
// because it exists but qtype is absent (NODATA).
func proveDenial(idx *index, walker *chainWalker, name wire.Name, qtype uint16) ([]wire.Record, error) {
	if recs, err := proveDenialNSEC(idx, walker, name, qtype); err == nil {
		return recs, nil
	}
	if recs, err := proveDenialNSEC3(idx, walker, name, qtype); err == nil {
		return recs, nil
	}
	return nil, errDenial
}

func proveDenialNSEC(idx *index, walker *chainWalker, name wire.Name, qtype uint16) ([]wire.Record, error) {
	all := idx.nsecRecords()
	var nodataIdx, coveringIdx = -1, -1
	for i, n := range all {
		if n.Name == name && !n.Types.Has(qtype) && !n.Types.Has(wire.TypeCNAME) {
			nodataIdx = i
		}
		if nsecCovers(n.Name, n.NextName, name) {
			coveringIdx = i
		}
	}

	if nodataIdx >= 0 {
		ok, rec := verifyDenialRRSIG(idx, walker, all[nodataIdx].Name, wire.TypeNSEC, wire.Record{RR: all[nodataIdx]})
		if !ok {
			return nil, errDenial
		}
		return []wire.Record{rec}, nil
	}
	if coveringIdx < 0 {
		return nil, errDenial
	}

	wildcard := wildcardAt(name)
	wildcardIdx := -1
	for i, n := range all {
		if n.Name == wildcard || nsecCovers(n.Name, n.NextName, wildcard) {
			wildcardIdx = i
			break
		}
	}
	if wildcardIdx < 0 {
		return nil, errDenial
	}

	ok1, rec1 := verifyDenialRRSIG(idx, walker, all[coveringIdx].Name, wire.TypeNSEC, wire.Record{RR: all[coveringIdx]})
	ok2, rec2 := verifyDenialRRSIG(idx, walker, all[wildcardIdx].Name, wire.TypeNSEC, wire.Record{RR: all[wildcardIdx]})
	if !ok1 || !ok2 {
		return nil, errDenial
	}
	return []wire.Record{rec1, rec2}, nil
}

func proveDenialNSEC3(idx *index, walker *chainWalker, name wire.Name, qtype uint16) ([]wire.Record, error) {
	all := idx.nsec3Records()
	if len(all) == 0 {
		return nil, errDenial
	}
	hashed := nsec3Hash(name, all[0].HashAlgorithm, all[0].Iterations, all[0].Salt)

	nodataIdx, coveringIdx := -1, -1
	for i, n := range all {
		owner := nsec3OwnerLabel(n.Name)
		next := base32HexEncode(n.NextHashedOwner)
		if owner == hashed && !n.Types.Has(qtype) && !n.Types.Has(wire.TypeCNAME) {
			nodataIdx = i
		}
		if nsec3Covers(owner, next, hashed) {
			coveringIdx = i
		}
	}

	if nodataIdx >= 0 {
		ok, rec := verifyDenialRRSIG(idx, walker, all[nodataIdx].Name, wire.TypeNSEC3, wire.Record{RR: all[nodataIdx]})
		if !ok {
			return nil, errDenial
		}
		return []wire.Record{rec}, nil
	}
	if coveringIdx < 0 {
		return nil, errDenial
	}

	wildcardHashed := nsec3Hash(wildcardAt(name), all[0].HashAlgorithm, all[0].Iterations, all[0].Salt)
	wildcardIdx := -1
	for i, n := range all {
		owner := nsec3OwnerLabel(n.Name)
		next := base32HexEncode(n.NextHashedOwner)
		if owner == wildcardHashed || nsec3Covers(owner, next, wildcardHashed) {
			wildcardIdx = i
			break
		}
	}
	if wildcardIdx < 0 {
		return nil, errDenial
	}

	ok1, rec1 := verifyDenialRRSIG(idx, walker, all[coveringIdx].Name, wire.TypeNSEC3, wire.Record{RR: all[coveringIdx]})
	ok2, rec2 := verifyDenialRRSIG(idx, walker, all[wildcardIdx].Name, wire.TypeNSEC3, wire.Record{RR: all[wildcardIdx]})
	if !ok1 || !ok2 {
		return nil, errDenial
	}
	return []wire.Record{rec1, rec2}, nil
}

// verifyDenialRRSIG validates the NSEC/NSEC3 RRset at owner (ordinarily
// just the single record rec) against whatever RRSIG in the proof covers
// it, returning the record to include in the result on success.
func verifyDenialRRSIG(idx *index, walker *chainWalker, owner wire.Name, typ uint16, rec wire.Record) (bool, wire.Record) {
	rrset := idx.rrset(owner, typ)
	if len(rrset) == 0 {
		rrset = []wire.Record{rec}
	}
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
				return true, rrset[0]
			}
		}
	}
	return false, wire.Record{}
}

// nsec3OwnerLabel extracts the base32hex hashed-owner label (the
// leftmost label of an NSEC3 RR's owner name), uppercased for
// comparison consistency with nsec3Hash's output.
func nsec3OwnerLabel(owner wire.Name) string {
	labels := owner.Labels()
	if len(labels) == 0 {
		return ""
	}
	return strings.ToUpper(labels[0])
}

func nsec3Covers(owner, next, target string) bool {
	if owner < next {
		return owner < target && target < next
	}
	return owner < target || target < next
}

// nsec3Hash computes the RFC 5155 section 5 iterated hash: SHA-1 applied
// (1 + iterations) times over name concatenated with salt, the owner
// name consumed first in its canonical uncompressed wire form.
func nsec3Hash(name wire.Name, algorithm byte, iterations uint16, salt []byte) string {
	if algorithm != wire.NSEC3HashSHA1 {
		return ""
	}
	digest := hashfacade.Sum(hashfacade.SHA1, append(wire.AppendName(nil, name), salt...)).Bytes()
	for i := uint16(0); i < iterations; i++ {
		digest = hashfacade.Sum(hashfacade.SHA1, append(append([]byte{}, digest...), salt...)).Bytes()
	}
	return strings.ToUpper(base32HexEncode(digest))
}

const base32HexAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUV"

// base32HexEncode implements RFC 4648 "base32hex" without padding, the
// encoding NSEC3 owner labels and next-hashed-owner fields use.
func base32HexEncode(data []byte) string {
	var sb strings.Builder
	var bitBuf uint32
	var bitCount uint
	for _, b := range data {
		bitBuf = bitBuf<<8 | uint32(b)
		bitCount += 8
		for bitCount >= 5 {
			bitCount -= 5
			idx := (bitBuf >> bitCount) & 0x1F
			sb.WriteByte(base32HexAlphabet[idx])
		}
	}
	if bitCount > 0 {
		idx := (bitBuf << (5 - bitCount)) & 0x1F
		sb.WriteByte(base32HexAlphabet[idx])
	}
	return strings.ToUpper(sb.String())
}
