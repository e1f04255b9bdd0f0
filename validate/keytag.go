package validate

import (
	"encoding/binary"

	"github.com/dnsprover/dnsprover/internal/hashfacade"
	"github.com/dnsprover/dnsprover/internal/wire"
)

// dnskeyRDATA reconstructs the canonical RDATA bytes of a DNSKEY record
// (flags, protocol, algorithm, public key), the input both KeyTag and the
// DS digest are computed over.
func dnskeyRDATA(k wire.DNSKEY) []byte {
	buf := make([]byte, 0, 4+len(k.PublicKey))
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], k.Flags)
	buf = append(buf, tmp[:]...)
	buf = append(buf, k.Protocol, k.Algorithm)
	return append(buf, k.PublicKey...)
}

// keyTag computes the DNSKEY key tag per RFC 4034 Appendix B: a 16-bit
// checksum folded from the big-endian-pair sum of the RDATA bytes.
func keyTag(k wire.DNSKEY) uint16 {
	rdata := dnskeyRDATA(k)
	var sum uint32
	for i, b := range rdata {
		if i&1 == 0 {
			sum += uint32(b) << 8
		} else {
			sum += uint32(b)
		}
	}
	sum += (sum >> 16) & 0xFFFF
	return uint16(sum & 0xFFFF)
}

// dsDigest computes the DS digest of a DNSKEY as seen at owner, per RFC
// 4034 section 5.1.4: digest_algorithm(owner | DNSKEY RDATA).
func dsDigest(owner wire.Name, k wire.DNSKEY, digestType byte) ([]byte, bool) {
	alg, ok := hashAlgorithmForDigestType(digestType)
	if !ok {
		return nil, false
	}
	h := hashfacade.New(alg)
	h.Update(wire.AppendName(nil, owner))
	h.Update(dnskeyRDATA(k))
	return h.Finish().Bytes(), true
}

func hashAlgorithmForDigestType(digestType byte) (hashfacade.Algorithm, bool) {
	switch digestType {
	case 1:
		return hashfacade.SHA1, true
	case 2:
		return hashfacade.SHA256, true
	case 4:
		return hashfacade.SHA384, true
	default:
		return 0, false
	}
}
