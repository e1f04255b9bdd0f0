package validate

import (
	"errors"

	"github.com/dnsprover/dnsprover/internal/hashfacade"
	"github.com/dnsprover/dnsprover/internal/rootanchor"
	"github.com/dnsprover/dnsprover/internal/wire"
)

// DNSSEC algorithm numbers this verifier understands (RFC 8624 section 3.1).
const (
	algRSASHA1          = 5
	algRSASHA1NSEC3SHA1 = 7
	algRSASHA256        = 8
	algRSASHA512        = 10
	algECDSAP256SHA256  = 13
	algECDSAP384SHA384  = 14
)

var errBadSignature = errors.New("validate: signature does not verify")

// verifyRRSIG checks rrsig cryptographically validates rrset under key,
// and that rrsig's validity window covers now. It does not check that
// key is itself trusted; the chain walker does that before calling in.
func verifyRRSIG(rrsig wire.RRSIG, key wire.DNSKEY, rrset []wire.Record, now uint32) error {
	if rrsig.KeyTag != keyTag(key) || rrsig.Algorithm != key.Algorithm {
		return errBadSignature
	}
	if !key.IsZoneKey() || key.Protocol != 3 {
		return errBadSignature
	}
	if !rootanchor.SerialInRange(now, rrsig.Inception, rrsig.Expiration) {
		return errBadSignature
	}

	signed := canonicalSignedData(rrsig, rrset)

	switch rrsig.Algorithm {
	case algRSASHA1, algRSASHA1NSEC3SHA1:
		return verifyRSASigned(key, hashfacade.SHA1, signed, rrsig.Signature)
	case algRSASHA256:
		return verifyRSASigned(key, hashfacade.SHA256, signed, rrsig.Signature)
	case algRSASHA512:
		return verifyRSASigned(key, hashfacade.SHA512, signed, rrsig.Signature)
	case algECDSAP256SHA256:
		return verifyECDSASigned(&p256Curve, key, hashfacade.SHA256, signed, rrsig.Signature)
	case algECDSAP384SHA384:
		return verifyECDSASigned(&p384Curve, key, hashfacade.SHA384, signed, rrsig.Signature)
	default:
		return errBadSignature
	}
}

func verifyRSASigned(key wire.DNSKEY, alg hashfacade.Algorithm, signed, signature []byte) error {
	pub, ok := parseRSAPublicKey(key.PublicKey)
	if !ok {
		return errBadSignature
	}
	digest := hashfacade.Sum(alg, signed).Bytes()
	if !verifyRSA(pub, alg, digest, signature) {
		return errBadSignature
	}
	return nil
}

func verifyECDSASigned(c *curve, key wire.DNSKEY, alg hashfacade.Algorithm, signed, signature []byte) error {
	if len(key.PublicKey) != 2*c.coordLen {
		return errBadSignature
	}
	x := c.newElement(key.PublicKey[:c.coordLen])
	y := c.newElement(key.PublicKey[c.coordLen:])
	pub := c.point(x, y)
	digest := hashfacade.Sum(alg, signed).Bytes()
	if !verifyECDSA(c, pub, digest, signature) {
		return errBadSignature
	}
	return nil
}
