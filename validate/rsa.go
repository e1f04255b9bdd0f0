package validate

import (
	"github.com/dnsprover/dnsprover/internal/bigint"
	"github.com/dnsprover/dnsprover/internal/hashfacade"
)

// rsaPublicKey is a parsed RFC 3110 DNSKEY RSA public key.
type rsaPublicKey struct {
	exponent []bigint.Word
	modulus  []bigint.Word
	limbs    int // limb width the modulus (and every ExpMod operand) uses
}

// parseRSAPublicKey decodes the RFC 3110 "exponent length prefix,
// exponent, modulus" encoding DNSKEY RDATA uses for RSA keys.
func parseRSAPublicKey(raw []byte) (*rsaPublicKey, bool) {
	if len(raw) < 3 {
		return nil, false
	}
	explen := int(raw[0])
	off := 1
	if explen == 0 {
		if len(raw) < 3 {
			return nil, false
		}
		explen = int(raw[1])<<8 | int(raw[2])
		off = 3
	}
	if explen == 0 || off+explen > len(raw) {
		return nil, false
	}
	expBytes := raw[off : off+explen]
	modBytes := raw[off+explen:]
	if len(modBytes) == 0 {
		return nil, false
	}
	limbs := (len(modBytes) + 7) / 8
	if limbs == 0 {
		limbs = 1
	}
	expLimbs := (len(expBytes) + 7) / 8
	if expLimbs == 0 {
		expLimbs = 1
	}
	return &rsaPublicKey{
		exponent: bigint.FromBytes(expBytes, expLimbs),
		modulus:  bigint.FromBytes(modBytes, limbs),
		limbs:    limbs,
	}, true
}

// verifyRSA checks an RSASSA-PKCS1-v1_5 signature (RFC 3447 section 8.2.2)
// over digest, computed with the given hash algorithm, using bigint.ExpMod
// instead of crypto/rsa.
func verifyRSA(key *rsaPublicKey, alg hashfacade.Algorithm, digest, signature []byte) bool {
	if len(signature)*8 < key.limbs*64 {
		return false
	}
	sig := bigint.FromBytes(signature, key.limbs)
	decoded := bigint.ExpMod(sig, key.exponent, key.modulus)
	encoded := emsaPKCS1v15Encode(alg, digest, key.limbs*64)
	if encoded == nil {
		return false
	}
	expected := bigint.FromBytes(encoded, key.limbs)
	return wordsEqual(decoded, expected)
}

func wordsEqual(a, b []bigint.Word) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// digestInfo prefixes are the DER encodings of the hash algorithm
// identifiers RFC 3447 Appendix B.1/RFC 8017 specifies for PKCS#1 v1.5.
var digestInfoPrefix = map[hashfacade.Algorithm][]byte{
	hashfacade.SHA1:   {0x30, 0x21, 0x30, 0x09, 0x06, 0x05, 0x2b, 0x0e, 0x03, 0x02, 0x1a, 0x05, 0x00, 0x04, 0x14},
	hashfacade.SHA256: {0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20},
	hashfacade.SHA384: {0x30, 0x41, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x02, 0x05, 0x00, 0x04, 0x30},
	hashfacade.SHA512: {0x30, 0x51, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x03, 0x05, 0x00, 0x04, 0x40},
}

// emsaPKCS1v15Encode builds the EMSA-PKCS1-v1_5 encoded message
// 0x00 0x01 0xFF...0xFF 0x00 DigestInfo, left-padded to emBits bits.
func emsaPKCS1v15Encode(alg hashfacade.Algorithm, digest []byte, emBits int) []byte {
	prefix, ok := digestInfoPrefix[alg]
	if !ok {
		return nil
	}
	emLen := (emBits + 7) / 8
	tLen := len(prefix) + len(digest)
	if emLen < tLen+11 {
		return nil
	}
	out := make([]byte, emLen)
	out[0] = 0x00
	out[1] = 0x01
	padLen := emLen - tLen - 3
	for i := 0; i < padLen; i++ {
		out[2+i] = 0xFF
	}
	out[2+padLen] = 0x00
	copy(out[emLen-tLen:], prefix)
	copy(out[emLen-len(digest):], digest)
	return out
}
