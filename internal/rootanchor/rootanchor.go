// Package rootanchor holds the hard-coded DNS root zone trust anchor the
// verifier bottoms every delegation chain out at, plus the RFC 1982
// serial-number arithmetic RRSIG validity windows need.
package rootanchor

import "encoding/hex"

// KeyTag and Algorithm identify the current IANA root zone KSK (KSK-2017,
// RSASHA256). DigestType 2 is SHA-256.
const (
	KeyTag     uint16 = 20326
	Algorithm  byte   = 8
	DigestType byte   = 2
)

// Digest is the SHA-256 digest of the root KSK-2017 DNSKEY RDATA, as
// published in the root zone's own DS record and distributed out of
// band by IANA (https://www.iana.org/dnssec/files).
var Digest = mustHex("E06D44B80B8F1D39A95C0B0D7C65D08458E880409BBC683457104237C7F8EC8D")

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// Matches reports whether a DS record's (keyTag, algorithm, digestType,
// digest) identifies this trust anchor.
func Matches(keyTag uint16, algorithm, digestType byte, digest []byte) bool {
	if keyTag != KeyTag || algorithm != Algorithm || digestType != DigestType {
		return false
	}
	if len(digest) != len(Digest) {
		return false
	}
	for i := range digest {
		if digest[i] != Digest[i] {
			return false
		}
	}
	return true
}

// SerialGreaterThan implements the RFC 1982 serial number comparison
// DNSSEC's 32-bit RRSIG inception/expiration timestamps use: i1 is
// considered later than i2 if, modulo 2^32, the signed difference i1-i2
// is positive.
func SerialGreaterThan(i1, i2 uint32) bool {
	diff := int32(i1 - i2)
	return diff > 0
}

// SerialInRange reports whether now falls within [inception, expiration]
// under RFC 1982 serial arithmetic.
func SerialInRange(now, inception, expiration uint32) bool {
	if SerialGreaterThan(inception, now) {
		return false
	}
	if SerialGreaterThan(now, expiration) {
		return false
	}
	return true
}
