package validate

import (
	"encoding/hex"

	"github.com/dnsprover/dnsprover/internal/bigint"
)

// curve bundles the short-Weierstrass parameters (y^2 = x^3 - 3x + b) of
// the one NIST curve this function is specialized for, plus the
// generator and group order the RFC 6605 DNSKEY encoding assumes.
type curve struct {
	newElement func([]byte) bigint.FieldElement
	b          bigint.FieldElement
	gx, gy     bigint.FieldElement
	order      []bigint.Word
	coordLen   int // bytes per coordinate in the DNSKEY/signature wire encoding
}

var p256Curve = curve{
	newElement: bigint.NewP256Element,
	b:          bigint.NewP256Element(mustHex("5ac635d8aa3a93e7b3ebbd55769886bc651d06b0cc53b0f63bce3c3e27d2604b")),
	gx:         bigint.NewP256Element(mustHex("6b17d1f2e12c4247f8bce6e563a440f277037d812deb33a0f4a13945d898c296")),
	gy:         bigint.NewP256Element(mustHex("4fe342e2fe1a7f9b8ee7eb4a7c0f9e162bce33576b315ececbb6406837bf51f5")),
	order:      mustHexLimbsLocal("ffffffff00000000ffffffffffffffffbce6faada7179e84f3b9cac2fc632551", 4),
	coordLen:   32,
}

var p384Curve = curve{
	newElement: bigint.NewP384Element,
	b:          bigint.NewP384Element(mustHex("b3312fa7e23ee7e4988e056be3f82d19181d9c6efe8141120314088f5013875ac656398d8a2ed19d2a85c8edd3ec2aef")),
	gx:         bigint.NewP384Element(mustHex("aa87ca22be8b05378eb1c71ef320ad746e1d3b628ba79b9859f741e082542a385502f25dbf55296c3a545e3872760ab7")),
	gy:         bigint.NewP384Element(mustHex("3617de4a96262c6f5d9e98bf9292dc29f8f41dbd289a147ce9da3113b5f0b8c00a60b1ce1d7e819d7a431d7c90ea0e5f")),
	order:      mustHexLimbsLocal("ffffffffffffffffffffffffffffffffffffffffffffffffc7634d81f4372ddf581a0db248b0a77aecec196accc52973", 6),
	coordLen:   48,
}

// point is an affine point on one of the two curves above. infinity
// represents the group identity; scalarMult starts from it, and double
// and add both accept it as an operand.
type point struct {
	c        *curve
	x, y     bigint.FieldElement
	infinity bool
}

func (c *curve) point(x, y bigint.FieldElement) point {
	return point{c: c, x: x, y: y}
}

// double implements the short-Weierstrass doubling formula specialized
// for a=-3: lambda = (3x^2 - 3) / 2y, x' = lambda^2 - 2x, y' = lambda(x-x') - y.
func (p point) double() point {
	if p.infinity || p.y.IsZero() {
		return point{c: p.c, infinity: true}
	}
	xSq := p.x.Square()
	numerator := xSq.TimesThree().Sub(p.c.newElement([]byte{3}))
	denominator := p.y.Double()
	lambda := numerator.Mul(bigint.FromModInvOf(denominator))
	x3 := lambda.Square().Sub(p.x.Double())
	y3 := lambda.Mul(p.x.Sub(x3)).Sub(p.y)
	return point{c: p.c, x: x3, y: y3}
}

// add implements the affine addition formula for distinct, non-inverse
// points; doubling and the point-at-infinity are special-cased.
func (p point) add(q point) point {
	if p.infinity {
		return q
	}
	if q.infinity {
		return p
	}
	if fieldEqual(p.x, q.x) {
		if fieldEqual(p.y, q.y) {
			return p.double()
		}
		return point{c: p.c, infinity: true} // p == -q
	}
	lambda := q.y.Sub(p.y).Mul(bigint.FromModInvOf(q.x.Sub(p.x)))
	x3 := lambda.Square().Sub(p.x).Sub(q.x)
	y3 := lambda.Mul(p.x.Sub(x3)).Sub(p.y)
	return point{c: p.c, x: x3, y: y3}
}

// scalarMult computes k*P via left-to-right double-and-add over the
// big-endian limb encoding of k.
func scalarMult(k []bigint.Word, p point) point {
	result := point{c: p.c, infinity: true}
	bits := len(k) * 64
	for i := 0; i < bits; i++ {
		result = result.double()
		if limbBitAt(k, i) {
			result = result.add(p)
		}
	}
	return result
}

func limbBitAt(a []bigint.Word, i int) bool {
	limb := i / 64
	pos := i % 64
	return (a[limb]>>(63-pos))&1 == 1
}

func fieldEqual(a, b bigint.FieldElement) bool {
	return a.Sub(b).IsZero()
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func mustHexLimbsLocal(s string, limbs int) []bigint.Word {
	b := mustHex(s)
	return bigint.FromBytes(b, limbs)
}

// verifyECDSA checks a DNSSEC ECDSA signature (RFC 6605 section 4): the
// wire signature is the concatenation of the unsigned r and s integers,
// each coordLen bytes.
func verifyECDSA(c *curve, pub point, digest, signature []byte) bool {
	if len(signature) != 2*c.coordLen {
		return false
	}
	r := bigint.FromBytes(signature[:c.coordLen], len(c.order))
	s := bigint.FromBytes(signature[c.coordLen:], len(c.order))
	if isZeroLimbs(r) || isZeroLimbs(s) {
		return false
	}
	if !limbsLess(r, c.order) || !limbsLess(s, c.order) {
		return false
	}

	sInv, err := bigint.ModInverse(s, c.order)
	if err != nil {
		return false
	}
	z := bigint.FromBytes(digest, len(c.order))
	z = bigint.Mod(z, c.order)

	u1 := mulMod(z, sInv, c.order)
	u2 := mulMod(r, sInv, c.order)

	g := c.point(c.gx, c.gy)
	p1 := scalarMult(u1, g)
	p2 := scalarMult(u2, pub)
	sum := p1.add(p2)
	if sum.infinity {
		return false
	}
	x1 := bigint.FromBytes(sum.x.Bytes(), len(c.order))
	x1 = bigint.Mod(x1, c.order)
	return limbsEqual(x1, r)
}

func mulMod(a, b, m []bigint.Word) []bigint.Word {
	return bigint.Mod(bigint.Mul(a, b), m)
}

func isZeroLimbs(a []bigint.Word) bool {
	for _, w := range a {
		if w != 0 {
			return false
		}
	}
	return true
}

// limbsLess and limbsEqual assume equal-length big-endian operands,
// which every caller here provides (both sides are always built at the
// curve order's limb width).
func limbsLess(a, b []bigint.Word) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func limbsEqual(a, b []bigint.Word) bool {
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
