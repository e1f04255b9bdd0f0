package bigint

import "encoding/hex"

// P256Prime and P384Prime are the NIST P-256 / P-384 field primes, the
// only two curves RFC 6605 / RFC 8624 let ECDSA DNSKEYs use.
var (
	P256Prime = mustHexLimbs("FFFFFFFF00000001000000000000000000000000FFFFFFFFFFFFFFFFFFFFFFFF", 4)
	P384Prime = mustHexLimbs("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEFFFFFFFF0000000000000000FFFFFFFF", 6)
)

func mustHexLimbs(s string, limbs int) []Word {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return FromBytes(b, limbs)
}

// FieldElement is a value in GF(p) for one of the two DNSSEC ECDSA
// curves, held internally in Montgomery form so repeated Mul/Square
// calls (as point addition/doubling need) avoid a division per step.
type FieldElement struct {
	mod *Modulus
	v   []Word // Montgomery form
}

var p256Mod = NewModulus(P256Prime)
var p384Mod = NewModulus(P384Prime)

// NewP256Element and NewP384Element build a field element from a
// big-endian byte string (the wire encoding of an ECDSA public key
// coordinate or signature component).
func NewP256Element(b []byte) FieldElement { return newElement(p256Mod, b, 4) }
func NewP384Element(b []byte) FieldElement { return newElement(p384Mod, b, 6) }

func newElement(mod *Modulus, b []byte, limbs int) FieldElement {
	v := FromBytes(b, limbs)
	return FieldElement{mod: mod, v: mod.ToMontgomery(v)}
}

// Bytes returns the ordinary (non-Montgomery) big-endian encoding.
func (f FieldElement) Bytes() []byte {
	return ToBytes(f.mod.FromMontgomery(pad(f.v, len(f.v))))
}

func (f FieldElement) sameField(other FieldElement) {
	if f.mod != other.mod {
		panic("bigint: mixed field elements from different curves")
	}
}

// Add returns f+g mod p.
func (f FieldElement) Add(g FieldElement) FieldElement {
	f.sameField(g)
	n := len(f.mod.m)
	sum, carry := addCarry(pad(f.v, n), pad(g.v, n))
	if carry != 0 || cmp(sum, f.mod.m) >= 0 {
		sum, _ = subBorrow(pad(sum, n), f.mod.m)
	}
	return FieldElement{mod: f.mod, v: sum}
}

// Sub returns f-g mod p.
func (f FieldElement) Sub(g FieldElement) FieldElement {
	f.sameField(g)
	n := len(f.mod.m)
	diff, borrow := subBorrow(pad(f.v, n), pad(g.v, n))
	if borrow != 0 {
		diff, _ = addCarry(diff, f.mod.m)
	}
	return FieldElement{mod: f.mod, v: diff}
}

// Double returns 2f mod p.
func (f FieldElement) Double() FieldElement { return f.Add(f) }

// TimesThree returns 3f mod p.
func (f FieldElement) TimesThree() FieldElement { return f.Double().Add(f) }

// TimesFour returns 4f mod p.
func (f FieldElement) TimesFour() FieldElement { return f.Double().Double() }

// TimesEight returns 8f mod p.
func (f FieldElement) TimesEight() FieldElement { return f.Double().Double().Double() }

// Mul returns f*g mod p.
func (f FieldElement) Mul(g FieldElement) FieldElement {
	f.sameField(g)
	return FieldElement{mod: f.mod, v: f.mod.MontMul(f.v, g.v)}
}

// Square returns f*f mod p.
func (f FieldElement) Square() FieldElement {
	return FieldElement{mod: f.mod, v: f.mod.MontSquare(f.v)}
}

// FromModInvOf returns g^-1 mod p, used for the slope denominators of
// affine point addition and doubling during signature verification.
func FromModInvOf(g FieldElement) FieldElement {
	ordinary := g.mod.FromMontgomery(pad(g.v, len(g.mod.m)))
	inv, err := ModInverse(ordinary, g.mod.m)
	if err != nil {
		panic(err) // the curve order/prime guarantees every non-zero element is invertible
	}
	return FieldElement{mod: g.mod, v: g.mod.ToMontgomery(inv)}
}

// IsZero reports whether f is the additive identity.
func (f FieldElement) IsZero() bool {
	return isZero(f.v)
}
