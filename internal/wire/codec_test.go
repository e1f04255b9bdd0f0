package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustName(t *testing.T, s string) Name {
	t.Helper()
	n, err := ParseName(s)
	require.NoError(t, err)
	return n
}

func TestParseNameCanonicalizes(t *testing.T) {
	n, err := ParseName("Example.COM")
	require.NoError(t, err)
	assert.Equal(t, Name("example.com."), n)
}

func TestParseNameRejectsOverlongLabel(t *testing.T) {
	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	_, err := ParseName(string(long) + ".com")
	assert.ErrorIs(t, err, ErrLabelTooLong)
}

func TestRoundTripA(t *testing.T) {
	rec := Record{
		RR:  A{Name: mustName(t, "www.example.com"), Addr: [4]byte{93, 184, 216, 34}},
		TTL: 300,
	}
	buf := EncodeRR(nil, rec)
	got, err := ParseRRStream(buf)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec, got[0])
}

func TestRoundTripDNSKEY(t *testing.T) {
	rec := Record{
		RR: DNSKEY{
			Name:      mustName(t, "example.com"),
			Flags:     257,
			Protocol:  3,
			Algorithm: 8,
			PublicKey: []byte{1, 2, 3, 4, 5},
		},
		TTL: 86400,
	}
	buf := EncodeRR(nil, rec)
	got, err := ParseRRStream(buf)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec, got[0])
	key := got[0].RR.(DNSKEY)
	assert.True(t, key.IsZoneKey())
	assert.True(t, key.IsSEP())
}

func TestRoundTripRRSIG(t *testing.T) {
	rec := Record{
		RR: RRSIG{
			Name:        mustName(t, "example.com"),
			TypeCovered: TypeA,
			Algorithm:   8,
			Labels:      2,
			OrigTTL:     3600,
			Expiration:  1893456000,
			Inception:   1861920000,
			KeyTag:      12345,
			SignerName:  mustName(t, "example.com"),
			Signature:   []byte{9, 9, 9, 9},
		},
		TTL: 3600,
	}
	buf := EncodeRR(nil, rec)
	got, err := ParseRRStream(buf)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec, got[0])
}

func TestRoundTripNSECBitmap(t *testing.T) {
	var bm TypeBitmap
	bm.Set(TypeA)
	bm.Set(TypeRRSIG)
	bm.Set(TypeNSEC)
	bm.Set(TypeDNSKEY)

	rec := Record{
		RR: NSEC{
			Name:     mustName(t, "example.com"),
			NextName: mustName(t, "www.example.com"),
			Types:    bm,
		},
		TTL: 3600,
	}
	buf := EncodeRR(nil, rec)
	got, err := ParseRRStream(buf)
	require.NoError(t, err)
	require.Len(t, got, 1)
	nsec := got[0].RR.(NSEC)
	assert.True(t, nsec.Types.Has(TypeA))
	assert.True(t, nsec.Types.Has(TypeRRSIG))
	assert.False(t, nsec.Types.Has(TypeAAAA))
}

func TestRoundTripNSEC3(t *testing.T) {
	var bm TypeBitmap
	bm.Set(TypeA)

	rec := Record{
		RR: NSEC3{
			Name:            mustName(t, "abc123.example.com"),
			HashAlgorithm:   NSEC3HashSHA1,
			Flags:           1,
			Iterations:      10,
			Salt:            []byte{0xAA, 0xBB},
			NextHashedOwner: []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
			Types:           bm,
		},
		TTL: 3600,
	}
	buf := EncodeRR(nil, rec)
	got, err := ParseRRStream(buf)
	require.NoError(t, err)
	require.Len(t, got, 1)
	n3 := got[0].RR.(NSEC3)
	assert.True(t, n3.OptOut())
}

func TestParseRRStreamMultipleRecords(t *testing.T) {
	var buf []byte
	buf = EncodeRR(buf, Record{RR: A{Name: mustName(t, "a.example.com"), Addr: [4]byte{1, 2, 3, 4}}, TTL: 60})
	buf = EncodeRR(buf, Record{RR: A{Name: mustName(t, "b.example.com"), Addr: [4]byte{5, 6, 7, 8}}, TTL: 60})

	got, err := ParseRRStream(buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Name("a.example.com."), got[0].RR.Owner())
	assert.Equal(t, Name("b.example.com."), got[1].RR.Owner())
}

func TestParseRRStreamRejectsCompressionPointer(t *testing.T) {
	buf := EncodeRR(nil, Record{RR: A{Name: mustName(t, "example.com"), Addr: [4]byte{1, 1, 1, 1}}, TTL: 60})
	// Splice a compression pointer byte in where a length byte is expected.
	buf[0] = 0xC0
	_, err := ParseRRStream(buf)
	assert.Error(t, err)
}

func TestParseMessageHeaderFlags(t *testing.T) {
	msg := []byte{
		0x12, 0x34, // ID
		0x81, 0xA0, // QR=1 Opcode=0 AA=0 TC=0 RD=1 | RA=1 Z=0 AD=1 CD=0
		0x00, 0x01, // QDCOUNT
		0x00, 0x00, // ANCOUNT
		0x00, 0x00, // NSCOUNT
		0x00, 0x00, // ARCOUNT
		3, 'w', 'w', 'w', 7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0,
		0x00, 0x01, // QTYPE A
		0x00, 0x01, // QCLASS IN
	}
	m, err := ParseMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), m.Header.ID)
	assert.True(t, m.Header.QR)
	assert.True(t, m.Header.RD)
	assert.True(t, m.Header.RA)
	assert.True(t, m.Header.AD)
	assert.False(t, m.Header.AA)
	require.Len(t, m.Question, 1)
	assert.Equal(t, Name("www.example.com."), m.Question[0].Name)
	assert.Equal(t, TypeA, m.Question[0].Type)
}

func TestParseMessageFollowsCompressionPointer(t *testing.T) {
	// Message with a question for example.com, and an answer whose owner
	// name is a compression pointer back to the question name.
	msg := []byte{
		0, 0, 0x01, 0x00, // ID, flags (RD)
		0x00, 0x01, // QDCOUNT
		0x00, 0x01, // ANCOUNT
		0x00, 0x00,
		0x00, 0x00,
	}
	qNameOffset := len(msg)
	msg = append(msg, 7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0)
	msg = append(msg, 0x00, 0x01, 0x00, 0x01) // QTYPE A, QCLASS IN

	// Answer: pointer to qNameOffset, type A, class IN, ttl, rdlength=4, addr
	msg = append(msg, byte(0xC0|(qNameOffset>>8)), byte(qNameOffset&0xFF))
	msg = append(msg, 0x00, 0x01, 0x00, 0x01)
	msg = append(msg, 0x00, 0x00, 0x01, 0x2C) // TTL 300
	msg = append(msg, 0x00, 0x04)
	msg = append(msg, 93, 184, 216, 34)

	m, err := ParseMessage(msg)
	require.NoError(t, err)
	require.Len(t, m.Answer, 1)
	assert.Equal(t, Name("example.com."), m.Answer[0].RR.Owner())
}

func TestReadNameInMessageRejectsPointerLoop(t *testing.T) {
	msg := []byte{0xC0, 0x00} // pointer to itself
	_, _, err := readNameInMessage(msg, 0)
	assert.Error(t, err)
}

func TestReadNameInMessageRejectsForwardPointer(t *testing.T) {
	msg := []byte{0xC0, 0x05, 0, 0, 0, 0, 0}
	_, _, err := readNameInMessage(msg, 0)
	assert.ErrorIs(t, err, ErrInvalidPointer)
}

func TestHashQueryDeterministic(t *testing.T) {
	a := HashQuery(mustName(t, "example.com"), TypeA, ClassIN)
	b := HashQuery(mustName(t, "example.com"), TypeA, ClassIN)
	c := HashQuery(mustName(t, "example.org"), TypeA, ClassIN)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestNameIsSubdomainOf(t *testing.T) {
	assert.True(t, mustName(t, "www.example.com").IsSubdomainOf(mustName(t, "example.com")))
	assert.True(t, mustName(t, "example.com").IsSubdomainOf(mustName(t, "example.com")))
	assert.False(t, mustName(t, "example.com").IsSubdomainOf(mustName(t, "other.com")))
	assert.True(t, mustName(t, "example.com").IsSubdomainOf(Root))
}
