package proof

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnsprover/dnsprover/internal/wire"
)

func mustName(t *testing.T, s string) wire.Name {
	t.Helper()
	n, err := wire.ParseName(s)
	require.NoError(t, err)
	return n
}

func TestNewProducesWellFormedQuery(t *testing.T) {
	name := mustName(t, "example.com")
	b, query := New(name, wire.TypeA)

	require.True(t, b.AwaitingResponses())
	require.GreaterOrEqual(t, len(query), 12)

	assert.Equal(t, uint16(0), binary.BigEndian.Uint16(query[0:2]))     // TXID
	assert.Equal(t, uint16(0x0120), binary.BigEndian.Uint16(query[2:4])) // RD+AD
	assert.Equal(t, uint16(1), binary.BigEndian.Uint16(query[4:6]))      // QDCOUNT
	assert.Equal(t, uint16(0), binary.BigEndian.Uint16(query[6:8]))      // ANCOUNT
	assert.Equal(t, uint16(0), binary.BigEndian.Uint16(query[8:10]))     // NSCOUNT
	assert.Equal(t, uint16(1), binary.BigEndian.Uint16(query[10:12]))    // ARCOUNT
}

func TestFinishProofFailsWithPendingQueries(t *testing.T) {
	b, _ := New(mustName(t, "example.com"), wire.TypeA)
	_, _, err := b.FinishProof()
	assert.Error(t, err)
}

func TestProcessResponseWithoutPendingErrors(t *testing.T) {
	b, query := New(mustName(t, "example.com"), wire.TypeA)

	// query isn't a well-formed response (its QR bit is unset), but the
	// first call is still allowed to attempt parsing since one query is
	// pending; it must fail for a reason other than ErrNoResponseExpected.
	_, err := b.ProcessResponse(query)
	assert.NotEqual(t, ErrNoResponseExpected, err)

	_, err2 := b.ProcessResponse(query)
	assert.Equal(t, ErrNoResponseExpected, err2)
}

// buildResponse assembles a minimal, well-formed synthetic resolver
// response: header (matching txid/flags), one question, and the given
// answer/authority records.
func buildResponse(t *testing.T, name wire.Name, qtype uint16, answer, authority []wire.Record) []byte {
	t.Helper()
	var buf []byte
	var hdr [12]byte
	binary.BigEndian.PutUint16(hdr[0:2], 0)
	binary.BigEndian.PutUint16(hdr[2:4], 0x8120|0x0020) // QR+RD+AD, rcode 0
	binary.BigEndian.PutUint16(hdr[4:6], 1)
	binary.BigEndian.PutUint16(hdr[6:8], uint16(len(answer)))
	binary.BigEndian.PutUint16(hdr[8:10], uint16(len(authority)))
	binary.BigEndian.PutUint16(hdr[10:12], 0)
	buf = append(buf, hdr[:]...)

	buf = wire.AppendName(buf, name)
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], qtype)
	buf = append(buf, tmp[:]...)
	binary.BigEndian.PutUint16(tmp[:], wire.ClassIN)
	buf = append(buf, tmp[:]...)

	for _, rec := range answer {
		buf = wire.EncodeRR(buf, rec)
	}
	for _, rec := range authority {
		buf = wire.EncodeRR(buf, rec)
	}
	return buf
}

func TestProcessResponseHappyPathQueuesKeyLookups(t *testing.T) {
	name := mustName(t, "example.com")
	b, _ := New(name, wire.TypeA)

	answer := []wire.Record{
		{RR: wire.A{Name: name, Addr: [4]byte{1, 2, 3, 4}}, TTL: 300},
		{RR: wire.RRSIG{
			Name: name, TypeCovered: wire.TypeA, Algorithm: 8, Labels: 2,
			OrigTTL: 300, Expiration: 2000000000, Inception: 1000000000,
			KeyTag: 12345, SignerName: name, Signature: []byte{1, 2, 3},
		}, TTL: 300},
	}
	resp := buildResponse(t, name, wire.TypeA, answer, nil)

	newQueries, err := b.ProcessResponse(resp)
	require.NoError(t, err)
	require.Len(t, newQueries, 2) // DNSKEY + DS for example.com.
	assert.True(t, b.AwaitingResponses())
}

func TestProcessResponseNXDOMAINFirstQueryIsNoSuchName(t *testing.T) {
	name := mustName(t, "nonexistent.example.")
	b, _ := New(name, wire.TypeA)

	var hdr [12]byte
	binary.BigEndian.PutUint16(hdr[2:4], 0x8120|0x0020|0x0003) // QR+RD+AD+RCODE=3(NXDOMAIN)
	binary.BigEndian.PutUint16(hdr[4:6], 1)

	var resp []byte
	resp = append(resp, hdr[:]...)
	resp = wire.AppendName(resp, name)
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], wire.TypeA)
	resp = append(resp, tmp[:]...)
	binary.BigEndian.PutUint16(tmp[:], wire.ClassIN)
	resp = append(resp, tmp[:]...)

	_, err := b.ProcessResponse(resp)
	assert.Equal(t, ErrNoSuchName, err)
}

func TestProcessResponseUnauthenticatedWithoutADBit(t *testing.T) {
	name := mustName(t, "example.com")
	b, _ := New(name, wire.TypeA)

	resp := buildResponse(t, name, wire.TypeA, []wire.Record{
		{RR: wire.A{Name: name, Addr: [4]byte{1, 1, 1, 1}}, TTL: 60},
	}, nil)
	// Clear the AD bit (bit 0x0020) that buildResponse set.
	flags := binary.BigEndian.Uint16(resp[2:4])
	binary.BigEndian.PutUint16(resp[2:4], flags&^uint16(0x0020))

	_, err := b.ProcessResponse(resp)
	assert.Equal(t, ErrUnauthenticated, err)
}
