package transport

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachCookieAppendsOptionToEmptyOPT(t *testing.T) {
	// 12-byte header + empty OPT RR (root name, type=41, class, ttl, rdlength=0)
	query := []byte{
		0, 0, 1, 0x20, 0, 1, 0, 0, 0, 0, 0, 1, // header
		0,          // root name
		0, 41,      // TYPE=OPT
		0, 0,       // class
		0, 0, 0x80, 0, // ttl (ext-rcode/version/flags)
		0, 0, // rdlength=0
	}
	clientCookie := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	out := attachCookie(query, clientCookie)
	require.Greater(t, len(out), len(query))

	rdlenOff := len(query) - 2
	rdlen := binary.BigEndian.Uint16(out[rdlenOff : rdlenOff+2])
	assert.Equal(t, uint16(4+len(clientCookie)), rdlen)

	opt := out[rdlenOff+2:]
	assert.Equal(t, uint16(optCookieCode), binary.BigEndian.Uint16(opt[0:2]))
	assert.Equal(t, uint16(len(clientCookie)), binary.BigEndian.Uint16(opt[2:4]))
	assert.Equal(t, clientCookie, opt[4:])
}

func TestAttachCookieShortQueryIsNoop(t *testing.T) {
	assert.Equal(t, []byte{1}, attachCookie([]byte{1}, []byte{1, 2}))
}
