// Package cookie implements the client side of RFC 7873/9018 DNS
// Cookies for internal/transport. A resolver client only ever needs two
// things: an 8-byte client cookie to present on every query, and the
// server cookie that resolver handed back last time, replayed on the
// next query so the pair looks consistent instead of like a fresh
// off-path guess. Secret rotation, BADCOOKIE issuance, and server-side
// cookie verification belong to an authoritative or recursive server
// answering queries, not to this client-only caller, so none of that is
// carried here.
package cookie

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/dchest/siphash"
)

var (
	ErrInvalidClientCookie = errors.New("cookie: client cookie must be 8 bytes")
	ErrInvalidServerCookie = errors.New("cookie: server cookie must be 8-32 bytes")
)

const (
	// Cookie sizes per RFC 7873 §4.
	clientCookieSize    = 8
	minServerCookieSize = 8
	maxServerCookieSize = 32
)

// Config enables cookie attachment for a Manager.
type Config struct {
	Enabled bool
}

// Manager generates a process-local client cookie and remembers, per
// resolver address, the most recent server cookie that resolver
// returned, so repeat queries to it replay the matching pair.
type Manager struct {
	enabled bool

	mu      sync.RWMutex
	learned map[string][]byte // resolver address -> last server cookie seen
}

// NewManager constructs a Manager. Cookie generation itself is free
// either way; Enabled only gates whether internal/transport bothers
// attaching the option at all.
func NewManager(cfg Config) (*Manager, error) {
	return &Manager{enabled: cfg.Enabled, learned: make(map[string][]byte)}, nil
}

// Enabled reports the manager's configured state.
func (m *Manager) Enabled() bool { return m.enabled }

// Remember stores the server cookie a resolver most recently returned,
// replacing whatever was learned for that resolver before. Cookies
// outside RFC 7873's 8-32 byte range are silently dropped rather than
// rejected outright, matching how a client should treat a malformed
// option on an otherwise usable response: ignore it, don't fail the
// query.
func (m *Manager) Remember(resolver string, serverCookie []byte) {
	if len(serverCookie) < minServerCookieSize || len(serverCookie) > maxServerCookieSize {
		return
	}
	cp := make([]byte, len(serverCookie))
	copy(cp, serverCookie)

	m.mu.Lock()
	m.learned[resolver] = cp
	m.mu.Unlock()
}

// ServerCookie returns the last server cookie learned for resolver, or
// nil if none has been seen yet (the first query to a resolver always
// goes out with a client-cookie-only option).
func (m *Manager) ServerCookie(resolver string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.learned[resolver]
}

// GenerateClientCookie derives an 8-byte client cookie from the client
// and server IPs plus process randomness, via SipHash-2-4 the way BIND
// 9 constructs its own client cookies.
func GenerateClientCookie(clientIP, serverIP []byte) [8]byte {
	var cookie [8]byte

	var random [8]byte
	_, _ = rand.Read(random[:])

	var key [16]byte
	_, _ = rand.Read(key[:])

	h := siphash.New(key[:])
	h.Write(clientIP)
	h.Write(serverIP)
	h.Write(random[:])

	binary.LittleEndian.PutUint64(cookie[:], h.Sum64())
	return cookie
}

// ParseCookie extracts the client and server cookie from an EDNS0
// COOKIE option's payload: <client-cookie (8 bytes)> [<server-cookie
// (8-32 bytes)>].
func ParseCookie(data []byte) (clientCookie [8]byte, serverCookie []byte, err error) {
	if len(data) < clientCookieSize {
		return clientCookie, nil, ErrInvalidClientCookie
	}
	copy(clientCookie[:], data[:clientCookieSize])

	if len(data) > clientCookieSize {
		serverCookie = make([]byte, len(data)-clientCookieSize)
		copy(serverCookie, data[clientCookieSize:])
		if len(serverCookie) < minServerCookieSize || len(serverCookie) > maxServerCookieSize {
			return clientCookie, nil, ErrInvalidServerCookie
		}
	}

	return clientCookie, serverCookie, nil
}

// FormatCookie builds an EDNS0 COOKIE option payload from a client
// cookie and an optional server cookie.
func FormatCookie(clientCookie [8]byte, serverCookie []byte) []byte {
	data := make([]byte, clientCookieSize+len(serverCookie))
	copy(data[:clientCookieSize], clientCookie[:])
	if len(serverCookie) > 0 {
		copy(data[clientCookieSize:], serverCookie)
	}
	return data
}
