// Package transport drives a proof.Builder against a real, operator-named
// recursive resolver over UDP or TCP. The builder itself never performs
// I/O (see proof.Builder's documentation); this package supplies the raw
// query/response exchange the builder's state machine expects, the way
// internal/resolver/recursive.go used to drive iterative resolution
// before that responsibility moved here.
package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dnsprover/dnsprover/internal/cookie"
	"github.com/dnsprover/dnsprover/internal/pool"
	"github.com/dnsprover/dnsprover/internal/random"
	"github.com/dnsprover/dnsprover/internal/wire"
	"github.com/dnsprover/dnsprover/proof"
	"github.com/dnsprover/dnsprover/validate"
)

// ErrMessageTooShort rejects a raw datagram before it is handed to
// proof.Builder, which assumes at least a full 12-byte header is present.
var ErrMessageTooShort = errors.New("transport: response shorter than a DNS header")

// optCookieCode is the EDNS0 OPTION-CODE for the COOKIE option (RFC 7873 §4).
const optCookieCode = 10

// Config controls how queries reach the resolver.
type Config struct {
	// Resolver is the trusted recursive resolver address ("host:port").
	// Per the proof builder's fixed txid=0, this must be a resolver the
	// caller trusts directly: this package never performs its own
	// iterative resolution.
	Resolver string

	// Network is "udp" or "tcp". UDP falls back to TCP on truncation
	// (the TC bit), matching RFC 1035 §4.2.1.
	Network string

	Timeout time.Duration

	// EnableCookies attaches an RFC 7873 DNS Cookie option to every
	// outbound query, using a per-process client cookie plus whatever
	// server cookie the resolver returned last time.
	EnableCookies bool

	// Ports, if set, is shared across every dial this Client makes, so a
	// caller running many BuildProof calls concurrently through
	// internal/batch never puts two in-flight exchanges on the same
	// ephemeral source port. Dials fall back to an unpooled random port
	// (random.SourcePort) when nil or when the pool is momentarily
	// exhausted.
	Ports *random.PortPool
}

// Client drives one or more proof builds against a configured resolver.
type Client struct {
	cfg          Config
	cookies      *cookie.Manager
	clientCookie [8]byte
}

// New constructs a Client, generating a fresh client cookie if enabled.
func New(cfg Config) (*Client, error) {
	if cfg.Network == "" {
		cfg.Network = "udp"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	c := &Client{cfg: cfg}
	if cfg.EnableCookies {
		mgr, err := cookie.NewManager(cookie.Config{Enabled: true})
		if err != nil {
			return nil, fmt.Errorf("transport: init cookies: %w", err)
		}
		c.cookies = mgr
		resolverHost, _, _ := net.SplitHostPort(cfg.Resolver)
		resolverIP := net.ParseIP(resolverHost)
		c.clientCookie = cookie.GenerateClientCookie(resolverIP, resolverIP)
	}
	return c, nil
}

// BuildProof drives proof.New/ProcessResponse/FinishProof to completion
// against the configured resolver, returning the finished proof bytes and
// the TTL downstream callers should cache it for.
func (c *Client) BuildProof(ctx context.Context, name wire.Name, qtype uint16) ([]byte, uint32, error) {
	b, query := proof.New(name, qtype)
	for b.AwaitingResponses() {
		resp, err := c.exchange(ctx, query)
		if err != nil {
			return nil, 0, err
		}
		next, err := b.ProcessResponse(resp)
		if err != nil {
			return nil, 0, err
		}
		if len(next) == 0 {
			break
		}
		// Only one query is ever pending synchronously in this simple
		// driver; if more than one follow-up query was produced, send
		// them in turn before looping back to AwaitingResponses.
		for i, q := range next {
			if i == len(next)-1 {
				query = q
				continue
			}
			r, err := c.exchange(ctx, q)
			if err != nil {
				return nil, 0, err
			}
			if _, err := b.ProcessResponse(r); err != nil {
				return nil, 0, err
			}
		}
	}
	return b.FinishProof()
}

// VerifyProof is a convenience wrapper so callers driving both build and
// verify through this package's Client don't need a second import.
func (c *Client) VerifyProof(proofBytes []byte, name wire.Name, qtype uint16) (validate.Result, error) {
	return validate.Verify(proofBytes, name, qtype)
}

// exchange sends one query and returns one response, attaching a DNS
// Cookie option first if enabled, falling back from UDP to TCP on
// truncation.
func (c *Client) exchange(ctx context.Context, query []byte) ([]byte, error) {
	if c.cfg.EnableCookies {
		query = attachCookie(query, c.cookieBytes())
	}

	network := c.cfg.Network
	resp, err := c.exchangeOnce(ctx, network, query)
	if err != nil {
		return nil, err
	}
	if network == "udp" && len(resp) >= 3 && resp[2]&0x02 != 0 { // TC bit
		resp, err = c.exchangeOnce(ctx, "tcp", query)
		if err != nil {
			return nil, err
		}
	}
	if c.cfg.EnableCookies {
		if sc := extractServerCookie(resp, c.clientCookie[:]); sc != nil {
			c.cookies.Remember(c.cfg.Resolver, sc)
		}
	}
	return resp, nil
}

// cookieBytes builds this query's COOKIE option payload: the client
// cookie this process always presents, plus whatever server cookie
// c.cfg.Resolver last returned, so the resolver sees a consistent pair
// on every query after the first instead of a bare client cookie every
// time.
func (c *Client) cookieBytes() []byte {
	return cookie.FormatCookie(c.clientCookie, c.cookies.ServerCookie(c.cfg.Resolver))
}

// extractServerCookie scans resp for an EDNS0 COOKIE option whose
// client-cookie half matches clientCookie, returning the server cookie
// portion if present. Resolvers are free to order their OPT RR options
// however they like, so this scans the raw response for the option tag
// rather than assuming attachCookie's own fixed trailing-OPT layout.
func extractServerCookie(resp []byte, clientCookie []byte) []byte {
	var codeBuf, lenBuf [2]byte
	binary.BigEndian.PutUint16(codeBuf[:], optCookieCode)

	for i := 0; i+4 <= len(resp); i++ {
		if resp[i] != codeBuf[0] || resp[i+1] != codeBuf[1] {
			continue
		}
		copy(lenBuf[:], resp[i+2:i+4])
		length := int(binary.BigEndian.Uint16(lenBuf[:]))
		start := i + 4
		if length < len(clientCookie) || start+length > len(resp) {
			continue
		}
		opt := resp[start : start+length]
		if !bytes.Equal(opt[:len(clientCookie)], clientCookie) {
			continue
		}
		if length == len(clientCookie) {
			return nil
		}
		return opt[len(clientCookie):]
	}
	return nil
}

func (c *Client) exchangeOnce(ctx context.Context, network string, query []byte) ([]byte, error) {
	addr, releasePort := c.localAddr(network)
	defer releasePort()

	dialer := net.Dialer{Timeout: c.cfg.Timeout, LocalAddr: addr}
	conn, err := dialer.DialContext(ctx, network, c.cfg.Resolver)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", network, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.cfg.Timeout))

	switch network {
	case "tcp":
		return exchangeTCP(conn, query)
	default:
		return exchangeUDP(conn, query)
	}
}

// exchangeTCP sends query with the 2-byte length prefix RFC 1035 §4.2.2
// requires and reads a length-prefixed response back.
func exchangeTCP(conn net.Conn, query []byte) ([]byte, error) {
	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], uint16(len(query)))
	if _, err := conn.Write(prefix[:]); err != nil {
		return nil, err
	}
	if _, err := conn.Write(query); err != nil {
		return nil, err
	}
	if _, err := readFull(conn, prefix[:]); err != nil {
		return nil, err
	}
	respLen := binary.BigEndian.Uint16(prefix[:])
	buf := pool.GetBuffer(int(respLen))
	defer pool.PutBuffer(buf)
	resp := buf[:respLen]
	if _, err := readFull(conn, resp); err != nil {
		return nil, err
	}
	out := make([]byte, respLen)
	copy(out, resp)
	return out, nil
}

func exchangeUDP(conn net.Conn, query []byte) ([]byte, error) {
	if _, err := conn.Write(query); err != nil {
		return nil, err
	}
	buf := pool.GetBuffer(pool.LargeBufferSize)
	defer pool.PutBuffer(buf)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}
	if n < 12 {
		return nil, ErrMessageTooShort
	}
	out := make([]byte, n)
	copy(out, buf[:n])
	return out, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// attachCookie splices an EDNS0 COOKIE option into the query's trailing
// OPT pseudo-RR, which proof.Builder always emits with RDLENGTH=0 as the
// very last bytes of the query (see proof package's encodeOPT).
func attachCookie(query []byte, clientCookie []byte) []byte {
	if len(query) < 2 {
		return query
	}
	opt := make([]byte, 0, 4+len(clientCookie))
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], optCookieCode)
	opt = append(opt, tmp[:]...)
	binary.BigEndian.PutUint16(tmp[:], uint16(len(clientCookie)))
	opt = append(opt, tmp[:]...)
	opt = append(opt, clientCookie...)

	out := make([]byte, len(query)-2, len(query)-2+2+len(opt))
	copy(out, query[:len(query)-2])
	binary.BigEndian.PutUint16(tmp[:], uint16(len(opt)))
	out = append(out, tmp[:]...)
	out = append(out, opt...)
	return out
}

// localAddr binds the outbound socket to a randomized ephemeral source
// port, defense in depth layered in front of the builder's fixed txid=0
// (Open Question (a)): even though correctness never depends on it, an
// off-path attacker guessing both txid and source port is strictly
// harder than guessing txid alone. When c.cfg.Ports is set the port comes
// from that shared pool, so concurrent exchanges across a batch run don't
// collide on the same port; the returned release func must be called once
// the dial is done with it. Falls back to an unpooled random port (and a
// no-op release) if no pool is configured or the pool is exhausted.
func (c *Client) localAddr(network string) (net.Addr, func()) {
	release := func() {}
	port := random.SourcePort()

	if c.cfg.Ports != nil {
		if p, err := c.cfg.Ports.Allocate(); err == nil {
			port = p
			release = func() { c.cfg.Ports.Release(port) }
		}
	}

	switch network {
	case "tcp":
		return &net.TCPAddr{Port: int(port)}, release
	default:
		return &net.UDPAddr{Port: int(port)}, release
	}
}
