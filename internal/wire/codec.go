package wire

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
)

const headerSize = 12

// Anti-DoS bounds, grounded on the same style of mitigation a hardened
// packet parser applies (CVE-2024-8508-class compression/size attacks).
const (
	maxRRsPerSection = 4096
	maxMessageSize   = 65535
)

// Header is the 12-byte DNS message header (RFC 1035 §4.1.1).
type Header struct {
	ID      uint16
	QR      bool
	Opcode  uint8
	AA      bool
	TC      bool
	RD      bool
	RA      bool
	AD      bool
	CD      bool
	Rcode   uint8
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// Question is a single question-section entry.
type Question struct {
	Name  Name
	Type  uint16
	Class uint16
}

// Message is a fully decoded DNS message.
type Message struct {
	Header     Header
	Question   []Question
	Answer     []Record
	Authority  []Record
	Additional []Record
}

type cursor struct {
	buf                 []byte
	pos                 int
	compressionAllowed bool
}

func (c *cursor) remaining() int { return len(c.buf) - c.pos }

func (c *cursor) u8() (byte, error) {
	if c.remaining() < 1 {
		return 0, ErrTruncated
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

func (c *cursor) u16() (uint16, error) {
	if c.remaining() < 2 {
		return 0, ErrTruncated
	}
	v := binary.BigEndian.Uint16(c.buf[c.pos : c.pos+2])
	c.pos += 2
	return v, nil
}

func (c *cursor) u32() (uint32, error) {
	if c.remaining() < 4 {
		return 0, ErrTruncated
	}
	v := binary.BigEndian.Uint32(c.buf[c.pos : c.pos+4])
	c.pos += 4
	return v, nil
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if n < 0 || c.remaining() < n {
		return nil, ErrTruncated
	}
	out := make([]byte, n)
	copy(out, c.buf[c.pos:c.pos+n])
	c.pos += n
	return out, nil
}

// name reads a name using the cursor's compression policy.
func (c *cursor) name() (Name, error) {
	var n Name
	var next int
	var err error
	if c.compressionAllowed {
		n, next, err = readNameInMessage(c.buf, c.pos)
	} else {
		n, next, err = readNameNoCompression(c.buf, c.pos)
	}
	if err != nil {
		return "", err
	}
	c.pos = next
	return n, nil
}

// nameStrict reads a name that RFC 4034 requires never be compressed
// (RRSIG signer name, NSEC next owner name), regardless of the cursor's
// general policy.
func (c *cursor) nameStrict() (Name, error) {
	n, next, err := readNameNoCompression(c.buf, c.pos)
	if err != nil {
		return "", err
	}
	c.pos = next
	return n, nil
}

// ParseHeader decodes the fixed 12-byte DNS header.
func ParseHeader(msg []byte) (Header, error) {
	if len(msg) < headerSize {
		return Header{}, ErrTruncated
	}
	var h Header
	h.ID = binary.BigEndian.Uint16(msg[0:2])
	flags := binary.BigEndian.Uint16(msg[2:4])
	h.QR = flags&0x8000 != 0
	h.Opcode = uint8((flags >> 11) & 0x0F)
	h.AA = flags&0x0400 != 0
	h.TC = flags&0x0200 != 0
	h.RD = flags&0x0100 != 0
	h.RA = flags&0x0080 != 0
	h.AD = flags&0x0020 != 0
	h.CD = flags&0x0010 != 0
	h.Rcode = uint8(flags & 0x0F)
	h.QDCount = binary.BigEndian.Uint16(msg[4:6])
	h.ANCount = binary.BigEndian.Uint16(msg[6:8])
	h.NSCount = binary.BigEndian.Uint16(msg[8:10])
	h.ARCount = binary.BigEndian.Uint16(msg[10:12])
	return h, nil
}

// ParseMessage decodes a complete DNS message, following compression
// pointers within msg.
func ParseMessage(msg []byte) (*Message, error) {
	if len(msg) < headerSize || len(msg) > maxMessageSize {
		return nil, ErrTruncated
	}

	h, err := ParseHeader(msg)
	if err != nil {
		return nil, fmt.Errorf("wire: parse header: %w", err)
	}

	c := &cursor{buf: msg, pos: headerSize, compressionAllowed: true}

	m := &Message{Header: h}

	if int(h.QDCount) > maxRRsPerSection {
		return nil, fmt.Errorf("wire: too many questions")
	}
	m.Question = make([]Question, 0, h.QDCount)
	for i := 0; i < int(h.QDCount); i++ {
		q, err := parseQuestion(c)
		if err != nil {
			return nil, fmt.Errorf("wire: parse question %d: %w", i, err)
		}
		m.Question = append(m.Question, q)
	}

	if m.Answer, err = parseRRSection(c, int(h.ANCount)); err != nil {
		return nil, fmt.Errorf("wire: parse answer: %w", err)
	}
	if m.Authority, err = parseRRSection(c, int(h.NSCount)); err != nil {
		return nil, fmt.Errorf("wire: parse authority: %w", err)
	}
	if m.Additional, err = parseRRSection(c, int(h.ARCount)); err != nil {
		return nil, fmt.Errorf("wire: parse additional: %w", err)
	}

	return m, nil
}

// ParseAnswerAndAuthority decodes only the header, question, answer, and
// authority sections of msg, deliberately never looking at the additional
// section (which, in a real resolver response, typically carries an OPT
// pseudo-RR this library does not know how to decode). This is what the
// proof builder uses to read resolver responses: it only ever cares about
// signed data in the answer and authority sections.
func ParseAnswerAndAuthority(msg []byte) (Header, []Question, []Record, []Record, error) {
	if len(msg) < headerSize || len(msg) > maxMessageSize {
		return Header{}, nil, nil, nil, ErrTruncated
	}

	h, err := ParseHeader(msg)
	if err != nil {
		return Header{}, nil, nil, nil, fmt.Errorf("wire: parse header: %w", err)
	}

	c := &cursor{buf: msg, pos: headerSize, compressionAllowed: true}

	if int(h.QDCount) > maxRRsPerSection {
		return Header{}, nil, nil, nil, fmt.Errorf("wire: too many questions")
	}
	questions := make([]Question, 0, h.QDCount)
	for i := 0; i < int(h.QDCount); i++ {
		q, err := parseQuestion(c)
		if err != nil {
			return Header{}, nil, nil, nil, fmt.Errorf("wire: parse question %d: %w", i, err)
		}
		questions = append(questions, q)
	}

	answer, err := parseRRSection(c, int(h.ANCount))
	if err != nil {
		return Header{}, nil, nil, nil, fmt.Errorf("wire: parse answer: %w", err)
	}
	authority, err := parseRRSection(c, int(h.NSCount))
	if err != nil {
		return Header{}, nil, nil, nil, fmt.Errorf("wire: parse authority: %w", err)
	}

	return h, questions, answer, authority, nil
}

func parseQuestion(c *cursor) (Question, error) {
	name, err := c.name()
	if err != nil {
		return Question{}, err
	}
	qtype, err := c.u16()
	if err != nil {
		return Question{}, err
	}
	qclass, err := c.u16()
	if err != nil {
		return Question{}, err
	}
	return Question{Name: name, Type: qtype, Class: qclass}, nil
}

func parseRRSection(c *cursor, count int) ([]Record, error) {
	if count > maxRRsPerSection {
		return nil, fmt.Errorf("wire: too many resource records")
	}
	out := make([]Record, 0, count)
	for i := 0; i < count; i++ {
		rec, err := parseOneRR(c)
		if err != nil {
			return nil, fmt.Errorf("wire: parse RR %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// parseOneRR decodes a single resource record at the cursor's current
// position, honoring the cursor's compression policy for the owner name.
// Unsupported types and non-IN classes fail to parse.
func parseOneRR(c *cursor) (Record, error) {
	owner, err := c.name()
	if err != nil {
		return Record{}, fmt.Errorf("owner name: %w", err)
	}
	rrtype, err := c.u16()
	if err != nil {
		return Record{}, err
	}
	class, err := c.u16()
	if err != nil {
		return Record{}, err
	}
	if class != ClassIN {
		return Record{}, ErrUnsupportedClass
	}
	ttl, err := c.u32()
	if err != nil {
		return Record{}, err
	}
	rdlength, err := c.u16()
	if err != nil {
		return Record{}, err
	}
	rdataEnd := c.pos + int(rdlength)
	if rdataEnd > len(c.buf) {
		return Record{}, ErrTruncated
	}

	rr, err := decodeRData(c, owner, rrtype, rdataEnd)
	if err != nil {
		return Record{}, fmt.Errorf("rdata (type %d): %w", rrtype, err)
	}
	if c.pos != rdataEnd {
		return Record{}, fmt.Errorf("wire: rdata for type %d did not consume exactly RDLENGTH", rrtype)
	}

	return Record{RR: rr, TTL: ttl}, nil
}

func decodeRData(c *cursor, owner Name, rrtype uint16, rdataEnd int) (RR, error) {
	switch rrtype {
	case TypeA:
		b, err := c.bytes(rdataEnd - c.pos)
		if err != nil {
			return nil, err
		}
		if len(b) != 4 {
			return nil, fmt.Errorf("wire: bad A rdata length %d", len(b))
		}
		var rr A
		rr.Name = owner
		copy(rr.Addr[:], b)
		return rr, nil

	case TypeAAAA:
		b, err := c.bytes(rdataEnd - c.pos)
		if err != nil {
			return nil, err
		}
		if len(b) != 16 {
			return nil, fmt.Errorf("wire: bad AAAA rdata length %d", len(b))
		}
		var rr AAAA
		rr.Name = owner
		copy(rr.Addr[:], b)
		return rr, nil

	case TypeNS:
		host, err := c.name()
		if err != nil {
			return nil, err
		}
		return NS{Name: owner, Host: host}, nil

	case TypeCNAME:
		target, err := c.name()
		if err != nil {
			return nil, err
		}
		return CNAME{Name: owner, Target: target}, nil

	case TypeDNAME:
		target, err := c.name()
		if err != nil {
			return nil, err
		}
		return DNAME{Name: owner, Target: target}, nil

	case TypeTXT:
		var strs [][]byte
		for c.pos < rdataEnd {
			n, err := c.u8()
			if err != nil {
				return nil, err
			}
			s, err := c.bytes(int(n))
			if err != nil {
				return nil, err
			}
			strs = append(strs, s)
		}
		return TXT{Name: owner, Strings: strs}, nil

	case TypeTLSA:
		usage, err := c.u8()
		if err != nil {
			return nil, err
		}
		selector, err := c.u8()
		if err != nil {
			return nil, err
		}
		matching, err := c.u8()
		if err != nil {
			return nil, err
		}
		data, err := c.bytes(rdataEnd - c.pos)
		if err != nil {
			return nil, err
		}
		return TLSA{Name: owner, Usage: usage, Selector: selector, MatchingType: matching, Data: data}, nil

	case TypeDNSKEY:
		flags, err := c.u16()
		if err != nil {
			return nil, err
		}
		protocol, err := c.u8()
		if err != nil {
			return nil, err
		}
		algorithm, err := c.u8()
		if err != nil {
			return nil, err
		}
		key, err := c.bytes(rdataEnd - c.pos)
		if err != nil {
			return nil, err
		}
		return DNSKEY{Name: owner, Flags: flags, Protocol: protocol, Algorithm: algorithm, PublicKey: key}, nil

	case TypeDS:
		keytag, err := c.u16()
		if err != nil {
			return nil, err
		}
		algorithm, err := c.u8()
		if err != nil {
			return nil, err
		}
		digestType, err := c.u8()
		if err != nil {
			return nil, err
		}
		digest, err := c.bytes(rdataEnd - c.pos)
		if err != nil {
			return nil, err
		}
		return DS{Name: owner, KeyTag: keytag, Algorithm: algorithm, DigestType: digestType, Digest: digest}, nil

	case TypeRRSIG:
		typeCovered, err := c.u16()
		if err != nil {
			return nil, err
		}
		algorithm, err := c.u8()
		if err != nil {
			return nil, err
		}
		labels, err := c.u8()
		if err != nil {
			return nil, err
		}
		origTTL, err := c.u32()
		if err != nil {
			return nil, err
		}
		expiration, err := c.u32()
		if err != nil {
			return nil, err
		}
		inception, err := c.u32()
		if err != nil {
			return nil, err
		}
		keyTag, err := c.u16()
		if err != nil {
			return nil, err
		}
		signer, err := c.nameStrict()
		if err != nil {
			return nil, err
		}
		sig, err := c.bytes(rdataEnd - c.pos)
		if err != nil {
			return nil, err
		}
		return RRSIG{
			Name: owner, TypeCovered: typeCovered, Algorithm: algorithm, Labels: labels,
			OrigTTL: origTTL, Expiration: expiration, Inception: inception,
			KeyTag: keyTag, SignerName: signer, Signature: sig,
		}, nil

	case TypeNSEC:
		next, err := c.nameStrict()
		if err != nil {
			return nil, err
		}
		b, err := c.bytes(rdataEnd - c.pos)
		if err != nil {
			return nil, err
		}
		types, err := decodeTypeBitmap(b)
		if err != nil {
			return nil, err
		}
		return NSEC{Name: owner, NextName: next, Types: types}, nil

	case TypeNSEC3:
		hashAlg, err := c.u8()
		if err != nil {
			return nil, err
		}
		flags, err := c.u8()
		if err != nil {
			return nil, err
		}
		iterations, err := c.u16()
		if err != nil {
			return nil, err
		}
		saltLen, err := c.u8()
		if err != nil {
			return nil, err
		}
		salt, err := c.bytes(int(saltLen))
		if err != nil {
			return nil, err
		}
		hashLen, err := c.u8()
		if err != nil {
			return nil, err
		}
		hashedOwner, err := c.bytes(int(hashLen))
		if err != nil {
			return nil, err
		}
		b, err := c.bytes(rdataEnd - c.pos)
		if err != nil {
			return nil, err
		}
		types, err := decodeTypeBitmap(b)
		if err != nil {
			return nil, err
		}
		return NSEC3{
			Name: owner, HashAlgorithm: hashAlg, Flags: flags, Iterations: iterations,
			Salt: salt, NextHashedOwner: hashedOwner, Types: types,
		}, nil

	default:
		return nil, ErrUnsupportedType
	}
}

// EncodeRR appends the canonical wire encoding of rec (uncompressed,
// lowercased owner name, class IN, RDLENGTH-prefixed RDATA) to buf. This
// is the only form the RFC 9102 AuthenticationChain proof stream uses.
func EncodeRR(buf []byte, rec Record) []byte {
	buf = writeName(buf, rec.RR.Owner())
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], rec.RR.Type())
	buf = append(buf, tmp[:]...)
	binary.BigEndian.PutUint16(tmp[:], ClassIN)
	buf = append(buf, tmp[:]...)
	var tmp4 [4]byte
	binary.BigEndian.PutUint32(tmp4[:], rec.TTL)
	buf = append(buf, tmp4[:]...)

	rdataStart := len(buf) + 2 // reserve 2 bytes for rdlength, filled below
	buf = append(buf, 0, 0)
	buf = rec.RR.encodeRData(buf)
	rdlen := len(buf) - rdataStart
	binary.BigEndian.PutUint16(buf[rdataStart-2:rdataStart], uint16(rdlen))
	return buf
}

// ParseRRStream decodes an RFC 9102 AuthenticationChain: a concatenation
// of RRs in uncompressed wire form with no outer framing, read until the
// input is exhausted.
func ParseRRStream(data []byte) ([]Record, error) {
	c := &cursor{buf: data, pos: 0, compressionAllowed: false}
	var out []Record
	for c.pos < len(data) {
		rec, err := parseOneRR(c)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// HashQuery computes a fast, non-cryptographic cache-key hash for a
// (name, type, class) query tuple. This is purely a bucketing aid (used
// by internal/cache) and carries no authentication weight.
func HashQuery(name Name, qtype, qclass uint16) uint64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	var tmp [4]byte
	binary.BigEndian.PutUint16(tmp[0:2], qtype)
	binary.BigEndian.PutUint16(tmp[2:4], qclass)
	h.Write(tmp[:])
	return h.Sum64()
}
