// Package rrdata defines the DNS record data model shared by every component:
// RData, RRset, and the declarative Expectation the propagation monitor
// evaluates against observed state.
package rrdata

import (
	"fmt"
	"net"
	"strings"

	"github.com/miekg/dns"
)

// Type is a 16-bit DNS record type code, restricted by this client to the
// subset named in the specification.
type Type uint16

const (
	TypeA     Type = Type(dns.TypeA)
	TypeAAAA  Type = Type(dns.TypeAAAA)
	TypeTXT   Type = Type(dns.TypeTXT)
	TypeNS    Type = Type(dns.TypeNS)
	TypeCNAME Type = Type(dns.TypeCNAME)
	TypeSOA   Type = Type(dns.TypeSOA)
	TypeANY   Type = Type(dns.TypeANY)
)

// String returns the textual record type name (e.g. "A", "TXT").
func (t Type) String() string {
	if s, ok := dns.TypeToString[uint16(t)]; ok {
		return s
	}
	return fmt.Sprintf("TYPE%d", uint16(t))
}

// ParseType parses a textual record type name. It accepts exactly the types
// this client recognizes; unknown names are an error.
func ParseType(s string) (Type, error) {
	code, ok := dns.StringToType[strings.ToUpper(s)]
	if !ok {
		return 0, fmt.Errorf("rrdata: unrecognized record type %q", s)
	}
	switch Type(code) {
	case TypeA, TypeAAAA, TypeTXT, TypeNS, TypeCNAME, TypeSOA, TypeANY:
		return Type(code), nil
	default:
		return 0, fmt.Errorf("rrdata: unsupported record type %q", s)
	}
}

// RData is a tagged-variant record payload. Exactly one field is populated,
// selected by Type.
type RData struct {
	Type Type

	A     net.IP   // TypeA: 4-byte form
	AAAA  net.IP   // TypeAAAA: 16-byte form
	Txt   []string // TypeTXT: one or more character-strings
	Name  string   // TypeNS, TypeCNAME: a DNS name, canonical lowercase, fqdn
	Bytes []byte   // opaque fallback for any other wire-parsed RDATA
}

// NewA returns an A RData for a dotted-quad address string.
func NewA(addr string) (RData, error) {
	ip := net.ParseIP(addr)
	if ip == nil || ip.To4() == nil {
		return RData{}, fmt.Errorf("rrdata: invalid IPv4 address %q", addr)
	}
	return RData{Type: TypeA, A: ip.To4()}, nil
}

// NewAAAA returns an AAAA RData for an RFC 4291 text-form address.
func NewAAAA(addr string) (RData, error) {
	ip := net.ParseIP(addr)
	if ip == nil || ip.To4() != nil {
		return RData{}, fmt.Errorf("rrdata: invalid IPv6 address %q", addr)
	}
	return RData{Type: TypeAAAA, AAAA: ip.To16()}, nil
}

// NewTXT returns a TXT RData carrying a single character-string, matching
// spec.md's explicit limitation that commas are not representable in the
// CLI's data specifier grammar.
func NewTXT(value string) RData {
	return RData{Type: TypeTXT, Txt: []string{value}}
}

// key returns a canonical, comparable representation of the RData used for
// set-equality (RRset convergence ignores order, and DNS names compare
// case-insensitively).
func (r RData) key() string {
	switch r.Type {
	case TypeA:
		return "A:" + r.A.String()
	case TypeAAAA:
		return "AAAA:" + r.AAAA.String()
	case TypeTXT:
		return "TXT:" + strings.Join(r.Txt, "\x00")
	case TypeNS, TypeCNAME:
		return r.Type.String() + ":" + CanonicalName(r.Name)
	default:
		return fmt.Sprintf("BYTES:%x", r.Bytes)
	}
}

// Equal reports whether two RData values are the same record, independent of
// TTL (RData carries no TTL; TTL lives on the RRset).
func (r RData) Equal(other RData) bool {
	return r.Type == other.Type && r.key() == other.key()
}

// CanonicalName lowercases a DNS name for comparison and TSIG-signing
// purposes, per spec.md §3 ("rendered in canonical lowercase on the wire for
// TSIG signing").
func CanonicalName(name string) string {
	return dns.CanonicalName(name)
}

// fromRR converts a wire-parsed miekg/dns RR into an RData. Record types this
// client does not model for user-facing data end up in the opaque Bytes
// fallback via the RR's own packing, so comparisons still behave sanely.
func fromRR(rr dns.RR) RData {
	switch v := rr.(type) {
	case *dns.A:
		return RData{Type: TypeA, A: v.A.To4()}
	case *dns.AAAA:
		return RData{Type: TypeAAAA, AAAA: v.AAAA.To16()}
	case *dns.TXT:
		return RData{Type: TypeTXT, Txt: append([]string(nil), v.Txt...)}
	case *dns.NS:
		return RData{Type: TypeNS, Name: CanonicalName(v.Ns)}
	case *dns.CNAME:
		return RData{Type: TypeCNAME, Name: CanonicalName(v.Target)}
	default:
		buf := make([]byte, dns.Len(rr))
		n, err := dns.PackRR(rr, buf, 0, nil, false)
		if err != nil {
			return RData{Type: Type(rr.Header().Rrtype)}
		}
		return RData{Type: Type(rr.Header().Rrtype), Bytes: buf[:n]}
	}
}
