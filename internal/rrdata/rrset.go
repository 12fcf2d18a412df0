package rrdata

import (
	"sort"

	"github.com/miekg/dns"
)

// RRset is a set of records sharing (name, class IN, type), with an
// associated TTL. TTL is carried for construction purposes only; it is
// ignored by Equal, per spec.md §3.
type RRset struct {
	Name  string // canonical lowercase, fqdn
	Type  Type
	TTL   uint32
	Items []RData
}

// NewRRset returns an RRset with its name canonicalized.
func NewRRset(name string, typ Type, ttl uint32, items ...RData) RRset {
	return RRset{Name: CanonicalName(name), Type: typ, TTL: ttl, Items: items}
}

// FromAnswer extracts the RRset at (name, type) from a DNS response's answer
// section, de-duplicating and ignoring records for other names or types (a
// server may return a CNAME chain; only the exact (name, type) match counts,
// per spec.md §4.7's "edge cases").
func FromAnswer(msg *dns.Msg, name string, typ Type) RRset {
	name = CanonicalName(name)
	rs := RRset{Name: name, Type: typ}
	seen := map[string]bool{}
	for _, rr := range msg.Answer {
		hdr := rr.Header()
		if CanonicalName(hdr.Name) != name {
			continue
		}
		if Type(hdr.Rrtype) != typ {
			continue
		}
		rd := fromRR(rr)
		k := rd.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		rs.Items = append(rs.Items, rd)
		if rs.TTL == 0 || hdr.Ttl < rs.TTL {
			rs.TTL = hdr.Ttl
		}
	}
	return rs
}

// Equal reports set-equality of two RRsets' RData items, ignoring TTL and
// order and de-duplicating, per spec.md §3 and §8.
func (rs RRset) Equal(other RRset) bool {
	if CanonicalName(rs.Name) != CanonicalName(other.Name) || rs.Type != other.Type {
		return false
	}
	a := sortedKeys(rs.Items)
	b := sortedKeys(other.Items)
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

// Empty reports whether the RRset carries no records.
func (rs RRset) Empty() bool {
	return len(rs.Items) == 0
}

func sortedKeys(items []RData) []string {
	seen := map[string]bool{}
	keys := make([]string, 0, len(items))
	for _, it := range items {
		k := it.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
