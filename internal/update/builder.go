package update

import (
	"fmt"

	"github.com/miekg/dns"

	"github.com/tdns-go/tdns/internal/rrdata"
	"github.com/tdns-go/tdns/internal/tdnserr"
)

// Build assembles an RFC 2136 UPDATE message for spec, per spec.md §4.5.
// ZOCOUNT, PRCOUNT, and UPCOUNT fall out of github.com/miekg/dns computing
// section lengths at Pack time; this function only needs to put the right
// records in the right sections.
func Build(spec Spec) (*dns.Msg, error) {
	if spec.Zone == "" {
		return nil, tdnserr.Newf(tdnserr.Config, "update: zone is required")
	}
	name := dns.Fqdn(spec.Name)

	m := new(dns.Msg)
	m.SetUpdate(dns.Fqdn(spec.Zone))

	switch spec.Kind {
	case Create:
		m.Answer = append(m.Answer, rrsetDoesNotExist(name, spec.Type))
		rrs, err := toRRs(name, spec.Type, spec.TTL, dns.ClassINET, spec.Items)
		if err != nil {
			return nil, err
		}
		m.Ns = append(m.Ns, rrs...)

	case Append:
		rrs, err := toRRs(name, spec.Type, spec.TTL, dns.ClassINET, spec.Items)
		if err != nil {
			return nil, err
		}
		m.Ns = append(m.Ns, rrs...)

	case DeleteRRset:
		m.Ns = append(m.Ns, &dns.RR_Header{Name: name, Rrtype: uint16(spec.Type), Class: dns.ClassANY, Ttl: 0})

	case DeleteName:
		m.Ns = append(m.Ns, &dns.RR_Header{Name: name, Rrtype: dns.TypeANY, Class: dns.ClassANY, Ttl: 0})

	case DeleteRecords:
		rrs, err := toRRs(name, spec.Type, 0, dns.ClassNONE, spec.Items)
		if err != nil {
			return nil, err
		}
		m.Ns = append(m.Ns, rrs...)

	default:
		return nil, tdnserr.Newf(tdnserr.Config, "update: unknown operation kind %d", spec.Kind)
	}

	return m, nil
}

// rrsetDoesNotExist builds the RFC 2136 §2.4.3 prerequisite "no RRset of
// this type exists at this name": class NONE, the type in question, TTL 0,
// empty RDATA.
func rrsetDoesNotExist(name string, typ rrdata.Type) dns.RR {
	return &dns.RR_Header{Name: name, Rrtype: uint16(typ), Class: dns.ClassNONE, Ttl: 0}
}

// toRRs converts RData items into concrete miekg/dns RRs carrying the given
// class and TTL.
func toRRs(name string, typ rrdata.Type, ttl uint32, class uint16, items []rrdata.RData) ([]dns.RR, error) {
	rrs := make([]dns.RR, 0, len(items))
	for _, item := range items {
		hdr := dns.RR_Header{Name: name, Rrtype: uint16(typ), Class: class, Ttl: ttl}
		rr, err := toRR(hdr, item)
		if err != nil {
			return nil, err
		}
		rrs = append(rrs, rr)
	}
	return rrs, nil
}

func toRR(hdr dns.RR_Header, item rrdata.RData) (dns.RR, error) {
	switch item.Type {
	case rrdata.TypeA:
		return &dns.A{Hdr: hdr, A: item.A}, nil
	case rrdata.TypeAAAA:
		return &dns.AAAA{Hdr: hdr, AAAA: item.AAAA}, nil
	case rrdata.TypeTXT:
		return &dns.TXT{Hdr: hdr, Txt: item.Txt}, nil
	case rrdata.TypeNS:
		return &dns.NS{Hdr: hdr, Ns: dns.Fqdn(item.Name)}, nil
	case rrdata.TypeCNAME:
		return &dns.CNAME{Hdr: hdr, Target: dns.Fqdn(item.Name)}, nil
	default:
		return nil, fmt.Errorf("update: unsupported RData type %s for update section", item.Type)
	}
}
