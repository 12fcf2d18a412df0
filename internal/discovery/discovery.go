// Package discovery implements Zone Discovery (spec.md §4.4): derive the
// zone, find its primary master via SOA, find its NS set, and resolve each
// NS name to concrete authority endpoints.
package discovery

import (
	"context"
	"net"
	"strings"

	"github.com/miekg/dns"

	"github.com/tdns-go/tdns/internal/resolver"
	"github.com/tdns-go/tdns/internal/rrdata"
	"github.com/tdns-go/tdns/internal/tdnserr"
	"github.com/tdns-go/tdns/internal/transport"
)

// Authority is one resolved, non-excluded nameserver endpoint. The same NS
// name may yield several Authority values (A and AAAA glue).
type Authority struct {
	NSName   string
	Endpoint transport.Endpoint
}

// Result is the immutable output of one discovery run, held for the
// monitor's lifetime per spec.md §3.
type Result struct {
	Zone       string
	Primary    transport.Endpoint
	PrimaryNS  string
	Authorities []Authority
}

// Options configures a discovery run.
type Options struct {
	// ZoneOverride, if non-empty, is used verbatim instead of deriving the
	// zone from Name.
	ZoneOverride string
	// ExplicitServer, if set, is used as the primary master instead of the
	// SOA's MNAME.
	ExplicitServer *transport.Endpoint
	// Exclude lists addresses that must never be treated as authorities.
	Exclude []net.IP
	// IPv6 enables AAAA glue resolution in addition to A.
	IPv6 bool
	// Port is applied to every resolved endpoint (primary and authorities).
	Port int
}

// DeriveZone strips the leftmost label of name to produce its parent zone,
// unless override is non-empty, in which case override wins verbatim, per
// spec.md §4.4 step 1 and the invariant in spec.md §8.
func DeriveZone(name, override string) string {
	if override != "" {
		return rrdata.CanonicalName(override)
	}
	name = rrdata.CanonicalName(strings.TrimSuffix(name, "."))
	labels := dns.SplitDomainName(name)
	if len(labels) <= 1 {
		return rrdata.CanonicalName(name)
	}
	return rrdata.CanonicalName(strings.Join(labels[1:], "."))
}

// Discover runs the full zone-discovery sequence described in spec.md §4.4.
func Discover(ctx context.Context, facade *resolver.Facade, name string, opts Options) (Result, error) {
	zone := DeriveZone(name, opts.ZoneOverride)
	if !isSuffixOf(zone, rrdata.CanonicalName(name)) {
		return Result{}, tdnserr.Newf(tdnserr.Config, "zone %q is not a suffix of name %q", zone, name).WithZone(zone)
	}

	port := opts.Port
	if port == 0 {
		port = transport.DefaultPort
	}

	var primary transport.Endpoint
	var primaryNS string
	if opts.ExplicitServer != nil {
		primary = *opts.ExplicitServer
	} else {
		soaResp, err := facade.QueryRaw(ctx, rrdata.TypeSOA, zone)
		if err != nil {
			return Result{}, tdnserr.New(tdnserr.Discovery, err).WithZone(zone)
		}
		mname, ok := soaMName(soaResp, zone)
		if !ok {
			return Result{}, tdnserr.Newf(tdnserr.Discovery, "no SOA record for zone %q", zone).WithZone(zone)
		}
		primaryNS = mname
		addrs, err := resolveGlue(ctx, facade, mname, opts.IPv6)
		if err != nil {
			return Result{}, tdnserr.New(tdnserr.Discovery, err).WithZone(zone)
		}
		addrs = filterExcluded(addrs, opts.Exclude)
		if len(addrs) == 0 {
			return Result{}, tdnserr.Newf(tdnserr.Discovery, "primary master %q has no usable address", mname).WithZone(zone)
		}
		primary = transport.Endpoint{IP: addrs[0], Port: port}
	}

	nsResp, err := facade.QueryRaw(ctx, rrdata.TypeNS, zone)
	if err != nil {
		return Result{}, tdnserr.New(tdnserr.Discovery, err).WithZone(zone)
	}
	nsNames := nsNames(nsResp, zone)
	if len(nsNames) == 0 {
		return Result{}, tdnserr.Newf(tdnserr.Discovery, "zone %q has no NS records", zone).WithZone(zone)
	}

	var authorities []Authority
	for _, ns := range nsNames {
		addrs, err := resolveGlue(ctx, facade, ns, opts.IPv6)
		if err != nil {
			return Result{}, tdnserr.New(tdnserr.Discovery, err).WithZone(zone).WithServer(ns)
		}
		addrs = filterExcluded(addrs, opts.Exclude)
		for _, ip := range addrs {
			authorities = append(authorities, Authority{NSName: ns, Endpoint: transport.Endpoint{IP: ip, Port: port}})
		}
	}
	if len(authorities) == 0 {
		return Result{}, tdnserr.Newf(tdnserr.Discovery, "zone %q: every authority address was excluded or unresolvable", zone).WithZone(zone)
	}

	return Result{Zone: zone, Primary: primary, PrimaryNS: primaryNS, Authorities: authorities}, nil
}

// isSuffixOf reports whether zone is name or a DNS-label suffix of name, per
// the invariant in spec.md §3.
func isSuffixOf(zone, name string) bool {
	zone = strings.TrimSuffix(zone, ".")
	name = strings.TrimSuffix(name, ".")
	if zone == name {
		return true
	}
	return strings.HasSuffix(name, "."+zone)
}

func soaMName(msg *dns.Msg, zone string) (string, bool) {
	for _, rr := range msg.Answer {
		if soa, ok := rr.(*dns.SOA); ok && rrdata.CanonicalName(soa.Hdr.Name) == rrdata.CanonicalName(zone) {
			return rrdata.CanonicalName(soa.Ns), true
		}
	}
	return "", false
}

func nsNames(msg *dns.Msg, zone string) []string {
	seen := map[string]bool{}
	var names []string
	for _, rr := range msg.Answer {
		ns, ok := rr.(*dns.NS)
		if !ok || rrdata.CanonicalName(ns.Hdr.Name) != rrdata.CanonicalName(zone) {
			continue
		}
		name := rrdata.CanonicalName(ns.Ns)
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// resolveGlue resolves an NS name to its A (and, if ipv6 is true, AAAA)
// addresses via the resolver facade.
func resolveGlue(ctx context.Context, facade *resolver.Facade, name string, ipv6 bool) ([]net.IP, error) {
	var addrs []net.IP

	a, err := facade.Query(ctx, rrdata.TypeA, name)
	if err != nil {
		return nil, err
	}
	for _, it := range a.Items {
		addrs = append(addrs, it.A)
	}

	if ipv6 {
		aaaa, err := facade.Query(ctx, rrdata.TypeAAAA, name)
		if err != nil {
			return nil, err
		}
		for _, it := range aaaa.Items {
			addrs = append(addrs, it.AAAA)
		}
	}

	return addrs, nil
}

func filterExcluded(addrs []net.IP, exclude []net.IP) []net.IP {
	if len(exclude) == 0 {
		return addrs
	}
	var out []net.IP
	for _, ip := range addrs {
		excluded := false
		for _, ex := range exclude {
			if ip.Equal(ex) {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, ip)
		}
	}
	return out
}
