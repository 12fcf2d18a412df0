// Package resolver implements the Resolver Facade (spec.md §4.2): recursive
// queries used only for bootstrapping (SOA, NS, glue address lookups).
// Authoritative queries to individual NS endpoints never go through this
// facade — they use package transport directly with the RD bit cleared.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/miekg/dns"

	"github.com/tdns-go/tdns/internal/retry"
	"github.com/tdns-go/tdns/internal/rrdata"
	"github.com/tdns-go/tdns/internal/trace"
	"github.com/tdns-go/tdns/internal/transport"
)

// Facade issues recursive queries through a single configured recursive
// resolver, with retry and an optional response cache.
type Facade struct {
	server    transport.Endpoint
	transport transport.Transport
	Policy    retry.Policy
	Timeout   time.Duration
	Trace     *trace.Trace

	cache *cache
}

// New returns a Facade that queries server recursively via t.
func New(server transport.Endpoint, t transport.Transport) *Facade {
	return &Facade{
		server:    server,
		transport: t,
		Policy:    retry.DefaultPolicy(),
		Timeout:   5 * time.Second,
		cache:     newCache(DefaultCachePolicy()),
	}
}

// Query issues a recursive query for (recordType, name) and returns the
// answer section filtered to that type, or an empty RRset for
// NXDOMAIN/NODATA. Network and SERVFAIL failures are retried per f.Policy;
// any other failure is returned as-is.
func (f *Facade) Query(ctx context.Context, recordType rrdata.Type, name string) (rrdata.RRset, error) {
	name = rrdata.CanonicalName(name)

	if rs, ok := f.cache.get(name, recordType); ok {
		return rs, nil
	}

	resp, err := f.exchange(ctx, recordType, name)
	if err != nil {
		return rrdata.RRset{Name: name, Type: recordType}, err
	}

	rs := classify(resp, name, recordType)
	f.cache.put(rs, resp)
	return rs, nil
}

// QueryRaw issues a recursive query and returns the full parsed response,
// for callers (zone discovery) that need sections or record fields beyond
// what rrdata.RData models, such as a SOA's MNAME.
func (f *Facade) QueryRaw(ctx context.Context, recordType rrdata.Type, name string) (*dns.Msg, error) {
	return f.exchange(ctx, recordType, rrdata.CanonicalName(name))
}

// exchange performs one logical recursive query, transparently upgrading
// from UDP to TCP on truncation and retrying transient transport failures
// and SERVFAIL per f.Policy.
func (f *Facade) exchange(ctx context.Context, recordType rrdata.Type, name string) (*dns.Msg, error) {
	proto := transport.UDP

	for {
		resp, err := retry.Do(ctx, f.Policy, func(ctx context.Context) (*dns.Msg, retry.Outcome, error) {
			q := newQuestion(name, recordType, true)
			start := time.Now()
			resp, err := f.transport.Exchange(ctx, q, f.server, proto, f.Timeout)
			rtt := time.Since(start)
			f.Trace.Add(f.server.String(), fmt.Sprintf("%s %s", recordType, name), resp, rtt, err)

			if err != nil {
				var terr *transport.Error
				if asTransportError(err, &terr) {
					switch terr.Kind {
					case transport.FailureTruncated:
						return nil, retry.Fatal, err // handled by caller, not the retry loop
					case transport.FailureTimeout, transport.FailureNetwork:
						return nil, retry.Transient, err
					default:
						return nil, retry.Fatal, err
					}
				}
				return nil, retry.Fatal, err
			}

			if resp.Rcode == dns.RcodeServerFailure {
				return nil, retry.Transient, fmt.Errorf("resolver: SERVFAIL from %s", f.server)
			}
			return resp, retry.Ok, nil
		})

		if err != nil {
			var terr *transport.Error
			if asTransportError(err, &terr) && terr.Kind == transport.FailureTruncated && proto == transport.UDP {
				proto = transport.TCP
				continue
			}
			return nil, err
		}
		return resp, nil
	}
}

// classify turns a raw response into the facade's declared contract: an
// empty RRset for NXDOMAIN/NODATA (spec.md §4.2), otherwise the answer
// filtered to the requested type.
func classify(resp *dns.Msg, name string, typ rrdata.Type) rrdata.RRset {
	if resp.Rcode == dns.RcodeNameError {
		return rrdata.RRset{Name: name, Type: typ}
	}
	return rrdata.FromAnswer(resp, name, typ)
}

func newQuestion(name string, typ rrdata.Type, recursionDesired bool) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), uint16(typ))
	m.RecursionDesired = recursionDesired
	return m
}

// asTransportError reads the same way at both call sites above.
func asTransportError(err error, target **transport.Error) bool {
	return errors.As(err, target)
}
