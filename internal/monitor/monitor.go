// Package monitor implements the Propagation Monitor (spec.md §4.7): after an
// update is submitted, poll every discovered authority concurrently until
// each one's answer converges on the declared Expectation or the caller's
// deadline (carried on ctx) elapses. The deadline is the sole cancellation
// signal; an individual endpoint's failures never abort the others, mirroring
// how the teacher's controller runs one reconciliation pass per source
// without letting one source's error stop another.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"

	"github.com/tdns-go/tdns/internal/discovery"
	"github.com/tdns-go/tdns/internal/rrdata"
	"github.com/tdns-go/tdns/internal/trace"
	"github.com/tdns-go/tdns/internal/transport"
)

// State is an endpoint's place in the per-endpoint convergence state machine
// described in spec.md §4.7. Satisfied is terminal: once reached, an
// endpoint is never re-checked, per the monotonic-progress invariant.
type State int

const (
	Pending State = iota
	Retrying
	Mismatched
	Satisfied
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Retrying:
		return "retrying"
	case Mismatched:
		return "mismatched"
	case Satisfied:
		return "satisfied"
	default:
		return "unknown"
	}
}

// Status is the latest observed state of a single authority endpoint.
type Status struct {
	Authority discovery.Authority
	State     State
	Attempts  int
	LastErr   error
}

// Options configures a monitoring run.
type Options struct {
	// PollInterval is the base delay between checks against one endpoint.
	PollInterval time.Duration
	// Jitter is the fraction (0..1) of PollInterval randomized away, so
	// concurrently polled endpoints don't all fire in lockstep.
	Jitter float64
	// Timeout bounds each individual query attempt.
	Timeout time.Duration
	// PerNSSingleAddress, when true, checks only the first resolved address
	// per NS name instead of every glue address, per SPEC_FULL.md.
	PerNSSingleAddress bool
	Trace              *trace.Trace
}

// DefaultOptions returns sensible polling parameters.
func DefaultOptions() Options {
	return Options{PollInterval: 2 * time.Second, Jitter: 0.3, Timeout: 3 * time.Second}
}

// Report is the final outcome of a monitoring run.
type Report struct {
	Statuses  []Status
	Converged bool
}

// Run polls every authority in result concurrently, evaluating expectation
// against each one's answer, until every endpoint reaches Satisfied or
// ctx's deadline elapses. It returns once either condition is reached; it
// never returns early just because one endpoint is stuck in Retrying or
// Mismatched.
func Run(ctx context.Context, tr transport.Transport, authorities []discovery.Authority, expectation rrdata.Expectation, opts Options) Report {
	authorities = selectAuthorities(authorities, opts.PerNSSingleAddress)

	statuses := make([]Status, len(authorities))
	for i, a := range authorities {
		statuses[i] = Status{Authority: a, State: Pending}
	}

	var g errgroup.Group
	for i := range statuses {
		i := i
		g.Go(func() error {
			pollEndpoint(ctx, tr, &statuses[i], expectation, opts)
			return nil
		})
	}
	_ = g.Wait()

	converged := true
	for _, s := range statuses {
		if s.State != Satisfied {
			converged = false
			break
		}
	}
	return Report{Statuses: statuses, Converged: converged}
}

// pollEndpoint repeatedly checks one authority until it is Satisfied or ctx
// is done. It mutates *status in place so Run can observe live progress.
func pollEndpoint(ctx context.Context, tr transport.Transport, status *Status, expectation rrdata.Expectation, opts Options) {
	proto := transport.UDP
	for {
		if ctx.Err() != nil {
			return
		}

		status.Attempts++
		resp, err := tr.Exchange(ctx, authoritativeQuery(expectation), status.Authority.Endpoint, proto, opts.Timeout)
		if opts.Trace != nil {
			opts.Trace.Add(status.Authority.Endpoint.String(), fmt.Sprintf("%s %s", expectation.Type, expectation.Name), resp, 0, err)
		}

		if err != nil {
			var terr *transport.Error
			if errors.As(err, &terr) && terr.Kind == transport.FailureTruncated && proto == transport.UDP {
				proto = transport.TCP
				continue // immediate TCP retry, not a poll-interval wait
			}
			status.State = Retrying
			status.LastErr = err
			proto = transport.UDP
			if !sleep(ctx, jitteredInterval(opts)) {
				return
			}
			continue
		}

		if isTransientRcode(resp.Rcode) {
			status.State = Retrying
			status.LastErr = fmt.Errorf("authority %s returned %s", status.Authority.Endpoint, dns.RcodeToString[resp.Rcode])
			proto = transport.UDP
			if !sleep(ctx, jitteredInterval(opts)) {
				return
			}
			continue
		}

		if evaluate(resp, expectation) {
			status.State = Satisfied
			status.LastErr = nil
			return
		}

		status.State = Mismatched
		status.LastErr = nil
		proto = transport.UDP
		if !sleep(ctx, jitteredInterval(opts)) {
			return
		}
	}
}

// evaluate reports whether resp satisfies expectation, per spec.md §4.7's
// convergence predicates and edge cases: NODATA and NXDOMAIN both count as
// "absent"; a CNAME found where a different type was queried is always a
// mismatch, never accidentally satisfying an Absent expectation. Callers
// must route transient RCODEs (see isTransientRcode) to Retrying before
// reaching here; evaluate assumes resp is a genuine NOERROR or NXDOMAIN
// answer.
func evaluate(resp *dns.Msg, expectation rrdata.Expectation) bool {
	if expectation.Type != rrdata.TypeCNAME && hasCNAMEAt(resp, expectation.Name) {
		return false
	}

	observed := rrdata.FromAnswer(resp, expectation.Name, expectation.Type)
	wanted := rrdata.RRset{Name: expectation.Name, Type: expectation.Type, Items: expectation.Items}

	switch expectation.Kind {
	case rrdata.Is:
		return observed.Equal(wanted)
	case rrdata.Absent:
		return isAbsentResponse(resp, observed)
	case rrdata.Not:
		if isAbsentResponse(resp, observed) {
			return true
		}
		return !observed.Equal(wanted)
	default:
		return false
	}
}

// isTransientRcode reports whether rcode is neither a genuine answer
// (NOERROR) nor a genuine negative answer (NXDOMAIN), per spec.md §4.7: "An
// unexpected RCODE (SERVFAIL, REFUSED) is a transient error and enters
// Retrying."
func isTransientRcode(rcode int) bool {
	return rcode != dns.RcodeSuccess && rcode != dns.RcodeNameError
}

// isAbsentResponse reports whether resp is genuine evidence that
// expectation's (name, type) doesn't exist: an empty answer section and
// either NXDOMAIN, or NOERROR with an SOA in the authority section (RFC 2308
// NODATA). An empty answer section with neither is ambiguous and must not
// satisfy Absent.
func isAbsentResponse(resp *dns.Msg, observed rrdata.RRset) bool {
	if !observed.Empty() {
		return false
	}
	if resp.Rcode == dns.RcodeNameError {
		return true
	}
	return resp.Rcode == dns.RcodeSuccess && hasSOA(resp.Ns)
}

func hasSOA(rrs []dns.RR) bool {
	for _, rr := range rrs {
		if _, ok := rr.(*dns.SOA); ok {
			return true
		}
	}
	return false
}

func hasCNAMEAt(resp *dns.Msg, name string) bool {
	name = rrdata.CanonicalName(name)
	for _, rr := range resp.Answer {
		if _, ok := rr.(*dns.CNAME); ok && rrdata.CanonicalName(rr.Header().Name) == name {
			return true
		}
	}
	return false
}

func authoritativeQuery(expectation rrdata.Expectation) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(expectation.Name), uint16(expectation.Type))
	m.RecursionDesired = false
	return m
}

// selectAuthorities applies the --per-ns-single-address reduction: at most
// one endpoint per NS name, in discovery order.
func selectAuthorities(authorities []discovery.Authority, singleAddress bool) []discovery.Authority {
	if !singleAddress {
		return authorities
	}
	seen := map[string]bool{}
	var out []discovery.Authority
	for _, a := range authorities {
		if seen[a.NSName] {
			continue
		}
		seen[a.NSName] = true
		out = append(out, a)
	}
	return out
}

func jitteredInterval(opts Options) time.Duration {
	base := opts.PollInterval
	if base <= 0 {
		base = DefaultOptions().PollInterval
	}
	if opts.Jitter <= 0 {
		return base
	}
	spread := float64(base) * opts.Jitter
	offset := (rand.Float64()*2 - 1) * spread
	d := time.Duration(float64(base) + offset)
	if d < 0 {
		return 0
	}
	return d
}

// sleep waits for d or ctx cancellation, reporting which happened.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
