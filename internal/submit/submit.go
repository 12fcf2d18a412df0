// Package submit implements the Update Submitter (spec.md §4.6): sends a
// built RFC 2136 UPDATE message to the zone's primary master and classifies
// the response, grounded on the teacher's rfc2136 provider's
// ExchangeContext-and-check-Rcode shape.
package submit

import (
	"context"
	"errors"
	"time"

	"github.com/miekg/dns"

	"github.com/tdns-go/tdns/internal/retry"
	"github.com/tdns-go/tdns/internal/tdnserr"
	"github.com/tdns-go/tdns/internal/transport"
)

// udpMessageThreshold is the wire size above which an UPDATE is sent over
// TCP instead of UDP, per spec.md §4.6. 512 is the traditional non-EDNS0
// UDP payload limit.
const udpMessageThreshold = 512

// Options configures a single submission.
type Options struct {
	Endpoint    transport.Endpoint
	ForceTCP    bool
	Timeout     time.Duration
	RetryPolicy retry.Policy
}

// Result reports the outcome of a successful submission.
type Result struct {
	Rcode    int
	Verified bool // true when the response carried a verified TSIG
}

// Submit sends msg to opts.Endpoint, retrying transient failures per
// opts.RetryPolicy, and classifies the response per spec.md §4.6:
// NOERROR is success; YXDOMAIN/YXRRSET/NXRRSET/NOTAUTH/NOTZONE/REFUSED/FORMERR
// are fatal rejections; SERVFAIL is retried as transient; a TSIG
// verification failure is a non-retryable protocol error.
func Submit(ctx context.Context, tr transport.Transport, msg *dns.Msg, opts Options) (Result, error) {
	opts = applyDefaults(opts)

	proto := transport.UDP
	if opts.ForceTCP || msg.Len() > udpMessageThreshold {
		proto = transport.TCP
	}

	op := func(ctx context.Context) (Result, retry.Outcome, error) {
		resp, err := tr.Exchange(ctx, msg, opts.Endpoint, proto, opts.Timeout)
		if err != nil {
			result, outcome, cerr := classifyTransportError(err, proto)
			var terr *transport.Error
			if errors.As(err, &terr) && terr.Kind == transport.FailureTruncated && proto == transport.UDP {
				proto = transport.TCP
			}
			return result, outcome, cerr
		}
		return classifyResponse(msg, resp)
	}

	return retry.Do(ctx, opts.RetryPolicy, op)
}

// applyDefaults fills in zero-value Options fields, letting callers omit
// Timeout and RetryPolicy entirely.
func applyDefaults(opts Options) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.RetryPolicy == (retry.Policy{}) {
		opts.RetryPolicy = retry.DefaultPolicy()
	}
	return opts
}

// classifyTransportError maps a transport.Error to a retry Outcome. A
// truncated UDP response upgrades to TCP on the next attempt rather than
// failing outright.
func classifyTransportError(err error, proto transport.Proto) (Result, retry.Outcome, error) {
	var terr *transport.Error
	if !errors.As(err, &terr) {
		return Result{}, retry.Fatal, tdnserr.New(tdnserr.Protocol, err)
	}
	switch terr.Kind {
	case transport.FailureTimeout, transport.FailureNetwork:
		return Result{}, retry.Transient, err
	case transport.FailureTruncated:
		if proto == transport.UDP {
			return Result{}, retry.Transient, err
		}
		return Result{}, retry.Fatal, tdnserr.New(tdnserr.Protocol, err)
	case transport.FailureUnauthenticated:
		// A bad or forged MAC never becomes valid on a retry.
		return Result{}, retry.Fatal, tdnserr.New(tdnserr.Protocol, err)
	default:
		return Result{}, retry.Fatal, tdnserr.New(tdnserr.Protocol, err)
	}
}

// classifyResponse inspects an UPDATE reply's RCODE and TSIG verification
// state. By the time a response reaches here its TSIG MAC has already been
// cryptographically verified by the transport's dns.Client (see
// transport.FailureUnauthenticated); this only checks that a signed request
// actually got a signed reply back.
func classifyResponse(query, resp *dns.Msg) (Result, retry.Outcome, error) {
	signed := query.IsTsig() != nil
	if signed && resp.IsTsig() == nil {
		return Result{}, retry.Fatal, tdnserr.Newf(tdnserr.Protocol, "response to signed update was not signed")
	}

	switch resp.Rcode {
	case dns.RcodeSuccess:
		return Result{Rcode: resp.Rcode, Verified: signed}, retry.Ok, nil
	case dns.RcodeServerFailure:
		return Result{}, retry.Transient, tdnserr.Newf(tdnserr.UpdateRejected, "primary master returned %s", dns.RcodeToString[resp.Rcode])
	case dns.RcodeYXDomain, dns.RcodeYXRrset, dns.RcodeNXRrset, dns.RcodeNotAuth, dns.RcodeNotZone, dns.RcodeRefused, dns.RcodeFormatError, dns.RcodeNameError:
		return Result{}, retry.Fatal, tdnserr.Newf(tdnserr.UpdateRejected, "primary master rejected update: %s", dns.RcodeToString[resp.Rcode])
	default:
		return Result{}, retry.Fatal, tdnserr.Newf(tdnserr.UpdateRejected, "primary master returned unexpected rcode %s", dns.RcodeToString[resp.Rcode])
	}
}
