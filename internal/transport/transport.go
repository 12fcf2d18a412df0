// Package transport sends a single DNS message to a single endpoint and
// parses the reply. It is the "reusable DNS transport" spec.md §1 treats as
// an external collaborator: stateless, safe for concurrent use, and built
// entirely on github.com/miekg/dns's wire codec rather than reimplementing
// one.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// Proto selects the network protocol for a single exchange.
type Proto string

const (
	UDP Proto = "udp"
	TCP Proto = "tcp"
)

// Endpoint is a concrete (IP, port) a DNS message can be sent to.
type Endpoint struct {
	IP   net.IP
	Port int
}

// DefaultPort is used when a caller doesn't specify one.
const DefaultPort = 53

// String renders the endpoint as a "host:port" pair suitable for dns.Client.
func (e Endpoint) String() string {
	port := e.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(e.IP.String(), fmt.Sprintf("%d", port))
}

// FailureKind classifies a transport-level failure so the retry driver (see
// package retry) can decide whether to retry.
type FailureKind int

const (
	// FailureNetwork covers connection refused, unreachable, etc.
	FailureNetwork FailureKind = iota
	// FailureTimeout means the per-attempt timeout elapsed.
	FailureTimeout
	// FailureTruncated means a UDP response had TC set.
	FailureTruncated
	// FailureMalformed means the reply could not be parsed.
	FailureMalformed
	// FailureUnauthenticated means a TSIG-signed exchange failed signature
	// verification (bad MAC, unknown key, bad algorithm, or clock skew
	// outside the fudge window). Never retried: a forged or tampered
	// response won't become valid on a later attempt.
	FailureUnauthenticated
)

// tsigVerificationErrors are the github.com/miekg/dns sentinel errors its
// Client returns when TSIG verification of a response fails.
var tsigVerificationErrors = []error{
	dns.ErrAlg, dns.ErrAuth, dns.ErrKeyAlg, dns.ErrKeySize,
	dns.ErrNoSig, dns.ErrSecret, dns.ErrSig, dns.ErrTime,
}

func isTsigVerificationError(err error) bool {
	for _, sentinel := range tsigVerificationErrors {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// Error wraps a transport failure with its classification.
type Error struct {
	Kind FailureKind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Transport sends a DNS message and returns the parsed response.
type Transport interface {
	Exchange(ctx context.Context, query *dns.Msg, endpoint Endpoint, proto Proto, timeout time.Duration) (*dns.Msg, error)
}

// exchanger abstracts dns.Client.ExchangeContext for testability, matching
// the dnsExchanger seam the teacher's rfc2136 provider uses.
type exchanger interface {
	ExchangeContext(ctx context.Context, m *dns.Msg, addr string) (*dns.Msg, time.Duration, error)
}

// client is the production Transport, built on github.com/miekg/dns.
type client struct {
	secrets      map[string]string
	newExchanger func(proto Proto, timeout time.Duration) exchanger
}

// New returns a Transport backed by github.com/miekg/dns's client. secrets,
// when non-nil, is the TSIG key-name-to-base64-secret map (see
// update.SecretMap) the underlying dns.Client uses both to sign outgoing
// TSIG-marked messages and to verify the MAC on signed responses; pass nil
// when no TSIG key is configured.
func New(secrets map[string]string) Transport {
	c := &client{secrets: secrets}
	c.newExchanger = func(proto Proto, timeout time.Duration) exchanger {
		return &dns.Client{
			Net:        string(proto),
			Timeout:    timeout,
			TsigSecret: c.secrets,
		}
	}
	return c
}

// Exchange sends query to endpoint over proto, applying timeout as the
// per-attempt deadline. A UDP response with TC set is surfaced as a
// FailureTruncated error rather than being silently accepted, so callers can
// retry over TCP per spec.md §4.1.
func (c *client) Exchange(ctx context.Context, query *dns.Msg, endpoint Endpoint, proto Proto, timeout time.Duration) (*dns.Msg, error) {
	dc := c.newExchanger(proto, timeout)

	attemptCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, _, err := dc.ExchangeContext(attemptCtx, query, endpoint.String())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &Error{Kind: FailureTimeout, Err: fmt.Errorf("query to %s timed out: %w", endpoint, err)}
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &Error{Kind: FailureTimeout, Err: fmt.Errorf("query to %s timed out: %w", endpoint, err)}
		}
		if isTsigVerificationError(err) {
			return nil, &Error{Kind: FailureUnauthenticated, Err: fmt.Errorf("TSIG verification of response from %s failed: %w", endpoint, err)}
		}
		return nil, &Error{Kind: FailureNetwork, Err: fmt.Errorf("query to %s: %w", endpoint, err)}
	}
	if resp == nil {
		return nil, &Error{Kind: FailureMalformed, Err: fmt.Errorf("empty response from %s", endpoint)}
	}
	if proto == UDP && resp.Truncated {
		return nil, &Error{Kind: FailureTruncated, Err: fmt.Errorf("truncated UDP response from %s", endpoint)}
	}
	return resp, nil
}
