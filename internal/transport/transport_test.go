package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
)

type fakeExchanger struct {
	resp *dns.Msg
	err  error
	sent *dns.Msg
}

func (f *fakeExchanger) ExchangeContext(_ context.Context, m *dns.Msg, _ string) (*dns.Msg, time.Duration, error) {
	f.sent = m
	return f.resp, 0, f.err
}

func withFake(f *fakeExchanger) *client {
	return &client{newExchanger: func(Proto, time.Duration) exchanger { return f }}
}

func TestExchangeSurfacesTruncation(t *testing.T) {
	resp := new(dns.Msg)
	resp.Truncated = true
	c := withFake(&fakeExchanger{resp: resp})

	_, err := c.Exchange(context.Background(), new(dns.Msg), Endpoint{IP: net.ParseIP("127.0.0.1")}, UDP, time.Second)

	var terr *Error
	if !errors.As(err, &terr) || terr.Kind != FailureTruncated {
		t.Fatalf("expected FailureTruncated, got %v", err)
	}
}

func TestExchangeIgnoresTruncationOverTCP(t *testing.T) {
	resp := new(dns.Msg)
	resp.Truncated = true
	c := withFake(&fakeExchanger{resp: resp})

	_, err := c.Exchange(context.Background(), new(dns.Msg), Endpoint{IP: net.ParseIP("127.0.0.1")}, TCP, time.Second)
	if err != nil {
		t.Fatalf("unexpected error for TCP response: %v", err)
	}
}

func TestExchangeClassifiesNetworkError(t *testing.T) {
	c := withFake(&fakeExchanger{err: errors.New("connection refused")})

	_, err := c.Exchange(context.Background(), new(dns.Msg), Endpoint{IP: net.ParseIP("127.0.0.1")}, UDP, time.Second)

	var terr *Error
	if !errors.As(err, &terr) || terr.Kind != FailureNetwork {
		t.Fatalf("expected FailureNetwork, got %v", err)
	}
}

func TestExchangeClassifiesTsigVerificationFailure(t *testing.T) {
	c := withFake(&fakeExchanger{err: dns.ErrSecret})

	_, err := c.Exchange(context.Background(), new(dns.Msg), Endpoint{IP: net.ParseIP("127.0.0.1")}, UDP, time.Second)

	var terr *Error
	if !errors.As(err, &terr) || terr.Kind != FailureUnauthenticated {
		t.Fatalf("expected FailureUnauthenticated, got %v", err)
	}
}

func TestNewWiresSecretsIntoClient(t *testing.T) {
	secrets := map[string]string{"key.": "c2VjcmV0"}
	tr := New(secrets)

	c, ok := tr.(*client)
	if !ok {
		t.Fatalf("New returned %T, want *client", tr)
	}
	dc, ok := c.newExchanger(UDP, time.Second).(*dns.Client)
	if !ok {
		t.Fatalf("newExchanger returned %T, want *dns.Client", c.newExchanger(UDP, time.Second))
	}
	if dc.TsigSecret["key."] != "c2VjcmV0" {
		t.Fatalf("TsigSecret not wired: got %v", dc.TsigSecret)
	}
}

func TestEndpointStringDefaultsPort(t *testing.T) {
	e := Endpoint{IP: net.ParseIP("192.0.2.1")}
	if got, want := e.String(), "192.0.2.1:53"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
