package resolver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"

	"github.com/tdns-go/tdns/internal/retry"
	"github.com/tdns-go/tdns/internal/rrdata"
	"github.com/tdns-go/tdns/internal/transport"
)

type fakeTransport struct {
	responses []fakeResponse
	calls     int
}

type fakeResponse struct {
	proto transport.Proto
	resp  *dns.Msg
	err   error
}

func (f *fakeTransport) Exchange(_ context.Context, _ *dns.Msg, _ transport.Endpoint, proto transport.Proto, _ time.Duration) (*dns.Msg, error) {
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	r := f.responses[i]
	return r.resp, r.err
}

func nxdomain() *dns.Msg {
	m := new(dns.Msg)
	m.Rcode = dns.RcodeNameError
	return m
}

func answerA(name, ip string, ttl uint32) *dns.Msg {
	m := new(dns.Msg)
	m.Rcode = dns.RcodeSuccess
	rr, _ := dns.NewRR(name + " " + itoa(ttl) + " IN A " + ip)
	m.Answer = []dns.RR{rr}
	return m
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	digits := []byte{}
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	return string(digits)
}

func TestFacadeQueryReturnsEmptyForNXDOMAIN(t *testing.T) {
	ft := &fakeTransport{responses: []fakeResponse{{resp: nxdomain()}}}
	f := New(transport.Endpoint{IP: net.ParseIP("127.0.0.1")}, ft)
	f.Policy = retry.Policy{MaxAttempts: 1}

	rs, err := f.Query(context.Background(), rrdata.TypeA, "missing.example.org")

	assert.NoError(t, err)
	assert.True(t, rs.Empty())
}

func TestFacadeQueryReturnsAnswer(t *testing.T) {
	ft := &fakeTransport{responses: []fakeResponse{{resp: answerA("foo.example.org.", "10.1.2.3", 300)}}}
	f := New(transport.Endpoint{IP: net.ParseIP("127.0.0.1")}, ft)
	f.Policy = retry.Policy{MaxAttempts: 1}

	rs, err := f.Query(context.Background(), rrdata.TypeA, "foo.example.org")

	assert.NoError(t, err)
	assert.Len(t, rs.Items, 1)
	assert.Equal(t, "10.1.2.3", rs.Items[0].A.String())
}

func TestFacadeQueryUpgradesToTCPOnTruncation(t *testing.T) {
	ft := &fakeTransport{responses: []fakeResponse{
		{err: &transport.Error{Kind: transport.FailureTruncated, Err: assertErr("truncated")}},
		{resp: answerA("foo.example.org.", "10.1.2.3", 300)},
	}}
	f := New(transport.Endpoint{IP: net.ParseIP("127.0.0.1")}, ft)
	f.Policy = retry.Policy{MaxAttempts: 1}

	rs, err := f.Query(context.Background(), rrdata.TypeA, "foo.example.org")

	assert.NoError(t, err)
	assert.Equal(t, 2, ft.calls)
	assert.Len(t, rs.Items, 1)
}

func assertErr(s string) error { return &simpleErr{s} }

type simpleErr struct{ s string }

func (e *simpleErr) Error() string { return e.s }
