package submit

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/tdns-go/tdns/internal/retry"
	"github.com/tdns-go/tdns/internal/transport"
)

type fakeTransport struct {
	responses []*dns.Msg
	errs      []error
	calls     int
	gotProto  []transport.Proto
}

func (f *fakeTransport) Exchange(ctx context.Context, query *dns.Msg, ep transport.Endpoint, proto transport.Proto, timeout time.Duration) (*dns.Msg, error) {
	i := f.calls
	f.calls++
	f.gotProto = append(f.gotProto, proto)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return f.responses[len(f.responses)-1], nil
}

func testEndpoint() transport.Endpoint {
	return transport.Endpoint{IP: net.ParseIP("192.0.2.1"), Port: 53}
}

func fastPolicy() retry.Policy {
	return retry.Policy{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2, MaxAttempts: 3}
}

func TestSubmitSuccess(t *testing.T) {
	resp := new(dns.Msg)
	resp.Rcode = dns.RcodeSuccess
	ft := &fakeTransport{responses: []*dns.Msg{resp}}

	msg := new(dns.Msg)
	msg.SetUpdate("example.org.")

	result, err := Submit(context.Background(), ft, msg, Options{Endpoint: testEndpoint(), RetryPolicy: fastPolicy()})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Rcode != dns.RcodeSuccess {
		t.Fatalf("rcode = %d", result.Rcode)
	}
}

func TestSubmitRejectedIsFatal(t *testing.T) {
	resp := new(dns.Msg)
	resp.Rcode = dns.RcodeRefused
	ft := &fakeTransport{responses: []*dns.Msg{resp}}

	msg := new(dns.Msg)
	msg.SetUpdate("example.org.")

	_, err := Submit(context.Background(), ft, msg, Options{Endpoint: testEndpoint(), RetryPolicy: fastPolicy()})
	if err == nil {
		t.Fatalf("expected an error for REFUSED")
	}
	if ft.calls != 1 {
		t.Fatalf("expected no retry on a fatal rejection, got %d calls", ft.calls)
	}
}

func TestSubmitServerFailureRetriesThenSucceeds(t *testing.T) {
	fail := new(dns.Msg)
	fail.Rcode = dns.RcodeServerFailure
	ok := new(dns.Msg)
	ok.Rcode = dns.RcodeSuccess
	ft := &fakeTransport{responses: []*dns.Msg{fail, ok}}

	msg := new(dns.Msg)
	msg.SetUpdate("example.org.")

	result, err := Submit(context.Background(), ft, msg, Options{Endpoint: testEndpoint(), RetryPolicy: fastPolicy()})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Rcode != dns.RcodeSuccess || ft.calls != 2 {
		t.Fatalf("result=%+v calls=%d", result, ft.calls)
	}
}

func TestSubmitLargeMessageUsesTCP(t *testing.T) {
	resp := new(dns.Msg)
	resp.Rcode = dns.RcodeSuccess
	ft := &fakeTransport{responses: []*dns.Msg{resp}}

	msg := new(dns.Msg)
	msg.SetUpdate("example.org.")
	for i := 0; i < 40; i++ {
		msg.Ns = append(msg.Ns, &dns.TXT{
			Hdr: dns.RR_Header{Name: "foo.example.org.", Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 3600},
			Txt: []string{"some reasonably long text value to pad the message size past the udp threshold"},
		})
	}

	if _, err := Submit(context.Background(), ft, msg, Options{Endpoint: testEndpoint(), RetryPolicy: fastPolicy()}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ft.gotProto[0] != transport.TCP {
		t.Fatalf("expected TCP for an oversized message, got %v", ft.gotProto[0])
	}
}

func TestSubmitForceTCP(t *testing.T) {
	resp := new(dns.Msg)
	resp.Rcode = dns.RcodeSuccess
	ft := &fakeTransport{responses: []*dns.Msg{resp}}

	msg := new(dns.Msg)
	msg.SetUpdate("example.org.")

	if _, err := Submit(context.Background(), ft, msg, Options{Endpoint: testEndpoint(), ForceTCP: true, RetryPolicy: fastPolicy()}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ft.gotProto[0] != transport.TCP {
		t.Fatalf("expected forced TCP, got %v", ft.gotProto[0])
	}
}

func TestSubmitUnsignedResponseToSignedUpdateIsFatal(t *testing.T) {
	resp := new(dns.Msg)
	resp.Rcode = dns.RcodeSuccess
	ft := &fakeTransport{responses: []*dns.Msg{resp}}

	msg := new(dns.Msg)
	msg.SetUpdate("example.org.")
	msg.SetTsig("mykey.", dns.HmacSHA256, 300, time.Now().Unix())

	if _, err := Submit(context.Background(), ft, msg, Options{Endpoint: testEndpoint(), RetryPolicy: fastPolicy()}); err == nil {
		t.Fatalf("expected an error when a signed update gets an unsigned response")
	}
}
