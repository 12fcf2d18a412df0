package update

import (
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/tdns-go/tdns/internal/rrdata"
	"github.com/tdns-go/tdns/internal/tsigkey"
)

func TestBuildCreateHasPrereqAndUpdate(t *testing.T) {
	a, _ := rrdata.NewA("10.1.2.3")
	msg, err := Build(Spec{
		Zone: "example.org.", Name: "foo.example.org.", Type: rrdata.TypeA, TTL: 3600,
		Items: []rrdata.RData{a}, Kind: Create,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(msg.Question) != 1 || msg.Question[0].Qtype != dns.TypeSOA {
		t.Fatalf("zone section malformed: %+v", msg.Question)
	}
	if len(msg.Answer) != 1 {
		t.Fatalf("expected one prerequisite RR, got %d", len(msg.Answer))
	}
	if msg.Answer[0].Header().Class != dns.ClassNONE {
		t.Fatalf("prereq class = %v, want NONE", msg.Answer[0].Header().Class)
	}
	if len(msg.Ns) != 1 {
		t.Fatalf("expected one update RR, got %d", len(msg.Ns))
	}
	if msg.Ns[0].Header().Class != dns.ClassINET {
		t.Fatalf("update class = %v, want IN", msg.Ns[0].Header().Class)
	}
}

func TestBuildAppendHasNoPrereq(t *testing.T) {
	a, _ := rrdata.NewA("10.1.2.3")
	msg, err := Build(Spec{
		Zone: "example.org.", Name: "foo.example.org.", Type: rrdata.TypeA, TTL: 3600,
		Items: []rrdata.RData{a}, Kind: Append,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(msg.Answer) != 0 {
		t.Fatalf("expected no prerequisite RRs for append, got %d", len(msg.Answer))
	}
	if len(msg.Ns) != 1 {
		t.Fatalf("expected one update RR, got %d", len(msg.Ns))
	}
}

func TestBuildDeleteRRset(t *testing.T) {
	msg, err := Build(Spec{Zone: "example.org.", Name: "foo.example.org.", Type: rrdata.TypeA, Kind: DeleteRRset})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(msg.Ns) != 1 || msg.Ns[0].Header().Class != dns.ClassANY || msg.Ns[0].Header().Rrtype != dns.TypeA {
		t.Fatalf("delete-rrset RR malformed: %+v", msg.Ns)
	}
}

func TestBuildDeleteName(t *testing.T) {
	msg, err := Build(Spec{Zone: "example.org.", Name: "foo.example.org.", Kind: DeleteName})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(msg.Ns) != 1 || msg.Ns[0].Header().Rrtype != dns.TypeANY || msg.Ns[0].Header().Class != dns.ClassANY {
		t.Fatalf("delete-name RR malformed: %+v", msg.Ns)
	}
}

func TestBuildDeleteRecords(t *testing.T) {
	a, _ := rrdata.NewA("10.1.2.3")
	msg, err := Build(Spec{
		Zone: "example.org.", Name: "foo.example.org.", Type: rrdata.TypeA,
		Items: []rrdata.RData{a}, Kind: DeleteRecords,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(msg.Ns) != 1 || msg.Ns[0].Header().Class != dns.ClassNONE {
		t.Fatalf("delete-records RR malformed: %+v", msg.Ns)
	}
	if _, ok := msg.Ns[0].(*dns.A); !ok {
		t.Fatalf("expected a concrete A record carrying the RDATA to delete")
	}
}

func TestSignPlacesTSIGLastAndBumpsARCOUNT(t *testing.T) {
	msg, err := Build(Spec{Zone: "example.org.", Name: "foo.example.org.", Kind: DeleteName})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	key, err := tsigkey.New("mykey", "hmac-sha256", "c2VjcmV0")
	if err != nil {
		t.Fatalf("tsigkey.New: %v", err)
	}

	Sign(msg, key)

	buf, err := msg.Pack()
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	packed := new(dns.Msg)
	if err := packed.Unpack(buf); err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if len(packed.Extra) == 0 {
		t.Fatalf("expected a TSIG RR in the additional section")
	}
	last := packed.Extra[len(packed.Extra)-1]
	if _, ok := last.(*dns.TSIG); !ok {
		t.Fatalf("TSIG RR must be last in the additional section, got %T", last)
	}
}

func TestSignSetsTimeSignedToNow(t *testing.T) {
	key, _ := tsigkey.New("mykey", "hmac-sha256", "c2VjcmV0")
	msg, _ := Build(Spec{Zone: "example.org.", Name: "foo.example.org.", Kind: DeleteName})
	before := time.Now().Unix()
	Sign(msg, key)
	if msg.Extra[0].(*dns.TSIG).TimeSigned < uint64(before) {
		t.Fatalf("expected TimeSigned to be set to roughly now")
	}
}
