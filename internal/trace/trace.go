// Package trace records the DNS round trips a run makes, for the --verbose
// dump described in SPEC_FULL.md. Modeled on classmarkets-go-dns-resolver's
// Trace/TraceNode.
package trace

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// Trace accumulates Nodes across the lifetime of one invocation. Safe for
// concurrent use by the propagation monitor's per-endpoint goroutines.
type Trace struct {
	mu    sync.Mutex
	Nodes []*Node
}

// New returns an empty Trace.
func New() *Trace {
	return &Trace{}
}

// Node records one query/response round trip.
type Node struct {
	Server   string
	Question string
	Message  *dns.Msg
	RTT      time.Duration
	Err      error
}

// Add appends a Node describing one query/response exchange.
func (t *Trace) Add(server, question string, msg *dns.Msg, rtt time.Duration, err error) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Nodes = append(t.Nodes, &Node{Server: server, Question: question, Message: msg, RTT: rtt, Err: err})
}

// Dump renders the trace as human-readable lines for stderr, in the
// question-mark / exclamation-mark / X convention classmarkets-go-dns-resolver
// uses: "?" for a request, "!" for an answer record, "X" for an error.
func (t *Trace) Dump() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	buf := &bytes.Buffer{}
	for _, n := range t.Nodes {
		fmt.Fprintf(buf, "? %s @%s %dms\n", n.Question, n.Server, n.RTT.Milliseconds())
		if n.Err != nil {
			fmt.Fprintf(buf, "  X %v\n", n.Err)
			continue
		}
		if n.Message == nil {
			continue
		}
		if n.Message.Rcode != dns.RcodeSuccess {
			fmt.Fprintf(buf, "  X %s\n", dns.RcodeToString[n.Message.Rcode])
			continue
		}
		if len(n.Message.Answer) == 0 {
			io.WriteString(buf, "  ~ NODATA\n")
		}
		for _, rr := range n.Message.Answer {
			fmt.Fprintf(buf, "  ! %s\n", compact(rr.String()))
		}
	}
	return buf.String()
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
