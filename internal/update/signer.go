package update

import (
	"time"

	"github.com/miekg/dns"

	"github.com/tdns-go/tdns/internal/tsigkey"
)

// Fudge is the allowed clock skew for TSIG signatures, per RFC 2845's
// recommended default.
const Fudge = 300

// Sign marks msg for TSIG signing with key: SetTsig appends a TSIG RR
// carrying the key name, algorithm, fudge, and signing time as the last
// additional record (ARCOUNT follows from the section length at pack time).
// The MAC itself is not computed here; github.com/miekg/dns's Client fills
// it in when package transport sends the message, per spec.md §4.5 steps 1–4.
func Sign(msg *dns.Msg, key tsigkey.Key) {
	msg.SetTsig(key.Name, key.Algorithm, Fudge, time.Now().Unix())
}

// SecretMap returns the TsigSecret map github.com/miekg/dns's Client and
// Transfer types expect: key name (FQDN) to base64-encoded secret.
func SecretMap(key tsigkey.Key) map[string]string {
	return map[string]string{key.Name: key.Base64Secret()}
}
