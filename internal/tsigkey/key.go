// Package tsigkey models a TSIG key (spec.md §3) and parses the key-file
// format described in SPEC_FULL.md / spec.md §6: one "name:algorithm:secret"
// per line, blank and "#"-prefixed lines ignored.
package tsigkey

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/miekg/dns"

	"github.com/tdns-go/tdns/internal/tdnserr"
)

// Key is the (name, algorithm, secret) tuple spec.md §3 defines. Secret is
// the raw key material; keep its lifetime bounded to the signing step per
// spec.md §9 and call Wipe once signing is done.
type Key struct {
	Name      string
	Algorithm string // canonical miekg/dns algorithm constant, e.g. dns.HmacSHA256
	Secret    []byte
}

// allowedAlgorithms restricts TSIG to the HMAC-SHA2 family, per spec.md §3:
// "MD5- and SHA1-based algorithms are explicitly rejected."
var allowedAlgorithms = map[string]string{
	"hmac-sha224": dns.HmacSHA224,
	"hmac-sha256": dns.HmacSHA256,
	"hmac-sha384": dns.HmacSHA384,
	"hmac-sha512": dns.HmacSHA512,
}

// NormalizeAlgorithm validates and canonicalizes an algorithm name. It
// accepts the name with or without a trailing dot and is case-insensitive.
func NormalizeAlgorithm(alg string) (string, error) {
	key := strings.ToLower(strings.TrimSuffix(alg, "."))
	canon, ok := allowedAlgorithms[key]
	if !ok {
		return "", tdnserr.Newf(tdnserr.Config, "unsupported TSIG algorithm %q (allowed: hmac-sha224, hmac-sha256, hmac-sha384, hmac-sha512)", alg)
	}
	return canon, nil
}

// New builds a Key from a name, algorithm, and base64-encoded secret,
// validating the algorithm per NormalizeAlgorithm.
func New(name, algorithm, base64Secret string) (Key, error) {
	alg, err := NormalizeAlgorithm(algorithm)
	if err != nil {
		return Key{}, err
	}
	secret, err := base64.StdEncoding.DecodeString(strings.TrimSpace(base64Secret))
	if err != nil {
		return Key{}, tdnserr.Newf(tdnserr.Config, "invalid base64 TSIG secret for key %q: %v", name, err)
	}
	return Key{Name: dns.Fqdn(name), Algorithm: alg, Secret: secret}, nil
}

// Wipe overwrites the secret buffer, per spec.md §9's handling guidance.
func (k *Key) Wipe() {
	for i := range k.Secret {
		k.Secret[i] = 0
	}
}

// Base64Secret returns the secret re-encoded as base64, the form
// github.com/miekg/dns's TsigProvider map expects.
func (k Key) Base64Secret() string {
	return base64.StdEncoding.EncodeToString(k.Secret)
}

// LoadFile parses the key-file format: one "name:algorithm:base64-secret"
// per line, whitespace-trimmed, blank and "#"-prefixed lines ignored.
func LoadFile(r io.Reader) ([]Key, error) {
	var keys []Key
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			return nil, tdnserr.Newf(tdnserr.Config, "key file line %d: expected name:algorithm:secret, got %q", lineNo, line)
		}
		k, err := New(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, fmt.Errorf("key file line %d: %w", lineNo, err)
		}
		keys = append(keys, k)
	}
	if err := scanner.Err(); err != nil {
		return nil, tdnserr.Newf(tdnserr.Config, "reading key file: %v", err)
	}
	return keys, nil
}

// Select returns the key whose name matches (case-insensitively, FQDN
// normalized), or an error if none or more than one ambiguously matches.
func Select(keys []Key, name string) (Key, error) {
	want := dns.Fqdn(name)
	var found []Key
	for _, k := range keys {
		if strings.EqualFold(k.Name, want) {
			found = append(found, k)
		}
	}
	switch len(found) {
	case 0:
		return Key{}, tdnserr.Newf(tdnserr.Config, "no key named %q found in key file", name)
	case 1:
		return found[0], nil
	default:
		return Key{}, tdnserr.Newf(tdnserr.Config, "key name %q appears %d times in key file", name, len(found))
	}
}
