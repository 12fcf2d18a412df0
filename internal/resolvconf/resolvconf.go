// Package resolvconf locates the system's default recursive resolver, for
// use when the CLI's --resolver flag is omitted, per spec.md §6. Grounded
// on classmarkets-go-dns-resolver's root_nix.go, which leans on
// github.com/miekg/dns's own /etc/resolv.conf parser instead of hand-rolling
// one.
package resolvconf

import (
	"fmt"
	"net"
	"strconv"

	"github.com/miekg/dns"

	"github.com/tdns-go/tdns/internal/transport"
)

// DefaultPath is the conventional location on Unix-like systems.
const DefaultPath = "/etc/resolv.conf"

// First returns the first "nameserver" entry in the resolv.conf at path, as
// a transport.Endpoint.
func First(path string) (transport.Endpoint, error) {
	cfg, err := dns.ClientConfigFromFile(path)
	if err != nil {
		return transport.Endpoint{}, fmt.Errorf("resolvconf: reading %s: %w", path, err)
	}
	if len(cfg.Servers) == 0 {
		return transport.Endpoint{}, fmt.Errorf("resolvconf: %s lists no nameserver", path)
	}

	ip := net.ParseIP(cfg.Servers[0])
	if ip == nil {
		return transport.Endpoint{}, fmt.Errorf("resolvconf: invalid nameserver address %q", cfg.Servers[0])
	}

	port := transport.DefaultPort
	if cfg.Port != "" {
		if p, err := strconv.Atoi(cfg.Port); err == nil {
			port = p
		}
	}

	return transport.Endpoint{IP: ip, Port: port}, nil
}
