package resolver

import (
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/net/publicsuffix"

	"github.com/tdns-go/tdns/internal/rrdata"
)

// CachePolicy determines how long a Facade's cached responses remain fresh,
// mirroring classmarkets-go-dns-resolver's CachePolicy/DefaultCachePolicy.
type CachePolicy func(rrdata.RRset) time.Duration

// DefaultCachePolicy caches only NS delegations for public-suffix zones
// (".com", ".org", ...), where name-server sets genuinely are stable for the
// lifetime of one invocation, and caches nothing else — this client issues
// few enough recursive queries per run that a general-purpose cache buys
// little and risks masking a changed answer during the very update this
// tool exists to drive.
func DefaultCachePolicy() CachePolicy {
	return func(rs rrdata.RRset) time.Duration {
		if rs.Type != rrdata.TypeNS {
			return 0
		}
		if !isPublicSuffix(rs.Name) {
			return 0
		}
		return time.Duration(rs.TTL) * time.Second
	}
}

func isPublicSuffix(fqdn string) bool {
	name := strings.TrimSuffix(fqdn, ".")
	s, _ := publicsuffix.PublicSuffix(name)
	return s == name
}

const maxCacheSize = 1024

type cacheItem struct {
	rs        rrdata.RRset
	expiresAt time.Time
}

type cache struct {
	policy CachePolicy

	mu    sync.Mutex
	items map[string]cacheItem
}

func newCache(policy CachePolicy) *cache {
	return &cache{policy: policy, items: map[string]cacheItem{}}
}

func key(name string, typ rrdata.Type) string {
	return rrdata.CanonicalName(name) + "|" + typ.String()
}

func (c *cache) get(name string, typ rrdata.Type) (rrdata.RRset, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key(name, typ)]
	if !ok || time.Now().After(item.expiresAt) {
		return rrdata.RRset{}, false
	}
	return item.rs, true
}

func (c *cache) put(rs rrdata.RRset, raw *dns.Msg) {
	ttl := c.policy(rs)
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) >= maxCacheSize {
		for k := range c.items {
			delete(c.items, k)
			break
		}
	}
	c.items[key(rs.Name, rs.Type)] = cacheItem{rs: rs, expiresAt: time.Now().Add(ttl)}
}
