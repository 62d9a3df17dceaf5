// Package transport defines the connection-URI grammar and module
// registry shared by every concrete transport (spec §4.1, §6). Concrete
// modules live in sibling packages (ethtransport, tcptransport,
// udptransport, wstransport, tmpltransport); the caller registers them
// on a Registry (the daemon registers every one but tmpltransport).
package transport

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/kuuji/athena/internal/link"
)

// ConnectionURI is the parsed form of `<scheme>://<authority>[/key=value]*`
// (spec §6).
type ConnectionURI struct {
	Scheme    string
	Authority string

	Name     string // name=<string>
	Local    *bool  // local=true|false, nil if unspecified
	MTU      *int   // mtu=<positive integer>, nil if unspecified
	Listener bool   // bare "listener" segment
	Src      string // src=<address>
}

// ParseURI parses raw per spec §6's connection-URI grammar. Unknown keys
// and duplicate keys are both fatal configuration errors.
func ParseURI(raw string) (*ConnectionURI, error) {
	schemeSep := strings.Index(raw, "://")
	if schemeSep < 0 {
		return nil, fmt.Errorf("transport: %q has no scheme:// separator", raw)
	}
	scheme := raw[:schemeSep]
	if scheme == "" {
		return nil, fmt.Errorf("transport: %q has an empty scheme", raw)
	}
	rest := raw[schemeSep+3:]

	authority := rest
	var rawPath string
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		authority = rest[:slash]
		rawPath = rest[slash+1:]
	}
	if authority == "" {
		return nil, fmt.Errorf("transport: %q has an empty authority", raw)
	}

	out := &ConnectionURI{Scheme: scheme, Authority: authority}
	seen := make(map[string]bool)

	for _, seg := range strings.Split(rawPath, "/") {
		if seg == "" {
			continue
		}
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			return nil, fmt.Errorf("transport: decoding path segment %q: %w", seg, err)
		}

		if decoded == "listener" {
			if seen["listener"] {
				return nil, fmt.Errorf("transport: duplicate key %q in %q", "listener", raw)
			}
			seen["listener"] = true
			out.Listener = true
			continue
		}

		key, value, ok := strings.Cut(decoded, "=")
		if !ok {
			return nil, fmt.Errorf("transport: malformed path segment %q in %q", decoded, raw)
		}
		if seen[key] {
			return nil, fmt.Errorf("transport: duplicate key %q in %q", key, raw)
		}
		seen[key] = true

		switch key {
		case "name":
			out.Name = value
		case "local":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("transport: local=%q must be true or false", value)
			}
			out.Local = &b
		case "mtu":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("transport: mtu=%q must be a positive integer", value)
			}
			out.MTU = &n
		case "src":
			out.Src = value
		default:
			return nil, fmt.Errorf("transport: unknown connection URI key %q", key)
		}
	}

	return out, nil
}

// Module is a family of links sharing one scheme: a factory (Open) for
// point-to-point connections and listeners (spec §4.1).
type Module interface {
	Scheme() string
	Open(uri *ConnectionURI) (link.Link, error)
}

// Registry dispatches connection URIs to the module registered for
// their scheme, the way the Link Adapter's open() does (spec §4.2).
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

// Register adds m, keyed by its Scheme(). Registering a second module
// for the same scheme replaces the first.
func (r *Registry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[m.Scheme()] = m
}

// Open parses raw and dispatches to the module matching its scheme.
func (r *Registry) Open(raw string) (link.Link, error) {
	u, err := ParseURI(raw)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	m, ok := r.modules[u.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("transport: no module registered for scheme %q", u.Scheme)
	}
	return m.Open(u)
}
