// Package route holds the immutable prefix-to-upstream route table.
package route

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ErrInvalidRoute is returned by New when a route definition is unusable.
var ErrInvalidRoute = errors.New("invalid route")

// Route maps a path prefix to an upstream base URL.
type Route struct {
	Prefix   string
	Upstream *url.URL

	// RequireAuth routes the request through the credential validator first.
	RequireAuth bool
	// StripPrefix removes Prefix from the path before forwarding.
	StripPrefix bool
	// ForwardIdentity sends the validated subject upstream in the identity header.
	ForwardIdentity bool
}

// Table resolves request paths to routes. It is read-only after New returns
// and safe for concurrent use without locking.
type Table struct {
	// routes is sorted by descending prefix length so the first hit is the longest.
	routes []Route
}

// New builds a Table. Prefixes must start with '/', must not end with '/',
// and must not share a first path segment with another route.
func New(routes []Route) (*Table, error) {
	seen := make(map[string]string, len(routes))
	sorted := make([]Route, 0, len(routes))

	for _, r := range routes {
		if err := validate(r); err != nil {
			return nil, err
		}
		seg := firstSegment(r.Prefix)
		if other, ok := seen[seg]; ok {
			return nil, fmt.Errorf("%w: prefix %q overlaps %q", ErrInvalidRoute, r.Prefix, other)
		}
		seen[seg] = r.Prefix

		u := *r.Upstream
		r.Upstream = &u
		sorted = append(sorted, r)
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})

	return &Table{routes: sorted}, nil
}

func validate(r Route) error {
	p := r.Prefix
	switch {
	case p == "" || p == "/":
		return fmt.Errorf("%w: prefix %q matches every path", ErrInvalidRoute, p)
	case p[0] != '/':
		return fmt.Errorf("%w: prefix %q must start with '/'", ErrInvalidRoute, p)
	case strings.HasSuffix(p, "/"):
		return fmt.Errorf("%w: prefix %q must not end with '/'", ErrInvalidRoute, p)
	case r.Upstream == nil || r.Upstream.Scheme == "" || r.Upstream.Host == "":
		return fmt.Errorf("%w: prefix %q has no absolute upstream URL", ErrInvalidRoute, p)
	}
	return nil
}

// firstSegment returns "/a" for "/a/b/c".
func firstSegment(prefix string) string {
	if i := strings.IndexByte(prefix[1:], '/'); i >= 0 {
		return prefix[:i+1]
	}
	return prefix
}

// Resolve returns the route with the longest prefix matching path at a
// segment boundary: "/orders" matches "/orders" and "/orders/5" but not
// "/ordersxyz".
func (t *Table) Resolve(path string) (Route, bool) {
	for _, r := range t.routes {
		if Match(r.Prefix, path) {
			return r, true
		}
	}
	return Route{}, false
}

// Match reports whether prefix matches path at a segment boundary.
func Match(prefix, path string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

// Prefixes returns the configured prefixes in lexical order.
func (t *Table) Prefixes() []string {
	out := make([]string, 0, len(t.routes))
	for _, r := range t.routes {
		out = append(out, r.Prefix)
	}
	sort.Strings(out)
	return out
}

// UpstreamPath returns the path to request on the upstream for a request
// path that matched r.
func (r Route) UpstreamPath(path string) string {
	return r.join(r.Upstream.Path, path)
}

// UpstreamRawPath is UpstreamPath for the escaped form of the request path.
// It keeps the client's encoding, so "/orders/a%2Fb" stays one segment.
func (r Route) UpstreamRawPath(rawPath string) string {
	return r.join(r.Upstream.EscapedPath(), rawPath)
}

func (r Route) join(base, path string) string {
	if r.StripPrefix {
		path = strings.TrimPrefix(path, r.Prefix)
	}
	switch {
	case path == "":
		if base == "" {
			return "/"
		}
		return base
	case base == "" || base == "/":
		return path
	default:
		return strings.TrimSuffix(base, "/") + path
	}
}
