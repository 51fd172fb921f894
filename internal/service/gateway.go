// Package service implements the gateway pipeline: route resolution,
// credential checks and upstream forwarding.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	"storefront-gateway/internal/auth"
	"storefront-gateway/internal/client"
	"storefront-gateway/internal/config"
	"storefront-gateway/internal/metrics"
	"storefront-gateway/internal/model"
	"storefront-gateway/internal/route"
)

var (
	// ErrRouteNotFound is returned when no configured prefix matches the path.
	ErrRouteNotFound = errors.New("no route matches request path")
	// ErrMalformedRequest is returned for requests the gateway refuses to forward.
	ErrMalformedRequest = errors.New("malformed request")
)

// UpstreamError reports an upstream call that produced no usable response.
type UpstreamError struct {
	Kind  model.OutcomeKind
	Route string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %s: %v", e.Route, e.Kind, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// GatewayService runs every proxied request through the same fixed stages:
// resolve, authenticate (flagged routes only), forward.
type GatewayService struct {
	routes         *route.Table
	validator      *auth.Validator
	client         *client.UpstreamClient
	identityHeader string
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

// NewGatewayService creates a GatewayService. The metrics parameter is
// optional; pass nil to disable failure counters.
func NewGatewayService(
	routes *route.Table,
	v *auth.Validator,
	c *client.UpstreamClient,
	cfg *config.Config,
	logger *slog.Logger,
	m *metrics.Metrics,
) *GatewayService {
	identity := cfg.Auth.IdentityHeader
	if identity == "" {
		identity = "X-User-ID"
	}
	return &GatewayService{
		routes:         routes,
		validator:      v,
		client:         c,
		identityHeader: http.CanonicalHeaderKey(identity),
		logger:         logger.With("component", "gateway_service"),
		metrics:        m,
	}
}

// Routes returns the route table the service resolves against.
func (s *GatewayService) Routes() *route.Table {
	return s.routes
}

// Forward sends pr to the upstream selected by its path and returns the
// upstream response. The caller is responsible for closing the response body.
//
// Errors are one of ErrMalformedRequest, ErrRouteNotFound, *auth.Error or
// *UpstreamError, possibly wrapped.
func (s *GatewayService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	if !cleanPath(pr.Path) {
		return nil, fmt.Errorf("%w: path %q", ErrMalformedRequest, pr.Path)
	}

	rt, ok := s.routes.Resolve(pr.Path)
	if !ok {
		return nil, ErrRouteNotFound
	}

	ctx := pr.Ctx
	header := s.outboundHeader(pr)

	if rt.RequireAuth {
		claims, err := s.validator.Validate(pr.Header.Get("Authorization"))
		if err != nil {
			s.recordAuthFailure(rt.Prefix, err)
			return nil, fmt.Errorf("route %s: %w", rt.Prefix, err)
		}
		ctx = auth.WithClaims(ctx, claims)
		if rt.ForwardIdentity {
			header.Set(s.identityHeader, claims.Subject)
		}
	}

	upstreamURL := buildUpstreamURL(rt, pr)

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"path", pr.Path,
		"route", rt.Prefix,
		"upstream", rt.Upstream.Host,
	)

	resp, err := s.client.DoStream(ctx, pr.Method, upstreamURL, header, pr.Body)
	if err != nil {
		if errors.Is(err, client.ErrBuildRequest) {
			return nil, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
		}
		ue := &UpstreamError{Kind: classify(err), Route: rt.Prefix, Err: err}
		if s.metrics != nil {
			s.metrics.UpstreamFailures.WithLabelValues(rt.Prefix, ue.Kind.String()).Inc()
		}
		return nil, ue
	}

	model.StripHopByHop(resp.Header)
	return resp, nil
}

func (s *GatewayService) recordAuthFailure(prefix string, err error) {
	if s.metrics == nil {
		return
	}
	reason := "unknown"
	var ae *auth.Error
	if errors.As(err, &ae) {
		reason = string(ae.Reason)
	}
	s.metrics.AuthFailures.WithLabelValues(prefix, reason).Inc()
}

// outboundHeader copies the client headers for the upstream request.
// Hop-by-hop headers and any client-supplied identity header are dropped;
// Host is not copied, so net/http targets the upstream host.
func (s *GatewayService) outboundHeader(pr *model.ProxyRequest) http.Header {
	h := pr.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	model.StripHopByHop(h)
	h.Del(s.identityHeader)

	if pr.ClientAddr != "" {
		if prior := h.Values("X-Forwarded-For"); len(prior) > 0 {
			h.Set("X-Forwarded-For", strings.Join(prior, ", ")+", "+pr.ClientAddr)
		} else {
			h.Set("X-Forwarded-For", pr.ClientAddr)
		}
	}
	if pr.Host != "" {
		h.Set("X-Forwarded-Host", pr.Host)
	}
	if pr.Scheme != "" {
		h.Set("X-Forwarded-Proto", pr.Scheme)
	}
	if pr.RequestID != "" {
		h.Set("X-Request-Id", pr.RequestID)
	}
	return h
}

func buildUpstreamURL(rt route.Route, pr *model.ProxyRequest) string {
	u := *rt.Upstream
	u.Path = rt.UpstreamPath(pr.Path)
	u.RawPath = ""
	// Keep the client's escaping when it is a faithful encoding of the
	// matched path; url.URL.String falls back to Path otherwise.
	if pr.RawPath != "" && route.Match(rt.Prefix, pr.RawPath) {
		if raw := rt.UpstreamRawPath(pr.RawPath); validEscape(raw, u.Path) {
			u.RawPath = raw
		}
	}
	u.RawQuery = pr.RawQuery
	u.Fragment = ""
	return u.String()
}

func validEscape(raw, path string) bool {
	p, err := url.PathUnescape(raw)
	return err == nil && p == path
}

// cleanPath rejects paths with dot segments, which could otherwise step out
// of the matched prefix on the upstream side.
func cleanPath(p string) bool {
	if p == "" || p[0] != '/' {
		return false
	}
	for _, seg := range strings.Split(p[1:], "/") {
		if seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// classify maps a transport error onto an upstream outcome.
func classify(err error) model.OutcomeKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.Timeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.Timeout
	}
	if errors.Is(err, context.Canceled) {
		return model.Canceled
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return model.ConnectFailure
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return model.ConnectFailure
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return model.ConnectFailure
	}
	return model.ProtocolError
}
