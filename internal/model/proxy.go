// Package model defines the request and outcome types shared by the gateway layers.
package model

import (
	"context"
	"io"
	"net/http"
	"strings"
)

// ProxyRequest is an inbound request as seen by the gateway. It is owned by
// the goroutine handling the request.
type ProxyRequest struct {
	Ctx        context.Context
	Method     string
	Path       string
	RawPath    string // escaped form of Path as sent; empty when it is the default encoding
	RawQuery   string
	Header     http.Header
	Body       io.Reader
	Host       string
	Scheme     string
	ClientAddr string
	RequestID  string
}

// ProxyResponse is a successful upstream response to be streamed back.
// The caller must close Body.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// OutcomeKind classifies a failed upstream call.
type OutcomeKind int

const (
	// ConnectFailure means no connection to the upstream could be made.
	ConnectFailure OutcomeKind = iota + 1
	// Timeout means the upstream did not answer within the configured bound.
	Timeout
	// Canceled means the client went away before the upstream answered.
	Canceled
	// ProtocolError means the upstream answered with something that is not valid HTTP.
	ProtocolError
)

func (k OutcomeKind) String() string {
	switch k {
	case ConnectFailure:
		return "connect_failure"
	case Timeout:
		return "timeout"
	case Canceled:
		return "canceled"
	case ProtocolError:
		return "protocol_error"
	default:
		return "unknown"
	}
}

// HopByHopHeaders are meaningful only for a single transport-level
// connection and are never forwarded in either direction.
var HopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// StripHopByHop removes hop-by-hop headers from h, including any named in
// its Connection header.
func StripHopByHop(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range HopByHopHeaders {
		h.Del(name)
	}
}
