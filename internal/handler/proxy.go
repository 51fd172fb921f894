package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront-gateway/internal/auth"
	"storefront-gateway/internal/middleware"
	"storefront-gateway/internal/model"
	"storefront-gateway/internal/service"
)

// ProxyHandler forwards every request that is not served by the gateway
// itself to the upstream selected by the route table.
type ProxyHandler struct {
	service *service.GatewayService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.GatewayService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle proxies the request and streams the upstream response back.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	pr := &model.ProxyRequest{
		Ctx:        req.Context(),
		Method:     req.Method,
		Path:       req.URL.Path,
		RawPath:    req.URL.RawPath,
		RawQuery:   req.URL.RawQuery,
		Header:     req.Header,
		Body:       req.Body,
		Host:       req.Host,
		Scheme:     c.Scheme(),
		ClientAddr: c.RealIP(),
		RequestID:  c.Response().Header().Get(echo.HeaderXRequestID),
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Upstream headers replace any defaults already set on the response,
	// CORS headers included.
	middleware.MarkRelayed(c)
	dst := c.Response().Header()
	for key, vals := range resp.Header {
		dst[key] = vals
	}

	c.Response().WriteHeader(resp.StatusCode)

	// The status is already sent; a copy failure leaves the client with a
	// truncated body.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"path", req.URL.Path,
		)
	}

	return nil
}

// mapError turns a Forward error into the client-facing status and body.
// It is the only place that does so.
func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	path := c.Request().URL.Path

	var he *echo.HTTPError
	var ae *auth.Error
	var ue *service.UpstreamError

	switch {
	case errors.As(err, &he):
		// Raised by echo middleware while the body was read, e.g. BodyLimit.
		return he
	case errors.As(err, &ae):
		h.logger.Warn("credentials rejected",
			"reason", string(ae.Reason),
			"path", path,
		)
		return writeError(c, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, service.ErrRouteNotFound):
		h.logger.Debug("no route", "path", path)
		return writeError(c, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrMalformedRequest):
		h.logger.Warn("malformed request", "err", err, "path", path)
		return writeError(c, http.StatusBadRequest, "malformed request")
	case errors.As(err, &ue):
		switch ue.Kind {
		case model.ProtocolError:
			h.logger.Error("upstream protocol error",
				"route", ue.Route,
				"err", ue.Err,
				"path", path,
			)
			return writeError(c, http.StatusBadGateway, "bad gateway")
		case model.Canceled:
			h.logger.Info("client canceled request", "route", ue.Route, "path", path)
		default:
			h.logger.Error("upstream unavailable",
				"route", ue.Route,
				"kind", ue.Kind.String(),
				"err", ue.Err,
				"path", path,
			)
		}
		return writeError(c, http.StatusServiceUnavailable, "service unavailable")
	default:
		h.logger.Error("proxy error", "err", err, "path", path)
		return writeError(c, http.StatusInternalServerError, "internal server error")
	}
}
