package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ErrorHandler returns an echo.HTTPErrorHandler that writes framework errors
// (unknown routes, disallowed methods, oversized bodies, recovered panics) in
// the gateway's {"error": message} shape. Internal messages are logged, not
// returned.
func ErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	logger = logger.With("component", "error_handler")
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Internal != nil {
				logger.Debug("http error", "code", code, "err", he.Internal)
			}
		} else {
			logger.Error("unhandled error",
				"err", err,
				"path", c.Request().URL.Path,
			)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = writeError(c, code, statusMessage(code))
		}
		if werr != nil {
			logger.Error("writing error response", "err", werr)
		}
	}
}

func writeError(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"error": msg})
}

// statusMessage is the lower-cased reason phrase for code.
func statusMessage(code int) string {
	if text := http.StatusText(code); text != "" {
		return strings.ToLower(text)
	}
	return "error"
}
