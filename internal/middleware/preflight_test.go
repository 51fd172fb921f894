package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"storefront-gateway/internal/config"
)

func defaultCORS() config.CORSConfig {
	return config.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "X-Requested-With", "Content-Type", "Accept", "Authorization"},
	}
}

func TestPreflight_AnswersOptions(t *testing.T) {
	e := echo.New()
	e.Pre(Preflight(defaultCORS()))

	handlerCalled := false
	e.Any("/*", func(c echo.Context) error {
		handlerCalled = true
		return c.String(http.StatusTeapot, "should not run")
	})

	for _, path := range []string{"/orders", "/users/42", "/not-routed", "/"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, path, http.NoBody)
			req.Header.Set("Origin", "http://shop.example")
			req.Header.Set("Access-Control-Request-Method", "POST")
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
			if rec.Body.Len() != 0 {
				t.Errorf("body = %q, want empty", rec.Body.String())
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "*")
			}
			if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, PUT, DELETE, OPTIONS" {
				t.Errorf("Access-Control-Allow-Methods = %q", got)
			}
			if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Origin, X-Requested-With, Content-Type, Accept, Authorization" {
				t.Errorf("Access-Control-Allow-Headers = %q", got)
			}
		})
	}

	if handlerCalled {
		t.Error("route handler ran for a preflight request")
	}
}

func TestPreflight_SkipsCredentialCheck(t *testing.T) {
	e := echo.New()
	e.Pre(Preflight(defaultCORS()))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return echo.NewHTTPError(http.StatusUnauthorized)
		}
	})
	e.Any("/*", func(c echo.Context) error { return nil })

	req := httptest.NewRequest(http.MethodOptions, "/orders", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestPreflight_SetsHeadersOnOtherMethods(t *testing.T) {
	e := echo.New()
	e.Pre(Preflight(defaultCORS()))
	e.GET("/users", func(c echo.Context) error {
		return c.String(http.StatusOK, "users")
	})

	req := httptest.NewRequest(http.MethodGet, "/users", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "users" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "users")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "*")
	}
}

func TestPreflight_OriginList(t *testing.T) {
	cfg := defaultCORS()
	cfg.AllowOrigins = []string{"http://localhost:8080", "https://shop.example"}
	cfg.MaxAge = 600

	e := echo.New()
	e.Pre(Preflight(cfg))

	tests := []struct {
		name   string
		origin string
		want   string
	}{
		{"first", "http://localhost:8080", "http://localhost:8080"},
		{"second", "https://shop.example", "https://shop.example"},
		{"not allowed", "https://evil.example", ""},
		{"no origin", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/orders", http.NoBody)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.want)
			}
			if got := rec.Header().Get("Vary"); got != "Origin" {
				t.Errorf("Vary = %q, want %q", got, "Origin")
			}
			if got := rec.Header().Get("Access-Control-Max-Age"); got != "600" {
				t.Errorf("Access-Control-Max-Age = %q, want %q", got, "600")
			}
		})
	}
}
