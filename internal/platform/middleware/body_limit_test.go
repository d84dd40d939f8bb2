package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestParseLimit(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"1M", 1 << 20},
		{"10MB", 10 << 20},
		{"512k", 512 << 10},
		{"1G", 1 << 30},
		{"1024", 1024},
		{"", 1 << 20},
		{"invalid", 1 << 20},
		{"-5M", 1 << 20},
	}
	for _, tt := range tests {
		if got := parseLimit(tt.input); got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestBodyLimit_AllowsSmallBody(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mappings", strings.NewReader(`{"sourceCode":"A"}`))
	c := e.NewContext(req, httptest.NewRecorder())

	called := false
	handler := func(c echo.Context) error {
		b, err := io.ReadAll(c.Request().Body)
		if err != nil || len(b) == 0 {
			t.Fatalf("expected readable body, got %q, %v", b, err)
		}
		called = true
		return c.NoContent(http.StatusCreated)
	}

	if err := BodyLimit("1K", "10K", "/api/v1/import")(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
}

func TestBodyLimit_ContentLength(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		size   int
		status int
	}{
		{"default limit exceeded", "/api/v1/mappings", 2048, http.StatusRequestEntityTooLarge},
		{"upload path uses upload limit", "/api/v1/import/csv", 2048, 0},
		{"upload limit exceeded", "/api/v1/import/csv", 20 << 10, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, tt.path, bytes.NewReader(bytes.Repeat([]byte("x"), tt.size)))
			c := e.NewContext(req, httptest.NewRecorder())

			err := BodyLimit("1K", "10K", "/api/v1/import")(func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			})(c)

			if tt.status == 0 {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			var he *echo.HTTPError
			if !errors.As(err, &he) || he.Code != tt.status {
				t.Errorf("expected %d, got %v", tt.status, err)
			}
		})
	}
}

func TestBodyLimit_FHIROutcome(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/fhir/Bundle", bytes.NewReader(bytes.Repeat([]byte("x"), 2048)))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := BodyLimit("1K", "1K", "")(func(c echo.Context) error { return nil })(c); err != nil {
		t.Fatalf("expected outcome response, got %v", err)
	}
	if rec.Code != http.StatusRequestEntityTooLarge || !strings.Contains(rec.Body.String(), "too-costly") {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestBodyLimit_StreamingWithoutContentLength(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mappings", bytes.NewReader(bytes.Repeat([]byte("x"), 2048)))
	req.ContentLength = -1
	c := e.NewContext(req, httptest.NewRecorder())

	var readErr error
	BodyLimit("1K", "1K", "")(func(c echo.Context) error {
		_, readErr = io.ReadAll(c.Request().Body)
		return nil
	})(c)

	if !errors.Is(readErr, echo.ErrStatusRequestEntityTooLarge) {
		t.Errorf("expected 413 read error, got %v", readErr)
	}
}
