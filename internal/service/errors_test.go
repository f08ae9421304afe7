package service

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/labstack/echo/v5"
)

func TestRequestErrorTagging(t *testing.T) {
	t.Parallel()

	err := newInvalidRequest("prompt missing")
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatal("tagged error does not unwrap to ErrInvalidRequest")
	}
	if err.Error() != "prompt missing" {
		t.Fatalf("unexpected message: %q", err.Error())
	}

	if _, err := decodeJSON[DecodeRequest](strings.NewReader(`{"domain":`)); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("malformed body should carry the invalid-request tag, got %v", err)
	}
	if _, err := toMemory([]MemoryInput{{Values: [][]float32{{1}}}}, 4); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("narrow memory row should carry the invalid-request tag, got %v", err)
	}
}

func TestWriteRequestErrorStatus(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.GET("/tagged", func(c *echo.Context) error {
		return writeRequestError(c, newInvalidRequest("bad field"))
	})
	e.GET("/untagged", func(c *echo.Context) error {
		return writeRequestError(c, errors.New("disk full"))
	})

	if rec := doJSON(t, e, http.MethodGet, "/tagged", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("tagged error: expected 400, got %d", rec.Code)
	}
	rec := doJSON(t, e, http.MethodGet, "/untagged", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("untagged error: expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "server_error") {
		t.Fatalf("500 body missing server_error type: %s", rec.Body.String())
	}
}
