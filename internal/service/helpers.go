package service

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/alloynmt/alloy/internal/decoder"
)

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

// writeRequestError maps an error onto a response: anything wrapping
// ErrInvalidRequest is the client's fault and gets a 400, everything else
// surfaces as a 500.
func writeRequestError(c *echo.Context, err error) error {
	if errors.Is(err, ErrInvalidRequest) {
		return writeBadRequest(c, err.Error())
	}
	return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg)
}

func writeTooManyRequests(c *echo.Context) error {
	return writeError(c, http.StatusTooManyRequests, "rate_limit_error", "rate limit exceeded")
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
		},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var v T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, newInvalidRequest(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return v, nil
}

// toMemory flattens request memories into the decoder's layout,
// checking every row against the model width.
func toMemory(inputs []MemoryInput, width int) ([]decoder.Memory, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	mems := make([]decoder.Memory, len(inputs))
	for i, in := range inputs {
		if len(in.Values) == 0 {
			return nil, newInvalidRequest(fmt.Sprintf("memory %d has no rows", i))
		}
		values := make([]float32, 0, len(in.Values)*width)
		for t, row := range in.Values {
			if len(row) != width {
				return nil, newInvalidRequest(fmt.Sprintf("memory %d row %d has %d values, want %d", i, t, len(row), width))
			}
			values = append(values, row...)
		}
		mems[i] = decoder.Memory{Values: values, Time: len(in.Values)}
		if in.Length > 0 {
			if in.Length > len(in.Values) {
				return nil, newInvalidRequest(fmt.Sprintf("memory %d length %d exceeds %d rows", i, in.Length, len(in.Values)))
			}
			mems[i].Lengths = []int{in.Length}
		}
	}
	return mems, nil
}
