package service

import "errors"

// ErrInvalidRequest marks an error as caused by the request itself rather
// than by a server-side failure.  writeRequestError inspects it to decide
// between a 400 and a 500 response.
var ErrInvalidRequest = errors.New("invalid request")

type requestError struct {
	msg string
}

func (e requestError) Error() string { return e.msg }

func (e requestError) Unwrap() error { return ErrInvalidRequest }

// newInvalidRequest tags msg as a client-side fault.
func newInvalidRequest(msg string) error {
	return requestError{msg: msg}
}
