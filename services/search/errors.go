package search

import (
	"errors"
	"fmt"
)

var ErrInvalidRequest = errors.New("invalid search request")

type InvalidRequestError struct {
	Reason string
}

func invalidRequest(format string, args ...any) *InvalidRequestError {
	return &InvalidRequestError{Reason: fmt.Sprintf(format, args...)}
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid search request: %s", e.Reason)
}

func (e *InvalidRequestError) Is(target error) bool {
	return target == ErrInvalidRequest
}
