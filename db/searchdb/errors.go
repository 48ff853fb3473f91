package searchdb

import (
	"errors"
	"fmt"
)

var (
	ErrRejected          = errors.New("search backend rejected the request")
	ErrHighlightRejected = errors.New("search backend rejected highlighting")
	ErrUnavailable       = errors.New("search backend unavailable")
	ErrInvalidCursor     = errors.New("invalid cursor")
)

const maxExcerptLength = 512

type RejectionError struct {
	StatusCode int
	Excerpt    string
	Highlight  bool
}

type UnavailableError struct {
	Err error
}

func newRejectionError(statusCode int, body []byte) *RejectionError {
	excerpt := string(body)
	if len(excerpt) > maxExcerptLength {
		excerpt = excerpt[:maxExcerptLength] + "..."
	}
	return &RejectionError{
		StatusCode: statusCode,
		Excerpt:    excerpt,
		Highlight:  isHighlightRejection(statusCode, body),
	}
}

func (e *RejectionError) Error() string {
	if e.Highlight {
		return fmt.Sprintf("search backend rejected highlighting with status %d: %s", e.StatusCode, e.Excerpt)
	}
	return fmt.Sprintf("search backend responded with status %d: %s", e.StatusCode, e.Excerpt)
}

func (e *RejectionError) Is(target error) bool {
	return target == ErrRejected || (e.Highlight && target == ErrHighlightRejected)
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("search backend unavailable: %s", e.Err)
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
