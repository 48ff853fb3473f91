package search

import (
	"encoding/json"
	"errors"
	"io"
)

var ErrEncoderClosed = errors.New("array encoder is closed")

// ArrayEncoder writes a JSON array one element at a time. The opening bracket is written with
// the first element, or by Close when there was none, so that nothing reaches the writer
// before there is something to send. Without Close the output stays an unterminated array.
type ArrayEncoder struct {
	w       io.Writer
	started bool
	closed  bool
}

func NewArrayEncoder(w io.Writer) *ArrayEncoder {
	return &ArrayEncoder{w: w}
}

// Started reports whether any byte has been written.
func (e *ArrayEncoder) Started() bool {
	return e.started
}

func (e *ArrayEncoder) Encode(value any) error {
	if e.closed {
		return ErrEncoderClosed
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	separator := []byte(",")
	if !e.started {
		separator = []byte("[")
	}
	if _, err := e.w.Write(append(separator, data...)); err != nil {
		return err
	}
	e.started = true
	return nil
}

func (e *ArrayEncoder) EncodeAll(documents []Document) error {
	for _, document := range documents {
		if err := e.Encode(document); err != nil {
			return err
		}
	}
	return nil
}

func (e *ArrayEncoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	closing := []byte("]")
	if !e.started {
		closing = []byte("[]")
	}
	e.started = true
	_, err := e.w.Write(closing)
	return err
}
