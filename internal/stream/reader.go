// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream reads streaming completion bodies as text fragments.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// =============================================================================
// CONSTANTS AND ERRORS
// =============================================================================

// fragmentSize is the read buffer size for a single fragment.
const fragmentSize = 4 * 1024

// ErrAborted is returned when the stop flag interrupts a read. The content
// accumulated before the abort is valid and should be finalized as-is.
var ErrAborted = errors.New("stream aborted")

// DecodeError indicates the body could not be decoded as text. Fatal to
// the turn: the reader stops and the partial content is discarded by the
// caller's failure path.
type DecodeError struct {
	Offset int // byte offset into the body where decoding failed
	Err    error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error at byte %d: %v", e.Offset, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

var errInvalidUTF8 = errors.New("invalid utf-8 sequence")

// FragmentFunc receives each decoded text fragment in order.
type FragmentFunc func(fragment string)

// =============================================================================
// READER
// =============================================================================

// Reader turns a streaming response body into an ordered sequence of valid
// UTF-8 text fragments. Between fragments it checks the context and the
// shared stop flag, so a cancelled turn stops promptly without tearing
// down the session.
type Reader struct {
	body io.ReadCloser
	stop *StopFlag

	// pending holds the tail bytes of a rune split across two reads.
	pending []byte
	offset  int
}

// NewReader creates a reader over a response body. The stop flag may be
// nil when the stream has no user-facing abort (the plugin path).
func NewReader(body io.ReadCloser, stop *StopFlag) *Reader {
	return &Reader{
		body: body,
		stop: stop,
	}
}

// Process reads fragments until EOF, abort, or failure, invoking fn for
// each one. Returns nil on EOF, ErrAborted when the stop flag was raised,
// a *DecodeError on undecodable bytes, and the read error otherwise. The
// body is closed before returning.
func (r *Reader) Process(ctx context.Context, fn FragmentFunc) error {
	defer r.body.Close()

	buf := make([]byte, fragmentSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if r.stop != nil && r.stop.IsSet() {
			return ErrAborted
		}

		n, err := r.body.Read(buf)
		if n > 0 {
			fragment, derr := r.decode(buf[:n])
			if derr != nil {
				return derr
			}
			if fragment != "" {
				fn(fragment)
			}
		}
		if err != nil {
			if err == io.EOF {
				if len(r.pending) > 0 {
					return &DecodeError{Offset: r.offset, Err: errInvalidUTF8}
				}
				return nil
			}
			return err
		}
	}
}

// decode validates chunk as UTF-8, carrying an incomplete trailing rune
// over to the next read.
func (r *Reader) decode(chunk []byte) (string, *DecodeError) {
	data := chunk
	if len(r.pending) > 0 {
		data = append(r.pending, chunk...)
		r.pending = nil
	}

	// Hold back an incomplete rune at the end of the read.
	complete := len(data)
	for complete > 0 {
		rn, size := utf8.DecodeLastRune(data[:complete])
		if rn != utf8.RuneError || size != 1 {
			break
		}
		complete--
		if len(data)-complete >= utf8.UTFMax {
			return "", &DecodeError{Offset: r.offset + complete, Err: errInvalidUTF8}
		}
	}

	if !utf8.Valid(data[:complete]) {
		return "", &DecodeError{Offset: r.offset, Err: errInvalidUTF8}
	}

	r.pending = append(r.pending, data[complete:]...)
	r.offset += len(chunk)
	return string(data[:complete]), nil
}

// =============================================================================
// ACCUMULATOR
// =============================================================================

// Accumulator collects fragments into the full text so far. Downstream
// consumers always see the complete accumulated content, never a delta.
type Accumulator struct {
	content   strings.Builder
	fragments int
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Add appends a fragment and returns the full content so far.
func (a *Accumulator) Add(fragment string) string {
	a.content.WriteString(fragment)
	a.fragments++
	return a.content.String()
}

// Content returns the accumulated content.
func (a *Accumulator) Content() string {
	return a.content.String()
}

// Fragments returns the number of fragments received.
func (a *Accumulator) Fragments() int {
	return a.fragments
}

// First reports whether no fragment has arrived yet.
func (a *Accumulator) First() bool {
	return a.fragments == 0
}
