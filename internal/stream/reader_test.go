// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream reads streaming completion bodies as text fragments.
package stream

import (
	"context"
	"errors"
	"io"
	"testing"
)

// scriptedBody returns one scripted chunk per Read call.
type scriptedBody struct {
	chunks [][]byte
	pos    int
	closed bool
	err    error // returned after chunks are exhausted, instead of EOF
}

func (s *scriptedBody) Read(p []byte) (int, error) {
	if s.pos >= len(s.chunks) {
		if s.err != nil {
			return 0, s.err
		}
		return 0, io.EOF
	}
	n := copy(p, s.chunks[s.pos])
	s.pos++
	return n, nil
}

func (s *scriptedBody) Close() error {
	s.closed = true
	return nil
}

func chunks(parts ...string) [][]byte {
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}

// =============================================================================
// READER TESTS
// =============================================================================

func TestReader_FragmentsInOrder(t *testing.T) {
	body := &scriptedBody{chunks: chunks("Hello", ", ", "world")}
	r := NewReader(body, nil)

	var got []string
	err := r.Process(context.Background(), func(f string) {
		got = append(got, f)
	})
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	want := []string{"Hello", ", ", "world"}
	if len(got) != len(want) {
		t.Fatalf("got %d fragments, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("fragment[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if !body.closed {
		t.Errorf("body not closed after EOF")
	}
}

func TestReader_StopFlagAbortsBetweenFragments(t *testing.T) {
	stop := NewStopFlag()
	body := &scriptedBody{chunks: chunks("one", "two", "three")}
	r := NewReader(body, stop)

	acc := NewAccumulator()
	err := r.Process(context.Background(), func(f string) {
		acc.Add(f)
		if acc.Fragments() == 2 {
			stop.Set()
		}
	})

	if !errors.Is(err, ErrAborted) {
		t.Fatalf("Process() error = %v, want ErrAborted", err)
	}
	// Partial content up to the abort survives intact.
	if acc.Content() != "onetwo" {
		t.Errorf("Content() = %q, want %q", acc.Content(), "onetwo")
	}
	if !body.closed {
		t.Errorf("body not closed after abort")
	}
}

func TestReader_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	body := &scriptedBody{chunks: chunks("never")}
	r := NewReader(body, nil)

	err := r.Process(ctx, func(string) {
		t.Fatalf("callback fired after cancellation")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Process() error = %v, want context.Canceled", err)
	}
}

func TestReader_SplitRuneAcrossReads(t *testing.T) {
	// "é" is 0xC3 0xA9; split it across two reads.
	body := &scriptedBody{chunks: [][]byte{
		append([]byte("caf"), 0xC3),
		{0xA9, '!'},
	}}
	r := NewReader(body, nil)

	var got string
	err := r.Process(context.Background(), func(f string) {
		got += f
	})
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if got != "café!" {
		t.Errorf("accumulated = %q, want %q", got, "café!")
	}
}

func TestReader_InvalidBytesFatal(t *testing.T) {
	body := &scriptedBody{chunks: [][]byte{
		{0xFF, 0xFE, 0xFD, 0xFC, 0xFB},
	}}
	r := NewReader(body, nil)

	err := r.Process(context.Background(), func(string) {})
	var derr *DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("Process() error = %v, want *DecodeError", err)
	}
}

func TestReader_TruncatedRuneAtEOF(t *testing.T) {
	body := &scriptedBody{chunks: [][]byte{
		append([]byte("ok"), 0xC3), // stream dies mid-rune
	}}
	r := NewReader(body, nil)

	var got string
	err := r.Process(context.Background(), func(f string) {
		got += f
	})
	var derr *DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("Process() error = %v, want *DecodeError", err)
	}
	if got != "ok" {
		t.Errorf("complete prefix = %q, want %q", got, "ok")
	}
}

func TestReader_ReadErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	body := &scriptedBody{chunks: chunks("partial"), err: boom}
	r := NewReader(body, nil)

	var got string
	err := r.Process(context.Background(), func(f string) {
		got += f
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Process() error = %v, want %v", err, boom)
	}
	if got != "partial" {
		t.Errorf("fragments before failure = %q, want %q", got, "partial")
	}
}

// =============================================================================
// ACCUMULATOR TESTS
// =============================================================================

func TestAccumulator(t *testing.T) {
	acc := NewAccumulator()
	if !acc.First() {
		t.Errorf("First() = false on empty accumulator")
	}

	if got := acc.Add("Hel"); got != "Hel" {
		t.Errorf("Add() = %q, want %q", got, "Hel")
	}
	if got := acc.Add("lo"); got != "Hello" {
		t.Errorf("Add() = %q, want %q", got, "Hello")
	}
	if acc.First() {
		t.Errorf("First() = true after fragments")
	}
	if acc.Fragments() != 2 {
		t.Errorf("Fragments() = %d, want 2", acc.Fragments())
	}
}
