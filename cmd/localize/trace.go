package main

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"
)

// trace writes session step records to a CSV file as the session runs.
type trace struct {
	f             *os.File
	headerWritten bool
}

// newTrace creates trace file at path.
// Returns nil if path is empty (trace disabled).
func newTrace(path string) (*trace, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating trace file: %w", err)
	}

	return &trace{f: f}, nil
}

// Write appends rec to the trace file.
func (t *trace) Write(rec record) error {
	if t == nil {
		return nil
	}
	if t.f == nil {
		return fmt.Errorf("writing trace: %w", os.ErrClosed)
	}

	records := []record{rec}

	if !t.headerWritten {
		// First write includes headers
		if err := gocsv.Marshal(records, t.f); err != nil {
			return fmt.Errorf("writing trace: %w", err)
		}
		t.headerWritten = true
	} else {
		if err := gocsv.MarshalWithoutHeaders(records, t.f); err != nil {
			return fmt.Errorf("writing trace: %w", err)
		}
	}

	return nil
}

// Close closes the trace file. Closing a closed trace is a no-op.
func (t *trace) Close() error {
	if t == nil || t.f == nil {
		return nil
	}

	f := t.f
	t.f = nil

	return f.Close()
}
