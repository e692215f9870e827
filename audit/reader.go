package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Reader replays a journal file entry by entry. It is strict: a
// malformed line is an error. Use Scan for lenient scanning.
type Reader struct {
	scanner *bufio.Scanner
	file    *os.File
}

// NewReader opens a journal file for reading.
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path) // #nosec G304 -- path comes from the session log
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}

	return &Reader{
		scanner: bufio.NewScanner(file),
		file:    file,
	}, nil
}

// Next reads the next entry, returning io.EOF at end of journal.
func (r *Reader) Next() (*Entry, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	var entry Entry
	if err := json.Unmarshal(r.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}

	return &entry, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Scan walks a journal file in write order, skipping malformed lines.
// A partial trailing line from a crashed writer must not poison reads
// of the rest of the session.
func Scan(path string, fn func(Entry)) error {
	file, err := os.Open(path) // #nosec G304 -- path comes from the session log
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		fn(entry)
	}
	return scanner.Err()
}
