// Package pktline implements git's pkt-line framing, the line-oriented
// format used by the smart HTTP protocol to carry ref advertisements and
// upload-pack negotiation.
//
// A pkt-line is 4 ASCII lowercase hex digits giving the total length of
// the line (prefix included), followed by the payload. A length of 0000
// is the flush marker and carries no payload.
package pktline

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"golang.org/x/xerrors"
)

// ErrInvalidLength is returned when a pkt-line's length prefix isn't 4
// valid hex digits, or declares a length that doesn't fit the line.
var ErrInvalidLength = errors.New("invalid pkt-line length")

// maxLength is the largest payload+prefix a pkt-line may declare
const maxLength = 65520

// flushLength is the length prefix of a flush-pkt
const flushLength = "0000"

// Encode writes line as a single pkt-line: its 4-digit hex length prefix
// (length of the prefix plus the payload) followed by the payload itself.
func Encode(w io.Writer, line string) error {
	length := len(line) + 4
	if length > maxLength {
		return xerrors.Errorf("line too long (%d bytes): %w", length, ErrInvalidLength)
	}
	_, err := fmt.Fprintf(w, "%04x%s", length, line)
	return err
}

// Flush writes a flush-pkt ("0000")
func Flush(w io.Writer) error {
	_, err := io.WriteString(w, flushLength)
	return err
}

// Line represents a single frame read off a pkt-line stream
type Line struct {
	// Flush is true when this frame was the flush marker, in which case
	// Payload is empty
	Flush bool
	// Payload holds the frame's content, not including the 4-byte length
	// prefix
	Payload []byte
}

// Scanner reads a stream of pkt-lines
type Scanner struct {
	r *bufio.Reader
}

// NewScanner returns a Scanner reading pkt-lines from r
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReader(r)}
}

// Next reads the next pkt-line off the stream. It returns io.EOF once the
// underlying reader is exhausted.
func (s *Scanner) Next() (Line, error) {
	lengthHex := make([]byte, 4)
	if _, err := io.ReadFull(s.r, lengthHex); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Line{}, xerrors.Errorf("truncated pkt-line length: %w", ErrInvalidLength)
		}
		return Line{}, err
	}

	var length int
	if _, err := fmt.Sscanf(string(lengthHex), "%04x", &length); err != nil {
		return Line{}, xerrors.Errorf("could not parse pkt-line length %q: %w", lengthHex, ErrInvalidLength)
	}

	switch {
	case length == 0:
		return Line{Flush: true}, nil
	case length < 4:
		return Line{}, xerrors.Errorf("length %d smaller than the prefix itself: %w", length, ErrInvalidLength)
	}

	payload := make([]byte, length-4)
	if _, err := io.ReadFull(s.r, payload); err != nil {
		return Line{}, xerrors.Errorf("truncated pkt-line payload: %w", err)
	}
	return Line{Payload: payload}, nil
}

// ReadAll reads every remaining frame off the stream, stopping at io.EOF
func (s *Scanner) ReadAll() ([]Line, error) {
	var lines []Line
	for {
		line, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return lines, nil
			}
			return nil, err
		}
		lines = append(lines, line)
	}
}
