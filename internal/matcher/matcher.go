// Package matcher recognises fixed byte markers in a live byte stream.
//
// The matcher is a Knuth-Morris-Pratt automaton: each pattern gets a
// precomputed failure table, so a mismatch falls back to the longest prefix
// that is still a suffix of the bytes seen so far instead of restarting from
// zero. Markers that repeat their own prefix ("aab" inside "aaab") are
// therefore found, and no byte of the stream is ever buffered or re-read.
package matcher

import (
	"bytes"
	"fmt"
	"time"
)

// ByteReader is a byte source with an explicit wait per read.
type ByteReader interface {
	ReceiveByte(timeout time.Duration) (byte, error)
}

// Matcher tracks progress towards one pattern. The zero value is not usable;
// create matchers with New.
type Matcher struct {
	pattern []byte
	fail    []int
	state   int
}

// New builds a matcher for pattern. It panics if pattern is empty.
func New(pattern []byte) *Matcher {
	if len(pattern) == 0 {
		panic("matcher: empty pattern")
	}

	p := bytes.Clone(pattern)
	return &Matcher{
		pattern: p,
		fail:    failureTable(p),
	}
}

// failureTable returns, for every prefix length i+1, the length of the
// longest proper prefix of p that is also a suffix of p[:i+1].
func failureTable(p []byte) []int {
	fail := make([]int, len(p))
	k := 0
	for i := 1; i < len(p); i++ {
		for k > 0 && p[i] != p[k] {
			k = fail[k-1]
		}
		if p[i] == p[k] {
			k++
		}
		fail[i] = k
	}
	return fail
}

// Feed advances the automaton by one byte and reports whether the pattern
// has just been completed. After a match the matcher starts over.
func (m *Matcher) Feed(b byte) bool {
	for m.state > 0 && b != m.pattern[m.state] {
		m.state = m.fail[m.state-1]
	}
	if b == m.pattern[m.state] {
		m.state++
	}

	if m.state == len(m.pattern) {
		m.state = 0
		return true
	}
	return false
}

// Progress returns how many bytes of the pattern are currently matched.
func (m *Matcher) Progress() int {
	return m.state
}

// Pattern returns a copy of the pattern.
func (m *Matcher) Pattern() []byte {
	return bytes.Clone(m.pattern)
}

func (m *Matcher) Reset() {
	m.state = 0
}

// ReadUntil consumes bytes from r until pattern has been seen as a
// contiguous run, and returns how many bytes it consumed. It stops at the
// last byte of the match, leaving everything after it unread.
//
// Errors from r are returned wrapped, so callers can still tell a timeout
// from a disconnect with errors.Is.
func ReadUntil(r ByteReader, pattern []byte, timeout time.Duration) (int64, error) {
	m := New(pattern)

	var consumed int64
	for {
		b, err := r.ReceiveByte(timeout)
		if err != nil {
			return consumed, fmt.Errorf("waiting for %q: %w", pattern, err)
		}
		consumed++

		if m.Feed(b) {
			return consumed, nil
		}
	}
}
