package chat

import "strings"

// Accumulator holds the running concatenation of all text tokens seen so far
// for one in-flight response. It is owned by a single goroutine per response,
// so no locking is needed.
type Accumulator struct {
	buf    strings.Builder
	tokens int
}

// Append adds one text chunk to the accumulated response.
func (a *Accumulator) Append(token string) {
	a.buf.WriteString(token)
	a.tokens++
}

// Snapshot returns the full accumulated text.
func (a *Accumulator) Snapshot() string {
	return a.buf.String()
}

// TokenCount returns the number of chunks appended so far. Tool events do
// not count; only text chunks drive the scan cadence.
func (a *Accumulator) TokenCount() int {
	return a.tokens
}
