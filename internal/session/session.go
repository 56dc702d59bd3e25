package session

import (
	"sync"
	"time"
)

// Session buffers the audio chunks of one live meeting stream. Chunk indexes
// start at 1 and never reset; a successful flush drops the chunks it covered.
// Several connections may feed one session.
type Session struct {
	MeetingID string
	StartedAt time.Time

	mu      sync.Mutex
	pending [][]byte
	flushed int
	count   int

	flushMu sync.Mutex

	// refs counts attached connections, guarded by the owning Registry.
	refs int
}

func newSession(meetingID string, now time.Time) *Session {
	return &Session{MeetingID: meetingID, StartedAt: now}
}

// Append buffers a chunk and returns the new chunk count. Empty chunks are
// ignored and reported with ok false.
func (s *Session) Append(chunk []byte) (count int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(chunk) == 0 {
		return s.count, false
	}
	s.pending = append(s.pending, chunk)
	s.count++
	return s.count, true
}

// Pending returns the buffered chunks with index <= upTo, oldest first.
func (s *Session) Pending(upTo int) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := upTo - s.flushed
	if n <= 0 {
		return nil
	}
	if n > len(s.pending) {
		n = len(s.pending)
	}
	out := make([][]byte, n)
	copy(out, s.pending[:n])
	return out
}

// Drop discards the buffered chunks with index <= upTo.
func (s *Session) Drop(upTo int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := upTo - s.flushed
	if n <= 0 {
		return
	}
	if n > len(s.pending) {
		n = len(s.pending)
	}
	rest := make([][]byte, len(s.pending)-n)
	copy(rest, s.pending[n:])
	s.pending = rest
	s.flushed += n
}

// Flush hands the buffered chunks with index <= upTo to fn and drops them
// once fn succeeds. Flushes of a session run one at a time, so concurrent
// callers always cover disjoint chunk ranges. ran is false when no chunk up
// to upTo was left to flush.
func (s *Session) Flush(upTo int, fn func(chunks [][]byte) error) (ran bool, err error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	chunks := s.Pending(upTo)
	if len(chunks) == 0 {
		return false, nil
	}
	if err := fn(chunks); err != nil {
		return true, err
	}
	s.Drop(upTo)
	return true, nil
}

func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Buffered is the number of chunks not yet covered by a successful flush.
func (s *Session) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
