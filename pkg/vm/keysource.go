package vm

import (
	"bufio"
	"context"
	"io"

	"mcl/pkg/cpu"
)

// BackspaceKey is the sentinel 6-bit code KEYIN never produces from
// the character table itself (every table entry is <64 and none of
// this package's sources ever encode 0x3F), reserved for backspace —
// grounded on original_source/src/vm/cpu.py's ring-buffer input queue,
// which tracks backspace as a distinct edit operation rather than a
// character.
const BackspaceKey uint16 = 0x3F

// QueueKeySource is a ring-buffer KeySource: Push appends a key code
// without blocking, NextKey blocks until one is available or ctx is
// done. It is the key sink a display collaborator feeds from keyboard
// events, and is reused directly by tests that need to inject input
// without a real terminal.
type QueueKeySource struct {
	ch chan uint16
}

// NewQueueKeySource returns a QueueKeySource buffering up to capacity
// keys; Push drops any key beyond that.
func NewQueueKeySource(capacity int) *QueueKeySource {
	return &QueueKeySource{ch: make(chan uint16, capacity)}
}

// Push enqueues a key code, dropping it if the queue is full rather
// than blocking the caller (typically an input-polling loop that must
// not stall on a full queue).
func (q *QueueKeySource) Push(code uint16) {
	select {
	case q.ch <- code:
	default:
	}
}

// PushRune encodes r through the MCL character table and pushes it,
// for callers working with raw keyboard/text input.
func (q *QueueKeySource) PushRune(r rune) {
	q.Push(uint16(cpu.EncodeChar(r)))
}

func (q *QueueKeySource) NextKey(ctx context.Context) (uint16, bool) {
	select {
	case code := <-q.ch:
		return code, true
	case <-ctx.Done():
		return 0, false
	}
}

// StdinKeySource reads runes from r (typically os.Stdin), encoding each
// through the MCL character table. Reads happen on a background
// goroutine so a cancelled context can unblock NextKey even while a
// read is pending on an interactive terminal.
type StdinKeySource struct {
	runes chan rune
	errs  chan error
}

// NewStdinKeySource starts the background reader over r and returns a
// ready-to-use key source, for cmd/mcl run --headless.
func NewStdinKeySource(r io.Reader) *StdinKeySource {
	s := &StdinKeySource{
		runes: make(chan rune),
		errs:  make(chan error, 1),
	}
	go s.readLoop(r)
	return s
}

func (s *StdinKeySource) readLoop(r io.Reader) {
	br := bufio.NewReader(r)
	for {
		ch, _, err := br.ReadRune()
		if err != nil {
			s.errs <- err
			return
		}
		s.runes <- ch
	}
}

func (s *StdinKeySource) NextKey(ctx context.Context) (uint16, bool) {
	select {
	case ch := <-s.runes:
		if ch == '\b' || ch == 0x7F {
			return BackspaceKey, true
		}
		return uint16(cpu.EncodeChar(ch)), true
	case <-s.errs:
		return 0, false
	case <-ctx.Done():
		return 0, false
	}
}
