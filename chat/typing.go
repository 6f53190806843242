package chat

import (
	"strings"
	"sync"
	"time"
)

// StopTypingDelay is the idle time after the last keystroke before `stop_typing`
// is signalled.
const StopTypingDelay = 1500 * time.Millisecond

// TypingSignaler turns local keystrokes into typing / stop_typing signals.
type TypingSignaler struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer

	typing     func()
	stopTyping func()
}

// NewTypingSignaler calls typing and stopTyping to emit the signals. stopTyping
// may be called from the timer goroutine.
func NewTypingSignaler(delay time.Duration, typing, stopTyping func()) *TypingSignaler {
	if delay <= 0 {
		delay = StopTypingDelay
	}
	return &TypingSignaler{
		delay:      delay,
		typing:     typing,
		stopTyping: stopTyping,
	}
}

// Keystroke handles a change of the input text.
func (t *TypingSignaler) Keystroke(text string) {
	if strings.TrimSpace(text) != "" {
		t.typing()
	} else {
		t.stopTyping()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.delay, t.stopTyping)
}

// Sent signals stop_typing right away and cancels the pending timer.
func (t *TypingSignaler) Sent() {
	t.Stop()
	t.stopTyping()
}

// Stop cancels the pending timer without signalling.
func (t *TypingSignaler) Stop() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()
}

// TypingIndicator is whether the peer is typing. Events of other users are ignored.
type TypingIndicator struct {
	peer   string
	typing bool
}

func NewTypingIndicator(peer string) *TypingIndicator {
	return &TypingIndicator{peer: peer}
}

// Set applies a typing (true) or stop_typing (false) event from `from` and
// reports whether the state changed.
func (t *TypingIndicator) Set(from string, typing bool) bool {
	if from != "" && from != t.peer {
		return false
	}
	if t.typing == typing {
		return false
	}
	t.typing = typing
	return true
}

func (t *TypingIndicator) Typing() bool {
	return t.typing
}
