package typing

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestEnsureStartFiresOnReplyStartOnce(t *testing.T) {
	var calls int32
	c := New(Options{OnReplyStart: func() { atomic.AddInt32(&calls, 1) }})

	c.ensureStart()
	c.ensureStart()
	c.ensureStart()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("OnReplyStart called %d times, want 1", got)
	}
}

func TestEnsureStartNoopWhenSealed(t *testing.T) {
	var calls int32
	c := New(Options{OnReplyStart: func() { atomic.AddInt32(&calls, 1) }})
	c.MarkRunComplete()
	c.MarkDispatchIdle()

	c.ensureStart()

	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("expected no OnReplyStart calls once sealed, got %d", got)
	}
}

func TestStartTypingOnTextSkipsEmptyAndSilentToken(t *testing.T) {
	var calls int32
	c := New(Options{
		OnReplyStart:           func() { atomic.AddInt32(&calls, 1) },
		TypingIntervalSeconds:  1,
		SilentReplyToken:       "NO_REPLY",
	})

	c.StartTypingOnText("")
	c.StartTypingOnText("   ")
	c.StartTypingOnText("NO_REPLY")

	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("expected no typing loop start for empty/silent text, got %d calls", got)
	}
}

func TestStartTypingOnTextStartsLoopForRealText(t *testing.T) {
	var calls int32
	c := New(Options{
		OnReplyStart:          func() { atomic.AddInt32(&calls, 1) },
		TypingIntervalSeconds: 1,
	})
	defer c.Stop()

	c.StartTypingOnText("hello there")
	time.Sleep(50 * time.Millisecond)

	if c.typingTimer == nil {
		t.Error("expected periodic timer to be installed")
	}
}

// TestS6TypingSeal is the literal S6 scenario: after markRunComplete &&
// markDispatchIdle, no further onReplyStart is invoked, even if a stale
// event tries to restart typing.
func TestS6TypingSeal(t *testing.T) {
	var calls int32
	c := New(Options{
		OnReplyStart:          func() { atomic.AddInt32(&calls, 1) },
		TypingIntervalSeconds: 1,
	})

	c.Start()
	time.Sleep(10 * time.Millisecond)
	before := atomic.LoadInt32(&calls)

	c.MarkRunComplete()
	c.MarkDispatchIdle()

	if !c.Sealed() {
		t.Fatal("expected controller to be sealed after both flags set")
	}

	// Simulate a stale tool-stream event arriving after sealing.
	c.ensureStart()
	c.startTypingLoop()
	c.StartTypingOnText("late text")

	time.Sleep(20 * time.Millisecond)
	after := atomic.LoadInt32(&calls)
	if after != before {
		t.Errorf("onReplyStart call count changed after seal: before=%d after=%d", before, after)
	}
}

func TestRefreshTypingTtlStopsPeriodicTimerOnExpiry(t *testing.T) {
	var timeoutCalled int32
	c := New(Options{
		OnReplyStart:          func() {},
		TypingIntervalSeconds: 1,
		TypingTtlSeconds:      1,
		OnTypingTimeout: func(elapsed time.Duration) {
			atomic.AddInt32(&timeoutCalled, 1)
		},
	})
	defer c.Stop()

	c.startTypingLoop()
	c.typingStartedAt = time.Now()
	c.onTypingTTLExpired()

	if c.typingTimer != nil {
		t.Error("expected periodic timer to be stopped on TTL expiry")
	}
	if got := atomic.LoadInt32(&timeoutCalled); got != 1 {
		t.Errorf("expected OnTypingTimeout to fire once, got %d", got)
	}
}

func TestMarkCompleteAloneDoesNotSeal(t *testing.T) {
	c := New(Options{OnReplyStart: func() {}})
	c.MarkRunComplete()
	if c.Sealed() {
		t.Error("expected controller to remain unsealed with only one flag set")
	}
	c.MarkDispatchIdle()
	if !c.Sealed() {
		t.Error("expected controller to seal once both flags are set")
	}
}
