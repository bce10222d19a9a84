// Package typing implements the per-conversation typing-indicator state
// machine (§4.8). It generalizes the channel-level typing.Controller used
// at the discord.go/handlers.go/channel.go call sites — MaxDuration,
// KeepaliveInterval, and StartFn are kept — into the richer
// ensureStart/startTypingLoop/refreshTypingTtl/markRunComplete/
// markDispatchIdle state machine the spec describes, including the
// sealed-after-both-complete invariant those call sites never needed
// because they always stopped the controller explicitly.
package typing

import (
	"strings"
	"sync"
	"time"
)

const (
	defaultTypingIntervalSeconds          = 6
	defaultTypingTTLSeconds               = 120
	defaultTypingTimeoutReminderInterval  = 5 * time.Minute
)

// Options configures a Controller. OnReplyStart is the external callback
// invoked to (re)signal typing — e.g. ChannelTyping on Discord. MaxDuration
// and KeepaliveInterval are kept for channels that still want the simple
// start/stop shape; the spec's richer fields (TypingIntervalSeconds,
// TypingTtlSeconds, OnTypingTimeout, TypingTimeoutReminderIntervalMs,
// SilentReplyToken) drive the full state machine.
type Options struct {
	MaxDuration       time.Duration
	KeepaliveInterval time.Duration
	StartFn           func() error

	OnReplyStart    func()
	OnTypingTimeout func(elapsed time.Duration)

	TypingIntervalSeconds           int
	TypingTtlSeconds                int
	TypingTimeoutReminderIntervalMs int
	SilentReplyToken                string
}

func (o Options) typingInterval() time.Duration {
	if o.TypingIntervalSeconds > 0 {
		return time.Duration(o.TypingIntervalSeconds) * time.Second
	}
	if o.KeepaliveInterval > 0 {
		return o.KeepaliveInterval
	}
	return defaultTypingIntervalSeconds * time.Second
}

func (o Options) typingTTL() time.Duration {
	if o.TypingTtlSeconds > 0 {
		return time.Duration(o.TypingTtlSeconds) * time.Second
	}
	if o.MaxDuration > 0 {
		return o.MaxDuration
	}
	return defaultTypingTTLSeconds * time.Second
}

func (o Options) reminderInterval() time.Duration {
	if o.TypingTimeoutReminderIntervalMs > 0 {
		return time.Duration(o.TypingTimeoutReminderIntervalMs) * time.Millisecond
	}
	return defaultTypingTimeoutReminderInterval
}

func (o Options) onReplyStart() {
	if o.OnReplyStart != nil {
		o.OnReplyStart()
		return
	}
	if o.StartFn != nil {
		o.StartFn()
	}
}

// Controller is the per-conversation typing state machine of §4.8. Once
// sealed (both markRunComplete and markDispatchIdle have fired), every
// operation is a no-op — late events from a stale tool-stream can never
// restart typing after the final reply was delivered.
type Controller struct {
	mu sync.Mutex

	opts Options

	started      bool
	active       bool
	runComplete  bool
	dispatchIdle bool
	sealed       bool

	typingStartedAt time.Time

	typingTimer      *time.Timer
	typingTtlTimer   *time.Timer
	reminderTimer    *time.Timer
}

// New constructs a Controller. Kept as the teacher's entry point name
// (typing.New) so call sites read the same as before.
func New(opts Options) *Controller {
	return &Controller{opts: opts}
}

// Start is the teacher-shaped convenience entry point: ensureStart followed
// by startTypingLoop, for callers that don't need the finer-grained state
// machine.
func (c *Controller) Start() {
	c.ensureStart()
	c.startTypingLoop()
}

// Stop is the teacher-shaped convenience exit point: seals the controller
// immediately, as if both completion flags had fired.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
}

// ensureStart marks the controller active and, on first activation, fires
// OnReplyStart once immediately.
func (c *Controller) ensureStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed || c.runComplete {
		return
	}
	c.active = true
	if !c.started {
		c.started = true
		c.opts.onReplyStart()
	}
}

// startTypingLoop is idempotent: it always refreshes the TTL timer, and
// installs the periodic timer only if one isn't already running.
func (c *Controller) startTypingLoop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed || c.runComplete {
		return
	}
	c.refreshTypingTtlLocked()
	if c.typingTimer == nil {
		c.typingStartedAt = time.Now()
		c.installPeriodicTimerLocked()
	}
}

func (c *Controller) installPeriodicTimerLocked() {
	interval := c.opts.typingInterval()
	c.typingTimer = time.AfterFunc(interval, func() {
		c.onPeriodicTick()
	})
}

func (c *Controller) onPeriodicTick() {
	c.mu.Lock()
	if c.sealed || c.runComplete {
		c.mu.Unlock()
		return
	}
	c.installPeriodicTimerLocked()
	c.mu.Unlock()
	c.opts.onReplyStart()
}

// StartTypingOnText skips empty text and the configured silent-reply
// token, otherwise delegating to startTypingLoop.
func (c *Controller) StartTypingOnText(text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}
	if c.opts.SilentReplyToken != "" && trimmed == c.opts.SilentReplyToken {
		return
	}
	c.startTypingLoop()
}

// refreshTypingTtl resets the TTL deadline; on expiry it stops the
// periodic timer (but not the controller) and, if OnTypingTimeout is
// configured, fires it once and then installs a recurring reminder.
func (c *Controller) refreshTypingTtl() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshTypingTtlLocked()
}

func (c *Controller) refreshTypingTtlLocked() {
	if c.typingTtlTimer != nil {
		c.typingTtlTimer.Stop()
	}
	ttl := c.opts.typingTTL()
	c.typingTtlTimer = time.AfterFunc(ttl, c.onTypingTTLExpired)
}

func (c *Controller) onTypingTTLExpired() {
	c.mu.Lock()
	if c.sealed {
		c.mu.Unlock()
		return
	}
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	startedAt := c.typingStartedAt
	hasStart := !startedAt.IsZero()
	c.mu.Unlock()

	if c.opts.OnTypingTimeout != nil && hasStart {
		c.opts.OnTypingTimeout(time.Since(startedAt))
		c.installReminderTimer()
	}
}

func (c *Controller) installReminderTimer() {
	c.mu.Lock()
	if c.sealed || c.runComplete {
		c.mu.Unlock()
		return
	}
	interval := c.opts.reminderInterval()
	c.reminderTimer = time.AfterFunc(interval, c.onReminderTick)
	c.mu.Unlock()
}

func (c *Controller) onReminderTick() {
	c.mu.Lock()
	if c.sealed || c.runComplete {
		c.mu.Unlock()
		return
	}
	startedAt := c.typingStartedAt
	c.mu.Unlock()

	if c.opts.OnTypingTimeout != nil {
		c.opts.OnTypingTimeout(time.Since(startedAt))
	}
	c.installReminderTimer()
}

// MarkRunComplete and MarkDispatchIdle set their respective flag; once both
// are set, the controller seals itself permanently for this cycle.
func (c *Controller) MarkRunComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runComplete = true
	if c.dispatchIdle {
		c.cleanupLocked()
	}
}

func (c *Controller) MarkDispatchIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatchIdle = true
	if c.runComplete {
		c.cleanupLocked()
	}
}

// cleanupLocked stops every timer, resets the cycle flags, and seals the
// controller. Must be called with c.mu held.
func (c *Controller) cleanupLocked() {
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	if c.typingTtlTimer != nil {
		c.typingTtlTimer.Stop()
		c.typingTtlTimer = nil
	}
	if c.reminderTimer != nil {
		c.reminderTimer.Stop()
		c.reminderTimer = nil
	}
	c.started = false
	c.active = false
	c.sealed = true
}

// Sealed reports whether this controller has been permanently sealed for
// its cycle — exposed for tests asserting late events are no-ops.
func (c *Controller) Sealed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sealed
}
