package executor

// Yield returns a future that is pending once, waking its task immediately,
// then ready. It lets other ready tasks run before continuing.
func Yield() Future {
	var yielded bool
	return FutureFunc(func(cx *Context) Poll {
		if yielded {
			return Ready
		}
		yielded = true
		cx.Waker().WakeByRef()
		return Pending
	})
}

// Timer is a future that becomes ready once the executor's clock reaches a
// deadline, using the integrated timer queue. On executors without timers it
// degrades to re-polling until the deadline passes.
type Timer struct {
	at Instant
}

// TimerAt returns a timer expiring at at.
func TimerAt(at Instant) *Timer { return &Timer{at: at} }

// TimerAfter returns a timer expiring ticks after the current time of the
// executor polling cx, saturating below [Never].
func TimerAfter(cx *Context, ticks uint64) *Timer {
	now := cx.Now()
	at := now + Instant(ticks)
	if at < now || at == Never {
		at = Never - 1
	}
	return &Timer{at: at}
}

// Deadline returns the expiry.
func (t *Timer) Deadline() Instant { return t.at }

// Poll implements [Future].
func (t *Timer) Poll(cx *Context) Poll {
	if cx.Now() >= t.at {
		return Ready
	}
	if !cx.WakeAt(t.at) {
		cx.Waker().WakeByRef()
	}
	return Pending
}
