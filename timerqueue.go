package executor

// timerQueue orders tasks by TaskHeader.expiresAt, earliest first.
//
// It is intrusive (threaded through timerPrev/timerNext) and owned by the
// executor goroutine: tasks only register timers from within their own poll,
// so no synchronization is needed. Each task has a single slot, so a task is
// linked at most once.
type timerQueue struct {
	head *TaskHeader
	len  int
}

// update repositions h according to its current expiresAt, unlinking it if
// the expiry is Never.
func (q *timerQueue) update(h *TaskHeader) {
	if h.timerLink {
		if h.expiresAt != Never && q.inPlace(h) {
			return
		}
		q.remove(h)
	}
	if h.expiresAt == Never {
		return
	}
	q.insert(h)
}

// inPlace reports whether a linked h is still correctly ordered.
func (q *timerQueue) inPlace(h *TaskHeader) bool {
	return (h.timerPrev == nil || h.timerPrev.expiresAt <= h.expiresAt) &&
		(h.timerNext == nil || h.expiresAt <= h.timerNext.expiresAt)
}

// insert links h after every task expiring at or before it.
func (q *timerQueue) insert(h *TaskHeader) {
	var prev *TaskHeader
	next := q.head
	for next != nil && next.expiresAt <= h.expiresAt {
		prev, next = next, next.timerNext
	}
	h.timerPrev, h.timerNext = prev, next
	if prev == nil {
		q.head = h
	} else {
		prev.timerNext = h
	}
	if next != nil {
		next.timerPrev = h
	}
	h.timerLink = true
	q.len++
}

// remove unlinks h, if linked. The expiry is left untouched.
func (q *timerQueue) remove(h *TaskHeader) {
	if !h.timerLink {
		return
	}
	if h.timerPrev == nil {
		q.head = h.timerNext
	} else {
		h.timerPrev.timerNext = h.timerNext
	}
	if h.timerNext != nil {
		h.timerNext.timerPrev = h.timerPrev
	}
	h.timerPrev, h.timerNext = nil, nil
	h.timerLink = false
	q.len--
}

// nextExpiration returns the earliest expiry, or Never.
func (q *timerQueue) nextExpiration() Instant {
	if q.head == nil {
		return Never
	}
	return q.head.expiresAt
}

// dequeueExpired unlinks every task expiring at or before now, resets its
// expiry to Never, and calls fn for it. It returns the number of tasks.
func (q *timerQueue) dequeueExpired(now Instant, fn func(h *TaskHeader)) int {
	var n int
	for h := q.head; h != nil && h.expiresAt <= now; h = q.head {
		q.remove(h)
		h.expiresAt = Never
		fn(h)
		n++
	}
	return n
}
