package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTimerHeaders(expiries ...Instant) []*TaskHeader {
	hs := make([]*TaskHeader, len(expiries))
	for i, at := range expiries {
		hs[i] = &TaskHeader{expiresAt: at}
	}
	return hs
}

func timerOrder(q *timerQueue) []Instant {
	var out []Instant
	for h := q.head; h != nil; h = h.timerNext {
		out = append(out, h.expiresAt)
	}
	return out
}

func TestTimerQueue_Ordering(t *testing.T) {
	var q timerQueue
	assert.Equal(t, Never, q.nextExpiration())

	for _, h := range newTimerHeaders(30, 10, 20, 10, Never) {
		q.update(h)
	}
	assert.Equal(t, []Instant{10, 10, 20, 30}, timerOrder(&q))
	assert.Equal(t, 4, q.len)
	assert.Equal(t, Instant(10), q.nextExpiration())
}

func TestTimerQueue_Update(t *testing.T) {
	var q timerQueue
	hs := newTimerHeaders(10, 20, 30)
	for _, h := range hs {
		q.update(h)
	}

	hs[0].expiresAt = 25
	q.update(hs[0])
	assert.Equal(t, []Instant{20, 25, 30}, timerOrder(&q))

	// still in place
	hs[2].expiresAt = 28
	q.update(hs[2])
	assert.Equal(t, []Instant{20, 25, 28}, timerOrder(&q))

	hs[1].expiresAt = Never
	q.update(hs[1])
	assert.False(t, hs[1].timerLink)
	assert.Equal(t, []Instant{25, 28}, timerOrder(&q))
	assert.Equal(t, 2, q.len)
}

func TestTimerQueue_Remove(t *testing.T) {
	var q timerQueue
	hs := newTimerHeaders(1, 2, 3)
	for _, h := range hs {
		q.update(h)
	}
	q.remove(hs[1])
	q.remove(hs[1])
	assert.Equal(t, []Instant{1, 3}, timerOrder(&q))
	q.remove(hs[0])
	assert.Equal(t, []Instant{3}, timerOrder(&q))
	q.remove(hs[2])
	assert.Nil(t, q.head)
	assert.Equal(t, 0, q.len)
	assert.Equal(t, Instant(3), hs[2].expiresAt)
}

func TestTimerQueue_DequeueExpired(t *testing.T) {
	var q timerQueue
	hs := newTimerHeaders(5, 10, 15, 10)
	for _, h := range hs {
		q.update(h)
	}

	var fired []*TaskHeader
	n := q.dequeueExpired(10, func(h *TaskHeader) {
		require.False(t, h.timerLink)
		require.Equal(t, Never, h.expiresAt)
		fired = append(fired, h)
	})
	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []*TaskHeader{hs[0], hs[1], hs[3]}, fired)
	assert.Equal(t, Instant(15), q.nextExpiration())

	assert.Zero(t, q.dequeueExpired(14, func(*TaskHeader) { t.Fatal("unexpected expiry") }))
}
