package client

import (
	"time"
)

// rateBudget tracks the two quota windows the marketplace enforces: a
// fixed one-second bucket and a UTC-day window. Counters only ever move
// forward inside a window; crossing a boundary resets them.
//
// The budget is not safe for concurrent use on its own; the Client guards
// it with its mutex.
type rateBudget struct {
	perSecond int
	perDay    int

	secondStart time.Time
	secondUsed  int

	dayStart time.Time
	dayUsed  int
}

func newRateBudget(perSecond, perDay int, now time.Time) *rateBudget {
	if perSecond < 1 {
		perSecond = 1
	}
	if perDay < 1 {
		perDay = 1
	}
	return &rateBudget{
		perSecond:   perSecond,
		perDay:      perDay,
		secondStart: now.Truncate(time.Second),
		dayStart:    dayStartUTC(now),
	}
}

func dayStartUTC(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// roll resets any window whose boundary has been crossed.
func (b *rateBudget) roll(now time.Time) {
	if sec := now.Truncate(time.Second); sec.After(b.secondStart) {
		b.secondStart = sec
		b.secondUsed = 0
	}
	if day := dayStartUTC(now); day.After(b.dayStart) {
		b.dayStart = day
		b.dayUsed = 0
	}
}

// available reports whether both windows have remaining capacity.
func (b *rateBudget) available(now time.Time) bool {
	b.roll(now)
	return b.secondUsed < b.perSecond && b.dayUsed < b.perDay
}

// consume takes one call from both windows. Callers must have observed
// available() under the same lock.
func (b *rateBudget) consume(now time.Time) {
	b.roll(now)
	b.secondUsed++
	b.dayUsed++
}

// nextReset returns the earliest instant at which blocked capacity frees
// up: the next second boundary unless the day window is what is exhausted.
func (b *rateBudget) nextReset(now time.Time) time.Time {
	b.roll(now)
	if b.dayUsed >= b.perDay {
		return b.dayStart.Add(24 * time.Hour)
	}
	return b.secondStart.Add(time.Second)
}

func (b *rateBudget) remainingSecond(now time.Time) int {
	b.roll(now)
	return b.perSecond - b.secondUsed
}

func (b *rateBudget) remainingDay(now time.Time) int {
	b.roll(now)
	return b.perDay - b.dayUsed
}

// restoreDay seeds the day window from persisted state. Stale state from a
// previous UTC day is ignored.
func (b *rateBudget) restoreDay(used int, dayStart time.Time, now time.Time) {
	if used <= 0 {
		return
	}
	if !dayStartUTC(now).Equal(dayStartUTC(dayStart)) {
		return
	}
	if used > b.perDay {
		used = b.perDay
	}
	b.dayUsed = used
}
