package requester

import (
	"sync"
	"time"

	"outcode-retriever/utils"
)

// Unit is a calendar time unit a call budget can be attached to.
type Unit string

const (
	Second Unit = "second"
	Minute Unit = "minute"
	Hour   Unit = "hour"
	Day    Unit = "day"
	Month  Unit = "month"
	Year   Unit = "year"
)

// checkOrder is the order in which budgets are examined.
var checkOrder = []Unit{Hour, Minute, Second, Day, Month, Year}

// Limits holds an optional maximum call count per unit. Nil imposes no limit.
type Limits struct {
	PerSecond *int
	PerMinute *int
	PerHour   *int
	PerDay    *int
	PerMonth  *int
	PerYear   *int
}

func (l Limits) asMap() map[Unit]int {
	m := make(map[Unit]int)
	for unit, v := range map[Unit]*int{
		Second: l.PerSecond,
		Minute: l.PerMinute,
		Hour:   l.PerHour,
		Day:    l.PerDay,
		Month:  l.PerMonth,
		Year:   l.PerYear,
	} {
		if v != nil {
			m[unit] = *v
		}
	}
	return m
}

// Limiter enforces per-unit call budgets. CheckLimitsAndWait must run before
// every outbound call and IncrementCount after it; Acquire does both at once.
// Counters are only examined and reset when a call checks them; there is no
// background timer.
type Limiter struct {
	mu        sync.Mutex
	limits    map[Unit]int
	calls     map[Unit]int
	lastCheck map[Unit]time.Time
	total     int

	now    func() time.Time
	sleep  func(time.Duration)
	logger *utils.Logger
}

// NewLimiter creates a Limiter. A nil logger disables sleep logging.
func NewLimiter(limits Limits, logger *utils.Logger) *Limiter {
	return &Limiter{
		limits:    limits.asMap(),
		calls:     make(map[Unit]int),
		lastCheck: make(map[Unit]time.Time),
		now:       time.Now,
		sleep:     time.Sleep,
		logger:    logger,
	}
}

// CheckLimitsAndWait blocks until every configured budget has room for one
// more call.
func (l *Limiter) CheckLimitsAndWait() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waitLocked()
}

// IncrementCount records one completed call against every budget.
func (l *Limiter) IncrementCount() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.countLocked()
}

// Acquire waits for room in every budget and records the call in one locked
// step. Concurrent callers sharing the Limiter use it so that no two of them
// can claim the last slot of a window.
func (l *Limiter) Acquire() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waitLocked()
	l.countLocked()
}

func (l *Limiter) waitLocked() {
	for _, unit := range checkOrder {
		limit, ok := l.limits[unit]
		if !ok {
			continue
		}
		if last, seen := l.lastCheck[unit]; seen && l.calls[unit] >= limit {
			wait := IncrementTimeUnit(last, unit).Sub(l.now())
			if wait > 0 {
				if l.logger != nil {
					l.logger.Info("[limiter] Exceeded per %s limit of %d. Sleeping for %.2f seconds...",
						unit, limit, wait.Seconds())
				}
				l.sleep(wait)
			}
			l.calls[unit] = 0
		}
		l.lastCheck[unit] = l.now()
	}
}

func (l *Limiter) countLocked() {
	l.total++
	for unit := range l.limits {
		l.calls[unit]++
	}
}

// TotalCalls returns the number of calls recorded so far.
func (l *Limiter) TotalCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// IncrementTimeUnit returns t advanced by one unit. Months and years are
// stepped on the calendar: December rolls into January of the next year and
// the day is clamped to the length of the target month.
func IncrementTimeUnit(t time.Time, unit Unit) time.Time {
	switch unit {
	case Second:
		return t.Add(time.Second)
	case Minute:
		return t.Add(time.Minute)
	case Hour:
		return t.Add(time.Hour)
	case Day:
		return t.AddDate(0, 0, 1)
	case Month:
		year, month := t.Year(), t.Month()
		if month == time.December {
			year++
			month = time.January
		} else {
			month++
		}
		return calendarDate(t, year, month)
	case Year:
		return calendarDate(t, t.Year()+1, t.Month())
	}
	return t
}

func calendarDate(t time.Time, year int, month time.Month) time.Time {
	day := t.Day()
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
