package services

import "time"

// Clock - источник текущего времени (в тестах подменяется фиксированным)
type Clock func() time.Time

// localClock хранит часовой пояс заведения и источник времени
type localClock struct {
	loc   *time.Location
	clock Clock
}

func newLocalClock(loc *time.Location) localClock {
	if loc == nil {
		loc = time.UTC
	}
	return localClock{loc: loc, clock: time.Now}
}

// localNow - текущее время в часовом поясе заведения
func (c localClock) localNow() time.Time {
	return c.clock().In(c.loc)
}
