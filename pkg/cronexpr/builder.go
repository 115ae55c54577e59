package cronexpr

import (
	"fmt"
	"time"
)

// Builder composes common schedules as canonical expression text without
// requiring callers to spell cron syntax. Shortcut methods validate their
// inputs eagerly; Expression() re-validates the final text through the
// parser.
type Builder struct {
	text string
	err  error
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) set(text string) *Builder {
	if b.err == nil {
		b.text = text
	}
	return b
}

func (b *Builder) fail(format string, args ...any) *Builder {
	if b.err == nil {
		b.err = fmt.Errorf("cronexpr: "+format, args...)
	}
	return b
}

func (b *Builder) checkMinute(m int) bool {
	if m < 0 || m > 59 {
		b.fail("minute %d out of range 0-59", m)
		return false
	}
	return true
}

func (b *Builder) checkHour(h int) bool {
	if h < 0 || h > 23 {
		b.fail("hour %d out of range 0-23", h)
		return false
	}
	return true
}

func (b *Builder) checkDay(d int) bool {
	if d < 1 || d > 31 {
		b.fail("day %d out of range 1-31", d)
		return false
	}
	return true
}

// EveryMinute fires at second zero of every minute.
func (b *Builder) EveryMinute() *Builder { return b.set("* * * * *") }

// HourlyAt fires once per hour at the given minute.
func (b *Builder) HourlyAt(minute int) *Builder {
	if !b.checkMinute(minute) {
		return b
	}
	return b.set(fmt.Sprintf("%d * * * *", minute))
}

// DailyAt fires once per day at the given time.
func (b *Builder) DailyAt(hour, minute int) *Builder {
	if !b.checkHour(hour) || !b.checkMinute(minute) {
		return b
	}
	return b.set(fmt.Sprintf("%d %d * * *", minute, hour))
}

// WeekdaysAt fires Monday through Friday at the given time.
func (b *Builder) WeekdaysAt(hour, minute int) *Builder {
	if !b.checkHour(hour) || !b.checkMinute(minute) {
		return b
	}
	return b.set(fmt.Sprintf("%d %d * * 1-5", minute, hour))
}

// WeeklyOn fires once per week on the given day at the given time.
func (b *Builder) WeeklyOn(day time.Weekday, hour, minute int) *Builder {
	if day < time.Sunday || day > time.Saturday {
		return b.fail("weekday %d out of range 0-6", day)
	}
	if !b.checkHour(hour) || !b.checkMinute(minute) {
		return b
	}
	return b.set(fmt.Sprintf("%d %d * * %d", minute, hour, int(day)))
}

// MonthlyOn fires once per month on the given day at the given time.
func (b *Builder) MonthlyOn(day, hour, minute int) *Builder {
	if !b.checkDay(day) || !b.checkHour(hour) || !b.checkMinute(minute) {
		return b
	}
	return b.set(fmt.Sprintf("%d %d %d * *", minute, hour, day))
}

// MonthlyOnLastDay fires on the last day of every month at the given time.
func (b *Builder) MonthlyOnLastDay(hour, minute int) *Builder {
	if !b.checkHour(hour) || !b.checkMinute(minute) {
		return b
	}
	return b.set(fmt.Sprintf("%d %d L * *", minute, hour))
}

// Text returns the composed expression text (empty until a shortcut ran).
func (b *Builder) Text() string { return b.text }

// Expression parses the composed text, surfacing the first shortcut error
// if one occurred.
func (b *Builder) Expression() (*Expression, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.text == "" {
		return nil, fmt.Errorf("cronexpr: builder has no schedule")
	}
	return Parse(b.text)
}
