package eval

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// QueueMetric names a live statistic of a contact-center queue.
type QueueMetric string

const (
	MetricAgentsStaffed   QueueMetric = "agents_staffed"
	MetricAgentsAvailable QueueMetric = "agents_available"
	MetricAgentsOnline    QueueMetric = "agents_online"
	MetricCallsWaiting    QueueMetric = "calls_waiting"
	MetricLongestWait     QueueMetric = "longest_wait"
)

// QueueStats supplies queue statistics when the configuration does not
// override them. Implementations must be safe for concurrent use.
type QueueStats interface {
	QueueStat(queue string, metric QueueMetric) (float64, bool)
}

// helpers binds the namespace functions to one evaluation's configuration.
type helpers struct {
	cfg    Config
	clock  func() time.Time
	loc    *time.Location
	queues QueueStats
}

func (h helpers) functions() map[string]function {
	return map[string]function{
		"queue.AgentStaffed":    h.queueFlag(MetricAgentsStaffed),
		"queue.AgentsAvailable": h.queueNumber(MetricAgentsAvailable),
		"queue.AgentsOnline":    h.queueNumber(MetricAgentsOnline),
		"queue.CallsWaiting":    h.queueNumber(MetricCallsWaiting),
		"queue.LongestWait":     h.queueNumber(MetricLongestWait),

		"date.After":   h.dateCompare("After", func(cur, d time.Time) bool { return cur.After(d) }),
		"date.Before":  h.dateCompare("Before", func(cur, d time.Time) bool { return cur.Before(d) }),
		"date.Equals":  h.dateCompare("Equals", func(cur, d time.Time) bool { return cur.Equal(d) }),
		"date.Between": h.dateBetween,

		"now.Before":  h.timeCompare("Before", func(cur, t int) bool { return cur < t }),
		"now.After":   h.timeCompare("After", func(cur, t int) bool { return cur > t }),
		"now.Between": h.timeBetween,

		"today.Equals":    h.todayEquals,
		"today.IsWeekend": h.todayWeekend(true),
		"today.IsWeekday": h.todayWeekend(false),
	}
}

// ---- queue ----

// queueValue resolves a statistic for the queue id: the configured value for
// that id wins, then the QueueStats source, then zero.
func (h helpers) queueValue(args []any, name string, metric QueueMetric) (float64, error) {
	if err := arity("queue."+name, args, 1); err != nil {
		return 0, err
	}
	id := toString(args[0])
	if raw, ok := h.cfg[id]; ok {
		f, ok := toFloat(ParseScalar(raw))
		if !ok {
			return 0, fmt.Errorf("configured value for queue '%s' is not numeric: %q", id, raw)
		}
		return f, nil
	}
	if h.queues != nil {
		if f, ok := h.queues.QueueStat(id, metric); ok {
			return f, nil
		}
	}
	return 0, nil
}

func (h helpers) queueFlag(metric QueueMetric) function {
	return func(args ...any) (any, error) {
		f, err := h.queueValue(args, "AgentStaffed", metric)
		return f > 0, err
	}
}

func (h helpers) queueNumber(metric QueueMetric) function {
	name := queueMethod(metric)
	return func(args ...any) (any, error) {
		return h.queueValue(args, name, metric)
	}
}

func queueMethod(m QueueMetric) string {
	switch m {
	case MetricAgentsAvailable:
		return "AgentsAvailable"
	case MetricAgentsOnline:
		return "AgentsOnline"
	case MetricCallsWaiting:
		return "CallsWaiting"
	case MetricLongestWait:
		return "LongestWait"
	}
	return "AgentStaffed"
}

// ---- date ----

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05", "2006/01/02"}

func (h helpers) now() time.Time {
	return h.clock().In(h.loc)
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return midnight(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// currentDate returns today's date at day granularity.
func (h helpers) currentDate() (time.Time, error) {
	if raw, ok := h.cfg["date"]; ok {
		return parseDate(raw, h.loc)
	}
	return midnight(h.now()), nil
}

func (h helpers) dateCompare(name string, cmp func(cur, d time.Time) bool) function {
	return func(args ...any) (any, error) {
		if err := arity("date."+name, args, 1); err != nil {
			return nil, err
		}
		cur, err := h.currentDate()
		if err != nil {
			return nil, err
		}
		d, err := parseDate(toString(args[0]), h.loc)
		if err != nil {
			return nil, err
		}
		return cmp(cur, d), nil
	}
}

// dateBetween is inclusive at both ends.
func (h helpers) dateBetween(args ...any) (any, error) {
	if err := arity("date.Between", args, 2); err != nil {
		return nil, err
	}
	cur, err := h.currentDate()
	if err != nil {
		return nil, err
	}
	from, err := parseDate(toString(args[0]), h.loc)
	if err != nil {
		return nil, err
	}
	to, err := parseDate(toString(args[1]), h.loc)
	if err != nil {
		return nil, err
	}
	return !cur.Before(from) && !cur.After(to), nil
}

// ---- now ----

// parseClock converts "HH:MM" or "HH:MM:SS" into minutes since midnight.
func parseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "15:04:05", "3:04PM", "3:04 PM"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour()*60 + t.Minute(), nil
		}
	}
	return 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
}

func (h helpers) currentClock() (int, error) {
	if raw, ok := h.cfg["now"]; ok {
		return parseClock(raw)
	}
	t := h.now()
	return t.Hour()*60 + t.Minute(), nil
}

func (h helpers) timeCompare(name string, cmp func(cur, t int) bool) function {
	return func(args ...any) (any, error) {
		if err := arity("now."+name, args, 1); err != nil {
			return nil, err
		}
		cur, err := h.currentClock()
		if err != nil {
			return nil, err
		}
		t, err := parseClock(toString(args[0]))
		if err != nil {
			return nil, err
		}
		return cmp(cur, t), nil
	}
}

// timeBetween is inclusive; a window whose start is after its end wraps
// past midnight.
func (h helpers) timeBetween(args ...any) (any, error) {
	if err := arity("now.Between", args, 2); err != nil {
		return nil, err
	}
	cur, err := h.currentClock()
	if err != nil {
		return nil, err
	}
	from, err := parseClock(toString(args[0]))
	if err != nil {
		return nil, err
	}
	to, err := parseClock(toString(args[1]))
	if err != nil {
		return nil, err
	}
	if from <= to {
		return cur >= from && cur <= to, nil
	}
	return cur >= from || cur <= to, nil
}

// ---- today ----

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

func parseWeekday(s string) (time.Weekday, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(t); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n), nil
	}
	if len(t) >= 3 {
		if d, ok := weekdays[t[:3]]; ok {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

func (h helpers) currentWeekday() (time.Weekday, error) {
	if raw, ok := h.cfg["today"]; ok {
		return parseWeekday(raw)
	}
	d, err := h.currentDate()
	if err != nil {
		return 0, err
	}
	return d.Weekday(), nil
}

func (h helpers) todayEquals(args ...any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("today.Equals expects at least one day")
	}
	cur, err := h.currentWeekday()
	if err != nil {
		return nil, err
	}
	var days []any
	for _, a := range args {
		if list, ok := a.([]any); ok {
			days = append(days, list...)
			continue
		}
		days = append(days, a)
	}
	for _, a := range days {
		d, err := parseWeekday(toString(a))
		if err != nil {
			return nil, err
		}
		if d == cur {
			return true, nil
		}
	}
	return false, nil
}

func (h helpers) todayWeekend(weekend bool) function {
	return func(args ...any) (any, error) {
		cur, err := h.currentWeekday()
		if err != nil {
			return nil, err
		}
		isWeekend := cur == time.Saturday || cur == time.Sunday
		return isWeekend == weekend, nil
	}
}
