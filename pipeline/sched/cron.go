package sched

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronFields is the explicit-field alternative to a cron expression. A nil
// field is a wildcard. Week is the ISO week number (1-53) and DayOfWeek uses
// 0 = Sunday.
type CronFields struct {
	Year      *int `yaml:"year,omitempty" json:"year,omitempty"`
	Month     *int `yaml:"month,omitempty" json:"month,omitempty"`
	Day       *int `yaml:"day,omitempty" json:"day,omitempty"`
	Week      *int `yaml:"week,omitempty" json:"week,omitempty"`
	DayOfWeek *int `yaml:"day_of_week,omitempty" json:"day_of_week,omitempty"`
	Hour      *int `yaml:"hour,omitempty" json:"hour,omitempty"`
	Minute    *int `yaml:"minute,omitempty" json:"minute,omitempty"`
	Second    *int `yaml:"second,omitempty" json:"second,omitempty"`
}

// CronConfig describes a calendar schedule. Exactly one of Expression (a
// standard 5-field cron string) or Fields must be set.
type CronConfig struct {
	Expression string      `yaml:"expression,omitempty" json:"expression,omitempty"`
	Fields     *CronFields `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// CronExpr is a parsed calendar schedule at second resolution.
type CronExpr struct {
	second     []int // 0-59
	minute     []int // 0-59
	hour       []int // 0-23
	dayOfMonth []int // 1-31
	month      []int // 1-12
	dayOfWeek  []int // 0-6 (0 = Sunday)
	year       *int  // nil = any
	week       *int  // ISO week, nil = any
}

// ParseCron parses a 5-field cron expression
// (minute hour day-of-month month day-of-week).
// Examples:
//   - "0 * * * *" - every hour at minute 0
//   - "*/15 * * * *" - every 15 minutes
//   - "0 9 * * 1-5" - 9 AM on weekdays
func ParseCron(expr string) (*CronExpr, error) {
	switch strings.ToLower(expr) {
	case "@hourly":
		expr = "0 * * * *"
	case "@daily", "@midnight":
		expr = "0 0 * * *"
	case "@weekly":
		expr = "0 0 * * 0"
	case "@monthly":
		expr = "0 0 1 * *"
	case "@yearly", "@annually":
		expr = "0 0 1 1 *"
	}

	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}

	c := &CronExpr{second: []int{0}}
	var err error

	c.minute, err = parseField(fields[0], 0, 59)
	if err != nil {
		return nil, fmt.Errorf("invalid minute field: %w", err)
	}

	c.hour, err = parseField(fields[1], 0, 23)
	if err != nil {
		return nil, fmt.Errorf("invalid hour field: %w", err)
	}

	c.dayOfMonth, err = parseField(fields[2], 1, 31)
	if err != nil {
		return nil, fmt.Errorf("invalid day-of-month field: %w", err)
	}

	c.month, err = parseField(fields[3], 1, 12)
	if err != nil {
		return nil, fmt.Errorf("invalid month field: %w", err)
	}

	c.dayOfWeek, err = parseField(fields[4], 0, 6)
	if err != nil {
		return nil, fmt.Errorf("invalid day-of-week field: %w", err)
	}

	return c, nil
}

// cronFromFields builds a schedule from explicit fields. Unset fields are
// wildcards, except that second defaults to 0 so an all-wildcard config does
// not fire every second.
func cronFromFields(f CronFields) (*CronExpr, error) {
	single := func(name string, v *int, min, max int) ([]int, error) {
		if v == nil {
			vals := make([]int, max-min+1)
			for i := range vals {
				vals[i] = min + i
			}
			return vals, nil
		}
		if *v < min || *v > max {
			return nil, fmt.Errorf("invalid %s field: value %d out of range [%d-%d]", name, *v, min, max)
		}
		return []int{*v}, nil
	}

	c := &CronExpr{year: f.Year}
	var err error
	if c.second, err = single("second", f.Second, 0, 59); err != nil {
		return nil, err
	}
	if f.Second == nil {
		c.second = []int{0}
	}
	if c.minute, err = single("minute", f.Minute, 0, 59); err != nil {
		return nil, err
	}
	if c.hour, err = single("hour", f.Hour, 0, 23); err != nil {
		return nil, err
	}
	if c.dayOfMonth, err = single("day", f.Day, 1, 31); err != nil {
		return nil, err
	}
	if c.month, err = single("month", f.Month, 1, 12); err != nil {
		return nil, err
	}
	if c.dayOfWeek, err = single("day_of_week", f.DayOfWeek, 0, 6); err != nil {
		return nil, err
	}
	if f.Week != nil {
		if *f.Week < 1 || *f.Week > 53 {
			return nil, fmt.Errorf("invalid week field: value %d out of range [1-53]", *f.Week)
		}
		c.week = f.Week
	}
	if f.Year != nil && *f.Year < 1970 {
		return nil, fmt.Errorf("invalid year field: %d", *f.Year)
	}
	return c, nil
}

// parseField parses a single cron field into its sorted set of values.
func parseField(field string, min, max int) ([]int, error) {
	if field == "*" {
		result := make([]int, max-min+1)
		for i := range result {
			result[i] = min + i
		}
		return result, nil
	}

	var result []int
	for _, part := range strings.Split(field, ",") {
		values, err := parseFieldPart(part, min, max)
		if err != nil {
			return nil, err
		}
		result = append(result, values...)
	}
	return unique(result), nil
}

// parseFieldPart parses one comma-separated part (handles ranges and steps).
func parseFieldPart(part string, min, max int) ([]int, error) {
	step := 1
	if idx := strings.Index(part, "/"); idx != -1 {
		stepStr := part[idx+1:]
		var err error
		step, err = strconv.Atoi(stepStr)
		if err != nil || step <= 0 {
			return nil, fmt.Errorf("invalid step: %s", stepStr)
		}
		part = part[:idx]
	}

	var start, end int
	if part == "*" {
		start = min
		end = max
	} else if idx := strings.Index(part, "-"); idx != -1 {
		var err error
		start, err = strconv.Atoi(part[:idx])
		if err != nil {
			return nil, fmt.Errorf("invalid range start: %s", part[:idx])
		}
		end, err = strconv.Atoi(part[idx+1:])
		if err != nil {
			return nil, fmt.Errorf("invalid range end: %s", part[idx+1:])
		}
	} else {
		var err error
		start, err = strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid value: %s", part)
		}
		end = start
	}

	if start < min || start > max {
		return nil, fmt.Errorf("value %d out of range [%d-%d]", start, min, max)
	}
	if end < min || end > max {
		return nil, fmt.Errorf("value %d out of range [%d-%d]", end, min, max)
	}
	if start > end {
		return nil, fmt.Errorf("invalid range: %d > %d", start, end)
	}

	var result []int
	for i := start; i <= end; i += step {
		result = append(result, i)
	}
	return result, nil
}

// Next returns the next time matching the schedule after from, or the zero
// time if no match exists within the search horizon.
func (c *CronExpr) Next(from time.Time) time.Time {
	t := from.Truncate(time.Second).Add(time.Second)

	// Search for up to 5 years; enough for any satisfiable year/week pin.
	maxTime := from.Add(5 * 365 * 24 * time.Hour)

	for t.Before(maxTime) {
		if c.year != nil && t.Year() != *c.year {
			if t.Year() > *c.year {
				return time.Time{}
			}
			t = time.Date(*c.year, 1, 1, 0, 0, 0, 0, t.Location())
			continue
		}

		if !contains(c.month, int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
			continue
		}

		dayMatch := contains(c.dayOfMonth, t.Day()) && contains(c.dayOfWeek, int(t.Weekday()))
		if dayMatch && c.week != nil {
			_, isoWeek := t.ISOWeek()
			dayMatch = isoWeek == *c.week
		}
		if !dayMatch {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
			continue
		}

		if !contains(c.hour, t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, t.Location())
			continue
		}

		if !contains(c.minute, t.Minute()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()+1, 0, 0, t.Location())
			continue
		}

		if !contains(c.second, t.Second()) {
			t = t.Add(time.Second)
			continue
		}

		return t
	}

	return time.Time{}
}

func contains(slice []int, val int) bool {
	for _, v := range slice {
		if v == val {
			return true
		}
	}
	return false
}

func unique(slice []int) []int {
	seen := make(map[int]bool)
	var result []int
	for _, v := range slice {
		if !seen[v] {
			seen[v] = true
			result = append(result, v)
		}
	}
	return result
}

// CronTrigger fires a RunFunc immediately on Start and then at each time
// matching its schedule.
type CronTrigger struct {
	loop
	expr *CronExpr
	now  func() time.Time
}

// NewCronTrigger builds a cron trigger from cfg.
func NewCronTrigger(cfg CronConfig, run RunFunc, opts ...Option) (*CronTrigger, error) {
	hasExpr := cfg.Expression != ""
	hasFields := cfg.Fields != nil
	if hasExpr && hasFields {
		return nil, fmt.Errorf("cron: expression and fields are mutually exclusive")
	}
	if !hasExpr && !hasFields {
		return nil, fmt.Errorf("cron: either an expression or explicit fields is required")
	}

	var expr *CronExpr
	var err error
	if hasExpr {
		expr, err = ParseCron(cfg.Expression)
	} else {
		expr, err = cronFromFields(*cfg.Fields)
	}
	if err != nil {
		return nil, err
	}

	t := &CronTrigger{expr: expr, now: time.Now}
	t.run = run
	for _, opt := range opts {
		opt(&t.loop)
	}
	return t, nil
}

// NextFiring reports the next scheduled time after from.
func (t *CronTrigger) NextFiring(from time.Time) time.Time { return t.expr.Next(from) }

// Start launches the trigger loop.
func (t *CronTrigger) Start(ctx context.Context) error {
	if err := t.begin(); err != nil {
		return err
	}
	go func() {
		defer close(t.done)
		t.invoke(ctx)
		for {
			next := t.expr.Next(t.now())
			if next.IsZero() {
				return
			}
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-t.stop:
				timer.Stop()
				return
			case <-timer.C:
				t.invoke(ctx)
			}
		}
	}()
	return nil
}
