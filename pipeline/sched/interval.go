package sched

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IntervalConfig describes a fixed-interval schedule. Exactly one form must
// be used: either one or more of the unit fields, or an ISO-8601 duration
// string. Setting both (or neither) is a configuration error.
type IntervalConfig struct {
	Weeks   int `yaml:"weeks,omitempty" json:"weeks,omitempty"`
	Days    int `yaml:"days,omitempty" json:"days,omitempty"`
	Hours   int `yaml:"hours,omitempty" json:"hours,omitempty"`
	Minutes int `yaml:"minutes,omitempty" json:"minutes,omitempty"`
	Seconds int `yaml:"seconds,omitempty" json:"seconds,omitempty"`

	// Duration is an ISO-8601 duration such as "PT15M" or "P1DT6H".
	// Calendar units are fixed: a year is 365 days, a month 30 days.
	Duration string `yaml:"duration,omitempty" json:"duration,omitempty"`
}

func (c IntervalConfig) interval() (time.Duration, error) {
	fields := time.Duration(c.Weeks)*7*24*time.Hour +
		time.Duration(c.Days)*24*time.Hour +
		time.Duration(c.Hours)*time.Hour +
		time.Duration(c.Minutes)*time.Minute +
		time.Duration(c.Seconds)*time.Second

	hasFields := fields != 0
	hasDuration := c.Duration != ""

	switch {
	case hasFields && hasDuration:
		return 0, fmt.Errorf("interval: unit fields and duration are mutually exclusive")
	case hasDuration:
		return ParseISODuration(c.Duration)
	case hasFields:
		if c.Weeks < 0 || c.Days < 0 || c.Hours < 0 || c.Minutes < 0 || c.Seconds < 0 {
			return 0, fmt.Errorf("interval: unit fields must be non-negative")
		}
		return fields, nil
	default:
		return 0, fmt.Errorf("interval: either unit fields or an ISO-8601 duration is required")
	}
}

// ParseISODuration parses an ISO-8601 duration of the form
// P[nY][nM][nW][nD][T[nH][nM][nS]]. Years count as 365 days and months as
// 30 days. The empty designator forms "P" and "PT" are rejected.
func ParseISODuration(s string) (time.Duration, error) {
	orig := s
	if !strings.HasPrefix(s, "P") {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q: missing P designator", orig)
	}
	s = s[1:]

	unit := func(datePart bool, c byte) (time.Duration, bool) {
		switch c {
		case 'Y':
			return 365 * 24 * time.Hour, datePart
		case 'W':
			return 7 * 24 * time.Hour, datePart
		case 'D':
			return 24 * time.Hour, datePart
		case 'M':
			if datePart {
				return 30 * 24 * time.Hour, true
			}
			return time.Minute, true
		case 'H':
			return time.Hour, !datePart
		case 'S':
			return time.Second, !datePart
		}
		return 0, false
	}

	var total time.Duration
	datePart := true
	seen := false
	for len(s) > 0 {
		if datePart && s[0] == 'T' {
			datePart = false
			s = s[1:]
			if len(s) == 0 {
				return 0, fmt.Errorf("invalid ISO-8601 duration %q: empty time part", orig)
			}
			continue
		}
		i := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == 0 || i == len(s) {
			return 0, fmt.Errorf("invalid ISO-8601 duration %q", orig)
		}
		n, err := strconv.Atoi(s[:i])
		if err != nil {
			return 0, fmt.Errorf("invalid ISO-8601 duration %q: %w", orig, err)
		}
		mul, ok := unit(datePart, s[i])
		if !ok {
			return 0, fmt.Errorf("invalid ISO-8601 duration %q: unexpected designator %q", orig, string(s[i]))
		}
		total += time.Duration(n) * mul
		seen = true
		s = s[i+1:]
	}
	if !seen {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q: no components", orig)
	}
	return total, nil
}

// IntervalTrigger fires a RunFunc immediately on Start and then every
// configured interval, measured from each firing (not from completion).
type IntervalTrigger struct {
	loop
	every time.Duration
}

// NewIntervalTrigger builds an interval trigger from cfg.
func NewIntervalTrigger(cfg IntervalConfig, run RunFunc, opts ...Option) (*IntervalTrigger, error) {
	every, err := cfg.interval()
	if err != nil {
		return nil, err
	}
	if every <= 0 {
		return nil, fmt.Errorf("interval: duration must be positive, got %s", every)
	}
	t := &IntervalTrigger{every: every}
	t.run = run
	for _, opt := range opts {
		opt(&t.loop)
	}
	return t, nil
}

// Interval reports the configured firing period.
func (t *IntervalTrigger) Interval() time.Duration { return t.every }

// Start launches the trigger loop.
func (t *IntervalTrigger) Start(ctx context.Context) error {
	if err := t.begin(); err != nil {
		return err
	}
	go func() {
		defer close(t.done)
		ticker := time.NewTicker(t.every)
		defer ticker.Stop()
		t.invoke(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.stop:
				return
			case <-ticker.C:
				t.invoke(ctx)
			}
		}
	}()
	return nil
}
