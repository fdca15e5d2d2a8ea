// Package sched provides the periodic triggers that drive repeated pipeline
// runs: a fixed-interval trigger and a cron trigger.
//
// Both triggers share one contract: Start launches a background loop that
// performs one immediate invocation and then follows the schedule; Shutdown
// stops further invocations and waits for an in-flight run to complete
// (cancel the Start context to force it).
package sched

import (
	"context"
	"fmt"
	"sync"
)

// RunFunc is one scheduled pipeline invocation. The trigger calls it with
// the same configured inputs (closed over by the caller) on every firing.
type RunFunc func(ctx context.Context) error

// Trigger repeatedly invokes a RunFunc on its schedule.
type Trigger interface {
	// Start launches the trigger loop. The first invocation happens
	// immediately; subsequent invocations follow the schedule. Start
	// fails if the trigger was already started.
	Start(ctx context.Context) error

	// Shutdown stops further invocations and waits for the loop to exit.
	// An in-flight run completes unless the Start context is cancelled.
	Shutdown()
}

// Option configures a trigger.
type Option func(*loop)

// WithOnError installs a callback for run errors. By default errors are
// dropped; a failed run is retried at the next firing with the prior
// committed state intact.
func WithOnError(fn func(error)) Option {
	return func(l *loop) { l.onError = fn }
}

// Config is the declarative scheduler surface:
//
//	scheduler_type: interval
//	interval:
//	  minutes: 15
//
//	scheduler_type: cron
//	cron:
//	  expression: "0 * * * *"
type Config struct {
	Type     string          `yaml:"scheduler_type" json:"scheduler_type"`
	Interval *IntervalConfig `yaml:"interval,omitempty" json:"interval,omitempty"`
	Cron     *CronConfig     `yaml:"cron,omitempty" json:"cron,omitempty"`
}

// New builds the trigger described by cfg.
func New(cfg Config, run RunFunc, opts ...Option) (Trigger, error) {
	switch cfg.Type {
	case "interval":
		if cfg.Interval == nil {
			return nil, fmt.Errorf("scheduler_type %q requires an interval section", cfg.Type)
		}
		return NewIntervalTrigger(*cfg.Interval, run, opts...)
	case "cron":
		if cfg.Cron == nil {
			return nil, fmt.Errorf("scheduler_type %q requires a cron section", cfg.Type)
		}
		return NewCronTrigger(*cfg.Cron, run, opts...)
	default:
		return nil, fmt.Errorf("unknown scheduler_type %q", cfg.Type)
	}
}

// loop is the shared Start/Shutdown machinery of both triggers.
type loop struct {
	run     RunFunc
	onError func(error)

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

func (l *loop) begin() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return fmt.Errorf("trigger already started")
	}
	l.started = true
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	return nil
}

func (l *loop) invoke(ctx context.Context) {
	if err := l.run(ctx); err != nil && l.onError != nil {
		l.onError(err)
	}
}

// Shutdown stops further invocations and waits for the loop goroutine.
func (l *loop) Shutdown() {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return
	}
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
	done := l.done
	l.mu.Unlock()
	<-done
}
