package sched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseISODuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"PT15M", 15 * time.Minute, false},
		{"PT30S", 30 * time.Second, false},
		{"PT1H30M", 90 * time.Minute, false},
		{"P1D", 24 * time.Hour, false},
		{"P1DT6H", 30 * time.Hour, false},
		{"P2W", 14 * 24 * time.Hour, false},
		{"P1Y", 365 * 24 * time.Hour, false},
		{"P1M", 30 * 24 * time.Hour, false},
		{"P1MT1M", 30*24*time.Hour + time.Minute, false},
		{"P1Y2M3DT4H5M6S", 365*24*time.Hour + 2*30*24*time.Hour + 3*24*time.Hour + 4*time.Hour + 5*time.Minute + 6*time.Second, false},
		{"", 0, true},
		{"P", 0, true},
		{"PT", 0, true},
		{"15M", 0, true},
		{"PT15", 0, true},
		{"P1X", 0, true},
		{"PT1D", 0, true}, // day designator in the time part
		{"P1H", 0, true},  // hour designator in the date part
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseISODuration(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseISODuration(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseISODuration(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseISODuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestIntervalConfig(t *testing.T) {
	t.Run("unit fields", func(t *testing.T) {
		trig, err := NewIntervalTrigger(IntervalConfig{Weeks: 1, Days: 2, Hours: 3, Minutes: 4, Seconds: 5}, nil)
		if err != nil {
			t.Fatal(err)
		}
		want := 7*24*time.Hour + 2*24*time.Hour + 3*time.Hour + 4*time.Minute + 5*time.Second
		if trig.Interval() != want {
			t.Errorf("expected %v, got %v", want, trig.Interval())
		}
	})

	t.Run("duration string", func(t *testing.T) {
		trig, err := NewIntervalTrigger(IntervalConfig{Duration: "PT90S"}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if trig.Interval() != 90*time.Second {
			t.Errorf("expected 90s, got %v", trig.Interval())
		}
	})

	t.Run("both forms rejected", func(t *testing.T) {
		if _, err := NewIntervalTrigger(IntervalConfig{Minutes: 1, Duration: "PT1M"}, nil); err == nil {
			t.Error("expected error when both forms are set")
		}
	})

	t.Run("neither form rejected", func(t *testing.T) {
		if _, err := NewIntervalTrigger(IntervalConfig{}, nil); err == nil {
			t.Error("expected error when no form is set")
		}
	})

	t.Run("negative fields rejected", func(t *testing.T) {
		if _, err := NewIntervalTrigger(IntervalConfig{Seconds: -5}, nil); err == nil {
			t.Error("expected error for negative field")
		}
	})
}

func TestIntervalTrigger_Start(t *testing.T) {
	t.Run("immediate first invocation then schedule", func(t *testing.T) {
		var count atomic.Int32
		trig, err := NewIntervalTrigger(IntervalConfig{Duration: "PT1S"},
			func(ctx context.Context) error {
				count.Add(1)
				return nil
			})
		if err != nil {
			t.Fatal(err)
		}
		// Long interval relative to the observation window: only the
		// immediate invocation can land.
		trig.every = time.Hour

		if err := trig.Start(context.Background()); err != nil {
			t.Fatal(err)
		}
		defer trig.Shutdown()

		deadline := time.After(2 * time.Second)
		for count.Load() == 0 {
			select {
			case <-deadline:
				t.Fatal("expected an immediate invocation")
			case <-time.After(5 * time.Millisecond):
			}
		}
	})

	t.Run("fires repeatedly", func(t *testing.T) {
		var count atomic.Int32
		trig, err := NewIntervalTrigger(IntervalConfig{Duration: "PT1S"},
			func(ctx context.Context) error {
				count.Add(1)
				return nil
			})
		if err != nil {
			t.Fatal(err)
		}
		trig.every = 20 * time.Millisecond

		if err := trig.Start(context.Background()); err != nil {
			t.Fatal(err)
		}
		time.Sleep(110 * time.Millisecond)
		trig.Shutdown()

		if got := count.Load(); got < 3 {
			t.Errorf("expected at least 3 invocations, got %d", got)
		}
	})

	t.Run("shutdown stops invocations", func(t *testing.T) {
		var count atomic.Int32
		trig, err := NewIntervalTrigger(IntervalConfig{Duration: "PT1S"},
			func(ctx context.Context) error {
				count.Add(1)
				return nil
			})
		if err != nil {
			t.Fatal(err)
		}
		trig.every = 10 * time.Millisecond

		if err := trig.Start(context.Background()); err != nil {
			t.Fatal(err)
		}
		time.Sleep(35 * time.Millisecond)
		trig.Shutdown()
		frozen := count.Load()
		time.Sleep(50 * time.Millisecond)
		if got := count.Load(); got != frozen {
			t.Errorf("invocations continued after shutdown: %d -> %d", frozen, got)
		}
	})

	t.Run("double start rejected", func(t *testing.T) {
		trig, err := NewIntervalTrigger(IntervalConfig{Minutes: 1},
			func(ctx context.Context) error { return nil })
		if err != nil {
			t.Fatal(err)
		}
		if err := trig.Start(context.Background()); err != nil {
			t.Fatal(err)
		}
		defer trig.Shutdown()
		if err := trig.Start(context.Background()); err == nil {
			t.Error("expected error on second Start")
		}
	})

	t.Run("context cancellation stops the loop", func(t *testing.T) {
		var count atomic.Int32
		trig, err := NewIntervalTrigger(IntervalConfig{Seconds: 1},
			func(ctx context.Context) error {
				count.Add(1)
				return nil
			})
		if err != nil {
			t.Fatal(err)
		}
		trig.every = 10 * time.Millisecond

		ctx, cancel := context.WithCancel(context.Background())
		if err := trig.Start(ctx); err != nil {
			t.Fatal(err)
		}
		cancel()
		trig.Shutdown() // must return promptly after cancellation
	})

	t.Run("errors reach the callback", func(t *testing.T) {
		errs := make(chan error, 1)
		trig, err := NewIntervalTrigger(IntervalConfig{Minutes: 1},
			func(ctx context.Context) error { return context.DeadlineExceeded },
			WithOnError(func(err error) {
				select {
				case errs <- err:
				default:
				}
			}))
		if err != nil {
			t.Fatal(err)
		}
		if err := trig.Start(context.Background()); err != nil {
			t.Fatal(err)
		}
		defer trig.Shutdown()

		select {
		case got := <-errs:
			if got != context.DeadlineExceeded {
				t.Errorf("unexpected error: %v", got)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("error callback never fired")
		}
	})
}

func TestNew(t *testing.T) {
	runNothing := func(ctx context.Context) error { return nil }

	t.Run("interval", func(t *testing.T) {
		trig, err := New(Config{Type: "interval", Interval: &IntervalConfig{Minutes: 5}}, runNothing)
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := trig.(*IntervalTrigger); !ok {
			t.Errorf("expected *IntervalTrigger, got %T", trig)
		}
	})

	t.Run("cron", func(t *testing.T) {
		trig, err := New(Config{Type: "cron", Cron: &CronConfig{Expression: "0 * * * *"}}, runNothing)
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := trig.(*CronTrigger); !ok {
			t.Errorf("expected *CronTrigger, got %T", trig)
		}
	})

	t.Run("missing section", func(t *testing.T) {
		if _, err := New(Config{Type: "interval"}, runNothing); err == nil {
			t.Error("expected error for missing interval section")
		}
		if _, err := New(Config{Type: "cron"}, runNothing); err == nil {
			t.Error("expected error for missing cron section")
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, err := New(Config{Type: "celestial"}, runNothing); err == nil {
			t.Error("expected error for unknown scheduler_type")
		}
	})
}
