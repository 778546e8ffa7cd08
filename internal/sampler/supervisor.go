package sampler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// maxConsecutiveFailures disables a probe for the remainder of the
// invocation once reached. Individual failures are gaps, not errors.
const maxConsecutiveFailures = 3

// Supervisor runs one sampling goroutine per probe for the lifetime of a
// single command invocation. Each goroutine owns its series exclusively
// until Stop hands them off.
type Supervisor struct {
	interval time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	results  chan Series
	logger   *slog.Logger
}

// Start launches a sampling loop per probe at the given interval. The first
// sample is taken immediately.
func Start(interval time.Duration, probes []Probe, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		interval: interval,
		cancel:   cancel,
		results:  make(chan Series, len(probes)),
		logger:   logger,
	}
	for _, p := range probes {
		s.wg.Add(1)
		go s.loop(ctx, p)
	}
	return s
}

// Stop cancels every sampling loop and blocks until each has acknowledged,
// guaranteeing no sample is appended after Stop returns. Samples timestamped
// after stop are discarded: a tick can land between the command completing
// and the loops acknowledging, and the series must not outlive the command.
func (s *Supervisor) Stop(stop time.Time) Series {
	s.cancel()
	s.wg.Wait()
	close(s.results)

	cutoff := stop.UnixMilli()
	merged := Series{}
	for series := range s.results {
		for name, samples := range series {
			for len(samples) > 0 && samples[len(samples)-1].Timestamp > cutoff {
				samples = samples[:len(samples)-1]
			}
			if len(samples) > 0 {
				merged[name] = samples
			}
		}
	}
	return merged
}

func (s *Supervisor) loop(ctx context.Context, p Probe) {
	defer s.wg.Done()

	series := Series{}
	failures := 0
	disabled := false
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if !disabled {
			now := time.Now()
			values, err := p.Collect(now)
			if err != nil {
				// A failed iteration is a gap in the series.
				failures++
				s.logger.Warn("probe failed", "metric", p.Kind(), "consecutive", failures, "error", err)
				if failures >= maxConsecutiveFailures {
					s.logger.Warn("disabling probe for this invocation", "metric", p.Kind())
					disabled = true
				}
			} else {
				failures = 0
				ts := now.UnixMilli()
				for name, v := range values {
					series[name] = append(series[name], Sample{Timestamp: ts, Value: v})
				}
			}
		}

		select {
		case <-ctx.Done():
			s.results <- series
			return
		case <-ticker.C:
		}
	}
}
