package runner

import (
	"context"
	"iter"
	"log/slog"
	"runtime"
	"slices"
	"sync"

	"github.com/velemoonkon/echoping/pkg/config"
	"github.com/velemoonkon/echoping/pkg/stats"
	"golang.org/x/time/rate"
)

// Runner measures many targets concurrently with one probe
type Runner struct {
	Logger *slog.Logger

	config  Config
	limiter *rate.Limiter
	probe   Probe
}

// New creates a runner for probe
func New(cfg Config, probe Probe) *Runner {
	// Workers=0 means "auto": most of a run is spent waiting on replies
	if cfg.Workers <= 0 {
		cpus := runtime.GOMAXPROCS(0)
		cfg.Workers = max(4, cpus*4)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	} else {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}

	return &Runner{
		Logger:  slog.Default(),
		config:  cfg,
		limiter: limiter,
		probe:   probe,
	}
}

// Config returns the effective configuration
func (r *Runner) Config() Config {
	return r.config
}

// Run measures every target and returns the results in completion order
func (r *Runner) Run(ctx context.Context, targets []string, onAttempt func(string, stats.Attempt)) ([]*Result, error) {
	results := make([]*Result, 0, len(targets))
	_, err := r.Stream(ctx, slices.Values(targets), Handlers{
		OnAttempt: onAttempt,
		OnResult: func(res *Result) error {
			results = append(results, res)
			return nil
		},
	})
	return results, err
}

// Stream measures targets from an iterator and hands each result to
// h.OnResult as soon as its run ends. A failing target does not stop the
// others. Cancelling ctx stops feeding new targets; runs already in
// flight end early and their partial reports are still delivered.
//
// Returns the number of results delivered. Channel buffer sizes come from
// ECHOPING_TARGET_BUFFER and ECHOPING_REPORT_BUFFER.
func (r *Runner) Stream(ctx context.Context, targets iter.Seq[string], h Handlers) (int, error) {
	cfg := config.Runner
	targetChan := make(chan string, max(cfg.TargetBuffer, 0))
	resultChan := make(chan *Result, max(cfg.ReportBuffer, 0))
	var wg sync.WaitGroup

	for range r.config.Workers {
		wg.Go(func() {
			r.worker(ctx, targetChan, resultChan, h.OnAttempt)
		})
	}

	var collectorWg sync.WaitGroup
	var handlerErr error
	count := 0
	collectorWg.Go(func() {
		for res := range resultChan {
			count++
			if !r.config.Quiet {
				r.logProgress(res)
			}
			if h.OnResult == nil {
				continue
			}
			// Keep draining so workers never block on a failed sink
			if err := h.OnResult(res); err != nil && handlerErr == nil {
				handlerErr = err
			}
		}
	})

	go func() {
		defer close(targetChan)
		for target := range targets {
			if err := r.limiter.Wait(ctx); err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case targetChan <- target:
			}
		}
	}()

	wg.Wait()
	close(resultChan)
	collectorWg.Wait()

	if handlerErr != nil {
		return count, handlerErr
	}
	return count, ctx.Err()
}

func (r *Runner) worker(ctx context.Context, targetChan <-chan string, resultChan chan<- *Result, onAttempt func(string, stats.Attempt)) {
	for {
		select {
		case <-ctx.Done():
			return
		case target, ok := <-targetChan:
			if !ok {
				return
			}
			// The collector drains until close, so this send never blocks forever
			resultChan <- r.runTarget(ctx, target, onAttempt)
		}
	}
}

func (r *Runner) runTarget(ctx context.Context, target string, onAttempt func(string, stats.Attempt)) *Result {
	var cb func(stats.Attempt)
	if onAttempt != nil {
		cb = func(a stats.Attempt) { onAttempt(target, a) }
	}

	report, err := r.probe.Run(ctx, target, cb)
	res := &Result{Target: target, Report: report}
	if err != nil {
		r.Logger.Debug("run failed", "target", target, "probe", r.probe.Name(), "error", err)
		res.Error = err.Error()
		res.err = err
	}
	return res
}

// logProgress logs each finished target with slog.Group for the summary
func (r *Runner) logProgress(res *Result) {
	if res.err != nil {
		r.Logger.Warn("target failed",
			slog.String("target", res.Target),
			slog.String("probe", r.probe.Name()),
			slog.String("error", res.Error))
		return
	}
	if res.Report == nil {
		return
	}

	s := res.Report.Summary
	summary := []any{
		slog.Int("sent", s.Sent),
		slog.Int("received", s.Received),
		slog.Float64("loss_percent", s.LossPercent),
	}
	if s.Received > 0 {
		summary = append(summary, slog.Float64("avg_rtt_ms", s.AvgRTTMs))
	}
	r.Logger.Info("target finished",
		slog.String("target", res.Target),
		slog.String("probe", r.probe.Name()),
		slog.Group("summary", summary...))
}
