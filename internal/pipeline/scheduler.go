package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PassRunner runs a single pass.
type PassRunner interface {
	RunPass(ctx context.Context) (*PassReport, error)
}

// SchedulerConfig contains scheduling settings.
type SchedulerConfig struct {
	// Interval is the pause between the end of one pass and the start of the
	// next (default 30s).
	Interval time.Duration `json:"interval" yaml:"interval"`
	// PassTimeout bounds a single pass (0 = no timeout).
	PassTimeout time.Duration `json:"pass_timeout" yaml:"pass_timeout"`
}

// DefaultSchedulerConfig returns the default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:    30 * time.Second,
		PassTimeout: 5 * time.Minute,
	}
}

// Scheduler runs passes forever: one immediately, then one after each
// interval. Passes never overlap and a failed pass never stops the loop.
type Scheduler struct {
	lastAt   time.Time
	runner   PassRunner
	recorder Recorder
	last     *PassReport
	stopCh   chan struct{}
	lastErr  error
	logger   zerolog.Logger
	config   SchedulerConfig
	passes   int
	mu       sync.RWMutex
}

// NewScheduler creates a new pass scheduler. recorder, if not nil, is told
// about passes that panicked; completed passes are recorded by the runner.
func NewScheduler(runner PassRunner, recorder Recorder, config SchedulerConfig, logger zerolog.Logger) *Scheduler {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Scheduler{
		runner:   runner,
		recorder: recorder,
		config:   config,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		stopCh:   make(chan struct{}),
	}
}

// Start runs the loop until ctx is done or Stop is called. Call from a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.config.Interval).
		Dur("pass_timeout", s.config.PassTimeout).
		Msg("Incident scheduler started")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Incident scheduler stopping (context done)")
			return
		case <-s.stopCh:
			s.logger.Info().Msg("Incident scheduler stopping (stop signal)")
			return
		case <-timer.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Pass failed")
			}
			timer.Reset(s.config.Interval)
		}
	}
}

// Stop signals the scheduler to shut down gracefully.
func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh:
		// Already stopped
	default:
		close(s.stopCh)
	}
}

// RunOnce runs one pass, converting a panic into an error.
func (s *Scheduler) RunOnce(ctx context.Context) (report *PassReport, err error) {
	if s.config.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.PassTimeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("Pass panicked")
			report, err = nil, fmt.Errorf("pass panicked: %v", rec)
			s.recorder.ObservePass(nil, err)
		}
		s.record(report, err)
	}()

	return s.runner.RunPass(ctx)
}

func (s *Scheduler) record(report *PassReport, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passes++
	s.lastAt = time.Now()
	s.lastErr = err
	if report != nil {
		s.last = report
	}
}

// LastReport returns the report of the most recent pass that produced one.
func (s *Scheduler) LastReport() *PassReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Status returns the number of passes run, when the last one finished and
// its error.
func (s *Scheduler) Status() (passes int, lastAt time.Time, lastErr error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.passes, s.lastAt, s.lastErr
}
