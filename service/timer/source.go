package timer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrRunning is returned by Start on a running source.
var ErrRunning = errors.New("timer: source already running")

// Line is the interrupt line the source raises.
type Line interface {
	RaiseIRQ()
}

// Source raises the timer interrupt at the programmed rate.
type Source struct {
	divisor Divisor
	line    Line
	logger  *slog.Logger
	fired   atomic.Uint64

	mux    sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option customises a Source.
type Option func(s *Source)

// WithLogger sets the source logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSource creates a source firing hz times per second into line.
func NewSource(hz uint32, line Line, options ...Option) (*Source, error) {
	divisor, err := DivisorFor(hz)
	if err != nil {
		return nil, err
	}
	ret := &Source{divisor: divisor, line: line, logger: slog.Default()}
	for _, opt := range options {
		opt(ret)
	}
	return ret, nil
}

// Divisor returns the programmed divisor.
func (s *Source) Divisor() Divisor { return s.divisor }

// Fired returns the number of interrupts raised so far.
func (s *Source) Fired() uint64 { return s.fired.Load() }

// Start begins raising interrupts until ctx is done or Stop is called.
func (s *Source) Start(ctx context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.cancel != nil {
		return ErrRunning
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	period := s.divisor.Period()
	s.logger.Info("timer started", "hz", s.divisor.Frequency(), "divisor", uint16(s.divisor), "period", period)
	go s.run(ctx, period, s.done)
	return nil
}

// Stop halts the source and waits for its goroutine to finish.
func (s *Source) Stop() {
	s.mux.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mux.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Source) run(ctx context.Context, period time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fired.Add(1)
			s.line.RaiseIRQ()
		}
	}
}
