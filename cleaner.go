package guard

import (
	"context"
	"sync"
	"time"
)

// TokenCleaner is the slice of the TokenStore the sweeper needs.
type TokenCleaner interface {
	CleanUpTokens(ctx context.Context) (int64, error)
}

// TokenSweeper periodically deletes terminal and expired token rows. One
// sweep runs at a time; a tick that fires mid-sweep is skipped.
type TokenSweeper struct {
	cleaner  TokenCleaner
	interval time.Duration
	activity ActivitySink
	logger   Logger

	mu      sync.Mutex
	running bool
}

type TokenSweeperOption func(*TokenSweeper)

// WithSweepInterval overrides the default hourly cadence.
func WithSweepInterval(d time.Duration) TokenSweeperOption {
	return func(s *TokenSweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSweeperActivitySink emits a cleanup event after each sweep.
func WithSweeperActivitySink(sink ActivitySink) TokenSweeperOption {
	return func(s *TokenSweeper) {
		s.activity = normalizeActivitySink(sink)
	}
}

// WithSweeperLogger overrides the sweeper logger.
func WithSweeperLogger(logger Logger) TokenSweeperOption {
	return func(s *TokenSweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewTokenSweeper(cleaner TokenCleaner, opts ...TokenSweeperOption) *TokenSweeper {
	sweeper := &TokenSweeper{
		cleaner:  cleaner,
		interval: time.Hour,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(sweeper)
		}
	}
	return sweeper
}

// Start blocks until ctx is done, sweeping on every interval tick.
func (s *TokenSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single cleanup pass. Safe to call concurrently; overlapping
// calls return immediately.
func (s *TokenSweeper) Sweep(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	n, err := s.cleaner.CleanUpTokens(ctx)
	if err != nil {
		s.logger.Error("token cleanup failed: %v", err)
		return
	}

	if n > 0 {
		s.logger.Info("token cleanup removed %d rows", n)
	}

	event := ActivityEvent{
		EventType:  ActivityEventTokenCleanupCompleted,
		Actor:      ActorRef{Type: "system"},
		Success:    true,
		Metadata:   map[string]any{"removed": n},
		OccurredAt: time.Now(),
	}
	if err := normalizeActivitySink(s.activity).Record(ctx, event); err != nil {
		s.logger.Warn("activity sink error during token cleanup: %v", err)
	}
}
