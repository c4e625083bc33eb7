// Package circuitbreaker stops calling a backend after repeated failures and
// lets a few trial requests through once a cooldown has passed.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/hr-qa/backend/pkg/errors"
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

var stateNames = map[State]string{
	StateClosed:   "closed",
	StateHalfOpen: "half-open",
	StateOpen:     "open",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

type Config struct {
	// TripAfter consecutive failures open a closed breaker.
	TripAfter uint32
	// Cooldown is how long the breaker stays open before trial requests.
	Cooldown time.Duration
	// TrialRequests caps in-flight requests while half-open.
	TrialRequests uint32
	// CloseAfter consecutive trial successes close the breaker.
	CloseAfter uint32
	// ResetInterval clears the closed-state tallies periodically. Zero keeps
	// them until the state changes.
	ResetInterval time.Duration
	// IsFailure decides whether an error counts against the backend. The
	// default ignores caller cancellation.
	IsFailure     func(err error) bool
	OnStateChange func(name string, from, to State)
	Logger        *zap.Logger
}

// Stats tallies requests since the last state change or reset.
type Stats struct {
	Requests             uint32
	Successes            uint32
	Failures             uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

type Breaker struct {
	name string
	cfg  Config
	now  func() time.Time

	mu       sync.Mutex
	state    State
	epoch    uint64
	since    time.Time
	stats    Stats
	inFlight uint32
}

func New(name string, cfg Config) *Breaker {
	if cfg.TripAfter == 0 {
		cfg.TripAfter = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	if cfg.TrialRequests == 0 {
		cfg.TrialRequests = 1
	}
	if cfg.CloseAfter == 0 {
		cfg.CloseAfter = 2
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = countsAsFailure
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now, since: time.Now()}
}

func countsAsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

func (b *Breaker) Name() string { return b.name }

// Execute calls fn when the breaker admits it. Rejections are
// BackendUnavailableErrors carrying the breaker name. fn is never retried.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	epoch, err := b.admit()
	if err != nil {
		return err
	}

	failed := true
	defer func() { b.settle(epoch, failed) }()

	err = fn()
	failed = b.cfg.IsFailure(err)
	return err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(b.now())
	switch b.state {
	case StateOpen:
		retryIn := b.cfg.Cooldown - b.now().Sub(b.since)
		return 0, apperrors.NewBackendUnavailableError("circuit breaker is open", nil).
			WithMetadata("breaker", b.name).
			WithMetadata("retry_in_ms", retryIn.Milliseconds())
	case StateHalfOpen:
		if b.inFlight >= b.cfg.TrialRequests {
			return 0, apperrors.NewBackendUnavailableError("circuit breaker trial in progress", nil).
				WithMetadata("breaker", b.name)
		}
	}
	b.stats.Requests++
	b.inFlight++
	return b.epoch, nil
}

// settle records an outcome. Outcomes from an earlier epoch are stale and
// dropped.
func (b *Breaker) settle(epoch uint64, failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.advance(now)
	if epoch != b.epoch {
		return
	}
	b.inFlight--

	if failed {
		b.stats.Failures++
		b.stats.ConsecutiveFailures++
		b.stats.ConsecutiveSuccesses = 0
		if b.state == StateHalfOpen || b.stats.ConsecutiveFailures >= b.cfg.TripAfter {
			b.moveTo(StateOpen, now)
		}
		return
	}

	b.stats.Successes++
	b.stats.ConsecutiveSuccesses++
	b.stats.ConsecutiveFailures = 0
	if b.state == StateHalfOpen && b.stats.ConsecutiveSuccesses >= b.cfg.CloseAfter {
		b.moveTo(StateClosed, now)
	}
}

// advance applies time-based transitions: open to half-open after the
// cooldown, and the periodic reset of closed-state tallies.
func (b *Breaker) advance(now time.Time) {
	elapsed := now.Sub(b.since)
	switch b.state {
	case StateOpen:
		if elapsed >= b.cfg.Cooldown {
			b.moveTo(StateHalfOpen, now)
		}
	case StateClosed:
		if b.cfg.ResetInterval > 0 && elapsed >= b.cfg.ResetInterval {
			b.epoch++
			b.since = now
			b.stats = Stats{}
			b.inFlight = 0
		}
	}
}

func (b *Breaker) moveTo(to State, now time.Time) {
	from := b.state
	if from == to {
		return
	}
	failures := b.stats.ConsecutiveFailures

	b.state = to
	b.epoch++
	b.since = now
	b.stats = Stats{}
	b.inFlight = 0

	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
	b.cfg.Logger.Info("Circuit breaker state changed",
		zap.String("name", b.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Uint32("consecutive_failures", failures),
	)
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(b.now())
	return b.state
}

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.stats
}
