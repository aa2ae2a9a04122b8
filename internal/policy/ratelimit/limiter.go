// Package ratelimit paces requests against a single directory host and owns the
// block/backoff state machine that decides whether a blocked request is retried.
package ratelimit

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/bar-directory-crawler/internal/metrics"
	"github.com/JakeFAU/bar-directory-crawler/internal/useragent"
)

// Config holds pacing and backoff settings. One Config applies uniformly to every
// request a session issues.
type Config struct {
	// Site labels metrics.
	Site string
	// BaseDelay is the idle inter-request delay. Values below MinBaseDelay are raised to it.
	BaseDelay time.Duration
	// Jitter is the upper bound of the random delay added on every Wait.
	Jitter time.Duration
	// MaxRetries is the number of consecutive blocks after which HandleBlock gives up.
	MaxRetries int
	// BackoffInitial is the extra pause after the first block.
	BackoffInitial time.Duration
	// BackoffFactor multiplies both the delay and the extra pause per block.
	BackoffFactor float64
	// BackoffMax caps the extra pause.
	BackoffMax time.Duration
	// MinInterval is a hard floor between requests enforced by a token bucket.
	MinInterval time.Duration
}

// DefaultConfig returns polite defaults for public directory sites.
func DefaultConfig() Config {
	return Config{
		BaseDelay:      2 * time.Second,
		Jitter:         1500 * time.Millisecond,
		MaxRetries:     3,
		BackoffInitial: 10 * time.Second,
		BackoffFactor:  2,
		BackoffMax:     2 * time.Minute,
		MinInterval:    500 * time.Millisecond,
	}
}

// MinBaseDelay is the smallest idle delay a Limiter runs with. The escalated delay
// is a multiple of the base, so a zero base would never grow.
const MinBaseDelay = 50 * time.Millisecond

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BaseDelay < MinBaseDelay {
		c.BaseDelay = MinBaseDelay
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.BackoffFactor <= 1 {
		c.BackoffFactor = def.BackoffFactor
	}
	if c.BackoffInitial < 0 {
		c.BackoffInitial = 0
	}
	if c.BackoffMax < c.BackoffInitial {
		c.BackoffMax = c.BackoffInitial
	}
	return c
}

// Pauser suspends the caller for a duration or until ctx is done.
type Pauser interface {
	Pause(ctx context.Context, d time.Duration) error
}

type timerPauser struct{}

func (timerPauser) Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithPauser replaces the timer-based pauser.
func WithPauser(p Pauser) Option {
	return func(l *Limiter) {
		if p != nil {
			l.pauser = p
		}
	}
}

// WithJitter replaces the random jitter source. fn receives the configured bound.
func WithJitter(fn func(bound time.Duration) time.Duration) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.jitter = fn
		}
	}
}

// Limiter is created fresh for every search session and is never shared between drivers.
type Limiter struct {
	cfg       Config
	pauser    Pauser
	jitter    func(time.Duration) time.Duration
	floor     *rate.Limiter
	userAgent string

	mu         sync.Mutex
	blocks     int
	multiplier float64
}

// New builds a Limiter. The user agent is drawn from pool once and held for the session.
func New(cfg Config, pool *useragent.Pool, opts ...Option) *Limiter {
	cfg = cfg.withDefaults()
	every := rate.Inf
	if cfg.MinInterval > 0 {
		every = rate.Every(cfg.MinInterval)
	}
	l := &Limiter{
		cfg:        cfg,
		pauser:     timerPauser{},
		jitter:     randomJitter,
		floor:      rate.NewLimiter(every, 1),
		userAgent:  pool.Next(),
		multiplier: 1,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Wait suspends the caller before the next request. It must precede every outbound
// request, including retries and redirect hops.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.floor.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	d := l.Delay() + l.jitter(l.cfg.Jitter)
	if err := l.pauser.Pause(ctx, d); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	metrics.ObservePause(l.cfg.Site, "wait", d)
	return nil
}

// UserAgent returns the user agent selected for this session.
func (l *Limiter) UserAgent() string {
	return l.userAgent
}

// HandleBlock records a blocked response. status is the HTTP code, or 0 for a transport
// failure. It escalates the delay, pauses for an exponentially growing backoff, and
// reports whether the caller should retry. With MaxRetries N it returns true for N-1
// consecutive calls and false from the Nth on; the counter stays at N until ResetBackoff.
func (l *Limiter) HandleBlock(ctx context.Context, status int) bool {
	l.mu.Lock()
	if l.blocks < l.cfg.MaxRetries {
		l.blocks++
		l.multiplier *= l.cfg.BackoffFactor
	}
	blocks := l.blocks
	retry := blocks < l.cfg.MaxRetries
	l.mu.Unlock()

	metrics.ObserveBlock(l.cfg.Site, status)
	if !retry {
		return false
	}
	pause := l.backoff(blocks)
	if err := l.pauser.Pause(ctx, pause); err != nil {
		return false
	}
	metrics.ObservePause(l.cfg.Site, "backoff", pause)
	return ctx.Err() == nil
}

// ResetBackoff clears the block counter and restores the baseline delay.
func (l *Limiter) ResetBackoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blocks = 0
	l.multiplier = 1
}

// Delay is the current inter-request delay excluding jitter.
func (l *Limiter) Delay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return time.Duration(float64(l.cfg.BaseDelay) * l.multiplier)
}

// Baseline is the idle inter-request delay.
func (l *Limiter) Baseline() time.Duration {
	return l.cfg.BaseDelay
}

// Blocks is the consecutive-block counter.
func (l *Limiter) Blocks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blocks
}

// Multiplier is the current backoff multiplier applied to the base delay.
func (l *Limiter) Multiplier() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.multiplier
}

// MaxRetries is the configured give-up threshold.
func (l *Limiter) MaxRetries() int {
	return l.cfg.MaxRetries
}

func (l *Limiter) backoff(blocks int) time.Duration {
	d := float64(l.cfg.BackoffInitial) * math.Pow(l.cfg.BackoffFactor, float64(blocks-1))
	if d > float64(l.cfg.BackoffMax) {
		d = float64(l.cfg.BackoffMax)
	}
	return time.Duration(d)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
