// Package session owns the single browser session an application run is
// allowed to use. Every remote action funnels through the Controller, which
// enforces human-like pacing, retries transient navigation failures with
// exponential backoff, and spends at most one re-login per attempt.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tla-bot/tla-go/internal/browser"
	"github.com/tla-bot/tla-go/internal/metrics"
)

// Options tune the controller's pacing and retry behavior.
type Options struct {
	// MinActionDelay is the floor on the pause between two remote
	// actions. The actual pause adds up to the same amount of jitter.
	MinActionDelay time.Duration
	// ActionTimeout bounds a single driver call.
	ActionTimeout time.Duration
	// MaxNavRetries is how many times a transient navigation failure is
	// retried before it is surfaced.
	MaxNavRetries int
	// RetryInterval is the initial backoff interval between retries.
	RetryInterval time.Duration
	// Metrics, when set, records the timing of every driver call.
	Metrics *metrics.Collector
}

// DefaultOptions returns conservative pacing defaults.
func DefaultOptions() Options {
	return Options{
		MinActionDelay: 2 * time.Second,
		ActionTimeout:  30 * time.Second,
		MaxNavRetries:  3,
		RetryInterval:  time.Second,
	}
}

// Controller serializes access to the one browser session of a run.
type Controller struct {
	driver  browser.Driver
	logger  *slog.Logger
	opts    Options
	onRetry func(attempt int, err error)

	lastAction   time.Time
	reloginSpent bool
}

// New wraps a driver. onRetry, if non-nil, is invoked before each backoff
// sleep so the caller can record the retry.
func New(driver browser.Driver, logger *slog.Logger, opts Options, onRetry func(attempt int, err error)) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 30 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = time.Second
	}
	return &Controller{driver: driver, logger: logger, opts: opts, onRetry: onRetry}
}

// BeginAttempt resets per-attempt state. Call it once before the first
// action of every application attempt.
func (c *Controller) BeginAttempt() {
	c.reloginSpent = false
}

// Navigate loads a URL through the paced, retried driver path.
func (c *Controller) Navigate(ctx context.Context, url string) (*browser.Snapshot, error) {
	return c.do(ctx, fmt.Sprintf("navigate %s", url), func(ctx context.Context) (*browser.Snapshot, error) {
		return c.driver.Navigate(ctx, url)
	})
}

// Act fills or clicks one element. An empty value is a plain click.
func (c *Controller) Act(ctx context.Context, ref, value string) (*browser.Snapshot, error) {
	return c.do(ctx, fmt.Sprintf("act %s", ref), func(ctx context.Context) (*browser.Snapshot, error) {
		return c.driver.Act(ctx, ref, value)
	})
}

func (c *Controller) do(ctx context.Context, desc string, call func(context.Context) (*browser.Snapshot, error)) (*browser.Snapshot, error) {
	c.pace(ctx)

	attempt := 0
	op := func() (*browser.Snapshot, error) {
		attempt++
		actCtx, cancel := context.WithTimeout(ctx, c.opts.ActionTimeout)
		defer cancel()

		start := time.Now()
		snap, err := call(actCtx)
		c.opts.Metrics.RecordTiming(metrics.OpNavigation, time.Since(start))
		c.lastAction = time.Now()
		if err == nil {
			return snap, nil
		}

		var navErr *browser.NavigationError
		if !errors.As(err, &navErr) {
			return nil, backoff.Permanent(err)
		}

		switch {
		case navErr.Kind == browser.NavAuthLost:
			if rErr := c.relogin(ctx); rErr != nil {
				return nil, backoff.Permanent(err)
			}
			// Session restored, retry the action immediately.
			return nil, err
		case navErr.Transient():
			return nil, err
		default:
			return nil, backoff.Permanent(err)
		}
	}

	notify := func(err error, next time.Duration) {
		c.logger.Warn("remote action failed, retrying", "action", desc,
			"attempt", attempt, "backoff", next, "error", err)
		if c.onRetry != nil {
			c.onRetry(attempt, err)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.RetryInterval
	b.MaxInterval = 30 * time.Second
	return backoff.RetryNotifyWithData(op,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.MaxNavRetries)), ctx),
		notify)
}

// relogin restores the authenticated session, at most once per attempt.
func (c *Controller) relogin(ctx context.Context) error {
	if c.reloginSpent {
		return errors.New("re-login already spent this attempt")
	}
	r, ok := c.driver.(browser.Reloginer)
	if !ok {
		return errors.New("driver cannot re-login")
	}
	c.reloginSpent = true
	c.logger.Info("session auth lost, re-logging in")
	if err := r.Relogin(ctx); err != nil {
		return fmt.Errorf("re-login: %w", err)
	}
	return nil
}

// pace sleeps until at least MinActionDelay has passed since the previous
// action, plus random jitter so the cadence does not look mechanical.
func (c *Controller) pace(ctx context.Context) {
	if c.opts.MinActionDelay <= 0 || c.lastAction.IsZero() {
		return
	}
	delay := c.opts.MinActionDelay + time.Duration(rand.Int63n(int64(c.opts.MinActionDelay)+1))
	elapsed := time.Since(c.lastAction)
	if elapsed >= delay {
		return
	}
	select {
	case <-time.After(delay - elapsed):
	case <-ctx.Done():
	}
}
