package deviceauth

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// PollState is the exchange poller's state machine position
type PollState int

const (
	PollIdle PollState = iota
	PollPolling
	PollLinked      // terminal: token issued and cached
	PollCodeExpired // terminal: re-register required
	PollTimedOut    // terminal: max wait elapsed; caller may re-register
	PollFailed      // terminal: failure budget exhausted
)

// String returns a readable name for the state
func (s PollState) String() string {
	switch s {
	case PollIdle:
		return "idle"
	case PollPolling:
		return "polling"
	case PollLinked:
		return "linked"
	case PollCodeExpired:
		return "code-expired"
	case PollTimedOut:
		return "timed-out"
	case PollFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Terminal reports whether the poller has reached a final state
func (s PollState) Terminal() bool {
	switch s {
	case PollLinked, PollCodeExpired, PollTimedOut, PollFailed:
		return true
	}
	return false
}

// pollFailureBudget is how many consecutive server errors the poller absorbs
// (with backoff) before giving up.
const pollFailureBudget = 3

// Poller repeatedly calls the exchange endpoint until the device is linked,
// the code expires, the max wait elapses, or the failure budget runs out.
// Cancelling the context stops it immediately and leaves the state wherever
// it was, so a caller can abandon a poll superseded by a new registration.
type Poller struct {
	client   *Client
	cache    *TokenCache
	interval time.Duration
	maxWait  time.Duration

	mu    sync.Mutex
	state PollState

	// onLinked runs after the token has been written to the cache, before
	// Run returns PollLinked.
	onLinked func(*Token)

	// injectable for deterministic tests
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewPoller creates a poller that writes the issued token into cache on
// success. cache may be nil.
func NewPoller(client *Client, cache *TokenCache, interval, maxWait time.Duration) *Poller {
	return &Poller{
		client:   client,
		cache:    cache,
		interval: interval,
		maxWait:  maxWait,
		state:    PollIdle,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// State returns the poller's current state
func (p *Poller) State() PollState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run drives the poll loop to completion. It terminates within
// maxWait + one polling interval in the worst case. On cancellation it
// returns the context error and the last observed state.
func (p *Poller) Run(ctx context.Context, reg *Registration) (PollState, error) {
	p.setState(PollPolling)

	deadline := p.now().Add(p.maxWait)
	failures := 0

	for {
		// The local clock decides code expiry without a round trip; the
		// server's 410 covers the case where our clock is behind.
		if !p.now().Before(reg.ExpiresAt) {
			return p.finish(PollCodeExpired), ErrCodeExpired
		}
		if !p.now().Before(deadline) {
			return p.finish(PollTimedOut), ErrPollTimeout
		}

		tok, err := p.client.Exchange(ctx, reg.DeviceID, reg.Code)
		switch {
		case err == nil:
			if p.cache != nil {
				if err := p.cache.Set(tok); err != nil {
					return p.finish(PollFailed), fmt.Errorf("%w: %v", ErrPollFailed, err)
				}
			}
			if p.onLinked != nil {
				p.onLinked(tok)
			}
			return p.finish(PollLinked), nil

		case errors.Is(err, ErrNotLinkedYet):
			failures = 0

		case errors.Is(err, ErrCodeExpired):
			return p.finish(PollCodeExpired), ErrCodeExpired

		case ctx.Err() != nil:
			// Cancelled mid-request: no forced terminal transition.
			return p.State(), ctx.Err()

		default:
			failures++
			if failures > pollFailureBudget {
				return p.finish(PollFailed), fmt.Errorf("%w: %v", ErrPollFailed, err)
			}
		}

		wait := p.interval
		if failures > 0 {
			wait = p.interval * time.Duration(failures+1)
		}
		wait = jitter(wait)
		// A backed-off sleep never overshoots the deadline or the code's own
		// expiry; the loop wakes exactly at the cutoff and terminates there.
		if remaining := deadline.Sub(p.now()); wait > remaining {
			wait = remaining
		}
		if remaining := reg.ExpiresAt.Sub(p.now()); wait > remaining {
			wait = remaining
		}
		if err := p.sleep(ctx, wait); err != nil {
			return p.State(), err
		}
	}
}

func (p *Poller) setState(s PollState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Poller) finish(s PollState) PollState {
	p.setState(s)
	return s
}

// sleepContext waits for d or until the context is cancelled
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// jitter spreads polling attempts by up to 10% so a fleet of clients does
// not hammer the exchange endpoint in lockstep.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(d)/10+1))
}
