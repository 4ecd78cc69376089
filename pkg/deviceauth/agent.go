package deviceauth

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"time"
)

// Config holds the SDK knobs, resolved once when the agent is created.
type Config struct {
	// BaseURL of the GridNote Device Link API.
	BaseURL string
	// StateDir holds the install identity and the token cache file.
	StateDir string
	// ClientSignal carries coarse client attributes (browser, platform)
	// mixed into the fingerprint.
	ClientSignal string
	// PollInterval between exchange attempts. Default 3s.
	PollInterval time.Duration
	// MaxWait bounds a single pairing attempt. Default 5m.
	MaxWait time.Duration
	// RefreshThreshold: tokens with less remaining lifetime are refreshed
	// before use. Default 30s.
	RefreshThreshold time.Duration
	// HTTPClient optionally overrides the default HTTP client.
	HTTPClient *http.Client
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 5 * time.Minute
	}
	if c.RefreshThreshold <= 0 {
		c.RefreshThreshold = 30 * time.Second
	}
	return c
}

const tokenCacheFile = "device_token.json"

// Agent ties the SDK together: install identity, registration, polling,
// token cache and the authorized request wrapper. One agent per install.
type Agent struct {
	cfg         Config
	api         *Client
	cache       *TokenCache
	installID   string
	fingerprint string

	mu   sync.Mutex
	poll *pollSession

	evMu      sync.Mutex
	subs      map[int]func(AuthState)
	nextSubID int
	lastState AuthState
}

// New loads (or creates) the install identity and token cache under
// cfg.StateDir and returns a ready agent.
func New(cfg Config) (*Agent, error) {
	cfg = cfg.withDefaults()

	installID, err := LoadOrCreateInstallID(cfg.StateDir)
	if err != nil {
		return nil, err
	}
	fingerprint, err := Fingerprint(installID, cfg.ClientSignal)
	if err != nil {
		return nil, err
	}

	api := NewClient(cfg.BaseURL, cfg.HTTPClient)
	cache := NewTokenCache(
		filepath.Join(cfg.StateDir, tokenCacheFile),
		cfg.RefreshThreshold,
		api.Refresh,
	)

	a := &Agent{
		cfg:         cfg,
		api:         api,
		cache:       cache,
		installID:   installID,
		fingerprint: fingerprint,
		subs:        make(map[int]func(AuthState)),
		lastState:   AuthStateUnpaired,
	}
	if cache.Current() != nil {
		a.lastState = AuthStatePaired
	}
	return a, nil
}

// Fingerprint returns the device fingerprint used for registration
func (a *Agent) Fingerprint() string {
	return a.fingerprint
}

// Register starts a new pairing attempt. Any poller still bound to a prior
// registration is cancelled first: one sign-in gesture, one outstanding code.
func (a *Agent) Register(ctx context.Context) (*Registration, error) {
	a.cancelPoll()
	return a.api.Register(ctx, a.fingerprint)
}

// pollSession identifies one run of the poller, so a superseded poll's
// cleanup can never touch its successor.
type pollSession struct {
	cancel context.CancelFunc
}

// Poll runs the exchange poller for a registration until it reaches a
// terminal state or is cancelled (by ctx or by a newer Register call). On
// linkage the token is cached and subscribers are notified.
func (a *Agent) Poll(ctx context.Context, reg *Registration) (PollState, error) {
	pollCtx, cancel := context.WithCancel(ctx)
	session := &pollSession{cancel: cancel}

	a.mu.Lock()
	if a.poll != nil {
		a.poll.cancel()
	}
	a.poll = session
	a.mu.Unlock()
	defer a.releasePoll(session)

	poller := NewPoller(a.api, a.cache, a.cfg.PollInterval, a.cfg.MaxWait)
	poller.onLinked = func(*Token) {
		a.emitAuthState(AuthStatePaired)
	}
	return poller.Run(pollCtx, reg)
}

// Token returns a currently valid device token, refreshing if needed
func (a *Agent) Token(ctx context.Context) (string, error) {
	return a.cache.Token(ctx)
}

// Unpair drops the cached token, returning the agent to the unpaired state.
// The server-side record is untouched; revoke it via the device management
// API if the device should lose access entirely.
func (a *Agent) Unpair() error {
	a.cancelPoll()
	if err := a.cache.Clear(); err != nil {
		return err
	}
	a.emitAuthState(AuthStateUnpaired)
	return nil
}

func (a *Agent) cancelPoll() {
	a.mu.Lock()
	if a.poll != nil {
		a.poll.cancel()
		a.poll = nil
	}
	a.mu.Unlock()
}

// releasePoll cleans up after one poller run. It only unregisters its own
// session: a poll that was superseded mid-run must not cancel the newer one.
func (a *Agent) releasePoll(s *pollSession) {
	s.cancel()
	a.mu.Lock()
	if a.poll == s {
		a.poll = nil
	}
	a.mu.Unlock()
}
