package deviceauth

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RefreshFunc exchanges the current token value for a fresh token
type RefreshFunc func(ctx context.Context, current string) (*Token, error)

// TokenCache persists the device token and its expiry to disk and hands out a
// valid token on demand, refreshing proactively when the remaining lifetime
// drops below the threshold. There is no cross-process lock: two processes
// both refreshing near expiry is an accepted, harmless race.
type TokenCache struct {
	path      string
	threshold time.Duration
	refresh   RefreshFunc

	mu  sync.Mutex
	tok *Token

	now func() time.Time
}

// NewTokenCache opens (or initializes) the cache at path. A corrupt or
// missing cache file just means the device is unpaired.
func NewTokenCache(path string, threshold time.Duration, refresh RefreshFunc) *TokenCache {
	c := &TokenCache{
		path:      path,
		threshold: threshold,
		refresh:   refresh,
		now:       time.Now,
	}
	if data, err := os.ReadFile(path); err == nil {
		var tok Token
		if err := json.Unmarshal(data, &tok); err == nil && tok.Value != "" {
			c.tok = &tok
		}
	}
	return c
}

// Current returns a copy of the cached token, or nil when unpaired
func (c *TokenCache) Current() *Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tok == nil {
		return nil
	}
	tok := *c.tok
	return &tok
}

// Set atomically replaces the cached token and persists it
func (c *TokenCache) Set(tok *Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setLocked(tok)
}

// Clear forgets the token, returning the device to the unpaired state
func (c *TokenCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tok = nil
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Token returns a token whose remaining lifetime exceeds the refresh
// threshold, refreshing first when it does not. Concurrent callers within the
// process serialize on the cache, so only one of them performs the refresh.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tok != nil && c.tok.Valid(c.now(), c.threshold) {
		return c.tok.Value, nil
	}
	return c.refreshLocked(ctx)
}

// ForceRefresh refreshes unconditionally, for use after a 401
func (c *TokenCache) ForceRefresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *TokenCache) refreshLocked(ctx context.Context) (string, error) {
	if c.tok == nil {
		return "", ErrNotPaired
	}
	tok, err := c.refresh(ctx, c.tok.Value)
	if err != nil {
		return "", err
	}
	if err := c.setLocked(tok); err != nil {
		return "", err
	}
	return tok.Value, nil
}

// setLocked persists via write-to-temp plus rename so a crash mid-write
// never leaves a truncated cache file.
func (c *TokenCache) setLocked(tok *Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return err
	}
	c.tok = tok
	return nil
}
