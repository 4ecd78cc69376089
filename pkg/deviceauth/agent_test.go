package deviceauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestAgentStartsPairedFromCachedToken(t *testing.T) {
	dir := t.TempDir()

	seed := NewTokenCache(filepath.Join(dir, tokenCacheFile), time.Second, nil)
	if err := seed.Set(&Token{Value: "persisted", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}

	a, err := New(Config{BaseURL: "http://unused", StateDir: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tok, err := a.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok != "persisted" {
		t.Errorf("token = %q, want the persisted one", tok)
	}
}

func TestAgentStartsUnpairedWithoutCache(t *testing.T) {
	a, err := New(Config{BaseURL: "http://unused", StateDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.Token(context.Background()); !errors.Is(err, ErrNotPaired) {
		t.Fatalf("err = %v, want ErrNotPaired", err)
	}
}

func TestUnpairEmitsOnce(t *testing.T) {
	dir := t.TempDir()
	seed := NewTokenCache(filepath.Join(dir, tokenCacheFile), time.Second, nil)
	if err := seed.Set(&Token{Value: "tok", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}

	a, err := New(Config{BaseURL: "http://unused", StateDir: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var events []AuthState
	unsubscribe := a.OnAuthChange(func(s AuthState) { events = append(events, s) })

	if err := a.Unpair(); err != nil {
		t.Fatalf("Unpair: %v", err)
	}
	// Already unpaired: a second call must not fire a redundant event.
	if err := a.Unpair(); err != nil {
		t.Fatalf("Unpair again: %v", err)
	}
	if len(events) != 1 || events[0] != AuthStateUnpaired {
		t.Fatalf("events = %v, want exactly one unpaired transition", events)
	}

	unsubscribe()
	a.emitAuthState(AuthStatePaired)
	if len(events) != 1 {
		t.Errorf("events after unsubscribe = %v, want no further callbacks", events)
	}
}

func TestRegisterCancelsOutstandingPoll(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/devices/register", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Registration{
			DeviceID:  "dev-2",
			Code:      "WXYZ2345",
			ExpiresAt: time.Now().Add(10 * time.Minute),
		})
	})
	mux.HandleFunc("/api/v1/devices/exchange", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooEarly) // never links
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	a, err := New(Config{
		BaseURL:      server.URL,
		StateDir:     t.TempDir(),
		HTTPClient:   server.Client(),
		PollInterval: 5 * time.Millisecond,
		MaxWait:      time.Minute,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	reg, err := a.Register(context.Background())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	type pollResult struct {
		state PollState
		err   error
	}
	done := make(chan pollResult, 1)
	go func() {
		state, err := a.Poll(context.Background(), reg)
		done <- pollResult{state, err}
	}()

	// Let the poller make at least one attempt, then supersede it.
	time.Sleep(30 * time.Millisecond)
	if _, err := a.Register(context.Background()); err != nil {
		t.Fatalf("second Register: %v", err)
	}

	select {
	case res := <-done:
		if !errors.Is(res.err, context.Canceled) {
			t.Fatalf("poll err = %v, want context.Canceled", res.err)
		}
		if res.state.Terminal() {
			t.Fatalf("poll state = %s, want non-terminal after supersession", res.state)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not stop after the superseding registration")
	}
}

func TestNewPollSurvivesSupersededPollCleanup(t *testing.T) {
	var calls atomic.Int32
	firstInFlight := make(chan struct{})
	releaseFirst := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/devices/exchange", func(w http.ResponseWriter, r *http.Request) {
		// The first poll's request stalls mid-flight; everything after it
		// links immediately.
		if calls.Add(1) == 1 {
			close(firstInFlight)
			<-releaseFirst
			w.WriteHeader(http.StatusTooEarly)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Token{
			Value:     "issued-to-b",
			ExpiresAt: time.Now().Add(time.Hour),
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	defer close(releaseFirst)

	a, err := New(Config{
		BaseURL:      server.URL,
		StateDir:     t.TempDir(),
		HTTPClient:   server.Client(),
		PollInterval: 5 * time.Millisecond,
		MaxWait:      time.Minute,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	newReg := func(id string) *Registration {
		return &Registration{
			DeviceID:  id,
			Code:      "AAAA2345",
			ExpiresAt: time.Now().Add(10 * time.Minute),
		}
	}

	type pollResult struct {
		state PollState
		err   error
	}

	// Poll A stalls inside its first exchange request.
	aDone := make(chan pollResult, 1)
	go func() {
		state, err := a.Poll(context.Background(), newReg("dev-a"))
		aDone <- pollResult{state, err}
	}()
	<-firstInFlight

	// Poll B supersedes A. A's in-flight request aborts and A unwinds
	// while B is still polling; B must keep its registration and link.
	bDone := make(chan pollResult, 1)
	go func() {
		state, err := a.Poll(context.Background(), newReg("dev-b"))
		bDone <- pollResult{state, err}
	}()

	select {
	case res := <-aDone:
		if !errors.Is(res.err, context.Canceled) {
			t.Fatalf("superseded poll err = %v, want context.Canceled", res.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("superseded poll did not stop")
	}

	select {
	case res := <-bDone:
		if res.err != nil {
			t.Fatalf("new poll err = %v, want it to outlive the superseded poll's cleanup", res.err)
		}
		if res.state != PollLinked {
			t.Fatalf("new poll state = %s, want linked", res.state)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("new poll did not finish")
	}

	if tok := a.cache.Current(); tok == nil || tok.Value != "issued-to-b" {
		t.Fatalf("cached token = %+v, want the new poll's token", tok)
	}
}

func TestAgentFingerprintStableAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{BaseURL: "http://unused", StateDir: dir, ClientSignal: "linux/cli"}

	first, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	second, err := New(cfg)
	if err != nil {
		t.Fatalf("New again: %v", err)
	}
	if first.Fingerprint() != second.Fingerprint() {
		t.Error("fingerprint changed across restarts with the same state dir")
	}
}
