package deviceauth

// AuthState is the agent's pairing status as seen by subscribers
type AuthState int

const (
	AuthStateUnpaired AuthState = iota
	AuthStatePaired
)

// String returns a readable name for the state
func (s AuthState) String() string {
	if s == AuthStatePaired {
		return "paired"
	}
	return "unpaired"
}

// OnAuthChange subscribes to pairing-state transitions. The callback fires
// exactly once per actual transition, never on redundant re-checks. The
// returned function unsubscribes.
func (a *Agent) OnAuthChange(fn func(AuthState)) func() {
	a.evMu.Lock()
	id := a.nextSubID
	a.nextSubID++
	a.subs[id] = fn
	a.evMu.Unlock()

	return func() {
		a.evMu.Lock()
		delete(a.subs, id)
		a.evMu.Unlock()
	}
}

// emitAuthState notifies subscribers if, and only if, the state changed
func (a *Agent) emitAuthState(s AuthState) {
	a.evMu.Lock()
	if s == a.lastState {
		a.evMu.Unlock()
		return
	}
	a.lastState = s
	fns := make([]func(AuthState), 0, len(a.subs))
	for _, fn := range a.subs {
		fns = append(fns, fn)
	}
	a.evMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}
