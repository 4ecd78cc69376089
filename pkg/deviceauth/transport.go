package deviceauth

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Do issues an authorized request: it attaches a currently valid bearer
// token, and on a 401/403 response performs exactly one refresh plus one
// retry before surfacing ErrAuthFailed. It never loops.
//
// Requests with a body must set GetBody (http.NewRequest does this for
// common body types) so the retry can replay it.
func (a *Agent) Do(req *http.Request) (*http.Response, error) {
	httpClient := a.cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	token, err := a.cache.Token(req.Context())
	if err != nil {
		return nil, err
	}

	resp, err := httpClient.Do(withBearer(req, token))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return resp, nil
	}
	drain(resp)

	// The server rejected a token we thought was valid; refresh once.
	token, err = a.cache.ForceRefresh(req.Context())
	if err != nil {
		// Only a definitive rejection means the pairing is dead; a transient
		// refresh failure leaves the paired state alone.
		if errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrNotPaired) {
			a.emitAuthState(AuthStateUnpaired)
		}
		return nil, fmt.Errorf("%w: refresh failed: %w", ErrAuthFailed, err)
	}

	retry, err := cloneRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err = httpClient.Do(withBearer(retry, token))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		drain(resp)
		a.emitAuthState(AuthStateUnpaired)
		return nil, fmt.Errorf("%w: retry rejected", ErrAuthFailed)
	}
	return resp, nil
}

func withBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// cloneRequest prepares a request for the single retry, replaying the body
func cloneRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("cannot retry request without GetBody")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}

// drain discards and closes a response body so the connection is reused
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
