package captcha

import (
	"context"
	"sync"
	"time"

	"hivescan/internal/app/ports"
	"hivescan/internal/domain/account"
	"hivescan/internal/domain/geo"
)

type stubSession struct {
	authErr  error
	result   int
	callErr  error
	requests []ports.Request
}

func (s *stubSession) Authenticate(context.Context, account.Credentials, string) error {
	return s.authErr
}

func (s *stubSession) TicketExpiry() time.Time { return time.Time{} }
func (s *stubSession) SetPosition(geo.Coord)   {}
func (s *stubSession) SetHashKey(string)       {}

func (s *stubSession) Call(_ context.Context, req ports.Request) (ports.Response, error) {
	s.requests = append(s.requests, req)
	if s.callErr != nil {
		return ports.Response{}, s.callErr
	}
	return ports.Response{Kind: req.Kind, Result: s.result}, nil
}

type stubSolver struct {
	token string
	ok    bool
	err   error
	calls int
}

func (s *stubSolver) Solve(context.Context, string) (string, bool, error) {
	s.calls++
	return s.token, s.ok, s.err
}

type recordingWebhook struct {
	mu     sync.Mutex
	events []map[string]any
}

func (w *recordingWebhook) Enqueue(_ string, payload map[string]any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, payload)
}

func (w *recordingWebhook) statuses() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.events))
	for _, e := range w.events {
		out = append(out, e["status"].(string))
	}
	return out
}

type recordingPool struct {
	added []*account.Account
}

func (p *recordingPool) Add(a *account.Account) {
	p.added = append(p.added, a)
}
