package action

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"hivescan/internal/app/pacing"
	"hivescan/internal/app/ports"
	"hivescan/internal/domain/account"
	"hivescan/internal/domain/geo"
)

type scriptedReply struct {
	resp ports.Response
	err  error
}

// scriptedSession replays queued replies per request kind. A kind with an
// empty queue answers with Result 1.
type scriptedSession struct {
	mu      sync.Mutex
	replies map[ports.RequestKind][]scriptedReply
	calls   []ports.Request
}

func newScriptedSession() *scriptedSession {
	return &scriptedSession{replies: map[ports.RequestKind][]scriptedReply{}}
}

func (s *scriptedSession) reply(kind ports.RequestKind, resp ports.Response) *scriptedSession {
	s.replies[kind] = append(s.replies[kind], scriptedReply{resp: resp})
	return s
}

func (s *scriptedSession) fail(kind ports.RequestKind, err error) *scriptedSession {
	s.replies[kind] = append(s.replies[kind], scriptedReply{err: err})
	return s
}

func (s *scriptedSession) Authenticate(context.Context, account.Credentials, string) error {
	return nil
}

func (s *scriptedSession) TicketExpiry() time.Time { return time.Time{} }
func (s *scriptedSession) SetPosition(geo.Coord)   {}
func (s *scriptedSession) SetHashKey(string)       {}

func (s *scriptedSession) Call(_ context.Context, req ports.Request) (ports.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	queue := s.replies[req.Kind]
	if len(queue) == 0 {
		return ports.Response{Kind: req.Kind, Result: 1}, nil
	}
	next := queue[0]
	s.replies[req.Kind] = queue[1:]
	next.resp.Kind = req.Kind
	return next.resp, next.err
}

func (s *scriptedSession) count(kind ports.RequestKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

type countingMetrics struct {
	success map[string]int
	skip    map[string]int
	failure map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{success: map[string]int{}, skip: map[string]int{}, failure: map[string]int{}}
}

func (m *countingMetrics) RecordSuccess(a string) { m.success[a]++ }
func (m *countingMetrics) RecordSkip(a string)    { m.skip[a]++ }
func (m *countingMetrics) RecordFailure(a string) { m.failure[a]++ }

var testNow = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestExecutor(cfg Config) (*Executor, *pacing.RecordingSleeper) {
	sleeper := &pacing.RecordingSleeper{}
	ex := NewExecutor(cfg, sleeper, rand.New(rand.NewSource(7)))
	ex.Now = func() time.Time { return testNow }
	return ex, sleeper
}

func newTestAccount() *account.Account {
	a := account.New(account.Credentials{Username: "tester", Password: "x"})
	a.Level = 10
	a.RewardedLevel = 10
	return a
}
