package accountpool

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hivescan/internal/app/ports"
	"hivescan/internal/domain/account"
)

func TestPool_ConcurrentAcquireNeverDoubleLeases(t *testing.T) {
	accounts := make([]*account.Account, 4)
	for i := range accounts {
		accounts[i] = account.New(account.Credentials{Username: string(rune('a' + i)), Password: "x"})
	}
	p := New(accounts, time.Minute)

	var holders sync.Map
	var violations atomic.Int32
	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				a, err := p.Acquire(context.Background())
				if err != nil {
					t.Errorf("acquire: %v", err)
					return
				}
				if _, loaded := holders.LoadOrStore(a.Username, true); loaded {
					violations.Add(1)
				}
				holders.Delete(a.Username)
				p.Release(a)
			}
		}()
	}
	wg.Wait()
	if violations.Load() != 0 {
		t.Fatalf("expected no double leases, got %d", violations.Load())
	}
	if c := p.Counts(); c.Available != 4 || c.Leased != 0 {
		t.Fatalf("expected all accounts back, got %+v", c)
	}
}

func TestPool_AcquireBlocksUntilRelease(t *testing.T) {
	a := account.New(account.Credentials{Username: "solo", Password: "x"})
	p := New([]*account.Account{a}, time.Minute)
	leased, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	got := make(chan *account.Account, 1)
	go func() {
		next, _ := p.Acquire(context.Background())
		got <- next
	}()
	select {
	case <-got:
		t.Fatalf("expected acquire to block while account leased")
	case <-time.After(20 * time.Millisecond):
	}
	p.Release(leased)
	select {
	case next := <-got:
		if next != a {
			t.Fatalf("expected solo, got %v", next)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected acquire to return after release")
	}
}

func TestPool_AcquireHonoursContext(t *testing.T) {
	p := New(nil, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestPool_ExceptionRecyclesAfterTenthOfRest(t *testing.T) {
	a := account.New(account.Credentials{Username: "u1", Password: "x"})
	p := New([]*account.Account{a}, 100*time.Second)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	leased, _ := p.Acquire(context.Background())
	p.Quarantine(leased, account.ReasonException, base)

	if n := p.Recycle(base.Add(9 * time.Second)); n != 0 {
		t.Fatalf("expected no recycle before 10s, got %d", n)
	}
	if n := p.Recycle(base.Add(10 * time.Second)); n != 1 {
		t.Fatalf("expected recycle at 10s, got %d", n)
	}
	if c := p.Counts(); c.Available != 1 || c.Quarantined != 0 {
		t.Fatalf("expected account available again, got %+v", c)
	}
}

func TestPool_BannedNeverLeasedAgain(t *testing.T) {
	banned := account.New(account.Credentials{Username: "banned", Password: "x"})
	ok := account.New(account.Credentials{Username: "ok", Password: "x"})
	p := New([]*account.Account{banned, ok}, time.Second)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	first, _ := p.Acquire(context.Background())
	if first != banned {
		t.Fatalf("expected banned account first, got %s", first.Username)
	}
	p.Quarantine(first, account.ReasonBanned, base)
	if !banned.Banned {
		t.Fatalf("expected banned flag set")
	}
	p.Recycle(base.Add(time.Hour))

	for i := 0; i < 3; i++ {
		a, err := p.Acquire(context.Background())
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		if a.Banned {
			t.Fatalf("expected banned account never leased")
		}
		p.Release(a)
	}

	p.Add(banned)
	a, _ := p.Acquire(context.Background())
	if a != ok {
		t.Fatalf("expected ok account, got %s", a.Username)
	}
	if c := p.Counts(); c.Retired != 1 {
		t.Fatalf("expected banned account retired, got %+v", c)
	}
}

func TestPool_ReleaseOfUnleasedLogs(t *testing.T) {
	var buf bytes.Buffer
	a := account.New(account.Credentials{Username: "stray", Password: "x"})
	p := New(nil, time.Minute)
	p.Logger = slog.New(slog.NewTextHandler(&buf, nil))

	p.Release(a)
	if !strings.Contains(buf.String(), "release of account not leased") {
		t.Fatalf("expected error log, got %q", buf.String())
	}
	if c := p.Counts(); c.Available != 0 {
		t.Fatalf("expected stray account not queued, got %+v", c)
	}
}

func TestPool_CoolingOffNoticeLoggedOnce(t *testing.T) {
	var buf bytes.Buffer
	a := account.New(account.Credentials{Username: "u1", Password: "x"})
	p := New([]*account.Account{a}, time.Hour)
	p.Logger = slog.New(slog.NewTextHandler(&buf, nil))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	leased, _ := p.Acquire(context.Background())
	p.Quarantine(leased, account.ReasonMaxFailures, base)
	for i := 1; i <= 3; i++ {
		p.Recycle(base.Add(time.Duration(i) * time.Minute))
	}
	if n := strings.Count(buf.String(), "account cooling off"); n != 1 {
		t.Fatalf("expected one cooling off notice, got %d", n)
	}
}

func TestPool_QuarantineRecordsFailure(t *testing.T) {
	sink := &recordingSink{}
	a := account.New(account.Credentials{Username: "u1", Password: "x"})
	p := New([]*account.Account{a}, time.Minute)
	p.Sink = sink
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	leased, _ := p.Acquire(context.Background())
	p.Quarantine(leased, account.ReasonEmptyScans, now)

	failures := p.Failures()
	if len(failures) != 1 || failures[0].Reason != account.ReasonEmptyScans {
		t.Fatalf("expected one empty-scans failure, got %+v", failures)
	}
	if leased.InUse {
		t.Fatalf("expected lease cleared")
	}
	if len(sink.kinds) != 1 || sink.kinds[0] != ports.KindAccountFailure {
		t.Fatalf("expected account failure persisted, got %v", sink.kinds)
	}
}

type recordingSink struct {
	mu    sync.Mutex
	kinds []ports.EntityKind
}

func (s *recordingSink) Enqueue(kind ports.EntityKind, _ map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = append(s.kinds, kind)
}
