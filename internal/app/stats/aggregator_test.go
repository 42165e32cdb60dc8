package stats

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestAggregator_RunAppliesEveryUpdate(t *testing.T) {
	agg := NewAggregator(4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx)
		close(done)
	}()

	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				agg.Send(Update{WorkerID: "w", Username: "u", Delta: Delta{Success: 1, Fail: 1}})
			}
		}()
	}
	wg.Wait()
	cancel()
	<-done

	got := agg.Totals()
	if got.Success != 1000 || got.Fail != 1000 {
		t.Fatalf("expected 1000 success and fail, got %+v", got)
	}
	if agg.AccountsSeen() != 1 {
		t.Fatalf("expected one account seen, got %d", agg.AccountsSeen())
	}
}

func TestAggregator_SendSkipsEmptyDelta(t *testing.T) {
	agg := NewAggregator(1, nil)
	agg.Send(Update{})
	agg.Send(Update{})
	if len(agg.updates) != 0 {
		t.Fatalf("expected empty updates dropped, got %d queued", len(agg.updates))
	}
}

func TestAggregator_MessageRates(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	agg := NewAggregator(1, func() time.Time { return now })
	agg.Apply(Update{Delta: Delta{Success: 10, Captcha: 2, NoItems: 1}})
	now = start.Add(time.Hour)

	msg := agg.Message(3)
	for _, want := range []string{
		"Total active: 3",
		"Success: 10 (10.0/hr)",
		"Empties: 1 (1.0/hr)",
		"Captchas: 2 (2.0/hr)|$0.00598/hr|$4.365/mo",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in %q", want, msg)
		}
	}
	if r := agg.Rates(); r.ScansPerMinute != 11 || r.CaptchasPerMinute != 2 {
		t.Fatalf("unexpected rates %+v", r)
	}
}
