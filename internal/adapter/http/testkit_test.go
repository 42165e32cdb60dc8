package httpadapter

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"hivescan/internal/app/captcha"
	"hivescan/internal/app/stats"
	"hivescan/internal/domain/geo"

	"github.com/cloudwego/hertz/pkg/app"
)

type fakeControl struct {
	mu         sync.Mutex
	paused     bool
	loc        geo.Coord
	moves      int
	heartbeats int
}

func (c *fakeControl) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *fakeControl) SetPaused(p bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = p
}

func (c *fakeControl) SetLocation(loc geo.Coord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loc = loc
	c.moves++
}

func (c *fakeControl) Heartbeat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heartbeats++
}

type fakeStats struct {
	totals stats.Delta
	rates  stats.Rates
	seen   int
}

func (s fakeStats) Totals() stats.Delta { return s.totals }
func (s fakeStats) Rates() stats.Rates  { return s.rates }
func (s fakeStats) AccountsSeen() int   { return s.seen }

type fakeCaptcha struct {
	err  error
	reqs []captcha.ManualRequest
}

func (f *fakeCaptcha) Execute(_ context.Context, req captcha.ManualRequest) error {
	f.reqs = append(f.reqs, req)
	return f.err
}

func decodeBody(t *testing.T, ctx *app.RequestContext) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(ctx.Response.Body(), &out); err != nil {
		t.Fatalf("decode response %q: %v", ctx.Response.Body(), err)
	}
	return out
}

func errorCode(t *testing.T, ctx *app.RequestContext) string {
	t.Helper()
	body := decodeBody(t, ctx)
	e, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error body, got %v", body)
	}
	code, _ := e["code"].(string)
	return code
}
