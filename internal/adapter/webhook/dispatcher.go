package webhook

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"hivescan/internal/adapter/httpclient"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/google/uuid"
)

const DefaultBuffer = 1024

// Event is the body posted to every webhook URL.
type Event struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Message map[string]any `json:"message"`
	SentAt  int64          `json:"sent_at"`
}

// Archiver records every delivered event.
type Archiver interface {
	Write(v any) error
}

type Stats struct {
	Queued    int    `json:"queued"`
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Filtered  uint64 `json:"filtered"`
}

type Config struct {
	URLs []string
	// Whitelist, when set, is the only pokemon ids forwarded. Blacklist is
	// consulted otherwise.
	Whitelist []int
	Blacklist []int
	Timeout   time.Duration
	Buffer    int
}

type Dispatcher struct {
	cfg       Config
	whitelist map[int]struct{}
	blacklist map[int]struct{}
	client    *client.Client
	events    chan Event

	Archive Archiver
	Logger  *slog.Logger
	Now     func() time.Time

	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	filtered  atomic.Uint64
}

func NewDispatcher(cfg Config) (*Dispatcher, error) {
	c, err := httpclient.New(cfg.Timeout, "")
	if err != nil {
		return nil, err
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	return &Dispatcher{
		cfg:       cfg,
		whitelist: toSet(cfg.Whitelist),
		blacklist: toSet(cfg.Blacklist),
		client:    c,
		events:    make(chan Event, cfg.Buffer),
	}, nil
}

func toSet(ids []int) map[int]struct{} {
	out := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Enqueue never blocks; a full buffer drops the event.
func (d *Dispatcher) Enqueue(eventType string, payload map[string]any) {
	if d == nil || (len(d.cfg.URLs) == 0 && d.Archive == nil) {
		return
	}
	if eventType == "pokemon" && !d.allowPokemon(payload) {
		d.filtered.Add(1)
		return
	}
	ev := Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		Message: payload,
		SentAt:  d.now().Unix(),
	}
	select {
	case d.events <- ev:
	default:
		d.dropped.Add(1)
		d.logger().Warn("webhook event dropped", "type", eventType)
	}
}

func (d *Dispatcher) allowPokemon(payload map[string]any) bool {
	id, ok := pokemonID(payload)
	if !ok {
		return true
	}
	if len(d.whitelist) > 0 {
		_, ok := d.whitelist[id]
		return ok
	}
	_, blocked := d.blacklist[id]
	return !blocked
}

func pokemonID(payload map[string]any) (int, bool) {
	switch v := payload["pokemon_id"].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Queued:    len(d.events),
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
		Filtered:  d.filtered.Load(),
	}
}

// Run delivers events until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.events:
			d.deliver(ctx, ev)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	if d.Archive != nil {
		if err := d.Archive.Write(ev); err != nil {
			d.logger().Warn("webhook archive write failed", "err", err)
		}
	}
	for _, url := range d.cfg.URLs {
		if err := httpclient.PostJSON(ctx, d.client, url, ev, nil); err != nil {
			d.failed.Add(1)
			d.logger().Warn("webhook delivery failed", "url", url, "type", ev.Type, "err", err)
			continue
		}
		d.delivered.Add(1)
	}
}
