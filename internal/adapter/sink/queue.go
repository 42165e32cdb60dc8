package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"hivescan/internal/app/ports"
	"hivescan/internal/domain/hashkey"
	"hivescan/internal/domain/scan"
)

const (
	DefaultBuffer = 4096
	drainTimeout  = 10 * time.Second
)

type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	EnqueuedTotal uint64 `json:"enqueued_total"`
	DroppedTotal  uint64 `json:"dropped_total"`
	WrittenTotal  uint64 `json:"written_total"`
	FailedTotal   uint64 `json:"failed_total"`
}

type batch struct {
	kind    ports.EntityKind
	records map[string]any
}

// Queue buffers persistence batches from the scanning loops and writes them
// to the store on a single goroutine.
type Queue struct {
	Store  ports.Store
	Logger *slog.Logger

	ch chan batch

	enqueuedTotal atomic.Uint64
	droppedTotal  atomic.Uint64
	writtenTotal  atomic.Uint64
	failedTotal   atomic.Uint64
}

func NewQueue(store ports.Store, buffer int) *Queue {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Queue{Store: store, ch: make(chan batch, buffer)}
}

func (q *Queue) logger() *slog.Logger {
	if q.Logger != nil {
		return q.Logger
	}
	return slog.Default()
}

// Enqueue never blocks. A full buffer drops the batch.
func (q *Queue) Enqueue(kind ports.EntityKind, records map[string]any) {
	if q == nil || len(records) == 0 {
		return
	}
	q.enqueuedTotal.Add(1)
	select {
	case q.ch <- batch{kind: kind, records: records}:
	default:
		dropped := q.droppedTotal.Add(1)
		q.logger().Warn("persistence batch dropped", "kind", kind, "records", len(records), "dropped_total", dropped)
	}
}

func (q *Queue) Stats() Stats {
	return Stats{
		QueueDepth:    len(q.ch),
		QueueCapacity: cap(q.ch),
		EnqueuedTotal: q.enqueuedTotal.Load(),
		DroppedTotal:  q.droppedTotal.Load(),
		WrittenTotal:  q.writtenTotal.Load(),
		FailedTotal:   q.failedTotal.Load(),
	}
}

// Run writes batches until ctx is done, then flushes what is already
// buffered.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case b := <-q.ch:
			q.write(ctx, b)
		case <-ctx.Done():
			q.drain()
			return
		}
	}
}

func (q *Queue) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case b := <-q.ch:
			q.write(ctx, b)
		default:
			return
		}
	}
}

func (q *Queue) write(ctx context.Context, b batch) {
	if err := q.apply(ctx, b); err != nil {
		q.failedTotal.Add(1)
		q.logger().Error("persistence write failed", "kind", b.kind, "records", len(b.records), "err", err)
		return
	}
	q.writtenTotal.Add(1)
}

func (q *Queue) apply(ctx context.Context, b batch) error {
	switch b.kind {
	case ports.KindPokemon:
		return q.Store.UpsertPokemons(ctx, collect[scan.WildPokemon](b.records))
	case ports.KindPokestop:
		return q.Store.UpsertPokestops(ctx, collect[scan.Pokestop](b.records))
	case ports.KindGym:
		return q.Store.UpsertGyms(ctx, collect[scan.Gym](b.records))
	case ports.KindGymDetails:
		return q.Store.UpsertGymDetails(ctx, collect[scan.GymDetails](b.records))
	case ports.KindSpawnPoint:
		return q.Store.UpsertSpawnPoints(ctx, collect[scan.SpawnPoint](b.records))
	case ports.KindWorkerStatus:
		return q.Store.UpsertWorkerStatus(ctx, collect[ports.WorkerStatusRecord](b.records))
	case ports.KindMainWorker:
		for _, row := range collect[ports.MainWorkerRecord](b.records) {
			if err := q.Store.UpsertMainWorker(ctx, row); err != nil {
				return err
			}
		}
		return nil
	case ports.KindHashKey:
		return q.Store.UpsertHashKeys(ctx, collect[hashkey.Budget](b.records))
	case ports.KindAccountFailure:
		for _, f := range collect[ports.AccountFailureRecord](b.records) {
			if err := q.Store.AppendFailure(ctx, f); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown entity kind %q", b.kind)
	}
}

// collect returns the records of type T in key order. Values of any other
// type are skipped.
func collect[T any](records map[string]any) []T {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]T, 0, len(records))
	for _, k := range keys {
		switch v := records[k].(type) {
		case T:
			out = append(out, v)
		case *T:
			if v != nil {
				out = append(out, *v)
			}
		}
	}
	return out
}
