package status

import (
	"context"
	"log/slog"
	"time"

	"hivescan/internal/app/ports"
)

const WriteInterval = 3 * time.Second

// Writer periodically pushes the registry to the persistence sink under the
// configured status name.
type Writer struct {
	Name     string
	Registry *Registry
	Sink     ports.EntitySink
	Logger   *slog.Logger
	Now      func() time.Time
}

func (w Writer) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

func (w Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w Writer) Run(ctx context.Context, interval time.Duration) {
	if w.Name == "" || w.Sink == nil || w.Registry == nil {
		return
	}
	if interval <= 0 {
		interval = WriteInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	w.logger().Info("status writer started", "name", w.Name)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Flush()
		}
	}
}

// Flush writes one round of worker rows plus the main worker row.
func (w Writer) Flush() {
	snap := w.Registry.Snapshot()
	now := w.now()
	rows := make(map[string]any, len(snap.Workers))
	for id, st := range snap.Workers {
		if st.Username == "" {
			continue
		}
		rows[st.Username] = ports.WorkerStatusRecord{
			Username:     st.Username,
			WorkerName:   w.Name + "_" + id,
			Success:      st.Success,
			Fail:         st.Fail,
			NoItems:      st.NoItems,
			Skip:         st.Skip,
			Captcha:      st.Captcha,
			Message:      st.Message,
			LastScanDate: st.LastScan,
			LastModified: now,
			Location:     st.Location,
		}
	}
	if len(rows) > 0 {
		w.Sink.Enqueue(ports.KindWorkerStatus, rows)
	}
	o := snap.Overseer
	w.Sink.Enqueue(ports.KindMainWorker, map[string]any{
		w.Name: ports.MainWorkerRecord{
			WorkerName:      w.Name,
			Message:         o.Message,
			Method:          o.Method,
			AccountsWorking: o.AccountsWorking,
			AccountsCaptcha: o.AccountsCaptcha,
			AccountsFailed:  o.AccountsFailed,
			LastModified:    now,
		},
	})
}
