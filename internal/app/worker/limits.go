package worker

import "sync/atomic"

// Limits holds the hourly action caps shared by every worker. They may be
// changed while the workers run.
type Limits struct {
	throws  atomic.Int64
	catches atomic.Int64
	spins   atomic.Int64
}

func NewLimits(throws, catches, spins int) *Limits {
	l := &Limits{}
	l.Set(throws, catches, spins)
	return l
}

func (l *Limits) Set(throws, catches, spins int) {
	l.throws.Store(int64(throws))
	l.catches.Store(int64(catches))
	l.spins.Store(int64(spins))
}

func (l *Limits) Throws() int  { return int(l.throws.Load()) }
func (l *Limits) Catches() int { return int(l.catches.Load()) }
func (l *Limits) Spins() int   { return int(l.spins.Load()) }

func (w *Worker) maxThrows() int {
	if w.Limits != nil {
		return w.Limits.Throws()
	}
	return w.Config.MaxThrows
}

func (w *Worker) maxCatches() int {
	if w.Limits != nil {
		return w.Limits.Catches()
	}
	return w.Config.MaxCatches
}

func (w *Worker) maxSpins() int {
	if w.Limits != nil {
		return w.Limits.Spins()
	}
	return w.Config.MaxSpins
}
