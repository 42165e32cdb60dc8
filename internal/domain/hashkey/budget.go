package hashkey

import (
	"errors"
	"sync"
	"time"
)

var ErrUnknownKey = errors.New("unknown hash key")

type Budget struct {
	Key         string    `json:"key"`
	Remaining   int       `json:"remaining"`
	Maximum     int       `json:"maximum"`
	Peak        int       `json:"peak"`
	Expires     time.Time `json:"expires,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// Status is the quota report returned by the hashing service after a call.
type Status struct {
	Token      string
	Remaining  int
	Maximum    int
	Expiration time.Time
}

// Scheduler hands out keys round-robin and tracks their shared budgets.
type Scheduler struct {
	mu      sync.Mutex
	keys    []string
	budgets map[string]*Budget
	next    int
}

func NewScheduler(keys []string) *Scheduler {
	s := &Scheduler{budgets: map[string]*Budget{}}
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := s.budgets[k]; ok {
			continue
		}
		s.keys = append(s.keys, k)
		s.budgets[k] = &Budget{Key: k}
	}
	return s
}

func (s *Scheduler) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

func (s *Scheduler) Next() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.keys) == 0 {
		return ""
	}
	k := s.keys[s.next%len(s.keys)]
	s.next++
	return k
}

// Observe applies a status report. Within one quota window remaining only
// decreases; a larger maximum or a report after the minute rolls over
// starts a new window.
func (s *Scheduler) Observe(st Status, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[st.Token]
	if !ok {
		return ErrUnknownKey
	}
	newWindow := b.LastUpdated.IsZero() ||
		st.Maximum != b.Maximum ||
		now.Truncate(time.Minute).After(b.LastUpdated.Truncate(time.Minute))
	if newWindow || st.Remaining < b.Remaining {
		b.Remaining = st.Remaining
	}
	b.Maximum = st.Maximum
	if usage := b.Maximum - b.Remaining; usage > b.Peak {
		b.Peak = usage
	}
	if b.Expires.IsZero() && !st.Expiration.IsZero() {
		b.Expires = st.Expiration
	}
	b.LastUpdated = now
	return nil
}

func (s *Scheduler) Get(key string) (Budget, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[key]
	if !ok {
		return Budget{}, false
	}
	return *b, true
}

func (s *Scheduler) Snapshot() []Budget {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Budget, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, *s.budgets[k])
	}
	return out
}
