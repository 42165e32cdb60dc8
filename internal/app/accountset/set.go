package accountset

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hivescan/internal/domain/account"
	"hivescan/internal/domain/geo"
)

var (
	ErrSetExists  = errors.New("account set already exists")
	ErrUnknownSet = errors.New("unknown account set")
)

// Set partitions accounts by capability. An account is only handed out once
// it could have travelled from its last scan location at MaxKph.
type Set struct {
	MaxKph float64
	Logger *slog.Logger
	Now    func() time.Time

	mu   sync.Mutex
	sets map[string][]*account.Account
}

func New(maxKph float64) *Set {
	return &Set{MaxKph: maxKph, sets: map[string][]*account.Account{}}
}

func (s *Set) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Set) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Set) CreateSet(name string, accounts []*account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sets == nil {
		s.sets = map[string][]*account.Account{}
	}
	if _, ok := s.sets[name]; ok {
		return fmt.Errorf("%w: %s", ErrSetExists, name)
	}
	s.sets[name] = append([]*account.Account(nil), accounts...)
	return nil
}

// Next leases the first eligible account of the named set for a scan at
// target. A nil account with a nil error means none is ready yet.
func (s *Set) Next(name string, target geo.Coord) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	accounts, ok := s.sets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSet, name)
	}
	now := s.now()
	for _, a := range accounts {
		if a.InUse || a.Failed || a.Banned {
			continue
		}
		if a.LastCoords != nil && !a.LastScanned.IsZero() {
			needed := geo.TravelTime(*a.LastCoords, target, s.MaxKph)
			if now.Sub(a.LastScanned) < needed {
				continue
			}
		}
		a.InUse = true
		a.LastScanned = now
		coord := target
		a.LastCoords = &coord
		return a, nil
	}
	return nil, nil
}

func (s *Set) Release(a *account.Account) {
	if a == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !a.InUse {
		s.logger().Warn("released account was not in use", "account", a.Username)
	}
	a.InUse = false
}

func (s *Set) Size(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sets[name])
}
