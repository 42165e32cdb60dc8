package captcha

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"hivescan/internal/app/ports"
	"hivescan/internal/domain/account"
)

var ErrInvalidRequest = errors.New("invalid captcha request")

// Sideline holds accounts waiting for a manually solved challenge.
type Sideline struct {
	mu       sync.Mutex
	accounts map[string]*account.Account
}

func NewSideline() *Sideline {
	return &Sideline{accounts: map[string]*account.Account{}}
}

func (s *Sideline) Add(a *account.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accounts == nil {
		s.accounts = map[string]*account.Account{}
	}
	s.accounts[a.Username] = a
}

func (s *Sideline) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

func (s *Sideline) Take(username string) (*account.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[username]
	if ok {
		delete(s.accounts, username)
	}
	return a, ok
}

func (s *Sideline) Usernames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.accounts))
	for name := range s.accounts {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type Returner interface {
	Add(a *account.Account)
}

type ManualRequest struct {
	Username string
	Token    string
}

// ManualUseCase verifies an operator-supplied token for a sidelined account
// and hands the account back to the pool.
type ManualUseCase struct {
	Sideline *Sideline
	Sessions ports.SessionFactory
	Pool     Returner
}

func (u ManualUseCase) Execute(ctx context.Context, req ManualRequest) error {
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Token) == "" {
		return ErrInvalidRequest
	}
	a, ok := u.Sideline.Take(req.Username)
	if !ok {
		return ports.ErrNotFound
	}
	sess := u.Sessions.NewSession(a.ProxyURL)
	if err := sess.Authenticate(ctx, a.Credentials, a.ProxyURL); err != nil {
		u.Sideline.Add(a)
		return fmt.Errorf("authenticate %s: %w", a.Username, err)
	}
	if err := Verify(ctx, sess, req.Token); err != nil {
		u.Sideline.Add(a)
		return fmt.Errorf("verify %s: %w", a.Username, err)
	}
	u.Pool.Add(a)
	return nil
}
