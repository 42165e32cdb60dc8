package worker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"hivescan/internal/app/pacing"
	"hivescan/internal/app/ports"
	"hivescan/internal/domain/account"
)

var ErrTooManyLoginAttempts = errors.New("exceeded login attempts")

// TicketMargin is how much ticket validity is enough to skip a login.
const TicketMargin = 60 * time.Second

var tutorialSteps = []int{0, 1, 3, 4, 7}

var starterAssets = []string{
	"1a3c2816-65fa-4b97-90eb-0b301c064b7a/1477084786906000",
	"aa8f7687-a022-4773-b900-3a8c170e9aea/1477084794890000",
	"e89109b0-9a54-40fe-8431-12f7826c8194/1477084802881000",
}

// checkLogin authenticates unless the current ticket is still good. A banned
// signal stops retrying and flags the account.
func (w *Worker) checkLogin(ctx context.Context, sess ports.SessionClient, a *account.Account, proxyURL string) error {
	if exp := sess.TicketExpiry(); !exp.IsZero() && exp.Sub(w.now()) > TicketMargin {
		w.logger().Debug("credentials still valid", "account", a.Username, "remaining", exp.Sub(w.now()).Round(time.Second))
		return nil
	}

	tries := 0
	for tries < w.Config.LoginRetries+1 {
		err := sess.Authenticate(ctx, a.Credentials, proxyURL)
		if err == nil {
			break
		}
		if errors.Is(err, ports.ErrAccountBanned) {
			a.Banned = true
			w.logger().Warn("account banned at login", "account", a.Username)
			return fmt.Errorf("login %s: %w", a.Username, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		tries++
		w.logger().Error("login failed", "account", a.Username, "attempt", tries, "retry_in", w.Config.LoginDelay, "err", err)
		if tries > w.Config.LoginRetries {
			break
		}
		if err := w.sleep(ctx, w.Config.LoginDelay); err != nil {
			return err
		}
	}
	if tries > w.Config.LoginRetries {
		w.logger().Error("giving up on login", "account", a.Username, "tries", tries)
		return ports.Fatal(account.ReasonException, fmt.Errorf("%w: %s after %d tries", ErrTooManyLoginAttempts, a.Username, tries))
	}

	w.logger().Debug("login successful", "account", a.Username)
	return w.sleep(ctx, w.Config.LoginSettle)
}

// firstLogin loads the player state once per lease and finishes any missing
// tutorial steps.
func (w *Worker) firstLogin(ctx context.Context, l *lease) error {
	a := l.acct
	resp, _, err := w.call(ctx, l.sess, a, ports.Request{Kind: ports.RequestGetPlayer})
	if err != nil {
		return fmt.Errorf("get player %s: %w", a.Username, err)
	}
	if p := resp.Player; p != nil {
		a.TutorialState = append([]int(nil), p.TutorialState...)
		a.Warning = p.Warning
		if p.Banned {
			a.Banned = true
		}
		if p.MaxItems > 0 {
			a.MaxItems = p.MaxItems
		}
		if p.MaxPokemons > 0 {
			a.MaxPokemons = p.MaxPokemons
		}
	}
	if err := w.pause(ctx, 2*time.Second, 4*time.Second); err != nil {
		return err
	}
	if a.Banned || !missingTutorial(a.TutorialState) {
		return nil
	}
	return w.completeTutorial(ctx, l)
}

func missingTutorial(state []int) bool {
	for _, step := range tutorialSteps {
		if !slices.Contains(state, step) {
			return true
		}
	}
	return false
}

func (w *Worker) pause(ctx context.Context, lo, hi time.Duration) error {
	return w.sleep(ctx, pacing.Uniform(w.random(), lo, hi))
}

type tutorialCall struct {
	lo, hi time.Duration
	req    ports.Request
}

// completeTutorial walks the missing tutorial steps with human pacing.
func (w *Worker) completeTutorial(ctx context.Context, l *lease) error {
	a := l.acct
	done := func(step int) bool { return slices.Contains(a.TutorialState, step) }
	run := func(calls ...tutorialCall) (ports.Response, error) {
		var resp ports.Response
		for _, c := range calls {
			if err := w.pause(ctx, c.lo, c.hi); err != nil {
				return resp, err
			}
			var err error
			resp, _, err = w.call(ctx, l.sess, a, c.req)
			if err != nil {
				return resp, fmt.Errorf("tutorial %s for %s: %w", c.req.Kind, a.Username, err)
			}
		}
		return resp, nil
	}
	mark := func(step int) ports.Request {
		return ports.Request{Kind: ports.RequestMarkTutorial, TutorialStep: step}
	}

	w.logger().Info("completing tutorial", "account", a.Username, "state", a.TutorialState)
	if !done(0) {
		if _, err := run(tutorialCall{time.Second, 5 * time.Second, mark(0)}); err != nil {
			return err
		}
	}
	if !done(1) {
		rnd := w.random()
		avatar := map[string]int{
			"hair":     rnd.Intn(5) + 1,
			"shirt":    rnd.Intn(3) + 1,
			"pants":    rnd.Intn(2) + 1,
			"shoes":    rnd.Intn(6) + 1,
			"avatar":   rnd.Intn(2),
			"eyes":     rnd.Intn(4) + 1,
			"backpack": rnd.Intn(5) + 1,
		}
		if _, err := run(
			tutorialCall{5 * time.Second, 12 * time.Second, ports.Request{Kind: ports.RequestSetAvatar, Avatar: avatar}},
			tutorialCall{300 * time.Millisecond, 500 * time.Millisecond, mark(1)},
		); err != nil {
			return err
		}
	}
	if _, err := run(tutorialCall{500 * time.Millisecond, 600 * time.Millisecond, ports.Request{Kind: ports.RequestPlayerProfile}}); err != nil {
		return err
	}

	var starterID uint64
	if !done(3) {
		starter := []int{1, 4, 7}[w.random().Intn(3)]
		resp, err := run(
			tutorialCall{time.Second, 1500 * time.Millisecond, ports.Request{Kind: ports.RequestDownloadURLs, AssetIDs: starterAssets}},
			tutorialCall{6 * time.Second, 13 * time.Second, ports.Request{Kind: ports.RequestEncounterTutorial, StarterID: starter}},
			tutorialCall{500 * time.Millisecond, 600 * time.Millisecond, ports.Request{Kind: ports.RequestGetPlayer}},
		)
		if err != nil {
			return err
		}
		if resp.Inventory != nil {
			for _, p := range resp.Inventory.Pokemons {
				if !p.IsEgg {
					starterID = p.ID
				}
			}
		}
	}
	if !done(4) {
		if _, err := run(
			tutorialCall{5 * time.Second, 12 * time.Second, ports.Request{Kind: ports.RequestClaimCodename, Codename: a.Username}},
			tutorialCall{time.Second, 1300 * time.Millisecond, mark(4)},
			tutorialCall{100 * time.Millisecond, 100 * time.Millisecond, ports.Request{Kind: ports.RequestGetPlayer}},
		); err != nil {
			return err
		}
	}
	if !done(7) {
		if _, err := run(tutorialCall{4 * time.Second, 10 * time.Second, mark(7)}); err != nil {
			return err
		}
	}
	if starterID != 0 {
		if _, err := run(tutorialCall{3 * time.Second, 5 * time.Second, ports.Request{Kind: ports.RequestSetBuddy, PokemonIDs: []uint64{starterID}}}); err != nil {
			return err
		}
	}
	a.TutorialState = append([]int(nil), tutorialSteps...)
	w.logger().Info("tutorial completed", "account", a.Username)
	return w.pause(ctx, 2*time.Second, 4*time.Second)
}

// SessionCache keeps one logged-in session per high-level account so the
// accounts are not re-authenticated on every encounter batch.
type SessionCache struct {
	mu       sync.Mutex
	sessions map[string]ports.SessionClient
}

func NewSessionCache() *SessionCache {
	return &SessionCache{sessions: map[string]ports.SessionClient{}}
}

func (c *SessionCache) Get(username, proxyURL string, factory ports.SessionFactory) ports.SessionClient {
	if c == nil {
		return factory.NewSession(proxyURL)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessions == nil {
		c.sessions = map[string]ports.SessionClient{}
	}
	if s, ok := c.sessions[username]; ok {
		return s
	}
	s := factory.NewSession(proxyURL)
	c.sessions[username] = s
	return s
}

func (c *SessionCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}
