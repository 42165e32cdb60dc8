// Package twocaptcha solves recaptcha challenges through a 2captcha-style
// submit/poll service.
package twocaptcha

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"hivescan/internal/adapter/httpclient"
	"hivescan/internal/app/pacing"
	"hivescan/internal/app/ports"

	"github.com/cloudwego/hertz/pkg/app/client"
)

const (
	DefaultURL     = "http://2captcha.com"
	DefaultRefresh = 5 * time.Second
	DefaultTimeout = 3 * time.Minute

	// SiteKey is the recaptcha key served on every challenge page.
	SiteKey = "6LeeTScTAAAAADqvhqVMhPpr_vB9D364Ia-1dSgK"

	notReady = "CAPCHA_NOT_READY"
)

var ErrRejected = errors.New("captcha service rejected the request")

type Config struct {
	Key     string
	URL     string
	Refresh time.Duration
	Timeout time.Duration
}

type Solver struct {
	cfg    Config
	client *client.Client

	Sleeper pacing.Sleeper
	Logger  *slog.Logger
}

func New(cfg Config) (*Solver, error) {
	if strings.TrimSpace(cfg.Key) == "" {
		return nil, fmt.Errorf("captcha key: %w", ErrRejected)
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.Refresh <= 0 {
		cfg.Refresh = DefaultRefresh
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c, err := httpclient.New(0, "")
	if err != nil {
		return nil, err
	}
	return &Solver{cfg: cfg, client: c}, nil
}

func (s *Solver) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Solver) sleeper() pacing.Sleeper {
	if s.Sleeper != nil {
		return s.Sleeper
	}
	return pacing.RealSleeper{}
}

// Solve submits the challenge and polls until a token arrives, the service
// gives up or the timeout passes. Service refusals are reported as ok=false;
// transport problems as an error.
func (s *Solver) Solve(ctx context.Context, challengeURL string) (string, bool, error) {
	q := url.Values{}
	q.Set("key", s.cfg.Key)
	q.Set("method", "userrecaptcha")
	q.Set("googlekey", SiteKey)
	q.Set("pageurl", challengeURL)
	body, err := httpclient.Get(ctx, s.client, s.cfg.URL+"/in.php?"+q.Encode())
	if err != nil {
		return "", false, fmt.Errorf("submit captcha: %w: %w", ports.ErrTransport, err)
	}
	id, ok := parseOK(string(body))
	if !ok {
		s.logger().Warn("captcha submit refused", "answer", strings.TrimSpace(string(body)))
		return "", false, nil
	}

	poll := url.Values{}
	poll.Set("key", s.cfg.Key)
	poll.Set("action", "get")
	poll.Set("id", id)
	for waited := time.Duration(0); waited < s.cfg.Timeout; waited += s.cfg.Refresh {
		if err := s.sleeper().Sleep(ctx, s.cfg.Refresh); err != nil {
			return "", false, err
		}
		body, err := httpclient.Get(ctx, s.client, s.cfg.URL+"/res.php?"+poll.Encode())
		if err != nil {
			return "", false, fmt.Errorf("poll captcha: %w: %w", ports.ErrTransport, err)
		}
		answer := strings.TrimSpace(string(body))
		if answer == notReady {
			continue
		}
		token, ok := parseOK(answer)
		if !ok {
			s.logger().Warn("captcha solve failed", "answer", answer)
			return "", false, nil
		}
		return token, true, nil
	}
	s.logger().Warn("captcha solve timed out", "id", id, "timeout", s.cfg.Timeout)
	return "", false, nil
}

func parseOK(answer string) (string, bool) {
	answer = strings.TrimSpace(answer)
	rest, found := strings.CutPrefix(answer, "OK|")
	if !found || rest == "" {
		return "", false
	}
	return rest, true
}

var _ ports.CaptchaSolver = (*Solver)(nil)
