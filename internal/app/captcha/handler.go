package captcha

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"hivescan/internal/app/ports"
	"hivescan/internal/domain/account"
)

var ErrVerifyFailed = errors.New("captcha verification failed")

type Outcome int

const (
	// Solved means the challenge was verified and the target can be rescanned.
	Solved Outcome = iota
	// Continue keeps the lease but abandons the current target.
	Continue
	// Terminal ends the lease; the account goes to the sideline list.
	Terminal
)

func (o Outcome) String() string {
	switch o {
	case Solved:
		return "solved"
	case Continue:
		return "continue"
	default:
		return "terminal"
	}
}

type Handler struct {
	Solver     ports.CaptchaSolver
	Webhook    ports.Webhook
	StatusName string
	Logger     *slog.Logger
	Now        func() time.Time
}

func (h Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h Handler) Handle(ctx context.Context, sess ports.SessionClient, a *account.Account, challengeURL string) Outcome {
	h.logger().Warn("captcha found", "account", a.Username)
	h.emit(a, "encounter")

	if h.Solver == nil {
		h.logger().Warn("captcha solving disabled, sidelining account", "account", a.Username)
		h.emit(a, "failed")
		return Terminal
	}
	token, ok, err := h.Solver.Solve(ctx, challengeURL)
	if err != nil {
		h.logger().Error("captcha solver unavailable", "account", a.Username, "err", err)
		h.emit(a, "error")
		return Continue
	}
	if !ok || token == "" {
		h.logger().Warn("captcha not solved", "account", a.Username)
		h.emit(a, "failed")
		return Terminal
	}
	if err := Verify(ctx, sess, token); err != nil {
		h.logger().Warn("captcha token rejected", "account", a.Username, "err", err)
		h.emit(a, "failed")
		return Terminal
	}
	h.logger().Info("captcha solved", "account", a.Username)
	h.emit(a, "solved")
	return Solved
}

func (h Handler) emit(a *account.Account, status string) {
	if h.Webhook == nil {
		return
	}
	h.Webhook.Enqueue("captcha", map[string]any{
		"status_name": h.StatusName,
		"account":     a.Username,
		"status":      status,
		"time":        h.now().Unix(),
	})
}

// Verify submits a solved token on the session.
func Verify(ctx context.Context, sess ports.SessionClient, token string) error {
	resp, err := sess.Call(ctx, ports.Request{Kind: ports.RequestVerifyChallenge, Token: token})
	if err != nil {
		return err
	}
	if resp.Result != 1 {
		return ErrVerifyFailed
	}
	return nil
}
