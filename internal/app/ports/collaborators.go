package ports

import "context"

type Webhook interface {
	Enqueue(eventType string, payload map[string]any)
}

// CaptchaSolver returns ok=false when the challenge could not be solved.
type CaptchaSolver interface {
	Solve(ctx context.Context, challengeURL string) (token string, ok bool, err error)
}

type ProxyProvider interface {
	Next() string
	Alive(proxyURL string) bool
	Len() int
}

type VersionChecker interface {
	ForcedVersion(ctx context.Context) (string, error)
}
