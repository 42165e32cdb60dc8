// Package version fetches the API version the game servers currently force.
package version

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hivescan/internal/adapter/httpclient"
	"hivescan/internal/app/ports"
)

const (
	DefaultURL     = "https://pgorelease.nianticlabs.com/plfe/version"
	defaultTimeout = 5 * time.Second
	attempts       = 3
)

// Checker reads the forced version. The endpoint answers with a two byte
// framing prefix ahead of the dotted version.
type Checker struct {
	URL     string
	Proxies ports.ProxyProvider
	Timeout time.Duration
}

func (c Checker) ForcedVersion(ctx context.Context) (string, error) {
	target := c.URL
	if target == "" {
		target = DefaultURL
	}
	proxy := ""
	if c.Proxies != nil && c.Proxies.Len() > 0 {
		proxy = c.Proxies.Next()
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	cl, err := httpclient.New(timeout, proxy)
	if err != nil {
		return "", err
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		body, err := httpclient.Get(ctx, cl, target)
		if err == nil {
			return parse(body), nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("forced version: %w", lastErr)
}

func parse(body []byte) string {
	if len(body) <= 2 {
		return ""
	}
	return strings.TrimSpace(string(body[2:]))
}

var _ ports.VersionChecker = Checker{}
