// Package httpclient wraps the hertz client for the outbound JSON calls
// made by the adapters.
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

const DefaultTimeout = 10 * time.Second

var ErrStatus = errors.New("unexpected http status")

// StatusError is returned for any non-2xx answer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// New builds a client, optionally routed through proxyURL.
func New(timeout time.Duration, proxyURL string) (*client.Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c, err := client.NewClient(
		client.WithDialTimeout(timeout),
		client.WithClientReadTimeout(timeout),
		client.WithWriteTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("new http client: %w", err)
	}
	if proxyURL != "" {
		c.SetProxy(protocol.ProxyURI(protocol.ParseURI(proxyURL)))
	}
	return c, nil
}

// Do sends body (JSON encoded when non-nil) and decodes a 2xx answer into out
// when out is non-nil. It returns the raw response body.
func Do(ctx context.Context, c *client.Client, method, url string, body, out any) ([]byte, error) {
	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		req.Header.SetContentTypeBytes([]byte("application/json"))
		req.SetBody(b)
	}
	if err := c.Do(ctx, req, resp); err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	raw := append([]byte(nil), resp.Body()...)
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return raw, &StatusError{Code: code, Body: truncate(string(raw), 256)}
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return raw, fmt.Errorf("decode response: %w", err)
		}
	}
	return raw, nil
}

func PostJSON(ctx context.Context, c *client.Client, url string, body, out any) error {
	_, err := Do(ctx, c, consts.MethodPost, url, body, out)
	return err
}

func Get(ctx context.Context, c *client.Client, url string) ([]byte, error) {
	return Do(ctx, c, consts.MethodGet, url, nil, nil)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
