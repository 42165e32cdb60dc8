// Package gateway implements the session client against a protocol gateway
// service that speaks JSON over HTTP.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"hivescan/internal/adapter/httpclient"
	"hivescan/internal/app/ports"
	"hivescan/internal/domain/account"
	"hivescan/internal/domain/geo"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// Error codes returned by the gateway in {"error": {"code": ...}}.
const (
	CodeAuthFailed     = "auth_failed"
	CodeBanned         = "banned"
	CodeHashingOffline = "hashing_offline"
	CodeBadHashKey     = "bad_hash_key"
	CodeNoSession      = "no_session"
	CodeBadResponse    = "bad_response"
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type authRequest struct {
	AuthService string `json:"auth_service"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	Proxy       string `json:"proxy,omitempty"`
}

type authResponse struct {
	Session      string `json:"session"`
	TicketExpiry int64  `json:"ticket_expiry_ms"`
}

type callRequest struct {
	Session  string        `json:"session"`
	Proxy    string        `json:"proxy,omitempty"`
	Location geo.Coord     `json:"location"`
	HashKey  string        `json:"hash_key,omitempty"`
	Request  ports.Request `json:"request"`
}

// Gateway builds one Client per worker session.
type Gateway struct {
	BaseURL string
	Timeout time.Duration
}

func (g Gateway) NewSession(proxyURL string) ports.SessionClient {
	c, err := httpclient.New(g.Timeout, "")
	return &Client{base: strings.TrimRight(g.BaseURL, "/"), proxy: proxyURL, http: c, initErr: err}
}

type Client struct {
	base    string
	proxy   string
	http    *client.Client
	initErr error

	mu       sync.Mutex
	session  string
	expiry   time.Time
	position geo.Coord
	hashKey  string
}

func (c *Client) Authenticate(ctx context.Context, creds account.Credentials, proxyURL string) error {
	if c.initErr != nil {
		return fmt.Errorf("%w: %w", ports.ErrTransport, c.initErr)
	}
	if proxyURL != "" {
		c.mu.Lock()
		c.proxy = proxyURL
		c.mu.Unlock()
	}
	var out authResponse
	err := c.post(ctx, "/auth", authRequest{
		AuthService: creds.AuthService,
		Username:    creds.Username,
		Password:    creds.Password,
		Proxy:       proxyURL,
	}, &out)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = out.Session
	c.expiry = time.UnixMilli(out.TicketExpiry)
	return nil
}

func (c *Client) TicketExpiry() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiry
}

func (c *Client) SetPosition(loc geo.Coord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = loc
}

func (c *Client) SetHashKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hashKey = key
}

func (c *Client) Call(ctx context.Context, req ports.Request) (ports.Response, error) {
	if c.initErr != nil {
		return ports.Response{}, fmt.Errorf("%w: %w", ports.ErrTransport, c.initErr)
	}
	c.mu.Lock()
	body := callRequest{Session: c.session, Proxy: c.proxy, Location: c.position, HashKey: c.hashKey, Request: req}
	c.mu.Unlock()
	if body.Session == "" {
		return ports.Response{}, ports.ErrNoSession
	}
	var out ports.Response
	if err := c.post(ctx, "/call", body, &out); err != nil {
		return ports.Response{}, err
	}
	if out.Kind == "" {
		out.Kind = req.Kind
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	raw, err := httpclient.Do(ctx, c.http, consts.MethodPost, c.base+path, body, out)
	if err == nil {
		return nil
	}
	var se *httpclient.StatusError
	if !errors.As(err, &se) {
		return fmt.Errorf("%s: %w: %w", path, ports.ErrTransport, err)
	}
	var eb errorBody
	if jsonErr := json.Unmarshal(raw, &eb); jsonErr != nil || eb.Error.Code == "" {
		return fmt.Errorf("%s: %w: %w", path, ports.ErrTransport, err)
	}
	return fmt.Errorf("%s: %w: %s", path, mapCode(eb.Error.Code), eb.Error.Message)
}

func mapCode(code string) error {
	switch code {
	case CodeAuthFailed:
		return ports.ErrAuthFailed
	case CodeBanned:
		return ports.ErrAccountBanned
	case CodeHashingOffline:
		return ports.ErrHashingOffline
	case CodeBadHashKey:
		return ports.ErrBadHashKey
	case CodeNoSession:
		return ports.ErrNoSession
	case CodeBadResponse:
		return ports.ErrBadResponse
	default:
		return ports.ErrTransport
	}
}

var _ ports.SessionFactory = Gateway{}
