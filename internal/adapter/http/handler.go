package httpadapter

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"hivescan/internal/app/captcha"
	"hivescan/internal/app/ports"
	"hivescan/internal/app/stats"
	"hivescan/internal/app/status"
	"hivescan/internal/domain/geo"
	"hivescan/internal/domain/hashkey"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

const opsTokenHeader = "X-Ops-Token"

var (
	ErrMissingOpsToken = errors.New("missing x-ops-token header")
	ErrInvalidOpsToken = errors.New("invalid ops token")
	ErrInvalidLocation = errors.New("invalid location")
)

// Controller is the part of the overseer the ops API drives.
type Controller interface {
	Paused() bool
	SetPaused(paused bool)
	SetLocation(c geo.Coord)
	Heartbeat()
}

type StatsProvider interface {
	Totals() stats.Delta
	Rates() stats.Rates
	AccountsSeen() int
}

type HashKeySnapshotter interface {
	Snapshot() []hashkey.Budget
}

type captchaExecutor interface {
	Execute(ctx context.Context, req captcha.ManualRequest) error
}

type KPIProvider interface {
	SnapshotAny() any
}

// KPIFunc adapts a plain function to KPIProvider.
type KPIFunc func() any

func (f KPIFunc) SnapshotAny() any { return f() }

type Handler struct {
	// Token, when set, must accompany every mutating request.
	Token string

	Registry  *status.Registry
	StatusUC  status.UseCase
	Stats     StatsProvider
	Control   Controller
	CaptchaUC captchaExecutor
	HashKeys  HashKeySnapshotter
	KPI       map[string]KPIProvider
}

func (h Handler) RegisterRoutes(s *server.Hertz) {
	s.Use(corsMiddleware())
	ops := s.Group("/ops")
	ops.GET("/status", h.statusAll)
	ops.GET("/status/:worker", h.statusOne)
	ops.GET("/stats", h.stats)
	ops.GET("/kpi", h.kpi)
	ops.GET("/hashkeys", h.hashKeys)
	ops.POST("/pause", h.pause)
	ops.POST("/resume", h.resume)
	ops.POST("/location", h.location)
	ops.POST("/heartbeat", h.heartbeat)
	ops.POST("/captcha/:username", h.captchaToken)
}

func (h Handler) statusAll(_ context.Context, ctx *app.RequestContext) {
	if h.Registry == nil {
		writeErrorBody(ctx, consts.StatusNotFound, "not_configured", "status registry not configured")
		return
	}
	ctx.JSON(consts.StatusOK, h.Registry.Snapshot())
}

func (h Handler) statusOne(c context.Context, ctx *app.RequestContext) {
	resp, err := h.StatusUC.Execute(c, status.Request{WorkerID: ctx.Param("worker")})
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, resp)
}

type statsResponse struct {
	Totals       stats.Delta `json:"totals"`
	Rates        stats.Rates `json:"rates"`
	AccountsSeen int         `json:"accounts_seen"`
	Paused       bool        `json:"paused"`
}

func (h Handler) stats(_ context.Context, ctx *app.RequestContext) {
	if h.Stats == nil {
		writeErrorBody(ctx, consts.StatusNotFound, "not_configured", "stats not configured")
		return
	}
	resp := statsResponse{
		Totals:       h.Stats.Totals(),
		Rates:        h.Stats.Rates(),
		AccountsSeen: h.Stats.AccountsSeen(),
	}
	if h.Control != nil {
		resp.Paused = h.Control.Paused()
	}
	ctx.JSON(consts.StatusOK, resp)
}

func (h Handler) kpi(_ context.Context, ctx *app.RequestContext) {
	if len(h.KPI) == 0 {
		writeErrorBody(ctx, consts.StatusNotFound, "not_configured", "kpi provider not configured")
		return
	}
	out := make(map[string]any, len(h.KPI))
	for name, p := range h.KPI {
		out[name] = p.SnapshotAny()
	}
	ctx.JSON(consts.StatusOK, out)
}

func (h Handler) hashKeys(_ context.Context, ctx *app.RequestContext) {
	if h.HashKeys == nil {
		ctx.JSON(consts.StatusOK, map[string]any{"keys": []hashkey.Budget{}})
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"keys": h.HashKeys.Snapshot()})
}

func (h Handler) pause(_ context.Context, ctx *app.RequestContext) {
	if !h.authorize(ctx) || !h.requireControl(ctx) {
		return
	}
	h.Control.SetPaused(true)
	ctx.JSON(consts.StatusOK, map[string]bool{"paused": h.Control.Paused()})
}

func (h Handler) resume(_ context.Context, ctx *app.RequestContext) {
	if !h.authorize(ctx) || !h.requireControl(ctx) {
		return
	}
	h.Control.SetPaused(false)
	ctx.JSON(consts.StatusOK, map[string]bool{"paused": h.Control.Paused()})
}

type locationRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
	Alt float64  `json:"alt,omitempty"`
}

func (h Handler) location(_ context.Context, ctx *app.RequestContext) {
	if !h.authorize(ctx) || !h.requireControl(ctx) {
		return
	}
	var body locationRequest
	if err := decodeJSON(ctx, &body); err != nil {
		writeErrorBody(ctx, consts.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	loc, err := body.coord()
	if err != nil {
		writeError(ctx, err)
		return
	}
	h.Control.SetLocation(loc)
	ctx.JSON(consts.StatusAccepted, map[string]any{"location": loc})
}

func (r locationRequest) coord() (geo.Coord, error) {
	if r.Lat == nil || r.Lng == nil {
		return geo.Coord{}, ErrInvalidLocation
	}
	lat, lng := *r.Lat, *r.Lng
	if math.IsNaN(lat) || math.IsNaN(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return geo.Coord{}, ErrInvalidLocation
	}
	return geo.Coord{Lat: lat, Lng: lng, Alt: r.Alt}, nil
}

func (h Handler) heartbeat(_ context.Context, ctx *app.RequestContext) {
	if !h.requireControl(ctx) {
		return
	}
	h.Control.Heartbeat()
	ctx.SetStatusCode(consts.StatusNoContent)
}

type captchaRequest struct {
	Token string `json:"token"`
}

func (h Handler) captchaToken(c context.Context, ctx *app.RequestContext) {
	if !h.authorize(ctx) {
		return
	}
	if h.CaptchaUC == nil {
		writeErrorBody(ctx, consts.StatusNotFound, "not_configured", "captcha handling not configured")
		return
	}
	var body captchaRequest
	if err := decodeJSON(ctx, &body); err != nil {
		writeErrorBody(ctx, consts.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	err := h.CaptchaUC.Execute(c, captcha.ManualRequest{Username: ctx.Param("username"), Token: body.Token})
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]string{"username": ctx.Param("username"), "status": "returned"})
}

func (h Handler) requireControl(ctx *app.RequestContext) bool {
	if h.Control == nil {
		writeErrorBody(ctx, consts.StatusNotFound, "not_configured", "overseer not configured")
		return false
	}
	return true
}

// authorize writes the error response itself and reports whether the
// request may proceed.
func (h Handler) authorize(ctx *app.RequestContext) bool {
	if h.Token == "" {
		return true
	}
	got := strings.TrimSpace(string(ctx.GetHeader(opsTokenHeader)))
	if got == "" {
		writeError(ctx, ErrMissingOpsToken)
		return false
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.Token)) != 1 {
		writeError(ctx, ErrInvalidOpsToken)
		return false
	}
	return true
}

func decodeJSON(ctx *app.RequestContext, out any) error {
	body := ctx.Request.Body()
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func writeError(ctx *app.RequestContext, err error) {
	switch {
	case errors.Is(err, ErrMissingOpsToken):
		writeErrorBody(ctx, consts.StatusUnauthorized, "missing_ops_token", err.Error())
	case errors.Is(err, ErrInvalidOpsToken):
		writeErrorBody(ctx, consts.StatusUnauthorized, "invalid_ops_token", err.Error())
	case errors.Is(err, ErrInvalidLocation),
		errors.Is(err, status.ErrInvalidRequest),
		errors.Is(err, captcha.ErrInvalidRequest):
		writeErrorBody(ctx, consts.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, captcha.ErrVerifyFailed):
		writeErrorBody(ctx, consts.StatusConflict, "captcha_rejected", err.Error())
	case errors.Is(err, ports.ErrAuthFailed),
		errors.Is(err, ports.ErrAccountBanned):
		writeErrorBody(ctx, consts.StatusConflict, "account_login_failed", err.Error())
	case errors.Is(err, ports.ErrNotFound):
		writeErrorBody(ctx, consts.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ports.ErrConflict):
		writeErrorBody(ctx, consts.StatusConflict, "conflict", err.Error())
	case errors.Is(err, ports.ErrTransport):
		writeErrorBody(ctx, consts.StatusBadGateway, "upstream_unavailable", err.Error())
	default:
		writeErrorBody(ctx, consts.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeErrorBody(ctx *app.RequestContext, status int, code, message string) {
	ctx.JSON(status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
