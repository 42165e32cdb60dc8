package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hivescan/internal/app/ports"
	"hivescan/internal/domain/account"
	"hivescan/internal/domain/geo"
)

func fakeGateway(t *testing.T, calls chan<- callRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		switch r.URL.Path {
		case "/auth":
			var in authRequest
			_ = json.Unmarshal(b, &in)
			switch in.Username {
			case "banned":
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":{"code":"banned","message":"account terminated"}}`))
				return
			case "broken":
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`not json`))
				return
			}
			_ = json.NewEncoder(w).Encode(authResponse{Session: "s-" + in.Username, TicketExpiry: 1772359200000})
		case "/call":
			var in callRequest
			_ = json.Unmarshal(b, &in)
			if calls != nil {
				calls <- in
			}
			if in.HashKey == "expired" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"code":"bad_hash_key","message":"expired"}}`))
				return
			}
			_ = json.NewEncoder(w).Encode(ports.Response{Result: 1, Map: &ports.MapObjects{Status: 1}})
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_AuthenticateAndCall(t *testing.T) {
	calls := make(chan callRequest, 1)
	srv := fakeGateway(t, calls)
	sess := Gateway{BaseURL: srv.URL}.NewSession("socks5://p1")

	err := sess.Authenticate(context.Background(), account.Credentials{AuthService: "ptc", Username: "alpha", Password: "pw"}, "socks5://p1")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if want := time.UnixMilli(1772359200000); !sess.TicketExpiry().Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, sess.TicketExpiry())
	}
	loc := geo.Coord{Lat: 1, Lng: 2}
	sess.SetPosition(loc)
	sess.SetHashKey("k1")
	resp, err := sess.Call(context.Background(), ports.Request{Kind: ports.RequestMapObjects})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if resp.Kind != ports.RequestMapObjects || resp.Map == nil || resp.Map.Status != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	got := <-calls
	if got.Session != "s-alpha" || got.HashKey != "k1" || got.Location != loc || got.Proxy != "socks5://p1" {
		t.Fatalf("unexpected call body: %+v", got)
	}
}

func TestClient_MapsErrorCodes(t *testing.T) {
	srv := fakeGateway(t, nil)
	sess := Gateway{BaseURL: srv.URL}.NewSession("")

	err := sess.Authenticate(context.Background(), account.Credentials{Username: "banned", Password: "pw"}, "")
	if !errors.Is(err, ports.ErrAccountBanned) {
		t.Fatalf("expected ErrAccountBanned, got %v", err)
	}
	err = sess.Authenticate(context.Background(), account.Credentials{Username: "broken", Password: "pw"}, "")
	if !errors.Is(err, ports.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}

	if err := sess.Authenticate(context.Background(), account.Credentials{Username: "alpha", Password: "pw"}, ""); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	sess.SetHashKey("expired")
	_, err = sess.Call(context.Background(), ports.Request{Kind: ports.RequestMapObjects})
	if !errors.Is(err, ports.ErrBadHashKey) {
		t.Fatalf("expected ErrBadHashKey, got %v", err)
	}
}

func TestClient_CallWithoutSession(t *testing.T) {
	sess := Gateway{BaseURL: "http://127.0.0.1:1"}.NewSession("")
	if _, err := sess.Call(context.Background(), ports.Request{Kind: ports.RequestGetPlayer}); !errors.Is(err, ports.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}
