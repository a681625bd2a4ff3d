package speech

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
)

func flakyServer(t *testing.T, failures int32, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= failures {
			http.Error(w, "try later", status)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialWithRetryRecoversFromServerErrors(t *testing.T) {
	srv, calls := flakyServer(t, 2, http.StatusServiceUnavailable)

	conn, _, err := dialWithRetry(context.Background(), websocket.DefaultDialer, wsURL(srv), nil, 3)
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	conn.Close()

	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestDialWithRetryStopsOnClientErrors(t *testing.T) {
	srv, calls := flakyServer(t, 5, http.StatusUnauthorized)

	_, resp, err := dialWithRetry(context.Background(), websocket.DefaultDialer, wsURL(srv), nil, 3)
	if err == nil {
		t.Fatal("expected dial error")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 handshake response, got %+v", resp)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("client errors must not be retried, got %d attempts", got)
	}
}

func TestDialWithRetryHonoursCancellation(t *testing.T) {
	srv, _ := flakyServer(t, 5, http.StatusBadGateway)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := dialWithRetry(ctx, websocket.DefaultDialer, wsURL(srv), nil, 3); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
