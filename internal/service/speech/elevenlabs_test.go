package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/callsim/backend/internal/config"
)

type elevenLabsScript struct {
	frames    []string
	closeCode int
}

func newFakeElevenLabs(t *testing.T, script elevenLabsScript, received chan<- []map[string]any) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !strings.HasSuffix(r.URL.Path, "/voice-1/stream-input") || r.URL.Query().Get("model_id") != "eleven_turbo_v2_5" {
			t.Errorf("unexpected request %s", r.URL.String())
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var msgs []map[string]any
		for len(msgs) < 3 {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				t.Errorf("read client message: %v", err)
				return
			}
			msgs = append(msgs, msg)
		}
		if received != nil {
			received <- msgs
		}

		for _, frame := range script.frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		if script.closeCode != 0 {
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(script.closeCode, ""))
		}
		conn.ReadMessage()
	}))
}

func newElevenLabsTestClient(srv *httptest.Server) *ElevenLabsClient {
	return NewElevenLabsClient(config.ElevenLabsConfig{
		APIKey:          "test-key",
		ModelID:         "eleven_turbo_v2_5",
		BaseURL:         "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/text-to-speech",
		Stability:       0.5,
		SimilarityBoost: 0.75,
	}, 2*time.Second)
}

func audioFrame(data string) string {
	return `{"audio":"` + base64.StdEncoding.EncodeToString([]byte(data)) + `","isFinal":null}`
}

func TestElevenLabsStreamsUntilFinal(t *testing.T) {
	received := make(chan []map[string]any, 1)
	srv := newFakeElevenLabs(t, elevenLabsScript{frames: []string{
		audioFrame("first"),
		`{"audio":null,"normalizedAlignment":{}}`,
		audioFrame("second"),
		`{"isFinal":true}`,
	}}, received)
	defer srv.Close()

	chunks, outcome := collect(t, newElevenLabsTestClient(srv), "Yeah, who's this?", "voice-1")

	if outcome.Status != Completed {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if len(chunks) != 2 || string(chunks[0]) != "first" || string(chunks[1]) != "second" {
		t.Fatalf("unexpected chunks %q", chunks)
	}

	msgs := <-received
	if msgs[0]["text"] != " " || msgs[0]["xi_api_key"] != "test-key" {
		t.Fatalf("unexpected init message %v", msgs[0])
	}
	settings, _ := msgs[0]["voice_settings"].(map[string]any)
	if settings["stability"] != 0.5 || settings["similarity_boost"] != 0.75 {
		t.Fatalf("unexpected voice settings %v", settings)
	}
	if msgs[1]["text"] != "Yeah, who's this?" || msgs[1]["try_trigger_generation"] != true {
		t.Fatalf("unexpected text message %v", msgs[1])
	}
	if msgs[2]["text"] != "" {
		t.Fatalf("expected end-of-input marker, got %v", msgs[2])
	}
}

func TestElevenLabsNormalCloseEndsStream(t *testing.T) {
	srv := newFakeElevenLabs(t, elevenLabsScript{
		frames:    []string{audioFrame("only")},
		closeCode: websocket.CloseNormalClosure,
	}, nil)
	defer srv.Close()

	chunks, outcome := collect(t, newElevenLabsTestClient(srv), "Hello?", "voice-1")
	if outcome.Status != Completed || len(chunks) != 1 {
		t.Fatalf("unexpected result %+v %q", outcome, chunks)
	}
}

func TestElevenLabsServerErrorInterruptsStream(t *testing.T) {
	srv := newFakeElevenLabs(t, elevenLabsScript{frames: []string{
		audioFrame("partial"),
		`{"error":"quota_exceeded","message":"out of characters"}`,
	}}, nil)
	defer srv.Close()

	chunks, outcome := collect(t, newElevenLabsTestClient(srv), "Hello?", "voice-1")
	if !outcome.Partial() || !errors.Is(outcome.Err, ErrStreamInterrupted) {
		t.Fatalf("expected partial failure, got %+v", outcome)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected the chunk before the error to be delivered, got %d", len(chunks))
	}
}

func TestElevenLabsDialFailure(t *testing.T) {
	srv := newFakeElevenLabs(t, elevenLabsScript{}, nil)
	defer srv.Close()

	client := newElevenLabsTestClient(srv)
	client.cfg.APIKey = "wrong"

	_, err := client.Stream(context.Background(), "Hello?", "voice-1")
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}
