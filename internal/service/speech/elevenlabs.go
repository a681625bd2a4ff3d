package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/callsim/backend/internal/config"
)

// ElevenLabsClient streams speech from the ElevenLabs stream-input websocket.
type ElevenLabsClient struct {
	cfg         config.ElevenLabsConfig
	readTimeout time.Duration
	dialer      *websocket.Dialer
}

// NewElevenLabsClient 创建 ElevenLabs 流式合成客户端
func NewElevenLabsClient(cfg config.ElevenLabsConfig, readTimeout time.Duration) *ElevenLabsClient {
	return &ElevenLabsClient{
		cfg:         cfg,
		readTimeout: readTimeout,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type elevenLabsInitMessage struct {
	Text          string                  `json:"text"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
	APIKey        string                  `json:"xi_api_key"`
}

type elevenLabsTextMessage struct {
	Text                 string `json:"text"`
	TryTriggerGeneration bool   `json:"try_trigger_generation,omitempty"`
}

type elevenLabsFrame struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Stream implements Synthesizer.
func (c *ElevenLabsClient) Stream(ctx context.Context, text, voiceID string) (AudioStream, error) {
	if !c.cfg.Enabled() {
		return nil, fmt.Errorf("%w: ELEVENLABS_API_KEY not configured", ErrBackendUnavailable)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrBackendUnavailable)
	}
	voiceID = strings.TrimSpace(voiceID)
	if voiceID == "" {
		return nil, fmt.Errorf("%w: voice id is required", ErrBackendUnavailable)
	}

	wsURL := c.streamURL(voiceID)

	header := http.Header{}
	header.Set("xi-api-key", c.cfg.APIKey)

	conn, _, err := dialWithRetry(ctx, c.dialer, wsURL, header, defaultDialAttempts)
	if err != nil {
		return nil, fmt.Errorf("%w: dial elevenlabs: %w", ErrBackendUnavailable, err)
	}

	if err := c.sendUtterance(conn, text); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	return newWSStream(ctx, conn, c.readTimeout, decodeElevenLabsFrame), nil
}

func (c *ElevenLabsClient) streamURL(voiceID string) string {
	query := url.Values{}
	query.Set("model_id", c.cfg.ModelID)
	return fmt.Sprintf("%s/%s/stream-input?%s", c.cfg.BaseURL, url.PathEscape(voiceID), query.Encode())
}

// sendUtterance 依次发送初始化、正文与结束标记。
func (c *ElevenLabsClient) sendUtterance(conn *websocket.Conn, text string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetWriteDeadline(time.Time{})

	messages := []any{
		elevenLabsInitMessage{
			Text: " ",
			VoiceSettings: elevenLabsVoiceSettings{
				Stability:       c.cfg.Stability,
				SimilarityBoost: c.cfg.SimilarityBoost,
			},
			APIKey: c.cfg.APIKey,
		},
		elevenLabsTextMessage{Text: text, TryTriggerGeneration: true},
		elevenLabsTextMessage{Text: ""},
	}

	for _, msg := range messages {
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("send elevenlabs message: %w", err)
		}
	}
	return nil
}

func decodeElevenLabsFrame(messageType int, data []byte) ([]byte, bool, error) {
	if messageType != websocket.TextMessage {
		return nil, false, nil
	}

	var frame elevenLabsFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		log.Printf("[tts] skipping undecodable elevenlabs frame: %v", err)
		return nil, false, nil
	}

	if frame.Error != "" {
		return nil, false, fmt.Errorf("elevenlabs error: %s %s", frame.Error, frame.Message)
	}

	var chunk []byte
	if frame.Audio != "" {
		decoded, err := base64.StdEncoding.DecodeString(frame.Audio)
		if err != nil {
			return nil, false, fmt.Errorf("decode elevenlabs audio: %w", err)
		}
		chunk = decoded
	}

	return chunk, frame.IsFinal, nil
}
