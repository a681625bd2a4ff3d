package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/callsim/backend/internal/config"
)

// VolcengineTTSClient 火山引擎TTS WebSocket客户端（单向流式）
type VolcengineTTSClient struct {
	cfg         config.VolcengineConfig
	readTimeout time.Duration
	dialer      *websocket.Dialer
}

type ttsServerMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
}

// NewVolcengineTTSClient 创建火山引擎TTS客户端
func NewVolcengineTTSClient(cfg config.VolcengineConfig, readTimeout time.Duration) *VolcengineTTSClient {
	return &VolcengineTTSClient{
		cfg:         cfg,
		readTimeout: readTimeout,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
	}
}

type volcengineTTSRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string                   `json:"speaker"`
		Text        string                   `json:"text"`
		AudioParams volcengineTTSAudioParams `json:"audio_params"`
		Additions   string                   `json:"additions,omitempty"`
	} `json:"req_params"`
}

type volcengineTTSAudioParams struct {
	Format      string  `json:"format"`
	SampleRate  int     `json:"sample_rate"`
	SpeedRatio  float32 `json:"speed_ratio,omitempty"`
	VolumeRatio float32 `json:"volume_ratio,omitempty"`
}

// Stream implements Synthesizer. 逐个尝试 speaker 与资源 ID，直到服务端接受为止。
func (c *VolcengineTTSClient) Stream(ctx context.Context, text, voiceID string) (AudioStream, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: TTS text is empty", ErrBackendUnavailable)
	}

	appKey, accessKey, err := resolveCredentials(c.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	speakers := resolveTTSSpeakerCandidates(voiceID, c.cfg.Voice)
	var lastMismatch error

	for speakerIdx, speaker := range speakers {
		for resourceIdx, resourceID := range resolveTTSResourceCandidates(speaker) {
			stream, attemptErr := c.openStream(ctx, text, appKey, accessKey, speaker, resourceID)
			if attemptErr == nil {
				if resourceIdx > 0 || speakerIdx > 0 {
					log.Printf("[tts] voice %s succeeded with fallback resource %s", speaker, resourceID)
				}
				return stream, nil
			}

			if isResourceMismatchError(attemptErr) {
				log.Printf("[tts] voice %s resource %s mismatch: %v", speaker, resourceID, attemptErr)
				lastMismatch = attemptErr
				continue
			}

			return nil, attemptErr
		}
	}

	if lastMismatch != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, lastMismatch)
	}
	return nil, fmt.Errorf("%w: no compatible resource id for voice candidates %v", ErrBackendUnavailable, speakers)
}

// openStream 建连并读取到第一个音频分片，以便在交给调用方之前识别资源不匹配。
func (c *VolcengineTTSClient) openStream(ctx context.Context, text, appKey, accessKey, speaker, resourceID string) (AudioStream, error) {
	connectID := uuid.NewString()

	header := http.Header{}
	header.Set("X-Api-App-Key", appKey)
	header.Set("X-Api-Access-Key", accessKey)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := dialWithRetry(ctx, c.dialer, c.cfg.BaseURL, header, defaultDialAttempts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to TTS WebSocket: %w", ErrBackendUnavailable, err)
	}

	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			log.Printf("[tts] connected with logid: %s", logid)
		}
	}

	payload, err := json.Marshal(c.buildTTSRequest(text, speaker))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: failed to marshal TTS request: %w", ErrBackendUnavailable, err)
	}

	messageBytes, err := newRequestFrame(payload).MarshalBinary()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: failed to encode message: %w", ErrBackendUnavailable, err)
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, messageBytes); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: failed to send TTS request: %w", ErrBackendUnavailable, err)
	}

	stream := newWSStream(ctx, conn, c.readTimeout, decodeVolcengineFrame)

	first, err := stream.Recv()
	if err != nil && !errors.Is(err, io.EOF) {
		_ = stream.Close()
		return nil, err
	}

	return &primedStream{first: first, firstErr: err, AudioStream: stream}, nil
}

// buildTTSRequest 构建符合火山引擎API格式的TTS请求
func (c *VolcengineTTSClient) buildTTSRequest(text, speaker string) *volcengineTTSRequest {
	ttsReq := &volcengineTTSRequest{}
	ttsReq.User.UID = uuid.NewString()
	ttsReq.ReqParams.Speaker = speaker
	ttsReq.ReqParams.Text = text
	ttsReq.ReqParams.AudioParams.Format = "mp3"
	ttsReq.ReqParams.AudioParams.SampleRate = 24000

	if c.cfg.Speed > 0 && c.cfg.Speed != 1.0 {
		ttsReq.ReqParams.AudioParams.SpeedRatio = c.cfg.Speed
	}
	if c.cfg.Volume > 0 && c.cfg.Volume != 1.0 {
		ttsReq.ReqParams.AudioParams.VolumeRatio = c.cfg.Volume
	}

	ttsReq.ReqParams.Additions = `{"disable_markdown_filter":false}`
	return ttsReq
}

func decodeVolcengineFrame(messageType int, data []byte) ([]byte, bool, error) {
	if messageType != websocket.BinaryMessage {
		return nil, false, nil
	}

	f, err := parseFrame(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode TTS message: %w", err)
	}

	body, err := f.body()
	if err != nil {
		return nil, false, fmt.Errorf("TTS frame kind %d: %w", f.kind, err)
	}

	switch f.kind {
	case kindServerError:
		return nil, false, fmt.Errorf("TTS error %d: %s", f.errorCode, string(body))

	case kindServerAudio:
		return body, f.last(), nil

	case kindServerFull:
		if f.hasEvent() && f.event == eventSessionFailed {
			return nil, false, fmt.Errorf("TTS session failed: %s", string(body))
		}

		var (
			serverResp ttsServerMessage
			chunk      []byte
		)
		if len(body) > 0 {
			if err := json.Unmarshal(body, &serverResp); err != nil {
				log.Printf("[tts] failed to unmarshal response payload: %v", err)
			} else {
				if serverResp.Code != 0 && serverResp.Code != 3000 {
					return nil, false, fmt.Errorf("TTS API error %d: %s", serverResp.Code, serverResp.Message)
				}
				if serverResp.Data != "" {
					chunk, err = base64.StdEncoding.DecodeString(serverResp.Data)
					if err != nil {
						return nil, false, fmt.Errorf("failed to decode base64 audio chunk: %w", err)
					}
				}
			}
		}

		finished := (f.hasEvent() && f.event == eventSessionFinished) || f.last() || serverResp.Sequence < 0
		return chunk, finished, nil

	default:
		log.Printf("[tts] unexpected message type: %d", f.kind)
		return nil, false, nil
	}
}

// primedStream replays the chunk read during resource negotiation.
type primedStream struct {
	AudioStream
	first    []byte
	firstErr error
	replayed bool
}

func (p *primedStream) Recv() ([]byte, error) {
	if !p.replayed {
		p.replayed = true
		if p.firstErr != nil {
			return nil, p.firstErr
		}
		return p.first, nil
	}
	return p.AudioStream.Recv()
}

func resolveTTSResourceCandidates(voice string) []string {
	const (
		defaultResource = "volc.service_type.10029"
		megaResource    = "volc.megatts.default"
		seedResource    = "seed-tts-2.0"
	)

	voice = strings.TrimSpace(voice)
	if voice == "" {
		return []string{defaultResource, seedResource}
	}

	if strings.HasPrefix(voice, "S_") {
		return []string{megaResource}
	}

	normalized := strings.ToLower(voice)
	for _, hint := range []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "mars"} {
		if strings.Contains(normalized, hint) {
			return []string{seedResource, defaultResource}
		}
	}

	return []string{defaultResource, seedResource}
}

func isResourceMismatchError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "resource ID is mismatched with speaker related resource")
}
