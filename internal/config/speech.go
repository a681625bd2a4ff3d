package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Speech providers.
const (
	SpeechProviderElevenLabs = "elevenlabs"
	SpeechProviderVolcengine = "volcengine"
	SpeechProviderNone       = "none"
)

// SpeechConfig 描述语音合成相关配置
type SpeechConfig struct {
	Provider   string
	Timeout    time.Duration
	ElevenLabs ElevenLabsConfig
	Volcengine VolcengineConfig
}

// ElevenLabsConfig configures the ElevenLabs stream-input backend.
type ElevenLabsConfig struct {
	APIKey          string
	ModelID         string
	BaseURL         string
	Stability       float64
	SimilarityBoost float64
}

// Enabled 表示是否提供了 API Key。
func (c ElevenLabsConfig) Enabled() bool {
	return c.APIKey != ""
}

// VolcengineConfig 描述火山引擎 TTS 配置
type VolcengineConfig struct {
	AppID       string
	AccessToken string
	BaseURL     string
	Voice       string
	Speed       float32
	Volume      float32
}

// Enabled 表示是否提供了 AppID 与 AccessToken。
func (c VolcengineConfig) Enabled() bool {
	return c.AppID != "" && c.AccessToken != ""
}

func loadSpeechConfig() (SpeechConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("SPEECH_PROVIDER", SpeechProviderElevenLabs))
	switch provider {
	case SpeechProviderElevenLabs, SpeechProviderVolcengine, SpeechProviderNone:
	default:
		return SpeechConfig{}, fmt.Errorf("invalid SPEECH_PROVIDER value %q", provider)
	}

	timeout, err := parseSecondsEnv("SPEECH_TIMEOUT", 30)
	if err != nil {
		return SpeechConfig{}, err
	}

	eleven, err := loadElevenLabsConfig()
	if err != nil {
		return SpeechConfig{}, err
	}

	volc, err := loadVolcengineConfig()
	if err != nil {
		return SpeechConfig{}, err
	}

	return SpeechConfig{
		Provider:   provider,
		Timeout:    timeout,
		ElevenLabs: eleven,
		Volcengine: volc,
	}, nil
}

func loadElevenLabsConfig() (ElevenLabsConfig, error) {
	stability := 0.5
	if override, err := parseOptionalFloatEnv("ELEVENLABS_STABILITY"); err != nil {
		return ElevenLabsConfig{}, err
	} else if override != nil {
		stability = *override
	}

	similarity := 0.75
	if override, err := parseOptionalFloatEnv("ELEVENLABS_SIMILARITY_BOOST"); err != nil {
		return ElevenLabsConfig{}, err
	} else if override != nil {
		similarity = *override
	}

	return ElevenLabsConfig{
		APIKey:          strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")),
		ModelID:         getEnvOrDefault("ELEVENLABS_MODEL_ID", "eleven_turbo_v2_5"),
		BaseURL:         strings.TrimRight(getEnvOrDefault("ELEVENLABS_BASE_URL", "wss://api.elevenlabs.io/v1/text-to-speech"), "/"),
		Stability:       stability,
		SimilarityBoost: similarity,
	}, nil
}

func loadVolcengineConfig() (VolcengineConfig, error) {
	// 解析TTS速度和音量
	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return VolcengineConfig{}, err
	}
	ttsSpeed := float32(1.0) // 默认1.0倍速
	if speed != nil {
		ttsSpeed = *speed
	}

	volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME")
	if err != nil {
		return VolcengineConfig{}, err
	}
	ttsVolume := float32(1.0)
	if volume != nil {
		ttsVolume = *volume
	}

	return VolcengineConfig{
		AppID:       strings.TrimSpace(os.Getenv("SPEECH_APP_ID")),
		AccessToken: strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN")),
		BaseURL:     getEnvOrDefault("SPEECH_BASE_URL", "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"),
		Voice:       getEnvOrDefault("SPEECH_TTS_VOICE", ""),
		Speed:       ttsSpeed,
		Volume:      ttsVolume,
	}, nil
}
