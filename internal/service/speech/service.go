package speech

import (
	"log"

	"github.com/zhouzirui/callsim/backend/internal/config"
)

// NewSynthesizer 根据 SPEECH_PROVIDER 选择语音合成后端，缺少凭证时退化为静音。
func NewSynthesizer(cfg config.SpeechConfig) Synthesizer {
	switch cfg.Provider {
	case config.SpeechProviderElevenLabs:
		if cfg.ElevenLabs.Enabled() {
			return NewElevenLabsClient(cfg.ElevenLabs, cfg.Timeout)
		}
		log.Printf("[tts] ELEVENLABS_API_KEY missing, audio disabled")
	case config.SpeechProviderVolcengine:
		if cfg.Volcengine.Enabled() {
			return NewVolcengineTTSClient(cfg.Volcengine, cfg.Timeout)
		}
		log.Printf("[tts] SPEECH_APP_ID/SPEECH_ACCESS_TOKEN missing, audio disabled")
	}
	return SilentSynthesizer{}
}
