package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/callsim/backend/internal/config"
	"github.com/zhouzirui/callsim/backend/internal/model/persona"
	"github.com/zhouzirui/callsim/backend/internal/service/speech"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	text := flag.String("text", "", "待合成文本")
	voice := flag.String("voice", "", "声音 ID，留空则使用 -persona 对应角色的声音")
	personaID := flag.String("persona", "robert", "内置角色 ID，用于选择默认声音")
	outputPath := flag.String("out", "", "输出音频文件路径 (默认自动生成)")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	if strings.TrimSpace(*text) == "" {
		flag.Usage()
		log.Fatal("需要通过 -text 提供待合成文本")
	}

	voiceID := *voice
	if voiceID == "" {
		p, ok := persona.NewMemoryStore(persona.Seed()).FindByID(*personaID)
		if !ok {
			log.Fatalf("未知角色: %s", *personaID)
		}
		voiceID = p.VoiceID
	}

	if cfg.Speech.Provider == config.SpeechProviderNone {
		log.Fatal("SPEECH_PROVIDER=none，没有可测试的语音后端")
	}
	synth := speech.NewSynthesizer(cfg.Speech)
	if _, silent := synth.(speech.SilentSynthesizer); silent {
		log.Fatalf("语音后端 %s 未配置凭证", cfg.Speech.Provider)
	}

	path := *outputPath
	if path == "" {
		path = fmt.Sprintf("tts-output-%d.mp3", time.Now().Unix())
	}

	out, err := os.Create(path)
	if err != nil {
		log.Fatalf("创建输出文件失败: %v", err)
	}
	defer out.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	log.Printf("开始 TTS 测试: provider=%s voice=%s", cfg.Speech.Provider, voiceID)
	start := time.Now()
	var firstChunk time.Duration

	outcome := speech.Pump(ctx, synth, *text, voiceID, func(chunk []byte) error {
		if firstChunk == 0 {
			firstChunk = time.Since(start)
		}
		_, err := out.Write(chunk)
		return err
	})

	log.Printf("TTS 结束: outcome=%s chunks=%d bytes=%d first_chunk=%s total=%s 输出文件 %s",
		outcome.Status, outcome.Chunks, outcome.Bytes, firstChunk.Round(time.Millisecond), time.Since(start).Round(time.Millisecond), path)
	if outcome.Partial() {
		log.Fatalf("音频流未完整结束: %v", outcome.Err)
	}
}
