package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server     ServerConfig
	AI         AIConfig
	Speech     SpeechConfig
	Session    SessionConfig
	Transcript TranscriptConfig
	Telemetry  TelemetryConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	transcript, err := loadTranscriptConfig()
	if err != nil {
		return nil, err
	}

	telemetry, err := loadTelemetryConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:     server,
		AI:         ai,
		Speech:     speech,
		Session:    session,
		Transcript: transcript,
		Telemetry:  telemetry,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	// MaxTokens is the token budget of one persona reply.
	MaxTokens int
	Timeout   time.Duration
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	maxTokens := c.MaxTokens

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   &maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens := 256
	if override, err := parseOptionalIntEnv("ARK_MAX_TOKENS"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return AIConfig{}, fmt.Errorf("invalid ARK_MAX_TOKENS value %d: must be positive", *override)
		}
		maxTokens = *override
	}

	timeout, err := parseSecondsEnv("AI_TIMEOUT_SECONDS", 30)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		Timeout:     timeout,
	}, nil
}

// SessionConfig 描述会话与角色相关配置。
type SessionConfig struct {
	PersonasFile string
	// MaxTurns 为 0 时不限制轮数。
	MaxTurns int
}

func loadSessionConfig() (SessionConfig, error) {
	maxTurns := 0
	if override, err := parseOptionalIntEnv("SESSION_MAX_TURNS"); err != nil {
		return SessionConfig{}, err
	} else if override != nil {
		if *override < 0 {
			return SessionConfig{}, fmt.Errorf("invalid SESSION_MAX_TURNS value %d: must not be negative", *override)
		}
		maxTurns = *override
	}

	return SessionConfig{
		PersonasFile: strings.TrimSpace(os.Getenv("PERSONAS_FILE")),
		MaxTurns:     maxTurns,
	}, nil
}

// Transcript store kinds.
const (
	TranscriptStoreMemory = "memory"
	TranscriptStoreSQLite = "sqlite"
	TranscriptStoreNone   = "none"
)

// TranscriptConfig 描述对话记录的存储方式。
type TranscriptConfig struct {
	Store      string
	SQLitePath string
}

func loadTranscriptConfig() (TranscriptConfig, error) {
	store := strings.ToLower(getEnvOrDefault("TRANSCRIPT_STORE", TranscriptStoreMemory))
	switch store {
	case TranscriptStoreMemory, TranscriptStoreSQLite, TranscriptStoreNone:
	default:
		return TranscriptConfig{}, fmt.Errorf("invalid TRANSCRIPT_STORE value %q", store)
	}

	return TranscriptConfig{
		Store:      store,
		SQLitePath: getEnvOrDefault("TRANSCRIPT_SQLITE_PATH", "data/transcripts.db"),
	}, nil
}

// TelemetryConfig 描述指标导出配置。
type TelemetryConfig struct {
	MetricsEnabled bool
	ServiceName    string
}

func loadTelemetryConfig() (TelemetryConfig, error) {
	enabled, err := parseBoolEnv("METRICS_ENABLED", true)
	if err != nil {
		return TelemetryConfig{}, err
	}

	return TelemetryConfig{
		MetricsEnabled: enabled,
		ServiceName:    getEnvOrDefault("SERVICE_NAME", "callsim-backend"),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}

// parseSecondsEnv 解析以秒为单位的正整数时长。
func parseSecondsEnv(key string, defaultSeconds int) (time.Duration, error) {
	seconds := defaultSeconds
	override, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if override != nil {
		if *override < 1 {
			return 0, fmt.Errorf("invalid %s value %d: must be positive", key, *override)
		}
		seconds = *override
	}
	return time.Duration(seconds) * time.Second, nil
}
