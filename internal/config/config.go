package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeCloud Mode = "cloud"
)

// Provider names the model backend.
type Provider string

const (
	ProviderMock      Provider = "mock"
	ProviderGemini    Provider = "gemini"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

type LLMConfig struct {
	Provider Provider
	Model    string
	APIKey   string
	BaseURL  string

	// Vertex AI backend for gemini when both are set.
	GCPProjectID string
	GCPLocation  string
}

type SpeechConfig struct {
	APIKey       string
	BaseURL      string
	VoiceID      string
	ModelID      string
	OutputFormat string
	AudioDir     string
}

type Timeouts struct {
	Classify   time.Duration
	Completion time.Duration
	Speech     time.Duration
}

type Config struct {
	Mode     Mode
	Port     string
	LogLevel string

	LLM    LLMConfig
	Speech SpeechConfig

	Timeouts      Timeouts
	FollowUpDelay time.Duration

	MaxSessions int
	CatalogPath string

	RateLimit int
	RateBurst int
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

func getIntEnv(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDurationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Load reads .env (if any) and the environment, then builds the config.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the config from the current environment only.
func FromEnv() (*Config, error) {
	mode := ModeLocal
	if getEnv("HAVEN_ENV", "local") != "local" {
		mode = ModeCloud
	}

	cfg := &Config{
		Mode:        mode,
		Port:        getEnv("HAVEN_PORT", getEnv("PORT", "8080")),
		LogLevel:    getEnv("HAVEN_LOG_LEVEL", "info"),
		CatalogPath: getEnv("HAVEN_CATALOG_PATH", ""),
	}

	provider := Provider(strings.ToLower(getEnv("HAVEN_LLM_PROVIDER", "")))
	cfg.LLM = LLMConfig{
		Provider:     provider,
		BaseURL:      getEnv("HAVEN_LLM_BASE_URL", ""),
		GCPProjectID: getEnv("HAVEN_GCP_PROJECT", ""),
		GCPLocation:  getEnv("HAVEN_GCP_LOCATION", "us-central1"),
	}
	switch provider {
	case ProviderOpenAI:
		cfg.LLM.APIKey = firstNonEmpty(os.Getenv("HAVEN_LLM_API_KEY"), os.Getenv("OPENAI_API_KEY"))
		cfg.LLM.Model = getEnv("HAVEN_LLM_MODEL", "gpt-4o-mini")
	case ProviderAnthropic:
		cfg.LLM.APIKey = firstNonEmpty(os.Getenv("HAVEN_LLM_API_KEY"), os.Getenv("ANTHROPIC_API_KEY"))
		cfg.LLM.Model = getEnv("HAVEN_LLM_MODEL", "")
	case ProviderGemini, ProviderMock:
		cfg.LLM.APIKey = firstNonEmpty(os.Getenv("HAVEN_LLM_API_KEY"), os.Getenv("GEMINI_API_KEY"))
		cfg.LLM.Model = getEnv("HAVEN_LLM_MODEL", "gemini-2.5-flash")
	case "":
		cfg.LLM.APIKey = firstNonEmpty(os.Getenv("HAVEN_LLM_API_KEY"), os.Getenv("GEMINI_API_KEY"))
		cfg.LLM.Model = getEnv("HAVEN_LLM_MODEL", "gemini-2.5-flash")
		// local runs without a key fall back to the mock model
		cfg.LLM.Provider = ProviderGemini
		if mode == ModeLocal && cfg.LLM.APIKey == "" && cfg.LLM.GCPProjectID == "" {
			cfg.LLM.Provider = ProviderMock
		}
	default:
		return nil, fmt.Errorf("HAVEN_LLM_PROVIDER: unknown provider %q", provider)
	}
	if getBoolEnv("HAVEN_USE_MOCK_LLM", false) {
		cfg.LLM.Provider = ProviderMock
	}

	cfg.Speech = SpeechConfig{
		APIKey:       firstNonEmpty(os.Getenv("HAVEN_SPEECH_API_KEY"), os.Getenv("ELEVENLABS_API_KEY")),
		BaseURL:      getEnv("HAVEN_SPEECH_BASE_URL", "https://api.elevenlabs.io"),
		VoiceID:      getEnv("HAVEN_SPEECH_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		ModelID:      getEnv("HAVEN_SPEECH_MODEL_ID", "eleven_multilingual_v2"),
		OutputFormat: getEnv("HAVEN_SPEECH_FORMAT", "mp3_44100_128"),
		AudioDir:     getEnv("HAVEN_AUDIO_DIR", ""),
	}

	var err error
	if cfg.Timeouts.Classify, err = getDurationEnv("HAVEN_CLASSIFY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.Timeouts.Completion, err = getDurationEnv("HAVEN_COMPLETION_TIMEOUT", 45*time.Second); err != nil {
		return nil, err
	}
	if cfg.Timeouts.Speech, err = getDurationEnv("HAVEN_SPEECH_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.FollowUpDelay, err = getDurationEnv("HAVEN_FOLLOWUP_DELAY", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.MaxSessions, err = getIntEnv("HAVEN_MAX_SESSIONS", 1024); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = getIntEnv("HAVEN_RATE_LIMIT", 30); err != nil {
		return nil, err
	}
	if cfg.RateBurst, err = getIntEnv("HAVEN_RATE_BURST", 10); err != nil {
		return nil, err
	}

	if cfg.MaxSessions <= 0 {
		return nil, fmt.Errorf("HAVEN_MAX_SESSIONS must be positive, got %d", cfg.MaxSessions)
	}
	if cfg.Mode == ModeCloud && cfg.LLM.Provider == ProviderMock {
		return nil, fmt.Errorf("the mock model is only allowed with HAVEN_ENV=local")
	}

	return cfg, nil
}
