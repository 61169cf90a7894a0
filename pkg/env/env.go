package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv  string
	AppPort string

	// Public HTTPS base URL of this service. Lifecycle callback URLs and the
	// media transport URL handed to the call platform are derived from it.
	CallbackBaseURL string

	// Call automation platform (answer/hangup REST + media websocket).
	AcsEndpoint  string
	AcsAccessKey string

	// Realtime speech-AI session.
	RealtimeEndpoint string
	RealtimeAPIKey   string
	RealtimeModel    string
	RealtimeVoice    string
	AgentInstructions string
	AgentGreeting     string

	// Grounding service (NL to SQL generation, result summarization).
	OpenAIApiKey    string
	OpenAIModel     string
	OpenAIMaxTokens int
	AITimeoutMs     int

	// Relational store.
	MySQLDSN string

	RedisURL string

	MediaSampleRate int

	LogLevel           string
	CORSAllowedOrigins string

	OTELEndpoint string
	OTELEnabled  bool
}

func Load(envFile string) (*Config, error) {
	if envFile != "" {
		// Missing .env is fine: production runs on environment variables only.
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	cfg := &Config{
		AppEnv:  getEnv("APP_ENV", "development"),
		AppPort: getEnv("APP_PORT", "8080"),

		CallbackBaseURL: mustGetEnv("CALLBACK_BASE_URL"),

		AcsEndpoint:  mustGetEnv("ACS_ENDPOINT"),
		AcsAccessKey: mustGetEnv("ACS_ACCESS_KEY"),

		RealtimeEndpoint: getEnv("REALTIME_ENDPOINT", "wss://api.openai.com/v1/realtime"),
		RealtimeAPIKey:   getEnv("REALTIME_API_KEY", os.Getenv("OPENAI_API_KEY")),
		RealtimeModel:    getEnv("REALTIME_MODEL", "gpt-4o-realtime-preview"),
		RealtimeVoice:    getEnv("REALTIME_VOICE", "alloy"),
		AgentInstructions: getEnv("AGENT_INSTRUCTIONS",
			"Tu es l'assistante vocale de Sotradis, distributeur de matériaux de construction. "+
				"Réponds brièvement et poliment, en français sauf si le client parle une autre langue. "+
				"Appuie-toi sur le contexte fourni pour les prix, articles, clients et factures."),
		AgentGreeting: getEnv("AGENT_GREETING",
			"Bonjour, bienvenue chez Sotradis. Comment puis-je vous aider ?"),

		OpenAIApiKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIMaxTokens: getEnvInt("OPENAI_MAX_TOKENS", 1000),
		AITimeoutMs:     getEnvInt("AI_TIMEOUT_MS", 15000),

		MySQLDSN: mustGetEnv("MYSQL_DSN"),

		RedisURL: getEnv("REDIS_URL", ""),

		MediaSampleRate: getEnvInt("MEDIA_SAMPLE_RATE", 24000),

		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),

		OTELEndpoint: getEnv("OTEL_ENDPOINT", ""),
		OTELEnabled:  getEnvBool("OTEL_ENABLED", false),
	}

	cfg.CallbackBaseURL = strings.TrimRight(cfg.CallbackBaseURL, "/")
	cfg.AcsEndpoint = strings.TrimRight(cfg.AcsEndpoint, "/")

	return cfg, nil
}

// MediaTransportURL is the wss:// URL the call platform connects its audio
// stream to, carrying the per-call context id.
func (c *Config) MediaTransportURL(contextID string) string {
	return toWebSocketScheme(c.CallbackBaseURL) + "/ws/media?contextId=" + contextID
}

// CallbackURL is the per-call lifecycle callback address registered when the
// call is answered.
func (c *Config) CallbackURL(contextID, callerID string) string {
	return fmt.Sprintf("%s/api/callbacks/%s?callerId=%s", c.CallbackBaseURL, contextID, callerID)
}

func toWebSocketScheme(base string) string {
	switch {
	case strings.HasPrefix(base, "https"):
		return "wss" + base[5:]
	case strings.HasPrefix(base, "http"):
		return "ws" + base[4:]
	}
	return base
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustGetEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(strValue)
	if err != nil {
		return defaultValue
	}
	return value
}
