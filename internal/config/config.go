package config

import (
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Vector store backends
const (
	VectorStorePgvector = "pgvector"
	VectorStoreQdrant   = "qdrant"
)

// Event bus backends
const (
	EventsBackendNone  = "none"
	EventsBackendNATS  = "nats"
	EventsBackendKafka = "kafka"
)

// Config holds all configuration for the application
type Config struct {
	Port        string
	DatabaseURL string // PostgreSQL with the pgvector extension
	Version     string
	LogLevel    string
	LogFile     string // Optional rotated log file in addition to stdout
	CORSOrigins []string

	// OpenAI / Azure OpenAI
	OpenAIKey                      string
	AzureOpenAIEndpoint            string
	AzureOpenAIKey                 string
	AzureOpenAIGPTDeployment       string
	AzureOpenAIEmbeddingDeployment string
	OpenAITimeout                  int  // OpenAI API timeout in seconds
	StructuredOutput               bool // Request JSON schema responses instead of marker blocks

	// Knowledge base
	VectorStore         string // pgvector or qdrant
	QdrantHost          string
	QdrantPort          int
	QdrantAPIKey        string
	KnowledgeCollection string // Table (pgvector) or collection (qdrant) holding document chunks
	KnowledgeSourceType string // Source partition searched by the chat classifier

	// Sessions
	RedisURL          string // When set, channel sessions are kept in Redis instead of process memory
	SessionTTLMinutes int
	SessionMaxTurns   int

	// Events
	EventsBackend string
	NATSURL       string
	KafkaBrokers  []string
	KafkaTopic    string

	// SLA
	SLAAcceptMinutes int
	SLARemoteMinutes int
	SLACheckSchedule string

	// Staff bootstrap account, created on first start
	AdminEmail    string
	AdminPassword string
	AuthSecret    string // HMAC key for staff bearer tokens; random per process when empty
	AuthTokenTTL  int    // Staff token lifetime in hours

	// Channels
	WhatsAppAPIKey    string // X-WhatsApp-API-Key for /api/whatsapp; endpoint is open when empty
	WhatsAppStorePath string
	WhatsAppAllowFrom []string
	TelegramBotToken  string
	TelegramAllowFrom []string
	ChatServiceURL    string // Base URL the bots call when running out of process

	// Email
	SendGridAPIKey       string // SendGrid API key for escalation notices and email replies
	SupportEmail         string
	EmailInboundAddr     string // Listen address of the SendGrid Inbound Parse webhook
	EmailInboundUser     string
	EmailInboundPassword string // Basic auth for the webhook; open when empty
	EmailAllowFrom       []string
}

// Load initializes and returns application configuration
func Load() *Config {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Version:     getEnv("VERSION", "1.0.0"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     os.Getenv("LOG_FILE"),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"*"}),

		OpenAIKey:                      os.Getenv("OPENAI_API_KEY"),
		AzureOpenAIEndpoint:            os.Getenv("AZURE_OPENAI_ENDPOINT"),
		AzureOpenAIKey:                 os.Getenv("AZURE_OPENAI_KEY"),
		AzureOpenAIGPTDeployment:       getEnv("AZURE_OPENAI_GPT_DEPLOYMENT", "gpt-4o-mini"),
		AzureOpenAIEmbeddingDeployment: getEnv("AZURE_OPENAI_EMBEDDING_DEPLOYMENT", "text-embedding-3-small"),
		OpenAITimeout:                  getEnvInt("OPENAI_TIMEOUT", 60),
		StructuredOutput:               getEnvBool("STRUCTURED_OUTPUT", true),

		VectorStore:         strings.ToLower(getEnv("VECTOR_STORE", VectorStorePgvector)),
		QdrantHost:          getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:          getEnvInt("QDRANT_PORT", 6334),
		QdrantAPIKey:        os.Getenv("QDRANT_API_KEY"),
		KnowledgeCollection: getEnv("KNOWLEDGE_COLLECTION", "documents"),
		KnowledgeSourceType: getEnv("KNOWLEDGE_SOURCE_TYPE", "kazakhtelecom"),

		RedisURL:          os.Getenv("REDIS_URL"),
		SessionTTLMinutes: getEnvInt("SESSION_TTL_MINUTES", 60),
		SessionMaxTurns:   getEnvInt("SESSION_MAX_TURNS", 20),

		EventsBackend: strings.ToLower(getEnv("EVENTS_BACKEND", EventsBackendNone)),
		NATSURL:       getEnv("NATS_URL", "nats://localhost:4222"),
		KafkaBrokers:  getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "helpdesk.events"),

		SLAAcceptMinutes: getEnvInt("SLA_ACCEPT_MINUTES", 15),
		SLARemoteMinutes: getEnvInt("SLA_REMOTE_MINUTES", 60),
		SLACheckSchedule: getEnv("SLA_CHECK_SCHEDULE", "@every 1m"),

		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		AuthSecret:    os.Getenv("AUTH_SECRET"),
		AuthTokenTTL:  getEnvInt("AUTH_TOKEN_TTL_HOURS", 24),

		WhatsAppAPIKey:    os.Getenv("WHATSAPP_API_KEY"),
		WhatsAppStorePath: getEnv("WHATSAPP_STORE_PATH", "whatsapp-store.db"),
		WhatsAppAllowFrom: getEnvList("WHATSAPP_ALLOW_FROM", nil),
		TelegramBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramAllowFrom: getEnvList("TELEGRAM_ALLOW_FROM", nil),
		ChatServiceURL:    getEnv("CHAT_SERVICE_URL", "http://localhost:8080"),

		SendGridAPIKey:       os.Getenv("SENDGRID_API_KEY"),
		SupportEmail:         getEnv("SUPPORT_EMAIL", "support@helpdesk.local"),
		EmailInboundAddr:     getEnv("EMAIL_INBOUND_ADDR", ":8025"),
		EmailInboundUser:     getEnv("EMAIL_INBOUND_USER", "sendgrid"),
		EmailInboundPassword: os.Getenv("EMAIL_INBOUND_PASSWORD"),
		EmailAllowFrom:       getEnvList("EMAIL_ALLOW_FROM", nil),
	}

	return config
}

// UseAzureOpenAI reports whether Azure OpenAI is configured as the primary provider
func (c *Config) UseAzureOpenAI() bool {
	return c.AzureOpenAIEndpoint != "" && c.AzureOpenAIKey != ""
}

// HasOpenAIFallback reports whether the OpenAI platform key is available
func (c *Config) HasOpenAIFallback() bool {
	return c.OpenAIKey != ""
}

// HasOpenAI reports whether any completion provider is configured
func (c *Config) HasOpenAI() bool {
	return c.UseAzureOpenAI() || c.HasOpenAIFallback()
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as integer with a default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as boolean with a default fallback
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvList gets a comma separated environment variable with a default fallback
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}

// SetupLogger configures zerolog with JSON output and single-line format
func (c *Config) SetupLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var out io.Writer = os.Stdout
	if c.LogFile != "" {
		out = zerolog.MultiLevelWriter(os.Stdout, &lumberjack.Logger{
			Filename:   c.LogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}

	logger := zerolog.New(out).With().
		Timestamp().
		Str("service", "helpdesk").
		Str("version", c.Version).
		Logger()

	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	return logger
}
