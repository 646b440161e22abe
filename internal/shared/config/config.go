package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	Port        string
	Env         string

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Webhook signature secrets, one per provider. Empty disables verification.
	ZAPIClientToken   string
	WAHAWebhookSecret string
	CloudAPIAppSecret string
	WebhookTimeout    time.Duration

	// Outbound send service
	WhatsAppProvider    string
	ZAPIBaseURL         string
	ZAPIInstanceID      string
	ZAPIToken           string
	WAHABaseURL         string
	WAHAAPIKey          string
	WAHASessionID       string
	CloudAPIPhoneID     string
	CloudAPIToken       string
	CloudAPIVersion     string
	WhatsAppSendTimeout time.Duration

	// Phone normalization
	DefaultRegion string

	// Event sink: "log", "redis" or "amqp"
	EventSink    string
	RedisURL     string
	RedisChannel string
	AMQPURL      string
	AMQPExchange string

	// Blob store: "local" or "s3"
	UploadProvider string
	UploadPath     string
	UploadBaseURL  string
	AWSAccessKeyID string
	AWSSecretKey   string
	AWSRegion      string
	AWSBucket      string

	// Reply drafter: "openai", "groq" or "deepseek"
	LLMProvider string
	LLMBaseURL  string
	OpenAIKey   string
	OpenAIModel string

	// Background work
	WorkerConcurrency int
	UnreadSweepCron   string
	JobCleanupCron    string
	CampaignSweepCron string

	// Audit rows older than this many days are purged nightly.
	AuditRetentionDays int
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ .env file not found, using system environment variables")
	}

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Port:        os.Getenv("PORT"),
		Env:         os.Getenv("ENV"),

		DBMaxOpenConns:    intEnv("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    intEnv("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: durationEnv("DB_CONN_MAX_LIFETIME", time.Hour),

		ZAPIClientToken:   os.Getenv("ZAPI_CLIENT_TOKEN"),
		WAHAWebhookSecret: os.Getenv("WAHA_WEBHOOK_SECRET"),
		CloudAPIAppSecret: os.Getenv("CLOUD_API_APP_SECRET"),
		WebhookTimeout:    durationEnv("WEBHOOK_TIMEOUT", 5*time.Second),

		WhatsAppProvider:    os.Getenv("WHATSAPP_PROVIDER"),
		ZAPIBaseURL:         os.Getenv("ZAPI_BASE_URL"),
		ZAPIInstanceID:      os.Getenv("ZAPI_INSTANCE_ID"),
		ZAPIToken:           os.Getenv("ZAPI_TOKEN"),
		WAHABaseURL:         os.Getenv("WAHA_BASE_URL"),
		WAHAAPIKey:          os.Getenv("WAHA_API_KEY"),
		WAHASessionID:       os.Getenv("WAHA_SESSION_ID"),
		CloudAPIPhoneID:     os.Getenv("CLOUD_API_PHONE_ID"),
		CloudAPIToken:       os.Getenv("CLOUD_API_ACCESS_TOKEN"),
		CloudAPIVersion:     os.Getenv("CLOUD_API_VERSION"),
		WhatsAppSendTimeout: durationEnv("WHATSAPP_SEND_TIMEOUT", 10*time.Second),

		DefaultRegion: os.Getenv("DEFAULT_PHONE_REGION"),

		EventSink:    os.Getenv("EVENT_SINK"),
		RedisURL:     os.Getenv("REDIS_URL"),
		RedisChannel: os.Getenv("REDIS_CHANNEL"),
		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: os.Getenv("AMQP_EXCHANGE"),

		UploadProvider: os.Getenv("UPLOAD_PROVIDER"),
		UploadPath:     os.Getenv("UPLOAD_PATH"),
		UploadBaseURL:  os.Getenv("UPLOAD_BASE_URL"),
		AWSAccessKeyID: os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretKey:   os.Getenv("AWS_SECRET_ACCESS_KEY"),
		AWSRegion:      os.Getenv("AWS_REGION"),
		AWSBucket:      os.Getenv("AWS_S3_BUCKET"),

		LLMProvider: os.Getenv("LLM_PROVIDER"),
		LLMBaseURL:  os.Getenv("LLM_BASE_URL"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel: os.Getenv("OPENAI_MODEL"),

		WorkerConcurrency: intEnv("WORKER_CONCURRENCY", 5),
		UnreadSweepCron:   os.Getenv("UNREAD_SWEEP_CRON"),
		JobCleanupCron:    os.Getenv("JOB_CLEANUP_CRON"),
		CampaignSweepCron: os.Getenv("CAMPAIGN_SWEEP_CRON"),

		AuditRetentionDays: intEnv("AUDIT_RETENTION_DAYS", 180),
	}

	// Default values
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.WhatsAppProvider == "" {
		cfg.WhatsAppProvider = "zapi"
	}
	if cfg.ZAPIBaseURL == "" {
		cfg.ZAPIBaseURL = "https://api.z-api.io"
	}
	if cfg.WAHASessionID == "" {
		cfg.WAHASessionID = "default"
	}
	if cfg.CloudAPIVersion == "" {
		cfg.CloudAPIVersion = "v18.0"
	}
	if cfg.DefaultRegion == "" {
		cfg.DefaultRegion = "BR"
	}
	if cfg.EventSink == "" {
		cfg.EventSink = "log"
	}
	if cfg.RedisChannel == "" {
		cfg.RedisChannel = "engage.events"
	}
	if cfg.AMQPExchange == "" {
		cfg.AMQPExchange = "engage.events"
	}
	if cfg.UploadProvider == "" {
		cfg.UploadProvider = "local"
	}
	if cfg.UploadPath == "" {
		cfg.UploadPath = "./uploads"
	}
	if cfg.UploadBaseURL == "" {
		cfg.UploadBaseURL = "http://localhost:" + cfg.Port
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "openai"
	}
	if cfg.UnreadSweepCron == "" {
		cfg.UnreadSweepCron = "0 */30 * * * *"
	}
	if cfg.JobCleanupCron == "" {
		cfg.JobCleanupCron = "0 0 3 * * *"
	}
	if cfg.CampaignSweepCron == "" {
		cfg.CampaignSweepCron = "0 */5 * * * *"
	}

	return cfg
}

// IsProduction reports whether the service runs with ENV=production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("⚠️ invalid %s=%q, using %s", key, raw, fallback)
		return fallback
	}
	return d
}

func intEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("⚠️ invalid %s=%q, using %d", key, raw, fallback)
		return fallback
	}
	return n
}
