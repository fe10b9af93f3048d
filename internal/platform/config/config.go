package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the full service configuration, read once at startup.
type Config struct {
	Server   Server
	WhatsApp WhatsApp
	AWS      AWS
	Pass     Pass
	Vision   Vision
	Secrets  Secrets
	Pipeline Pipeline
	Redis    RedisConfig
	Kafka    Kafka
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string `validate:"required"`
	LogLevel        string `validate:"oneof=debug info warn error"`
	LogFormat       string `validate:"oneof=json text"`
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// WhatsApp configures the messaging platform collaborator.
type WhatsApp struct {
	APIVersion    string `validate:"required"`
	BaseURL       string `validate:"required,url"`
	PhoneNumberID string `validate:"required"`
	AccessToken   string `validate:"required"`
	AppSecret     string
	VerifyToken   string `validate:"required"`
	Timeout       time.Duration
}

// AWS configures object storage, secrets and face detection.
type AWS struct {
	Region      string `validate:"required"`
	Bucket      string `validate:"required"`
	StorageHost string
	Timeout     time.Duration
}

// Pass holds the static pass template values.
type Pass struct {
	PassTypeIdentifier string `validate:"required"`
	TeamIdentifier     string `validate:"required"`
	OrganizationName   string `validate:"required"`
	Description        string
	AssetsDir          string
	UnknownName        string `validate:"required"`
	IncludeBarcode     bool
}

// Vision configures the OpenAI-compatible vision/text service.
type Vision struct {
	APIKey    string
	BaseURL   string `validate:"required,url"`
	Model     string `validate:"required"`
	MaxTokens int    `validate:"gt=0"`
	Timeout   time.Duration
}

// Secrets names the signing material in the secret store.
type Secrets struct {
	WWDRCert       string `validate:"required"`
	SignerCert     string `validate:"required_without=SignerP12"`
	SignerKey      string `validate:"required_without=SignerP12"`
	SignerP12      string
	SignerPassword string
}

// Pipeline tunes the generation pipeline.
type Pipeline struct {
	MarginScale    float64 `validate:"gte=1"`
	BarcodeCommand []string
	NotifyStyle    string `validate:"oneof=text document"`
	DedupTTL       time.Duration
}

// RedisConfig configures the optional shared dedup set.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the optional outcome event stream.
type Kafka struct {
	Brokers []string
	Topic   string `validate:"required_with=Brokers"`
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	region := envOr("AWS_REGION", "us-east-1")
	cfg := Config{
		Server: Server{
			Addr:            envOr("WALLETPASS_ADDR", ":8080"),
			LogLevel:        envOr("LOG_LEVEL", "info"),
			LogFormat:       envOr("LOG_FORMAT", "json"),
			RequestTimeout:  envDuration("REQUEST_TIMEOUT", 120*time.Second),
			ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		WhatsApp: WhatsApp{
			APIVersion:    envOr("WA_API_VERSION", "v21.0"),
			BaseURL:       envOr("WA_GRAPH_URL", "https://graph.facebook.com"),
			PhoneNumberID: os.Getenv("WA_PHONE_NUMBER_ID"),
			AccessToken:   os.Getenv("WA_CLOUD_API_ACCESS_TOKEN"),
			AppSecret:     os.Getenv("WA_APP_SECRET"),
			VerifyToken:   envOr("VERIFY_TOKEN", "mkn-api-whatsapp-token"),
			Timeout:       envDuration("WA_TIMEOUT", 15*time.Second),
		},
		AWS: AWS{
			Region:      region,
			Bucket:      os.Getenv("BUCKET_NAME"),
			StorageHost: envOr("STORAGE_HOST", "s3."+region+".amazonaws.com"),
			Timeout:     envDuration("AWS_TIMEOUT", 15*time.Second),
		},
		Pass: Pass{
			PassTypeIdentifier: os.Getenv("APPLE_PASS_TYPE_ID"),
			TeamIdentifier:     os.Getenv("APPLE_TEAM_ID"),
			OrganizationName:   os.Getenv("ORGANIZATION_NAME"),
			Description:        envOr("PASS_DESCRIPTION", "Digital ID Pass"),
			AssetsDir:          os.Getenv("PASS_ASSETS_DIR"),
			UnknownName:        envOr("PASS_UNKNOWN_NAME", "N/A"),
			IncludeBarcode:     envBool("PASS_INCLUDE_BARCODE", true),
		},
		Vision: Vision{
			APIKey:    os.Getenv("OPENAI_API_KEY"),
			BaseURL:   envOr("OPENAI_BASE_URL", "https://api.openai.com"),
			Model:     envOr("OPENAI_MODEL", "gpt-4o"),
			MaxTokens: envInt("OPENAI_MAX_TOKENS", 60),
			Timeout:   envDuration("OPENAI_TIMEOUT", 20*time.Second),
		},
		Secrets: Secrets{
			WWDRCert:       envOr("SECRET_WWDR_CERT", "mkn/wwdrCert-v2"),
			SignerCert:     envOr("SECRET_SIGNER_CERT", "mkn/signerCert-v2"),
			SignerKey:      envOr("SECRET_SIGNER_KEY", "mkn/signerKey-v2"),
			SignerP12:      os.Getenv("SECRET_SIGNER_P12"),
			SignerPassword: os.Getenv("SIGNER_P12_PASSWORD"),
		},
		Pipeline: Pipeline{
			MarginScale:    envFloat("FACE_MARGIN_SCALE", 1.4),
			BarcodeCommand: strings.Fields(envOr("BARCODE_COMMAND", "zbarimg --raw -q")),
			NotifyStyle:    envOr("NOTIFY_STYLE", "text"),
			DedupTTL:       envDuration("DEDUP_TTL", 24*time.Hour),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   envOr("KAFKA_TOPIC", "walletpass.outcomes"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct-tag invariants across all sections.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
