package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config aggregates every setting of the service
type Config struct {
	Server   ServerConfig
	WhatsApp WhatsAppConfig
	Flow     FlowConfig
	Auth     AuthConfig
	AuditDSN string
}

type ServerConfig struct {
	Addr     string
	DataDir  string
	LogLevel log.Level
}

type WhatsAppConfig struct {
	AccessToken       string
	PhoneNumberID     string
	BusinessAccountID string
	VerifyToken       string
	APIVersion        string
	BrandName         string
	BaseURL           string
	SendRetries       int
	BackoffUnit       time.Duration
	SendRate          float64
	SendBurst         int
}

// Configured reports whether real sends are possible
func (c WhatsAppConfig) Configured() bool {
	return c.AccessToken != "" && c.PhoneNumberID != ""
}

type FlowConfig struct {
	MaxDelay time.Duration
}

type AuthConfig struct {
	JWTSecret     string
	AdminUsername string
	AdminPassword string
}

// Enabled is true when API requests must carry a token
func (c AuthConfig) Enabled() bool {
	return c.JWTSecret != ""
}

// Load reads the environment, after merging a .env file when one exists
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}
	wa, err := loadWhatsAppConfig()
	if err != nil {
		return nil, err
	}
	maxDelay, err := envDuration("WA_MAX_FLOW_DELAY", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		WhatsApp: wa,
		Flow:     FlowConfig{MaxDelay: maxDelay},
		Auth: AuthConfig{
			JWTSecret:     os.Getenv("JWT_SECRET"),
			AdminUsername: envString("ADMIN_USERNAME", "admin"),
			AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		},
		AuditDSN: os.Getenv("AUDIT_DATABASE_URL"),
	}, nil
}

func loadServerConfig() (ServerConfig, error) {
	port := envString("PORT", "8080")
	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}
	addr := port
	if !strings.Contains(port, ":") {
		addr = ":" + port
	}

	level, err := log.ParseLevel(envString("LOG_LEVEL", "info"))
	if err != nil {
		return ServerConfig{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	return ServerConfig{
		Addr:     addr,
		DataDir:  envString("DATA_DIR", "./data"),
		LogLevel: level,
	}, nil
}

func loadWhatsAppConfig() (WhatsAppConfig, error) {
	retries, err := envInt("WA_SEND_RETRIES", 2)
	if err != nil {
		return WhatsAppConfig{}, err
	}
	if retries < 0 {
		return WhatsAppConfig{}, fmt.Errorf("invalid WA_SEND_RETRIES value: %d", retries)
	}
	unit, err := envDuration("WA_BACKOFF_UNIT", time.Second)
	if err != nil {
		return WhatsAppConfig{}, err
	}
	sendRate, err := envFloat("WA_SEND_RATE", 1)
	if err != nil {
		return WhatsAppConfig{}, err
	}
	burst, err := envInt("WA_SEND_BURST", 5)
	if err != nil {
		return WhatsAppConfig{}, err
	}

	return WhatsAppConfig{
		AccessToken:       os.Getenv("WHATSAPP_ACCESS_TOKEN"),
		PhoneNumberID:     os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
		BusinessAccountID: os.Getenv("WHATSAPP_BUSINESS_ACCOUNT_ID"),
		VerifyToken:       envString("WHATSAPP_VERIFY_TOKEN", "sales_dashboard_verify"),
		APIVersion:        envString("WA_API_VERSION", "v21.0"),
		BrandName:         envString("WA_BRAND_NAME", "Koenig Solutions"),
		BaseURL:           envString("WA_BASE_URL", "https://graph.facebook.com"),
		SendRetries:       retries,
		BackoffUnit:       unit,
		SendRate:          sendRate,
		SendBurst:         burst,
	}, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return v, nil
}

func envFloat(key string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return v, nil
}
