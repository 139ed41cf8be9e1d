package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Overlap policies for group events
const (
	OverlapNone  = "none"
	OverlapOwner = "owner"
	OverlapGroup = "group"
)

// defaultZoneCatalog is searched in order when a timezone is inferred from a UTC offset
var defaultZoneCatalog = []string{
	"UTC",
	"Europe/London",
	"Europe/Berlin",
	"Europe/Athens",
	"Europe/Moscow",
	"Asia/Dubai",
	"Asia/Karachi",
	"Asia/Kolkata",
	"Asia/Dhaka",
	"Asia/Bangkok",
	"Asia/Shanghai",
	"Asia/Tokyo",
	"Australia/Sydney",
	"Pacific/Auckland",
	"Pacific/Honolulu",
	"America/Anchorage",
	"America/Los_Angeles",
	"America/Denver",
	"America/Chicago",
	"America/New_York",
	"America/Halifax",
	"America/Sao_Paulo",
	"Atlantic/Azores",
}

// Config holds all configuration for the application
type Config struct {
	// Telegram Bot configuration
	BotToken string

	// Storage configuration
	DataDir      string
	StoreTimeout time.Duration
	GCInterval   time.Duration

	// Scheduling configuration
	SweepInterval      time.Duration
	ProposalTTL        time.Duration
	GroupOverlapPolicy string

	// Time zone handling
	DefaultTimezone string
	ZoneCatalog     []string

	// OpenAI configuration, optional
	OpenAIAPIBase string
	OpenAIAPIKey  string
	OpenAIModel   string

	LogLevel string
}

type zoneCatalogFile struct {
	Zones []string `yaml:"zones"`
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	cfg := &Config{}

	botToken := os.Getenv("BOT_TOKEN")
	if botToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN environment variable is required")
	}
	cfg.BotToken = botToken

	cfg.DataDir = getEnvWithDefault("DATA_DIR", "./data")
	cfg.DefaultTimezone = getEnvWithDefault("DEFAULT_TIMEZONE", "UTC")
	cfg.LogLevel = getEnvWithDefault("LOG_LEVEL", "info")

	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"SWEEP_INTERVAL", "1m", &cfg.SweepInterval},
		{"STORE_TIMEOUT", "5s", &cfg.StoreTimeout},
		{"PROPOSAL_TTL", "2m", &cfg.ProposalTTL},
		{"GC_INTERVAL", "10m", &cfg.GCInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnvWithDefault(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("%s must be positive, got %s", d.key, v)
		}
		*d.dest = v
	}

	policy := strings.ToLower(getEnvWithDefault("GROUP_OVERLAP_POLICY", OverlapNone))
	switch policy {
	case OverlapNone, OverlapOwner, OverlapGroup:
		cfg.GroupOverlapPolicy = policy
	default:
		return nil, fmt.Errorf("invalid GROUP_OVERLAP_POLICY %q (want none, owner or group)", policy)
	}

	cfg.ZoneCatalog = defaultZoneCatalog
	if raw := os.Getenv("ZONE_CATALOG"); raw != "" {
		cfg.ZoneCatalog = splitList(raw)
	}
	if path := os.Getenv("ZONE_CATALOG_FILE"); path != "" {
		zones, err := LoadZoneCatalog(path)
		if err != nil {
			return nil, err
		}
		cfg.ZoneCatalog = zones
	}

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIAPIBase = getEnvWithDefault("OPENAI_API_BASE", "https://api.openai.com/v1")
	cfg.OpenAIModel = getEnvWithDefault("OPENAI_MODEL", "gpt-3.5-turbo")

	// Log configuration with sensitive data redacted
	logCfg := *cfg
	if len(logCfg.BotToken) > 8 {
		logCfg.BotToken = logCfg.BotToken[:8] + "...REDACTED..."
	}
	if len(logCfg.OpenAIAPIKey) > 8 {
		logCfg.OpenAIAPIKey = logCfg.OpenAIAPIKey[:8] + "...REDACTED..."
	}
	log.Printf("Configuration loaded: %+v", logCfg)
	return cfg, nil
}

// LoadZoneCatalog reads an ordered zone list from a YAML file of the form
//
//	zones:
//	  - UTC
//	  - Europe/Berlin
func LoadZoneCatalog(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read zone catalog: %w", err)
	}
	var f zoneCatalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse zone catalog %s: %w", path, err)
	}
	if len(f.Zones) == 0 {
		return nil, fmt.Errorf("zone catalog %s lists no zones", path)
	}
	return f.Zones, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvWithDefault returns the value of the environment variable or the default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
