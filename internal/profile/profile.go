package profile

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory, used for stored calendar credentials
	Data string
	// Version is the current version of server
	Version string
	// Timezone is the IANA zone schedules are interpreted in
	Timezone string

	// AI configuration
	AIBaseURL string // SMARTSCHED_AI_BASE_URL (default: https://api.openai.com/v1)
	AIAPIKey  string // SMARTSCHED_AI_API_KEY
	AIModel   string // SMARTSCHED_AI_CHAT_MODEL (default: gpt-4o-mini)

	// Google Calendar OAuth configuration
	GoogleClientID     string // SMARTSCHED_GOOGLE_CLIENT_ID
	GoogleClientSecret string // SMARTSCHED_GOOGLE_CLIENT_SECRET
	GoogleRedirectURL  string // SMARTSCHED_GOOGLE_REDIRECT_URL

	// Extraction and confirmation tuning
	MinConfidence     float64       // SMARTSCHED_MIN_CONFIDENCE (default: 0.5)
	AcceptThreshold   float64       // SMARTSCHED_ACCEPT_THRESHOLD (default: 0.4)
	FallbackThreshold float64       // SMARTSCHED_FALLBACK_THRESHOLD (default: 0.3)
	SessionTTL        time.Duration // SMARTSCHED_SESSION_TTL (default: 10m)
	SlotPolicy        string        // SMARTSCHED_SLOT_POLICY (default: none)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled reports whether the LLM extractor can run at all.
func (p *Profile) IsAIEnabled() bool {
	return p.AIAPIKey != ""
}

// Location resolves the configured timezone.
func (p *Profile) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid timezone %q", p.Timezone)
	}
	return loc, nil
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// FromEnv loads configuration from SMARTSCHED_* environment variables.
func (p *Profile) FromEnv() {
	p.Timezone = getEnvOrDefault("SMARTSCHED_TIMEZONE", "Asia/Tokyo")

	p.AIBaseURL = getEnvOrDefault("SMARTSCHED_AI_BASE_URL", "https://api.openai.com/v1")
	p.AIAPIKey = os.Getenv("SMARTSCHED_AI_API_KEY")
	p.AIModel = getEnvOrDefault("SMARTSCHED_AI_CHAT_MODEL", "gpt-4o-mini")

	p.GoogleClientID = os.Getenv("SMARTSCHED_GOOGLE_CLIENT_ID")
	p.GoogleClientSecret = os.Getenv("SMARTSCHED_GOOGLE_CLIENT_SECRET")
	p.GoogleRedirectURL = os.Getenv("SMARTSCHED_GOOGLE_REDIRECT_URL")

	p.MinConfidence = getFloatEnv("SMARTSCHED_MIN_CONFIDENCE", 0.5)
	p.AcceptThreshold = getFloatEnv("SMARTSCHED_ACCEPT_THRESHOLD", 0.4)
	p.FallbackThreshold = getFloatEnv("SMARTSCHED_FALLBACK_THRESHOLD", 0.3)
	p.SessionTTL = getDurationEnv("SMARTSCHED_SESSION_TTL", 10*time.Minute)
	p.SlotPolicy = getEnvOrDefault("SMARTSCHED_SLOT_POLICY", "none")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "smartsched")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/smartsched"
		}
	}
	if p.Data == "" {
		p.Data = os.TempDir()
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if _, err := p.Location(); err != nil {
		return err
	}

	if p.FallbackThreshold > p.AcceptThreshold {
		return errors.Errorf("fallback threshold %.2f exceeds accept threshold %.2f",
			p.FallbackThreshold, p.AcceptThreshold)
	}
	return nil
}
