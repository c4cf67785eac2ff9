package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the resolved runtime configuration for the waspd server.
type Profile struct {
	// Server
	Mode    string // "prod", "dev" or "demo"
	Addr    string
	Port    int
	Data    string // data directory
	DSN     string
	Version string

	// Routing
	RoutingMode      string // "auto", "local" or "cloud"
	RoutingThreshold int    // complexity threshold in [0, 10]
	PrivacyMode      bool

	// Memory
	MemoryChunkSize int // target chunk size in words
	MemoryTopK      int

	// Queue
	QueueMaxDepth int

	// Local inference engine (OpenAI-compatible endpoint, e.g. Ollama)
	EngineBaseURL string
	EngineModel   string

	// Bot channel
	BotToken        string
	BotPollInterval int // seconds between long-poll rounds

	// Webhook
	RequestTimeout int // seconds; 0 means no per-request timeout

	// Credential store passphrase. Empty means credentials are persisted
	// in plain form.
	Passphrase string
}

// IsDev returns true unless the profile runs in prod mode.
func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables. Values already set
// by flags are only overridden when the corresponding variable is present.
func (p *Profile) FromEnv() {
	p.EngineBaseURL = getEnvOrDefault("WASPD_ENGINE_BASE_URL", p.EngineBaseURL)
	p.EngineModel = getEnvOrDefault("WASPD_ENGINE_MODEL", p.EngineModel)
	p.BotToken = getEnvOrDefault("WASPD_BOT_TOKEN", p.BotToken)
	p.Passphrase = getEnvOrDefault("WASPD_PASSPHRASE", p.Passphrase)
	p.BotPollInterval = getEnvOrDefaultInt("WASPD_BOT_POLL_INTERVAL", p.BotPollInterval)
	p.RequestTimeout = getEnvOrDefaultInt("WASPD_REQUEST_TIMEOUT", p.RequestTimeout)
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

	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate normalizes and validates the profile, filling in defaults.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.RoutingMode != "auto" && p.RoutingMode != "local" && p.RoutingMode != "cloud" {
		p.RoutingMode = "auto"
	}
	if p.RoutingThreshold < 0 || p.RoutingThreshold > 10 {
		return errors.Errorf("routing threshold %d out of range [0, 10]", p.RoutingThreshold)
	}
	if p.MemoryChunkSize <= 0 {
		p.MemoryChunkSize = 300
	}
	if p.MemoryTopK <= 0 {
		p.MemoryTopK = 8
	}
	if p.QueueMaxDepth <= 0 {
		p.QueueMaxDepth = 50
	}
	if p.BotPollInterval <= 0 {
		p.BotPollInterval = 2
	}
	if p.EngineBaseURL == "" {
		p.EngineBaseURL = "http://localhost:11434/v1"
	}

	if p.Data == "" {
		p.Data = "."
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return err
	}
	p.Data = dataDir

	if p.DSN == "" {
		dbFile := fmt.Sprintf("waspd_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	return nil
}
