package profile

import (
	"fmt"
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
	// Data is the data directory
	Data string
	// DSN points to where conductor stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	// RulesPath optionally points to a YAML file overriding the built-in
	// intent classification and boundary rules.
	RulesPath string

	// InactivityGap is the idle duration after which an episode is closed.
	InactivityGap time.Duration

	// MinerInterval is how often the playbook miner re-scans history.
	MinerInterval time.Duration

	// AI Configuration for the optional generative drafting step.
	AIEnabled   bool   // CONDUCTOR_AI_ENABLED
	AIProvider  string // CONDUCTOR_AI_PROVIDER (default: openai)
	AIAPIKey    string // CONDUCTOR_AI_API_KEY
	AIBaseURL   string // CONDUCTOR_AI_BASE_URL
	AIModel     string // CONDUCTOR_AI_MODEL (default: gpt-4o-mini)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if AI drafting is enabled and an API key or a
// custom base URL is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.AIEnabled && (p.AIAPIKey != "" || p.AIBaseURL != "")
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads configuration from CONDUCTOR_* environment variables.
func (p *Profile) FromEnv() {
	p.AIEnabled = os.Getenv("CONDUCTOR_AI_ENABLED") == "true"
	p.AIProvider = getEnvOrDefault("CONDUCTOR_AI_PROVIDER", "openai")
	p.AIAPIKey = os.Getenv("CONDUCTOR_AI_API_KEY")
	p.AIBaseURL = os.Getenv("CONDUCTOR_AI_BASE_URL")
	p.AIModel = getEnvOrDefault("CONDUCTOR_AI_MODEL", "gpt-4o-mini")

	if v := os.Getenv("CONDUCTOR_RULES_PATH"); v != "" {
		p.RulesPath = v
	}
	if v := os.Getenv("CONDUCTOR_INACTIVITY_GAP_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			p.InactivityGap = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("CONDUCTOR_MINER_INTERVAL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			p.MinerInterval = time.Duration(secs) * time.Second
		}
	}
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
			p.Data = filepath.Join(os.Getenv("ProgramData"), "conductor")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/conductor"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("conductor_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	if p.InactivityGap <= 0 {
		p.InactivityGap = 5 * time.Minute
	}
	if p.MinerInterval <= 0 {
		p.MinerInterval = 10 * time.Minute
	}

	return nil
}
