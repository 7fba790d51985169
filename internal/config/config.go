package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all runtime settings for the proxy process. Values are read
// once at startup from environment variables and never change afterwards.
type Config struct {
	// Network
	ProxyPort int // MITM proxy listener (default 8888)
	APIPort   int // HTTP control API (default 8889)

	// Data plane limits
	MaxEvents     int           // ring buffer capacity
	MaxBodyBytes  int64         // per-request inspection cap
	IdleTimeout   time.Duration // per-connection read deadline
	ShutdownGrace time.Duration // drain window after SIGTERM

	// Paths
	DataDir string // per-user state: certs, sources.json, stats db, pid file

	// Logging
	LogLevel string
}

// Load builds a Config from the environment. Every variable has a working
// default; invalid values silently fall back to the default so the binary
// still works when launched headless by a browser.
func Load() Config {
	return Config{
		ProxyPort:     envInt("LOGGY_PROXY_PORT", 8888),
		APIPort:       envInt("LOGGY_API_PORT", 8889),
		MaxEvents:     envInt("LOGGY_MAX_EVENTS", 1000),
		MaxBodyBytes:  envInt64("LOGGY_MAX_BODY_BYTES", 1<<20),
		IdleTimeout:   envDur("LOGGY_IDLE_TIMEOUT", 60*time.Second),
		ShutdownGrace: envDur("LOGGY_SHUTDOWN_GRACE", 2*time.Second),
		DataDir:       envStr("LOGGY_DATA_DIR", defaultDataDir()),
		LogLevel:      envStr("LOGGY_LOG_LEVEL", "info"),
	}
}

// CertDir is where the root CA pair lives.
func (c Config) CertDir() string {
	return filepath.Join(c.DataDir, "certs")
}

// CACertPath returns the PEM path of the root certificate.
func (c Config) CACertPath() string {
	return filepath.Join(c.CertDir(), "ca.pem")
}

// CAKeyPath returns the PEM path of the root private key.
func (c Config) CAKeyPath() string {
	return filepath.Join(c.CertDir(), "ca-key.pem")
}

// SourcesPath returns the persisted source list.
func (c Config) SourcesPath() string {
	return filepath.Join(c.DataDir, "sources.json")
}

// StatsDBPath returns the sqlite database holding capture stats and
// unmatched-domain observations.
func (c Config) StatsDBPath() string {
	return filepath.Join(c.DataDir, "loggy.db")
}

// PIDPath returns the supervisor-owned pid file of the proxy child.
func (c Config) PIDPath() string {
	return filepath.Join(c.DataDir, ".proxy.pid")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".loggy-proxy"
	}
	return filepath.Join(home, ".loggy-proxy")
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
