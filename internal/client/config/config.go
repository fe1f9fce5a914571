package config

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/common"
)

// Config holds runtime settings for the scanner.
type Config struct {
	ServerEndpointAddr  string
	OnlineCheckInterval time.Duration
	RequestTimeout      time.Duration
	SyncInterval        time.Duration
	SyncBatchSize       int

	DatabaseDSN  string
	AccessToken  string
	DeviceID     string
	VerifierName string
	Location     string

	LogBackend string
	LogLevel   string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.OnlineCheckInterval = 3 * time.Second
	c.RequestTimeout = 5 * time.Second
	c.SyncInterval = time.Minute
	c.SyncBatchSize = common.SyncBatchSize
	c.DatabaseDSN = "qrpass-scanner.db"
	c.LogBackend = "slog"
	c.LogLevel = "warn"
}

// Validate reports settings the scanner cannot run with.
func (c *Config) Validate() error {
	if !common.ValidLocation(c.Location) {
		return fmt.Errorf("%w: unknown location %q", common.ErrorValidation, c.Location)
	}
	if c.SyncBatchSize <= 0 || c.SyncBatchSize > common.SyncBatchSize {
		return fmt.Errorf("%w: sync batch size must be in 1..%d", common.ErrorValidation, common.SyncBatchSize)
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("%w: empty database path", common.ErrorValidation)
	}
	return nil
}

// LoadConfig constructs a Config from defaults, then JSON, environment and
// flags. Later sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
