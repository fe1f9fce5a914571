package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/flagx"
	"github.com/dmitrijs2005/qrpass/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations
// accept both "1s" strings and integer nanoseconds.
type JsonConfig struct {
	EndpointAddrGRPC      string         `json:"endpoint_addr_grpc"`
	EndpointAddrHTTP      string         `json:"endpoint_addr_http"`
	DatabaseDSN           string         `json:"database_dsn"`
	SecretKey             string         `json:"secret_key"`
	MasterPassphrase      string         `json:"master_passphrase"`
	MasterSalt            string         `json:"master_salt"`
	StoreTimeout          timex.Duration `json:"store_timeout"`
	SyncBatchSize         int            `json:"sync_batch_size"`
	RotationCheckInterval timex.Duration `json:"rotation_check_interval"`
	RotationLead          timex.Duration `json:"rotation_lead"`
	BacklogCheckInterval  timex.Duration `json:"backlog_check_interval"`
	BacklogAge            timex.Duration `json:"backlog_age"`
	LimiterBackend        string         `json:"limiter_backend"`
	RedisAddr             string         `json:"redis_addr"`
	RateLimitPerMinute    int            `json:"rate_limit_per_minute"`
	LogBackend            string         `json:"log_backend"`
	LogLevel              string         `json:"log_level"`
	TelemetryEndpoint     string         `json:"telemetry_endpoint"`
	S3RootUser            string         `json:"s3_root_user"`
	S3RootPassword        string         `json:"s3_root_password"`
	S3Bucket              string         `json:"s3_bucket"`
	S3Region              string         `json:"s3_region"`
	S3BaseEndpoint        string         `json:"s3_base_endpoint"`
	SecretCacheTTL        timex.Duration `json:"secret_cache_ttl"`
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}

// parseJson overlays values from the file named by -c / -config. Keys absent
// from the file keep their current value. An unreadable file or invalid JSON
// panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.MasterPassphrase, c.MasterPassphrase)
	setString(&config.MasterSalt, c.MasterSalt)
	setDuration(&config.StoreTimeout, c.StoreTimeout)
	if c.SyncBatchSize > 0 {
		config.SyncBatchSize = c.SyncBatchSize
	}
	setDuration(&config.RotationCheckInterval, c.RotationCheckInterval)
	setDuration(&config.RotationLead, c.RotationLead)
	setDuration(&config.BacklogCheckInterval, c.BacklogCheckInterval)
	setDuration(&config.BacklogAge, c.BacklogAge)
	setString(&config.LimiterBackend, c.LimiterBackend)
	setString(&config.RedisAddr, c.RedisAddr)
	if c.RateLimitPerMinute > 0 {
		config.RateLimitPerMinute = c.RateLimitPerMinute
	}
	setString(&config.LogBackend, c.LogBackend)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.TelemetryEndpoint, c.TelemetryEndpoint)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setDuration(&config.SecretCacheTTL, c.SecretCacheTTL)
}
