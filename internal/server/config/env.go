package config

import "github.com/dmitrijs2005/qrpass/internal/flagx"

// envPrefix namespaces every server variable.
const envPrefix = "QRPASS_"

// parseEnv overlays QRPASS_* variables, after loading .env without
// overriding what the process environment already sets.
func parseEnv(c *Config) {
	flagx.LoadDotEnv()

	flagx.EnvString(envPrefix+"GRPC_ADDR", &c.EndpointAddrGRPC)
	flagx.EnvString(envPrefix+"HTTP_ADDR", &c.EndpointAddrHTTP)
	flagx.EnvString(envPrefix+"DATABASE_DSN", &c.DatabaseDSN)
	flagx.EnvString(envPrefix+"SECRET_KEY", &c.SecretKey)
	flagx.EnvString(envPrefix+"MASTER_PASSPHRASE", &c.MasterPassphrase)
	flagx.EnvString(envPrefix+"MASTER_SALT", &c.MasterSalt)
	flagx.EnvDuration(envPrefix+"STORE_TIMEOUT", &c.StoreTimeout)

	flagx.EnvInt(envPrefix+"SYNC_BATCH_SIZE", &c.SyncBatchSize)
	flagx.EnvDuration(envPrefix+"ROTATION_CHECK_INTERVAL", &c.RotationCheckInterval)
	flagx.EnvDuration(envPrefix+"ROTATION_LEAD", &c.RotationLead)
	flagx.EnvDuration(envPrefix+"BACKLOG_CHECK_INTERVAL", &c.BacklogCheckInterval)
	flagx.EnvDuration(envPrefix+"BACKLOG_AGE", &c.BacklogAge)

	flagx.EnvString(envPrefix+"LIMITER_BACKEND", &c.LimiterBackend)
	flagx.EnvString(envPrefix+"REDIS_ADDR", &c.RedisAddr)
	flagx.EnvInt(envPrefix+"RATE_LIMIT_PER_MINUTE", &c.RateLimitPerMinute)

	flagx.EnvString(envPrefix+"LOG_BACKEND", &c.LogBackend)
	flagx.EnvString(envPrefix+"LOG_LEVEL", &c.LogLevel)
	flagx.EnvString(envPrefix+"TELEMETRY_ENDPOINT", &c.TelemetryEndpoint)

	flagx.EnvString(envPrefix+"S3_ROOT_USER", &c.S3RootUser)
	flagx.EnvString(envPrefix+"S3_ROOT_PASSWORD", &c.S3RootPassword)
	flagx.EnvString(envPrefix+"S3_BUCKET", &c.S3Bucket)
	flagx.EnvString(envPrefix+"S3_REGION", &c.S3Region)
	flagx.EnvString(envPrefix+"S3_BASE_ENDPOINT", &c.S3BaseEndpoint)
	flagx.EnvDuration(envPrefix+"SECRET_CACHE_TTL", &c.SecretCacheTTL)
}
