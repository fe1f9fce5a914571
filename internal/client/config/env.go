package config

import "github.com/dmitrijs2005/qrpass/internal/flagx"

const envPrefix = "QRPASS_SCANNER_"

func parseEnv(c *Config) {
	flagx.LoadDotEnv()

	flagx.EnvString(envPrefix+"SERVER_ADDR", &c.ServerEndpointAddr)
	flagx.EnvDuration(envPrefix+"ONLINE_CHECK_INTERVAL", &c.OnlineCheckInterval)
	flagx.EnvDuration(envPrefix+"REQUEST_TIMEOUT", &c.RequestTimeout)
	flagx.EnvDuration(envPrefix+"SYNC_INTERVAL", &c.SyncInterval)
	flagx.EnvInt(envPrefix+"SYNC_BATCH_SIZE", &c.SyncBatchSize)
	flagx.EnvString(envPrefix+"DATABASE_DSN", &c.DatabaseDSN)
	flagx.EnvString(envPrefix+"ACCESS_TOKEN", &c.AccessToken)
	flagx.EnvString(envPrefix+"DEVICE_ID", &c.DeviceID)
	flagx.EnvString(envPrefix+"VERIFIER_NAME", &c.VerifierName)
	flagx.EnvString(envPrefix+"LOCATION", &c.Location)
	flagx.EnvString(envPrefix+"LOG_BACKEND", &c.LogBackend)
	flagx.EnvString(envPrefix+"LOG_LEVEL", &c.LogLevel)
}
