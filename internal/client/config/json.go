package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/flagx"
	"github.com/dmitrijs2005/qrpass/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
type JsonConfig struct {
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	RequestTimeout      timex.Duration `json:"request_timeout"`
	SyncInterval        timex.Duration `json:"sync_interval"`
	SyncBatchSize       int            `json:"sync_batch_size"`
	DatabaseDSN         string         `json:"database_dsn"`
	AccessToken         string         `json:"access_token"`
	DeviceID            string         `json:"device_id"`
	VerifierName        string         `json:"verifier_name"`
	Location            string         `json:"location"`
	LogBackend          string         `json:"log_backend"`
	LogLevel            string         `json:"log_level"`
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

// parseJson overlays Config with values from the file named by -c or
// -config. Absent keys keep their value; read or decode errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.ServerEndpointAddr, jc.ServerEndpointAddr)
	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	setDuration(&cfg.RequestTimeout, jc.RequestTimeout)
	setDuration(&cfg.SyncInterval, jc.SyncInterval)
	if jc.SyncBatchSize > 0 {
		cfg.SyncBatchSize = jc.SyncBatchSize
	}
	setString(&cfg.DatabaseDSN, jc.DatabaseDSN)
	setString(&cfg.AccessToken, jc.AccessToken)
	setString(&cfg.DeviceID, jc.DeviceID)
	setString(&cfg.VerifierName, jc.VerifierName)
	setString(&cfg.Location, jc.Location)
	setString(&cfg.LogBackend, jc.LogBackend)
	setString(&cfg.LogLevel, jc.LogLevel)
}
