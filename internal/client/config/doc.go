// Package config loads runtime configuration for the qrpass scanner.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. QRPASS_SCANNER_* environment variables, after loading .env.
//  4. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   address:port of the verifier gRPC endpoint
//	-i int      online status check interval (seconds)
//	-d string   path of the local SQLite database
//	-t string   device credential (JWT); prompted for when empty
//	-n string   verifier display name recorded with each scan
//	-l string   location tag (gate, exam-hall, hostel, library)
//	-v string   log level
//
// # JSON schema
//
// Durations accept strings like "3s" or integer nanoseconds:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "online_check_interval": "3s",
//	  "database_dsn": "qrpass-scanner.db",
//	  "verifier_name": "Main gate",
//	  "location": "gate"
//	}
package config
