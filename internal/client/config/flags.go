package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/flagx"
)

// parseFlags overlays Config with the flags listed in the package doc.
// Only those flags are parsed so other components may own the rest.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-i", "-d", "-t", "-n", "-l", "-v"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "local database path")
	fs.StringVar(&cfg.AccessToken, "t", cfg.AccessToken, "device credential")
	fs.StringVar(&cfg.VerifierName, "n", cfg.VerifierName, "verifier display name")
	fs.StringVar(&cfg.Location, "l", cfg.Location, "location tag")
	fs.StringVar(&cfg.LogLevel, "v", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
