// Command devicetoken mints device credentials and optionally enrolls the
// principal they belong to.
//
//	devicetoken -principal gate-1 -role admin -name "Main gate" -enroll -d postgres://...
//
// The signing key and database come from the server configuration, so the
// usual -s / -d flags, QRPASS_* variables and -c file apply.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/flagx"
	"github.com/dmitrijs2005/qrpass/internal/logging"
	"github.com/dmitrijs2005/qrpass/internal/server"
	"github.com/dmitrijs2005/qrpass/internal/server/auth"
	"github.com/dmitrijs2005/qrpass/internal/server/config"
	"github.com/dmitrijs2005/qrpass/internal/server/services"
)

type options struct {
	principal string
	name      string
	role      string
	ttl       time.Duration
	enroll    bool
}

func parseOptions(args []string) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet("devicetoken", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&o.principal, "principal", "", "principal id")
	fs.StringVar(&o.name, "name", "", "display name used when enrolling")
	fs.StringVar(&o.role, "role", string(auth.RoleAdmin), "role")
	fs.DurationVar(&o.ttl, "ttl", 30*24*time.Hour, "credential lifetime")
	fs.BoolVar(&o.enroll, "enroll", false, "create or update the principal")

	own := flagx.FilterArgs(args, []string{"-principal", "-name", "-role", "-ttl", "-enroll"})
	if err := fs.Parse(own); err != nil {
		return nil, err
	}
	if o.principal == "" {
		return nil, errors.New("-principal is required")
	}
	if _, ok := auth.ParseRole(o.role); !ok {
		return nil, fmt.Errorf("unknown role %q", o.role)
	}
	if o.ttl <= 0 {
		return nil, errors.New("-ttl must be positive")
	}
	return o, nil
}

func run(ctx context.Context, cfg *config.Config, o *options, out io.Writer) error {
	if o.enroll {
		if cfg.DatabaseDSN == config.MemoryDSN {
			return errors.New("cannot enroll into the memory store")
		}
		db, rm, err := server.OpenStore(ctx, cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("error opening store: %w", err)
		}
		defer db.Close()

		if err := rm.RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("error running migrations: %w", err)
		}
		registry := services.NewRegistryService(db, rm, cfg.StoreTimeout, logging.Nop())
		if _, err := registry.Enroll(ctx, o.principal, o.name, auth.Role(o.role)); err != nil {
			return err
		}
	}

	token, err := auth.GenerateToken(o.principal, auth.Role(o.role), []byte(cfg.SecretKey), o.ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func main() {

	o, err := parseOptions(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	cfg := config.LoadConfig()
	if err := run(context.Background(), cfg, o, os.Stdout); err != nil {
		log.Fatalf("%v", err)
	}

}
