package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/qrpass/internal/qr"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL drives. App satisfies it.
type execIface interface {
	Scan(ctx context.Context, payload string) error
	Sync(ctx context.Context) error
	Refresh(ctx context.Context) error
	Status(ctx context.Context) error
}

// runREPL reads commands from scanner until EOF, "exit" or "quit".
// Handler errors are reported by the handlers themselves.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("qrpass %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		if ctx.Err() != nil {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		switch cmd {
		case "help":
			printlnFn("Available commands: scan <payload>, sync, refresh, status, exit")

		case "scan":
			if len(parts) != 2 {
				printlnFn("Usage: scan <payload>")
				continue
			}
			_ = a.Scan(ctx, parts[1])

		case "sync":
			_ = a.Sync(ctx)

		case "refresh":
			_ = a.Refresh(ctx)

		case "status", "pending":
			_ = a.Status(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			if _, err := qr.Decode(cmd); err == nil && len(parts) == 1 {
				_ = a.Scan(ctx, cmd)
				continue
			}
			printlnFn("Unknown command:", cmd)
		}
	}
}
