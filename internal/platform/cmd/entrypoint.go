// Package cmd holds the startup plumbing shared by the ledger binaries:
// env-then-flags configuration and a telemetry-wrapped run loop.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/louisbranch/oversight/internal/platform/config"
	"github.com/louisbranch/oversight/internal/platform/otel"
	"github.com/louisbranch/oversight/internal/platform/timeouts"
)

// Service names reported as the OpenTelemetry service.name resource.
const (
	ServiceLedger    = "ledger"
	ServiceLedgerMCP = "ledger-mcp"
)

// ParseConfig fills cfg from OVERSIGHT_-prefixed environment variables. Call
// it before registering flags so env values become the flag defaults.
func ParseConfig[T any](cfg *T) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	return config.ParseEnv(cfg)
}

// ParseArgs parses args into fs. A nil slice is treated as no arguments
// rather than os.Args.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag set is required")
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

// RunWithTelemetry installs tracing for service, runs fn and flushes pending
// spans before returning fn's error.
func RunWithTelemetry(ctx context.Context, service string, fn func(context.Context) error) error {
	service = strings.TrimSpace(service)
	switch {
	case service == "":
		return errors.New("service name is required")
	case fn == nil:
		return errors.New("run function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	shutdown, err := otel.Setup(ctx, service)
	if err != nil {
		return fmt.Errorf("%s: telemetry setup: %w", service, err)
	}
	defer flush(service, shutdown)

	return fn(ctx)
}

// flush runs on a fresh context so a cancelled run still exports its spans.
func flush(service string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.TelemetryShutdown)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Printf("%s: telemetry shutdown: %v", service, err)
	}
}
