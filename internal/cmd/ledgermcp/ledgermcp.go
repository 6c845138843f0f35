// Package ledgermcp parses ledger MCP command flags and runs the read-only
// MCP server with an optional metrics listener.
package ledgermcp

import (
	"context"
	"flag"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/louisbranch/oversight/internal/platform/cmd"
	apperrors "github.com/louisbranch/oversight/internal/platform/errors"
	"github.com/louisbranch/oversight/internal/services/ledger/app"
	"github.com/louisbranch/oversight/internal/services/ledger/mcpserver"
	"github.com/louisbranch/oversight/internal/services/ledger/metrics"
)

// Config holds ledger MCP command configuration.
type Config struct {
	App         app.Config
	MetricsAddr string `env:"METRICS_ADDR"`
	Locale      string `env:"LOCALE"       envDefault:"en-US"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := cmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.App.DBPath, "db-path", cfg.App.DBPath, "SQLite journal path")
	fs.StringVar(&cfg.App.Hasher, "hasher", cfg.App.Hasher, "chain hasher: rolling or sha256")
	fs.StringVar(&cfg.App.GuardTerms, "guard-terms", cfg.App.GuardTerms, "comma-separated denylist for record text")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address for the /metrics listener; empty disables it")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "locale for tool error messages")
	if err := cmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run opens the ledger and serves MCP on stdio until the client disconnects
// or ctx ends.
func Run(ctx context.Context, cfg Config) error {
	return cmd.RunWithTelemetry(ctx, cmd.ServiceLedgerMCP, func(ctx context.Context) error {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		ledger, err := app.Open(ctx, cfg.App, app.Options{Metrics: metrics.New(reg)})
		if err != nil {
			return err
		}
		defer func() {
			if err := ledger.Close(); err != nil {
				log.Printf("close ledger: %v", err)
			}
		}()

		for _, result := range ledger.Verify(ctx) {
			if !result.OK() {
				log.Printf("%s chain does not verify: %s", result.Kind, apperrors.Localize(result.Err, cfg.Locale))
			}
		}

		return serve(ctx, mcpserver.New(ledger, cfg.Locale), cfg.MetricsAddr, reg)
	})
}

func serve(ctx context.Context, server *mcpserver.Server, metricsAddr string, reg prometheus.Gatherer) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		// The stdio session ending stops the metrics listener too.
		defer cancel()
		return server.Serve(gctx)
	})
	if metricsAddr != "" {
		g.Go(func() error {
			return metrics.NewServer(metricsAddr, reg).ListenAndServe(gctx)
		})
	}
	return g.Wait()
}
