// Package ledgerctl implements the ledger command line: append records from
// JSON, read them back, summarize registries and verify every chain.
package ledgerctl

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/louisbranch/oversight/internal/platform/cmd"
	apperrors "github.com/louisbranch/oversight/internal/platform/errors"
	"github.com/louisbranch/oversight/internal/services/ledger/app"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/registry"
)

// Config holds ledger command configuration.
type Config struct {
	App     app.Config
	Timeout time.Duration `env:"TIMEOUT" envDefault:"1m"`
	Locale  string        `env:"LOCALE"  envDefault:"en-US"`

	Verify bool
	Stats  bool
	List   bool
	Get    bool
	Append bool

	Kind       string
	ID         string
	Input      string
	Filter     string
	From       int64
	To         int64
	Offset     int
	Limit      int
	Source     string
	JSONOutput bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := cmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.App.DBPath, "db-path", cfg.App.DBPath, "SQLite journal path (default: OVERSIGHT_DB_PATH or data/oversight.db)")
	fs.StringVar(&cfg.App.Hasher, "hasher", cfg.App.Hasher, "chain hasher: rolling or sha256")
	fs.StringVar(&cfg.App.GuardTerms, "guard-terms", cfg.App.GuardTerms, "comma-separated denylist for record text")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "locale for error messages")

	fs.BoolVar(&cfg.Verify, "verify", false, "verify every chain and exit non-zero on the first violation")
	fs.BoolVar(&cfg.Stats, "stats", false, "print registry summaries")
	fs.BoolVar(&cfg.List, "list", false, "list records of -kind")
	fs.BoolVar(&cfg.Get, "get", false, "print the record -id of -kind")
	fs.BoolVar(&cfg.Append, "append", false, "append a record of -kind from the JSON in -input")

	fs.StringVar(&cfg.Kind, "kind", "", "registry kind: intent, report or acknowledgement")
	fs.StringVar(&cfg.ID, "id", "", "record identifier for -get")
	fs.StringVar(&cfg.Input, "input", "-", "JSON input file for -append (- reads stdin)")
	fs.StringVar(&cfg.Filter, "filter", "", "AIP-160 filter for -list")
	fs.Int64Var(&cfg.From, "from", 0, "inclusive lower created_at bound for -list (0 = open)")
	fs.Int64Var(&cfg.To, "to", 0, "inclusive upper created_at bound for -list (0 = open)")
	fs.IntVar(&cfg.Offset, "offset", 0, "matches to skip for -list")
	fs.IntVar(&cfg.Limit, "limit", 0, "max records for -list (0 = no limit)")
	fs.StringVar(&cfg.Source, "source", "memory", "where -list evaluates the filter: memory or journal")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output JSON reports")
	if err := cmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	modes := 0
	for _, on := range []bool{c.Verify, c.Stats, c.List, c.Get, c.Append} {
		if on {
			modes++
		}
	}
	if modes != 1 {
		return errors.New("exactly one of -verify, -stats, -list, -get or -append is required")
	}
	if (c.List || c.Get || c.Append) && strings.TrimSpace(c.Kind) == "" {
		return errors.New("-kind is required")
	}
	if c.Get && strings.TrimSpace(c.ID) == "" {
		return errors.New("-id is required with -get")
	}
	if c.List && c.Source != "memory" && c.Source != "journal" {
		return fmt.Errorf("-source must be memory or journal, got %q", c.Source)
	}
	return nil
}

// Run executes the ledger command.
func Run(ctx context.Context, cfg Config, in io.Reader, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	return cmd.RunWithTelemetry(ctx, cmd.ServiceLedger, func(ctx context.Context) error {
		ledger, err := app.Open(ctx, cfg.App, app.Options{})
		if err != nil {
			return localize(err, cfg.Locale)
		}
		defer func() {
			if closeErr := ledger.Close(); closeErr != nil {
				fmt.Fprintf(errOut, "Error: close ledger: %v\n", closeErr)
			}
		}()

		switch {
		case cfg.Verify:
			return runVerify(ctx, ledger, cfg, out)
		case cfg.Stats:
			return runStats(ledger, cfg, out)
		case cfg.List:
			return runList(ctx, ledger, cfg, out)
		case cfg.Get:
			rec, err := ledger.Get(cfg.Kind, cfg.ID)
			if err != nil {
				return localize(err, cfg.Locale)
			}
			return writeJSON(out, rec)
		default:
			return runAppend(ctx, ledger, cfg, in, out)
		}
	})
}

type verifyReport struct {
	Kind    string `json:"kind"`
	Records int    `json:"records"`
	Head    string `json:"head"`
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

func runVerify(ctx context.Context, ledger *app.Ledger, cfg Config, out io.Writer) error {
	results := ledger.Verify(ctx)
	reports := make([]verifyReport, 0, len(results))
	for _, result := range results {
		report := verifyReport{Kind: result.Kind, Records: result.Records, Head: result.Head, OK: result.OK()}
		if !result.OK() {
			report.Code = string(result.ErrorCode())
			report.Error = apperrors.Localize(result.Err, cfg.Locale)
		}
		reports = append(reports, report)
	}

	if cfg.JSONOutput {
		if err := writeJSON(out, reports); err != nil {
			return err
		}
	} else {
		for _, report := range reports {
			if report.OK {
				fmt.Fprintf(out, "%s: %d records, head %s, ok\n", report.Kind, report.Records, report.Head)
				continue
			}
			fmt.Fprintf(out, "%s: %d records, %s: %s\n", report.Kind, report.Records, report.Code, report.Error)
		}
	}

	if err := app.FirstFailure(results); err != nil {
		return fmt.Errorf("chain verification failed: %s", apperrors.CodeOf(err))
	}
	return nil
}

func runStats(ledger *app.Ledger, cfg Config, out io.Writer) error {
	stats, err := ledger.Stats(cfg.Kind)
	if err != nil {
		return localize(err, cfg.Locale)
	}
	if cfg.JSONOutput {
		return writeJSON(out, stats)
	}
	for _, s := range stats {
		fmt.Fprintf(out, "%s: %d records, head %s (%s)\n", s.Kind, s.Records, s.Head, s.Hasher)
		for _, index := range slices.Sorted(maps.Keys(s.Distinct)) {
			fmt.Fprintf(out, "  %s: %d distinct\n", index, s.Distinct[index])
		}
	}
	return nil
}

func runList(ctx context.Context, ledger *app.Ledger, cfg Config, out io.Writer) error {
	q := registry.Query{
		From:   cfg.From,
		To:     cfg.To,
		Offset: cfg.Offset,
		Limit:  cfg.Limit,
		Filter: cfg.Filter,
	}
	if cfg.Source == "journal" {
		page, err := ledger.ListJournal(ctx, cfg.Kind, q)
		if err != nil {
			return localize(err, cfg.Locale)
		}
		rows := make([]journalRow, 0, len(page.Entries))
		for _, entry := range page.Entries {
			rows = append(rows, journalRow{
				Seq:       entry.Seq,
				RecordID:  entry.RecordID,
				PrevHash:  entry.PrevHash,
				Hash:      entry.Hash,
				CreatedAt: entry.CreatedAt,
				Payload:   json.RawMessage(entry.Payload),
			})
		}
		return writeJSON(out, journalPage{Entries: rows, Total: page.Total})
	}

	page, err := ledger.List(cfg.Kind, q)
	if err != nil {
		return localize(err, cfg.Locale)
	}
	return writeJSON(out, page)
}

type journalPage struct {
	Entries []journalRow `json:"entries"`
	Total   int          `json:"total"`
}

type journalRow struct {
	Seq       uint64          `json:"seq"`
	RecordID  string          `json:"record_id"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
	CreatedAt int64           `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

func runAppend(ctx context.Context, ledger *app.Ledger, cfg Config, in io.Reader, out io.Writer) error {
	data, err := readInput(cfg.Input, in)
	if err != nil {
		return err
	}
	rec, err := ledger.Append(ctx, cfg.Kind, data)
	if err != nil {
		return localize(err, cfg.Locale)
	}
	return writeJSON(out, rec)
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		if stdin == nil {
			return nil, errors.New("no input provided")
		}
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

// localize renders domain errors as "CODE: message" in locale and keeps the
// original error reachable through errors.Is.
func localize(err error, locale string) error {
	code := apperrors.CodeOf(err)
	if code == apperrors.CodeUnknown {
		return err
	}
	return &localizedError{message: fmt.Sprintf("%s: %s", code, apperrors.Localize(err, locale)), cause: err}
}

type localizedError struct {
	message string
	cause   error
}

func (e *localizedError) Error() string { return e.message }

func (e *localizedError) Unwrap() error { return e.cause }

func writeJSON(out io.Writer, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Fprintln(out, string(encoded))
	return nil
}
