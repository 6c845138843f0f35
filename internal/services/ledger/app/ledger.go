package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/oversight/internal/platform/otel"
	"github.com/louisbranch/oversight/internal/platform/timeouts"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/acknowledgement"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/chain"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/guard"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/intent"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/registry"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/report"
	"github.com/louisbranch/oversight/internal/services/ledger/metrics"
	storagesqlite "github.com/louisbranch/oversight/internal/services/ledger/storage/sqlite"
)

const tracerName = "github.com/louisbranch/oversight/internal/services/ledger/app"

// syncPageSize bounds the journal rows read per query while syncing.
const syncPageSize = 200

// Options carries optional collaborators for Open.
type Options struct {
	// Metrics observes every registry. Nil disables metrics.
	Metrics *metrics.Metrics
	// Tracer overrides the global tracer, mostly for tests.
	Tracer trace.Tracer
}

// Ledger holds the three registries and the journal backing them.
type Ledger struct {
	Intents          *intent.Registry
	Reports          *report.Registry
	Acknowledgements *acknowledgement.Registry

	store   *storagesqlite.Store
	metrics *metrics.Metrics
	tracer  trace.Tracer
	hasher  chain.Hasher
	guard   guard.Denylist
}

// registryView is the kind-independent surface of a registry.
type registryView interface {
	Kind() string
	Len() int
	HeadHash() string
	Hasher() chain.Hasher
	IndexNames() []string
	CountDistinct(index string) (int, error)
	VerifyChainIntegrity() error
	Restore(entries []registry.Entry) error
	CatchUp(entries []registry.Entry) (int, error)
}

// Open builds the ledger described by cfg and replays any journaled records.
func Open(ctx context.Context, cfg Config, opts Options) (_ *Ledger, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	ctx, span := tracer.Start(ctx, "ledger.open")
	defer func() { endSpan(span, err) }()

	hasher, err := cfg.hasher()
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("ledger.hasher", hasher.Name()))

	l := &Ledger{
		metrics: opts.Metrics,
		tracer:  tracer,
		hasher:  hasher,
		guard:   cfg.denylist(),
	}

	if path := strings.TrimSpace(cfg.DBPath); path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage dir: %w", err)
			}
		}
		store, err := storagesqlite.Open(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("open ledger storage: %w", err)
		}
		l.store = store
	}

	if err := l.buildRegistries(); err != nil {
		_ = l.Close()
		return nil, err
	}
	if err := l.replay(ctx); err != nil {
		_ = l.Close()
		return nil, err
	}
	return l, nil
}

// Close releases the journal. It is safe to call on a nil ledger.
func (l *Ledger) Close() error {
	if l == nil {
		return nil
	}
	return l.store.Close()
}

// Hasher returns the chain hasher shared by every registry.
func (l *Ledger) Hasher() chain.Hasher {
	return l.hasher
}

// Persistent reports whether records are journaled to SQLite.
func (l *Ledger) Persistent() bool {
	return l.store != nil
}

func (l *Ledger) journal(kind string) registry.Journal {
	if l.store == nil {
		return nil
	}
	return l.store.Journal(kind)
}

func (l *Ledger) observer() registry.Observer {
	if l.metrics == nil {
		return nil
	}
	return l.metrics
}

func (l *Ledger) buildRegistries() error {
	intentCfg := intent.Config{
		Hasher:   l.hasher,
		Journal:  l.journal(intent.Kind),
		Observer: l.observer(),
	}
	reportCfg := report.Config{
		Hasher:   l.hasher,
		Journal:  l.journal(report.Kind),
		Observer: l.observer(),
	}
	ackCfg := acknowledgement.Config{
		Hasher:   l.hasher,
		Journal:  l.journal(acknowledgement.Kind),
		Observer: l.observer(),
	}
	if !l.guard.Empty() {
		intentCfg.Rules = append(intentCfg.Rules, guard.Rule[intent.Intent](l.guard))
		reportCfg.Rules = append(reportCfg.Rules, guard.Rule[report.Report](l.guard))
		ackCfg.Rules = append(ackCfg.Rules, guard.Rule[acknowledgement.Acknowledgement](l.guard))
	}

	var err error
	if l.Intents, err = intent.New(intentCfg); err != nil {
		return fmt.Errorf("build intent registry: %w", err)
	}
	if l.Reports, err = report.New(reportCfg); err != nil {
		return fmt.Errorf("build report registry: %w", err)
	}
	if l.Acknowledgements, err = acknowledgement.New(ackCfg); err != nil {
		return fmt.Errorf("build acknowledgement registry: %w", err)
	}
	return nil
}

// replay loads each kind's journal rows into its empty registry. Stored
// hashes are not checked here; Verify does that.
func (l *Ledger) replay(ctx context.Context) (err error) {
	if l.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.JournalReplay)
	defer cancel()
	ctx, span := l.tracer.Start(ctx, "ledger.replay")
	defer func() { endSpan(span, err) }()

	for _, view := range l.views() {
		entries, err := l.store.Entries(ctx, view.Kind())
		if err != nil {
			return fmt.Errorf("load %s journal: %w", view.Kind(), err)
		}
		if err := view.Restore(entries); err != nil {
			return fmt.Errorf("restore %s registry: %w", view.Kind(), err)
		}
		span.SetAttributes(attribute.Int("ledger."+view.Kind()+".records", len(entries)))
		l.metrics.SetHead(view.Kind(), uint64(len(entries)))
	}
	return nil
}

// Sync loads rows journaled since Open or the previous Sync, such as records
// appended by another process sharing the database. It is a no-op without a
// journal.
func (l *Ledger) Sync(ctx context.Context) (err error) {
	if l.store == nil {
		return nil
	}
	ctx, span := l.tracer.Start(ctx, "ledger.sync")
	defer func() { endSpan(span, err) }()

	for _, view := range l.views() {
		added := 0
		for {
			entries, err := l.store.ListEntries(ctx, view.Kind(), uint64(view.Len()), syncPageSize)
			if err != nil {
				return fmt.Errorf("sync %s journal: %w", view.Kind(), err)
			}
			n, err := view.CatchUp(entries)
			if err != nil {
				return err
			}
			added += n
			if len(entries) < syncPageSize {
				break
			}
		}
		if added > 0 {
			span.SetAttributes(attribute.Int("ledger."+view.Kind()+".synced", added))
			l.metrics.SetHead(view.Kind(), uint64(view.Len()))
		}
	}
	return nil
}

// Kinds lists the registry kinds in a stable order.
func (l *Ledger) Kinds() []string {
	views := l.views()
	kinds := make([]string, 0, len(views))
	for _, view := range views {
		kinds = append(kinds, view.Kind())
	}
	return kinds
}

func (l *Ledger) views() []registryView {
	return []registryView{l.Intents, l.Reports, l.Acknowledgements}
}

func (l *Ledger) view(kind string) (registryView, error) {
	for _, view := range l.views() {
		if view.Kind() == kind {
			return view, nil
		}
	}
	return nil, unknownKind(kind)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
