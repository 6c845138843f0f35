package app

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	_ "modernc.org/sqlite"

	apperrors "github.com/louisbranch/oversight/internal/platform/errors"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/chain"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/intent"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/registry"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/report"
	"github.com/louisbranch/oversight/internal/services/ledger/metrics"
)

const reviewJSON = `{"type":"review","issued_by":"OP1","subject":"SIG-7","description":"Review the spike","evidence_refs":["E1"],"created_at":100}`

func openLedger(t *testing.T, cfg Config, opts Options) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), cfg, opts)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() {
		if err := l.Close(); err != nil {
			t.Fatalf("close ledger: %v", err)
		}
	})
	return l
}

func TestOpenRejectsUnknownHasher(t *testing.T) {
	_, err := Open(context.Background(), Config{Hasher: "md5"}, Options{})
	if !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("open error = %v, want %s", err, apperrors.CodeInvalidInput)
	}
}

func TestCloseNilLedger(t *testing.T) {
	var l *Ledger
	if err := l.Close(); err != nil {
		t.Fatalf("close nil ledger: %v", err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBPath != "data/oversight.db" {
		t.Fatalf("db path = %q, want %q", cfg.DBPath, "data/oversight.db")
	}
	if cfg.Hasher != "rolling" {
		t.Fatalf("hasher = %q, want %q", cfg.Hasher, "rolling")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("OVERSIGHT_DB_PATH", "/tmp/ledger.db")
	t.Setenv("OVERSIGHT_HASHER", "sha256")
	t.Setenv("OVERSIGHT_GUARD_TERMS", "secret, classified")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBPath != "/tmp/ledger.db" || cfg.Hasher != "sha256" {
		t.Fatalf("cfg = %+v", cfg)
	}
	terms := cfg.denylist().Terms()
	if len(terms) != 2 || terms[0] != "classified" || terms[1] != "secret" {
		t.Fatalf("terms = %v, want [classified secret]", terms)
	}
}

func TestAppendAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")
	ctx := context.Background()

	first, err := Open(ctx, Config{DBPath: path}, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !first.Persistent() {
		t.Fatal("expected persistent ledger")
	}
	got, err := first.Append(ctx, intent.Kind, []byte(reviewJSON))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	rec, ok := got.(intent.Record)
	if !ok {
		t.Fatalf("append returned %T, want intent.Record", got)
	}
	if rec.ID != "INT-REVIEW-OP1-100" || rec.Seq != 1 || rec.PrevHash != chain.GenesisHash {
		t.Fatalf("record = %+v", rec)
	}
	_, err = first.Append(ctx, intent.Kind, []byte(reviewJSON))
	if !apperrors.HasCode(err, apperrors.CodeDuplicateRecord) {
		t.Fatalf("duplicate append error = %v, want %s", err, apperrors.CodeDuplicateRecord)
	}
	head := first.Intents.HeadHash()
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second := openLedger(t, Config{DBPath: path}, Options{})
	if second.Intents.Len() != 1 || second.Intents.HeadHash() != head {
		t.Fatalf("reopened = len %d head %q, want len 1 head %q", second.Intents.Len(), second.Intents.HeadHash(), head)
	}
	if err := FirstFailure(second.Verify(ctx)); err != nil {
		t.Fatalf("verify: %v", err)
	}

	fetched, err := second.Get(intent.Kind, "INT-REVIEW-OP1-100")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.(intent.Record).Hash != head {
		t.Fatalf("fetched hash = %q, want %q", fetched.(intent.Record).Hash, head)
	}
}

func TestAppendKeepsChainAcrossReopenForNonASCII(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	first, err := Open(ctx, Config{DBPath: path}, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	bad := []intent.Intent{
		{Type: intent.TypeReview, IssuedBy: "OP1", Description: "bad \xff byte", EvidenceRefs: []string{"E1"}},
		{Type: intent.TypeReview, IssuedBy: "OP1", Subject: "SIG-\xff", Description: "Review", EvidenceRefs: []string{"E1"}},
	}
	for _, payload := range bad {
		if _, err := first.Intents.Append(100, payload); !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
			t.Fatalf("append %q error = %v, want %s", payload.Description+payload.Subject, err, apperrors.CodeInvalidInput)
		}
	}
	if first.Intents.Len() != 0 {
		t.Fatalf("len = %d after rejected appends, want 0", first.Intents.Len())
	}

	if _, err := first.Intents.Append(100, intent.Intent{
		Type:         intent.TypeReview,
		IssuedBy:     "OPÉ",
		Subject:      "señal-7",
		Description:  "Revisión ✓ <ok> & done",
		EvidenceRefs: []string{"E1"},
	}); err != nil {
		t.Fatalf("append non-ASCII: %v", err)
	}
	head := first.Intents.HeadHash()
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second := openLedger(t, Config{DBPath: path}, Options{})
	if got := second.Intents.HeadHash(); got != head {
		t.Fatalf("head after reopen = %q, want %q", got, head)
	}
	if err := FirstFailure(second.Verify(ctx)); err != nil {
		t.Fatalf("verify after reopen: %v", err)
	}
}

func TestVerifyDetectsTamperedJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	first, err := Open(ctx, Config{DBPath: path}, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := first.Append(ctx, intent.Kind, []byte(reviewJSON)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec(
		`UPDATE ledger_records SET payload_json = json_set(payload_json, '$.description', 'Nothing to see') WHERE kind = 'intent'`,
	); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close raw db: %v", err)
	}

	m := metrics.New(prometheus.NewRegistry())
	second := openLedger(t, Config{DBPath: path}, Options{Metrics: m})
	results := second.Verify(ctx)
	if results[0].Kind != intent.Kind || results[0].ErrorCode() != apperrors.CodeHashMismatch {
		t.Fatalf("intent verification = %+v, want %s", results[0], apperrors.CodeHashMismatch)
	}
	for _, result := range results[1:] {
		if !result.OK() {
			t.Fatalf("%s verification failed: %v", result.Kind, result.Err)
		}
	}
	if got := testutil.ToFloat64(m.Verifications.WithLabelValues(intent.Kind, "HASH_MISMATCH")); got != 1 {
		t.Fatalf("hash mismatch verifications = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.HeadSeq.WithLabelValues(intent.Kind)); got != 1 {
		t.Fatalf("head seq = %v, want 1", got)
	}
}

func TestGuardTermsRejectAppends(t *testing.T) {
	l := openLedger(t, Config{GuardTerms: "spike"}, Options{})

	_, err := l.Append(context.Background(), intent.Kind, []byte(reviewJSON))
	if !apperrors.HasCode(err, apperrors.CodeBoundaryViolation) {
		t.Fatalf("append error = %v, want %s", err, apperrors.CodeBoundaryViolation)
	}
	if l.Intents.Len() != 0 {
		t.Fatalf("records = %d, want 0", l.Intents.Len())
	}
}

func TestAppendRejectsBadInput(t *testing.T) {
	l := openLedger(t, Config{}, Options{})
	ctx := context.Background()

	cases := []struct {
		name  string
		kind  string
		input string
	}{
		{name: "unknown kind", kind: "memo", input: `{}`},
		{name: "unknown field", kind: intent.Kind, input: `{"type":"REVIEW","owner":"x"}`},
		{name: "malformed json", kind: report.Kind, input: `{`},
		{name: "missing fields", kind: intent.Kind, input: `{"type":"REVIEW","created_at":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.Append(ctx, tc.kind, []byte(tc.input))
			if !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
				t.Fatalf("append error = %v, want %s", err, apperrors.CodeInvalidInput)
			}
		})
	}
}

func TestAcknowledgementConflictScenario(t *testing.T) {
	l := openLedger(t, Config{}, Options{})
	ctx := context.Background()

	if _, err := l.Append(ctx, "acknowledgement", []byte(`{"signal_id":"SIG-1","decision":"ACKNOWLEDGE","actor_id":"A","actor_role":"OPERATOR","created_at":100}`)); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	_, err := l.Append(ctx, "acknowledgement", []byte(`{"signal_id":"SIG-1","decision":"ESCALATE","actor_id":"A","actor_role":"OPERATOR","created_at":200}`))
	if !apperrors.HasCode(err, apperrors.CodeConflictingDecision) {
		t.Fatalf("escalate error = %v, want %s", err, apperrors.CodeConflictingDecision)
	}
	if _, err := l.Append(ctx, "acknowledgement", []byte(`{"signal_id":"SIG-1","decision":"ESCALATE","actor_id":"B","actor_role":"OPERATOR","created_at":300}`)); err != nil {
		t.Fatalf("escalate by another actor: %v", err)
	}
}

func TestListAndListJournalAgree(t *testing.T) {
	l := openLedger(t, Config{DBPath: filepath.Join(t.TempDir(), "ledger.db")}, Options{})
	ctx := context.Background()

	inputs := []string{
		`{"classification":"INCIDENT","outcome":"CONFIRMED","reported_by":"OP1","subject":"SIG-1","summary":"a","evidence_refs":["E1"],"created_at":100}`,
		`{"classification":"OBSERVATION","outcome":"INCONCLUSIVE","reported_by":"OP2","subject":"SIG-2","summary":"b","created_at":200}`,
		`{"classification":"INCIDENT","outcome":"REFUTED","reported_by":"OP2","subject":"SIG-3","summary":"c","evidence_refs":["E2"],"created_at":300}`,
	}
	for _, in := range inputs {
		if _, err := l.Append(ctx, report.Kind, []byte(in)); err != nil {
			t.Fatalf("append %s: %v", in, err)
		}
	}

	q := registry.Query{Filter: `classification = "INCIDENT" AND actor = "OP2"`}
	page, err := l.List(report.Kind, q)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	journal, err := l.ListJournal(ctx, report.Kind, q)
	if err != nil {
		t.Fatalf("list journal: %v", err)
	}
	if page.Total != 1 || journal.Total != 1 || len(journal.Entries) != 1 {
		t.Fatalf("matches = memory %d journal %d, want 1", page.Total, journal.Total)
	}
	if journal.Entries[0].RecordID != page.Records[0].(report.Record).ID {
		t.Fatalf("journal id = %s, memory id = %s", journal.Entries[0].RecordID, page.Records[0].(report.Record).ID)
	}

	if _, err := l.ListJournal(ctx, report.Kind, registry.Query{Filter: `owner = "x"`}); !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("bad filter error = %v, want %s", err, apperrors.CodeInvalidInput)
	}
	if _, err := l.List("memo", registry.Query{}); !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("unknown kind error = %v, want %s", err, apperrors.CodeInvalidInput)
	}
}

func TestListJournalTreatsOmittedFieldsAsEmpty(t *testing.T) {
	l := openLedger(t, Config{DBPath: filepath.Join(t.TempDir(), "ledger.db")}, Options{})
	ctx := context.Background()

	inputs := []string{
		`{"type":"REVIEW","issued_by":"OP1","description":"no subject","evidence_refs":["E1"],"created_at":100}`,
		`{"type":"REVIEW","issued_by":"OP1","subject":"S1","description":"with subject","evidence_refs":["E1"],"created_at":200}`,
	}
	for _, in := range inputs {
		if _, err := l.Append(ctx, intent.Kind, []byte(in)); err != nil {
			t.Fatalf("append %s: %v", in, err)
		}
	}

	exprs := []string{
		`subject = ""`,
		`subject != "S1"`,
		`NOT subject = "S1"`,
		`subject = "S1"`,
	}
	for _, expr := range exprs {
		q := registry.Query{Filter: expr}
		page, err := l.List(intent.Kind, q)
		if err != nil {
			t.Fatalf("list %q: %v", expr, err)
		}
		journal, err := l.ListJournal(ctx, intent.Kind, q)
		if err != nil {
			t.Fatalf("list journal %q: %v", expr, err)
		}
		if page.Total != 1 || journal.Total != 1 {
			t.Fatalf("%q: memory=%d journal=%d, want 1", expr, page.Total, journal.Total)
		}
		if got, want := journal.Entries[0].RecordID, page.Records[0].(intent.Record).ID; got != want {
			t.Fatalf("%q: journal id = %s, memory id = %s", expr, got, want)
		}
	}
}

func TestSyncLoadsRecordsFromAnotherWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()
	reader := openLedger(t, Config{DBPath: path}, Options{})
	writer := openLedger(t, Config{DBPath: path}, Options{})

	if err := reader.Sync(ctx); err != nil {
		t.Fatalf("sync empty: %v", err)
	}
	if _, err := writer.Append(ctx, intent.Kind, []byte(reviewJSON)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := reader.Get(intent.Kind, "INT-REVIEW-OP1-100"); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("get before sync error = %v, want %s", err, apperrors.CodeNotFound)
	}

	if err := reader.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := reader.Sync(ctx); err != nil {
		t.Fatalf("repeat sync: %v", err)
	}
	if reader.Intents.Len() != 1 || reader.Intents.HeadHash() != writer.Intents.HeadHash() {
		t.Fatalf("reader = len %d head %q, want len 1 head %q", reader.Intents.Len(), reader.Intents.HeadHash(), writer.Intents.HeadHash())
	}
	if err := FirstFailure(reader.Verify(ctx)); err != nil {
		t.Fatalf("verify after sync: %v", err)
	}

	memoryOnly := openLedger(t, Config{}, Options{})
	if err := memoryOnly.Sync(ctx); err != nil {
		t.Fatalf("sync without journal: %v", err)
	}
}

func TestListJournalRequiresStorage(t *testing.T) {
	l := openLedger(t, Config{}, Options{})
	if l.Persistent() {
		t.Fatal("expected in-memory ledger")
	}
	_, err := l.ListJournal(context.Background(), intent.Kind, registry.Query{})
	if !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("list journal error = %v, want %s", err, apperrors.CodeInvalidInput)
	}
}

func TestStats(t *testing.T) {
	l := openLedger(t, Config{Hasher: "sha256"}, Options{})
	if _, err := l.Append(context.Background(), intent.Kind, []byte(reviewJSON)); err != nil {
		t.Fatalf("append: %v", err)
	}

	stats, err := l.Stats(intent.Kind)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("stats = %d entries, want 1", len(stats))
	}
	got := stats[0]
	if got.Records != 1 || got.Hasher != chain.HasherSHA256 || got.Distinct[registry.IndexSubject] != 1 {
		t.Fatalf("stats = %+v", got)
	}

	all, err := l.Stats("")
	if err != nil {
		t.Fatalf("stats all: %v", err)
	}
	if len(all) != len(l.Kinds()) {
		t.Fatalf("stats all = %d entries, want %d", len(all), len(l.Kinds()))
	}
	if _, err := l.Stats("memo"); !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("unknown kind error = %v, want %s", err, apperrors.CodeInvalidInput)
	}
}

func TestOpenTracesPhases(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	l := openLedger(t, Config{DBPath: filepath.Join(t.TempDir(), "ledger.db")}, Options{Tracer: provider.Tracer("test")})
	if _, err := l.Append(context.Background(), intent.Kind, []byte(reviewJSON)); err != nil {
		t.Fatalf("append: %v", err)
	}
	l.Verify(context.Background())

	names := map[string]bool{}
	for _, span := range recorder.Ended() {
		names[span.Name()] = true
	}
	for _, want := range []string{"ledger.open", "ledger.replay", "ledger.append", "ledger.verify"} {
		if !names[want] {
			t.Fatalf("missing span %s in %v", want, names)
		}
	}
}
