package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/oversight/internal/services/ledger/app"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/registry"
)

func newTestLedger(t *testing.T) *app.Ledger {
	t.Helper()
	l, err := app.Open(context.Background(), app.Config{DBPath: filepath.Join(t.TempDir(), "ledger.db")}, app.Options{})
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })

	inputs := map[string][]string{
		"intent": {
			`{"type":"REVIEW","issued_by":"OP1","subject":"SIG-7","description":"Review","evidence_refs":["E1"],"created_at":100}`,
			`{"type":"REVIEW","issued_by":"OP1","subject":"SIG-8","description":"Review","evidence_refs":["E2"],"created_at":200}`,
		},
		"acknowledgement": {
			`{"signal_id":"SIG-7","decision":"ACKNOWLEDGE","actor_id":"A","actor_role":"OPERATOR","created_at":300}`,
		},
	}
	for kind, list := range inputs {
		for _, in := range list {
			if _, err := l.Append(context.Background(), kind, []byte(in)); err != nil {
				t.Fatalf("append %s: %v", kind, err)
			}
		}
	}
	return l
}

func connect(t *testing.T, ledger Ledger) *mcp.ClientSession {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	server := New(ledger, "en-US")
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ServeTransport(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		cancel()
		t.Fatalf("connect client: %v", err)
	}
	t.Cleanup(func() {
		_ = session.Close()
		cancel()
		select {
		case err := <-serveErr:
			if err != nil {
				t.Errorf("serve returned error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("server did not stop after cancel")
		}
	})
	return session
}

func callTool[T any](t *testing.T, session *mcp.ClientSession, name string, args map[string]any) (T, *mcp.CallToolResult) {
	t.Helper()
	var out T
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	if result.IsError {
		return out, result
	}
	data, err := json.Marshal(result.StructuredContent)
	if err != nil {
		t.Fatalf("marshal %s result: %v", name, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %s result: %v", name, err)
	}
	return out, result
}

func errorText(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, " ")
}

func TestListToolsIsReadOnly(t *testing.T) {
	session := connect(t, newTestLedger(t))

	tools, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	names := map[string]bool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"record_get", "record_list", "chain_verify", "registry_stats"} {
		if !names[want] {
			t.Fatalf("missing tool %s in %v", want, names)
		}
	}
	if len(names) != 4 {
		t.Fatalf("tools = %v, want exactly 4", names)
	}
}

func TestRecordGet(t *testing.T) {
	session := connect(t, newTestLedger(t))

	got, _ := callTool[struct {
		InvocationID string         `json:"invocation_id"`
		Record       map[string]any `json:"record"`
	}](t, session, "record_get", map[string]any{"kind": "intent", "id": "INT-REVIEW-OP1-100"})
	if got.InvocationID == "" {
		t.Fatal("expected invocation id")
	}
	if got.Record["id"] != "INT-REVIEW-OP1-100" {
		t.Fatalf("record id = %v, want %q", got.Record["id"], "INT-REVIEW-OP1-100")
	}

	_, result := callTool[RecordGetResult](t, session, "record_get", map[string]any{"kind": "intent", "id": "INT-NOPE"})
	if !result.IsError {
		t.Fatal("expected tool error for missing record")
	}
	if text := errorText(result); !strings.Contains(text, "NOT_FOUND") {
		t.Fatalf("error text = %q, want NOT_FOUND", text)
	}
}

func TestRecordListSources(t *testing.T) {
	session := connect(t, newTestLedger(t))

	memory, _ := callTool[RecordListResult](t, session, "record_list", map[string]any{
		"kind":   "intent",
		"filter": `subject = "SIG-8"`,
	})
	if memory.Total != 1 || len(memory.Records) != 1 {
		t.Fatalf("memory total = %d records = %d, want 1", memory.Total, len(memory.Records))
	}

	journal, _ := callTool[RecordListResult](t, session, "record_list", map[string]any{
		"kind":   "intent",
		"filter": `subject = "SIG-8"`,
		"source": "journal",
	})
	if journal.Total != 1 || len(journal.Entries) != 1 {
		t.Fatalf("journal total = %d entries = %d, want 1", journal.Total, len(journal.Entries))
	}
	if journal.Entries[0].RecordID != "INT-REVIEW-OP1-200" || journal.Entries[0].Payload["subject"] != "SIG-8" {
		t.Fatalf("journal entry = %+v", journal.Entries[0])
	}

	paged, _ := callTool[RecordListResult](t, session, "record_list", map[string]any{
		"kind":  "intent",
		"limit": 1,
	})
	if paged.Total != 2 || len(paged.Records) != 1 {
		t.Fatalf("paged total = %d records = %d, want 2 and 1", paged.Total, len(paged.Records))
	}

	_, result := callTool[RecordListResult](t, session, "record_list", map[string]any{"kind": "intent", "source": "cache"})
	if !result.IsError {
		t.Fatal("expected tool error for unknown source")
	}
}

func TestChainVerifyAndStats(t *testing.T) {
	session := connect(t, newTestLedger(t))

	verified, _ := callTool[ChainVerifyResult](t, session, "chain_verify", map[string]any{})
	if !verified.OK || len(verified.Results) != 3 {
		t.Fatalf("verify = %+v, want ok with 3 results", verified)
	}

	single, _ := callTool[ChainVerifyResult](t, session, "chain_verify", map[string]any{"kind": "acknowledgement"})
	if len(single.Results) != 1 || single.Results[0].Records != 1 {
		t.Fatalf("verify acknowledgement = %+v", single)
	}

	stats, _ := callTool[RegistryStatsResult](t, session, "registry_stats", map[string]any{"kind": "intent"})
	if len(stats.Stats) != 1 || stats.Stats[0].Records != 2 || stats.Stats[0].Hasher != "rolling" {
		t.Fatalf("stats = %+v", stats)
	}

	_, result := callTool[RegistryStatsResult](t, session, "registry_stats", map[string]any{"kind": "memo"})
	if !result.IsError {
		t.Fatal("expected tool error for unknown kind")
	}
	if text := errorText(result); !strings.Contains(text, "INVALID_INPUT") {
		t.Fatalf("error text = %q, want INVALID_INPUT", text)
	}
}

func TestRecordListJournalPagesLikeMemory(t *testing.T) {
	session := connect(t, newTestLedger(t))

	queries := []map[string]any{
		{"kind": "intent", "limit": 1},
		{"kind": "intent", "offset": 1},
		{"kind": "intent", "from": 150},
		{"kind": "intent", "to": 150},
		{"kind": "intent", "filter": `actor = "OP1"`, "offset": 1, "limit": 1},
		{"kind": "intent", "from": 100, "to": 200, "offset": 5},
	}
	for _, args := range queries {
		memory, _ := callTool[RecordListResult](t, session, "record_list", args)
		journalArgs := maps.Clone(args)
		journalArgs["source"] = "journal"
		journal, _ := callTool[RecordListResult](t, session, "record_list", journalArgs)

		if memory.Total != journal.Total || len(memory.Records) != len(journal.Entries) {
			t.Fatalf("%v: memory total %d records %d, journal total %d entries %d",
				args, memory.Total, len(memory.Records), journal.Total, len(journal.Entries))
		}
		for i, rec := range memory.Records {
			if id := rec.(map[string]any)["id"]; id != journal.Entries[i].RecordID {
				t.Fatalf("%v: memory[%d] = %v, journal[%d] = %s", args, i, id, i, journal.Entries[i].RecordID)
			}
		}
	}

	paged, _ := callTool[RecordListResult](t, session, "record_list", map[string]any{"kind": "intent", "source": "journal", "limit": 1})
	if paged.Total != 2 || len(paged.Entries) != 1 || paged.Entries[0].RecordID != "INT-REVIEW-OP1-100" {
		t.Fatalf("journal page = total %d entries %+v, want first of 2", paged.Total, paged.Entries)
	}

	_, result := callTool[RecordListResult](t, session, "record_list", map[string]any{"kind": "intent", "source": "journal", "from": 300, "to": 100})
	if !result.IsError || !strings.Contains(errorText(result), "INVALID_INPUT") {
		t.Fatalf("inverted window result = %q, want INVALID_INPUT", errorText(result))
	}
}

func TestReadsIncludeRecordsAppendedByAnotherProcess(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	open := func() *app.Ledger {
		l, err := app.Open(ctx, app.Config{DBPath: path}, app.Options{})
		if err != nil {
			t.Fatalf("open ledger: %v", err)
		}
		t.Cleanup(func() { _ = l.Close() })
		return l
	}
	session := connect(t, open())
	writer := open()

	if _, err := writer.Append(ctx, "intent", []byte(`{"type":"HOLD","issued_by":"OP2","description":"Hold","evidence_refs":["E9"],"created_at":500}`)); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, result := callTool[RecordGetResult](t, session, "record_get", map[string]any{"kind": "intent", "id": "INT-HOLD-OP2-500"})
	if result.IsError {
		t.Fatalf("record_get error: %s", errorText(result))
	}
	if got.Record == nil {
		t.Fatal("expected record")
	}

	listed, _ := callTool[RecordListResult](t, session, "record_list", map[string]any{"kind": "intent"})
	if listed.Total != 1 {
		t.Fatalf("memory total = %d, want 1", listed.Total)
	}
	stats, _ := callTool[RegistryStatsResult](t, session, "registry_stats", map[string]any{"kind": "intent"})
	if stats.Stats[0].Records != 1 {
		t.Fatalf("stats records = %d, want 1", stats.Stats[0].Records)
	}
	verified, _ := callTool[ChainVerifyResult](t, session, "chain_verify", map[string]any{"kind": "intent"})
	if !verified.OK || verified.Results[0].Records != 1 {
		t.Fatalf("verify = %+v", verified)
	}
}

type brokenLedger struct{}

func (brokenLedger) Get(string, string) (any, error) {
	return nil, errors.New("disk I/O error at /var/lib/oversight.db")
}

func (brokenLedger) List(string, registry.Query) (app.RecordPage, error) {
	return app.RecordPage{}, nil
}

func (brokenLedger) ListJournal(context.Context, string, registry.Query) (registry.EntryPage, error) {
	return registry.EntryPage{}, nil
}

func (brokenLedger) Sync(context.Context) error { return nil }

func (brokenLedger) Verify(context.Context) []app.Verification { return nil }

func (brokenLedger) Stats(string) ([]app.Stats, error) { return nil, nil }

func TestToolErrorHidesInternalDetails(t *testing.T) {
	session := connect(t, brokenLedger{})

	_, result := callTool[RecordGetResult](t, session, "record_get", map[string]any{"kind": "intent", "id": "INT-X"})
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	text := errorText(result)
	if !strings.Contains(text, "INTERNAL") {
		t.Fatalf("error text = %q, want INTERNAL", text)
	}
	if strings.Contains(text, "/var/lib") {
		t.Fatalf("error text = %q leaks internal detail", text)
	}
}
