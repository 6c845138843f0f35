package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/status"

	apperrors "github.com/louisbranch/oversight/internal/platform/errors"
	"github.com/louisbranch/oversight/internal/services/ledger/app"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/registry"
)

// Ledger is the read surface the tools need.
type Ledger interface {
	Get(kind, id string) (any, error)
	List(kind string, q registry.Query) (app.RecordPage, error)
	ListJournal(ctx context.Context, kind string, q registry.Query) (registry.EntryPage, error)
	Verify(ctx context.Context) []app.Verification
	Stats(kind string) ([]app.Stats, error)
	// Sync loads records journaled by other processes since the last call.
	Sync(ctx context.Context) error
}

// NewInvocationID generates an identifier for one tool call.
func NewInvocationID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// RecordGetInput represents the MCP tool input for fetching a record.
type RecordGetInput struct {
	Kind string `json:"kind" jsonschema:"registry kind: intent, report or acknowledgement"`
	ID   string `json:"id" jsonschema:"record identifier, e.g. INT-REVIEW-OP1-100"`
}

// RecordGetResult represents the MCP tool output for fetching a record.
type RecordGetResult struct {
	InvocationID string `json:"invocation_id" jsonschema:"identifier of this tool call"`
	Record       any    `json:"record" jsonschema:"the committed record"`
}

// RecordGetTool defines the MCP tool schema for fetching a record.
func RecordGetTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "record_get",
		Description: "Returns one committed ledger record by kind and identifier, including records appended by other processes since the server started.",
	}
}

// RecordGetHandler executes a record lookup.
func RecordGetHandler(ledger Ledger, locale string) mcp.ToolHandlerFor[RecordGetInput, RecordGetResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input RecordGetInput) (*mcp.CallToolResult, RecordGetResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, RecordGetResult{}, fmt.Errorf("generate invocation id: %w", err)
		}
		if err := ledger.Sync(ctx); err != nil {
			return nil, RecordGetResult{}, toolError(err, locale)
		}
		rec, err := ledger.Get(input.Kind, input.ID)
		if err != nil {
			return nil, RecordGetResult{}, toolError(err, locale)
		}
		return nil, RecordGetResult{InvocationID: invocationID, Record: rec}, nil
	}
}

// RecordListInput represents the MCP tool input for listing records.
type RecordListInput struct {
	Kind   string `json:"kind" jsonschema:"registry kind: intent, report or acknowledgement"`
	Filter string `json:"filter,omitempty" jsonschema:"AIP-160 filter over id, seq, created_at, actor, subject, classification, outcome"`
	From   int64  `json:"from,omitempty" jsonschema:"inclusive lower bound on created_at"`
	To     int64  `json:"to,omitempty" jsonschema:"inclusive upper bound on created_at"`
	Offset int    `json:"offset,omitempty" jsonschema:"number of matches to skip"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of records to return"`
	Source string `json:"source,omitempty" jsonschema:"memory (default) or journal to evaluate the filter in SQLite"`
}

// JournalEntry is a stored journal row.
type JournalEntry struct {
	Seq       uint64         `json:"seq"`
	RecordID  string         `json:"record_id"`
	PrevHash  string         `json:"prev_hash"`
	Hash      string         `json:"hash"`
	CreatedAt int64          `json:"created_at"`
	Payload   map[string]any `json:"payload"`
}

// RecordListResult represents the MCP tool output for listing records.
type RecordListResult struct {
	InvocationID string         `json:"invocation_id" jsonschema:"identifier of this tool call"`
	Records      []any          `json:"records,omitempty" jsonschema:"matching records in seq order"`
	Entries      []JournalEntry `json:"entries,omitempty" jsonschema:"matching journal rows when source is journal"`
	Total        int            `json:"total" jsonschema:"number of matches before offset and limit"`
}

// RecordListTool defines the MCP tool schema for listing records.
func RecordListTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "record_list",
		Description: "Lists committed records of one kind in seq order with optional time window, paging and AIP-160 filter.",
	}
}

// RecordListHandler executes a record listing.
func RecordListHandler(ledger Ledger, locale string) mcp.ToolHandlerFor[RecordListInput, RecordListResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input RecordListInput) (*mcp.CallToolResult, RecordListResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, RecordListResult{}, fmt.Errorf("generate invocation id: %w", err)
		}
		q := registry.Query{
			From:   input.From,
			To:     input.To,
			Offset: input.Offset,
			Limit:  input.Limit,
			Filter: input.Filter,
		}

		switch input.Source {
		case "", "memory":
			if err := ledger.Sync(ctx); err != nil {
				return nil, RecordListResult{}, toolError(err, locale)
			}
			page, err := ledger.List(input.Kind, q)
			if err != nil {
				return nil, RecordListResult{}, toolError(err, locale)
			}
			return nil, RecordListResult{InvocationID: invocationID, Records: page.Records, Total: page.Total}, nil
		case "journal":
			page, err := ledger.ListJournal(ctx, input.Kind, q)
			if err != nil {
				return nil, RecordListResult{}, toolError(err, locale)
			}
			result := RecordListResult{InvocationID: invocationID, Total: page.Total}
			for _, entry := range page.Entries {
				var payload map[string]any
				if err := json.Unmarshal(entry.Payload, &payload); err != nil {
					return nil, RecordListResult{}, fmt.Errorf("decode payload of %s: %w", entry.RecordID, err)
				}
				result.Entries = append(result.Entries, JournalEntry{
					Seq:       entry.Seq,
					RecordID:  entry.RecordID,
					PrevHash:  entry.PrevHash,
					Hash:      entry.Hash,
					CreatedAt: entry.CreatedAt,
					Payload:   payload,
				})
			}
			return nil, result, nil
		default:
			return nil, RecordListResult{}, fmt.Errorf("source %q is not supported", input.Source)
		}
	}
}

// ChainVerifyInput represents the MCP tool input for verifying chains.
type ChainVerifyInput struct {
	Kind string `json:"kind,omitempty" jsonschema:"registry kind to report; all kinds when empty"`
}

// ChainVerifyEntry is the verification result of one kind.
type ChainVerifyEntry struct {
	Kind    string `json:"kind"`
	Records int    `json:"records"`
	Head    string `json:"head"`
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ChainVerifyResult represents the MCP tool output for verifying chains.
type ChainVerifyResult struct {
	InvocationID string             `json:"invocation_id" jsonschema:"identifier of this tool call"`
	OK           bool               `json:"ok" jsonschema:"true when every reported chain verifies"`
	Results      []ChainVerifyEntry `json:"results" jsonschema:"per-kind verification results"`
}

// ChainVerifyTool defines the MCP tool schema for verifying chains.
func ChainVerifyTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "chain_verify",
		Description: "Recomputes every record hash and checks chain linkage, reporting the first violation per kind.",
	}
}

// ChainVerifyHandler executes a chain verification.
func ChainVerifyHandler(ledger Ledger, locale string) mcp.ToolHandlerFor[ChainVerifyInput, ChainVerifyResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ChainVerifyInput) (*mcp.CallToolResult, ChainVerifyResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, ChainVerifyResult{}, fmt.Errorf("generate invocation id: %w", err)
		}
		// Integrity errors from the sync resurface in the verification below.
		if err := ledger.Sync(ctx); err != nil && apperrors.CodeOf(err) == apperrors.CodeUnknown {
			return nil, ChainVerifyResult{}, toolError(err, locale)
		}

		result := ChainVerifyResult{InvocationID: invocationID, OK: true}
		for _, v := range ledger.Verify(ctx) {
			if input.Kind != "" && v.Kind != input.Kind {
				continue
			}
			entry := ChainVerifyEntry{Kind: v.Kind, Records: v.Records, Head: v.Head, OK: v.OK()}
			if !v.OK() {
				entry.Code = string(v.ErrorCode())
				entry.Message = apperrors.Localize(v.Err, locale)
				result.OK = false
			}
			result.Results = append(result.Results, entry)
		}
		if input.Kind != "" && len(result.Results) == 0 {
			return nil, ChainVerifyResult{}, fmt.Errorf("unknown kind %q", input.Kind)
		}
		return nil, result, nil
	}
}

// RegistryStatsInput represents the MCP tool input for registry stats.
type RegistryStatsInput struct {
	Kind string `json:"kind,omitempty" jsonschema:"registry kind; all kinds when empty"`
}

// RegistryStatsResult represents the MCP tool output for registry stats.
type RegistryStatsResult struct {
	InvocationID string      `json:"invocation_id" jsonschema:"identifier of this tool call"`
	Stats        []app.Stats `json:"stats" jsonschema:"record counts, head hash and distinct index keys per kind"`
}

// RegistryStatsTool defines the MCP tool schema for registry stats.
func RegistryStatsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "registry_stats",
		Description: "Summarizes each registry: record count, head hash, hasher and distinct keys per index.",
	}
}

// RegistryStatsHandler executes a stats request.
func RegistryStatsHandler(ledger Ledger, locale string) mcp.ToolHandlerFor[RegistryStatsInput, RegistryStatsResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input RegistryStatsInput) (*mcp.CallToolResult, RegistryStatsResult, error) {
		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, RegistryStatsResult{}, fmt.Errorf("generate invocation id: %w", err)
		}
		if err := ledger.Sync(ctx); err != nil {
			return nil, RegistryStatsResult{}, toolError(err, locale)
		}
		stats, err := ledger.Stats(input.Kind)
		if err != nil {
			return nil, RegistryStatsResult{}, toolError(err, locale)
		}
		return nil, RegistryStatsResult{InvocationID: invocationID, Stats: stats}, nil
	}
}

// toolError renders err as "CODE: localized message" from the same status a
// gRPC caller would receive. Errors without a domain code surface only as
// INTERNAL.
func toolError(err error, locale string) error {
	st := status.Convert(apperrors.HandleError(err, locale))
	reason, message := strings.ToUpper(st.Code().String()), st.Message()
	for _, detail := range st.Details() {
		switch d := detail.(type) {
		case *errdetails.ErrorInfo:
			reason = d.GetReason()
		case *errdetails.LocalizedMessage:
			message = d.GetMessage()
		}
	}
	return fmt.Errorf("%s: %s", reason, message)
}
