package mcpserver

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	serverName = "oversight-ledger"
	// serverVersion identifies the MCP server version.
	serverVersion = "0.1.0"
)

// Server hosts the read-only ledger MCP server.
type Server struct {
	mcpServer *mcp.Server
}

// New registers the ledger tools. Tool errors are rendered in locale.
func New(ledger Ledger, locale string) *Server {
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)

	mcp.AddTool(mcpServer, RecordGetTool(), RecordGetHandler(ledger, locale))
	mcp.AddTool(mcpServer, RecordListTool(), RecordListHandler(ledger, locale))
	mcp.AddTool(mcpServer, ChainVerifyTool(), ChainVerifyHandler(ledger, locale))
	mcp.AddTool(mcpServer, RegistryStatsTool(), RegistryStatsHandler(ledger, locale))

	return &Server{mcpServer: mcpServer}
}

// Serve starts the MCP server on stdio and blocks until it stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	return s.ServeTransport(ctx, &mcp.StdioTransport{})
}

// ServeTransport runs the server over transport. Context cancellation is a
// clean stop.
func (s *Server) ServeTransport(ctx context.Context, transport mcp.Transport) error {
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
