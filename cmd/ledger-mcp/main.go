package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/louisbranch/oversight/internal/cmd/ledgermcp"
)

// main starts the read-only ledger MCP server on stdio.
func main() {
	cfg, err := ledgermcp.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	// stdout carries the MCP protocol; logs go to stderr.
	log.SetOutput(os.Stderr)
	log.SetPrefix("[LEDGER-MCP] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ledgermcp.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve MCP: %v", err)
	}
}
