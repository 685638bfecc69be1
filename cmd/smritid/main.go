// Package main provides the entry point for smritid, the Smriti memory
// engine's MCP server.
//
// smritid is designed to be spawned as a child process by an MCP client and
// communicates via stdio. It exposes the consumer-facing query surface of
// spec.md §6 — recall, hybrid search, feedback, Vasana's write operations,
// one Svapna consolidation cycle, and temporal search — as MCP tools; it does not itself
// decide when to run a consolidation cycle or which CLI/slash-command
// wraps it.
//
// Environment variables:
//   - DEBUG: set to "true" to enable debug logging (file/line prefixes)
//   - SMRITI_CONFIG_FILE: path to a JSON config file, layered under the
//     SMRITI_ environment namespace (see internal/config)
//   - SMRITI_NEO4J_ENABLED: set to "true" to enable the GraphRAG ranker
package main

import (
	"context"
	"log"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"smriti/internal/config"
)

func main() {
	if os.Getenv("DEBUG") == "true" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
		log.Println("smritid: starting in debug mode")
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("smritid: failed to load configuration: %v", err)
	}
	log.Printf("smritid: configuration loaded (home=%s, storage=%s)", cfg.Home, cfg.Storage.Type)

	components, err := Initialize(cfg)
	if err != nil {
		log.Fatalf("smritid: failed to initialize: %v", err)
	}
	defer func() {
		if err := components.Close(); err != nil {
			log.Printf("smritid: warning: failed to close components: %v", err)
		}
	}()

	srv := NewServer(components)

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "smritid",
		Version: cfg.Server.Version,
	}, nil)
	log.Println("smritid: created MCP server")

	srv.RegisterTools(mcpServer)
	log.Println("smritid: registered tools: recall, hybrid-search, record-feedback, vasana-observe, vasana-crystallize, vasana-decay, vasana-promote, svapna-run, temporal-search")

	transport := &mcp.StdioTransport{}
	ctx := context.Background()
	log.Println("smritid: starting MCP server...")
	if err := mcpServer.Run(ctx, transport); err != nil {
		log.Fatalf("smritid: server error: %v", err)
	}
}

// loadConfig layers SMRITI_CONFIG_FILE over defaults and the environment.
func loadConfig() (*config.Config, error) {
	if path := os.Getenv("SMRITI_CONFIG_FILE"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}
