package knowledge

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/config"
)

// Neo4jClient manages a pooled connection to a Neo4j instance.
type Neo4jClient struct {
	driver   neo4j.DriverWithContext
	database string
}

// Neo4jConfig holds Neo4j connection parameters.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
	Timeout  time.Duration
}

// Neo4jConfigFromEnv reads Neo4j connection parameters from the environment.
// Absence of these variables is not an error: a caller that wants the graph
// ranker disabled simply never calls NewNeo4jClient.
func Neo4jConfigFromEnv() Neo4jConfig {
	cfg := Neo4jConfig{
		URI:      getEnvOr("SMRITI_NEO4J_URI", "bolt://localhost:7687"),
		Username: getEnvOr("SMRITI_NEO4J_USERNAME", "neo4j"),
		Password: getEnvOr("SMRITI_NEO4J_PASSWORD", "password"),
		Database: getEnvOr("SMRITI_NEO4J_DATABASE", "neo4j"),
		Timeout:  5 * time.Second,
	}
	if ms := os.Getenv("SMRITI_NEO4J_TIMEOUT_MS"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 {
			cfg.Timeout = time.Duration(v) * time.Millisecond
		}
	}
	return cfg
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewNeo4jClient dials and verifies connectivity to a Neo4j instance.
func NewNeo4jClient(cfg Neo4jConfig) (*Neo4jClient, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *config.Config) {
			c.MaxConnectionPoolSize = 50
			c.ConnectionAcquisitionTimeout = cfg.Timeout
			c.SocketConnectTimeout = cfg.Timeout
		},
	)
	if err != nil {
		return nil, fmt.Errorf("knowledge: failed to create neo4j driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("knowledge: failed to verify neo4j connectivity: %w", err)
	}

	return &Neo4jClient{driver: driver, database: cfg.Database}, nil
}

// Close releases the underlying driver's connection pool. A nil client
// closes as a no-op, matching the rest of this package's "nil means
// disabled" convention.
func (c *Neo4jClient) Close(ctx context.Context) error {
	if c == nil || c.driver == nil {
		return nil
	}
	return c.driver.Close(ctx)
}

func (c *Neo4jClient) executeWrite(ctx context.Context, work neo4j.ManagedTransactionWork) (interface{}, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database, AccessMode: neo4j.AccessModeWrite})
	defer func() { _ = session.Close(ctx) }()
	return session.ExecuteWrite(ctx, work)
}

func (c *Neo4jClient) executeRead(ctx context.Context, work neo4j.ManagedTransactionWork) (interface{}, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database, AccessMode: neo4j.AccessModeRead})
	defer func() { _ = session.Close(ctx) }()
	return session.ExecuteRead(ctx, work)
}
