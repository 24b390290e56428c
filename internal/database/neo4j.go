package database

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"multinet/internal/config"
	"multinet/pkg/logger"
)

func ConnectNeo4j(ctx context.Context, cfg config.Neo4jConfig) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.User, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify neo4j connectivity: %w", err)
	}

	logger.Get().Info("connected to neo4j", zap.String("uri", cfg.URI))
	return driver, nil
}

var neo4jSchema = []string{
	"CREATE CONSTRAINT namespace_name IF NOT EXISTS FOR (n:Namespace) REQUIRE n.name IS UNIQUE",
	"CREATE INDEX row_location IF NOT EXISTS FOR (r:Row) ON (r.namespace, r.collection, r.key)",
	"CREATE INDEX collection_location IF NOT EXISTS FOR (c:Collection) ON (c.namespace, c.name)",
	"CREATE INDEX graphdef_location IF NOT EXISTS FOR (g:GraphDef) ON (g.namespace, g.name)",
}

// EnsureNeo4jSchema creates the constraints and indexes the graph store
// relies on. Statements are idempotent.
func EnsureNeo4jSchema(ctx context.Context, driver neo4j.DriverWithContext, database string) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: database})
	defer session.Close(ctx)

	for _, stmt := range neo4jSchema {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("failed to apply neo4j schema %q: %w", stmt, err)
		}
	}
	return nil
}
