package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"multinet/pkg/logger"
)

func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	log := logger.Get()

	migrations := []string{
		createEnumTypes,
		createWorkspacesTable,
		createTablesTable,
		createGraphsTable,
		createGraphNodeTablesTable,
		createUploadsTable,
		createQueryHistoryTable,
	}

	for i, migration := range migrations {
		log.Debug("running migration", zap.Int("step", i+1), zap.Int("total", len(migrations)))
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Info("migrations completed", zap.Int("count", len(migrations)))
	return nil
}

const createEnumTypes = `
DO $$
BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'table_kind_t') THEN
    CREATE TYPE table_kind_t AS ENUM ('plain', 'node', 'edge');
  END IF;
END$$;
`

const createWorkspacesTable = `
CREATE TABLE IF NOT EXISTS workspaces (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  name TEXT NOT NULL UNIQUE,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

const createTablesTable = `
CREATE TABLE IF NOT EXISTS tables (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  workspace_id UUID NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  kind table_kind_t NOT NULL DEFAULT 'plain',
  columns JSONB NOT NULL DEFAULT '[]'::jsonb,
  row_count BIGINT NOT NULL DEFAULT 0,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  UNIQUE (workspace_id, name)
);

CREATE INDEX IF NOT EXISTS idx_tables_workspace_id ON tables(workspace_id);
`

// Graph rows reference tables with NO ACTION so a referenced table can never
// be removed from under a graph, while a workspace cascade (which drops
// graphs in the same statement) still succeeds.
const createGraphsTable = `
CREATE TABLE IF NOT EXISTS graphs (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  workspace_id UUID NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  edge_table_id UUID NOT NULL REFERENCES tables(id) ON DELETE NO ACTION,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  UNIQUE (workspace_id, name)
);

CREATE INDEX IF NOT EXISTS idx_graphs_edge_table_id ON graphs(edge_table_id);
`

const createGraphNodeTablesTable = `
CREATE TABLE IF NOT EXISTS graph_node_tables (
  graph_id UUID NOT NULL REFERENCES graphs(id) ON DELETE CASCADE,
  table_id UUID NOT NULL REFERENCES tables(id) ON DELETE NO ACTION,
  PRIMARY KEY (graph_id, table_id)
);

CREATE INDEX IF NOT EXISTS idx_graph_node_tables_table_id ON graph_node_tables(table_id);
`

const createUploadsTable = `
CREATE TABLE IF NOT EXISTS uploads (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  workspace_id UUID NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
  principal TEXT,
  data_type TEXT NOT NULL,
  target_name TEXT NOT NULL,
  blob_ref TEXT NOT NULL,
  options JSONB,
  status TEXT NOT NULL DEFAULT 'pending',
  error_messages JSONB,
  issues JSONB,
  attempt_count INT NOT NULL DEFAULT 0,
  started_at TIMESTAMP WITH TIME ZONE,
  completed_at TIMESTAMP WITH TIME ZONE,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_uploads_workspace_id ON uploads(workspace_id);
CREATE INDEX IF NOT EXISTS idx_uploads_status ON uploads(status);
`

const createQueryHistoryTable = `
CREATE TABLE IF NOT EXISTS query_history (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  workspace_id UUID NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
  principal TEXT NOT NULL DEFAULT '',
  query_text TEXT NOT NULL,
  executed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  success BOOLEAN,
  execution_time_ms INT
);

CREATE INDEX IF NOT EXISTS idx_query_history_workspace_id ON query_history(workspace_id);
CREATE INDEX IF NOT EXISTS idx_query_history_executed_at ON query_history(executed_at);
`
