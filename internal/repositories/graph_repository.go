package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"multinet/internal/models"
)

type GraphRepository struct {
	pool *pgxpool.Pool
}

func NewGraphRepository(pool *pgxpool.Pool) *GraphRepository {
	return &GraphRepository{pool: pool}
}

// CreateGraph resolves the table names of graph inside one transaction and
// inserts the graph with its node table links.
func (r *GraphRepository) CreateGraph(ctx context.Context, graph *models.Graph) error {
	graph.Prepare()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lookup := `SELECT id FROM tables WHERE workspace_id = $1 AND name = $2`

	var edgeTableID uuid.UUID
	if err := tx.QueryRow(ctx, lookup, graph.WorkspaceID, graph.EdgeTable).Scan(&edgeTableID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("edge table %s: %w", graph.EdgeTable, ErrNotFound)
		}
		return err
	}

	insert := `
		INSERT INTO graphs (id, workspace_id, name, edge_table_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.Exec(ctx, insert, graph.ID, graph.WorkspaceID, graph.Name, edgeTableID, graph.CreatedAt); err != nil {
		return translatePgError(err)
	}

	for _, name := range graph.NodeTables {
		var tableID uuid.UUID
		if err := tx.QueryRow(ctx, lookup, graph.WorkspaceID, name).Scan(&tableID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("node table %s: %w", name, ErrNotFound)
			}
			return err
		}
		link := `INSERT INTO graph_node_tables (graph_id, table_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
		if _, err := tx.Exec(ctx, link, graph.ID, tableID); err != nil {
			return translatePgError(err)
		}
	}

	return tx.Commit(ctx)
}

const graphSelect = `
	SELECT g.id, g.workspace_id, g.name, et.name, g.created_at,
		COALESCE(
			(SELECT array_agg(nt.name ORDER BY nt.name)
			 FROM graph_node_tables gn JOIN tables nt ON nt.id = gn.table_id
			 WHERE gn.graph_id = g.id),
			'{}'
		)
	FROM graphs g
	JOIN tables et ON et.id = g.edge_table_id
`

func scanGraph(row pgx.Row) (*models.Graph, error) {
	var graph models.Graph
	err := row.Scan(
		&graph.ID,
		&graph.WorkspaceID,
		&graph.Name,
		&graph.EdgeTable,
		&graph.CreatedAt,
		&graph.NodeTables,
	)
	if err != nil {
		return nil, err
	}
	return &graph, nil
}

func (r *GraphRepository) GetGraph(ctx context.Context, workspaceID uuid.UUID, name string) (*models.Graph, error) {
	query := graphSelect + ` WHERE g.workspace_id = $1 AND g.name = $2`

	graph, err := scanGraph(r.pool.QueryRow(ctx, query, workspaceID, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return graph, nil
}

func (r *GraphRepository) ListGraphs(ctx context.Context, workspaceID uuid.UUID) ([]models.Graph, error) {
	query := graphSelect + ` WHERE g.workspace_id = $1 ORDER BY g.name`

	rows, err := r.pool.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var graphs []models.Graph
	for rows.Next() {
		graph, err := scanGraph(rows)
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, *graph)
	}
	return graphs, rows.Err()
}

func (r *GraphRepository) DeleteGraph(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM graphs WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
