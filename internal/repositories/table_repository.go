package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"multinet/internal/models"
)

type TableRepository struct {
	pool *pgxpool.Pool
}

func NewTableRepository(pool *pgxpool.Pool) *TableRepository {
	return &TableRepository{pool: pool}
}

const tableColumns = `id, workspace_id, name, kind, columns, row_count, created_at, updated_at`

func scanTable(row pgx.Row) (*models.Table, error) {
	var table models.Table
	err := row.Scan(
		&table.ID,
		&table.WorkspaceID,
		&table.Name,
		&table.Kind,
		&table.Columns,
		&table.RowCount,
		&table.CreatedAt,
		&table.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &table, nil
}

// SaveTable inserts the table or, when (workspace, name) exists, replaces its
// kind, columns and row count. The stored id and created_at are written back.
func (r *TableRepository) SaveTable(ctx context.Context, table *models.Table) error {
	table.Prepare()

	query := `
		INSERT INTO tables (id, workspace_id, name, kind, columns, row_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (workspace_id, name) DO UPDATE SET
			kind = EXCLUDED.kind,
			columns = EXCLUDED.columns,
			row_count = EXCLUDED.row_count,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`
	columns := table.Columns
	if columns == nil {
		columns = []models.Column{}
	}
	err := r.pool.QueryRow(ctx, query,
		table.ID,
		table.WorkspaceID,
		table.Name,
		table.Kind,
		columns,
		table.RowCount,
		table.CreatedAt,
		table.UpdatedAt,
	).Scan(&table.ID, &table.CreatedAt)
	return translatePgError(err)
}

func (r *TableRepository) GetTable(ctx context.Context, workspaceID uuid.UUID, name string) (*models.Table, error) {
	query := `SELECT ` + tableColumns + ` FROM tables WHERE workspace_id = $1 AND name = $2`

	table, err := scanTable(r.pool.QueryRow(ctx, query, workspaceID, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return table, nil
}

func (r *TableRepository) ListTables(ctx context.Context, workspaceID uuid.UUID) ([]models.Table, error) {
	query := `SELECT ` + tableColumns + ` FROM tables WHERE workspace_id = $1 ORDER BY name`

	rows, err := r.pool.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []models.Table
	for rows.Next() {
		table, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, *table)
	}
	return tables, rows.Err()
}

func (r *TableRepository) DeleteTable(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM tables WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return translatePgError(err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RestoreTable puts back a previously read row exactly, including its id.
func (r *TableRepository) RestoreTable(ctx context.Context, table *models.Table) error {
	query := `
		INSERT INTO tables (id, workspace_id, name, kind, columns, row_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			kind = EXCLUDED.kind,
			columns = EXCLUDED.columns,
			row_count = EXCLUDED.row_count,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		table.ID,
		table.WorkspaceID,
		table.Name,
		table.Kind,
		table.Columns,
		table.RowCount,
		table.CreatedAt,
		table.UpdatedAt,
	)
	return translatePgError(err)
}

// GraphsReferencing lists the graphs that use the table as edge or node table.
func (r *TableRepository) GraphsReferencing(ctx context.Context, tableID uuid.UUID) ([]string, error) {
	query := `
		SELECT g.name FROM graphs g WHERE g.edge_table_id = $1
		UNION
		SELECT g.name FROM graphs g
		JOIN graph_node_tables gn ON gn.graph_id = g.id
		WHERE gn.table_id = $1
		ORDER BY 1
	`
	rows, err := r.pool.Query(ctx, query, tableID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
