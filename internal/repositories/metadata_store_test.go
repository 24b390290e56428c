package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multinet/internal/models"
)

func newWorkspace(t *testing.T, store *MetadataStore) *models.Workspace {
	t.Helper()
	ws := &models.Workspace{Name: "ws_" + uuid.NewString()[:8]}
	require.NoError(t, store.CreateWorkspace(context.Background(), ws))
	return ws
}

func TestWorkspaceRepository(t *testing.T) {
	store := NewMetadataStore(requirePostgres(t))
	ctx := context.Background()

	ws := newWorkspace(t, store)
	assert.ErrorIs(t, store.CreateWorkspace(ctx, &models.Workspace{Name: ws.Name}), ErrDuplicate)

	got, err := store.GetWorkspace(ctx, ws.Name)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ws.ID, got.ID)

	missing, err := store.GetWorkspace(ctx, "no_such_workspace")
	require.NoError(t, err)
	assert.Nil(t, missing)

	other := newWorkspace(t, store)
	assert.ErrorIs(t, store.RenameWorkspace(ctx, ws.ID, other.Name), ErrDuplicate)

	renamed := ws.Name + "_renamed"
	require.NoError(t, store.RenameWorkspace(ctx, ws.ID, renamed))
	byID, err := store.GetWorkspaceByID(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, renamed, byID.Name)

	all, err := store.ListWorkspaces(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(all))
	for _, w := range all {
		names = append(names, w.Name)
	}
	assert.Contains(t, names, renamed)
	assert.Contains(t, names, other.Name)

	require.NoError(t, store.DeleteWorkspace(ctx, ws.ID))
	assert.ErrorIs(t, store.DeleteWorkspace(ctx, ws.ID), ErrNotFound)
	assert.ErrorIs(t, store.RenameWorkspace(ctx, ws.ID, "whatever"), ErrNotFound)
}

func TestTableRepositorySaveIsUpsert(t *testing.T) {
	store := NewMetadataStore(requirePostgres(t))
	ctx := context.Background()
	ws := newWorkspace(t, store)

	first := &models.Table{
		WorkspaceID: ws.ID,
		Name:        "people",
		Kind:        models.TableKindNode,
		Columns:     []models.Column{{Name: "age", Type: models.ColumnTypeNumber}},
		RowCount:    2,
	}
	require.NoError(t, store.SaveTable(ctx, first))

	replacement := &models.Table{
		WorkspaceID: ws.ID,
		Name:        "people",
		Kind:        models.TableKindNode,
		Columns:     []models.Column{{Name: "name", Type: models.ColumnTypeLabel}},
		RowCount:    5,
	}
	require.NoError(t, store.SaveTable(ctx, replacement))
	assert.Equal(t, first.ID, replacement.ID)

	got, err := store.GetTable(ctx, ws.ID, "people")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(5), got.RowCount)
	assert.Equal(t, []models.Column{{Name: "name", Type: models.ColumnTypeLabel}}, got.Columns)

	// Restore puts the earlier definition back under the same id.
	require.NoError(t, store.RestoreTable(ctx, first))
	got, err = store.GetTable(ctx, ws.ID, "people")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.RowCount)
	assert.Equal(t, first.ID, got.ID)

	tables, err := store.ListTables(ctx, ws.ID)
	require.NoError(t, err)
	assert.Len(t, tables, 1)
}

func TestGraphsProtectTheirTables(t *testing.T) {
	store := NewMetadataStore(requirePostgres(t))
	ctx := context.Background()
	ws := newWorkspace(t, store)

	people := &models.Table{WorkspaceID: ws.ID, Name: "people", Kind: models.TableKindNode}
	places := &models.Table{WorkspaceID: ws.ID, Name: "places", Kind: models.TableKindNode}
	visits := &models.Table{WorkspaceID: ws.ID, Name: "visits", Kind: models.TableKindEdge}
	for _, table := range []*models.Table{people, places, visits} {
		require.NoError(t, store.SaveTable(ctx, table))
	}

	graph := &models.Graph{WorkspaceID: ws.ID, Name: "travel", EdgeTable: "visits", NodeTables: []string{"places", "people"}}
	require.NoError(t, store.CreateGraph(ctx, graph))
	assert.ErrorIs(t, store.CreateGraph(ctx, &models.Graph{WorkspaceID: ws.ID, Name: "travel", EdgeTable: "visits"}), ErrDuplicate)
	assert.ErrorIs(t, store.CreateGraph(ctx, &models.Graph{WorkspaceID: ws.ID, Name: "broken", EdgeTable: "nope"}), ErrNotFound)

	got, err := store.GetGraph(ctx, ws.ID, "travel")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "visits", got.EdgeTable)
	assert.Equal(t, []string{"people", "places"}, got.NodeTables)

	for _, table := range []*models.Table{people, visits} {
		referencing, err := store.GraphsReferencing(ctx, table.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"travel"}, referencing)
		assert.ErrorIs(t, store.DeleteTable(ctx, table.ID), ErrReferenced)
	}

	require.NoError(t, store.DeleteGraph(ctx, graph.ID))
	assert.ErrorIs(t, store.DeleteGraph(ctx, graph.ID), ErrNotFound)
	require.NoError(t, store.DeleteTable(ctx, visits.ID))

	graphs, err := store.ListGraphs(ctx, ws.ID)
	require.NoError(t, err)
	assert.Empty(t, graphs)
}

func TestWorkspaceDeleteCascades(t *testing.T) {
	store := NewMetadataStore(requirePostgres(t))
	ctx := context.Background()
	ws := newWorkspace(t, store)

	edges := &models.Table{WorkspaceID: ws.ID, Name: "edges", Kind: models.TableKindEdge}
	require.NoError(t, store.SaveTable(ctx, edges))
	require.NoError(t, store.CreateGraph(ctx, &models.Graph{WorkspaceID: ws.ID, Name: "g", EdgeTable: "edges"}))

	require.NoError(t, store.DeleteWorkspace(ctx, ws.ID))

	tables, err := store.ListTables(ctx, ws.ID)
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestQueryHistoryRepository(t *testing.T) {
	pool := requirePostgres(t)
	store := NewMetadataStore(pool)
	history := NewQueryHistoryRepository(pool)
	ctx := context.Background()
	ws := newWorkspace(t, store)

	ok := true
	ms := 12
	for _, q := range []string{"MATCH (a) RETURN a", "MATCH (b) RETURN b"} {
		require.NoError(t, history.Create(ctx, &models.QueryHistory{
			WorkspaceID:     ws.ID,
			Principal:       "alice",
			QueryText:       q,
			Success:         &ok,
			ExecutionTimeMs: &ms,
		}))
	}

	entries, err := history.ListByWorkspace(ctx, ws.ID, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].Principal)
	require.NotNil(t, entries[0].Success)
	assert.True(t, *entries[0].Success)
}
