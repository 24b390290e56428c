package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multinet/internal/apperrors"
	"multinet/internal/ingest"
	"multinet/internal/models"
)

func TestAppendRowsUpsertsByKey(t *testing.T) {
	f := newFixture(t)
	ws := f.workspace(t, "lab")
	f.table(t, "lab", nodeTable("people", "a", "b"))

	res, err := f.coord.Execute(context.Background(), AppendRows{
		Workspace: "lab",
		Table:     "people",
		Rows: []map[string]any{
			{"_key": "b", "label": "bee"},
			{"_key": "d", "label": "dee"},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)
	assert.Equal(t, int64(3), res.Tables[0].RowCount)

	docs := f.graph.docs("lab", "people")
	require.Len(t, docs, 3)
	assert.Equal(t, "bee", docs[1].Fields["label"])
	assert.Equal(t, "d", docs[2].Key)

	table, _ := f.meta.GetTable(context.Background(), ws.ID, "people")
	assert.Equal(t, int64(3), table.RowCount)
	assert.False(t, hasPrefixed(f.graph.collections("lab"), stagingPrefix))
}

func TestAppendRowsRejectsNonConformingRows(t *testing.T) {
	f := newFixture(t)
	f.workspace(t, "lab")
	f.table(t, "lab", ingest.TablePayload{
		Name:      "scores",
		Kind:      models.TableKindPlain,
		Columns:   []models.Column{{Name: "n", Type: models.ColumnTypeNumber}},
		Documents: []models.Document{{Key: "1", Fields: map[string]any{"n": int64(4)}}},
	})

	_, err := f.coord.Execute(context.Background(), AppendRows{
		Workspace: "lab",
		Table:     "scores",
		Rows: []map[string]any{
			{"n": 5.0},
			{"n": "lots"},
			{"n": 6.0, "extra": true},
		},
	})
	require.ErrorIs(t, err, apperrors.ErrValidation)
	issues := apperrors.IssuesOf(err)
	require.Len(t, issues, 2)
	assert.Equal(t, 2, issues[0].Row)
	assert.Equal(t, models.IssueKindType, issues[0].Kind)
	assert.Equal(t, 3, issues[1].Row)
	assert.Equal(t, "extra", issues[1].Column)

	assert.Len(t, f.graph.docs("lab", "scores"), 1)
	assert.NotContains(t, f.graph.called(), "WriteCollection")
}

func TestAppendRowsGeneratesEdgeKeys(t *testing.T) {
	f := newFixture(t)
	f.workspace(t, "lab")
	f.network(t, "lab")

	_, err := f.coord.Execute(context.Background(), AppendRows{
		Workspace: "lab",
		Table:     "knows",
		Rows:      []map[string]any{{"_from": "people/c", "_to": "people/a"}},
	})
	require.NoError(t, err)
	docs := f.graph.docs("lab", "knows")
	require.Len(t, docs, 3)
	assert.Equal(t, "3", docs[2].Key)
	assert.Equal(t, "people/c", docs[2].From)

	_, err = f.coord.Execute(context.Background(), AppendRows{
		Workspace: "lab",
		Table:     "knows",
		Rows:      []map[string]any{{"_from": "people/a", "_to": "people/ghost"}},
	})
	require.ErrorIs(t, err, apperrors.ErrReferential)
	assert.Len(t, f.graph.docs("lab", "knows"), 3)
}

func TestDeleteRows(t *testing.T) {
	f := newFixture(t)
	ws := f.workspace(t, "lab")
	f.network(t, "lab")

	_, err := f.coord.Execute(context.Background(), DeleteRows{Workspace: "lab", Table: "people", Keys: []string{"c"}})
	require.ErrorIs(t, err, apperrors.ErrReferential, "knows still points at people/c")

	_, err = f.coord.Execute(context.Background(), DeleteRows{Workspace: "lab", Table: "people", Keys: []string{"zz"}})
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.coord.Execute(context.Background(), DeleteRows{Workspace: "lab", Table: "knows", Keys: []string{"1"}})
	require.NoError(t, err)
	res, err := f.coord.Execute(context.Background(), DeleteRows{Workspace: "lab", Table: "people", Keys: []string{"c"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Tables[0].RowCount)

	table, _ := f.meta.GetTable(context.Background(), ws.ID, "people")
	assert.Equal(t, int64(2), table.RowCount)
	assert.Len(t, f.graph.docs("lab", "people"), 2)
}

func TestUpsertDocumentsSkipsTakenKeys(t *testing.T) {
	current := []models.Document{{Key: "2"}, {Key: "x"}}
	merged := upsertDocuments(current, []models.Document{{}, {}, {Key: "x", From: "t/1"}})
	require.Len(t, merged, 4)
	assert.Equal(t, "3", merged[2].Key)
	assert.Equal(t, "4", merged[3].Key)
	assert.Equal(t, "t/1", merged[1].From)
}
