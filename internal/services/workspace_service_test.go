package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multinet/internal/apperrors"
	"multinet/internal/ingest"
	"multinet/internal/models"
)

func newWorkspaceService(f *fixture) *WorkspaceService {
	return NewWorkspaceService(f.meta, f.graph, f.coord, ingest.NewPipeline(ingest.DefaultOptions()))
}

func TestWorkspaceLifecycle(t *testing.T) {
	f := newFixture(t)
	s := newWorkspaceService(f)
	ctx := context.Background()

	ws, err := s.CreateWorkspace(ctx, CreateWorkspaceRequest{Name: "lab"})
	require.NoError(t, err)
	assert.Equal(t, "lab", ws.Name)

	ws, err = s.RenameWorkspace(ctx, "lab", RenameWorkspaceRequest{Name: "lab2"})
	require.NoError(t, err)
	assert.Equal(t, "lab2", ws.Name)
	assert.Nil(t, f.graph.collections("lab"))

	require.NoError(t, s.DeleteWorkspace(ctx, "lab2"))
	got, _ := f.meta.GetWorkspace(ctx, "lab2")
	assert.Nil(t, got)
}

func TestWriteTableFromJSONRows(t *testing.T) {
	f := newFixture(t)
	f.workspace(t, "lab")
	s := newWorkspaceService(f)
	body := `[{"_key": "a", "age": "31", "member": "true"}, {"_key": "b", "age": "27", "member": "false"}]`

	res, err := s.WriteTable(context.Background(), "lab",
		ingest.Request{Target: "people", Kind: models.TableKindNode}, strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)
	assert.Equal(t, models.TableKindNode, res.Tables[0].Kind)
	assert.Len(t, f.graph.docs("lab", "people"), 2)

	_, err = s.WriteTable(context.Background(), "lab",
		ingest.Request{Target: "people", Kind: models.TableKindNode}, strings.NewReader(body))
	assert.ErrorIs(t, err, apperrors.ErrConflict, "replacing needs overwrite")

	_, err = s.WriteTable(context.Background(), "lab",
		ingest.Request{Target: "people", Kind: models.TableKindNode, Overwrite: true}, strings.NewReader(`[{"_key": "c"}]`))
	require.NoError(t, err)
	assert.Len(t, f.graph.docs("lab", "people"), 1)
}

func TestWriteTableFromCSV(t *testing.T) {
	f := newFixture(t)
	f.workspace(t, "lab")
	s := newWorkspaceService(f)

	_, err := s.WriteTable(context.Background(), "lab",
		ingest.Request{Format: ingest.FormatCSV, Target: "scores"}, strings.NewReader("id,score\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"scores"}, f.graph.collections("lab"))
}

func TestWriteTableRejections(t *testing.T) {
	f := newFixture(t)
	f.workspace(t, "lab")
	s := newWorkspaceService(f)

	_, err := s.WriteTable(context.Background(), "lab",
		ingest.Request{Format: ingest.FormatNodeLink, Target: "net"}, strings.NewReader(`{}`))
	assert.ErrorIs(t, err, apperrors.ErrInvalid)

	_, err = s.WriteTable(context.Background(), "nope",
		ingest.Request{Target: "t"}, strings.NewReader(`[]`))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = s.WriteTable(context.Background(), "lab",
		ingest.Request{Target: "t"}, strings.NewReader(`[{"a": 1`))
	assert.Error(t, err)
	assert.Empty(t, f.graph.collections("lab"))
}

func TestGraphLifecycleThroughService(t *testing.T) {
	f := newFixture(t)
	f.workspace(t, "lab")
	f.table(t, "lab", nodeTable("people", "a", "b"))
	f.table(t, "lab", edgeTable("knows", [2]string{"people/a", "people/b"}))
	s := newWorkspaceService(f)

	graph, err := s.CreateGraph(context.Background(), "lab", CreateGraphRequest{Name: "social", EdgeTable: "knows"})
	require.NoError(t, err)
	assert.Equal(t, []string{"people"}, graph.NodeTables)

	err = s.DeleteTable(context.Background(), "lab", "people")
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	require.NoError(t, s.DeleteGraph(context.Background(), "lab", "social"))
	require.NoError(t, s.DeleteTable(context.Background(), "lab", "people"))
	assert.Equal(t, []string{"knows"}, f.graph.collections("lab"))
}
