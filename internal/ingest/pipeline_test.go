package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multinet/internal/apperrors"
	"multinet/internal/inference"
	"multinet/internal/models"
)

type staticResolver map[string][]string

func (s staticResolver) ExistingKeys(_ context.Context, table string, keys []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, k := range s[table] {
		for _, want := range keys {
			if k == want {
				out[k] = struct{}{}
			}
		}
	}
	return out, nil
}

func ingest(t *testing.T, opts Options, body string, req Request, resolver KeyResolver) (*Payload, []models.Issue, error) {
	t.Helper()
	return NewPipeline(opts).Ingest(context.Background(), strings.NewReader(body), req, resolver, nil)
}

func TestIngestCSVInfersTypes(t *testing.T) {
	body := "id,active\n1,true\n2,false\n3,true\n"

	payload, issues, err := ingest(t, DefaultOptions(), body, Request{Format: FormatCSV, Target: "people"}, nil)
	require.NoError(t, err)
	assert.Empty(t, issues)
	require.Len(t, payload.Tables, 1)

	table := payload.Tables[0]
	assert.Equal(t, "people", table.Name)
	assert.Equal(t, models.TableKindPlain, table.Kind)
	assert.Equal(t, []models.Column{
		{Name: "id", Type: models.ColumnTypeNumber},
		{Name: "active", Type: models.ColumnTypeBoolean},
	}, table.Columns)
	require.Len(t, table.Documents, 3)
	assert.Equal(t, int64(2), table.Documents[1].Fields["id"])
	assert.Equal(t, false, table.Documents[1].Fields["active"])
}

func TestIngestIsDeterministic(t *testing.T) {
	var b strings.Builder
	b.WriteString("name,score\n")
	for i := 0; i < 500; i++ {
		b.WriteString("n")
		b.WriteString(strings.Repeat("x", i%7))
		b.WriteString(",")
		b.WriteString([]string{"1", "2.5", "3"}[i%3])
		b.WriteString("\n")
	}
	opts := DefaultOptions()
	opts.SampleSize = 50
	opts.Seed = 7

	first, _, err := ingest(t, opts, b.String(), Request{Format: FormatCSV, Target: "t"}, nil)
	require.NoError(t, err)
	second, _, err := ingest(t, opts, b.String(), Request{Format: FormatCSV, Target: "t"}, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestIngestReferentialIssues(t *testing.T) {
	body := "from,to\nA,B\nB,C\n"
	req := Request{Format: FormatCSV, Target: "knows", Kind: models.TableKindEdge, NodeTable: "people"}
	resolver := staticResolver{"people": {"A", "B"}}

	t.Run("fatal at zero tolerance", func(t *testing.T) {
		payload, issues, err := ingest(t, DefaultOptions(), body, req, resolver)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrReferential))
		assert.Nil(t, payload)
		require.Len(t, issues, 1)
		assert.Equal(t, models.IssueKindReferential, issues[0].Kind)
		assert.Equal(t, "people/C", issues[0].Value)
		assert.True(t, issues[0].Fatal)
	})

	t.Run("dropped within tolerance", func(t *testing.T) {
		opts := DefaultOptions()
		opts.ReferentialTolerance = 1
		payload, issues, err := ingest(t, opts, body, req, resolver)
		require.NoError(t, err)
		require.Len(t, issues, 1)
		assert.False(t, issues[0].Fatal)
		edges := payload.Table("knows")
		require.NotNil(t, edges)
		require.Len(t, edges.Documents, 1)
		assert.Equal(t, "people/A", edges.Documents[0].From)
		assert.Equal(t, "people/B", edges.Documents[0].To)
	})
}

func TestIngestReferentialIssueReportsSourceLine(t *testing.T) {
	// The first row is skipped for its empty endpoint, so people/C sits in
	// the second document but on the third line.
	body := "from,to\n,B\nA,B\nB,C\n"
	req := Request{Format: FormatCSV, Target: "knows", Kind: models.TableKindEdge, NodeTable: "people"}
	resolver := staticResolver{"people": {"A", "B"}}

	opts := DefaultOptions()
	opts.ReferentialTolerance = 1
	_, issues, err := ingest(t, opts, body, req, resolver)
	require.NoError(t, err)

	var referential []models.Issue
	for _, is := range issues {
		if is.Kind == models.IssueKindReferential {
			referential = append(referential, is)
		}
	}
	require.Len(t, referential, 1)
	assert.Equal(t, "people/C", referential[0].Value)
	assert.Equal(t, 3, referential[0].Row)
}

func TestIngestRoundTripKeepsTypes(t *testing.T) {
	body := "score,active\n10,true\n20.5,false\n30,true\n"
	req := Request{Format: FormatCSV, Target: "scores"}

	first, _, err := ingest(t, DefaultOptions(), body, req, nil)
	require.NoError(t, err)
	table := first.Tables[0]

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		header[i] = c.Name
	}
	require.NoError(t, w.Write(header))
	for _, doc := range table.Documents {
		record := make([]string, len(header))
		for i, col := range header {
			record[i] = inference.ToString(doc.Fields[col])
		}
		require.NoError(t, w.Write(record))
	}
	w.Flush()
	require.NoError(t, w.Error())

	second, issues, err := ingest(t, DefaultOptions(), buf.String(), req, nil)
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Equal(t, []models.Column{
		{Name: "score", Type: models.ColumnTypeNumber},
		{Name: "active", Type: models.ColumnTypeBoolean},
	}, second.Tables[0].Columns)
	assert.Equal(t, table.Documents, second.Tables[0].Documents)
}

func TestIngestNodeLink(t *testing.T) {
	body := `{
		"nodes": [{"id": "A", "age": 30}, {"id": "B", "age": 41}],
		"links": [{"source": "A", "target": "B", "weight": 0.5}, {"source": "B", "target": "C"}]
	}`
	opts := DefaultOptions()
	opts.ReferentialTolerance = 5

	payload, issues, err := ingest(t, opts, body, Request{Format: FormatNodeLink, Target: "net"}, nil)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "net_nodes/C", issues[0].Value)

	nodes := payload.Table("net_nodes")
	require.NotNil(t, nodes)
	assert.Equal(t, models.TableKindNode, nodes.Kind)
	assert.Equal(t, []models.Column{
		{Name: "id", Type: models.ColumnTypePrimary},
		{Name: "age", Type: models.ColumnTypeNumber},
	}, nodes.Columns)
	assert.Equal(t, "A", nodes.Documents[0].Key)
	assert.NotContains(t, nodes.Documents[0].Fields, "id")

	edges := payload.Table("net_edges")
	require.NotNil(t, edges)
	require.Len(t, edges.Documents, 1)
	assert.Equal(t, 0.5, edges.Documents[0].Fields["weight"])

	require.NotNil(t, payload.Graph)
	assert.Equal(t, "net", payload.Graph.Name)
	assert.Equal(t, "net_edges", payload.Graph.EdgeTable)
	assert.Equal(t, []string{"net_nodes"}, payload.Graph.NodeTables)
}

func TestIngestNodeLinkAcceptsEdgesKey(t *testing.T) {
	body := `{"nodes": [{"id": 1}, {"id": 2}], "edges": [{"source": 1, "target": 2}]}`

	payload, issues, err := ingest(t, DefaultOptions(), body, Request{Format: FormatNodeLink, Target: "g"}, nil)
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Equal(t, "g_nodes/1", payload.Table("g_edges").Documents[0].From)
}

func TestIngestNestedJSON(t *testing.T) {
	body := `{"id": "root", "children": [
		{"id": "a"},
		{"name": "x", "children": [{"id": "b"}]}
	]}`

	payload, issues, err := ingest(t, DefaultOptions(), body, Request{Format: FormatNestedJSON, Target: "tree"}, nil)
	require.NoError(t, err)
	assert.Empty(t, issues)

	nodes := payload.Table("tree_nodes")
	require.Len(t, nodes.Documents, 4)
	keys := []string{}
	for _, d := range nodes.Documents {
		keys = append(keys, d.Key)
	}
	assert.Equal(t, []string{"root", "a", "node-3", "b"}, keys)

	edges := payload.Table("tree_edges")
	require.Len(t, edges.Documents, 3)
	assert.Equal(t, "tree_nodes/node-3", edges.Documents[2].From)
	assert.Equal(t, "tree_nodes/b", edges.Documents[2].To)
}

func TestIngestParseFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
		req  Request
	}{
		{name: "invalid json", body: `{"nodes": [`, req: Request{Format: FormatNodeLink, Target: "x"}},
		{name: "missing links", body: `{"nodes": []}`, req: Request{Format: FormatNodeLink, Target: "x"}},
		{name: "table not an array", body: `{"a": 1}`, req: Request{Format: FormatJSONTable, Target: "x"}},
		{name: "empty csv", body: "", req: Request{Format: FormatCSV, Target: "x"}},
		{name: "duplicate header", body: "a,a\n1,2\n", req: Request{Format: FormatCSV, Target: "x"}},
		{name: "unterminated quote", body: "a,b\n\"1,2\n", req: Request{Format: FormatCSV, Target: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, _, err := ingest(t, DefaultOptions(), tt.body, tt.req, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrParse), "got %v", err)
			assert.Nil(t, payload)
		})
	}
}

func TestIngestMixedColumnIsFatal(t *testing.T) {
	body := "name,val\na,1\nb,2\nc,x\nd,y\n"

	payload, issues, err := ingest(t, DefaultOptions(), body, Request{Format: FormatCSV, Target: "t"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
	assert.Nil(t, payload)
	require.NotEmpty(t, issues)
	assert.Equal(t, "val", issues[0].Column)
	assert.ElementsMatch(t, issues, apperrors.IssuesOf(err))
}

func TestIngestNodeRowsWithoutKeyAreSkipped(t *testing.T) {
	body := `[{"id": "a", "v": 1}, {"v": 2}, {"id": "a", "v": 3}]`
	req := Request{Format: FormatJSONTable, Target: "n", Kind: models.TableKindNode}

	payload, issues, err := ingest(t, DefaultOptions(), body, req, nil)
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, models.IssueKindKey, issues[0].Kind)
	assert.Equal(t, 2, issues[0].Row)
	assert.Contains(t, issues[1].Message, "duplicate key")

	docs := payload.Tables[0].Documents
	require.Len(t, docs, 1)
	assert.Equal(t, int64(3), docs[0].Fields["v"])
}

func TestIngestColumnOverrides(t *testing.T) {
	body := "code,secret,score\n007,x,10\n042,y,11\n"
	req := Request{
		Format: FormatCSV,
		Target: "agents",
		Kind:   models.TableKindNode,
		ColumnTypes: map[string]models.ColumnType{
			"code":   models.ColumnTypePrimary,
			"secret": models.ColumnTypeIgnored,
		},
	}

	payload, issues, err := ingest(t, DefaultOptions(), body, req, nil)
	require.NoError(t, err)
	assert.Empty(t, issues)
	table := payload.Tables[0]
	assert.Equal(t, []models.Column{
		{Name: "code", Type: models.ColumnTypePrimary},
		{Name: "score", Type: models.ColumnTypeNumber},
	}, table.Columns)
	assert.Equal(t, "007", table.Documents[0].Key)
	assert.NotContains(t, table.Documents[0].Fields, "secret")
}

func TestIngestCancelled(t *testing.T) {
	calls := 0
	cancelAfterParse := func(context.Context) (bool, error) {
		calls++
		return calls > 2, nil
	}

	payload, _, err := NewPipeline(DefaultOptions()).Ingest(context.Background(),
		strings.NewReader("a\n1\n"), Request{Format: FormatCSV, Target: "t"}, nil, cancelAfterParse)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrCancelled))
	assert.Nil(t, payload)
}

func TestIngestContinuesWhenCancelCheckFails(t *testing.T) {
	failing := func(context.Context) (bool, error) {
		return false, errors.New("redis unavailable")
	}

	payload, _, err := NewPipeline(DefaultOptions()).Ingest(context.Background(),
		strings.NewReader("a\n1\n"), Request{Format: FormatCSV, Target: "t"}, nil, failing)
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Len(t, payload.Tables[0].Documents, 1)
}

func TestIngestRejectsDuplicateRoleColumns(t *testing.T) {
	req := Request{
		Format: FormatCSV,
		Target: "knows",
		Kind:   models.TableKindEdge,
		ColumnTypes: map[string]models.ColumnType{
			"a": models.ColumnTypeSource,
			"b": models.ColumnTypeSource,
			"c": models.ColumnTypeTarget,
		},
	}
	_, _, err := ingest(t, DefaultOptions(), "a,b,c\nx/1,x/2,x/3\n", req, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalid))
	assert.Contains(t, err.Error(), "a, b")
}

func TestIngestRejectsInvalidRequest(t *testing.T) {
	_, _, err := ingest(t, DefaultOptions(), "a\n1\n", Request{Format: "xml", Target: "t"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalid))
}
