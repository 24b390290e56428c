package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multinet/internal/models"
)

func TestVisualizeWorkspace(t *testing.T) {
	_, queries := newReadFixture(t)
	s := NewSchemaService(queries)

	diagram, err := s.VisualizeWorkspace(context.Background(), "lab")
	require.NoError(t, err)

	assert.Contains(t, diagram, "erDiagram\n")
	assert.Contains(t, diagram, `KNOWS }o--|| PEOPLE : "_from"`)
	assert.Contains(t, diagram, `KNOWS }o--|| PEOPLE : "_to"`)
	assert.Contains(t, diagram, "    PEOPLE {\n        string _key PK\n        string label\n    }")
	assert.Contains(t, diagram, "string _from FK")
}

func TestGenerateMermaidSkipsIgnoredColumns(t *testing.T) {
	tables := []models.Table{{
		Name: "my-table",
		Kind: models.TableKindPlain,
		Columns: []models.Column{
			{Name: "score", Type: models.ColumnTypeNumber},
			{Name: "junk", Type: models.ColumnTypeIgnored},
			{Name: "first name", Type: models.ColumnTypeString},
		},
	}}

	diagram := generateMermaid(tables, nil)
	assert.Equal(t, "erDiagram\n    MY_TABLE {\n        float score\n        string first_name\n    }\n\n", diagram)
}
