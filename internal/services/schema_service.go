package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"multinet/internal/models"
)

type SchemaService struct {
	queries *QueryService
}

func NewSchemaService(queries *QueryService) *SchemaService {
	return &SchemaService{queries: queries}
}

type relationship struct {
	FromTable string
	ToTable   string
	Type      string
	Label     string
}

// VisualizeWorkspace generates a Mermaid ER diagram of a workspace: one entity
// per table and one relationship per edge table endpoint declared by a graph.
func (s *SchemaService) VisualizeWorkspace(ctx context.Context, workspace string) (string, error) {
	detail, err := s.queries.GetWorkspace(ctx, workspace)
	if err != nil {
		return "", err
	}
	return generateMermaid(detail.Tables, graphRelationships(detail.Graphs)), nil
}

func graphRelationships(graphs []models.Graph) []relationship {
	var rels []relationship
	for _, g := range graphs {
		for _, node := range g.NodeTables {
			rels = append(rels,
				relationship{FromTable: g.EdgeTable, ToTable: node, Type: "}o--||", Label: "_from"},
				relationship{FromTable: g.EdgeTable, ToTable: node, Type: "}o--||", Label: "_to"},
			)
		}
	}
	return rels
}

func generateMermaid(tables []models.Table, relationships []relationship) string {
	var sb strings.Builder

	sb.WriteString("erDiagram\n")

	if len(relationships) > 0 {
		seen := make(map[string]bool)
		for _, rel := range relationships {
			key := fmt.Sprintf("%s:%s:%s:%s", rel.FromTable, rel.Type, rel.ToTable, rel.Label)
			if seen[key] {
				continue
			}
			seen[key] = true

			sb.WriteString(fmt.Sprintf("    %s %s %s : %q\n",
				entityName(rel.FromTable),
				rel.Type,
				entityName(rel.ToTable),
				rel.Label))
		}
		sb.WriteString("\n")
	}

	sorted := append([]models.Table(nil), tables...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for _, table := range sorted {
		sb.WriteString(fmt.Sprintf("    %s {\n", entityName(table.Name)))

		switch table.Kind {
		case models.TableKindNode:
			sb.WriteString("        string _key PK\n")
		case models.TableKindEdge:
			sb.WriteString("        string _key PK\n")
			sb.WriteString("        string _from FK\n")
			sb.WriteString("        string _to FK\n")
		}
		for _, col := range table.Columns {
			if col.Type == models.ColumnTypeIgnored || lo.Contains([]string{"_key", "_from", "_to"}, col.Name) {
				continue
			}
			sb.WriteString(fmt.Sprintf("        %s %s\n", simplifyDataType(col.Type), attributeName(col.Name)))
		}

		sb.WriteString("    }\n\n")
	}

	return sb.String()
}

func simplifyDataType(t models.ColumnType) string {
	switch t {
	case models.ColumnTypeNumber:
		return "float"
	case models.ColumnTypeBoolean:
		return "bool"
	case models.ColumnTypeDate:
		return "date"
	case models.ColumnTypeCategory:
		return "enum"
	default:
		return "string"
	}
}

// Mermaid entity and attribute names must be bare words.
func entityName(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func attributeName(name string) string {
	name = strings.Map(func(r rune) rune {
		if r == '_' || r == '-' || ('0' <= r && r <= '9') || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') {
			return r
		}
		return '_'
	}, name)
	if name == "" {
		return "_"
	}
	return name
}
