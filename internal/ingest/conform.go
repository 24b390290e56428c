package ingest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"multinet/internal/inference"
	"multinet/internal/models"
)

// ConformRows types rows submitted against an existing table by its stored
// columns. Every row that names an unknown column, holds a value its column
// rejects or lacks the key (endpoints for edges) yields a fatal issue; Row is
// the 1-based position in rows.
func ConformRows(table string, kind models.TableKind, columns []models.Column, rows []map[string]any) ([]models.Document, []models.Issue) {
	types := make(map[string]models.ColumnType, len(columns))
	var rl roles
	for _, c := range columns {
		switch c.Type {
		case models.ColumnTypePrimary:
			rl.key = c.Name
		case models.ColumnTypeSource:
			rl.from = c.Name
		case models.ColumnTypeTarget:
			rl.to = c.Name
		default:
			types[c.Name] = c.Type
		}
	}
	if rl.key == "" {
		// edge and plain rows are addressed by their generated key
		rl.key = "_key"
	}
	if kind == models.TableKindEdge {
		rl.from = lo.Ternary(rl.from == "", "_from", rl.from)
		rl.to = lo.Ternary(rl.to == "", "_to", rl.to)
	}

	docs := make([]models.Document, 0, len(rows))
	var issues []models.Issue
	for i, row := range rows {
		var rowIssues []models.Issue
		fail := func(is models.Issue) {
			is.Table, is.Row, is.Fatal = table, i+1, true
			rowIssues = append(rowIssues, is)
		}

		doc := models.Document{Fields: make(map[string]any, len(row))}
		cols := lo.Keys(row)
		sort.Strings(cols)
		for _, col := range cols {
			v := row[col]
			switch {
			case col == rl.key:
				doc.Key = strings.TrimSpace(inference.ToString(v))
				continue
			case rl.has(col):
				ref, ok := qualify(v, "")
				if !ok {
					fail(models.Issue{Kind: models.IssueKindKey, Column: col, Value: inference.ToString(v),
						Message: "edge endpoint must be a table/key reference"})
					continue
				}
				if col == rl.from {
					doc.From = ref
				} else {
					doc.To = ref
				}
				continue
			}

			t, known := types[col]
			if !known {
				fail(models.Issue{Kind: models.IssueKindColumn, Column: col, Message: "column is not part of the table"})
				continue
			}
			coerced, err := inference.Coerce(t, v)
			if err != nil {
				fail(models.Issue{Kind: models.IssueKindType, Column: col, Value: inference.ToString(v),
					Message: fmt.Sprintf("%s; expected %s", err.Error(), t)})
				continue
			}
			if coerced != nil {
				doc.Fields[col] = coerced
			}
		}

		switch kind {
		case models.TableKindNode:
			if doc.Key == "" {
				fail(models.Issue{Kind: models.IssueKindKey, Column: rl.key, Message: "row has no key"})
			}
		case models.TableKindEdge:
			if doc.From == "" || doc.To == "" {
				fail(models.Issue{Kind: models.IssueKindKey, Message: "edge row needs both endpoints"})
			}
		}

		if len(rowIssues) > 0 {
			issues = append(issues, rowIssues...)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, issues
}
