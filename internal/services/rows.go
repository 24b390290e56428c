package services

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"multinet/internal/apperrors"
	"multinet/internal/ingest"
	"multinet/internal/models"
)

// liveTable returns the workspace and the committed table op works on.
func (c *Coordinator) liveTable(ctx context.Context, op, workspace, name string) (*models.Workspace, *models.Table, error) {
	ws, err := c.workspace(ctx, op, workspace)
	if err != nil {
		return nil, nil, err
	}
	table, err := c.meta.GetTable(ctx, ws.ID, name)
	if err != nil {
		return nil, nil, storeError(op, "look up table", err)
	}
	if table == nil {
		return nil, nil, apperrors.NotFound("table " + name)
	}
	return ws, table, nil
}

// Row changes rewrite the whole table through the same staged replace as
// CreateOrReplaceTable, so graphs over the table are re-checked and readers
// never see a half-applied batch.
func (c *Coordinator) planRowChange(ctx context.Context, op string, ws *models.Workspace, table *models.Table, docs []models.Document) (*plan, error) {
	payload := &ingest.Payload{Tables: []ingest.TablePayload{{
		Name:      table.Name,
		Kind:      table.Kind,
		Columns:   table.Columns,
		Documents: docs,
	}}}
	return c.planPayload(ctx, op, ws.Name, payload, true)
}

func (c *Coordinator) planAppendRows(ctx context.Context, o AppendRows) (*plan, error) {
	if len(o.Rows) == 0 {
		return nil, apperrors.Invalid("no rows given")
	}
	ws, table, err := c.liveTable(ctx, o.Op(), o.Workspace, o.Table)
	if err != nil {
		return nil, err
	}
	rows, issues := ingest.ConformRows(table.Name, table.Kind, table.Columns, o.Rows)
	if len(issues) > 0 {
		rejected := len(lo.UniqBy(issues, func(is models.Issue) int { return is.Row }))
		return nil, apperrors.Validation(
			fmt.Sprintf("%d of %d rows do not conform to table %s", rejected, len(o.Rows), table.Name), issues)
	}

	current, err := c.documents(ctx, ws, table.Name, nil)
	if err != nil {
		return nil, err
	}
	return c.planRowChange(ctx, o.Op(), ws, table, upsertDocuments(current, rows))
}

func (c *Coordinator) planDeleteRows(ctx context.Context, o DeleteRows) (*plan, error) {
	if len(o.Keys) == 0 {
		return nil, apperrors.Invalid("no keys given")
	}
	ws, table, err := c.liveTable(ctx, o.Op(), o.Workspace, o.Table)
	if err != nil {
		return nil, err
	}
	current, err := c.documents(ctx, ws, table.Name, nil)
	if err != nil {
		return nil, err
	}

	drop := lo.SliceToMap(o.Keys, func(k string) (string, struct{}) { return k, struct{}{} })
	present := lo.SliceToMap(current, func(d models.Document) (string, struct{}) { return d.Key, struct{}{} })
	missing := lo.Uniq(lo.Reject(o.Keys, func(k string, _ int) bool {
		_, ok := present[k]
		return ok
	}))
	if len(missing) > 0 {
		return nil, apperrors.NotFound(fmt.Sprintf("rows %s of table %s", strings.Join(missing, ", "), table.Name))
	}

	kept := lo.Reject(current, func(d models.Document, _ int) bool {
		_, gone := drop[d.Key]
		return gone
	})
	return c.planRowChange(ctx, o.Op(), ws, table, kept)
}

// upsertDocuments replaces documents of current that share a key with one of
// rows and appends the rest. Rows without a key get the next free numeric
// one, matching the keys generated at ingest.
func upsertDocuments(current, rows []models.Document) []models.Document {
	merged := slices.Clone(current)
	index := make(map[string]int, len(merged)+len(rows))
	for i, d := range merged {
		index[d.Key] = i
	}
	next := len(merged)
	for _, d := range rows {
		for d.Key == "" {
			next++
			if _, taken := index[strconv.Itoa(next)]; !taken {
				d.Key = strconv.Itoa(next)
			}
		}
		if i, ok := index[d.Key]; ok {
			merged[i] = d
			continue
		}
		index[d.Key] = len(merged)
		merged = append(merged, d)
	}
	return merged
}
