package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"multinet/internal/apperrors"
	"multinet/internal/ingest"
	"multinet/internal/models"
)

const (
	readPageSize   = 10000
	keyLookupChunk = 1000
)

func splitRef(ref string) (table, key string) {
	table, key, ok := strings.Cut(ref, "/")
	if !ok {
		return "", ref
	}
	return table, key
}

// tableKind looks in the pending payload first, then in committed metadata.
func (c *Coordinator) tableKind(ctx context.Context, ws *models.Workspace, name string, pending map[string]*ingest.TablePayload) (models.TableKind, bool, error) {
	if tp, ok := pending[name]; ok {
		return tp.Kind, true, nil
	}
	t, err := c.meta.GetTable(ctx, ws.ID, name)
	if err != nil {
		return "", false, storeError("check graph", "look up table", err)
	}
	if t == nil {
		return "", false, nil
	}
	return t.Kind, true, nil
}

func (c *Coordinator) documents(ctx context.Context, ws *models.Workspace, table string, pending map[string]*ingest.TablePayload) ([]models.Document, error) {
	if tp, ok := pending[table]; ok {
		return tp.Documents, nil
	}
	var docs []models.Document
	for offset := 0; ; offset += readPageSize {
		page, err := c.graphs.ReadDocuments(ctx, ws.Name, table, offset, readPageSize)
		if err != nil {
			return nil, storeError("check graph", "read "+table, err)
		}
		docs = append(docs, page...)
		if len(page) < readPageSize {
			return docs, nil
		}
	}
}

// endpointTables derives the node tables of a graph from the endpoints of
// its edge table, in first-seen order.
func (c *Coordinator) endpointTables(ctx context.Context, ws *models.Workspace, edgeTable string) ([]string, error) {
	edges, err := c.documents(ctx, ws, edgeTable, nil)
	if err != nil {
		return nil, err
	}
	var tables []string
	for _, e := range edges {
		for _, ref := range []string{e.From, e.To} {
			if t, _ := splitRef(ref); t != "" {
				tables = append(tables, t)
			}
		}
	}
	tables = lo.Uniq(tables)
	if len(tables) == 0 {
		return nil, apperrors.Invalid(fmt.Sprintf("cannot derive node tables from %s: no qualified endpoints", edgeTable))
	}
	return tables, nil
}

// checkGraph validates table kinds and returns one issue per edge endpoint
// that does not resolve to a row of one of nodeTables.
func (c *Coordinator) checkGraph(ctx context.Context, ws *models.Workspace, graph, edgeTable string, nodeTables []string, pending map[string]*ingest.TablePayload) ([]models.Issue, error) {
	kind, ok, err := c.tableKind(ctx, ws, edgeTable, pending)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.NotFound("table " + edgeTable)
	}
	if kind != models.TableKindEdge {
		return nil, apperrors.Invalid(fmt.Sprintf("table %s is not an edge table", edgeTable))
	}
	if len(nodeTables) == 0 {
		return nil, apperrors.Invalid(fmt.Sprintf("graph %s has no node tables", graph))
	}
	for _, t := range nodeTables {
		kind, ok, err := c.tableKind(ctx, ws, t, pending)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperrors.NotFound("table " + t)
		}
		if kind == models.TableKindEdge {
			return nil, apperrors.Invalid(fmt.Sprintf("table %s is an edge table and cannot hold nodes", t))
		}
	}

	edges, err := c.documents(ctx, ws, edgeTable, pending)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string][]string, len(nodeTables))
	for _, t := range nodeTables {
		wanted[t] = nil
	}
	for _, e := range edges {
		for _, ref := range []string{e.From, e.To} {
			t, key := splitRef(ref)
			if _, ok := wanted[t]; ok {
				wanted[t] = append(wanted[t], key)
			}
		}
	}

	found := make(map[string]map[string]struct{}, len(wanted))
	for t, keys := range wanted {
		if found[t], err = c.resolveKeys(ctx, ws, t, lo.Uniq(keys), pending); err != nil {
			return nil, err
		}
	}

	var issues []models.Issue
	for i, e := range edges {
		for _, end := range []struct{ column, ref string }{{"_from", e.From}, {"_to", e.To}} {
			t, key := splitRef(end.ref)
			keys, ok := found[t]
			if ok {
				if _, hit := keys[key]; hit {
					continue
				}
			}
			msg := fmt.Sprintf("endpoint does not resolve to a node of graph %s", graph)
			if !ok {
				msg = fmt.Sprintf("endpoint table is not a node table of graph %s", graph)
			}
			issues = append(issues, models.Issue{
				Kind:    models.IssueKindReferential,
				Table:   edgeTable,
				Column:  end.column,
				Row:     i + 1,
				Value:   end.ref,
				Message: msg,
				Fatal:   true,
			})
		}
	}
	return issues, nil
}

func (c *Coordinator) resolveKeys(ctx context.Context, ws *models.Workspace, table string, keys []string, pending map[string]*ingest.TablePayload) (map[string]struct{}, error) {
	if tp, ok := pending[table]; ok {
		out := make(map[string]struct{}, len(tp.Documents))
		for _, d := range tp.Documents {
			out[d.Key] = struct{}{}
		}
		return out, nil
	}
	out := make(map[string]struct{}, len(keys))
	for _, chunk := range lo.Chunk(keys, keyLookupChunk) {
		hits, err := c.graphs.ExistingKeys(ctx, ws.Name, table, chunk)
		if err != nil {
			return nil, storeError("check graph", "look up keys of "+table, err)
		}
		for k := range hits {
			out[k] = struct{}{}
		}
	}
	return out, nil
}
