package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"multinet/internal/models"
)

func (s *GraphStore) ExistingKeys(ctx context.Context, namespace, collection string, keys []string) (map[string]struct{}, error) {
	out, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MATCH (r:Row {namespace: $namespace, collection: $name})
			WHERE r.key IN $keys
			RETURN r.key AS key`,
			map[string]any{"namespace": namespace, "name": collection, "keys": keys})
		if err != nil {
			return nil, err
		}
		found := make(map[string]struct{}, len(keys))
		for result.Next(ctx) {
			found[getStringFromRecord(result.Record(), "key")] = struct{}{}
		}
		return found, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("lookup keys in %s/%s: %w", namespace, collection, err)
	}
	return out.(map[string]struct{}), nil
}

func (s *GraphStore) ReadDocuments(ctx context.Context, namespace, collection string, offset, limit int) ([]models.Document, error) {
	out, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MATCH (r:Row {namespace: $namespace, collection: $name})
			RETURN r.key AS key, r.from AS from, r.to AS to, r.data AS data
			ORDER BY r.key
			SKIP $offset LIMIT $limit`,
			map[string]any{"namespace": namespace, "name": collection, "offset": offset, "limit": limit})
		if err != nil {
			return nil, err
		}
		var docs []models.Document
		for result.Next(ctx) {
			record := result.Record()
			doc := models.Document{
				Key:  getStringFromRecord(record, "key"),
				From: getStringFromRecord(record, "from"),
				To:   getStringFromRecord(record, "to"),
			}
			if err := json.UnmarshalFromString(getStringFromRecord(record, "data"), &doc.Fields); err != nil {
				return nil, fmt.Errorf("decode row %s: %w", doc.Key, err)
			}
			docs = append(docs, doc)
		}
		return docs, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", namespace, collection, err)
	}
	return out.([]models.Document), nil
}

func (s *GraphStore) CountDocuments(ctx context.Context, namespace, collection string) (int64, error) {
	out, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		record, err := single(ctx, tx, `
			MATCH (r:Row {namespace: $namespace, collection: $name}) RETURN count(r) AS n`,
			map[string]any{"namespace": namespace, "name": collection})
		if err != nil || record == nil {
			return int64(0), err
		}
		return getInt64FromRecord(record, "n"), nil
	})
	if err != nil {
		return 0, err
	}
	return out.(int64), nil
}

// Query runs a caller-supplied Cypher statement in a read transaction with
// $namespace bound. Nodes and relationships are returned as property maps.
// Records holding an entity of another namespace, or of a staged or trashed
// collection, are dropped. At most MaxQueryRows+1 rows are read so callers
// can tell a result was cut.
func (s *GraphStore) Query(ctx context.Context, namespace, cypher string, params map[string]any) ([]map[string]any, error) {
	bound := make(map[string]any, len(params)+1)
	for k, v := range params {
		bound[k] = v
	}
	bound["namespace"] = namespace

	out, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, bound)
		if err != nil {
			return nil, err
		}
		rows := make([]map[string]any, 0)
		hidden := 0
		for len(rows) <= MaxQueryRows && result.Next(ctx) {
			record := result.Record()
			if !visible(record.Values, namespace) {
				hidden++
				continue
			}
			row := make(map[string]any, len(record.Keys))
			for i, key := range record.Keys {
				row[key] = plainValue(record.Values[i])
			}
			rows = append(rows, row)
		}
		if err := result.Err(); err != nil {
			return nil, err
		}
		if hidden > 0 {
			s.log.Warn("Dropped query records outside the namespace",
				zap.String("namespace", namespace),
				zap.Int("records", hidden))
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]map[string]any), nil
}

func hiddenCollection(name any) bool {
	s, _ := name.(string)
	return strings.HasPrefix(s, StagingPrefix) || strings.HasPrefix(s, TrashPrefix)
}

// visibleEntity checks the scoping properties every stored entity carries.
func visibleEntity(labels []string, props map[string]any, namespace string) bool {
	if ns, ok := props["namespace"]; ok && ns != namespace {
		return false
	}
	switch {
	case lo.Contains(labels, "Namespace"):
		return props["name"] == namespace
	case lo.Contains(labels, "Collection"):
		return !hiddenCollection(props["name"])
	}
	return !hiddenCollection(props["collection"])
}

func visible(values []any, namespace string) bool {
	for _, v := range values {
		switch val := v.(type) {
		case neo4j.Node:
			if !visibleEntity(val.Labels, val.Props, namespace) {
				return false
			}
		case neo4j.Relationship:
			if !visibleEntity(nil, val.Props, namespace) {
				return false
			}
		case neo4j.Path:
			for _, n := range val.Nodes {
				if !visibleEntity(n.Labels, n.Props, namespace) {
					return false
				}
			}
			for _, r := range val.Relationships {
				if !visibleEntity(nil, r.Props, namespace) {
					return false
				}
			}
		case []any:
			if !visible(val, namespace) {
				return false
			}
		case map[string]any:
			if !visible(lo.Values(val), namespace) {
				return false
			}
		}
	}
	return true
}

func plainValue(v any) any {
	switch val := v.(type) {
	case neo4j.Node:
		return val.Props
	case neo4j.Relationship:
		return val.Props
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = plainValue(item)
		}
		return out
	}
	return v
}
