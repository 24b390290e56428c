package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"multinet/internal/models"
)

// WriteCollection creates the collection marker and writes docs in batches.
// The collection must not exist yet; it is written under a staging name and
// only becomes visible through Promote.
func (s *GraphStore) WriteCollection(ctx context.Context, namespace, collection string, kind models.TableKind, docs []models.Document) error {
	params := map[string]any{"namespace": namespace, "name": collection, "kind": string(kind)}
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		found, err := exists(ctx, tx, `MATCH (n:Namespace {name: $namespace}) RETURN count(n) AS n`, params)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("namespace %s: %w", namespace, ErrNotFound)
		}
		taken, err := exists(ctx, tx, `MATCH (c:Collection {namespace: $namespace, name: $name}) RETURN count(c) AS n`, params)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrCollectionExists
		}
		return nil, run(ctx, tx, `CREATE (:Collection {namespace: $namespace, name: $name, kind: $kind, created_at: timestamp()})`, params)
	})
	if err != nil {
		return fmt.Errorf("create collection %s/%s: %w", namespace, collection, err)
	}

	for start := 0; start < len(docs); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+s.batchSize, len(docs))
		rows, err := encodeDocuments(docs[start:end])
		if err != nil {
			return err
		}
		_, err = s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			return nil, run(ctx, tx, `
				UNWIND $rows AS row
				CREATE (:Row {namespace: $namespace, collection: $name,
					key: row.key, from: row.from, to: row.to, data: row.data})`,
				map[string]any{"namespace": namespace, "name": collection, "rows": rows})
		})
		if err != nil {
			return fmt.Errorf("write rows %d-%d of %s/%s: %w", start, end, namespace, collection, err)
		}
	}

	s.log.Debug("collection written",
		zap.String("namespace", namespace),
		zap.String("collection", collection),
		zap.Int("rows", len(docs)))
	return nil
}

func encodeDocuments(docs []models.Document) ([]map[string]any, error) {
	rows := make([]map[string]any, len(docs))
	for i, d := range docs {
		data, err := json.Marshal(d.Fields)
		if err != nil {
			return nil, fmt.Errorf("encode row %s: %w", d.Key, err)
		}
		row := map[string]any{"key": d.Key, "data": string(data)}
		if d.From != "" {
			row["from"] = d.From
			row["to"] = d.To
		}
		rows[i] = row
	}
	return rows, nil
}

// RenameCollection moves a collection to a new name in one transaction.
func (s *GraphStore) RenameCollection(ctx context.Context, namespace, from, to string) error {
	params := map[string]any{"namespace": namespace, "from": from, "to": to}
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		taken, err := exists(ctx, tx, `MATCH (c:Collection {namespace: $namespace, name: $to}) RETURN count(c) AS n`, params)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrCollectionExists
		}
		found, err := exists(ctx, tx, `MATCH (c:Collection {namespace: $namespace, name: $from}) RETURN count(c) AS n`, params)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, ErrNotFound
		}
		if err := run(ctx, tx, `MATCH (r:Row {namespace: $namespace, collection: $from}) SET r.collection = $to`, params); err != nil {
			return nil, err
		}
		return nil, run(ctx, tx, `MATCH (c:Collection {namespace: $namespace, name: $from}) SET c.name = $to, c.created_at = timestamp()`, params)
	})
	if err != nil {
		return fmt.Errorf("rename collection %s/%s to %s: %w", namespace, from, to, err)
	}
	return nil
}

// DropCollection is idempotent.
func (s *GraphStore) DropCollection(ctx context.Context, namespace, collection string) error {
	params := map[string]any{"namespace": namespace, "name": collection}
	if err := s.deleteInBatches(ctx, `MATCH (r:Row {namespace: $namespace, collection: $name})`, params); err != nil {
		return fmt.Errorf("drop collection %s/%s: %w", namespace, collection, err)
	}
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, run(ctx, tx, `MATCH (c:Collection {namespace: $namespace, name: $name}) DELETE c`, params)
	})
	if err != nil {
		return fmt.Errorf("drop collection %s/%s: %w", namespace, collection, err)
	}
	return nil
}

func (s *GraphStore) ListCollections(ctx context.Context, namespace string) ([]models.CollectionInfo, error) {
	out, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MATCH (c:Collection {namespace: $namespace})
			RETURN c.name AS name, c.kind AS kind, c.created_at AS created_at
			ORDER BY name`, map[string]any{"namespace": namespace})
		if err != nil {
			return nil, err
		}
		var infos []models.CollectionInfo
		for result.Next(ctx) {
			record := result.Record()
			infos = append(infos, models.CollectionInfo{
				Name:      getStringFromRecord(record, "name"),
				Kind:      models.TableKind(getStringFromRecord(record, "kind")),
				CreatedAt: time.UnixMilli(getInt64FromRecord(record, "created_at")),
			})
		}
		return infos, result.Err()
	})
	if err != nil {
		return nil, err
	}
	return out.([]models.CollectionInfo), nil
}

// Promote replaces each live collection with its staged counterpart. All
// swaps happen in one transaction: readers see either every old collection
// or every new one.
func (s *GraphStore) Promote(ctx context.Context, namespace string, swaps []models.CollectionSwap) error {
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, swap := range swaps {
			params := map[string]any{"namespace": namespace, "staging": swap.Staging, "live": swap.Live}
			found, err := exists(ctx, tx, `MATCH (c:Collection {namespace: $namespace, name: $staging}) RETURN count(c) AS n`, params)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, fmt.Errorf("staging collection %s: %w", swap.Staging, ErrNotFound)
			}
		}
		for _, swap := range swaps {
			params := map[string]any{"namespace": namespace, "staging": swap.Staging, "live": swap.Live}
			statements := []string{
				`MATCH (r:Row {namespace: $namespace, collection: $live}) DETACH DELETE r`,
				`MATCH (c:Collection {namespace: $namespace, name: $live}) DELETE c`,
				`MATCH (r:Row {namespace: $namespace, collection: $staging}) SET r.collection = $live`,
				`MATCH (c:Collection {namespace: $namespace, name: $staging}) SET c.name = $live, c.created_at = timestamp()`,
			}
			for _, stmt := range statements {
				if err := run(ctx, tx, stmt, params); err != nil {
					return nil, err
				}
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("promote collections in %s: %w", namespace, err)
	}
	return nil
}

// Graph definitions

func (s *GraphStore) CreateGraph(ctx context.Context, namespace string, def models.GraphDefinition) error {
	params := map[string]any{
		"namespace":        namespace,
		"name":             def.Name,
		"edge_collection":  def.EdgeCollection,
		"node_collections": def.NodeCollections,
	}
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		found, err := exists(ctx, tx, `MATCH (n:Namespace {name: $namespace}) RETURN count(n) AS n`, params)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, ErrNotFound
		}
		taken, err := exists(ctx, tx, `MATCH (g:GraphDef {namespace: $namespace, name: $name}) RETURN count(g) AS n`, params)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrGraphExists
		}
		return nil, run(ctx, tx, `
			CREATE (:GraphDef {namespace: $namespace, name: $name,
				edge_collection: $edge_collection, node_collections: $node_collections,
				created_at: timestamp()})`, params)
	})
	if err != nil {
		return fmt.Errorf("create graph %s/%s: %w", namespace, def.Name, err)
	}
	return nil
}

func (s *GraphStore) DropGraph(ctx context.Context, namespace, name string) error {
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, run(ctx, tx, `MATCH (g:GraphDef {namespace: $namespace, name: $name}) DELETE g`,
			map[string]any{"namespace": namespace, "name": name})
	})
	if err != nil {
		return fmt.Errorf("drop graph %s/%s: %w", namespace, name, err)
	}
	return nil
}

func (s *GraphStore) GetGraph(ctx context.Context, namespace, name string) (*models.GraphDefinition, error) {
	out, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		record, err := single(ctx, tx, `
			MATCH (g:GraphDef {namespace: $namespace, name: $name})
			RETURN g.name AS name, g.edge_collection AS edge_collection, g.node_collections AS node_collections`,
			map[string]any{"namespace": namespace, "name": name})
		if err != nil || record == nil {
			return (*models.GraphDefinition)(nil), err
		}
		return &models.GraphDefinition{
			Name:            getStringFromRecord(record, "name"),
			EdgeCollection:  getStringFromRecord(record, "edge_collection"),
			NodeCollections: getStringsFromRecord(record, "node_collections"),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*models.GraphDefinition), nil
}
