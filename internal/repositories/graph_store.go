package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"multinet/internal/models"
	"multinet/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrNamespaceExists  = errors.New("namespace already exists")
	ErrCollectionExists = errors.New("collection already exists")
	ErrGraphExists      = errors.New("graph already exists")
)

const defaultWriteBatch = 10000

// Collections under these prefixes are in flight or awaiting cleanup. They
// are never visible to queries.
const (
	StagingPrefix = "__staging_"
	TrashPrefix   = "__trash_"
)

// MaxQueryRows caps the rows a caller-supplied query may return.
const MaxQueryRows = 10000

// GraphStore keeps table rows and graph definitions in Neo4j.
//
// Layout: one (:Namespace {name}) per workspace, one (:Collection
// {namespace, name, kind}) per table, one (:Row {namespace, collection, key,
// from, to, data}) per row and one (:GraphDef) per graph. Row fields are
// stored as a JSON string because properties cannot hold nested maps.
// Readers always address a collection by its live name, so a collection
// renamed or promoted inside one transaction flips atomically.
type GraphStore struct {
	driver    neo4j.DriverWithContext
	database  string
	batchSize int
	log       *zap.Logger
}

func NewGraphStore(driver neo4j.DriverWithContext, database string, batchSize int) *GraphStore {
	if batchSize <= 0 {
		batchSize = defaultWriteBatch
	}
	return &GraphStore{
		driver:    driver,
		database:  database,
		batchSize: batchSize,
		log:       logger.Get().Named("graph_store"),
	}
}

func (s *GraphStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

func (s *GraphStore) write(ctx context.Context, work func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	return session.ExecuteWrite(ctx, work)
}

func (s *GraphStore) read(ctx context.Context, work func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)
	return session.ExecuteRead(ctx, work)
}

// run executes one statement and consumes its result so errors surface here.
func run(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) error {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}

func single(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) (*neo4j.Record, error) {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	if result.Next(ctx) {
		return result.Record(), nil
	}
	return nil, result.Err()
}

func exists(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) (bool, error) {
	record, err := single(ctx, tx, query, params)
	if err != nil {
		return false, err
	}
	return record != nil && getInt64FromRecord(record, "n") > 0, nil
}

// Namespaces

func (s *GraphStore) CreateNamespace(ctx context.Context, namespace string) error {
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		found, err := exists(ctx, tx, `MATCH (n:Namespace {name: $name}) RETURN count(n) AS n`, map[string]any{"name": namespace})
		if err != nil {
			return nil, err
		}
		if found {
			return nil, ErrNamespaceExists
		}
		return nil, run(ctx, tx, `CREATE (:Namespace {name: $name, created_at: timestamp()})`, map[string]any{"name": namespace})
	})
	if err != nil {
		return fmt.Errorf("create namespace %s: %w", namespace, err)
	}
	return nil
}

func (s *GraphStore) NamespaceExists(ctx context.Context, namespace string) (bool, error) {
	found, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return exists(ctx, tx, `MATCH (n:Namespace {name: $name}) RETURN count(n) AS n`, map[string]any{"name": namespace})
	})
	if err != nil {
		return false, err
	}
	return found.(bool), nil
}

// RenameNamespace moves every node of the namespace in one transaction.
func (s *GraphStore) RenameNamespace(ctx context.Context, from, to string) error {
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		params := map[string]any{"from": from, "to": to}
		taken, err := exists(ctx, tx, `MATCH (n:Namespace {name: $to}) RETURN count(n) AS n`, params)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrNamespaceExists
		}
		found, err := exists(ctx, tx, `MATCH (n:Namespace {name: $from}) RETURN count(n) AS n`, params)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, ErrNotFound
		}
		statements := []string{
			`MATCH (r:Row {namespace: $from}) SET r.namespace = $to`,
			`MATCH (c:Collection {namespace: $from}) SET c.namespace = $to`,
			`MATCH (g:GraphDef {namespace: $from}) SET g.namespace = $to`,
			`MATCH (n:Namespace {name: $from}) SET n.name = $to, n.renamed_at = timestamp()`,
		}
		for _, stmt := range statements {
			if err := run(ctx, tx, stmt, params); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("rename namespace %s to %s: %w", from, to, err)
	}
	return nil
}

// DropNamespace deletes rows in batches, then the namespace itself. It is
// idempotent.
func (s *GraphStore) DropNamespace(ctx context.Context, namespace string) error {
	params := map[string]any{"namespace": namespace}
	if err := s.deleteInBatches(ctx, `MATCH (r:Row {namespace: $namespace})`, params); err != nil {
		return fmt.Errorf("drop namespace %s: %w", namespace, err)
	}
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		statements := []string{
			`MATCH (c:Collection {namespace: $namespace}) DELETE c`,
			`MATCH (g:GraphDef {namespace: $namespace}) DELETE g`,
			`MATCH (n:Namespace {name: $namespace}) DELETE n`,
		}
		for _, stmt := range statements {
			if err := run(ctx, tx, stmt, params); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("drop namespace %s: %w", namespace, err)
	}
	return nil
}

func (s *GraphStore) ListNamespaces(ctx context.Context) ([]models.CollectionInfo, error) {
	out, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MATCH (n:Namespace)
			RETURN n.name AS name, coalesce(n.renamed_at, n.created_at) AS created_at
			ORDER BY name`, nil)
		if err != nil {
			return nil, err
		}
		var infos []models.CollectionInfo
		for result.Next(ctx) {
			record := result.Record()
			infos = append(infos, models.CollectionInfo{
				Name:      getStringFromRecord(record, "name"),
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

func (s *GraphStore) deleteInBatches(ctx context.Context, match string, params map[string]any) error {
	query := match + ` WITH r LIMIT $limit DETACH DELETE r RETURN count(*) AS n`
	batch := make(map[string]any, len(params)+1)
	for k, v := range params {
		batch[k] = v
	}
	batch["limit"] = s.batchSize

	for {
		deleted, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			record, err := single(ctx, tx, query, batch)
			if err != nil || record == nil {
				return int64(0), err
			}
			return getInt64FromRecord(record, "n"), nil
		})
		if err != nil {
			return err
		}
		if deleted.(int64) == 0 {
			return nil
		}
	}
}
