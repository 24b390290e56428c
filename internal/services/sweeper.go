package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"multinet/internal/metrics"
	"multinet/pkg/logger"
)

// Sweeper removes staging and trash objects that a crashed or failed
// operation left behind. Objects younger than minAge may still belong to a
// running operation and are kept.
type Sweeper struct {
	graphs GraphStore
	minAge time.Duration
	now    func() time.Time
	log    *zap.Logger
}

func NewSweeper(graphs GraphStore, minAge time.Duration) *Sweeper {
	return &Sweeper{
		graphs: graphs,
		minAge: minAge,
		now:    time.Now,
		log:    logger.Get().Named("sweeper"),
	}
}

func isOrphanName(name string) bool {
	return strings.HasPrefix(name, stagingPrefix) || strings.HasPrefix(name, trashPrefix)
}

// Sweep makes one pass over every namespace and returns how many objects it
// dropped.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	namespaces, err := s.graphs.ListNamespaces(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-s.minAge)

	dropped := 0
	for _, ns := range namespaces {
		if isOrphanName(ns.Name) {
			if ns.CreatedAt.After(cutoff) {
				continue
			}
			if err := s.graphs.DropNamespace(ctx, ns.Name); err != nil {
				s.log.Warn("Failed to drop orphaned namespace", zap.String("namespace", ns.Name), zap.Error(err))
				continue
			}
			dropped++
			continue
		}

		collections, err := s.graphs.ListCollections(ctx, ns.Name)
		if err != nil {
			s.log.Warn("Failed to list collections", zap.String("namespace", ns.Name), zap.Error(err))
			continue
		}
		for _, c := range collections {
			if !isOrphanName(c.Name) || c.CreatedAt.After(cutoff) {
				continue
			}
			if err := s.graphs.DropCollection(ctx, ns.Name, c.Name); err != nil {
				s.log.Warn("Failed to drop orphaned collection",
					zap.String("namespace", ns.Name), zap.String("collection", c.Name), zap.Error(err))
				continue
			}
			dropped++
		}
	}

	if dropped > 0 {
		metrics.SweptObjects.Add(float64(dropped))
		s.log.Info("Swept orphaned objects", zap.Int("count", dropped))
	}
	return dropped, nil
}

// Run adapts Sweep to a periodic worker.
func (s *Sweeper) Run(ctx context.Context) error {
	_, err := s.Sweep(ctx)
	return err
}
