package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/allisson/go-pglock/v3"
	kitsync "github.com/rudderlabs/rudder-go-kit/sync"
	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"

	"multinet/pkg/logger"
)

// LockRequest asks for one key. Shared holders of a key run together and
// exclude exclusive holders.
type LockRequest struct {
	Key    string
	Shared bool
}

// Locker grants mutual exclusion over (workspace, entity) keys.
// The returned release function must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, reqs ...LockRequest) (release func(), err error)
}

// KeyedLocker serialises operations in-process with a partition RW lock and,
// when db is set, across processes with postgres advisory locks.
// Keys are always taken in sorted order so multi-key operations cannot
// deadlock against each other.
type KeyedLocker struct {
	local *kitsync.PartitionRWLocker
	db    *sql.DB
	log   *zap.Logger
}

func NewKeyedLocker(db *sql.DB) *KeyedLocker {
	return &KeyedLocker{
		local: kitsync.NewPartitionRWLocker(),
		db:    db,
		log:   logger.Get().Named("locker"),
	}
}

// LockKey names the lock guarding one entity of a workspace. An empty entity
// guards the workspace itself.
func LockKey(workspace, entity string) string {
	return workspace + "/" + entity
}

// workspaceLock is held exclusively by workspace operations.
func workspaceLock(workspace string) LockRequest {
	return LockRequest{Key: LockKey(workspace, "")}
}

// entityLocks holds the workspace shared, so it cannot be renamed or deleted
// underneath, and each entity exclusively.
func entityLocks(workspace string, entities ...string) []LockRequest {
	reqs := []LockRequest{{Key: LockKey(workspace, ""), Shared: true}}
	for _, e := range entities {
		reqs = append(reqs, LockRequest{Key: LockKey(workspace, e)})
	}
	return reqs
}

// normalize merges duplicate keys, exclusive winning, and sorts by key.
func normalize(reqs []LockRequest) []LockRequest {
	byKey := make(map[string]bool, len(reqs))
	for _, r := range reqs {
		shared, seen := byKey[r.Key]
		byKey[r.Key] = r.Shared && (!seen || shared)
	}
	out := make([]LockRequest, 0, len(byKey))
	for key, shared := range byKey {
		out = append(out, LockRequest{Key: key, Shared: shared})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (l *KeyedLocker) Lock(ctx context.Context, reqs ...LockRequest) (func(), error) {
	reqs = normalize(reqs)

	for _, r := range reqs {
		if r.Shared {
			l.local.RLock(r.Key)
		} else {
			l.local.Lock(r.Key)
		}
	}
	releaseLocal := func() {
		for i := len(reqs) - 1; i >= 0; i-- {
			if reqs[i].Shared {
				l.local.RUnlock(reqs[i].Key)
			} else {
				l.local.Unlock(reqs[i].Key)
			}
		}
	}
	if l.db == nil {
		return releaseLocal, nil
	}

	held := make([]pglock.Locker, 0, len(reqs))
	releaseAdvisory := func() {
		// the lock may outlive a cancelled request context
		ctx := context.WithoutCancel(ctx)
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Unlock(ctx); err != nil {
				l.log.Warn("Failed to release advisory lock", zap.Error(err))
			}
			if err := held[i].Close(); err != nil {
				l.log.Warn("Failed to close advisory lock connection", zap.Error(err))
			}
		}
	}

	for _, r := range reqs {
		lock, err := l.advisory(ctx, r)
		if err != nil {
			releaseAdvisory()
			releaseLocal()
			return nil, fmt.Errorf("creating advisory lock for %q: %w", r.Key, err)
		}
		if err := lock.WaitAndLock(ctx); err != nil {
			_ = lock.Close()
			releaseAdvisory()
			releaseLocal()
			return nil, fmt.Errorf("acquiring advisory lock for %q: %w", r.Key, err)
		}
		held = append(held, lock)
	}

	return func() {
		releaseAdvisory()
		releaseLocal()
	}, nil
}

func (l *KeyedLocker) advisory(ctx context.Context, r LockRequest) (pglock.Locker, error) {
	if r.Shared {
		conn, err := l.db.Conn(ctx)
		if err != nil {
			return nil, err
		}
		return &sharedAdvisoryLock{id: advisoryID(r.Key), conn: conn}, nil
	}
	lock, err := pglock.NewLock(ctx, advisoryID(r.Key), l.db)
	if err != nil {
		return nil, err
	}
	return &lock, nil
}

// sharedAdvisoryLock is the shared-mode counterpart of pglock.Lock, holding a
// session level pg_advisory_lock_shared on its own connection.
type sharedAdvisoryLock struct {
	id   int64
	conn *sql.Conn
}

var _ pglock.Locker = (*sharedAdvisoryLock)(nil)

func (l *sharedAdvisoryLock) Lock(ctx context.Context) (bool, error) {
	var ok bool
	err := l.conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock_shared($1)", l.id).Scan(&ok)
	return ok, err
}

func (l *sharedAdvisoryLock) WaitAndLock(ctx context.Context) error {
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_lock_shared($1)", l.id)
	return err
}

func (l *sharedAdvisoryLock) Unlock(ctx context.Context) error {
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock_shared($1)", l.id)
	return err
}

func (l *sharedAdvisoryLock) Close() error {
	return l.conn.Close()
}

func advisoryID(key string) int64 {
	return int64(murmur3.Sum64([]byte("multinet:" + key)))
}
