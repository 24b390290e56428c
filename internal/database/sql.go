package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"multinet/internal/config"
)

// OpenSQL opens a database/sql handle over lib/pq. Advisory locks are held on
// its connections, which pgxpool does not expose as *sql.Conn.
func OpenSQL(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open lock connection: %w", err)
	}
	db.SetMaxOpenConns(int(cfg.MaxConns))
	db.SetConnMaxLifetime(cfg.MaxLifetime)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping lock connection: %w", err)
	}
	return db, nil
}
