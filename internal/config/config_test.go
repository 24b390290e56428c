package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "neo4j://localhost:7687", cfg.Neo4j.URI)
	assert.Equal(t, 1000, cfg.Ingest.SampleSize)
	assert.InDelta(t, 0.2, cfg.Ingest.MixedTolerance, 1e-9)
	assert.Equal(t, 5*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Worker.HeartbeatInterval)
	assert.True(t, cfg.Lock.Advisory)
	assert.False(t, cfg.Storage.Enabled())
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("PORT", "9090")
	t.Setenv("INGEST_REFERENTIAL_TOLERANCE", "3")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("STORAGE_ENDPOINT", "http://minio:9000")
	t.Setenv("STORAGE_ACCESS_KEY", "key")
	t.Setenv("STORAGE_SECRET_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 3, cfg.Ingest.ReferentialTolerance)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.Storage.Enabled())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "port", mutate: func(c *Config) { c.Port = 70000 }, wantErr: "PORT"},
		{name: "password", mutate: func(c *Config) { c.Database.Password = "" }, wantErr: "DB_PASSWORD"},
		{name: "tolerance", mutate: func(c *Config) { c.Ingest.Tolerance = 1 }, wantErr: "INGEST_TYPE_TOLERANCE"},
		{name: "mixed", mutate: func(c *Config) { c.Ingest.MixedTolerance = -0.1 }, wantErr: "INGEST_MIXED_TOLERANCE"},
		{name: "concurrency", mutate: func(c *Config) { c.Worker.Concurrency = 0 }, wantErr: "WORKER_CONCURRENCY"},
		{name: "heartbeat", mutate: func(c *Config) { c.Worker.HeartbeatInterval = 40 * time.Second }, wantErr: "WORKER_HEARTBEAT_INTERVAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Port:     8080,
				Database: DatabaseConfig{Password: "x"},
				Neo4j:    Neo4jConfig{URI: "neo4j://localhost"},
				Ingest:   IngestConfig{SampleSize: 10, MixedTolerance: 0.2},
				Worker:   WorkerConfig{Concurrency: 1, HeartbeatInterval: time.Second, StaleThreshold: time.Minute},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p@ss", Database: "multinet", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p%40ss@db:5433/multinet?sslmode=disable", d.DSN())
}
