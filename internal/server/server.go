package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"multinet/internal/blob"
	"multinet/internal/config"
	"multinet/internal/database"
	"multinet/internal/handlers"
	"multinet/internal/inference"
	"multinet/internal/ingest"
	"multinet/internal/jobs"
	"multinet/internal/middlewares"
	"multinet/internal/repositories"
	"multinet/internal/routes"
	"multinet/internal/services"
	"multinet/pkg/logger"
)

// Server owns the HTTP listener, the background workers and every store
// connection they share.
type Server struct {
	cfg     *config.Config
	http    *http.Server
	workers []*jobs.Worker

	pool  *pgxpool.Pool
	sqlDB *sql.DB
	neo   neo4j.DriverWithContext
	rdb   *redis.Client
}

func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log := logger.Get()
	s := &Server{cfg: cfg}

	if err := s.connect(ctx); err != nil {
		s.close(context.Background())
		return nil, err
	}

	gormDB, err := database.OpenGorm(s.pool, !cfg.IsProduction())
	if err != nil {
		s.close(context.Background())
		return nil, err
	}

	blobs, err := blob.New(ctx, cfg.Storage)
	if err != nil {
		s.close(context.Background())
		return nil, err
	}

	// Dependency injection
	meta := repositories.NewMetadataStore(s.pool)
	graphStore := repositories.NewGraphStore(s.neo, cfg.Neo4j.Database, cfg.Ingest.BatchSize)
	uploadRepo := repositories.NewUploadRepository(gormDB)
	redisRepo := repositories.NewRedisRepository(s.rdb, cfg.Redis.CancelTTL)
	historyRepo := repositories.NewQueryHistoryRepository(s.pool)

	var lockDB *sql.DB
	if cfg.Lock.Advisory {
		lockDB = s.sqlDB
	}
	coordinator := services.NewCoordinator(meta, graphStore, services.NewKeyedLocker(lockDB))
	pipeline := ingest.NewPipeline(pipelineOptions(cfg.Ingest))

	workspaceService := services.NewWorkspaceService(meta, graphStore, coordinator, pipeline)
	queryService := services.NewQueryService(meta, graphStore, graphStore, historyRepo)
	schemaService := services.NewSchemaService(queryService)
	uploadService := services.NewUploadService(uploadRepo, redisRepo, blobs, meta, graphStore, coordinator, pipeline,
		services.WithHeartbeat(cfg.Worker.HeartbeatInterval))

	if cfg.Worker.Enabled {
		sweeper := services.NewSweeper(graphStore, cfg.Worker.SweepMinAge)
		s.workers = append(s.workers,
			jobs.NewUploadWorker(cfg.Worker, uploadRepo, uploadService),
			jobs.NewWorker(jobs.WorkerConfig{Name: "sweeper", PollInterval: cfg.Worker.SweepInterval}, sweeper.Run),
		)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middlewares.RequestLogger(log.Named("http")))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AddAllowHeaders(middlewares.PrincipalHeader)
	router.Use(cors.New(corsConfig))

	routes.RegisterRoutes(router, routes.Handlers{
		Workspace: handlers.NewWorkspaceHandler(workspaceService, queryService),
		Table:     handlers.NewTableHandler(workspaceService, queryService),
		Graph:     handlers.NewGraphHandler(workspaceService, queryService),
		Upload:    handlers.NewUploadHandler(uploadService),
		Query:     handlers.NewQueryHandler(queryService),
		Schema:    handlers.NewSchemaHandler(schemaService),
	})

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		IdleTimeout:  cfg.IdleTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

func (s *Server) connect(ctx context.Context) error {
	if err := database.EnsureDatabaseExists(ctx, s.cfg.Database); err != nil {
		return err
	}

	var err error
	if s.pool, err = database.Connect(ctx, s.cfg.Database); err != nil {
		return err
	}
	if err := database.RunMigrations(ctx, s.pool); err != nil {
		return err
	}
	if s.cfg.Lock.Advisory {
		if s.sqlDB, err = database.OpenSQL(ctx, s.cfg.Database); err != nil {
			return err
		}
	}
	if s.neo, err = database.ConnectNeo4j(ctx, s.cfg.Neo4j); err != nil {
		return err
	}
	if err := database.EnsureNeo4jSchema(ctx, s.neo, s.cfg.Neo4j.Database); err != nil {
		return err
	}
	if s.rdb, err = database.ConnectRedis(ctx, s.cfg.Redis); err != nil {
		return err
	}
	return nil
}

func pipelineOptions(cfg config.IngestConfig) ingest.Options {
	return ingest.Options{
		SampleSize: cfg.SampleSize,
		Seed:       cfg.SampleSeed,
		Inference: inference.Options{
			Tolerance:           cfg.Tolerance,
			MixedTolerance:      cfg.MixedTolerance,
			CategoryMaxDistinct: cfg.CategoryMaxDistinct,
			CategoryMaxRatio:    cfg.CategoryMaxRatio,
		},
		ReferentialTolerance: cfg.ReferentialTolerance,
	}
}

func (s *Server) Addr() string {
	return s.http.Addr
}

// Start launches the workers and blocks serving HTTP until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	for _, w := range s.workers {
		if err := w.Start(ctx); err != nil {
			return err
		}
	}
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, stops the workers (in-flight uploads are
// left for stale recovery if they outlive ctx) and closes the stores.
func (s *Server) Shutdown(ctx context.Context) error {
	log := logger.Get()
	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	for _, w := range s.workers {
		if err := w.Stop(ctx); err != nil {
			log.Warn("Worker did not stop cleanly", zap.Error(err))
		}
	}
	s.close(ctx)
	return errors.Join(errs...)
}

func (s *Server) close(ctx context.Context) {
	log := logger.Get()
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			log.Warn("Failed to close redis", zap.Error(err))
		}
	}
	if s.neo != nil {
		if err := s.neo.Close(ctx); err != nil {
			log.Warn("Failed to close neo4j driver", zap.Error(err))
		}
	}
	if s.sqlDB != nil {
		_ = s.sqlDB.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
