package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/coldreach/coldreach/internal/auth"
	"github.com/coldreach/coldreach/internal/cache"
	"github.com/coldreach/coldreach/internal/config"
	"github.com/coldreach/coldreach/internal/http/router"
	"github.com/coldreach/coldreach/internal/metrics"
	"github.com/coldreach/coldreach/internal/oauth"
	"github.com/coldreach/coldreach/internal/oauth/apple"
	"github.com/coldreach/coldreach/internal/oauth/google"
	"github.com/coldreach/coldreach/internal/observability/logger"
	"github.com/coldreach/coldreach/internal/store/core"
	"github.com/coldreach/coldreach/internal/store/memory"
	"github.com/coldreach/coldreach/internal/store/pg"
	"github.com/coldreach/coldreach/internal/token"
	migrations "github.com/coldreach/coldreach/migrations/postgres"
)

func main() {
	// .env es opcional; en deploy las vars vienen del entorno real.
	_ = godotenv.Load()

	defaultConfig := os.Getenv("COLDREACH_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}
	var configPath string

	root := &cobra.Command{
		Use:   "coldreach",
		Short: "Servicio de autenticación OAuth2 (Google / Apple)",
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfig, "Path al YAML de configuración (env COLDREACH_CONFIG)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	var migrateDown bool
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones embebidas contra PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(configPath, migrateDown)
		},
	}
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "Revierte en vez de aplicar")

	root.AddCommand(serveCmd, migrateCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: os.Getenv("LOG_LEVEL"), ServiceName: "coldreach"})
	defer func() { _ = logger.Sync() }()
	log := logger.Named("main")

	ctx := context.Background()

	// Store
	var repo core.Repository
	switch cfg.Storage.Driver {
	case "postgres":
		store, err := pg.New(ctx, cfg.Storage.DSN, pg.Config{})
		if err != nil {
			return fmt.Errorf("pg store: %w", err)
		}
		repo = store
	default:
		repo = memory.New()
		log.Warn("using in-memory store, data will not survive restarts")
	}
	defer repo.Close()

	// Cache (JWKS)
	jwksCache := cache.New(cache.Config{
		Kind:       cfg.Cache.Kind,
		RedisAddr:  cfg.Cache.Redis.Addr,
		RedisDB:    cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: cfg.CacheDefaultTTL(),
	})
	defer func() { _ = jwksCache.Close() }()

	// Token codec
	codec, err := token.NewCodec(cfg.JWT.Secret, cfg.JWT.Algorithm, cfg.AccessTTL(), cfg.RefreshTTL())
	if err != nil {
		return err
	}

	// Providers
	providers := make(map[string]oauth.Provider)
	if cfg.Providers.Google.Enabled {
		g := cfg.Providers.Google
		providers[core.ProviderGoogle] = google.New(g.ClientID, g.ClientSecret, g.RedirectURL)
	}
	if cfg.Providers.Apple.Enabled {
		a := cfg.Providers.Apple
		pem, err := cfg.ApplePrivateKeyPEM()
		if err != nil {
			return err
		}
		ap, err := apple.New(a.ClientID, a.TeamID, a.KeyID, pem, a.RedirectURL, jwksCache)
		if err != nil {
			return fmt.Errorf("apple provider: %w", err)
		}
		providers[core.ProviderApple] = ap
	}

	m := metrics.New()

	svc := auth.New(auth.Deps{
		Repo:      repo,
		Codec:     codec,
		Providers: providers,
		StateTTL:  cfg.StateTTL(),
		Metrics:   m,
	})

	handler := router.New(router.Deps{
		Auth:    svc,
		Repo:    repo,
		Metrics: m,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", logger.String("addr", cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case sig := <-stop:
		log.Info("shutting down", logger.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func runMigrate(configPath string, down bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	if cfg.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required (DATABASE_URL)")
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: "info"})
	defer func() { _ = logger.Sync() }()
	log := logger.Named("migrate")

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("pgxpool: %w", err)
	}
	defer pool.Close()

	suffix := "_up.sql"
	if down {
		suffix = "_down.sql"
	}
	files, err := migrations.List(suffix)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		log.Info("nothing to do")
		return nil
	}

	sort.Strings(files)
	if down {
		// Las down se aplican en orden inverso.
		for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
			files[i], files[j] = files[j], files[i]
		}
	}

	for _, f := range files {
		sql, err := migrations.FS.ReadFile(f)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("exec %s: %w", f, err)
		}
		log.Info("applied", logger.String("file", f))
	}
	log.Info("migrations completed", logger.Count(int64(len(files))))
	return nil
}
