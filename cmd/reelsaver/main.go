package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"reelsaver/server/internal/config"
	"reelsaver/server/internal/database"
	"reelsaver/server/internal/database/migrations"
	"reelsaver/server/internal/extractor"
	"reelsaver/server/internal/importreels"
	"reelsaver/server/internal/ingest"
	"reelsaver/server/internal/library"
	"reelsaver/server/internal/objectstore"
	"reelsaver/server/internal/process"
	"reelsaver/server/internal/server"
	"reelsaver/server/internal/server/api"
	"reelsaver/server/internal/server/storage"
)

const usage = `Usage: reelsaver [command] [options]
Commands: server, import, migrate

For command-specific options, use: reelsaver [command] -h`

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// objectStore is what both storage backends provide.
type objectStore interface {
	ingest.ObjectStore
	library.ObjectStore
	server.HealthChecker
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	var logLevelStr string
	addCommon := func(fs *flag.FlagSet) {
		fs.StringVar(&cfg.DBDriver, "driver", cfg.DBDriver,
			"Database driver: sqlite3 or postgres (env: REEL_DB_DRIVER)")
		fs.StringVar(&cfg.DBPath, "db", cfg.DBPath,
			"Path to the SQLite database file (env: REEL_DB_PATH)")
		fs.StringVar(&cfg.DBDSN, "dsn", cfg.DBDSN,
			"Postgres connection string (env: REEL_DB_DSN)")
		fs.StringVar(&logLevelStr, "log-level", cfg.LogLevel.String(),
			"Log level: debug, info, warn, error (env: REEL_LOG_LEVEL)")
	}

	serverCmd := flag.NewFlagSet("server", flag.ExitOnError)
	addCommon(serverCmd)
	serverCmd.StringVar(&cfg.ServerHost, "host", cfg.ServerHost,
		"Host to bind the server to (env: REEL_HOST)")
	serverCmd.IntVar(&cfg.ServerPort, "port", cfg.ServerPort,
		"Port to listen on (env: PORT)")

	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	addCommon(importCmd)
	importCmd.StringVar(&cfg.ImportCSVPath, "csv", "",
		"Path or http(s) URL of the CSV to import (columns: url, username, language)")
	importCmd.IntVar(&cfg.ImportWorkers, "workers", cfg.ImportWorkers,
		"Number of reels ingested in parallel (env: REEL_IMPORT_WORKERS)")

	migrateCmd := flag.NewFlagSet("migrate", flag.ExitOnError)
	addCommon(migrateCmd)
	var down int
	migrateCmd.IntVar(&down, "down", 0,
		"Roll back this many migrations instead of applying pending ones")

	var cmdErr error
	switch os.Args[1] {
	case "server":
		serverCmd.Parse(os.Args[2:])
		applyLogLevel(cfg, logLevelStr)
		cmdErr = runServer(cfg)

	case "import":
		importCmd.Parse(os.Args[2:])
		applyLogLevel(cfg, logLevelStr)
		cmdErr = runImport(cfg)

	case "migrate":
		migrateCmd.Parse(os.Args[2:])
		applyLogLevel(cfg, logLevelStr)
		cmdErr = runMigrate(cfg, down)

	case "-h", "--help", "help":
		fmt.Println(usage)
		os.Exit(0)

	default:
		log.Error().Str("command", os.Args[1]).Msg("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}

	if cmdErr != nil {
		log.Error().Err(cmdErr).Str("command", os.Args[1]).Msg("Command failed")
		os.Exit(1)
	}
}

// applyLogLevel handles log level parsing separately since it needs conversion
func applyLogLevel(cfg *config.Config, levelStr string) {
	if level, err := zerolog.ParseLevel(levelStr); err == nil {
		cfg.LogLevel = level
	} else {
		log.Warn().Str("level", levelStr).Msg("Unknown log level, keeping configured level")
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)
}

func openDatabase(cfg *config.Config) (*database.DB, error) {
	dbCfg := database.NewConfig(cfg.DBPath)
	if cfg.DBDriver == config.DriverPostgres {
		dbCfg = database.NewPostgresConfig(cfg.DBDSN)
	}

	db, err := database.NewDB(dbCfg)
	if err != nil {
		log.Error().Err(err).Str("driver", cfg.DBDriver).Msg("Failed to initialize database")
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

// openObjectStore builds the configured media backend. mediaRoot is set
// when the server has to serve the files itself.
func openObjectStore(ctx context.Context, cfg *config.Config) (store objectStore, mediaRoot string, err error) {
	if cfg.IsLocalStorage() {
		local, err := objectstore.NewLocalStore(cfg.LocalStoragePath, cfg.LocalPublicBaseURL(), log.Logger)
		if err != nil {
			return nil, "", fmt.Errorf("failed to initialize local storage: %w", err)
		}
		return local, local.Root(), nil
	}

	s3Store, err := objectstore.NewS3Store(ctx, objectstore.S3Config{
		Endpoint:      cfg.S3Endpoint,
		Region:        cfg.S3Region,
		Bucket:        cfg.S3Bucket,
		AccessKeyID:   cfg.S3AccessKeyID,
		SecretKey:     cfg.S3SecretKey,
		UsePathStyle:  cfg.S3UsePathStyle,
		PublicBaseURL: cfg.PublicBaseURL,
	}, log.Logger)
	if err != nil {
		return nil, "", fmt.Errorf("failed to initialize s3 storage: %w", err)
	}
	return s3Store, "", nil
}

func newPipeline(cfg *config.Config, repo storage.ReelRepository, store objectStore) *ingest.Pipeline {
	var opts []extractor.Option
	if cfg.YTDLPCookies != "" {
		opts = append(opts, extractor.WithCookies(cfg.YTDLPCookies))
	}
	ytdlp := extractor.NewYTDLP(cfg.YTDLPPath, log.Logger, opts...)

	return ingest.New(ingest.Config{
		ScratchDir:      cfg.ScratchDir,
		ExtractTimeout:  cfg.ExtractTimeout,
		DownloadTimeout: cfg.DownloadTimeout,
		UploadTimeout:   cfg.UploadTimeout,
	}, repo, store, ytdlp, log.Logger)
}

// runServer starts the HTTP API server with the provided configuration.
func runServer(cfg *config.Config) error {
	if err := cfg.ValidateServer(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store, mediaRoot, err := openObjectStore(initCtx, cfg)
	if err != nil {
		return err
	}

	repo := storage.NewRepository(db)
	pipeline := newPipeline(cfg, repo, store)
	lib := library.NewService(repo, store, log.Logger)
	reels := api.NewReelHandler(cfg.TeamPassword, pipeline, lib)

	opts := server.Options{
		Addr:         cfg.ListenAddr(),
		Password:     cfg.TeamPassword,
		RequireAuth:  cfg.RequireAuth,
		CORSOrigins:  cfg.CORSOrigins,
		WriteTimeout: cfg.WriteTimeout,
		MediaRoot:    mediaRoot,
	}
	handler := server.NewHandler(opts, reels, repo, store, log.Logger)
	return server.RunServer(handler, opts, log.Logger)
}

// runImport ingests every reel listed in a CSV file.
func runImport(cfg *config.Config) error {
	if cfg.ImportCSVPath == "" {
		return errors.New("-csv is required")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	go func() {
		select {
		case sig := <-shutdown:
			log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
			cancel() // Cancel the context to stop queueing new reels
		case <-ctx.Done():
		}
	}()

	reqs, skipped, err := importreels.NewImporter(nil).Load(ctx, cfg.ImportCSVPath)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	store, _, err := openObjectStore(ctx, cfg)
	if err != nil {
		return err
	}

	repo := storage.NewRepository(db)
	bulk, err := process.NewBulkIngester(newPipeline(cfg, repo, store), cfg.ImportWorkers)
	if err != nil {
		return fmt.Errorf("failed to initialize bulk ingester: %w", err)
	}

	log.Info().
		Int("reels", len(reqs)).
		Int("worker_count", bulk.WorkerCount).
		Msg("Starting import")

	startTime := time.Now()
	runErr := bulk.Run(ctx, reqs)
	stats := bulk.Stats()

	log.Info().
		Dur("duration", time.Since(startTime)).
		Int64("created", stats.Created).
		Int64("existing", stats.Existing).
		Int64("failed", stats.Failed).
		Int("skipped_rows", len(skipped)).
		Msg("Import summary")

	fmt.Printf("Imported %d reels (%d already in the library)\n", stats.Created, stats.Existing)
	if len(skipped) > 0 {
		fmt.Printf("Skipped %d rows:\n", len(skipped))
		for _, row := range skipped {
			fmt.Printf("  - %s\n", row)
		}
	}
	if failures := bulk.Failures(); len(failures) > 0 {
		fmt.Printf("Encountered %d errors:\n", len(failures))
		for _, f := range failures {
			fmt.Printf("  - row %d (%s): %v\n", f.Index+1, f.URL, f.Err)
		}
	}

	if errors.Is(runErr, context.Canceled) {
		log.Info().Msg("Import canceled by shutdown signal")
		return nil
	}
	return runErr
}

// runMigrate applies pending migrations, or rolls back the newest ones.
func runMigrate(cfg *config.Config, down int) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if down <= 0 {
		log.Info().Str("driver", db.Driver()).Msg("Database schema is up to date")
		return nil
	}

	migrationFiles, err := migrations.LoadMigrations(migrations.Files, db.Driver())
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	if err := migrations.RollbackMigrations(db.DB, migrationFiles, down); err != nil {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	log.Info().Int("count", down).Msg("Rolled back migrations")
	return nil
}
