package main

//	@title						LabGraph API
//	@version					0.1.0
//	@description				Laboratory quality control API: control measurements, Westgard rules and error statistics.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: "Bearer {token}"

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/LabGraphTeam/labgraph/api/swagger"
	"github.com/LabGraphTeam/labgraph/internal/auth"
	"github.com/LabGraphTeam/labgraph/internal/config"
	"github.com/LabGraphTeam/labgraph/internal/event"
	"github.com/LabGraphTeam/labgraph/internal/notify"
	"github.com/LabGraphTeam/labgraph/internal/qc"
	"github.com/LabGraphTeam/labgraph/internal/registry"
	"github.com/LabGraphTeam/labgraph/internal/server"
	"github.com/LabGraphTeam/labgraph/internal/store"
	"github.com/LabGraphTeam/labgraph/internal/version"
	"github.com/LabGraphTeam/labgraph/internal/ws"
	"github.com/LabGraphTeam/labgraph/pkg/plugin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	// Subcommand dispatch (before flag.Parse).
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "seed":
			runSeed(os.Args[2:])
			return
		case "backup":
			runBackup(os.Args[2:])
			return
		case "restore":
			runRestore(os.Args[2:])
			return
		case "version":
			fmt.Println(version.Info())
			return
		}
	}

	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Load configuration (before logger, so log level/format can be configured).
	viperCfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := config.New(viperCfg)

	logger, err := config.NewLogger(viperCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("LabGraph server starting", zap.String("version", version.Short()))

	if f := viperCfg.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded",
			zap.String("component", "config"),
			zap.String("source", f),
		)
	} else {
		logger.Warn("no configuration file found, using defaults",
			zap.String("component", "config"),
		)
	}

	srvCfg, err := server.UnmarshalConfig(viperCfg)
	if err != nil {
		logger.Fatal("invalid server configuration", zap.Error(err))
	}

	db, err := openStore(viperCfg)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("database initialized",
		zap.String("component", "database"),
		zap.String("dsn", viperCfg.GetString("database.dsn")),
	)

	bus := event.NewBus(logger.Named("event"))
	reg := registry.New(logger.Named("registry"))

	// Register all plugins (compile-time composition).
	modules := []plugin.Plugin{
		qc.New(),
		notify.New(),
	}
	for _, m := range modules {
		if !cfg.GetBool("plugins."+m.Info().Name+".enabled") && !m.Info().Required {
			logger.Info("plugin disabled by configuration", zap.String("name", m.Info().Name))
			continue
		}
		if err := reg.Register(m); err != nil {
			logger.Fatal("failed to register plugin", zap.Error(err))
		}
	}

	if err := reg.Validate(); err != nil {
		logger.Fatal("plugin validation failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := reg.InitAll(ctx, func(name string) plugin.Dependencies {
		return plugin.Dependencies{
			Config:  cfg.Sub("plugins." + name),
			Logger:  logger.Named(name),
			Store:   db,
			Bus:     bus,
			Plugins: reg,
		}
	}); err != nil {
		logger.Fatal("failed to initialize plugins", zap.Error(err))
	}

	if err := reg.StartAll(ctx); err != nil {
		logger.Fatal("failed to start plugins", zap.Error(err))
	}

	authStore, err := auth.NewUserStore(ctx, db)
	if err != nil {
		logger.Fatal("failed to initialize auth store", zap.Error(err))
	}
	tokens, err := tokenService(viperCfg, logger)
	if err != nil {
		logger.Fatal("failed to configure tokens", zap.Error(err))
	}
	authService := auth.NewService(authStore, tokens, logger.Named("auth"))
	authHandler := auth.NewHandler(authService, logger.Named("auth"))
	logger.Info("auth service initialized", zap.String("component", "auth"))

	// Live QC feed for dashboards.
	wsHandler := ws.NewHandler(tokens, bus, logger.Named("ws"))
	defer wsHandler.Close()

	readyCheck := server.ReadinessChecker(func(ctx context.Context) error {
		return db.DB().PingContext(ctx)
	})
	srv := server.New(srvCfg, reg, logger, readyCheck, authHandler, wsHandler)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("LabGraph server ready", zap.String("addr", srvCfg.Addr()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	reg.StopAll(shutdownCtx)

	logger.Info("LabGraph server stopped")
}

func openStore(v *viper.Viper) (*store.SQLiteStore, error) {
	dsn := v.GetString("database.dsn")
	if dsn == "" {
		dsn = "labgraph.db"
	}
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	return store.New(dsn)
}

func tokenService(v *viper.Viper, logger *zap.Logger) (*auth.TokenService, error) {
	secret := v.GetString("auth.jwt_secret")
	if secret == "" {
		// Ephemeral secret; tokens won't survive restarts.
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generate JWT secret: %w", err)
		}
		secret = hex.EncodeToString(b)
		logger.Info("using auto-generated JWT secret (set auth.jwt_secret to persist sessions across restarts)",
			zap.String("component", "auth"),
		)
	}

	accessTTL := v.GetDuration("auth.access_token_ttl")
	if accessTTL == 0 {
		accessTTL = 15 * time.Minute
	}
	refreshTTL := v.GetDuration("auth.refresh_token_ttl")
	if refreshTTL == 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return auth.NewTokenService([]byte(secret), accessTTL, refreshTTL), nil
}
