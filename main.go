// Command UBH-Chonkers-Bot is the entrypoint for the channel archiver.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Runs the synchronization loop: playlist listing, video metadata and
//     thumbnail archiving, chat replay ingestion, and user enrichment.
//   - Keeps the YouTube OAuth token fresh in the background.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/UberHobber/UBH-Chonkers-Bot/archive"
	"github.com/UberHobber/UBH-Chonkers-Bot/chatreplay"
	"github.com/UberHobber/UBH-Chonkers-Bot/config"
	"github.com/UberHobber/UBH-Chonkers-Bot/db"
	"github.com/UberHobber/UBH-Chonkers-Bot/fingerprint"
	"github.com/UberHobber/UBH-Chonkers-Bot/oauth"
	"github.com/UberHobber/UBH-Chonkers-Bot/server"
	"github.com/UberHobber/UBH-Chonkers-Bot/telemetry"
	"github.com/UberHobber/UBH-Chonkers-Bot/youtubeapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateSyncReady(); err != nil {
		slog.Error("config incomplete", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("ubh-chonkers-bot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Versioned migrations first, embedded SQL as fallback so fresh
	// containers come up without the migrations directory mounted.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, falling back to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	assets, err := fingerprint.NewStore(cfg.DataDir)
	if err != nil {
		slog.Error("asset store init failed", slog.Any("err", err))
		os.Exit(1)
	}
	userAssets, err := fingerprint.NewStore(filepath.Join(cfg.DataDir, "users"))
	if err != nil {
		slog.Error("user asset store init failed", slog.Any("err", err))
		os.Exit(1)
	}

	yts := youtubeapi.New(cfg, &db.TokenStoreAdapter{DB: database})
	source := &youtubeapi.DataSource{Service: yts, PlaylistID: cfg.PlaylistID}
	engine := &archive.Engine{
		DB:    database,
		Video: source,
		Users: source,
		Chat: &chatreplay.Client{
			InactivityTimeout: cfg.ChatInactivityTimeout,
			CookiesPath:       cfg.ChatCookiesPath,
		},
		Assets:     assets,
		UserAssets: userAssets,
		BatchSize:  cfg.UserBatchSize,
	}

	// Keep the YouTube token fresh between runs.
	oauth.StartRefresher(ctx, database, "youtube", 10*time.Minute, 20*time.Minute,
		func(rctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
			if cfg.YTClientID == "" {
				return "", "", time.Time{}, "", context.Canceled
			}
			oc := &oauth2.Config{
				ClientID:     cfg.YTClientID,
				ClientSecret: cfg.YTClientSecret,
				Endpoint:     google.Endpoint,
				RedirectURL:  cfg.YTRedirectURI,
			}
			newTok, err := oc.TokenSource(rctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
			if err != nil {
				return "", "", time.Time{}, "", err
			}
			return newTok.AccessToken, newTok.RefreshToken, newTok.Expiry, "", nil
		})

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		if err := server.Start(ctx, database, addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	runOnce := func() {
		if _, err := engine.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("sync run failed", slog.Any("err", err))
		}
	}

	runOnce()
	if cfg.SyncInterval <= 0 {
		slog.Info("single run complete, exiting")
		return
	}

	ticker := time.NewTicker(cfg.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("shutting down")
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
