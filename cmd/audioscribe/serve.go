package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/audioscribe/auth"
	"github.com/hazyhaar/audioscribe/config"
	"github.com/hazyhaar/audioscribe/credits"
	"github.com/hazyhaar/audioscribe/dbopen"
	"github.com/hazyhaar/audioscribe/docpipe"
	"github.com/hazyhaar/audioscribe/jobs"
	"github.com/hazyhaar/audioscribe/observability"
	"github.com/hazyhaar/audioscribe/render"
	"github.com/hazyhaar/audioscribe/server"
	"github.com/hazyhaar/audioscribe/shield"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	Long: `Serve the document API. Settings come from the YAML file given with
--config, overridden by AUDIOSCRIBE_LISTEN, AUDIOSCRIBE_DB,
AUDIOSCRIBE_JWT_SECRET and LOG_LEVEL.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	secret := []byte(cfg.JWTSecret)
	if err := auth.ValidateSecret(secret); err != nil {
		return fmt.Errorf("%s: %w", config.EnvJWTSecret, err)
	}

	proxies, err := shield.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}

	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := dbopen.Open(cfg.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(shield.Schema),
		dbopen.WithSchema(credits.Schema),
		dbopen.WithSchema(jobs.Schema),
	)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	obsDB, err := dbopen.Open(cfg.ObsDBPath, dbopen.WithMkdirAll(), dbopen.WithSchema(observability.Schema))
	if err != nil {
		return fmt.Errorf("open observability db: %w", err)
	}
	defer obsDB.Close()

	metrics := observability.NewMetricsManager(obsDB, 100, 5*time.Second)
	defer metrics.Close()
	httpLog := observability.NewHTTPLogger(obsDB, 1000)
	defer httpLog.Close()

	pipe := docpipe.New(docpipe.Config{MaxFileSize: cfg.MaxUploadBytes(), Root: cfg.MCPRoot, Logger: logger})

	var mcpSrv *mcp.Server
	if cfg.MCPEnabled {
		mcpSrv = mcp.NewServer(&mcp.Implementation{
			Name:    "audioscribe",
			Version: version,
		}, nil)
	}

	s := server.New(server.Deps{
		DB:       db,
		Pipeline: pipe,
		Renderer: render.New(),
		Ledger:   credits.NewLedger(db, cfg.Credits.SignupGrant),
		Jobs:     jobs.NewStore(db),
		Metrics:  metrics,
		Events:   observability.NewEventLogger(obsDB),
		HTTPLog:  httpLog,
		MCP:      mcpSrv,
	}, server.Options{
		JWTSecret:     secret,
		MaxConcurrent: cfg.MaxConcurrent,
		Costs:         cfg.Credits,

		TrustedProxies: proxies,
	})
	s.RateLimiter().StartReloader(ctx.Done())
	go retention(ctx, obsDB)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Listen, "mcp", cfg.MCPEnabled, "max_concurrent", cfg.MaxConcurrent)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("server: %w", err)
	}
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
	return nil
}

// retention prunes old observability rows at startup and once a day.
func retention(ctx context.Context, db *sql.DB) {
	cfg := observability.RetentionConfig{MetricsDays: 30, EventLogsDays: 90, HTTPLogsDays: 14}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if err := observability.Cleanup(ctx, db, cfg); err != nil && ctx.Err() == nil {
			slog.Warn("observability cleanup", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
