package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"capgen/internal/catalog"
	"capgen/internal/engine"
	"capgen/internal/nlu"
	"capgen/internal/server"
	"capgen/internal/session"
	"capgen/internal/workspace"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the conversational agent API",
	Long: `Starts the HTTP server that resolves user utterances against the
compiled capability catalog. The catalog is rebuilt on startup and
whenever a skills document changes on disk; sessions idle past the
configured TTL are swept.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	layout := workspace.Layout{Root: cfg.Workspace, Data: cfg.DataDir}

	cat := catalog.New(layout, logger)
	if err := cat.Rebuild(); err != nil {
		return err
	}
	if err := cat.ExportIntentDocs(); err != nil {
		logger.Warn("intent document export failed", zap.Error(err))
	}
	go func() {
		if err := cat.Watch(ctx, 500*time.Millisecond); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("catalog watcher stopped", zap.Error(err))
		}
	}()

	ttl := cfg.GetSessionTTL()
	sessions := session.NewStore(ttl, logger)
	sessions.Start(time.Minute)
	defer sessions.Stop()
	if cfg.Server.SessionFile != "" {
		if err := sessions.Restore(cfg.Server.SessionFile); err != nil {
			logger.Warn("session restore failed", zap.Error(err))
		}
	}

	client, err := newModelClient(ctx)
	if err != nil {
		return err
	}
	classifier := nlu.NewClassifier(client)

	eng := engine.New(sessions, cat, classifier, logger)
	srv := server.New(cfg.Server.Addr, eng, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("agent server listening", zap.String("addr", cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}

	if cfg.Server.SessionFile != "" {
		if err := sessions.Save(cfg.Server.SessionFile); err != nil {
			logger.Warn("session save failed", zap.Error(err))
		} else {
			logger.Info("sessions saved", zap.String("path", cfg.Server.SessionFile))
		}
	}

	return nil
}
