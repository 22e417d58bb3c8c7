package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelkehle/ddr-generator/internal/httpapi"
	"github.com/joelkehle/ddr-generator/internal/store"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the upload UI and report API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Addr = addr
			}
			return runServe(cmd.Context(), a)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides addr in config)")
	return cmd
}

func runServe(ctx context.Context, a *app) error {
	gen, cleanup, err := a.newGenerator(true)
	if err != nil {
		return err
	}
	defer cleanup()
	history, err := a.openStore()
	if err != nil {
		return err
	}
	defer history.Close()
	artifacts, err := store.NewArtifactStore(a.cfg.OutputDir)
	if err != nil {
		return err
	}

	handler := httpapi.NewServer(httpapi.Options{
		Generator:        gen,
		History:          history,
		Artifacts:        artifacts,
		PDF:              a.pdfRenderer(),
		Logger:           a.logger,
		WebDir:           a.cfg.WebDir,
		UploadDir:        a.cfg.UploadDir,
		UploadsPerMinute: a.cfg.UploadsPerMinute,
		HistoryLimit:     a.cfg.HistoryLimit,
	})

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.logger.Info("ddr server listening",
		zap.String("addr", a.cfg.Addr),
		zap.String("output_dir", a.cfg.OutputDir),
		zap.String("db_path", a.cfg.DBPath),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	a.logger.Info("ddr server stopped")
	return nil
}
