package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfmerger/internal/api"
	"github.com/local/pdfmerger/internal/blob"
	cfgpkg "github.com/local/pdfmerger/internal/config"
	"github.com/local/pdfmerger/internal/export"
	"github.com/local/pdfmerger/internal/filetype"
	"github.com/local/pdfmerger/internal/limiter"
	logpkg "github.com/local/pdfmerger/internal/logger"
	"github.com/local/pdfmerger/internal/metrics"
	"github.com/local/pdfmerger/internal/preview"
	"github.com/local/pdfmerger/internal/service"
	"github.com/local/pdfmerger/internal/session"
	"github.com/local/pdfmerger/internal/statuscheck"
	web "github.com/local/pdfmerger/internal/web"
)

func main() {
	if err := cfgpkg.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}
	cfg := cfgpkg.FromEnv()

	// Init logging
	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
		AxiomBatch:   cfg.Axiom.BatchSize,
		AxiomBuffer:  cfg.Axiom.Buffer,
	})
	defer logpkg.Close()

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Export staging store
	store, err := blob.New(ctx, blob.Options{
		Backend:     cfg.Blob.Backend,
		TTL:         cfg.Blob.TTL,
		RedisURL:    cfg.Blob.RedisURL,
		S3Bucket:    cfg.Blob.S3Bucket,
		S3Prefix:    cfg.Blob.S3Prefix,
		S3Region:    cfg.Blob.S3Region,
		S3AccessKey: cfg.Blob.S3AccessKey,
		S3SecretKey: cfg.Blob.S3SecretKey,
	})
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Blob.Backend).Msg("failed to init blob store")
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	// Sessions
	sessions := session.NewRegistry(cfg.Output.DefaultName)
	go sessions.RunSweeper(ctx, cfg.Session.SweepInterval, cfg.Session.IdleTimeout)

	deps := service.Dependencies{
		Sessions: sessions,
		Sink:     export.NewSink(store),
		Detector: filetype.New(),
		Preview:  preview.NewRenderer(cfg.Preview.DPI),
		Limiter:  limiter.New(limiter.Options{MaxPerKey: 1, MaxTotal: cfg.Merge.MaxInflight}),
	}
	if cfg.Output.SaveCopy {
		deps.SaveCopyDir = cfg.Output.ResultDir
	}
	svc := service.New(deps)

	mux := http.NewServeMux()
	api.New(api.Dependencies{
		Service:     svc,
		Status:      statuscheck.New(statuscheck.Options{Blob: store, Sessions: sessions}),
		MaxUploadMB: cfg.HTTP.MaxUploadMB,
	}).RegisterRoutes(mux)

	// Dashboard
	dash, err := web.New(web.Options{
		Service:        svc,
		Username:       cfg.Web.Username,
		Password:       cfg.Web.Password,
		PasswordBcrypt: cfg.Web.PasswordBcrypt,
		TemplateDir:    cfg.Web.TemplateDir,
		MaxUploadMB:    cfg.HTTP.MaxUploadMB,
		LoginTTL:       cfg.Web.LoginTTL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load dashboard templates")
	}
	dash.RegisterRoutes(mux)

	srv := &http.Server{Addr: ":" + cfg.HTTP.Port, Handler: mux}

	go func() {
		log.Info().Str("blob_backend", store.Backend()).Msgf("HTTP server listening on :%s", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	fmt.Println("shutdown complete")
}
