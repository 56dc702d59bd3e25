package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sjawhar/meetscribe/internal/audio"
	"github.com/sjawhar/meetscribe/internal/config"
	"github.com/sjawhar/meetscribe/internal/gdrive"
	"github.com/sjawhar/meetscribe/internal/ingest"
	"github.com/sjawhar/meetscribe/internal/llm"
	"github.com/sjawhar/meetscribe/internal/notify"
	"github.com/sjawhar/meetscribe/internal/observe"
	"github.com/sjawhar/meetscribe/internal/report"
	"github.com/sjawhar/meetscribe/internal/server"
	"github.com/sjawhar/meetscribe/internal/session"
	"github.com/sjawhar/meetscribe/internal/storage"
	"github.com/sjawhar/meetscribe/internal/summary"
	"github.com/sjawhar/meetscribe/internal/transcribe"
)

var version = "dev"

// Summaries favour stable output; answers may paraphrase.
const (
	summaryTemperature = 0.1
	qaTemperature      = 0.3
)

var (
	configPath string
	envFile    string
)

func main() {
	root := &cobra.Command{
		Use:           "meetscribe",
		Short:         "Live meeting transcription and summarization service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	})
	root.AddCommand(&cobra.Command{
		Use:   "finalize <meeting-id>",
		Short: "Summarize, render and publish a stored meeting",
		Args:  cobra.ExactArgs(1),
		RunE:  runFinalize,
	})

	if err := root.Execute(); err != nil {
		log.Fatalf("meetscribe: %v", err)
	}
}

// app holds the components shared by every command.
type app struct {
	cfg         config.Config
	warnings    []string
	store       storage.Store
	spool       *audio.Spool
	transcriber transcribe.Transcriber
	summarizer  *summary.Summarizer
	answerer    *summary.Answerer
	reports     *report.PDFRenderer
	notifier    session.Notifier
	finalizer   *session.Finalizer
}

func setup(ctx context.Context) (*app, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: load %s: %v", envFile, err)
	}

	cfg, warnings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	for _, w := range warnings {
		slog.Warn("config", "warning", w)
	}

	var store storage.Store
	if cfg.DatabaseURL != "" {
		store, err = storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	} else {
		store, err = storage.NewSQLiteStore(cfg.DBPath)
	}
	if err != nil {
		return nil, fmt.Errorf("storage init: %w", err)
	}

	transcriber, err := transcribe.New(transcribe.Options{
		Provider: cfg.Transcription.Provider,
		APIKey:   cfg.APIKey(cfg.Transcription.Provider),
		Model:    cfg.Transcription.Model,
		Language: cfg.Transcription.Language,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	summaryLLM := llm.NewFactory(cfg.APIKey, llm.WithTemperature(summaryTemperature))
	qaLLM := llm.NewFactory(cfg.APIKey, llm.WithTemperature(qaTemperature))
	summarizer := summary.New(cfg.Summarization, summary.ClientFactory(summaryLLM))
	reports := report.NewPDFRenderer(cfg.ReportsDir)

	var archiver session.Archiver
	if cfg.GDriveFolderID != "" {
		a, err := gdrive.NewArchiver(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("google drive archive disabled: %v", err))
			slog.Warn("google drive archive disabled", "error", err)
		} else {
			archiver = a
		}
	}

	var notifier session.Notifier
	if cfg.SlackWebhookURL != "" {
		notifier = notify.NewSlack(cfg.SlackWebhookURL)
	}

	return &app{
		cfg:         cfg,
		warnings:    warnings,
		store:       store,
		spool:       audio.NewSpool(cfg.UploadDir, cfg.SampleRate),
		transcriber: transcriber,
		summarizer:  summarizer,
		answerer:    summary.NewAnswerer(cfg.QAModel, summary.ClientFactory(qaLLM)),
		reports:     reports,
		notifier:    notifier,
		finalizer:   session.NewFinalizer(store, summarizer, reports, archiver, notifier),
	}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.store.Close() }()

	metrics, shutdownMetrics, err := observe.InitProvider()
	if err != nil {
		return err
	}
	defer func() { _ = shutdownMetrics(context.Background()) }()

	hub := server.NewHub()
	pool := newPool(a.cfg, metrics, hub)
	registry := session.NewRegistry()

	stream := ingest.NewHandler(ingest.Deps{
		Registry:    registry,
		Spool:       a.spool,
		Transcriber: a.transcriber,
		Store:       a.store,
		Finalizer:   a.finalizer,
		Pool:        pool,
		Metrics:     metrics,
		Listener:    hub,
	}, ingest.Options{FlushEvery: a.cfg.FlushEvery, HeartbeatEvery: a.cfg.HeartbeatEvery})

	handler := server.Handler(server.Deps{
		Store:          a.store,
		Registry:       registry,
		Stream:         stream,
		Uploader:       ingest.NewUploader(a.spool, a.transcriber, a.store, metrics),
		Finalizer:      a.finalizer,
		Transcriber:    a.transcriber,
		Summarizer:     a.summarizer,
		Answerer:       a.answerer,
		Renderer:       a.reports,
		Notifier:       a.notifier,
		Spool:          a.spool,
		Pool:           pool,
		Hub:            hub,
		Metrics:        metrics,
		MetricsHandler: observe.Handler(),
		Warnings:       a.warnings,
		Version:        version,
	})

	log.Printf("meetscribe %s: listening on %s", version, a.cfg.ListenAddr)
	serveErr := server.Serve(ctx, a.cfg.ListenAddr, handler)

	drainCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ParsedFinalizeTimeout())
	defer cancel()
	log.Println("meetscribe: finalizing live streams")
	if err := stream.Shutdown(drainCtx); err != nil {
		slog.Warn("live streams not finalized", "error", err)
	}
	log.Println("meetscribe: draining background tasks")
	if err := pool.Close(drainCtx); err != nil {
		slog.Warn("background tasks cancelled", "error", err)
	}
	return serveErr
}

func runFinalize(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.store.Close() }()

	result := a.finalizer.Finalize(ctx, args[0])
	if result.Missing() {
		return fmt.Errorf("meeting %s: %w", args[0], storage.ErrNotFound)
	}
	for _, step := range result.Steps {
		fmt.Fprintf(cmd.OutOrStdout(), "%-10s %-8s %s\n", step.Name, step.Status, step.Detail)
	}
	if result.ReportPath != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "report: %s\n", result.ReportPath)
	}
	return result.Err()
}
