package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"storyteller/server/internal/api"
	"storyteller/server/internal/catalog"
	"storyteller/server/internal/config"
	"storyteller/server/internal/conversation"
	"storyteller/server/internal/logging"
	"storyteller/server/internal/narrator"
	"storyteller/server/internal/notify"
	"storyteller/server/internal/progression"
	"storyteller/server/internal/report"
	"storyteller/server/internal/safety"
	"storyteller/server/internal/session"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			log := newLogger(cfg, opts)
			if addr == "" {
				addr = cfg.Server.Addr()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, addr, log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "http listen address (overrides server.host/port)")
	return cmd
}

func newLogger(cfg *config.Config, opts *rootOptions) zerolog.Logger {
	level := cfg.Logging.Level
	if opts.verbose {
		level = "debug"
	}
	return logging.New(logging.Config{Level: level, Format: cfg.Logging.Format})
}

func serve(ctx context.Context, cfg *config.Config, addr string, log zerolog.Logger) error {
	cat, err := catalog.Open(cfg.Catalog.TemplatesFile)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	classifier := safety.NewClassifier(
		safety.WithExtraKeywords(cfg.Safety.ExtraKeywords...),
		safety.WithExtraHighRisk(cfg.Safety.ExtraHighRisk...),
	)

	provider, err := conversation.New(conversation.Options{
		Kind:    cfg.Conversation.Provider,
		BaseURL: cfg.Conversation.BaseURL,
		APIKey:  cfg.Conversation.APIKey,
		Timeout: cfg.Conversation.Timeout,
	})
	if err != nil {
		return fmt.Errorf("init conversation provider: %w", err)
	}

	narr, err := narrator.NewBuilder(cfg.Narrator.PromptsDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", cfg.Narrator.PromptsDir).Msg("prompt overrides unavailable, using builtin personas")
		narr, _ = narrator.NewBuilder("")
	}

	reports, err := report.Open(cfg.Report.Driver, cfg.Report.DSN)
	if err != nil {
		return fmt.Errorf("open report store: %w", err)
	}
	defer reports.Close()

	notifier, err := notify.New(notify.Config{
		RedisAddr:     cfg.Notify.RedisAddr,
		RedisPassword: cfg.Notify.RedisPassword,
		RedisDB:       cfg.Notify.RedisDB,
		Stream:        cfg.Notify.Stream,
	}, logging.Component(log, "notify"))
	if err != nil {
		return fmt.Errorf("init notifier: %w", err)
	}
	defer notifier.Close()

	mgr := session.NewManager(session.Config{
		MaxDuration:      cfg.Session.MaxDuration,
		TickInterval:     cfg.Session.TickInterval,
		TeardownTimeout:  cfg.Session.TeardownTimeout,
		QueueCapacity:    cfg.Session.QueueCapacity,
		Retention:        cfg.Session.Retention,
		FearThreshold:    cfg.Session.FearThreshold,
		SadnessThreshold: cfg.Session.SadnessThreshold,
		DefaultReplicaID: cfg.Conversation.DefaultReplicaID,
		MessageTimeout:   cfg.Conversation.Timeout,
		Conversation: conversation.Request{
			CallbackURL:          cfg.Conversation.CallbackURL,
			ParticipantLeftSec:   cfg.Conversation.ParticipantLeftTimeout,
			ParticipantAbsentSec: cfg.Conversation.ParticipantAbsentTimeout,
			EnableRecording:      cfg.Conversation.EnableRecording,
			EnableTranscription:  cfg.Conversation.EnableTranscription,
		},
		EmotionSource:  cfg.Emotion.Source,
		EmotionCadence: cfg.Emotion.Cadence,
		EmotionSeed:    cfg.Emotion.Seed,
	}, session.Deps{
		Catalog:  cat,
		Engine:   progression.NewEngine(classifier),
		Provider: provider,
		Narrator: narr,
		Reports:  reports,
		Notifier: notifier,
		Logger:   log,
	})
	go mgr.Run(ctx, time.Minute)

	server := api.NewServer(cfg.Server, cat, mgr, log)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", addr).
			Str("provider", cfg.Conversation.Provider).
			Str("report_driver", cfg.Report.Driver).
			Msg("storyteller server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		_ = mgr.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	// 未结束的会话按请求结束，远端会话与报告在此落地。
	return mgr.Close()
}
