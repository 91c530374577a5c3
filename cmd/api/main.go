package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"voicenotes-go/internal/blob"
	"voicenotes-go/internal/config"
	"voicenotes-go/internal/httpapi"
	"voicenotes-go/internal/logger"
	"voicenotes-go/internal/mailer"
	"voicenotes-go/internal/pipeline"
	"voicenotes-go/internal/publish"
	"voicenotes-go/internal/redact"
	"voicenotes-go/internal/status"
	"voicenotes-go/internal/store"
	"voicenotes-go/internal/summarize"
	"voicenotes-go/internal/transcribe"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "voicenotes-go").Info("starting service")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("configuration error")
	}

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("database connect failed")
	}
	defer st.Close()

	blobStore, err := newBlobStore(cfg)
	if err != nil {
		log.WithError(err).Fatal("blob storage init failed")
	}

	transcriber := transcribe.New(cfg.TranscribeURL, cfg.TranscribeAPIKey, cfg.TranscodeURL,
		log.WithComponent("transcribe"))
	summarizer := summarize.New(cfg.LLMURL, cfg.LLMKey, cfg.LLMModel,
		log.WithComponent("summarize"))
	mail := mailer.New(cfg.ResendAPIKey, cfg.FromEmail, cfg.ReplyTo,
		log.WithComponent("mailer"))
	tracker := status.NewTracker(st, log.WithComponent("status"))

	orchestrator := &pipeline.Orchestrator{
		Store:       st,
		Signer:      blobStore,
		Transcriber: transcriber,
		Summarizer:  summarizer,
		Tracker:     tracker,
		Mailer:      mail,
		SignedTTL:   cfg.SignedURLTTL,
		Log:         log.WithComponent("pipeline"),
	}
	webhook := &pipeline.WebhookHandler{
		Store:      st,
		Summarizer: summarizer,
		Tracker:    tracker,
		Log:        log.WithComponent("webhook"),
	}

	enrich := redact.NewEnrichClient(cfg.AnalyzerURL, cfg.AnonymizerURL, log)
	redactor := redact.New(cfg.RedactionEnabled, enrich, log)

	publisher := &publish.Publisher{
		Blob:          blobStore,
		Idem:          st,
		ServerSidePDF: cfg.ServerSidePDF,
		KeyTTL:        cfg.IdemKeyTTL,
		Log:           log.WithComponent("publish"),
	}

	api := httpapi.NewAPI(st, orchestrator, webhook, redactor, summarizer, publisher, tracker)
	srv := httpapi.NewServer(cfg, api, log.WithComponent("http"))

	go pruneIdempotencyKeys(st, log)

	go func() {
		if err := srv.Run(); err != nil {
			log.WithError(err).Fatal("server terminated")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("shutdown error")
	}
}

func newBlobStore(cfg config.Config) (blob.Store, error) {
	if cfg.StorageBackend == "gcs" {
		return blob.NewGCS(context.Background(), cfg.RecordingsBucket)
	}
	return blob.NewLocal(cfg.LocalStorageDir, cfg.BaseURL)
}

// pruneIdempotencyKeys clears expired keys once an hour so replays stay
// bounded by TTL rather than table growth.
func pruneIdempotencyKeys(st *store.Store, log *logger.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		n, err := st.PruneIdempotencyKeys(ctx)
		cancel()
		if err != nil {
			log.WithError(err).Warn("idempotency prune failed")
			continue
		}
		if n > 0 {
			log.WithField("pruned", n).Info("expired idempotency keys removed")
		}
	}
}
