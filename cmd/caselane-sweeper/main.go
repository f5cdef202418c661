// caselane-sweeper re-runs text extraction for documents whose OCR never
// reached a terminal state. It carries its own extraction queue, so it can
// drain a backlog while the API server is down.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/caselane/caselane/pkg/config"
	"github.com/caselane/caselane/pkg/documents"
	"github.com/caselane/caselane/pkg/ocr"
	"github.com/caselane/caselane/pkg/storage"
)

var (
	runOnce  = flag.Bool("run-once", false, "Run one sweep and exit")
	schedule = flag.String("schedule", "", "Cron schedule override (defaults to the ocr.sweep_interval setting)")
)

func main() {
	flag.Parse()

	log := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	db, err := storage.OpenPostgres(cfg.PostgresConfig())
	if err != nil {
		log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer db.Close()

	store, err := documents.NewStore(db)
	if err != nil {
		log.WithError(err).Fatal("failed to prepare document store")
	}
	uploads, err := storage.NewUploads(cfg.Uploads.Dir)
	if err != nil {
		log.WithError(err).Fatal("failed to open upload directory")
	}

	engine := &ocr.TesseractEngine{Binary: cfg.OCR.TesseractBinary}
	queue := ocr.NewQueue(store, uploads, ocr.NewExtractor(engine), log, nil)
	defer queue.Close()

	sweeper := ocr.NewSweeper(store, queue, log)
	if cfg.OCR.StuckThreshold > 0 {
		sweeper.Threshold = cfg.OCR.StuckThreshold
	}

	if *runOnce {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := sweeper.Sweep(ctx); err != nil {
			os.Exit(1)
		}
		// Close drains the queue before returning.
		return
	}

	spec := *schedule
	if spec == "" {
		spec = cfg.OCR.SweepInterval
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		sweeper.Sweep(ctx)
	}); err != nil {
		log.WithError(err).Fatalf("invalid schedule %q", spec)
	}
	c.Start()
	log.WithField("schedule", spec).Info("sweeper started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	<-c.Stop().Done()
}
