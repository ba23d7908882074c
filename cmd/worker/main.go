/**
 * Name Detection Worker - Main Entry Point
 *
 * Queue-driven worker that finds person and organization names on
 * scanned tax form images.
 *
 * Architecture:
 * - Asynq or plain-Redis consumer for the job queue
 * - Tesseract OCR with token bounding boxes
 * - Four parallel detection strategies merged into a ranked result
 * - JSON prior store that learns from human corrections
 * - Optional PostgreSQL persistence for job tracking
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dixii/namedetect-worker/internal/clients"
	"github.com/dixii/namedetect-worker/internal/config"
	"github.com/dixii/namedetect-worker/internal/detect"
	"github.com/dixii/namedetect-worker/internal/ocr"
	"github.com/dixii/namedetect-worker/internal/priors"
	"github.com/dixii/namedetect-worker/internal/queue"
	"github.com/dixii/namedetect-worker/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env not found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Name detection worker starting...")
	log.Printf("Configuration loaded: Redis=%s, Queue=%s/%s, Workers=%d",
		cfg.RedisURL, cfg.QueueDriver, cfg.QueueName, cfg.WorkerConcurrency)

	// Prior store
	store, err := priors.NewStore(cfg.PriorStorePath)
	if err != nil {
		log.Fatalf("Failed to load prior store: %v", err)
	}
	store.SetCap(cfg.PriorCap)

	// Optional PostgreSQL job tracking
	var recorder queue.JobRecorder
	var pg *storage.PostgresClient
	if cfg.DatabaseURL != "" {
		pg, err = storage.NewPostgresClient(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		defer pg.Close()
		recorder = pg
		log.Printf("PostgreSQL job tracking enabled")
	} else {
		log.Printf("DATABASE_URL not set, job tracking disabled")
	}

	// Model service clients
	layoutClient := clients.NewLayoutClient(cfg.LayoutModelURL)
	entityClient := clients.NewEntityClient(cfg.EntityModelURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := layoutClient.HealthCheck(ctx); err != nil {
		log.Printf("Warning: layout model unreachable at %s: %v", cfg.LayoutModelURL, err)
	}
	if err := entityClient.HealthCheck(ctx); err != nil {
		log.Printf("Warning: entity model unreachable at %s: %v", cfg.EntityModelURL, err)
	}

	// Detection pipeline
	reader, err := ocr.NewTesseractReader(&ocr.TesseractConfig{
		Language:          cfg.Language,
		MinWordConfidence: cfg.MinWordConfidence,
	})
	if err != nil {
		log.Fatalf("Failed to initialize OCR reader: %v", err)
	}
	extractors := []detect.Extractor{
		detect.NewPatternExtractor(cfg.PatternsPath),
		detect.NewSpatialExtractor(layoutClient),
		detect.NewGeneralExtractor(entityClient),
		detect.NewLocationExtractor(store),
	}
	engine := detect.NewEngine(reader, extractors, store)
	engine.SetExtractorTimeout(cfg.ExtractorTimeout)

	// Queue consumer
	var stop func() error
	switch cfg.QueueDriver {
	case "redis":
		consumer, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Service:           engine,
			Recorder:          recorder,
			ProcessingTimeout: cfg.ProcessingTimeout,
		})
		if err != nil {
			log.Fatalf("Failed to initialize queue consumer: %v", err)
		}
		if err := consumer.Start(); err != nil {
			log.Fatalf("Failed to start queue consumer: %v", err)
		}
		stop = consumer.Stop
	default:
		consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Service:           engine,
			Recorder:          recorder,
			ProcessingTimeout: cfg.ProcessingTimeout,
		})
		if err != nil {
			log.Fatalf("Failed to initialize queue consumer: %v", err)
		}
		if err := consumer.Start(ctx); err != nil {
			log.Fatalf("Failed to start queue consumer: %v", err)
		}
		stop = func() error { return consumer.Stop(ctx) }
	}

	log.Printf("===========================================")
	log.Printf("Name Detection Worker is READY")
	log.Printf("===========================================")
	log.Printf("Queue: %s (%s)", cfg.QueueName, cfg.QueueDriver)
	log.Printf("Workers: %d", cfg.WorkerConcurrency)
	log.Printf("Prior store: %s", cfg.PriorStorePath)
	log.Printf("Layout model: %s", cfg.LayoutModelURL)
	log.Printf("Entity model: %s", cfg.EntityModelURL)
	log.Printf("===========================================")
	log.Printf("Waiting for jobs...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Printf("Received signal %v, initiating graceful shutdown...", sig)

	if err := stop(); err != nil {
		log.Printf("Error stopping queue consumer: %v", err)
	} else {
		log.Printf("Queue consumer stopped successfully")
	}

	log.Printf("Shutdown complete")
}
