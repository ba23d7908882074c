/**
 * Queue consumer for the name detection worker
 *
 * Consumes detection and learning jobs from Redis using Asynq. Each
 * detect job runs the full pipeline and records its outcome; learn jobs
 * feed human corrections into the prior store.
 */

package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dixii/namedetect-worker/internal/detect"
	"github.com/dixii/namedetect-worker/internal/errors"
	"github.com/dixii/namedetect-worker/internal/ocr"
	"github.com/dixii/namedetect-worker/internal/priors"
	"github.com/dixii/namedetect-worker/internal/storage"
)

const (
	TaskDetectNames     = "name:detect"
	TaskLearnCorrection = "name:learn"
)

// DetectJobData is the payload of a detection task
type DetectJobData struct {
	JobID     string                 `json:"jobId"`
	ImagePath string                 `json:"imagePath"`
	DocType   string                 `json:"docType,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// LearnJobData is the payload of a correction task. The bbox is in
// pixel space of the referenced image; imageWidth/imageHeight let the
// store rescale it without re-reading the image.
type LearnJobData struct {
	JobID         string          `json:"jobId,omitempty"`
	ImageRef      string          `json:"imageRef"`
	Name          string          `json:"name"`
	FormType      string          `json:"formType,omitempty"`
	Box           *[4]float64     `json:"bbox,omitempty"`
	ImageWidth    float64         `json:"imageWidth,omitempty"`
	ImageHeight   float64         `json:"imageHeight,omitempty"`
	Confidence    float64         `json:"confidence,omitempty"`
	TokenSnapshot json.RawMessage `json:"tokenSnapshot,omitempty"`
}

// DetectionService runs detection and learning, satisfied by detect.Engine.
type DetectionService interface {
	Detect(ctx context.Context, imagePath, docType string) (*detect.DetectionResult, error)
	Learn(c *priors.Correction) error
}

// JobRecorder persists job status, satisfied by storage.PostgresClient.
// A nil recorder disables persistence.
type JobRecorder interface {
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
}

// Consumer handles job consumption from the Redis queue
type Consumer struct {
	client   *asynq.Client
	server   *asynq.Server
	mux      *asynq.ServeMux
	service  DetectionService
	recorder JobRecorder
	config   *ConsumerConfig
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Service           DetectionService
	Recorder          JobRecorder
	ProcessingTimeout time.Duration
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Service == nil {
		return nil, fmt.Errorf("Service is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			// Exponential backoff: 5s, 10s, 20s, capped at 60s
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task processing error: type=%s, error=%v", task.Type(), err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	consumer := &Consumer{
		client:   client,
		server:   server,
		mux:      mux,
		service:  cfg.Service,
		recorder: cfg.Recorder,
		config:   cfg,
	}

	mux.HandleFunc(TaskDetectNames, consumer.handleDetect)
	mux.HandleFunc(TaskLearnCorrection, consumer.handleLearn)

	return consumer, nil
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	log.Printf("Starting queue consumer (concurrency=%d, queue=%s)...",
		c.config.Concurrency, c.config.QueueName)

	go func() {
		if err := c.server.Run(c.mux); err != nil {
			log.Printf("Queue consumer error: %v", err)
		}
	}()

	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	log.Printf("Stopping queue consumer...")

	c.server.Shutdown()

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}

	log.Printf("Queue consumer stopped")
	return nil
}

// handleDetect runs one detection job
func (c *Consumer) handleDetect(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var jobData DetectJobData
	if err := json.Unmarshal(task.Payload(), &jobData); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %w", err)
	}
	if jobData.ImagePath == "" {
		return fmt.Errorf("imagePath is required")
	}

	log.Printf("[Job %s] Detecting names: image=%s, docType=%s",
		jobData.JobID, jobData.ImagePath, jobData.DocType)

	c.recordStatus(ctx, &storage.JobUpdate{
		JobID:    jobData.JobID,
		Status:   "processing",
		ImageRef: jobData.ImagePath,
		DocType:  jobData.DocType,
		Metadata: jobData.Metadata,
	})

	timeout := 2 * time.Minute
	if c.config.ProcessingTimeout > 0 {
		timeout = c.config.ProcessingTimeout
	}
	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := c.service.Detect(processCtx, jobData.ImagePath, jobData.DocType)
	duration := time.Since(startTime)

	if err != nil {
		log.Printf("[Job %s] Detection failed after %v: %v", jobData.JobID, duration, err)

		update := &storage.JobUpdate{
			JobID:            jobData.JobID,
			Status:           "failed",
			ImageRef:         jobData.ImagePath,
			DocType:          jobData.DocType,
			ProcessingTimeMs: duration.Milliseconds(),
			ErrorMessage:     err.Error(),
		}
		var detErr *errors.DetectionError
		if stderrors.As(err, &detErr) {
			update.ErrorCode = string(detErr.Code)
		}
		c.recordStatus(ctx, update)

		return fmt.Errorf("name detection failed: %w", err)
	}

	log.Printf("[Job %s] Detection completed in %v: primary=%q, names=%d, confidence=%.2f",
		jobData.JobID, duration, result.PrimaryName, len(result.CombinedNames), result.Confidence)

	methods := make([]string, 0, len(result.MethodsUsed))
	for _, m := range result.MethodsUsed {
		methods = append(methods, string(m))
	}
	c.recordStatus(ctx, &storage.JobUpdate{
		JobID:            jobData.JobID,
		Status:           "completed",
		ImageRef:         jobData.ImagePath,
		DocType:          jobData.DocType,
		PrimaryName:      result.PrimaryName,
		DetectedNames:    result.CombinedNames,
		Confidence:       result.Confidence,
		MethodsUsed:      methods,
		ProcessingTimeMs: duration.Milliseconds(),
		Metadata:         jobData.Metadata,
	})

	return nil
}

// handleLearn records one human correction
func (c *Consumer) handleLearn(ctx context.Context, task *asynq.Task) error {
	var jobData LearnJobData
	if err := json.Unmarshal(task.Payload(), &jobData); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %w", err)
	}
	if jobData.Name == "" {
		return fmt.Errorf("name is required")
	}

	var box *ocr.BoundingBox
	if jobData.Box != nil {
		box = &ocr.BoundingBox{
			X0: jobData.Box[0], Y0: jobData.Box[1],
			X1: jobData.Box[2], Y1: jobData.Box[3],
		}
	}

	correction := &priors.Correction{
		ImageRef:      jobData.ImageRef,
		Name:          jobData.Name,
		FormType:      jobData.FormType,
		Box:           box,
		ImageWidth:    jobData.ImageWidth,
		ImageHeight:   jobData.ImageHeight,
		Confidence:    jobData.Confidence,
		TokenSnapshot: jobData.TokenSnapshot,
	}
	if err := c.service.Learn(correction); err != nil {
		return fmt.Errorf("failed to record correction: %w", err)
	}

	log.Printf("[Job %s] Recorded correction: formType=%s, hasBox=%v",
		jobData.JobID, jobData.FormType, box != nil)
	return nil
}

// recordStatus persists a status update when a recorder is configured.
// Persistence failures never fail the job.
func (c *Consumer) recordStatus(ctx context.Context, update *storage.JobUpdate) {
	if c.recorder == nil || update.JobID == "" {
		return
	}
	if err := c.recorder.UpdateJobStatus(ctx, update); err != nil {
		log.Printf("[Job %s] Warning: Failed to update status to %s: %v",
			update.JobID, update.Status, err)
	}
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
		"redisURL":    c.config.RedisURL,
	}
}
