/**
 * Direct Redis queue consumer for the name detection worker
 *
 * Compatible with API services that enqueue jobs with plain Redis LIST
 * operations instead of Asynq. Job IDs arrive on a list, payloads live
 * in a companion hash, and completion state is tracked in Redis sets so
 * submitters can poll without a database.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dixii/namedetect-worker/internal/ocr"
	"github.com/dixii/namedetect-worker/internal/priors"
	"github.com/dixii/namedetect-worker/internal/storage"
)

// RedisJobData represents a job envelope from the Redis queue
type RedisJobData struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"createdAt"`
	Attempts   int             `json:"attempts"`
	MaxRetries int             `json:"maxRetries"`
}

// RedisConsumer handles job consumption from the Redis queue
type RedisConsumer struct {
	client   *redis.Client
	service  DetectionService
	recorder JobRecorder
	config   *RedisConsumerConfig
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Service           DetectionService
	Recorder          JobRecorder
	ProcessingTimeout time.Duration
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "namedetect:jobs"
	}
	if cfg.Service == nil {
		return nil, fmt.Errorf("Service is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	consumerCtx, cancel := context.WithCancel(context.Background())

	return &RedisConsumer{
		client:   client,
		service:  cfg.Service,
		recorder: cfg.Recorder,
		config:   cfg,
		ctx:      consumerCtx,
		cancel:   cancel,
	}, nil
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start() error {
	log.Printf("Starting Redis queue consumer (concurrency=%d, queue=%s)...",
		c.config.Concurrency, c.config.QueueName)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	log.Println("Queue consumer started successfully")
	return nil
}

// Stop gracefully stops the consumer
func (c *RedisConsumer) Stop() error {
	log.Println("Stopping queue consumer...")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

// worker is a goroutine that processes jobs
func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	log.Printf("Worker %d started", id)

	for {
		select {
		case <-c.ctx.Done():
			log.Printf("Worker %d stopping", id)
			return
		default:
			if err := c.processNextJob(); err != nil {
				if err.Error() != "no jobs available" {
					log.Printf("Worker %d error: %v", id, err)
				}
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// processNextJob fetches and processes the next job from the queue
func (c *RedisConsumer) processNextJob() error {
	// Block for up to 5 seconds waiting for a job
	result, err := c.client.BRPop(c.ctx, 5*time.Second, c.config.QueueName).Result()
	if err != nil {
		if err == redis.Nil {
			return fmt.Errorf("no jobs available")
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	jobID := result[1]

	jobData, err := c.client.HGet(c.ctx, fmt.Sprintf("%s:data", c.config.QueueName), jobID).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data: %w", err)
	}

	var job RedisJobData
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job: %w", err)
	}

	switch job.Type {
	case TaskLearnCorrection:
		return c.processLearnJob(&job)
	default:
		return c.processDetectJob(&job)
	}
}

// processDetectJob runs one detection job end to end
func (c *RedisConsumer) processDetectJob(job *RedisJobData) error {
	var payload DetectJobData
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal detect payload: %w", err)
	}
	if payload.ImagePath == "" {
		return fmt.Errorf("imagePath is required")
	}

	c.markJobState(payload.JobID, "processing", nil)
	c.recordJob(&storage.JobUpdate{
		JobID:    payload.JobID,
		Status:   "processing",
		ImageRef: payload.ImagePath,
		DocType:  payload.DocType,
		Metadata: payload.Metadata,
	})

	log.Printf("Processing job %s: image=%s, docType=%s",
		payload.JobID, payload.ImagePath, payload.DocType)

	timeout := 2 * time.Minute
	if c.config.ProcessingTimeout > 0 {
		timeout = c.config.ProcessingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	startTime := time.Now()
	detection, err := c.service.Detect(ctx, payload.ImagePath, payload.DocType)
	duration := time.Since(startTime)

	if err != nil {
		log.Printf("Job %s failed after %v: %v", payload.JobID, duration, err)

		job.Attempts++
		if job.Attempts < job.MaxRetries {
			updatedData, _ := json.Marshal(job)
			c.client.HSet(c.ctx, fmt.Sprintf("%s:data", c.config.QueueName), job.ID, updatedData)
			c.client.LPush(c.ctx, c.config.QueueName, job.ID)
			log.Printf("Job %s re-queued for retry (attempt %d/%d)",
				payload.JobID, job.Attempts, job.MaxRetries)
			return nil
		}

		c.markJobState(payload.JobID, "failed", map[string]interface{}{
			"error":    err.Error(),
			"attempts": job.Attempts,
		})
		c.recordJob(&storage.JobUpdate{
			JobID:            payload.JobID,
			Status:           "failed",
			ImageRef:         payload.ImagePath,
			DocType:          payload.DocType,
			ProcessingTimeMs: duration.Milliseconds(),
			ErrorMessage:     err.Error(),
		})
		return nil
	}

	methods := make([]string, 0, len(detection.MethodsUsed))
	for _, m := range detection.MethodsUsed {
		methods = append(methods, string(m))
	}

	c.markJobState(payload.JobID, "completed", map[string]interface{}{
		"primaryName":    detection.PrimaryName,
		"detectedNames":  detection.CombinedNames,
		"confidence":     detection.Confidence,
		"methodsUsed":    methods,
		"processingTime": duration.Milliseconds(),
	})
	c.recordJob(&storage.JobUpdate{
		JobID:            payload.JobID,
		Status:           "completed",
		ImageRef:         payload.ImagePath,
		DocType:          payload.DocType,
		PrimaryName:      detection.PrimaryName,
		DetectedNames:    detection.CombinedNames,
		Confidence:       detection.Confidence,
		MethodsUsed:      methods,
		ProcessingTimeMs: duration.Milliseconds(),
		Metadata:         payload.Metadata,
	})

	log.Printf("Job %s completed in %v: primary=%q, names=%d",
		payload.JobID, duration, detection.PrimaryName, len(detection.CombinedNames))
	return nil
}

// processLearnJob records one human correction
func (c *RedisConsumer) processLearnJob(job *RedisJobData) error {
	var payload LearnJobData
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal learn payload: %w", err)
	}
	if payload.Name == "" {
		return fmt.Errorf("name is required")
	}

	var box *ocr.BoundingBox
	if payload.Box != nil {
		box = &ocr.BoundingBox{
			X0: payload.Box[0], Y0: payload.Box[1],
			X1: payload.Box[2], Y1: payload.Box[3],
		}
	}

	correction := &priors.Correction{
		ImageRef:      payload.ImageRef,
		Name:          payload.Name,
		FormType:      payload.FormType,
		Box:           box,
		ImageWidth:    payload.ImageWidth,
		ImageHeight:   payload.ImageHeight,
		Confidence:    payload.Confidence,
		TokenSnapshot: payload.TokenSnapshot,
	}
	if err := c.service.Learn(correction); err != nil {
		c.markJobState(payload.JobID, "failed", map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("failed to record correction: %w", err)
	}

	c.markJobState(payload.JobID, "completed", map[string]interface{}{
		"formType": payload.FormType,
		"hasBox":   box != nil,
	})
	log.Printf("Job %s recorded correction: formType=%s", payload.JobID, payload.FormType)
	return nil
}

// markJobState tracks job state in Redis sets and publishes an event so
// submitters can poll or stream progress.
func (c *RedisConsumer) markJobState(jobID, status string, result interface{}) {
	if jobID == "" {
		return
	}

	switch status {
	case "processing":
		c.client.SAdd(c.ctx, fmt.Sprintf("%s:processing", c.config.QueueName), jobID)
	case "completed":
		c.client.SRem(c.ctx, fmt.Sprintf("%s:processing", c.config.QueueName), jobID)
		c.client.SAdd(c.ctx, fmt.Sprintf("%s:completed", c.config.QueueName), jobID)
		if result != nil {
			resultData, _ := json.Marshal(result)
			c.client.HSet(c.ctx, fmt.Sprintf("%s:results", c.config.QueueName), jobID, resultData)
		}
	case "failed":
		c.client.SRem(c.ctx, fmt.Sprintf("%s:processing", c.config.QueueName), jobID)
		c.client.SAdd(c.ctx, fmt.Sprintf("%s:failed", c.config.QueueName), jobID)
		if result != nil {
			errorData, _ := json.Marshal(result)
			c.client.HSet(c.ctx, fmt.Sprintf("%s:errors", c.config.QueueName), jobID, errorData)
		}
	}

	event := map[string]interface{}{
		"event":     fmt.Sprintf("job:%s", status),
		"jobId":     jobID,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	eventData, _ := json.Marshal(event)
	c.client.Publish(c.ctx, fmt.Sprintf("%s:events", c.config.QueueName), eventData)
}

// recordJob persists a status update when a recorder is configured.
// Persistence failures never fail the job.
func (c *RedisConsumer) recordJob(update *storage.JobUpdate) {
	if c.recorder == nil || update.JobID == "" {
		return
	}
	if err := c.recorder.UpdateJobStatus(c.ctx, update); err != nil {
		log.Printf("Warning: Failed to update job %s status to %s: %v",
			update.JobID, update.Status, err)
	}
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats() (map[string]int64, error) {
	ctx := context.Background()

	waiting, _ := c.client.LLen(ctx, c.config.QueueName).Result()
	processing, _ := c.client.SCard(ctx, fmt.Sprintf("%s:processing", c.config.QueueName)).Result()
	completed, _ := c.client.SCard(ctx, fmt.Sprintf("%s:completed", c.config.QueueName)).Result()
	failed, _ := c.client.SCard(ctx, fmt.Sprintf("%s:failed", c.config.QueueName)).Result()

	return map[string]int64{
		"waiting":    waiting,
		"processing": processing,
		"completed":  completed,
		"failed":     failed,
	}, nil
}
