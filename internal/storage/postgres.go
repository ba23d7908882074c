/**
 * PostgreSQL client for the name detection worker
 *
 * Persists detection job status and results. The worker upserts rows so
 * it can record outcomes even when the submitting API has not created
 * the job record yet.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	_ "github.com/lib/pq"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a detection job status update
type JobUpdate struct {
	JobID            string
	Status           string
	ImageRef         string
	DocType          string
	PrimaryName      string
	DetectedNames    []string
	Confidence       float64
	MethodsUsed      []string
	ProcessingTimeMs int64
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
}

// sanitizeConfidence rounds confidence to 4 decimal places and clamps it
// to [0.0, 1.0]. Raw float64 values like 0.9632000000000001 trip
// PostgreSQL NUMERIC casting.
func sanitizeConfidence(confidence float64) float64 {
	if confidence < 0.0 {
		return 0.0
	}
	if confidence > 1.0 {
		return 1.0
	}
	return float64(int(confidence*10000+0.5)) / 10000
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// UpdateJobStatus upserts a detection job row with the latest status
// and, when available, the detection result.
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	sanitizedConfidence := sanitizeConfidence(update.Confidence)

	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO namedetect.detection_jobs (
			id, image_ref, doc_type, status,
			primary_name, detected_names, confidence, methods_used,
			processing_time_ms, error_code, error_message, metadata,
			created_at, updated_at
		) VALUES (
			$1::uuid, NULLIF($2, ''), COALESCE(NULLIF($3, ''), 'generic'), $4,
			NULLIF($5, ''), $6, NULLIF($7::NUMERIC(5,4), 0), $8,
			NULLIF($9, 0), NULLIF($10, ''), NULLIF($11, ''),
			COALESCE($12::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			primary_name = COALESCE(EXCLUDED.primary_name, namedetect.detection_jobs.primary_name),
			detected_names = COALESCE(EXCLUDED.detected_names, namedetect.detection_jobs.detected_names),
			confidence = COALESCE(NULLIF(EXCLUDED.confidence::NUMERIC(5,4), 0), namedetect.detection_jobs.confidence),
			methods_used = COALESCE(EXCLUDED.methods_used, namedetect.detection_jobs.methods_used),
			processing_time_ms = COALESCE(NULLIF(EXCLUDED.processing_time_ms, 0), namedetect.detection_jobs.processing_time_ms),
			error_code = NULLIF(EXCLUDED.error_code, ''),
			error_message = NULLIF(EXCLUDED.error_message, ''),
			metadata = COALESCE(EXCLUDED.metadata, namedetect.detection_jobs.metadata),
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,
		update.ImageRef,
		update.DocType,
		update.Status,
		update.PrimaryName,
		pq.Array(update.DetectedNames),
		sanitizedConfidence,
		pq.Array(update.MethodsUsed),
		update.ProcessingTimeMs,
		update.ErrorCode,
		update.ErrorMessage,
		metadataJSON,
	).Scan(&returnedID)

	if err == sql.ErrNoRows {
		return fmt.Errorf("job not found: %s", update.JobID)
	}
	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w",
			update.JobID, update.Status, err)
	}

	return nil
}

// GetJobByID retrieves a detection job by ID
func (p *PostgresClient) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id,
			image_ref,
			doc_type,
			status,
			primary_name,
			detected_names,
			confidence,
			methods_used,
			processing_time_ms,
			error_code,
			error_message,
			metadata,
			created_at,
			updated_at
		FROM namedetect.detection_jobs
		WHERE id = $1::uuid
	`

	var (
		id                                   string
		imageRef, docType, status            sql.NullString
		primaryName, errorCode, errorMessage sql.NullString
		detectedNames, methodsUsed           pq.StringArray
		confidence                           sql.NullFloat64
		processingTimeMs                     sql.NullInt64
		metadataJSON                         []byte
		createdAt, updatedAt                 time.Time
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&id, &imageRef, &docType, &status,
		&primaryName, &detectedNames, &confidence, &methodsUsed,
		&processingTimeMs, &errorCode, &errorMessage,
		&metadataJSON, &createdAt, &updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var metadata map[string]interface{}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	result := map[string]interface{}{
		"id":        id,
		"status":    status.String,
		"createdAt": createdAt,
		"updatedAt": updatedAt,
		"metadata":  metadata,
	}
	if imageRef.Valid {
		result["imageRef"] = imageRef.String
	}
	if docType.Valid {
		result["docType"] = docType.String
	}
	if primaryName.Valid {
		result["primaryName"] = primaryName.String
	}
	if len(detectedNames) > 0 {
		result["detectedNames"] = []string(detectedNames)
	}
	if confidence.Valid {
		result["confidence"] = confidence.Float64
	}
	if len(methodsUsed) > 0 {
		result["methodsUsed"] = []string(methodsUsed)
	}
	if processingTimeMs.Valid {
		result["processingTimeMs"] = processingTimeMs.Int64
	}
	if errorCode.Valid {
		result["errorCode"] = errorCode.String
	}
	if errorMessage.Valid {
		result["errorMessage"] = errorMessage.String
	}

	return result, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
