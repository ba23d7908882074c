/**
 * Entity Recognizer Client
 *
 * Talks to the general-purpose NER service (a BERT-style model behind HTTP).
 * The service consumes plain text and returns typed entity spans with scores;
 * the general extractor keeps the person/organization ones.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Entity types reported by the recognizer
const (
	EntityTypePerson       = "PER"
	EntityTypeOrganization = "ORG"
)

// EntityClient handles communication with the NER service
type EntityClient struct {
	baseURL    string
	httpClient *http.Client
}

// EntityRequest represents a recognition request over plain text
type EntityRequest struct {
	Text string `json:"text"`
}

// EntitySpan is one recognized entity
type EntitySpan struct {
	Text  string  `json:"text"`
	Type  string  `json:"type"` // PER, ORG, LOC, MISC
	Score float64 `json:"score"`
}

// EntityResponse represents the service response
type EntityResponse struct {
	Success   bool         `json:"success"`
	Entities  []EntitySpan `json:"entities"`
	ModelUsed string       `json:"modelUsed,omitempty"`
	Message   string       `json:"message,omitempty"`
}

// NewEntityClient creates a new entity recognizer client
func NewEntityClient(baseURL string) *EntityClient {
	return &EntityClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// HealthCheck verifies the NER service is available
func (c *EntityClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("NER health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("NER health check returned status %d", resp.StatusCode)
	}

	return nil
}

// Recognize extracts typed entity spans from plain text
func (c *EntityClient) Recognize(ctx context.Context, req *EntityRequest) (*EntityResponse, error) {
	if req.Text == "" {
		return nil, fmt.Errorf("text is required")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entity request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/entities", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create entity request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("NER request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read NER response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("NER returned status %d: %s", resp.StatusCode, string(body))
	}

	var result EntityResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse NER response: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("NER rejected request: %s", result.Message)
	}

	return &result, nil
}
