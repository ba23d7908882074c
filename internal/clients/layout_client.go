/**
 * Layout Model Client
 *
 * Talks to the layout-aware token classification service (a LayoutLM-style
 * model behind HTTP). The service consumes tokens with normalized boxes and
 * returns one label+score per token; the spatial extractor turns contiguous
 * name-labeled runs into candidates.
 *
 * Failures here are never fatal to a detection request: the caller converts
 * any error into an empty candidate list.
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

// TokenLabelName is the label the layout model assigns to name tokens
const TokenLabelName = "NAME"

// LayoutClient handles communication with the layout model service
type LayoutClient struct {
	baseURL    string
	httpClient *http.Client
}

// LayoutToken is one input token with its normalized bounding box
type LayoutToken struct {
	Text string     `json:"text"`
	Box  [4]float64 `json:"bbox"` // x0,y0,x1,y1 in the 0-1000 space
}

// TokenClassifyRequest represents a token classification request
type TokenClassifyRequest struct {
	Tokens  []LayoutToken `json:"tokens"`
	DocType string        `json:"docType,omitempty"` // model context only, never required
}

// TokenLabel is the model's verdict for one input token, index-aligned
// with the request's token list
type TokenLabel struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// TokenClassifyResponse represents the service response
type TokenClassifyResponse struct {
	Success   bool         `json:"success"`
	Labels    []TokenLabel `json:"labels"`
	ModelUsed string       `json:"modelUsed,omitempty"`
	Message   string       `json:"message,omitempty"`
}

// NewLayoutClient creates a new layout model client
func NewLayoutClient(baseURL string) *LayoutClient {
	return &LayoutClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// HealthCheck verifies the layout model service is available
func (c *LayoutClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("layout model health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("layout model health check returned status %d", resp.StatusCode)
	}

	return nil
}

// ClassifyTokens labels every token as name / not-name with a score
func (c *LayoutClient) ClassifyTokens(ctx context.Context, req *TokenClassifyRequest) (*TokenClassifyResponse, error) {
	if len(req.Tokens) == 0 {
		return nil, fmt.Errorf("at least one token is required")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal classify request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/token-classify", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create classify request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("layout model request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read layout model response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("layout model returned status %d: %s", resp.StatusCode, string(body))
	}

	var result TokenClassifyResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse layout model response: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("layout model rejected request: %s", result.Message)
	}

	if len(result.Labels) != len(req.Tokens) {
		return nil, fmt.Errorf("layout model returned %d labels for %d tokens",
			len(result.Labels), len(req.Tokens))
	}

	return &result, nil
}
