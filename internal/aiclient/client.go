package aiclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/atiohaidar/test-case-management/internal/config"
	"github.com/atiohaidar/test-case-management/internal/models"
)

// Sentinel errors for the two failure classes the API surfaces differently.
var (
	// ErrUnavailable covers network failures, timeouts and non-2xx replies.
	ErrUnavailable = errors.New("ai service unavailable")
	// ErrNotConfigured means the AI service itself reports a missing API key.
	ErrNotConfigured = errors.New("ai service not configured")
)

// GenerateRequest is the payload for the test-case generation endpoint.
type GenerateRequest struct {
	Prompt                 string  `json:"prompt"`
	Context                string  `json:"context,omitempty"`
	PreferredType          string  `json:"preferredType,omitempty"`
	PreferredPriority      string  `json:"preferredPriority,omitempty"`
	UseRAG                 bool    `json:"useRAG"`
	RAGSimilarityThreshold float64 `json:"ragSimilarityThreshold"`
	MaxRAGReferences       int     `json:"maxRAGReferences"`
}

// RAGReference is one retrieved test case that informed a generation.
type RAGReference struct {
	TestCaseID string           `json:"testCaseId"`
	Similarity float64          `json:"similarity"`
	TestCase   *models.TestCase `json:"testCase,omitempty"`
}

// GeneratedTestCase is the draft returned by the AI service. Not persisted.
type GeneratedTestCase struct {
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	Type               string            `json:"type"`
	Priority           string            `json:"priority"`
	Steps              []models.TestStep `json:"steps"`
	ExpectedResult     string            `json:"expectedResult"`
	Tags               []string          `json:"tags"`
	OriginalPrompt     string            `json:"originalPrompt"`
	AIGenerated        bool              `json:"aiGenerated"`
	Confidence         float64           `json:"confidence"`
	AISuggestions      string            `json:"aiSuggestions,omitempty"`
	AIGenerationMethod string            `json:"aiGenerationMethod"`
	RAGReferences      []RAGReference    `json:"ragReferences,omitempty"`
	TokenUsage         models.JSONB      `json:"tokenUsage,omitempty"`
}

// SearchResult is one semantic search hit with its similarity score.
type SearchResult struct {
	TestCase   map[string]interface{} `json:"testCase"`
	Similarity float64                `json:"similarity"`
}

// Client 调用外部AI微服务的HTTP客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client from the [ai] config section.
func NewClient(cfg config.AIConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout()},
	}
}

// GenerateEmbedding turns text into an embedding vector.
func (c *Client) GenerateEmbedding(text string) ([]float64, error) {
	var result struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := c.post("/generate-embedding", map[string]interface{}{"text": text}, &result); err != nil {
		return nil, err
	}
	return result.Embedding, nil
}

// GenerateTestCase asks the AI service for a structured test case draft.
func (c *Client) GenerateTestCase(req GenerateRequest) (*GeneratedTestCase, error) {
	var result GeneratedTestCase
	if err := c.post("/generate-test-case", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Search performs semantic similarity search over stored embeddings.
func (c *Client) Search(query string, minSimilarity float64, limit int) ([]SearchResult, error) {
	payload := map[string]interface{}{
		"query":          query,
		"min_similarity": minSimilarity,
		"limit":          limit,
	}
	var results []SearchResult
	if err := c.post("/search", payload, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) post(path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// The AI service reports a missing API key as a 500 whose detail
		// mentions configuration. Surface that case distinctly.
		if resp.StatusCode == http.StatusInternalServerError {
			var detail struct {
				Detail string `json:"detail"`
			}
			if json.Unmarshal(data, &detail) == nil &&
				strings.Contains(detail.Detail, "not configured") {
				return fmt.Errorf("%w: %s", ErrNotConfigured, detail.Detail)
			}
		}
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: invalid response: %v", ErrUnavailable, err)
	}
	return nil
}
