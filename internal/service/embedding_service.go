package service

import (
	"encoding/json"
	"log"
	"strings"

	"github.com/atiohaidar/test-case-management/internal/aiclient"
)

// AIClient is the slice of the AI microservice the services depend on.
type AIClient interface {
	GenerateEmbedding(text string) ([]float64, error)
	GenerateTestCase(req aiclient.GenerateRequest) (*aiclient.GeneratedTestCase, error)
	Search(query string, minSimilarity float64, limit int) ([]aiclient.SearchResult, error)
}

// EmbeddingInput holds the text fields an embedding is computed from.
type EmbeddingInput struct {
	Name        string
	Description string
	Tags        []string
}

// EmbeddingService 嵌入向量生成服务
type EmbeddingService interface {
	// GenerateEmbedding never fails: any upstream error degrades to an
	// empty vector so the parent operation can proceed.
	GenerateEmbedding(input EmbeddingInput) []float64
	Serialize(vector []float64) string
}

type embeddingService struct {
	client AIClient
}

// NewEmbeddingService creates the embedding gateway.
func NewEmbeddingService(client AIClient) EmbeddingService {
	return &embeddingService{client: client}
}

func (s *embeddingService) GenerateEmbedding(input EmbeddingInput) []float64 {
	// Name, description and space-joined tags, in that order, empty parts
	// skipped.
	parts := make([]string, 0, 3)
	if input.Name != "" {
		parts = append(parts, input.Name)
	}
	if input.Description != "" {
		parts = append(parts, input.Description)
	}
	if len(input.Tags) > 0 {
		parts = append(parts, strings.Join(input.Tags, " "))
	}
	text := strings.Join(parts, " ")

	embedding, err := s.client.GenerateEmbedding(text)
	if err != nil {
		log.Printf("Embedding generation error: %v", err)
		return []float64{}
	}
	return embedding
}

func (s *embeddingService) Serialize(vector []float64) string {
	if vector == nil {
		vector = []float64{}
	}
	data, err := json.Marshal(vector)
	if err != nil {
		return "[]"
	}
	return string(data)
}
