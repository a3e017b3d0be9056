package service

import (
	"errors"
	"log"

	"github.com/atiohaidar/test-case-management/internal/aiclient"
	"github.com/atiohaidar/test-case-management/internal/config"
	"github.com/atiohaidar/test-case-management/internal/models"
)

// GenerateTestCaseRequest 自然语言生成测试用例请求
type GenerateTestCaseRequest struct {
	Prompt                 string   `json:"prompt" binding:"required"`
	Context                string   `json:"context"`
	PreferredType          string   `json:"preferredType" binding:"omitempty,oneof=positive negative"`
	PreferredPriority      string   `json:"preferredPriority" binding:"omitempty,oneof=high medium low"`
	UseRAG                 *bool    `json:"useRAG"`
	RAGSimilarityThreshold *float64 `json:"ragSimilarityThreshold" binding:"omitempty,min=0,max=1"`
	MaxRAGReferences       *int     `json:"maxRAGReferences" binding:"omitempty,min=1"`
}

// GeneratedAndSavedTestCase is the persisted test case plus the RAG edges
// recorded for it.
type GeneratedAndSavedTestCase struct {
	models.TestCase
	RAGReferences []ReferenceDetail `json:"ragReferences"`
}

// AIService AI生成服务接口
type AIService interface {
	// GenerateTestCase returns a draft only; nothing is persisted.
	GenerateTestCase(req *GenerateTestCaseRequest) (*aiclient.GeneratedTestCase, error)
	// GenerateAndSaveTestCase generates, embeds, persists and records the
	// draft's RAG references.
	GenerateAndSaveTestCase(req *GenerateTestCaseRequest) (*GeneratedAndSavedTestCase, error)
}

type aiService struct {
	client     AIClient
	creator    TestCaseCreator
	refService ReferenceService
	cfg        config.AIConfig
}

// NewAIService creates the AI draft service.
func NewAIService(client AIClient, creator TestCaseCreator, refService ReferenceService, cfg config.AIConfig) AIService {
	return &aiService{
		client:     client,
		creator:    creator,
		refService: refService,
		cfg:        cfg,
	}
}

func (s *aiService) GenerateTestCase(req *GenerateTestCaseRequest) (*aiclient.GeneratedTestCase, error) {
	draft, err := s.client.GenerateTestCase(s.buildRequest(req))
	if err != nil {
		if errors.Is(err, aiclient.ErrNotConfigured) {
			return nil, errAINotConfigured(err)
		}
		return nil, errAIUnavailable("Failed to generate test case with AI", err)
	}
	return draft, nil
}

func (s *aiService) GenerateAndSaveTestCase(req *GenerateTestCaseRequest) (*GeneratedAndSavedTestCase, error) {
	draft, err := s.GenerateTestCase(req)
	if err != nil {
		// Generation failed: nothing was created.
		return nil, err
	}

	confidence := draft.Confidence
	createReq := &CreateTestCaseRequest{
		Name:               draft.Name,
		Description:        draft.Description,
		Type:               draft.Type,
		Priority:           draft.Priority,
		Steps:              draft.Steps,
		ExpectedResult:     draft.ExpectedResult,
		Tags:               draft.Tags,
		AIGenerated:        true,
		OriginalPrompt:     draft.OriginalPrompt,
		AIConfidence:       &confidence,
		AISuggestions:      draft.AISuggestions,
		AIGenerationMethod: draft.AIGenerationMethod,
		TokenUsage:         draft.TokenUsage,
	}

	testCase, err := s.creator.CreateWithEmbedding(createReq)
	if err != nil {
		return nil, err
	}

	// The test case is committed; losing its RAG edges is logged, not fatal.
	if len(draft.RAGReferences) > 0 {
		ragInputs := make([]RAGReferenceInput, 0, len(draft.RAGReferences))
		for _, ref := range draft.RAGReferences {
			ragInputs = append(ragInputs, RAGReferenceInput{
				TestCaseID: ref.TestCaseID,
				Similarity: ref.Similarity,
			})
		}
		if _, err := s.refService.CreateRAGReferences(testCase.ID, ragInputs); err != nil {
			log.Printf("Generate and save: RAG reference wiring failed for %s: %v", testCase.ID, err)
		}
	}

	references, err := s.refService.GetReferencesForTestCase(testCase.ID)
	if err != nil {
		return nil, err
	}

	return &GeneratedAndSavedTestCase{
		TestCase:      *testCase,
		RAGReferences: references,
	}, nil
}

// buildRequest forwards the caller's parameters, substituting the configured
// defaults for absent optional fields.
func (s *aiService) buildRequest(req *GenerateTestCaseRequest) aiclient.GenerateRequest {
	out := aiclient.GenerateRequest{
		Prompt:                 req.Prompt,
		Context:                req.Context,
		PreferredType:          req.PreferredType,
		PreferredPriority:      req.PreferredPriority,
		UseRAG:                 true,
		RAGSimilarityThreshold: s.cfg.RAGSimilarityThreshold,
		MaxRAGReferences:       s.cfg.RAGMaxReferences,
	}
	if req.UseRAG != nil {
		out.UseRAG = *req.UseRAG
	}
	if req.RAGSimilarityThreshold != nil {
		out.RAGSimilarityThreshold = *req.RAGSimilarityThreshold
	}
	if req.MaxRAGReferences != nil {
		out.MaxRAGReferences = *req.MaxRAGReferences
	}
	return out
}
