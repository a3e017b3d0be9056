package service

import (
	"log"

	"github.com/atiohaidar/test-case-management/internal/aiclient"
	"github.com/atiohaidar/test-case-management/internal/models"
	"github.com/atiohaidar/test-case-management/internal/repository"
	"github.com/atiohaidar/test-case-management/internal/websocket"

	"github.com/google/uuid"
)

// ===== Request/Response DTOs =====

type CreateTestCaseRequest struct {
	Name           string            `json:"name" binding:"required"`
	Description    string            `json:"description" binding:"required"`
	Type           string            `json:"type" binding:"required,oneof=positive negative"`
	Priority       string            `json:"priority" binding:"required,oneof=high medium low"`
	Steps          []models.TestStep `json:"steps" binding:"required,min=1"`
	ExpectedResult string            `json:"expectedResult" binding:"required"`
	Tags           []string          `json:"tags"`

	// AI metadata, present when the test case came out of a generation flow
	AIGenerated        bool         `json:"aiGenerated"`
	OriginalPrompt     string       `json:"originalPrompt"`
	AIConfidence       *float64     `json:"aiConfidence"`
	AISuggestions      string       `json:"aiSuggestions"`
	AIGenerationMethod string       `json:"aiGenerationMethod" binding:"omitempty,oneof=pure_ai rag"`
	TokenUsage         models.JSONB `json:"tokenUsage"`

	// Reference wiring, e.g. "found via semantic search, then saved"
	ReferenceTo   string              `json:"referenceTo"`
	ReferenceType string              `json:"referenceType" binding:"omitempty,oneof=manual_reference rag_retrieval derived"`
	RAGReferences []RAGReferenceInput `json:"ragReferences" binding:"omitempty,dive"`
}

// UpdateTestCaseRequest is a partial update; zero-value fields are left
// unchanged.
type UpdateTestCaseRequest struct {
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Type           string            `json:"type" binding:"omitempty,oneof=positive negative"`
	Priority       string            `json:"priority" binding:"omitempty,oneof=high medium low"`
	Steps          []models.TestStep `json:"steps"`
	ExpectedResult string            `json:"expectedResult"`
	Tags           []string          `json:"tags"`
}

type BulkCreateRequest struct {
	TestCases []CreateTestCaseRequest `json:"testCases" binding:"required,min=1,dive"`
}

// TestCaseCreationResult reports one item of a bulk create.
type TestCaseCreationResult struct {
	Success bool             `json:"success"`
	Data    *models.TestCase `json:"data,omitempty"`
	Error   string           `json:"error,omitempty"`
	Index   int              `json:"index"`
}

type BulkCreateResponse struct {
	Results      []TestCaseCreationResult `json:"results"`
	Total        int                      `json:"total"`
	SuccessCount int                      `json:"successCount"`
	FailureCount int                      `json:"failureCount"`
}

// TestCaseService 测试用例服务接口（门面）
type TestCaseService interface {
	TestCaseCreator

	Create(req *CreateTestCaseRequest) (*models.TestCase, error)
	FindAll() ([]models.TestCase, error)
	FindOne(id string) (*models.TestCase, error)
	Update(id string, req *UpdateTestCaseRequest) (*models.TestCase, error)
	Remove(id string) error
	BulkCreate(reqs []CreateTestCaseRequest) (*BulkCreateResponse, error)
	Search(query string, minSimilarity float64, limit int) ([]aiclient.SearchResult, error)
}

type testCaseService struct {
	caseRepo   repository.TestCaseRepository
	refService ReferenceService
	embedding  EmbeddingService
	aiClient   AIClient
	hub        *websocket.Hub
}

// NewTestCaseService creates the facade service. hub may be nil (import tool).
func NewTestCaseService(
	caseRepo repository.TestCaseRepository,
	refService ReferenceService,
	embedding EmbeddingService,
	aiClient AIClient,
	hub *websocket.Hub,
) TestCaseService {
	return &testCaseService{
		caseRepo:   caseRepo,
		refService: refService,
		embedding:  embedding,
		aiClient:   aiClient,
		hub:        hub,
	}
}

// Create persists a test case and wires any requested reference edges.
func (s *testCaseService) Create(req *CreateTestCaseRequest) (*models.TestCase, error) {
	testCase, err := s.CreateWithEmbedding(req)
	if err != nil {
		return nil, err
	}

	// Explicit reference edge (semantic-search-then-save flow)
	if req.ReferenceTo != "" && req.ReferenceType != "" {
		if _, err := s.refService.CreateReference(testCase.ID, req.ReferenceTo, req.ReferenceType, nil); err != nil {
			return nil, err
		}
	}

	// RAG retrieval edges, independent of the explicit reference
	if len(req.RAGReferences) > 0 {
		if _, err := s.refService.CreateRAGReferences(testCase.ID, req.RAGReferences); err != nil {
			return nil, err
		}
	}

	s.notify("testcase_created", testCase)
	return testCase, nil
}

// CreateWithEmbedding computes the embedding and inserts the row. Reference
// wiring is the caller's concern.
func (s *testCaseService) CreateWithEmbedding(req *CreateTestCaseRequest) (*models.TestCase, error) {
	vector := s.embedding.GenerateEmbedding(EmbeddingInput{
		Name:        req.Name,
		Description: req.Description,
		Tags:        req.Tags,
	})

	testCase := newTestCase(req, s.embedding.Serialize(vector))
	if err := s.caseRepo.Create(testCase); err != nil {
		return nil, errCreateFailed(err)
	}
	return stripEmbedding(testCase), nil
}

func (s *testCaseService) FindAll() ([]models.TestCase, error) {
	testCases, err := s.caseRepo.FindAll()
	if err != nil {
		return nil, errPersistence("Failed to list test cases", err)
	}
	for i := range testCases {
		testCases[i].Embedding = ""
	}
	return testCases, nil
}

func (s *testCaseService) FindOne(id string) (*models.TestCase, error) {
	testCase, err := s.caseRepo.FindByID(id)
	if err != nil {
		return nil, errPersistence("Failed to load test case", err)
	}
	if testCase == nil {
		return nil, ErrTestCaseNotFound
	}
	return stripEmbedding(testCase), nil
}

// Update applies the non-empty fields and refreshes the embedding computed
// from those same fields.
func (s *testCaseService) Update(id string, req *UpdateTestCaseRequest) (*models.TestCase, error) {
	existing, err := s.caseRepo.FindByID(id)
	if err != nil {
		return nil, errPersistence("Failed to load test case", err)
	}
	if existing == nil {
		return nil, ErrTestCaseNotFound
	}

	vector := s.embedding.GenerateEmbedding(EmbeddingInput{
		Name:        req.Name,
		Description: req.Description,
		Tags:        req.Tags,
	})

	fields := map[string]interface{}{
		"embedding": s.embedding.Serialize(vector),
	}
	if req.Name != "" {
		fields["name"] = req.Name
	}
	if req.Description != "" {
		fields["description"] = req.Description
	}
	if req.Type != "" {
		fields["type"] = req.Type
	}
	if req.Priority != "" {
		fields["priority"] = req.Priority
	}
	if len(req.Steps) > 0 {
		fields["steps"] = models.StepList(req.Steps)
	}
	if req.ExpectedResult != "" {
		fields["expected_result"] = req.ExpectedResult
	}
	if len(req.Tags) > 0 {
		fields["tags"] = models.StringArray(req.Tags)
	}

	if err := s.caseRepo.Update(id, fields); err != nil {
		return nil, errUpdateFailed(err)
	}

	updated, err := s.caseRepo.FindByID(id)
	if err != nil || updated == nil {
		return nil, errUpdateFailed(err)
	}

	result := stripEmbedding(updated)
	s.notify("testcase_updated", result)
	return result, nil
}

// Remove hard-deletes the row. Reference edges touching it are kept, matching
// the source schema (no cascade).
func (s *testCaseService) Remove(id string) error {
	existing, err := s.caseRepo.FindByID(id)
	if err != nil {
		return errPersistence("Failed to load test case", err)
	}
	if existing == nil {
		return ErrTestCaseNotFound
	}
	if err := s.caseRepo.Delete(id); err != nil {
		return errPersistence("Failed to delete test case", err)
	}
	s.notify("testcase_deleted", map[string]string{"id": id})
	return nil
}

// BulkCreate applies per-item best-effort semantics in three phases:
// embeddings, sequential inserts, then reference wiring. One bad item never
// aborts the batch, and results[i].Index == i always holds.
func (s *testCaseService) BulkCreate(reqs []CreateTestCaseRequest) (*BulkCreateResponse, error) {
	// Phase 1: embeddings. Failures already degrade to empty vectors inside
	// the gateway, so every item keeps its slot.
	embeddings := make([]string, len(reqs))
	for i := range reqs {
		vector := s.embedding.GenerateEmbedding(EmbeddingInput{
			Name:        reqs[i].Name,
			Description: reqs[i].Description,
			Tags:        reqs[i].Tags,
		})
		embeddings[i] = s.embedding.Serialize(vector)
	}

	// Phase 2: strictly sequential inserts, one result per input index.
	results := make([]TestCaseCreationResult, 0, len(reqs))
	for i := range reqs {
		testCase := newTestCase(&reqs[i], embeddings[i])
		if err := s.caseRepo.Create(testCase); err != nil {
			results = append(results, TestCaseCreationResult{
				Success: false,
				Error:   err.Error(),
				Index:   i,
			})
			continue
		}
		results = append(results, TestCaseCreationResult{
			Success: true,
			Data:    stripEmbedding(testCase),
			Index:   i,
		})
	}

	// Phase 3: best-effort reference wiring. The test cases are committed;
	// a failure here is logged and never flips a result to failed.
	for _, result := range results {
		if !result.Success || result.Data == nil {
			continue
		}
		req := reqs[result.Index]

		if req.ReferenceTo != "" && req.ReferenceType != "" {
			if _, err := s.refService.CreateReference(result.Data.ID, req.ReferenceTo, req.ReferenceType, nil); err != nil {
				log.Printf("Bulk create: reference wiring failed for %s: %v", result.Data.ID, err)
			}
		}
		if len(req.RAGReferences) > 0 {
			if _, err := s.refService.CreateRAGReferences(result.Data.ID, req.RAGReferences); err != nil {
				log.Printf("Bulk create: RAG reference wiring failed for %s: %v", result.Data.ID, err)
			}
		}
	}

	successCount := 0
	for _, result := range results {
		if result.Success {
			successCount++
			s.notify("testcase_created", result.Data)
		}
	}

	return &BulkCreateResponse{
		Results:      results,
		Total:        len(results),
		SuccessCount: successCount,
		FailureCount: len(results) - successCount,
	}, nil
}

// Search proxies semantic search to the AI service.
func (s *testCaseService) Search(query string, minSimilarity float64, limit int) ([]aiclient.SearchResult, error) {
	results, err := s.aiClient.Search(query, minSimilarity, limit)
	if err != nil {
		return nil, errAIUnavailable("Failed to perform semantic search", err)
	}
	return results, nil
}

func (s *testCaseService) notify(eventType string, payload interface{}) {
	if s.hub != nil {
		s.hub.Broadcast(eventType, payload)
	}
}

// newTestCase builds the model row from a create request.
func newTestCase(req *CreateTestCaseRequest, serializedEmbedding string) *models.TestCase {
	return &models.TestCase{
		ID:                 uuid.NewString(),
		Name:               req.Name,
		Description:        req.Description,
		Type:               req.Type,
		Priority:           req.Priority,
		Steps:              models.StepList(req.Steps),
		ExpectedResult:     req.ExpectedResult,
		Tags:               models.StringArray(req.Tags),
		Embedding:          serializedEmbedding,
		AIGenerated:        req.AIGenerated,
		OriginalPrompt:     req.OriginalPrompt,
		AIConfidence:       req.AIConfidence,
		AISuggestions:      req.AISuggestions,
		AIGenerationMethod: req.AIGenerationMethod,
		TokenUsage:         req.TokenUsage,
	}
}
