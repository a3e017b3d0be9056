package service

import (
	"time"

	"github.com/atiohaidar/test-case-management/internal/models"
	"github.com/atiohaidar/test-case-management/internal/repository"

	"github.com/google/uuid"
)

// allReferenceTypes filters incoming edges when computing derived views.
var allReferenceTypes = []string{
	models.ReferenceManual,
	models.ReferenceDerived,
	models.ReferenceRAGRetrieval,
}

// ===== 响应DTO =====

// TestCaseSummary is the compact form of a referenced test case.
type TestCaseSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Priority    string    `json:"priority"`
	CreatedAt   time.Time `json:"createdAt"`
	AIGenerated bool      `json:"aiGenerated,omitempty"`
}

// ReferenceDetail is one outgoing edge with its target summary.
type ReferenceDetail struct {
	ID              string           `json:"id"`
	TargetID        string           `json:"targetId"`
	ReferenceType   string           `json:"referenceType"`
	SimilarityScore *float64         `json:"similarityScore"`
	CreatedAt       time.Time        `json:"createdAt"`
	Target          *TestCaseSummary `json:"target,omitempty"`
}

// ReferenceInfo annotates a derived test case with its incoming edge.
type ReferenceInfo struct {
	ID              string    `json:"id"`
	ReferenceType   string    `json:"referenceType"`
	SimilarityScore *float64  `json:"similarityScore"`
	CreatedAt       time.Time `json:"createdAt"`
}

// TestCaseWithReference is a test case plus its outgoing edges.
type TestCaseWithReference struct {
	models.TestCase
	References   []ReferenceDetail `json:"references"`
	DerivedCount int64             `json:"derivedCount"`
}

// DerivedTestCase is a full test case that references the requested one.
type DerivedTestCase struct {
	models.TestCase
	ReferenceInfo ReferenceInfo `json:"referenceInfo"`
}

// DerivedTestCaseSummary trims a derived test case for the full-detail view.
type DerivedTestCaseSummary struct {
	TestCaseSummary
	ReferenceInfo ReferenceInfo `json:"referenceInfo"`
}

// TestCaseFullDetail unions outgoing and incoming edge views.
type TestCaseFullDetail struct {
	models.TestCase
	References       []ReferenceDetail        `json:"references"`
	DerivedTestCases []DerivedTestCaseSummary `json:"derivedTestCases"`
	ReferencesCount  int                      `json:"referencesCount"`
	DerivedCount     int                      `json:"derivedCount"`
}

// RAGReferenceInput is one retrieved test case to link after creation.
type RAGReferenceInput struct {
	TestCaseID string  `json:"testCaseId" binding:"required"`
	Similarity float64 `json:"similarity" binding:"min=0,max=1"`
}

// DeriveTestCaseRequest carries the field overrides for derive-by-copy.
// Every field is optional; empty fields fall back to the reference test case.
type DeriveTestCaseRequest struct {
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Type           string            `json:"type" binding:"omitempty,oneof=positive negative"`
	Priority       string            `json:"priority" binding:"omitempty,oneof=high medium low"`
	Steps          []models.TestStep `json:"steps"`
	ExpectedResult string            `json:"expectedResult"`
	Tags           []string          `json:"tags"`
}

// TestCaseCreator breaks the cycle between the reference graph and the
// facade: derivation delegates the actual insert (embedding included) to it.
type TestCaseCreator interface {
	CreateWithEmbedding(req *CreateTestCaseRequest) (*models.TestCase, error)
}

// ReferenceService 引用关系服务接口
type ReferenceService interface {
	GetWithReference(id string) (*TestCaseWithReference, error)
	GetDerivedTestCases(id string) ([]DerivedTestCase, error)
	GetFullDetail(id string) (*TestCaseFullDetail, error)
	DeriveFromTestCase(referenceID string, req *DeriveTestCaseRequest, creator TestCaseCreator) (*models.TestCase, error)
	AddManualReference(sourceID, targetID string) (*models.TestCaseReference, error)
	RemoveReference(referenceID string) error
	CreateReference(sourceID, targetID, referenceType string, similarityScore *float64) (*models.TestCaseReference, error)
	CreateRAGReferences(sourceID string, ragReferences []RAGReferenceInput) ([]models.TestCaseReference, error)
	GetReferencesForTestCase(sourceID string) ([]ReferenceDetail, error)
}

type referenceService struct {
	caseRepo repository.TestCaseRepository
	refRepo  repository.ReferenceRepository
}

// NewReferenceService creates the reference graph service.
func NewReferenceService(caseRepo repository.TestCaseRepository, refRepo repository.ReferenceRepository) ReferenceService {
	return &referenceService{caseRepo: caseRepo, refRepo: refRepo}
}

func (s *referenceService) GetWithReference(id string) (*TestCaseWithReference, error) {
	testCase, err := s.caseRepo.FindByID(id)
	if err != nil {
		return nil, errPersistence("Failed to load test case", err)
	}
	if testCase == nil {
		return nil, ErrTestCaseNotFound
	}

	references, err := s.outgoingReferences(id)
	if err != nil {
		return nil, err
	}

	derivedCount, err := s.refRepo.CountByTargetID(id, allReferenceTypes)
	if err != nil {
		return nil, errPersistence("Failed to count derived test cases", err)
	}

	return &TestCaseWithReference{
		TestCase:     *stripEmbedding(testCase),
		References:   references,
		DerivedCount: derivedCount,
	}, nil
}

func (s *referenceService) GetDerivedTestCases(id string) ([]DerivedTestCase, error) {
	exists, err := s.caseRepo.Exists(id)
	if err != nil {
		return nil, errPersistence("Failed to load test case", err)
	}
	if !exists {
		return nil, ErrTestCaseNotFound
	}

	incoming, err := s.refRepo.FindByTargetID(id, allReferenceTypes)
	if err != nil {
		return nil, errPersistence("Failed to load references", err)
	}

	sources, err := s.peersByID(sourceIDs(incoming))
	if err != nil {
		return nil, err
	}

	derived := make([]DerivedTestCase, 0, len(incoming))
	for _, ref := range incoming {
		source, ok := sources[ref.SourceID]
		if !ok {
			// Dangling edge: the source test case was deleted.
			continue
		}
		derived = append(derived, DerivedTestCase{
			TestCase:      *stripEmbedding(&source),
			ReferenceInfo: referenceInfo(ref),
		})
	}
	return derived, nil
}

func (s *referenceService) GetFullDetail(id string) (*TestCaseFullDetail, error) {
	testCase, err := s.caseRepo.FindByID(id)
	if err != nil {
		return nil, errPersistence("Failed to load test case", err)
	}
	if testCase == nil {
		return nil, ErrTestCaseNotFound
	}

	references, err := s.outgoingReferences(id)
	if err != nil {
		return nil, err
	}

	incoming, err := s.refRepo.FindByTargetID(id, allReferenceTypes)
	if err != nil {
		return nil, errPersistence("Failed to load references", err)
	}
	sources, err := s.peersByID(sourceIDs(incoming))
	if err != nil {
		return nil, err
	}

	derivedTestCases := make([]DerivedTestCaseSummary, 0, len(incoming))
	for _, ref := range incoming {
		source, ok := sources[ref.SourceID]
		if !ok {
			continue
		}
		derivedTestCases = append(derivedTestCases, DerivedTestCaseSummary{
			TestCaseSummary: TestCaseSummary{
				ID:          source.ID,
				Name:        source.Name,
				Type:        source.Type,
				Priority:    source.Priority,
				CreatedAt:   source.CreatedAt,
				AIGenerated: source.AIGenerated,
			},
			ReferenceInfo: referenceInfo(ref),
		})
	}

	return &TestCaseFullDetail{
		TestCase:         *stripEmbedding(testCase),
		References:       references,
		DerivedTestCases: derivedTestCases,
		ReferencesCount:  len(references),
		DerivedCount:     len(incoming),
	}, nil
}

// DeriveFromTestCase merges the override fields onto the reference test case
// and records a derived edge from the new test case back to the reference.
func (s *referenceService) DeriveFromTestCase(referenceID string, req *DeriveTestCaseRequest, creator TestCaseCreator) (*models.TestCase, error) {
	reference, err := s.caseRepo.FindByID(referenceID)
	if err != nil {
		return nil, errPersistence("Failed to load reference test case", err)
	}
	if reference == nil {
		return nil, ErrTestCaseNotFound
	}

	// Supplied fields win; everything empty falls back to the reference.
	merged := &CreateTestCaseRequest{
		Name:           req.Name,
		Description:    req.Description,
		Type:           req.Type,
		Priority:       req.Priority,
		Steps:          req.Steps,
		ExpectedResult: req.ExpectedResult,
		Tags:           req.Tags,
	}
	if merged.Name == "" {
		merged.Name = reference.Name
	}
	if merged.Description == "" {
		merged.Description = reference.Description
	}
	if merged.Type == "" {
		merged.Type = reference.Type
	}
	if merged.Priority == "" {
		merged.Priority = reference.Priority
	}
	if len(merged.Steps) == 0 {
		merged.Steps = reference.Steps
	}
	if merged.ExpectedResult == "" {
		merged.ExpectedResult = reference.ExpectedResult
	}
	if len(merged.Tags) == 0 {
		merged.Tags = reference.Tags
	}

	newTestCase, err := creator.CreateWithEmbedding(merged)
	if err != nil {
		return nil, err
	}

	if _, err := s.CreateReference(newTestCase.ID, referenceID, models.ReferenceDerived, nil); err != nil {
		return nil, err
	}
	return newTestCase, nil
}

func (s *referenceService) AddManualReference(sourceID, targetID string) (*models.TestCaseReference, error) {
	sourceExists, err := s.caseRepo.Exists(sourceID)
	if err != nil {
		return nil, errPersistence("Failed to load source test case", err)
	}
	targetExists, err := s.caseRepo.Exists(targetID)
	if err != nil {
		return nil, errPersistence("Failed to load target test case", err)
	}
	if !sourceExists || !targetExists {
		return nil, ErrTestCaseNotFound
	}

	exists, err := s.refRepo.ManualReferenceExists(sourceID, targetID)
	if err != nil {
		return nil, errPersistence("Failed to check existing reference", err)
	}
	if exists {
		return nil, ErrReferenceExists
	}

	return s.CreateReference(sourceID, targetID, models.ReferenceManual, nil)
}

func (s *referenceService) RemoveReference(referenceID string) error {
	reference, err := s.refRepo.FindByID(referenceID)
	if err != nil {
		return errPersistence("Failed to load reference", err)
	}
	if reference == nil {
		return ErrReferenceNotFound
	}
	if err := s.refRepo.Delete(referenceID); err != nil {
		return errPersistence("Failed to remove reference", err)
	}
	return nil
}

// CreateReference inserts a single typed edge.
func (s *referenceService) CreateReference(sourceID, targetID, referenceType string, similarityScore *float64) (*models.TestCaseReference, error) {
	reference := &models.TestCaseReference{
		ID:              uuid.NewString(),
		SourceID:        sourceID,
		TargetID:        targetID,
		ReferenceType:   referenceType,
		SimilarityScore: similarityScore,
	}
	if err := s.refRepo.Create(reference); err != nil {
		return nil, errPersistence("Failed to create reference", err)
	}
	return reference, nil
}

// CreateRAGReferences inserts one rag_retrieval edge per entry. The inserts
// are independent; a failure leaves the earlier edges persisted.
func (s *referenceService) CreateRAGReferences(sourceID string, ragReferences []RAGReferenceInput) ([]models.TestCaseReference, error) {
	if len(ragReferences) == 0 {
		return []models.TestCaseReference{}, nil
	}

	created := make([]models.TestCaseReference, 0, len(ragReferences))
	for _, ref := range ragReferences {
		similarity := ref.Similarity
		reference, err := s.CreateReference(sourceID, ref.TestCaseID, models.ReferenceRAGRetrieval, &similarity)
		if err != nil {
			return created, err
		}
		created = append(created, *reference)
	}
	return created, nil
}

func (s *referenceService) GetReferencesForTestCase(sourceID string) ([]ReferenceDetail, error) {
	return s.outgoingReferences(sourceID)
}

// ===== 内部辅助 =====

func (s *referenceService) outgoingReferences(sourceID string) ([]ReferenceDetail, error) {
	references, err := s.refRepo.FindBySourceID(sourceID)
	if err != nil {
		return nil, errPersistence("Failed to load references", err)
	}

	targetIDs := make([]string, 0, len(references))
	for _, ref := range references {
		targetIDs = append(targetIDs, ref.TargetID)
	}
	targets, err := s.peersByID(targetIDs)
	if err != nil {
		return nil, err
	}

	details := make([]ReferenceDetail, 0, len(references))
	for _, ref := range references {
		detail := ReferenceDetail{
			ID:              ref.ID,
			TargetID:        ref.TargetID,
			ReferenceType:   ref.ReferenceType,
			SimilarityScore: ref.SimilarityScore,
			CreatedAt:       ref.CreatedAt,
		}
		if target, ok := targets[ref.TargetID]; ok {
			detail.Target = &TestCaseSummary{
				ID:        target.ID,
				Name:      target.Name,
				Type:      target.Type,
				Priority:  target.Priority,
				CreatedAt: target.CreatedAt,
			}
		}
		details = append(details, detail)
	}
	return details, nil
}

func (s *referenceService) peersByID(ids []string) (map[string]models.TestCase, error) {
	peers, err := s.caseRepo.FindByIDs(ids)
	if err != nil {
		return nil, errPersistence("Failed to load referenced test cases", err)
	}
	byID := make(map[string]models.TestCase, len(peers))
	for _, peer := range peers {
		byID[peer.ID] = peer
	}
	return byID, nil
}

func sourceIDs(references []models.TestCaseReference) []string {
	ids := make([]string, 0, len(references))
	for _, ref := range references {
		ids = append(ids, ref.SourceID)
	}
	return ids
}

func referenceInfo(ref models.TestCaseReference) ReferenceInfo {
	return ReferenceInfo{
		ID:              ref.ID,
		ReferenceType:   ref.ReferenceType,
		SimilarityScore: ref.SimilarityScore,
		CreatedAt:       ref.CreatedAt,
	}
}

func stripEmbedding(testCase *models.TestCase) *models.TestCase {
	stripped := *testCase
	stripped.Embedding = ""
	return &stripped
}
