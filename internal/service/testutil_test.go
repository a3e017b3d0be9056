package service

import (
	"errors"
	"testing"

	"github.com/atiohaidar/test-case-management/internal/aiclient"
	"github.com/atiohaidar/test-case-management/internal/models"
	"github.com/atiohaidar/test-case-management/internal/repository"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.TestCase{},
		&models.TestCaseReference{},
	)
	require.NoError(t, err)

	return db
}

// stubAIClient is a controllable AI service double
type stubAIClient struct {
	embedding     []float64
	embeddingErr  error
	lastText      string
	draft         *aiclient.GeneratedTestCase
	draftErr      error
	searchResults []aiclient.SearchResult
	searchErr     error
}

func (s *stubAIClient) GenerateEmbedding(text string) ([]float64, error) {
	s.lastText = text
	if s.embeddingErr != nil {
		return nil, s.embeddingErr
	}
	if s.embedding == nil {
		return []float64{0.1, 0.2, 0.3}, nil
	}
	return s.embedding, nil
}

func (s *stubAIClient) GenerateTestCase(req aiclient.GenerateRequest) (*aiclient.GeneratedTestCase, error) {
	if s.draftErr != nil {
		return nil, s.draftErr
	}
	return s.draft, nil
}

func (s *stubAIClient) Search(query string, minSimilarity float64, limit int) ([]aiclient.SearchResult, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.searchResults, nil
}

// fixture services wired against a fresh database
type fixture struct {
	db         *gorm.DB
	client     *stubAIClient
	caseRepo   repository.TestCaseRepository
	refRepo    repository.ReferenceRepository
	refService ReferenceService
	service    TestCaseService
}

func newFixture(t *testing.T) *fixture {
	db := setupTestDB(t)
	client := &stubAIClient{}
	caseRepo := repository.NewTestCaseRepository(db)
	refRepo := repository.NewReferenceRepository(db)
	refService := NewReferenceService(caseRepo, refRepo)
	svc := NewTestCaseService(caseRepo, refService, NewEmbeddingService(client), client, nil)

	return &fixture{
		db:         db,
		client:     client,
		caseRepo:   caseRepo,
		refRepo:    refRepo,
		refService: refService,
		service:    svc,
	}
}

func validCreateRequest(name string) *CreateTestCaseRequest {
	return &CreateTestCaseRequest{
		Name:        name,
		Description: "Checks that " + name + " behaves as expected",
		Type:        models.TypePositive,
		Priority:    models.PriorityMedium,
		Steps: []models.TestStep{
			{Step: "Open the login page", ExpectedResult: "Login form is shown"},
			{Step: "Submit valid credentials", ExpectedResult: "Dashboard is shown"},
		},
		ExpectedResult: "User is logged in",
		Tags:           []string{"auth", "smoke"},
	}
}

// failOnNameRepo fails Create for a marked test case name
type failOnNameRepo struct {
	repository.TestCaseRepository
	failName string
}

func (r *failOnNameRepo) Create(testCase *models.TestCase) error {
	if testCase.Name == r.failName {
		return errors.New("simulated constraint violation")
	}
	return r.TestCaseRepository.Create(testCase)
}

// failingRefRepo fails every edge insert
type failingRefRepo struct {
	repository.ReferenceRepository
}

func (r *failingRefRepo) Create(reference *models.TestCaseReference) error {
	return errors.New("simulated reference insert failure")
}
