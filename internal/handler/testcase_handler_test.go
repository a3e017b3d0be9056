package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atiohaidar/test-case-management/internal/aiclient"
	"github.com/atiohaidar/test-case-management/internal/config"
	"github.com/atiohaidar/test-case-management/internal/models"
	"github.com/atiohaidar/test-case-management/internal/repository"
	"github.com/atiohaidar/test-case-management/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// fakeAIClient keeps the handler tests hermetic
type fakeAIClient struct{}

func (f *fakeAIClient) GenerateEmbedding(text string) ([]float64, error) {
	return []float64{0.1, 0.2}, nil
}

func (f *fakeAIClient) GenerateTestCase(req aiclient.GenerateRequest) (*aiclient.GeneratedTestCase, error) {
	return &aiclient.GeneratedTestCase{
		Name:               "Generated case",
		Description:        "Generated description",
		Type:               models.TypePositive,
		Priority:           models.PriorityMedium,
		Steps:              []models.TestStep{{Step: "Do it", ExpectedResult: "It works"}},
		ExpectedResult:     "Works",
		Tags:               []string{"generated"},
		OriginalPrompt:     req.Prompt,
		AIGenerated:        true,
		Confidence:         0.8,
		AIGenerationMethod: models.GenerationPureAI,
	}, nil
}

func (f *fakeAIClient) Search(query string, minSimilarity float64, limit int) ([]aiclient.SearchResult, error) {
	return []aiclient.SearchResult{}, nil
}

func setupRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.TestCase{}, &models.TestCaseReference{}))

	caseRepo := repository.NewTestCaseRepository(db)
	refRepo := repository.NewReferenceRepository(db)
	client := &fakeAIClient{}

	embedding := service.NewEmbeddingService(client)
	refService := service.NewReferenceService(caseRepo, refRepo)
	testCaseService := service.NewTestCaseService(caseRepo, refService, embedding, client, nil)
	aiService := service.NewAIService(client, testCaseService, refService, config.AIConfig{
		RAGSimilarityThreshold: 0.7,
		RAGMaxReferences:       3,
	})

	r := gin.New()
	NewTestCaseHandler(testCaseService, refService, aiService).RegisterRoutes(r)
	return r
}

func doRequest(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createPayload(name string) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"description": "Checks " + name,
		"type":        "positive",
		"priority":    "medium",
		"steps": []map[string]string{
			{"step": "Open page", "expectedResult": "Page shown"},
		},
		"expectedResult": "All good",
		"tags":           []string{"smoke"},
	}
}

func TestCreateAndGetTestCase(t *testing.T) {
	r := setupRouter(t)

	w := doRequest(r, http.MethodPost, "/testcases", createPayload("Login OK"))
	require.Equal(t, http.StatusCreated, w.Code)

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "Login OK", created["name"])
	assert.NotEmpty(t, created["id"])
	// The embedding never crosses the API boundary
	assert.NotContains(t, created, "embedding")

	w = doRequest(r, http.MethodGet, fmt.Sprintf("/testcases/%s", created["id"]), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var fetched map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, created["id"], fetched["id"])
	assert.NotContains(t, fetched, "embedding")
}

func TestGetTestCase_NotFoundEnvelope(t *testing.T) {
	r := setupRouter(t)

	w := doRequest(r, http.MethodGet, "/testcases/does-not-exist", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, false, envelope["success"])
	assert.Equal(t, "TESTCASE_NOT_FOUND", envelope["errorCode"])
	assert.Equal(t, "/testcases/does-not-exist", envelope["path"])
	assert.NotEmpty(t, envelope["timestamp"])
	assert.NotEmpty(t, envelope["message"])
}

func TestCreateTestCase_ValidationError(t *testing.T) {
	r := setupRouter(t)

	payload := createPayload("Broken")
	delete(payload, "name")

	w := doRequest(r, http.MethodPost, "/testcases", payload)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "VALIDATION_ERROR", envelope["errorCode"])
}

func TestDeleteTestCase(t *testing.T) {
	r := setupRouter(t)

	w := doRequest(r, http.MethodPost, "/testcases", createPayload("To delete"))
	require.Equal(t, http.StatusCreated, w.Code)
	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doRequest(r, http.MethodDelete, fmt.Sprintf("/testcases/%s", created["id"]), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(r, http.MethodDelete, fmt.Sprintf("/testcases/%s", created["id"]), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestManualReference_Conflict(t *testing.T) {
	r := setupRouter(t)

	var a, b map[string]interface{}
	w := doRequest(r, http.MethodPost, "/testcases", createPayload("Case A"))
	require.Equal(t, http.StatusCreated, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &a))
	w = doRequest(r, http.MethodPost, "/testcases", createPayload("Case B"))
	require.Equal(t, http.StatusCreated, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))

	path := fmt.Sprintf("/testcases/%s/references/%s", a["id"], b["id"])

	w = doRequest(r, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(r, http.MethodPost, path, nil)
	require.Equal(t, http.StatusConflict, w.Code)

	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "REFERENCE_ALREADY_EXISTS", envelope["errorCode"])
}

func TestBulkCreateEndpoint(t *testing.T) {
	r := setupRouter(t)

	payload := map[string]interface{}{
		"testCases": []map[string]interface{}{
			createPayload("Bulk 0"),
			createPayload("Bulk 1"),
		},
	}

	w := doRequest(r, http.MethodPost, "/testcases/bulk", payload)
	require.Equal(t, http.StatusCreated, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, float64(2), response["total"])
	assert.Equal(t, float64(2), response["successCount"])
	assert.Equal(t, float64(0), response["failureCount"])

	results := response["results"].([]interface{})
	require.Len(t, results, 2)
	for i, raw := range results {
		result := raw.(map[string]interface{})
		assert.Equal(t, float64(i), result["index"])
		assert.Equal(t, true, result["success"])
	}
}

func TestDeriveEndpoint(t *testing.T) {
	r := setupRouter(t)

	w := doRequest(r, http.MethodPost, "/testcases", createPayload("Base case"))
	require.Equal(t, http.StatusCreated, w.Code)
	var base map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &base))

	w = doRequest(r, http.MethodPost, fmt.Sprintf("/testcases/derive/%s", base["id"]),
		map[string]interface{}{"priority": "high"})
	require.Equal(t, http.StatusCreated, w.Code)

	var derived map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &derived))
	assert.Equal(t, "Base case", derived["name"])
	assert.Equal(t, "high", derived["priority"])

	// The derivation shows up in the full detail view of the base
	w = doRequest(r, http.MethodGet, fmt.Sprintf("/testcases/%s/full", base["id"]), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var detail map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, float64(1), detail["derivedCount"])
}

func TestGenerateAndSaveEndpoint(t *testing.T) {
	r := setupRouter(t)

	w := doRequest(r, http.MethodPost, "/testcases/generate-and-save-with-ai",
		map[string]interface{}{"prompt": "login flow"})
	require.Equal(t, http.StatusCreated, w.Code)

	var saved map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saved))
	assert.Equal(t, "Generated case", saved["name"])
	assert.Equal(t, true, saved["aiGenerated"])
	assert.NotContains(t, saved, "embedding")
}
