package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/atiohaidar/test-case-management/internal/service"

	"github.com/gin-gonic/gin"
)

// errorResponse is the standard error envelope consumed by the frontends.
type errorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path"`
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL_ERROR"
	message := "Internal server error"

	var svcErr *service.ServiceError
	if errors.As(err, &svcErr) {
		status = svcErr.Status
		code = svcErr.Code
		message = svcErr.Message
	}

	c.JSON(status, errorResponse{
		Success:   false,
		Message:   message,
		ErrorCode: code,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      c.Request.URL.Path,
	})
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorResponse{
		Success:   false,
		Message:   err.Error(),
		ErrorCode: "VALIDATION_ERROR",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      c.Request.URL.Path,
	})
}

// TestCaseHandler HTTP处理器
type TestCaseHandler struct {
	service    service.TestCaseService
	refService service.ReferenceService
	aiService  service.AIService
}

// NewTestCaseHandler 创建处理器
func NewTestCaseHandler(
	svc service.TestCaseService,
	refService service.ReferenceService,
	aiService service.AIService,
) *TestCaseHandler {
	return &TestCaseHandler{
		service:    svc,
		refService: refService,
		aiService:  aiService,
	}
}

// RegisterRoutes 注册路由
func (h *TestCaseHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/testcases")
	{
		api.POST("", h.Create)
		api.GET("", h.FindAll)
		api.GET("/search", h.Search)
		api.POST("/bulk", h.BulkCreate)

		// AI generation
		api.POST("/generate-with-ai", h.GenerateWithAI)
		api.POST("/generate-and-save-with-ai", h.GenerateAndSaveWithAI)

		// Reference graph
		api.POST("/derive/:referenceId", h.Derive)
		api.GET("/:id/with-reference", h.GetWithReference)
		api.GET("/:id/derived", h.GetDerived)
		api.GET("/:id/full", h.GetFullDetail)
		api.POST("/:id/references/:targetId", h.AddManualReference)
		api.DELETE("/references/:referenceId", h.RemoveReference)

		api.GET("/:id", h.FindOne)
		api.PATCH("/:id", h.Update)
		api.DELETE("/:id", h.Remove)
	}
}

// ===== CRUD Handlers =====

func (h *TestCaseHandler) Create(c *gin.Context) {
	var req service.CreateTestCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	testCase, err := h.service.Create(&req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, testCase)
}

func (h *TestCaseHandler) FindAll(c *gin.Context) {
	testCases, err := h.service.FindAll()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, testCases)
}

func (h *TestCaseHandler) FindOne(c *gin.Context) {
	testCase, err := h.service.FindOne(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, testCase)
}

func (h *TestCaseHandler) Update(c *gin.Context) {
	var req service.UpdateTestCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	testCase, err := h.service.Update(c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, testCase)
}

func (h *TestCaseHandler) Remove(c *gin.Context) {
	if err := h.service.Remove(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TestCaseHandler) BulkCreate(c *gin.Context) {
	var req service.BulkCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	response, err := h.service.BulkCreate(req.TestCases)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response)
}

// ===== Search =====

func (h *TestCaseHandler) Search(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		respondBindError(c, errors.New("query parameter 'query' is required"))
		return
	}

	minSimilarity := 0.7
	if raw := c.Query("minSimilarity"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			respondBindError(c, errors.New("minSimilarity must be a number between 0 and 1"))
			return
		}
		minSimilarity = parsed
	}

	limit := 10
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondBindError(c, errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	results, err := h.service.Search(query, minSimilarity, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// ===== AI Generation Handlers =====

func (h *TestCaseHandler) GenerateWithAI(c *gin.Context) {
	var req service.GenerateTestCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	draft, err := h.aiService.GenerateTestCase(&req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft)
}

func (h *TestCaseHandler) GenerateAndSaveWithAI(c *gin.Context) {
	var req service.GenerateTestCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	testCase, err := h.aiService.GenerateAndSaveTestCase(&req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, testCase)
}

// ===== Reference Graph Handlers =====

func (h *TestCaseHandler) GetWithReference(c *gin.Context) {
	result, err := h.refService.GetWithReference(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *TestCaseHandler) GetDerived(c *gin.Context) {
	result, err := h.refService.GetDerivedTestCases(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *TestCaseHandler) GetFullDetail(c *gin.Context) {
	result, err := h.refService.GetFullDetail(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *TestCaseHandler) Derive(c *gin.Context) {
	var req service.DeriveTestCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	testCase, err := h.refService.DeriveFromTestCase(c.Param("referenceId"), &req, h.service)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, testCase)
}

func (h *TestCaseHandler) AddManualReference(c *gin.Context) {
	reference, err := h.refService.AddManualReference(c.Param("id"), c.Param("targetId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reference)
}

func (h *TestCaseHandler) RemoveReference(c *gin.Context) {
	if err := h.refService.RemoveReference(c.Param("referenceId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Reference removed successfully"})
}
