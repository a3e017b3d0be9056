package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/atiohaidar/test-case-management/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBulkCreate_OrderingInvariant: results come back in input order with
// results[i].Index == i, whatever happens to individual items.
func TestBulkCreate_OrderingInvariant(t *testing.T) {
	f := newFixture(t)

	reqs := make([]CreateTestCaseRequest, 5)
	for i := range reqs {
		reqs[i] = *validCreateRequest(fmt.Sprintf("Case %d", i))
	}

	response, err := f.service.BulkCreate(reqs)
	require.NoError(t, err)

	assert.Equal(t, 5, response.Total)
	assert.Equal(t, 5, response.SuccessCount)
	assert.Equal(t, 0, response.FailureCount)
	require.Len(t, response.Results, 5)
	for i, result := range response.Results {
		assert.Equal(t, i, result.Index)
		assert.True(t, result.Success)
		require.NotNil(t, result.Data)
		assert.Equal(t, fmt.Sprintf("Case %d", i), result.Data.Name)
	}
}

// TestBulkCreate_PartialFailure: a failing middle item never aborts the
// batch, and the surviving items are persisted and retrievable.
func TestBulkCreate_PartialFailure(t *testing.T) {
	f := newFixture(t)

	// Wrap the repository so the marked item fails its insert
	failing := &failOnNameRepo{TestCaseRepository: f.caseRepo, failName: "boom"}
	svc := NewTestCaseService(failing, f.refService, NewEmbeddingService(f.client), f.client, nil)

	reqs := []CreateTestCaseRequest{
		*validCreateRequest("Case 0"),
		*validCreateRequest("boom"),
		*validCreateRequest("Case 2"),
	}

	response, err := svc.BulkCreate(reqs)
	require.NoError(t, err)

	assert.Equal(t, 3, response.Total)
	assert.Equal(t, 2, response.SuccessCount)
	assert.Equal(t, 1, response.FailureCount)

	assert.True(t, response.Results[0].Success)
	assert.False(t, response.Results[1].Success)
	assert.Equal(t, 1, response.Results[1].Index)
	assert.Contains(t, response.Results[1].Error, "constraint violation")
	assert.Nil(t, response.Results[1].Data)
	assert.True(t, response.Results[2].Success)

	// Items 0 and 2 made it to the store
	for _, i := range []int{0, 2} {
		found, err := svc.FindOne(response.Results[i].Data.ID)
		require.NoError(t, err)
		assert.Equal(t, reqs[i].Name, found.Name)
	}
}

// TestBulkCreate_ReferenceWiringSwallowed: a failing Phase 3 never flips a
// committed item to failed.
func TestBulkCreate_ReferenceWiringSwallowed(t *testing.T) {
	f := newFixture(t)

	target, err := f.service.Create(validCreateRequest("Target"))
	require.NoError(t, err)

	brokenRefs := NewReferenceService(f.caseRepo, &failingRefRepo{ReferenceRepository: f.refRepo})
	svc := NewTestCaseService(f.caseRepo, brokenRefs, NewEmbeddingService(f.client), f.client, nil)

	req := *validCreateRequest("With references")
	req.ReferenceTo = target.ID
	req.ReferenceType = models.ReferenceManual
	req.RAGReferences = []RAGReferenceInput{{TestCaseID: target.ID, Similarity: 0.8}}

	response, err := svc.BulkCreate([]CreateTestCaseRequest{req})
	require.NoError(t, err)
	assert.Equal(t, 1, response.SuccessCount)
	assert.Equal(t, 0, response.FailureCount)

	// The test case exists, just without its edges
	found, err := svc.FindOne(response.Results[0].Data.ID)
	require.NoError(t, err)
	refs, err := f.refRepo.FindBySourceID(found.ID)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

// TestCreate_EmbeddingDegradation: an unreachable embedding service must not
// block creation; the row is stored with an empty vector.
func TestCreate_EmbeddingDegradation(t *testing.T) {
	f := newFixture(t)
	f.client.embeddingErr = errors.New("connection refused")

	created, err := f.service.Create(validCreateRequest("Degraded"))
	require.NoError(t, err)
	assert.Empty(t, created.Embedding)

	stored, err := f.caseRepo.FindByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "[]", stored.Embedding)
}

func TestCreate_StoresSerializedEmbedding(t *testing.T) {
	f := newFixture(t)
	f.client.embedding = []float64{0.5, 0.25}

	created, err := f.service.Create(validCreateRequest("Embedded"))
	require.NoError(t, err)

	stored, err := f.caseRepo.FindByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "[0.5,0.25]", stored.Embedding)
}

// TestCreate_WithReferenceTo covers the "found via semantic search, then
// save" flow: an explicit edge plus independent RAG edges.
func TestCreate_WithReferenceTo(t *testing.T) {
	f := newFixture(t)

	target, err := f.service.Create(validCreateRequest("Found via search"))
	require.NoError(t, err)

	req := validCreateRequest("Saved afterwards")
	req.ReferenceTo = target.ID
	req.ReferenceType = models.ReferenceManual
	req.RAGReferences = []RAGReferenceInput{{TestCaseID: target.ID, Similarity: 0.92}}

	created, err := f.service.Create(req)
	require.NoError(t, err)

	refs, err := f.refService.GetReferencesForTestCase(created.ID)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	types := []string{refs[0].ReferenceType, refs[1].ReferenceType}
	assert.ElementsMatch(t, []string{models.ReferenceManual, models.ReferenceRAGRetrieval}, types)
}

func TestUpdate_PartialFields(t *testing.T) {
	f := newFixture(t)

	created, err := f.service.Create(validCreateRequest("Original name"))
	require.NoError(t, err)

	updated, err := f.service.Update(created.ID, &UpdateTestCaseRequest{
		Priority: models.PriorityHigh,
	})
	require.NoError(t, err)

	assert.Equal(t, models.PriorityHigh, updated.Priority)
	assert.Equal(t, "Original name", updated.Name)
	assert.Equal(t, created.Description, updated.Description)
	assert.Len(t, updated.Steps, 2)
}

func TestUpdate_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Update("missing-id", &UpdateTestCaseRequest{Name: "x"})
	assert.ErrorIs(t, err, ErrTestCaseNotFound)
}

func TestFindOne_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.FindOne("missing-id")
	assert.ErrorIs(t, err, ErrTestCaseNotFound)
}

func TestRemove_NotFound(t *testing.T) {
	f := newFixture(t)

	err := f.service.Remove("missing-id")
	assert.ErrorIs(t, err, ErrTestCaseNotFound)
}

func TestFindAll_NewestFirst(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		// Distinct creation timestamps for a deterministic order
		tc := &models.TestCase{
			ID:        fmt.Sprintf("tc-%d", i),
			Name:      fmt.Sprintf("Case %d", i),
			Type:      models.TypePositive,
			Priority:  models.PriorityLow,
			CreatedAt: time.Date(2026, 1, i+1, 10, 0, 0, 0, time.UTC),
		}
		require.NoError(t, f.db.Create(tc).Error)
	}

	all, err := f.service.FindAll()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "tc-2", all[0].ID)
	assert.Equal(t, "tc-0", all[2].ID)
	for _, tc := range all {
		assert.Empty(t, tc.Embedding)
	}
}

func TestSearch_Unavailable(t *testing.T) {
	f := newFixture(t)
	f.client.searchErr = errors.New("dial tcp: connection refused")

	_, err := f.service.Search("login", 0.7, 10)

	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "EXTERNAL_SERVICE_ERROR", svcErr.Code)
	assert.Equal(t, 503, svcErr.Status)
}
