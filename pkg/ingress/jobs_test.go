package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleSubmitJob(t *testing.T) {
	srv, s, _ := newTestServer()

	body := `{"job_type":"render","priority":70,"customer_id":"cust-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	jobID, _ := resp["job_id"].(string)
	assert.NotEmpty(t, jobID)

	hash, err := s.GetHash(context.Background(), "job:"+jobID)
	require.NoError(t, err)
	assert.Equal(t, "cust-1", hash["customer_id"])
}

func TestHandleSubmitJob_InvalidBody(t *testing.T) {
	srv, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()

	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetJob(t *testing.T) {
	srv, s, _ := newTestServer()
	ctx := context.Background()
	require.NoError(t, s.PutHashFields(ctx, "job:abc", map[string]string{
		"status":   "pending",
		"priority": "50",
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/abc", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var job map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "abc", job["id"])
	assert.Equal(t, "pending", job["status"])
}

func TestHandleGetJob_NotFound(t *testing.T) {
	srv, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListJobs_FilterByStatus(t *testing.T) {
	srv, s, _ := newTestServer()
	ctx := context.Background()
	require.NoError(t, s.PutHashFields(ctx, "job:1", map[string]string{"status": "pending"}))
	require.NoError(t, s.PutHashFields(ctx, "job:2", map[string]string{"status": "completed"}))
	require.NoError(t, s.PutHashFields(ctx, "job:3", map[string]string{"status": "pending"}))

	req := httptest.NewRequest(http.MethodGet, "/api/jobs?status=pending", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Jobs  []map[string]any `json:"jobs"`
		Total int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	for _, j := range resp.Jobs {
		assert.Equal(t, "pending", j["status"])
	}
}

func TestHandleListJobs_Pagination(t *testing.T) {
	srv, s, _ := newTestServer()
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		require.NoError(t, s.PutHashFields(ctx, "job:"+id, map[string]string{"status": "pending"}))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/jobs?limit=2&offset=1", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Jobs  []map[string]any `json:"jobs"`
		Total int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Total)
	assert.Len(t, resp.Jobs, 2)
}

func TestHandleCleanup_ResetWorkers(t *testing.T) {
	srv, s, _ := newTestServer()
	ctx := context.Background()
	require.NoError(t, s.PutHashFields(ctx, "worker:w1", map[string]string{"status": "busy"}))

	req := httptest.NewRequest(http.MethodPost, "/api/cleanup", bytes.NewBufferString(`{"reset_workers":true}`))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 1, resp["workers_reset"])
	assert.Equal(t, []any{"w1"}, resp["workers_found"])

	hash, err := s.GetHash(ctx, "worker:w1")
	require.NoError(t, err)
	assert.Equal(t, "idle", hash["status"])
}

func TestHandleDeleteMachine(t *testing.T) {
	srv, s, _ := newTestServer()
	ctx := context.Background()
	require.NoError(t, s.PutHashFields(ctx, "worker:w1", map[string]string{"machine_id": "m1", "status": "idle"}))

	req := httptest.NewRequest(http.MethodDelete, "/api/machines/m1", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "m1", resp["machine_id"])
	assert.Equal(t, []any{"w1"}, resp["workers_found"])
	assert.EqualValues(t, 1, resp["workers_cleaned"])
}

// S8 invariant 10 — deleting the same machine twice returns 404 on the
// second request.
func TestHandleDeleteMachine_SecondDeletionIsNotFound(t *testing.T) {
	srv, s, _ := newTestServer()
	ctx := context.Background()
	require.NoError(t, s.PutHashFields(ctx, "machine:m2:info", map[string]string{"status": "ready"}))

	first := httptest.NewRequest(http.MethodDelete, "/api/machines/m2", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	second := httptest.NewRequest(http.MethodDelete, "/api/machines/m2", nil)
	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, second)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
