package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/factor-engine/internal/types"
)

func postJSON(t *testing.T, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	return httptest.NewRequest("POST", path, bytes.NewReader(data))
}

func TestHandleCreateJob(t *testing.T) {
	s, _ := newTestServer(t)

	req := postJSON(t, "/jobs", types.CreateJobRequest{N: "8633"})
	w := httptest.NewRecorder()
	s.handleCreateJob(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var job types.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, "8633", job.N)
	assert.Equal(t, types.ModeAuto, job.Mode)
	// The response is the submission snapshot, taken before a worker runs.
	assert.Equal(t, types.StatusPending, job.Status)

	// The single worker factors 89*97 almost immediately.
	done := waitForTerminal(t, s, job.ID)
	assert.Equal(t, types.StatusCompleted, done.Status)
	assert.ElementsMatch(t, []string{"89", "97"}, done.FactorsFound)
}

func TestHandleCreateJob_InvalidBody(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/jobs", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	s.handleCreateJob(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCreateJob_MissingN(t *testing.T) {
	s, _ := newTestServer(t)

	req := postJSON(t, "/jobs", map[string]string{})
	w := httptest.NewRecorder()
	s.handleCreateJob(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	// Structural rejections carry no job snapshot.
	assert.NotContains(t, body, "job")
}

func TestHandleCreateJob_NonNumericTarget(t *testing.T) {
	s, store := newTestServer(t)

	req := postJSON(t, "/jobs", types.CreateJobRequest{N: "17x29"})
	w := httptest.NewRecorder()
	s.handleCreateJob(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Error string    `json:"error"`
		Job   types.Job `json:"job"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "invalid input")
	// Numeric rejections register a failed job so the attempt is auditable.
	assert.Equal(t, types.StatusFailed, body.Job.Status)

	persisted, err := store.GetJob(context.Background(), body.Job.ID)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, types.StatusFailed, persisted.Status)
}

func TestHandleGetJob(t *testing.T) {
	s, _ := newTestServer(t)

	created := submitJob(t, s, "8633")

	req := httptest.NewRequest("GET", "/jobs/"+created.ID.String(), nil)
	req.SetPathValue("id", created.ID.String())
	w := httptest.NewRecorder()
	s.handleGetJob(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var job types.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, created.ID, job.ID)
	assert.Equal(t, "8633", job.N)
}

func TestHandleGetJob_FallsBackToStore(t *testing.T) {
	s, store := newTestServer(t)

	// A job the engine has never seen, as after a restart.
	job := &types.Job{
		ID:        uuid.New(),
		N:         "15",
		Mode:      types.ModeAuto,
		Status:    types.StatusCompleted,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.UpdateJob(context.Background(), *job))

	req := httptest.NewRequest("GET", "/jobs/"+job.ID.String(), nil)
	req.SetPathValue("id", job.ID.String())
	w := httptest.NewRecorder()
	s.handleGetJob(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var got types.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, job.ID, got.ID)
}

func TestHandleGetJob_NotFound(t *testing.T) {
	s, _ := newTestServer(t)

	id := uuid.New().String()
	req := httptest.NewRequest("GET", "/jobs/"+id, nil)
	req.SetPathValue("id", id)
	w := httptest.NewRecorder()
	s.handleGetJob(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetJob_InvalidID(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/jobs/not-a-uuid", nil)
	req.SetPathValue("id", "not-a-uuid")
	w := httptest.NewRecorder()
	s.handleGetJob(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleListJobs(t *testing.T) {
	s, store := newTestServer(t)

	for i, status := range []types.Status{types.StatusCompleted, types.StatusCompleted, types.StatusFailed} {
		job := types.Job{
			ID:        uuid.New(),
			N:         fmt.Sprintf("%d", 100+i),
			Mode:      types.ModeAuto,
			Status:    status,
			CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, store.UpdateJob(context.Background(), job))
	}

	req := httptest.NewRequest("GET", "/jobs", nil)
	w := httptest.NewRecorder()
	s.handleListJobs(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Jobs  []types.Job `json:"jobs"`
		Count int         `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Count)

	// Status filter narrows the listing.
	req = httptest.NewRequest("GET", "/jobs?status=failed", nil)
	w = httptest.NewRecorder()
	s.handleListJobs(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, types.StatusFailed, body.Jobs[0].Status)
}

func TestHandleListJobs_InvalidLimit(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/jobs?limit=banana", nil)
	w := httptest.NewRecorder()
	s.handleListJobs(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest("GET", "/jobs?offset=-5", nil)
	w = httptest.NewRecorder()
	s.handleListJobs(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleControlJob_CancelPending(t *testing.T) {
	s, _ := newTestServer(t)

	// Registered but never queued, so it stays pending.
	job, err := s.engine.Submit(context.Background(), types.CreateJobRequest{N: "8633"})
	require.NoError(t, err)

	req := postJSON(t, "/jobs/"+job.ID.String()+"/control", types.ControlRequest{Action: types.ControlCancel})
	req.SetPathValue("id", job.ID.String())
	w := httptest.NewRecorder()
	s.handleControlJob(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var got types.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, types.StatusCancelled, got.Status)
}

func TestHandleControlJob_UnknownAction(t *testing.T) {
	s, _ := newTestServer(t)

	job := submitJob(t, s, "8633")

	req := postJSON(t, "/jobs/"+job.ID.String()+"/control", map[string]string{"action": "restart"})
	req.SetPathValue("id", job.ID.String())
	w := httptest.NewRecorder()
	s.handleControlJob(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleControlJob_NotFound(t *testing.T) {
	s, _ := newTestServer(t)

	id := uuid.New().String()
	req := postJSON(t, "/jobs/"+id+"/control", types.ControlRequest{Action: types.ControlPause})
	req.SetPathValue("id", id)
	w := httptest.NewRecorder()
	s.handleControlJob(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleDeleteJob(t *testing.T) {
	s, store := newTestServer(t)

	job := submitJob(t, s, "8633")
	waitForTerminal(t, s, job.ID)

	req := httptest.NewRequest("DELETE", "/jobs/"+job.ID.String(), nil)
	req.SetPathValue("id", job.ID.String())
	w := httptest.NewRecorder()
	s.handleDeleteJob(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	gone, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	// Deleting again hits neither the registry nor the store.
	w = httptest.NewRecorder()
	s.handleDeleteJob(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleDeleteJob_ActiveJob(t *testing.T) {
	s, _ := newTestServer(t)

	// Pending jobs are active from the registry's point of view.
	job, err := s.engine.Submit(context.Background(), types.CreateJobRequest{N: "8633"})
	require.NoError(t, err)

	req := httptest.NewRequest("DELETE", "/jobs/"+job.ID.String(), nil)
	req.SetPathValue("id", job.ID.String())
	w := httptest.NewRecorder()
	s.handleDeleteJob(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleJobLogs(t *testing.T) {
	s, _ := newTestServer(t)

	job := submitJob(t, s, "8633")
	waitForTerminal(t, s, job.ID)

	req := httptest.NewRequest("GET", "/jobs/"+job.ID.String()+"/logs", nil)
	req.SetPathValue("id", job.ID.String())
	w := httptest.NewRecorder()
	s.handleJobLogs(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		JobID string         `json:"job_id"`
		Logs  []types.JobLog `json:"logs"`
		Count int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, job.ID.String(), body.JobID)
	require.NotEmpty(t, body.Logs)
	assert.Equal(t, len(body.Logs), body.Count)

	// Sequence numbers are dense and ascending.
	for i, entry := range body.Logs {
		assert.Equal(t, int64(i+1), entry.Seq)
	}
}

func TestHandleJobLogs_NotFound(t *testing.T) {
	s, _ := newTestServer(t)

	id := uuid.New().String()
	req := httptest.NewRequest("GET", "/jobs/"+id+"/logs", nil)
	req.SetPathValue("id", id)
	w := httptest.NewRecorder()
	s.handleJobLogs(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleJobResults(t *testing.T) {
	s, _ := newTestServer(t)

	job := submitJob(t, s, "8633")
	waitForTerminal(t, s, job.ID)

	req := httptest.NewRequest("GET", "/jobs/"+job.ID.String()+"/results", nil)
	req.SetPathValue("id", job.ID.String())
	w := httptest.NewRecorder()
	s.handleJobResults(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Results []types.JobResult `json:"results"`
		Count   int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 2, body.Count)

	factors := []string{body.Results[0].Factor, body.Results[1].Factor}
	assert.ElementsMatch(t, []string{"89", "97"}, factors)
	for _, res := range body.Results {
		assert.True(t, res.IsPrime)
		assert.NotEmpty(t, res.FoundByAlgorithm)
	}
}

// submitJob pushes a job through the create handler and returns the snapshot.
func submitJob(t *testing.T, s *Server, n string) *types.Job {
	t.Helper()

	req := postJSON(t, "/jobs", types.CreateJobRequest{N: n})
	w := httptest.NewRecorder()
	s.handleCreateJob(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var job types.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	return &job
}
