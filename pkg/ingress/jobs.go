package ingress

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/emprops/job-gateway/pkg/admin"
	"github.com/emprops/job-gateway/pkg/admission"
	"github.com/emprops/job-gateway/pkg/gatewayerr"
	"github.com/gorilla/mux"
)

// handleSubmitJob is POST /api/jobs (§6.1).
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	defer body.Close()

	var sub admission.Submission
	if err := json.NewDecoder(body).Decode(&sub); err != nil {
		writeError(w, gatewayerr.Wrap(gatewayerr.BadRequest, "invalid submission body", err))
		return
	}

	id, err := s.admission.Submit(r.Context(), sub)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":   true,
		"job_id":    id,
		"timestamp": nowMillis(),
	})
}

// handleGetJob is GET /api/jobs/:id (§6.1).
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	hash, err := s.store.GetHash(r.Context(), "job:"+jobID)
	if err != nil {
		writeError(w, gatewayerr.Wrap(gatewayerr.StoreFailure, "read job", err))
		return
	}
	if len(hash) == 0 {
		writeError(w, gatewayerr.New(gatewayerr.NotFound, "job not found"))
		return
	}

	writeJSON(w, http.StatusOK, hashToJob(jobID, hash))
}

// handleListJobs is GET /api/jobs?status=&limit=&offset= (§6.1).
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit := parseIntOr(r.URL.Query().Get("limit"), 50)
	offset := parseIntOr(r.URL.Query().Get("offset"), 0)

	var all []string
	var cursor uint64
	for {
		res, err := s.store.Scan(r.Context(), cursor, "job:*", 100)
		if err != nil {
			writeError(w, gatewayerr.Wrap(gatewayerr.StoreFailure, "scan jobs", err))
			return
		}
		all = append(all, res.Keys...)
		cursor = res.Cursor
		if cursor == 0 {
			break
		}
	}

	var jobs []map[string]any
	for _, key := range all {
		hash, err := s.store.GetHash(r.Context(), key)
		if err != nil || len(hash) == 0 {
			continue
		}
		if status != "" && hash["status"] != status {
			continue
		}
		jobID := key[len("job:"):]
		jobs = append(jobs, hashToJob(jobID, hash))
	}

	if offset > len(jobs) {
		offset = len(jobs)
	}
	end := offset + limit
	if end > len(jobs) || limit <= 0 {
		end = len(jobs)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs[offset:end],
		"total": len(jobs),
	})
}

// handleCleanup is POST /api/cleanup (§6.1, §4.H).
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req admin.CleanupRequest
	if r.Body != nil {
		_ = json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes)).Decode(&req)
	}

	result, err := s.reconciler.Cleanup(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	workersFound := result.WorkersFound
	if workersFound == nil {
		workersFound = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workers_reset": result.WorkersReset,
		"jobs_cleaned":  result.JobsRequeued,
		"workers_found": workersFound,
		"details":       []string{"orphans_swept=" + strconv.Itoa(result.OrphansSwept)},
	})
}

// handleDeleteMachine is DELETE /api/machines/:id (§6.1, §4.H).
func (s *Server) handleDeleteMachine(w http.ResponseWriter, r *http.Request) {
	machineID := mux.Vars(r)["id"]
	result, err := s.reconciler.DeleteMachine(r.Context(), machineID)
	if err != nil {
		writeError(w, err)
		return
	}
	workersFound := result.WorkersFound
	if workersFound == nil {
		workersFound = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"machine_id":      machineID,
		"workers_found":   workersFound,
		"workers_cleaned": result.WorkersCleaned,
		"message":         "machine deleted",
	})
}

func hashToJob(id string, hash map[string]string) map[string]any {
	out := make(map[string]any, len(hash)+1)
	for k, v := range hash {
		out[k] = v
	}
	out["id"] = id
	return out
}
