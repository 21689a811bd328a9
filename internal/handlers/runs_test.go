package handlers_test

import (
	"net/http"
	"testing"

	"github.com/eval-hub/sim-hub/pkg/api"
)

func runPath(id string) map[string]string {
	return map[string]string{"project": "acme", "run_id": id}
}

func TestRunHandlers(t *testing.T) {
	h, store := createHandlers(t)
	ctx := createExecutionContext()

	records := []struct {
		collection string
		id         string
		body       string
	}{
		{"connectors", "c1", `{"name":"agent","type":"http","base_url":"http://localhost:9999"}`},
		{"scenarios", "s1", `{"name":"greeting","success_criteria":"the agent greets the user"}`},
		{"scenarios", "s2", `{"name":"refund","success_criteria":"the agent explains the refund policy"}`},
		{"evals", "e1", `{"name":"smoke","connector_id":"c1","scenario_ids":["s1","s2"]}`},
	}
	for _, record := range records {
		w := newResponse()
		h.HandlePutRecord(ctx, newRequest(http.MethodPut, "/api/v1/projects/acme/"+record.collection+"/"+record.id, record.body, recordPath(record.collection, record.id)), w)
		if w.code != http.StatusOK {
			t.Fatalf("Failed to seed %s %s: %d %s", record.collection, record.id, w.code, string(w.body))
		}
	}

	var runIDs []string

	t.Run("POST eval runs creates one queued run per scenario", func(t *testing.T) {
		w := newResponse()
		h.HandleCreateRunsFromEval(ctx, newRequest(http.MethodPost, "/api/v1/projects/acme/evals/e1/runs", "", map[string]string{"project": "acme", "eval_id": "e1"}), w)
		if w.code != http.StatusAccepted {
			t.Fatalf("Expected status code %d, got %d: %s", http.StatusAccepted, w.code, string(w.body))
		}
		execution := api.ExecutionResource{}
		w.decode(t, &execution)
		if execution.Execution.ID != "1" || len(execution.Runs) != 2 {
			t.Fatalf("Unexpected execution %+v", execution)
		}
		for _, run := range execution.Runs {
			if run.Status != api.RunStatusQueued {
				t.Fatalf("Expected queued run, got %s", run.Status)
			}
			runIDs = append(runIDs, run.ID)
		}
	})

	t.Run("POST eval runs for a missing eval returns not found", func(t *testing.T) {
		w := newResponse()
		h.HandleCreateRunsFromEval(ctx, newRequest(http.MethodPost, "/api/v1/projects/acme/evals/missing/runs", "", map[string]string{"project": "acme", "eval_id": "missing"}), w)
		if w.code != http.StatusNotFound {
			t.Fatalf("Expected status code %d, got %d", http.StatusNotFound, w.code)
		}
	})

	t.Run("POST runs creates a standalone run", func(t *testing.T) {
		w := newResponse()
		h.HandleCreateRun(ctx, newRequest(http.MethodPost, "/api/v1/projects/acme/runs", `{"connector_id":"c1","scenario_id":"s1"}`, map[string]string{"project": "acme"}), w)
		if w.code != http.StatusAccepted {
			t.Fatalf("Expected status code %d, got %d: %s", http.StatusAccepted, w.code, string(w.body))
		}
		run := api.Run{}
		w.decode(t, &run)
		if run.EvalID != "" || run.ConnectorID != "c1" || run.ThreadID == "" {
			t.Fatalf("Unexpected run %+v", run)
		}
	})

	t.Run("POST runs validates the request", func(t *testing.T) {
		w := newResponse()
		h.HandleCreateRun(ctx, newRequest(http.MethodPost, "/api/v1/projects/acme/runs", `{"scenario_id":"s1"}`, map[string]string{"project": "acme"}), w)
		if w.code != http.StatusBadRequest {
			t.Fatalf("Expected status code %d, got %d", http.StatusBadRequest, w.code)
		}
	})

	t.Run("GET runs pages the result", func(t *testing.T) {
		w := newResponse()
		h.HandleListRuns(ctx, newRequest(http.MethodGet, "/api/v1/projects/acme/runs?limit=2", "", map[string]string{"project": "acme"}), w)
		if w.code != http.StatusOK {
			t.Fatalf("Expected status code %d, got %d: %s", http.StatusOK, w.code, string(w.body))
		}
		list := api.RunResourceList{}
		w.decode(t, &list)
		if list.TotalCount != 3 || len(list.Items) != 2 || list.Limit != 2 {
			t.Fatalf("Unexpected page %+v", list.Page)
		}
		if list.Next == nil || list.Next.Href != "/api/v1/projects/acme/runs?limit=2&offset=2" {
			t.Fatalf("Unexpected next page %+v", list.Next)
		}
	})

	t.Run("GET runs filters on the eval", func(t *testing.T) {
		w := newResponse()
		h.HandleListRuns(ctx, newRequest(http.MethodGet, "/api/v1/projects/acme/runs?eval_id=e1&status=queued", "", map[string]string{"project": "acme"}), w)
		list := api.RunResourceList{}
		w.decode(t, &list)
		if list.TotalCount != 2 || list.Next != nil {
			t.Fatalf("Unexpected page %+v", list.Page)
		}
	})

	t.Run("GET runs rejects an unknown status", func(t *testing.T) {
		w := newResponse()
		h.HandleListRuns(ctx, newRequest(http.MethodGet, "/api/v1/projects/acme/runs?status=done", "", map[string]string{"project": "acme"}), w)
		if w.code != http.StatusBadRequest {
			t.Fatalf("Expected status code %d, got %d", http.StatusBadRequest, w.code)
		}
	})

	t.Run("GET runs rejects a negative offset", func(t *testing.T) {
		w := newResponse()
		h.HandleListRuns(ctx, newRequest(http.MethodGet, "/api/v1/projects/acme/runs?offset=-1", "", map[string]string{"project": "acme"}), w)
		if w.code != http.StatusBadRequest {
			t.Fatalf("Expected status code %d, got %d", http.StatusBadRequest, w.code)
		}
	})

	t.Run("GET run returns the run", func(t *testing.T) {
		w := newResponse()
		h.HandleGetRun(ctx, newRequest(http.MethodGet, "/api/v1/projects/acme/runs/"+runIDs[0], "", runPath(runIDs[0])), w)
		if w.code != http.StatusOK {
			t.Fatalf("Expected status code %d, got %d", http.StatusOK, w.code)
		}
	})

	t.Run("PATCH run rejects an invalid transition", func(t *testing.T) {
		w := newResponse()
		h.HandlePatchRun(ctx, newRequest(http.MethodPatch, "/api/v1/projects/acme/runs/"+runIDs[0], `{"status":"completed"}`, runPath(runIDs[0])), w)
		if w.code != http.StatusConflict {
			t.Fatalf("Expected status code %d, got %d: %s", http.StatusConflict, w.code, string(w.body))
		}
	})

	t.Run("retry of a queued run is a conflict", func(t *testing.T) {
		w := newResponse()
		h.HandleRetryRun(ctx, newRequest(http.MethodPost, "/api/v1/projects/acme/runs/"+runIDs[0]+"/retry", "", runPath(runIDs[0])), w)
		if w.code != http.StatusConflict {
			t.Fatalf("Expected status code %d, got %d", http.StatusConflict, w.code)
		}
	})

	t.Run("retry of a failed run queues it again", func(t *testing.T) {
		run, err := store.Runs("acme").FindByID(runIDs[1])
		if err != nil {
			t.Fatalf("Failed to get run: %v", err)
		}
		run.Status = api.RunStatusError
		run.Error = "connector error: HTTP 500"
		if err := store.Runs("acme").Save(run); err != nil {
			t.Fatalf("Failed to save run: %v", err)
		}
		w := newResponse()
		h.HandleRetryRun(ctx, newRequest(http.MethodPost, "/api/v1/projects/acme/runs/"+runIDs[1]+"/retry", "", runPath(runIDs[1])), w)
		if w.code != http.StatusAccepted {
			t.Fatalf("Expected status code %d, got %d: %s", http.StatusAccepted, w.code, string(w.body))
		}
		retried := api.Run{}
		w.decode(t, &retried)
		if retried.Status != api.RunStatusQueued || retried.Error != "" {
			t.Fatalf("Unexpected retried run %+v", retried)
		}
	})

	t.Run("DELETE run removes it", func(t *testing.T) {
		w := newResponse()
		h.HandleDeleteRun(ctx, newRequest(http.MethodDelete, "/api/v1/projects/acme/runs/"+runIDs[0], "", runPath(runIDs[0])), w)
		if w.code != http.StatusNoContent {
			t.Fatalf("Expected status code %d, got %d", http.StatusNoContent, w.code)
		}
		w = newResponse()
		h.HandleGetRun(ctx, newRequest(http.MethodGet, "/api/v1/projects/acme/runs/"+runIDs[0], "", runPath(runIDs[0])), w)
		if w.code != http.StatusNotFound {
			t.Fatalf("Expected status code %d, got %d", http.StatusNotFound, w.code)
		}
	})

	t.Run("missing path parameter", func(t *testing.T) {
		w := newResponse()
		h.HandleGetRun(ctx, newRequest(http.MethodGet, "/api/v1/projects/acme/runs/", "", map[string]string{"project": "acme"}), w)
		if w.code != http.StatusNotFound {
			t.Fatalf("Expected status code %d, got %d", http.StatusNotFound, w.code)
		}
	})
}
