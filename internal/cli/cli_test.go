package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shaiso/Graphflow/internal/domain"
	"github.com/shaiso/Graphflow/internal/store"
)

const ageYAML = `
name: age check
nodes:
  - id: start
    type: start
    config:
      initialData:
        age: 21
  - id: check
    type: condition
    config:
      lhs: "{{age}}"
      operator: ">="
      rhs: "18"
  - id: adult
    type: mongodb_insert
    config:
      database: db
      collection: adults
      document:
        age: "{{age}}"
edges:
  - from: start
    to: check
  - from: check
    to: adult
    output: "true"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadWorkflow_YAMLAndJSON(t *testing.T) {
	yamlPath := writeFile(t, "wf.yaml", ageYAML)
	fromYAML, err := LoadWorkflow(yamlPath)
	if err != nil {
		t.Fatalf("LoadWorkflow(yaml): %v", err)
	}

	data, err := json.Marshal(fromYAML)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	fromJSON, err := LoadWorkflow(writeFile(t, "wf.json", string(data)))
	if err != nil {
		t.Fatalf("LoadWorkflow(json): %v", err)
	}

	if fromJSON.Name != "age check" || len(fromJSON.Nodes) != 3 || len(fromJSON.Edges) != 2 {
		t.Fatalf("unexpected document: %+v", fromJSON)
	}

	// числа из YAML приходят как float64, как и из JSON
	initial := fromYAML.Nodes[0].Config["initialData"].(map[string]any)
	if _, ok := initial["age"].(float64); !ok {
		t.Errorf("age type = %T, want float64", initial["age"])
	}
	if got := fromYAML.Edges[1].Label(); got != domain.LabelTrue {
		t.Errorf("edge label = %q, want true", got)
	}
}

func TestParseWorkflowYAML_KeepsKeyOrder(t *testing.T) {
	doc, err := ParseWorkflowYAML([]byte(`
nodes:
  - id: s
    type: start
    config:
      initialData:
        zeta: 1
        alpha: [2, 3]
        mid: {y: 1, x: 2}
`))
	if err != nil {
		t.Fatalf("ParseWorkflowYAML: %v", err)
	}

	data, err := json.Marshal(doc.Nodes[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"initialData":{"zeta":1,"alpha":[2,3],"mid":{"y":1,"x":2}}}`
	if !strings.Contains(string(data), want) {
		t.Errorf("node = %s, want config %s", data, want)
	}
}

func TestLoadWorkflow_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"broken json", "wf.json", `{"nodes": [`},
		{"broken yaml", "wf.yml", "nodes: [\n  - id: a\n bad"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadWorkflow(writeFile(t, tt.file, tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := LoadWorkflow(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseInputs(t *testing.T) {
	got, err := ParseInputs([]string{"age=17", "name=bob", `tags=["a","b"]`, "empty="})
	if err != nil {
		t.Fatalf("ParseInputs: %v", err)
	}

	if got["age"] != float64(17) {
		t.Errorf("age = %#v", got["age"])
	}
	if got["name"] != "bob" {
		t.Errorf("name = %#v", got["name"])
	}
	if tags, ok := got["tags"].([]any); !ok || len(tags) != 2 {
		t.Errorf("tags = %#v", got["tags"])
	}
	if got["empty"] != "" {
		t.Errorf("empty = %#v", got["empty"])
	}

	for _, bad := range []string{"novalue", "=x"} {
		if _, err := ParseInputs([]string{bad}); err == nil {
			t.Errorf("ParseInputs(%q): expected error", bad)
		}
	}

	if got, err := ParseInputs(nil); err != nil || got != nil {
		t.Errorf("ParseInputs(nil) = %v, %v", got, err)
	}
}

func TestExecuteLocal(t *testing.T) {
	doc, err := ParseWorkflowYAML([]byte(ageYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	docs := store.NewMemoryStore()

	resp, err := ExecuteLocal(context.Background(), LocalConfig{Store: docs}, doc, domain.ExecutionOptions{}, nil)
	if err != nil {
		t.Fatalf("ExecuteLocal: %v", err)
	}
	if resp.Status != domain.RunStatusCompleted {
		t.Fatalf("status = %s, error = %v", resp.Status, resp.Error)
	}
	if resp.Steps != 3 || docs.Count("db", "adults") != 1 {
		t.Errorf("steps = %d, adults = %d", resp.Steps, docs.Count("db", "adults"))
	}

	// inputs перекрывают initialData: несовершеннолетний не вставляется
	resp, err = ExecuteLocal(context.Background(), LocalConfig{Store: docs}, doc, domain.ExecutionOptions{}, map[string]any{"age": 15})
	if err != nil {
		t.Fatalf("ExecuteLocal: %v", err)
	}
	if resp.Status != domain.RunStatusCompleted || resp.Steps != 2 {
		t.Errorf("status = %s, steps = %d", resp.Status, resp.Steps)
	}

	// невалидный документ возвращает ошибку до запуска
	doc.Nodes = doc.Nodes[1:]
	_, err = ExecuteLocal(context.Background(), LocalConfig{Store: docs}, doc, domain.ExecutionOptions{}, nil)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if msg := ValidationDetails(err); !strings.HasPrefix(msg, "MissingStart") {
		t.Errorf("details = %q", msg)
	}
}

func TestPrintExecution(t *testing.T) {
	resp := &domain.ExecutionResponse{
		RunID:  "r1",
		Status: domain.RunStatusFailed,
		Trace: []domain.TraceEntry{
			{Step: 1, NodeID: "start", Type: domain.NodeTypeStart, OutputLabel: "default"},
			{Step: 2, NodeID: "check", Type: domain.NodeTypeCondition,
				Error: &domain.ExecutionError{Reason: domain.ReasonTypeMismatch, Message: "not a number", NodeID: "check"}},
		},
		Steps: 2,
		Error: &domain.ExecutionError{Reason: domain.ReasonTypeMismatch, Message: "not a number", NodeID: "check"},
	}

	var stdout, stderr bytes.Buffer
	PrintExecution(NewOutputTo(false, &stdout, &stderr), resp)

	table := stdout.String()
	for _, want := range []string{"STEP", "start", "check", "TypeMismatch at node check"} {
		if !strings.Contains(table, want) {
			t.Errorf("table missing %q:\n%s", want, table)
		}
	}
	if !strings.Contains(stderr.String(), "Run r1: failed (2 steps") {
		t.Errorf("summary = %q", stderr.String())
	}

	stdout.Reset()
	PrintExecution(NewOutputTo(true, &stdout, &stderr), resp)
	var decoded domain.ExecutionResponse
	if err := json.Unmarshal(stdout.Bytes(), &decoded); err != nil {
		t.Fatalf("json output: %v", err)
	}
	if decoded.Status != domain.RunStatusFailed || len(decoded.Trace) != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestValidateCmd(t *testing.T) {
	var stdout, stderr bytes.Buffer
	outputFn := func() *Output { return NewOutputTo(false, &stdout, &stderr) }

	cmd := NewValidateCmd(outputFn)
	cmd.SetArgs([]string{writeFile(t, "wf.yaml", ageYAML)})
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(stderr.String(), "Workflow is valid: 3 nodes") {
		t.Errorf("stderr = %q", stderr.String())
	}

	selfLoop := `{"nodes":[{"id":"s","type":"start"}],"edges":[{"from":"s","to":"s"}]}`
	cmd = NewValidateCmd(outputFn)
	cmd.SetArgs([]string{writeFile(t, "loop.json", selfLoop)})
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "SelfLoop") {
		t.Errorf("err = %v, want SelfLoop", err)
	}
}

func TestLocalRunCmd(t *testing.T) {
	loop := `{"nodes":[{"id":"s","type":"start"},{"id":"a","type":"start"}],"edges":[]}`
	cyclic := `{
		"nodes": [
			{"id": "s", "type": "start"},
			{"id": "a", "type": "condition", "config": {"lhs": "1", "operator": "==", "rhs": "1"}},
			{"id": "b", "type": "condition", "config": {"lhs": "1", "operator": "==", "rhs": "1"}}
		],
		"edges": [
			{"from": "s", "to": "a"},
			{"from": "a", "to": "b", "output": "true"},
			{"from": "b", "to": "a", "output": "true"}
		]
	}`

	tests := []struct {
		name    string
		doc     string
		args    []string
		wantErr string
	}{
		{"completed", ageYAML, nil, ""},
		{"step limit", cyclic, []string{"--max-steps", "5"}, "StepLimitExceeded"},
		{"invalid", loop, nil, "MultipleStart"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			cmd := NewRunCmd(func() *Output { return NewOutputTo(true, &stdout, &stderr) })

			name := "wf.json"
			if strings.Contains(tt.doc, "nodes:") {
				name = "wf.yaml"
			}
			cmd.SetArgs(append([]string{"--memory", writeFile(t, name, tt.doc)}, tt.args...))
			cmd.SetOut(&stdout)
			cmd.SetErr(&stderr)

			err := cmd.Execute()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("run: %v", err)
				}
				var resp domain.ExecutionResponse
				if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if resp.Status != domain.RunStatusCompleted {
					t.Errorf("status = %s", resp.Status)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want %s", err, tt.wantErr)
			}
		})
	}
}

// --- Client ---

func newAPIStub(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var calls []string
	mux := http.NewServeMux()

	write := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("POST /api/v1/workflows", func(w http.ResponseWriter, r *http.Request) {
		var doc domain.Workflow
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			write(w, http.StatusBadRequest, map[string]any{"error": map[string]string{"code": "BAD_REQUEST", "message": "invalid request body"}})
			return
		}
		calls = append(calls, "create:"+doc.Name)
		write(w, http.StatusCreated, map[string]any{"data": map[string]any{"id": "wf-1", "name": doc.Name, "document": doc}})
	})
	mux.HandleFunc("POST /api/v1/workflows/validate", func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusBadRequest, map[string]any{"error": map[string]string{
			"code": "VALIDATION_FAILED", "message": "node c: unknown node type", "kind": "BadConfig", "node_id": "c", "field": "type",
		}})
	})
	mux.HandleFunc("GET /api/v1/workflows", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "list:"+r.URL.Query().Get("limit"))
		write(w, http.StatusOK, map[string]any{"data": []map[string]any{{"id": "wf-1", "name": "a", "nodes": 3, "edges": 2}}, "total": 1})
	})
	mux.HandleFunc("DELETE /api/v1/workflows/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "wf-1" {
			write(w, http.StatusNotFound, map[string]any{"error": map[string]string{"code": "NOT_FOUND", "message": "workflow not found"}})
			return
		}
		calls = append(calls, "delete:"+r.PathValue("id"))
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /api/v1/workflows/{id}/execute", func(w http.ResponseWriter, r *http.Request) {
		var req RunRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		calls = append(calls, "execute:"+r.PathValue("id"))
		write(w, http.StatusOK, map[string]any{"data": domain.ExecutionResponse{
			RunID:      "r-1",
			WorkflowID: r.PathValue("id"),
			Status:     domain.RunStatusCompleted,
			Steps:      len(req.Inputs),
		}})
	})
	mux.HandleFunc("GET /api/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "runs:"+r.URL.Query().Get("status")+":"+r.URL.Query().Get("workflow_id"))
		write(w, http.StatusOK, map[string]any{"data": []map[string]any{{"id": "r-1", "workflow_id": "wf-1", "status": "failed"}}, "total": 1})
	})
	mux.HandleFunc("GET /api/v1/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusNotFound, map[string]any{"error": map[string]string{"code": "NOT_FOUND", "message": "run not found"}})
	})
	mux.HandleFunc("POST /api/v1/runs/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "cancel:"+r.PathValue("id"))
		write(w, http.StatusAccepted, map[string]any{"data": map[string]string{"run_id": r.PathValue("id"), "status": "cancelling"}})
	})
	mux.HandleFunc("GET /broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestClient(t *testing.T) {
	srv, calls := newAPIStub(t)
	client := NewClient(srv.URL + "/")

	doc, err := ParseWorkflowYAML([]byte(ageYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	wf, err := client.CreateWorkflow(doc)
	if err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	if wf.ID != "wf-1" || len(wf.Document.Nodes) != 3 {
		t.Errorf("created = %+v", wf)
	}

	items, err := client.ListWorkflows(5)
	if err != nil || len(items) != 1 || items[0].Nodes != 3 {
		t.Errorf("ListWorkflows = %+v, %v", items, err)
	}

	resp, err := client.ExecuteByID("wf-1", RunRequest{Inputs: map[string]any{"age": 3}})
	if err != nil {
		t.Fatalf("ExecuteByID: %v", err)
	}
	if resp.Status != domain.RunStatusCompleted || resp.WorkflowID != "wf-1" || resp.Steps != 1 {
		t.Errorf("execute = %+v", resp)
	}

	runs, err := client.ListRuns(ListRunsOpts{WorkflowID: "wf-1", Status: "failed"})
	if err != nil || len(runs) != 1 || runs[0].Status != "failed" {
		t.Errorf("ListRuns = %+v, %v", runs, err)
	}

	status, err := client.CancelRun("r-9")
	if err != nil || status != "cancelling" {
		t.Errorf("CancelRun = %q, %v", status, err)
	}

	want := []string{"create:age check", "list:5", "execute:wf-1", "runs:failed:wf-1", "cancel:r-9"}
	if strings.Join(*calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", *calls, want)
	}
}

func TestClient_Errors(t *testing.T) {
	srv, _ := newAPIStub(t)
	client := NewClient(srv.URL)

	_, err := client.ValidateWorkflow(&domain.Workflow{}, domain.ExecutionOptions{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Kind != "BadConfig" || apiErr.NodeID != "c" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if got := apiErr.Error(); got != "VALIDATION_FAILED (BadConfig): node c: unknown node type [node c, field type]" {
		t.Errorf("Error() = %q", got)
	}

	_, err = client.GetRun("missing")
	if !errors.As(err, &apiErr) || apiErr.Code != "NOT_FOUND" {
		t.Errorf("GetRun err = %v", err)
	}

	err = client.get("/broken", nil)
	if !errors.As(err, &apiErr) || apiErr.Code != "HTTP 502" {
		t.Errorf("broken err = %v", err)
	}
}

func TestCommands_ThroughAPI(t *testing.T) {
	srv, calls := newAPIStub(t)

	var stdout, stderr bytes.Buffer
	clientFn := func() *Client { return NewClient(srv.URL) }
	outputFn := func() *Output { return NewOutputTo(false, &stdout, &stderr) }

	cmd := NewWorkflowCmd(clientFn, outputFn)
	cmd.SetArgs([]string{"execute", "wf-1", "--input", "age=20", "--input", "name=x"})
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("workflow execute: %v", err)
	}
	if !strings.Contains(stderr.String(), "Run r-1: completed (2 steps") {
		t.Errorf("stderr = %q", stderr.String())
	}

	cancelCmd := NewCancelCmd(clientFn, outputFn)
	cancelCmd.SetArgs([]string{"r-2"})
	cancelCmd.SetOut(&stdout)
	cancelCmd.SetErr(&stderr)
	if err := cancelCmd.Execute(); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	statusCmd := NewRunStatusCmd(clientFn, outputFn)
	statusCmd.SetArgs([]string{"r-3"})
	statusCmd.SetOut(&stdout)
	statusCmd.SetErr(&stderr)
	if err := statusCmd.Execute(); err == nil || !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("run-status err = %v", err)
	}

	if got := (*calls)[len(*calls)-1]; got != "cancel:r-2" {
		t.Errorf("last call = %q", got)
	}
}

func TestWorkflowDeleteCmd(t *testing.T) {
	srv, calls := newAPIStub(t)

	tests := []struct {
		name    string
		id      string
		wantErr string
		wantOut string
	}{
		{"deleted", "wf-1", "", "Workflow deleted: wf-1"},
		{"missing", "wf-2", "NOT_FOUND", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			cmd := NewWorkflowCmd(
				func() *Client { return NewClient(srv.URL) },
				func() *Output { return NewOutputTo(false, &stdout, &stderr) },
			)
			cmd.SetArgs([]string{"delete", tt.id})
			cmd.SetOut(&stdout)
			cmd.SetErr(&stderr)

			err := cmd.Execute()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("err = %v, want %s", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("delete: %v", err)
			}
			if !strings.Contains(stderr.String()+stdout.String(), tt.wantOut) {
				t.Errorf("output = %q, want %q", stderr.String()+stdout.String(), tt.wantOut)
			}
		})
	}

	// 204 без тела не должен ломать разбор ответа
	if err := NewClient(srv.URL).DeleteWorkflow("wf-1"); err != nil {
		t.Errorf("DeleteWorkflow: %v", err)
	}
	if got := strings.Join(*calls, ","); got != "delete:wf-1,delete:wf-1" {
		t.Errorf("calls = %s", got)
	}
}
