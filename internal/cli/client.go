package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/Graphflow/internal/domain"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// ValidateResponse — результат проверки документа.
type ValidateResponse struct {
	Valid    bool            `json:"valid"`
	Workflow domain.Workflow `json:"workflow"`
	Warnings []string        `json:"warnings,omitempty"`
}

// WorkflowResponse — сохранённый документ из API.
type WorkflowResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Document  domain.Workflow `json:"document"`
	Warnings  []string        `json:"warnings,omitempty"`
	CreatedAt string          `json:"created_at"`
}

// WorkflowSummary — элемент списка документов.
type WorkflowSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Nodes     int    `json:"nodes"`
	Edges     int    `json:"edges"`
	CreatedAt string `json:"created_at"`
}

// RunResponse — run из API.
type RunResponse struct {
	ID         string                    `json:"id"`
	WorkflowID string                    `json:"workflow_id"`
	Status     string                    `json:"status"`
	Inputs     map[string]any            `json:"inputs,omitempty"`
	Options    domain.ExecutionOptions   `json:"options"`
	Result     *domain.ExecutionResponse `json:"result,omitempty"`
	Error      string                    `json:"error,omitempty"`
	StartedAt  string                    `json:"started_at,omitempty"`
	FinishedAt string                    `json:"finished_at,omitempty"`
	CreatedAt  string                    `json:"created_at"`
}

// CancelResponse — ответ на запрос отмены running run.
type CancelResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// --- Request types ---

// ExecuteRequest — запуск документа из файла.
type ExecuteRequest struct {
	domain.Workflow
	Options domain.ExecutionOptions `json:"options"`
	Inputs  map[string]any          `json:"inputs,omitempty"`
}

// RunRequest — запуск сохранённого документа (синхронный или асинхронный).
type RunRequest struct {
	Options domain.ExecutionOptions `json:"options"`
	Inputs  map[string]any          `json:"inputs,omitempty"`
}

// ListRunsOpts — параметры фильтрации runs.
type ListRunsOpts struct {
	WorkflowID string
	Status     string
	Limit      int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Kind    string `json:"kind"`
		NodeID  string `json:"node_id"`
		Field   string `json:"field"`
	} `json:"error"`
}

// APIError — ошибка, которую вернул сервер.
type APIError struct {
	StatusCode int
	Code       string
	Message    string

	// Kind, NodeID и Field заполняются для VALIDATION_FAILED.
	Kind   string
	NodeID string
	Field  string
}

// Error реализует интерфейс error.
func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	if e.Kind != "" {
		b.WriteString(" (" + e.Kind + ")")
	}
	b.WriteString(": " + e.Message)
	if e.NodeID != "" {
		b.WriteString(" [node " + e.NodeID)
		if e.Field != "" {
			b.WriteString(", field " + e.Field)
		}
		b.WriteString("]")
	}
	return b.String()
}

// --- Client ---

// Client — HTTP-клиент для Graphflow API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// --- Workflows ---

// ValidateWorkflow проверяет документ на сервере.
func (c *Client) ValidateWorkflow(doc *domain.Workflow, opts domain.ExecutionOptions) (*ValidateResponse, error) {
	var res ValidateResponse
	err := c.post("/api/v1/workflows/validate", ExecuteRequest{Workflow: *doc, Options: opts}, &res)
	return &res, err
}

// CreateWorkflow сохраняет документ.
func (c *Client) CreateWorkflow(doc *domain.Workflow) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.post("/api/v1/workflows", doc, &wf)
	return &wf, err
}

// ListWorkflows возвращает сохранённые документы.
func (c *Client) ListWorkflows(limit int) ([]WorkflowSummary, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var items []WorkflowSummary
	err := c.list("/api/v1/workflows", params, &items)
	return items, err
}

// GetWorkflow возвращает документ по ID.
func (c *Client) GetWorkflow(id string) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.get("/api/v1/workflows/"+url.PathEscape(id), &wf)
	return &wf, err
}

// DeleteWorkflow удаляет сохранённый документ.
func (c *Client) DeleteWorkflow(id string) error {
	return c.delete("/api/v1/workflows/" + url.PathEscape(id))
}

// Execute синхронно выполняет документ на сервере.
func (c *Client) Execute(doc *domain.Workflow, opts domain.ExecutionOptions, inputs map[string]any) (*domain.ExecutionResponse, error) {
	var res domain.ExecutionResponse
	err := c.post("/api/v1/workflows/execute", ExecuteRequest{Workflow: *doc, Options: opts, Inputs: inputs}, &res)
	return &res, err
}

// ExecuteByID синхронно выполняет сохранённый документ.
func (c *Client) ExecuteByID(id string, req RunRequest) (*domain.ExecutionResponse, error) {
	var res domain.ExecutionResponse
	err := c.post("/api/v1/workflows/"+url.PathEscape(id)+"/execute", req, &res)
	return &res, err
}

// --- Runs ---

// CreateRun ставит сохранённый документ в очередь.
func (c *Client) CreateRun(workflowID string, req RunRequest) (*RunResponse, error) {
	var run RunResponse
	err := c.post("/api/v1/workflows/"+url.PathEscape(workflowID)+"/runs", req, &run)
	return &run, err
}

// ListRuns возвращает runs с фильтрацией.
func (c *Client) ListRuns(opts ListRunsOpts) ([]RunResponse, error) {
	params := url.Values{}
	if opts.WorkflowID != "" {
		params.Set("workflow_id", opts.WorkflowID)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var runs []RunResponse
	err := c.list("/api/v1/runs", params, &runs)
	return runs, err
}

// GetRun возвращает run по ID.
func (c *Client) GetRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/v1/runs/"+url.PathEscape(id), &run)
	return &run, err
}

// CancelRun отменяет run.
// Pending run отменяется сразу (status aborted), для running сервер
// возвращает "cancelling".
func (c *Client) CancelRun(id string) (string, error) {
	var res struct {
		Status string `json:"status"`
	}
	err := c.post("/api/v1/runs/"+url.PathEscape(id)+"/cancel", nil, &res)
	return res.Status, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Error.Code == "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       "HTTP " + strconv.Itoa(resp.StatusCode),
			Message:    http.StatusText(resp.StatusCode),
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       er.Error.Code,
		Message:    er.Error.Message,
		Kind:       er.Error.Kind,
		NodeID:     er.Error.NodeID,
		Field:      er.Error.Field,
	}
}
