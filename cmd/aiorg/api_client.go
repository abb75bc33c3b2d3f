package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fentz26/aiorg/internal/controlplane"
	"github.com/fentz26/aiorg/internal/models"
	"github.com/fentz26/aiorg/internal/monitor"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// remote talks to a running daemon over its HTTP API.
type remote struct {
	base   string
	client *http.Client
}

func newRemote(addr string) *remote {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &remote{
		base:   strings.TrimSuffix(addr, "/"),
		client: &http.Client{Timeout: DefaultClientTimeout},
	}
}

// do performs a request and returns the body. Non-2xx responses become errors
// carrying the server's message.
func (r *remote) do(ctx context.Context, method, path string, in interface{}) ([]byte, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.base+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(data))
	}
	return data, nil
}

func (r *remote) getJSON(ctx context.Context, path string, out interface{}) error {
	data, err := r.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Health returns the daemon's health payload.
func (r *remote) Health(ctx context.Context) (*controlplane.HealthResponse, error) {
	var h controlplane.HealthResponse
	if err := r.getJSON(ctx, "/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *remote) CreateProject(ctx context.Context, name, projectType string) (*models.Project, []*models.Task, error) {
	data, err := r.do(ctx, http.MethodPost, "/projects", map[string]string{"name": name, "type": projectType})
	if err != nil {
		return nil, nil, err
	}
	var out struct {
		Project *models.Project `json:"project"`
		Tasks   []*models.Task  `json:"tasks"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, nil, err
	}
	return out.Project, out.Tasks, nil
}

func (r *remote) ListProjects(ctx context.Context) ([]*models.Project, error) {
	var out []*models.Project
	if err := r.getJSON(ctx, "/projects", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *remote) ProjectStatus(ctx context.Context, name string) (*monitor.Summary, error) {
	var out monitor.Summary
	if err := r.getJSON(ctx, "/projects/"+url.PathEscape(name)+"/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *remote) ProjectReport(ctx context.Context, name string) (string, error) {
	data, err := r.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(name)+"/report", nil)
	return string(data), err
}

func (r *remote) Standup(ctx context.Context) (*monitor.Standup, error) {
	var out monitor.Standup
	if err := r.getJSON(ctx, "/standup", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *remote) ListTasks(ctx context.Context, project, agent, status string) ([]*models.Task, error) {
	q := url.Values{}
	if project != "" {
		q.Set("project", project)
	}
	if agent != "" {
		q.Set("agent", agent)
	}
	if status != "" {
		q.Set("status", status)
	}
	path := "/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []*models.Task
	if err := r.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *remote) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var out models.Task
	if err := r.getJSON(ctx, "/tasks/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *remote) TaskHistory(ctx context.Context, id string) ([]*models.AuditEntry, error) {
	var out []*models.AuditEntry
	if err := r.getJSON(ctx, "/tasks/"+url.PathEscape(id)+"/audit", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *remote) EligibleTasks(ctx context.Context, agentID string) ([]*models.Task, error) {
	var out []*models.Task
	if err := r.getJSON(ctx, "/agents/"+url.PathEscape(agentID)+"/eligible", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *remote) SendMessage(ctx context.Context, from, to, msgType string, content json.RawMessage) (string, error) {
	data, err := r.do(ctx, http.MethodPost, "/messages", map[string]interface{}{
		"from": from, "to": to, "type": msgType, "content": content,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (r *remote) PendingMessages(ctx context.Context, agent string) ([]*models.Message, error) {
	var out []*models.Message
	if err := r.getJSON(ctx, "/messages/"+url.PathEscape(agent)+"/pending", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *remote) Acknowledge(ctx context.Context, id string) error {
	_, err := r.do(ctx, http.MethodPost, "/messages/"+url.PathEscape(id)+"/ack", nil)
	return err
}
