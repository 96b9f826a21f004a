package freepik

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aetherlabs/aether-backend/internal/config"
)

// TaskState is the normalized provider task state. Freepik reports
// CREATED/IN_PROGRESS/COMPLETED/FAILED; anything non-terminal maps to
// TaskPending.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
)

// TaskStatus is a single poll result for an asynchronous video task.
type TaskStatus struct {
	State     TaskState
	ResultURL string
	Detail    string
}

// Media is the outcome of a synchronous image generation. The provider
// returns either a hosted URL or inline base64 bytes depending on the model.
type Media struct {
	URL   string
	Bytes []byte
	Mime  string
}

// VideoRequest carries the parameters of one video task submission.
// SourceImage is empty for text-to-video.
type VideoRequest struct {
	Prompt      string
	SourceImage string
	Duration    int
	CfgScale    float64
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	return &Client{
		apiKey:  cfg.FreepikAPIKey,
		baseURL: strings.TrimRight(cfg.FreepikBaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// SubmitImage runs a synchronous text-to-image generation: one round trip,
// no task to poll.
func (c *Client) SubmitImage(ctx context.Context, prompt string) (*Media, error) {
	payload := map[string]any{
		"prompt":     prompt,
		"num_images": 1,
		"image":      map[string]any{"size": "square_1_1"},
	}

	raw, err := c.post(ctx, "/v1/ai/text-to-image", payload)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			Base64 string `json:"base64"`
			URL    string `json:"url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode image response: %w (body=%s)", err, truncateBody(raw))
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no images in response")
	}

	first := resp.Data[0]
	if first.Base64 != "" {
		data, err := base64.StdEncoding.DecodeString(first.Base64)
		if err != nil {
			return nil, fmt.Errorf("decode image base64: %w", err)
		}
		return &Media{Bytes: data, Mime: "image/png"}, nil
	}
	if first.URL != "" {
		return &Media{URL: first.URL, Mime: "image/png"}, nil
	}
	return nil, fmt.Errorf("image response carries neither url nor base64")
}

// SubmitVideo creates an asynchronous Kling video task and returns the
// provider task id. Presence of SourceImage selects image-to-video.
func (c *Client) SubmitVideo(ctx context.Context, req VideoRequest) (string, error) {
	payload := map[string]any{
		"prompt":    req.Prompt,
		"duration":  strconv.Itoa(req.Duration),
		"cfg_scale": req.CfgScale,
	}
	if req.SourceImage != "" {
		payload["image"] = req.SourceImage
	}

	raw, err := c.post(ctx, "/v1/ai/image-to-video/kling-v2-5-pro", payload)
	if err != nil {
		return "", err
	}

	var resp struct {
		TaskID string `json:"task_id"`
		Data   struct {
			TaskID string `json:"task_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode video response: %w (body=%s)", err, truncateBody(raw))
	}

	taskID := resp.TaskID
	if taskID == "" {
		taskID = resp.Data.TaskID
	}
	if taskID == "" {
		return "", fmt.Errorf("no task_id in response (body=%s)", truncateBody(raw))
	}

	c.log.Info("freepik task created", "task_id", taskID)
	return taskID, nil
}

// PollTask fetches the current state of a video task. Single shot; the
// orchestrator owns the retry loop.
func (c *Client) PollTask(ctx context.Context, taskID string) (TaskStatus, error) {
	endpoint, err := c.resolve("/v1/ai/image-to-video/kling-v2-5-pro/" + url.PathEscape(taskID))
	if err != nil {
		return TaskStatus{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return TaskStatus{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("x-freepik-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return TaskStatus{}, err
	}

	var resp struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
		Error  string `json:"error"`
		Result struct {
			URL string `json:"url"`
		} `json:"result"`
		Data struct {
			Status    string   `json:"status"`
			Generated []string `json:"generated"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return TaskStatus{}, fmt.Errorf("decode task status: %w (body=%s)", err, truncateBody(raw))
	}

	status := resp.Status
	if status == "" {
		status = resp.Data.Status
	}
	resultURL := resp.Result.URL
	if resultURL == "" && len(resp.Data.Generated) > 0 {
		resultURL = resp.Data.Generated[0]
	}

	switch strings.ToUpper(status) {
	case "COMPLETED", "SUCCESS":
		if resultURL == "" {
			return TaskStatus{State: TaskFailed, Detail: "completed without result url"}, nil
		}
		return TaskStatus{State: TaskCompleted, ResultURL: resultURL}, nil
	case "FAILED", "ERROR":
		detail := resp.Error
		if detail == "" {
			detail = "provider reported failure"
		}
		return TaskStatus{State: TaskFailed, Detail: detail}, nil
	case "CREATED", "IN_PROGRESS", "PENDING", "PROCESSING", "QUEUED":
		return TaskStatus{State: TaskPending}, nil
	default:
		return TaskStatus{}, fmt.Errorf("unknown task status: %q", status)
	}
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any) ([]byte, error) {
	endpoint, err := c.resolve(path)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("x-freepik-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("freepik request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		c.log.Error("freepik request failed", "status", resp.StatusCode, "url", req.URL.String(), "body", truncateBody(raw))
		return nil, fmt.Errorf("freepik error: status=%d body=%s", resp.StatusCode, truncateBody(raw))
	}
	return raw, nil
}

func (c *Client) resolve(path string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
