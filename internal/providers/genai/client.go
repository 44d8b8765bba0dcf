package genai

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

	"genlux/internal/infra"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "veo-3.1-fast-generate-preview"

	// maxErrorBody bounds how much of a failed response is kept for messages.
	maxErrorBody = 4096
)

// Options controls how the Gemini client is configured.
type Options struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client calls the Gemini API long-running video endpoints. It holds no
// credential: every call takes the API key selected for that request.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// VideoRequest is one predictLongRunning submission. SeedVideoURI, when set,
// asks the model to extend that video.
type VideoRequest struct {
	Prompt         string
	AspectRatio    string
	Resolution     string
	NumberOfVideos int
	SeedVideoURI   string
}

// Operation mirrors google.longrunning.Operation for video generation.
type Operation struct {
	Name     string             `json:"name"`
	Done     bool               `json:"done"`
	Error    *OperationError    `json:"error,omitempty"`
	Response *OperationResponse `json:"response,omitempty"`
}

// OperationError is the status attached to an operation that finished with
// an error.
type OperationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// OperationResponse wraps the generated samples.
type OperationResponse struct {
	GenerateVideoResponse *GenerateVideoResponse `json:"generateVideoResponse,omitempty"`
}

// GenerateVideoResponse lists generated samples and safety-filter results.
type GenerateVideoResponse struct {
	GeneratedSamples        []GeneratedSample `json:"generatedSamples"`
	RAIMediaFilteredCount   int               `json:"raiMediaFilteredCount,omitempty"`
	RAIMediaFilteredReasons []string          `json:"raiMediaFilteredReasons,omitempty"`
}

// GeneratedSample is a single produced video.
type GeneratedSample struct {
	Video *Video `json:"video,omitempty"`
}

// Video references a stored video file.
type Video struct {
	URI      string `json:"uri,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// FirstVideo returns the first generated video or nil.
func (o *Operation) FirstVideo() *Video {
	if o == nil || o.Response == nil || o.Response.GenerateVideoResponse == nil {
		return nil
	}
	for _, sample := range o.Response.GenerateVideoResponse.GeneratedSamples {
		if sample.Video != nil {
			return sample.Video
		}
	}
	return nil
}

// FailureReason summarizes why a finished operation carries no video.
func (o *Operation) FailureReason() string {
	if o == nil {
		return ""
	}
	if o.Error != nil && o.Error.Message != "" {
		return o.Error.Message
	}
	if o.Response != nil && o.Response.GenerateVideoResponse != nil {
		if reasons := o.Response.GenerateVideoResponse.RAIMediaFilteredReasons; len(reasons) > 0 {
			return strings.Join(reasons, "; ")
		}
	}
	return ""
}

type predictInstance struct {
	Prompt string      `json:"prompt"`
	Video  *videoInput `json:"video,omitempty"`
}

type videoInput struct {
	URI string `json:"uri"`
}

type predictParameters struct {
	AspectRatio    string `json:"aspectRatio,omitempty"`
	Resolution     string `json:"resolution,omitempty"`
	NumberOfVideos int    `json:"numberOfVideos,omitempty"`
}

type predictLongRunningRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

// NewClient constructs a Gemini client with defaults for any zero option.
func NewClient(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	model := opts.Model
	if model == "" {
		model = defaultModel
	}

	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}

	return &Client{
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     logger,
	}
}

// Model returns the configured Veo model identifier.
func (c *Client) Model() string {
	return c.model
}

// PredictVideo submits a generation and returns the pending operation.
func (c *Client) PredictVideo(ctx context.Context, apiKey string, req VideoRequest) (*Operation, error) {
	instance := predictInstance{Prompt: req.Prompt}
	if req.SeedVideoURI != "" {
		instance.Video = &videoInput{URI: req.SeedVideoURI}
	}
	payload := predictLongRunningRequest{
		Instances: []predictInstance{instance},
		Parameters: predictParameters{
			AspectRatio:    req.AspectRatio,
			Resolution:     req.Resolution,
			NumberOfVideos: req.NumberOfVideos,
		},
	}

	var op Operation
	path := fmt.Sprintf("/models/%s:predictLongRunning", url.PathEscape(c.model))
	if err := c.invokeGemini(ctx, http.MethodPost, path, apiKey, payload, &op); err != nil {
		return nil, fmt.Errorf("predict video: %w", err)
	}
	if op.Name == "" {
		return nil, fmt.Errorf("predict video: response carried no operation name")
	}

	c.logger.Debug().
		Str("model", c.model).
		Str("operation", op.Name).
		Bool("extension", req.SeedVideoURI != "").
		Msg("genai: video operation started")

	return &op, nil
}

// GetOperation fetches the current state of a named operation.
func (c *Client) GetOperation(ctx context.Context, apiKey, name string) (*Operation, error) {
	name = strings.TrimLeft(strings.TrimSpace(name), "/")
	if name == "" {
		return nil, fmt.Errorf("get operation: name is required")
	}
	var op Operation
	if err := c.invokeGemini(ctx, http.MethodGet, "/"+name, apiKey, nil, &op); err != nil {
		return nil, fmt.Errorf("get operation: %w", err)
	}
	if op.Name == "" {
		op.Name = name
	}
	return &op, nil
}

// Download fetches the bytes behind a generated video URI. The key is
// appended as a query parameter, which the files endpoint requires.
func (c *Client) Download(ctx context.Context, apiKey, uri string) ([]byte, string, error) {
	target := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(uri, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create download request: %w", err)
	}
	if apiKey != "" {
		q := req.URL.Query()
		q.Set("key", apiKey)
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, "", &DownloadError{
			StatusCode: resp.StatusCode,
			Status:     statusText(resp),
			Body:       strings.TrimSpace(string(data)),
		}
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read file: %w", err)
	}
	return blob, resp.Header.Get("Content-Type"), nil
}

func (c *Client) invokeGemini(ctx context.Context, method, path, apiKey string, payload any, out any) error {
	endpoint := c.baseURL + path
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("x-goog-api-key", apiKey)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return decodeAPIError(resp.StatusCode, data)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

func statusText(resp *http.Response) string {
	if resp.Status != "" {
		return resp.Status
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}
