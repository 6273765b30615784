package mistral

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ocr-batch-sync/internal/domain"
	"ocr-batch-sync/internal/domain/model"
	"ocr-batch-sync/internal/domain/ports/adapter"
	"ocr-batch-sync/internal/infra/metrics"
	red "ocr-batch-sync/internal/infra/redis"
)

const (
	ocrEndpoint      = "/v1/ocr"
	batchFilePurpose = "batch"
)

var _ adapter.BatchAPIAdapter = (*Client)(nil)

// Client talks to the vendor's batch OCR HTTP API. Every failure is
// surfaced as a *domain.RemoteError carrying the status code and any
// Retry-After directive; retrying is the caller's decision.
type Client struct {
	baseURL    string
	apiKey     string
	httpc      *http.Client
	log        *zerolog.Logger
	limiter    *red.RateLimiter
	rateLimit  int
	rateWindow time.Duration
}

func NewClient(baseURL, apiKey string, timeout time.Duration, limiter *red.RateLimiter, rateLimit int, rateWindow time.Duration, log *zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpc:      &http.Client{Timeout: timeout},
		log:        log,
		limiter:    limiter,
		rateLimit:  rateLimit,
		rateWindow: rateWindow,
	}
}

type remoteJobPayload struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	CreatedAt     int64             `json:"created_at"`
	CompletedAt   int64             `json:"completed_at"`
	OutputFile    string            `json:"output_file"`
	Metadata      map[string]string `json:"metadata"`
	TotalRequests int               `json:"total_requests"`
	Errors        []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type jobListPayload struct {
	Data []remoteJobPayload `json:"data"`
}

type fileUploadPayload struct {
	ID string `json:"id"`
}

func (c *Client) CreateJob(ctx context.Context, files []model.FileRef, ocrModel string, metadata map[string]string) (adapter.RemoteJob, error) {
	if len(files) == 0 {
		return adapter.RemoteJob{}, fmt.Errorf("create job: %w", domain.ErrNoFiles)
	}

	batch, err := c.buildBatchFile(files)
	if err != nil {
		return adapter.RemoteJob{}, err
	}

	fileID, err := c.uploadBatchFile(ctx, batch)
	if err != nil {
		return adapter.RemoteJob{}, err
	}

	body := map[string]interface{}{
		"input_files": []string{fileID},
		"endpoint":    ocrEndpoint,
		"model":       ocrModel,
		"metadata":    metadata,
	}
	raw, err := c.do(ctx, "create_job", http.MethodPost, "/v1/batch/jobs", body)
	if err != nil {
		return adapter.RemoteJob{}, err
	}
	return decodeJob(raw, "create_job")
}

func (c *Client) GetJob(ctx context.Context, jobID string) (adapter.RemoteJob, error) {
	raw, err := c.do(ctx, "get_job", http.MethodGet, "/v1/batch/jobs/"+jobID, nil)
	if err != nil {
		return adapter.RemoteJob{}, err
	}
	return decodeJob(raw, "get_job")
}

func (c *Client) ListJobs(ctx context.Context) ([]adapter.RemoteJob, error) {
	raw, err := c.do(ctx, "list_jobs", http.MethodGet, "/v1/batch/jobs", nil)
	if err != nil {
		return nil, err
	}
	var payload jobListPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &domain.RemoteError{Op: "list_jobs", Err: fmt.Errorf("%w: malformed listing: %v", domain.ErrNonRetryable, err)}
	}
	jobs := make([]adapter.RemoteJob, 0, len(payload.Data))
	for _, p := range payload.Data {
		item, _ := json.Marshal(p)
		jobs = append(jobs, toRemoteJob(p, item))
	}
	return jobs, nil
}

func (c *Client) CancelJob(ctx context.Context, jobID string) (adapter.RemoteJob, error) {
	raw, err := c.do(ctx, "cancel_job", http.MethodPost, "/v1/batch/jobs/"+jobID+"/cancel", nil)
	if err != nil {
		return adapter.RemoteJob{}, err
	}
	return decodeJob(raw, "cancel_job")
}

// buildBatchFile renders files into the JSONL body the batch endpoint
// expects, one request entry per file, preserving input order.
func (c *Client) buildBatchFile(files []model.FileRef) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	written := 0
	for _, f := range files {
		dataURL, err := encodeFileToDataURL(f.Path)
		if err != nil {
			c.log.Warn().Str("file", f.Path).Err(err).Msg("skipping file that could not be encoded")
			continue
		}
		entry := map[string]interface{}{
			"custom_id": displayName(f),
			"body": map[string]interface{}{
				"document": map[string]string{
					"type":      "image_url",
					"image_url": dataURL,
				},
				"include_image_base64": true,
			},
		}
		if err := enc.Encode(entry); err != nil {
			return nil, fmt.Errorf("encode batch entry: %w", err)
		}
		written++
	}
	if written == 0 {
		return nil, fmt.Errorf("build batch file: %w", domain.ErrNoFiles)
	}
	c.log.Debug().Int("entries", written).Int("files", len(files)).Msg("built batch file")
	return buf.Bytes(), nil
}

func (c *Client) uploadBatchFile(ctx context.Context, content []byte) (string, error) {
	if err := c.allow(ctx, "upload_file"); err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("purpose", batchFilePurpose); err != nil {
		return "", fmt.Errorf("write purpose field: %w", err)
	}
	part, err := mw.CreateFormFile("file", "batch.jsonl")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/files", &body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	raw, err := c.send(req, "upload_file")
	if err != nil {
		return "", err
	}
	var payload fileUploadPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ID == "" {
		return "", &domain.RemoteError{Op: "upload_file", Err: fmt.Errorf("%w: malformed upload response", domain.ErrNonRetryable)}
	}
	c.log.Info().Str("file_id", payload.ID).Msg("batch file uploaded")
	return payload.ID, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body interface{}) ([]byte, error) {
	if err := c.allow(ctx, op); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s body: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, op)
}

func (c *Client) send(req *http.Request, op string) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpc.Do(req)
	latency := int(time.Since(start) / time.Millisecond)
	if err != nil {
		metrics.ObserveAPICall(op, latency, false)
		return nil, &domain.RemoteError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		metrics.ObserveAPICall(op, latency, false)
		return nil, &domain.RemoteError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ObserveAPICall(op, latency, false)
		return nil, &domain.RemoteError{
			Op:         op,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        errors.New(bodySnippet(raw)),
		}
	}

	metrics.ObserveAPICall(op, latency, true)
	return raw, nil
}

// allow consults the shared rate limit window. A closed window is reported
// as retryable with the window length as the retry hint, so the executor
// simply waits it out. Limiter outages fail open: a down Redis must not
// stop remote traffic.
func (c *Client) allow(ctx context.Context, op string) error {
	if c.limiter == nil {
		return nil
	}
	ok, err := c.limiter.Allow(ctx, red.EndpointKey(op), c.rateLimit, c.rateWindow)
	if err != nil {
		c.log.Warn().Str("op", op).Err(err).Msg("rate limiter unavailable, allowing call")
		return nil
	}
	if !ok {
		metrics.IncRateLimited(op)
		return &domain.RemoteError{
			Op:         op,
			RetryAfter: c.rateWindow,
			Err:        fmt.Errorf("%w: local rate limit window exceeded", domain.ErrRetryable),
		}
	}
	return nil
}

func decodeJob(raw []byte, op string) (adapter.RemoteJob, error) {
	var p remoteJobPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.ID == "" {
		return adapter.RemoteJob{}, &domain.RemoteError{Op: op, Err: fmt.Errorf("%w: malformed job payload", domain.ErrNonRetryable)}
	}
	return toRemoteJob(p, raw), nil
}

func toRemoteJob(p remoteJobPayload, raw []byte) adapter.RemoteJob {
	job := adapter.RemoteJob{
		ID:            p.ID,
		Status:        p.Status,
		OutputFileRef: p.OutputFile,
		Metadata:      p.Metadata,
		TotalRequests: p.TotalRequests,
		Raw:           raw,
	}
	if p.CreatedAt > 0 {
		t := time.Unix(p.CreatedAt, 0).UTC()
		job.CreatedAt = &t
	}
	if p.CompletedAt > 0 {
		t := time.Unix(p.CompletedAt, 0).UTC()
		job.CompletedAt = &t
	}
	for _, e := range p.Errors {
		job.Errors = append(job.Errors, e.Message)
	}
	return job
}

func encodeFileToDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return "data:" + mimeTypeFor(path) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

func displayName(f model.FileRef) string {
	if f.Name != "" {
		return f.Name
	}
	return filepath.Base(f.Path)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	// Retry-After may be an HTTP date instead of seconds.
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func bodySnippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	if s == "" {
		s = "empty response body"
	}
	return s
}
