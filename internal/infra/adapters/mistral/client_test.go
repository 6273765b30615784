//go:build !integration

package mistral

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ocr-batch-sync/internal/domain"
	"ocr-batch-sync/internal/domain/model"
)

func modelFileRefs(paths ...string) []model.FileRef {
	out := make([]model.FileRef, len(paths))
	for i, p := range paths {
		out[i] = model.FileRef{Path: p}
	}
	return out
}

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func newTestClient(url string) *Client {
	return NewClient(url, "test-key", 5*time.Second, nil, 0, 0, testLogger())
}

func TestClient_GetJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/batch/jobs/abc123" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", got)
		}
		w.Write([]byte(`{"id":"abc123","status":"RUNNING","created_at":1700000000,"total_requests":5}`))
	}))
	defer srv.Close()

	job, err := newTestClient(srv.URL).GetJob(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.ID != "abc123" || job.Status != "RUNNING" || job.TotalRequests != 5 {
		t.Errorf("unexpected job: %+v", job)
	}
	if job.CreatedAt == nil {
		t.Error("created_at not parsed")
	}
	if len(job.Raw) == 0 {
		t.Error("raw payload not retained")
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		status     int
		retryAfter string
		wantAfter  time.Duration
	}{
		{"rate limited with hint", http.StatusTooManyRequests, "7", 7 * time.Second},
		{"server error", http.StatusBadGateway, "", 0},
		{"client error", http.StatusNotFound, "", 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if c.retryAfter != "" {
					w.Header().Set("Retry-After", c.retryAfter)
				}
				w.WriteHeader(c.status)
				w.Write([]byte(`{"message":"nope"}`))
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).GetJob(context.Background(), "x")
			var remote *domain.RemoteError
			if !errors.As(err, &remote) {
				t.Fatalf("expected RemoteError, got %T: %v", err, err)
			}
			if remote.StatusCode != c.status {
				t.Errorf("StatusCode = %d, want %d", remote.StatusCode, c.status)
			}
			if remote.RetryAfter != c.wantAfter {
				t.Errorf("RetryAfter = %v, want %v", remote.RetryAfter, c.wantAfter)
			}
		})
	}
}

func TestClient_ListJobs(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"data":[{"id":"a","status":"SUCCESS"},{"id":"b","status":"RUNNING"}]}`))
	}))
	defer srv.Close()

	jobs, err := newTestClient(srv.URL).ListJobs(context.Background())
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if calls != 1 {
		t.Errorf("made %d calls, want 1", calls)
	}
	if len(jobs) != 2 || jobs[0].ID != "a" || jobs[1].ID != "b" {
		t.Errorf("unexpected jobs: %+v", jobs)
	}
}

func TestClient_TransportErrorIsRemoteError(t *testing.T) {
	// Point at a closed server so the dial fails.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := newTestClient(srv.URL).GetJob(context.Background(), "x")
	var remote *domain.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %T", err)
	}
	if remote.StatusCode != 0 {
		t.Errorf("transport failure should carry no status code, got %d", remote.StatusCode)
	}
}

func TestClient_BuildBatchFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "page1.png")
	if err := os.WriteFile(good, []byte("pixels"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := newTestClient("http://unused")
	out, err := c.buildBatchFile(modelFileRefs(good))
	if err != nil {
		t.Fatalf("buildBatchFile: %v", err)
	}
	if len(out) == 0 {
		t.Error("empty batch file")
	}

	// A missing file is skipped, and all-missing fails with ErrNoFiles.
	_, err = c.buildBatchFile(modelFileRefs(filepath.Join(dir, "absent.png")))
	if !errors.Is(err, domain.ErrNoFiles) {
		t.Errorf("expected ErrNoFiles, got %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d := parseRetryAfter("12"); d != 12*time.Second {
		t.Errorf("seconds form = %v, want 12s", d)
	}
	if d := parseRetryAfter(""); d != 0 {
		t.Errorf("empty = %v, want 0", d)
	}
	if d := parseRetryAfter("garbage"); d != 0 {
		t.Errorf("garbage = %v, want 0", d)
	}
	future := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
	if d := parseRetryAfter(future); d <= 0 || d > 31*time.Second {
		t.Errorf("http-date form = %v, want ~30s", d)
	}
}

func TestNoopClient_SequencedIDs(t *testing.T) {
	seq := NewSequence()
	c := NewNoopClient(seq, testLogger())
	ctx := context.Background()

	files := modelFileRefs("a.png", "b.png")
	first, err := c.CreateJob(ctx, files, "mistral-ocr-latest", nil)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := c.CreateJob(ctx, files[:1], "mistral-ocr-latest", nil)

	if first.ID != "job_001" || second.ID != "job_002" {
		t.Errorf("ids = %q, %q; want job_001, job_002", first.ID, second.ID)
	}
	if first.TotalRequests != 2 {
		t.Errorf("TotalRequests = %d, want 2", first.TotalRequests)
	}

	cancelled, err := c.CancelJob(ctx, first.ID)
	if err != nil || cancelled.Status != "cancelled" {
		t.Errorf("CancelJob = %+v, %v", cancelled, err)
	}
}
