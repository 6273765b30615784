//go:build !integration

package model

import (
	"fmt"
	"testing"
	"time"
)

func TestJobStatus_Terminal(t *testing.T) {
	cases := []struct {
		raw      string
		terminal bool
	}{
		{"pending", false},
		{"validating", false},
		{"running", false},
		{"SUCCESS", true},
		{"completed", true},
		{"SUCCEEDED", true},
		{"Failed", true},
		{"cancelled", true},
		{"unknown", false},
	}
	for _, c := range cases {
		t.Run(c.raw, func(t *testing.T) {
			if got := JobStatus(c.raw).Terminal(); got != c.terminal {
				t.Errorf("Terminal(%q) = %v, want %v", c.raw, got, c.terminal)
			}
		})
	}
}

func TestJobStatus_SkipRefresh(t *testing.T) {
	cases := []struct {
		raw  string
		skip bool
	}{
		{"pending", true},
		{"SUCCESS", true},
		{"completed", true},
		{"succeeded", true},
		{"running", false},
		{"validating", false},
		{"failed", false},
		{"cancelled", false},
	}
	for _, c := range cases {
		if got := JobStatus(c.raw).SkipRefresh(); got != c.skip {
			t.Errorf("SkipRefresh(%q) = %v, want %v", c.raw, got, c.skip)
		}
	}
}

func TestJobStatus_Is(t *testing.T) {
	if !JobStatus("RUNNING").Is(JobStatusRunning) {
		t.Error("expected RUNNING to match running case-insensitively")
	}
	if JobStatus("running").Is(JobStatusFailed) {
		t.Error("running should not match failed")
	}
}

func TestJob_ApplyRemote(t *testing.T) {
	now := time.Now()

	t.Run("terminal status sets completed timestamp once", func(t *testing.T) {
		j := &Job{ID: "j1", Status: JobStatusRunning}
		j.ApplyRemote("SUCCESS", []byte(`{"status":"SUCCESS"}`), now)

		if !j.Status.Is(JobStatusSuccess) {
			t.Errorf("status = %q, want success", j.Status)
		}
		if j.CompletedAt == nil || !j.CompletedAt.Equal(now) {
			t.Errorf("CompletedAt = %v, want %v", j.CompletedAt, now)
		}
		first := *j.CompletedAt

		later := now.Add(time.Minute)
		j.ApplyRemote("cancelled", nil, later)
		if !j.CompletedAt.Equal(first) {
			t.Error("CompletedAt should not move once set")
		}
		if !j.Status.Is(JobStatusCancelled) {
			t.Error("a fresher remote read must be able to force cancelled")
		}
	})

	t.Run("non-terminal status leaves completed unset", func(t *testing.T) {
		j := &Job{ID: "j2", Status: JobStatusPending}
		j.ApplyRemote("running", nil, now)
		if j.CompletedAt != nil {
			t.Error("CompletedAt should stay nil for non-terminal status")
		}
		if j.LastRefreshAt == nil || !j.LastRefreshAt.Equal(now) {
			t.Errorf("LastRefreshAt = %v, want %v", j.LastRefreshAt, now)
		}
	})
}

func TestSplitBatches(t *testing.T) {
	mkFiles := func(n int) []FileRef {
		out := make([]FileRef, n)
		for i := range out {
			out[i] = FileRef{Path: fmt.Sprintf("/in/p%04d.png", i)}
		}
		return out
	}

	cases := []struct {
		n, limit   int
		wantCounts []int
	}{
		{0, 100, nil},
		{1, 100, []int{1}},
		{100, 100, []int{100}},
		{101, 100, []int{100, 1}},
		{250, 100, []int{100, 100, 50}},
		{5, 2, []int{2, 2, 1}},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("n=%d_limit=%d", c.n, c.limit), func(t *testing.T) {
			batches := SplitBatches(mkFiles(c.n), c.limit)
			if len(batches) != len(c.wantCounts) {
				t.Fatalf("got %d batches, want %d", len(batches), len(c.wantCounts))
			}
			total := 0
			seq := 0
			for i, b := range batches {
				if len(b) != c.wantCounts[i] {
					t.Errorf("batch %d has %d files, want %d", i, len(b), c.wantCounts[i])
				}
				for _, f := range b {
					want := fmt.Sprintf("/in/p%04d.png", seq)
					if f.Path != want {
						t.Fatalf("order broken at %d: got %q want %q", seq, f.Path, want)
					}
					seq++
				}
				total += len(b)
			}
			if total != c.n {
				t.Errorf("sum of batch sizes = %d, want %d", total, c.n)
			}
		})
	}

	t.Run("non-positive limit falls back to default", func(t *testing.T) {
		batches := SplitBatches(mkFiles(150), 0)
		if len(batches) != 2 || len(batches[0]) != MaxBatchFiles {
			t.Errorf("expected default limit of %d, got %d batches", MaxBatchFiles, len(batches))
		}
	})
}

func TestValidateJobID(t *testing.T) {
	valid := []string{"abc123", "0195a3e2-real-id", "job-8f3c"}
	for _, id := range valid {
		if !ValidateJobID(id) {
			t.Errorf("ValidateJobID(%q) = false, want true", id)
		}
	}
	invalid := []string{"", "has space", "tab\tid", "line\nbreak"}
	for _, id := range invalid {
		if ValidateJobID(id) {
			t.Errorf("ValidateJobID(%q) = true, want false", id)
		}
	}
}
