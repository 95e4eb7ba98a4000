package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/flowrunner/internal/jobs"
	"github.com/dvloznov/flowrunner/internal/receipt"
)

func TestStore_SaveAndGet(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	job := &jobs.IngestReceiptJob{JobID: "j1", Status: jobs.JobStatusPending}
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}

	// Mutating the original must not leak into the store.
	job.Status = jobs.JobStatusFailed

	got, err := s.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != jobs.JobStatusPending {
		t.Errorf("Status = %s, want pending", got.Status)
	}

	if err := s.SaveJob(ctx, &jobs.IngestReceiptJob{}); err == nil {
		t.Error("expected error for missing job ID")
	}
	if _, err := s.GetJob(ctx, "nope"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestStore_ListJobs(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, tc := range []struct {
		id     string
		fileID string
		status jobs.JobStatus
	}{
		{"c", "f1", jobs.JobStatusCompleted},
		{"a", "f2", jobs.JobStatusFailed},
		{"b", "f1", jobs.JobStatusCompleted},
	} {
		_ = s.SaveJob(ctx, &jobs.IngestReceiptJob{
			JobID:     tc.id,
			File:      receipt.FileReference{FileID: tc.fileID},
			Status:    tc.status,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{"all oldest first", jobs.JobFilter{}, []string{"c", "a", "b"}},
		{"by status", jobs.JobFilter{Status: jobs.JobStatusCompleted}, []string{"c", "b"}},
		{"by file", jobs.JobFilter{FileID: "f2"}, []string{"a"}},
		{"limit", jobs.JobFilter{Limit: 2}, []string{"c", "a"}},
		{"offset", jobs.JobFilter{Offset: 1}, []string{"a", "b"}},
		{"offset past end", jobs.JobFilter{Offset: 5}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListJobs failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d jobs, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].JobID != id {
					t.Errorf("job %d = %s, want %s", i, got[i].JobID, id)
				}
			}
		})
	}
}

func TestStore_SaveJobReplacesState(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	job := &jobs.IngestReceiptJob{JobID: "j", Status: jobs.JobStatusRunning}
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}

	job.Status = jobs.JobStatusFailed
	job.Error = "boom"
	job.FailedStage = "persist"
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}

	got, err := s.GetJob(ctx, "j")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != jobs.JobStatusFailed || got.Error != "boom" || got.FailedStage != "persist" {
		t.Errorf("unexpected job %+v", got)
	}

	all, _ := s.ListJobs(ctx, jobs.JobFilter{})
	if len(all) != 1 {
		t.Errorf("re-saving must not duplicate the job, got %d", len(all))
	}
}
