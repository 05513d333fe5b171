package api

import (
	"context"
	"errors"
	"testing"
	"time"

	maperrors "github.com/FocuswithJustin/OTMapKit/core/errors"
)

func TestJobStoreLifecycle(t *testing.T) {
	s := NewJobStore(0)
	job, ctx, err := s.Create(context.Background(), JobRequest{Input: "a.otbm"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if job.Status != JobStatusPending || job.ID == "" {
		t.Errorf("new job = %+v", job)
	}

	got, _ := s.update(job.ID, func(j *Job) { j.Status, j.Stage, j.Progress = JobStatusRunning, "load", 20 })
	if got.Progress != 20 || got.Stage != "load" {
		t.Errorf("after update = %+v", got)
	}

	if err := s.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatal("Cancel() did not cancel the job context")
	}

	got, _ = s.update(job.ID, func(j *Job) { j.Status = JobStatusCancelled })
	if got.CompletedAt == nil {
		t.Error("finished job has no completion time")
	}
	if _, ok := s.update(job.ID, func(j *Job) { j.Status = JobStatusRunning }); ok {
		t.Error("finished job was updated again")
	}
	if err := s.Cancel(job.ID); !errors.Is(err, maperrors.ErrInvalidInput) {
		t.Errorf("Cancel(finished) error = %v", err)
	}

	if err := s.Delete(job.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(job.ID); !errors.Is(err, maperrors.ErrNotFound) {
		t.Errorf("Get(deleted) error = %v", err)
	}
	if err := s.Delete(job.ID); !errors.Is(err, maperrors.ErrNotFound) {
		t.Errorf("Delete(deleted) error = %v", err)
	}
}

func TestJobStoreEviction(t *testing.T) {
	s := NewJobStore(2)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { now = now.Add(time.Second); return now }

	a, _, _ := s.Create(context.Background(), JobRequest{Input: "a"})
	b, _, _ := s.Create(context.Background(), JobRequest{Input: "b"})
	if _, _, err := s.Create(context.Background(), JobRequest{Input: "c"}); !errors.Is(err, ErrStoreFull) {
		t.Fatalf("Create() on a store of running jobs error = %v", err)
	}

	s.update(b.ID, func(j *Job) { j.Status = JobStatusCompleted })
	c, _, err := s.Create(context.Background(), JobRequest{Input: "c"})
	if err != nil {
		t.Fatalf("Create() after a job finished error = %v", err)
	}
	if _, err := s.Get(b.ID); err == nil {
		t.Error("finished job was not evicted")
	}

	list := s.List()
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != c.ID {
		t.Errorf("List() = %v", list)
	}
}

func TestStagePercent(t *testing.T) {
	tests := []struct {
		label          string
		current, total int64
		want           int
	}{
		{"load", 0, 100, 0},
		{"load", 50, 100, 20},
		{"load", 200, 100, 40},
		{"convert", 1, 2, 55},
		{"save", 10, 10, 100},
		{"save", 5, 0, 70},
		{"other", 5, 10, 0},
	}
	for _, tt := range tests {
		if got := stagePercent(tt.label, tt.current, tt.total); got != tt.want {
			t.Errorf("stagePercent(%s, %d, %d) = %d, want %d", tt.label, tt.current, tt.total, got, tt.want)
		}
	}
}

func TestJobStatusDone(t *testing.T) {
	for status, want := range map[JobStatus]bool{
		JobStatusPending:   false,
		JobStatusRunning:   false,
		JobStatusCompleted: true,
		JobStatusFailed:    true,
		JobStatusCancelled: true,
	} {
		if got := status.Done(); got != want {
			t.Errorf("%s.Done() = %v", status, got)
		}
	}
}
