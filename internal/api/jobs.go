package api

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/OTMapKit/core/errors"
	"github.com/FocuswithJustin/OTMapKit/core/mapdata"
	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
	"github.com/FocuswithJustin/OTMapKit/internal/convert"
	"github.com/FocuswithJustin/OTMapKit/internal/formats/base"
	"github.com/FocuswithJustin/OTMapKit/internal/logging"
	"github.com/FocuswithJustin/OTMapKit/internal/manager"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Done reports whether the status is final.
func (s JobStatus) Done() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// JobRequest asks for a map to be loaded, converted and saved. Paths are
// relative to the server's base directory. Unset version fields keep the
// source map's value; an empty Output overwrites Input.
type JobRequest struct {
	Input     string                `json:"input"`
	Output    string                `json:"output,omitempty"`
	Format    mapversion.Format     `json:"format,omitempty"`
	Structure *mapversion.Structure `json:"structure,omitempty"`
	Client    mapversion.Client     `json:"client,omitempty"`
}

// JobResult collects the three stage reports of a finished job.
type JobResult struct {
	Load    manager.LoadResult  `json:"load"`
	Convert *convert.Result     `json:"convert,omitempty"`
	Save    *manager.SaveResult `json:"save,omitempty"`
}

// Job represents an asynchronous conversion job.
type Job struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	Stage       string     `json:"stage,omitempty"`
	Progress    int        `json:"progress"` // 0-100
	Result      *JobResult `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Request     JobRequest `json:"request"`
	RequestID   string     `json:"request_id,omitempty"`

	cancel context.CancelFunc
}

// JobStore keeps jobs in memory. Once it holds max jobs, the oldest
// finished job is evicted to make room; running jobs are never evicted.
type JobStore struct {
	mu    sync.Mutex
	jobs  map[string]*Job
	order []string
	max   int
	now   func() time.Time
}

// NewJobStore creates a store bounded to max jobs (0 = unbounded).
func NewJobStore(max int) *JobStore {
	return &JobStore{jobs: make(map[string]*Job), max: max, now: time.Now}
}

// ErrStoreFull is returned by Create when every stored job is still running.
var ErrStoreFull = fmt.Errorf("job store full")

// Create registers a pending job derived from parent. The returned context
// is cancelled by Cancel and Delete.
func (s *JobStore) Create(parent context.Context, req JobRequest) (Job, context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.max > 0 && len(s.jobs) >= s.max && !s.evictLocked() {
		return Job{}, nil, ErrStoreFull
	}
	ctx, cancel := context.WithCancel(parent)
	now := s.now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Request:   req,
		RequestID: logging.GetRequestID(parent),
		cancel:    cancel,
	}
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	return *job, ctx, nil
}

func (s *JobStore) evictLocked() bool {
	for i, id := range s.order {
		if s.jobs[id].Status.Done() {
			delete(s.jobs, id)
			s.order = append(s.order[:i], s.order[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns a snapshot of the job.
func (s *JobStore) Get(id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, errors.NewNotFound("job", id)
	}
	return *job, nil
}

// List returns snapshots of every job, oldest first.
func (s *JobStore) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, id := range s.order {
		out = append(out, *s.jobs[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Cancel stops a pending or running job. The job reaches the cancelled
// state once its runner notices.
func (s *JobStore) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return errors.NewNotFound("job", id)
	}
	if job.Status.Done() {
		return errors.NewValidation("status", fmt.Sprintf("job is already %s", job.Status))
	}
	job.cancel()
	return nil
}

// Delete cancels the job if needed and forgets it.
func (s *JobStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return errors.NewNotFound("job", id)
	}
	job.cancel()
	delete(s.jobs, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// update applies fn to the stored job and returns the new snapshot.
// Finished jobs are not touched again.
func (s *JobStore) update(id string, fn func(*Job)) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status.Done() {
		return Job{}, false
	}
	fn(job)
	job.UpdatedAt = s.now().UTC()
	if job.Status.Done() {
		t := job.UpdatedAt
		job.CompletedAt = &t
		job.cancel()
	}
	return *job, true
}

// stage weights split the progress bar between load, convert and save.
var stageSpan = map[string][2]int{
	"load":    {0, 40},
	"convert": {40, 70},
	"save":    {70, 100},
}

func stagePercent(label string, current, total int64) int {
	span, ok := stageSpan[label]
	if !ok {
		return 0
	}
	if total <= 0 {
		return span[0]
	}
	frac := min(float64(current)/float64(total), 1)
	return span[0] + int(frac*float64(span[1]-span[0]))
}

// runJob loads, converts and saves the map named by the job. inPath and
// outPath are already resolved against the base directory.
func (s *Server) runJob(ctx context.Context, id string, req JobRequest, inPath, outPath string) {
	defer s.wg.Done()

	s.setProgress(id, "load", 0)
	logging.JobEvent(ctx, id, "started", "input", inPath, "output", outPath)

	ctx = base.WithProgress(ctx, func(current, total int64, label string) {
		s.setProgress(id, label, stagePercent(label, current, total))
	})

	result := &JobResult{}
	m := mapdata.New(0, 0)
	result.Load = s.mgr.LoadMap(ctx, m, inPath)
	if !result.Load.Success {
		s.finish(ctx, id, result, result.Load.Err)
		return
	}

	target := s.mgr.ResolveTarget(m.Header.Version(), req.Format, req.Structure, req.Client)
	if target.Client != m.Header.Client || target.Structure != m.Header.Structure || target.Format != m.Header.Format {
		s.setProgress(id, "convert", stageSpan["convert"][0])
		cr := s.mgr.ConvertMap(ctx, m, target)
		result.Convert = &cr
		if !cr.Success {
			s.finish(ctx, id, result, cr.Err)
			return
		}
	}

	s.setProgress(id, "save", stageSpan["save"][0])
	sr := s.mgr.SaveMap(ctx, m, outPath, target)
	result.Save = &sr
	s.finish(ctx, id, result, sr.Err)
}

func (s *Server) setProgress(id, stage string, pct int) {
	job, ok := s.jobs.update(id, func(j *Job) {
		j.Status = JobStatusRunning
		if j.Stage != stage || pct > j.Progress {
			j.Stage = stage
			j.Progress = pct
		}
	})
	if !ok {
		return
	}
	s.hub.Broadcast(ProgressMessage{
		Type:     "progress",
		JobID:    id,
		Stage:    job.Stage,
		Progress: job.Progress,
		Message:  fmt.Sprintf("%s %d%%", job.Stage, job.Progress),
	})
}

func (s *Server) finish(ctx context.Context, id string, result *JobResult, err error) {
	job, ok := s.jobs.update(id, func(j *Job) {
		j.Result = result
		switch {
		case err == nil:
			j.Status = JobStatusCompleted
			j.Progress = 100
		case errors.Is(err, errors.ErrCancelled):
			j.Status = JobStatusCancelled
			j.Error = err.Error()
		default:
			j.Status = JobStatusFailed
			j.Error = err.Error()
		}
	})
	if !ok {
		return
	}
	logging.JobEvent(ctx, id, string(job.Status), "stage", job.Stage, "error", job.Error)

	msg := ProgressMessage{JobID: id, Stage: job.Stage, Progress: job.Progress}
	switch job.Status {
	case JobStatusCompleted:
		msg.Type = "complete"
		msg.Message = "job completed"
		if result.Save != nil {
			msg.Data = map[string]any{"path": result.Save.Path, "digest": result.Save.Digest}
		}
	default:
		msg.Type = "error"
		msg.Message = job.Error
	}
	s.hub.Broadcast(msg)
}
