package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/use-agent/webpilot/agent"
	"github.com/use-agent/webpilot/models"
	"github.com/use-agent/webpilot/webhook"
)

// objectiveTimeout bounds one objective run end to end.
const objectiveTimeout = 10 * time.Minute

// objectiveStore holds all in-flight and completed objective jobs. Readers
// get copies so they never observe a job the runner is mutating.
type objectiveStore struct {
	mu   sync.RWMutex
	jobs map[string]*models.ObjectiveJob
}

var objectives = &objectiveStore{jobs: make(map[string]*models.ObjectiveJob)}

func init() {
	// Background goroutine to expire objective jobs older than 1 hour.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			objectives.prune(time.Now().Add(-1 * time.Hour))
		}
	}()
}

func (s *objectiveStore) put(job *models.ObjectiveJob) {
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
}

func (s *objectiveStore) get(id string) (models.ObjectiveJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.ObjectiveJob{}, false
	}
	return *job, true
}

func (s *objectiveStore) update(id string, fn func(*models.ObjectiveJob)) (models.ObjectiveJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.ObjectiveJob{}, false
	}
	fn(job)
	return *job, true
}

func (s *objectiveStore) prune(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.jobs {
		if job.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}

// PostObjective returns a handler for POST /api/v1/objectives.
//
// Validates the request, registers a job, and launches the objective run in
// the background. Session creation happens inside the run, so a full pool
// delays the job rather than failing the accept.
func PostObjective(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ObjectiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		req.Defaults()

		if req.URL == "" && req.SessionID == "" {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "either url or session_id is required",
				},
			})
			return
		}
		if req.SessionID != "" {
			if _, ok := d.Sessions.Get(req.SessionID); !ok {
				respondError(c, errSessionNotFound(req.SessionID))
				return
			}
		}

		job := &models.ObjectiveJob{
			ID:         "obj-" + uuid.NewString(),
			Status:     models.ObjectiveStatusProcessing,
			Objective:  req.Objective,
			SessionID:  req.SessionID,
			WebhookURL: req.WebhookURL,
			CreatedAt:  time.Now(),
		}
		objectives.put(job)

		// Launch the run in background.
		go runObjective(d, job.ID, req)

		c.JSON(http.StatusOK, models.ObjectiveResponse{
			ID:     job.ID,
			Status: job.Status,
		})
	}
}

// GetObjective returns a handler for GET /api/v1/objectives/:id.
func GetObjective() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := objectives.get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "objective not found",
				},
			})
			return
		}

		resp := models.ObjectiveStatusResponse{
			ID:        job.ID,
			Status:    job.Status,
			Objective: job.Objective,
			SessionID: job.SessionID,
			Output:    job.Output,
			Steps:     job.Steps,
			Error:     job.Error,
		}
		if !job.FinishedAt.IsZero() {
			resp.Timing = &models.TimingInfo{
				TotalMs: job.FinishedAt.Sub(job.CreatedAt).Milliseconds(),
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

// runObjective executes one objective job end to end and publishes the
// outcome. A session the run created is closed before the job is published,
// unless the request keeps it.
func runObjective(d Deps, jobID string, req models.ObjectiveRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), objectiveTimeout)
	defer cancel()

	result, owned, err := executeObjective(ctx, d, jobID, req)
	if owned != "" && !req.KeepSession {
		_ = d.Sessions.Close(owned)
	}
	finishObjective(d, jobID, result, err)
}

// executeObjective resolves or creates the session, optionally navigates to
// the start URL, and runs the agent loop. owned is the ID of a session the
// run created; caller-owned sessions always outlive the run.
func executeObjective(ctx context.Context, d Deps, jobID string, req models.ObjectiveRequest) (result *agent.RunResult, owned string, err error) {
	var sess Session
	if req.SessionID != "" {
		existing, ok := d.Sessions.Get(req.SessionID)
		if !ok {
			return nil, "", errSessionNotFound(req.SessionID)
		}
		sess = existing
	} else {
		created, createErr := d.Sessions.Create(ctx, "", nil)
		if createErr != nil {
			return nil, "", createErr
		}
		sess = created
		owned = created.ID()
	}
	objectives.update(jobID, func(j *models.ObjectiveJob) { j.SessionID = sess.ID() })

	ag := d.Agents(sess, req.MaxSteps)
	if req.URL != "" {
		if navErr := ag.Get(ctx, req.URL); navErr != nil {
			return nil, owned, navErr
		}
	}

	result, err = ag.Run(ctx, req.Objective)
	return result, owned, err
}

// finishObjective publishes the job outcome and fires the webhook, if any.
// A partial result still lands in the job: failed runs keep their steps.
func finishObjective(d Deps, jobID string, result *agent.RunResult, runErr error) {
	done, ok := objectives.update(jobID, func(j *models.ObjectiveJob) {
		j.FinishedAt = time.Now()
		if result != nil {
			j.Output = result.Output
			j.Steps = result.Steps
		}
		if runErr != nil {
			j.Status = models.ObjectiveStatusFailed
			j.Error = toAgentError(runErr).ToDetail()
		} else {
			j.Status = models.ObjectiveStatusCompleted
		}
	})
	if !ok {
		// Pruned while running; nothing to publish.
		return
	}

	slog.Info("objective finished",
		"id", done.ID,
		"status", done.Status,
		"steps", len(done.Steps),
	)

	if done.WebhookURL == "" || d.Webhooks == nil {
		return
	}
	event := webhook.Completed(&done)
	if done.Status == models.ObjectiveStatusFailed {
		event = webhook.Failed(&done)
	}
	d.Webhooks.DeliverAsync(done.WebhookURL, event)
}
