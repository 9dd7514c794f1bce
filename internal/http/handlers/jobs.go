package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"jewelshot/internal/domain"
	"jewelshot/internal/middleware"
	"jewelshot/internal/submission"
)

type submitJobRequest struct {
	Operation string          `json:"operation"`
	Priority  string          `json:"priority"`
	Params    json.RawMessage `json:"params"`
}

type jobView struct {
	ID        string          `json:"id"`
	Operation string          `json:"operation"`
	Priority  string          `json:"priority"`
	Status    string          `json:"status"`
	Attempts  int             `json:"attempts"`
	Cost      int64           `json:"cost"`
	Outcome   *domain.Outcome `json:"outcome,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func newJobView(job *domain.Job) jobView {
	v := jobView{
		ID:        job.ID,
		Operation: string(job.Kind),
		Priority:  string(job.Lane),
		Status:    string(job.Status),
		Attempts:  job.Attempts,
		Cost:      job.Cost,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	switch job.Status {
	case domain.JobStatusCompleted:
		v.Outcome = &domain.Outcome{Success: true, Data: &domain.GenerationResult{URL: job.ResultURL, Width: job.ResultWidth, Height: job.ResultHeight}}
	case domain.JobStatusFailed:
		v.Outcome = &domain.Outcome{Error: job.ErrorMessage}
	}
	return v
}

// SubmitJob admits an operation and answers 202 with the queued job.
func (a *App) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if !a.decode(w, r, &req) {
		return
	}
	kind, err := domain.ParseOperationKind(req.Operation)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	lane, err := domain.ParseLane(req.Priority)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	job, err := a.Gateway.Submit(r.Context(), submission.Request{
		UserID:  a.currentUserID(r),
		Kind:    kind,
		Payload: req.Params,
		Lane:    lane,
		Country: middleware.CountryFromContext(r.Context()),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	job.Status = domain.JobStatusQueued
	w.Header().Set("Location", "/v1/jobs/"+job.ID)
	a.json(w, http.StatusAccepted, newJobView(job))
}

func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.ownedJob(r.Context(), chi.URLParam(r, "id"), a.currentUserID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, newJobView(job))
}

const streamWriteWait = 10 * time.Second

// StreamJob pushes the job view over a websocket whenever its status or
// attempt count changes, and closes once the job is terminal.
func (a *App) StreamJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.ownedJob(r.Context(), chi.URLParam(r, "id"), a.currentUserID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	upgrader := websocket.Upgrader{CheckOrigin: a.CheckOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	poll := a.StreamPoll
	if poll <= 0 {
		poll = time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var lastStatus domain.JobStatus
	lastAttempts := -1
	for {
		if job.Status != lastStatus || job.Attempts != lastAttempts {
			lastStatus, lastAttempts = job.Status, job.Attempts
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(newJobView(job)); err != nil {
				return
			}
		}
		if job.Status.IsTerminal() {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(job.Status)),
				time.Now().Add(streamWriteWait))
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		next, err := a.Jobs.GetJob(ctx, job.ID)
		if err != nil {
			if ctx.Err() == nil {
				a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("http: job stream reload failed")
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "reload failed"),
					time.Now().Add(streamWriteWait))
			}
			return
		}
		job = next
	}
}

func (a *App) ownedJob(ctx context.Context, jobID, userID string) (*domain.Job, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	job, err := a.Jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return job, nil
}
