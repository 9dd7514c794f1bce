package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"jewelshot/internal/batch"
	"jewelshot/internal/domain"
	"jewelshot/internal/ledger"
	"jewelshot/internal/middleware"
	"jewelshot/internal/storage"
	"jewelshot/internal/submission"
)

// QueueStats reports pending work per lane.
type QueueStats interface {
	Depths(ctx context.Context) (map[domain.Lane]int, error)
}

type App struct {
	Gateway *submission.Gateway
	Batches *batch.Orchestrator
	Ledger  *ledger.Service
	Jobs    domain.JobRepository
	Queue   QueueStats
	Objects storage.ObjectStore
	// HTTP fetches remote results for archives.
	HTTP   *http.Client
	Logger zerolog.Logger
	// StreamPoll is how often a job stream re-reads the job.
	StreamPoll time.Duration
	// CheckOrigin vets websocket upgrades; nil enforces same origin.
	CheckOrigin func(r *http.Request) bool
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (a *App) error(w http.ResponseWriter, r *http.Request, code int, key, msgKey string, args ...any) {
	a.json(w, code, errorBody{Error: key, Message: translate(r.Context(), msgKey, args...)})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// fail maps domain errors onto HTTP responses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		rl *domain.RateLimitError
		ic *domain.InsufficientCreditError
		pe *domain.PersistenceError
	)
	switch {
	case errors.As(err, &rl):
		secs := rl.RetryAfterSeconds()
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		a.json(w, http.StatusTooManyRequests, errorBody{
			Error:   "rate_limited",
			Message: translate(r.Context(), msgRateLimited, secs),
			Details: map[string]any{"retry_after_seconds": secs},
		})
	case errors.As(err, &ic):
		a.json(w, http.StatusPaymentRequired, errorBody{
			Error:   "insufficient_credit",
			Message: translate(r.Context(), msgInsufficientCredit, ic.Required, ic.Available),
			Details: map[string]any{"required": ic.Required, "available": ic.Available, "threshold": ic.Threshold},
		})
	case errors.As(err, &pe):
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("http: result generated but not saved")
		a.json(w, http.StatusInternalServerError, errorBody{
			Error:   "unsaved_result",
			Message: translate(r.Context(), msgInternal),
			Details: map[string]any{"result": pe.Result},
		})
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, r, http.StatusUnauthorized, "unauthorized", msgUnauthorized)
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, r, http.StatusNotFound, "not_found", msgNotFound)
	case errors.Is(err, domain.ErrInvalidRequest):
		a.json(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
	case errors.Is(err, domain.ErrUnavailable), errors.Is(err, domain.ErrCredentialUnavailable):
		a.error(w, r, http.StatusServiceUnavailable, "unavailable", msgUnavailable)
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("http: request failed")
		a.error(w, r, http.StatusInternalServerError, "internal", msgInternal)
	}
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		a.error(w, r, http.StatusBadRequest, "bad_request", msgInvalidPayload)
		return false
	}
	return true
}

// Inline data URIs make request bodies large.
const maxBodyBytes = 64 << 20
