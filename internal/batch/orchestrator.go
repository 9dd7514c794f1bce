// Package batch drives multi-image batches. Progress is pull based: each
// ProcessNext call claims one pending unit, runs it inline and returns a
// progress snapshot. Concurrency comes from callers issuing several calls.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"jewelshot/internal/backoff"
	"jewelshot/internal/domain"
	"jewelshot/internal/notify"
	"jewelshot/internal/processor"
	"jewelshot/internal/storage"
)

// MaxUnits bounds the size of one batch.
const MaxUnits = 100

// Ledger is the part of the credit ledger the orchestrator uses.
type Ledger interface {
	Reserve(ctx context.Context, userID string, amount int64, kind domain.OperationKind) (string, error)
	Settle(ctx context.Context, reservationID string, confirm bool) error
}

// Preset identifies the look applied to a unit; its name becomes the label.
type Preset struct {
	ID   string `json:"presetId"`
	Name string `json:"presetName"`
}

type CreateRequest struct {
	UserID  string
	Name    string
	Kind    domain.OperationKind
	Params  json.RawMessage
	Sources []string
}

type Orchestrator struct {
	repo     domain.BatchRepository
	ledger   Ledger
	executor *processor.Executor
	objects  storage.ObjectStore
	notifier *notify.Dispatcher
	policy   backoff.Policy
	logger   zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(repo domain.BatchRepository, ledger Ledger, executor *processor.Executor, objects storage.ObjectStore, notifier *notify.Dispatcher, policy backoff.Policy, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		repo:     repo,
		ledger:   ledger,
		executor: executor,
		objects:  objects,
		notifier: notifier,
		policy:   policy,
		logger:   logger,
		sleep:    backoff.Sleep,
	}
}

// CreateBatch validates the shared parameters against the first source and
// stores the project with every unit pending.
func (o *Orchestrator) CreateBatch(ctx context.Context, req CreateRequest) (*domain.BatchProject, []domain.BatchImage, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, nil, domain.ErrUnauthorized
	}
	sources := make([]string, 0, len(req.Sources))
	for _, src := range req.Sources {
		if src = strings.TrimSpace(src); src != "" {
			sources = append(sources, src)
		}
	}
	if len(sources) == 0 || len(sources) > MaxUnits {
		return nil, nil, fmt.Errorf("%w: a batch needs between 1 and %d images", domain.ErrInvalidRequest, MaxUnits)
	}
	base, err := processor.DecodeRequest(req.Params)
	if err != nil {
		return nil, nil, err
	}
	for _, src := range sources {
		candidate := base
		candidate.ImageURL = src
		if _, err := processor.Build(req.Kind, candidate); err != nil {
			return nil, nil, err
		}
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Batch " + time.Now().UTC().Format("2006-01-02 15:04")
	}
	params := req.Params
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}

	project := &domain.BatchProject{
		ID:     uuid.NewString(),
		UserID: req.UserID,
		Name:   name,
		Kind:   req.Kind,
		Params: params,
	}
	units := make([]domain.BatchImage, len(sources))
	for i, src := range sources {
		units[i] = domain.BatchImage{ID: uuid.NewString(), SourceRef: src}
	}
	if err := o.repo.CreateProject(ctx, project, units); err != nil {
		return nil, nil, fmt.Errorf("create batch: %w", err)
	}
	o.logger.Info().Str("batch_id", project.ID).Str("user_id", project.UserID).Int("units", len(units)).Msg("batch: created")
	return project, units, nil
}

// Snapshot returns the current progress without processing anything.
func (o *Orchestrator) Snapshot(ctx context.Context, batchID, userID string) (*domain.BatchProgress, error) {
	if _, err := o.owned(ctx, batchID, userID); err != nil {
		return nil, err
	}
	return o.snapshot(ctx, batchID, "")
}

// Results returns the project and its completed units in creation order.
func (o *Orchestrator) Results(ctx context.Context, batchID, userID string) (*domain.BatchProject, []domain.BatchImage, error) {
	project, err := o.owned(ctx, batchID, userID)
	if err != nil {
		return nil, nil, err
	}
	units, err := o.repo.ListUnits(ctx, batchID)
	if err != nil {
		return nil, nil, fmt.Errorf("list units: %w", err)
	}
	done := units[:0]
	for _, u := range units {
		if u.Status == domain.UnitStatusCompleted && u.ResultURL != "" {
			done = append(done, u)
		}
	}
	return project, done, nil
}

// ProcessNext claims the oldest pending unit, executes it and reports
// progress. When nothing is pending the snapshot has Processed=false.
func (o *Orchestrator) ProcessNext(ctx context.Context, batchID, userID string, preset Preset) (*domain.BatchProgress, error) {
	project, err := o.owned(ctx, batchID, userID)
	if err != nil {
		return nil, err
	}
	log := o.logger.With().Str("batch_id", batchID).Str("user_id", userID).Logger()

	unit, err := o.repo.ClaimNextPending(ctx, batchID)
	if errors.Is(err, domain.ErrNoPendingUnit) {
		if project.Finished() {
			o.finish(ctx, project)
		}
		return o.snapshot(ctx, batchID, "")
	}
	if err != nil {
		return nil, fmt.Errorf("claim unit: %w", err)
	}
	log = log.With().Str("unit_id", unit.ID).Logger()

	// A claimed unit runs to completion or failure even if the caller goes
	// away; the provider timeout still bounds each attempt.
	ctx = context.WithoutCancel(ctx)

	reservationID, err := o.ledger.Reserve(ctx, userID, project.Kind.Cost(), project.Kind)
	if err != nil {
		if _, relErr := o.repo.ReleaseUnit(ctx, unit.ID); relErr != nil {
			log.Error().Err(relErr).Msg("batch: release unit failed")
		}
		return nil, err
	}
	if err := o.repo.AttachReservation(ctx, unit.ID, reservationID); err != nil {
		// Without the id on the unit the ledger reaper cannot tell the
		// reservation is in flight, so give both back.
		log.Error().Err(err).Msg("batch: attach reservation failed")
		if settleErr := o.ledger.Settle(ctx, reservationID, false); settleErr != nil {
			log.Error().Err(settleErr).Str("reservation_id", reservationID).Msg("batch: refund reservation failed")
		}
		if _, relErr := o.repo.ReleaseUnit(ctx, unit.ID); relErr != nil {
			log.Error().Err(relErr).Msg("batch: release unit failed")
		}
		return nil, fmt.Errorf("attach reservation: %w", err)
	}

	result, runErr := o.run(ctx, project, unit)
	progress := o.record(ctx, log, project, unit, reservationID, presetLabel(preset), result, runErr)
	snap, err := o.snapshot(ctx, batchID, unit.ID)
	if err != nil {
		if progress != nil {
			return nil, &domain.PersistenceError{Result: *progress, Err: err}
		}
		return nil, err
	}
	snap.Processed = true
	snap.Unsaved = progress
	return snap, nil
}

// run materializes the unit's source and executes with the inline retry
// policy.
func (o *Orchestrator) run(ctx context.Context, project *domain.BatchProject, unit *domain.BatchImage) (domain.GenerationResult, error) {
	req, err := processor.DecodeRequest(project.Params)
	if err != nil {
		return domain.GenerationResult{}, err
	}
	source, err := o.materialize(ctx, unit)
	if err != nil {
		return domain.GenerationResult{}, err
	}
	req.ImageURL = source

	for attempt := 1; ; attempt++ {
		result, err := o.executor.Execute(ctx, project.Kind, req, unit.ID)
		if err == nil {
			return result, nil
		}
		if !domain.IsRetryable(err) || !o.policy.ShouldRetry(attempt) {
			return domain.GenerationResult{}, err
		}
		delay := o.policy.Delay(attempt)
		o.logger.Warn().Err(err).Str("unit_id", unit.ID).Int("attempt", attempt).Dur("delay", delay).Msg("batch: transient failure, retrying")
		if err := o.sleep(ctx, delay); err != nil {
			return domain.GenerationResult{}, &domain.ProviderError{Class: domain.ProviderClassTransient, Message: "retry aborted", Err: err}
		}
	}
}

// materialize uploads inline sources so the provider receives a URL.
func (o *Orchestrator) materialize(ctx context.Context, unit *domain.BatchImage) (string, error) {
	if !strings.HasPrefix(unit.SourceRef, "data:") || o.objects == nil {
		return unit.SourceRef, nil
	}
	mime, data, err := storage.DecodeDataURI(unit.SourceRef)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	key := fmt.Sprintf("sources/%s/%s.%s", unit.BatchID, unit.ID, storage.ExtensionFor(mime))
	return o.objects.Put(ctx, key, data, mime)
}

// record writes the unit's terminal state, settles its reservation and bumps
// the batch counters. Returns the result when it could not be persisted.
func (o *Orchestrator) record(ctx context.Context, log zerolog.Logger, project *domain.BatchProject, unit *domain.BatchImage, reservationID, label string, result domain.GenerationResult, runErr error) *domain.GenerationResult {
	var (
		ok  bool
		err error
	)
	if runErr == nil {
		ok, err = o.repo.CompleteUnit(ctx, unit.ID, result.URL, label)
	} else {
		ok, err = o.repo.FailUnit(ctx, unit.ID, runErr.Error())
	}
	if err != nil {
		log.Error().Err(err).Msg("batch: persist unit state failed")
		if runErr == nil {
			return &result
		}
		return nil
	}
	if !ok {
		log.Warn().Msg("batch: unit no longer processing, outcome discarded")
		return nil
	}

	if err := o.ledger.Settle(ctx, reservationID, runErr == nil); err != nil {
		log.Error().Err(err).Str("reservation_id", reservationID).Msg("batch: settle reservation failed")
	}
	completed, failed := 1, 0
	if runErr != nil {
		completed, failed = 0, 1
		log.Warn().Err(runErr).Msg("batch: unit failed")
	} else {
		log.Info().Str("result_url", result.URL).Msg("batch: unit completed")
	}
	updated, err := o.repo.IncrementCounters(ctx, project.ID, completed, failed)
	if err != nil {
		log.Error().Err(err).Msg("batch: increment counters failed")
		return nil
	}
	if updated.Finished() {
		o.finish(ctx, updated)
	}
	return nil
}

// finish flips the batch to completed and notifies exactly once.
func (o *Orchestrator) finish(ctx context.Context, project *domain.BatchProject) {
	changed, err := o.repo.MarkCompleted(ctx, project.ID)
	if err != nil {
		o.logger.Error().Err(err).Str("batch_id", project.ID).Msg("batch: mark completed failed")
		return
	}
	if !changed {
		return
	}
	o.logger.Info().Str("batch_id", project.ID).Int("completed", project.CompletedCount).Int("failed", project.FailedCount).Msg("batch: completed")
	o.notifier.Send(notify.Event{
		Type:   notify.EventBatchCompleted,
		UserID: project.UserID,
		Data: map[string]any{
			"batch_id":  project.ID,
			"name":      project.Name,
			"total":     project.TotalCount,
			"completed": project.CompletedCount,
			"failed":    project.FailedCount,
		},
	})
}

func (o *Orchestrator) owned(ctx context.Context, batchID, userID string) (*domain.BatchProject, error) {
	project, err := o.repo.GetProject(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if project.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return project, nil
}

func (o *Orchestrator) snapshot(ctx context.Context, batchID, currentID string) (*domain.BatchProgress, error) {
	units, err := o.repo.ListUnits(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	snap := &domain.BatchProgress{Images: units}
	snap.Progress.Total = len(units)
	for i := range units {
		switch units[i].Status {
		case domain.UnitStatusCompleted:
			snap.Progress.Completed++
		case domain.UnitStatusFailed:
			snap.Progress.Failed++
		case domain.UnitStatusProcessing:
			snap.Progress.Processing++
		default:
			snap.Progress.Pending++
		}
		if units[i].ID == currentID {
			snap.CurrentImage = &units[i]
		}
	}
	snap.Remaining = snap.Progress.Pending
	snap.Done = snap.Progress.Completed+snap.Progress.Failed == snap.Progress.Total
	return snap, nil
}

func presetLabel(p Preset) string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return cases.Title(language.Und).String(name)
	}
	return strings.TrimSpace(p.ID)
}
