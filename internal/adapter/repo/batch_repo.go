package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"jewelshot/internal/domain"
	"jewelshot/internal/infra"
	"jewelshot/internal/sqlinline"
)

// BatchRepositoryPG implements domain.BatchRepository on batch_projects and
// batch_images.
type BatchRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewBatchRepository(sql infra.SQLExecutor) *BatchRepositoryPG {
	return &BatchRepositoryPG{sql: sql}
}

// CreateProject inserts the project and all of its pending units in one
// statement.
func (r *BatchRepositoryPG) CreateProject(ctx context.Context, project *domain.BatchProject, units []domain.BatchImage) error {
	if len(units) == 0 {
		return errors.New("batch requires at least one unit")
	}
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	ids := make([]string, len(units))
	sources := make([]string, len(units))
	for i := range units {
		if units[i].ID == "" {
			units[i].ID = uuid.NewString()
		}
		ids[i] = units[i].ID
		sources[i] = units[i].SourceRef
	}
	params := []byte(project.Params)
	if len(params) == 0 {
		params = nil
	}
	if _, err := r.sql.Exec(ctx, sqlinline.QBatchCreate,
		project.ID,
		project.UserID,
		project.Name,
		string(project.Kind),
		params,
		sources,
		ids,
	); err != nil {
		return err
	}
	now := time.Now().UTC()
	project.TotalCount = len(units)
	project.Status = domain.BatchStatusProcessing
	project.CreatedAt = now
	project.UpdatedAt = now
	for i := range units {
		units[i].BatchID = project.ID
		units[i].UserID = project.UserID
		units[i].Status = domain.UnitStatusPending
		units[i].CreatedAt = now
	}
	return nil
}

func (r *BatchRepositoryPG) GetProject(ctx context.Context, batchID string) (*domain.BatchProject, error) {
	if _, err := uuid.Parse(batchID); err != nil {
		return nil, domain.ErrNotFound
	}
	p, err := scanProject(r.sql.QueryRow(ctx, sqlinline.QBatchGetProject, batchID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *BatchRepositoryPG) ClaimNextPending(ctx context.Context, batchID string) (*domain.BatchImage, error) {
	unit, err := scanUnit(r.sql.QueryRow(ctx, sqlinline.QBatchClaimNextPending, batchID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNoPendingUnit
		}
		return nil, err
	}
	return &unit, nil
}

func (r *BatchRepositoryPG) AttachReservation(ctx context.Context, unitID, reservationID string) error {
	_, err := r.sql.Exec(ctx, sqlinline.QBatchAttachReservation, unitID, reservationID)
	return err
}

func (r *BatchRepositoryPG) ReleaseUnit(ctx context.Context, unitID string) (bool, error) {
	return r.conditional(ctx, sqlinline.QBatchReleaseUnit, unitID)
}

func (r *BatchRepositoryPG) CompleteUnit(ctx context.Context, unitID, resultURL, label string) (bool, error) {
	return r.conditional(ctx, sqlinline.QBatchCompleteUnit, unitID, resultURL, label)
}

func (r *BatchRepositoryPG) FailUnit(ctx context.Context, unitID, message string) (bool, error) {
	return r.conditional(ctx, sqlinline.QBatchFailUnit, unitID, message)
}

// IncrementCounters adds the deltas atomically and returns the new totals.
func (r *BatchRepositoryPG) IncrementCounters(ctx context.Context, batchID string, completed, failed int) (*domain.BatchProject, error) {
	p, err := scanProject(r.sql.QueryRow(ctx, sqlinline.QBatchIncrementCounters, batchID, completed, failed))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *BatchRepositoryPG) MarkCompleted(ctx context.Context, batchID string) (bool, error) {
	return r.conditional(ctx, sqlinline.QBatchMarkCompleted, batchID)
}

func (r *BatchRepositoryPG) ListUnits(ctx context.Context, batchID string) ([]domain.BatchImage, error) {
	return r.units(ctx, sqlinline.QBatchListUnits, batchID)
}

func (r *BatchRepositoryPG) StaleUnits(ctx context.Context, claimedBefore time.Time, limit int) ([]domain.BatchImage, error) {
	return r.units(ctx, sqlinline.QBatchStaleUnits, claimedBefore, limit)
}

func (r *BatchRepositoryPG) conditional(ctx context.Context, query string, args ...any) (bool, error) {
	tag, err := r.sql.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *BatchRepositoryPG) units(ctx context.Context, query string, args ...any) ([]domain.BatchImage, error) {
	rows, err := r.sql.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.BatchImage
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, unit)
	}
	return out, rows.Err()
}

var _ domain.BatchRepository = (*BatchRepositoryPG)(nil)
