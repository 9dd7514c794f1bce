package repo

import (
	"encoding/json"
	"time"

	"jewelshot/internal/domain"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*domain.Job, error) {
	var (
		job     domain.Job
		kind    string
		lane    string
		status  string
		payload []byte
	)
	if err := row.Scan(
		&job.ID,
		&kind,
		&job.UserID,
		&lane,
		&payload,
		&status,
		&job.Attempts,
		&job.ReservationID,
		&job.Cost,
		&job.OriginCountry,
		&job.ResultURL,
		&job.ResultWidth,
		&job.ResultHeight,
		&job.ErrorMessage,
		&job.LeaseOwner,
		&job.LeaseExpiresAt,
		&job.AvailableAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Kind = domain.OperationKind(kind)
	job.Lane = domain.Lane(lane)
	job.Status = domain.JobStatus(status)
	job.Payload = json.RawMessage(payload)
	return &job, nil
}

func scanAccount(row scanner, extra ...any) (domain.CreditAccount, error) {
	var (
		acct  domain.CreditAccount
		level int
	)
	dest := append([]any{
		&acct.UserID,
		&acct.Balance,
		&acct.Reserved,
		&acct.LifetimeGranted,
		&level,
		&acct.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.CreditAccount{}, err
	}
	acct.NotifiedLevel = domain.LowBalanceLevel(level)
	return acct, nil
}

func scanResolution(row scanner) (domain.Resolution, error) {
	var (
		out        domain.Resolution
		kind       string
		state      string
		level      int
		resolvedAt *time.Time
	)
	if err := row.Scan(
		&out.Reservation.ID,
		&out.Reservation.UserID,
		&out.Reservation.Amount,
		&kind,
		&state,
		&out.Reservation.CreatedAt,
		&resolvedAt,
		&out.Account.Balance,
		&out.Account.Reserved,
		&out.Account.LifetimeGranted,
		&level,
		&out.Account.UpdatedAt,
		&out.Applied,
	); err != nil {
		return domain.Resolution{}, err
	}
	out.Reservation.Kind = domain.OperationKind(kind)
	out.Reservation.State = domain.ReservationState(state)
	out.Reservation.ResolvedAt = resolvedAt
	out.Account.UserID = out.Reservation.UserID
	out.Account.NotifiedLevel = domain.LowBalanceLevel(level)
	return out, nil
}

func scanProject(row scanner) (*domain.BatchProject, error) {
	var (
		p      domain.BatchProject
		kind   string
		status string
		params []byte
	)
	if err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&kind,
		&params,
		&p.TotalCount,
		&p.CompletedCount,
		&p.FailedCount,
		&status,
		&p.NotifiedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Kind = domain.OperationKind(kind)
	p.Status = domain.BatchStatus(status)
	p.Params = json.RawMessage(params)
	return &p, nil
}

func scanUnit(row scanner) (domain.BatchImage, error) {
	var (
		u      domain.BatchImage
		status string
	)
	if err := row.Scan(
		&u.ID,
		&u.BatchID,
		&u.UserID,
		&u.SourceRef,
		&u.ResultURL,
		&status,
		&u.ErrorMessage,
		&u.Label,
		&u.ReservationID,
		&u.ClaimedAt,
		&u.CompletedAt,
		&u.CreatedAt,
	); err != nil {
		return domain.BatchImage{}, err
	}
	u.Status = domain.UnitStatus(status)
	return u, nil
}
