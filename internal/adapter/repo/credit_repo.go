package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"jewelshot/internal/domain"
	"jewelshot/internal/infra"
	"jewelshot/internal/sqlinline"
)

// CreditRepositoryPG implements domain.CreditRepository. Each method is one
// statement; balances are never read and written back from Go.
type CreditRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewCreditRepository(sql infra.SQLExecutor) *CreditRepositoryPG {
	return &CreditRepositoryPG{sql: sql}
}

func (r *CreditRepositoryPG) Reserve(ctx context.Context, res *domain.Reservation) (domain.CreditAccount, bool, error) {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	var ok bool
	acct, err := scanAccount(r.sql.QueryRow(ctx, sqlinline.QCreditReserve, res.ID, res.UserID, res.Amount, string(res.Kind)), &ok)
	if err != nil {
		if infra.IsNoRows(err) {
			// No account row yet: nothing to spend.
			return domain.CreditAccount{UserID: res.UserID}, false, nil
		}
		return domain.CreditAccount{}, false, err
	}
	if ok {
		res.State = domain.ReservationReserved
		res.CreatedAt = time.Now().UTC()
	}
	return acct, ok, nil
}

func (r *CreditRepositoryPG) Confirm(ctx context.Context, reservationID string) (domain.Resolution, error) {
	return r.resolve(ctx, sqlinline.QCreditConfirm, reservationID)
}

func (r *CreditRepositoryPG) Refund(ctx context.Context, reservationID string) (domain.Resolution, error) {
	return r.resolve(ctx, sqlinline.QCreditRefund, reservationID)
}

func (r *CreditRepositoryPG) resolve(ctx context.Context, query, reservationID string) (domain.Resolution, error) {
	if _, err := uuid.Parse(reservationID); err != nil {
		return domain.Resolution{}, domain.ErrNotFound
	}
	out, err := scanResolution(r.sql.QueryRow(ctx, query, reservationID))
	if err != nil {
		if infra.IsNoRows(err) {
			return domain.Resolution{}, domain.ErrNotFound
		}
		return domain.Resolution{}, err
	}
	return out, nil
}

func (r *CreditRepositoryPG) Account(ctx context.Context, userID string) (domain.CreditAccount, error) {
	acct, err := scanAccount(r.sql.QueryRow(ctx, sqlinline.QCreditAccount, userID))
	if err != nil {
		if infra.IsNoRows(err) {
			return domain.CreditAccount{UserID: userID}, nil
		}
		return domain.CreditAccount{}, err
	}
	return acct, nil
}

func (r *CreditRepositoryPG) Grant(ctx context.Context, userID string, amount, threshold int64) (domain.CreditAccount, error) {
	return scanAccount(r.sql.QueryRow(ctx, sqlinline.QCreditGrant, userID, amount, threshold))
}

func (r *CreditRepositoryPG) MarkNotified(ctx context.Context, userID string, level domain.LowBalanceLevel) (bool, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QCreditMarkNotified, userID, int(level))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *CreditRepositoryPG) StaleReservations(ctx context.Context, cutoff time.Time, limit int) ([]domain.Reservation, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QCreditStaleReservations, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Reservation
	for rows.Next() {
		var (
			res   domain.Reservation
			kind  string
			state string
		)
		if err := rows.Scan(&res.ID, &res.UserID, &res.Amount, &kind, &state, &res.CreatedAt); err != nil {
			return nil, err
		}
		res.Kind = domain.OperationKind(kind)
		res.State = domain.ReservationState(state)
		out = append(out, res)
	}
	return out, rows.Err()
}

var _ domain.CreditRepository = (*CreditRepositoryPG)(nil)
