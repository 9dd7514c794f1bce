// Package ledger meters operations against per-user credit balances through
// reserve, confirm and refund. A reservation is resolved exactly once.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"jewelshot/internal/domain"
	"jewelshot/internal/notify"
)

// Service is the only component allowed to mutate balances.
type Service struct {
	repo      domain.CreditRepository
	notifier  *notify.Dispatcher
	threshold int64
	logger    zerolog.Logger
}

func NewService(repo domain.CreditRepository, notifier *notify.Dispatcher, threshold int64, logger zerolog.Logger) *Service {
	return &Service{repo: repo, notifier: notifier, threshold: threshold, logger: logger}
}

// Threshold is the low-balance notification floor.
func (s *Service) Threshold() int64 { return s.threshold }

// Reserve places a hold of amount credits for userID. Returns
// *domain.InsufficientCreditError when the spendable balance is too low.
func (s *Service) Reserve(ctx context.Context, userID string, amount int64, kind domain.OperationKind) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("%w: user is required", domain.ErrInvalidRequest)
	}
	if amount <= 0 {
		return "", fmt.Errorf("%w: reservation amount must be positive", domain.ErrInvalidRequest)
	}
	res := &domain.Reservation{
		ID:     uuid.NewString(),
		UserID: userID,
		Amount: amount,
		Kind:   kind,
	}
	acct, ok, err := s.repo.Reserve(ctx, res)
	if err != nil {
		return "", fmt.Errorf("reserve credit: %w", err)
	}
	if !ok {
		s.logger.Info().
			Str("user_id", userID).
			Int64("required", amount).
			Int64("available", acct.Available()).
			Msg("ledger: insufficient credit")
		return "", &domain.InsufficientCreditError{
			UserID:    userID,
			Required:  amount,
			Available: acct.Available(),
			Threshold: s.threshold,
		}
	}
	s.logger.Debug().Str("user_id", userID).Str("reservation_id", res.ID).Int64("amount", amount).Msg("ledger: reserved")
	return res.ID, nil
}

// Confirm turns the reservation into a permanent debit. A second resolution
// returns domain.ErrAlreadyResolved without touching the balance.
func (s *Service) Confirm(ctx context.Context, reservationID string) error {
	r, err := s.repo.Confirm(ctx, reservationID)
	if err != nil {
		return fmt.Errorf("confirm reservation %s: %w", reservationID, err)
	}
	if !r.Applied {
		return fmt.Errorf("confirm reservation %s (%s): %w", reservationID, r.Reservation.State, domain.ErrAlreadyResolved)
	}
	s.logger.Debug().Str("user_id", r.Account.UserID).Str("reservation_id", reservationID).Int64("balance", r.Account.Balance).Msg("ledger: confirmed")
	s.checkLowBalance(ctx, r.Account)
	return nil
}

// Refund releases the hold without debiting.
func (s *Service) Refund(ctx context.Context, reservationID string) error {
	r, err := s.repo.Refund(ctx, reservationID)
	if err != nil {
		return fmt.Errorf("refund reservation %s: %w", reservationID, err)
	}
	if !r.Applied {
		return fmt.Errorf("refund reservation %s (%s): %w", reservationID, r.Reservation.State, domain.ErrAlreadyResolved)
	}
	s.logger.Debug().Str("user_id", r.Account.UserID).Str("reservation_id", reservationID).Msg("ledger: refunded")
	return nil
}

// Settle resolves a reservation and treats an earlier resolution as success.
// Completion paths use it so that redelivered work never double-charges.
func (s *Service) Settle(ctx context.Context, reservationID string, confirm bool) error {
	if reservationID == "" {
		return nil
	}
	var err error
	if confirm {
		err = s.Confirm(ctx, reservationID)
	} else {
		err = s.Refund(ctx, reservationID)
	}
	if errors.Is(err, domain.ErrAlreadyResolved) {
		s.logger.Info().Str("reservation_id", reservationID).Msg("ledger: reservation already resolved")
		return nil
	}
	return err
}

// Grant adds purchased or promotional credit.
func (s *Service) Grant(ctx context.Context, userID string, amount int64) (domain.CreditAccount, error) {
	if amount <= 0 {
		return domain.CreditAccount{}, fmt.Errorf("%w: grant amount must be positive", domain.ErrInvalidRequest)
	}
	acct, err := s.repo.Grant(ctx, userID, amount, s.threshold)
	if err != nil {
		return domain.CreditAccount{}, fmt.Errorf("grant credit: %w", err)
	}
	s.logger.Info().Str("user_id", userID).Int64("amount", amount).Int64("balance", acct.Balance).Msg("ledger: granted")
	return acct, nil
}

func (s *Service) Balance(ctx context.Context, userID string) (domain.CreditAccount, error) {
	return s.repo.Account(ctx, userID)
}

func (s *Service) checkLowBalance(ctx context.Context, acct domain.CreditAccount) {
	level := domain.LowBalanceNone
	evt := notify.EventLowCredit
	switch {
	case acct.Balance <= 0:
		level = domain.LowBalanceExhausted
		evt = notify.EventCreditExhaust
	case acct.Balance < s.threshold:
		level = domain.LowBalanceBelowFloor
	}
	if level == domain.LowBalanceNone {
		return
	}
	first, err := s.repo.MarkNotified(ctx, acct.UserID, level)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", acct.UserID).Msg("ledger: mark notified failed")
		return
	}
	if !first {
		return
	}
	s.notifier.Send(notify.Event{
		Type:   evt,
		UserID: acct.UserID,
		Data: map[string]any{
			"balance":   acct.Balance,
			"threshold": s.threshold,
		},
		At: time.Now().UTC(),
	})
}
