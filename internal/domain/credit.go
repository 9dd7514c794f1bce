package domain

import "time"

// ReservationState enumerates the lifecycle of a provisional credit hold.
type ReservationState string

const (
	ReservationReserved  ReservationState = "reserved"
	ReservationConfirmed ReservationState = "confirmed"
	ReservationRefunded  ReservationState = "refunded"
)

// LowBalanceLevel records which low-balance notification was last issued so
// each threshold crossing notifies once.
type LowBalanceLevel int

const (
	LowBalanceNone LowBalanceLevel = iota
	LowBalanceBelowFloor
	LowBalanceExhausted
)

// CreditAccount is the per-user consumable balance. Balance never drops below
// zero and Reserved never exceeds Balance.
type CreditAccount struct {
	UserID          string
	Balance         int64
	Reserved        int64
	LifetimeGranted int64
	NotifiedLevel   LowBalanceLevel
	UpdatedAt       time.Time
}

// Available returns the spendable credit.
func (a CreditAccount) Available() int64 {
	return a.Balance - a.Reserved
}

// Reservation is a provisional hold that must be confirmed or refunded
// exactly once.
type Reservation struct {
	ID         string
	UserID     string
	Amount     int64
	Kind       OperationKind
	State      ReservationState
	CreatedAt  time.Time
	ResolvedAt *time.Time
}
