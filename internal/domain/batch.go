package domain

import (
	"encoding/json"
	"time"
)

// BatchStatus enumerates batch project states.
type BatchStatus string

const (
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
)

// UnitStatus enumerates batch unit states. Completed and failed are final.
type UnitStatus string

const (
	UnitStatusPending    UnitStatus = "pending"
	UnitStatusProcessing UnitStatus = "processing"
	UnitStatusCompleted  UnitStatus = "completed"
	UnitStatusFailed     UnitStatus = "failed"
)

// IsTerminal reports whether the unit can no longer change.
func (s UnitStatus) IsTerminal() bool {
	return s == UnitStatusCompleted || s == UnitStatusFailed
}

// BatchProject is a user-defined collection of images processed unit by unit
// under one set of parameters.
type BatchProject struct {
	ID             string
	UserID         string
	Name           string
	Kind           OperationKind
	Params         json.RawMessage
	TotalCount     int
	CompletedCount int
	FailedCount    int
	Status         BatchStatus
	NotifiedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Finished reports whether every unit reached a terminal state.
func (p BatchProject) Finished() bool {
	return p.CompletedCount+p.FailedCount >= p.TotalCount
}

// BatchImage is one unit of a batch.
type BatchImage struct {
	ID            string     `json:"id"`
	BatchID       string     `json:"batch_id"`
	UserID        string     `json:"-"`
	SourceRef     string     `json:"source"`
	ResultURL     string     `json:"result_url,omitempty"`
	Status        UnitStatus `json:"status"`
	ErrorMessage  string     `json:"error,omitempty"`
	Label         string     `json:"label,omitempty"`
	ReservationID string     `json:"-"`
	ClaimedAt     *time.Time `json:"-"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// StatusCounts aggregates unit states of a batch.
type StatusCounts struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Processing int `json:"processing"`
	Pending    int `json:"pending"`
}

// Consistent reports whether the per-state counts add up to the total.
func (c StatusCounts) Consistent() bool {
	return c.Completed+c.Failed+c.Processing+c.Pending == c.Total
}

// BatchProgress is the snapshot returned after each process-next step.
type BatchProgress struct {
	Done         bool         `json:"done"`
	Processed    bool         `json:"processed"`
	Remaining    int          `json:"remaining"`
	Progress     StatusCounts `json:"progress"`
	CurrentImage *BatchImage  `json:"currentImage,omitempty"`
	Images       []BatchImage `json:"images"`
	// Unsaved carries a generated result whose persistence failed.
	Unsaved *GenerationResult `json:"unsaved,omitempty"`
}
