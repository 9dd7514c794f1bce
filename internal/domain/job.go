package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// OperationKind enumerates the AI operations the engine can execute. The set
// is closed: adding a kind requires a matching case in the processor switch.
type OperationKind string

const (
	OpEdit             OperationKind = "edit"
	OpGenerate         OperationKind = "generate"
	OpUpscale          OperationKind = "upscale"
	OpRemoveBackground OperationKind = "remove-background"
	OpInpaint          OperationKind = "inpaint"
	OpCameraControl    OperationKind = "camera-control"
	OpGemstoneEnhance  OperationKind = "gemstone-enhance"
	OpMetalRecolor     OperationKind = "metal-recolor"
	OpMetalPolish      OperationKind = "metal-polish"
	OpNaturalLight     OperationKind = "natural-light"
	OpVideo            OperationKind = "video"
	OpTurntable        OperationKind = "turntable"
)

// OperationKinds lists every supported kind in declaration order.
func OperationKinds() []OperationKind {
	return []OperationKind{
		OpEdit, OpGenerate, OpUpscale, OpRemoveBackground, OpInpaint, OpCameraControl,
		OpGemstoneEnhance, OpMetalRecolor, OpMetalPolish, OpNaturalLight, OpVideo, OpTurntable,
	}
}

// ParseOperationKind normalizes free-form input into a supported kind.
func ParseOperationKind(raw string) (OperationKind, error) {
	candidate := OperationKind(strings.ToLower(strings.TrimSpace(raw)))
	candidate = OperationKind(strings.ReplaceAll(string(candidate), "_", "-"))
	for _, kind := range OperationKinds() {
		if kind == candidate {
			return kind, nil
		}
	}
	return "", fmt.Errorf("%w: unsupported operation %q", ErrInvalidRequest, raw)
}

// Cost returns the number of credits one execution of the kind consumes.
func (k OperationKind) Cost() int64 {
	switch k {
	case OpVideo:
		return 5
	case OpTurntable:
		return 3
	case OpUpscale:
		return 2
	default:
		return 1
	}
}

// Lane names a priority-scoped durable queue.
type Lane string

const (
	LaneInteractive Lane = "interactive"
	LaneBatch       Lane = "batch"
	LaneLow         Lane = "low"
)

// Lanes lists lanes from highest to lowest priority.
func Lanes() []Lane {
	return []Lane{LaneInteractive, LaneBatch, LaneLow}
}

// ParseLane maps user input to a lane, defaulting to interactive.
func ParseLane(raw string) (Lane, error) {
	switch Lane(strings.ToLower(strings.TrimSpace(raw))) {
	case "", LaneInteractive:
		return LaneInteractive, nil
	case LaneBatch:
		return LaneBatch, nil
	case LaneLow:
		return LaneLow, nil
	default:
		return "", fmt.Errorf("%w: unsupported priority %q", ErrInvalidRequest, raw)
	}
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is one AI-operation request tracked through queued, active and a
// terminal state.
type Job struct {
	ID             string
	Kind           OperationKind
	UserID         string
	Lane           Lane
	Payload        json.RawMessage
	Status         JobStatus
	Attempts       int
	ReservationID  string
	Cost           int64
	OriginCountry  string
	ResultURL      string
	ResultWidth    int
	ResultHeight   int
	ErrorMessage   string
	LeaseOwner     string
	LeaseExpiresAt *time.Time
	AvailableAt    time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// GenerationResult is the normalized outcome of a provider call.
type GenerationResult struct {
	URL         string `json:"url"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ContentType string `json:"content_type,omitempty"`
}

// Outcome is the single response shape returned by every operation handler.
type Outcome struct {
	Success bool              `json:"success"`
	Data    *GenerationResult `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	// Unsaved is set when the provider succeeded but persisting the result failed.
	Unsaved bool `json:"unsaved,omitempty"`
}
