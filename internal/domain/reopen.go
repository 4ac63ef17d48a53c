package domain

import (
	"fmt"
	"time"
)

// SLAResetMode controls the SLA clock when a ticket is reopened.
type SLAResetMode string

const (
	SLAResetContinue SLAResetMode = "continue"
	SLAResetReset    SLAResetMode = "reset"
	SLAResetNewSLA   SLAResetMode = "new_sla"
)

// Valid reports whether m is a known mode.
func (m SLAResetMode) Valid() bool {
	return m == SLAResetContinue || m == SLAResetReset || m == SLAResetNewSLA
}

const (
	MinReopenWindowDays = 1
	MaxReopenWindowDays = 365
	MinReopenCount      = 1
	MaxReopenCount      = 10
)

// ReopenConfig is the process-wide reopen policy. Each update writes a new
// version.
type ReopenConfig struct {
	Version             int          `yaml:"-"`
	ReopenWindowDays    int          `yaml:"reopen_window_days"`
	MaxReopenCount      int          `yaml:"max_reopen_count"`
	SLAResetMode        SLAResetMode `yaml:"sla_reset_mode"`
	RequireReopenReason bool         `yaml:"require_reopen_reason"`
	NotifyAssignee      bool         `yaml:"notify_assignee"`
	NotifyManager       bool         `yaml:"notify_manager"`
	UpdatedBy           *string      `yaml:"-"`
	UpdatedAt           time.Time    `yaml:"-"`
}

// DefaultReopenConfig is used when nothing has been persisted or seeded.
func DefaultReopenConfig() ReopenConfig {
	return ReopenConfig{
		ReopenWindowDays:    7,
		MaxReopenCount:      3,
		SLAResetMode:        SLAResetContinue,
		RequireReopenReason: true,
		NotifyAssignee:      true,
		NotifyManager:       false,
	}
}

// Validate checks the configured ranges.
func (c ReopenConfig) Validate() map[string]any {
	problems := map[string]any{}
	if c.ReopenWindowDays < MinReopenWindowDays || c.ReopenWindowDays > MaxReopenWindowDays {
		problems["reopen_window_days"] = fmt.Sprintf("must be between %d and %d", MinReopenWindowDays, MaxReopenWindowDays)
	}
	if c.MaxReopenCount < MinReopenCount || c.MaxReopenCount > MaxReopenCount {
		problems["max_reopen_count"] = fmt.Sprintf("must be between %d and %d", MinReopenCount, MaxReopenCount)
	}
	if !c.SLAResetMode.Valid() {
		problems["sla_reset_mode"] = "must be one of continue, reset, new_sla"
	}
	if len(problems) == 0 {
		return nil
	}
	return problems
}

// ReopenConfigPatch lists the fields an admin may change. Nil fields keep the
// current value.
type ReopenConfigPatch struct {
	ReopenWindowDays    *int
	MaxReopenCount      *int
	SLAResetMode        *SLAResetMode
	RequireReopenReason *bool
	NotifyAssignee      *bool
	NotifyManager       *bool
}

// Merge returns base with the patch applied.
func (p ReopenConfigPatch) Merge(base ReopenConfig) ReopenConfig {
	out := base
	if p.ReopenWindowDays != nil {
		out.ReopenWindowDays = *p.ReopenWindowDays
	}
	if p.MaxReopenCount != nil {
		out.MaxReopenCount = *p.MaxReopenCount
	}
	if p.SLAResetMode != nil {
		out.SLAResetMode = *p.SLAResetMode
	}
	if p.RequireReopenReason != nil {
		out.RequireReopenReason = *p.RequireReopenReason
	}
	if p.NotifyAssignee != nil {
		out.NotifyAssignee = *p.NotifyAssignee
	}
	if p.NotifyManager != nil {
		out.NotifyManager = *p.NotifyManager
	}
	return out
}

// ReopenEvent is an append-only record of a reopen.
type ReopenEvent struct {
	ID           string
	TicketID     string
	ReopenNumber int
	ReopenedBy   string
	ReopenReason string
	SLAResetMode SLAResetMode
	ReopenedAt   time.Time
}

// Reasons a ticket cannot be reopened.
const (
	ReopenReasonNotClosed     = "not closed"
	ReopenReasonWindowExpired = "window expired"
	ReopenReasonMaxReached    = "max reopens reached"
)

// ReopenEligibility is the result of a reopen eligibility check.
type ReopenEligibility struct {
	TicketID         string
	CanReopen        bool
	Reason           string
	RemainingReopens int
	DaysRemaining    int
	MaxReopenCount   int
	ReopenWindowDays int
}

// EvaluateReopen decides whether ticket can be reopened at now under cfg.
// The ticket's override, when set, replaces cfg.MaxReopenCount.
func EvaluateReopen(ticket *Ticket, cfg ReopenConfig, now time.Time) ReopenEligibility {
	maxCount := cfg.MaxReopenCount
	if ticket.MaxReopenCountOverride != nil {
		maxCount = *ticket.MaxReopenCountOverride
	}
	result := ReopenEligibility{
		TicketID:         ticket.ID,
		MaxReopenCount:   maxCount,
		ReopenWindowDays: cfg.ReopenWindowDays,
		RemainingReopens: maxCount - ticket.ReopenCount,
	}
	if result.RemainingReopens < 0 {
		result.RemainingReopens = 0
	}

	if ticket.Status != TicketStatusClosed {
		result.Reason = ReopenReasonNotClosed
		return result
	}
	// A closed ticket without a closure time cannot be placed in a window.
	if ticket.ClosedAt == nil {
		result.Reason = ReopenReasonWindowExpired
		return result
	}

	elapsed := now.Sub(*ticket.ClosedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	window := time.Duration(cfg.ReopenWindowDays) * 24 * time.Hour
	elapsedDays := int(elapsed / (24 * time.Hour))
	result.DaysRemaining = cfg.ReopenWindowDays - elapsedDays
	if result.DaysRemaining < 0 {
		result.DaysRemaining = 0
	}

	if elapsed > window {
		result.DaysRemaining = 0
		result.Reason = ReopenReasonWindowExpired
		return result
	}
	if ticket.ReopenCount >= maxCount {
		result.Reason = ReopenReasonMaxReached
		return result
	}
	result.CanReopen = true
	return result
}
