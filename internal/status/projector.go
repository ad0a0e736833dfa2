// Package status derives read-only, display-oriented views from ledger
// state. Nothing here mutates the ledger.
package status

import (
	"time"

	"splitrails/internal/escrow"
)

// Urgency buckets time-to-deadline for display prioritization. It is not a
// ledger concept.
type Urgency string

const (
	UrgencyExpired  Urgency = "expired"
	UrgencyCritical Urgency = "critical" // less than 24h to deadline
	UrgencyWarning  Urgency = "warning"  // less than 72h to deadline
	UrgencyNormal   Urgency = "normal"
)

// Snapshot is one observation of a bill's ledger state plus the derived
// booleans consumers render from.
type Snapshot struct {
	Info       escrow.BillInfo
	IsComplete bool
	IsExpired  bool
	Urgency    Urgency
	ObservedAt time.Time
}

// Project derives a snapshot from ledger state at the given time.
func Project(info escrow.BillInfo, now time.Time) Snapshot {
	return Snapshot{
		Info:       info,
		IsComplete: info.PaidCount == info.ParticipantCount,
		IsExpired:  now.After(info.Deadline),
		Urgency:    urgency(info, now),
		ObservedAt: now,
	}
}

func urgency(info escrow.BillInfo, now time.Time) Urgency {
	remaining := info.Deadline.Sub(now)
	switch {
	case remaining <= 0:
		return UrgencyExpired
	case remaining < 24*time.Hour:
		return UrgencyCritical
	case remaining < 72*time.Hour:
		return UrgencyWarning
	default:
		return UrgencyNormal
	}
}
