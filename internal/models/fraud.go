package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FraudSignalType identifies which heuristic raised a signal
type FraudSignalType string

const (
	FraudSignalTypeVelocitySpike  FraudSignalType = "velocity_spike"
	FraudSignalTypeSameIPCluster  FraudSignalType = "same_ip_cluster"
	FraudSignalTypeFastConversion FraudSignalType = "fast_conversion"
)

// FraudSeverity grades a signal for triage
type FraudSeverity string

const (
	FraudSeverityLow      FraudSeverity = "low"
	FraudSeverityMedium   FraudSeverity = "medium"
	FraudSeverityHigh     FraudSeverity = "high"
	FraudSeverityCritical FraudSeverity = "critical"
)

// FraudSignalStatus tracks human review of a signal
type FraudSignalStatus string

const (
	FraudSignalStatusPending       FraudSignalStatus = "pending"
	FraudSignalStatusInvestigating FraudSignalStatus = "investigating"
	FraudSignalStatusConfirmed     FraudSignalStatus = "confirmed_fraud"
	FraudSignalStatusFalsePositive FraudSignalStatus = "false_positive"
)

// FraudSignal is an advisory flag raised by a heuristic detector. Signals
// never block the transition that triggered them; they are immutable except
// for status, which human review moves to confirmed_fraud or false_positive.
type FraudSignal struct {
	ID         uuid.UUID         `gorm:"type:uuid;primary_key" json:"id"`
	ReferralID *uuid.UUID        `gorm:"type:uuid;index" json:"referral_id,omitempty"`
	AgentID    uuid.UUID         `gorm:"type:uuid;not null;index" json:"agent_id"`
	SignalType FraudSignalType   `gorm:"type:varchar(30);not null;index" json:"signal_type"`
	Severity   FraudSeverity     `gorm:"type:varchar(10);not null" json:"severity"`
	SignalData JSON              `gorm:"type:jsonb" json:"signal_data"`
	Status     FraudSignalStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CreatedAt  time.Time         `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// BeforeCreate will set a UUID rather than relying on a database default
func (f *FraudSignal) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}
