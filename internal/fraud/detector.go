package fraud

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hostly/referral-engine/internal/config"
	"github.com/hostly/referral-engine/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// baselineHours is the size of the trailing-7-day baseline window for the
// velocity check, excluding the current hour.
const baselineHours = 7*24 - 1

// Detector evaluates referral transitions against historical baselines and
// raises advisory fraud signals. Signals never alter or block the transition
// that triggered them.
type Detector struct {
	db  *gorm.DB
	cfg config.FraudConfig
	log *logrus.Entry
}

// NewDetector creates a new fraud signal detector
func NewDetector(db *gorm.DB, cfg config.FraudConfig) *Detector {
	return &Detector{
		db:  db,
		cfg: cfg,
		log: logrus.WithField("component", "fraud"),
	}
}

// EvaluateSignupVelocity checks a referrer's signed-up transitions in the
// trailing hour against the trailing-7-day hourly average (current hour
// excluded). A zero baseline disables the relative check; the absolute
// thresholds still apply. At most one signal is raised per evaluation, with
// critical taking precedence.
func (d *Detector) EvaluateSignupVelocity(referrerID uuid.UUID, now time.Time) error {
	var current int64
	err := d.db.Model(&models.ReferralRecord{}).
		Where("referrer_id = ? AND signed_up_at > ?", referrerID, now.Add(-time.Hour)).
		Count(&current).Error
	if err != nil {
		return fmt.Errorf("failed to count recent signups: %w", err)
	}

	var baseline int64
	err = d.db.Model(&models.ReferralRecord{}).
		Where("referrer_id = ? AND signed_up_at > ? AND signed_up_at <= ?",
			referrerID, now.Add(-7*24*time.Hour), now.Add(-time.Hour)).
		Count(&baseline).Error
	if err != nil {
		return fmt.Errorf("failed to count baseline signups: %w", err)
	}

	hourlyAverage := float64(baseline) / float64(baselineHours)

	var severity models.FraudSeverity
	switch {
	case current >= int64(d.cfg.VelocityCriticalCount):
		severity = models.FraudSeverityCritical
	case current >= int64(d.cfg.VelocityHighCount):
		severity = models.FraudSeverityHigh
	case hourlyAverage > 0 && float64(current) > d.cfg.VelocityMultiplier*hourlyAverage:
		severity = models.FraudSeverityHigh
	default:
		return nil
	}

	return d.raise(nil, referrerID, models.FraudSignalTypeVelocitySpike, severity, models.JSON{
		"signups_last_hour": current,
		"hourly_average":    hourlyAverage,
	})
}

// EvaluateIPCluster checks how many referrals the same referrer created from
// the same IP in the trailing 24 hours.
func (d *Detector) EvaluateIPCluster(record *models.ReferralRecord, now time.Time) error {
	if record.IPAddress == "" {
		return nil
	}

	var count int64
	err := d.db.Model(&models.ReferralRecord{}).
		Where("referrer_id = ? AND ip_address = ? AND created_at > ?",
			record.ReferrerID, record.IPAddress, now.Add(-24*time.Hour)).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("failed to count same-ip referrals: %w", err)
	}

	var severity models.FraudSeverity
	switch {
	case count > d.cfg.IPClusterCritical:
		severity = models.FraudSeverityCritical
	case count > d.cfg.IPClusterHigh:
		severity = models.FraudSeverityHigh
	default:
		return nil
	}

	return d.raise(&record.ID, record.ReferrerID, models.FraudSignalTypeSameIPCluster, severity, models.JSON{
		"ip_address":       record.IPAddress,
		"referrals_in_24h": count,
	})
}

// EvaluateConversionSpeed flags a conversion arriving implausibly fast after
// the referral was created, which genuine human behavior does not produce.
func (d *Detector) EvaluateConversionSpeed(record *models.ReferralRecord, now time.Time) error {
	if record.ConvertedAt == nil {
		return nil
	}

	elapsed := record.ConvertedAt.Sub(record.CreatedAt)
	if elapsed >= d.cfg.FastConversionWindow {
		return nil
	}

	return d.raise(&record.ID, record.ReferrerID, models.FraudSignalTypeFastConversion, models.FraudSeverityMedium, models.JSON{
		"elapsed_seconds": elapsed.Seconds(),
		"window_seconds":  d.cfg.FastConversionWindow.Seconds(),
	})
}

// raise persists an advisory signal awaiting human triage
func (d *Detector) raise(referralID *uuid.UUID, agentID uuid.UUID, signalType models.FraudSignalType, severity models.FraudSeverity, data models.JSON) error {
	signal := models.FraudSignal{
		ReferralID: referralID,
		AgentID:    agentID,
		SignalType: signalType,
		Severity:   severity,
		SignalData: data,
		Status:     models.FraudSignalStatusPending,
	}

	if err := d.db.Create(&signal).Error; err != nil {
		return fmt.Errorf("failed to create fraud signal: %w", err)
	}

	d.log.WithFields(logrus.Fields{
		"signal_type": signalType,
		"severity":    severity,
		"agent_id":    agentID,
	}).Warn("fraud signal raised")

	return nil
}

// ReviewSignal applies a human triage decision to a signal's status. The
// signal itself is immutable; only status moves.
func (d *Detector) ReviewSignal(signalID uuid.UUID, status models.FraudSignalStatus) (*models.FraudSignal, error) {
	var signal models.FraudSignal
	if err := d.db.First(&signal, "id = ?", signalID).Error; err != nil {
		return nil, fmt.Errorf("failed to load fraud signal: %w", err)
	}

	signal.Status = status
	signal.UpdatedAt = time.Now()
	if err := d.db.Save(&signal).Error; err != nil {
		return nil, fmt.Errorf("failed to update fraud signal: %w", err)
	}

	return &signal, nil
}

// ListSignals returns signals for the admin review surface, newest first
func (d *Detector) ListSignals(status models.FraudSignalStatus, limit int) ([]models.FraudSignal, error) {
	query := d.db.Model(&models.FraudSignal{}).Order("created_at DESC").Limit(limit)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var signals []models.FraudSignal
	if err := query.Find(&signals).Error; err != nil {
		return nil, fmt.Errorf("failed to list fraud signals: %w", err)
	}
	return signals, nil
}
