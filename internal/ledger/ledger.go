package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hostly/referral-engine/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Triggers receives referral transitions after they have been persisted.
// Implementations must never fail or block the triggering transition; the
// fraud dispatcher satisfies this interface.
type Triggers interface {
	ReferralCreated(record *models.ReferralRecord)
	ReferralSignedUp(referrerID uuid.UUID, at time.Time)
	ReferralConverted(record *models.ReferralRecord, at time.Time)
}

// Ledger is the persistent lifecycle store for referral relationships
type Ledger struct {
	db       *gorm.DB
	triggers Triggers
	log      *logrus.Entry
}

// NewLedger creates a new referral ledger. Triggers may be nil.
func NewLedger(db *gorm.DB, triggers Triggers) *Ledger {
	return &Ledger{
		db:       db,
		triggers: triggers,
		log:      logrus.WithField("component", "ledger"),
	}
}

// CreateReferred records that a referrer shared a link: a new outstanding
// referral with no referred user attached yet.
func (l *Ledger) CreateReferred(referrerID uuid.UUID, ip string) (*models.ReferralRecord, error) {
	record := models.ReferralRecord{
		ReferrerID: referrerID,
		Status:     models.ReferralStatusReferred,
		IPAddress:  ip,
	}

	if err := l.db.Create(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to create referral record: %w", err)
	}

	if l.triggers != nil {
		l.triggers.ReferralCreated(&record)
	}

	return &record, nil
}

// UpsertOnSignup stamps the attribution result at signup time. It claims the
// single oldest outstanding referred record for the referrer, or creates a
// signed_up record directly when none is outstanding. The stamped referrer is
// permanent and never re-evaluated.
func (l *Ledger) UpsertOnSignup(referrerID, referredUserID uuid.UUID, method models.AttributionMethod, now time.Time) (*models.ReferralRecord, error) {
	var record models.ReferralRecord

	err := l.db.Transaction(func(tx *gorm.DB) error {
		err := tx.
			Where("referrer_id = ? AND referred_user_id IS NULL AND status = ?",
				referrerID, models.ReferralStatusReferred).
			Order("created_at ASC").
			First(&record).Error

		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to find outstanding referral: %w", err)
			}
			record = models.ReferralRecord{
				ReferrerID:        referrerID,
				ReferredUserID:    &referredUserID,
				Status:            models.ReferralStatusSignedUp,
				AttributionMethod: method,
				SignedUpAt:        &now,
			}
			if err := tx.Create(&record).Error; err != nil {
				return fmt.Errorf("failed to create referral record: %w", err)
			}
			return nil
		}

		record.ReferredUserID = &referredUserID
		record.Status = models.ReferralStatusSignedUp
		record.AttributionMethod = method
		record.SignedUpAt = &now
		if err := tx.Save(&record).Error; err != nil {
			return fmt.Errorf("failed to update referral record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if l.triggers != nil {
		l.triggers.ReferralSignedUp(referrerID, now)
	}

	return &record, nil
}

// MarkConverted transitions the (referrer, referred_user) relationship to
// converted exactly once, guarded by a conditional predicate rather than a
// lock. Repeat calls for the same pair are no-ops, which is what enforces
// first-booking-only commission semantics. Participates in the caller's
// transaction and returns whether a transition actually happened.
func (l *Ledger) MarkConverted(tx *gorm.DB, referrerID, referredUserID, bookingID, transactionID uuid.UUID, now time.Time) (bool, error) {
	res := tx.Model(&models.ReferralRecord{}).
		Where("referrer_id = ? AND referred_user_id = ? AND status != ?",
			referrerID, referredUserID, models.ReferralStatusConverted).
		Updates(map[string]interface{}{
			"status":         models.ReferralStatusConverted,
			"booking_id":     bookingID,
			"transaction_id": transactionID,
			"converted_at":   now,
			"updated_at":     now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark referral converted: %w", res.Error)
	}

	return res.RowsAffected > 0, nil
}

// FindByPair loads the referral relationship between a referrer and a
// referred user, if one exists.
func (l *Ledger) FindByPair(referrerID, referredUserID uuid.UUID) (*models.ReferralRecord, error) {
	var record models.ReferralRecord
	err := l.db.
		Where("referrer_id = ? AND referred_user_id = ?", referrerID, referredUserID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load referral record: %w", err)
	}
	return &record, nil
}

// MarkStaleReferredLost flips outstanding referred records older than the
// cutoff to lost. Run by the scheduled expiry job.
func (l *Ledger) MarkStaleReferredLost(olderThan time.Time) (int64, error) {
	res := l.db.Model(&models.ReferralRecord{}).
		Where("status = ? AND referred_user_id IS NULL AND created_at < ?",
			models.ReferralStatusReferred, olderThan).
		Updates(map[string]interface{}{
			"status":     models.ReferralStatusLost,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to expire referrals: %w", res.Error)
	}

	if res.RowsAffected > 0 {
		l.log.WithField("count", res.RowsAffected).Info("expired stale referrals")
	}
	return res.RowsAffected, nil
}
