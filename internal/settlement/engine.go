package settlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hostly/referral-engine/internal/config"
	"github.com/hostly/referral-engine/internal/ledger"
	"github.com/hostly/referral-engine/internal/models"
	"github.com/hostly/referral-engine/internal/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Engine converts one completed payment event into its final, idempotent set
// of ledger transactions.
type Engine struct {
	db       *gorm.DB
	cfg      config.ReferralConfig
	ledger   *ledger.Ledger
	triggers ledger.Triggers
	log      *logrus.Entry
}

// NewEngine creates a new settlement engine. Triggers may be nil.
func NewEngine(db *gorm.DB, cfg config.ReferralConfig, ledg *ledger.Ledger, triggers ledger.Triggers) *Engine {
	return &Engine{
		db:       db,
		cfg:      cfg,
		ledger:   ledg,
		triggers: triggers,
		log:      logrus.WithField("component", "settlement"),
	}
}

// Settle splits a pending payment event into platform fee, provider payout
// and, when the booking carries a stamped referrer whose relationship has not
// yet converted, a referral commission. All writes happen in one transaction;
// any failure aborts the whole settlement. A missing or already-paid event is
// a silent no-op so at-least-once callers can redeliver freely.
func (e *Engine) Settle(paymentEventID uuid.UUID) error {
	var convertedPair *[2]uuid.UUID

	err := e.db.Transaction(func(tx *gorm.DB) error {
		var event models.PaymentEvent
		err := forUpdate(tx).First(&event, "id = ?", paymentEventID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("failed to load payment event: %w", err)
		}
		if event.Status != models.PaymentEventStatusPending {
			// A concurrent or earlier settlement already handled this event.
			return nil
		}

		now := time.Now()
		amount := event.Amount

		// Full-amount debit against the payer.
		if err := e.record(tx, &event, &event.PayerID, models.TransactionTypeBookingPayment, amount.Neg()); err != nil {
			return err
		}

		platformFee := amount.Mul(e.cfg.PlatformFeeRate).Round(2)
		providerPayout := amount.Sub(platformFee)

		if event.ReferrerID != nil {
			directReferrer := *event.ReferrerID

			var listing models.Listing
			if err := tx.First(&listing, "id = ?", event.ListingID).Error; err != nil {
				return fmt.Errorf("failed to load listing: %w", err)
			}

			// Delegation fires only when the listing owner referred their own
			// client and pre-registered a delegate. A third-party referrer is
			// never redirected.
			recipient := directReferrer
			if listing.DelegateCommissionTo != nil && directReferrer == listing.OwnerID {
				recipient = *listing.DelegateCommissionTo
			}

			// Conversion credit keys on the original direct referrer, not the
			// delegated payee, and a relationship converts at most once. Only
			// an actual transition earns a commission: repeat bookings from
			// the same referred user pay the full provider share.
			commissionTxID := uuid.New()
			converted, err := e.ledger.MarkConverted(tx, directReferrer, event.PayerID, event.BookingID, commissionTxID, now)
			if err != nil {
				return err
			}

			if converted {
				commission := amount.Mul(e.cfg.CommissionRate).Round(2)
				providerPayout = providerPayout.Sub(commission)

				commissionTx := models.TransactionRecord{
					ID:        commissionTxID,
					ProfileID: &recipient,
					BookingID: event.BookingID,
					Type:      models.TransactionTypeReferralCommission,
					Status:    models.TransactionStatusCompleted,
					Amount:    commission,
					Reference: utils.GenerateReference("COM"),
				}
				if err := tx.Create(&commissionTx).Error; err != nil {
					return fmt.Errorf("failed to record commission: %w", err)
				}

				convertedPair = &[2]uuid.UUID{directReferrer, event.PayerID}
			}
		}

		if err := e.record(tx, &event, &event.PayeeID, models.TransactionTypeProviderPayout, providerPayout); err != nil {
			return err
		}
		if err := e.record(tx, &event, nil, models.TransactionTypePlatformFee, platformFee); err != nil {
			return err
		}

		res := tx.Model(&models.PaymentEvent{}).
			Where("id = ? AND status = ?", event.ID, models.PaymentEventStatusPending).
			Updates(map[string]interface{}{
				"status":     models.PaymentEventStatusPaid,
				"updated_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to mark payment event paid: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("payment event %s changed state during settlement", event.ID)
		}

		e.log.WithFields(logrus.Fields{
			"payment_event": event.ID,
			"booking":       event.BookingID,
			"commission":    convertedPair != nil,
		}).Info("payment event settled")
		return nil
	})
	if err != nil {
		return err
	}

	if convertedPair != nil && e.triggers != nil {
		record, err := e.ledger.FindByPair(convertedPair[0], convertedPair[1])
		if err != nil {
			e.log.WithError(err).Warn("failed to load converted referral for fraud trigger")
		} else if record != nil {
			e.triggers.ReferralConverted(record, time.Now())
		}
	}

	return nil
}

// record appends one settlement transaction row
func (e *Engine) record(tx *gorm.DB, event *models.PaymentEvent, profileID *uuid.UUID, txType models.TransactionType, amount decimal.Decimal) error {
	row := models.TransactionRecord{
		ProfileID: profileID,
		BookingID: event.BookingID,
		Type:      txType,
		Status:    models.TransactionStatusCompleted,
		Amount:    amount,
		Reference: utils.GenerateReference("STL"),
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to record %s transaction: %w", txType, err)
	}
	return nil
}

// forUpdate takes an exclusive row lock where the dialect supports it.
// sqlite, used in tests, has no FOR UPDATE; its single-writer model gives the
// same serialization there.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
