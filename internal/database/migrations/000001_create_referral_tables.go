package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/hostly/referral-engine/internal/models"
	"gorm.io/gorm"
)

// CreateReferralTables creates the core schema: profiles, listings, the
// referral ledger, payment events, settlement transactions and fraud signals.
func CreateReferralTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_referral_tables",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.Profile{},
				&models.Listing{},
				&models.ReferralRecord{},
				&models.PaymentEvent{},
				&models.TransactionRecord{},
				&models.FraudSignal{},
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				"fraud_signals",
				"transaction_records",
				"payment_events",
				"referral_records",
				"listings",
				"profiles",
			)
		},
	}
}
