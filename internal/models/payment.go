package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentEventStatus represents the status of a payment event
type PaymentEventStatus string

const (
	PaymentEventStatusPending PaymentEventStatus = "pending"
	PaymentEventStatusPaid    PaymentEventStatus = "paid"
)

// PaymentEvent represents one completed payment awaiting settlement.
// ReferrerID is stamped at booking creation from the payer's referral
// relationship and never changed afterwards.
type PaymentEvent struct {
	ID         uuid.UUID          `gorm:"type:uuid;primary_key" json:"id"`
	BookingID  uuid.UUID          `gorm:"type:uuid;not null;index" json:"booking_id"`
	PayerID    uuid.UUID          `gorm:"type:uuid;not null" json:"payer_id"`
	PayeeID    uuid.UUID          `gorm:"type:uuid;not null" json:"payee_id"`
	ReferrerID *uuid.UUID         `gorm:"type:uuid" json:"referrer_id,omitempty"`
	ListingID  uuid.UUID          `gorm:"type:uuid;not null" json:"listing_id"`
	Amount     decimal.Decimal    `gorm:"type:decimal(20,2);not null" json:"amount"`
	Status     PaymentEventStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CreatedAt  time.Time          `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time          `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// BeforeCreate will set a UUID rather than relying on a database default
func (p *PaymentEvent) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// TransactionType represents the role of a ledger transaction in a settlement
type TransactionType string

const (
	TransactionTypeBookingPayment     TransactionType = "booking_payment"
	TransactionTypeProviderPayout     TransactionType = "provider_payout"
	TransactionTypeReferralCommission TransactionType = "referral_commission"
	TransactionTypePlatformFee        TransactionType = "platform_fee"
)

// TransactionStatus represents the status of a ledger transaction
type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
)

// TransactionRecord is an append-only ledger row produced by settlement.
// ProfileID is nil for the platform fee row. Settlement guarantees at most
// one set of rows per PaymentEvent.
type TransactionRecord struct {
	ID        uuid.UUID         `gorm:"type:uuid;primary_key" json:"id"`
	ProfileID *uuid.UUID        `gorm:"type:uuid;index" json:"profile_id,omitempty"`
	BookingID uuid.UUID         `gorm:"type:uuid;not null;index" json:"booking_id"`
	Type      TransactionType   `gorm:"type:varchar(30);not null" json:"type"`
	Status    TransactionStatus `gorm:"type:varchar(20);not null" json:"status"`
	Amount    decimal.Decimal   `gorm:"type:decimal(20,2);not null" json:"amount"`
	Reference string            `gorm:"type:varchar(100);uniqueIndex" json:"reference"`
	CreatedAt time.Time         `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

// BeforeCreate will set a UUID rather than relying on a database default
func (t *TransactionRecord) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
