package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReferralStatus represents the lifecycle state of a referral relationship
type ReferralStatus string

const (
	ReferralStatusReferred  ReferralStatus = "referred"
	ReferralStatusSignedUp  ReferralStatus = "signed_up"
	ReferralStatusConverted ReferralStatus = "converted"
	ReferralStatusLost      ReferralStatus = "lost"
)

// AttributionMethod identifies which input won attribution at signup
type AttributionMethod string

const (
	AttributionMethodURL    AttributionMethod = "url_parameter"
	AttributionMethodCookie AttributionMethod = "cookie"
	AttributionMethodManual AttributionMethod = "manual_entry"
)

// ReferralRecord represents a referral relationship between a referrer and a
// referred user. ReferrerID is immutable once a referred user is attached, and
// at most one converted transition may occur per (referrer, referred_user)
// pair: a referrer is paid once per relationship lifetime, not per booking.
type ReferralRecord struct {
	ID                uuid.UUID         `gorm:"type:uuid;primary_key" json:"id"`
	ReferrerID        uuid.UUID         `gorm:"type:uuid;not null;index" json:"referrer_id"`
	Referrer          Profile           `gorm:"foreignKey:ReferrerID" json:"-"`
	ReferredUserID    *uuid.UUID        `gorm:"type:uuid;index" json:"referred_user_id,omitempty"`
	Status            ReferralStatus    `gorm:"type:varchar(20);not null;default:'referred';index" json:"status"`
	AttributionMethod AttributionMethod `gorm:"type:varchar(30)" json:"attribution_method,omitempty"`
	BookingID         *uuid.UUID        `gorm:"type:uuid" json:"booking_id,omitempty"`
	TransactionID     *uuid.UUID        `gorm:"type:uuid" json:"transaction_id,omitempty"`
	IPAddress         string            `gorm:"type:varchar(45)" json:"ip_address"`
	SignedUpAt        *time.Time        `gorm:"index" json:"signed_up_at,omitempty"`
	ConvertedAt       *time.Time        `json:"converted_at,omitempty"`
	CreatedAt         time.Time         `gorm:"default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt         gorm.DeletedAt    `gorm:"index" json:"-"`
}

// BeforeCreate will set a UUID rather than relying on a database default
func (r *ReferralRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
