package models

import (
	"github.com/google/uuid"
)

// Listing carries the delegation configuration consulted by settlement.
// DelegateCommissionTo redirects the commission payee only when the direct
// referrer of a booking is also the listing owner.
type Listing struct {
	Base
	OwnerID              uuid.UUID  `gorm:"type:uuid;not null;index" json:"owner_id"`
	Owner                Profile    `gorm:"foreignKey:OwnerID" json:"-"`
	Title                string     `gorm:"type:varchar(255);not null" json:"title"`
	DelegateCommissionTo *uuid.UUID `gorm:"type:uuid" json:"delegate_commission_to,omitempty"`
}
