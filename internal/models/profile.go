package models

// Profile represents the minimal profile surface the referral engine needs:
// code lookup for attribution and payee identity for settlement. Full profile
// management lives in the identity service.
type Profile struct {
	Base
	DisplayName  string `gorm:"type:varchar(255);not null" json:"display_name"`
	Email        string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	ReferralCode string `gorm:"type:varchar(50);uniqueIndex;not null" json:"referral_code"`
	IsAdmin      bool   `gorm:"default:false" json:"is_admin"`
}
