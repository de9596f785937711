package attribution

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hostly/referral-engine/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Context carries the up-to-three optional attribution inputs collected by
// the signup collaborator. All fields are opaque strings and may be empty.
type Context struct {
	URLCode     string `json:"url_code,omitempty"`
	CookieToken string `json:"cookie_token,omitempty"`
	ManualCode  string `json:"manual_code,omitempty"`
}

// Resolver picks exactly one referrer-of-record for a new signup
type Resolver struct {
	db        *gorm.DB
	validator *CookieValidator
	log       *logrus.Entry
}

// NewResolver creates a new attribution resolver
func NewResolver(db *gorm.DB, validator *CookieValidator) *Resolver {
	return &Resolver{
		db:        db,
		validator: validator,
		log:       logrus.WithField("component", "attribution"),
	}
}

// Resolve evaluates the three candidate inputs in strict priority order and
// returns the winning referrer and method, or (nil, "") for an organic
// signup. Evaluated exactly once at signup; the result is stamped into the
// ledger and never re-evaluated. An invalid cookie is an expected branch: it
// is logged and resolution falls through to the next tier.
func (r *Resolver) Resolve(ctx Context, newUserID uuid.UUID) (*uuid.UUID, models.AttributionMethod, error) {
	if ctx.URLCode != "" {
		referrerID, err := r.lookupCode(ctx.URLCode, newUserID)
		if err != nil {
			return nil, "", err
		}
		if referrerID != nil {
			return referrerID, models.AttributionMethodURL, nil
		}
	}

	if ctx.CookieToken != "" {
		referrerID, err := r.resolveCookie(ctx.CookieToken)
		if err != nil {
			return nil, "", err
		}
		if referrerID != nil {
			return referrerID, models.AttributionMethodCookie, nil
		}
	}

	if ctx.ManualCode != "" {
		referrerID, err := r.lookupCode(ctx.ManualCode, newUserID)
		if err != nil {
			return nil, "", err
		}
		if referrerID != nil {
			return referrerID, models.AttributionMethodManual, nil
		}
	}

	// Organic signup: nothing matched.
	return nil, "", nil
}

// lookupCode finds a profile by referral code, case-insensitively. A code
// resolving to the new user itself yields no match: self-referral is
// structurally impossible because lookup targets an existing referrer.
func (r *Resolver) lookupCode(code string, newUserID uuid.UUID) (*uuid.UUID, error) {
	var profile models.Profile
	err := r.db.
		Where("LOWER(referral_code) = LOWER(?) AND id != ?", code, newUserID).
		First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up referral code: %w", err)
	}
	return &profile.ID, nil
}

// resolveCookie validates the tracking token and resolves its referrer. The
// token only wins attribution while the referenced referral record is an
// outstanding, unconsumed share (status referred). Validation failures are
// non-fatal and fall through to the next tier.
func (r *Resolver) resolveCookie(token string) (*uuid.UUID, error) {
	referralID, err := r.validator.Verify(token)
	if err != nil {
		r.log.WithError(err).Warn("invalid tracking cookie, falling through")
		return nil, nil
	}

	var record models.ReferralRecord
	err = r.db.
		Where("id = ? AND status = ?", referralID, models.ReferralStatusReferred).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load referral record: %w", err)
	}
	return &record.ReferrerID, nil
}
