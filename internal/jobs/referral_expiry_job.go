package jobs

import (
	"time"

	"github.com/go-co-op/gocron"
	"github.com/hostly/referral-engine/internal/ledger"
	"github.com/sirupsen/logrus"
)

// ReferralExpiryJob marks outstanding referred records as lost once the
// expiry window has passed with no signup claiming them.
type ReferralExpiryJob struct {
	ledger     *ledger.Ledger
	expiryDays int
	log        *logrus.Entry
}

// NewReferralExpiryJob creates a new referral expiry job
func NewReferralExpiryJob(ledg *ledger.Ledger, expiryDays int) *ReferralExpiryJob {
	return &ReferralExpiryJob{
		ledger:     ledg,
		expiryDays: expiryDays,
		log:        logrus.WithField("component", "referral-expiry-job"),
	}
}

// Schedule registers the daily expiry run on the scheduler
func (j *ReferralExpiryJob) Schedule(s *gocron.Scheduler) error {
	_, err := s.Every(1).Day().At("03:00").Do(j.Run)
	return err
}

// Run expires stale referred records
func (j *ReferralExpiryJob) Run() {
	cutoff := time.Now().AddDate(0, 0, -j.expiryDays)
	count, err := j.ledger.MarkStaleReferredLost(cutoff)
	if err != nil {
		j.log.WithError(err).Error("referral expiry run failed")
		return
	}
	j.log.WithField("expired", count).Info("referral expiry run completed")
}
