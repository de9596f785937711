package fraud

import (
	"time"

	"github.com/google/uuid"
	"github.com/hostly/referral-engine/internal/models"
	"github.com/hostly/referral-engine/internal/queue"
	"github.com/sirupsen/logrus"
)

// Evaluation triggers carried in async job payloads
const (
	TriggerCreated   = "created"
	TriggerSignedUp  = "signed_up"
	TriggerConverted = "converted"
)

// EvaluationPayload is the job payload for an async fraud evaluation
type EvaluationPayload struct {
	Trigger    string     `json:"trigger"`
	ReferralID *uuid.UUID `json:"referral_id,omitempty"`
	ReferrerID uuid.UUID  `json:"referrer_id"`
	At         time.Time  `json:"at"`
}

// Dispatcher routes ledger transitions to the detector. In sync mode the
// detector runs inline right after the triggering transition persists; in
// async mode an evaluation job is enqueued instead. Either way a detector
// failure is logged and never propagated to the triggering flow.
type Dispatcher struct {
	detector *Detector
	queue    queue.Enqueuer
	log      *logrus.Entry
}

// NewDispatcher creates a dispatcher. Pass a nil queue for synchronous dispatch.
func NewDispatcher(detector *Detector, q queue.Enqueuer) *Dispatcher {
	return &Dispatcher{
		detector: detector,
		queue:    q,
		log:      logrus.WithField("component", "fraud-dispatch"),
	}
}

// ReferralCreated triggers the same-IP cluster check
func (d *Dispatcher) ReferralCreated(record *models.ReferralRecord) {
	if d.enqueue(EvaluationPayload{
		Trigger:    TriggerCreated,
		ReferralID: &record.ID,
		ReferrerID: record.ReferrerID,
		At:         time.Now(),
	}) {
		return
	}
	if err := d.detector.EvaluateIPCluster(record, time.Now()); err != nil {
		d.log.WithError(err).Warn("ip cluster evaluation failed")
	}
}

// ReferralSignedUp triggers the velocity spike check
func (d *Dispatcher) ReferralSignedUp(referrerID uuid.UUID, at time.Time) {
	if d.enqueue(EvaluationPayload{
		Trigger:    TriggerSignedUp,
		ReferrerID: referrerID,
		At:         at,
	}) {
		return
	}
	if err := d.detector.EvaluateSignupVelocity(referrerID, at); err != nil {
		d.log.WithError(err).Warn("velocity evaluation failed")
	}
}

// ReferralConverted triggers the fast conversion check
func (d *Dispatcher) ReferralConverted(record *models.ReferralRecord, at time.Time) {
	if d.enqueue(EvaluationPayload{
		Trigger:    TriggerConverted,
		ReferralID: &record.ID,
		ReferrerID: record.ReferrerID,
		At:         at,
	}) {
		return
	}
	if err := d.detector.EvaluateConversionSpeed(record, at); err != nil {
		d.log.WithError(err).Warn("conversion speed evaluation failed")
	}
}

// enqueue tries the async path and reports whether it handled the trigger
func (d *Dispatcher) enqueue(payload EvaluationPayload) bool {
	if d.queue == nil {
		return false
	}
	if _, err := d.queue.Enqueue(queue.QueueFraudEvaluation, payload); err != nil {
		// Fall back to inline evaluation rather than dropping the trigger.
		d.log.WithError(err).Warn("failed to enqueue fraud evaluation, running inline")
		return false
	}
	return true
}
