package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hostly/referral-engine/internal/fraud"
	"github.com/hostly/referral-engine/internal/models"
	"github.com/hostly/referral-engine/internal/queue"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// FraudEvaluationJob runs detector evaluations dequeued from the async path
type FraudEvaluationJob struct {
	db       *gorm.DB
	detector *fraud.Detector
	log      *logrus.Entry
}

// NewFraudEvaluationJob creates a new fraud evaluation job handler
func NewFraudEvaluationJob(db *gorm.DB, detector *fraud.Detector) *FraudEvaluationJob {
	return &FraudEvaluationJob{
		db:       db,
		detector: detector,
		log:      logrus.WithField("component", "fraud-evaluation-job"),
	}
}

// RegisterFraudEvaluationJobHandlers registers the fraud evaluation handler
func RegisterFraudEvaluationJobHandlers(w *queue.Worker, db *gorm.DB, detector *fraud.Detector) {
	handler := NewFraudEvaluationJob(db, detector)
	w.RegisterHandler(queue.QueueFraudEvaluation, handler.Evaluate)
}

// Evaluate dispatches one queued transition to the matching detector check
func (j *FraudEvaluationJob) Evaluate(ctx context.Context, job queue.Job) error {
	var payload fraud.EvaluationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal fraud evaluation payload: %w", err)
	}

	switch payload.Trigger {
	case fraud.TriggerSignedUp:
		return j.detector.EvaluateSignupVelocity(payload.ReferrerID, payload.At)

	case fraud.TriggerCreated, fraud.TriggerConverted:
		if payload.ReferralID == nil {
			return nil
		}
		var record models.ReferralRecord
		if err := j.db.First(&record, "id = ?", payload.ReferralID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("failed to load referral record: %w", err)
		}
		if payload.Trigger == fraud.TriggerCreated {
			return j.detector.EvaluateIPCluster(&record, payload.At)
		}
		return j.detector.EvaluateConversionSpeed(&record, payload.At)

	default:
		j.log.WithField("trigger", payload.Trigger).Warn("unknown fraud evaluation trigger")
		return nil
	}
}
