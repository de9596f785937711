package fraud

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/hostly/referral-engine/internal/config"
	"github.com/hostly/referral-engine/internal/database/migrations"
	"github.com/hostly/referral-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, migrations.RunMigrations(db))
	return db
}

func testFraudConfig() config.FraudConfig {
	return config.FraudConfig{
		VelocityCriticalCount: 20,
		VelocityHighCount:     10,
		VelocityMultiplier:    5,
		IPClusterCritical:     10,
		IPClusterHigh:         5,
		FastConversionWindow:  5 * time.Minute,
	}
}

func seedSignups(t *testing.T, db *gorm.DB, referrerID uuid.UUID, count int, signedUpAt time.Time) {
	t.Helper()

	for i := 0; i < count; i++ {
		at := signedUpAt
		user := uuid.New()
		record := models.ReferralRecord{
			ReferrerID:     referrerID,
			ReferredUserID: &user,
			Status:         models.ReferralStatusSignedUp,
			SignedUpAt:     &at,
		}
		require.NoError(t, db.Create(&record).Error)
	}
}

func signals(t *testing.T, db *gorm.DB) []models.FraudSignal {
	t.Helper()

	var got []models.FraudSignal
	require.NoError(t, db.Find(&got).Error)
	return got
}

func TestVelocityAbsoluteHighThreshold(t *testing.T) {
	db := openTestDB(t)
	detector := NewDetector(db, testFraudConfig())

	referrerID := uuid.New()
	now := time.Now()
	seedSignups(t, db, referrerID, 10, now.Add(-10*time.Minute))

	require.NoError(t, detector.EvaluateSignupVelocity(referrerID, now))

	got := signals(t, db)
	require.Len(t, got, 1)
	assert.Equal(t, models.FraudSignalTypeVelocitySpike, got[0].SignalType)
	assert.Equal(t, models.FraudSeverityHigh, got[0].Severity)
	assert.Equal(t, referrerID, got[0].AgentID)
	assert.Equal(t, models.FraudSignalStatusPending, got[0].Status)
}

func TestVelocityAbsoluteCriticalThreshold(t *testing.T) {
	db := openTestDB(t)
	detector := NewDetector(db, testFraudConfig())

	referrerID := uuid.New()
	now := time.Now()
	seedSignups(t, db, referrerID, 20, now.Add(-10*time.Minute))

	require.NoError(t, detector.EvaluateSignupVelocity(referrerID, now))

	got := signals(t, db)
	require.Len(t, got, 1)
	assert.Equal(t, models.FraudSeverityCritical, got[0].Severity)
}

func TestVelocityRelativeSpike(t *testing.T) {
	db := openTestDB(t)

	// Raise the absolute thresholds out of reach so only the relative check
	// can fire.
	cfg := testFraudConfig()
	cfg.VelocityHighCount = 100
	cfg.VelocityCriticalCount = 200
	detector := NewDetector(db, cfg)

	referrerID := uuid.New()
	now := time.Now()

	// Baseline of one signup per hour over the trailing week.
	seedSignups(t, db, referrerID, 167, now.Add(-3*time.Hour))
	// Six in the last hour is over five times that average.
	seedSignups(t, db, referrerID, 6, now.Add(-10*time.Minute))

	require.NoError(t, detector.EvaluateSignupVelocity(referrerID, now))

	got := signals(t, db)
	require.Len(t, got, 1)
	assert.Equal(t, models.FraudSeverityHigh, got[0].Severity)
}

func TestVelocityZeroBaselineDisablesRelativeCheck(t *testing.T) {
	db := openTestDB(t)

	cfg := testFraudConfig()
	cfg.VelocityHighCount = 100
	cfg.VelocityCriticalCount = 200
	detector := NewDetector(db, cfg)

	// Six signups in the first hour of a brand-new referrer: no baseline, no
	// absolute breach, no signal.
	referrerID := uuid.New()
	now := time.Now()
	seedSignups(t, db, referrerID, 6, now.Add(-10*time.Minute))

	require.NoError(t, detector.EvaluateSignupVelocity(referrerID, now))
	assert.Empty(t, signals(t, db))
}

func TestVelocityBelowThresholds(t *testing.T) {
	db := openTestDB(t)
	detector := NewDetector(db, testFraudConfig())

	referrerID := uuid.New()
	now := time.Now()
	seedSignups(t, db, referrerID, 3, now.Add(-10*time.Minute))

	require.NoError(t, detector.EvaluateSignupVelocity(referrerID, now))
	assert.Empty(t, signals(t, db))
}

func TestVelocityIgnoresOtherReferrers(t *testing.T) {
	db := openTestDB(t)
	detector := NewDetector(db, testFraudConfig())

	now := time.Now()
	seedSignups(t, db, uuid.New(), 25, now.Add(-10*time.Minute))

	require.NoError(t, detector.EvaluateSignupVelocity(uuid.New(), now))
	assert.Empty(t, signals(t, db))
}

func seedReferralsFromIP(t *testing.T, db *gorm.DB, referrerID uuid.UUID, ip string, count int, createdAt time.Time) *models.ReferralRecord {
	t.Helper()

	var last models.ReferralRecord
	for i := 0; i < count; i++ {
		last = models.ReferralRecord{
			ReferrerID: referrerID,
			Status:     models.ReferralStatusReferred,
			IPAddress:  ip,
			CreatedAt:  createdAt,
		}
		require.NoError(t, db.Create(&last).Error)
	}
	return &last
}

func TestIPClusterHigh(t *testing.T) {
	db := openTestDB(t)
	detector := NewDetector(db, testFraudConfig())

	referrerID := uuid.New()
	now := time.Now()
	record := seedReferralsFromIP(t, db, referrerID, "198.51.100.4", 6, now.Add(-time.Hour))

	require.NoError(t, detector.EvaluateIPCluster(record, now))

	got := signals(t, db)
	require.Len(t, got, 1)
	assert.Equal(t, models.FraudSignalTypeSameIPCluster, got[0].SignalType)
	assert.Equal(t, models.FraudSeverityHigh, got[0].Severity)
}

func TestIPClusterCritical(t *testing.T) {
	db := openTestDB(t)
	detector := NewDetector(db, testFraudConfig())

	referrerID := uuid.New()
	now := time.Now()
	record := seedReferralsFromIP(t, db, referrerID, "198.51.100.4", 11, now.Add(-time.Hour))

	require.NoError(t, detector.EvaluateIPCluster(record, now))

	got := signals(t, db)
	require.Len(t, got, 1)
	assert.Equal(t, models.FraudSeverityCritical, got[0].Severity)
}

func TestIPClusterIgnoresOldAndForeignReferrals(t *testing.T) {
	db := openTestDB(t)
	detector := NewDetector(db, testFraudConfig())

	referrerID := uuid.New()
	now := time.Now()

	// Old referrals from the same IP fall outside the 24h window.
	seedReferralsFromIP(t, db, referrerID, "198.51.100.4", 10, now.Add(-48*time.Hour))
	// Another referrer's cluster does not count against this one.
	seedReferralsFromIP(t, db, uuid.New(), "198.51.100.4", 10, now.Add(-time.Hour))

	record := seedReferralsFromIP(t, db, referrerID, "198.51.100.4", 1, now.Add(-time.Minute))
	require.NoError(t, detector.EvaluateIPCluster(record, now))
	assert.Empty(t, signals(t, db))
}

func TestIPClusterSkipsEmptyIP(t *testing.T) {
	db := openTestDB(t)
	detector := NewDetector(db, testFraudConfig())

	record := &models.ReferralRecord{ReferrerID: uuid.New()}
	require.NoError(t, detector.EvaluateIPCluster(record, time.Now()))
	assert.Empty(t, signals(t, db))
}

func TestFastConversion(t *testing.T) {
	db := openTestDB(t)
	detector := NewDetector(db, testFraudConfig())

	referrerID := uuid.New()
	created := time.Now().Add(-time.Minute)
	converted := time.Now()
	record := &models.ReferralRecord{
		ID:          uuid.New(),
		ReferrerID:  referrerID,
		Status:      models.ReferralStatusConverted,
		CreatedAt:   created,
		ConvertedAt: &converted,
	}

	require.NoError(t, detector.EvaluateConversionSpeed(record, converted))

	got := signals(t, db)
	require.Len(t, got, 1)
	assert.Equal(t, models.FraudSignalTypeFastConversion, got[0].SignalType)
	assert.Equal(t, models.FraudSeverityMedium, got[0].Severity)
	require.NotNil(t, got[0].ReferralID)
	assert.Equal(t, record.ID, *got[0].ReferralID)
}

func TestSlowConversionRaisesNothing(t *testing.T) {
	db := openTestDB(t)
	detector := NewDetector(db, testFraudConfig())

	created := time.Now().Add(-2 * time.Hour)
	converted := time.Now()
	record := &models.ReferralRecord{
		ID:          uuid.New(),
		ReferrerID:  uuid.New(),
		Status:      models.ReferralStatusConverted,
		CreatedAt:   created,
		ConvertedAt: &converted,
	}

	require.NoError(t, detector.EvaluateConversionSpeed(record, converted))
	assert.Empty(t, signals(t, db))
}

func TestReviewSignal(t *testing.T) {
	db := openTestDB(t)
	detector := NewDetector(db, testFraudConfig())

	referrerID := uuid.New()
	now := time.Now()
	seedSignups(t, db, referrerID, 10, now.Add(-10*time.Minute))
	require.NoError(t, detector.EvaluateSignupVelocity(referrerID, now))

	raised := signals(t, db)
	require.Len(t, raised, 1)

	reviewed, err := detector.ReviewSignal(raised[0].ID, models.FraudSignalStatusFalsePositive)
	require.NoError(t, err)
	assert.Equal(t, models.FraudSignalStatusFalsePositive, reviewed.Status)

	// The signal body stays untouched.
	assert.Equal(t, raised[0].SignalType, reviewed.SignalType)
	assert.Equal(t, raised[0].Severity, reviewed.Severity)
}

func TestListSignalsFiltersByStatus(t *testing.T) {
	db := openTestDB(t)
	detector := NewDetector(db, testFraudConfig())

	referrerA := uuid.New()
	referrerB := uuid.New()
	now := time.Now()
	seedSignups(t, db, referrerA, 10, now.Add(-10*time.Minute))
	seedSignups(t, db, referrerB, 10, now.Add(-10*time.Minute))
	require.NoError(t, detector.EvaluateSignupVelocity(referrerA, now))
	require.NoError(t, detector.EvaluateSignupVelocity(referrerB, now))

	all, err := detector.ListSignals("", 50)
	require.NoError(t, err)
	require.Len(t, all, 2)

	_, err = detector.ReviewSignal(all[0].ID, models.FraudSignalStatusInvestigating)
	require.NoError(t, err)

	pending, err := detector.ListSignals(models.FraudSignalStatusPending, 50)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	investigating, err := detector.ListSignals(models.FraudSignalStatusInvestigating, 50)
	require.NoError(t, err)
	assert.Len(t, investigating, 1)
}
