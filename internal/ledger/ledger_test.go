package ledger

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
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

// triggerRecorder captures transition callbacks for assertions
type triggerRecorder struct {
	created   []uuid.UUID
	signedUp  []uuid.UUID
	converted []uuid.UUID
}

func (r *triggerRecorder) ReferralCreated(record *models.ReferralRecord) {
	r.created = append(r.created, record.ID)
}

func (r *triggerRecorder) ReferralSignedUp(referrerID uuid.UUID, at time.Time) {
	r.signedUp = append(r.signedUp, referrerID)
}

func (r *triggerRecorder) ReferralConverted(record *models.ReferralRecord, at time.Time) {
	r.converted = append(r.converted, record.ID)
}

func TestCreateReferred(t *testing.T) {
	db := openTestDB(t)
	recorder := &triggerRecorder{}
	ledg := NewLedger(db, recorder)

	referrerID := uuid.New()
	record, err := ledg.CreateReferred(referrerID, "203.0.113.7")
	require.NoError(t, err)

	assert.Equal(t, referrerID, record.ReferrerID)
	assert.Equal(t, models.ReferralStatusReferred, record.Status)
	assert.Nil(t, record.ReferredUserID)
	assert.Equal(t, "203.0.113.7", record.IPAddress)
	assert.Equal(t, []uuid.UUID{record.ID}, recorder.created)
}

func TestUpsertOnSignupClaimsOldestOutstanding(t *testing.T) {
	db := openTestDB(t)
	recorder := &triggerRecorder{}
	ledg := NewLedger(db, recorder)

	referrerID := uuid.New()
	older := models.ReferralRecord{
		ReferrerID: referrerID,
		Status:     models.ReferralStatusReferred,
		CreatedAt:  time.Now().Add(-2 * time.Hour),
	}
	newer := models.ReferralRecord{
		ReferrerID: referrerID,
		Status:     models.ReferralStatusReferred,
		CreatedAt:  time.Now().Add(-1 * time.Hour),
	}
	require.NoError(t, db.Create(&older).Error)
	require.NoError(t, db.Create(&newer).Error)

	referredUserID := uuid.New()
	record, err := ledg.UpsertOnSignup(referrerID, referredUserID, models.AttributionMethodCookie, time.Now())
	require.NoError(t, err)

	assert.Equal(t, older.ID, record.ID)
	assert.Equal(t, models.ReferralStatusSignedUp, record.Status)
	require.NotNil(t, record.ReferredUserID)
	assert.Equal(t, referredUserID, *record.ReferredUserID)
	assert.Equal(t, models.AttributionMethodCookie, record.AttributionMethod)
	assert.NotNil(t, record.SignedUpAt)
	assert.Equal(t, []uuid.UUID{referrerID}, recorder.signedUp)

	// The newer outstanding share stays untouched.
	var unchanged models.ReferralRecord
	require.NoError(t, db.First(&unchanged, "id = ?", newer.ID).Error)
	assert.Equal(t, models.ReferralStatusReferred, unchanged.Status)
	assert.Nil(t, unchanged.ReferredUserID)
}

func TestUpsertOnSignupCreatesWhenNoneOutstanding(t *testing.T) {
	db := openTestDB(t)
	ledg := NewLedger(db, nil)

	referrerID := uuid.New()
	referredUserID := uuid.New()

	record, err := ledg.UpsertOnSignup(referrerID, referredUserID, models.AttributionMethodURL, time.Now())
	require.NoError(t, err)

	assert.Equal(t, models.ReferralStatusSignedUp, record.Status)
	assert.Equal(t, models.AttributionMethodURL, record.AttributionMethod)
	require.NotNil(t, record.ReferredUserID)
	assert.Equal(t, referredUserID, *record.ReferredUserID)

	var count int64
	require.NoError(t, db.Model(&models.ReferralRecord{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestUpsertOnSignupIgnoresClaimedRecords(t *testing.T) {
	db := openTestDB(t)
	ledg := NewLedger(db, nil)

	referrerID := uuid.New()
	firstUser := uuid.New()
	now := time.Now()
	claimed := models.ReferralRecord{
		ReferrerID:     referrerID,
		ReferredUserID: &firstUser,
		Status:         models.ReferralStatusSignedUp,
		SignedUpAt:     &now,
	}
	require.NoError(t, db.Create(&claimed).Error)

	secondUser := uuid.New()
	record, err := ledg.UpsertOnSignup(referrerID, secondUser, models.AttributionMethodManual, time.Now())
	require.NoError(t, err)

	// A record claimed by another user is never overwritten.
	assert.NotEqual(t, claimed.ID, record.ID)
	require.NotNil(t, record.ReferredUserID)
	assert.Equal(t, secondUser, *record.ReferredUserID)
}

func TestMarkConvertedTransitionsExactlyOnce(t *testing.T) {
	db := openTestDB(t)
	ledg := NewLedger(db, nil)

	referrerID := uuid.New()
	referredUserID := uuid.New()
	now := time.Now()
	record := models.ReferralRecord{
		ReferrerID:     referrerID,
		ReferredUserID: &referredUserID,
		Status:         models.ReferralStatusSignedUp,
		SignedUpAt:     &now,
	}
	require.NoError(t, db.Create(&record).Error)

	bookingID := uuid.New()
	transactionID := uuid.New()

	converted, err := ledg.MarkConverted(db, referrerID, referredUserID, bookingID, transactionID, time.Now())
	require.NoError(t, err)
	assert.True(t, converted)

	var got models.ReferralRecord
	require.NoError(t, db.First(&got, "id = ?", record.ID).Error)
	assert.Equal(t, models.ReferralStatusConverted, got.Status)
	require.NotNil(t, got.BookingID)
	assert.Equal(t, bookingID, *got.BookingID)
	require.NotNil(t, got.TransactionID)
	assert.Equal(t, transactionID, *got.TransactionID)
	assert.NotNil(t, got.ConvertedAt)

	// Second booking from the same pair does not transition again.
	converted, err = ledg.MarkConverted(db, referrerID, referredUserID, uuid.New(), uuid.New(), time.Now())
	require.NoError(t, err)
	assert.False(t, converted)

	require.NoError(t, db.First(&got, "id = ?", record.ID).Error)
	require.NotNil(t, got.BookingID)
	assert.Equal(t, bookingID, *got.BookingID, "original booking attribution must survive repeat calls")
}

func TestMarkConvertedUnknownPair(t *testing.T) {
	db := openTestDB(t)
	ledg := NewLedger(db, nil)

	converted, err := ledg.MarkConverted(db, uuid.New(), uuid.New(), uuid.New(), uuid.New(), time.Now())
	require.NoError(t, err)
	assert.False(t, converted)
}

func TestFindByPair(t *testing.T) {
	db := openTestDB(t)
	ledg := NewLedger(db, nil)

	referrerID := uuid.New()
	referredUserID := uuid.New()
	record := models.ReferralRecord{
		ReferrerID:     referrerID,
		ReferredUserID: &referredUserID,
		Status:         models.ReferralStatusSignedUp,
	}
	require.NoError(t, db.Create(&record).Error)

	got, err := ledg.FindByPair(referrerID, referredUserID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, record.ID, got.ID)

	missing, err := ledg.FindByPair(referrerID, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMarkStaleReferredLost(t *testing.T) {
	db := openTestDB(t)
	ledg := NewLedger(db, nil)

	referrerID := uuid.New()
	stale := models.ReferralRecord{
		ReferrerID: referrerID,
		Status:     models.ReferralStatusReferred,
		CreatedAt:  time.Now().AddDate(0, 0, -120),
	}
	fresh := models.ReferralRecord{
		ReferrerID: referrerID,
		Status:     models.ReferralStatusReferred,
		CreatedAt:  time.Now().AddDate(0, 0, -10),
	}
	claimedUser := uuid.New()
	claimed := models.ReferralRecord{
		ReferrerID:     referrerID,
		ReferredUserID: &claimedUser,
		Status:         models.ReferralStatusSignedUp,
		CreatedAt:      time.Now().AddDate(0, 0, -120),
	}
	require.NoError(t, db.Create(&stale).Error)
	require.NoError(t, db.Create(&fresh).Error)
	require.NoError(t, db.Create(&claimed).Error)

	count, err := ledg.MarkStaleReferredLost(time.Now().AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	var gotStale models.ReferralRecord
	require.NoError(t, db.First(&gotStale, "id = ?", stale.ID).Error)
	assert.Equal(t, models.ReferralStatusLost, gotStale.Status)

	var gotFresh models.ReferralRecord
	require.NoError(t, db.First(&gotFresh, "id = ?", fresh.ID).Error)
	assert.Equal(t, models.ReferralStatusReferred, gotFresh.Status)

	var gotClaimed models.ReferralRecord
	require.NoError(t, db.First(&gotClaimed, "id = ?", claimed.ID).Error)
	assert.Equal(t, models.ReferralStatusSignedUp, gotClaimed.Status)
}
