package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/gatehouse-idp/gatehouse/internal/auth"
	"github.com/gatehouse-idp/gatehouse/internal/cache"
	testutil "github.com/gatehouse-idp/gatehouse/internal/database/testutil"
	"github.com/gatehouse-idp/gatehouse/internal/interaction"
	"github.com/gatehouse-idp/gatehouse/internal/models"
	"github.com/gatehouse-idp/gatehouse/internal/services"
)

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := fixedClock{current: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret: "cleanup-secret",
		Issuer: "test-suite",
		Clock:  clock.Now,
	})
	require.NoError(t, err)

	sessionSvc, err := iauth.NewSessionService(db, jwtSvc, iauth.SessionConfig{
		SessionTTL: time.Hour,
		Clock:      clock.Now,
	})
	require.NoError(t, err)

	requestSvc, err := services.NewRequestService(db, services.RequestConfig{Clock: clock.Now})
	require.NoError(t, err)

	auditSvc, err := services.NewAuditService(db)
	require.NoError(t, err)

	store := cache.NewDatabaseStore(db)

	user := &interaction.User{SubjectID: "subject-1", Username: "cleanup-user"}

	_, expiredSession, err := sessionSvc.Issue(context.Background(), user, "local", false, iauth.SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Session{}).Where("id = ?", expiredSession.ID).
		Update("expires_at", clock.Now().Add(-2*time.Hour)).Error)

	_, activeSession, err := sessionSvc.Issue(context.Background(), user, "local", false, iauth.SessionMetadata{})
	require.NoError(t, err)

	staleAuthz, err := requestSvc.CreateAuthorizationRequest(context.Background(), services.AuthorizationRequestInput{
		ClientID:    "web",
		RedirectURI: "https://client.example.com/cb",
	})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.AuthorizationRequest{}).Where("id = ?", staleAuthz.ID).
		Update("expires_at", clock.Now().Add(-time.Minute)).Error)

	auditSvc.Record(context.Background(), interaction.Event{
		Kind:     interaction.EventLoginSuccess,
		Username: "cleanup-user",
	})
	var auditLog models.AuditLog
	require.NoError(t, db.First(&auditLog).Error)
	require.NoError(t, db.Model(&auditLog).Update("created_at", clock.Now().AddDate(0, 0, -10)).Error)

	require.NoError(t, store.Set(context.Background(), "stale", []byte("x"), time.Nanosecond))

	c := NewCleaner(sessionSvc, requestSvc, auditSvc,
		WithNow(clock.Now),
		WithAuditRetentionDays(7),
		WithCachePurger(store),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)

	require.NoError(t, c.RunOnce(context.Background()))

	var missing models.Session
	require.ErrorIs(t, db.First(&missing, "id = ?", expiredSession.ID).Error, gorm.ErrRecordNotFound)

	var remaining models.Session
	require.NoError(t, db.First(&remaining, "id = ?", activeSession.ID).Error)

	var authzCount int64
	require.NoError(t, db.Model(&models.AuthorizationRequest{}).Count(&authzCount).Error)
	require.Equal(t, int64(0), authzCount)

	var auditCount int64
	require.NoError(t, db.Model(&models.AuditLog{}).Count(&auditCount).Error)
	require.Equal(t, int64(0), auditCount)

	var cacheCount int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&cacheCount).Error)
	require.Equal(t, int64(0), cacheCount)
}

func TestCleanerStartAndStop(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	auditSvc, err := services.NewAuditService(db)
	require.NoError(t, err)

	c := NewCleaner(nil, nil, auditSvc,
		WithSessionSchedule("@every 1h"),
		WithAuditSchedule("@every 24h"),
	)

	require.NoError(t, c.Start())
	<-c.Stop().Done()
}

func TestCleanerRejectsBadSchedule(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	auditSvc, err := services.NewAuditService(db)
	require.NoError(t, err)

	c := NewCleaner(nil, nil, auditSvc, WithAuditSchedule("not a schedule"))
	require.Error(t, c.Start())
}
