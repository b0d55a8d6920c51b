package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	testutil "github.com/gatehouse-idp/gatehouse/internal/database/testutil"
	"github.com/gatehouse-idp/gatehouse/internal/interaction"
	"github.com/gatehouse-idp/gatehouse/internal/models"
	"github.com/gatehouse-idp/gatehouse/pkg/crypto"
)

func TestIssueCreatesSessionAndToken(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "user-issue")

	token, session, err := svc.Issue(context.Background(), &interaction.User{
		SubjectID:   user.ID,
		Username:    user.Username,
		DisplayName: "Issue User",
	}, "local", false, SessionMetadata{IPAddress: "10.0.0.1 ", UserAgent: "unit-test"})
	require.NoError(t, err)

	require.NotEmpty(t, token)
	require.NotNil(t, session)
	require.Equal(t, user.ID, session.SubjectID)
	require.Equal(t, "local", session.IdentityProvider)
	require.Equal(t, "10.0.0.1", session.IPAddress)
	require.False(t, session.Remember)

	var reloaded models.Session
	require.NoError(t, db.Take(&reloaded, "id = ?", session.ID).Error)
	require.True(t, reloaded.ExpiresAt.Equal(clock.Now().Add(time.Hour)))
}

func TestIssueRememberExtendsExpiry(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "user-remember")

	_, session, err := svc.Issue(context.Background(), &interaction.User{SubjectID: user.ID, Username: user.Username}, "local", true, SessionMetadata{})
	require.NoError(t, err)
	require.True(t, session.Remember)
	require.True(t, session.ExpiresAt.Equal(clock.Now().Add(24*time.Hour)))
}

func TestResolveRoundTrip(t *testing.T) {
	db, svc, _ := setupSessionService(t)
	user := createTestUser(t, db, "user-resolve")

	token, session, err := svc.Issue(context.Background(), &interaction.User{
		SubjectID:   user.ID,
		Username:    user.Username,
		DisplayName: "Resolve User",
	}, "google", false, SessionMetadata{})
	require.NoError(t, err)

	resolved, err := svc.Resolve(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, session.ID, resolved.SessionID)
	require.Equal(t, user.ID, resolved.SubjectID)
	require.Equal(t, "Resolve User", resolved.DisplayName)
	require.Equal(t, "google", resolved.IdentityProvider)
	require.True(t, resolved.Authenticated())
}

func TestResolveRejectsGarbageToken(t *testing.T) {
	_, svc, _ := setupSessionService(t)

	_, err := svc.Resolve(context.Background(), "not-a-token")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestResolveRevokedSession(t *testing.T) {
	db, svc, _ := setupSessionService(t)
	user := createTestUser(t, db, "user-revoked")

	token, session, err := svc.Issue(context.Background(), &interaction.User{SubjectID: user.ID, Username: user.Username}, "local", false, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, svc.Terminate(context.Background(), session.ID))

	_, err = svc.Resolve(context.Background(), token)
	require.ErrorIs(t, err, ErrSessionRevoked)
}

func TestResolveExpiredSession(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "user-expired")

	token, _, err := svc.Issue(context.Background(), &interaction.User{SubjectID: user.ID, Username: user.Username}, "local", false, SessionMetadata{})
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	resolved, err := svc.Resolve(context.Background(), token)
	require.NoError(t, err)
	require.True(t, resolved.Authenticated())

	clock.Advance(time.Hour)
	_, err = svc.Resolve(context.Background(), token)
	require.Error(t, err)
}

func TestTerminateIsIdempotent(t *testing.T) {
	db, svc, _ := setupSessionService(t)
	user := createTestUser(t, db, "user-terminate")

	_, session, err := svc.Issue(context.Background(), &interaction.User{SubjectID: user.ID, Username: user.Username}, "local", false, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, svc.Terminate(context.Background(), session.ID))
	require.NoError(t, svc.Terminate(context.Background(), session.ID))
	require.NoError(t, svc.Terminate(context.Background(), "missing-session"))
	require.NoError(t, svc.Terminate(context.Background(), ""))

	var stored models.Session
	require.NoError(t, db.Take(&stored, "id = ?", session.ID).Error)
	require.NotNil(t, stored.RevokedAt)
}

func TestCleanupExpiredRemovesOldSessions(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "user-cleanup")

	_, session, err := svc.Issue(context.Background(), &interaction.User{SubjectID: user.ID, Username: user.Username}, "local", false, SessionMetadata{})
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	removed, err := svc.CleanupExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	err = db.Take(&models.Session{}, "id = ?", session.ID).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func setupSessionService(t *testing.T) (*gorm.DB, *SessionService, *testClock) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	clock := &testClock{current: time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)}

	jwtService, err := NewJWTService(JWTConfig{
		Secret:   "session-secret",
		Issuer:   "gatehouse-test",
		TokenTTL: time.Hour,
		Clock:    clock.Now,
	})
	require.NoError(t, err)

	sessionService, err := NewSessionService(db, jwtService, SessionConfig{
		SessionTTL:  time.Hour,
		RememberTTL: 24 * time.Hour,
		Clock:       clock.Now,
	})
	require.NoError(t, err)

	return db, sessionService, clock
}

func createTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	hashed, err := crypto.HashPassword("password")
	require.NoError(t, err)

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: hashed,
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

type testClock struct {
	current time.Time
}

func (c *testClock) Now() time.Time {
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}
