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
)

func setupCredentialStore(t *testing.T) (*gorm.DB, *CredentialStore, *testClock) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &testClock{current: time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)}

	store, err := NewCredentialStore(db, CredentialConfig{
		MaxFailedAttempts: 3,
		LockoutDuration:   10 * time.Minute,
		Clock:             clock.Now,
	})
	require.NoError(t, err)

	return db, store, clock
}

func TestVerifyValidCredentials(t *testing.T) {
	db, store, clock := setupCredentialStore(t)
	created := createTestUser(t, db, "alice")

	user, err := store.Verify(context.Background(), "alice", "password")
	require.NoError(t, err)
	require.Equal(t, created.ID, user.SubjectID)
	require.Equal(t, "alice", user.Username)
	require.Equal(t, "alice", user.DisplayName, "display name falls back to the username")

	var reloaded models.User
	require.NoError(t, db.Take(&reloaded, "id = ?", created.ID).Error)
	require.NotNil(t, reloaded.LastLoginAt)
	require.True(t, reloaded.LastLoginAt.Equal(clock.Now()))
}

func TestVerifyWrongPassword(t *testing.T) {
	db, store, _ := setupCredentialStore(t)
	created := createTestUser(t, db, "bob")

	_, err := store.Verify(context.Background(), "bob", "wrong")
	require.ErrorIs(t, err, interaction.ErrInvalidCredentials)

	var reloaded models.User
	require.NoError(t, db.Take(&reloaded, "id = ?", created.ID).Error)
	require.Equal(t, 1, reloaded.FailedAttempts)
}

func TestVerifyUnknownUser(t *testing.T) {
	_, store, _ := setupCredentialStore(t)

	_, err := store.Verify(context.Background(), "nobody", "password")
	require.ErrorIs(t, err, interaction.ErrInvalidCredentials)
}

func TestVerifyInactiveUserFailsGenerically(t *testing.T) {
	db, store, _ := setupCredentialStore(t)
	created := createTestUser(t, db, "carol")
	require.NoError(t, db.Model(created).Update("is_active", false).Error)

	_, err := store.Verify(context.Background(), "carol", "password")
	require.ErrorIs(t, err, interaction.ErrInvalidCredentials)
}

func TestVerifyLockoutAfterRepeatedFailures(t *testing.T) {
	db, store, clock := setupCredentialStore(t)
	createTestUser(t, db, "dave")

	for i := 0; i < 3; i++ {
		_, err := store.Verify(context.Background(), "dave", "wrong")
		require.ErrorIs(t, err, interaction.ErrInvalidCredentials)
	}

	// Even the correct password is refused while the lock holds.
	_, err := store.Verify(context.Background(), "dave", "password")
	require.ErrorIs(t, err, interaction.ErrAccountLocked)

	clock.Advance(11 * time.Minute)

	user, err := store.Verify(context.Background(), "dave", "password")
	require.NoError(t, err)
	require.Equal(t, "dave", user.Username)
}

func TestFindByName(t *testing.T) {
	db, store, _ := setupCredentialStore(t)
	created := createTestUser(t, db, "erin")

	user, err := store.FindByName(context.Background(), "erin")
	require.NoError(t, err)
	require.Equal(t, created.ID, user.SubjectID)

	missing, err := store.FindByName(context.Background(), "nobody")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestRegisterCreatesActiveUser(t *testing.T) {
	_, store, _ := setupCredentialStore(t)

	user, err := store.Register(context.Background(), RegisterInput{
		Username:    "frank",
		Email:       "Frank@Example.com",
		Password:    "new-password",
		DisplayName: "Frank F",
	})
	require.NoError(t, err)
	require.Equal(t, "Frank F", user.DisplayName)

	verified, err := store.Verify(context.Background(), "frank", "new-password")
	require.NoError(t, err)
	require.Equal(t, user.SubjectID, verified.SubjectID)
}

func TestRegisterRejectsMissingFields(t *testing.T) {
	_, store, _ := setupCredentialStore(t)

	_, err := store.Register(context.Background(), RegisterInput{Username: "x"})
	require.Error(t, err)
}
