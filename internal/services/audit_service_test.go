package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	testutil "github.com/gatehouse-idp/gatehouse/internal/database/testutil"
	"github.com/gatehouse-idp/gatehouse/internal/interaction"
	"github.com/gatehouse-idp/gatehouse/internal/models"
)

func TestRecordAppendsAuditEntry(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	svc.Record(context.Background(), interaction.Event{
		Kind:      interaction.EventLoginSuccess,
		SubjectID: "sub-1",
		Username:  "alice",
		ClientID:  "web",
	})
	svc.Record(context.Background(), interaction.Event{
		Kind:     interaction.EventLoginFailure,
		Username: "alice",
		Reason:   "Invalid username or password",
	})

	var entries []models.AuditLog
	require.NoError(t, db.Order("created_at").Find(&entries).Error)
	require.Len(t, entries, 2)
	require.Equal(t, "login.success", entries[0].Action)
	require.Equal(t, "success", entries[0].Result)
	require.Equal(t, "failure", entries[1].Result)
}

func TestListFiltersAndOrders(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	svc.Record(context.Background(), interaction.Event{Kind: interaction.EventLoginSuccess, SubjectID: "sub-1", ClientID: "web"})
	svc.Record(context.Background(), interaction.Event{Kind: interaction.EventLogoutSuccess, SubjectID: "sub-1"})
	svc.Record(context.Background(), interaction.Event{Kind: interaction.EventLoginSuccess, SubjectID: "sub-2", ClientID: "mobile"})

	entries, err := svc.List(context.Background(), AuditFilter{SubjectID: "sub-1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	entries, err = svc.List(context.Background(), AuditFilter{Action: string(interaction.EventLoginSuccess), ClientID: "mobile"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "sub-2", entries[0].SubjectID)

	entries, err = svc.List(context.Background(), AuditFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestCleanupOlderThanRemovesEntries(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	svc.Record(context.Background(), interaction.Event{Kind: interaction.EventLoginSuccess, SubjectID: "sub-1"})

	removed, err := svc.CleanupOlderThan(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Zero(t, removed)

	removed, err = svc.CleanupOlderThan(context.Background(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
}
