package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/mwhitfield/authgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDB *TestDB

func TestMain(m *testing.M) {
	if os.Getenv("SKIP_INTEGRATION") != "" {
		os.Exit(0)
	}

	ctx := context.Background()
	db, err := SetupTestDatabase(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "integration setup failed: %v\n", err)
		os.Exit(1)
	}
	testDB = db

	code := m.Run()
	_ = testDB.Teardown(ctx)
	os.Exit(code)
}

func freshTables(t *testing.T) {
	t.Helper()
	require.NoError(t, testDB.CleanupTables(context.Background()))
}

func strPtr(s string) *string { return &s }

func TestLoginAttemptRepository_RecordAndCount(t *testing.T) {
	freshTables(t)
	ctx := context.Background()
	_, attempts, _ := InitializeRepositories(testDB.DB)

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, attempts.RecordAttempt(ctx, &models.LoginAttempt{
			Email:         "victim@example.com",
			IPAddress:     "10.0.0.1",
			UserAgent:     "integration-test",
			Success:       false,
			FailureReason: strPtr("invalid_credentials"),
			AttemptedAt:   now.Add(-time.Duration(i) * time.Minute),
		}))
	}
	// One stale failure outside any window, one success inside it.
	require.NoError(t, attempts.RecordAttempt(ctx, &models.LoginAttempt{
		Email:       "victim@example.com",
		IPAddress:   "10.0.0.1",
		Success:     false,
		AttemptedAt: now.Add(-2 * time.Hour),
	}))
	require.NoError(t, attempts.RecordAttempt(ctx, &models.LoginAttempt{
		Email:       "victim@example.com",
		IPAddress:   "10.0.0.1",
		Success:     true,
		AttemptedAt: now,
	}))

	count, err := attempts.CountFailuresByEmail(ctx, "victim@example.com", now.Add(-15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, count, "stale failures and successes never count")

	count, err = attempts.CountFailuresByIP(ctx, "10.0.0.1", now.Add(-15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = attempts.CountFailuresByEmail(ctx, "other@example.com", now.Add(-15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestLoginAttemptRepository_OldestFailureSince(t *testing.T) {
	freshTables(t)
	ctx := context.Background()
	_, attempts, _ := InitializeRepositories(testDB.DB)

	now := time.Now().UTC().Truncate(time.Microsecond)
	oldest := now.Add(-10 * time.Minute)

	for _, at := range []time.Time{now.Add(-2 * time.Minute), oldest, now.Add(-5 * time.Minute)} {
		require.NoError(t, attempts.RecordAttempt(ctx, &models.LoginAttempt{
			Email:       "victim@example.com",
			IPAddress:   "10.0.0.1",
			Success:     false,
			AttemptedAt: at,
		}))
	}

	got, err := attempts.OldestFailureSince(ctx, models.ScopeEmail, "victim@example.com", now.Add(-15*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.WithinDuration(t, oldest, *got, time.Millisecond)

	got, err = attempts.OldestFailureSince(ctx, models.ScopeIP, "192.0.2.9", now.Add(-15*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, got, "no failures for an unseen IP")
}

func TestLoginAttemptRepository_DeleteOlderThan(t *testing.T) {
	freshTables(t)
	ctx := context.Background()
	_, attempts, _ := InitializeRepositories(testDB.DB)

	now := time.Now().UTC()
	require.NoError(t, attempts.RecordAttempt(ctx, &models.LoginAttempt{
		Email: "a@example.com", IPAddress: "10.0.0.1", AttemptedAt: now.Add(-40 * 24 * time.Hour),
	}))
	require.NoError(t, attempts.RecordAttempt(ctx, &models.LoginAttempt{
		Email: "a@example.com", IPAddress: "10.0.0.1", AttemptedAt: now,
	}))

	deleted, err := attempts.DeleteOlderThan(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	count, err := attempts.CountFailuresByEmail(ctx, "a@example.com", now.Add(-365*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUserRepository_EmailScopedPerContext(t *testing.T) {
	freshTables(t)
	ctx := context.Background()
	users, _, _ := InitializeRepositories(testDB.DB)

	tenantID := "acme"
	central, err := users.Create(ctx, &models.User{
		Email:        "dual@example.com",
		PasswordHash: "hash-central",
		Name:         "Central Dual",
		Role:         "admin",
	})
	require.NoError(t, err)

	tenant, err := users.Create(ctx, &models.User{
		Email:        "dual@example.com",
		PasswordHash: "hash-tenant",
		Name:         "Tenant Dual",
		Role:         "user",
		TenantID:     &tenantID,
	})
	require.NoError(t, err)
	require.NotEqual(t, central.ID, tenant.ID)

	// Same email, different account per context.
	got, err := users.GetByEmail(ctx, models.CentralContext(), "dual@example.com")
	require.NoError(t, err)
	assert.Equal(t, central.ID, got.ID)
	assert.Equal(t, "hash-central", got.PasswordHash)

	got, err = users.GetByEmail(ctx, models.TenantContext("acme"), "dual@example.com")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, got.ID)

	_, err = users.GetByEmail(ctx, models.TenantContext("globex"), "dual@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUserRepository_DuplicateEmailConflict(t *testing.T) {
	freshTables(t)
	ctx := context.Background()
	users, _, _ := InitializeRepositories(testDB.DB)

	_, err := users.Create(ctx, &models.User{
		Email: "dup@example.com", PasswordHash: "h", Name: "One", Role: "user",
	})
	require.NoError(t, err)

	_, err = users.Create(ctx, &models.User{
		Email: "dup@example.com", PasswordHash: "h", Name: "Two", Role: "user",
	})
	assert.ErrorIs(t, err, models.ErrConflict)

	// The same email is still free in a tenant context.
	tenantID := "acme"
	_, err = users.Create(ctx, &models.User{
		Email: "dup@example.com", PasswordHash: "h", Name: "Three", Role: "user", TenantID: &tenantID,
	})
	assert.NoError(t, err)
}

func TestUserRepository_UpdateLastLoginAndStatus(t *testing.T) {
	freshTables(t)
	ctx := context.Background()
	users, _, _ := InitializeRepositories(testDB.DB)

	created, err := users.Create(ctx, &models.User{
		Email: "active@example.com", PasswordHash: "h", Name: "Active", Role: "user",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, created.Status)
	assert.Nil(t, created.LastLoginAt)

	at := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, users.UpdateLastLogin(ctx, created.ID, at))

	got, err := users.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)
	assert.WithinDuration(t, at, *got.LastLoginAt, time.Millisecond)

	require.NoError(t, users.UpdateStatus(ctx, created.ID, models.StatusSuspended))
	got, err = users.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuspended, got.Status)
}

func TestAuditLogRepository_InsertAndList(t *testing.T) {
	freshTables(t)
	ctx := context.Background()
	_, _, audits := InitializeRepositories(testDB.DB)

	for i := 0; i < 3; i++ {
		require.NoError(t, audits.Insert(ctx, &models.AuditLog{
			EventKind: models.AuditEventLoginDenied,
			IPAddress: strPtr("10.0.0.1"),
			Success:   false,
			Reason:    strPtr("invalid_credentials"),
			Severity:  models.AuditSeverityWarning,
			Metadata:  models.AuditMetadata{"attempt": i},
		}))
	}

	entries, err := audits.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.Equal(t, models.AuditEventLoginDenied, entries[0].EventKind)
	require.NotNil(t, entries[0].IPAddress)
	assert.Equal(t, "10.0.0.1", *entries[0].IPAddress)
}
