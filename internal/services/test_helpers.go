package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mwhitfield/authgate/internal/models"
	pkglogger "github.com/mwhitfield/authgate/pkg/logger"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByEmailFunc      func(ctx context.Context, authCtx models.AuthContext, email string) (*models.User, error)
	GetByIDFunc         func(ctx context.Context, id string) (*models.User, error)
	CreateFunc          func(ctx context.Context, user *models.User) (*models.User, error)
	UpdateLastLoginFunc func(ctx context.Context, id string, at time.Time) error
	UpdatePasswordFunc  func(ctx context.Context, id, passwordHash string) error
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, authCtx models.AuthContext, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, authCtx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return user, nil
}

func (m *MockUserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if m.UpdateLastLoginFunc != nil {
		return m.UpdateLastLoginFunc(ctx, id, at)
	}
	return nil
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

// MockLockoutChecker implements LockoutChecker for testing
type MockLockoutChecker struct {
	IsLockedOutFunc      func(ctx context.Context, email, ip string) (bool, error)
	LockoutRemainingFunc func(ctx context.Context, email, ip string) (time.Duration, error)
	RecordFunc           func(ctx context.Context, email, ip, userAgent string, userID *string, success bool, reason *string) error

	mu       sync.Mutex
	Recorded []RecordedAttempt
}

// RecordedAttempt captures one Record call for assertions.
type RecordedAttempt struct {
	Email   string
	IP      string
	UserID  *string
	Success bool
	Reason  *string
}

func (m *MockLockoutChecker) IsLockedOut(ctx context.Context, email, ip string) (bool, error) {
	if m.IsLockedOutFunc != nil {
		return m.IsLockedOutFunc(ctx, email, ip)
	}
	return false, nil
}

func (m *MockLockoutChecker) LockoutRemaining(ctx context.Context, email, ip string) (time.Duration, error) {
	if m.LockoutRemainingFunc != nil {
		return m.LockoutRemainingFunc(ctx, email, ip)
	}
	return 0, nil
}

func (m *MockLockoutChecker) Record(ctx context.Context, email, ip, userAgent string, userID *string, success bool, reason *string) error {
	m.mu.Lock()
	m.Recorded = append(m.Recorded, RecordedAttempt{
		Email:   email,
		IP:      ip,
		UserID:  userID,
		Success: success,
		Reason:  reason,
	})
	m.mu.Unlock()

	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, email, ip, userAgent, userID, success, reason)
	}
	return nil
}

// MockAttemptRepository implements AttemptRepository for testing
type MockAttemptRepository struct {
	RecordAttemptFunc        func(ctx context.Context, attempt *models.LoginAttempt) error
	CountFailuresByEmailFunc func(ctx context.Context, email string, since time.Time) (int, error)
	CountFailuresByIPFunc    func(ctx context.Context, ipAddress string, since time.Time) (int, error)
	OldestFailureSinceFunc   func(ctx context.Context, scope models.AttemptScope, value string, since time.Time) (*time.Time, error)
}

func (m *MockAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	if m.RecordAttemptFunc != nil {
		return m.RecordAttemptFunc(ctx, attempt)
	}
	return nil
}

func (m *MockAttemptRepository) CountFailuresByEmail(ctx context.Context, email string, since time.Time) (int, error) {
	if m.CountFailuresByEmailFunc != nil {
		return m.CountFailuresByEmailFunc(ctx, email, since)
	}
	return 0, nil
}

func (m *MockAttemptRepository) CountFailuresByIP(ctx context.Context, ipAddress string, since time.Time) (int, error) {
	if m.CountFailuresByIPFunc != nil {
		return m.CountFailuresByIPFunc(ctx, ipAddress, since)
	}
	return 0, nil
}

func (m *MockAttemptRepository) OldestFailureSince(ctx context.Context, scope models.AttemptScope, value string, since time.Time) (*time.Time, error) {
	if m.OldestFailureSinceFunc != nil {
		return m.OldestFailureSinceFunc(ctx, scope, value, since)
	}
	return nil, nil
}

// FakeCounterStore is an in-memory CounterStore with manual clock control.
// Windows are fixed: the first increment on a key sets its expiry.
type FakeCounterStore struct {
	mu       sync.Mutex
	counts   map[string]int64
	expiries map[string]time.Time
	Now      time.Time
	Err      error
}

func NewFakeCounterStore() *FakeCounterStore {
	return &FakeCounterStore{
		counts:   make(map[string]int64),
		expiries: make(map[string]time.Time),
		Now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *FakeCounterStore) expire(key string) {
	if exp, ok := f.expiries[key]; ok && !f.Now.Before(exp) {
		delete(f.counts, key)
		delete(f.expiries, key)
	}
}

func (f *FakeCounterStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if f.Err != nil {
		return 0, 0, f.Err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.expire(key)
	f.counts[key]++
	if _, ok := f.expiries[key]; !ok {
		f.expiries[key] = f.Now.Add(window)
	}
	return f.counts[key], f.expiries[key].Sub(f.Now), nil
}

func (f *FakeCounterStore) Count(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if f.Err != nil {
		return 0, 0, f.Err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.expire(key)
	count, ok := f.counts[key]
	if !ok {
		return 0, window, nil
	}
	return count, f.expiries[key].Sub(f.Now), nil
}

// Advance moves the fake clock forward, expiring windows that lapse.
func (f *FakeCounterStore) Advance(d time.Duration) {
	f.mu.Lock()
	f.Now = f.Now.Add(d)
	f.mu.Unlock()
}

func testLogger() *slog.Logger {
	return slog.Default()
}

func testAuditRecorder() *AuditRecorder {
	return NewAuditRecorder(pkglogger.NewAuditLogger(testLogger()), nil, testLogger())
}
