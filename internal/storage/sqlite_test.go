package storage

import (
	"path/filepath"
	"testing"
	"time"

	"ransomguard/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "ransomguard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndGetUser(t *testing.T) {
	store := testStore(t)

	user := &model.User{
		Email:          "analyst@example.com",
		HashedPassword: "$2a$10$fakehash",
		FirstName:      "Ana",
		LastName:       "Lyst",
		IsActive:       true,
	}
	require.NoError(t, store.CreateUser(user))
	assert.NotZero(t, user.ID)

	got, err := store.GetUserByEmail("analyst@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "$2a$10$fakehash", got.HashedPassword)
	assert.True(t, got.IsActive)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	store := testStore(t)

	user := &model.User{Email: "dup@example.com", HashedPassword: "x", IsActive: true}
	require.NoError(t, store.CreateUser(user))

	dup := &model.User{Email: "dup@example.com", HashedPassword: "y", IsActive: true}
	assert.Error(t, store.CreateUser(dup))
}

func TestGetUserByEmailNotFound(t *testing.T) {
	store := testStore(t)

	_, err := store.GetUserByEmail("nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertAndListAlerts(t *testing.T) {
	store := testStore(t)

	base := time.Now().Add(-time.Hour)
	alerts := []model.Alert{
		{Host: "h1", Path: "/data/a.enc", Severity: model.SeverityCritical, FME: 7.9, ABT: 2.0,
			Category: model.CategoryRansomware, Reasons: []string{"high entropy: 7.900"}, CreatedAt: base},
		{Host: "h1", Path: "/data/b.doc", Severity: model.SeverityMedium, FME: 6.2, ABT: 2.0,
			Category: model.CategorySuspicious, Reasons: []string{"medium entropy: 6.200"}, CreatedAt: base.Add(time.Minute)},
		{Host: "h1", Path: "/data/c.locked", Severity: model.SeverityCritical, FME: 8.0, ABT: 2.0,
			Category: model.CategoryRaaS, Reasons: []string{"RaaS pattern detected"}, CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range alerts {
		id, err := store.InsertAlert(&alerts[i])
		require.NoError(t, err)
		assert.NotZero(t, id)
	}

	all, err := store.ListAlerts(0, 50, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, "/data/c.locked", all[0].Path)
	assert.Equal(t, "/data/a.enc", all[2].Path)
	assert.Equal(t, []string{"RaaS pattern detected"}, all[0].Reasons)

	critical, err := store.ListAlerts(0, 50, string(model.SeverityCritical))
	require.NoError(t, err)
	assert.Len(t, critical, 2)

	paged, err := store.ListAlerts(1, 1, "")
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "/data/b.doc", paged[0].Path)
}

func TestInsertAndListFileEvents(t *testing.T) {
	store := testStore(t)

	base := time.Now().Add(-time.Hour)
	for i, path := range []string{"/tmp/one", "/tmp/two"} {
		event := &model.FileEvent{Path: path, Action: model.ActionCreated, FME: 1.5, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		id, err := store.InsertFileEvent(event)
		require.NoError(t, err)
		assert.NotZero(t, id)
	}

	events, err := store.ListFileEvents(0, 50)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "/tmp/two", events[0].Path)
	assert.Equal(t, model.ActionCreated, events[0].Action)
}

func TestGetMetrics(t *testing.T) {
	store := testStore(t)

	seed := []model.Alert{
		{Host: "h", Path: "/a", Severity: model.SeverityCritical, Category: model.CategoryRansomware},
		{Host: "h", Path: "/b", Severity: model.SeverityHigh, Category: model.CategoryRansomware},
		{Host: "h", Path: "/c", Severity: model.SeverityCritical, Category: model.CategoryRaaS},
		{Host: "h", Path: "/d", Severity: model.SeverityMedium, Category: model.CategorySuspicious},
	}
	for i := range seed {
		_, err := store.InsertAlert(&seed[i])
		require.NoError(t, err)
	}

	m, err := store.GetMetrics()
	require.NoError(t, err)
	assert.Equal(t, int64(4), m.TotalAlerts)
	assert.Equal(t, int64(2), m.CriticalAlerts)
	assert.Equal(t, int64(1), m.HighAlerts)
	assert.Equal(t, int64(2), m.RansomwareAlerts)
	assert.Equal(t, int64(1), m.RaaSAlerts)
}

func TestRetentionDeletes(t *testing.T) {
	store := testStore(t)

	old := time.Now().Add(-90 * 24 * time.Hour)
	recent := time.Now()

	seed := []model.Alert{
		{Host: "h", Path: "/old-critical", Severity: model.SeverityCritical, Category: model.CategoryRansomware, CreatedAt: old},
		{Host: "h", Path: "/old-medium", Severity: model.SeverityMedium, Category: model.CategorySuspicious, CreatedAt: old},
		{Host: "h", Path: "/new-medium", Severity: model.SeverityMedium, Category: model.CategorySuspicious, CreatedAt: recent},
	}
	for i := range seed {
		_, err := store.InsertAlert(&seed[i])
		require.NoError(t, err)
	}

	// Non-critical sweep removes only the old medium alert.
	deleted, err := store.DeleteAlertsBefore(time.Now().Add(-30*24*time.Hour), false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// Critical sweep with a longer horizon removes the old critical alert.
	deleted, err = store.DeleteAlertsBefore(time.Now().Add(-60*24*time.Hour), true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := store.ListAlerts(0, 50, "")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "/new-medium", remaining[0].Path)

	event := &model.FileEvent{Path: "/stale", Action: model.ActionDeleted, CreatedAt: old}
	_, err = store.InsertFileEvent(event)
	require.NoError(t, err)

	deleted, err = store.DeleteFileEventsBefore(time.Now().Add(-7 * 24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
