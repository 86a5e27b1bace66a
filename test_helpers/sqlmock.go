package test_helpers

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

// MockTargets holds one sqlmock handle per target name.
type MockTargets struct {
	DBs   map[string]*sql.DB
	Mocks map[string]sqlmock.Sqlmock
}

// NewMockTargets creates an sqlmock database for every name. Queries are
// matched literally.
func NewMockTargets(t testing.TB, names ...string) MockTargets {
	t.Helper()

	targets := MockTargets{
		DBs:   make(map[string]*sql.DB, len(names)),
		Mocks: make(map[string]sqlmock.Sqlmock, len(names)),
	}
	for _, name := range names {
		db, mock, err := sqlmock.New(
			sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual),
			sqlmock.MonitorPingsOption(true),
		)
		if err != nil {
			t.Fatalf("Failed to create sqlmock for %q: %s", name, err)
		}
		targets.DBs[name] = db
		targets.Mocks[name] = mock
	}
	return targets
}

// Mock returns the mock of a target and fails the test on unknown names.
func (m MockTargets) Mock(t testing.TB, name string) sqlmock.Sqlmock {
	t.Helper()

	mock, ok := m.Mocks[name]
	if !ok {
		t.Fatalf("Unknown mock target %q", name)
	}
	return mock
}

// ExpectationsWereMet checks every mock.
func (m MockTargets) ExpectationsWereMet(t testing.TB) {
	t.Helper()

	for name, mock := range m.Mocks {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Target %q: %s", name, err)
		}
	}
}
