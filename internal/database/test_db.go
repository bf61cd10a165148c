package database

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
)

// NewTestStore opens a private in-memory database closed at test cleanup.
func NewTestStore(t testing.TB) *Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	store, err := open(dsn)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
