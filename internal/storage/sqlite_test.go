package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bunchhieng/travelog/internal/model"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	storage, err := NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test storage: %v", err)
	}
	return storage
}

func TestLoadSessionEmpty(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()

	_, err := s.LoadSession(context.Background())
	if err != model.ErrNoSession {
		t.Errorf("Expected ErrNoSession, got %v", err)
	}
}

func TestSaveAndLoadSession(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()

	ctx := context.Background()
	err := s.SaveSession(ctx, &model.Session{
		Token: "abc",
		User:  &model.User{ID: "u1", FullName: "Ada", Email: "ada@example.com"},
	})
	if err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	session, err := s.LoadSession(ctx)
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if session.Token != "abc" {
		t.Errorf("Expected token abc, got %s", session.Token)
	}
	if session.User == nil || session.User.Email != "ada@example.com" {
		t.Errorf("Expected cached user, got %+v", session.User)
	}
	if session.SavedAt.IsZero() {
		t.Error("Expected non-zero SavedAt")
	}

	// Saving again replaces the single session row
	if err := s.SaveSession(ctx, &model.Session{Token: "def"}); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	session, _ = s.LoadSession(ctx)
	if session.Token != "def" {
		t.Errorf("Expected token def, got %s", session.Token)
	}
	if session.User != nil {
		t.Errorf("Expected no user after replace, got %+v", session.User)
	}
}

func TestSaveSessionEmptyToken(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()

	if err := s.SaveSession(context.Background(), &model.Session{Token: "  "}); err == nil {
		t.Error("Expected error for empty token")
	}
}

func TestSaveUser(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()

	ctx := context.Background()
	user := &model.User{ID: "u2", FullName: "Bo", Email: "bo@example.com"}
	if err := s.SaveUser(ctx, user); err != model.ErrNoSession {
		t.Errorf("Expected ErrNoSession without a session, got %v", err)
	}

	s.SaveSession(ctx, &model.Session{Token: "abc"})
	if err := s.SaveUser(ctx, user); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}
	session, _ := s.LoadSession(ctx)
	if session.User == nil || session.User.FullName != "Bo" {
		t.Errorf("Expected user Bo, got %+v", session.User)
	}
}

func TestRecentSearches(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()

	ctx := context.Background()
	for _, q := range []string{"Paris", "Rome", "", "Paris", "Oslo"} {
		if err := s.RecordSearch(ctx, q); err != nil {
			t.Fatalf("RecordSearch failed: %v", err)
		}
	}

	recent, err := s.RecentSearches(ctx, 0)
	if err != nil {
		t.Fatalf("RecentSearches failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("Expected 3 distinct queries, got %v", recent)
	}
	if recent[0] != "Oslo" {
		t.Errorf("Expected newest query first, got %v", recent)
	}

	limited, _ := s.RecentSearches(ctx, 2)
	if len(limited) != 2 {
		t.Errorf("Expected 2 queries, got %d", len(limited))
	}
}

func TestClear(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()

	ctx := context.Background()
	s.SaveSession(ctx, &model.Session{Token: "abc"})
	s.RecordSearch(ctx, "Paris")

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if _, err := s.LoadSession(ctx); err != model.ErrNoSession {
		t.Errorf("Expected ErrNoSession after clear, got %v", err)
	}
	recent, _ := s.RecentSearches(ctx, 0)
	if len(recent) != 0 {
		t.Errorf("Expected no searches after clear, got %v", recent)
	}
}

func TestReopenKeepsSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.db")

	s, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	if err := s.SaveSession(context.Background(), &model.Session{Token: "persisted"}); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	s.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Expected database file: %v", err)
	}

	// Reopening must not re-run applied migrations
	s2, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("Failed to reopen storage: %v", err)
	}
	defer s2.Close()

	session, err := s2.LoadSession(context.Background())
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if session.Token != "persisted" {
		t.Errorf("Expected token persisted, got %s", session.Token)
	}
}
