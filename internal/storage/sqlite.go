package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bunchhieng/travelog/internal/model"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sqlx.DB
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	var dsn string
	if dbPath == ":memory:" {
		dsn = dbPath + "?_pragma=journal_mode(DELETE)&_pragma=synchronous(NORMAL)"
	} else {
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A second pooled connection to :memory: would see an empty database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

type sessionRow struct {
	Token     string         `db:"token"`
	UserID    sql.NullString `db:"user_id"`
	UserName  sql.NullString `db:"user_name"`
	UserEmail sql.NullString `db:"user_email"`
	SavedAt   string         `db:"saved_at"`
}

func (r *sessionRow) toSession() *model.Session {
	s := &model.Session{
		Token:   r.Token,
		SavedAt: parseSQLiteTime(r.SavedAt),
	}
	if r.UserID.Valid && r.UserID.String != "" {
		s.User = &model.User{
			ID:       r.UserID.String,
			FullName: r.UserName.String,
			Email:    r.UserEmail.String,
		}
	}
	return s
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// SaveSession replaces the stored session.
func (s *SQLiteStorage) SaveSession(ctx context.Context, session *model.Session) error {
	if strings.TrimSpace(session.Token) == "" {
		return fmt.Errorf("save session: empty token")
	}
	savedAt := session.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	var userID, userName, userEmail sql.NullString
	if session.User != nil {
		userID = nullString(session.User.ID)
		userName = nullString(session.User.FullName)
		userEmail = nullString(session.User.Email)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session (id, token, user_id, user_name, user_email, saved_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			user_id = excluded.user_id,
			user_name = excluded.user_name,
			user_email = excluded.user_email,
			saved_at = excluded.saved_at
	`, session.Token, userID, userName, userEmail, savedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LoadSession returns the stored session.
func (s *SQLiteStorage) LoadSession(ctx context.Context) (*model.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row,
		"SELECT token, user_id, user_name, user_email, saved_at FROM session WHERE id = 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return row.toSession(), nil
}

// SaveUser caches the profile on the stored session.
func (s *SQLiteStorage) SaveUser(ctx context.Context, user *model.User) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE session SET user_id = ?, user_name = ?, user_email = ? WHERE id = 1",
		nullString(user.ID), nullString(user.FullName), nullString(user.Email))
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return model.ErrNoSession
	}
	return nil
}

// searchTimeLayout is fixed-width so searched_at sorts as text.
const searchTimeLayout = "2006-01-02T15:04:05.000000000Z"

// RecordSearch remembers query, moving it to the front if already known.
func (s *SQLiteStorage) RecordSearch(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recent_searches (query, searched_at) VALUES (?, ?)
		ON CONFLICT(query) DO UPDATE SET searched_at = excluded.searched_at
	`, query, time.Now().UTC().Format(searchTimeLayout))
	if err != nil {
		return fmt.Errorf("record search: %w", err)
	}
	return nil
}

// RecentSearches returns the newest queries first.
func (s *SQLiteStorage) RecentSearches(ctx context.Context, limit int) ([]string, error) {
	query := "SELECT query FROM recent_searches ORDER BY searched_at DESC"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var queries []string
	if err := s.db.SelectContext(ctx, &queries, query, args...); err != nil {
		return nil, fmt.Errorf("recent searches: %w", err)
	}
	return queries, nil
}

// Clear removes the session and everything derived from it.
func (s *SQLiteStorage) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	for _, table := range []string{"session", "recent_searches"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			tx.Rollback()
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func parseSQLiteTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
