// Package storage provides the SQLite-backed snapshot store that gives
// documents durability across process restarts. Only (content, language,
// otp) is persisted; the OT history itself is not (SPEC_FULL.md §4.3) — a
// restored document starts a fresh history at version 0 over its last
// snapshot, matching the teacher's FromPersistedDocument behavior.
package storage

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/padsync/collabcore/internal/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Snapshot is a document's durable state: everything needed to seed
// internal/document.Store.GetOrCreate's loader, plus the OTP a
// content_update must present to overwrite it.
type Snapshot struct {
	ID       string
	Content  string
	Language *string
	OTP      *string
}

// Store wraps a SQLite connection holding document snapshots.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at uri and brings
// its schema up to date via golang-migrate, sourcing migrations from the
// embedded migrations/ directory.
func Open(uri string) (*Store, error) {
	db, err := sql.Open("sqlite3", uri)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("sqlite migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("build migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	logging.Debug("storage: schema up to date")
	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load fetches a document's last snapshot. A nil Snapshot (with no error)
// means the document has never been persisted.
func (s *Store) Load(id string) (*Snapshot, error) {
	var snap Snapshot
	var language, otp sql.NullString

	err := s.db.QueryRow(
		"SELECT id, content, language, otp FROM document WHERE id = ?",
		id,
	).Scan(&snap.ID, &snap.Content, &language, &otp)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	if language.Valid {
		snap.Language = &language.String
	}
	if otp.Valid {
		snap.OTP = &otp.String
	}
	return &snap, nil
}

// Save upserts a document's snapshot.
func (s *Store) Save(snap *Snapshot) error {
	_, err := s.db.Exec(`
		INSERT INTO document (id, content, language, otp)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			language = excluded.language,
			otp = excluded.otp
	`, snap.ID, snap.Content, snap.Language, snap.OTP)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// Count returns the total number of persisted documents.
func (s *Store) Count() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM document").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return count, nil
}

// Delete removes a document's snapshot.
func (s *Store) Delete(id string) error {
	_, err := s.db.Exec("DELETE FROM document WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}
