// Package places provides persistent storage for the user's saved
// places, the named addresses ("Home", "Work", "Mom's") that prompts
// refer to by alias.
package places

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alexlifshitz/teslanav/internal/interpret"
)

// SavedPlace is one named address.
type SavedPlace struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store manages saved-place persistence in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates a place store using the given database path.
func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS places (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			address TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_places_name ON places(LOWER(name));
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert creates or updates a place by name (case-insensitive). A new
// place gets a fresh id; an existing one keeps its id and creation
// time.
func (s *Store) Upsert(name, address string) (SavedPlace, error) {
	name = strings.TrimSpace(name)
	address = strings.TrimSpace(address)
	if name == "" || address == "" {
		return SavedPlace{}, fmt.Errorf("place needs both a name and an address")
	}

	now := time.Now().UTC()

	if existing, err := s.FindByName(name); err == nil {
		_, err := s.db.Exec(
			`UPDATE places SET name = ?, address = ?, updated_at = ? WHERE id = ?`,
			name, address, now.Format(time.RFC3339), existing.ID.String(),
		)
		if err != nil {
			return SavedPlace{}, fmt.Errorf("update place: %w", err)
		}
		existing.Name = name
		existing.Address = address
		existing.UpdatedAt = now
		return existing, nil
	}

	p := SavedPlace{
		ID:        uuid.New(),
		Name:      name,
		Address:   address,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.Exec(
		`INSERT INTO places (id, name, address, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID.String(), p.Name, p.Address,
		p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return SavedPlace{}, fmt.Errorf("insert place: %w", err)
	}
	return p, nil
}

// FindByName looks a place up by name, case-insensitively.
func (s *Store) FindByName(name string) (SavedPlace, error) {
	row := s.db.QueryRow(
		`SELECT id, name, address, created_at, updated_at FROM places WHERE LOWER(name) = LOWER(?)`,
		strings.TrimSpace(name),
	)
	p, err := scanPlace(row)
	if err == sql.ErrNoRows {
		return SavedPlace{}, fmt.Errorf("place %q not found", name)
	}
	if err != nil {
		return SavedPlace{}, fmt.Errorf("find place: %w", err)
	}
	return p, nil
}

// List returns all places ordered by name.
func (s *Store) List() ([]SavedPlace, error) {
	rows, err := s.db.Query(
		`SELECT id, name, address, created_at, updated_at FROM places ORDER BY LOWER(name)`)
	if err != nil {
		return nil, fmt.Errorf("list places: %w", err)
	}
	defer rows.Close()

	var out []SavedPlace
	for rows.Next() {
		p, err := scanPlace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan place: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Delete removes a place by name. Deleting an unknown name is an
// error so typos surface instead of silently succeeding.
func (s *Store) Delete(name string) error {
	res, err := s.db.Exec(`DELETE FROM places WHERE LOWER(name) = LOWER(?)`, strings.TrimSpace(name))
	if err != nil {
		return fmt.Errorf("delete place: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("place %q not found", name)
	}
	return nil
}

// ForContext renders the saved places as interpretation context.
func (s *Store) ForContext() ([]interpret.Place, error) {
	saved, err := s.List()
	if err != nil {
		return nil, err
	}
	out := make([]interpret.Place, 0, len(saved))
	for _, p := range saved {
		out = append(out, interpret.Place{Name: p.Name, Address: p.Address})
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlace(row rowScanner) (SavedPlace, error) {
	var (
		p                    SavedPlace
		id, created, updated string
	)
	if err := row.Scan(&id, &p.Name, &p.Address, &created, &updated); err != nil {
		return SavedPlace{}, err
	}
	p.ID, _ = uuid.Parse(id)
	p.CreatedAt, _ = time.Parse(time.RFC3339, created)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return p, nil
}
