package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/fivarsson/triage/internal/domain"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// Store indexes processed records so related notes and stats can be looked
// up without scanning the vault.
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Initialize schema
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// IndexRecord inserts or refreshes the index row for a processed record.
// Reprocessing the same record replaces its row rather than duplicating it.
func (s *Store) IndexRecord(rec *domain.Record, path string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT OR REPLACE INTO records (id, title, type, category, priority, path, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		rec.ID, rec.Title, rec.Type, rec.Category, rec.Priority, path, rec.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	if rec.ExtractedData != nil {
		for _, person := range rec.ExtractedData.People {
			if _, err := tx.Exec(
				"INSERT OR REPLACE INTO record_people (record_id, person) VALUES (?, ?)",
				rec.ID, person,
			); err != nil {
				return fmt.Errorf("insert record person: %w", err)
			}
		}
	}

	for _, tag := range rec.Tags {
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO record_tags (record_id, tag) VALUES (?, ?)",
			rec.ID, tag,
		); err != nil {
			return fmt.Errorf("insert record tag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// RelatedRecord is an indexed record connected to another by a shared person
// or tag.
type RelatedRecord struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Type         string `json:"type"`
	Path         string `json:"path"`
	Relationship string `json:"relationship"`
}

// FindRelated returns records sharing a person or tag with rec, newest
// first, excluding rec itself.
func (s *Store) FindRelated(rec *domain.Record, limit int) ([]RelatedRecord, error) {
	rows, err := s.db.Query(`
		SELECT r.id, r.title, r.type, r.path,
		       MIN(CASE WHEN rp.person IS NOT NULL THEN 'mentions ' || rp.person ELSE 'shares #' || rt.tag END)
		FROM records r
		LEFT JOIN record_people rp ON rp.record_id = r.id
		    AND rp.person IN (SELECT person FROM record_people WHERE record_id = ?)
		LEFT JOIN record_tags rt ON rt.record_id = r.id
		    AND rt.tag IN (SELECT tag FROM record_tags WHERE record_id = ?)
		WHERE r.id != ? AND (rp.person IS NOT NULL OR rt.tag IS NOT NULL)
		GROUP BY r.id
		ORDER BY r.created_at DESC
		LIMIT ?
	`, rec.ID, rec.ID, rec.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("find related: %w", err)
	}
	defer rows.Close()

	var related []RelatedRecord
	for rows.Next() {
		var r RelatedRecord
		if err := rows.Scan(&r.ID, &r.Title, &r.Type, &r.Path, &r.Relationship); err != nil {
			return nil, fmt.Errorf("scan related: %w", err)
		}
		related = append(related, r)
	}

	return related, nil
}

// CountByType returns processed-record counts grouped by type.
func (s *Store) CountByType() (map[string]int, error) {
	return s.countBy("type")
}

// CountByCategory returns processed-record counts grouped by category.
func (s *Store) CountByCategory() (map[string]int, error) {
	return s.countBy("category")
}

func (s *Store) countBy(column string) (map[string]int, error) {
	rows, err := s.db.Query(fmt.Sprintf("SELECT %s, COUNT(*) FROM records GROUP BY %s", column, column))
	if err != nil {
		return nil, fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[key] = n
	}

	return counts, nil
}

// Total returns the number of indexed records.
func (s *Store) Total() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM records").Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}
