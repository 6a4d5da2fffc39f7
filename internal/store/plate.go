package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultListLimit bounds List when the caller passes a non-positive limit.
const DefaultListLimit = 50

// Plate is an accepted plate number.
type Plate struct {
	ID          string    `json:"id"`
	Number      string    `json:"number"`
	Mode        string    `json:"mode"`
	Regions     int       `json:"regions"`
	Snapshot    []byte    `json:"-"`
	SnapshotURL string    `json:"snapshot_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// PlateRepository reads and writes the plates table.
type PlateRepository struct {
	db *sql.DB
}

// Plates returns the plate repository for this store.
func (s *Store) Plates() *PlateRepository {
	return &PlateRepository{db: s.db}
}

// Create inserts p. An empty ID is filled with a new UUID and CreatedAt is
// set when zero.
func (r *PlateRepository) Create(p *Plate) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(
		`INSERT INTO plates (id, number, mode, regions, snapshot, snapshot_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Number, p.Mode, p.Regions, p.Snapshot, p.SnapshotURL, p.CreatedAt,
	)
	return err
}

// GetByID returns the plate with the given ID, snapshot included.
func (r *PlateRepository) GetByID(id string) (*Plate, error) {
	p := &Plate{}
	err := r.db.QueryRow(
		`SELECT id, number, mode, regions, snapshot, snapshot_url, created_at
		 FROM plates WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.Number, &p.Mode, &p.Regions, &p.Snapshot, &p.SnapshotURL, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// List returns up to limit plates, newest first, skipping offset rows.
// Snapshots are not loaded.
func (r *PlateRepository) List(limit, offset int) ([]*Plate, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(
		`SELECT id, number, mode, regions, snapshot_url, created_at
		 FROM plates ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plates []*Plate
	for rows.Next() {
		p := &Plate{}
		if err := rows.Scan(&p.ID, &p.Number, &p.Mode, &p.Regions, &p.SnapshotURL, &p.CreatedAt); err != nil {
			return nil, err
		}
		plates = append(plates, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return plates, nil
}

// Latest returns the most recently accepted plate.
func (r *PlateRepository) Latest() (*Plate, error) {
	plates, err := r.List(1, 0)
	if err != nil {
		return nil, err
	}
	if len(plates) == 0 {
		return nil, ErrNotFound
	}
	return plates[0], nil
}

// Snapshot returns the JPEG stored with a plate.
func (r *PlateRepository) Snapshot(id string) ([]byte, error) {
	var data []byte
	err := r.db.QueryRow(`SELECT snapshot FROM plates WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrNotFound
	}
	return data, nil
}

// SetSnapshotURL records where the snapshot was uploaded.
func (r *PlateRepository) SetSnapshotURL(id, url string) error {
	result, err := r.db.Exec(`UPDATE plates SET snapshot_url = ? WHERE id = ?`, url, id)
	if err != nil {
		return err
	}
	return expectOne(result)
}

// Count returns the number of stored plates.
func (r *PlateRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM plates`).Scan(&n)
	return n, err
}

// Delete removes a plate and its deliveries.
func (r *PlateRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM plates WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(result)
}

func expectOne(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
