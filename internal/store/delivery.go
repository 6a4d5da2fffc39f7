package store

import (
	"database/sql"
	"time"
)

// Delivery records the outcome of handing a plate to one notification sink.
type Delivery struct {
	ID        int64     `json:"id"`
	PlateID   string    `json:"plate_id"`
	Sink      string    `json:"sink"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DeliveryRepository reads and writes the deliveries table.
type DeliveryRepository struct {
	db *sql.DB
}

// Deliveries returns the delivery repository for this store.
func (s *Store) Deliveries() *DeliveryRepository {
	return &DeliveryRepository{db: s.db}
}

// Record inserts d and fills its ID.
func (r *DeliveryRepository) Record(d *Delivery) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.Exec(
		`INSERT INTO deliveries (plate_id, sink, ok, error, created_at) VALUES (?, ?, ?, ?, ?)`,
		d.PlateID, d.Sink, d.OK, d.Error, d.CreatedAt,
	)
	if err != nil {
		return err
	}

	d.ID, err = result.LastInsertId()
	return err
}

// ForPlate returns the deliveries of a plate in insertion order.
func (r *DeliveryRepository) ForPlate(plateID string) ([]Delivery, error) {
	rows, err := r.db.Query(
		`SELECT id, plate_id, sink, ok, error, created_at
		 FROM deliveries WHERE plate_id = ? ORDER BY id`,
		plateID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.PlateID, &d.Sink, &d.OK, &d.Error, &d.CreatedAt); err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}

	return deliveries, rows.Err()
}
