package store

// runMigrations creates the schema. Every statement is idempotent.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Accepted plate numbers with the frame they were read from
		`CREATE TABLE IF NOT EXISTS plates (
			id TEXT PRIMARY KEY,
			number TEXT NOT NULL,
			mode TEXT NOT NULL CHECK(mode IN ('in', 'out')),
			regions INTEGER NOT NULL DEFAULT 0,
			snapshot BLOB,
			snapshot_url TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// One row per sink a plate was handed to
		`CREATE TABLE IF NOT EXISTS deliveries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			plate_id TEXT NOT NULL REFERENCES plates(id) ON DELETE CASCADE,
			sink TEXT NOT NULL,
			ok INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_plates_created_at ON plates(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_plates_number ON plates(number)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_plate_id ON deliveries(plate_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
