package storage

import (
	"context"
	"fmt"
)

var schema = map[string][]string{
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS webhook_registration (
			id                    BIGSERIAL PRIMARY KEY,
			room_id               TEXT NOT NULL,
			user_id               TEXT NOT NULL,
			webhook_url           TEXT NOT NULL,
			enabled               BOOLEAN NOT NULL DEFAULT true,
			created_at            TIMESTAMPTZ NOT NULL,
			message_data_template TEXT,
			UNIQUE (room_id, user_id, webhook_url)
		)`,
		`CREATE INDEX IF NOT EXISTS webhook_registration_room_idx ON webhook_registration (room_id, enabled)`,
	},
	DriverSQLite: {
		// AUTOINCREMENT keeps ids from being reused after deletes.
		`CREATE TABLE IF NOT EXISTS webhook_registration (
			id                    INTEGER PRIMARY KEY AUTOINCREMENT,
			room_id               TEXT NOT NULL,
			user_id               TEXT NOT NULL,
			webhook_url           TEXT NOT NULL,
			enabled               BOOLEAN NOT NULL DEFAULT true,
			created_at            TIMESTAMP NOT NULL,
			message_data_template TEXT,
			UNIQUE (room_id, user_id, webhook_url)
		)`,
		`CREATE INDEX IF NOT EXISTS webhook_registration_room_idx ON webhook_registration (room_id, enabled)`,
	},
}

// Migrate creates the registration table if it does not exist yet.
func (s *Storage) Migrate(ctx context.Context) error {
	for _, stmt := range schema[s.driver] {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
