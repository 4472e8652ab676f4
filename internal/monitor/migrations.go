package monitor

import (
	"database/sql"

	"github.com/HerbHall/pulsedeck/internal/store"
)

// Migrations returns the schema owned by the monitor component.
func Migrations() []store.Migration {
	return []store.Migration{
		{
			Version:     1,
			Description: "create integrations table",
			Up: func(tx *sql.Tx) error {
				return store.ExecAll(tx,
					`CREATE TABLE IF NOT EXISTS integrations (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						service_name TEXT NOT NULL,
						service_type TEXT NOT NULL CHECK (service_type IN ('uptime-kuma', 'netdata', 'unraid')),
						credentials TEXT NOT NULL,
						poll_interval_ms INTEGER NOT NULL DEFAULT 30000,
						is_active INTEGER NOT NULL DEFAULT 1,
						last_poll_at DATETIME,
						last_status TEXT,
						created_at DATETIME NOT NULL,
						updated_at DATETIME NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_integrations_active ON integrations(is_active)`,
				)
			},
		},
		{
			Version:     2,
			Description: "create cards table",
			Up: func(tx *sql.Tx) error {
				return store.ExecAll(tx,
					`CREATE TABLE IF NOT EXISTS cards (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						name TEXT NOT NULL,
						integration_id INTEGER REFERENCES integrations(id) ON DELETE SET NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_cards_integration ON cards(integration_id)`,
				)
			},
		},
	}
}
