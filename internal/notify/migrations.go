package notify

import (
	"database/sql"

	"github.com/HerbHall/pulsedeck/internal/store"
)

// Migrations returns the notify schema. Rules reference integrations and
// cards only logically through target_id, so the notify component does not
// depend on the monitor schema.
func Migrations() []store.Migration {
	return []store.Migration{
		{
			Version:     1,
			Description: "create webhook_configs table",
			Up: func(tx *sql.Tx) error {
				return store.ExecAll(tx, `
					CREATE TABLE webhook_configs (
						id            INTEGER PRIMARY KEY AUTOINCREMENT,
						name          TEXT     NOT NULL,
						provider_type TEXT     NOT NULL CHECK (provider_type IN ('discord', 'telegram', 'pushover')),
						webhook_url   TEXT     NOT NULL,
						is_active     INTEGER  NOT NULL DEFAULT 1,
						created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`)
			},
		},
		{
			Version:     2,
			Description: "create notification_templates table",
			Up: func(tx *sql.Tx) error {
				return store.ExecAll(tx, `
					CREATE TABLE notification_templates (
						id               INTEGER PRIMARY KEY AUTOINCREMENT,
						name             TEXT     NOT NULL,
						title_template   TEXT     NOT NULL,
						message_template TEXT     NOT NULL,
						is_default       INTEGER  NOT NULL DEFAULT 0,
						is_active        INTEGER  NOT NULL DEFAULT 1,
						created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE UNIQUE INDEX idx_templates_single_default
						ON notification_templates(is_default) WHERE is_default = 1`,
				)
			},
		},
		{
			Version:     3,
			Description: "create notification_rules table",
			Up: func(tx *sql.Tx) error {
				return store.ExecAll(tx, `
					CREATE TABLE notification_rules (
						id                    INTEGER PRIMARY KEY AUTOINCREMENT,
						name                  TEXT     NOT NULL,
						webhook_id            INTEGER  NOT NULL REFERENCES webhook_configs(id) ON DELETE CASCADE,
						target_type           TEXT     NOT NULL CHECK (target_type IN ('all', 'card', 'integration')),
						target_id             INTEGER,
						metric_type           TEXT     NOT NULL,
						condition_type        TEXT     NOT NULL CHECK (condition_type IN ('threshold', 'status_change')),
						operator              TEXT,
						threshold             REAL,
						from_status           TEXT,
						to_status             TEXT,
						severity              TEXT     NOT NULL DEFAULT 'warning',
						cooldown_minutes      INTEGER  NOT NULL DEFAULT 30,
						is_active             INTEGER  NOT NULL DEFAULT 1,
						template_id           INTEGER  REFERENCES notification_templates(id) ON DELETE SET NULL,
						aggregation_enabled   INTEGER  NOT NULL DEFAULT 0,
						aggregation_window_ms INTEGER  NOT NULL DEFAULT 0,
						created_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						updated_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE INDEX idx_rules_active ON notification_rules(is_active)`,
					`CREATE INDEX idx_rules_webhook ON notification_rules(webhook_id)`,
				)
			},
		},
	}
}
