package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/HerbHall/pulsedeck/internal/store"
	"github.com/HerbHall/pulsedeck/pkg/models"
)

// defaultTemplates are installed when no active template exists.
var defaultTemplates = []models.NotificationTemplate{
	{
		Name:            "Default System Template",
		TitleTemplate:   "{{severity}} Alert: {{metricName}}",
		MessageTemplate: "{{integrationName}} - {{metricDisplayName}} is {{metricValue}}{{unit}} (threshold: {{threshold}}{{unit}})",
		IsDefault:       true,
	},
	{
		Name:          "Detailed Alert",
		TitleTemplate: "🚨 {{severity}} Alert: {{metricName}}",
		MessageTemplate: "Alert triggered for {{cardName}}\n\n" +
			"**Metric**: {{metricDisplayName}}\n" +
			"**Current Value**: {{metricValue}}{{unit}}\n" +
			"**Threshold**: {{threshold}}{{unit}}\n" +
			"**Source**: {{integrationName}}\n" +
			"**Time**: {{timestamp}}\n\n" +
			"Please investigate immediately.",
	},
	{
		Name:            "Minimal Alert",
		TitleTemplate:   "{{metricName}}",
		MessageTemplate: "{{metricValue}}{{unit}} ({{threshold}}{{unit}})",
	},
	{
		Name:            "Status Change Alert",
		TitleTemplate:   "{{cardName}} Status Changed",
		MessageTemplate: "{{cardName}} status changed from {{oldStatus}} to {{newStatus}}\n\n**Time**: {{timestamp}}",
	},
	{
		Name:          "Critical Alert (Emoji)",
		TitleTemplate: "🔴 CRITICAL: {{metricName}}",
		MessageTemplate: "⚠️ **CRITICAL ALERT** ⚠️\n\n" +
			"**System**: {{cardName}}\n" +
			"**Issue**: {{metricDisplayName}} at {{metricValue}}{{unit}}\n" +
			"**Threshold**: {{threshold}}{{unit}}\n" +
			"**Severity**: {{severity}}\n\n" +
			"🚨 Immediate action required!",
	},
}

// SeedTemplates installs the built-in templates when there are no active
// templates. It returns the number inserted.
func (s *Store) SeedTemplates(ctx context.Context) (int, error) {
	n, err := s.CountActiveTemplates(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	err = store.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := clearDefault(ctx, tx); err != nil {
			return err
		}
		for _, t := range defaultTemplates {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO notification_templates (name, title_template, message_template, is_default, is_active, created_at, updated_at)
				VALUES (?, ?, ?, ?, 1, ?, ?)`,
				t.Name, t.TitleTemplate, t.MessageTemplate, store.BoolInt(t.IsDefault), now, now,
			)
			if err != nil {
				return fmt.Errorf("seed template %q: %w", t.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(defaultTemplates), nil
}
