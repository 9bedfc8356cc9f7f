package db

import (
	"database/sql"
	"fmt"
)

// Statements run in order on startup; each is idempotent so restarts are safe.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		email TEXT UNIQUE,
		password TEXT,
		is_anonymous BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS tasks (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		principal UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		text TEXT NOT NULL,
		completed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_tasks_principal ON tasks (principal)`,

	`CREATE TABLE IF NOT EXISTS analytics_events (
		id BIGSERIAL PRIMARY KEY,
		event_name TEXT NOT NULL,
		event_time TIMESTAMPTZ NOT NULL,
		principal UUID,
		source_event_key TEXT UNIQUE,
		properties JSONB
	)`,

	// Every change to a principal's tasks pings the feed channel with that
	// principal, so listeners can re-query the full snapshot.
	`CREATE OR REPLACE FUNCTION notify_tasks_changed() RETURNS TRIGGER AS $$
	BEGIN
		IF TG_OP = 'DELETE' THEN
			PERFORM pg_notify('tasks_changed', OLD.principal::text);
			RETURN OLD;
		END IF;
		PERFORM pg_notify('tasks_changed', NEW.principal::text);
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,

	`DROP TRIGGER IF EXISTS tasks_changed_trigger ON tasks`,

	`CREATE TRIGGER tasks_changed_trigger
		AFTER INSERT OR UPDATE OR DELETE ON tasks
		FOR EACH ROW EXECUTE FUNCTION notify_tasks_changed()`,
}

func Migrate(db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i, err)
		}
	}
	return nil
}
