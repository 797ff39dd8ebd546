package health

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DatabaseManager handles database operations
type DatabaseManager struct {
	db *sql.DB
}

// NewDatabaseManager creates a new database manager
func NewDatabaseManager(db *sql.DB) *DatabaseManager {
	return &DatabaseManager{db: db}
}

// CreateTables creates the required tables if they don't exist
func (dm *DatabaseManager) CreateTables(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	createDevicesTable := `
		CREATE TABLE IF NOT EXISTS devices (
			id          BIGSERIAL PRIMARY KEY,
			device_uid  VARCHAR(100) NOT NULL UNIQUE,
			name        VARCHAR(255) NOT NULL,
			auto_mode   BOOLEAN NOT NULL DEFAULT false,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted_at  TIMESTAMPTZ
		);
	`

	createThresholdsTable := `
		CREATE TABLE IF NOT EXISTS threshold_settings (
			id                         BIGSERIAL PRIMARY KEY,
			device_uid                 VARCHAR(100) NOT NULL UNIQUE,
			min_soil_moisture          NUMERIC(5,2) NOT NULL DEFAULT 0,
			max_pump_duration_seconds  INTEGER NOT NULL DEFAULT 10,
			is_active                  BOOLEAN NOT NULL DEFAULT false,
			created_at                 TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at                 TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`

	createIndexes := `
		CREATE INDEX IF NOT EXISTS idx_devices_active ON devices (device_uid) WHERE deleted_at IS NULL;
	`

	queries := []string{
		createDevicesTable,
		createThresholdsTable,
		createIndexes,
	}

	for _, query := range queries {
		if _, err := dm.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}
