package implementation

import (
	"context"
	"database/sql"
	"errors"

	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
	interfaces "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Repository/Interfaces"
)

type PostgresThresholdRepository struct {
	db *sql.DB
}

func NewPostgresThresholdRepository(db *sql.DB) *PostgresThresholdRepository {
	return &PostgresThresholdRepository{db: db}
}

func (r *PostgresThresholdRepository) Get(ctx context.Context, deviceUID string) (*sgdmodels.ThresholdSetting, error) {
	query := `
		SELECT id, device_uid, min_soil_moisture, max_pump_duration_seconds, is_active, created_at, updated_at
		FROM threshold_settings WHERE device_uid = $1
	`

	setting, err := scanThreshold(r.db.QueryRowContext(ctx, query, deviceUID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, err
	}
	return setting, nil
}

// Upsert setting (idempotent on device_uid)
func (r *PostgresThresholdRepository) Upsert(ctx context.Context, setting *sgdmodels.ThresholdSetting) (*sgdmodels.ThresholdSetting, error) {
	query := `
		INSERT INTO threshold_settings (device_uid, min_soil_moisture, max_pump_duration_seconds, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (device_uid)
		DO UPDATE SET min_soil_moisture = EXCLUDED.min_soil_moisture,
			max_pump_duration_seconds = EXCLUDED.max_pump_duration_seconds,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
		RETURNING id, device_uid, min_soil_moisture, max_pump_duration_seconds, is_active, created_at, updated_at
	`

	return scanThreshold(r.db.QueryRowContext(ctx, query,
		setting.DeviceUID, setting.MinSoilMoisture, setting.MaxPumpDurationSeconds, setting.IsActive))
}

func scanThreshold(row rowScanner) (*sgdmodels.ThresholdSetting, error) {
	var s sgdmodels.ThresholdSetting
	if err := row.Scan(&s.ID, &s.DeviceUID, &s.MinSoilMoisture, &s.MaxPumpDurationSeconds,
		&s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
