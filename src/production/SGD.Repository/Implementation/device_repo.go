package implementation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
	interfaces "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Repository/Interfaces"
)

const deviceColumns = `id, device_uid, name, auto_mode, created_at, updated_at, deleted_at`

type PostgresDeviceRepository struct {
	db *sql.DB
}

func NewPostgresDeviceRepository(db *sql.DB) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{db: db}
}

// Create device
func (r *PostgresDeviceRepository) Create(ctx context.Context, device *sgdmodels.Device) error {
	query := `
		INSERT INTO devices (device_uid, name, auto_mode, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query, device.DeviceUID, device.Name, device.AutoMode).
		Scan(&device.ID, &device.CreatedAt, &device.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return interfaces.ErrDuplicate
		}
		return fmt.Errorf("failed to insert device: %w", err)
	}
	return nil
}

// Read devices
func (r *PostgresDeviceRepository) GetByUID(ctx context.Context, deviceUID string) (*sgdmodels.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE device_uid = $1`

	device, err := scanDevice(r.db.QueryRowContext(ctx, query, deviceUID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, err
	}
	return device, nil
}

func (r *PostgresDeviceRepository) ListActive(ctx context.Context) ([]sgdmodels.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE deleted_at IS NULL ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := make([]sgdmodels.Device, 0)
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *device)
	}

	return devices, rows.Err()
}

func (r *PostgresDeviceRepository) ExistsActive(ctx context.Context, deviceUID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM devices WHERE device_uid = $1 AND deleted_at IS NULL)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, deviceUID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Update device
func (r *PostgresDeviceRepository) UpdateName(ctx context.Context, deviceUID, name string) (*sgdmodels.Device, error) {
	query := `
		UPDATE devices
		SET name = $1, updated_at = NOW()
		WHERE device_uid = $2
		RETURNING ` + deviceColumns

	device, err := scanDevice(r.db.QueryRowContext(ctx, query, name, deviceUID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, err
	}
	return device, nil
}

func (r *PostgresDeviceRepository) SetAutoMode(ctx context.Context, deviceUID string, autoMode bool) error {
	query := `UPDATE devices SET auto_mode = $1, updated_at = NOW() WHERE device_uid = $2`
	return r.execOne(ctx, query, autoMode, deviceUID)
}

// Soft delete and restore
func (r *PostgresDeviceRepository) SoftDelete(ctx context.Context, deviceUID string) error {
	query := `UPDATE devices SET deleted_at = NOW(), updated_at = NOW() WHERE device_uid = $1`
	return r.execOne(ctx, query, deviceUID)
}

func (r *PostgresDeviceRepository) Restore(ctx context.Context, deviceUID string) error {
	query := `UPDATE devices SET deleted_at = NULL, updated_at = NOW() WHERE device_uid = $1`
	return r.execOne(ctx, query, deviceUID)
}

func (r *PostgresDeviceRepository) execOne(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return interfaces.ErrNotFound
	}

	return nil
}

func scanDevice(row rowScanner) (*sgdmodels.Device, error) {
	var device sgdmodels.Device
	var deletedAt sql.NullTime
	err := row.Scan(&device.ID, &device.DeviceUID, &device.Name, &device.AutoMode,
		&device.CreatedAt, &device.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		device.DeletedAt = &t
	}
	return &device, nil
}
