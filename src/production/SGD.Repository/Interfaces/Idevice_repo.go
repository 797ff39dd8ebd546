package interfaces

import (
	"context"
	"errors"

	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
)

var (
	// ErrNotFound is returned when no row matches
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique key already exists
	ErrDuplicate = errors.New("duplicate")
)

type DeviceRepository interface {
	// Create inserts a new device; a taken UID gives ErrDuplicate
	Create(ctx context.Context, device *sgdmodels.Device) error

	// Read devices. GetByUID also returns soft deleted rows.
	GetByUID(ctx context.Context, deviceUID string) (*sgdmodels.Device, error)
	ListActive(ctx context.Context) ([]sgdmodels.Device, error)
	ExistsActive(ctx context.Context, deviceUID string) (bool, error)

	// Update device
	UpdateName(ctx context.Context, deviceUID, name string) (*sgdmodels.Device, error)
	SetAutoMode(ctx context.Context, deviceUID string, autoMode bool) error

	// Soft delete and restore
	SoftDelete(ctx context.Context, deviceUID string) error
	Restore(ctx context.Context, deviceUID string) error
}
