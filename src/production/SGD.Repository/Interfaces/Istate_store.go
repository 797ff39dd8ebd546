package interfaces

import (
	"context"

	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
)

// StateStore caches the real-time state of each device
type StateStore interface {
	// Get returns ErrNotFound when nothing is cached
	Get(ctx context.Context, deviceUID string) (*sgdmodels.DeviceState, error)
	Put(ctx context.Context, state *sgdmodels.DeviceState) error
	ListUIDs(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}
