package interfaces

import (
	"context"

	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
)

type ThresholdRepository interface {
	// Get returns ErrNotFound when the device has no setting
	Get(ctx context.Context, deviceUID string) (*sgdmodels.ThresholdSetting, error)

	// Upsert creates or replaces the setting keyed by device UID
	Upsert(ctx context.Context, setting *sgdmodels.ThresholdSetting) (*sgdmodels.ThresholdSetting, error)
}
