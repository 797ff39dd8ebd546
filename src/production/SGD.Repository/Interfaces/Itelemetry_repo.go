package interfaces

import (
	"context"
	"time"

	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
)

type TelemetryRepository interface {
	InsertMany(ctx context.Context, logs []sgdmodels.TelemetryLog) error

	// FindRange returns logs with from <= logTime <= to, oldest first
	FindRange(ctx context.Context, deviceUID string, from, to time.Time) ([]sgdmodels.TelemetryLog, error)

	Ping(ctx context.Context) error
}
