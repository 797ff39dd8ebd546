package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	config "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Config"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/metrics"
	logger "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Logger"
	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
	api_models "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models/api"
	interfaces "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Repository/Interfaces"
)

const queueSize = 4096

// DeviceChecker tells whether a UID belongs to a registered device
type DeviceChecker interface {
	ExistsActive(ctx context.Context, deviceUID string) (bool, error)
}

// Service buffers telemetry logs and writes them in batches
type Service struct {
	repo    interfaces.TelemetryRepository
	devices DeviceChecker
	cfg     config.BatchConfig
	logger  *logger.Logger
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	logCh  chan sgdmodels.TelemetryLog
	wg     sync.WaitGroup
}

func NewService(repo interfaces.TelemetryRepository, devices DeviceChecker, cfg config.BatchConfig, log *logger.Logger) *Service {
	return &Service{
		repo:    repo,
		devices: devices,
		cfg:     cfg,
		logger:  log.WithComponent("telemetry"),
		now:     time.Now,
		logCh:   make(chan sgdmodels.TelemetryLog, queueSize),
	}
}

// Start runs the batch writer until ctx is done or Stop is called
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.batchWriter(ctx)
	}()
}

// Stop flushes what is queued and waits for the writer
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.logCh)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Save queues a snapshot of the state's sensors, stamped now
func (s *Service) Save(state *sgdmodels.DeviceState) {
	entry := sgdmodels.NewTelemetryLog(state, s.now().UTC())

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		metrics.TelemetryDropped.WithLabelValues("stopped").Inc()
		return
	}
	select {
	case s.logCh <- *entry:
	default:
		metrics.TelemetryDropped.WithLabelValues("queue_full").Inc()
		s.logger.WithDevice(state.DeviceUID).Logger.Warn().Msg("Telemetry queue full, dropping log")
	}
}

// History returns the logs of deviceUID between from and to inclusive, oldest first
func (s *Service) History(ctx context.Context, deviceUID string, from, to time.Time) ([]sgdmodels.TelemetryLog, error) {
	if from.After(to) {
		return nil, api_models.NewAppError(api_models.ErrInvalidRequest, "from must not be after to")
	}

	exists, err := s.devices.ExistsActive(ctx, deviceUID)
	if err != nil {
		return nil, api_models.WrapInternal(fmt.Errorf("failed to check device %s: %w", deviceUID, err))
	}
	if !exists {
		return nil, api_models.DeviceNotFound(deviceUID)
	}

	logs, err := s.repo.FindRange(ctx, deviceUID, from, to)
	if err != nil {
		return nil, api_models.WrapInternal(err)
	}
	return logs, nil
}

func (s *Service) batchWriter(ctx context.Context) {
	batch := make([]sgdmodels.TelemetryLog, 0, s.cfg.Size)
	timer := time.NewTimer(s.cfg.Window)
	defer timer.Stop()

	// the flush outlives ctx so a shutdown still persists the last batch
	writeCtx := context.WithoutCancel(ctx)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.writeBatch(writeCtx, batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case entry, ok := <-s.logCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= s.cfg.Size {
				flush()
				timer.Reset(s.cfg.Window)
			}
		case <-timer.C:
			flush()
			timer.Reset(s.cfg.Window)
		}
	}
}

// writeBatch drops logs of unregistered devices and inserts the rest
func (s *Service) writeBatch(ctx context.Context, batch []sgdmodels.TelemetryLog) {
	known := make(map[string]bool)
	keep := make([]sgdmodels.TelemetryLog, 0, len(batch))
	createdAt := s.now().UTC()

	for _, entry := range batch {
		ok, seen := known[entry.DeviceUID]
		if !seen {
			exists, err := s.devices.ExistsActive(ctx, entry.DeviceUID)
			if err != nil {
				s.logger.WithDevice(entry.DeviceUID).ErrorWithError(err, "Failed to check device, keeping log")
				exists = true
			}
			known[entry.DeviceUID] = exists
			ok = exists
		}
		if !ok {
			metrics.TelemetryDropped.WithLabelValues("unknown_device").Inc()
			s.logger.WithDevice(entry.DeviceUID).Logger.Warn().Msg("Skipping telemetry: device not registered")
			continue
		}
		entry.CreatedAt = createdAt
		keep = append(keep, entry)
	}

	if len(keep) == 0 {
		return
	}
	if err := s.repo.InsertMany(ctx, keep); err != nil {
		metrics.TelemetryDropped.WithLabelValues("write_error").Add(float64(len(keep)))
		s.logger.ErrorWithError(err, "Failed to write telemetry batch")
		return
	}
	metrics.TelemetryWritten.Add(float64(len(keep)))
	s.logger.Logger.Debug().Int("count", len(keep)).Msg("Telemetry batch written")
}
