package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	config "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Config"
	logger "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Logger"
	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
)

// DeviceLookup returns registered, non-deleted devices
type DeviceLookup interface {
	Get(ctx context.Context, deviceUID string) (*sgdmodels.Device, error)
}

// Assistant is the AI service used by the proactive job
type Assistant interface {
	Chat(ctx context.Context, message, deviceUID string) (string, error)
	Analyze(ctx context.Context, message, deviceUID string) (string, error)
}

// OfflineSweeper flips silent devices to OFFLINE
type OfflineSweeper interface {
	MarkStaleOffline(ctx context.Context, maxSilence time.Duration) ([]string, error)
}

const jobTimeout = 2 * time.Minute

// Scheduler runs the garden's periodic jobs
type Scheduler struct {
	cfg       config.AutomationConfig
	cron      *cron.Cron
	devices   DeviceLookup
	assistant Assistant
	sweeper   OfflineSweeper
	logger    *logger.Logger
}

func NewScheduler(cfg config.AutomationConfig, devices DeviceLookup, assistant Assistant, sweeper OfflineSweeper, log *logger.Logger) (*Scheduler, error) {
	log = log.WithComponent("automation")
	cronLog := cronLogger{log}

	s := &Scheduler{
		cfg: cfg,
		cron: cron.New(
			cron.WithParser(cron.NewParser(
				cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor,
			)),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
			cron.WithLogger(cronLog),
		),
		devices:   devices,
		assistant: assistant,
		sweeper:   sweeper,
		logger:    log,
	}

	if cfg.Enabled {
		if _, err := s.cron.AddFunc(cfg.Cron, s.runAutomationJob); err != nil {
			return nil, fmt.Errorf("invalid AUTOMATION_CRON %q: %w", cfg.Cron, err)
		}
	}
	if cfg.SweepCron != "" && cfg.OfflineAfter > 0 {
		if _, err := s.cron.AddFunc(cfg.SweepCron, s.runSweepJob); err != nil {
			return nil, fmt.Errorf("invalid DEVICE_SWEEP_CRON %q: %w", cfg.SweepCron, err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.logger.Logger.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
	s.cron.Start()
}

// Stop waits for running jobs to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Logger.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) runAutomationJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	s.RunAutomation(ctx)
}

func (s *Scheduler) runSweepJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	s.SweepOffline(ctx)
}

// RunAutomation asks the assistant about every configured device.
// AUTO devices get Chat so tool calls execute; MANUAL devices only get Analyze.
func (s *Scheduler) RunAutomation(ctx context.Context) {
	for _, uid := range s.cfg.DeviceUIDs {
		log := s.logger.WithDevice(uid)

		device, err := s.devices.Get(ctx, uid)
		if err != nil {
			log.Logger.Warn().Err(err).Msg("Automation skipped, device not available")
			continue
		}

		var reply string
		if device.AutoMode {
			log.Logger.Info().Msg("AUTO mode, assistant may act on the device")
			reply, err = s.assistant.Chat(ctx, s.cfg.Prompt, uid)
		} else {
			log.Logger.Info().Msg("MANUAL mode, assistant will only notify")
			reply, err = s.assistant.Analyze(ctx, s.cfg.Prompt, uid)
		}
		if err != nil {
			log.ErrorWithError(err, "Automation run failed")
			continue
		}
		log.Logger.Info().Bool("auto_mode", device.AutoMode).Str("decision", reply).Msg("Automation decision")
	}
}

// SweepOffline marks devices silent for longer than OfflineAfter as OFFLINE
func (s *Scheduler) SweepOffline(ctx context.Context) {
	marked, err := s.sweeper.MarkStaleOffline(ctx, s.cfg.OfflineAfter)
	if err != nil {
		s.logger.ErrorWithError(err, "Offline sweep failed")
		return
	}
	if len(marked) > 0 {
		s.logger.Logger.Info().Strs("devices", marked).Msg("Devices marked offline")
	}
}

// cronLogger routes cron's own messages into zerolog
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
