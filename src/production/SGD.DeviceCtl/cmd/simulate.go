package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	config "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Config"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.DeviceCtl/simulator"
	logger "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Logger"
)

func newSimulateCmd() *cobra.Command {
	var (
		flags    brokerFlags
		interval time.Duration
		seed     uint64
		soil     float64
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a virtual ESP32 node against the broker",
		Long: `Connect to the broker as the profile's device and behave like the firmware:
report ONLINE (with an OFFLINE last will), publish telemetry on an interval and
apply pump, light and mode commands, echoing the resulting state.

Stop with Ctrl+C; the device reports OFFLINE before disconnecting.`,
		Example: `  gardenctl simulate -f bed-1.yaml --interval 2s --soil 25`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := loadProfileFlag(cmd)
			if err != nil {
				return err
			}
			if err := profile.Validate().Err(); err != nil {
				return err
			}

			level := "info"
			if verboseFlag(cmd) {
				level = "debug"
			}
			log := logger.NewLogger(&config.LoggingConfig{Level: level, Format: "text", Output: "stderr"})

			sim := simulator.New(simulator.Options{
				Profile:           *profile,
				TelemetryInterval: interval,
				UseTLS:            flags.useTLS,
				CAFile:            flags.caFile,
				Seed:              seed,
			}, log)
			if cmd.Flags().Changed("soil") {
				sim.Device().SetSoilMoisture(soil)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return sim.Run(ctx)
		},
	}
	addProfileFlag(cmd)
	flags.registerTLS(cmd)
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "telemetry interval")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed for sensor drift (0 picks one)")
	cmd.Flags().Float64Var(&soil, "soil", 0, "initial soil moisture in percent")
	return cmd
}
