package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	config "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Config"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.DeviceCtl/probe"
)

func newDoctorCmd() *cobra.Command {
	var flags brokerFlags
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose why a device cannot reach the broker",
		Long: `Run every check in order: profile validation, host reachability and the
broker test. Each failed step prints the likely causes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := loadProfileFlag(cmd)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			failed := 0

			step(w, 1, "Profile")
			if err := reportValidation(w, *profile); err != nil {
				// broker checks need a usable address
				return err
			}

			step(w, 2, "Reachability of "+profile.MQTTBroker)
			ping, err := probe.Ping(cmd.Context(), profile.MQTTBroker, probe.PingOptions{
				Count:        2,
				Timeout:      flags.timeout,
				FallbackPort: profile.MQTTPort,
			})
			switch {
			case err != nil:
				failed++
				errorColor.Fprint(w, "  ✗ ")
				fmt.Fprintln(w, err)
				if errors.Is(err, probe.ErrResolve) {
					printHints(w, probe.Hints(probe.FailureResolve, profile.MQTTPort))
				}
			default:
				printPing(w, ping)
				if !ping.Reachable() {
					failed++
					printHints(w, probe.Hints(probe.FailureTimeout, profile.MQTTPort))
				}
			}

			step(w, 3, "Broker")
			target := probe.TargetFromProfile(*profile)
			target.UseTLS = flags.useTLS
			target.CAFile = flags.caFile
			report := probe.TestBroker(cmd.Context(), target, flags.timeout)
			printBrokerReport(w, report)
			if !report.OK() {
				failed++
			}

			printPortNote(w, profile.MQTTPort)
			fmt.Fprintln(w)
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			successColor.Fprintf(w, "✓ %s should be able to reach the broker\n", profile.DeviceUID)
			return nil
		},
	}
	addProfileFlag(cmd)
	flags.register(cmd)
	return cmd
}

func step(w io.Writer, n int, title string) {
	headingColor.Fprintf(w, "\n[%d] %s\n", n, title)
}

func printPortNote(w io.Writer, port int) {
	switch port {
	case config.ContainerBrokerPort:
		fmt.Fprintf(w, "\nPort %d is the docker-compose mapping; the container itself listens on %d.\n",
			port, config.NativeBrokerPort)
	case config.NativeBrokerPort:
		fmt.Fprintf(w, "\nPort %d targets a broker running directly on the host, not the compose stack (%d).\n",
			port, config.ContainerBrokerPort)
	}
}
