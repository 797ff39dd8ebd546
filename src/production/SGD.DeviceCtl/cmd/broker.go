package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.DeviceCtl/probe"
)

type brokerFlags struct {
	useTLS  bool
	caFile  string
	timeout time.Duration
}

func (f *brokerFlags) register(cmd *cobra.Command) {
	f.registerTLS(cmd)
	cmd.Flags().DurationVar(&f.timeout, "timeout", 5*time.Second, "connect timeout")
}

func (f *brokerFlags) registerTLS(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.useTLS, "tls", false, "connect with TLS (tcps://)")
	cmd.Flags().StringVar(&f.caFile, "ca", "", "CA certificate for --tls")
}

func newBrokerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "broker",
		Short: "MQTT broker checks",
	}
	cmd.AddCommand(newBrokerTestCmd())
	return cmd
}

func newBrokerTestCmd() *cobra.Command {
	var flags brokerFlags
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Connect to the broker with a profile's credentials",
		Long: `Open a TCP connection to MQTT_BROKER:MQTT_PORT, then perform an MQTT CONNECT
with the profile's username and password, as the device would.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := loadProfileFlag(cmd)
			if err != nil {
				return err
			}
			target := probe.TargetFromProfile(*profile)
			target.UseTLS = flags.useTLS
			target.CAFile = flags.caFile

			report := probe.TestBroker(cmd.Context(), target, flags.timeout)
			printBrokerReport(cmd.OutOrStdout(), report)
			if !report.OK() {
				return fmt.Errorf("broker test failed: %s", report.Failure)
			}
			return nil
		},
	}
	addProfileFlag(cmd)
	flags.register(cmd)
	return cmd
}

func printBrokerReport(w io.Writer, r probe.BrokerReport) {
	headingColor.Fprintf(w, "Broker %s\n", r.Target)
	if r.TCPOpen {
		successColor.Fprint(w, "  ✓ ")
		fmt.Fprintf(w, "TCP port open (%v)\n", r.TCPLatency.Round(time.Microsecond))
	}
	if r.Connected {
		successColor.Fprint(w, "  ✓ ")
		fmt.Fprintln(w, "MQTT session accepted")
		return
	}
	errorColor.Fprintf(w, "  ✗ %s: ", r.Failure)
	fmt.Fprintln(w, r.Error)
	printHints(w, r.Suggestions)
}
