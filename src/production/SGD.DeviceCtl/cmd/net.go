package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.DeviceCtl/probe"
)

func newNetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "net",
		Short: "Network checks for the broker host",
	}
	cmd.AddCommand(newHostIPCmd())
	cmd.AddCommand(newPingCmd())
	return cmd
}

func newHostIPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hostip",
		Short: "List this machine's IPv4 addresses",
		Long: `List the IPv4 address of every active interface. One of these is the
MQTT_BROKER value a device on the same network should use.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addrs, err := probe.HostIPv4s()
			if err != nil {
				return err
			}
			if len(addrs) == 0 {
				warnColor.Fprintln(cmd.OutOrStdout(), "No active IPv4 interface found")
				return nil
			}
			return renderAddrTable(cmd.OutOrStdout(), addrs)
		},
	}
}

func renderAddrTable(w io.Writer, addrs []probe.InterfaceAddr) error {
	data := pterm.TableData{{"INTERFACE", "IPV4"}}
	for _, a := range addrs {
		data = append(data, []string{a.Interface, a.Address})
	}
	out, err := pterm.DefaultTable.WithHasHeader(true).WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func newPingCmd() *cobra.Command {
	var (
		count   int
		timeout time.Duration
		port    int
	)
	cmd := &cobra.Command{
		Use:   "ping host",
		Short: "Check that a host answers, over ICMP or TCP",
		Long: `Send ICMP echo requests to a host. When this user may not open ICMP sockets
and --port is set, connect times to that TCP port are measured instead.`,
		Example: `  gardenctl net ping 192.168.1.100 -c 3
  gardenctl net ping broker.local --port 18883`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := probe.Ping(cmd.Context(), args[0], probe.PingOptions{
				Count:        count,
				Timeout:      timeout,
				FallbackPort: port,
			})
			if err != nil {
				return err
			}
			printPing(cmd.OutOrStdout(), result)
			if !result.Reachable() {
				return fmt.Errorf("%s did not answer", args[0])
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "c", 4, "number of probes")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "wait per probe")
	cmd.Flags().IntVar(&port, "port", 0, "TCP port to use when ICMP is not permitted")
	return cmd
}

func printPing(w io.Writer, r *probe.PingResult) {
	headingColor.Fprintf(w, "%s (%s) via %s\n", r.Host, r.Addr, r.Method)
	for i, rtt := range r.RTTs {
		fmt.Fprintf(w, "  reply %d: %v\n", i+1, rtt.Round(10*time.Microsecond))
	}
	summary := fmt.Sprintf("%d sent, %d received, %.0f%% loss", r.Sent, r.Received, r.Loss())
	if r.Reachable() {
		successColor.Fprintln(w, summary)
	} else {
		errorColor.Fprintln(w, summary)
	}
}
