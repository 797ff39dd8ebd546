package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	config "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Config"
)

// Version is overridden at build time with -ldflags
var Version = "dev"

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warnColor    = color.New(color.FgYellow)
	hintColor    = color.New(color.FgGreen)
	successColor = color.New(color.FgGreen, color.Bold)
	headingColor = color.New(color.FgCyan, color.Bold)
)

// NewRootCmd builds the gardenctl command tree
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gardenctl",
		Short: "Provisioning and diagnostics for smart garden devices",
		Long: `gardenctl prepares ESP32 garden nodes and checks that they can reach the broker.

It writes and validates device profiles, renders the firmware config.h header,
probes the network and the MQTT broker, and can run a virtual device that
speaks the same protocol as the firmware.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(newConfigCmd())
	root.AddCommand(newNetCmd())
	root.AddCommand(newBrokerCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newSimulateCmd())
	return root
}

// Execute runs gardenctl and exits non-zero on failure
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		errorColor.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func verboseFlag(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("verbose")
	return v
}

// loadProfileFlag reads the profile named by -f
func loadProfileFlag(cmd *cobra.Command) (*config.DeviceProfile, error) {
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		return nil, fmt.Errorf("a profile is required, pass it with -f")
	}
	return config.LoadProfile(path)
}

func addProfileFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("file", "f", "", "device profile (YAML)")
	_ = cmd.MarkFlagFilename("file", "yaml", "yml")
}

func printIssues(w io.Writer, report config.ValidationReport) {
	for _, issue := range report.Errors {
		errorColor.Fprint(w, "  ✗ ")
		fmt.Fprintln(w, issue.String())
	}
	for _, issue := range report.Warnings {
		warnColor.Fprint(w, "  ! ")
		fmt.Fprintln(w, issue.String())
	}
}

func printHints(w io.Writer, hints []string) {
	for _, h := range hints {
		hintColor.Fprintf(w, "  → %s\n", h)
	}
}
