package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	config "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Config"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.DeviceCtl/firmware"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create, validate and render device profiles",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigValidateCmd())
	cmd.AddCommand(newConfigRenderCmd())
	cmd.AddCommand(newConfigFleetCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		output string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a template device profile",
		Example: `  # Print the template
  gardenctl config init

  # Start a profile for a new node
  gardenctl config init -o bed-1.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := marshalProfile(config.TemplateProfile())
			if err != nil {
				return err
			}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}
			if err := writeFile(output, body, force); err != nil {
				return err
			}
			successColor.Fprintf(cmd.OutOrStdout(), "Template profile written to %s\n", output)
			fmt.Fprintln(cmd.OutOrStdout(), "Edit the WiFi and broker values, then run: gardenctl config validate -f", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func marshalProfile(p config.DeviceProfile) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# Smart garden device profile\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("failed to encode profile: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeFile(path string, body []byte, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}
	}
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func newConfigValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a device profile before flashing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := loadProfileFlag(cmd)
			if err != nil {
				return err
			}
			return reportValidation(cmd.OutOrStdout(), *profile)
		},
	}
	addProfileFlag(cmd)
	return cmd
}

func reportValidation(w io.Writer, profile config.DeviceProfile) error {
	report := profile.Validate()
	printIssues(w, report)
	if !report.OK() {
		return fmt.Errorf("%s: %d error(s)", profile.Source, len(report.Errors))
	}
	successColor.Fprintf(w, "✓ %s is valid", profile.Source)
	if n := len(report.Warnings); n > 0 {
		fmt.Fprintf(w, " (%d warning(s))", n)
	}
	fmt.Fprintln(w)
	return nil
}

func newConfigRenderCmd() *cobra.Command {
	var (
		output string
		force  bool
	)
	cmd := &cobra.Command{
		Use:     "render",
		Short:   "Render the firmware " + firmware.HeaderName + " from a profile",
		Example: `  gardenctl config render -f bed-1.yaml -o firmware/include/config.h`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := loadProfileFlag(cmd)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := firmware.Render(&buf, *profile); err != nil {
				return err
			}
			if output == "" {
				_, err = buf.WriteTo(cmd.OutOrStdout())
				return err
			}
			if err := writeFile(output, buf.Bytes(), force); err != nil {
				return err
			}
			successColor.Fprintf(cmd.OutOrStdout(), "Rendered %s for %s\n", output, profile.DeviceUID)
			return nil
		},
	}
	addProfileFlag(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the header to a file instead of stdout")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newConfigFleetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fleet file...",
		Short: "Check that DEVICE_UID is unique across profiles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			profiles := make([]config.DeviceProfile, 0, len(args))
			for _, path := range args {
				p, err := config.LoadProfile(path)
				if err != nil {
					return err
				}
				profiles = append(profiles, *p)
			}

			dups := config.CheckFleet(profiles)
			if len(dups) == 0 {
				successColor.Fprintf(w, "✓ %d profile(s), every DEVICE_UID is unique\n", len(profiles))
				return nil
			}
			for _, d := range dups {
				errorColor.Fprintf(w, "  ✗ %s", d.DeviceUID)
				fmt.Fprintf(w, " is used by %v\n", d.Sources)
			}
			return fmt.Errorf("%d duplicated DEVICE_UID(s)", len(dups))
		},
	}
}
