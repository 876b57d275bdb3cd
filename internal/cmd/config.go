package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML, secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			data, err := cfg.YAML()
			if err != nil {
				return err
			}
			return writeString(cmd.OutOrStdout(), string(data))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and list the transports it builds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd, nil)
			if err != nil {
				return err
			}

			supported := make(map[string]bool)
			for _, kind := range a.newFactory().GetSupportedTransports() {
				supported[kind] = true
			}

			t := table.NewWriter()
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{"#", "Name", "Type", "Enabled", "Breaker"})
			for i, tc := range cfg.Transports {
				if !supported[tc.Type] {
					return Exit(ExitConfigInvalid, fmt.Errorf("transport %q: unknown type %q", tc.Name, tc.Type))
				}
				t.AppendRow(table.Row{i + 1, tc.Name, tc.Type, !tc.Disabled, tc.Breaker != nil})
			}

			schedule := cfg.Dispatch.Schedule()
			out := t.Render() + fmt.Sprintf(
				"\nconfiguration is valid: %d attempts per transport, base delay %s, rate interval %s\n",
				schedule.MaxAttempts, schedule.BaseDelay, cfg.Dispatch.RateLimitInterval)
			return writeString(cmd.OutOrStdout(), out)
		},
	})

	return cmd
}
