package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"qsafp-harness/internal/hal"
	"qsafp-harness/internal/scenario"
)

// NewPresetsCommand はプリセット一覧コマンドを作成する
func NewPresetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List built-in scenario presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "利用可能なプリセットシナリオ:")
			fmt.Fprintln(out)
			for _, name := range scenario.ListPresets() {
				p, _ := scenario.GetPreset(name)
				threats := 0
				for _, sc := range p.Scenarios {
					threats += len(sc.Threats)
				}
				fmt.Fprintf(out, "  %-12s %s\n", p.Name, p.Description)
				fmt.Fprintf(out, "  %-12s scenarios=%d threats=%d\n", "", len(p.Scenarios), threats)
			}
			return nil
		},
	}
}

// NewVendorsCommand はHALベンダー一覧コマンドを作成する
func NewVendorsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "vendors",
		Short: "List HAL vendors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range hal.List() {
				marker := ""
				if name == hal.DefaultVendor {
					marker = " (default)"
				}
				fmt.Fprintf(out, "  %-10s biometric=%v%s\n", name, hal.SupportsBiometric(name), marker)
			}
			return nil
		},
	}
}

// NewVersionCommand はバージョン表示コマンドを作成する
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "qsafp-harness version %s\n", Version)
		},
	}
}
