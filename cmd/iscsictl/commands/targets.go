package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coregate/iscsid/cmd/iscsictl/cmdutil"
	"github.com/coregate/iscsid/internal/cli/output"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List targets registered with the daemon",
	Long: `List every target IQN the connected iscsid daemon serves.

Examples:
  iscsictl targets
  iscsictl targets -o yaml`,
	RunE: runTargets,
}

func runTargets(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	names, err := client.Targets()
	if err != nil {
		return fmt.Errorf("failed to list targets: %w", err)
	}

	table := output.NewTableData("TARGET NAME")
	for _, n := range names {
		table.AddRow(n)
	}

	return cmdutil.PrintOutput(os.Stdout, names, len(names) == 0, "No targets registered.", table)
}
