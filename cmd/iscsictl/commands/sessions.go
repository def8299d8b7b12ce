package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/coregate/iscsid/cmd/iscsictl/cmdutil"
	"github.com/coregate/iscsid/internal/cli/output"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List active iSCSI sessions",
	Long: `List every active iSCSI session on the connected target.

Examples:
  iscsictl sessions
  iscsictl sessions -o json`,
	RunE: runSessions,
}

func runSessions(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	sessions, err := client.Sessions()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	table := output.NewTableData("CONN ID", "INITIATOR", "TARGET", "REMOTE ADDR", "TSIH", "STAGE")
	for _, s := range sessions {
		tsih := ""
		if s.TSIH != 0 {
			tsih = strconv.FormatUint(uint64(s.TSIH), 10)
		}
		table.AddRow(s.ConnID, s.InitiatorName, s.TargetName, s.RemoteAddr, tsih, s.Stage)
	}

	return cmdutil.PrintOutput(os.Stdout, sessions, len(sessions) == 0, "No active sessions.", table)
}
