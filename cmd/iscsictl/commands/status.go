package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coregate/iscsid/cmd/iscsictl/cmdutil"
	"github.com/coregate/iscsid/internal/cli/output"
	"github.com/coregate/iscsid/pkg/apiclient"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show target daemon health",
	Long: `Check the health of the connected iscsid daemon.

Examples:
  # Check status of the configured server
  iscsictl status

  # Output as JSON
  iscsictl status -o json`,
	RunE: runStatus,
}

// serverStatus is the display shape of a health check, including the
// server reached and whether it answered at all.
type serverStatus struct {
	Server            string `json:"server" yaml:"server"`
	Reachable         bool   `json:"reachable" yaml:"reachable"`
	Service           string `json:"service,omitempty" yaml:"service,omitempty"`
	ActiveConnections uint32 `json:"active_connections,omitempty" yaml:"active_connections,omitempty"`
	Error             string `json:"error,omitempty" yaml:"error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	status := serverStatus{Server: cmdutil.Flags.Server}

	health, err := client.Healthz()
	if err != nil {
		status.Error = err.Error()
	} else {
		status.Reachable = true
		status.Service = health.Service
		status.ActiveConnections = health.ActiveConnections
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, status)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, status)
	default:
		printStatusTable(status)
	}

	return nil
}

func printStatusTable(status serverStatus) {
	fmt.Println()
	fmt.Println("iscsid Status")
	fmt.Println("=============")
	fmt.Println()
	fmt.Printf("  Server:             %s\n", status.Server)

	if status.Reachable {
		fmt.Printf("  Status:             \033[32m● reachable\033[0m\n")
		fmt.Printf("  Active connections: %d\n", status.ActiveConnections)
	} else {
		fmt.Printf("  Status:             \033[31m○ unreachable\033[0m\n")
		fmt.Printf("  Error:              %s\n", status.Error)
	}
	fmt.Println()
}
