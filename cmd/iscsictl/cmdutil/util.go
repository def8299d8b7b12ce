// Package cmdutil provides shared utilities for iscsictl commands.
package cmdutil

import (
	"fmt"
	"io"
	"os"

	"github.com/coregate/iscsid/internal/cli/output"
	"github.com/coregate/iscsid/pkg/apiclient"
)

// Flags stores global flag values accessible by every subcommand.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values synced from the root command's
// persistent flags.
type GlobalFlags struct {
	Server  string
	Token   string
	Output  string
	NoColor bool
}

// GetClient returns an apiclient.Client configured from the global flags.
// Unlike the teacher's multi-user credential store, this admin surface has
// no login flow -- a server URL and a bearer token are the entire
// connection state, supplied fresh on every invocation.
func GetClient() (*apiclient.Client, error) {
	if Flags.Server == "" {
		return nil, fmt.Errorf("no server configured; pass --server or set ISCSICTL_SERVER")
	}
	client := apiclient.New(Flags.Server)
	if Flags.Token != "" {
		client = client.WithToken(Flags.Token)
	}
	return client, nil
}

// GetOutputFormatParsed returns the parsed output format from --output.
func GetOutputFormatParsed() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// PrintOutput prints data in the configured format. For table format, it
// prints emptyMsg when isEmpty is true instead of an empty table.
func PrintOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, renderer output.TableRenderer) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		if isEmpty {
			_, _ = fmt.Fprintln(w, emptyMsg)
			return nil
		}
		return output.PrintTable(w, renderer)
	}
}

// PrintSuccess prints a success message, only in table format -- JSON/YAML
// output must stay parseable, so it carries no extra text.
func PrintSuccess(msg string) {
	format, err := GetOutputFormatParsed()
	if err != nil || format != output.FormatTable {
		return
	}
	output.NewPrinter(os.Stdout, format, !Flags.NoColor).Success(msg)
}
