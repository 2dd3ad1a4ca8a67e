// Package cli provides the ptymux command line.
package cli

import (
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

func newRootCmd() *cobra.Command {
	opts := &serveOptions{}
	root := &cobra.Command{
		Use:     "ptymux",
		Short:   "Share terminal sessions in the browser",
		Version: Version,
		Long: `ptymux runs a command on a pseudo-terminal for each browser session and
relays its output to every viewer attached to it.

Viewers that reconnect can reattach to a running terminal by name.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	opts.bind(root.Flags())

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the terminal server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	opts.bind(serve.Flags())

	root.AddCommand(serve, newVersionCmd())
	return root
}

// Execute runs the root command and returns an exit code.
// The caller (main) should call os.Exit with this code.
func Execute() int {
	if err := newRootCmd().Execute(); err != nil {
		return 1
	}
	return 0
}
