// Command tutorchat serves the programming-tutor chat and scaffolds new
// deployments.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const rootLongDesc string = `tutorchat is a web chat with a friendly programming tutor backed by
Google Gemini.

Running it without a subcommand starts the server.`

func newRootCmd() *cobra.Command {
	serve := &serveCommander{}

	cmd := &cobra.Command{
		Use:           "tutorchat",
		Short:         "Programming tutor chat server",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve.run(cmd.Context())
		},
	}
	serve.bindFlags(cmd)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newScaffoldCmd())
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
