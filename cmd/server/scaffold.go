package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tutorchat/internal/scaffold"
)

const scaffoldLongDesc string = `Create the empty files a tutorchat deployment expects.

Files that already exist are left untouched.

Examples:
  tutorchat scaffold
  tutorchat scaffold ./deploy --file .env --file secrets.toml`

type scaffoldCommander struct {
	files []string
}

func newScaffoldCmd() *cobra.Command {
	cmder := &scaffoldCommander{}

	cmd := &cobra.Command{
		Use:   "scaffold [dir]",
		Short: "Create empty project files",
		Long:  scaffoldLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return cmder.run(cmd, dir)
		},
	}

	cmd.Flags().StringArrayVarP(&cmder.files, "file", "f", nil, "File to create (repeatable, defaults to the standard set)")

	return cmd
}

func (c *scaffoldCommander) run(cmd *cobra.Command, dir string) error {
	res, err := scaffold.Create(dir, c.files)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, path := range res.Created {
		fmt.Fprintf(out, "  created %s\n", path)
	}
	for _, path := range res.Skipped {
		fmt.Fprintf(out, "  skipped %s (already exists)\n", path)
	}
	fmt.Fprintf(out, "Created %d files, skipped %d\n", len(res.Created), len(res.Skipped))

	return res.Err()
}
