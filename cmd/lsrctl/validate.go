package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config>",
		Short: "Check that a configuration applies cleanly",
		Long: `Parse the configuration and apply it to an empty router, reporting the
first entry or step that cannot be applied.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := load(args[0])
			if err != nil {
				return err
			}
			defer r.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "%s: configuration for %s is valid\n", args[0], r.Name)
			return nil
		},
	}
}
