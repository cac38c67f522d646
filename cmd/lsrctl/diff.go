package main

import (
	"context"
	"fmt"

	"github.com/openconfig/lsrsim/config"
	"github.com/openconfig/lsrsim/reconciler"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newDiffCmd() *cobra.Command {
	var apply bool
	cmd := &cobra.Command{
		Use:   "diff <running> <intended>",
		Short: "Print the steps that reconcile one configuration with another",
		Long: `Apply both configurations to empty routers, and print the steps that
make the label forwarding state of the running router consistent with the
intended router, in the form of the steps section of a configuration. With
--apply the steps are applied to the running router and its tables printed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := load(args[0])
			if err != nil {
				return err
			}
			defer r.Close()
			icfg, err := config.Load(args[1])
			if err != nil {
				return err
			}
			in, err := reconciler.FromConfig(icfg)
			if err != nil {
				return err
			}
			defer in.CleanUp()

			ctx := context.Background()
			target := reconciler.NewLocalRouter(r)
			var steps []config.Step
			if apply {
				if steps, err = reconciler.New(in, target).Reconcile(ctx); err != nil {
					return err
				}
			} else {
				isnap, err := in.Snapshot(ctx)
				if err != nil {
					return err
				}
				tsnap, err := target.Snapshot(ctx)
				if err != nil {
					return err
				}
				steps = reconciler.Diff(isnap, tsnap)
			}

			w := cmd.OutOrStdout()
			if len(steps) == 0 {
				fmt.Fprintf(w, "%s is consistent with %s\n", args[0], args[1])
				return nil
			}
			b, err := yaml.Marshal(struct {
				Steps []config.Step `yaml:"steps"`
			}{steps})
			if err != nil {
				return err
			}
			if _, err := w.Write(b); err != nil {
				return err
			}
			if apply {
				fmt.Fprintln(w)
				return printState(w, r)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "Apply the steps to the running router and print its tables")
	return cmd
}
