// Binary lsrctl loads the startup configuration of a simulated label
// switching router, applies it offline, and reports the resulting tables.
package main

import (
	"fmt"
	"os"

	"github.com/openconfig/lsrsim/config"
	"github.com/openconfig/lsrsim/router"
	"github.com/spf13/cobra"
)

// newRootCmd returns the lsrctl command tree.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lsrctl",
		Short: "Offline control of simulated label switching routers",
		Long: `lsrctl applies the YAML startup configuration of a simulated label
switching router without starting its gNMI and gRIBI servers, and reports
the contents of the router's tables.`,
		SilenceUsage: true,
	}
	root.AddCommand(newValidateCmd(), newRunCmd(), newLookupCmd(), newDiffCmd())
	return root
}

// load returns a router built from the configuration in the file at path.
func load(path string) (*router.Router, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	r := router.New(cfg.RouterOpts()...)
	if err := cfg.Apply(r); err != nil {
		return nil, fmt.Errorf("cannot apply %s, %w", path, err)
	}
	return r, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
