package main

import (
	"fmt"
	"io"
	"net/netip"
	"sort"

	"github.com/openconfig/lsrsim/afthelper"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newLookupCmd() *cobra.Command {
	var label int64
	cmd := &cobra.Command{
		Use:   "lookup <config> [address]",
		Short: "Resolve an address or label against the applied configuration",
		Long: `Apply the configuration to an empty router, then resolve the address
against the longest-prefix-match table and the FTN table, or with --label
resolve an incoming label through the router's MPLS AFT.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := load(args[0])
			if err != nil {
				return err
			}
			defer r.Close()
			w := cmd.OutOrStdout()
			entries := afthelper.GetResponse(r).GetEntry()

			if label >= 0 {
				nhs, err := afthelper.NextHopAddrsForLabel(entries, r.Name, uint64(label))
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "label %d:\n", label)
				printNextHops(w, nhs)
				return nil
			}

			if len(args) != 2 {
				return fmt.Errorf("must specify an address or --label")
			}
			a, err := netip.ParseAddr(args[1])
			if err != nil {
				return fmt.Errorf("invalid address %q, %v", args[1], err)
			}

			switch m, err := r.FIB.Lookup(a); {
			case status.Code(err) == codes.NotFound:
				fmt.Fprintf(w, "lpm: no match for %s\n", a)
			case err != nil:
				return err
			default:
				fmt.Fprintf(w, "lpm: %s via %s ifindex %d\n", m.Prefix, m.NextHop, m.OutIfIndex)
			}

			for _, f := range r.LFIB.FTNs(a) {
				fmt.Fprintf(w, "ftn: %s index %d via %s labels %v %s\n", f.FEC, f.Index, f.NextHop, f.OutLabels, upDown(f.Up))
			}
			if a.Is4() {
				if nhs, err := afthelper.NextHopAddrsForPrefix(entries, r.Name, netip.PrefixFrom(a, 32).String()); err == nil {
					fmt.Fprintf(w, "aft %s/32:\n", a)
					printNextHops(w, nhs)
				}
			}
			return nil
		},
	}
	cmd.Flags().Int64VarP(&label, "label", "l", -1, "Incoming label to resolve instead of an address")
	return cmd
}

// printNextHops writes the next hops in nhs to w in address order.
func printNextHops(w io.Writer, nhs map[string]*afthelper.NextHopSummary) {
	addrs := make([]string, 0, len(nhs))
	for a := range nhs {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	for _, a := range addrs {
		n := nhs[a]
		fmt.Fprintf(w, "  next-hop %s interface %s weight %d\n", a, n.Interface, n.Weight)
	}
}
