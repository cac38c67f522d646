package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/openconfig/lsrsim/address"
	"github.com/openconfig/lsrsim/afthelper"
	"github.com/openconfig/lsrsim/router"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/prototext"
)

// Output formats of the run command.
const (
	formatState = "state"
	formatAFT   = "aft"
)

func newRunCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "run <config>",
		Short: "Apply a configuration and print the resulting tables",
		Long: `Apply the configuration, including its steps, to an empty router and
print the contents of its tables. The state format lists each table, the aft
format prints the gRIBI AFT entries that the router serves.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := load(args[0])
			if err != nil {
				return err
			}
			defer r.Close()
			switch format {
			case formatState:
				return printState(cmd.OutOrStdout(), r)
			case formatAFT:
				_, err := fmt.Fprintln(cmd.OutOrStdout(), prototext.Format(afthelper.GetResponse(r)))
				return err
			}
			return fmt.Errorf("unknown format %q", format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatState, "Output format, state or aft")
	return cmd
}

func upDown(up bool) string {
	if up {
		return "UP"
	}
	return "DOWN"
}

// printState writes the contents of the tables of r to w.
func printState(w io.Writer, r *router.Router) error {
	s := r.LFIB.Snapshot()
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)

	fmt.Fprintf(tw, "%s\n\n", r)
	fmt.Fprintln(tw, "FEC\tINDEX\tNEXT-HOP\tLABELS\tXC\tNHLFE\tSTATUS")
	for _, f := range s.FTNs {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%v\t%d\t%d\t%s\n", f.FEC, f.Index, f.NextHop, f.OutLabels, f.XCIndex, f.NHLFEIndex, upDown(f.Up))
	}

	fmt.Fprintln(tw, "\nIN-LABEL\tIN-IFACE\tINDEX\tOWNER\tNEXT-HOP\tOUT-LABEL\tSTATUS")
	for _, i := range s.ILMs {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%s\t%d\t%s\n", i.Key.InLabel, i.Key.InIface, i.Index, i.Owner, i.NextHop, i.OutLabel, upDown(i.Up))
	}

	fmt.Fprintln(tw, "\nNEXT-HOP\tIFINDEX\tCONNECTED\tPHYSICAL\tFTNS\tILMS")
	for _, n := range s.NextHops {
		fmt.Fprintf(tw, "%s\t%d\t%v\t%v\t%d\t%d\n", n.Addr, n.IfIndex, n.Connected, n.Physical, n.FTNs, n.ILMs)
	}

	fmt.Fprintln(tw, "\nPREFIX\tMASK\tNEXT-HOP\tIFINDEX\tPEERS")
	for _, f := range []address.Family{address.V4, address.V6} {
		for _, rt := range r.RIB.Routes(f) {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", rt.Prefix, rt.Mask, rt.NextHop, rt.OutIfIndex, len(rt.Peers))
		}
	}

	fmt.Fprintln(tw, "\nLPM\tNEXT-HOP\tIFINDEX")
	for _, f := range []address.Family{address.V4, address.V6} {
		for _, m := range r.FIB.Entries(f) {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", m.Prefix, m.NextHop, m.OutIfIndex)
		}
	}

	st := r.LFIB.Stats()
	fmt.Fprintf(tw, "\nindices in use: XC %d, NHLFE %d, ILM %d\n", st.XC.InUse, st.NHLFE.InUse, st.ILM.InUse)
	fmt.Fprintf(tw, "events processed: %d, transitions: %d\n", st.EventsProcessed, st.Transitions)
	return tw.Flush()
}
