package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tcc-gateway/internal/tcc"
)

var registryCmd = &cobra.Command{
	Use:       "registry [commands|parameters|timeouts]",
	Short:     "Print the command, parameter and timeout tables",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"commands", "parameters", "timeouts"},
	RunE: func(cmd *cobra.Command, args []string) error {
		table := ""
		if len(args) == 1 {
			table = args[0]
		}
		return printRegistry(cmd.OutOrStdout(), tcc.Default(), table)
	},
}

func init() {
	rootCmd.AddCommand(registryCmd)
}

func printRegistry(out io.Writer, reg *tcc.Registry, table string) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	switch table {
	case "", "commands":
		fmt.Fprintln(w, "COMMAND\tID\tCAN ID\tKIND\tRANGE")
		for _, c := range reg.Commands() {
			spec, _ := reg.Command(c)
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t[%g, %g]\n", c, c.ID(), spec.CANID, spec.Kind, spec.Min, spec.Max)
		}
		if table != "" {
			break
		}
		fmt.Fprintln(w)
		fallthrough
	case "parameters":
		fmt.Fprintln(w, "PARAMETER\tID\tCAN ID\tDECODE\tDEFAULT")
		for _, p := range reg.Parameters() {
			spec, _ := reg.Parameter(p)
			kind := spec.Kind.String()
			if spec.Kind == tcc.DecodeBigIntDiv {
				kind = fmt.Sprintf("%s /%g", kind, spec.Divider)
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", p, p.ID(), spec.CANID, kind, spec.Default)
		}
		if table != "" {
			break
		}
		fmt.Fprintln(w)
		fallthrough
	case "timeouts":
		fmt.Fprintln(w, "TIMEOUT\tID\tKIND\tTARGET\tDEFAULT")
		for _, t := range reg.Timeouts() {
			spec, _ := reg.Timeout(t)
			target := spec.Parameter.String()
			if spec.IsCombine() {
				children := make([]string, len(spec.Children))
				for i, child := range spec.Children {
					children[i] = child.String()
				}
				target = strings.Join(children, ",")
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\n", t, t.ID(), spec.Kind, target, spec.Default)
		}
	default:
		return fmt.Errorf("unknown table %q (want commands, parameters or timeouts)", table)
	}
	return w.Flush()
}
