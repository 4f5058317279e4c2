package benchmarks

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zeu5/crm/machines"
	"github.com/zeu5/crm/rm"
)

func MachineCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm",
		Short: "Inspect reward machines",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the bundled reward machines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range machines.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "check <name|file>",
		Short: "Load a reward machine and print its structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			machine, err := machines.Resolve(args[0])
			if err != nil {
				return err
			}
			c.logger.WithField("machine", args[0]).Debug("loaded reward machine")
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "initial: %d\n", machine.Initial())
			fmt.Fprintf(out, "states: %v\n", machine.States())
			fmt.Fprintf(out, "terminals: %v\n", machine.Terminals())
			fmt.Fprintf(out, "propositions: %s\n", strings.Join(machine.Propositions(), ", "))
			for _, e := range machine.Edges() {
				fmt.Fprintln(out, rm.FormatEdge(e))
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "export <name> <file>",
		Short: "Write a bundled reward machine to a transition table file",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			machine, err := machines.Load(args[0])
			if err != nil {
				return err
			}
			return rm.WriteFile(args[1], machine)
		},
	})
	return cmd
}
