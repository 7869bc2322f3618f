package repair

import (
	"github.com/spf13/cobra"
)

func NewRepairCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "commands to repair stored data",
	}
	cmd.AddCommand(NewRepairCurvesCmd())
	return cmd
}
