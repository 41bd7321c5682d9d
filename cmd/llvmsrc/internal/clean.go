package internal

import (
	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove cached sources and builds",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newBuilder()
		if err != nil {
			return err
		}
		return b.Clean(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}
