package cmd

import "github.com/spf13/cobra"

var RootCmd = &cobra.Command{
	Use:   "bithopper",
	Short: "Getwork proxy that hops between mining pools",
}

func init() {
	RootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file to use (.json or .toml).")
}

func Run(args []string) error {
	RootCmd.SetArgs(args)
	return RootCmd.Execute()
}
