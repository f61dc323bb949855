package cmd

import (
	"github.com/spf13/cobra"

	"adgen-jobs/config"
)

func Root(config *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "adgen-jobs",
		Short: "logo and video generation job service",
	}
	rootCmd.AddCommand(server(config))
	rootCmd.AddCommand(submit(config))
	return rootCmd
}
