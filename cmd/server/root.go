package main

import (
	"github.com/episodecast/api/internal/config"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	load := func() (*config.Config, error) {
		return config.LoadFile(configFlag)
	}

	serveCmd := newServeCommand(load)
	rootCmd := &cobra.Command{
		Use:           "episodecast",
		Short:         "Episode generation API and worker",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Running without a subcommand serves, as the container entrypoint expects
		RunE: serveCmd.RunE,
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newJobCommand(load))
	rootCmd.AddCommand(newEpisodesCommand(load))
	rootCmd.AddCommand(newSimulationsCommand(load))

	return rootCmd
}
