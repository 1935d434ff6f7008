package main

import (
	"fmt"
	"strconv"

	"github.com/episodecast/api/internal/config"
	"github.com/episodecast/api/internal/model"
	"github.com/episodecast/api/internal/store"
	"github.com/spf13/cobra"
)

func newSimulationsCommand(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "simulations <episode-id>...",
		Short: "Show the simulations of episodes and their podcast status",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			st, err := store.Open(&cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			for _, id := range args {
				if _, err := st.GetEpisode(cmd.Context(), id); err != nil {
					return err
				}
			}

			sims, err := st.SimulationsForEpisodes(cmd.Context(), args)
			if err != nil {
				return err
			}
			if len(sims) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No simulations")
				return nil
			}

			rows := make([][]string, len(sims))
			for i, sim := range sims {
				rows[i] = simulationRow(&sim)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Episode", "#", "Podcast", "Duration", "Size", "File"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}
}

func simulationRow(sim *model.Simulation) []string {
	duration, size, file := "-", "-", "-"
	if sim.FileURL != "" {
		duration = strconv.Itoa(sim.Duration) + "s"
		size = strconv.Itoa(sim.AudioSize)
		file = sim.FileURL
	}
	return []string{sim.ID, sim.EpisodeTitle, strconv.Itoa(sim.EpisodeNumber), string(sim.GenPodStatus), duration, size, file}
}
