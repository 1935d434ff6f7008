package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/episodecast/api/internal/config"
	"github.com/episodecast/api/internal/model"
	"github.com/episodecast/api/internal/store"
	"github.com/spf13/cobra"
)

func newEpisodesCommand(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "episodes <event-name>",
		Short: "List the episodes of an event and their schedule",
		Args:  cobra.ExactArgs(1),
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

			episodes, err := st.EventEpisodes(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(episodes) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No episodes for %s\n", args[0])
				return nil
			}

			rows := make([][]string, len(episodes))
			for i, ep := range episodes {
				rows[i] = episodeRow(&ep)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"#", "Title", "Topics", "Scheduled", "Type", "Status"},
				rows,
				[]columnAlignment{alignRight},
			))
			return nil
		},
	}
}

func episodeRow(ep *model.Episode) []string {
	number, scheduled := "-", "-"
	if ep.ScheduledDate != nil {
		number = strconv.Itoa(ep.EpisodeNumber)
		scheduled = ep.ScheduledDate.Format("2006-01-02 15:04")
	}
	return []string{number, ep.Title, strings.Join(ep.Topics, ", "), scheduled, string(ep.ScheduledType), string(ep.Status)}
}
