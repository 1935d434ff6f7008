package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/episodecast/api/internal/config"
	"github.com/episodecast/api/internal/model"
	"github.com/episodecast/api/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newJobCommand(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "job <job-id>...",
		Short: "Show the status record of queued jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			redisClient := newRedisClient(cfg)
			defer redisClient.Close()
			jobs := service.NewJobService(redisClient, nil, nil, cfg.Pipeline.PodcastBatchSize)

			rows := make([][]string, 0, len(args))
			for _, id := range args {
				job, err := jobs.GetJob(cmd.Context(), id)
				if err != nil {
					rows = append(rows, []string{id, "-", err.Error(), "", "", ""})
					continue
				}
				rows = append(rows, jobRow(job))
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Job", "Kind", "Status", "Attempt", "Step", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func jobRow(job *model.Job) []string {
	errMsg := ""
	if job.Error != nil {
		errMsg = *job.Error
	}
	return []string{
		job.ID,
		string(job.Kind),
		string(job.Status),
		strconv.Itoa(job.Attempt) + "/" + strconv.Itoa(job.MaxAttempts),
		job.CurrentStep,
		errMsg,
	}
}

func newRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: 5 * time.Second,
	})
}
