package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/episodecast/api/internal/model"
	"github.com/episodecast/api/internal/scheduler"
	"github.com/episodecast/api/internal/store"
)

// Episodes scheduled this close to now count as due.
const dueGracePeriod = 3 * time.Second

// ScheduleService applies the release schedule to stored episodes.
type ScheduleService struct {
	episodes EpisodeRepository
	now      func() time.Time
}

func NewScheduleService(episodes EpisodeRepository) *ScheduleService {
	return &ScheduleService{episodes: episodes, now: time.Now}
}

// Apply dates and numbers every unscheduled episode of eventName, continuing
// from the event's latest scheduled episode.
func (s *ScheduleService) Apply(ctx context.Context, eventName string, startDate time.Time, scheduleType model.ScheduleType) ([]scheduler.Assignment, error) {
	if startDate.IsZero() {
		return nil, fmt.Errorf("invalid start date for %s", eventName)
	}

	pending, err := s.episodes.UnscheduledEpisodes(ctx, eventName)
	if err != nil {
		return nil, fmt.Errorf("failed to load unscheduled episodes: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	var state *scheduler.State
	latest, err := s.episodes.LatestScheduledEpisode(ctx, eventName)
	switch {
	case err == nil && latest.ScheduledDate != nil:
		state = &scheduler.State{LastScheduledDate: *latest.ScheduledDate, LastEpisodeNumber: latest.EpisodeNumber}
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to load latest episode: %w", err)
	}

	ids := make([]string, len(pending))
	for i, ep := range pending {
		ids[i] = ep.ID
	}

	assignments, err := scheduler.Compute(ids, state, startDate, scheduleType, s.now())
	if err != nil {
		return nil, err
	}

	for _, a := range assignments {
		date, st, number := a.Date, a.ScheduleType, a.EpisodeNumber
		update := model.EpisodeUpdate{ScheduledDate: &date, ScheduledType: &st, EpisodeNumber: &number}
		if err := s.episodes.UpdateEpisode(ctx, a.EpisodeID, update); err != nil {
			return nil, fmt.Errorf("failed to schedule episode %s: %w", a.EpisodeID, err)
		}
	}

	log.Printf("Scheduled %d episodes of %s (%s)", len(assignments), eventName, scheduleType)
	return assignments, nil
}

// PromoteDue marks episodes whose release time has come as Ongoing. An empty
// eventName covers every event. It returns the promoted episode ids.
func (s *ScheduleService) PromoteDue(ctx context.Context, eventName string) ([]string, error) {
	due, err := s.episodes.DueEpisodes(ctx, s.now().Add(dueGracePeriod))
	if err != nil {
		return nil, fmt.Errorf("failed to load due episodes: %w", err)
	}

	ongoing := model.EpisodeStatusOngoing
	var promoted []string
	for _, ep := range due {
		if eventName != "" && ep.EventName != eventName {
			continue
		}
		if err := s.episodes.UpdateEpisode(ctx, ep.ID, model.EpisodeUpdate{Status: &ongoing}); err != nil {
			return promoted, fmt.Errorf("failed to promote episode %s: %w", ep.ID, err)
		}
		promoted = append(promoted, ep.ID)
	}
	return promoted, nil
}
