// Package scheduler assigns release dates and episode numbers to newly
// generated episodes of a recurring series.
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/episodecast/api/internal/model"
)

var ErrUnsupportedScheduleType = errors.New("unsupported schedule type")

// State is what the series looked like before this batch, taken from its
// most recently scheduled episode. A nil State means the series is new.
type State struct {
	LastScheduledDate time.Time
	LastEpisodeNumber int
}

// Assignment is the computed schedule of one episode.
type Assignment struct {
	EpisodeID     string
	Date          time.Time
	ScheduleType  model.ScheduleType
	EpisodeNumber int
}

// Compute schedules episodeIDs, given in intended episode order.
//
// When the last scheduled date falls on a calendar day before now, the series
// is behind and restarts from now. Otherwise it continues from the last
// scheduled date, or from startDate when there is no prior episode. now is
// the only clock read, so equal inputs give equal output.
func Compute(episodeIDs []string, state *State, startDate time.Time, scheduleType model.ScheduleType, now time.Time) ([]Assignment, error) {
	addPeriods, err := periodFunc(scheduleType)
	if err != nil {
		return nil, err
	}

	caughtUp := state != nil && dayOf(state.LastScheduledDate, now.Location()).Before(dayOf(now, now.Location()))

	base := startDate
	switch {
	case caughtUp:
		base = now
	case state != nil:
		base = state.LastScheduledDate
	}

	lastNumber := 0
	if state != nil {
		lastNumber = state.LastEpisodeNumber
	}

	assignments := make([]Assignment, 0, len(episodeIDs))
	for index, id := range episodeIDs {
		assignments = append(assignments, Assignment{
			EpisodeID:     id,
			Date:          addPeriods(base, offset(scheduleType, index, caughtUp, state != nil)),
			ScheduleType:  scheduleType,
			EpisodeNumber: lastNumber + index + 1,
		})
	}
	return assignments, nil
}

// offset is the number of periods between the base date and the episode at index.
func offset(scheduleType model.ScheduleType, index int, caughtUp, hasPrior bool) int {
	switch scheduleType {
	case model.ScheduleDaily:
		if caughtUp {
			return index
		}
		return index + 1
	case model.ScheduleNever:
		return 0
	default:
		if caughtUp || hasPrior {
			return index + 1
		}
		return index
	}
}

func periodFunc(scheduleType model.ScheduleType) (func(time.Time, int) time.Time, error) {
	switch scheduleType {
	case model.ScheduleDaily:
		return func(t time.Time, n int) time.Time { return t.AddDate(0, 0, n) }, nil
	case model.ScheduleWeekly:
		return func(t time.Time, n int) time.Time { return t.AddDate(0, 0, 7*n) }, nil
	case model.ScheduleMonthly:
		return func(t time.Time, n int) time.Time { return t.AddDate(0, n, 0) }, nil
	case model.ScheduleYearly:
		return func(t time.Time, n int) time.Time { return t.AddDate(n, 0, 0) }, nil
	case model.ScheduleNever:
		return func(t time.Time, _ int) time.Time { return t }, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheduleType, scheduleType)
	}
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
