package scheduler

import (
	"testing"
	"time"

	"github.com/episodecast/api/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dates(assignments []Assignment) []time.Time {
	out := make([]time.Time, len(assignments))
	for i, a := range assignments {
		out[i] = a.Date
	}
	return out
}

func numbers(assignments []Assignment) []int {
	out := make([]int, len(assignments))
	for i, a := range assignments {
		out[i] = a.EpisodeNumber
	}
	return out
}

func TestCompute_WeeklyFirstBatch(t *testing.T) {
	got, err := Compute([]string{"a", "b", "c"}, nil, day(2024, 1, 1), model.ScheduleWeekly, day(2023, 12, 20))
	require.NoError(t, err)

	assert.Equal(t, []time.Time{day(2024, 1, 1), day(2024, 1, 8), day(2024, 1, 15)}, dates(got))
	assert.Equal(t, []int{1, 2, 3}, numbers(got))
	assert.Equal(t, "b", got[1].EpisodeID)
	assert.Equal(t, model.ScheduleWeekly, got[2].ScheduleType)
}

func TestCompute_DailyCatchUp(t *testing.T) {
	state := &State{LastScheduledDate: day(2024, 1, 1), LastEpisodeNumber: 4}
	got, err := Compute([]string{"a", "b"}, state, day(2023, 6, 1), model.ScheduleDaily, day(2024, 1, 10))
	require.NoError(t, err)

	assert.Equal(t, []time.Time{day(2024, 1, 10), day(2024, 1, 11)}, dates(got))
	assert.Equal(t, []int{5, 6}, numbers(got))
}

func TestCompute_DailyContinuesSeries(t *testing.T) {
	state := &State{LastScheduledDate: day(2024, 1, 10), LastEpisodeNumber: 2}
	got, err := Compute([]string{"a", "b"}, state, day(2023, 6, 1), model.ScheduleDaily, day(2024, 1, 10).Add(15*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, []time.Time{day(2024, 1, 11), day(2024, 1, 12)}, dates(got))
	assert.Equal(t, []int{3, 4}, numbers(got))
}

func TestCompute_SameDayEarlierTimeIsNotBehind(t *testing.T) {
	last := day(2024, 3, 5).Add(8 * time.Hour)
	now := day(2024, 3, 5).Add(20 * time.Hour)
	got, err := Compute([]string{"a"}, &State{LastScheduledDate: last, LastEpisodeNumber: 1}, now, model.ScheduleWeekly, now)
	require.NoError(t, err)

	assert.Equal(t, last.AddDate(0, 0, 7), got[0].Date)
}

func TestCompute_WeeklyCatchUpAdvancesOnePeriod(t *testing.T) {
	state := &State{LastScheduledDate: day(2024, 1, 1), LastEpisodeNumber: 1}
	got, err := Compute([]string{"a", "b"}, state, day(2023, 1, 1), model.ScheduleWeekly, day(2024, 1, 10))
	require.NoError(t, err)

	assert.Equal(t, []time.Time{day(2024, 1, 17), day(2024, 1, 24)}, dates(got))
}

func TestCompute_MonthlyRollsOverDayOfMonth(t *testing.T) {
	got, err := Compute([]string{"a", "b", "c"}, nil, day(2024, 1, 31), model.ScheduleMonthly, day(2024, 1, 1))
	require.NoError(t, err)

	assert.Equal(t, []time.Time{day(2024, 1, 31), day(2024, 3, 2), day(2024, 3, 31)}, dates(got))
}

func TestCompute_YearlyContinuesFromLastDate(t *testing.T) {
	state := &State{LastScheduledDate: day(2030, 5, 1), LastEpisodeNumber: 9}
	got, err := Compute([]string{"a", "b"}, state, day(2020, 1, 1), model.ScheduleYearly, day(2024, 1, 1))
	require.NoError(t, err)

	assert.Equal(t, []time.Time{day(2031, 5, 1), day(2032, 5, 1)}, dates(got))
	assert.Equal(t, []int{10, 11}, numbers(got))
}

func TestCompute_NeverKeepsBaseDate(t *testing.T) {
	got, err := Compute([]string{"a", "b", "c"}, nil, day(2024, 2, 2), model.ScheduleNever, day(2024, 1, 1))
	require.NoError(t, err)

	for _, a := range got {
		assert.Equal(t, day(2024, 2, 2), a.Date)
	}
	assert.Equal(t, []int{1, 2, 3}, numbers(got))
}

func TestCompute_UnsupportedType(t *testing.T) {
	_, err := Compute([]string{"a"}, nil, day(2024, 1, 1), model.ScheduleType("HOURLY"), day(2024, 1, 1))
	assert.ErrorIs(t, err, ErrUnsupportedScheduleType)
}

func TestCompute_EmptyBatch(t *testing.T) {
	got, err := Compute(nil, nil, day(2024, 1, 1), model.ScheduleDaily, day(2024, 1, 1))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCompute_IsDeterministic(t *testing.T) {
	state := &State{LastScheduledDate: day(2024, 1, 1), LastEpisodeNumber: 3}
	ids := []string{"a", "b", "c", "d"}
	now := day(2024, 2, 1).Add(13 * time.Hour)

	first, err := Compute(ids, state, day(2023, 1, 1), model.ScheduleMonthly, now)
	require.NoError(t, err)
	second, err := Compute(ids, state, day(2023, 1, 1), model.ScheduleMonthly, now)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCompute_DatesIncreaseAndNeverPrecedeBase(t *testing.T) {
	now := day(2024, 6, 15).Add(9 * time.Hour)
	start := day(2024, 7, 1)
	states := map[string]*State{
		"new":    nil,
		"behind": {LastScheduledDate: day(2024, 5, 1), LastEpisodeNumber: 2},
		"ahead":  {LastScheduledDate: day(2024, 8, 1), LastEpisodeNumber: 7},
		"today":  {LastScheduledDate: day(2024, 6, 15), LastEpisodeNumber: 1},
	}
	types := []model.ScheduleType{model.ScheduleDaily, model.ScheduleWeekly, model.ScheduleMonthly, model.ScheduleYearly}
	ids := []string{"a", "b", "c", "d", "e"}

	for name, state := range states {
		for _, st := range types {
			got, err := Compute(ids, state, start, st, now)
			require.NoError(t, err)

			base := start
			if state != nil {
				base = state.LastScheduledDate
				if state.LastScheduledDate.Before(day(2024, 6, 15)) {
					base = now
				}
			}

			assert.False(t, got[0].Date.Before(base), "%s/%s first date before base", name, st)
			for i := 1; i < len(got); i++ {
				assert.True(t, got[i].Date.After(got[i-1].Date), "%s/%s dates not increasing at %d", name, st, i)
			}
		}
	}
}

func TestCompute_CatchUpOffsets(t *testing.T) {
	now := day(2024, 1, 10)

	behind, err := Compute([]string{"a", "b"}, &State{LastScheduledDate: day(2024, 1, 2)}, now, model.ScheduleDaily, now)
	require.NoError(t, err)
	assert.Equal(t, now, behind[0].Date, "caught up series starts at offset 0")

	current, err := Compute([]string{"a", "b"}, &State{LastScheduledDate: day(2024, 1, 12)}, now, model.ScheduleDaily, now)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 1, 13), current[0].Date, "on-schedule series starts at offset 1")
}
