package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/episodecast/api/internal/model"
)

const episodeColumns = "id, event_name, title, topics, position, scheduled_date, scheduled_type, status, episode_number, source_job_id, created_at, updated_at"

// InsertBatch stores every record in one transaction. Rows whose id already
// exists are left as they are, so a retried job can insert the same batch again.
func (s *Store) InsertBatch(ctx context.Context, records []model.EpisodeRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin insert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.timestamp()
	for _, rec := range records {
		if err := insertEpisode(ctx, tx, &rec.Episode, now); err != nil {
			return err
		}
		if err := insertSimulation(ctx, tx, &rec.Simulation, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit episode batch: %w", err)
	}
	return nil
}

func insertEpisode(ctx context.Context, tx *sql.Tx, ep *model.Episode, now string) error {
	topics, err := json.Marshal(nonNil(ep.Topics))
	if err != nil {
		return fmt.Errorf("failed to marshal topics: %w", err)
	}
	status := ep.Status
	if status == "" {
		status = model.EpisodeStatusDraft
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO episodes (`+episodeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		ep.ID, ep.EventName, ep.Title, string(topics), ep.Position,
		nullableTime(ep.ScheduledDate), nullableString(string(ep.ScheduledType)), string(status),
		ep.EpisodeNumber, nullableString(ep.SourceJobID), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert episode %s: %w", ep.ID, err)
	}
	return nil
}

// UnscheduledEpisodes returns the event's episodes without a release date, in episode order.
func (s *Store) UnscheduledEpisodes(ctx context.Context, eventName string) ([]model.Episode, error) {
	return s.queryEpisodes(ctx,
		`SELECT `+episodeColumns+` FROM episodes
		WHERE event_name = ? AND scheduled_date IS NULL
		ORDER BY position ASC, created_at ASC, id ASC`,
		eventName,
	)
}

// LatestScheduledEpisode returns the event's scheduled episode with the highest episode number.
func (s *Store) LatestScheduledEpisode(ctx context.Context, eventName string) (*model.Episode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+episodeColumns+` FROM episodes
		WHERE event_name = ? AND scheduled_date IS NOT NULL
		ORDER BY episode_number DESC, scheduled_date DESC
		LIMIT 1`,
		eventName,
	)
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest episode: %w", err)
	}
	return ep, nil
}

// EventEpisodes returns every episode of the event, scheduled ones first by episode number.
func (s *Store) EventEpisodes(ctx context.Context, eventName string) ([]model.Episode, error) {
	return s.queryEpisodes(ctx,
		`SELECT `+episodeColumns+` FROM episodes
		WHERE event_name = ?
		ORDER BY scheduled_date IS NULL, episode_number ASC, position ASC`,
		eventName,
	)
}

// GetEpisode loads an episode by id.
func (s *Store) GetEpisode(ctx context.Context, id string) (*model.Episode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id)
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("episode %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load episode: %w", err)
	}
	return ep, nil
}

// DueEpisodes returns Draft or Scheduled episodes released at or before the given time.
func (s *Store) DueEpisodes(ctx context.Context, before time.Time) ([]model.Episode, error) {
	return s.queryEpisodes(ctx,
		`SELECT `+episodeColumns+` FROM episodes
		WHERE scheduled_date IS NOT NULL AND scheduled_date <= ? AND status IN (?, ?)
		ORDER BY scheduled_date ASC`,
		formatTime(before), string(model.EpisodeStatusDraft), string(model.EpisodeStatusScheduled),
	)
}

// UpdateEpisode writes the non-nil fields of update.
func (s *Store) UpdateEpisode(ctx context.Context, id string, update model.EpisodeUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	var (
		sets []string
		args []any
	)
	if update.ScheduledDate != nil {
		sets = append(sets, "scheduled_date = ?")
		args = append(args, nullableTime(update.ScheduledDate))
	}
	if update.ScheduledType != nil {
		sets = append(sets, "scheduled_type = ?")
		args = append(args, string(*update.ScheduledType))
	}
	if update.EpisodeNumber != nil {
		sets = append(sets, "episode_number = ?")
		args = append(args, *update.EpisodeNumber)
	}
	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.timestamp(), id)

	res, err := s.db.ExecContext(ctx, "UPDATE episodes SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update episode %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("episode %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) queryEpisodes(ctx context.Context, query string, args ...any) ([]model.Episode, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %w", err)
	}
	defer rows.Close()

	var episodes []model.Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		episodes = append(episodes, *ep)
	}
	return episodes, rows.Err()
}

func scanEpisode(scanner interface{ Scan(dest ...any) error }) (*model.Episode, error) {
	var (
		ep            model.Episode
		topics        string
		scheduledRaw  sql.NullString
		scheduledType sql.NullString
		status        string
		sourceJobID   sql.NullString
		createdRaw    string
		updatedRaw    string
	)
	if err := scanner.Scan(
		&ep.ID, &ep.EventName, &ep.Title, &topics, &ep.Position,
		&scheduledRaw, &scheduledType, &status, &ep.EpisodeNumber, &sourceJobID,
		&createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(topics), &ep.Topics); err != nil {
		return nil, fmt.Errorf("decode topics: %w", err)
	}
	ep.Status = model.EpisodeStatus(status)
	ep.ScheduledType = model.ScheduleType(scheduledType.String)
	ep.SourceJobID = sourceJobID.String
	if scheduledRaw.Valid {
		if t, err := parseTimeString(scheduledRaw.String); err == nil {
			ep.ScheduledDate = &t
		}
	}
	if t, err := parseTimeString(createdRaw); err == nil {
		ep.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		ep.UpdatedAt = t
	}
	return &ep, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
