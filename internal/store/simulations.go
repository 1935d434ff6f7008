package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/episodecast/api/internal/model"
)

const simulationColumns = "s.id, s.episode_id, s.event_name, s.episode_title, e.episode_number, s.user_id, s.script, s.conversation_turns, s.user_simulation, s.characters, s.quiz, s.poll, s.thread_id, s.file_url, s.duration, s.audio_size, s.gen_pod_status, s.created_at, s.updated_at"

func insertSimulation(ctx context.Context, tx *sql.Tx, sim *model.Simulation, now string) error {
	blobs := []any{sim.ConversationTurns, sim.UserSimulation, sim.Characters, sim.Quiz, sim.Poll}
	encoded := make([]any, len(blobs))
	for i, blob := range blobs {
		data, err := marshalList(blob)
		if err != nil {
			return fmt.Errorf("failed to marshal simulation %s: %w", sim.ID, err)
		}
		encoded[i] = data
	}

	args := []any{sim.ID, sim.EpisodeID, sim.EventName, sim.EpisodeTitle, sim.UserID, sim.Script}
	args = append(args, encoded...)
	args = append(args, sim.ThreadID, nullableString(sim.FileURL), sim.Duration, sim.AudioSize,
		nullableString(string(sim.GenPodStatus)), now, now)

	_, err := tx.ExecContext(ctx, `INSERT INTO simulations (
			id, episode_id, event_name, episode_title, user_id, script,
			conversation_turns, user_simulation, characters, quiz, poll,
			thread_id, file_url, duration, audio_size, gen_pod_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`, args...)
	if err != nil {
		return fmt.Errorf("failed to insert simulation %s: %w", sim.ID, err)
	}
	return nil
}

// GetSimulations loads the ids that exist, in the order given. Missing ids are
// left out; callers compare against the ids they asked for.
func (s *Store) GetSimulations(ctx context.Context, ids []string) ([]model.Simulation, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+simulationColumns+`
		FROM simulations s JOIN episodes e ON e.id = s.episode_id
		WHERE s.id IN (`+makePlaceholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query simulations: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]model.Simulation, len(ids))
	for rows.Next() {
		sim, err := scanSimulation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan simulation: %w", err)
		}
		byID[sim.ID] = *sim
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sims := make([]model.Simulation, 0, len(byID))
	for _, id := range ids {
		if sim, ok := byID[id]; ok {
			sims = append(sims, sim)
		}
	}
	return sims, nil
}

// SimulationsForEpisodes returns the simulations attached to the given episodes.
func (s *Store) SimulationsForEpisodes(ctx context.Context, episodeIDs []string) ([]model.Simulation, error) {
	if len(episodeIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(episodeIDs))
	for i, id := range episodeIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+simulationColumns+`
		FROM simulations s JOIN episodes e ON e.id = s.episode_id
		WHERE s.episode_id IN (`+makePlaceholders(len(episodeIDs))+`)
		ORDER BY e.position ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query simulations: %w", err)
	}
	defer rows.Close()

	var sims []model.Simulation
	for rows.Next() {
		sim, err := scanSimulation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan simulation: %w", err)
		}
		sims = append(sims, *sim)
	}
	return sims, rows.Err()
}

// UpdateSimulation writes the non-nil fields of update.
func (s *Store) UpdateSimulation(ctx context.Context, id string, update model.SimulationUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	var (
		sets []string
		args []any
	)
	if update.FileURL != nil {
		sets = append(sets, "file_url = ?")
		args = append(args, nullableString(*update.FileURL))
	}
	if update.Duration != nil {
		sets = append(sets, "duration = ?")
		args = append(args, *update.Duration)
	}
	if update.AudioSize != nil {
		sets = append(sets, "audio_size = ?")
		args = append(args, *update.AudioSize)
	}
	if update.GenPodStatus != nil {
		sets = append(sets, "gen_pod_status = ?")
		args = append(args, string(*update.GenPodStatus))
	}
	if update.UserSimulation != nil {
		data, err := marshalList(update.UserSimulation)
		if err != nil {
			return fmt.Errorf("failed to marshal user simulation: %w", err)
		}
		sets = append(sets, "user_simulation = ?")
		args = append(args, data)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.timestamp(), id)

	res, err := s.db.ExecContext(ctx, "UPDATE simulations SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update simulation %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("simulation %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanSimulation(scanner interface{ Scan(dest ...any) error }) (*model.Simulation, error) {
	var (
		sim                                    model.Simulation
		turns, userSim, characters, quiz, poll string
		fileURL, podStatus                     sql.NullString
		createdRaw, updatedRaw                 string
	)
	if err := scanner.Scan(
		&sim.ID, &sim.EpisodeID, &sim.EventName, &sim.EpisodeTitle, &sim.EpisodeNumber, &sim.UserID, &sim.Script,
		&turns, &userSim, &characters, &quiz, &poll,
		&sim.ThreadID, &fileURL, &sim.Duration, &sim.AudioSize, &podStatus,
		&createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}

	decode := []struct {
		raw  string
		dest any
	}{
		{turns, &sim.ConversationTurns},
		{userSim, &sim.UserSimulation},
		{characters, &sim.Characters},
		{quiz, &sim.Quiz},
		{poll, &sim.Poll},
	}
	for _, d := range decode {
		if err := json.Unmarshal([]byte(d.raw), d.dest); err != nil {
			return nil, fmt.Errorf("decode simulation %s: %w", sim.ID, err)
		}
	}

	sim.FileURL = fileURL.String
	sim.GenPodStatus = model.PodStatus(podStatus.String)
	if t, err := parseTimeString(createdRaw); err == nil {
		sim.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		sim.UpdatedAt = t
	}
	return &sim, nil
}

// marshalList encodes a slice, storing nil as an empty JSON array.
func marshalList(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return "[]", nil
	}
	return string(data), nil
}
