package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/episodecast/api/internal/client"
	"github.com/episodecast/api/internal/model"
	"github.com/episodecast/api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ttsCall struct {
	text    string
	voiceID string
}

type fakeTTS struct {
	mu    sync.Mutex
	calls []ttsCall
}

func (f *fakeTTS) CreateTextToSpeech(_ context.Context, text, voiceID string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, ttsCall{text: text, voiceID: voiceID})
	f.mu.Unlock()
	if text == "broken" {
		return []byte("<html>oops</html>"), nil
	}
	if text == "unavailable" {
		return nil, errors.New("tts 503")
	}
	return []byte("ID3" + text), nil
}

func (f *fakeTTS) Calls() []ttsCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ttsCall(nil), f.calls...)
}

type fakeUploader struct {
	mu      sync.Mutex
	uploads [][]byte
	dirs    []string
}

func (f *fakeUploader) UploadFile(_ context.Context, dir string, data []byte, ext, mimeType string) (*client.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, data)
	f.dirs = append(f.dirs, dir)
	key := fmt.Sprintf("%s/%d%s", dir, len(f.uploads), ext)
	return &client.UploadResult{SecureURL: "https://cdn.example.com/" + key, Key: key}, nil
}

// byteSeconds reports one second of audio per byte.
func byteSeconds(data []byte) (time.Duration, error) {
	return time.Duration(len(data)) * time.Second, nil
}

var podcastCast = []model.Character{
	{Name: "Dr. Ada", Gender: model.GenderFemale, VoiceID: "voice-ada", Image: "ada.png"},
	{Name: "Bob", Gender: model.GenderMale},
}

type podcastFixture struct {
	assembler *PodcastAssembler
	store     *store.Store
	tts       *fakeTTS
	uploader  *fakeUploader
	notifier  *fakeNotifier
}

func newPodcastFixture(t *testing.T, a Assistant, sims ...model.Simulation) *podcastFixture {
	t.Helper()
	st := openStore(t)
	records := make([]model.EpisodeRecord, len(sims))
	for i, sim := range sims {
		rec := episodeRecord(sim.EpisodeID, "Cardio Week", i+1)
		sim.EventName = "Cardio Week"
		sim.Characters = podcastCast
		sim.GenPodStatus = model.PodStatusPending
		rec.Simulation = sim
		records[i] = rec
	}
	require.NoError(t, st.InsertBatch(context.Background(), records))

	f := &podcastFixture{store: st, tts: &fakeTTS{}, uploader: &fakeUploader{}, notifier: &fakeNotifier{}}
	voices := NewVoiceAssigner([]string{"male-1"}, []string{"female-1"})
	voices.pick = func(int) int { return 0 }
	f.assembler = NewPodcastAssembler(st, a, f.tts, f.uploader, f.notifier, voices, nil, nil, PodcastOptions{
		MaxChunks:        3,
		TTSPolicy:        testPolicy(2),
		ConversionPolicy: testPolicy(2),
	})
	f.assembler.probe = byteSeconds
	return f
}

func (f *podcastFixture) stored(t *testing.T, id string) model.Simulation {
	t.Helper()
	sims, err := f.store.GetSimulations(context.Background(), []string{id})
	require.NoError(t, err)
	require.Len(t, sims, 1)
	return sims[0]
}

func TestAssemble_RendersTurnsInOrderAndCompletes(t *testing.T) {
	sim := model.Simulation{
		ID:           "sim-1",
		EpisodeID:    "ep-1",
		EpisodeTitle: "Rhythm",
		Script:       "# Rhythm",
		ConversationTurns: []model.ConversationTurn{
			{Speaker: "", Text: "Rhythm"},
			{Speaker: "Dr. Ada", Text: "hello"},
			{Speaker: "bob", Text: "hi"},
			{Speaker: "Walk-in", Gender: model.GenderFemale, Text: "me too"},
			{Speaker: "bob", Text: "bye"},
		},
	}
	f := newPodcastFixture(t, &fakeAssistant{}, sim)

	results, err := f.assembler.Assemble(context.Background(), "job-1", "user-1", []string{"sim-1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.PodStatusCompleted, results[0].Status)

	wantAudio := "ID3hello" + "ID3hi" + "ID3me too" + "ID3bye"
	require.Len(t, f.uploader.uploads, 1)
	assert.Equal(t, wantAudio, string(f.uploader.uploads[0]))
	assert.Equal(t, "chat-simulation/episode", f.uploader.dirs[0])
	assert.Equal(t, len(wantAudio), results[0].Duration)
	assert.Equal(t, len(wantAudio), results[0].AudioSize)

	voices := map[string]string{}
	for _, c := range f.tts.Calls() {
		voices[c.text] = c.voiceID
	}
	assert.Equal(t, map[string]string{"hello": "voice-ada", "hi": "male-1", "bye": "male-1", "me too": "female-1"}, voices)

	stored := f.stored(t, "sim-1")
	assert.Equal(t, model.PodStatusCompleted, stored.GenPodStatus)
	assert.Equal(t, results[0].FileURL, stored.FileURL)
	assert.Equal(t, len(wantAudio), stored.Duration)
	assert.Len(t, stored.UserSimulation, 5)

	sent := f.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "user-1", sent[0].userID)
	note, ok := sent[0].msg.(model.WSNotification)
	require.True(t, ok)
	assert.Equal(t, model.WSMessageTypePodcastGenerated, note.Type)
	assert.Equal(t, model.PodcastGeneratedData{SimulationID: "sim-1", FileURL: results[0].FileURL}, note.Data)
}

func TestAssemble_FailureIsIsolatedPerSimulation(t *testing.T) {
	good := model.Simulation{ID: "sim-good", EpisodeID: "ep-1", ConversationTurns: []model.ConversationTurn{{Speaker: "Bob", Text: "fine"}}}
	bad := model.Simulation{ID: "sim-bad", EpisodeID: "ep-2", ConversationTurns: []model.ConversationTurn{
		{Speaker: "Bob", Text: "fine"},
		{Speaker: "Dr. Ada", Text: "broken"},
	}}
	f := newPodcastFixture(t, &fakeAssistant{}, good, bad)

	results, err := f.assembler.Assemble(context.Background(), "job-1", "user-1", []string{"sim-good", "sim-bad"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, model.PodStatusCompleted, results[0].Status)
	assert.Equal(t, model.PodStatusFailed, results[1].Status)
	assert.Contains(t, results[1].Error, ErrInvalidAudio.Error())

	stored := f.stored(t, "sim-bad")
	assert.Equal(t, model.PodStatusFailed, stored.GenPodStatus)
	assert.Empty(t, stored.FileURL)

	var failures []model.WSErrorMessage
	for _, s := range f.notifier.Sent() {
		if m, ok := s.msg.(model.WSErrorMessage); ok {
			failures = append(failures, m)
		}
	}
	require.Len(t, failures, 1)
	assert.Equal(t, "job-1", failures[0].JobID)
	assert.Equal(t, "PODCAST_FAILED", failures[0].Error.Code)
	assert.Contains(t, failures[0].Error.Message, "sim-bad")
}

func TestAssemble_SynthesisErrorsAreRetriedThenFail(t *testing.T) {
	sim := model.Simulation{ID: "sim-1", EpisodeID: "ep-1", ConversationTurns: []model.ConversationTurn{{Speaker: "Bob", Text: "unavailable"}}}
	f := newPodcastFixture(t, &fakeAssistant{}, sim)

	results, err := f.assembler.Assemble(context.Background(), "job-1", "user-1", []string{"sim-1"})
	require.NoError(t, err)
	assert.Equal(t, model.PodStatusFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "tts 503")
	assert.Len(t, f.tts.Calls(), 2)
	assert.Empty(t, f.uploader.uploads)
}

func TestAssemble_ConvertsScriptInChunks(t *testing.T) {
	a := &fakeAssistant{respond: func(n int, req *client.ThreadMessageRequest) (string, error) {
		if n == 0 {
			return `{"data":[{"name":"","conversation":"Cardio-Week: Rhythm"},{"name":"Dr. Ada","conversation":"hello"}],"isLastData":false}`, nil
		}
		return `{"data":[{"name":"Bob","conversation":"hi"}],"isLastData":true}`, nil
	}}
	sim := model.Simulation{ID: "sim-1", EpisodeID: "ep-1", EpisodeTitle: "Rhythm", Script: "# Cardio Week: Rhythm\nDr. Ada: hello\nBob: hi"}
	f := newPodcastFixture(t, a, sim)

	results, err := f.assembler.Assemble(context.Background(), "job-1", "user-1", []string{"sim-1"})
	require.NoError(t, err)
	require.Equal(t, model.PodStatusCompleted, results[0].Status, results[0].Error)

	calls := a.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0].Message, "Bob: hi")
	assert.Equal(t, client.ComponentSimulationConversion, calls[0].Component)
	assert.Equal(t, "sim-1", calls[0].ContextID)
	assert.Equal(t, continuationPrompt, calls[1].Message)
	assert.Equal(t, "thread-new", calls[1].ThreadID)

	stored := f.stored(t, "sim-1")
	require.Len(t, stored.UserSimulation, 2)
	assert.Equal(t, "hello", stored.UserSimulation[0].Text)
	assert.Equal(t, "ID3helloID3hi", string(f.uploader.uploads[0]))
}

func TestAssemble_ConversionMustFinish(t *testing.T) {
	a := &fakeAssistant{respond: func(int, *client.ThreadMessageRequest) (string, error) {
		return `{"data":[{"name":"Bob","conversation":"again"}],"isLastData":false}`, nil
	}}
	sim := model.Simulation{ID: "sim-1", EpisodeID: "ep-1", Script: "Bob: again"}
	f := newPodcastFixture(t, a, sim)

	results, err := f.assembler.Assemble(context.Background(), "job-1", "user-1", []string{"sim-1"})
	require.NoError(t, err)
	assert.Equal(t, model.PodStatusFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "did not finish")
	assert.Len(t, a.Calls(), 3)
	assert.Empty(t, f.tts.Calls())
}

func TestAssemble_MissingSimulationFailsOnlyItself(t *testing.T) {
	sim := model.Simulation{ID: "sim-1", EpisodeID: "ep-1", ConversationTurns: []model.ConversationTurn{{Speaker: "Bob", Text: "x"}}}
	f := newPodcastFixture(t, &fakeAssistant{}, sim)

	results, err := f.assembler.Assemble(context.Background(), "job-1", "user-1", []string{"deleted-sim", "sim-1"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "deleted-sim", results[0].SimulationID)
	assert.Equal(t, model.PodStatusFailed, results[0].Status)
	assert.Equal(t, ErrSimulationNotFound.Error(), results[0].Error)

	assert.Equal(t, "sim-1", results[1].SimulationID)
	assert.Equal(t, model.PodStatusCompleted, results[1].Status)
	assert.Len(t, f.tts.Calls(), 1)

	stored := f.stored(t, "sim-1")
	assert.Equal(t, model.PodStatusCompleted, stored.GenPodStatus)
	assert.NotEmpty(t, stored.FileURL)

	var failures []model.WSErrorMessage
	for _, s := range f.notifier.Sent() {
		if m, ok := s.msg.(model.WSErrorMessage); ok {
			failures = append(failures, m)
		}
	}
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Error.Message, "deleted-sim")
}

func TestDropRepeatedHeading(t *testing.T) {
	turns := []model.ConversationTurn{{Text: "Episode 1 - the HEART   of it"}, {Speaker: "Bob", Text: "hi"}}

	assert.Len(t, dropRepeatedHeading(turns, "The Heart of It", ""), 1)
	assert.Len(t, dropRepeatedHeading(turns, "", "the-heart"), 1)
	assert.Len(t, dropRepeatedHeading(turns, "Lungs", "Week"), 2)
	assert.Len(t, dropRepeatedHeading(turns, "", ""), 2)
	assert.Empty(t, dropRepeatedHeading(nil, "x", "y"))
}

func TestJoinSegments(t *testing.T) {
	assert.Equal(t, "abcde", string(joinSegments([][]byte{[]byte("ab"), nil, []byte("cde")})))
	assert.True(t, strings.HasPrefix(string(joinSegments([][]byte{[]byte("ID3")})), "ID3"))
}
