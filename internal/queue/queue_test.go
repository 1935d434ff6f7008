package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/episodecast/api/internal/config"
	"github.com/episodecast/api/internal/model"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, task)
	r.opts = append(r.opts, opts)
	return &asynq.TaskInfo{ID: "ignored"}, nil
}

type recordingObserver struct {
	started  []*Job
	finished []error
}

func (o *recordingObserver) JobStarted(_ context.Context, job *Job) {
	o.started = append(o.started, job)
}

func (o *recordingObserver) JobFinished(_ context.Context, _ *Job, err error) {
	o.finished = append(o.finished, err)
}

func newTestClient(enq Enqueuer) *Client {
	c := NewClient(enq, &config.QueueConfig{Name: "chat-simulation", JobTimeout: time.Hour})
	c.newID = func() string { return "job-1" }
	c.now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

func optionValues(opts []asynq.Option) map[asynq.OptionType]interface{} {
	values := make(map[asynq.OptionType]interface{})
	for _, o := range opts {
		values[o.Type()] = o.Value()
	}
	return values
}

func podcastPayload() *model.GeneratePodcastPayload {
	return &model.GeneratePodcastPayload{UserID: "user-1", SimulationIDs: []string{"sim-1", "sim-2"}}
}

func TestTaskOptions_TranslatesSubmission(t *testing.T) {
	opts := TaskOptions("chat-simulation", "job-1", Options{Priority: 1, Attempts: 3}, 2*time.Hour)
	values := optionValues(opts)

	assert.Equal(t, "chat-simulation:critical", values[asynq.QueueOpt])
	assert.Equal(t, 2, values[asynq.MaxRetryOpt])
	assert.Equal(t, "job-1", values[asynq.TaskIDOpt])
	assert.Equal(t, 24*time.Hour, values[asynq.RetentionOpt])
	assert.Equal(t, 2*time.Hour, values[asynq.TimeoutOpt])
}

func TestTaskOptions_RemoveOnCompleteSkipsRetention(t *testing.T) {
	values := optionValues(TaskOptions("q", "", Options{RemoveOnComplete: true}, 0))

	assert.NotContains(t, values, asynq.RetentionOpt)
	assert.NotContains(t, values, asynq.TaskIDOpt)
	assert.NotContains(t, values, asynq.TimeoutOpt)
	assert.Equal(t, 0, values[asynq.MaxRetryOpt])
	assert.Equal(t, "q:default", values[asynq.QueueOpt])
}

func TestTierFor(t *testing.T) {
	assert.Equal(t, "q:critical", TierFor("q", 1))
	assert.Equal(t, "q:default", TierFor("q", 0))
	assert.Equal(t, "q:default", TierFor("q", 2))
	assert.Equal(t, "q:low", TierFor("q", 7))
	assert.Len(t, Queues("q"), 3)
}

func TestRetryDelay_FollowsEnvelopeBackoff(t *testing.T) {
	task := func(b Backoff) *asynq.Task {
		data, err := json.Marshal(Envelope{JobID: "j", Kind: model.KindGeneratePodcast, Backoff: b})
		require.NoError(t, err)
		return asynq.NewTask(string(model.KindGeneratePodcast), data)
	}

	exp := task(Backoff{Type: model.BackoffExponential, Delay: 5000})
	assert.Equal(t, 5*time.Second, RetryDelay(0, errors.New("x"), exp))
	assert.Equal(t, 10*time.Second, RetryDelay(1, errors.New("x"), exp))
	assert.Equal(t, 20*time.Second, RetryDelay(2, errors.New("x"), exp))

	fixed := task(Backoff{Type: model.BackoffFixed, Delay: 1500})
	assert.Equal(t, 1500*time.Millisecond, RetryDelay(3, errors.New("x"), fixed))

	unreadable := asynq.NewTask("generate-podcast", []byte("not json"))
	assert.Greater(t, RetryDelay(0, errors.New("x"), unreadable), time.Duration(0))
}

func TestClient_EnqueueWrapsPayloadInEnvelope(t *testing.T) {
	enq := &recordingEnqueuer{}
	c := newTestClient(enq)

	jobID, err := c.Enqueue(context.Background(), model.KindGeneratePodcast, podcastPayload(), Options{Priority: 1, Attempts: 3, Backoff: Backoff{Type: model.BackoffExponential, Delay: 5000}})
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
	require.Len(t, enq.tasks, 1)

	task := enq.tasks[0]
	assert.Equal(t, "generate-podcast", task.Type())

	env, err := DecodeEnvelope(task.Payload())
	require.NoError(t, err)
	assert.Equal(t, "job-1", env.JobID)
	assert.Equal(t, "user-1", env.UserID)
	assert.Equal(t, 3, env.MaxAttempts)
	assert.Equal(t, int64(5000), env.Backoff.Delay)

	var payload model.GeneratePodcastPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, []string{"sim-1", "sim-2"}, payload.SimulationIDs)

	values := optionValues(enq.opts[0])
	assert.Equal(t, "job-1", values[asynq.TaskIDOpt])
	assert.Equal(t, time.Hour, values[asynq.TimeoutOpt])
}

func TestClient_RejectsInvalidPayload(t *testing.T) {
	enq := &recordingEnqueuer{}
	c := newTestClient(enq)

	_, err := c.Enqueue(context.Background(), model.KindGeneratePodcast, &model.GeneratePodcastPayload{UserID: "u"}, DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = c.Enqueue(context.Background(), model.Kind("resize-images"), podcastPayload(), DefaultOptions())
	assert.ErrorIs(t, err, ErrUnknownKind)

	assert.Empty(t, enq.tasks)
}

func TestClient_PropagatesBackendError(t *testing.T) {
	c := newTestClient(&recordingEnqueuer{err: errors.New("redis down")})
	_, err := c.Enqueue(context.Background(), model.KindGeneratePodcast, podcastPayload(), DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}

func TestProcessor_DispatchesByKind(t *testing.T) {
	enq := &recordingEnqueuer{}
	c := newTestClient(enq)
	_, err := c.Enqueue(context.Background(), model.KindGeneratePodcast, podcastPayload(), DefaultOptions())
	require.NoError(t, err)

	observer := &recordingObserver{}
	p := NewProcessor(observer)

	var got *Job
	p.Register(model.KindGeneratePodcast, func(_ context.Context, job *Job) error {
		got = job
		return nil
	})
	p.Register(model.KindGenerateSimulation, func(context.Context, *Job) error {
		t.Fatal("wrong handler")
		return nil
	})

	require.NoError(t, p.Mux().ProcessTask(context.Background(), enq.tasks[0]))
	require.NotNil(t, got)
	assert.Equal(t, "job-1", got.ID)
	assert.Equal(t, 1, got.Attempt)
	assert.Equal(t, 3, got.MaxAttempts)
	assert.Equal(t, "user-1", got.UserID)

	payload, ok := got.Payload.(*model.GeneratePodcastPayload)
	require.True(t, ok)
	assert.Equal(t, []string{"sim-1", "sim-2"}, payload.SimulationIDs)

	assert.Len(t, observer.started, 1)
	assert.Equal(t, []error{nil}, observer.finished)
}

func TestProcessor_InvalidPayloadSkipsRetry(t *testing.T) {
	data, err := json.Marshal(Envelope{JobID: "job-2", Kind: model.KindGeneratePodcast, MaxAttempts: 3, Payload: json.RawMessage(`{"userId":"u","simulationIds":[]}`)})
	require.NoError(t, err)

	observer := &recordingObserver{}
	p := NewProcessor(observer)
	called := false
	p.Register(model.KindGeneratePodcast, func(context.Context, *Job) error {
		called = true
		return nil
	})

	err = p.ProcessTask(context.Background(), asynq.NewTask(string(model.KindGeneratePodcast), data))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.False(t, called)
	require.Len(t, observer.finished, 1)
	assert.Error(t, observer.finished[0])
}

func TestProcessor_UnknownKindSkipsRetry(t *testing.T) {
	p := NewProcessor(nil)
	err := p.ProcessTask(context.Background(), asynq.NewTask("resize-images", nil))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestProcessor_RegisterTwicePanics(t *testing.T) {
	p := NewProcessor(nil)
	noop := func(context.Context, *Job) error { return nil }
	p.Register(model.KindScheduleEpisodes, noop)
	assert.Panics(t, func() { p.Register(model.KindScheduleEpisodes, noop) })
	assert.Panics(t, func() { p.Register(model.Kind("unknown"), noop) })
	assert.Equal(t, []model.Kind{model.KindScheduleEpisodes}, p.Kinds())
}

func TestJob_Final(t *testing.T) {
	job := &Job{Attempt: 1, MaxAttempts: 3}
	assert.True(t, job.Final(nil))
	assert.False(t, job.Final(errors.New("transient")))
	assert.True(t, job.Final(errors.Join(errors.New("bad"), asynq.SkipRetry)))

	job.Attempt = 3
	assert.True(t, job.Final(errors.New("transient")))
}
