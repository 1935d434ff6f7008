package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/episodecast/api/internal/client"
	"github.com/episodecast/api/internal/config"
	"github.com/episodecast/api/internal/retry"
	"github.com/episodecast/api/internal/store"
	"github.com/stretchr/testify/require"
)

func noSleep(context.Context, time.Duration) error { return nil }

func testPolicy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, Sleep: noSleep}
}

type fakeAssistant struct {
	mu      sync.Mutex
	calls   []client.ThreadMessageRequest
	respond func(n int, req *client.ThreadMessageRequest) (string, error)
}

func (f *fakeAssistant) AddMessage(_ context.Context, req *client.ThreadMessageRequest) (*client.ThreadMessageResponse, error) {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, *req)
	f.mu.Unlock()

	msg, err := f.respond(n, req)
	if err != nil {
		return nil, err
	}
	thread := req.ThreadID
	if thread == "" {
		thread = "thread-new"
	}
	return &client.ThreadMessageResponse{Message: msg, ThreadID: thread, MessageID: "msg"}, nil
}

func (f *fakeAssistant) Calls() []client.ThreadMessageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]client.ThreadMessageRequest(nil), f.calls...)
}

type sentMessage struct {
	userID string
	msg    interface{}
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeNotifier) Notify(userID string, msg interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{userID: userID, msg: msg})
}

func (f *fakeNotifier) Sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(&config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
