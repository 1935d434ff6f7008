package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/episodecast/api/internal/config"
	"github.com/google/uuid"
)

// ComponentType tags which part of the pipeline sent a thread message
type ComponentType string

const (
	ComponentChatSimulation       ComponentType = "CHAT_SIMULATION"
	ComponentSimulationConversion ComponentType = "SIMULATION_CONVERSION"
)

// ChatMessage represents a message in the chat completion request
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest represents the request body for chat completion
type ChatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []ChatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

// ChatCompletionResponse represents the response from chat completion
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// ThreadMessageRequest is one message added to an assistant thread
type ThreadMessageRequest struct {
	UserID     string
	ThreadID   string
	Message    string
	Component  ComponentType
	ContextID  string
	Files      []string
	FileBucket string
}

// ThreadMessageResponse is the assistant's reply
type ThreadMessageResponse struct {
	Message   string
	ThreadID  string
	MessageID string
}

// AssistantClient runs multi-turn conversations against an OpenAI-compatible
// chat completions API, keeping thread history in a ThreadStore.
type AssistantClient struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	model        string
	systemPrompt string
	threads      ThreadStore
}

// NewAssistantClient creates a new assistant client
func NewAssistantClient(cfg *config.AssistantConfig, threads ThreadStore) *AssistantClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &AssistantClient{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		threads:      threads,
	}
}

// AddMessage sends req.Message on the thread and returns the reply. An empty
// ThreadID starts a new thread; the resolved id is always returned.
func (c *AssistantClient) AddMessage(ctx context.Context, req *ThreadMessageRequest) (*ThreadMessageResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("assistant: empty message")
	}

	threadID := req.ThreadID
	var history []ChatMessage
	if threadID == "" {
		threadID = uuid.New().String()
	} else {
		loaded, err := c.threads.Load(ctx, threadID)
		if err != nil {
			return nil, err
		}
		history = loaded
	}

	user := ChatMessage{Role: "user", Content: composeUserMessage(req)}
	messages := make([]ChatMessage, 0, len(history)+2)
	if c.systemPrompt != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: c.systemPrompt})
	}
	messages = append(messages, history...)
	messages = append(messages, user)

	resp, err := c.complete(ctx, messages)
	if err != nil {
		return nil, err
	}

	reply := ChatMessage{Role: "assistant", Content: resp.Choices[0].Message.Content}
	if err := c.threads.Append(ctx, threadID, user, reply); err != nil {
		return nil, err
	}

	messageID := resp.ID
	if messageID == "" {
		messageID = uuid.New().String()
	}
	return &ThreadMessageResponse{
		Message:   reply.Content,
		ThreadID:  threadID,
		MessageID: messageID,
	}, nil
}

func composeUserMessage(req *ThreadMessageRequest) string {
	if len(req.Files) == 0 {
		return req.Message
	}
	var b strings.Builder
	b.WriteString(req.Message)
	b.WriteString("\n\nAttached files")
	if req.FileBucket != "" {
		fmt.Fprintf(&b, " (%s)", req.FileBucket)
	}
	b.WriteString(":")
	for _, f := range req.Files {
		b.WriteString("\n- ")
		b.WriteString(f)
	}
	return b.String()
}

func (c *AssistantClient) complete(ctx context.Context, messages []ChatMessage) (*ChatCompletionResponse, error) {
	reqBody := ChatCompletionRequest{
		Model:          c.model,
		Messages:       messages,
		Temperature:    0.7,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("assistant API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}
	if strings.TrimSpace(chatResp.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("assistant returned empty content (finish_reason=%q)", chatResp.Choices[0].FinishReason)
	}

	return &chatResp, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *AssistantClient) IsConfigured() bool {
	return c.apiKey != ""
}
