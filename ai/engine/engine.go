// Package engine is the client for the local inference engine. The
// engine itself lives outside this process and exposes an
// OpenAI-compatible HTTP surface; this package only carries its
// streaming contract.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/waspdev/waspd/ai/provider"
	"github.com/waspdev/waspd/internal/profile"
)

const (
	// DefaultBaseURL is the conventional local engine endpoint.
	DefaultBaseURL = "http://localhost:11434/v1"

	streamTimeout = 5 * time.Minute
)

// ErrNotLoaded is returned when inference is requested before a model
// has been loaded.
var ErrNotLoaded = fmt.Errorf("no local model loaded")

// Client talks to the local inference engine.
type Client struct {
	client *openai.Client

	mu      sync.RWMutex
	modelID string
	loaded  bool
}

// NewClient creates an engine client from the profile.
func NewClient(p *profile.Profile) *Client {
	baseURL := DefaultBaseURL
	if p != nil && p.EngineBaseURL != "" {
		baseURL = p.EngineBaseURL
	}

	// The local engine does not authenticate.
	clientConfig := openai.DefaultConfig("")
	clientConfig.BaseURL = baseURL
	clientConfig.HTTPClient = newHTTPClient()

	return &Client{client: openai.NewClientWithConfig(clientConfig)}
}

// Load verifies the engine is reachable and marks the model as the
// active one. The engine loads weights lazily on first inference.
func (c *Client) Load(ctx context.Context, modelID string) error {
	if modelID == "" {
		return fmt.Errorf("model id required")
	}

	if _, err := c.client.ListModels(ctx); err != nil {
		return fmt.Errorf("local engine unreachable: %w", err)
	}

	c.mu.Lock()
	c.modelID = modelID
	c.loaded = true
	c.mu.Unlock()

	slog.Info("local model loaded", "model", modelID)
	return nil
}

// Unload releases the active model.
func (c *Client) Unload() {
	c.mu.Lock()
	c.modelID = ""
	c.loaded = false
	c.mu.Unlock()
}

// Loaded reports whether a local model is active.
func (c *Client) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// ModelID returns the active model, or "" when none is loaded.
func (c *Client) ModelID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.modelID
}

// Infer streams tokens for the given conversation. The error channel
// delivers at most one error and both channels close when the stream
// ends.
func (c *Client) Infer(ctx context.Context, messages []provider.Message) (<-chan string, <-chan error) {
	tokens := make(chan string, 10)
	errCh := make(chan error, 1)

	c.mu.RLock()
	modelID := c.modelID
	loaded := c.loaded
	c.mu.RUnlock()

	if !loaded {
		close(tokens)
		errCh <- ErrNotLoaded
		close(errCh)
		return tokens, errCh
	}

	go func() {
		defer close(tokens)
		defer close(errCh)

		ctx, cancel := context.WithTimeout(ctx, streamTimeout)
		defer cancel()

		req := openai.ChatCompletionRequest{
			Model:    modelID,
			Messages: convertMessages(messages),
		}

		stream, err := c.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			slog.Error("local inference failed to start", "model", modelID, "error", err)
			errCh <- fmt.Errorf("create stream failed: %w", err)
			return
		}
		defer func() { _ = stream.Close() }()

		for {
			response, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				if ctx.Err() != nil {
					errCh <- ctx.Err()
					return
				}
				slog.Error("local inference receive error", "model", modelID, "error", err)
				errCh <- fmt.Errorf("stream recv failed: %w", err)
				return
			}
			if len(response.Choices) == 0 {
				continue
			}
			token := response.Choices[0].Delta.Content
			if token == "" {
				continue
			}
			select {
			case tokens <- token:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return tokens, errCh
}

func convertMessages(messages []provider.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}
