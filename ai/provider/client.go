package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/waspdev/waspd/ai/metrics"
)

const (
	// Streaming frames can carry whole JSON documents on one line.
	maxFrameSize = 1 << 20

	errorBodyLimit = 4 << 10
)

// Client drives every registered provider through one request loop; the
// descriptors supply the per-API shapes.
type Client struct {
	registry   *Registry
	httpClient *http.Client
	exporter   *metrics.Exporter
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithMetrics attaches a metrics exporter; every upstream round trip is
// counted by provider and HTTP status.
func WithMetrics(e *metrics.Exporter) ClientOption {
	return func(c *Client) { c.exporter = e }
}

// NewClient creates a provider client over the given registry.
func NewClient(registry *Registry, opts ...ClientOption) *Client {
	c := &Client{
		registry: registry,
		// No overall timeout: streaming responses stay open until the
		// model finishes. Cancellation comes from the caller's context.
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListModels fetches and normalizes the provider's model list.
func (c *Client) ListModels(ctx context.Context, providerID, credential string) ([]Model, error) {
	desc, err := c.registry.Lookup(providerID)
	if err != nil {
		return nil, err
	}
	if desc.ModelsPath == "" {
		return nil, errors.Wrapf(ErrListUnsupported, "%s", providerID)
	}

	resp, err := c.do(ctx, desc, http.MethodGet, desc.BaseURL+desc.ModelsPath, credential, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read model list")
	}
	return desc.ParseModels(body)
}

// Chat performs one non-streaming chat round trip.
func (c *Client) Chat(ctx context.Context, providerID, credential, model string, messages []Message) (string, error) {
	desc, err := c.registry.Lookup(providerID)
	if err != nil {
		return "", err
	}

	payload, err := desc.BuildRequest(model, messages, false)
	if err != nil {
		return "", err
	}
	resp, err := c.do(ctx, desc, http.MethodPost, desc.BaseURL+desc.ChatPath(model, false), credential, payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read chat response")
	}
	return desc.ParseChat(body)
}

// ChatStream performs a streaming chat call. Tokens arrive on the first
// channel in production order; the error channel delivers at most one
// error and closes when the stream ends. Cancelling the context stops
// the reader and releases the response body.
func (c *Client) ChatStream(ctx context.Context, providerID, credential, model string, messages []Message) (<-chan string, <-chan error) {
	tokens := make(chan string)
	errCh := make(chan error, 1)

	desc, err := c.registry.Lookup(providerID)
	if err != nil {
		close(tokens)
		errCh <- err
		close(errCh)
		return tokens, errCh
	}

	go func() {
		defer close(tokens)
		defer close(errCh)

		payload, err := desc.BuildRequest(model, messages, true)
		if err != nil {
			errCh <- err
			return
		}
		resp, err := c.do(ctx, desc, http.MethodPost, desc.BaseURL+desc.ChatPath(model, true), credential, payload)
		if err != nil {
			errCh <- err
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

		for scanner.Scan() {
			// A malformed frame is skipped, never fatal.
			frame, ok := desc.ParseFrame(scanner.Bytes())
			if !ok {
				continue
			}
			if frame.Token != "" {
				select {
				case tokens <- frame.Token:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}
			if frame.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				errCh <- ctx.Err()
				return
			}
			errCh <- errors.Wrap(err, "stream read failed")
		}
	}()

	return tokens, errCh
}

// do sends one request and maps non-2xx responses to ProviderError.
func (c *Client) do(ctx context.Context, desc *Descriptor, method, url, credential string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode request")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	for k, v := range desc.Headers(credential) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "request to provider %s failed", desc.ID)
	}
	c.exporter.RecordProviderRequest(desc.ID, resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, &ProviderError{
			Provider: desc.ID,
			Status:   resp.StatusCode,
			Message:  strings.TrimSpace(string(msg)),
		}
	}
	return resp, nil
}
