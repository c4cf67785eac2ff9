package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	r := DefaultRegistry()

	require.Equal(t, []string{ProviderOpenAI, ProviderAnthropic, ProviderGemini}, r.IDs())

	d, err := r.Lookup(ProviderOpenAI)
	require.NoError(t, err)
	require.Equal(t, ProviderOpenAI, d.ID)

	_, err = r.Lookup("nope")
	require.ErrorIs(t, err, ErrUnknownProvider)
}

func TestOpenAIParseFrame(t *testing.T) {
	d := openAIDescriptor()

	frame, ok := d.ParseFrame([]byte(`data: {"choices":[{"delta":{"content":"hi"}}]}`))
	require.True(t, ok)
	require.Equal(t, "hi", frame.Token)
	require.False(t, frame.Done)

	frame, ok = d.ParseFrame([]byte("data: [DONE]"))
	require.True(t, ok)
	require.True(t, frame.Done)

	_, ok = d.ParseFrame([]byte("event: ping"))
	require.False(t, ok)
	_, ok = d.ParseFrame([]byte("data: {broken"))
	require.False(t, ok)
	_, ok = d.ParseFrame([]byte(""))
	require.False(t, ok)
}

func TestAnthropicParseFrame(t *testing.T) {
	d := anthropicDescriptor()

	frame, ok := d.ParseFrame([]byte(`data: {"type":"content_block_delta","delta":{"text":"tok"}}`))
	require.True(t, ok)
	require.Equal(t, "tok", frame.Token)

	frame, ok = d.ParseFrame([]byte(`data: {"type":"message_stop"}`))
	require.True(t, ok)
	require.True(t, frame.Done)

	_, ok = d.ParseFrame([]byte(`data: {"type":"message_start"}`))
	require.False(t, ok)
	_, ok = d.ParseFrame([]byte("event: content_block_delta"))
	require.False(t, ok)
}

func TestAnthropicRequestMovesSystemOutOfBand(t *testing.T) {
	d := anthropicDescriptor()

	payload, err := d.BuildRequest("claude-x", []Message{
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleUser, Content: "hello"},
	}, true)
	require.NoError(t, err)

	req := payload.(map[string]any)
	require.Equal(t, "be terse", req["system"])
	require.Len(t, req["messages"], 1)
	require.Equal(t, true, req["stream"])
}

func TestGeminiRequestShape(t *testing.T) {
	d := geminiDescriptor()

	payload, err := d.BuildRequest("gemini-pro", []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "question"},
		{Role: RoleAssistant, Content: "earlier answer"},
	}, true)
	require.NoError(t, err)

	req := payload.(map[string]any)
	require.Contains(t, req, "systemInstruction")

	contents := req["contents"].([]map[string]any)
	require.Len(t, contents, 2)
	require.Equal(t, "user", contents[0]["role"])
	require.Equal(t, "model", contents[1]["role"])

	require.Equal(t, "/models/gemini-pro:streamGenerateContent?alt=sse", d.ChatPath("gemini-pro", true))
	require.Equal(t, "/models/gemini-pro:generateContent", d.ChatPath("gemini-pro", false))
}

func testClient(d *Descriptor, url string) *Client {
	d.BaseURL = url
	return NewClient(NewRegistry(d))
}

func TestChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n")
		fmt.Fprint(w, "data: {not json\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client := testClient(openAIDescriptor(), srv.URL)
	tokens, errCh := client.ChatStream(context.Background(), ProviderOpenAI, "key", "gpt-test", []Message{{Role: RoleUser, Content: "hi"}})

	var got []string
	for tok := range tokens {
		got = append(got, tok)
	}
	require.NoError(t, <-errCh)
	require.Equal(t, []string{"Hello", " world"}, got)
}

func TestChatStreamProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, "rate limited")
	}))
	defer srv.Close()

	client := testClient(openAIDescriptor(), srv.URL)
	tokens, errCh := client.ChatStream(context.Background(), ProviderOpenAI, "key", "gpt-test", nil)

	for range tokens {
	}
	err := <-errCh

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	require.Equal(t, http.StatusTooManyRequests, provErr.Status)
	require.Equal(t, "rate limited", provErr.Message)
}

func TestChatStreamCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"first\"}}]}\n\n")
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	client := testClient(openAIDescriptor(), srv.URL)
	tokens, errCh := client.ChatStream(ctx, ProviderOpenAI, "key", "gpt-test", nil)

	require.Equal(t, "first", <-tokens)
	cancel()

	for range tokens {
	}
	select {
	case err := <-errCh:
		if err != nil {
			require.ErrorIs(t, err, context.Canceled)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancellation")
	}
}

func TestChatNonStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, false, req["stream"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "pong"}},
			},
		})
	}))
	defer srv.Close()

	client := testClient(openAIDescriptor(), srv.URL)
	resp, err := client.Chat(context.Background(), ProviderOpenAI, "key", "gpt-test", []Message{{Role: RoleUser, Content: "ping"}})
	require.NoError(t, err)
	require.Equal(t, "pong", resp)
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"id": "gpt-a"}, {"id": "gpt-b"}},
		})
	}))
	defer srv.Close()

	client := testClient(openAIDescriptor(), srv.URL)
	models, err := client.ListModels(context.Background(), ProviderOpenAI, "key")
	require.NoError(t, err)
	require.Equal(t, []Model{
		{ID: "gpt-a", Name: "gpt-a", Provider: ProviderOpenAI},
		{ID: "gpt-b", Name: "gpt-b", Provider: ProviderOpenAI},
	}, models)
}

func TestListModelsUnsupported(t *testing.T) {
	client := NewClient(NewRegistry(anthropicDescriptor()))
	_, err := client.ListModels(context.Background(), ProviderAnthropic, "key")
	require.ErrorIs(t, err, ErrListUnsupported)
}
