package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/waspdev/waspd/ai/provider"
	"github.com/waspdev/waspd/internal/profile"
)

func newFakeEngine(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/models", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"object":"list","data":[{"id":"tiny-llama","object":"model"}]}`)
	})
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoadAndInfer(t *testing.T) {
	srv := newFakeEngine(t)
	client := NewClient(&profile.Profile{EngineBaseURL: srv.URL})

	require.False(t, client.Loaded())
	require.NoError(t, client.Load(context.Background(), "tiny-llama"))
	require.True(t, client.Loaded())
	require.Equal(t, "tiny-llama", client.ModelID())

	tokens, errCh := client.Infer(context.Background(), []provider.Message{
		{Role: provider.RoleUser, Content: "hi"},
	})

	var out string
	for tok := range tokens {
		out += tok
	}
	require.NoError(t, <-errCh)
	require.Equal(t, "Hello", out)
}

func TestInferWithoutModel(t *testing.T) {
	srv := newFakeEngine(t)
	client := NewClient(&profile.Profile{EngineBaseURL: srv.URL})

	tokens, errCh := client.Infer(context.Background(), nil)
	for range tokens {
	}
	require.ErrorIs(t, <-errCh, ErrNotLoaded)
}

func TestLoadUnreachableEngine(t *testing.T) {
	client := NewClient(&profile.Profile{EngineBaseURL: "http://127.0.0.1:1"})
	err := client.Load(context.Background(), "tiny-llama")
	require.Error(t, err)
	require.False(t, client.Loaded())
}

func TestUnload(t *testing.T) {
	srv := newFakeEngine(t)
	client := NewClient(&profile.Profile{EngineBaseURL: srv.URL})

	require.NoError(t, client.Load(context.Background(), "tiny-llama"))
	client.Unload()
	require.False(t, client.Loaded())
	require.Empty(t, client.ModelID())
}
