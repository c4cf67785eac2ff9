package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/waspdev/waspd/ai/router"
	"github.com/waspdev/waspd/internal/profile"
)

type stubMemory struct{}

func (stubMemory) AssembleContext(_ context.Context, query string) (string, error) {
	return query, nil
}

func (stubMemory) RecordTurn(context.Context, string, string, string, string) error {
	return nil
}

// stubExec answers every task with a fixed reply. With block set it
// stalls until the run is cancelled; with gate set it holds the reply
// until the gate closes.
type stubExec struct {
	reply string
	block bool
	gate  chan struct{}
}

func (e *stubExec) Stream(ctx context.Context, _ *router.Task) (<-chan string, <-chan error) {
	tokens := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		defer close(tokens)
		defer close(errCh)
		if e.block {
			<-ctx.Done()
			errCh <- ctx.Err()
			return
		}
		if e.gate != nil {
			select {
			case <-e.gate:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		select {
		case tokens <- e.reply:
		case <-ctx.Done():
			errCh <- ctx.Err()
		}
	}()
	return tokens, errCh
}

func newTestServer(t *testing.T, p *profile.Profile, local router.Executor) (*Server, *router.Router) {
	t.Helper()
	if p == nil {
		p = &profile.Profile{Version: "1.0.0", RoutingMode: "auto", RoutingThreshold: 6, QueueMaxDepth: 50}
	}

	rt := router.New(p, stubMemory{}, local, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	rt.Start(ctx)
	loaded := local != nil
	rt.SetExecutorStatus(&loaded, nil)

	s, err := NewServer(ctx, p, nil, rt, nil, nil)
	require.NoError(t, err)
	return s, rt
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil, &stubExec{reply: "ok"})

	rec := doRequest(s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "1.0.0", body["version"])
	require.NotZero(t, body["timestamp"])
}

func TestStatusWithoutLocalModel(t *testing.T) {
	s, _ := newTestServer(t, nil, &stubExec{reply: "ok"})

	rec := doRequest(s, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Routing    string  `json:"routing"`
		LocalModel *string `json:"localModel"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "auto", body.Routing)
	require.Nil(t, body.LocalModel)
	require.Contains(t, rec.Body.String(), `"localModel":null`)
}

func TestWebhook(t *testing.T) {
	s, _ := newTestServer(t, nil, &stubExec{reply: "pong"})

	rec := doRequest(s, http.MethodPost, "/webhook", `{"message":"ping"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "pong", body["response"])
}

func TestWebhookMissingMessage(t *testing.T) {
	s, _ := newTestServer(t, nil, &stubExec{reply: "pong"})

	rec := doRequest(s, http.MethodPost, "/webhook", `{"userId":"u1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Missing message", body["error"])
}

func TestWebhookTimeout(t *testing.T) {
	p := &profile.Profile{Version: "1.0.0", RoutingMode: "auto", RoutingThreshold: 6, QueueMaxDepth: 50, RequestTimeout: 1}
	s, _ := newTestServer(t, p, &stubExec{block: true})

	rec := doRequest(s, http.MethodPost, "/webhook", `{"message":"hang"}`)
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestWebhookClientDisconnectDoesNotCancelTask(t *testing.T) {
	gate := make(chan struct{})
	s, rt := newTestServer(t, nil, &stubExec{reply: "late answer", gate: gate})

	events, unsubscribe := rt.Subscribe()
	defer unsubscribe()

	reqCtx, cancelReq := context.WithCancel(context.Background())
	defer cancelReq()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"message":"slow one"}`)).WithContext(reqCtx)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	served := make(chan struct{})
	go func() {
		s.Echo().ServeHTTP(rec, req)
		close(served)
	}()

	var taskID string
	deadline := time.After(3 * time.Second)
	for taskID == "" {
		select {
		case ev := <-events:
			if ev.Type == router.EventRouted {
				taskID = ev.TaskID
			}
		case <-deadline:
			t.Fatal("timed out waiting for the task to be routed")
		}
	}

	// Drop the connection while the executor is still holding the reply,
	// then let it finish.
	cancelReq()
	<-served
	close(gate)

	for {
		select {
		case ev := <-events:
			if ev.TaskID != taskID {
				continue
			}
			switch ev.Type {
			case router.EventComplete:
				require.Equal(t, "late answer", ev.Response)
				return
			case router.EventCancelled:
				t.Fatal("task was cancelled after the client disconnected")
			}
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for the task to complete")
		}
	}
}

func TestUnknownPathReturnsNotFound(t *testing.T) {
	s, _ := newTestServer(t, nil, &stubExec{reply: "ok"})

	rec := doRequest(s, http.MethodGet, "/definitely/not/here", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.JSONEq(t, `{"error":"Not found"}`, rec.Body.String())
}
