package router

import (
	"context"

	"github.com/waspdev/waspd/ai/engine"
	"github.com/waspdev/waspd/ai/provider"
)

// LocalExecutor runs tasks on the local inference engine.
type LocalExecutor struct {
	engine *engine.Client
}

// NewLocalExecutor adapts the engine client to the executor contract.
func NewLocalExecutor(c *engine.Client) *LocalExecutor {
	return &LocalExecutor{engine: c}
}

func (e *LocalExecutor) Stream(ctx context.Context, task *Task) (<-chan string, <-chan error) {
	return e.engine.Infer(ctx, taskMessages(task))
}

// CloudExecutor runs tasks against one cloud provider. The credential is
// resolved per call so a rotated bundle takes effect without restart.
type CloudExecutor struct {
	client     *provider.Client
	providerID string
	model      string
	credential func(ctx context.Context) (string, error)
}

// NewCloudExecutor adapts the provider client to the executor contract.
func NewCloudExecutor(client *provider.Client, providerID, model string, credential func(ctx context.Context) (string, error)) *CloudExecutor {
	return &CloudExecutor{
		client:     client,
		providerID: providerID,
		model:      model,
		credential: credential,
	}
}

func (e *CloudExecutor) Stream(ctx context.Context, task *Task) (<-chan string, <-chan error) {
	cred, err := e.credential(ctx)
	if err != nil {
		tokens := make(chan string)
		close(tokens)
		errCh := make(chan error, 1)
		errCh <- err
		close(errCh)
		return tokens, errCh
	}
	return e.client.ChatStream(ctx, e.providerID, cred, e.model, taskMessages(task))
}

// taskMessages shapes the dispatch prompt: the assembled context when
// present, the raw message otherwise.
func taskMessages(task *Task) []provider.Message {
	content := task.Context
	if content == "" {
		content = task.Message
	}
	return []provider.Message{{Role: provider.RoleUser, Content: content}}
}

var (
	_ Executor = (*LocalExecutor)(nil)
	_ Executor = (*CloudExecutor)(nil)
)
