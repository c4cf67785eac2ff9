// Package provider presents one contract over multiple cloud model APIs
// that differ in endpoint shape, authentication, request envelope and
// streaming frame format. Each API is described by a plain descriptor
// record rather than a type hierarchy, so the provider set stays open.
package provider

import (
	"fmt"

	"github.com/pkg/errors"
)

// Message is the normalized chat message exchanged with every provider.
type Message struct {
	Role    string `json:"role"` // system, user or assistant
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Model is the normalized model record returned by list_models.
type Model struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// Frame is one parsed streaming frame: a token, an end-of-stream marker,
// or both.
type Frame struct {
	Done  bool
	Token string
}

// Descriptor describes how to talk to one cloud model API. It is
// configuration, not behavior: the client drives every provider through
// the same loop and the descriptor supplies the per-API shapes.
type Descriptor struct {
	ID      string
	BaseURL string

	// ModelsPath is empty for providers without a model-listing endpoint.
	ModelsPath string

	// ChatPath renders the chat endpoint for one model and stream mode.
	ChatPath func(model string, stream bool) string

	// Headers builds the authentication headers from the credential.
	Headers func(credential string) map[string]string

	// BuildRequest shapes the provider request envelope.
	BuildRequest func(model string, messages []Message, stream bool) (any, error)

	// ParseFrame decodes one line of the streaming body. ok=false means
	// the line carries no frame (keep reading); malformed lines are
	// reported the same way so a single bad frame never aborts a stream.
	ParseFrame func(line []byte) (frame Frame, ok bool)

	// ParseModels decodes the model-listing response body.
	ParseModels func(body []byte) ([]Model, error)

	// ParseChat decodes a non-streaming chat response body.
	ParseChat func(body []byte) (string, error)
}

// ErrUnknownProvider is returned on a lookup miss in the registry.
var ErrUnknownProvider = errors.New("unknown provider")

// ErrListUnsupported is returned by ListModels for providers without a
// model-listing endpoint.
var ErrListUnsupported = errors.New("provider does not support model listing")

// ProviderError carries a non-2xx upstream response.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s returned status %d: %s", e.Provider, e.Status, e.Message)
}

// Registry is the static set of known provider descriptors.
type Registry struct {
	descriptors map[string]*Descriptor
	order       []string
}

// NewRegistry builds a registry holding the given descriptors.
func NewRegistry(descriptors ...*Descriptor) *Registry {
	r := &Registry{descriptors: make(map[string]*Descriptor)}
	for _, d := range descriptors {
		if _, ok := r.descriptors[d.ID]; !ok {
			r.order = append(r.order, d.ID)
		}
		r.descriptors[d.ID] = d
	}
	return r
}

// Lookup resolves a provider by ID.
func (r *Registry) Lookup(id string) (*Descriptor, error) {
	d, ok := r.descriptors[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownProvider, "%s", id)
	}
	return d, nil
}

// IDs returns the registered provider IDs in registration order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
