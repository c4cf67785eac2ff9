package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"

	anthropicAPIVersion = "2023-06-01"
	anthropicMaxTokens  = 4096
)

// DefaultRegistry returns the built-in provider set.
func DefaultRegistry() *Registry {
	return NewRegistry(openAIDescriptor(), anthropicDescriptor(), geminiDescriptor())
}

// openAIDescriptor speaks the OpenAI chat completions API. Streaming
// frames are `data: {json}` lines terminated by a literal `data: [DONE]`.
func openAIDescriptor() *Descriptor {
	return &Descriptor{
		ID:         ProviderOpenAI,
		BaseURL:    "https://api.openai.com/v1",
		ModelsPath: "/models",
		ChatPath: func(string, bool) string {
			return "/chat/completions"
		},
		Headers: func(credential string) map[string]string {
			return map[string]string{
				"Authorization": "Bearer " + credential,
				"Content-Type":  "application/json",
			}
		},
		BuildRequest: func(model string, messages []Message, stream bool) (any, error) {
			return map[string]any{
				"model":    model,
				"messages": messages,
				"stream":   stream,
			}, nil
		},
		ParseFrame: func(line []byte) (Frame, bool) {
			data, ok := ssePayload(line)
			if !ok {
				return Frame{}, false
			}
			if bytes.Equal(data, []byte("[DONE]")) {
				return Frame{Done: true}, true
			}
			var chunk struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
				} `json:"choices"`
			}
			if err := json.Unmarshal(data, &chunk); err != nil || len(chunk.Choices) == 0 {
				return Frame{}, false
			}
			return Frame{Token: chunk.Choices[0].Delta.Content}, true
		},
		ParseModels: func(body []byte) ([]Model, error) {
			var resp struct {
				Data []struct {
					ID string `json:"id"`
				} `json:"data"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				return nil, errors.Wrap(err, "failed to decode model list")
			}
			models := make([]Model, 0, len(resp.Data))
			for _, m := range resp.Data {
				models = append(models, Model{ID: m.ID, Name: m.ID, Provider: ProviderOpenAI})
			}
			return models, nil
		},
		ParseChat: func(body []byte) (string, error) {
			var resp struct {
				Choices []struct {
					Message struct {
						Content string `json:"content"`
					} `json:"message"`
				} `json:"choices"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				return "", errors.Wrap(err, "failed to decode chat response")
			}
			if len(resp.Choices) == 0 {
				return "", errors.New("chat response has no choices")
			}
			return resp.Choices[0].Message.Content, nil
		},
	}
}

// anthropicDescriptor speaks the Anthropic messages API. The first
// system message moves to the out-of-band system field; streaming frames
// are typed SSE events where content_block_delta carries the token and
// message_stop closes the stream. The API has no model-listing endpoint.
func anthropicDescriptor() *Descriptor {
	return &Descriptor{
		ID:      ProviderAnthropic,
		BaseURL: "https://api.anthropic.com/v1",
		ChatPath: func(string, bool) string {
			return "/messages"
		},
		Headers: func(credential string) map[string]string {
			return map[string]string{
				"x-api-key":         credential,
				"anthropic-version": anthropicAPIVersion,
				"Content-Type":      "application/json",
			}
		},
		BuildRequest: func(model string, messages []Message, stream bool) (any, error) {
			system, rest := splitSystem(messages)
			req := map[string]any{
				"model":      model,
				"max_tokens": anthropicMaxTokens,
				"messages":   rest,
				"stream":     stream,
			}
			if system != "" {
				req["system"] = system
			}
			return req, nil
		},
		ParseFrame: func(line []byte) (Frame, bool) {
			data, ok := ssePayload(line)
			if !ok {
				return Frame{}, false
			}
			var event struct {
				Type  string `json:"type"`
				Delta struct {
					Text string `json:"text"`
				} `json:"delta"`
			}
			if err := json.Unmarshal(data, &event); err != nil {
				return Frame{}, false
			}
			switch event.Type {
			case "content_block_delta":
				return Frame{Token: event.Delta.Text}, true
			case "message_stop":
				return Frame{Done: true}, true
			default:
				return Frame{}, false
			}
		},
		ParseChat: func(body []byte) (string, error) {
			var resp struct {
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				return "", errors.Wrap(err, "failed to decode chat response")
			}
			var b strings.Builder
			for _, block := range resp.Content {
				if block.Type == "text" {
					b.WriteString(block.Text)
				}
			}
			return b.String(), nil
		},
	}
}

// geminiDescriptor speaks the Gemini generateContent API. Streaming uses
// `?alt=sse`; the assistant role maps to "model" and system messages go
// into systemInstruction. End-of-stream is the transport closing.
func geminiDescriptor() *Descriptor {
	return &Descriptor{
		ID:         ProviderGemini,
		BaseURL:    "https://generativelanguage.googleapis.com/v1beta",
		ModelsPath: "/models",
		ChatPath: func(model string, stream bool) string {
			if stream {
				return fmt.Sprintf("/models/%s:streamGenerateContent?alt=sse", model)
			}
			return fmt.Sprintf("/models/%s:generateContent", model)
		},
		Headers: func(credential string) map[string]string {
			return map[string]string{
				"x-goog-api-key": credential,
				"Content-Type":   "application/json",
			}
		},
		BuildRequest: func(_ string, messages []Message, _ bool) (any, error) {
			system, rest := splitSystem(messages)

			contents := make([]map[string]any, 0, len(rest))
			for _, m := range rest {
				role := "user"
				if m.Role == RoleAssistant {
					role = "model"
				}
				contents = append(contents, map[string]any{
					"role":  role,
					"parts": []map[string]string{{"text": m.Content}},
				})
			}

			req := map[string]any{"contents": contents}
			if system != "" {
				req["systemInstruction"] = map[string]any{
					"parts": []map[string]string{{"text": system}},
				}
			}
			return req, nil
		},
		ParseFrame: func(line []byte) (Frame, bool) {
			data, ok := ssePayload(line)
			if !ok {
				return Frame{}, false
			}
			token, err := parseGeminiCandidates(data)
			if err != nil {
				return Frame{}, false
			}
			return Frame{Token: token}, true
		},
		ParseModels: func(body []byte) ([]Model, error) {
			var resp struct {
				Models []struct {
					Name        string `json:"name"`
					DisplayName string `json:"displayName"`
				} `json:"models"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				return nil, errors.Wrap(err, "failed to decode model list")
			}
			models := make([]Model, 0, len(resp.Models))
			for _, m := range resp.Models {
				// API names come as "models/<id>".
				id := strings.TrimPrefix(m.Name, "models/")
				name := m.DisplayName
				if name == "" {
					name = id
				}
				models = append(models, Model{ID: id, Name: name, Provider: ProviderGemini})
			}
			return models, nil
		},
		ParseChat: func(body []byte) (string, error) {
			token, err := parseGeminiCandidates(body)
			if err != nil {
				return "", errors.Wrap(err, "failed to decode chat response")
			}
			return token, nil
		},
	}
}

// ssePayload extracts the payload of a `data: ...` SSE line.
func ssePayload(line []byte) ([]byte, bool) {
	line = bytes.TrimSpace(line)
	if !bytes.HasPrefix(line, []byte("data:")) {
		return nil, false
	}
	return bytes.TrimSpace(line[len("data:"):]), true
}

// splitSystem extracts the first system message; the remaining messages
// keep their order.
func splitSystem(messages []Message) (string, []Message) {
	system := ""
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem && system == "" {
			system = m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

func parseGeminiCandidates(data []byte) (string, error) {
	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("no candidates")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String(), nil
}
