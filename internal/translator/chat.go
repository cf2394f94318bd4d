// Package translator holds the JSON shapes of the HTTP surface and converts
// them to and from the unified model.
package translator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"chatbridge/internal/models"
)

var errUnsupportedStop = errors.New("unsupported stop value")

// ChatRequest is the body of POST /v1/chat/:provider.
type ChatRequest struct {
	Model            string
	Messages         []models.Message
	Stream           bool
	MaxTokens        *int
	Temperature      *float64
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	Stop             []string
	WebSearch        bool
	Reasoning        *bool
	Deployment       string
	APIVersion       string
	BaseURL          string
	Region           string
}

// UnmarshalJSON accepts stop as a string or an array and drops message
// entries that are null or not JSON objects.
func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	type alias struct {
		Model            string            `json:"model"`
		Messages         []json.RawMessage `json:"messages"`
		Stream           bool              `json:"stream"`
		MaxTokens        *int              `json:"max_tokens"`
		Temperature      *float64          `json:"temperature"`
		TopP             *float64          `json:"top_p"`
		FrequencyPenalty *float64          `json:"frequency_penalty"`
		PresencePenalty  *float64          `json:"presence_penalty"`
		Stop             json.RawMessage   `json:"stop"`
		WebSearch        bool              `json:"web_search"`
		Reasoning        *bool             `json:"reasoning"`
		Deployment       string            `json:"deployment"`
		APIVersion       string            `json:"api_version"`
		BaseURL          string            `json:"base_url"`
		Region           string            `json:"region"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode chat request: %w", err)
	}

	stop, err := parseStop(raw.Stop)
	if err != nil {
		return err
	}

	messages := make([]models.Message, 0, len(raw.Messages))
	for i, m := range raw.Messages {
		trimmed := bytes.TrimSpace(m)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			continue
		}
		var msg models.Message
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			return fmt.Errorf("message[%d]: %w", i, err)
		}
		msg.Role = strings.TrimSpace(msg.Role)
		messages = append(messages, msg)
	}

	*r = ChatRequest{
		Model:            strings.TrimSpace(raw.Model),
		Messages:         messages,
		Stream:           raw.Stream,
		MaxTokens:        raw.MaxTokens,
		Temperature:      raw.Temperature,
		TopP:             raw.TopP,
		FrequencyPenalty: raw.FrequencyPenalty,
		PresencePenalty:  raw.PresencePenalty,
		Stop:             stop,
		WebSearch:        raw.WebSearch,
		Reasoning:        raw.Reasoning,
		Deployment:       strings.TrimSpace(raw.Deployment),
		APIVersion:       strings.TrimSpace(raw.APIVersion),
		BaseURL:          strings.TrimSpace(raw.BaseURL),
		Region:           strings.TrimSpace(raw.Region),
	}
	return nil
}

// ToUnified converts the request into the canonical format for providerID.
// Credentials and relay settings are filled in by the caller.
func (r ChatRequest) ToUnified(providerID string) models.UnifiedChatRequest {
	return models.UnifiedChatRequest{
		Provider:         providerID,
		Model:            r.Model,
		Messages:         append([]models.Message(nil), r.Messages...),
		Temperature:      r.Temperature,
		MaxTokens:        r.MaxTokens,
		Stop:             append([]string(nil), r.Stop...),
		FrequencyPenalty: r.FrequencyPenalty,
		PresencePenalty:  r.PresencePenalty,
		TopP:             r.TopP,
		Stream:           r.Stream,
		Options: models.ProviderOptions{
			WebSearch:  r.WebSearch,
			Reasoning:  r.Reasoning,
			Deployment: r.Deployment,
			APIVersion: r.APIVersion,
			BaseURL:    r.BaseURL,
			Region:     r.Region,
		},
	}
}

func parseStop(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if strings.TrimSpace(single) == "" {
			return nil, nil
		}
		return []string{single}, nil
	}

	var multi []string
	if err := json.Unmarshal(raw, &multi); err == nil {
		out := make([]string, 0, len(multi))
		for _, item := range multi {
			if strings.TrimSpace(item) == "" {
				continue
			}
			out = append(out, item)
		}
		return out, nil
	}
	return nil, errUnsupportedStop
}

// ChatResponse is the non-streaming reply.
type ChatResponse struct {
	Text string `json:"text"`
}

// FromUnifiedChat builds the reply body.
func FromUnifiedChat(resp *models.UnifiedChatResponse) ChatResponse {
	if resp == nil {
		return ChatResponse{}
	}
	return ChatResponse{Text: resp.Text}
}

// StreamDelta is the payload of one SSE event on a streaming reply.
type StreamDelta struct {
	Delta string `json:"delta"`
}

// StreamError is the payload sent when a stream fails after headers went out.
type StreamError struct {
	Error ErrorBody `json:"error"`
}

// ErrorEnvelope is the OpenAI-style error body.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody describes one error.
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// ProviderInfo is one entry of GET /v1/providers.
type ProviderInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Auth        string `json:"auth"`
	StopLimit   int    `json:"stop_limit,omitempty"`
	Relayable   bool   `json:"relayable,omitempty"`
}
