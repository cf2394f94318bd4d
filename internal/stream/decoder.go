// Package stream decodes streaming chat responses into text deltas.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"chatbridge/internal/errs"
	"chatbridge/internal/provider"
	"chatbridge/internal/response"
)

var doneMarker = []byte("[DONE]")

// Decoder is the default response.StreamDecoder. It reads OpenAI-style SSE
// and both generations of Cohere's streaming events.
type Decoder struct{}

// NewDecoder returns a Decoder.
func NewDecoder() *Decoder { return &Decoder{} }

var _ response.StreamDecoder = (*Decoder)(nil)

// Decode reads resp.Body until the stream terminates. Closing the body on ctx
// cancellation unblocks a pending read, which is then reported as a
// CancelledError.
func (d *Decoder) Decode(ctx context.Context, resp *http.Response, format provider.Format, h response.Handlers) {
	if h.OnChunk == nil {
		h.OnChunk = func(string) {}
	}
	if h.OnError == nil {
		h.OnError = func(error) {}
	}

	stop := context.AfterFunc(ctx, func() { _ = resp.Body.Close() })
	defer stop()

	var event func([]byte) (string, bool, error)
	switch format {
	case provider.FormatCohere:
		event = cohereEvent
	default:
		event = openAIEvent
	}

	lines := newLineReader(resp.Body)
	for {
		payload, err := lines.Next()
		if err != nil {
			if ctx.Err() != nil {
				h.OnError(&errs.CancelledError{Err: ctx.Err()})
				return
			}
			if !errors.Is(err, io.EOF) {
				h.OnError(fmt.Errorf("read stream: %w", err))
			}
			return
		}
		if len(payload) == 0 {
			continue
		}

		delta, done, err := event(payload)
		if err != nil {
			slog.Debug("stream decode failed", "format", format, "error", err)
			h.OnError(err)
			return
		}
		if delta != "" {
			h.OnChunk(delta)
		}
		if done {
			return
		}
	}
}

type openAIChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Text string `json:"text"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func openAIEvent(payload []byte) (string, bool, error) {
	if bytes.Equal(bytes.TrimSpace(payload), doneMarker) {
		return "", true, nil
	}

	var chunk openAIChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return "", false, fmt.Errorf("decode stream chunk: %w", err)
	}
	if chunk.Error != nil {
		apiErr := &errs.APIError{Message: chunk.Error.Message, Type: chunk.Error.Type, Raw: payload}
		if chunk.Error.Code != nil {
			apiErr.Code = fmt.Sprint(chunk.Error.Code)
		}
		return "", true, apiErr
	}
	if len(chunk.Choices) == 0 {
		return "", false, nil
	}
	c := chunk.Choices[0]
	if c.Delta.Content != "" {
		return c.Delta.Content, false, nil
	}
	return c.Text, false, nil
}

type cohereChunk struct {
	EventType    string `json:"event_type"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`

	Type  string `json:"type"`
	Delta struct {
		Message struct {
			Content struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"delta"`
}

func cohereEvent(payload []byte) (string, bool, error) {
	var chunk cohereChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return "", false, fmt.Errorf("decode stream chunk: %w", err)
	}

	switch {
	case chunk.EventType == "text-generation":
		return chunk.Text, false, nil
	case chunk.EventType == "stream-end":
		if chunk.FinishReason == "ERROR" {
			return "", true, &errs.APIError{Message: "stream ended with an error", Raw: payload}
		}
		return "", true, nil
	case chunk.Type == "content-delta":
		return chunk.Delta.Message.Content.Text, false, nil
	case chunk.Type == "message-end":
		if chunk.Delta.FinishReason == "ERROR" {
			return "", true, &errs.APIError{Message: "stream ended with an error", Raw: payload}
		}
		return "", true, nil
	}
	return "", false, nil
}
