// Package response extracts unified text from provider responses and hands
// streamed bodies to a StreamDecoder.
package response

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"chatbridge/internal/errs"
	"chatbridge/internal/provider"
)

// Handlers receive decoded stream events. Both are called on the decoding
// goroutine, in arrival order.
type Handlers struct {
	OnChunk func(delta string)
	OnError func(err error)
}

// StreamDecoder consumes a streaming response body and reports deltas. It
// returns once the stream ends, fails or ctx is done.
type StreamDecoder interface {
	Decode(ctx context.Context, resp *http.Response, format provider.Format, h Handlers)
}

// ErrNoDecoder is returned by Stream when the resolver has no decoder.
var ErrNoDecoder = errors.New("no stream decoder configured")

// Resolver converts HTTP responses into text.
type Resolver struct {
	classifier Classifier
	decoder    StreamDecoder
}

// NewResolver creates a Resolver. A nil classifier selects DefaultClassifier.
func NewResolver(classifier Classifier, decoder StreamDecoder) *Resolver {
	if classifier == nil {
		classifier = DefaultClassifier
	}
	return &Resolver{classifier: classifier, decoder: decoder}
}

// Text classifies non-2xx responses and otherwise extracts the reply text in
// the policy's response format. The caller closes the body.
func (r *Resolver) Text(p provider.Policy, resp *http.Response) (string, error) {
	if !success(resp.StatusCode) {
		return "", r.classifier.Classify(p.ID, resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var text string
	switch p.ResponseFormat {
	case provider.FormatCohere:
		text, err = cohereText(body)
	default:
		text, err = openAIText(body)
	}
	if err != nil {
		return "", &errs.EmptyResponseError{Provider: p.ID, Reason: "undecodable body", Err: err}
	}
	if text == "" {
		return "", &errs.EmptyResponseError{Provider: p.ID, Reason: "no text in response"}
	}
	return text, nil
}

// Stream classifies non-2xx responses and otherwise runs the decoder over the
// body, forwarding each delta to onChunk. It returns the concatenated text and
// the first error the decoder reported.
func (r *Resolver) Stream(ctx context.Context, p provider.Policy, resp *http.Response, onChunk func(string)) (string, error) {
	if !success(resp.StatusCode) {
		return "", r.classifier.Classify(p.ID, resp)
	}
	if r.decoder == nil {
		return "", ErrNoDecoder
	}

	var (
		b        strings.Builder
		firstErr error
	)
	r.decoder.Decode(ctx, resp, p.StreamFormat, Handlers{
		OnChunk: func(delta string) {
			b.WriteString(delta)
			if onChunk != nil {
				onChunk(delta)
			}
		},
		OnError: func(err error) {
			if firstErr == nil {
				firstErr = err
			}
		},
	})

	return b.String(), firstErr
}

func success(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
		Text string `json:"text"`
	} `json:"choices"`
}

func openAIText(body []byte) (string, error) {
	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}

	choice := resp.Choices[0]
	if text := contentText(choice.Message.Content, false); text != "" {
		return text, nil
	}
	return choice.Text, nil
}

type cohereResponse struct {
	Message struct {
		Content json.RawMessage `json:"content"`
	} `json:"message"`
	Text string `json:"text"`
}

func cohereText(body []byte) (string, error) {
	var resp cohereResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	if text := contentText(resp.Message.Content, true); text != "" {
		return text, nil
	}
	return resp.Text, nil
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// contentText reads a content value that is a string, an object with a text
// field or an array of parts. With firstOnly the first non-empty part wins;
// otherwise text parts are concatenated.
func contentText(raw json.RawMessage, firstOnly bool) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}

	var part contentPart
	if json.Unmarshal(raw, &part) == nil && part.Text != "" {
		return part.Text
	}

	var parts []contentPart
	if json.Unmarshal(raw, &parts) != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range parts {
		if p.Type != "" && p.Type != "text" {
			continue
		}
		if firstOnly && p.Text != "" {
			return p.Text
		}
		b.WriteString(p.Text)
	}
	return b.String()
}
