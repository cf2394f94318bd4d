package response

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"chatbridge/internal/errs"
)

const maxErrorBody = 64 * 1024

// Classifier turns a non-2xx provider response into a structured error.
type Classifier interface {
	Classify(provider string, resp *http.Response) error
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(provider string, resp *http.Response) error

func (f ClassifierFunc) Classify(provider string, resp *http.Response) error { return f(provider, resp) }

// DefaultClassifier understands the OpenAI error envelope, Cohere's flat
// {"message": ...} body and plain-text bodies.
var DefaultClassifier Classifier = ClassifierFunc(classify)

type errorEnvelope struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
	Detail  string          `json:"detail"`
}

type errorObject struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func classify(provider string, resp *http.Response) error {
	apiErr := &errs.APIError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		RequestID:  requestID(resp.Header),
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		apiErr.Message = fmt.Sprintf("failed to read error body: %v", err)
		return apiErr
	}
	apiErr.Raw = body

	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil {
		var obj errorObject
		var str string
		switch {
		case len(env.Error) > 0 && json.Unmarshal(env.Error, &obj) == nil && obj.Message != "":
			apiErr.Message = obj.Message
			apiErr.Type = obj.Type
			if obj.Code != nil {
				apiErr.Code = strings.TrimSpace(fmt.Sprint(obj.Code))
			}
		case len(env.Error) > 0 && json.Unmarshal(env.Error, &str) == nil && str != "":
			apiErr.Message = str
		case env.Message != "":
			apiErr.Message = env.Message
		case env.Detail != "":
			apiErr.Message = env.Detail
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

func requestID(h http.Header) string {
	for _, key := range []string{"X-Request-Id", "Request-Id", "X-Amzn-Requestid", "Apim-Request-Id"} {
		if v := h.Get(key); v != "" {
			return v
		}
	}
	return ""
}
