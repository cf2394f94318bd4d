package provider

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"strings"

	"chatbridge/internal/errs"
	"chatbridge/internal/models"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "chatbridge/0.1"
)

// Outbound is a fully normalized provider request.
type Outbound struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
	// Stream marks a response that is read incrementally.
	Stream bool
}

// Validate checks every setting the policy requires. It performs no I/O and
// is meant to run before credentials are resolved.
func Validate(req models.UnifiedChatRequest, p Policy) error {
	if p.RequiresKey() && strings.TrimSpace(req.Credential.APIKey) == "" {
		return errs.Configuration(p.ID, "api_key", "must be provided")
	}

	if p.Auth == AuthJWTOAuth2 {
		sa := req.Credential.ServiceAccount
		if sa == nil {
			return errs.Configuration(p.ID, "service_account", "must be provided")
		}
		if field := sa.MissingField(); field != "" {
			return errs.Configuration(p.ID, "service_account."+field, "must be provided")
		}
	}

	required := []struct {
		placeholder string
		value       string
	}{
		{"base_url", req.Options.BaseURL},
		{"deployment", req.Options.Deployment},
		{"api_version", req.Options.APIVersion},
	}
	for _, r := range required {
		if p.usesPlaceholder(r.placeholder) && strings.TrimSpace(r.value) == "" {
			return errs.Configuration(p.ID, r.placeholder, "must be provided")
		}
	}

	if strings.TrimSpace(req.Model) == "" && !p.usesPlaceholder("deployment") {
		return errs.Configuration(p.ID, "model", "must be provided")
	}
	if len(filterMessages(req.Messages)) == 0 {
		return errs.Configuration(p.ID, "messages", "must contain at least one message")
	}

	return nil
}

// Normalize turns a unified request into the provider's wire request.
// authValue is the resolved credential: a static key, an OAuth2 access token,
// or "" for unauthenticated providers.
func Normalize(req models.UnifiedChatRequest, p Policy, authValue string) (Outbound, error) {
	if err := Validate(req, p); err != nil {
		return Outbound{}, err
	}

	req.Messages = filterMessages(req.Messages)
	if req.Options.WebSearch && p.WebSearchSuffix != "" && !strings.HasSuffix(req.Model, p.WebSearchSuffix) {
		req.Model += p.WebSearchSuffix
	}

	body := make(map[string]any)
	p.Map(req, body)
	applySampling(req, p, body)
	applyToggles(req, p, body)

	if req.Stream {
		body["stream"] = true
	}
	for k, v := range p.ExtraBody {
		if _, set := body[k]; !set {
			body[k] = v
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Outbound{}, fmt.Errorf("marshal payload: %w", err)
	}

	return Outbound{
		Method: http.MethodPost,
		URL:    buildURL(req, p),
		Header: buildHeader(req, p, authValue),
		Body:   payload,
		Stream: req.Stream,
	}, nil
}

func applySampling(req models.UnifiedChatRequest, p Policy, body map[string]any) {
	if req.Temperature != nil {
		t := *req.Temperature
		if p.TemperatureRange != nil {
			t = p.TemperatureRange.Clamp(t)
		}
		body["temperature"] = t
	}
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		body["max_tokens"] = *req.MaxTokens
	}

	if stop := uniqueStop(req.Stop); len(stop) > 0 && p.Permits(FieldStop, req.Model) {
		if p.StopLimit > 0 && len(stop) > p.StopLimit {
			stop = stop[:p.StopLimit]
		}
		body[p.wireName(FieldStop)] = stop
	}

	optional := []struct {
		field Field
		value *float64
	}{
		{FieldFrequencyPenalty, req.FrequencyPenalty},
		{FieldPresencePenalty, req.PresencePenalty},
		{FieldTopP, req.TopP},
	}
	for _, o := range optional {
		if o.value != nil && p.Permits(o.field, req.Model) {
			body[p.wireName(o.field)] = *o.value
		}
	}
}

func applyToggles(req models.UnifiedChatRequest, p Policy, body map[string]any) {
	if req.Options.WebSearch && p.WebSearchField != "" {
		body[p.WebSearchField] = maps.Clone(p.WebSearchConfig)
	}
	if req.Options.Reasoning != nil && p.ReasoningField != "" {
		state := "disabled"
		if *req.Options.Reasoning {
			state = "enabled"
		}
		body[p.ReasoningField] = map[string]any{"type": state}
	}
}

func buildURL(req models.UnifiedChatRequest, p Policy) string {
	region := strings.TrimSpace(req.Options.Region)
	if region == "" {
		region = p.DefaultRegion
	}
	var project string
	if req.Credential.ServiceAccount != nil {
		project = req.Credential.ServiceAccount.ProjectID
	}

	r := strings.NewReplacer(
		"{base_url}", strings.TrimRight(strings.TrimSpace(req.Options.BaseURL), "/"),
		"{deployment}", url.PathEscape(strings.TrimSpace(req.Options.Deployment)),
		"{api_version}", url.QueryEscape(strings.TrimSpace(req.Options.APIVersion)),
		"{region}", url.PathEscape(region),
		"{project}", url.PathEscape(strings.TrimSpace(project)),
	)
	return r.Replace(p.URLTemplate)
}

func buildHeader(req models.UnifiedChatRequest, p Policy, authValue string) http.Header {
	h := make(http.Header)
	h.Set("Content-Type", contentTypeJSON)
	h.Set("User-Agent", userAgent)
	if req.Stream {
		h.Set("Accept", "text/event-stream")
	} else {
		h.Set("Accept", contentTypeJSON)
	}

	for k, v := range p.ExtraHeaders {
		h.Set(k, v)
	}
	for k, v := range req.Options.Headers {
		switch http.CanonicalHeaderKey(k) {
		case "Authorization", "Content-Type", http.CanonicalHeaderKey(p.KeyHeader):
			continue
		}
		h.Set(k, v)
	}

	switch p.Auth {
	case AuthAPIKeyHeader:
		h.Set(p.KeyHeader, authValue)
	case AuthEmpty:
		h.Set("Authorization", "")
	default:
		if authValue == "" {
			h.Set("Authorization", "")
		} else {
			h.Set("Authorization", "Bearer "+authValue)
		}
	}

	return h
}

// filterMessages drops entries that are not well-formed messages.
func filterMessages(msgs []models.Message) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if strings.TrimSpace(m.Role) == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

func uniqueStop(stop []string) []string {
	if len(stop) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(stop))
	out := make([]string, 0, len(stop))
	for _, s := range stop {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

type openAIMessage struct {
	Role      string          `json:"role"`
	Content   any             `json:"content"`
	Name      string          `json:"name,omitempty"`
	ToolCalls json.RawMessage `json:"tool_calls,omitempty"`
}

// MapOpenAI passes messages through in the Chat Completions shape.
func MapOpenAI(req models.UnifiedChatRequest, body map[string]any) {
	messages := make([]openAIMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openAIMessage{
			Role:      m.Role,
			Content:   m.Content,
			Name:      m.Name,
			ToolCalls: m.ToolCalls,
		})
	}

	body["model"] = req.Model
	body["messages"] = messages
}
