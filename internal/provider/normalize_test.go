package provider_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbridge/internal/errs"
	"chatbridge/internal/models"
	"chatbridge/internal/provider"
)

func ptr[T any](v T) *T { return &v }

func mustResolve(t *testing.T, id string) provider.Policy {
	t.Helper()

	p, err := provider.NewRegistry().Resolve(id)
	require.NoError(t, err)
	return p
}

func baseRequest(providerID, model string) models.UnifiedChatRequest {
	return models.UnifiedChatRequest{
		Provider:   providerID,
		Credential: models.Credential{APIKey: "sk-test"},
		Model:      model,
		Messages: []models.Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hello"},
		},
	}
}

func decodeBody(t *testing.T, out provider.Outbound) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(out.Body, &body))
	return body
}

func sevenStops() []string {
	return []string{"a", "b", "c", "d", "e", "f", "g"}
}

func TestNormalize_OpenAIPassthrough(t *testing.T) {
	p := mustResolve(t, "openai")
	req := baseRequest("openai", "gpt-4o")
	req.Temperature = ptr(1.5)
	req.MaxTokens = ptr(256)
	req.Messages[1].Name = "alice"

	out, err := provider.Normalize(req, p, "sk-test")
	require.NoError(t, err)

	assert.Equal(t, "POST", out.Method)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", out.URL)
	assert.Equal(t, "Bearer sk-test", out.Header.Get("Authorization"))
	assert.Equal(t, "application/json", out.Header.Get("Content-Type"))

	body := decodeBody(t, out)
	assert.Equal(t, "gpt-4o", body["model"])
	assert.InDelta(t, 1.5, body["temperature"], 1e-9)
	assert.InDelta(t, 256, body["max_tokens"], 1e-9)
	assert.NotContains(t, body, "stream")

	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	second, _ := msgs[1].(map[string]any)
	assert.Equal(t, "user", second["role"])
	assert.Equal(t, "hello", second["content"])
	assert.Equal(t, "alice", second["name"])
}

func TestNormalize_DropsMalformedMessages(t *testing.T) {
	p := mustResolve(t, "openai")
	req := baseRequest("openai", "gpt-4o")
	req.Messages = append(req.Messages, models.Message{Content: "orphan"}, models.Message{Role: "  "})

	out, err := provider.Normalize(req, p, "sk-test")
	require.NoError(t, err)

	msgs, _ := decodeBody(t, out)["messages"].([]any)
	assert.Len(t, msgs, 2)
}

func TestNormalize_StopTruncation(t *testing.T) {
	tests := []struct {
		provider string
		model    string
		field    string
		want     int
	}{
		{"cohere", "command-r", "stop_sequences", 5},
		{"perplexity", "sonar", "stop", 1},
		{"mistral", "mistral-large", "stop", 7},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p := mustResolve(t, tt.provider)
			req := baseRequest(tt.provider, tt.model)
			req.Stop = sevenStops()

			out, err := provider.Normalize(req, p, "sk-test")
			require.NoError(t, err)

			stop, ok := decodeBody(t, out)[tt.field].([]any)
			require.True(t, ok)
			assert.Len(t, stop, tt.want)
			assert.Equal(t, "a", stop[0])
		})
	}
}

func TestNormalize_StopOmittedWhenEmpty(t *testing.T) {
	p := mustResolve(t, "openai")
	req := baseRequest("openai", "gpt-4o")
	req.Stop = []string{"", ""}

	out, err := provider.Normalize(req, p, "sk-test")
	require.NoError(t, err)
	assert.NotContains(t, decodeBody(t, out), "stop")
}

func TestNormalize_TemperatureClamp(t *testing.T) {
	p := mustResolve(t, "cohere")

	tests := []struct {
		in   float64
		want float64
	}{
		{1.5, 0.99},
		{0.0, 0.01},
		{0.5, 0.5},
	}

	for _, tt := range tests {
		req := baseRequest("cohere", "command-r")
		req.Temperature = ptr(tt.in)

		out, err := provider.Normalize(req, p, "sk-test")
		require.NoError(t, err)
		assert.InDelta(t, tt.want, decodeBody(t, out)["temperature"], 1e-9, "input %v", tt.in)
	}
}

func TestNormalize_ModelGating(t *testing.T) {
	p := mustResolve(t, "xai")

	gated := baseRequest("xai", "grok-4-0709")
	gated.FrequencyPenalty = ptr(0.3)
	gated.PresencePenalty = ptr(0.2)
	gated.Stop = []string{"END"}

	out, err := provider.Normalize(gated, p, "sk-test")
	require.NoError(t, err)
	body := decodeBody(t, out)
	assert.NotContains(t, body, "frequency_penalty")
	assert.NotContains(t, body, "presence_penalty")
	assert.NotContains(t, body, "stop")

	open := gated
	open.Model = "grok-2"
	out, err = provider.Normalize(open, p, "sk-test")
	require.NoError(t, err)
	body = decodeBody(t, out)
	assert.InDelta(t, 0.3, body["frequency_penalty"], 1e-9)
	assert.InDelta(t, 0.2, body["presence_penalty"], 1e-9)
	assert.Equal(t, []any{"END"}, body["stop"])
}

func TestPolicy_PermitsAllowRules(t *testing.T) {
	p := provider.Policy{Rules: []provider.Rule{
		{Field: provider.FieldTopP, Effect: provider.Allow, Substrings: []string{"Large"}},
		{Field: provider.FieldTopP, Effect: provider.Deny, Substrings: []string{"large-preview"}},
	}}

	assert.True(t, p.Permits(provider.FieldTopP, "mistral-large-latest"))
	assert.False(t, p.Permits(provider.FieldTopP, "mistral-small"))
	assert.False(t, p.Permits(provider.FieldTopP, "mistral-large-preview"))
	assert.True(t, p.Permits(provider.FieldStop, "anything"))
}

func TestNormalize_WebSearchSuffix(t *testing.T) {
	p := mustResolve(t, "openrouter")
	req := baseRequest("openrouter", "openai/gpt-4o")
	req.Options.WebSearch = true

	out, err := provider.Normalize(req, p, "sk-test")
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o:online", decodeBody(t, out)["model"])
	assert.Equal(t, "chatbridge", out.Header.Get("X-Title"))

	req.Model = "openai/gpt-4o:online"
	out, err = provider.Normalize(req, p, "sk-test")
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o:online", decodeBody(t, out)["model"])
}

func TestNormalize_WebSearchObject(t *testing.T) {
	p := mustResolve(t, "xai")
	req := baseRequest("xai", "grok-3")
	req.Options.WebSearch = true

	out, err := provider.Normalize(req, p, "sk-test")
	require.NoError(t, err)

	body := decodeBody(t, out)
	assert.Equal(t, "grok-3", body["model"])
	assert.Equal(t, map[string]any{"mode": "on", "return_citations": true}, body["search_parameters"])
}

func TestNormalize_ReasoningToggle(t *testing.T) {
	p := mustResolve(t, "zai")

	for _, enabled := range []bool{true, false} {
		req := baseRequest("zai", "glm-4.5")
		req.Options.Reasoning = ptr(enabled)

		out, err := provider.Normalize(req, p, "sk-test")
		require.NoError(t, err)

		want := "disabled"
		if enabled {
			want = "enabled"
		}
		assert.Equal(t, map[string]any{"type": want}, decodeBody(t, out)["thinking"])
	}

	req := baseRequest("zai", "glm-4.5")
	out, err := provider.Normalize(req, p, "sk-test")
	require.NoError(t, err)
	assert.NotContains(t, decodeBody(t, out), "thinking")
}

func TestNormalize_CohereMapping(t *testing.T) {
	p := mustResolve(t, "cohere")
	req := baseRequest("cohere", "command-r-plus")
	req.Stream = true
	req.Messages = []models.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello!"},
		{Role: "user", Content: []any{map[string]any{"type": "text", "text": "again"}}},
	}

	out, err := provider.Normalize(req, p, "co-key")
	require.NoError(t, err)
	assert.Equal(t, "https://api.cohere.ai/v1/chat", out.URL)
	assert.Equal(t, "Bearer co-key", out.Header.Get("Authorization"))
	assert.Equal(t, "text/event-stream", out.Header.Get("Accept"))

	body := decodeBody(t, out)
	assert.Equal(t, "command-r-plus", body["model"])
	assert.Equal(t, `[{"text":"again","type":"text"}]`, body["message"])
	assert.Equal(t, true, body["stream"])
	assert.Equal(t, "AUTO_PRESERVE_ORDER", body["prompt_truncation"])
	assert.NotContains(t, body, "messages")

	history, ok := body["chat_history"].([]any)
	require.True(t, ok)
	require.Len(t, history, 3)
	assert.Equal(t, map[string]any{"role": "USER", "message": "be brief"}, history[0])
	assert.Equal(t, map[string]any{"role": "USER", "message": "hi"}, history[1])
	assert.Equal(t, map[string]any{"role": "CHATBOT", "message": "hello!"}, history[2])
}

func TestNormalize_AzureURLAndKeyHeader(t *testing.T) {
	p := mustResolve(t, "azure")
	req := baseRequest("azure", "")
	req.Options.BaseURL = "https://acme.openai.azure.com/"
	req.Options.Deployment = "gpt4o-prod"
	req.Options.APIVersion = "2024-10-21"

	out, err := provider.Normalize(req, p, "az-key")
	require.NoError(t, err)
	assert.Equal(t, "https://acme.openai.azure.com/openai/deployments/gpt4o-prod/chat/completions?api-version=2024-10-21", out.URL)
	assert.Equal(t, "az-key", out.Header.Get("api-key"))
	assert.Empty(t, out.Header.Values("Authorization"))
}

func TestNormalize_CustomBaseURL(t *testing.T) {
	p := mustResolve(t, "custom")
	req := baseRequest("custom", "llama3")
	req.Options.BaseURL = "http://localhost:5001/v1//"

	out, err := provider.Normalize(req, p, "")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5001/v1/chat/completions", out.URL)
	assert.Equal(t, []string{""}, out.Header.Values("Authorization"))

	out, err = provider.Normalize(req, p, "local-key")
	require.NoError(t, err)
	assert.Equal(t, "Bearer local-key", out.Header.Get("Authorization"))
}

func TestNormalize_EmptyAuth(t *testing.T) {
	p := mustResolve(t, "pollinations")
	req := baseRequest("pollinations", "openai")
	req.Credential = models.Credential{}

	out, err := provider.Normalize(req, p, "")
	require.NoError(t, err)
	assert.Equal(t, []string{""}, out.Header.Values("Authorization"))
}

func TestNormalize_VertexURL(t *testing.T) {
	p := mustResolve(t, "vertex")
	req := baseRequest("vertex", "google/gemini-2.0-flash")
	req.Credential = models.Credential{ServiceAccount: &models.ServiceAccount{
		ClientEmail: "bot@proj.iam.gserviceaccount.com",
		PrivateKey:  "key",
		ProjectID:   "proj-123",
	}}

	out, err := provider.Normalize(req, p, "ya29.token")
	require.NoError(t, err)
	assert.Equal(t, "https://us-central1-aiplatform.googleapis.com/v1/projects/proj-123/locations/us-central1/endpoints/openapi/chat/completions", out.URL)
	assert.Equal(t, "Bearer ya29.token", out.Header.Get("Authorization"))

	req.Options.Region = "europe-west4"
	out, err = provider.Normalize(req, p, "ya29.token")
	require.NoError(t, err)
	assert.Contains(t, out.URL, "https://europe-west4-aiplatform.googleapis.com/")
}

func TestValidate_MissingSettings(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		mutate func(*models.UnifiedChatRequest)
		field  string
	}{
		{"missing key", "openai", func(r *models.UnifiedChatRequest) { r.Credential.APIKey = "" }, "api_key"},
		{"missing base url", "custom", func(r *models.UnifiedChatRequest) {}, "base_url"},
		{"missing deployment", "azure", func(r *models.UnifiedChatRequest) {
			r.Options.BaseURL = "https://acme.openai.azure.com"
			r.Options.APIVersion = "2024-10-21"
		}, "deployment"},
		{"missing api version", "azure", func(r *models.UnifiedChatRequest) {
			r.Options.BaseURL = "https://acme.openai.azure.com"
			r.Options.Deployment = "prod"
		}, "api_version"},
		{"missing service account", "vertex", func(r *models.UnifiedChatRequest) {}, "service_account"},
		{"incomplete service account", "vertex", func(r *models.UnifiedChatRequest) {
			r.Credential.ServiceAccount = &models.ServiceAccount{ClientEmail: "a@b", PrivateKey: "k"}
		}, "service_account.project_id"},
		{"missing model", "openai", func(r *models.UnifiedChatRequest) { r.Model = "" }, "model"},
		{"no messages", "openai", func(r *models.UnifiedChatRequest) { r.Messages = nil }, "messages"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest(tt.id, "some-model")
			tt.mutate(&req)

			err := provider.Validate(req, mustResolve(t, tt.id))
			var cfgErr *errs.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestNormalize_ConfiguredHeaders(t *testing.T) {
	p := mustResolve(t, "azure")
	req := baseRequest("azure", "")
	req.Options.BaseURL = "https://acme.openai.azure.com"
	req.Options.Deployment = "d"
	req.Options.APIVersion = "2024-10-21"
	req.Options.Headers = map[string]string{
		"X-Tenant":      "blue",
		"Authorization": "Bearer sneaky",
		"Api-Key":       "override",
	}

	out, err := provider.Normalize(req, p, "az-key")
	require.NoError(t, err)
	assert.Equal(t, "blue", out.Header.Get("X-Tenant"))
	assert.Equal(t, "az-key", out.Header.Get("api-key"))
	assert.Empty(t, out.Header.Values("Authorization"))
}
