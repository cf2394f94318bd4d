package provider

// Builtin returns the built-in provider table. The slice is freshly allocated
// on every call; the registry copies it once at construction.
func Builtin() []Policy {
	penalties := func(effect Effect, substrings ...string) []Rule {
		return []Rule{
			{Field: FieldFrequencyPenalty, Effect: effect, Substrings: substrings},
			{Field: FieldPresencePenalty, Effect: effect, Substrings: substrings},
		}
	}

	return []Policy{
		{
			ID:          "openai",
			DisplayName: "OpenAI",
			URLTemplate: "https://api.openai.com/v1/chat/completions",
			Auth:        AuthBearer,
			Map:         MapOpenAI,
			Rules: append(penalties(Deny, "o1", "o3", "o4-mini"),
				Rule{Field: FieldStop, Effect: Deny, Substrings: []string{"o1", "o3", "o4-mini"}}),
		},
		{
			ID:              "openrouter",
			DisplayName:     "OpenRouter",
			URLTemplate:     "https://openrouter.ai/api/v1/chat/completions",
			Auth:            AuthBearer,
			Map:             MapOpenAI,
			WebSearchSuffix: ":online",
			ExtraHeaders: map[string]string{
				"HTTP-Referer": "https://github.com/chatbridge/chatbridge",
				"X-Title":      "chatbridge",
			},
		},
		{
			ID:          "mistral",
			DisplayName: "Mistral AI",
			URLTemplate: "https://api.mistral.ai/v1/chat/completions",
			Auth:        AuthBearer,
			Map:         MapOpenAI,
		},
		{
			ID:          "groq",
			DisplayName: "Groq",
			URLTemplate: "https://api.groq.com/openai/v1/chat/completions",
			Auth:        AuthBearer,
			Map:         MapOpenAI,
		},
		{
			ID:          "deepseek",
			DisplayName: "DeepSeek",
			URLTemplate: "https://api.deepseek.com/chat/completions",
			Auth:        AuthBearer,
			Map:         MapOpenAI,
			Rules:       penalties(Deny, "reasoner"),
		},
		{
			ID:          "xai",
			DisplayName: "xAI",
			URLTemplate: "https://api.x.ai/v1/chat/completions",
			Auth:        AuthBearer,
			Map:         MapOpenAI,
			Rules: append(penalties(Deny, "grok-3-mini", "grok-4"),
				Rule{Field: FieldStop, Effect: Deny, Substrings: []string{"grok-4"}}),
			WebSearchField:  "search_parameters",
			WebSearchConfig: map[string]any{"mode": "on", "return_citations": true},
		},
		{
			ID:          "perplexity",
			DisplayName: "Perplexity",
			URLTemplate: "https://api.perplexity.ai/chat/completions",
			Auth:        AuthBearer,
			Map:         MapOpenAI,
			StopLimit:   1,
		},
		{
			ID:             "zai",
			DisplayName:    "Z.AI",
			URLTemplate:    "https://api.z.ai/api/paas/v4/chat/completions",
			Auth:           AuthBearer,
			Map:            MapOpenAI,
			ReasoningField: "thinking",
		},
		{
			ID:          "pollinations",
			DisplayName: "Pollinations",
			URLTemplate: "https://text.pollinations.ai/openai",
			Auth:        AuthEmpty,
			Map:         MapOpenAI,
		},
		{
			ID:          "custom",
			DisplayName: "Custom (OpenAI-compatible)",
			URLTemplate: "{base_url}/chat/completions",
			Auth:        AuthBearer,
			KeyOptional: true,
			Map:         MapOpenAI,
		},
		{
			ID:          "cohere",
			DisplayName: "Cohere",
			URLTemplate: "https://api.cohere.ai/v1/chat",
			Auth:        AuthBearer,
			Map:         MapCohere,
			FieldNames: map[Field]string{
				FieldStop: "stop_sequences",
				FieldTopP: "p",
			},
			StopLimit:        5,
			TemperatureRange: &Range{Min: 0.01, Max: 0.99},
			ExtraBody:        map[string]any{"prompt_truncation": "AUTO_PRESERVE_ORDER"},
			ResponseFormat:   FormatCohere,
			StreamFormat:     FormatCohere,
			Relayable:        true,
		},
		{
			ID:          "azure",
			DisplayName: "Azure OpenAI",
			URLTemplate: "{base_url}/openai/deployments/{deployment}/chat/completions?api-version={api_version}",
			Auth:        AuthAPIKeyHeader,
			KeyHeader:   "api-key",
			Map:         MapOpenAI,
		},
		{
			ID:            "vertex",
			DisplayName:   "Vertex AI",
			URLTemplate:   "https://{region}-aiplatform.googleapis.com/v1/projects/{project}/locations/{region}/endpoints/openapi/chat/completions",
			DefaultRegion: "us-central1",
			Auth:          AuthJWTOAuth2,
			Map:           MapOpenAI,
		},
	}
}
