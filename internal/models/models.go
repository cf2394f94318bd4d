package models

import (
	"encoding/json"
	"strings"
)

// Message represents a single conversational message in the unified schema.
// Content is usually a string; structured content (parts arrays, objects) is
// passed through untouched to providers that accept it.
type Message struct {
	Role      string          `json:"role"`
	Content   any             `json:"content"`
	Name      string          `json:"name,omitempty"`
	ToolCalls json.RawMessage `json:"tool_calls,omitempty"`
}

// ServiceAccount is a non-interactive credential used to mint short-lived
// OAuth2 bearer tokens. Field tags follow the Google service-account key file.
type ServiceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	ProjectID   string `json:"project_id"`
}

// MissingField returns the JSON name of the first empty required field, or ""
// when the account is complete.
func (sa ServiceAccount) MissingField() string {
	switch {
	case strings.TrimSpace(sa.ClientEmail) == "":
		return "client_email"
	case strings.TrimSpace(sa.PrivateKey) == "":
		return "private_key"
	case strings.TrimSpace(sa.ProjectID) == "":
		return "project_id"
	default:
		return ""
	}
}

// Credential carries whichever secret the selected provider authenticates with.
type Credential struct {
	APIKey         string
	ServiceAccount *ServiceAccount
}

// ProviderOptions holds settings only some providers understand.
type ProviderOptions struct {
	WebSearch  bool
	Reasoning  *bool
	Deployment string
	APIVersion string
	BaseURL    string
	Region     string
	RelayURL   string
	// Headers are operator-configured extras; they never replace the
	// content-type or auth headers.
	Headers map[string]string
}

// UnifiedChatRequest is the canonical representation of a chat completion.
type UnifiedChatRequest struct {
	Provider         string
	Credential       Credential
	Model            string
	Messages         []Message
	Temperature      *float64
	MaxTokens        *int
	Stop             []string
	FrequencyPenalty *float64
	PresencePenalty  *float64
	TopP             *float64
	Stream           bool
	Options          ProviderOptions
}

// UnifiedChatResponse captures a provider response in the unified schema.
// For streamed calls Text holds the concatenation of the delivered chunks.
type UnifiedChatResponse struct {
	Text string
}
