package provider

import (
	"strings"

	"chatbridge/internal/models"
)

// AuthScheme selects how the credential is presented to a provider.
type AuthScheme string

const (
	// AuthBearer sends "Authorization: Bearer <key>".
	AuthBearer AuthScheme = "bearer"
	// AuthAPIKeyHeader sends the raw key in Policy.KeyHeader.
	AuthAPIKeyHeader AuthScheme = "api-key-header"
	// AuthEmpty sends an empty Authorization header.
	AuthEmpty AuthScheme = "empty-auth"
	// AuthJWTOAuth2 sends a bearer token minted from a service account.
	AuthJWTOAuth2 AuthScheme = "jwt-oauth2"
)

// Format names a response or stream wire shape.
type Format string

const (
	// FormatOpenAI is the chat-completions shape: choices[0].message.content,
	// and choices[0].delta.content per stream event.
	FormatOpenAI Format = "openai"
	// FormatCohere is Cohere's chat shape: message.content[].text or a top-level
	// text, and either text-generation or content-delta stream events.
	FormatCohere Format = "cohere"
)

// Field names an optional request field subject to model gating.
type Field string

const (
	FieldStop             Field = "stop"
	FieldFrequencyPenalty Field = "frequency_penalty"
	FieldPresencePenalty  Field = "presence_penalty"
	FieldTopP             Field = "top_p"
)

// Effect is the outcome of a matching gating rule.
type Effect int

const (
	Deny Effect = iota
	Allow
)

// Rule gates an optional field on substrings of the model identifier.
type Rule struct {
	Field      Field
	Effect     Effect
	Substrings []string
}

func (r Rule) matches(model string) bool {
	for _, s := range r.Substrings {
		if strings.Contains(model, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// Range is an inclusive numeric interval.
type Range struct {
	Min float64
	Max float64
}

// Clamp returns v limited to [Min, Max].
func (r Range) Clamp(v float64) float64 {
	return min(max(v, r.Min), r.Max)
}

// Mapper writes the provider-specific model and conversation fields to body.
type Mapper func(req models.UnifiedChatRequest, body map[string]any)

// Policy is the immutable description of one provider. Adding a provider means
// adding one Policy to the table and, if its wire shape is new, one Mapper.
type Policy struct {
	ID          string
	DisplayName string

	// URLTemplate may reference {base_url}, {deployment}, {api_version},
	// {region} and {project}; each referenced value is required.
	URLTemplate   string
	DefaultRegion string

	Auth        AuthScheme
	KeyHeader   string // header name for AuthAPIKeyHeader
	KeyOptional bool   // bearer without a key degrades to empty auth

	Map              Mapper
	FieldNames       map[Field]string // wire names differing from the Field value
	StopLimit        int              // 0 means unbounded
	TemperatureRange *Range
	Rules            []Rule

	WebSearchSuffix string         // appended to the model name
	WebSearchField  string         // body field receiving WebSearchConfig
	WebSearchConfig map[string]any
	ReasoningField  string         // body field receiving {"type": "enabled"|"disabled"}

	ExtraBody    map[string]any
	ExtraHeaders map[string]string

	ResponseFormat Format
	StreamFormat   Format
	Relayable      bool
}

// Permits reports whether field may be sent for model. Deny rules win; when
// allow rules exist for the field, at least one of them must match.
func (p Policy) Permits(field Field, model string) bool {
	model = strings.ToLower(model)
	hasAllow, allowed := false, false
	for _, r := range p.Rules {
		if r.Field != field {
			continue
		}
		switch r.Effect {
		case Deny:
			if r.matches(model) {
				return false
			}
		case Allow:
			hasAllow = true
			if r.matches(model) {
				allowed = true
			}
		}
	}
	return !hasAllow || allowed
}

// RequiresKey reports whether a static key must be configured.
func (p Policy) RequiresKey() bool {
	switch p.Auth {
	case AuthBearer:
		return !p.KeyOptional
	case AuthAPIKeyHeader:
		return true
	default:
		return false
	}
}

func (p Policy) wireName(f Field) string {
	if name, ok := p.FieldNames[f]; ok {
		return name
	}
	return string(f)
}

func (p Policy) usesPlaceholder(name string) bool {
	return strings.Contains(p.URLTemplate, "{"+name+"}")
}
