package provider

import (
	"encoding/json"
	"fmt"

	"chatbridge/internal/models"
)

type cohereTurn struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// MapCohere splits the conversation into chat_history and the current
// message, the shape of Cohere's native chat endpoint.
func MapCohere(req models.UnifiedChatRequest, body map[string]any) {
	body["model"] = req.Model

	if len(req.Messages) == 0 {
		body["message"] = ""
		body["chat_history"] = []cohereTurn{}
		return
	}

	last := len(req.Messages) - 1
	history := make([]cohereTurn, 0, last)
	for _, m := range req.Messages[:last] {
		history = append(history, cohereTurn{
			Role:    cohereRole(m.Role),
			Message: contentString(m.Content),
		})
	}

	body["message"] = contentString(req.Messages[last].Content)
	body["chat_history"] = history
}

func cohereRole(role string) string {
	if role == "assistant" {
		return "CHATBOT"
	}
	return "USER"
}

func contentString(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}
