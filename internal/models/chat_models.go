package models

// ChatModel maps a client-facing model id to the upstream model identifier
type ChatModel struct {
	ID            string `yaml:"id" json:"id"`
	Label         string `yaml:"label" json:"label"`
	APIIdentifier string `yaml:"api_identifier" json:"apiIdentifier"`
	Description   string `yaml:"description" json:"description"`
}

// DefaultModelID is used when the configuration names no default
const DefaultModelID = "claude-3-5-sonnet"

// DefaultChatModels is the built-in registry
func DefaultChatModels() []ChatModel {
	return []ChatModel{
		{
			ID:            "claude-3-5-sonnet",
			Label:         "Claude 3.5 Sonnet",
			APIIdentifier: "claude-3-5-sonnet-20241022",
			Description:   "Latest Claude model optimized for complex tasks with excellent performance",
		},
		{
			ID:            "claude-3-5-haiku",
			Label:         "Claude 3.5 Haiku",
			APIIdentifier: "claude-3-5-haiku-20241022",
			Description:   "Fast and efficient Claude model for quick responses and simple tasks",
		},
	}
}

// FindChatModel looks a model up by its client-facing id
func FindChatModel(chatModels []ChatModel, id string) (ChatModel, bool) {
	for _, m := range chatModels {
		if m.ID == id {
			return m, true
		}
	}
	return ChatModel{}, false
}
